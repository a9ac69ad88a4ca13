package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/campus-registrar-api/pkg/errors"
)

type recordingCacheMetrics struct {
	hits   int
	misses int
}

func (m *recordingCacheMetrics) RecordCacheOperation(hit bool) {
	if hit {
		m.hits++
	} else {
		m.misses++
	}
}

func TestCacheRepositoryRecordsMissWithoutRedis(t *testing.T) {
	metrics := &recordingCacheMetrics{}
	repo := NewCacheRepository(nil, metrics, nil)

	var out string
	err := repo.Get(context.Background(), "eligibility:stu-1:course-1", &out)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrCacheMiss))
	assert.Equal(t, 1, metrics.misses)
	assert.Zero(t, metrics.hits)

	// Writes and invalidations degrade to no-ops and never count as lookups.
	require.NoError(t, repo.Set(context.Background(), "k", "v", 0))
	require.NoError(t, repo.DeleteByPattern(context.Background(), "eligibility:stu-1:*"))
	assert.Equal(t, 1, metrics.misses)
}
