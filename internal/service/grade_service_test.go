package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-registrar-api/internal/models"
)

func TestAggregate(t *testing.T) {
	// One assignment graded 80/100, one ungraded (absent), one graded 50/50.
	graded := []models.GradedSubmission{
		{AssignmentID: "a1", TotalPoints: 100, Grade: 80},
		{AssignmentID: "a3", TotalPoints: 50, Grade: 50},
	}

	summary := Aggregate("stu-1", "sec-1", graded)
	assert.InDelta(t, 130.0, summary.EarnedPoints, 0.001)
	assert.InDelta(t, 150.0, summary.TotalPoints, 0.001)
	assert.InDelta(t, 86.67, summary.Percentage, 0.001)
}

func TestAggregateNoGradedWork(t *testing.T) {
	summary := Aggregate("stu-1", "sec-1", nil)
	assert.Zero(t, summary.Percentage)
	assert.Zero(t, summary.TotalPoints)
}

func TestAggregateRounding(t *testing.T) {
	graded := []models.GradedSubmission{
		{AssignmentID: "a1", TotalPoints: 3, Grade: 1},
	}
	summary := Aggregate("stu-1", "sec-1", graded)
	assert.InDelta(t, 33.33, summary.Percentage, 0.0001)
}

type mockGradedReader struct {
	graded map[string][]models.GradedSubmission
	calls  int
}

func (m *mockGradedReader) LatestGraded(ctx context.Context, sectionID, studentID string) ([]models.GradedSubmission, error) {
	m.calls++
	return m.graded[sectionID+":"+studentID], nil
}

func TestComputeGrade(t *testing.T) {
	reader := &mockGradedReader{graded: map[string][]models.GradedSubmission{
		"sec-1:stu-1": {
			{AssignmentID: "a1", TotalPoints: 100, Grade: 80},
			{AssignmentID: "a2", TotalPoints: 50, Grade: 50},
		},
	}}
	svc := NewGradeService(reader, nil, time.Minute, nil)

	summary, err := svc.ComputeGrade(context.Background(), "stu-1", "sec-1")
	require.NoError(t, err)
	assert.InDelta(t, 86.67, summary.Percentage, 0.001)

	// A student with no submissions yields a zero grade, not an error.
	summary, err = svc.ComputeGrade(context.Background(), "stu-ghost", "sec-1")
	require.NoError(t, err)
	assert.Zero(t, summary.Percentage)

	_, err = svc.ComputeGrade(context.Background(), "", "sec-1")
	require.Error(t, err)
}

func TestComputeGradeIdempotent(t *testing.T) {
	reader := &mockGradedReader{graded: map[string][]models.GradedSubmission{
		"sec-1:stu-1": {{AssignmentID: "a1", TotalPoints: 10, Grade: 9}},
	}}
	svc := NewGradeService(reader, nil, time.Minute, nil)

	first, err := svc.ComputeGrade(context.Background(), "stu-1", "sec-1")
	require.NoError(t, err)
	second, err := svc.ComputeGrade(context.Background(), "stu-1", "sec-1")
	require.NoError(t, err)
	assert.Equal(t, first.Percentage, second.Percentage)
	assert.Equal(t, 2, reader.calls)
}
