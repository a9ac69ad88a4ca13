package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(v string) *string { return &v }

func floatPtr(v float64) *float64 { return &v }

func timePtr(v time.Time) *time.Time { return &v }

func TestEnrollmentRoundTripPreservesNullables(t *testing.T) {
	enrolledAt := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)
	droppedAt := enrolledAt.Add(72 * time.Hour)

	cases := []struct {
		name string
		in   Enrollment
	}{
		{
			name: "all nullable fields unset",
			in: Enrollment{
				ID: "enr-1", StudentID: "stu-1", SectionID: "sec-1",
				Status: EnrollmentStatusEnrolled, Version: 1, EnrolledAt: enrolledAt,
			},
		},
		{
			name: "all nullable fields set",
			in: Enrollment{
				ID: "enr-2", StudentID: "stu-1", SectionID: "sec-1",
				Status: EnrollmentStatusDropped, Version: 2, EnrolledAt: enrolledAt,
				DroppedAt:  timePtr(droppedAt),
				DroppedBy:  strPtr("stu-1"),
				DropReason: strPtr("schedule conflict"),
				FinalGrade: floatPtr(86.67),
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := json.Marshal(tc.in)
			require.NoError(t, err)

			var out Enrollment
			require.NoError(t, json.Unmarshal(raw, &out))
			assert.Equal(t, tc.in, out)

			// Null and set must stay distinguishable after the round trip.
			if tc.in.DroppedAt == nil {
				assert.Nil(t, out.DroppedAt)
				assert.Nil(t, out.DroppedBy)
				assert.Nil(t, out.DropReason)
				assert.Nil(t, out.FinalGrade)
			} else {
				require.NotNil(t, out.FinalGrade)
				assert.InDelta(t, 86.67, *out.FinalGrade, 0.0001)
				require.NotNil(t, out.DropReason)
				assert.Equal(t, "schedule conflict", *out.DropReason)
			}
		})
	}
}
