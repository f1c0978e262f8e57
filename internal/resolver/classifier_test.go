package resolver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"aura.dev/aura/internal/domain"
)

func TestClassify_Boundary(t *testing.T) {
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		lag      time.Duration
		wantLate bool
	}{
		{"on time", 0, false},
		{"negative gap from clock skew", -2 * time.Hour, false},
		{"just under", 11*time.Hour + 59*time.Minute, false},
		{"exactly twelve hours", 12 * time.Hour, false},
		{"twelve hours plus epsilon", 12*time.Hour + time.Nanosecond, true},
		{"a day late", 24 * time.Hour, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := domain.Event{EventTimestamp: base, IngestionTimestamp: base.Add(tt.lag)}
			c := Classify(e, time.Time{}, DefaultLateArrivalThresholdHours)
			require.Equal(t, tt.wantLate, c.IsLate)
			require.InDelta(t, tt.lag.Hours(), c.LatenessHours, 1e-9)
		})
	}
}

func TestClassify_UsesReferenceWithoutIngestionTime(t *testing.T) {
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	e := domain.Event{EventTimestamp: base}

	c := Classify(e, base.Add(13*time.Hour), DefaultLateArrivalThresholdHours)
	require.True(t, c.IsLate)
	require.InDelta(t, 13.0, c.LatenessHours, 1e-9)
}

func TestApply_SetOnce(t *testing.T) {
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	e := domain.Event{EventID: "e1", EventTimestamp: base, IngestionTimestamp: base.Add(20 * time.Hour)}

	classified := Apply(e, time.Time{}, DefaultLateArrivalThresholdHours)
	require.True(t, classified.Classified)
	require.True(t, classified.IsLateArrival)
	require.InDelta(t, 20.0, classified.LatenessHours, 1e-9)
	require.False(t, e.Classified, "input must not be mutated")

	again := Apply(classified, time.Time{}, 100)
	require.Equal(t, classified, again)
}

func TestApply_StampsIngestionTime(t *testing.T) {
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	ref := base.Add(time.Hour)

	out := Apply(domain.Event{EventTimestamp: base}, ref, DefaultLateArrivalThresholdHours)
	require.True(t, out.IngestionTimestamp.Equal(ref))
	require.False(t, out.IsLateArrival)
}
