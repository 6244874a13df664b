package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func TestNewSimulationClock_Validation(t *testing.T) {
	tests := []struct {
		name     string
		start    time.Time
		end      time.Time
		stepDays float64
		wantErr  bool
	}{
		{"valid one day steps", date(2020, 1, 1), date(2020, 12, 31), 1, false},
		{"valid fractional step", date(2020, 1, 1), date(2020, 1, 2), 0.5, false},
		{"zero step", date(2020, 1, 1), date(2020, 1, 2), 0, true},
		{"negative step", date(2020, 1, 1), date(2020, 1, 2), -1, true},
		{"end before start", date(2021, 1, 1), date(2020, 1, 1), 1, true},
		{"start equals end", date(2020, 1, 1), date(2020, 1, 1), 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSimulationClock(tt.start, tt.end, tt.stepDays)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSimulationClock_Advance(t *testing.T) {
	clock, err := NewSimulationClock(date(2020, 1, 1), date(2020, 1, 11), 1)
	if err != nil {
		t.Fatalf("NewSimulationClock: %v", err)
	}

	assert.Equal(t, date(2020, 1, 1), clock.Time())
	assert.Equal(t, 0, clock.StepsTaken())
	assert.False(t, clock.IsFinished())

	steps := 0
	for !clock.IsFinished() {
		clock.Advance()
		steps++
	}
	assert.Equal(t, 10, steps)
	assert.Equal(t, 10, clock.StepsTaken())
	assert.Equal(t, date(2020, 1, 11), clock.Time())
}

func TestSimulationClock_StepYears(t *testing.T) {
	clock, err := NewSimulationClock(date(2020, 1, 1), date(2020, 12, 31), 1)
	if err != nil {
		t.Fatalf("NewSimulationClock: %v", err)
	}
	assert.InDelta(t, 1.0/365.25, clock.StepYears(), 1e-15)

	weekly, err := NewSimulationClock(date(2020, 1, 1), date(2020, 12, 31), 7)
	if err != nil {
		t.Fatalf("NewSimulationClock: %v", err)
	}
	assert.InDelta(t, 7.0/365.25, weekly.StepYears(), 1e-15)
}

func TestSimulationClock_FinishedImmediatelyWhenEmpty(t *testing.T) {
	clock, err := NewSimulationClock(date(2020, 1, 1), date(2020, 1, 1), 1)
	if err != nil {
		t.Fatalf("NewSimulationClock: %v", err)
	}
	assert.True(t, clock.IsFinished())
}
