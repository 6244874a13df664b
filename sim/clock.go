package sim

import "time"

// daysPerYear converts step sizes in days to fractions of a person-year.
const daysPerYear = 365.25

// SimulationClock drives simulation time forward in fixed steps of a
// configured number of days. It is the only source of time for every
// component; components never consult the wall clock.
type SimulationClock struct {
	start    time.Time
	end      time.Time
	stepDays float64
	step     time.Duration
	now      time.Time
	steps    int
}

// NewSimulationClock validates the time window and returns a clock positioned
// at the start time.
func NewSimulationClock(start, end time.Time, stepDays float64) (*SimulationClock, error) {
	if stepDays <= 0 {
		return nil, configErrorf("time.step_size must be positive, got %v", stepDays)
	}
	if end.Before(start) {
		return nil, configErrorf("time.end (%s) precedes time.start (%s)",
			end.Format("2006-01-02"), start.Format("2006-01-02"))
	}
	return &SimulationClock{
		start:    start,
		end:      end,
		stepDays: stepDays,
		step:     time.Duration(stepDays * 24 * float64(time.Hour)),
		now:      start,
	}, nil
}

// Time returns the current simulation time.
func (c *SimulationClock) Time() time.Time { return c.now }

// Start returns the configured simulation start time.
func (c *SimulationClock) Start() time.Time { return c.start }

// End returns the configured simulation end time.
func (c *SimulationClock) End() time.Time { return c.end }

// StepDays returns the step size in days.
func (c *SimulationClock) StepDays() float64 { return c.stepDays }

// StepYears returns the step size as a fraction of a year, used to convert
// annualized hazard rates into per-step probabilities and to accrue
// person-time.
func (c *SimulationClock) StepYears() float64 { return c.stepDays / daysPerYear }

// StepsTaken returns the number of completed Advance calls.
func (c *SimulationClock) StepsTaken() int { return c.steps }

// Advance moves simulation time forward by one step.
func (c *SimulationClock) Advance() {
	c.now = c.now.Add(c.step)
	c.steps++
}

// IsFinished reports whether the current time has reached the end time.
func (c *SimulationClock) IsFinished() bool { return !c.now.Before(c.end) }
