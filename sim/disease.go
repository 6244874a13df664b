package sim

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lsff-sim/lsff-sim/sim/artifact"
)

// State names follow the convention of the source data: the with-condition
// state carries the cause name itself.
func susceptibleState(cause string) string   { return "susceptible_to_" + cause }
func withConditionState(cause string) string { return cause }
func recoveredState(cause string) string     { return "recovered_from_" + cause }

// rateToProbability converts an annualized hazard rate to a per-step
// transition probability, p = 1 - exp(-rate * dt). The returned probability
// is clamped to [0, 1]; ok is false when the rate is negative or non-finite.
func rateToProbability(rate, dtYears float64) (p float64, ok bool) {
	if rate < 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return 0, false
	}
	p = 1 - math.Exp(-rate*dtYears)
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return p, true
}

func invalidRate(pipeline string, rate float64, clock *SimulationClock) error {
	return &InvalidRateError{
		Pipeline: pipeline,
		Value:    rate,
		Step:     clock.StepsTaken(),
		Time:     clock.Time(),
	}
}

// stepKey returns the per-step additional hash key for repeated decisions.
func stepKey(clock *SimulationClock) string {
	return clock.Time().Format(time.RFC3339)
}

// registerCauseMortality wires a cause's mortality contribution: the
// all-cause rate has the cause's background share removed and the excess
// rate added back for simulants currently in the with-condition state. This
// keeps population-level mortality calibrated to the all-cause input.
func registerCauseMortality(b *Builder, cause string, state *StateColumn) error {
	csmrKey := fmt.Sprintf("cause.%s.cause_specific_mortality_rate", cause)
	emrKey := fmt.Sprintf("cause.%s.excess_mortality_rate", cause)
	if !b.Artifact.HasTable(csmrKey) && !b.Artifact.HasTable(emrKey) {
		return nil // cause does not kill
	}
	var csmr, emr *artifact.LookupTable
	var err error
	if b.Artifact.HasTable(csmrKey) {
		if csmr, err = b.LookupTable(csmrKey); err != nil {
			return err
		}
	}
	if b.Artifact.HasTable(emrKey) {
		if emr, err = b.LookupTable(emrKey); err != nil {
			return err
		}
	}
	table, clock := b.Table, b.Clock
	withCondition := withConditionState(cause)
	excess := func(i int) float64 {
		if emr == nil || state.Get(i) != withCondition {
			return 0
		}
		return emr.At(string(table.Sex(i)), table.Age(i), clock.Time().Year())
	}
	err = b.Values.RegisterModifier(mortalityPipelineName, DefaultModifierPriority, func(i int, v float64) float64 {
		if csmr != nil {
			v -= csmr.At(string(table.Sex(i)), table.Age(i), clock.Time().Year())
		}
		if v < 0 {
			v = 0
		}
		return v + excess(i)
	})
	if err != nil {
		return err
	}
	b.DeathCauses.Register(withCondition, excess)
	return nil
}

// SIS is a two-state susceptible/infected disease model with recovery back to
// susceptibility, driven by incidence and remission rate pipelines.
type SIS struct {
	cause string

	clock *SimulationClock
	table *PopulationTable
	state *StateColumn

	incidence *Pipeline
	remission *Pipeline

	incidenceStream  *Stream
	remissionStream  *Stream
	prevalenceStream *Stream
	prevalence       *artifact.LookupTable
}

// NewSIS builds an SIS model for a named cause.
func NewSIS(cause string) *SIS { return &SIS{cause: cause} }

func (s *SIS) Name() string { return "disease_model." + s.cause }

func (s *SIS) Setup(b *Builder) error {
	s.clock = b.Clock
	s.table = b.Table

	var err error
	if s.state, err = b.Table.AddColumn(s.cause, s.Name(), susceptibleState(s.cause)); err != nil {
		return err
	}
	incidenceLT, err := b.LookupTable(fmt.Sprintf("cause.%s.incidence_rate", s.cause))
	if err != nil {
		return err
	}
	remissionLT, err := b.LookupTable(fmt.Sprintf("cause.%s.remission_rate", s.cause))
	if err != nil {
		return err
	}
	if s.prevalence, err = b.LookupTable(fmt.Sprintf("cause.%s.prevalence", s.cause)); err != nil {
		return err
	}
	table, clock := b.Table, b.Clock
	s.incidence, err = b.Values.Register(s.cause+".incidence_rate", func(i int) float64 {
		return incidenceLT.At(string(table.Sex(i)), table.Age(i), clock.Time().Year())
	})
	if err != nil {
		return err
	}
	s.remission, err = b.Values.Register(s.cause+".remission_rate", func(i int) float64 {
		return remissionLT.At(string(table.Sex(i)), table.Age(i), clock.Time().Year())
	})
	if err != nil {
		return err
	}
	s.incidenceStream = b.Randomness.RegisterStream(s.cause + ".incidence")
	s.remissionStream = b.Randomness.RegisterStream(s.cause + ".remission")
	s.prevalenceStream = b.Randomness.RegisterStream(s.cause + ".initial_prevalence")

	return registerCauseMortality(b, s.cause, s.state)
}

func (s *SIS) OnInitializeSimulants(indices []int, newborn bool) error {
	if newborn {
		return nil // newborns start susceptible
	}
	year := s.clock.Time().Year()
	for _, i := range indices {
		p := s.prevalence.At(string(s.table.Sex(i)), s.table.Age(i), year)
		if s.prevalenceStream.Draw(i) < p {
			s.state.Set(i, withConditionState(s.cause))
		}
	}
	return nil
}

func (s *SIS) OnTimeStep() error {
	dt := s.clock.StepYears()
	key := stepKey(s.clock)
	infected := withConditionState(s.cause)
	susceptible := susceptibleState(s.cause)
	for _, i := range s.table.TrackedAlive() {
		switch s.state.Get(i) {
		case susceptible:
			rate := s.incidence.EvaluateOne(i)
			p, ok := rateToProbability(rate, dt)
			if !ok {
				return invalidRate(s.incidence.Name(), rate, s.clock)
			}
			if s.incidenceStream.DrawAt(i, key) < p {
				s.state.Set(i, infected)
			}
		case infected:
			rate := s.remission.EvaluateOne(i)
			p, ok := rateToProbability(rate, dt)
			if !ok {
				return invalidRate(s.remission.Name(), rate, s.clock)
			}
			if s.remissionStream.DrawAt(i, key) < p {
				s.state.Set(i, susceptible)
			}
		}
	}
	return nil
}

// SIRFixedDuration is a susceptible/infected/recovered model where recovery
// is a deterministic delay scheduled when the infection begins, rather than
// a per-step remission draw.
type SIRFixedDuration struct {
	cause    string
	duration time.Duration

	clock *SimulationClock
	table *PopulationTable
	state *StateColumn

	incidence        *Pipeline
	incidenceStream  *Stream
	prevalenceStream *Stream
	prevalence       *artifact.LookupTable

	recoveryDue map[int]time.Time
}

// NewSIRFixedDuration builds a fixed-duration SIR model; durationDays is the
// declaration's second argument.
func NewSIRFixedDuration(cause, durationDays string) (*SIRFixedDuration, error) {
	days, err := strconv.ParseFloat(durationDays, 64)
	if err != nil || days <= 0 {
		return nil, configErrorf("SIR_fixed_duration(%q): bad duration %q", cause, durationDays)
	}
	return &SIRFixedDuration{
		cause:       cause,
		duration:    time.Duration(days * 24 * float64(time.Hour)),
		recoveryDue: make(map[int]time.Time),
	}, nil
}

func (s *SIRFixedDuration) Name() string { return "disease_model." + s.cause }

func (s *SIRFixedDuration) Setup(b *Builder) error {
	s.clock = b.Clock
	s.table = b.Table

	var err error
	if s.state, err = b.Table.AddColumn(s.cause, s.Name(), susceptibleState(s.cause)); err != nil {
		return err
	}
	incidenceLT, err := b.LookupTable(fmt.Sprintf("cause.%s.incidence_rate", s.cause))
	if err != nil {
		return err
	}
	if s.prevalence, err = b.LookupTable(fmt.Sprintf("cause.%s.prevalence", s.cause)); err != nil {
		return err
	}
	table, clock := b.Table, b.Clock
	s.incidence, err = b.Values.Register(s.cause+".incidence_rate", func(i int) float64 {
		return incidenceLT.At(string(table.Sex(i)), table.Age(i), clock.Time().Year())
	})
	if err != nil {
		return err
	}
	s.incidenceStream = b.Randomness.RegisterStream(s.cause + ".incidence")
	s.prevalenceStream = b.Randomness.RegisterStream(s.cause + ".initial_prevalence")

	return registerCauseMortality(b, s.cause, s.state)
}

func (s *SIRFixedDuration) OnInitializeSimulants(indices []int, newborn bool) error {
	if newborn {
		return nil
	}
	year := s.clock.Time().Year()
	for _, i := range indices {
		p := s.prevalence.At(string(s.table.Sex(i)), s.table.Age(i), year)
		if s.prevalenceStream.Draw(i) < p {
			s.state.Set(i, withConditionState(s.cause))
			s.recoveryDue[i] = s.clock.Time().Add(s.duration)
		}
	}
	return nil
}

func (s *SIRFixedDuration) OnTimeStep() error {
	dt := s.clock.StepYears()
	key := stepKey(s.clock)
	now := s.clock.Time()
	infected := withConditionState(s.cause)
	for _, i := range s.table.TrackedAlive() {
		switch s.state.Get(i) {
		case susceptibleState(s.cause):
			rate := s.incidence.EvaluateOne(i)
			p, ok := rateToProbability(rate, dt)
			if !ok {
				return invalidRate(s.incidence.Name(), rate, s.clock)
			}
			if s.incidenceStream.DrawAt(i, key) < p {
				s.state.Set(i, infected)
				s.recoveryDue[i] = now.Add(s.duration)
			}
		case infected:
			if due, ok := s.recoveryDue[i]; ok && !now.Before(due) {
				s.state.Set(i, recoveredState(s.cause))
				delete(s.recoveryDue, i)
			}
		}
	}
	return nil
}

// BirthPrevalenceCondition models a congenital condition: the with-condition
// state is decided once when a simulant enters the simulation and never
// transitions afterwards. Birth prevalence is a pipeline so interventions can
// modify it.
type BirthPrevalenceCondition struct {
	cause string

	clock *SimulationClock
	table *PopulationTable
	state *StateColumn

	birthPrevalence  *Pipeline
	prevalenceStream *Stream
	prevalence       *artifact.LookupTable
}

// NewBirthPrevalenceCondition builds a birth-prevalence condition model.
func NewBirthPrevalenceCondition(cause string) *BirthPrevalenceCondition {
	return &BirthPrevalenceCondition{cause: cause}
}

func (s *BirthPrevalenceCondition) Name() string { return "disease_model." + s.cause }

func (s *BirthPrevalenceCondition) Setup(b *Builder) error {
	s.clock = b.Clock
	s.table = b.Table

	var err error
	if s.state, err = b.Table.AddColumn(s.cause, s.Name(), susceptibleState(s.cause)); err != nil {
		return err
	}
	birthLT, err := b.LookupTable(fmt.Sprintf("cause.%s.birth_prevalence", s.cause))
	if err != nil {
		return err
	}
	if s.prevalence, err = b.LookupTable(fmt.Sprintf("cause.%s.prevalence", s.cause)); err != nil {
		return err
	}
	table, clock := b.Table, b.Clock
	s.birthPrevalence, err = b.Values.Register(s.cause+".birth_prevalence", func(i int) float64 {
		return birthLT.At(string(table.Sex(i)), 0, clock.Time().Year())
	})
	if err != nil {
		return err
	}
	s.prevalenceStream = b.Randomness.RegisterStream(s.cause + ".initial_prevalence")

	return registerCauseMortality(b, s.cause, s.state)
}

func (s *BirthPrevalenceCondition) OnInitializeSimulants(indices []int, newborn bool) error {
	year := s.clock.Time().Year()
	for _, i := range indices {
		var p float64
		if newborn {
			p = s.birthPrevalence.EvaluateOne(i)
		} else {
			p = s.prevalence.At(string(s.table.Sex(i)), s.table.Age(i), year)
		}
		if p < 0 || math.IsNaN(p) || math.IsInf(p, 0) {
			return invalidRate(s.cause+".birth_prevalence", p, s.clock)
		}
		if s.prevalenceStream.Draw(i) < p {
			s.state.Set(i, withConditionState(s.cause))
			logrus.Debugf("simulant %d born with %s", i, s.cause)
		}
	}
	return nil
}
