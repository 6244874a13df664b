package sim

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lsff-sim/lsff-sim/sim/artifact"
)

// Fortification scenario names recognized in the configuration.
const (
	ScenarioBaseline  = "baseline"
	ScenarioFolicAcid = "folic_acid_fortification"
	ScenarioVitaminA  = "vitamin_a_fortification"
	ScenarioIron      = "iron_fortification"
)

// FortificationIntervention activates one named fortification scenario at a
// configured start time. Coverage draws use a dedicated stream so a baseline
// run and an intervention run share every other draw: the common-random-
// number discipline that makes scenario differences attributable to the
// intervention rather than sampling noise. Each simulant's coverage
// propensity is drawn once, at entry, so coverage is a persistent attribute
// of the simulant rather than a fresh decision every step.
type FortificationIntervention struct {
	scenario string
	start    time.Time

	clock *SimulationClock
	table *PopulationTable

	coverageStream *Stream
	coverage       float64
	effect         float64
	propensity     []float64
}

// NewFortificationIntervention builds the intervention; the scenario comes
// from configuration, not declaration arguments, so one model specification
// serves every scenario of an experiment.
func NewFortificationIntervention() *FortificationIntervention {
	return &FortificationIntervention{}
}

func (f *FortificationIntervention) Name() string { return "fortification_intervention" }

// active reports whether the intervention has started for decisions made at
// the current simulation time.
func (f *FortificationIntervention) active() bool {
	return f.scenario != ScenarioBaseline && !f.clock.Time().Before(f.start)
}

// coveragePropensity returns the simulant's pinned coverage propensity,
// drawing it on first use. Draws are strictly positive, so zero marks a slot
// not yet assigned.
func (f *FortificationIntervention) coveragePropensity(i int) float64 {
	for len(f.propensity) <= i {
		f.propensity = append(f.propensity, 0)
	}
	if f.propensity[i] == 0 {
		f.propensity[i] = f.coverageStream.Draw(i)
	}
	return f.propensity[i]
}

func (f *FortificationIntervention) covered(i int) bool {
	return f.coveragePropensity(i) < f.coverage
}

// OnInitializeSimulants pins coverage propensities at entry, while the draw
// still keys on the simulant's entry demographics.
func (f *FortificationIntervention) OnInitializeSimulants(indices []int, newborn bool) error {
	if f.coverageStream == nil {
		return nil
	}
	for _, i := range indices {
		f.coveragePropensity(i)
	}
	return nil
}

func (f *FortificationIntervention) Setup(b *Builder) error {
	f.clock = b.Clock
	f.table = b.Table

	cfg := b.Config.FortificationIntervention
	f.scenario = cfg.Scenario
	if f.scenario == "" {
		f.scenario = ScenarioBaseline
	}
	if f.scenario == ScenarioBaseline {
		logrus.Info("fortification intervention: baseline scenario, no effect")
		return nil
	}
	if cfg.InterventionStart.IsZero() {
		return configErrorf("fortification_intervention.intervention_start is required for scenario %q", f.scenario)
	}
	f.start = cfg.InterventionStart.Time()

	params, err := b.Artifact.Table(fmt.Sprintf("intervention.%s", f.scenario))
	if err != nil {
		return err
	}
	if f.coverage, err = artifact.ParameterValue(params, "coverage"); err != nil {
		return configErrorf("intervention %s: %v", f.scenario, err)
	}
	if f.effect, err = artifact.ParameterValue(params, "effect_size"); err != nil {
		return configErrorf("intervention %s: %v", f.scenario, err)
	}
	if f.coverage < 0 || f.coverage > 1 {
		return configErrorf("intervention %s: coverage %v outside [0, 1]", f.scenario, f.coverage)
	}
	f.coverageStream = b.Randomness.RegisterStream("fortification.coverage")

	switch f.scenario {
	case ScenarioFolicAcid:
		// Folic acid fortification lowers neural-tube-defect birth
		// prevalence for covered births conceived after the start time.
		err = b.Values.RegisterModifier("neural_tube_defects.birth_prevalence",
			DefaultModifierPriority, func(i int, v float64) float64 {
				if !f.active() || !f.covered(i) {
					return v
				}
				return v * (1 - f.effect)
			})
	case ScenarioVitaminA:
		risk, ok := b.Risks["vitamin_a_deficiency"]
		if !ok {
			return configErrorf("scenario %s requires Risk('risk_factor.vitamin_a_deficiency') declared first", f.scenario)
		}
		// Covered simulants move out of the deficient category (cat1).
		risk.AddCategoryShift(func(i int, category string) string {
			if f.active() && category == "cat1" && f.covered(i) {
				return "cat2"
			}
			return category
		})
	case ScenarioIron:
		// Iron fortification shifts covered simulants' hemoglobin up by
		// the effect size (g/L).
		err = b.Values.RegisterModifier("risk_exposure.iron_deficiency",
			DefaultModifierPriority, func(i int, v float64) float64 {
				if !f.active() || !f.covered(i) {
					return v
				}
				return v + f.effect
			})
	default:
		return configErrorf("unknown fortification scenario %q", f.scenario)
	}
	if err != nil {
		return err
	}
	logrus.Infof("fortification intervention: scenario %s from %s, coverage %.0f%%",
		f.scenario, f.start.Format("2006-01-02"), 100*f.coverage)
	return nil
}
