package sim

import (
	"fmt"
	"strings"

	"github.com/lsff-sim/lsff-sim/sim/artifact"
)

// Component is one unit of the simulation pipeline. Components are
// constructed from the model specification, set up in declaration order, and
// exchange data only through the population table and value pipelines, never
// through direct calls to each other.
type Component interface {
	Name() string
	Setup(b *Builder) error
}

// SimulantInitializer components fill in state for newly created simulants,
// both the initial cohort and birth cohorts.
type SimulantInitializer interface {
	OnInitializeSimulants(indices []int, newborn bool) error
}

// TimeStepPreparer hooks run before any state changes in a step. Observers
// accrue person-time here so they see the table as it stood when the step
// began.
type TimeStepPreparer interface {
	OnTimeStepPrepare() error
}

// TimeStepper hooks perform the step's state transitions.
type TimeStepper interface {
	OnTimeStep() error
}

// TimeStepCleaner hooks run after transitions, before metrics collection.
type TimeStepCleaner interface {
	OnTimeStepCleanup() error
}

// MetricsCollector hooks record the step's events into observer accumulators.
type MetricsCollector interface {
	OnCollectMetrics() error
}

// ResultsProducer components contribute rows to the final flushed metrics.
type ResultsProducer interface {
	Results() []ResultRow
}

// Builder exposes the engine subsystems to components during setup, in the
// order the engine wired them. Components keep references to what they need
// and never touch the builder after setup.
type Builder struct {
	Config     *Config
	Clock      *SimulationClock
	Table      *PopulationTable
	Population *PopulationManager
	Randomness *RandomnessManager
	Values     *PipelineRegistry
	Artifact   *artifact.Artifact

	// Risks is the registry of risk components declared so far, keyed by
	// risk name. Risk effects and interventions look their risk up here,
	// so a risk must be declared before anything that targets it.
	Risks map[string]*Risk

	// DeathCauses collects cause-specific hazards so the mortality
	// component can attribute deaths.
	DeathCauses *CauseRegistry
}

// LookupTable builds a lookup over a named artifact table using the
// configured interpolation. When extrapolation is disabled the table must
// cover the full simulated age and year window, checked here so coverage
// gaps fail at setup instead of mid-run.
func (b *Builder) LookupTable(key string) (*artifact.LookupTable, error) {
	rows, err := b.Artifact.Table(key)
	if err != nil {
		return nil, err
	}
	itp := artifact.Interpolation{
		Order:       b.Config.Interpolation.Order,
		Extrapolate: b.Config.Interpolation.Extrapolate,
	}
	lt, err := artifact.NewLookupTable(rows, itp)
	if err != nil {
		return nil, fmt.Errorf("build lookup for %q: %w", key, err)
	}
	if !itp.Extrapolate {
		maxAge := b.Config.Population.AgeEnd
		if b.Config.Population.ExitAge > maxAge {
			maxAge = b.Config.Population.ExitAge
		}
		if !lt.Covers(b.Config.Population.AgeStart, maxAge,
			b.Config.Time.Start.Year, b.Config.Time.End.Year) {
			return nil, configErrorf(
				"artifact table %q does not cover the simulated age/year window and interpolation.extrapolate is false", key)
		}
	}
	return lt, nil
}

// ComponentSpec is one parsed component declaration from the model
// specification, e.g. SIS('diarrheal_diseases').
type ComponentSpec struct {
	Kind string
	Args []string
}

// ParseComponentSpec parses a declaration of the form Kind('arg', 'arg').
func ParseComponentSpec(s string) (ComponentSpec, error) {
	s = strings.TrimSpace(s)
	open := strings.Index(s, "(")
	if open <= 0 || !strings.HasSuffix(s, ")") {
		return ComponentSpec{}, configErrorf("malformed component declaration %q", s)
	}
	spec := ComponentSpec{Kind: strings.TrimSpace(s[:open])}
	inner := strings.TrimSpace(s[open+1 : len(s)-1])
	if inner == "" {
		return spec, nil
	}
	for _, arg := range strings.Split(inner, ",") {
		arg = strings.TrimSpace(arg)
		arg = strings.Trim(arg, `'"`)
		if arg == "" {
			return ComponentSpec{}, configErrorf("empty argument in component declaration %q", s)
		}
		spec.Args = append(spec.Args, arg)
	}
	return spec, nil
}

// componentFactory builds a concrete component from declaration arguments.
type componentFactory func(args []string) (Component, error)

func needArgs(kind string, args []string, n int) error {
	if len(args) != n {
		return configErrorf("component %s takes %d argument(s), got %d", kind, n, len(args))
	}
	return nil
}

// componentFactories maps declaration kinds to constructors. Dispatch happens
// once at construction; the step loop only ever sees concrete components.
var componentFactories = map[string]componentFactory{
	"Mortality": func(args []string) (Component, error) {
		if err := needArgs("Mortality", args, 0); err != nil {
			return nil, err
		}
		return NewMortality(), nil
	},
	"FertilityCrudeBirthRate": func(args []string) (Component, error) {
		if err := needArgs("FertilityCrudeBirthRate", args, 0); err != nil {
			return nil, err
		}
		return NewFertilityCrudeBirthRate(), nil
	},
	"SIS": func(args []string) (Component, error) {
		if err := needArgs("SIS", args, 1); err != nil {
			return nil, err
		}
		return NewSIS(args[0]), nil
	},
	"SIR_fixed_duration": func(args []string) (Component, error) {
		if err := needArgs("SIR_fixed_duration", args, 2); err != nil {
			return nil, err
		}
		c, err := NewSIRFixedDuration(args[0], args[1])
		if err != nil {
			return nil, err
		}
		return c, nil
	},
	"BirthPrevalenceCondition": func(args []string) (Component, error) {
		if err := needArgs("BirthPrevalenceCondition", args, 1); err != nil {
			return nil, err
		}
		return NewBirthPrevalenceCondition(args[0]), nil
	},
	"Risk": func(args []string) (Component, error) {
		if err := needArgs("Risk", args, 1); err != nil {
			return nil, err
		}
		c, err := NewRisk(args[0])
		if err != nil {
			return nil, err
		}
		return c, nil
	},
	"RiskEffect": func(args []string) (Component, error) {
		if err := needArgs("RiskEffect", args, 2); err != nil {
			return nil, err
		}
		c, err := NewRiskEffect(args[0], args[1])
		if err != nil {
			return nil, err
		}
		return c, nil
	},
	"FortificationIntervention": func(args []string) (Component, error) {
		if err := needArgs("FortificationIntervention", args, 0); err != nil {
			return nil, err
		}
		return NewFortificationIntervention(), nil
	},
	"DiseaseObserver": func(args []string) (Component, error) {
		if err := needArgs("DiseaseObserver", args, 1); err != nil {
			return nil, err
		}
		return NewDiseaseObserver(args[0]), nil
	},
	"MortalityObserver": func(args []string) (Component, error) {
		if err := needArgs("MortalityObserver", args, 0); err != nil {
			return nil, err
		}
		return NewMortalityObserver(), nil
	},
	"LiveBirthObserver": func(args []string) (Component, error) {
		if err := needArgs("LiveBirthObserver", args, 0); err != nil {
			return nil, err
		}
		return NewLiveBirthObserver(), nil
	},
}

// BuildComponents constructs the component catalog from declaration strings,
// preserving declaration order.
func BuildComponents(declarations []string) ([]Component, error) {
	components := make([]Component, 0, len(declarations))
	for _, decl := range declarations {
		spec, err := ParseComponentSpec(decl)
		if err != nil {
			return nil, err
		}
		factory, ok := componentFactories[spec.Kind]
		if !ok {
			return nil, configErrorf("unknown component kind %q in declaration %q", spec.Kind, decl)
		}
		c, err := factory(spec.Args)
		if err != nil {
			return nil, err
		}
		components = append(components, c)
	}
	return components, nil
}
