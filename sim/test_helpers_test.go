package sim

import (
	"testing"

	"github.com/lsff-sim/lsff-sim/sim/artifact"
)

// testConfig returns a minimal valid configuration: 100 newborns followed
// daily through calendar year 2020.
func testConfig() *Config {
	return &Config{
		InputData: InputDataConfig{Location: "testland"},
		Interpolation: InterpolationConfig{
			Order:       0,
			Extrapolate: true,
		},
		Randomness: RandomnessConfig{
			MapSize:    1_000_000,
			KeyColumns: []string{"entrance_time", "age"},
			RandomSeed: 42,
		},
		Time: TimeConfig{
			Start:    Date{Year: 2020, Month: 1, Day: 1},
			End:      Date{Year: 2020, Month: 12, Day: 31},
			StepSize: 1,
		},
		Population: PopulationConfig{
			PopulationSize: 100,
			AgeStart:       0,
			AgeEnd:         0,
		},
	}
}

// flatRow is a whole-population artifact row with a single constant value.
func flatRow(v float64) []artifact.Row {
	return []artifact.Row{{AgeStart: 0, AgeEnd: 125, Value: v}}
}

// diseaseArtifact builds an artifact carrying one SIS cause with constant
// incidence and remission rates and zero initial prevalence.
func diseaseArtifact(cause string, incidence, remission float64) *artifact.Artifact {
	return artifact.New("testland", 0, map[string][]artifact.Row{
		"cause." + cause + ".incidence_rate": flatRow(incidence),
		"cause." + cause + ".remission_rate": flatRow(remission),
		"cause." + cause + ".prevalence":     flatRow(0),
	})
}

// mortalityArtifact builds an artifact with a constant all-cause mortality
// rate and the fertility inputs.
func mortalityArtifact(acmr, cbr float64) *artifact.Artifact {
	return artifact.New("testland", 0, map[string][]artifact.Row{
		"cause.all_causes.cause_specific_mortality_rate": flatRow(acmr),
		"population.crude_birth_rate":                    flatRow(cbr),
		"covariate.live_births_by_sex.estimate": {
			{Sex: "Male", YearStart: 2020, YearEnd: 2021, Value: 105},
			{Sex: "Female", YearStart: 2020, YearEnd: 2021, Value: 100},
		},
	})
}

// mergeTables folds additional tables into an artifact's copy for tests that
// need a mortality baseline plus disease or risk inputs.
func mergeTables(base *artifact.Artifact, extra map[string][]artifact.Row) *artifact.Artifact {
	merged := make(map[string][]artifact.Row)
	for _, key := range base.Keys() {
		rows, _ := base.Table(key)
		merged[key] = rows
	}
	for key, rows := range extra {
		merged[key] = rows
	}
	return artifact.New(base.Location, base.Draw, merged)
}

// newTestBuilder wires the engine subsystems around a config and artifact so
// component setup can be exercised without running a full simulation.
func newTestBuilder(t *testing.T, cfg *Config, art *artifact.Artifact) *Builder {
	t.Helper()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}
	clock, err := NewSimulationClock(cfg.Time.Start.Time(), cfg.Time.End.Time(), cfg.Time.StepSize)
	if err != nil {
		t.Fatalf("clock: %v", err)
	}
	table := NewPopulationTable()
	randomness, err := NewRandomnessManager(cfg.Randomness, table)
	if err != nil {
		t.Fatalf("randomness: %v", err)
	}
	return &Builder{
		Config:      cfg,
		Clock:       clock,
		Table:       table,
		Population:  NewPopulationManager(cfg.Population, table, clock),
		Randomness:  randomness,
		Values:      NewPipelineRegistry(),
		Artifact:    art,
		Risks:       make(map[string]*Risk),
		DeathCauses: &CauseRegistry{},
	}
}

// newTestSimulation builds a ready-to-run simulation from component
// declarations.
func newTestSimulation(t *testing.T, cfg *Config, art *artifact.Artifact, declarations []string) *Simulation {
	t.Helper()
	components, err := BuildComponents(declarations)
	if err != nil {
		t.Fatalf("build components: %v", err)
	}
	s, err := NewSimulation(cfg, art, components)
	if err != nil {
		t.Fatalf("new simulation: %v", err)
	}
	return s
}
