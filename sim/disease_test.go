package sim

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lsff-sim/lsff-sim/sim/artifact"
)

func TestRateToProbability(t *testing.T) {
	dt := 1.0 / 365.25
	tests := []struct {
		name   string
		rate   float64
		dt     float64
		want   float64
		wantOK bool
	}{
		{"zero rate", 0, dt, 0, true},
		{"annual rate over a year", 0.5, 1, 1 - math.Exp(-0.5), true},
		{"huge rate saturates at one", 1e9, dt, 1, true},
		{"negative rate rejected", -0.1, dt, 0, false},
		{"NaN rejected", math.NaN(), dt, 0, false},
		{"positive infinity rejected", math.Inf(1), dt, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := rateToProbability(tt.rate, tt.dt)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.InDelta(t, tt.want, p, 1e-12)
			}
		})
	}
}

func TestRateToProbability_SmallRateApproximatesRateTimesDt(t *testing.T) {
	dt := 1.0 / 365.25
	p, ok := rateToProbability(0.01, dt)
	require.True(t, ok)
	assert.InEpsilon(t, 0.01*dt, p, 1e-4)
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "susceptible_to_measles", susceptibleState("measles"))
	assert.Equal(t, "measles", withConditionState("measles"))
	assert.Equal(t, "recovered_from_measles", recoveredState("measles"))
}

func TestNewSIRFixedDuration_DurationValidation(t *testing.T) {
	_, err := NewSIRFixedDuration("measles", "10")
	assert.NoError(t, err)

	for _, bad := range []string{"", "abc", "0", "-3"} {
		_, err := NewSIRFixedDuration("measles", bad)
		assert.Error(t, err, "duration %q", bad)
	}
}

func TestSIS_InitialPrevalence(t *testing.T) {
	cfg := testConfig()
	art := mergeTables(diseaseArtifact("diarrheal_diseases", 0, 0),
		map[string][]artifact.Row{
			"cause.diarrheal_diseases.prevalence": flatRow(0.5),
		})
	s := newTestSimulation(t, cfg, art, []string{"SIS('diarrheal_diseases')"})
	require.NoError(t, s.Setup())

	state, ok := s.Table().Column("diarrheal_diseases")
	require.True(t, ok)
	infected := 0
	for i := 0; i < s.Table().Len(); i++ {
		if state.Get(i) == "diarrheal_diseases" {
			infected++
		}
	}
	// 100 independent draws against p=0.5.
	assert.Greater(t, infected, 25)
	assert.Less(t, infected, 75)
}

func TestSIS_ForcedInfectionAndRemission(t *testing.T) {
	// Rates large enough that the per-step probability is 1 make the model
	// oscillate deterministically.
	cfg := testConfig()
	art := diseaseArtifact("measles", 1e9, 1e9)
	s := newTestSimulation(t, cfg, art, []string{"SIS('measles')"})
	require.NoError(t, s.Setup())

	state, ok := s.Table().Column("measles")
	require.True(t, ok)
	assert.Equal(t, "susceptible_to_measles", state.Get(0))

	require.NoError(t, s.Step())
	assert.Equal(t, "measles", state.Get(0))

	require.NoError(t, s.Step())
	assert.Equal(t, "susceptible_to_measles", state.Get(0))
}

func TestSIS_InvalidRateAbortsStep(t *testing.T) {
	cfg := testConfig()
	art := diseaseArtifact("measles", -1, 0)
	s := newTestSimulation(t, cfg, art, []string{"SIS('measles')"})
	require.NoError(t, s.Setup())

	err := s.Step()
	var invalid *InvalidRateError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "measles.incidence_rate", invalid.Pipeline)
}

func TestSIRFixedDuration_RecoversAfterDuration(t *testing.T) {
	cfg := testConfig()
	art := artifact.New("testland", 0, map[string][]artifact.Row{
		"cause.measles.incidence_rate": flatRow(1e9),
		"cause.measles.prevalence":     flatRow(0),
	})
	s := newTestSimulation(t, cfg, art, []string{"SIR_fixed_duration('measles', '3')"})
	require.NoError(t, s.Setup())

	state, ok := s.Table().Column("measles")
	require.True(t, ok)

	require.NoError(t, s.Step()) // infected, recovery due in 3 days
	assert.Equal(t, "measles", state.Get(0))

	require.NoError(t, s.Step())
	require.NoError(t, s.Step())
	assert.Equal(t, "measles", state.Get(0))

	require.NoError(t, s.Step())
	assert.Equal(t, "recovered_from_measles", state.Get(0))

	// Recovery is absorbing.
	require.NoError(t, s.Step())
	assert.Equal(t, "recovered_from_measles", state.Get(0))
}

func TestBirthPrevalenceCondition_DecidedAtEntry(t *testing.T) {
	cfg := testConfig()
	art := artifact.New("testland", 0, map[string][]artifact.Row{
		"cause.neural_tube_defects.birth_prevalence": flatRow(1),
		"cause.neural_tube_defects.prevalence":       flatRow(0),
		"population.crude_birth_rate":                flatRow(4),
		"covariate.live_births_by_sex.estimate": {
			{Sex: "Male", YearStart: 2020, YearEnd: 2021, Value: 105},
			{Sex: "Female", YearStart: 2020, YearEnd: 2021, Value: 100},
		},
	})
	s := newTestSimulation(t, cfg, art, []string{
		"FertilityCrudeBirthRate()",
		"BirthPrevalenceCondition('neural_tube_defects')",
	})
	require.NoError(t, s.Setup())

	state, ok := s.Table().Column("neural_tube_defects")
	require.True(t, ok)

	// The initial cohort uses the (zero) general prevalence.
	for i := 0; i < 100; i++ {
		assert.Equal(t, "susceptible_to_neural_tube_defects", state.Get(i))
	}

	// A crude birth rate of 4 per person-year produces about one birth per
	// daily step for 100 simulants.
	for k := 0; k < 30; k++ {
		require.NoError(t, s.Step())
	}
	require.Greater(t, s.Table().Len(), 100, "expected live births")

	// Every newborn draws against birth prevalence 1.
	for i := 100; i < s.Table().Len(); i++ {
		assert.Equal(t, "neural_tube_defects", state.Get(i))
	}
}
