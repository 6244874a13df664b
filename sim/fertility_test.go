package sim

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lsff-sim/lsff-sim/sim/artifact"
)

func TestFertility_SetupValidation(t *testing.T) {
	missingCovariate := artifact.New("testland", 0, map[string][]artifact.Row{
		"population.crude_birth_rate": flatRow(0.05),
	})
	b := newTestBuilder(t, testConfig(), missingCovariate)
	assert.Error(t, NewFertilityCrudeBirthRate().Setup(b))

	zeroBirths := artifact.New("testland", 0, map[string][]artifact.Row{
		"population.crude_birth_rate": flatRow(0.05),
		"covariate.live_births_by_sex.estimate": {
			{Sex: "Male", YearStart: 2020, YearEnd: 2021, Value: 0},
			{Sex: "Female", YearStart: 2020, YearEnd: 2021, Value: 0},
		},
	})
	b = newTestBuilder(t, testConfig(), zeroBirths)
	assert.Error(t, NewFertilityCrudeBirthRate().Setup(b))
}

func TestFertility_FractionalBirthsCarryOver(t *testing.T) {
	// cbr 0.05/person-year over ~100 person-years is five expected births;
	// each daily expectation is far below one, so every birth exists only
	// because the remainder accumulates across steps.
	s := newTestSimulation(t, testConfig(), mortalityArtifact(0, 0.05), []string{
		"Mortality()",
		"FertilityCrudeBirthRate()",
	})
	require.NoError(t, s.Run(context.Background()))

	births := s.Table().Len() - 100
	assert.GreaterOrEqual(t, births, 4)
	assert.LessOrEqual(t, births, 6)
}

func TestFertility_NewbornSexFollowsCovariate(t *testing.T) {
	// A large birth rate produces a cohort big enough to check the sex
	// ratio against the 105:100 covariate.
	cfg := testConfig()
	cfg.Time.End = Date{Year: 2020, Month: 1, Day: 2}
	s := newTestSimulation(t, cfg, mortalityArtifact(0, 3652.5), []string{
		"Mortality()",
		"FertilityCrudeBirthRate()",
	})
	require.NoError(t, s.Run(context.Background()))

	table := s.Table()
	births := table.Len() - 100
	require.Greater(t, births, 900)

	males := 0
	for i := 100; i < table.Len(); i++ {
		assert.InDelta(t, s.Clock().StepYears(), table.Age(i), 1e-12, "newborns aged one step since birth")
		if table.Sex(i) == SexMale {
			males++
		}
	}
	ratio := float64(males) / float64(births)
	assert.InDelta(t, 105.0/205.0, ratio, 0.05)
}

func TestFertility_InvalidBirthRate(t *testing.T) {
	s := newTestSimulation(t, testConfig(), mortalityArtifact(0, -1), []string{
		"FertilityCrudeBirthRate()",
	})
	require.NoError(t, s.Setup())
	assert.Error(t, s.Step())
}
