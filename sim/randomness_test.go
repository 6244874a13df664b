package sim

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTableWithSimulants(n int) *PopulationTable {
	table := NewPopulationTable()
	at := date(2020, 1, 1)
	for j := 0; j < n; j++ {
		sex := SexFemale
		if j%2 == 0 {
			sex = SexMale
		}
		table.append(float64(j), sex, at, -1)
	}
	return table
}

func testRandomness(t *testing.T, seed int64, table *PopulationTable) *RandomnessManager {
	t.Helper()
	m, err := NewRandomnessManager(RandomnessConfig{
		MapSize:    1_000_000,
		KeyColumns: []string{"entrance_time", "age"},
		RandomSeed: seed,
	}, table)
	require.NoError(t, err)
	return m
}

func TestRandomnessManager_Validation(t *testing.T) {
	table := NewPopulationTable()
	_, err := NewRandomnessManager(RandomnessConfig{MapSize: 0}, table)
	assert.Error(t, err)

	_, err = NewRandomnessManager(RandomnessConfig{
		MapSize:    1000,
		KeyColumns: []string{"favorite_color"},
	}, table)
	assert.Error(t, err)
}

func TestStream_DrawIsDeterministic(t *testing.T) {
	table := testTableWithSimulants(5)
	m1 := testRandomness(t, 42, table)
	m2 := testRandomness(t, 42, table)

	s1 := m1.RegisterStream("diarrheal_diseases.incidence")
	s2 := m2.RegisterStream("diarrheal_diseases.incidence")
	for i := 0; i < 5; i++ {
		assert.Equal(t, s1.Draw(i), s2.Draw(i), "simulant %d", i)
	}
}

func TestStream_DrawInOpenUnitInterval(t *testing.T) {
	table := testTableWithSimulants(100)
	m := testRandomness(t, 7, table)
	s := m.RegisterStream("mortality")
	for i := 0; i < 100; i++ {
		u := s.Draw(i)
		assert.Greater(t, u, 0.0)
		assert.Less(t, u, 1.0)
	}
}

func TestStream_DecisionPointsAreIndependent(t *testing.T) {
	table := testTableWithSimulants(1)
	m := testRandomness(t, 42, table)

	incidence := m.RegisterStream("measles.incidence")
	mortality := m.RegisterStream("mortality")
	assert.NotEqual(t, incidence.Draw(0), mortality.Draw(0))
}

func TestStream_AddingStreamsDoesNotPerturbDraws(t *testing.T) {
	// The common-random-number property: a run with extra decision points
	// must see identical draws on the shared ones.
	table := testTableWithSimulants(10)

	m1 := testRandomness(t, 42, table)
	s1 := m1.RegisterStream("mortality")
	var lean []float64
	for i := 0; i < 10; i++ {
		lean = append(lean, s1.Draw(i))
	}

	m2 := testRandomness(t, 42, table)
	m2.RegisterStream("iron_deficiency.propensity")
	m2.RegisterStream("fortification.coverage")
	s2 := m2.RegisterStream("mortality")
	for i := 0; i < 10; i++ {
		assert.Equal(t, lean[i], s2.Draw(i), "simulant %d", i)
	}
}

func TestStream_AdditionalKeyVariesDraw(t *testing.T) {
	table := testTableWithSimulants(1)
	m := testRandomness(t, 42, table)
	s := m.RegisterStream("mortality")

	day1 := date(2020, 1, 1).Format(time.RFC3339)
	day2 := date(2020, 1, 2).Format(time.RFC3339)
	assert.NotEqual(t, s.DrawAt(0, day1), s.DrawAt(0, day2))
	assert.Equal(t, s.DrawAt(0, day1), s.DrawAt(0, day1))
}

func TestStream_DrawRawNeedsNoSimulant(t *testing.T) {
	m := testRandomness(t, 42, NewPopulationTable())
	s := m.RegisterStream("population.sex")
	u1 := s.DrawRaw("initial.0")
	u2 := s.DrawRaw("initial.1")
	assert.NotEqual(t, u1, u2)
	assert.Equal(t, u1, s.DrawRaw("initial.0"))
}

func TestRandomnessManager_RegisterStreamIdempotent(t *testing.T) {
	m := testRandomness(t, 42, NewPopulationTable())
	a := m.RegisterStream("mortality")
	b := m.RegisterStream("mortality")
	assert.Same(t, a, b)
}

func TestRandomnessManager_GetStream(t *testing.T) {
	m := testRandomness(t, 42, NewPopulationTable())
	m.RegisterStream("mortality")

	s, err := m.GetStream("mortality")
	require.NoError(t, err)
	assert.Equal(t, "mortality", s.Decision())

	_, err = m.GetStream("never_registered")
	var unknown *UnknownStreamError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "never_registered", unknown.Decision)
}

func TestChoiceWeighted(t *testing.T) {
	tests := []struct {
		name    string
		u       float64
		weights []float64
		want    int
	}{
		{"first bucket", 0.2, []float64{1, 1}, 0},
		{"second bucket", 0.7, []float64{1, 1}, 1},
		{"unnormalized weights", 0.5, []float64{10, 30}, 1},
		{"u near one lands in last", 0.999999, []float64{1, 1, 1}, 2},
		{"zero total falls back to first", 0.5, []float64{0, 0}, 0},
		{"single bucket", 0.9, []float64{5}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ChoiceWeighted(tt.u, tt.weights))
		})
	}
}
