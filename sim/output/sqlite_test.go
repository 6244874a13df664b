package output

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore_WriteResults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")
	store, err := OpenSQLite(path)
	require.NoError(t, err)
	defer store.Close()

	meta := RunMeta{Location: "India", InputDraw: 3, RandomSeed: 42, Scenario: "baseline"}
	ctx := context.Background()
	require.NoError(t, store.WriteResults(ctx, meta, sampleResults()))

	var count int
	require.NoError(t, store.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM results WHERE scenario = ?", "baseline").Scan(&count))
	assert.Equal(t, 3, count)

	var measure string
	var value float64
	require.NoError(t, store.db.QueryRowContext(ctx,
		"SELECT measure, value FROM results WHERE input_draw = ? AND measure = ?",
		3, "live_births").Scan(&measure, &value))
	assert.Equal(t, "live_births", measure)
	assert.Equal(t, 42.0, value)
}

func TestSQLiteStore_AccumulatesAcrossRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")
	ctx := context.Background()

	store, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, store.WriteResults(ctx, RunMeta{Scenario: "baseline"}, sampleResults()))
	require.NoError(t, store.Close())

	// Reopening the same file appends rather than clobbering.
	store, err = OpenSQLite(path)
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.WriteResults(ctx,
		RunMeta{Scenario: "folic_acid_fortification"}, sampleResults()))

	var count int
	require.NoError(t, store.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM results").Scan(&count))
	assert.Equal(t, 6, count)
}
