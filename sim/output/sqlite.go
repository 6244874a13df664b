package output

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/lsff-sim/lsff-sim/sim"
)

// RunMeta identifies one simulation run in the results database, so multiple
// draws and scenarios of an experiment can share a file.
type RunMeta struct {
	Location   string
	InputDraw  int
	RandomSeed int64
	Scenario   string
}

// SQLiteStore appends flushed results to a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) a results database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS results (
		location TEXT NOT NULL,
		input_draw INTEGER NOT NULL,
		random_seed INTEGER NOT NULL,
		scenario TEXT NOT NULL,
		measure TEXT NOT NULL,
		age_group TEXT NOT NULL,
		sex TEXT NOT NULL,
		year TEXT NOT NULL,
		value REAL NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create results table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// WriteResults inserts one row per flushed stratum inside a transaction.
func (s *SQLiteStore) WriteResults(ctx context.Context, meta RunMeta, results sim.Results) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO results
		(location, input_draw, random_seed, scenario, measure, age_group, sex, year, value)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()
	for _, row := range results {
		if _, err := stmt.ExecContext(ctx,
			meta.Location, meta.InputDraw, meta.RandomSeed, meta.Scenario,
			row.Measure, row.AgeGroup, row.Sex, row.Year, row.Value); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert result row: %w", err)
		}
	}
	return tx.Commit()
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }
