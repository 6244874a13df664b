// Package output writes flushed simulation results to tabular sinks.
package output

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/lsff-sim/lsff-sim/sim"
)

// WriteCSV writes one row per flushed stratum, preserving the deterministic
// order produced by the engine.
func WriteCSV(path string, results sim.Results) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create results file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"measure", "age_group", "sex", "year", "value"}); err != nil {
		return err
	}
	for _, row := range results {
		record := []string{
			row.Measure,
			row.AgeGroup,
			row.Sex,
			row.Year,
			strconv.FormatFloat(row.Value, 'g', -1, 64),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
