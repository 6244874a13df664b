package sim

import "sort"

// allStrata labels the bucket of a stratification dimension an observer was
// not configured to split on.
const allStrata = "all"

// ResultRow is one flushed metric value keyed by its stratification tuple.
type ResultRow struct {
	Measure  string
	AgeGroup string
	Sex      string
	Year     string
	Value    float64
}

// Results is the flushed output of a run, ordered deterministically.
type Results []ResultRow

// Total sums every stratum of one measure.
func (r Results) Total(measure string) float64 {
	total := 0.0
	for _, row := range r {
		if row.Measure == measure {
			total += row.Value
		}
	}
	return total
}

func sortResults(rows []ResultRow) {
	sort.Slice(rows, func(a, b int) bool {
		if rows[a].Measure != rows[b].Measure {
			return rows[a].Measure < rows[b].Measure
		}
		if rows[a].Year != rows[b].Year {
			return rows[a].Year < rows[b].Year
		}
		if rows[a].Sex != rows[b].Sex {
			return rows[a].Sex < rows[b].Sex
		}
		return rows[a].AgeGroup < rows[b].AgeGroup
	})
}

// stratKey is an observer accumulator key: one bucket per configured
// stratification dimension.
type stratKey struct {
	ageGroup string
	sex      string
	year     string
}

// accumulator is a commutative-sum mapping from stratification key to a
// running metric value, one per measure.
type accumulator map[string]map[stratKey]float64

func (a accumulator) add(measure string, key stratKey, delta float64) {
	strata, ok := a[measure]
	if !ok {
		strata = make(map[stratKey]float64)
		a[measure] = strata
	}
	strata[key] += delta
}

// flush converts the accumulator into sorted result rows. Accumulation is
// commutative summation, so the output is deterministic regardless of
// simulant processing order.
func (a accumulator) flush() []ResultRow {
	rows := make([]ResultRow, 0, len(a))
	for measure, strata := range a {
		for key, value := range strata {
			rows = append(rows, ResultRow{
				Measure:  measure,
				AgeGroup: key.ageGroup,
				Sex:      key.sex,
				Year:     key.year,
				Value:    value,
			})
		}
	}
	sortResults(rows)
	return rows
}
