package artifact

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/interp"
)

// Interpolation controls how age-continuous values are computed between the
// supplied age bins. Order 0 is a step function over the bins; order 1
// interpolates linearly between bin midpoints. When Extrapolate is false,
// queries outside the data's range yield NaN; callers treat a NaN rate as a
// contract violation.
type Interpolation struct {
	Order       int
	Extrapolate bool
}

type ageCurve struct {
	starts []float64
	ends   []float64
	values []float64
	// Present for order-1 curves with at least two bins.
	linear *interp.PiecewiseLinear
	mids   []float64
}

type yearBand struct {
	start, end int
	curve      ageCurve
}

// LookupTable answers value queries keyed by sex, age, and calendar year for
// one artifact table. Rows with an empty sex match either sex; rows with
// year_end of zero match every year.
type LookupTable struct {
	itp    Interpolation
	groups map[string][]yearBand
}

// NewLookupTable builds a lookup structure from artifact rows.
func NewLookupTable(rows []Row, itp Interpolation) (*LookupTable, error) {
	if itp.Order != 0 && itp.Order != 1 {
		return nil, fmt.Errorf("interpolation order must be 0 or 1, got %d", itp.Order)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("lookup table has no rows")
	}

	type bandKey struct {
		sex        string
		start, end int
	}
	grouped := make(map[bandKey][]Row)
	for _, r := range rows {
		k := bandKey{sex: r.Sex, start: r.YearStart, end: r.YearEnd}
		grouped[k] = append(grouped[k], r)
	}

	t := &LookupTable{itp: itp, groups: make(map[string][]yearBand)}
	for k, rs := range grouped {
		sort.Slice(rs, func(a, b int) bool { return rs[a].AgeStart < rs[b].AgeStart })
		curve := ageCurve{}
		for _, r := range rs {
			curve.starts = append(curve.starts, r.AgeStart)
			curve.ends = append(curve.ends, r.AgeEnd)
			curve.values = append(curve.values, r.Value)
		}
		if itp.Order == 1 && len(rs) >= 2 {
			mids := make([]float64, len(rs))
			for i := range rs {
				mids[i] = (curve.starts[i] + curve.ends[i]) / 2
			}
			var pl interp.PiecewiseLinear
			if err := pl.Fit(mids, curve.values); err != nil {
				return nil, fmt.Errorf("fit age curve: %w", err)
			}
			curve.linear = &pl
			curve.mids = mids
		}
		t.groups[k.sex] = append(t.groups[k.sex], yearBand{start: k.start, end: k.end, curve: curve})
	}
	for sex := range t.groups {
		bands := t.groups[sex]
		sort.Slice(bands, func(a, b int) bool { return bands[a].start < bands[b].start })
		t.groups[sex] = bands
	}
	return t, nil
}

// At returns the table value for (sex, age, year). Out-of-range queries
// return the nearest edge value when extrapolation is enabled and NaN
// otherwise.
func (t *LookupTable) At(sex string, age float64, year int) float64 {
	bands, ok := t.groups[sex]
	if !ok {
		// Rows without a sex dimension apply to everyone.
		bands, ok = t.groups[""]
		if !ok {
			return math.NaN()
		}
	}
	band, ok := t.band(bands, year)
	if !ok {
		return math.NaN()
	}
	return t.evaluate(band.curve, age)
}

func (t *LookupTable) band(bands []yearBand, year int) (yearBand, bool) {
	for _, b := range bands {
		if b.end == 0 && b.start == 0 {
			return b, true // no year dimension
		}
		if year >= b.start && year < b.end {
			return b, true
		}
	}
	if !t.itp.Extrapolate {
		return yearBand{}, false
	}
	// Clamp to the nearest year band.
	if year < bands[0].start {
		return bands[0], true
	}
	return bands[len(bands)-1], true
}

func (t *LookupTable) evaluate(c ageCurve, age float64) float64 {
	lo, hi := c.starts[0], c.ends[len(c.ends)-1]
	if age < lo || age >= hi {
		if !t.itp.Extrapolate {
			return math.NaN()
		}
		if age < lo {
			return c.values[0]
		}
		return c.values[len(c.values)-1]
	}
	if t.itp.Order == 0 || c.linear == nil {
		for i := range c.starts {
			if age >= c.starts[i] && age < c.ends[i] {
				return c.values[i]
			}
		}
		return c.values[len(c.values)-1]
	}
	// Linear between bin midpoints, constant beyond the outermost midpoints.
	x := age
	if x < c.mids[0] {
		x = c.mids[0]
	}
	if x > c.mids[len(c.mids)-1] {
		x = c.mids[len(c.mids)-1]
	}
	return c.linear.Predict(x)
}

// Covers reports whether the table can answer every (sex, age, year) query in
// the given ranges without extrapolating. Used at setup to surface data
// coverage gaps before the run starts.
func (t *LookupTable) Covers(ageStart, ageEnd float64, yearStart, yearEnd int) bool {
	for _, bands := range t.groups {
		for year := yearStart; year <= yearEnd; year++ {
			band, ok := t.band(bands, year)
			if !ok {
				return false
			}
			c := band.curve
			if ageStart < c.starts[0] || ageEnd > c.ends[len(c.ends)-1] {
				return false
			}
		}
	}
	return true
}
