package sim

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/lsff-sim/lsff-sim/sim/artifact"
)

// riskKind distinguishes polytomous category exposures from continuous ones.
type riskKind int

const (
	riskCategorical riskKind = iota
	riskContinuous
)

// exposureCategory is one category of a polytomous exposure with its
// population weight.
type exposureCategory struct {
	name   string
	weight float64
}

// Risk assigns every simulant an exposure for one risk factor. A propensity
// in (0,1) is drawn once per simulant and mapped through the exposure
// distribution: cumulative category weights for categorical risks, the
// normal quantile function for continuous ones. The propensity, not the
// exposure, is what the randomness system keys, so scenario variants that
// shift the distribution keep each simulant's rank.
type Risk struct {
	entityType string
	name       string
	kind       riskKind

	table *PopulationTable
	clock *SimulationClock

	stream     *Stream
	propensity []float64

	// categorical
	categories []exposureCategory
	shifts     []func(i int, category string) string

	// continuous
	meanLT   *artifact.LookupTable
	sdLT     *artifact.LookupTable
	exposure *Pipeline
}

// NewRisk parses a risk declaration path such as
// risk_factor.vitamin_a_deficiency.
func NewRisk(path string) (*Risk, error) {
	dot := strings.Index(path, ".")
	if dot <= 0 || dot == len(path)-1 {
		return nil, configErrorf("malformed risk path %q, want entity_type.name", path)
	}
	return &Risk{entityType: path[:dot], name: path[dot+1:]}, nil
}

func (r *Risk) Name() string { return "risk." + r.name }

// RiskName returns the bare risk name without the entity type.
func (r *Risk) RiskName() string { return r.name }

// Kind reports whether the exposure is categorical.
func (r *Risk) Categorical() bool { return r.kind == riskCategorical }

func (r *Risk) Setup(b *Builder) error {
	r.table = b.Table
	r.clock = b.Clock

	key := fmt.Sprintf("%s.%s.exposure", r.entityType, r.name)
	rows, err := b.Artifact.Table(key)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return configErrorf("artifact table %q is empty", key)
	}

	if rows[0].Category != "" {
		r.kind = riskCategorical
		total := 0.0
		for _, row := range rows {
			if row.Category == "" {
				return configErrorf("artifact table %q mixes categorical and non-categorical rows", key)
			}
			r.categories = append(r.categories, exposureCategory{name: row.Category, weight: row.Value})
			total += row.Value
		}
		if total <= 0 {
			return configErrorf("artifact table %q has non-positive total exposure weight", key)
		}
		for i := range r.categories {
			r.categories[i].weight /= total
		}
	} else {
		r.kind = riskContinuous
		var meanRows, sdRows []artifact.Row
		for _, row := range rows {
			switch row.Parameter {
			case "mean":
				meanRows = append(meanRows, row)
			case "standard_deviation":
				sdRows = append(sdRows, row)
			default:
				return configErrorf("artifact table %q has unknown parameter %q", key, row.Parameter)
			}
		}
		itp := artifact.Interpolation{
			Order:       b.Config.Interpolation.Order,
			Extrapolate: b.Config.Interpolation.Extrapolate,
		}
		if r.meanLT, err = artifact.NewLookupTable(meanRows, itp); err != nil {
			return configErrorf("risk %s exposure mean: %v", r.name, err)
		}
		if r.sdLT, err = artifact.NewLookupTable(sdRows, itp); err != nil {
			return configErrorf("risk %s exposure standard deviation: %v", r.name, err)
		}
		r.exposure, err = b.Values.Register("risk_exposure."+r.name, r.baseExposure)
		if err != nil {
			return err
		}
	}

	r.stream = b.Randomness.RegisterStream(r.name + ".propensity")
	b.Risks[r.name] = r
	return nil
}

func (r *Risk) baseExposure(i int) float64 {
	mean := r.meanLT.At(string(r.table.Sex(i)), r.table.Age(i), r.clock.Time().Year())
	sd := r.sdLT.At(string(r.table.Sex(i)), r.table.Age(i), r.clock.Time().Year())
	if math.IsNaN(mean) || math.IsNaN(sd) || sd <= 0 {
		return math.NaN()
	}
	dist := distuv.Normal{Mu: mean, Sigma: sd}
	return dist.Quantile(r.propensity[i])
}

func (r *Risk) OnInitializeSimulants(indices []int, newborn bool) error {
	for len(r.propensity) < r.table.Len() {
		r.propensity = append(r.propensity, 0)
	}
	for _, i := range indices {
		r.propensity[i] = r.stream.Draw(i)
	}
	return nil
}

// Category returns the simulant's current exposure category, after any
// intervention shifts. Only valid for categorical risks.
func (r *Risk) Category(i int) string {
	u := r.propensity[i]
	acc := 0.0
	cat := r.categories[len(r.categories)-1].name
	for _, c := range r.categories {
		acc += c.weight
		if u < acc {
			cat = c.name
			break
		}
	}
	for _, shift := range r.shifts {
		cat = shift(i, cat)
	}
	return cat
}

// Categories returns the category names in artifact order.
func (r *Risk) Categories() []string {
	out := make([]string, len(r.categories))
	for i, c := range r.categories {
		out[i] = c.name
	}
	return out
}

// CategoryWeights returns the normalized population weight per category.
func (r *Risk) CategoryWeights() map[string]float64 {
	out := make(map[string]float64, len(r.categories))
	for _, c := range r.categories {
		out[c.name] = c.weight
	}
	return out
}

// ContinuousExposure returns the simulant's exposure value after pipeline
// modifiers. Only valid for continuous risks.
func (r *Risk) ContinuousExposure(i int) float64 {
	return r.exposure.EvaluateOne(i)
}

// quantileAtReference maps a propensity through the exposure distribution at
// reference demographics (mid age window, start year, averaged over sexes).
// Used for setup-time population-level estimates such as the PAF.
func (r *Risk) quantileAtReference(b *Builder, q float64) float64 {
	age := (b.Config.Population.AgeStart + b.Config.Population.AgeEnd) / 2
	year := b.Config.Time.Start.Year
	total := 0.0
	for _, sex := range []Sex{SexMale, SexFemale} {
		mean := r.meanLT.At(string(sex), age, year)
		sd := r.sdLT.At(string(sex), age, year)
		total += distuv.Normal{Mu: mean, Sigma: sd}.Quantile(q)
	}
	return total / 2
}

// AddCategoryShift registers an intervention hook that may move a simulant to
// a different category. Shifts apply in registration order.
func (r *Risk) AddCategoryShift(fn func(i int, category string) string) {
	r.shifts = append(r.shifts, fn)
}
