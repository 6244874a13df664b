package sim

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/lsff-sim/lsff-sim/sim/artifact"
)

// FertilityCrudeBirthRate adds newborn simulants each step. Expected births
// per step are the crude birth rate times the current tracked living
// population times the step's fraction of a year; the fractional remainder
// carries over so no expected birth is lost to rounding. Newborn sex follows
// the live-births-by-sex covariate.
type FertilityCrudeBirthRate struct {
	clock      *SimulationClock
	table      *PopulationTable
	population *PopulationManager

	rate      *artifact.LookupTable
	sexStream *Stream

	// proportion of live births that are male, by calendar year
	maleFraction map[int]float64
	defaultMale  float64

	carry float64
}

// NewFertilityCrudeBirthRate builds the fertility component.
func NewFertilityCrudeBirthRate() *FertilityCrudeBirthRate {
	return &FertilityCrudeBirthRate{maleFraction: make(map[int]float64)}
}

func (f *FertilityCrudeBirthRate) Name() string { return "fertility" }

func (f *FertilityCrudeBirthRate) Setup(b *Builder) error {
	f.clock = b.Clock
	f.table = b.Table
	f.population = b.Population

	var err error
	if f.rate, err = b.LookupTable("population.crude_birth_rate"); err != nil {
		return err
	}
	rows, err := b.Artifact.Table("covariate.live_births_by_sex.estimate")
	if err != nil {
		return err
	}
	births := make(map[int]map[string]float64)
	for _, r := range rows {
		if births[r.YearStart] == nil {
			births[r.YearStart] = make(map[string]float64)
		}
		births[r.YearStart][r.Sex] += r.Value
	}
	for year, bySex := range births {
		total := bySex[string(SexMale)] + bySex[string(SexFemale)]
		if total <= 0 {
			return configErrorf("live_births_by_sex for year %d has no births", year)
		}
		f.maleFraction[year] = bySex[string(SexMale)] / total
	}
	if len(f.maleFraction) == 0 {
		return configErrorf("covariate.live_births_by_sex.estimate has no rows")
	}
	// Fallback for years the covariate does not cover.
	sum, n := 0.0, 0
	for _, frac := range f.maleFraction {
		sum += frac
		n++
	}
	f.defaultMale = sum / float64(n)

	f.sexStream = b.Randomness.RegisterStream("fertility.sex_of_child")
	return nil
}

func (f *FertilityCrudeBirthRate) OnTimeStep() error {
	year := f.clock.Time().Year()
	cbr := f.rate.At("", 0, year)
	if cbr < 0 || math.IsNaN(cbr) || math.IsInf(cbr, 0) {
		return invalidRate("population.crude_birth_rate", cbr, f.clock)
	}
	expected := cbr*float64(f.table.TrackedAliveCount())*f.clock.StepYears() + f.carry
	n := int(math.Floor(expected))
	f.carry = expected - float64(n)
	if n == 0 {
		return nil
	}

	maleFrac, ok := f.maleFraction[year]
	if !ok {
		maleFrac = f.defaultMale
	}
	sexes := make([]Sex, n)
	base := f.table.Len()
	for j := range sexes {
		// Keyed by the would-be index: stable across scenario variants.
		sexes[j] = SexFemale
		if f.sexStream.DrawRaw(fmt.Sprintf("birth.%d", base+j)) < maleFrac {
			sexes[j] = SexMale
		}
	}
	indices, err := f.population.AddCohort(sexes)
	if err != nil {
		return err
	}
	logrus.Debugf("step %d: %d live births", f.clock.StepsTaken(), len(indices))
	return nil
}
