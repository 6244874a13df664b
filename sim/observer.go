package sim

import (
	"fmt"
	"strconv"
)

// GBD under-five age groups used for stratified output.
var ageGroupBounds = []struct {
	label string
	upper float64 // exclusive, in years
}{
	{"early_neonatal", 7 / daysPerYear},
	{"late_neonatal", 28 / daysPerYear},
	{"post_neonatal", 1},
	{"1_to_4", 5},
}

func ageGroupLabel(age float64) string {
	for _, g := range ageGroupBounds {
		if age < g.upper {
			return g.label
		}
	}
	return "5_plus"
}

// stratify builds the accumulator key for a simulant under the observer's
// configured stratification flags.
func stratify(cfg ObserverConfig, table *PopulationTable, i int, year int) stratKey {
	key := stratKey{ageGroup: allStrata, sex: allStrata, year: allStrata}
	if cfg.ByAge {
		key.ageGroup = ageGroupLabel(table.Age(i))
	}
	if cfg.BySex {
		key.sex = string(table.Sex(i))
	}
	if cfg.ByYear {
		key.year = strconv.Itoa(year)
	}
	return key
}

// DiseaseObserver accumulates state person-time and transition counts for one
// cause. Person-time accrues at the prepare phase, before any state changes,
// so it reflects the table as the step began; transitions are detected at the
// collect phase by comparing against the previous state recorded at prepare,
// or at entry for simulants created mid-step.
type DiseaseObserver struct {
	disease string
	cfg     ObserverConfig

	clock *SimulationClock
	table *PopulationTable
	state *StateColumn
	prev  *StateColumn

	counts accumulator
}

// NewDiseaseObserver builds an observer for a named cause. It must be
// declared after the cause's disease model so the state column exists.
func NewDiseaseObserver(disease string) *DiseaseObserver {
	return &DiseaseObserver{disease: disease, counts: make(accumulator)}
}

func (o *DiseaseObserver) Name() string { return "disease_observer." + o.disease }

func (o *DiseaseObserver) Setup(b *Builder) error {
	o.clock = b.Clock
	o.table = b.Table
	o.cfg = b.Config.ObserverConfigFor(o.disease + "_observer")

	state, ok := b.Table.Column(o.disease)
	if !ok {
		return configErrorf("observer %s: no disease model owns column %q; declare the model first",
			o.Name(), o.disease)
	}
	o.state = state

	var err error
	o.prev, err = b.Table.AddColumn("previous_"+o.disease, o.Name(), "")
	return err
}

// OnInitializeSimulants records the entry state as the transition baseline.
// The disease model's initializer runs first, so the state column is already
// decided; without this, a same-step infection of a newborn would go
// uncounted.
func (o *DiseaseObserver) OnInitializeSimulants(indices []int, newborn bool) error {
	for _, i := range indices {
		o.prev.Set(i, o.state.Get(i))
	}
	return nil
}

func (o *DiseaseObserver) OnTimeStepPrepare() error {
	dt := o.clock.StepYears()
	year := o.clock.Time().Year()
	for _, i := range o.table.TrackedAlive() {
		state := o.state.Get(i)
		key := stratify(o.cfg, o.table, i, year)
		o.counts.add(state+"_person_time", key, dt)
		o.prev.Set(i, state)
	}
	return nil
}

func (o *DiseaseObserver) OnCollectMetrics() error {
	year := o.clock.Time().Year()
	step := o.clock.StepsTaken()
	for i := 0; i < o.table.Len(); i++ {
		// Simulants untracked this step, whether by death or age-out, still
		// get their final transition counted.
		if !o.table.Tracked(i) && o.table.ExitStep(i) != step {
			continue
		}
		prev, cur := o.prev.Get(i), o.state.Get(i)
		if prev == "" || prev == cur {
			continue
		}
		measure := fmt.Sprintf("%s_TO_%s_event_count", prev, cur)
		o.counts.add(measure, stratify(o.cfg, o.table, i, year), 1)
	}
	return nil
}

func (o *DiseaseObserver) Results() []ResultRow { return o.counts.flush() }

// MortalityObserver accumulates deaths by cause and total person-time.
type MortalityObserver struct {
	cfg ObserverConfig

	clock *SimulationClock
	table *PopulationTable

	counts accumulator
}

// NewMortalityObserver builds the mortality observer.
func NewMortalityObserver() *MortalityObserver {
	return &MortalityObserver{counts: make(accumulator)}
}

func (o *MortalityObserver) Name() string { return "mortality_observer" }

func (o *MortalityObserver) Setup(b *Builder) error {
	o.clock = b.Clock
	o.table = b.Table
	o.cfg = b.Config.ObserverConfigFor("mortality_observer")
	return nil
}

func (o *MortalityObserver) OnTimeStepPrepare() error {
	dt := o.clock.StepYears()
	year := o.clock.Time().Year()
	for _, i := range o.table.TrackedAlive() {
		o.counts.add("person_time", stratify(o.cfg, o.table, i, year), dt)
	}
	return nil
}

func (o *MortalityObserver) OnCollectMetrics() error {
	year := o.clock.Time().Year()
	step := o.clock.StepsTaken()
	for i := 0; i < o.table.Len(); i++ {
		if o.table.DeathStep(i) != step {
			continue
		}
		measure := "death_due_to_" + o.table.CauseOfDeath(i)
		key := stratify(o.cfg, o.table, i, year)
		o.counts.add(measure, key, 1)
		o.counts.add("total_deaths", key, 1)
	}
	return nil
}

func (o *MortalityObserver) Results() []ResultRow { return o.counts.flush() }

// LiveBirthObserver counts live births and, when a neural-tube-defect model
// is present, births with the condition.
type LiveBirthObserver struct {
	cfg ObserverConfig

	clock *SimulationClock
	table *PopulationTable
	ntd   *StateColumn // nil when no NTD model is declared

	counts accumulator
}

// NewLiveBirthObserver builds the live-birth observer.
func NewLiveBirthObserver() *LiveBirthObserver {
	return &LiveBirthObserver{counts: make(accumulator)}
}

func (o *LiveBirthObserver) Name() string { return "live_birth_observer" }

func (o *LiveBirthObserver) Setup(b *Builder) error {
	o.clock = b.Clock
	o.table = b.Table
	o.cfg = b.Config.ObserverConfigFor("live_birth_observer")
	if col, ok := b.Table.Column("neural_tube_defects"); ok {
		o.ntd = col
	}
	return nil
}

func (o *LiveBirthObserver) OnCollectMetrics() error {
	year := o.clock.Time().Year()
	step := o.clock.StepsTaken()
	for i := 0; i < o.table.Len(); i++ {
		if o.table.EntranceStep(i) != step {
			continue // initial cohort members carry entrance step -1
		}
		key := stratify(o.cfg, o.table, i, year)
		o.counts.add("live_births", key, 1)
		if o.ntd != nil && o.ntd.Get(i) == withConditionState("neural_tube_defects") {
			o.counts.add("born_with_neural_tube_defects", key, 1)
		}
	}
	return nil
}

func (o *LiveBirthObserver) Results() []ResultRow { return o.counts.flush() }
