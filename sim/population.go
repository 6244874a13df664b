package sim

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Sex is the simulant sex category.
type Sex string

const (
	SexMale   Sex = "Male"
	SexFemale Sex = "Female"
)

// StateColumn is a string-valued per-simulant column. Each column has exactly
// one owning component; only the owner may write it, everyone may read it.
// The single-writer discipline is by registration, not locking: a run is
// single-threaded.
type StateColumn struct {
	name   string
	owner  string
	def    string
	values []string
}

// Name returns the column name.
func (c *StateColumn) Name() string { return c.name }

// Owner returns the name of the component that registered the column.
func (c *StateColumn) Owner() string { return c.owner }

// Get returns the value for simulant i.
func (c *StateColumn) Get(i int) string { return c.values[i] }

// Set writes the value for simulant i.
func (c *StateColumn) Set(i int, v string) { c.values[i] = v }

func (c *StateColumn) grow(n int) {
	for len(c.values) < n {
		c.values = append(c.values, c.def)
	}
}

// PopulationTable is the arena of all simulants. A simulant's identity is its
// stable integer index; rows are never removed mid-run, retirement is the
// tracked flag. Only the PopulationManager appends rows.
type PopulationTable struct {
	age          []float64 // years
	sex          []Sex
	alive        []bool
	tracked      []bool
	entrance     []time.Time
	entranceStep []int
	exitTime     []time.Time
	hasExit      []bool
	exitStep     []int // -1 while tracked
	deathStep    []int // -1 while alive
	causeOfDeath []string

	columns map[string]*StateColumn
}

// NewPopulationTable returns an empty table.
func NewPopulationTable() *PopulationTable {
	return &PopulationTable{columns: make(map[string]*StateColumn)}
}

// Len returns the number of simulants ever created.
func (t *PopulationTable) Len() int { return len(t.age) }

// AddColumn registers a new string column with a default value. Duplicate
// registration is a wiring mistake.
func (t *PopulationTable) AddColumn(name, owner, defaultValue string) (*StateColumn, error) {
	if existing, ok := t.columns[name]; ok {
		return nil, configErrorf("column %q already registered by %q", name, existing.owner)
	}
	col := &StateColumn{name: name, owner: owner, def: defaultValue}
	col.grow(t.Len())
	t.columns[name] = col
	return col, nil
}

// Column looks up a registered column for reading.
func (t *PopulationTable) Column(name string) (*StateColumn, bool) {
	col, ok := t.columns[name]
	return col, ok
}

// Age returns the simulant's age in years.
func (t *PopulationTable) Age(i int) float64 { return t.age[i] }

// Sex returns the simulant's sex.
func (t *PopulationTable) Sex(i int) Sex { return t.sex[i] }

// Alive reports whether the simulant is alive.
func (t *PopulationTable) Alive(i int) bool { return t.alive[i] }

// Tracked reports whether the simulant still participates in the simulation.
func (t *PopulationTable) Tracked(i int) bool { return t.tracked[i] }

// EntranceTime returns when the simulant entered the simulation.
func (t *PopulationTable) EntranceTime(i int) time.Time { return t.entrance[i] }

// EntranceStep returns the step index at which the simulant entered,
// or -1 for the initial cohort created before the first step.
func (t *PopulationTable) EntranceStep(i int) int { return t.entranceStep[i] }

// ExitStep returns the step index at which the simulant was untracked,
// whether by death or age-out, or -1 while still tracked.
func (t *PopulationTable) ExitStep(i int) int { return t.exitStep[i] }

// DeathStep returns the step index at which the simulant died, or -1.
func (t *PopulationTable) DeathStep(i int) int { return t.deathStep[i] }

// CauseOfDeath returns the recorded cause, empty while alive.
func (t *PopulationTable) CauseOfDeath(i int) string { return t.causeOfDeath[i] }

// TrackedAlive returns the indices of all tracked, living simulants in
// ascending order.
func (t *PopulationTable) TrackedAlive() []int {
	out := make([]int, 0, t.Len())
	for i := range t.age {
		if t.tracked[i] && t.alive[i] {
			out = append(out, i)
		}
	}
	return out
}

// TrackedAliveCount returns the number of tracked, living simulants.
func (t *PopulationTable) TrackedAliveCount() int {
	n := 0
	for i := range t.age {
		if t.tracked[i] && t.alive[i] {
			n++
		}
	}
	return n
}

// Counts returns totals for the standard population states.
func (t *PopulationTable) Counts() (living, dead, tracked, untracked int) {
	for i := range t.age {
		if t.alive[i] {
			living++
		} else {
			dead++
		}
		if t.tracked[i] {
			tracked++
		} else {
			untracked++
		}
	}
	return
}

// RecordDeath marks a simulant dead with the given cause. Untracking happens
// at the cleanup phase so observers still see the death this step.
func (t *PopulationTable) RecordDeath(i int, cause string, at time.Time, step int) {
	t.alive[i] = false
	t.causeOfDeath[i] = cause
	t.deathStep[i] = step
	t.exitTime[i] = at
	t.hasExit[i] = true
}

func (t *PopulationTable) append(age float64, sex Sex, at time.Time, step int) int {
	t.age = append(t.age, age)
	t.sex = append(t.sex, sex)
	t.alive = append(t.alive, true)
	t.tracked = append(t.tracked, true)
	t.entrance = append(t.entrance, at)
	t.entranceStep = append(t.entranceStep, step)
	t.exitTime = append(t.exitTime, time.Time{})
	t.hasExit = append(t.hasExit, false)
	t.exitStep = append(t.exitStep, -1)
	t.deathStep = append(t.deathStep, -1)
	t.causeOfDeath = append(t.causeOfDeath, "")
	for _, col := range t.columns {
		col.grow(t.Len())
	}
	return t.Len() - 1
}

// PopulationManager owns the table. It is the only component permitted to add
// simulants or change their tracked status.
type PopulationManager struct {
	cfg   PopulationConfig
	table *PopulationTable
	clock *SimulationClock

	ageStream *Stream
	sexStream *Stream

	initializers []SimulantInitializer
}

// NewPopulationManager wraps a table with cohort-creation and aging
// operations.
func NewPopulationManager(cfg PopulationConfig, table *PopulationTable, clock *SimulationClock) *PopulationManager {
	return &PopulationManager{cfg: cfg, table: table, clock: clock}
}

func (m *PopulationManager) bindStreams(r *RandomnessManager) {
	m.ageStream = r.RegisterStream("population.age")
	m.sexStream = r.RegisterStream("population.sex")
}

// RegisterInitializer adds a hook invoked for every newly created simulant,
// in component declaration order.
func (m *PopulationManager) RegisterInitializer(si SimulantInitializer) {
	m.initializers = append(m.initializers, si)
}

func (m *PopulationManager) initialize(indices []int, newborn bool) error {
	for _, si := range m.initializers {
		if err := si.OnInitializeSimulants(indices, newborn); err != nil {
			return err
		}
	}
	return nil
}

// CreateInitialPopulation generates the starting cohort with ages drawn
// uniformly from [age_start, age_end).
func (m *PopulationManager) CreateInitialPopulation() error {
	if m.table.Len() != 0 {
		return configErrorf("initial population already created")
	}
	now := m.clock.Time()
	indices := make([]int, 0, m.cfg.PopulationSize)
	for j := 0; j < m.cfg.PopulationSize; j++ {
		u := m.ageStream.DrawRaw(fmt.Sprintf("initial.%d", j))
		age := m.cfg.AgeStart + u*(m.cfg.AgeEnd-m.cfg.AgeStart)
		sex := SexFemale
		if m.sexStream.DrawRaw(fmt.Sprintf("initial.%d", j)) < 0.5 {
			sex = SexMale
		}
		indices = append(indices, m.table.append(age, sex, now, -1))
	}
	logrus.Infof("created initial population of %d simulants, ages [%v, %v)",
		len(indices), m.cfg.AgeStart, m.cfg.AgeEnd)
	return m.initialize(indices, false)
}

// AddCohort appends newborn simulants at the current step with fresh stable
// indices. Indices are never reused.
func (m *PopulationManager) AddCohort(sexes []Sex) ([]int, error) {
	now := m.clock.Time()
	indices := make([]int, 0, len(sexes))
	for _, sex := range sexes {
		indices = append(indices, m.table.append(0, sex, now, m.clock.StepsTaken()))
	}
	if err := m.initialize(indices, true); err != nil {
		return nil, err
	}
	return indices, nil
}

// AgeAndRetire advances every tracked simulant's age by the step size, then
// untracks simulants who died this step or aged past the exit boundary.
// It returns the number of deaths and age-outs processed.
func (m *PopulationManager) AgeAndRetire() (died, agedOut int) {
	dt := m.clock.StepYears()
	step := m.clock.StepsTaken()
	t := m.table
	for i := range t.age {
		if !t.tracked[i] {
			continue
		}
		if t.alive[i] {
			t.age[i] += dt
		}
		switch {
		case !t.alive[i]:
			t.tracked[i] = false
			t.exitStep[i] = step
			died++
		case m.cfg.ExitAge > 0 && t.age[i] > m.cfg.ExitAge:
			t.tracked[i] = false
			t.exitTime[i] = m.clock.Time()
			t.hasExit[i] = true
			t.exitStep[i] = step
			agedOut++
		}
	}
	return died, agedOut
}
