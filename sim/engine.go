package sim

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/lsff-sim/lsff-sim/sim/artifact"
)

// Simulation owns all mutable state of one run: the clock, the population
// table, the randomness manager, the value pipelines, and the component
// catalog. Runs are single-threaded and deterministic; parallelism exists
// only across independent Simulation values, which share nothing.
type Simulation struct {
	cfg        *Config
	clock      *SimulationClock
	table      *PopulationTable
	population *PopulationManager
	randomness *RandomnessManager
	values     *PipelineRegistry
	art        *artifact.Artifact

	components []Component
	risks      map[string]*Risk
	causes     *CauseRegistry

	preparers  []TimeStepPreparer
	steppers   []TimeStepper
	cleaners   []TimeStepCleaner
	collectors []MetricsCollector
	producers  []ResultsProducer

	ready bool
}

// NewSimulation validates the configuration and wires the engine subsystems.
// Components are not set up until Setup runs.
func NewSimulation(cfg *Config, art *artifact.Artifact, components []Component) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	clock, err := NewSimulationClock(cfg.Time.Start.Time(), cfg.Time.End.Time(), cfg.Time.StepSize)
	if err != nil {
		return nil, err
	}
	table := NewPopulationTable()
	randomness, err := NewRandomnessManager(cfg.Randomness, table)
	if err != nil {
		return nil, err
	}
	s := &Simulation{
		cfg:        cfg,
		clock:      clock,
		table:      table,
		population: NewPopulationManager(cfg.Population, table, clock),
		randomness: randomness,
		values:     NewPipelineRegistry(),
		art:        art,
		components: components,
		risks:      make(map[string]*Risk),
		causes:     &CauseRegistry{},
	}
	s.population.bindStreams(randomness)
	return s, nil
}

// Setup runs every component's setup in declaration order, registers phase
// hooks, and creates the initial population. All wiring mistakes and data
// coverage gaps surface here, before the first step.
func (s *Simulation) Setup() error {
	if s.ready {
		return configErrorf("simulation already set up")
	}
	b := &Builder{
		Config:      s.cfg,
		Clock:       s.clock,
		Table:       s.table,
		Population:  s.population,
		Randomness:  s.randomness,
		Values:      s.values,
		Artifact:    s.art,
		Risks:       s.risks,
		DeathCauses: s.causes,
	}
	for _, c := range s.components {
		if err := c.Setup(b); err != nil {
			return err
		}
		logrus.Debugf("component %s set up", c.Name())
		if si, ok := c.(SimulantInitializer); ok {
			s.population.RegisterInitializer(si)
		}
		if p, ok := c.(TimeStepPreparer); ok {
			s.preparers = append(s.preparers, p)
		}
		if st, ok := c.(TimeStepper); ok {
			s.steppers = append(s.steppers, st)
		}
		if cl, ok := c.(TimeStepCleaner); ok {
			s.cleaners = append(s.cleaners, cl)
		}
		if mc, ok := c.(MetricsCollector); ok {
			s.collectors = append(s.collectors, mc)
		}
		if rp, ok := c.(ResultsProducer); ok {
			s.producers = append(s.producers, rp)
		}
	}
	if err := s.population.CreateInitialPopulation(); err != nil {
		return err
	}
	s.ready = true
	return nil
}

// Step executes one tick: prepare hooks, state transitions, cleanup (which
// ages and retires simulants), metrics collection, then the clock advance.
// The phase order is fixed and part of the reproducibility contract.
func (s *Simulation) Step() error {
	for _, p := range s.preparers {
		if err := p.OnTimeStepPrepare(); err != nil {
			return err
		}
	}
	for _, st := range s.steppers {
		if err := st.OnTimeStep(); err != nil {
			return err
		}
	}
	for _, cl := range s.cleaners {
		if err := cl.OnTimeStepCleanup(); err != nil {
			return err
		}
	}
	died, agedOut := s.population.AgeAndRetire()
	for _, mc := range s.collectors {
		if err := mc.OnCollectMetrics(); err != nil {
			return err
		}
	}
	if died > 0 || agedOut > 0 {
		logrus.Debugf("step %d: %d deaths, %d age-outs", s.clock.StepsTaken(), died, agedOut)
	}
	s.clock.Advance()
	return nil
}

// Run steps the simulation until the clock reaches its end time. The context
// is checked only between steps; no partial-step state is ever observable.
func (s *Simulation) Run(ctx context.Context) error {
	if !s.ready {
		if err := s.Setup(); err != nil {
			return err
		}
	}
	logrus.Infof("running %s to %s in %v-day steps",
		s.clock.Start().Format("2006-01-02"), s.clock.End().Format("2006-01-02"), s.clock.StepDays())
	for !s.clock.IsFinished() {
		select {
		case <-ctx.Done():
			logrus.Warnf("run aborted after step %d", s.clock.StepsTaken())
			return ctx.Err()
		default:
		}
		if err := s.Step(); err != nil {
			return err
		}
	}
	logrus.Infof("simulation finished after %d steps, %d simulants ever created",
		s.clock.StepsTaken(), s.table.Len())
	return nil
}

// Results flushes every observer plus the standard population totals into a
// deterministic, ordered metrics document.
func (s *Simulation) Results() Results {
	rows := make([]ResultRow, 0, 64)
	living, dead, tracked, untracked := s.table.Counts()
	for _, total := range []ResultRow{
		{Measure: "total_population_living", AgeGroup: allStrata, Sex: allStrata, Year: allStrata, Value: float64(living)},
		{Measure: "total_population_dead", AgeGroup: allStrata, Sex: allStrata, Year: allStrata, Value: float64(dead)},
		{Measure: "total_population_tracked", AgeGroup: allStrata, Sex: allStrata, Year: allStrata, Value: float64(tracked)},
		{Measure: "total_population_untracked", AgeGroup: allStrata, Sex: allStrata, Year: allStrata, Value: float64(untracked)},
	} {
		rows = append(rows, total)
	}
	for _, p := range s.producers {
		rows = append(rows, p.Results()...)
	}
	sortResults(rows)
	return rows
}

// Clock exposes the simulation clock, read-only by convention.
func (s *Simulation) Clock() *SimulationClock { return s.clock }

// Table exposes the population table for inspection.
func (s *Simulation) Table() *PopulationTable { return s.table }

// Values exposes the pipeline registry.
func (s *Simulation) Values() *PipelineRegistry { return s.values }

// Randomness exposes the randomness manager.
func (s *Simulation) Randomness() *RandomnessManager { return s.randomness }
