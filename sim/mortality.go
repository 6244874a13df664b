package sim

import "github.com/sirupsen/logrus"

// mortalityPipelineName is the all-cause mortality rate pipeline every
// cause-specific model modifies.
const mortalityPipelineName = "mortality_rate"

// otherCauses labels deaths not attributed to any modeled cause.
const otherCauses = "other_causes"

// CauseHazard is one modeled cause's contribution to a simulant's current
// mortality hazard.
type CauseHazard struct {
	Cause  string
	Hazard func(i int) float64
}

// CauseRegistry collects cause-specific hazards in registration order so
// death events can be attributed to a cause.
type CauseRegistry struct {
	causes []CauseHazard
}

// Register adds a cause's hazard function.
func (r *CauseRegistry) Register(cause string, hazard func(i int) float64) {
	r.causes = append(r.causes, CauseHazard{Cause: cause, Hazard: hazard})
}

// Mortality applies the all-cause mortality rate pipeline to every tracked
// living simulant each step and attributes each death to a cause in
// proportion to the current cause-specific hazards.
type Mortality struct {
	clock *SimulationClock
	table *PopulationTable

	pipeline    *Pipeline
	stream      *Stream
	causeStream *Stream
	causes      *CauseRegistry
}

// NewMortality builds the mortality component. It must be declared before any
// disease model so those models find the mortality pipeline to modify.
func NewMortality() *Mortality { return &Mortality{} }

func (m *Mortality) Name() string { return "mortality" }

func (m *Mortality) Setup(b *Builder) error {
	m.clock = b.Clock
	m.table = b.Table
	m.causes = b.DeathCauses

	acmr, err := b.LookupTable("cause.all_causes.cause_specific_mortality_rate")
	if err != nil {
		return err
	}
	table, clock := b.Table, b.Clock
	m.pipeline, err = b.Values.Register(mortalityPipelineName, func(i int) float64 {
		return acmr.At(string(table.Sex(i)), table.Age(i), clock.Time().Year())
	})
	if err != nil {
		return err
	}
	m.stream = b.Randomness.RegisterStream("mortality")
	m.causeStream = b.Randomness.RegisterStream("mortality.cause_of_death")
	return nil
}

func (m *Mortality) OnTimeStep() error {
	dt := m.clock.StepYears()
	key := stepKey(m.clock)
	for _, i := range m.table.TrackedAlive() {
		rate := m.pipeline.EvaluateOne(i)
		p, ok := rateToProbability(rate, dt)
		if !ok {
			return invalidRate(mortalityPipelineName, rate, m.clock)
		}
		if m.stream.DrawAt(i, key) < p {
			cause := m.attributeCause(i, rate, key)
			m.table.RecordDeath(i, cause, m.clock.Time(), m.clock.StepsTaken())
			logrus.Debugf("simulant %d died of %s at %s", i, cause, m.clock.Time().Format("2006-01-02"))
		}
	}
	return nil
}

// attributeCause picks the cause of one death, weighting each modeled cause
// by its share of the simulant's total hazard; the remainder goes to
// other_causes.
func (m *Mortality) attributeCause(i int, totalRate float64, key string) string {
	if len(m.causes.causes) == 0 || totalRate <= 0 {
		return otherCauses
	}
	names := make([]string, 0, len(m.causes.causes)+1)
	weights := make([]float64, 0, len(m.causes.causes)+1)
	sum := 0.0
	for _, c := range m.causes.causes {
		h := c.Hazard(i)
		if h < 0 {
			h = 0
		}
		names = append(names, c.Cause)
		weights = append(weights, h)
		sum += h
	}
	other := totalRate - sum
	if other < 0 {
		other = 0
	}
	names = append(names, otherCauses)
	weights = append(weights, other)
	u := m.causeStream.DrawAt(i, key)
	return names[ChoiceWeighted(u, weights)]
}
