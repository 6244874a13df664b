package sim

import "time"

// Date is a calendar date in the configuration document.
type Date struct {
	Year  int `yaml:"year"`
	Month int `yaml:"month"`
	Day   int `yaml:"day"`
}

// Time converts the date to a UTC timestamp at midnight.
func (d Date) Time() time.Time {
	return time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC)
}

// IsZero reports whether the date was left unset.
func (d Date) IsZero() bool { return d.Year == 0 && d.Month == 0 && d.Day == 0 }

// InputDataConfig selects which pre-computed artifact to load.
type InputDataConfig struct {
	Location        string `yaml:"location"`
	InputDrawNumber int    `yaml:"input_draw_number"`
	ArtifactPath    string `yaml:"artifact_path"`
}

// InterpolationConfig controls how age-continuous artifact data is
// interpolated between supplied breakpoints.
type InterpolationConfig struct {
	Order       int  `yaml:"order"`
	Extrapolate bool `yaml:"extrapolate"`
}

// RandomnessConfig sizes and keys the randomness manager's hash space.
type RandomnessConfig struct {
	MapSize    int      `yaml:"map_size"`
	KeyColumns []string `yaml:"key_columns"`
	RandomSeed int64    `yaml:"random_seed"`
}

// TimeConfig bounds the clock.
type TimeConfig struct {
	Start    Date    `yaml:"start"`
	End      Date    `yaml:"end"`
	StepSize float64 `yaml:"step_size"` // days
}

// PopulationConfig sizes the initial cohort and its age window. ExitAge of
// zero means simulants are never retired by age.
type PopulationConfig struct {
	PopulationSize int     `yaml:"population_size"`
	AgeStart       float64 `yaml:"age_start"`
	AgeEnd         float64 `yaml:"age_end"`
	ExitAge        float64 `yaml:"exit_age"`
}

// InterventionConfig selects a named fortification scenario and its
// activation time.
type InterventionConfig struct {
	Scenario          string `yaml:"scenario"`
	InterventionStart Date   `yaml:"intervention_start"`
}

// ObserverConfig carries per-observer stratification toggles.
type ObserverConfig struct {
	ByAge  bool `yaml:"by_age"`
	BySex  bool `yaml:"by_sex"`
	ByYear bool `yaml:"by_year"`
}

// Config is the full configuration document consumed at setup.
type Config struct {
	InputData                 InputDataConfig           `yaml:"input_data"`
	Interpolation             InterpolationConfig       `yaml:"interpolation"`
	Randomness                RandomnessConfig          `yaml:"randomness"`
	Time                      TimeConfig                `yaml:"time"`
	Population                PopulationConfig          `yaml:"population"`
	FortificationIntervention InterventionConfig        `yaml:"fortification_intervention"`
	Metrics                   map[string]ObserverConfig `yaml:"metrics"`
}

// Validate fills defaults and rejects contradictory settings. It must pass
// before any simulation state is built.
func (c *Config) Validate() error {
	if c.Randomness.MapSize == 0 {
		c.Randomness.MapSize = 1_000_000
	}
	if c.Randomness.MapSize < 0 {
		return configErrorf("randomness.map_size must be positive, got %d", c.Randomness.MapSize)
	}
	if len(c.Randomness.KeyColumns) == 0 {
		c.Randomness.KeyColumns = []string{"entrance_time", "age"}
	}
	if c.Time.StepSize <= 0 {
		return configErrorf("time.step_size must be positive, got %v", c.Time.StepSize)
	}
	if c.Time.End.Time().Before(c.Time.Start.Time()) {
		return configErrorf("time.end precedes time.start")
	}
	if c.Population.PopulationSize <= 0 {
		return configErrorf("population.population_size must be positive, got %d", c.Population.PopulationSize)
	}
	if c.Population.AgeStart < 0 || c.Population.AgeEnd < c.Population.AgeStart {
		return configErrorf("population age window [%v, %v] is invalid",
			c.Population.AgeStart, c.Population.AgeEnd)
	}
	if c.Population.ExitAge < 0 {
		return configErrorf("population.exit_age must not be negative, got %v", c.Population.ExitAge)
	}
	if c.Interpolation.Order != 0 && c.Interpolation.Order != 1 {
		return configErrorf("interpolation.order must be 0 or 1, got %d", c.Interpolation.Order)
	}
	return nil
}

// ObserverConfigFor returns the stratification flags for a named observer,
// or all-off flags when the metrics section does not mention it.
func (c *Config) ObserverConfigFor(name string) ObserverConfig {
	if cfg, ok := c.Metrics[name]; ok {
		return cfg
	}
	return ObserverConfig{}
}
