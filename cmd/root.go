package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lsff-sim/lsff-sim/sim"
	"github.com/lsff-sim/lsff-sim/sim/artifact"
	"github.com/lsff-sim/lsff-sim/sim/output"
)

var (
	specPath     string // Model specification YAML path
	artifactPath string // Override for configuration.input_data.artifact_path
	logLevel     string // Log verbosity level
	outputPath   string // CSV results path
	dbPath       string // Optional SQLite results database
	seed         int64  // Override for configuration.randomness.random_seed
	draw         int    // Override for configuration.input_data.input_draw_number
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "lsff-sim",
	Short: "Individual-based microsimulation of early-childhood health and food fortification",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one simulation of the model specification",
	Run: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		spec, err := LoadModelSpec(specPath)
		if err != nil {
			logrus.Fatalf("Unable to load model spec: %v", err)
		}
		cfg := &spec.Configuration
		if cmd.Flags().Changed("seed") {
			cfg.Randomness.RandomSeed = seed
		}
		if cmd.Flags().Changed("draw") {
			cfg.InputData.InputDrawNumber = draw
		}
		if artifactPath != "" {
			cfg.InputData.ArtifactPath = artifactPath
		}
		if cfg.InputData.ArtifactPath == "" {
			logrus.Fatalf("No artifact path: set input_data.artifact_path or --artifact")
		}

		art, err := artifact.Load(cfg.InputData.ArtifactPath, cfg.InputData.InputDrawNumber)
		if err != nil {
			logrus.Fatalf("Unable to load artifact: %v", err)
		}
		components, err := sim.BuildComponents(spec.Components)
		if err != nil {
			logrus.Fatalf("Unable to build component catalog: %v", err)
		}
		simulation, err := sim.NewSimulation(cfg, art, components)
		if err != nil {
			logrus.Fatalf("Unable to initialize simulation: %v", err)
		}

		logrus.Infof("Starting simulation: location=%s draw=%d seed=%d scenario=%s",
			art.Location, cfg.InputData.InputDrawNumber, cfg.Randomness.RandomSeed,
			scenarioName(cfg))
		startTime := time.Now()

		if err := simulation.Run(cmd.Context()); err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
		results := simulation.Results()

		printSummary(results, time.Since(startTime))

		if outputPath != "" {
			if err := output.WriteCSV(outputPath, results); err != nil {
				logrus.Fatalf("Unable to write results CSV: %v", err)
			}
			logrus.Infof("Results written to %s", outputPath)
		}
		if dbPath != "" {
			store, err := output.OpenSQLite(dbPath)
			if err != nil {
				logrus.Fatalf("Unable to open results database: %v", err)
			}
			defer store.Close()
			meta := output.RunMeta{
				Location:   art.Location,
				InputDraw:  cfg.InputData.InputDrawNumber,
				RandomSeed: cfg.Randomness.RandomSeed,
				Scenario:   scenarioName(cfg),
			}
			if err := store.WriteResults(cmd.Context(), meta, results); err != nil {
				logrus.Fatalf("Unable to write results database: %v", err)
			}
			logrus.Infof("Results appended to %s", dbPath)
		}
		logrus.Info("Simulation complete.")
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a model specification without running it",
	Run: func(cmd *cobra.Command, args []string) {
		spec, err := LoadModelSpec(specPath)
		if err != nil {
			logrus.Fatalf("Invalid model spec: %v", err)
		}
		if err := spec.Configuration.Validate(); err != nil {
			logrus.Fatalf("Invalid configuration: %v", err)
		}
		if _, err := sim.BuildComponents(spec.Components); err != nil {
			logrus.Fatalf("Invalid component catalog: %v", err)
		}
		fmt.Printf("%s: %d components, configuration OK\n", specPath, len(spec.Components))
	},
}

func scenarioName(cfg *sim.Config) string {
	if cfg.FortificationIntervention.Scenario == "" {
		return sim.ScenarioBaseline
	}
	return cfg.FortificationIntervention.Scenario
}

func printSummary(results sim.Results, elapsed time.Duration) {
	fmt.Println("=== Simulation Results ===")
	fmt.Printf("Living population    : %.0f\n", results.Total("total_population_living"))
	fmt.Printf("Total deaths         : %.0f\n", results.Total("total_deaths"))
	fmt.Printf("Live births          : %.0f\n", results.Total("live_births"))
	fmt.Printf("Result rows          : %d\n", len(results))
	fmt.Printf("Wall time            : %s\n", elapsed.Round(time.Millisecond))
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&specPath, "spec", "model_spec.yaml", "Model specification YAML path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")

	runCmd.Flags().StringVar(&artifactPath, "artifact", "", "Artifact path override")
	runCmd.Flags().StringVar(&outputPath, "output", "", "Write results CSV to this path")
	runCmd.Flags().StringVar(&dbPath, "db", "", "Append results to this SQLite database")
	runCmd.Flags().Int64Var(&seed, "seed", 0, "Random seed override")
	runCmd.Flags().IntVar(&draw, "draw", 0, "Input draw number override")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
}
