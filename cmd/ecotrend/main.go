// Package main provides the batch trend and attribution runner.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"go.ngs.io/ecotrend/internal/adapter/store/ncgrid"
	"go.ngs.io/ecotrend/internal/app"
	"go.ngs.io/ecotrend/internal/config"
	"go.ngs.io/ecotrend/internal/logging"
	"go.ngs.io/ecotrend/internal/usecase"
)

const version = "0.1.0"

func main() {
	// Parse command-line flags.
	configPath := flag.String("config", "", "Path to the YAML configuration (default: $ECOTREND_CONFIG or ecotrend.yaml)")
	trendOnly := flag.Bool("trend-only", false, "Run the trend stage only")
	attributionOnly := flag.Bool("attribution-only", false, "Run the attribution stage only")
	showHelp := flag.Bool("help", false, "Show usage information")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}

	if *showVersion {
		fmt.Printf("ecotrend version %s\n", version)
		return
	}

	// A missing .env file is fine.
	_ = godotenv.Load()
	log := logging.New(os.Stderr)

	if *trendOnly && *attributionOnly {
		log.Fatal("-trend-only and -attribution-only are mutually exclusive")
	}

	path := *configPath
	if path == "" {
		path = getEnv(config.EnvConfigPath, "ecotrend.yaml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	log.WithField("config", path).Info("Configuration loaded")

	stages := app.AllStages
	if *trendOnly {
		stages.Attribution = false
	}
	if *attributionOnly {
		stages.Trend = false
	}
	req, err := app.NewRequest(cfg, stages)
	if err != nil {
		log.WithError(err).Fatal("Nothing to run")
	}

	mask, err := app.NewMask(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to load boundary")
	}

	engine := app.NewEngine(cfg, log)
	uc := usecase.NewAnalysisUseCase(ncgrid.NewStore(), ncgrid.NewWriter(), engine, mask)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manifest, err := uc.Execute(ctx, req)
	if err != nil {
		log.WithError(err).Fatal("Run failed")
	}

	fmt.Printf("Run %s\n", manifest.RunID)
	fmt.Printf("  Cells processed: %d of %d\n", manifest.Stats.Processed, manifest.Stats.Cells)
	if manifest.Stats.Truncated {
		fmt.Println("  Run was truncated by the cell budget or timeout")
	}
	for label, n := range manifest.Stats.Dominance {
		fmt.Printf("  %-18s %d\n", label+":", n)
	}
	if manifest.Baseline != nil {
		fmt.Printf("  Baseline R²: %.4f over %d rows\n", manifest.Baseline.R2, manifest.Baseline.Rows)
	}
	fmt.Printf("  Files written: %d (see %s)\n", len(manifest.Files), cfg.OutputDir)
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// printUsage prints usage information.
func printUsage() {
	fmt.Printf("ecotrend v%s\n\n", version)
	fmt.Println("Computes per-cell Sen's slope and Mann-Kendall p-value grids, per-cell")
	fmt.Println("driver importance grids and a climate/human dominance map.")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  ecotrend [flags]")
	fmt.Println()
	fmt.Println("FLAGS:")
	fmt.Println("  -config PATH         YAML configuration file")
	fmt.Println("  -trend-only          Run the trend stage only")
	fmt.Println("  -attribution-only    Run the attribution stage only")
	fmt.Println("  -help                Show this help message")
	fmt.Println("  -version             Show version information")
	fmt.Println()
	fmt.Println("ENVIRONMENT VARIABLES:")
	fmt.Println("  ECOTREND_CONFIG       Configuration path (default: ecotrend.yaml)")
	fmt.Println("  ECOTREND_OUTPUT_DIR   Override output_dir")
	fmt.Println("  ECOTREND_BOUNDARY     Override boundary shapefile")
	fmt.Println("  ECOTREND_WORKERS      Override engine.workers")
	fmt.Println("  ECOTREND_MAX_CELLS    Override engine.max_cells")
	fmt.Println("  ECOTREND_TIMEOUT      Override engine.timeout (e.g. 30m)")
	fmt.Println("  LOG_LEVEL             ERROR, WARN, INFO, DEBUG or TRACE (default: INFO)")
	fmt.Println()
	fmt.Println("OUTPUTS:")
	fmt.Println("  <Stack>_SenSlope.nc, <Stack>_MK_pvalue.nc, <Driver>_importance.nc,")
	fmt.Println("  Driver_Dominance.nc (1 climate, 2 human, 3 mixed, 0 undefined), run.json")
	fmt.Println()
}
