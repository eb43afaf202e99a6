// Package main provides the per-cell inspection HTTP server.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"go.ngs.io/ecotrend/internal/adapter/store/ncgrid"
	"go.ngs.io/ecotrend/internal/app"
	"go.ngs.io/ecotrend/internal/config"
	httpHandler "go.ngs.io/ecotrend/internal/http"
	"go.ngs.io/ecotrend/internal/logging"
	"go.ngs.io/ecotrend/internal/usecase"
)

const version = "0.1.0"

func main() {
	// Parse command-line flags.
	showHelp := flag.Bool("help", false, "Show usage information")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}

	if *showVersion {
		fmt.Printf("ecotrend-server version %s\n", version)
		return
	}

	_ = godotenv.Load()
	log := logging.New(os.Stderr)
	if log.GetLevel() < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	// Load configuration from environment.
	port := getEnv("PORT", "8080")
	configPath := getEnv(config.EnvConfigPath, "ecotrend.yaml")

	log.Info("Starting ecotrend inspection server...")
	log.Infof("Port: %s", port)
	log.Infof("Config: %s", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}

	// Load every configured stack once.
	in, err := app.LoadInputs(cfg, ncgrid.NewStore(), log)
	if err != nil {
		log.WithError(err).Fatal("Failed to load stacks")
	}

	inspector, err := usecase.NewPixelInspector(app.NewEngine(cfg, log), in)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize inspector")
	}
	info := inspector.Grid()
	log.WithFields(logrus.Fields{
		"rows":    info.Height,
		"cols":    info.Width,
		"years":   len(info.Years),
		"drivers": len(info.Drivers),
	}).Info("Stacks loaded")

	// Setup router.
	router := httpHandler.SetupRouter(inspector, log)

	// Start server.
	addr := fmt.Sprintf(":%s", port)
	log.Infof("Server listening on %s", addr)
	log.Infof("Health check: http://localhost:%s/health", port)
	log.Info("API endpoints:")
	log.Info("  - GET /v1/grid")
	log.Info("  - GET /v1/pixels/trend")
	log.Info("  - GET /v1/pixels/attribution")

	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
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
	fmt.Printf("ecotrend inspection server v%s\n\n", version)
	fmt.Println("USAGE:")
	fmt.Println("  server [flags]")
	fmt.Println()
	fmt.Println("FLAGS:")
	fmt.Println("  -help          Show this help message")
	fmt.Println("  -version       Show version information")
	fmt.Println()
	fmt.Println("ENVIRONMENT VARIABLES:")
	fmt.Println("  PORT                    Server port (default: 8080)")
	fmt.Println("  ECOTREND_CONFIG         Configuration path (default: ecotrend.yaml)")
	fmt.Println("  CORS_ALLOWED_ORIGINS    Comma-separated list of allowed origins (default: all origins)")
	fmt.Println("  LOG_LEVEL               ERROR, WARN, INFO, DEBUG or TRACE (default: INFO)")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Inspect a synthetic data set")
	fmt.Println("  stack-generator -out ./data/synthetic")
	fmt.Println("  ECOTREND_CONFIG=./data/synthetic/ecotrend.yaml server")
	fmt.Println()
	fmt.Println("API ENDPOINTS:")
	fmt.Println("  GET /health                                  Health check")
	fmt.Println("  GET /v1/grid                                 Grid shape, years, CRS and stacks")
	fmt.Println("  GET /v1/pixels/trend?row=&col=&stack=        Series, Sen's slope and Mann-Kendall test")
	fmt.Println("  GET /v1/pixels/trend?x=&y=&stack=            Same, addressed by map coordinate")
	fmt.Println("  GET /v1/pixels/attribution?row=&col=         Anomalies, importances and dominance")
	fmt.Println()
}
