// main.go
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/gewnthar/flightwx/config"
	"github.com/gewnthar/flightwx/logging"
	"github.com/gewnthar/flightwx/services"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (defaults to config/config.yaml when present)")
	startYear := flag.Int("start-year", 0, "first year of flight data to load (overrides run.start_year)")
	stage := flag.String("stage", services.StageAll, "stage to run: all, flights, weather or join")
	flag.Parse()

	if *configPath == "" {
		if _, err := os.Stat("config/config.yaml"); err == nil {
			*configPath = "config/config.yaml"
		}
	}
	if !services.ValidStage(*stage) {
		log.Fatalf("Unknown stage %q", *stage)
	}

	if err := config.LoadConfig(*configPath); err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}
	cfg := config.AppConfig
	if *startYear != 0 {
		cfg.Run.StartYear = *startYear
	}

	runID := uuid.NewString()
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Dir, runID, os.Stderr)
	if err != nil {
		log.Fatalf("Error initializing logging: %v", err)
	}
	defer logger.Close()

	log.Printf("Starting flightwx run %s (stage %s, start year %d, output %s)", runID, *stage, cfg.Run.StartYear, cfg.Run.OutputDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline, err := services.NewPipeline(ctx, cfg, runID)
	if err != nil {
		log.Fatalf("Error initializing pipeline: %v", err)
	}
	defer pipeline.Close()

	if err := run(ctx, pipeline, runID, *stage); err != nil {
		log.Printf("ERROR Run %s failed: %v", runID, err)
		pipeline.Close()
		logger.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, pipeline *services.Pipeline, runID, stage string) error {
	manifest, err := pipeline.Run(ctx, stage)
	if err != nil {
		return err
	}
	log.Printf("Run %s finished: %d flights, %d weather rows, %d joined rows", runID,
		manifest.FlightRows, manifest.WeatherRows, manifest.JoinedRows)
	return nil
}
