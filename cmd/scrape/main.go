// Command scrape harvests the michi-no-eki directory into the station CSV.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tk0miya/roadside-station-maps/internal/config"
	"github.com/tk0miya/roadside-station-maps/internal/models"
	"github.com/tk0miya/roadside-station-maps/internal/scraper"
	"github.com/tk0miya/roadside-station-maps/internal/station"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", getEnv("CONFIG_PATH", "config/config.yaml"), "path to the YAML config")
	output := flag.String("o", "", "output CSV path (default: dataset.csv_path)")
	headless := flag.Bool("headless", false, "fall back to headless Chrome for blocked pages")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *headless {
		cfg.Scraper.HeadlessFallback = true
	}
	path := cfg.Dataset.CSVPath
	if *output != "" {
		path = *output
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := scraper.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("Failed to create scraper: %v", err)
	}

	start := time.Now()
	var stations []models.Station
	err = s.Run(ctx, func(st models.Station) error {
		stations = append(stations, st)
		return nil
	})
	if err != nil {
		// Partial results are still written
		log.Printf("Scrape finished with errors: %v", err)
	}
	if len(stations) == 0 {
		log.Fatal("No stations scraped")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}
	if err := station.WriteCSV(path, stations); err != nil {
		log.Fatalf("Failed to write %s: %v", path, err)
	}
	log.Printf("Wrote %d stations to %s in %v", len(stations), path, time.Since(start).Round(time.Second))
	if err != nil {
		os.Exit(1)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
