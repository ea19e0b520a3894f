// Command geojson converts the station CSV into the published GeoJSON.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/tk0miya/roadside-station-maps/internal/config"
	"github.com/tk0miya/roadside-station-maps/internal/station"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", getEnv("CONFIG_PATH", "config/config.yaml"), "path to the YAML config")
	input := flag.String("i", "", "input CSV path (default: dataset.csv_path)")
	output := flag.String("o", "", "output GeoJSON path (default: dataset.geojson_path)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	in, out := cfg.Dataset.CSVPath, cfg.Dataset.GeoJSONPath
	if *input != "" {
		in = *input
	}
	if *output != "" {
		out = *output
	}

	stations, err := station.LoadCSV(in)
	if err != nil {
		log.Fatalf("Failed to read %s: %v", in, err)
	}

	fc := station.BuildGeoJSON(stations)
	if dropped := len(stations) - len(fc.Features); dropped > 0 {
		log.Printf("Skipped %d stations without coordinates", dropped)
	}

	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}
	checksum, err := station.WriteGeoJSON(out, fc)
	if err != nil {
		log.Fatalf("Failed to write %s: %v", out, err)
	}

	fmt.Printf("%s\t%d\t%s\n", checksum, len(fc.Features), out)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
