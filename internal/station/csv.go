package station

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/tk0miya/roadside-station-maps/internal/models"
)

// LoadCSV reads a tab-separated station list.
// Columns: prefId, stationId, name, address, tel, hours, uri, lat, lng, mapcode.
func LoadCSV(path string) ([]models.Station, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open station list: %w", err)
	}
	defer f.Close()

	var stations []models.Station
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 9 {
			continue
		}
		s := models.Station{
			PrefID:    fields[0],
			StationID: fields[1],
			Name:      fields[2],
			Address:   fields[3],
			Tel:       fields[4],
			Hours:     fields[5],
			URI:       fields[6],
			Lat:       fields[7],
			Lng:       fields[8],
		}
		if len(fields) >= 10 {
			s.Mapcode = fields[9]
		}
		stations = append(stations, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read station list: %w", err)
	}
	return stations, nil
}

// FormatCSVLine renders one station as a tab-separated line without newline
func FormatCSVLine(s models.Station) string {
	return strings.Join([]string{
		s.PrefID, s.StationID, s.Name, s.Address, s.Tel,
		s.Hours, s.URI, s.Lat, s.Lng, s.Mapcode,
	}, "\t")
}

// WriteCSV writes the station list, replacing path
func WriteCSV(path string, stations []models.Station) error {
	var b strings.Builder
	for _, s := range stations {
		b.WriteString(FormatCSVLine(s))
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write station list: %w", err)
	}
	return nil
}
