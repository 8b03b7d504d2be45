package file

import (
	"fmt"
	"strconv"
	"time"

	"github.com/couchcryptid/service-request-etl/internal/domain"
)

// observationTimeLayouts cover the generator's output and hand-edited
// fixtures. Observation timestamps are naive local time, no offset.
var observationTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// ReadObservations loads an hourly wind observation CSV with columns
// timestamp, wind_direction, wind_speed.
func ReadObservations(path string) ([]domain.Observation, error) {
	rows, header, err := readCSV(path)
	if err != nil {
		return nil, fmt.Errorf("read observations: %w", err)
	}

	col, err := columnIndex(header, "timestamp", "wind_direction", "wind_speed")
	if err != nil {
		return nil, fmt.Errorf("read observations %s: %w", path, err)
	}

	obs := make([]domain.Observation, 0, len(rows))
	for i, row := range rows {
		ts, err := parseObservationTime(row[col["timestamp"]])
		if err != nil {
			return nil, fmt.Errorf("observations %s row %d: %w", path, i+2, err)
		}
		dir, err := strconv.ParseFloat(row[col["wind_direction"]], 64)
		if err != nil {
			return nil, fmt.Errorf("observations %s row %d: parse direction: %w", path, i+2, err)
		}
		speed, err := strconv.ParseFloat(row[col["wind_speed"]], 64)
		if err != nil {
			return nil, fmt.Errorf("observations %s row %d: parse speed: %w", path, i+2, err)
		}
		obs = append(obs, domain.Observation{Timestamp: ts, Direction: dir, Speed: speed})
	}
	return obs, nil
}

// WriteObservations writes an hourly observation series, one row per hour.
func WriteObservations(path string, observations []domain.Observation) error {
	w, closeFn, err := openCSVWriter(path)
	if err != nil {
		return fmt.Errorf("write observations: %w", err)
	}
	defer closeFn()

	if err := w.Write([]string{"timestamp", "wind_direction", "wind_speed"}); err != nil {
		return fmt.Errorf("write observations header: %w", err)
	}
	for _, obs := range observations {
		row := []string{
			obs.Timestamp.Format(observationTimeLayouts[0]),
			strconv.FormatFloat(obs.Direction, 'f', 2, 64),
			strconv.FormatFloat(obs.Speed, 'f', 2, 64),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write observations row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

func parseObservationTime(s string) (time.Time, error) {
	var err error
	for _, layout := range observationTimeLayouts {
		var t time.Time
		t, err = time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
}
