package file

import (
	"fmt"

	"github.com/couchcryptid/service-request-etl/internal/domain"
)

// windowLayout renders the 6-hour window without an offset; the anonymized
// timestamp is naive local time like its source.
const windowLayout = "2006-01-02 15:04:05"

// anonymizedCandidates is the full candidate column list before suppression.
// The released header is this list minus domain.SuppressedColumns, so the
// suppression policy lives in one place even if a column is later added here.
var anonymizedCandidates = []string{
	"request_type",
	"notification_number",
	"reference_number",
	"creation_timestamp",
	"distance_km",
	"latitude",
	"longitude",
	"creation_window",
	"wind_direction",
	"wind_speed",
}

// releaseColumns intersects the candidate list with the suppression policy.
func releaseColumns() []string {
	suppressed := make(map[string]struct{}, len(domain.SuppressedColumns))
	for _, name := range domain.SuppressedColumns {
		suppressed[name] = struct{}{}
	}
	cols := make([]string, 0, len(anonymizedCandidates))
	for _, name := range anonymizedCandidates {
		if _, drop := suppressed[name]; drop {
			continue
		}
		cols = append(cols, name)
	}
	return cols
}

// WriteAnonymized writes the privacy-reduced release table. Columns are the
// candidate set minus the suppressed set; nil values render as empty cells.
func WriteAnonymized(path string, records []domain.AnonymizedRecord) error {
	w, closeFn, err := openCSVWriter(path)
	if err != nil {
		return fmt.Errorf("write anonymized: %w", err)
	}
	defer closeFn()

	cols := releaseColumns()
	if err := w.Write(cols); err != nil {
		return fmt.Errorf("write anonymized header: %w", err)
	}

	for _, rec := range records {
		row := make([]string, 0, len(cols))
		for _, name := range cols {
			row = append(row, anonymizedField(rec, name))
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write anonymized row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

func anonymizedField(rec domain.AnonymizedRecord, name string) string {
	switch name {
	case "request_type":
		return rec.RequestType
	case "latitude":
		return formatNullableFloat(rec.Latitude)
	case "longitude":
		return formatNullableFloat(rec.Longitude)
	case "creation_window":
		if rec.Window.IsZero() {
			return ""
		}
		return rec.Window.Format(windowLayout)
	case "wind_direction":
		return formatNullableFloat(rec.WindDirection)
	case "wind_speed":
		return formatNullableFloat(rec.WindSpeed)
	default:
		return ""
	}
}
