// Package file reads and writes the pipeline's materialized tables:
// gzip-compressed service-request CSVs, the GeoJSON reference cell set,
// hourly observation CSVs, and the anonymized release CSV.
package file

import (
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/couchcryptid/service-request-etl/internal/domain"
)

// Column names in the service-request export. Extra columns are tolerated
// and ignored.
const (
	colNotification = "notification_number"
	colReference    = "reference_number"
	colCreated      = "creation_timestamp"
	colRequestType  = "request_type"
	colLatitude     = "latitude"
	colLongitude    = "longitude"
	colHexIndex     = "h3_level8_index"
)

// ReadServiceRequests loads a service-request CSV. Paths ending in .gz are
// transparently decompressed. Empty or malformed latitude/longitude values
// become nil, which the joiner later counts as missing.
func ReadServiceRequests(path string) ([]domain.ServiceRequest, error) {
	rows, header, err := readCSV(path)
	if err != nil {
		return nil, fmt.Errorf("read service requests: %w", err)
	}

	col, err := columnIndex(header, colNotification, colReference, colCreated, colLatitude, colLongitude)
	if err != nil {
		return nil, fmt.Errorf("read service requests %s: %w", path, err)
	}
	typeIdx, hasType := indexOf(header, colRequestType)

	requests := make([]domain.ServiceRequest, 0, len(rows))
	for _, row := range rows {
		req := domain.ServiceRequest{
			NotificationNumber: row[col[colNotification]],
			ReferenceNumber:    row[col[colReference]],
			CreationTimestamp:  row[col[colCreated]],
			Latitude:           parseNullableFloat(row[col[colLatitude]]),
			Longitude:          parseNullableFloat(row[col[colLongitude]]),
		}
		if hasType {
			req.RequestType = row[typeIdx]
		}
		requests = append(requests, req)
	}
	return requests, nil
}

// WriteJoined writes the hex-joined intermediate table. Used by the
// validate tool to compare a run against a reference export.
func WriteJoined(path string, requests []domain.ServiceRequest) error {
	w, closeFn, err := openCSVWriter(path)
	if err != nil {
		return fmt.Errorf("write joined: %w", err)
	}
	defer closeFn()

	header := []string{colNotification, colReference, colCreated, colRequestType, colLatitude, colLongitude, colHexIndex}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write joined header: %w", err)
	}

	for _, req := range requests {
		row := []string{
			req.NotificationNumber,
			req.ReferenceNumber,
			req.CreationTimestamp,
			req.RequestType,
			formatNullableFloat(req.Latitude),
			formatNullableFloat(req.Longitude),
			strconv.FormatUint(req.HexIndex, 10),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write joined row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

// ReadJoined loads a hex-joined table written by WriteJoined or an
// equivalent reference export carrying an h3_level8_index column.
func ReadJoined(path string) ([]domain.ServiceRequest, error) {
	rows, header, err := readCSV(path)
	if err != nil {
		return nil, fmt.Errorf("read joined: %w", err)
	}

	hexIdx, ok := indexOf(header, colHexIndex)
	if !ok {
		return nil, fmt.Errorf("read joined %s: missing column %s", path, colHexIndex)
	}

	requests := make([]domain.ServiceRequest, 0, len(rows))
	for _, row := range rows {
		var req domain.ServiceRequest
		if i, ok := indexOf(header, colNotification); ok {
			req.NotificationNumber = row[i]
		}
		if i, ok := indexOf(header, colReference); ok {
			req.ReferenceNumber = row[i]
		}
		if i, ok := indexOf(header, colRequestType); ok {
			req.RequestType = row[i]
		}
		if i, ok := indexOf(header, colCreated); ok {
			req.CreationTimestamp = row[i]
		}
		if i, ok := indexOf(header, colLatitude); ok {
			req.Latitude = parseNullableFloat(row[i])
		}
		if i, ok := indexOf(header, colLongitude); ok {
			req.Longitude = parseNullableFloat(row[i])
		}
		idx, err := strconv.ParseUint(row[hexIdx], 10, 64)
		if err != nil {
			// Reference exports store indexes in hex string form.
			if h := parseHexCell(row[hexIdx]); h != 0 {
				idx = h
			}
		}
		req.HexIndex = idx
		requests = append(requests, req)
	}
	return requests, nil
}

// --- shared CSV helpers ---

// readCSV loads all rows of a possibly-gzipped CSV, returning records and
// the lowercased header.
func readCSV(path string) ([][]string, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, nil, fmt.Errorf("gzip %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	all, err := cr.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("parse csv %s: %w", path, err)
	}
	if len(all) == 0 {
		return nil, nil, fmt.Errorf("csv %s: empty file", path)
	}

	header := make([]string, len(all[0]))
	for i, h := range all[0] {
		header[i] = strings.ToLower(strings.TrimSpace(h))
	}
	return all[1:], header, nil
}

// openCSVWriter creates the file (gzipped when the path ends in .gz) and
// returns a csv.Writer plus a close function flushing all layers.
func openCSVWriter(path string) (*csv.Writer, func() error, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}

	if strings.HasSuffix(path, ".gz") {
		gz := gzip.NewWriter(f)
		w := csv.NewWriter(gz)
		return w, func() error {
			w.Flush()
			if err := gz.Close(); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		}, nil
	}

	w := csv.NewWriter(f)
	return w, func() error {
		w.Flush()
		return f.Close()
	}, nil
}

func columnIndex(header []string, required ...string) (map[string]int, error) {
	col := make(map[string]int, len(required))
	for _, name := range required {
		i, ok := indexOf(header, name)
		if !ok {
			return nil, fmt.Errorf("missing column %s", name)
		}
		col[name] = i
	}
	return col, nil
}

func indexOf(header []string, name string) (int, bool) {
	for i, h := range header {
		if h == name {
			return i, true
		}
	}
	return 0, false
}

func parseNullableFloat(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func formatNullableFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
