package file

import (
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/service-request-etl/internal/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	h3 "github.com/uber/h3-go/v3"
)

const requestsCSV = `NOTIFICATION_NUMBER,reference_number,creation_timestamp,request_type,latitude,longitude,official_suburb
400539011,9112186129,2020-10-05T08:49:06+02:00,SEWER: BLOCKED/OVERFLOW,-33.92,18.64,BELLVILLE SOUTH
400539012,9112186130,2020-10-05T09:12:00+02:00,WATER: LEAK,,,
400539013,9112186131,2020-10-05T10:03:30+02:00,ROADS: POTHOLE,not-a-number,18.64,KUILS RIVER
`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func writeTempGzip(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func TestReadServiceRequests(t *testing.T) {
	t.Run("plain csv", func(t *testing.T) {
		path := writeTemp(t, "sr.csv", requestsCSV)

		reqs, err := ReadServiceRequests(path)

		require.NoError(t, err)
		require.Len(t, reqs, 3)

		assert.Equal(t, "400539011", reqs[0].NotificationNumber)
		assert.Equal(t, "SEWER: BLOCKED/OVERFLOW", reqs[0].RequestType)
		require.NotNil(t, reqs[0].Latitude)
		assert.Equal(t, -33.92, *reqs[0].Latitude)

		assert.Nil(t, reqs[1].Latitude, "empty coordinate becomes nil")
		assert.Nil(t, reqs[1].Longitude)

		assert.Nil(t, reqs[2].Latitude, "malformed coordinate becomes nil")
		require.NotNil(t, reqs[2].Longitude)
	})

	t.Run("gzip csv", func(t *testing.T) {
		path := writeTempGzip(t, "sr.csv.gz", requestsCSV)

		reqs, err := ReadServiceRequests(path)

		require.NoError(t, err)
		assert.Len(t, reqs, 3)
	})

	t.Run("missing required column", func(t *testing.T) {
		path := writeTemp(t, "bad.csv", "notification_number,latitude\n1,-33.9\n")

		_, err := ReadServiceRequests(path)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing column")
	})
}

func TestJoinedRoundTrip(t *testing.T) {
	lat, lon := -33.92, 18.64
	reqs := []domain.ServiceRequest{
		{
			NotificationNumber: "400539011",
			ReferenceNumber:    "9112186129",
			CreationTimestamp:  "2020-10-05T08:49:06+02:00",
			RequestType:        "SEWER: BLOCKED/OVERFLOW",
			Latitude:           &lat,
			Longitude:          &lon,
			HexIndex:           uint64(h3.FromGeo(h3.GeoCoord{Latitude: lat, Longitude: lon}, domain.HexResolution)),
		},
		{NotificationNumber: "400539012", CreationTimestamp: "2020-10-05T09:12:00+02:00", HexIndex: domain.SentinelHexIndex},
	}

	path := filepath.Join(t.TempDir(), "sr_hex.csv.gz")
	require.NoError(t, WriteJoined(path, reqs))

	got, err := ReadJoined(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	if diff := cmp.Diff(reqs, got, cmpopts.IgnoreFields(domain.ServiceRequest{}, "CreatedAt")); diff != "" {
		t.Errorf("joined table round-trip mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, domain.SentinelHexIndex, got[1].HexIndex)
}

func TestReadCellSet(t *testing.T) {
	idx := h3.FromGeo(h3.GeoCoord{Latitude: -33.92, Longitude: 18.64}, domain.HexResolution)
	coarse := h3.ToParent(idx, 7)

	t.Run("filters to target resolution", func(t *testing.T) {
		geojson := `{"type":"FeatureCollection","features":[
			{"type":"Feature","properties":{"index":"` + h3.ToString(idx) + `","resolution":8},"geometry":null},
			{"type":"Feature","properties":{"index":"` + h3.ToString(coarse) + `","resolution":7},"geometry":null}
		]}`
		path := writeTemp(t, "cells.geojson", geojson)

		cells, err := ReadCellSet(path)

		require.NoError(t, err)
		assert.Equal(t, 1, cells.Len())
		assert.True(t, cells.Contains(uint64(idx)))
		assert.False(t, cells.Contains(uint64(coarse)))
	})

	t.Run("no cells at target resolution", func(t *testing.T) {
		geojson := `{"type":"FeatureCollection","features":[
			{"type":"Feature","properties":{"index":"` + h3.ToString(coarse) + `","resolution":7},"geometry":null}
		]}`
		path := writeTemp(t, "cells.geojson", geojson)

		_, err := ReadCellSet(path)
		assert.Error(t, err)
	})

	t.Run("invalid index", func(t *testing.T) {
		path := writeTemp(t, "cells.geojson", `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{"index":"zzz","resolution":8},"geometry":null}]}`)

		_, err := ReadCellSet(path)
		assert.Error(t, err)
	})
}

func TestObservationsRoundTrip(t *testing.T) {
	obs := []domain.Observation{
		{Timestamp: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), Direction: 135.25, Speed: 15.5},
		{Timestamp: time.Date(2020, 1, 1, 1, 0, 0, 0, time.UTC), Direction: 310.0, Speed: 0},
	}

	path := filepath.Join(t.TempDir(), "wind.csv")
	require.NoError(t, WriteObservations(path, obs))

	got, err := ReadObservations(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, obs[0].Timestamp, got[0].Timestamp)
	assert.InDelta(t, obs[0].Direction, got[0].Direction, 1e-9)
	assert.InDelta(t, obs[1].Speed, got[1].Speed, 1e-9)
}

func TestWriteAnonymized(t *testing.T) {
	lat, lon := -33.921, 18.642
	dir, speed := 135.0, 12.5
	recs := []domain.AnonymizedRecord{
		{
			RequestType:   "SEWER: BLOCKED/OVERFLOW",
			Latitude:      &lat,
			Longitude:     &lon,
			Window:        time.Date(2020, 6, 15, 6, 0, 0, 0, time.UTC),
			WindDirection: &dir,
			WindSpeed:     &speed,
		},
		{RequestType: "WATER: LEAK"},
	}

	path := filepath.Join(t.TempDir(), "anon.csv")
	require.NoError(t, WriteAnonymized(path, recs))

	rows, header, err := readCSV(path)
	require.NoError(t, err)

	// Suppressed columns never reach the release header.
	for _, name := range domain.SuppressedColumns {
		assert.NotContains(t, header, name)
	}
	assert.Contains(t, header, "request_type")
	assert.Contains(t, header, "creation_window")

	require.Len(t, rows, 2)
	assert.Contains(t, rows[0], "2020-06-15 06:00:00")
	assert.Contains(t, rows[1], "", "nil fields render as empty cells")
}
