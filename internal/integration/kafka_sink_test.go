//go:build integration

package integration_test

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	h3 "github.com/uber/h3-go/v3"

	fileadapter "github.com/couchcryptid/service-request-etl/internal/adapter/file"
	kafkaadapter "github.com/couchcryptid/service-request-etl/internal/adapter/kafka"
	"github.com/couchcryptid/service-request-etl/internal/adapter/nominatim"
	"github.com/couchcryptid/service-request-etl/internal/config"
	"github.com/couchcryptid/service-request-etl/internal/domain"
	"github.com/couchcryptid/service-request-etl/internal/observability"
	"github.com/couchcryptid/service-request-etl/internal/pipeline"
)

const testSinkTopic = "test-anonymized"

const (
	refLat = -33.9249
	refLon = 18.6519
)

// sinkMessage holds a deserialized message read from the sink topic.
type sinkMessage struct {
	Record  domain.AnonymizedRecord
	Raw     map[string]json.RawMessage
	Key     string
	Headers map[string]string
}

func readSink(ctx context.Context, t *testing.T, consumer *kafkago.Reader) sinkMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from sink topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var record domain.AnonymizedRecord
	require.NoError(t, json.Unmarshal(msg.Value, &record), "unmarshal sink message")
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(msg.Value, &raw))

	return sinkMessage{
		Record:  record,
		Raw:     raw,
		Key:     string(msg.Key),
		Headers: headers,
	}
}

// TestKafkaSinkPublish verifies that the sink writer round-trips anonymized
// records through Kafka without leaking suppressed fields.
func TestKafkaSinkPublish(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSinkTopic)

	records := []domain.AnonymizedRecord{
		{
			RequestType: "SEWER: BLOCKED",
			Latitude:    domain.Float64Ptr(refLat),
			Longitude:   domain.Float64Ptr(refLon),
			Window:      time.Date(2020, time.March, 14, 6, 0, 0, 0, time.UTC),
			WindSpeed:   domain.Float64Ptr(14.2),
		},
		{
			RequestType: "WATER: LEAK",
			Latitude:    domain.Float64Ptr(refLat + 0.01),
			Longitude:   domain.Float64Ptr(refLon + 0.01),
			Window:      time.Date(2020, time.March, 14, 12, 0, 0, 0, time.UTC),
		},
	}

	writer := kafkaadapter.NewWriter([]string{broker}, testSinkTopic, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	require.NoError(t, writer.PublishBatch(ctx, records))

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-sink-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	received := make([]sinkMessage, 0, len(records))
	for len(received) < len(records) {
		received = append(received, readSink(ctx, t, consumer))
	}

	byType := map[string]sinkMessage{}
	for _, sm := range received {
		byType[sm.Record.RequestType] = sm

		// Messages are unkeyed and must carry no identifying fields.
		assert.Empty(t, sm.Key)
		for _, suppressed := range domain.SuppressedColumns {
			assert.NotContains(t, sm.Raw, suppressed)
		}
		assert.NotEmpty(t, sm.Headers["request_type"])
		_, err := time.Parse(time.RFC3339, sm.Headers["creation_window"])
		assert.NoError(t, err, "creation_window header should be valid RFC3339")
	}

	sewer, ok := byType["SEWER: BLOCKED"]
	require.True(t, ok)
	require.NotNil(t, sewer.Record.WindSpeed)
	assert.Equal(t, 14.2, *sewer.Record.WindSpeed)
	assert.Equal(t, 6, sewer.Record.Window.Hour())

	water, ok := byType["WATER: LEAK"]
	require.True(t, ok)
	assert.Nil(t, water.Record.WindSpeed)
	assert.NotContains(t, water.Raw, "wind_speed")
}

// TestPipelineEndToEnd runs the whole pipeline against file fixtures, a stub
// geocoding server, and a real Kafka sink, then verifies the released
// dataset from both the output file and the sink topic.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSinkTopic)

	dir := t.TempDir()
	requestsPath := filepath.Join(dir, "sr.csv.gz")
	cellsPath := filepath.Join(dir, "cells.geojson")
	observationsPath := filepath.Join(dir, "wind.csv")
	writeFixtures(t, requestsPath, cellsPath, observationsPath)

	geocodeSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `[{"lat":"%f","lon":"%f","display_name":"Bellville South"}]`, refLat, refLon)
	}))
	t.Cleanup(geocodeSrv.Close)

	geocoder := nominatim.NewClient(geocodeSrv.URL, "service-request-etl-test/1.0", 5*time.Second, discardLogger())

	source := &fileadapter.Source{
		RequestsPath:     requestsPath,
		CellsPath:        cellsPath,
		ObservationsPath: observationsPath,
	}
	store := &fileadapter.Store{
		JoinedPath:     filepath.Join(dir, "joined.csv.gz"),
		AnonymizedPath: filepath.Join(dir, "anonymized.csv"),
	}

	writer := kafkaadapter.NewWriter([]string{broker}, testSinkTopic, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	p := pipeline.New(source, store, writer, geocoder, discardLogger(), observability.NewMetricsForTesting(), pipeline.Options{
		ReferencePlace:  "Bellville South, Cape Town, South Africa",
		ObservationYear: 2020,
		JoinPolicy:      config.PolicyWarn,
	})

	summary, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Anonymized)

	// The two nearby requests survive; the coordinate-less one is dropped by
	// the proximity filter.
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-e2e-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	for i := 0; i < summary.Anonymized; i++ {
		sm := readSink(ctx, t, consumer)
		assert.Zero(t, sm.Record.Window.Hour()%6)
		require.NotNil(t, sm.Record.Latitude)

		// Published coordinates must be cell centroids, not raw points.
		centroidLat, centroidLon := domain.CellCentroid(cellAt(*sm.Record.Latitude, *sm.Record.Longitude))
		assert.InDelta(t, centroidLat, *sm.Record.Latitude, 1e-9)
		assert.InDelta(t, centroidLon, *sm.Record.Longitude, 1e-9)
	}
}

func cellAt(lat, lon float64) uint64 {
	return uint64(h3.FromGeo(h3.GeoCoord{Latitude: lat, Longitude: lon}, domain.HexResolution))
}

// writeFixtures lays down a three-record request table (two near the
// reference point, one without coordinates), the matching cell universe, and
// an hourly observation series covering the request hours.
func writeFixtures(t *testing.T, requestsPath, cellsPath, observationsPath string) {
	t.Helper()

	requestsCSV := fmt.Sprintf(
		"notification_number,reference_number,creation_timestamp,request_type,latitude,longitude\n"+
			"N1,R1,2020-03-14T08:17:00+02:00,SEWER: BLOCKED,%f,%f\n"+
			"N2,R2,2020-03-14T14:43:00+02:00,WATER: LEAK,%f,%f\n"+
			"N3,R3,2020-03-14T09:00:00+02:00,ROADS: POTHOLE,,\n",
		refLat+0.001, refLon+0.001, refLat-0.001, refLon-0.001,
	)
	writeGzip(t, requestsPath, requestsCSV)

	cells := map[uint64]struct{}{
		cellAt(refLat+0.001, refLon+0.001): {},
		cellAt(refLat-0.001, refLon-0.001): {},
	}
	features := ""
	for idx := range cells {
		if features != "" {
			features += ","
		}
		features += fmt.Sprintf(`{"properties":{"index":"%s","resolution":8}}`, h3.ToString(h3.H3Index(idx)))
	}
	require.NoError(t, os.WriteFile(cellsPath, []byte(`{"features":[`+features+`]}`), 0o600))

	observationsCSV := "timestamp,wind_direction,wind_speed\n" +
		"2020-03-14 08:00:00,135.00,14.00\n" +
		"2020-03-14 15:00:00,310.00,9.00\n"
	require.NoError(t, os.WriteFile(observationsPath, []byte(observationsCSV), 0o600))
}

func writeGzip(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := gzip.NewWriter(f)
	_, err = zw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}
