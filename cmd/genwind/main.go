// Command genwind generates a deterministic hourly wind observation series
// for one calendar year, in the CSV layout the pipeline's temporal join
// expects. It stands in for the air quality station export when the real
// series is unavailable.
//
// Usage:
//
//	go run ./cmd/genwind -year 2020 -out data/wind_2020.csv
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/couchcryptid/service-request-etl/internal/adapter/file"
	"github.com/couchcryptid/service-request-etl/internal/domain"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	year := flag.Int("year", 2020, "calendar year to generate")
	out := flag.String("out", "", "output CSV path")
	seed := flag.Int64("seed", 1, "random seed, fixed for reproducible fixtures")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	observations := generate(*year, *seed)
	if err := file.WriteObservations(*out, observations); err != nil {
		return fmt.Errorf("writing observation series: %w", err)
	}

	log.Printf("wrote %d hourly observations for %d: %s", len(observations), *year, *out)
	return nil
}

// generate produces one observation per hour of the year. Cape Town's wind
// regime is bimodal: the summer south-easter and the winter north-wester.
// Jitter around the seasonal base keeps the series realistic without losing
// determinism.
func generate(year int, seed int64) []domain.Observation {
	rng := rand.New(rand.NewSource(seed))

	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(1, 0, 0)

	var observations []domain.Observation
	for ts := start; ts.Before(end); ts = ts.Add(time.Hour) {
		baseDir, baseSpeed := seasonalBase(ts.Month())

		dir := baseDir + rng.NormFloat64()*20
		for dir < 0 {
			dir += 360
		}
		for dir >= 360 {
			dir -= 360
		}

		speed := baseSpeed + rng.NormFloat64()*4
		if speed < 0 {
			speed = 0
		}

		observations = append(observations, domain.Observation{
			Timestamp: ts,
			Direction: dir,
			Speed:     speed,
		})
	}
	return observations
}

// seasonalBase returns the prevailing direction and mean speed for a month.
// November through March is south-easter season; the rest of the year the
// north-wester dominates.
func seasonalBase(m time.Month) (dirDegrees, speedKMH float64) {
	switch m {
	case time.November, time.December, time.January, time.February, time.March:
		return 135, 15
	default:
		return 315, 10
	}
}
