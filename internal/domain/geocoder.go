package domain

import (
	"context"
	"errors"
	"fmt"
)

// ErrPlaceNotFound is returned when the geocoding provider has no match for
// a place name.
var ErrPlaceNotFound = errors.New("place not found")

// Place is a resolved geographic reference point.
type Place struct {
	Latitude    float64
	Longitude   float64
	DisplayName string
}

// Geocoder resolves a free-text place name to a single best-match
// coordinate.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (Place, error)
}

// ResolveReferencePoint performs the one geocode call the pipeline makes per
// run. Unlike the per-record quality failures elsewhere in the pipeline,
// this is a hard precondition: the proximity filter cannot run without a
// reference point, so any failure is escalated.
func ResolveReferencePoint(ctx context.Context, geocoder Geocoder, query string) (Place, error) {
	place, err := geocoder.Geocode(ctx, query)
	if err != nil {
		return Place{}, fmt.Errorf("resolve reference point %q: %w", query, err)
	}
	return place, nil
}
