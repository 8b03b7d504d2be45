package domain

import (
	"time"

	h3 "github.com/uber/h3-go/v3"
)

// windowHours is the width of the anonymized time bucket. Flooring to a
// 6-hour window leaves the hour component in {0, 6, 12, 18}.
const windowHours = 6

// SuppressedColumns is the fixed list of column names removed from the
// released dataset: unique identifiers, exact timestamps, internal join
// keys, and the distance-to-reference value. The list is intersected with
// the columns actually present; absence is not an error.
var SuppressedColumns = []string{
	"notification_number",
	"reference_number",
	"creation_timestamp",
	"creation_datetime",
	"join_datetime",
	"distance_km",
}

// Anonymize produces the privacy-reduced dataset. Per record, independently:
// location is generalized to the centroid of its resolution-8 cell, the
// creation time is floored to a 6-hour window, and identifying fields are
// dropped by virtue of the reduced output schema.
//
// The cell is recomputed from the original coordinate rather than reused
// from the spatial join: the join's sentinel marks out-of-region points,
// but generalization is best-effort and should blur any coordinate it can.
func Anonymize(requests []ServiceRequest) []AnonymizedRecord {
	out := make([]AnonymizedRecord, len(requests))
	for i, req := range requests {
		rec := AnonymizedRecord{
			RequestType:   req.RequestType,
			Window:        AnonymizeTimestamp(req.CreatedAt),
			WindDirection: req.WindDirection,
			WindSpeed:     req.WindSpeed,
		}
		if req.HasCoordinates() {
			lat, lon := GeneralizeCoordinate(*req.Latitude, *req.Longitude)
			rec.Latitude = &lat
			rec.Longitude = &lon
		}
		out[i] = rec
	}
	return out
}

// GeneralizeCoordinate snaps a point to the centroid of its resolution-8 H3
// cell, reducing location precision to roughly 500 m.
func GeneralizeCoordinate(lat, lon float64) (float64, float64) {
	cell := h3.FromGeo(h3.GeoCoord{Latitude: lat, Longitude: lon}, HexResolution)
	centroid := h3.ToGeo(cell)
	return centroid.Latitude, centroid.Longitude
}

// CellCentroid returns the centroid of a cell index. Used when the caller
// already holds a validated index.
func CellCentroid(idx uint64) (float64, float64) {
	centroid := h3.ToGeo(h3.H3Index(idx))
	return centroid.Latitude, centroid.Longitude
}

// AnonymizeTimestamp floors the hour to the nearest multiple of 6 and zeroes
// everything below it. Idempotent; a zero input stays zero.
func AnonymizeTimestamp(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	hour := (t.Hour() / windowHours) * windowHours
	return time.Date(t.Year(), t.Month(), t.Day(), hour, 0, 0, 0, t.Location())
}
