package domain

import (
	"time"
)

// ServiceRequest is a single municipal service request as it moves through
// the pipeline. Latitude and longitude are pointers because a large share of
// upstream records carry no coordinates at all.
type ServiceRequest struct {
	NotificationNumber string   `json:"notification_number"`
	ReferenceNumber    string   `json:"reference_number"`
	CreationTimestamp  string   `json:"creation_timestamp"` // raw ISO-8601 string from the source table
	RequestType        string   `json:"request_type"`
	Latitude           *float64 `json:"latitude"`
	Longitude          *float64 `json:"longitude"`

	// HexIndex is the resolution-8 H3 cell assigned by the spatial join.
	// Zero is the reserved sentinel for "no valid spatial assignment" and is
	// never a real cell index.
	HexIndex uint64 `json:"h3_level8_index"`

	// CreatedAt is CreationTimestamp parsed and stripped of its UTC offset.
	// Requests and observations are compared in naive local time.
	CreatedAt time.Time `json:"-"`

	// DistanceKM is the equirectangular distance to the reference point,
	// set by the proximity filter.
	DistanceKM *float64 `json:"distance_km,omitempty"`

	// WindDirection and WindSpeed come from the hourly observation joined in
	// stage 3. Nil when no observation exists for the request's hour.
	WindDirection *float64 `json:"wind_direction,omitempty"`
	WindSpeed     *float64 `json:"wind_speed,omitempty"`
}

// HasCoordinates reports whether both latitude and longitude are present.
func (r ServiceRequest) HasCoordinates() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// Observation is one hour-aligned wind measurement from the air quality
// station series.
type Observation struct {
	Timestamp time.Time `json:"timestamp"`
	Direction float64   `json:"wind_direction"` // degrees, circular 0-360
	Speed     float64   `json:"wind_speed"`     // km/h, non-negative
}

// AnonymizedRecord is the reduced-schema row safe for external release.
// Location is generalized to a cell centroid, time to a 6-hour window, and
// all identifying columns are gone.
type AnonymizedRecord struct {
	RequestType   string    `json:"request_type"`
	Latitude      *float64  `json:"latitude"`  // centroid of the containing resolution-8 cell
	Longitude     *float64  `json:"longitude"` // centroid of the containing resolution-8 cell
	Window        time.Time `json:"creation_window"`
	WindDirection *float64  `json:"wind_direction,omitempty"`
	WindSpeed     *float64  `json:"wind_speed,omitempty"`
}

// CellSet is the authoritative universe of valid resolution-8 cell indexes
// for the region of interest. Any computed index outside the set is treated
// as out-of-region even when geometrically plausible.
type CellSet map[uint64]struct{}

// NewCellSet builds a CellSet from a list of cell indexes.
func NewCellSet(indexes []uint64) CellSet {
	s := make(CellSet, len(indexes))
	for _, idx := range indexes {
		s[idx] = struct{}{}
	}
	return s
}

// Contains reports whether idx is a member of the reference set.
func (s CellSet) Contains(idx uint64) bool {
	_, ok := s[idx]
	return ok
}

// Len returns the number of cells in the set.
func (s CellSet) Len() int { return len(s) }

// creationTimeLayouts are tried in order when parsing source timestamps.
// The upstream export uses RFC 3339 with a +02:00 offset; older extracts use
// a space separator.
var creationTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05-07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseCreationTime parses a source creation timestamp and drops the UTC
// offset, keeping the wall-clock reading. Observation timestamps carry no
// offset, so both sides of the temporal join use naive local time.
func ParseCreationTime(s string) (time.Time, error) {
	var t time.Time
	var err error
	for _, layout := range creationTimeLayouts {
		t, err = time.Parse(layout, s)
		if err == nil {
			return stripOffset(t), nil
		}
	}
	return time.Time{}, err
}

// stripOffset rebuilds t with the same wall-clock fields in UTC, discarding
// whatever zone the source string carried.
func stripOffset(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// Float64Ptr returns a pointer to v. Convenience for nullable columns.
func Float64Ptr(v float64) *float64 { return &v }
