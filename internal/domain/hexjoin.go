package domain

import (
	"time"

	h3 "github.com/uber/h3-go/v3"
)

// HexResolution is the H3 resolution used for both the spatial join and the
// anonymization step. The two uses are independent; they just happen to want
// the same ~460m cell size.
const HexResolution = 8

// SentinelHexIndex marks a record with no valid spatial assignment.
const SentinelHexIndex uint64 = 0

// Coarse bounding box for the Cape Town metro. A cheap pre-filter: points
// outside it are never indexed, saving the H3 computation and keeping
// obviously bogus coordinates out of the reference-set lookup.
const (
	boundsLatMin = -35.0
	boundsLatMax = -33.0
	boundsLonMin = 17.5
	boundsLonMax = 19.5
)

// Threshold policy bounds. The acceptance threshold is derived from the
// batch's own missing-coordinate rate plus a 5% buffer for geographic edge
// cases, clamped to [0.15, 0.35].
const (
	thresholdBuffer = 0.05
	thresholdFloor  = 0.15
	thresholdCeil   = 0.35
)

// JoinReport is the structured quality diagnostic for a spatial join run.
// A breached threshold is a soft signal; the caller decides whether to fail
// the run or continue with degraded data.
type JoinReport struct {
	Total         int       `json:"total"`
	Succeeded     int       `json:"succeeded"`
	Failed        int       `json:"failed"`
	MissingCoords int       `json:"missing_coords"`
	MissingRate   float64   `json:"missing_rate"`
	FailureRate   float64   `json:"failure_rate"`
	Threshold     float64   `json:"threshold"`
	Breached      bool      `json:"breached"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// JoinHexIndexes assigns each service request its resolution-8 H3 cell,
// validated against the reference cell set. Records with missing
// coordinates, coordinates outside the metro bounding box, or a computed
// cell outside the reference set receive the sentinel index and count as
// failed. The input slice is not modified.
func JoinHexIndexes(requests []ServiceRequest, cells CellSet) ([]ServiceRequest, JoinReport) {
	out := make([]ServiceRequest, len(requests))
	report := JoinReport{Total: len(requests)}

	for i, req := range requests {
		out[i] = req
		idx, ok := assignHexIndex(req, cells)
		out[i].HexIndex = idx
		if ok {
			report.Succeeded++
		} else {
			report.Failed++
		}
		if !req.HasCoordinates() {
			report.MissingCoords++
		}
	}

	if report.Total > 0 {
		report.MissingRate = float64(report.MissingCoords) / float64(report.Total)
		report.FailureRate = float64(report.Failed) / float64(report.Total)
	}
	report.Threshold = AcceptanceThreshold(report.MissingRate)
	report.Breached = report.FailureRate > report.Threshold
	report.GeneratedAt = clock.Now()

	return out, report
}

// assignHexIndex computes the validated cell for one request. Returns the
// sentinel and false on any of the three failure paths.
func assignHexIndex(req ServiceRequest, cells CellSet) (uint64, bool) {
	if !req.HasCoordinates() {
		return SentinelHexIndex, false
	}

	lat, lon := *req.Latitude, *req.Longitude
	if !InBounds(lat, lon) {
		return SentinelHexIndex, false
	}

	idx := uint64(h3.FromGeo(h3.GeoCoord{Latitude: lat, Longitude: lon}, HexResolution))
	if !cells.Contains(idx) {
		// Geometrically indexable but outside the authoritative region.
		return SentinelHexIndex, false
	}
	return idx, true
}

// InBounds reports whether a coordinate falls inside the coarse metro
// bounding box.
func InBounds(lat, lon float64) bool {
	return lat >= boundsLatMin && lat <= boundsLatMax &&
		lon >= boundsLonMin && lon <= boundsLonMax
}

// AcceptanceThreshold derives the failure-rate threshold from the batch's
// missing-coordinate rate: missingRate + 0.05, clamped to [0.15, 0.35].
// Coordinate quality varies per batch, so the threshold follows the data
// instead of being fixed.
func AcceptanceThreshold(missingRate float64) float64 {
	t := missingRate + thresholdBuffer
	if t < thresholdFloor {
		return thresholdFloor
	}
	if t > thresholdCeil {
		return thresholdCeil
	}
	return t
}
