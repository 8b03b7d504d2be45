package domain

import (
	"fmt"
	"math"
	"time"
)

// kmPerDegree is the meridian arc length of one degree of latitude.
// Longitude degrees are scaled by cos(reference latitude) before the same
// constant is applied.
const kmPerDegree = 111.0

// FallbackRadiusKM is applied when the primary radius retains zero records,
// so the temporal join never runs on an empty table because of an overly
// aggressive first-pass radius.
const FallbackRadiusKM = 2.0

// Scenario is one travel-time assumption for the accessibility filter.
// Exactly one scenario in the table is selected at a time.
type Scenario struct {
	Name        string
	SpeedKMH    float64
	Description string
	Selected    bool
}

// RadiusKM is the distance covered in one minute at the scenario speed.
func (s Scenario) RadiusKM() float64 {
	return s.SpeedKMH / 60
}

// Scenarios returns the fixed accessibility scenario table. Service crews
// drive to request locations; 60 km/h models free-flow suburban conditions,
// 30 km/h the peak-hour alternative.
func Scenarios() []Scenario {
	return []Scenario{
		{
			Name:        "driving_no_traffic",
			SpeedKMH:    60,
			Description: "Driving without traffic congestion (60 km/h)",
			Selected:    true,
		},
		{
			Name:        "driving_moderate_traffic",
			SpeedKMH:    30,
			Description: "Driving in moderate traffic (30 km/h)",
			Selected:    false,
		},
	}
}

// ScenarioByName returns the named scenario, or the selected one when name
// is empty.
func ScenarioByName(name string) (Scenario, error) {
	for _, s := range Scenarios() {
		if name == "" && s.Selected {
			return s, nil
		}
		if s.Name == name {
			return s, nil
		}
	}
	return Scenario{}, fmt.Errorf("unknown scenario %q", name)
}

// FilterReport records the outcome of a proximity filter run.
type FilterReport struct {
	Scenario     string    `json:"scenario"`
	Input        int       `json:"input"`
	Measured     int       `json:"measured"` // records with coordinates
	Retained     int       `json:"retained"`
	RadiusKM     float64   `json:"radius_km"` // the radius that produced the retained set
	UsedFallback bool      `json:"used_fallback"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// FilterByProximity retains requests within the scenario's one-minute travel
// radius of the reference point. Records without coordinates are excluded
// before measuring. If the primary radius retains nothing, the fixed 2 km
// fallback radius is applied and that result is kept instead. Retained
// records carry their computed distance in DistanceKM.
func FilterByProximity(requests []ServiceRequest, ref Place, scenario Scenario) ([]ServiceRequest, FilterReport) {
	report := FilterReport{
		Scenario: scenario.Name,
		Input:    len(requests),
		RadiusKM: scenario.RadiusKM(),
	}

	measured := make([]ServiceRequest, 0, len(requests))
	for _, req := range requests {
		if !req.HasCoordinates() {
			continue
		}
		d := DistanceKM(*req.Latitude, *req.Longitude, ref.Latitude, ref.Longitude)
		req.DistanceKM = &d
		measured = append(measured, req)
	}
	report.Measured = len(measured)

	retained := within(measured, report.RadiusKM)
	if len(retained) == 0 {
		retained = within(measured, FallbackRadiusKM)
		report.RadiusKM = FallbackRadiusKM
		report.UsedFallback = true
	}

	report.Retained = len(retained)
	report.GeneratedAt = clock.Now()
	return retained, report
}

func within(requests []ServiceRequest, radiusKM float64) []ServiceRequest {
	kept := make([]ServiceRequest, 0, len(requests))
	for _, req := range requests {
		if *req.DistanceKM <= radiusKM {
			kept = append(kept, req)
		}
	}
	return kept
}

// DistanceKM computes the equirectangular-approximate distance between a
// point and the reference coordinate. The latitude delta scales by 111 km
// per degree; the longitude delta additionally scales by cos(reference
// latitude). Good to well under a percent at metro scale, which is all the
// one-minute radius needs.
func DistanceKM(lat, lon, refLat, refLon float64) float64 {
	dLat := (lat - refLat) * kmPerDegree
	dLon := (lon - refLon) * kmPerDegree * math.Cos(refLat*math.Pi/180)
	return math.Sqrt(dLat*dLat + dLon*dLon)
}
