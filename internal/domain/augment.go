package domain

import (
	"time"
)

// AugmentReport records the outcome of the temporal join.
type AugmentReport struct {
	Input        int       `json:"input"`
	InYear       int       `json:"in_year"`
	Matched      int       `json:"matched"`
	MatchRate    float64   `json:"match_rate"`
	UsedAllYears bool      `json:"used_all_years"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// AugmentWithObservations left-joins each request to the hourly observation
// series by rounding both sides to the nearest hour. Request and observation
// clocks are not synchronized to the minute, hence nearest-hour rather than
// exact matching. The series is hour-unique, so a request joins at most one
// observation; requests with no same-hour observation keep nil wind fields.
//
// Requests are first restricted to the observation year. If that empties the
// set, the unrestricted set is used instead so the stage still produces
// output on sparse inputs.
func AugmentWithObservations(requests []ServiceRequest, observations []Observation, year int) ([]ServiceRequest, AugmentReport) {
	report := AugmentReport{Input: len(requests)}

	parsed := make([]ServiceRequest, 0, len(requests))
	for _, req := range requests {
		if req.CreatedAt.IsZero() {
			if t, err := ParseCreationTime(req.CreationTimestamp); err == nil {
				req.CreatedAt = t
			}
		}
		parsed = append(parsed, req)
	}

	inYear := make([]ServiceRequest, 0, len(parsed))
	for _, req := range parsed {
		if req.CreatedAt.Year() == year {
			inYear = append(inYear, req)
		}
	}
	if len(inYear) == 0 {
		inYear = parsed
		report.UsedAllYears = true
	}
	report.InYear = len(inYear)

	byHour := make(map[time.Time]Observation, len(observations))
	for _, obs := range observations {
		byHour[obs.Timestamp.Round(time.Hour)] = obs
	}

	out := make([]ServiceRequest, len(inYear))
	for i, req := range inYear {
		out[i] = req
		if req.CreatedAt.IsZero() {
			continue
		}
		if obs, ok := byHour[req.CreatedAt.Round(time.Hour)]; ok {
			out[i].WindDirection = Float64Ptr(obs.Direction)
			out[i].WindSpeed = Float64Ptr(obs.Speed)
			report.Matched++
		}
	}

	if report.InYear > 0 {
		report.MatchRate = float64(report.Matched) / float64(report.InYear)
	}
	report.GeneratedAt = clock.Now()
	return out, report
}
