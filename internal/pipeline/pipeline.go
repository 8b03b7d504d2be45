package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/service-request-etl/internal/config"
	"github.com/couchcryptid/service-request-etl/internal/domain"
	"github.com/couchcryptid/service-request-etl/internal/observability"
)

// Source loads the materialized input tables for a run.
type Source interface {
	ServiceRequests(ctx context.Context) ([]domain.ServiceRequest, error)
	ReferenceCells(ctx context.Context) (domain.CellSet, error)
	Observations(ctx context.Context) ([]domain.Observation, error)
}

// Store persists a run's output tables.
type Store interface {
	StoreJoined(ctx context.Context, requests []domain.ServiceRequest) error
	StoreAnonymized(ctx context.Context, records []domain.AnonymizedRecord) error
}

// Publisher pushes the anonymized dataset to downstream consumers.
type Publisher interface {
	PublishBatch(ctx context.Context, records []domain.AnonymizedRecord) error
}

// ErrJoinThresholdBreached is returned when the spatial join failure rate
// exceeds its acceptance threshold and the fail-fast policy is active.
var ErrJoinThresholdBreached = errors.New("spatial join failure rate exceeds acceptance threshold")

// Options are the per-run parameters of the pipeline.
type Options struct {
	ReferencePlace  string
	Scenario        string // empty selects the default scenario
	ObservationYear int
	JoinPolicy      string // config.PolicyWarn or config.PolicyFail
}

// RunSummary aggregates the structured reports of one complete run.
type RunSummary struct {
	Join       domain.JoinReport    `json:"join"`
	Filter     domain.FilterReport  `json:"filter"`
	Augment    domain.AugmentReport `json:"augment"`
	Anonymized int                  `json:"anonymized"`
	Reference  domain.Place         `json:"reference"`
	Degraded   bool                 `json:"degraded"`
}

// Pipeline runs the four privacy stages over one input table per call.
type Pipeline struct {
	source    Source
	store     Store
	publisher Publisher // nil disables the sink
	geocoder  domain.Geocoder
	logger    *slog.Logger
	metrics   *observability.Metrics
	opts      Options
	ready     atomic.Bool
}

// New creates a Pipeline with the given collaborators. Pass a nil publisher
// to disable the Kafka sink.
func New(source Source, store Store, publisher Publisher, geocoder domain.Geocoder, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Pipeline {
	return &Pipeline{
		source:    source,
		store:     store,
		publisher: publisher,
		geocoder:  geocoder,
		logger:    logger,
		metrics:   metrics,
		opts:      opts,
	}
}

// CheckReadiness returns nil once the pipeline has completed at least one
// run, or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed a run yet")
	}
	return nil
}

// Run executes stages 1→4 over the source tables and persists the result.
// Data-quality problems are reported and logged but only the fail-fast join
// policy and the missing reference point stop a run.
func (p *Pipeline) Run(ctx context.Context) (*RunSummary, error) {
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	summary, err := p.run(ctx)
	if err != nil {
		p.metrics.PipelineRuns.WithLabelValues("error").Inc()
		return nil, err
	}
	p.metrics.PipelineRuns.WithLabelValues("success").Inc()
	p.ready.Store(true)
	return summary, nil
}

func (p *Pipeline) run(ctx context.Context) (*RunSummary, error) {
	scenario, err := domain.ScenarioByName(p.opts.Scenario)
	if err != nil {
		return nil, err
	}

	requests, err := p.source.ServiceRequests(ctx)
	if err != nil {
		return nil, fmt.Errorf("load service requests: %w", err)
	}
	cells, err := p.source.ReferenceCells(ctx)
	if err != nil {
		return nil, fmt.Errorf("load reference cells: %w", err)
	}
	observations, err := p.source.Observations(ctx)
	if err != nil {
		return nil, fmt.Errorf("load observations: %w", err)
	}
	p.logger.Info("inputs loaded",
		"requests", len(requests),
		"reference_cells", cells.Len(),
		"observations", len(observations),
	)

	summary := &RunSummary{}

	// Stage 1: spatial index join.
	joined, joinReport := p.joinStage(requests, cells)
	summary.Join = joinReport
	summary.Degraded = joinReport.Breached
	if joinReport.Breached && p.opts.JoinPolicy == config.PolicyFail {
		return nil, fmt.Errorf("%w: rate %.2f threshold %.2f",
			ErrJoinThresholdBreached, joinReport.FailureRate, joinReport.Threshold)
	}
	if err := p.store.StoreJoined(ctx, joined); err != nil {
		return nil, fmt.Errorf("store joined table: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Stage 2: proximity filter around the geocoded reference point.
	reference, err := p.resolveReference(ctx)
	if err != nil {
		return nil, err
	}
	summary.Reference = reference

	filtered, filterReport := p.filterStage(joined, reference, scenario)
	summary.Filter = filterReport
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Stage 3: hourly observation join.
	augmented, augmentReport := p.augmentStage(filtered, observations)
	summary.Augment = augmentReport
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Stage 4: anonymization.
	anonymized := p.anonymizeStage(augmented)
	summary.Anonymized = len(anonymized)

	if err := p.store.StoreAnonymized(ctx, anonymized); err != nil {
		return nil, fmt.Errorf("store anonymized table: %w", err)
	}

	if p.publisher != nil {
		if err := p.publisher.PublishBatch(ctx, anonymized); err != nil {
			return nil, fmt.Errorf("publish anonymized batch: %w", err)
		}
		p.metrics.SinkMessages.Add(float64(len(anonymized)))
		p.logger.Info("anonymized batch published", "records", len(anonymized))
	}

	return summary, nil
}

func (p *Pipeline) joinStage(requests []domain.ServiceRequest, cells domain.CellSet) ([]domain.ServiceRequest, domain.JoinReport) {
	start := time.Now()
	joined, report := domain.JoinHexIndexes(requests, cells)
	p.observeStage("join", len(requests), len(joined), start)

	p.metrics.JoinFailures.Add(float64(report.Failed))
	p.metrics.JoinFailureRate.Set(report.FailureRate)
	p.metrics.JoinThreshold.Set(report.Threshold)

	if report.Breached {
		p.logger.Warn("join failure rate exceeds acceptance threshold",
			"failure_rate", report.FailureRate,
			"threshold", report.Threshold,
			"missing_rate", report.MissingRate,
			"failed", report.Failed,
			"total", report.Total,
		)
	} else {
		p.logger.Info("spatial join complete",
			"succeeded", report.Succeeded,
			"failed", report.Failed,
			"failure_rate", report.FailureRate,
			"threshold", report.Threshold,
		)
	}
	return joined, report
}

func (p *Pipeline) resolveReference(ctx context.Context) (domain.Place, error) {
	start := time.Now()
	reference, err := domain.ResolveReferencePoint(ctx, p.geocoder, p.opts.ReferencePlace)
	p.metrics.GeocodeDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		outcome := "error"
		if errors.Is(err, domain.ErrPlaceNotFound) {
			outcome = "not_found"
		}
		p.metrics.GeocodeRequests.WithLabelValues(outcome).Inc()
		p.logger.Error("reference point resolution failed", "place", p.opts.ReferencePlace, "error", err)
		return domain.Place{}, err
	}
	p.metrics.GeocodeRequests.WithLabelValues("success").Inc()
	p.logger.Info("reference point resolved",
		"place", p.opts.ReferencePlace,
		"lat", reference.Latitude,
		"lon", reference.Longitude,
	)
	return reference, nil
}

func (p *Pipeline) filterStage(requests []domain.ServiceRequest, reference domain.Place, scenario domain.Scenario) ([]domain.ServiceRequest, domain.FilterReport) {
	start := time.Now()
	filtered, report := domain.FilterByProximity(requests, reference, scenario)
	p.observeStage("filter", len(requests), len(filtered), start)

	if report.UsedFallback {
		p.logger.Warn("primary radius retained nothing, fallback applied",
			"scenario", report.Scenario,
			"fallback_radius_km", report.RadiusKM,
			"retained", report.Retained,
		)
	} else {
		p.logger.Info("proximity filter complete",
			"scenario", report.Scenario,
			"radius_km", report.RadiusKM,
			"retained", report.Retained,
		)
	}
	return filtered, report
}

func (p *Pipeline) augmentStage(requests []domain.ServiceRequest, observations []domain.Observation) ([]domain.ServiceRequest, domain.AugmentReport) {
	start := time.Now()
	augmented, report := domain.AugmentWithObservations(requests, observations, p.opts.ObservationYear)
	p.observeStage("augment", len(requests), len(augmented), start)

	p.logger.Info("temporal augmentation complete",
		"matched", report.Matched,
		"match_rate", report.MatchRate,
		"used_all_years", report.UsedAllYears,
	)
	return augmented, report
}

func (p *Pipeline) anonymizeStage(requests []domain.ServiceRequest) []domain.AnonymizedRecord {
	start := time.Now()
	anonymized := domain.Anonymize(requests)
	p.observeStage("anonymize", len(requests), len(anonymized), start)

	p.logger.Info("anonymization complete", "records", len(anonymized))
	return anonymized
}

func (p *Pipeline) observeStage(stage string, in, out int, start time.Time) {
	p.metrics.RecordsIn.WithLabelValues(stage).Add(float64(in))
	p.metrics.RecordsOut.WithLabelValues(stage).Add(float64(out))
	p.metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
