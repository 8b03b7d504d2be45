package file

import (
	"context"

	"github.com/couchcryptid/service-request-etl/internal/domain"
)

// Source adapts the on-disk input tables to the pipeline's loader
// interfaces.
type Source struct {
	RequestsPath     string
	CellsPath        string
	ObservationsPath string
}

func (s *Source) ServiceRequests(_ context.Context) ([]domain.ServiceRequest, error) {
	return ReadServiceRequests(s.RequestsPath)
}

func (s *Source) ReferenceCells(_ context.Context) (domain.CellSet, error) {
	return ReadCellSet(s.CellsPath)
}

func (s *Source) Observations(_ context.Context) ([]domain.Observation, error) {
	return ReadObservations(s.ObservationsPath)
}

// Store adapts the on-disk output tables to the pipeline's writer
// interface.
type Store struct {
	JoinedPath     string
	AnonymizedPath string
}

func (s *Store) StoreJoined(_ context.Context, requests []domain.ServiceRequest) error {
	return WriteJoined(s.JoinedPath, requests)
}

func (s *Store) StoreAnonymized(_ context.Context, records []domain.AnonymizedRecord) error {
	return WriteAnonymized(s.AnonymizedPath, records)
}
