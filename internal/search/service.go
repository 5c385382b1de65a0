package search

import (
	"context"

	"go.uber.org/zap"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili  *Meili
	pgfts  *PgFTS
	logger *zap.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{meili: meili, pgfts: pgfts, logger: logger}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.Warn("meilisearch error, falling back to pgfts", zap.Error(err))
	}

	results, total, err := s.pgfts.Search(ctx, q)
	if err != nil {
		s.logger.Error("pgfts search failed", zap.Error(err))
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// ReindexAllFromPG reloads every record from Postgres and pushes it into
// Meilisearch. A no-op when Meilisearch is absent or down; the PG fallback
// needs no index maintenance.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}

	divisions, err := s.pgfts.LoadDivisionRecords(ctx)
	if err != nil {
		s.logger.Error("load division records", zap.Error(err))
		return
	}
	programs, err := s.pgfts.LoadProgramRecords(ctx)
	if err != nil {
		s.logger.Error("load program records", zap.Error(err))
		return
	}
	payees, err := s.pgfts.LoadPayeeRecords(ctx)
	if err != nil {
		s.logger.Error("load payee records", zap.Error(err))
		return
	}

	if err := s.meili.IndexDivisions(divisions); err != nil {
		s.logger.Warn("index divisions", zap.Error(err))
	}
	if err := s.meili.IndexPrograms(programs); err != nil {
		s.logger.Warn("index programs", zap.Error(err))
	}
	if err := s.meili.IndexPayees(payees); err != nil {
		s.logger.Warn("index payees", zap.Error(err))
	}
}

func nonNil(results []Result) []Result {
	if results == nil {
		return []Result{}
	}
	return results
}
