package database

import (
	"github.com/robalyx/warden/internal/database/service"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Service provides access to all business logic services.
type Service struct {
	ledger *service.LedgerService
	stats  *service.StatsService
}

// NewService creates a new service instance with all services.
func NewService(db *bun.DB, repository *Repository, logger *zap.Logger) *Service {
	return &Service{
		ledger: service.NewLedger(db, logger),
		stats:  service.NewStats(repository.Member(), repository.Strike(), repository.ModAction(), logger),
	}
}

// Ledger returns the strike ledger service.
func (s *Service) Ledger() *service.LedgerService {
	return s.ledger
}

// Stats returns the stats service.
func (s *Service) Stats() *service.StatsService {
	return s.stats
}
