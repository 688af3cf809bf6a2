package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bimakw/ergo-monitor/internal/domain/entities"
	"github.com/bimakw/ergo-monitor/internal/domain/repositories"
	"github.com/bimakw/ergo-monitor/internal/infrastructure/metrics"
)

// BalanceCache persists balance snapshots for readers outside the monitor
type BalanceCache interface {
	GetBalance(ctx context.Context, address string) (*entities.BalanceSnapshot, error)
	SetBalance(ctx context.Context, address string, snapshot *entities.BalanceSnapshot) error
}

// BalanceService rebuilds address balances from unspent outputs
type BalanceService struct {
	ledger  repositories.LedgerRepository
	cache   BalanceCache
	logger  *zap.Logger
	metrics *metrics.MonitorMetrics
	now     func() time.Time
}

// NewBalanceService creates a new balance service. cache may be nil.
func NewBalanceService(
	ledger repositories.LedgerRepository,
	cache BalanceCache,
	m *metrics.MonitorMetrics,
	logger *zap.Logger,
) *BalanceService {
	return &BalanceService{
		ledger:  ledger,
		cache:   cache,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// BuildSnapshot computes the full balance of an address
func (s *BalanceService) BuildSnapshot(ctx context.Context, address string) (*entities.BalanceSnapshot, error) {
	boxes, err := s.ledger.GetUnspentOutputs(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to get unspent outputs: %w", err)
	}

	var nanoErg int64
	snapshot := entities.NewBalanceSnapshot()
	for _, box := range boxes {
		nanoErg += box.Value.Int64()

		for _, asset := range box.Assets {
			if asset.TokenID == "" {
				continue
			}
			tb := snapshot.Tokens[asset.TokenID]
			tb.TokenID = asset.TokenID
			tb.Amount += asset.Amount.Int64()
			if tb.Name == "" {
				tb.Name = asset.Name
			}
			if tb.Decimals == nil && asset.Decimals != nil {
				d := *asset.Decimals
				tb.Decimals = &d
			}
			snapshot.Tokens[asset.TokenID] = tb
		}
	}

	snapshot.Erg = entities.NanoErgToErg(nanoErg)
	snapshot.UpdatedAt = s.now()
	return snapshot, nil
}

// Refresh rebuilds the balance of one entry. On failure the previous snapshot is kept.
func (s *BalanceService) Refresh(ctx context.Context, entry *AddressEntry) error {
	snapshot, err := s.BuildSnapshot(ctx, entry.Address())
	if err != nil {
		s.metrics.IncBalanceFailure()
		return err
	}

	entry.SetBalance(snapshot)

	if s.cache != nil {
		if err := s.cache.SetBalance(ctx, entry.Address(), snapshot); err != nil {
			s.logger.Warn("Failed to cache balance",
				zap.String("address", entry.Address()),
				zap.Error(err),
			)
		}
	}

	return nil
}

// CachedBalance returns the cached snapshot of an address, if a cache is configured
func (s *BalanceService) CachedBalance(ctx context.Context, address string) (*entities.BalanceSnapshot, error) {
	if s.cache == nil {
		return nil, fmt.Errorf("balance cache not configured")
	}
	return s.cache.GetBalance(ctx, address)
}
