package services

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bimakw/ergo-monitor/internal/application/notification"
	"github.com/bimakw/ergo-monitor/internal/config"
	"github.com/bimakw/ergo-monitor/internal/domain/entities"
	"github.com/bimakw/ergo-monitor/internal/domain/repositories"
	"github.com/bimakw/ergo-monitor/internal/infrastructure/ergo"
	"github.com/bimakw/ergo-monitor/internal/infrastructure/metrics"
)

// DustThreshold is the smallest absolute ERG change worth a notification
var DustThreshold = decimal.New(1, -4)

// healthyTickWindow is how many poll intervals may pass without a completed tick
const healthyTickWindow = 3

// EventQueue receives reportable transactions for analytics
type EventQueue interface {
	Enqueue(address string, tx *entities.Transaction) bool
}

// MonitorService polls watched addresses and dispatches new transactions
type MonitorService struct {
	ledger     repositories.LedgerRepository
	balances   *BalanceService
	handlers   []notification.Handler
	events     EventQueue
	config     config.MonitorConfig
	feeAddress string
	logger     *zap.Logger
	metrics    *metrics.MonitorMetrics

	state    *monitorState
	tickMu   sync.Mutex
	now      func() time.Time
	location *time.Location
}

// monitorState holds everything the monitor knows about its addresses
type monitorState struct {
	mu         sync.RWMutex
	entries    map[string]*AddressEntry
	order      []string
	lastReport string
	startedAt  time.Time
	lastTick   time.Time
}

// NewMonitorService creates a new monitor service. events may be nil.
func NewMonitorService(
	ledger repositories.LedgerRepository,
	balances *BalanceService,
	handlers []notification.Handler,
	events EventQueue,
	cfg config.MonitorConfig,
	feeAddress string,
	m *metrics.MonitorMetrics,
	logger *zap.Logger,
) *MonitorService {
	return &MonitorService{
		ledger:     ledger,
		balances:   balances,
		handlers:   handlers,
		events:     events,
		config:     cfg,
		feeAddress: feeAddress,
		logger:     logger,
		metrics:    m,
		state:      &monitorState{entries: make(map[string]*AddressEntry)},
		now:        time.Now,
		location:   time.Local,
	}
}

// AddAddress registers an address for monitoring
func (s *MonitorService) AddAddress(w entities.WatchedAddress) error {
	if err := w.Validate(); err != nil {
		return err
	}

	s.state.mu.Lock()
	defer s.state.mu.Unlock()

	if _, exists := s.state.entries[w.Address]; exists {
		return fmt.Errorf("address %s is already watched", w.Address)
	}

	entry := newAddressEntry(w, s.now())
	s.state.entries[w.Address] = entry
	s.state.order = append(s.state.order, w.Address)
	s.metrics.SetWatched(len(s.state.order))

	s.logger.Info("Watching address",
		zap.String("address", w.Address),
		zap.String("nickname", entry.nickname),
		zap.Time("last_check", entry.checkpoint.LastCheck),
		zap.Int("destinations", len(w.Destinations)),
	)
	return nil
}

// LoadAddresses registers every address returned by the registry
func (s *MonitorService) LoadAddresses(ctx context.Context, registry repositories.AddressRegistry) error {
	watched, err := registry.LoadWatched(ctx)
	if err != nil {
		return fmt.Errorf("failed to load watched addresses: %w", err)
	}
	for _, w := range watched {
		if err := s.AddAddress(w); err != nil {
			return fmt.Errorf("failed to add address %s: %w", w.Address, err)
		}
	}
	return nil
}

// Addresses returns views of all watched addresses in registration order
func (s *MonitorService) Addresses() []entities.AddressView {
	entries := s.state.snapshot()
	views := make([]entities.AddressView, len(entries))
	for i, e := range entries {
		views[i] = e.View()
	}
	return views
}

// Address returns the view of one watched address
func (s *MonitorService) Address(address string) (entities.AddressView, bool) {
	s.state.mu.RLock()
	entry, ok := s.state.entries[address]
	s.state.mu.RUnlock()

	if !ok {
		return entities.AddressView{}, false
	}
	return entry.View(), true
}

// HealthCheck reports whether ticks are completing on schedule
func (s *MonitorService) HealthCheck(ctx context.Context) error {
	s.state.mu.RLock()
	ref := s.state.lastTick
	if ref.IsZero() {
		ref = s.state.startedAt
	}
	s.state.mu.RUnlock()

	if ref.IsZero() {
		return fmt.Errorf("monitor has not started")
	}

	window := healthyTickWindow * s.config.PollInterval
	if since := s.now().Sub(ref); since > window {
		return fmt.Errorf("no tick completed in %s", since.Round(time.Second))
	}
	return nil
}

// Run initializes the handlers and polls until ctx is cancelled.
// It returns nil on cancellation and an error if a handler fails to initialize.
func (s *MonitorService) Run(ctx context.Context) error {
	for i, h := range s.handlers {
		if err := h.Init(ctx); err != nil {
			s.closeHandlers(s.handlers[:i])
			return fmt.Errorf("failed to initialize handler: %w", err)
		}
	}
	defer s.closeHandlers(s.handlers)

	s.state.mu.Lock()
	s.state.startedAt = s.now()
	count := len(s.state.order)
	s.state.mu.Unlock()

	s.logger.Info("Starting monitor",
		zap.Int("addresses", count),
		zap.Int("handlers", len(s.handlers)),
		zap.Duration("poll_interval", s.config.PollInterval),
	)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	// Run immediately on start
	if err := s.tick(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping monitor")
			return nil
		case <-ticker.C:
			if err := s.tick(ctx); err != nil {
				return err
			}
		}
	}
}

func (s *MonitorService) closeHandlers(handlers []notification.Handler) {
	for _, h := range handlers {
		if err := h.Close(); err != nil {
			s.logger.Warn("Failed to close handler", zap.Error(err))
		}
	}
}

// tick runs one monitoring cycle over all addresses
func (s *MonitorService) tick(ctx context.Context) error {
	now := s.now()
	reportDue, reportDate := s.reportDue(now)

	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	entries := s.state.snapshot()

	s.refreshBalances(ctx, entries)

	if reportDue {
		s.sendDailyReport(ctx, entries)
		s.state.mu.Lock()
		s.state.lastReport = reportDate
		s.state.mu.Unlock()
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.workerCount())

	for _, entry := range entries {
		entry := entry
		g.Go(func() error {
			s.processAddressSafe(gCtx, entry, now)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to process addresses: %w", err)
	}

	if ctx.Err() != nil {
		return nil
	}

	s.state.mu.Lock()
	s.state.lastTick = s.now()
	s.state.mu.Unlock()
	s.metrics.ObserveTick(s.now().Sub(now))

	return nil
}

func (s *MonitorService) workerCount() int {
	if s.config.WorkerCount <= 0 {
		return 1
	}
	return s.config.WorkerCount
}

// reportDue decides whether this tick sends the daily report and the date to record
func (s *MonitorService) reportDue(now time.Time) (bool, string) {
	local := now.In(s.location)
	date := local.Format("2006-01-02")

	s.state.mu.RLock()
	last := s.state.lastReport
	s.state.mu.RUnlock()

	return date != last && local.Hour() == s.config.ReportHour, date
}

func (s *MonitorService) refreshBalances(ctx context.Context, entries []*AddressEntry) {
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.workerCount())

	for _, entry := range entries {
		entry := entry
		g.Go(func() error {
			if err := s.balances.Refresh(gCtx, entry); err != nil {
				s.logger.Warn("Failed to refresh balance",
					zap.String("address", entry.Address()),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (s *MonitorService) sendDailyReport(ctx context.Context, entries []*AddressEntry) {
	views := make([]entities.AddressView, 0, len(entries))
	for _, e := range entries {
		if v := e.View(); v.ReportBalance {
			views = append(views, v)
		}
	}
	if len(views) == 0 {
		return
	}

	s.logger.Info("Sending daily report", zap.Int("addresses", len(views)))

	for _, h := range s.handlers {
		rh, ok := h.(notification.ReportHandler)
		if !ok {
			continue
		}
		if err := rh.HandleDailyReport(ctx, views); err != nil {
			s.logger.Error("Failed to deliver daily report", zap.Error(err))
		}
	}
}

// processAddressSafe isolates failures of one address from the rest of the tick
func (s *MonitorService) processAddressSafe(ctx context.Context, entry *AddressEntry, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.IncAddressFailure()
			s.logger.Error("Panic while processing address",
				zap.String("address", entry.Address()),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()

	if err := s.processAddress(ctx, entry, now); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.metrics.IncAddressFailure()
		s.logger.Error("Failed to process address",
			zap.String("address", entry.Address()),
			zap.Error(err),
		)
	}
}

// processAddress fetches new activity, dispatches it and advances the checkpoint
func (s *MonitorService) processAddress(ctx context.Context, entry *AddressEntry, now time.Time) error {
	result, err := s.fetchNew(ctx, entry)

	// Anything collected before a failure is dispatched; the dedup sets keep it
	// from being reported again on the next tick.
	if len(result.reportable) > 0 {
		s.dispatch(ctx, entry, result.reportable)
	}

	if err != nil {
		return err
	}

	if result.processed > 0 {
		entry.advance(now, result.height)
		s.logger.Debug("Processed address",
			zap.String("address", entry.Address()),
			zap.Int("processed", result.processed),
			zap.Int("reported", len(result.reportable)),
			zap.Int64("height", result.height),
		)
	}
	return nil
}

type fetchResult struct {
	reportable []*entities.Transaction
	processed  int
	height     int64
}

// fetchNew pages through the address history, newest first, until it reaches
// records already covered by the checkpoint
func (s *MonitorService) fetchNew(ctx context.Context, entry *AddressEntry) (fetchResult, error) {
	var result fetchResult

	address := entry.Address()
	lastCheck := entry.Checkpoint().LastCheck.UnixMilli()
	batch := s.config.BatchSize
	if batch <= 0 {
		batch = 50
	}

	for offset := 0; ; offset += batch {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		records, err := s.ledger.GetAddressTransactions(ctx, address, offset, batch)
		if err != nil {
			return result, fmt.Errorf("failed to fetch transactions at offset %d: %w", offset, err)
		}

		if offset == 0 {
			result.height = maxHeight(records)
		}

		// A mempool listing can lag block inclusion; the confirmed record wins.
		confirmedIDs := make(map[string]bool, len(records))
		for _, rec := range records {
			if !rec.Mempool && rec.DecodeError == "" {
				confirmedIDs[rec.ID] = true
			}
		}

		confirmed := 0
		reachedCheckpoint := false
		for _, rec := range records {
			if rec.Mempool && confirmedIDs[rec.ID] {
				continue
			}
			if !rec.Mempool {
				confirmed++
				if rec.DecodeError == "" && rec.Timestamp.Int64() <= lastCheck && !entry.tracker.IsPending(rec.ID) {
					reachedCheckpoint = true
					break
				}
			}

			classified := ergo.Classify(rec, address, s.feeAddress)
			if classified.Skipped {
				s.metrics.IncSkipped(classified.Reason)
				s.logger.Warn("Skipping ledger record",
					zap.String("address", address),
					zap.String("tx_id", rec.ID),
					zap.String("reason", classified.Reason),
				)
				continue
			}

			tx := classified.Transaction
			if !entry.tracker.Observe(tx.ID, tx.IsPending()) {
				continue
			}
			result.processed++

			if IsSignificant(tx) {
				result.reportable = append(result.reportable, tx)
			}
		}

		if reachedCheckpoint || confirmed < batch {
			break
		}
	}

	sort.SliceStable(result.reportable, func(i, j int) bool {
		return result.reportable[i].Timestamp.Before(result.reportable[j].Timestamp)
	})
	return result, nil
}

// IsSignificant reports whether a transaction moves more than dust or any token
func IsSignificant(tx *entities.Transaction) bool {
	return tx.Value.Abs().GreaterThan(DustThreshold) || len(tx.Tokens) > 0
}

// dispatch delivers transactions in order; every handler receives a transaction
// before the next one is sent
func (s *MonitorService) dispatch(ctx context.Context, entry *AddressEntry, txs []*entities.Transaction) {
	view := entry.View()

	for _, tx := range txs {
		var wg sync.WaitGroup
		for _, h := range s.handlers {
			wg.Add(1)
			go func(h notification.Handler) {
				defer wg.Done()
				defer func() {
					if r := recover(); r != nil {
						s.logger.Error("Panic in notification handler",
							zap.String("tx_id", tx.ID),
							zap.Any("panic", r),
						)
					}
				}()

				if err := h.HandleTransaction(ctx, view, tx); err != nil {
					s.logger.Warn("Handler failed to deliver transaction",
						zap.String("address", view.Address),
						zap.String("tx_id", tx.ID),
						zap.Error(err),
					)
				}
			}(h)
		}
		wg.Wait()

		s.metrics.IncReported(string(tx.Status))
		if s.events != nil {
			s.events.Enqueue(view.Address, tx)
		}
	}
}

func maxHeight(records []entities.TransactionRecord) int64 {
	var max int64
	for _, rec := range records {
		if rec.InclusionHeight != nil && *rec.InclusionHeight > max {
			max = *rec.InclusionHeight
		}
	}
	return max
}

func (st *monitorState) snapshot() []*AddressEntry {
	st.mu.RLock()
	defer st.mu.RUnlock()

	entries := make([]*AddressEntry, len(st.order))
	for i, addr := range st.order {
		entries[i] = st.entries[addr]
	}
	return entries
}
