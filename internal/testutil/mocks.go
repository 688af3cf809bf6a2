package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/bimakw/ergo-monitor/internal/domain/entities"
)

// MockLedgerRepository is a mock implementation of LedgerRepository.
// By default it serves the stored history newest first, with mempool records
// in front of the first page.
type MockLedgerRepository struct {
	mu        sync.RWMutex
	confirmed map[string][]entities.TransactionRecord
	mempool   map[string][]entities.TransactionRecord
	unspent   map[string][]entities.Box

	// Function hooks for custom behavior
	GetAddressTransactionsFunc func(ctx context.Context, address string, offset, limit int) ([]entities.TransactionRecord, error)
	GetUnspentOutputsFunc      func(ctx context.Context, address string) ([]entities.Box, error)

	// Call tracking
	Calls []MockCall
}

type MockCall struct {
	Method string
	Args   []interface{}
}

func NewMockLedgerRepository() *MockLedgerRepository {
	return &MockLedgerRepository{
		confirmed: make(map[string][]entities.TransactionRecord),
		mempool:   make(map[string][]entities.TransactionRecord),
		unspent:   make(map[string][]entities.Box),
		Calls:     make([]MockCall, 0),
	}
}

func (m *MockLedgerRepository) GetAddressTransactions(ctx context.Context, address string, offset, limit int) ([]entities.TransactionRecord, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "GetAddressTransactions", Args: []interface{}{address, offset, limit}})
	m.mu.Unlock()

	if m.GetAddressTransactionsFunc != nil {
		return m.GetAddressTransactionsFunc(ctx, address, offset, limit)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]entities.TransactionRecord, 0)
	if offset == 0 {
		result = append(result, m.mempool[address]...)
	}

	confirmed := m.confirmed[address]
	if offset >= len(confirmed) {
		return result, nil
	}
	end := offset + limit
	if end > len(confirmed) {
		end = len(confirmed)
	}
	return append(result, confirmed[offset:end]...), nil
}

func (m *MockLedgerRepository) GetUnspentOutputs(ctx context.Context, address string) ([]entities.Box, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "GetUnspentOutputs", Args: []interface{}{address}})
	m.mu.Unlock()

	if m.GetUnspentOutputsFunc != nil {
		return m.GetUnspentOutputsFunc(ctx, address)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]entities.Box(nil), m.unspent[address]...), nil
}

// AddConfirmed prepends confirmed records, given newest first, to the history
func (m *MockLedgerRepository) AddConfirmed(address string, records ...entities.TransactionRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := make([]entities.TransactionRecord, 0, len(records)+len(m.confirmed[address]))
	next = append(next, records...)
	m.confirmed[address] = append(next, m.confirmed[address]...)
}

// SetMempool replaces the unconfirmed records of an address
func (m *MockLedgerRepository) SetMempool(address string, records ...entities.TransactionRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mempool[address] = records
}

// SetUnspent replaces the unspent boxes of an address
func (m *MockLedgerRepository) SetUnspent(address string, boxes ...entities.Box) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unspent[address] = boxes
}

// CallCount returns the number of calls to a method
func (m *MockLedgerRepository) CallCount(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, c := range m.Calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

// MockHandler records the transactions and reports it receives
type MockHandler struct {
	mu      sync.Mutex
	txs     []HandledTransaction
	reports [][]entities.AddressView
	closed  bool

	InitFunc              func(ctx context.Context) error
	HandleTransactionFunc func(ctx context.Context, view entities.AddressView, tx *entities.Transaction) error
	HandleDailyReportFunc func(ctx context.Context, views []entities.AddressView) error
}

// HandledTransaction is one HandleTransaction call
type HandledTransaction struct {
	View entities.AddressView
	Tx   entities.Transaction
}

func NewMockHandler() *MockHandler {
	return &MockHandler{}
}

func (m *MockHandler) Init(ctx context.Context) error {
	if m.InitFunc != nil {
		return m.InitFunc(ctx)
	}
	return nil
}

func (m *MockHandler) HandleTransaction(ctx context.Context, view entities.AddressView, tx *entities.Transaction) error {
	m.mu.Lock()
	m.txs = append(m.txs, HandledTransaction{View: view, Tx: *tx})
	m.mu.Unlock()

	if m.HandleTransactionFunc != nil {
		return m.HandleTransactionFunc(ctx, view, tx)
	}
	return nil
}

func (m *MockHandler) HandleDailyReport(ctx context.Context, views []entities.AddressView) error {
	m.mu.Lock()
	m.reports = append(m.reports, views)
	m.mu.Unlock()

	if m.HandleDailyReportFunc != nil {
		return m.HandleDailyReportFunc(ctx, views)
	}
	return nil
}

func (m *MockHandler) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Transactions returns the handled transactions in delivery order
func (m *MockHandler) Transactions() []HandledTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]HandledTransaction(nil), m.txs...)
}

// Reports returns the daily reports received
func (m *MockHandler) Reports() [][]entities.AddressView {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]entities.AddressView(nil), m.reports...)
}

// Closed reports whether Close was called
func (m *MockHandler) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// MockAddressRegistry is a mock implementation of AddressRegistry
type MockAddressRegistry struct {
	Watched []entities.WatchedAddress

	LoadWatchedFunc func(ctx context.Context) ([]entities.WatchedAddress, error)
}

func (m *MockAddressRegistry) LoadWatched(ctx context.Context) ([]entities.WatchedAddress, error) {
	if m.LoadWatchedFunc != nil {
		return m.LoadWatchedFunc(ctx)
	}
	return m.Watched, nil
}

// ErrMockCacheMiss is returned by MockBalanceCache for unknown addresses
var ErrMockCacheMiss = errors.New("cache miss")

// MockBalanceCache is an in-memory balance cache
type MockBalanceCache struct {
	mu        sync.RWMutex
	snapshots map[string]*entities.BalanceSnapshot

	SetBalanceFunc func(ctx context.Context, address string, snapshot *entities.BalanceSnapshot) error
}

func NewMockBalanceCache() *MockBalanceCache {
	return &MockBalanceCache{snapshots: make(map[string]*entities.BalanceSnapshot)}
}

func (m *MockBalanceCache) GetBalance(ctx context.Context, address string) (*entities.BalanceSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.snapshots[address]
	if !ok {
		return nil, ErrMockCacheMiss
	}
	return s, nil
}

func (m *MockBalanceCache) SetBalance(ctx context.Context, address string, snapshot *entities.BalanceSnapshot) error {
	if m.SetBalanceFunc != nil {
		return m.SetBalanceFunc(ctx, address, snapshot)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[address] = snapshot
	return nil
}

// MockSink records analytics events
type MockSink struct {
	mu     sync.Mutex
	events []entities.Transaction

	ProcessEventFunc func(ctx context.Context, address string, tx entities.Transaction) error
}

func (m *MockSink) ProcessEvent(ctx context.Context, address string, tx entities.Transaction) error {
	m.mu.Lock()
	m.events = append(m.events, tx)
	m.mu.Unlock()

	if m.ProcessEventFunc != nil {
		return m.ProcessEventFunc(ctx, address, tx)
	}
	return nil
}

// Events returns the processed events
func (m *MockSink) Events() []entities.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]entities.Transaction(nil), m.events...)
}

// MockHealthChecker is a mock health checker
type MockHealthChecker struct {
	healthy bool
	err     error
}

func NewMockHealthChecker(healthy bool) *MockHealthChecker {
	m := &MockHealthChecker{healthy: healthy}
	if !healthy {
		m.err = errors.New("service unavailable")
	}
	return m
}

func (m *MockHealthChecker) HealthCheck(ctx context.Context) error {
	return m.err
}
