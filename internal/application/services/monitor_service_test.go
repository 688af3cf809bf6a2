package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/bimakw/ergo-monitor/internal/application/notification"
	"github.com/bimakw/ergo-monitor/internal/config"
	"github.com/bimakw/ergo-monitor/internal/domain/entities"
	"github.com/bimakw/ergo-monitor/internal/testutil"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingQueue struct {
	mu  sync.Mutex
	txs []string
}

func (q *recordingQueue) Enqueue(address string, tx *entities.Transaction) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.txs = append(q.txs, tx.ID)
	return true
}

func testMonitorConfig() config.MonitorConfig {
	return config.MonitorConfig{
		PollInterval:  time.Minute,
		BatchSize:     50,
		WorkerCount:   4,
		ReportHour:    20,
		LookbackHours: 24,
	}
}

func newTestMonitor(ledger *testutil.MockLedgerRepository, cfg config.MonitorConfig, handlers ...*testutil.MockHandler) (*MonitorService, *testClock) {
	clock := &testClock{now: testutil.BaseTime.Add(time.Hour)}

	hs := make([]notification.Handler, len(handlers))
	for i, h := range handlers {
		hs[i] = h
	}

	balances := NewBalanceService(ledger, nil, nil, zap.NewNop())
	balances.now = clock.Now

	s := NewMonitorService(ledger, balances, hs, nil, cfg, testutil.FeeAddress, nil, zap.NewNop())
	s.now = clock.Now
	s.location = time.UTC
	return s, clock
}

func mustAdd(t *testing.T, s *MonitorService, w entities.WatchedAddress) {
	t.Helper()
	if err := s.AddAddress(w); err != nil {
		t.Fatalf("failed to add address: %v", err)
	}
}

func TestMonitorService_ReportsNewTransaction(t *testing.T) {
	ledger := testutil.NewMockLedgerRepository()
	ledger.AddConfirmed(testutil.AliceAddress, testutil.CreateTestRecord())
	handler := testutil.NewMockHandler()

	s, clock := newTestMonitor(ledger, testMonitorConfig(), handler)
	mustAdd(t, s, testutil.CreateTestWatchedAddress())

	if err := s.tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	txs := handler.Transactions()
	if len(txs) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(txs))
	}
	tx := txs[0].Tx
	if tx.Type != entities.TxTypeIn {
		t.Errorf("expected type In, got %s", tx.Type)
	}
	if !tx.Value.Equal(decimal.NewFromInt(1)) {
		t.Errorf("expected value 1, got %s", tx.Value)
	}
	if tx.Status != entities.TxStatusConfirmed {
		t.Errorf("expected Confirmed, got %s", tx.Status)
	}
	if txs[0].View.Nickname != "Alice" {
		t.Errorf("expected nickname Alice, got %s", txs[0].View.Nickname)
	}

	view, _ := s.Address(testutil.AliceAddress)
	if !view.Checkpoint.LastCheck.Equal(clock.Now()) {
		t.Errorf("expected last check %v, got %v", clock.Now(), view.Checkpoint.LastCheck)
	}
	if view.Checkpoint.LastHeight != 1000 {
		t.Errorf("expected last height 1000, got %d", view.Checkpoint.LastHeight)
	}
}

func TestMonitorService_NoDuplicateOnNextTick(t *testing.T) {
	ledger := testutil.NewMockLedgerRepository()
	ledger.AddConfirmed(testutil.AliceAddress, testutil.CreateTestRecord())
	handler := testutil.NewMockHandler()

	s, clock := newTestMonitor(ledger, testMonitorConfig(), handler)
	mustAdd(t, s, testutil.CreateTestWatchedAddress())

	ctx := context.Background()
	_ = s.tick(ctx)
	firstCheck, _ := s.Address(testutil.AliceAddress)

	clock.Advance(time.Minute)
	_ = s.tick(ctx)

	if got := len(handler.Transactions()); got != 1 {
		t.Errorf("expected 1 transaction after two ticks, got %d", got)
	}

	view, _ := s.Address(testutil.AliceAddress)
	if !view.Checkpoint.LastCheck.Equal(firstCheck.Checkpoint.LastCheck) {
		t.Error("expected checkpoint unchanged when nothing new was processed")
	}
}

func TestMonitorService_MempoolPromotion(t *testing.T) {
	ledger := testutil.NewMockLedgerRepository()
	pending := testutil.CreateTestRecord(testutil.WithTxID(testutil.TxID(5)), testutil.WithMempool())
	ledger.SetMempool(testutil.AliceAddress, pending)
	handler := testutil.NewMockHandler()

	s, clock := newTestMonitor(ledger, testMonitorConfig(), handler)
	mustAdd(t, s, testutil.CreateTestWatchedAddress())

	ctx := context.Background()
	_ = s.tick(ctx)

	// Same transaction seen again while still unconfirmed
	clock.Advance(time.Minute)
	_ = s.tick(ctx)

	// Included in a block with a timestamp older than the checkpoint
	ledger.SetMempool(testutil.AliceAddress)
	ledger.AddConfirmed(testutil.AliceAddress, testutil.CreateTestRecord(testutil.WithTxID(testutil.TxID(5)), testutil.WithHeight(1200)))
	clock.Advance(time.Minute)
	_ = s.tick(ctx)

	clock.Advance(time.Minute)
	_ = s.tick(ctx)

	txs := handler.Transactions()
	if len(txs) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(txs))
	}
	if txs[0].Tx.Status != entities.TxStatusPending {
		t.Errorf("expected first notification Pending, got %s", txs[0].Tx.Status)
	}
	if txs[0].Tx.Height != nil {
		t.Errorf("expected no height while pending, got %d", *txs[0].Tx.Height)
	}
	if txs[1].Tx.Status != entities.TxStatusConfirmed {
		t.Errorf("expected second notification Confirmed, got %s", txs[1].Tx.Status)
	}

	view, _ := s.Address(testutil.AliceAddress)
	if view.Checkpoint.LastHeight != 1200 {
		t.Errorf("expected last height 1200, got %d", view.Checkpoint.LastHeight)
	}
}

func TestMonitorService_ConfirmedWinsOverLaggingMempool(t *testing.T) {
	ledger := testutil.NewMockLedgerRepository()
	handler := testutil.NewMockHandler()

	s, clock := newTestMonitor(ledger, testMonitorConfig(), handler)
	mustAdd(t, s, testutil.CreateTestWatchedAddress())

	// The mempool listing still shows a transaction that is already in a block
	ledger.SetMempool(testutil.AliceAddress, testutil.CreateTestRecord(
		testutil.WithTxID(testutil.TxID(5)),
		testutil.WithMempool(),
		testutil.WithTimestamp(clock.Now()),
	))
	ledger.AddConfirmed(testutil.AliceAddress, testutil.CreateTestRecord(
		testutil.WithTxID(testutil.TxID(5)),
		testutil.WithHeight(1200),
	))

	ctx := context.Background()
	_ = s.tick(ctx)
	clock.Advance(time.Minute)
	_ = s.tick(ctx)

	txs := handler.Transactions()
	if len(txs) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(txs))
	}
	if txs[0].Tx.Status != entities.TxStatusConfirmed {
		t.Errorf("expected Confirmed, got %s", txs[0].Tx.Status)
	}
}

func TestMonitorService_PaginatesUntilCheckpoint(t *testing.T) {
	ledger := testutil.NewMockLedgerRepository()
	ledger.AddConfirmed(testutil.AliceAddress, testutil.CreateMultipleRecords(7, testutil.BaseTime)...)
	handler := testutil.NewMockHandler()

	cfg := testMonitorConfig()
	cfg.BatchSize = 3
	s, _ := newTestMonitor(ledger, cfg, handler)
	mustAdd(t, s, testutil.CreateTestWatchedAddress())

	_ = s.tick(context.Background())

	if got := ledger.CallCount("GetAddressTransactions"); got != 3 {
		t.Errorf("expected 3 page requests, got %d", got)
	}

	txs := handler.Transactions()
	if len(txs) != 7 {
		t.Fatalf("expected 7 transactions, got %d", len(txs))
	}
	for i := 1; i < len(txs); i++ {
		if txs[i].Tx.Timestamp.Before(txs[i-1].Tx.Timestamp) {
			t.Fatalf("expected ascending timestamps, got %v before %v", txs[i-1].Tx.Timestamp, txs[i].Tx.Timestamp)
		}
	}
	if txs[0].Tx.ID != testutil.TxID(7) {
		t.Errorf("expected oldest transaction first, got %s", txs[0].Tx.ID)
	}

	view, _ := s.Address(testutil.AliceAddress)
	if view.Checkpoint.LastHeight != 1007 {
		t.Errorf("expected last height from first page 1007, got %d", view.Checkpoint.LastHeight)
	}
}

func TestMonitorService_StopsAtOldRecords(t *testing.T) {
	ledger := testutil.NewMockLedgerRepository()
	ledger.AddConfirmed(testutil.AliceAddress, testutil.CreateMultipleRecords(7, testutil.BaseTime)...)
	handler := testutil.NewMockHandler()

	cfg := testMonitorConfig()
	cfg.BatchSize = 3
	s, _ := newTestMonitor(ledger, cfg, handler)
	mustAdd(t, s, testutil.CreateTestWatchedAddress(testutil.WatchedWithLookback(0)))

	_ = s.tick(context.Background())

	if got := ledger.CallCount("GetAddressTransactions"); got != 1 {
		t.Errorf("expected 1 page request, got %d", got)
	}
	if got := len(handler.Transactions()); got != 0 {
		t.Errorf("expected no transactions, got %d", got)
	}
}

func TestMonitorService_FetchFailureKeepsCheckpoint(t *testing.T) {
	ledger := testutil.NewMockLedgerRepository()
	ledger.GetAddressTransactionsFunc = func(ctx context.Context, address string, offset, limit int) ([]entities.TransactionRecord, error) {
		if address == testutil.AliceAddress {
			return nil, errors.New("explorer unavailable")
		}
		return []entities.TransactionRecord{
			testutil.CreateTestRecord(testutil.WithPayment(testutil.CharlieAddr, testutil.BobAddress, 2_000_000_000)),
		}, nil
	}
	handler := testutil.NewMockHandler()

	s, _ := newTestMonitor(ledger, testMonitorConfig(), handler)
	mustAdd(t, s, testutil.CreateTestWatchedAddress())
	mustAdd(t, s, testutil.CreateTestWatchedAddress(testutil.WatchedWithAddress(testutil.BobAddress), testutil.WatchedWithNickname("Bob")))

	before, _ := s.Address(testutil.AliceAddress)
	_ = s.tick(context.Background())

	after, _ := s.Address(testutil.AliceAddress)
	if !after.Checkpoint.LastCheck.Equal(before.Checkpoint.LastCheck) {
		t.Error("expected checkpoint unchanged after fetch failure")
	}

	txs := handler.Transactions()
	if len(txs) != 1 {
		t.Fatalf("expected the healthy address to be processed, got %d transactions", len(txs))
	}
	if txs[0].View.Address != testutil.BobAddress {
		t.Errorf("expected transaction for Bob, got %s", txs[0].View.Address)
	}
}

func TestMonitorService_MidPaginationFailure(t *testing.T) {
	records := testutil.CreateMultipleRecords(2, testutil.BaseTime)
	failing := true

	ledger := testutil.NewMockLedgerRepository()
	ledger.GetAddressTransactionsFunc = func(ctx context.Context, address string, offset, limit int) ([]entities.TransactionRecord, error) {
		if offset == 0 {
			return records, nil
		}
		if failing {
			return nil, errors.New("timeout")
		}
		return nil, nil
	}
	handler := testutil.NewMockHandler()

	cfg := testMonitorConfig()
	cfg.BatchSize = 2
	s, clock := newTestMonitor(ledger, cfg, handler)
	mustAdd(t, s, testutil.CreateTestWatchedAddress())
	before, _ := s.Address(testutil.AliceAddress)

	ctx := context.Background()
	_ = s.tick(ctx)

	if got := len(handler.Transactions()); got != 2 {
		t.Errorf("expected collected transactions to be dispatched, got %d", got)
	}
	after, _ := s.Address(testutil.AliceAddress)
	if !after.Checkpoint.LastCheck.Equal(before.Checkpoint.LastCheck) {
		t.Error("expected checkpoint unchanged after partial failure")
	}

	failing = false
	clock.Advance(time.Minute)
	_ = s.tick(ctx)

	if got := len(handler.Transactions()); got != 2 {
		t.Errorf("expected no repeated notifications, got %d", got)
	}
}

func TestMonitorService_DustFilter(t *testing.T) {
	dust := testutil.CreateTestRecord(
		testutil.WithTxID(testutil.TxID(1)),
		testutil.WithPayment(testutil.BobAddress, testutil.AliceAddress, 50_000),
	)
	tokenOnly := testutil.CreateTestRecord(
		testutil.WithTxID(testutil.TxID(2)),
		testutil.WithTimestamp(testutil.BaseTime.Add(time.Minute)),
		testutil.WithInputs(testutil.CreateTestBox(testutil.BobAddress, 1_200_000, testutil.CreateTestAsset(testutil.SigUSDToken, 500))),
		testutil.WithOutputs(
			testutil.CreateTestBox(testutil.AliceAddress, 100_000, testutil.CreateTestAsset(testutil.SigUSDToken, 500)),
			testutil.CreateTestBox(testutil.FeeAddress, 1_100_000),
		),
	)

	ledger := testutil.NewMockLedgerRepository()
	ledger.AddConfirmed(testutil.AliceAddress, tokenOnly, dust)
	handler := testutil.NewMockHandler()

	s, clock := newTestMonitor(ledger, testMonitorConfig(), handler)
	mustAdd(t, s, testutil.CreateTestWatchedAddress())

	_ = s.tick(context.Background())

	txs := handler.Transactions()
	if len(txs) != 1 {
		t.Fatalf("expected only the token transfer, got %d", len(txs))
	}
	if txs[0].Tx.ID != testutil.TxID(2) {
		t.Errorf("expected token transfer, got %s", txs[0].Tx.ID)
	}

	view, _ := s.Address(testutil.AliceAddress)
	if !view.Checkpoint.LastCheck.Equal(clock.Now()) {
		t.Error("expected checkpoint to advance when only dust was seen")
	}
}

func TestMonitorService_SkipsMalformedRecords(t *testing.T) {
	ledger := testutil.NewMockLedgerRepository()
	ledger.AddConfirmed(testutil.AliceAddress,
		testutil.CreateTestRecord(testutil.WithTxID("not-a-hex-id")),
		testutil.CreateTestRecord(testutil.WithTxID(testutil.TxID(3))),
	)
	handler := testutil.NewMockHandler()

	s, _ := newTestMonitor(ledger, testMonitorConfig(), handler)
	mustAdd(t, s, testutil.CreateTestWatchedAddress())

	_ = s.tick(context.Background())

	txs := handler.Transactions()
	if len(txs) != 1 || txs[0].Tx.ID != testutil.TxID(3) {
		t.Errorf("expected only the valid record, got %v", txs)
	}
}

func TestMonitorService_MalformedRecordKeepsPaging(t *testing.T) {
	records := testutil.CreateMultipleRecords(4, testutil.BaseTime)
	records[1] = entities.TransactionRecord{ID: records[1].ID, DecodeError: "cannot decode inputs"}

	ledger := testutil.NewMockLedgerRepository()
	ledger.AddConfirmed(testutil.AliceAddress, records...)
	handler := testutil.NewMockHandler()

	cfg := testMonitorConfig()
	cfg.BatchSize = 3
	s, _ := newTestMonitor(ledger, cfg, handler)
	mustAdd(t, s, testutil.CreateTestWatchedAddress())

	_ = s.tick(context.Background())

	if got := ledger.CallCount("GetAddressTransactions"); got != 2 {
		t.Errorf("expected 2 page requests, got %d", got)
	}

	txs := handler.Transactions()
	if len(txs) != 3 {
		t.Fatalf("expected 3 transactions, got %d", len(txs))
	}
	if txs[0].Tx.ID != testutil.TxID(4) {
		t.Errorf("expected record from the second page first, got %s", txs[0].Tx.ID)
	}
	for _, tx := range txs {
		if tx.Tx.ID == testutil.TxID(2) {
			t.Error("expected malformed record to be skipped")
		}
	}
}

func TestMonitorService_PanicIsolatedToAddress(t *testing.T) {
	ledger := testutil.NewMockLedgerRepository()
	ledger.GetAddressTransactionsFunc = func(ctx context.Context, address string, offset, limit int) ([]entities.TransactionRecord, error) {
		if address == testutil.AliceAddress {
			panic("unexpected explorer payload")
		}
		return []entities.TransactionRecord{
			testutil.CreateTestRecord(testutil.WithPayment(testutil.CharlieAddr, testutil.BobAddress, 2_000_000_000)),
		}, nil
	}
	handler := testutil.NewMockHandler()

	s, _ := newTestMonitor(ledger, testMonitorConfig(), handler)
	mustAdd(t, s, testutil.CreateTestWatchedAddress())
	mustAdd(t, s, testutil.CreateTestWatchedAddress(testutil.WatchedWithAddress(testutil.BobAddress), testutil.WatchedWithNickname("Bob")))

	before, _ := s.Address(testutil.AliceAddress)
	if err := s.tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	txs := handler.Transactions()
	if len(txs) != 1 {
		t.Fatalf("expected the healthy address to be processed, got %d transactions", len(txs))
	}
	if txs[0].View.Address != testutil.BobAddress {
		t.Errorf("expected transaction for Bob, got %s", txs[0].View.Address)
	}

	after, _ := s.Address(testutil.AliceAddress)
	if !after.Checkpoint.LastCheck.Equal(before.Checkpoint.LastCheck) {
		t.Error("expected checkpoint unchanged after panic")
	}
}

func TestMonitorService_AllHandlersReceive(t *testing.T) {
	ledger := testutil.NewMockLedgerRepository()
	ledger.AddConfirmed(testutil.AliceAddress, testutil.CreateTestRecord())

	failing := testutil.NewMockHandler()
	failing.HandleTransactionFunc = func(ctx context.Context, view entities.AddressView, tx *entities.Transaction) error {
		return errors.New("channel down")
	}
	healthy := testutil.NewMockHandler()

	s, _ := newTestMonitor(ledger, testMonitorConfig(), failing, healthy)
	queue := &recordingQueue{}
	s.events = queue
	mustAdd(t, s, testutil.CreateTestWatchedAddress())

	_ = s.tick(context.Background())

	if len(failing.Transactions()) != 1 || len(healthy.Transactions()) != 1 {
		t.Errorf("expected both handlers to receive the transaction, got %d and %d",
			len(failing.Transactions()), len(healthy.Transactions()))
	}
	if len(queue.txs) != 1 {
		t.Errorf("expected 1 analytics event, got %d", len(queue.txs))
	}
}

func TestMonitorService_DailyReportOncePerDay(t *testing.T) {
	ledger := testutil.NewMockLedgerRepository()
	ledger.SetUnspent(testutil.AliceAddress,
		testutil.CreateTestBox(testutil.AliceAddress, 2_500_000_000, testutil.CreateTestAsset(testutil.SigUSDToken, 150)),
	)
	handler := testutil.NewMockHandler()

	cfg := testMonitorConfig()
	cfg.ReportHour = 11
	s, clock := newTestMonitor(ledger, cfg, handler)
	mustAdd(t, s, testutil.CreateTestWatchedAddress())
	mustAdd(t, s, testutil.CreateTestWatchedAddress(
		testutil.WatchedWithAddress(testutil.BobAddress),
		testutil.WatchedWithReportBalance(false),
	))

	ctx := context.Background()
	_ = s.tick(ctx)
	clock.Advance(10 * time.Minute)
	_ = s.tick(ctx)

	reports := handler.Reports()
	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}
	if len(reports[0]) != 1 || reports[0][0].Address != testutil.AliceAddress {
		t.Fatalf("expected only the eligible address in the report, got %v", reports[0])
	}
	if !reports[0][0].Balance.Erg.Equal(decimal.RequireFromString("2.5")) {
		t.Errorf("expected refreshed balance 2.5, got %s", reports[0][0].Balance.Erg)
	}
	if reports[0][0].Balance.Tokens[testutil.SigUSDToken].Amount != 150 {
		t.Errorf("expected token balance 150, got %v", reports[0][0].Balance.Tokens)
	}

	clock.Advance(24 * time.Hour)
	_ = s.tick(ctx)

	if got := len(handler.Reports()); got != 2 {
		t.Errorf("expected a report on the next day, got %d", got)
	}
}

func TestMonitorService_NoReportOutsideHour(t *testing.T) {
	handler := testutil.NewMockHandler()
	s, _ := newTestMonitor(testutil.NewMockLedgerRepository(), testMonitorConfig(), handler)
	mustAdd(t, s, testutil.CreateTestWatchedAddress())

	_ = s.tick(context.Background())

	if got := len(handler.Reports()); got != 0 {
		t.Errorf("expected no report, got %d", got)
	}
}

func TestMonitorService_BalanceFailureKeepsSnapshot(t *testing.T) {
	ledger := testutil.NewMockLedgerRepository()
	ledger.SetUnspent(testutil.AliceAddress, testutil.CreateTestBox(testutil.AliceAddress, 1_000_000_000))
	handler := testutil.NewMockHandler()

	s, clock := newTestMonitor(ledger, testMonitorConfig(), handler)
	mustAdd(t, s, testutil.CreateTestWatchedAddress())

	ctx := context.Background()
	_ = s.tick(ctx)

	ledger.GetUnspentOutputsFunc = func(ctx context.Context, address string) ([]entities.Box, error) {
		return nil, errors.New("explorer unavailable")
	}
	clock.Advance(time.Minute)
	_ = s.tick(ctx)

	view, _ := s.Address(testutil.AliceAddress)
	if !view.Balance.Erg.Equal(decimal.NewFromInt(1)) {
		t.Errorf("expected previous balance kept, got %s", view.Balance.Erg)
	}
}

func TestMonitorService_Run(t *testing.T) {
	t.Run("returns nil on cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		ledger := testutil.NewMockLedgerRepository()
		ledger.GetAddressTransactionsFunc = func(ctx context.Context, address string, offset, limit int) ([]entities.TransactionRecord, error) {
			cancel()
			return nil, nil
		}
		handler := testutil.NewMockHandler()

		s, _ := newTestMonitor(ledger, testMonitorConfig(), handler)
		mustAdd(t, s, testutil.CreateTestWatchedAddress())

		if err := s.Run(ctx); err != nil {
			t.Errorf("expected nil on cancellation, got %v", err)
		}
		if !handler.Closed() {
			t.Error("expected handler to be closed")
		}
	})

	t.Run("handler init failure is fatal", func(t *testing.T) {
		ledger := testutil.NewMockLedgerRepository()
		ok := testutil.NewMockHandler()
		broken := testutil.NewMockHandler()
		broken.InitFunc = func(ctx context.Context) error {
			return errors.New("invalid token")
		}

		s, _ := newTestMonitor(ledger, testMonitorConfig(), ok, broken)
		mustAdd(t, s, testutil.CreateTestWatchedAddress())

		if err := s.Run(context.Background()); err == nil {
			t.Fatal("expected error")
		}
		if ledger.CallCount("GetAddressTransactions") != 0 {
			t.Error("expected no polling after init failure")
		}
		if !ok.Closed() {
			t.Error("expected initialized handler to be closed")
		}
	})
}

func TestMonitorService_HealthCheck(t *testing.T) {
	s, clock := newTestMonitor(testutil.NewMockLedgerRepository(), testMonitorConfig())
	ctx := context.Background()

	if err := s.HealthCheck(ctx); err == nil {
		t.Error("expected error before start")
	}

	_ = s.tick(ctx)
	if err := s.HealthCheck(ctx); err != nil {
		t.Errorf("expected healthy after tick, got %v", err)
	}

	clock.Advance(4 * time.Minute)
	if err := s.HealthCheck(ctx); err == nil {
		t.Error("expected unhealthy after three missed intervals")
	}
}

func TestMonitorService_AddAddress(t *testing.T) {
	s, clock := newTestMonitor(testutil.NewMockLedgerRepository(), testMonitorConfig())

	if err := s.AddAddress(testutil.CreateTestWatchedAddress(testutil.WatchedWithAddress("short"))); err == nil {
		t.Error("expected error for invalid address")
	}

	mustAdd(t, s, testutil.CreateTestWatchedAddress())
	if err := s.AddAddress(testutil.CreateTestWatchedAddress()); err == nil {
		t.Error("expected error for duplicate address")
	}

	mustAdd(t, s, testutil.CreateTestWatchedAddress(
		testutil.WatchedWithAddress(testutil.BobAddress),
		testutil.WatchedWithNickname(""),
		testutil.WatchedWithLookback(2),
	))

	views := s.Addresses()
	if len(views) != 2 || views[0].Address != testutil.AliceAddress || views[1].Address != testutil.BobAddress {
		t.Fatalf("expected addresses in registration order, got %v", views)
	}
	if views[1].Nickname != entities.ShortAddress(testutil.BobAddress) {
		t.Errorf("expected nickname from address prefix, got %s", views[1].Nickname)
	}
	if want := clock.Now().Add(-2 * time.Hour); !views[1].Checkpoint.LastCheck.Equal(want) {
		t.Errorf("expected last check %v, got %v", want, views[1].Checkpoint.LastCheck)
	}

	if _, ok := s.Address(testutil.CharlieAddr); ok {
		t.Error("expected unknown address to be missing")
	}
}

func TestMonitorService_LoadAddresses(t *testing.T) {
	s, _ := newTestMonitor(testutil.NewMockLedgerRepository(), testMonitorConfig())
	registry := &testutil.MockAddressRegistry{Watched: []entities.WatchedAddress{
		testutil.CreateTestWatchedAddress(),
		testutil.CreateTestWatchedAddress(testutil.WatchedWithAddress(testutil.BobAddress)),
	}}

	if err := s.LoadAddresses(context.Background(), registry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(s.Addresses()); got != 2 {
		t.Errorf("expected 2 addresses, got %d", got)
	}

	failing := &testutil.MockAddressRegistry{LoadWatchedFunc: func(ctx context.Context) ([]entities.WatchedAddress, error) {
		return nil, errors.New("db down")
	}}
	if err := s.LoadAddresses(context.Background(), failing); err == nil {
		t.Error("expected registry error")
	}
}

func TestIsSignificant(t *testing.T) {
	tests := []struct {
		name   string
		tx     entities.Transaction
		expect bool
	}{
		{"dust", entities.Transaction{Value: decimal.RequireFromString("0.00005")}, false},
		{"exact threshold", entities.Transaction{Value: decimal.RequireFromString("-0.0001")}, false},
		{"above threshold", entities.Transaction{Value: decimal.RequireFromString("-0.00011")}, true},
		{"tokens only", entities.Transaction{Value: decimal.Zero, Tokens: []entities.TokenDelta{{TokenID: testutil.SigUSDToken, Amount: 1}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSignificant(&tt.tx); got != tt.expect {
				t.Errorf("expected %v, got %v", tt.expect, got)
			}
		})
	}
}
