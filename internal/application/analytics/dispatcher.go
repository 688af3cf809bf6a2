package analytics

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/bimakw/ergo-monitor/internal/domain/entities"
	"github.com/bimakw/ergo-monitor/internal/infrastructure/metrics"
)

// Sink consumes observed transactions
type Sink interface {
	ProcessEvent(ctx context.Context, address string, tx entities.Transaction) error
}

type event struct {
	address string
	tx      entities.Transaction
}

// Dispatcher feeds observed transactions to sinks on a background worker.
// Enqueue never blocks; events are dropped when the queue is full.
type Dispatcher struct {
	queue   chan event
	sinks   []Sink
	logger  *zap.Logger
	metrics *metrics.MonitorMetrics

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher with the given queue size
func NewDispatcher(queueSize int, sinks []Sink, m *metrics.MonitorMetrics, logger *zap.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Dispatcher{
		queue:   make(chan event, queueSize),
		sinks:   sinks,
		logger:  logger,
		metrics: m,
	}
}

// Start launches the worker. Sinks receive ctx.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go d.run(ctx)
}

// Stop closes the queue and waits for queued events to drain
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

// Enqueue schedules a transaction for the sinks and reports whether it was accepted
func (d *Dispatcher) Enqueue(address string, tx *entities.Transaction) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return false
	}

	select {
	case d.queue <- event{address: address, tx: copyTransaction(tx)}:
		return true
	default:
		d.metrics.IncAnalyticsDropped()
		d.logger.Warn("Analytics queue full, dropping event",
			zap.String("address", address),
			zap.String("tx_id", tx.ID),
		)
		return false
	}
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()

	for ev := range d.queue {
		for _, sink := range d.sinks {
			if err := sink.ProcessEvent(ctx, ev.address, ev.tx); err != nil {
				d.logger.Warn("Analytics sink failed",
					zap.String("address", ev.address),
					zap.String("tx_id", ev.tx.ID),
					zap.Error(err),
				)
			}
		}
	}
}

func copyTransaction(tx *entities.Transaction) entities.Transaction {
	out := *tx
	out.From = append([]string(nil), tx.From...)
	out.To = append([]string(nil), tx.To...)
	out.Tokens = append([]entities.TokenDelta(nil), tx.Tokens...)
	if tx.Height != nil {
		h := *tx.Height
		out.Height = &h
	}
	return out
}
