package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/bimakw/ergo-monitor/internal/config"
	"github.com/bimakw/ergo-monitor/internal/domain/entities"
)

// EventTypeTransactionObserved is published for every reportable transaction
const EventTypeTransactionObserved = "transaction.observed"

// Event is the envelope published on the bus
type Event struct {
	ID          uuid.UUID            `json:"id"`
	Type        string               `json:"type"`
	Address     string               `json:"address"`
	OccurredAt  time.Time            `json:"occurred_at"`
	Transaction entities.Transaction `json:"transaction"`
}

// NewTransactionEvent builds the envelope for an observed transaction
func NewTransactionEvent(address string, tx entities.Transaction, now time.Time) Event {
	return Event{
		ID:          uuid.New(),
		Type:        EventTypeTransactionObserved,
		Address:     address,
		OccurredAt:  now.UTC(),
		Transaction: tx,
	}
}

// publisher is the subset of *nats.Conn used by Publisher
type publisher interface {
	Publish(subject string, data []byte) error
}

// Publisher publishes observed transactions to NATS
type Publisher struct {
	conn    *nats.Conn
	pub     publisher
	subject string
	logger  *zap.Logger
	now     func() time.Time
}

// NewPublisher connects to NATS
func NewPublisher(cfg config.NATSConfig, logger *zap.Logger) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name("ergo-monitor"),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("Disconnected from NATS", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("Reconnected to NATS", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info("Connected to NATS",
		zap.String("url", cfg.URL),
		zap.String("subject", cfg.Subject),
	)

	p := newPublisher(conn, cfg.Subject, logger)
	p.conn = conn
	return p, nil
}

func newPublisher(pub publisher, subject string, logger *zap.Logger) *Publisher {
	return &Publisher{
		pub:     pub,
		subject: subject,
		logger:  logger,
		now:     time.Now,
	}
}

// ProcessEvent publishes the transaction envelope
func (p *Publisher) ProcessEvent(ctx context.Context, address string, tx entities.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(NewTransactionEvent(address, tx, p.now()))
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.pub.Publish(p.subject, payload); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// HealthCheck reports whether the connection is up
func (p *Publisher) HealthCheck(ctx context.Context) error {
	if p.conn == nil || !p.conn.IsConnected() {
		return fmt.Errorf("not connected")
	}
	return nil
}

// Close drains and closes the connection
func (p *Publisher) Close() {
	if p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.logger.Warn("Failed to drain NATS connection", zap.Error(err))
		p.conn.Close()
	}
}
