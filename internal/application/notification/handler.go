package notification

import (
	"context"
	"fmt"

	"github.com/bimakw/ergo-monitor/internal/domain/entities"
)

// Handler receives reportable transactions from the monitor
type Handler interface {
	// Init prepares the handler. A failure aborts the monitor.
	Init(ctx context.Context) error
	HandleTransaction(ctx context.Context, view entities.AddressView, tx *entities.Transaction) error
	Close() error
}

// ReportHandler is implemented by handlers that deliver the daily balance report
type ReportHandler interface {
	HandleDailyReport(ctx context.Context, views []entities.AddressView) error
}

// Variant selects how much formatting a message payload carries
type Variant int

const (
	// VariantRich carries full formatting
	VariantRich Variant = iota
	// VariantPlain carries the stripped text with normal delivery options
	VariantPlain
	// VariantMinimal carries only the text and routing
	VariantMinimal
)

func (v Variant) String() string {
	switch v {
	case VariantRich:
		return "rich"
	case VariantPlain:
		return "plain"
	case VariantMinimal:
		return "minimal"
	default:
		return "unknown"
	}
}

// Message is one payload sent through a Channel
type Message struct {
	Text    string
	Variant Variant
}

// Channel delivers messages to a chat service
type Channel interface {
	Send(ctx context.Context, msg Message, dest entities.Destination) error
}

// Opener is implemented by channels that need a connection before sending
type Opener interface {
	Open(ctx context.Context) error
}

// ErrFormattingRejected is returned by a Channel when the service refused the message formatting
var ErrFormattingRejected = fmt.Errorf("formatting rejected")
