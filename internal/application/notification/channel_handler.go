package notification

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/bimakw/ergo-monitor/internal/domain/entities"
	"github.com/bimakw/ergo-monitor/internal/infrastructure/metrics"
)

// ChannelHandler delivers notifications to the destinations of each address
// through a Channel, degrading the payload when the formatting is rejected.
type ChannelHandler struct {
	name        string
	channel     Channel
	formatter   *Formatter
	defaultDest *entities.Destination
	logger      *zap.Logger
	metrics     *metrics.MonitorMetrics
}

// NewChannelHandler creates a handler. defaultDest may be nil.
func NewChannelHandler(
	name string,
	channel Channel,
	formatter *Formatter,
	defaultDest *entities.Destination,
	m *metrics.MonitorMetrics,
	logger *zap.Logger,
) *ChannelHandler {
	return &ChannelHandler{
		name:        name,
		channel:     channel,
		formatter:   formatter,
		defaultDest: defaultDest,
		logger:      logger.With(zap.String("channel", name)),
		metrics:     m,
	}
}

func (h *ChannelHandler) Init(ctx context.Context) error {
	if opener, ok := h.channel.(Opener); ok {
		if err := opener.Open(ctx); err != nil {
			return fmt.Errorf("failed to open %s channel: %w", h.name, err)
		}
	}
	return nil
}

func (h *ChannelHandler) Close() error {
	if closer, ok := h.channel.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// HandleTransaction sends the notification to every destination of the address
func (h *ChannelHandler) HandleTransaction(ctx context.Context, view entities.AddressView, tx *entities.Transaction) error {
	dests := view.Destinations
	if len(dests) == 0 && h.defaultDest != nil {
		dests = []entities.Destination{*h.defaultDest}
	}
	if len(dests) == 0 {
		h.logger.Warn("No destination for address", zap.String("address", view.Address))
		return nil
	}

	text := h.formatter.Transaction(view.Nickname, tx)

	var errs []error
	for _, dest := range dests {
		if err := h.deliver(ctx, text, dest); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HandleDailyReport sends one report to each distinct destination of the
// report-eligible addresses, plus the default destination
func (h *ChannelHandler) HandleDailyReport(ctx context.Context, views []entities.AddressView) error {
	eligible := make([]entities.AddressView, 0, len(views))
	for _, v := range views {
		if v.ReportBalance {
			eligible = append(eligible, v)
		}
	}
	if len(eligible) == 0 {
		return nil
	}

	dests := ReportDestinations(eligible, h.defaultDest)
	if len(dests) == 0 {
		h.logger.Warn("No destination for daily report")
		return nil
	}

	text := h.formatter.DailyReport(eligible)

	var errs []error
	for _, dest := range dests {
		if err := h.deliver(ctx, text, dest); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ReportDestinations returns the deduplicated destinations of the given views
// followed by the default destination, in first-seen order
func ReportDestinations(views []entities.AddressView, defaultDest *entities.Destination) []entities.Destination {
	seen := make(map[string]struct{})
	dests := make([]entities.Destination, 0)

	add := func(d entities.Destination) {
		if _, ok := seen[d.Key()]; ok {
			return
		}
		seen[d.Key()] = struct{}{}
		dests = append(dests, d)
	}

	for _, v := range views {
		for _, d := range v.Destinations {
			add(d)
		}
	}
	if defaultDest != nil {
		add(*defaultDest)
	}
	return dests
}

// deliver walks the fallback chain: rich, then plain when the formatting was
// rejected, then minimal. A hard failure of the rich send ends the chain.
func (h *ChannelHandler) deliver(ctx context.Context, text string, dest entities.Destination) error {
	err := h.send(ctx, Message{Text: text, Variant: VariantRich}, dest)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrFormattingRejected) {
		return h.exhausted(dest, err)
	}

	plain := StripFormatting(text)
	if err = h.send(ctx, Message{Text: plain, Variant: VariantPlain}, dest); err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return h.exhausted(dest, ctx.Err())
	}

	if err = h.send(ctx, Message{Text: plain, Variant: VariantMinimal}, dest); err == nil {
		return nil
	}
	return h.exhausted(dest, err)
}

func (h *ChannelHandler) send(ctx context.Context, msg Message, dest entities.Destination) error {
	err := h.channel.Send(ctx, msg, dest)
	if err != nil {
		h.metrics.IncNotification("failed", msg.Variant.String())
		h.logger.Debug("Send attempt failed",
			zap.String("destination", dest.Key()),
			zap.Stringer("variant", msg.Variant),
			zap.Error(err),
		)
		return err
	}
	h.metrics.IncNotification("delivered", msg.Variant.String())
	return nil
}

func (h *ChannelHandler) exhausted(dest entities.Destination, err error) error {
	h.logger.Error("Failed to deliver notification",
		zap.String("destination", dest.Key()),
		zap.Error(err),
	)
	return fmt.Errorf("failed to deliver to %s: %w", dest.Key(), err)
}
