package notification

import (
	"context"

	"go.uber.org/zap"

	"github.com/bimakw/ergo-monitor/internal/domain/entities"
)

// LogHandler writes notifications to the application log
type LogHandler struct {
	logger *zap.Logger
}

// NewLogHandler creates a new log handler
func NewLogHandler(logger *zap.Logger) *LogHandler {
	return &LogHandler{logger: logger}
}

func (h *LogHandler) Init(ctx context.Context) error {
	return nil
}

func (h *LogHandler) HandleTransaction(ctx context.Context, view entities.AddressView, tx *entities.Transaction) error {
	h.logger.Info(PlainTransaction(view.Nickname, tx),
		zap.String("address", view.Address),
		zap.String("tx_id", tx.ID),
		zap.String("type", string(tx.Type)),
		zap.String("status", string(tx.Status)),
		zap.String("value", tx.Value.String()),
	)
	return nil
}

func (h *LogHandler) HandleDailyReport(ctx context.Context, views []entities.AddressView) error {
	h.logger.Info(PlainReport(views), zap.Int("addresses", len(views)))
	return nil
}

func (h *LogHandler) Close() error {
	return nil
}
