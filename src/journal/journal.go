package journal

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradeengine/src/database"
	"tradeengine/src/model"
)

// Journal is the best-effort audit sink for entries and exits. A failed
// write is logged and dropped; it must never roll back an already-placed
// order or stall the pipeline.
type Journal struct {
	db *gorm.DB
}

// New returns a journal bound to the shared database connection. With
// persistence disabled the journal only logs.
func New() *Journal {
	return &Journal{db: database.DB}
}

// WithDB overrides the underlying connection, for tests.
func (j *Journal) WithDB(db *gorm.DB) *Journal {
	return &Journal{db: db}
}

func (j *Journal) RecordEntry(ctx context.Context, pos *model.Position, mode string) {
	record := &model.TradeRecord{
		SignalID:  pos.SignalID,
		Symbol:    pos.Symbol,
		Direction: string(pos.Direction),
		Kind:      model.TradeRecordKindEntry,
		Quantity:  pos.Quantity,
		Price:     pos.EntryPrice,
		Mode:      mode,
	}
	if pos.StopOrder != nil {
		record.StopPrice = pos.StopOrder.Price
	}
	if pos.TargetOrder != nil {
		record.TargetPrice = pos.TargetOrder.Price
	}
	j.write(ctx, record)
}

func (j *Journal) RecordExit(ctx context.Context, pos *model.Position) {
	exitPrice := 0.0
	switch {
	case pos.StopOrder != nil && pos.StopOrder.Status == model.OrderStatusFilled:
		exitPrice = pos.StopOrder.FilledPrice
	case pos.TargetOrder != nil && pos.TargetOrder.Status == model.OrderStatusFilled:
		exitPrice = pos.TargetOrder.FilledPrice
	}

	j.write(ctx, &model.TradeRecord{
		SignalID:  pos.SignalID,
		Symbol:    pos.Symbol,
		Direction: string(pos.Direction),
		Kind:      model.TradeRecordKindExit,
		Quantity:  pos.Quantity,
		Price:     exitPrice,
		Pnl:       pos.RealizedPnl,
		Reason:    pos.CloseReason,
	})
}

func (j *Journal) write(ctx context.Context, record *model.TradeRecord) {
	entry := logger.WithFields(map[string]interface{}{
		"symbol": record.Symbol,
		"kind":   record.Kind,
		"qty":    record.Quantity,
		"price":  record.Price,
		"pnl":    record.Pnl,
	})

	if j.db == nil {
		entry.Info("trade journal (log-only)")
		return
	}

	if err := j.db.WithContext(ctx).Create(record).Error; err != nil {
		entry.WithError(err).Error("failed to persist trade record")
		return
	}
	entry.Debug("trade record persisted")
}
