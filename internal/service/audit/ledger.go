// Package audit mirrors committed register transactions into the central
// compliance log. The mirror is append-only and must eventually contain
// every committed transaction: when the sink is unreachable the entry is
// parked in a durable pending queue and retried until it lands.
package audit

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/stationhq/cdregister/internal/domain/models"
	"github.com/stationhq/cdregister/internal/repository"
	"github.com/stationhq/cdregister/pkg/clients/auditsink"
)

const flushBatchSize = 50

// Ledger is the register-side half of the compliance audit trail.
type Ledger struct {
	sink   auditsink.Sink
	store  repository.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewLedger constructs the audit ledger.
func NewLedger(sink auditsink.Sink, store repository.Store, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		sink:   sink,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Record mirrors one committed transaction. The entry id and timestamp are
// assigned here, server-side, so caller clocks never order the audit trail.
// A sink failure parks the entry in the pending queue for the flusher; only
// a failure to park it is returned as an error, because at that point the
// entry has nowhere durable to live.
func (l *Ledger) Record(ctx context.Context, tx models.Transaction) error {
	entry := models.AuditEntry{
		ID:        primitive.NewObjectID().Hex(),
		Timestamp: l.now().UTC(),
		Category:  models.CategoryDrug,
		UserID:    tx.ActingUserID,
		UserName:  tx.ActingUser,
		Action:    fmt.Sprintf("Drug %s", tx.Type),
		Detail:    summarize(tx),
		TxID:      tx.ID,
	}

	if err := l.sink.Log(ctx, entry); err != nil {
		l.logger.Warn("audit sink append failed, queueing entry for retry",
			zap.String("entry_id", entry.ID),
			zap.String("tx_id", tx.ID),
			zap.Error(err))
		if qerr := l.store.EnqueueAudit(ctx, entry); qerr != nil {
			return fmt.Errorf("queue audit entry %s: %w", entry.ID, qerr)
		}
	}
	return nil
}

// Flush retries queued entries against the sink, acknowledging each one the
// sink confirms. Entries the sink still rejects stay queued for the next run.
func (l *Ledger) Flush(ctx context.Context) error {
	pending, err := l.store.PendingAudits(ctx, flushBatchSize)
	if err != nil {
		return fmt.Errorf("load pending audit entries: %w", err)
	}

	for _, entry := range pending {
		if err := l.sink.Log(ctx, entry); err != nil {
			l.logger.Warn("audit sink still unavailable",
				zap.String("entry_id", entry.ID),
				zap.Error(err))
			return nil
		}
		if err := l.store.AckAudit(ctx, entry.ID); err != nil {
			return fmt.Errorf("ack audit entry %s: %w", entry.ID, err)
		}
		l.logger.Info("queued audit entry delivered", zap.String("entry_id", entry.ID))
	}
	return nil
}

func summarize(tx models.Transaction) string {
	detail := fmt.Sprintf("%s %s: quantity %g, balance now %g", tx.Type, tx.ItemName, tx.Quantity, tx.BalanceAfter)
	if tx.WitnessName != "" {
		detail += fmt.Sprintf(", witnessed by %s", tx.WitnessName)
	}
	if tx.Notes != "" {
		detail += fmt.Sprintf(". %s", tx.Notes)
	}
	return detail
}
