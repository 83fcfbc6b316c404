// Package repository defines the persistence contract shared by the MongoDB
// store and the in-memory store used in tests.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/stationhq/cdregister/internal/domain/models"
)

// ErrNotFound indicates the referenced stock item does not exist.
var ErrNotFound = errors.New("stock item not found")

// ErrConflict indicates the balance changed since the caller read it.
// The caller must re-read and recompute; a blind overwrite would discard a
// concurrent transaction.
var ErrConflict = errors.New("stale balance: concurrent update committed first")

// BalanceUpdate describes the conditional balance write of one commit.
// ExpectedBalance is the balance the engine observed; the write only lands
// if it is still current.
type BalanceUpdate struct {
	ItemID          string
	ExpectedBalance float64
	NewBalance      float64
	BatchNumber     string
	ExpiryDate      *time.Time
}

// Store is the register's persistence boundary. CommitTransaction must apply
// the balance update and append the transaction as one unit: a reader never
// observes the new balance without its transaction or vice versa.
type Store interface {
	GetItem(ctx context.Context, itemID string) (models.StockItem, error)
	ListItems(ctx context.Context) ([]models.StockItem, error)
	UpsertItem(ctx context.Context, item models.StockItem) error
	RetireItem(ctx context.Context, itemID string) error

	CommitTransaction(ctx context.Context, upd BalanceUpdate, tx models.Transaction) error
	ListTransactions(ctx context.Context, itemID string) ([]models.Transaction, error)

	EnqueueAudit(ctx context.Context, entry models.AuditEntry) error
	PendingAudits(ctx context.Context, limit int) ([]models.AuditEntry, error)
	AckAudit(ctx context.Context, entryID string) error
}
