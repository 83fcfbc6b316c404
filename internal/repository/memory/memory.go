// Package memory provides an in-process Store for tests. Commit faults can
// be injected to exercise the engine's failure paths.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/stationhq/cdregister/internal/domain/models"
	"github.com/stationhq/cdregister/internal/repository"
)

// MemStore implements repository.Store with mutex-guarded maps.
type MemStore struct {
	mu           sync.Mutex
	items        map[string]models.StockItem
	transactions map[string][]models.Transaction
	pending      map[string]models.AuditEntry

	// CommitErr, when set, makes CommitTransaction fail without touching
	// state. Used to test the no-partial-commit property.
	CommitErr error
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		items:        make(map[string]models.StockItem),
		transactions: make(map[string][]models.Transaction),
		pending:      make(map[string]models.AuditEntry),
	}
}

func (m *MemStore) GetItem(_ context.Context, itemID string) (models.StockItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[itemID]
	if !ok {
		return models.StockItem{}, repository.ErrNotFound
	}
	return item, nil
}

func (m *MemStore) ListItems(_ context.Context) ([]models.StockItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]models.StockItem, 0, len(m.items))
	for _, item := range m.items {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

func (m *MemStore) UpsertItem(_ context.Context, item models.StockItem) error {
	if err := item.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ID] = item
	return nil
}

func (m *MemStore) RetireItem(_ context.Context, itemID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[itemID]
	if !ok {
		return repository.ErrNotFound
	}
	item.Retired = true
	m.items[itemID] = item
	return nil
}

func (m *MemStore) CommitTransaction(_ context.Context, upd repository.BalanceUpdate, tx models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CommitErr != nil {
		return m.CommitErr
	}

	item, ok := m.items[upd.ItemID]
	if !ok {
		return repository.ErrNotFound
	}
	if item.CurrentBalance != upd.ExpectedBalance {
		return repository.ErrConflict
	}

	item.CurrentBalance = upd.NewBalance
	if upd.BatchNumber != "" {
		item.BatchNumber = upd.BatchNumber
	}
	if upd.ExpiryDate != nil {
		item.ExpiryDate = upd.ExpiryDate
	}
	m.items[upd.ItemID] = item
	m.transactions[upd.ItemID] = append(m.transactions[upd.ItemID], tx)
	return nil
}

func (m *MemStore) ListTransactions(_ context.Context, itemID string) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	txs := make([]models.Transaction, len(m.transactions[itemID]))
	copy(txs, m.transactions[itemID])
	return txs, nil
}

func (m *MemStore) EnqueueAudit(_ context.Context, entry models.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[entry.ID] = entry
	return nil
}

func (m *MemStore) PendingAudits(_ context.Context, limit int) ([]models.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := make([]models.AuditEntry, 0, len(m.pending))
	for _, entry := range m.pending {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Timestamp.Before(entries[j].Timestamp) })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (m *MemStore) AckAudit(_ context.Context, entryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, entryID)
	return nil
}
