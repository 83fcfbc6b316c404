// Package catalog exposes the stock balance and metadata read side, plus a
// transport-agnostic subscription feed that replaces the original
// live-updating UI binding.
package catalog

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/stationhq/cdregister/internal/domain/models"
	"github.com/stationhq/cdregister/internal/repository"
)

// Service is the read boundary over the stock store. Balances are mutated
// only by the transaction engine, which publishes each committed state here.
type Service struct {
	store  repository.Store
	logger *zap.Logger

	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]func(models.StockItem)
}

// NewService constructs the catalog service.
func NewService(store repository.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  store,
		logger: logger,
		subs:   make(map[string]map[int]func(models.StockItem)),
	}
}

// Get loads one stock item.
func (s *Service) Get(ctx context.Context, itemID string) (models.StockItem, error) {
	return s.store.GetItem(ctx, itemID)
}

// List returns every stock item.
func (s *Service) List(ctx context.Context) ([]models.StockItem, error) {
	return s.store.ListItems(ctx)
}

// History returns an item's register entries in commit order.
func (s *Service) History(ctx context.Context, itemID string) ([]models.Transaction, error) {
	if _, err := s.store.GetItem(ctx, itemID); err != nil {
		return nil, err
	}
	return s.store.ListTransactions(ctx, itemID)
}

// LowStock returns items at or below their minimum level, retired ones excluded.
func (s *Service) LowStock(ctx context.Context) ([]models.StockItem, error) {
	items, err := s.store.ListItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("low stock sweep: %w", err)
	}
	var low []models.StockItem
	for _, item := range items {
		if !item.Retired && item.LowStock() {
			low = append(low, item)
		}
	}
	return low, nil
}

// Retire soft-retires an item so audit history stays referenceable.
func (s *Service) Retire(ctx context.Context, itemID string) error {
	return s.store.RetireItem(ctx, itemID)
}

// Subscribe registers a callback invoked with the item's state after every
// committed transaction. The returned function cancels the subscription.
// Callbacks run synchronously on the committing goroutine and must be quick.
func (s *Service) Subscribe(itemID string, fn func(models.StockItem)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	if s.subs[itemID] == nil {
		s.subs[itemID] = make(map[int]func(models.StockItem))
	}
	s.subs[itemID][id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs[itemID], id)
	}
}

// Publish fans a committed item state out to the item's subscribers.
func (s *Service) Publish(item models.StockItem) {
	s.mu.RLock()
	fns := make([]func(models.StockItem), 0, len(s.subs[item.ID]))
	for _, fn := range s.subs[item.ID] {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(item)
	}
}
