// Package engine validates and commits register transactions. It is the
// only writer of stock balances: every movement passes the witness gate,
// recomputes the balance against current stock, and lands the balance
// mutation, the register entry and the audit mirror as one logical commit.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/stationhq/cdregister/internal/domain/models"
	"github.com/stationhq/cdregister/internal/repository"
	"github.com/stationhq/cdregister/internal/service/catalog"
	"github.com/stationhq/cdregister/internal/service/rolegate"
)

// ErrItemNotFound indicates the proposal targets an unknown item. The
// caller's catalog view is stale and must be refreshed before any retry.
var ErrItemNotFound = errors.New("stock item not found")

// ErrItemRetired indicates the item has been soft-retired and accepts no
// further movements.
var ErrItemRetired = errors.New("stock item is retired")

// ErrWitnessRequired indicates a gated transaction arrived without a valid
// witness assertion.
var ErrWitnessRequired = errors.New("transaction requires a witness")

// ErrInvalidWitness indicates the witness is not an acceptable second
// person, e.g. the actor attempting to witness their own transaction.
var ErrInvalidWitness = errors.New("witness must be a different person than the actor")

// ErrInvalidQuantity indicates a non-positive quantity (Check excepted,
// where a counted zero is legitimate).
var ErrInvalidQuantity = errors.New("quantity must be positive")

// ErrInsufficientStock indicates the movement would drive the balance
// negative. Enforced as a hard error.
var ErrInsufficientStock = errors.New("insufficient stock for transaction")

// ErrPersistence indicates the commit did not confirm. The outcome is
// unknown: the caller must re-query the register before retrying, never
// retry blind.
var ErrPersistence = errors.New("commit did not confirm, re-query before retrying")

// maxCommitRetries bounds the optimistic retry loop for conflicts raised by
// writers outside this process. In-process commits are already serialized
// per item.
const maxCommitRetries = 3

// Status names the lifecycle stages of a proposal inside Commit. Used for
// structured logging only; a proposal never outlives the call.
type Status string

const (
	StatusProposed        Status = "Proposed"
	StatusAwaitingWitness Status = "AwaitingWitness"
	StatusWitnessed       Status = "Witnessed"
	StatusValidated       Status = "Validated"
	StatusCommitted       Status = "Committed"
	StatusRejected        Status = "Rejected"
)

// Proposal is one requested stock movement. The acting actor is explicit;
// nothing is read from ambient state.
type Proposal struct {
	ItemID      string
	Type        models.TransactionType
	Quantity    float64
	Actor       models.Actor
	Witness     *models.WitnessAssertion
	Notes       string
	BatchNumber string
	ExpiryDate  *time.Time
}

// AuditRecorder mirrors committed transactions into the compliance log.
type AuditRecorder interface {
	Record(ctx context.Context, tx models.Transaction) error
}

// Engine commits proposals against the stock store.
type Engine struct {
	store         repository.Store
	policy        rolegate.Policy
	ledger        AuditRecorder
	catalog       *catalog.Service
	logger        *zap.Logger
	commitTimeout time.Duration
	now           func() time.Time

	itemLocks sync.Map // itemID -> *sync.Mutex
}

// NewEngine constructs the transaction engine.
func NewEngine(store repository.Store, policy rolegate.Policy, ledger AuditRecorder, cat *catalog.Service, commitTimeout time.Duration, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if commitTimeout <= 0 {
		commitTimeout = 10 * time.Second
	}
	return &Engine{
		store:         store,
		policy:        policy,
		ledger:        ledger,
		catalog:       cat,
		logger:        logger,
		commitTimeout: commitTimeout,
		now:           time.Now,
	}
}

func (e *Engine) lockFor(itemID string) *sync.Mutex {
	lock, _ := e.itemLocks.LoadOrStore(itemID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// Commit validates the proposal and, if it passes, applies the balance
// mutation, appends the immutable transaction and emits its audit mirror.
// Commits against the same item are serialized: the per-item lock is held
// across the whole read-compute-write sequence, and the store write itself
// is conditioned on the observed balance so an out-of-band writer surfaces
// as a conflict instead of a lost update.
//
// The caller may cancel while a witness is still being gathered; once the
// persistence step starts the commit is the point of no return and caller
// cancellation no longer applies.
func (e *Engine) Commit(ctx context.Context, p Proposal) (models.Transaction, error) {
	if _, err := models.ParseTransactionType(string(p.Type)); err != nil {
		return models.Transaction{}, e.reject(p, err)
	}
	if p.Quantity < 0 || (p.Quantity == 0 && p.Type != models.TxCheck) {
		return models.Transaction{}, e.reject(p, ErrInvalidQuantity)
	}
	if p.Actor.ID == "" || p.Actor.Name == "" {
		return models.Transaction{}, e.reject(p, errors.New("acting user identity is required"))
	}

	lock := e.lockFor(p.ItemID)
	lock.Lock()
	defer lock.Unlock()

	item, err := e.store.GetItem(ctx, p.ItemID)
	if errors.Is(err, repository.ErrNotFound) {
		return models.Transaction{}, e.reject(p, ErrItemNotFound)
	}
	if err != nil {
		return models.Transaction{}, e.reject(p, fmt.Errorf("load item: %w", err))
	}
	if item.Retired {
		return models.Transaction{}, e.reject(p, ErrItemRetired)
	}

	witnessName, err := e.gateWitness(item, p)
	if err != nil {
		return models.Transaction{}, e.reject(p, err)
	}

	// The operator may still abandon the proposal up to this point, e.g.
	// by dismissing the witness dialog. Past here the commit must run to
	// completion.
	if err := ctx.Err(); err != nil {
		return models.Transaction{}, e.reject(p, err)
	}

	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.commitTimeout)
	defer cancel()

	tx, item, err := e.commitWithRetries(commitCtx, p, item, witnessName)
	if err != nil {
		return models.Transaction{}, err
	}

	if err := e.ledger.Record(commitCtx, tx); err != nil {
		// The transaction is committed but its mirror has no durable home.
		// Surfaced as a persistence failure so the caller re-queries.
		e.logger.Error("audit mirror not recorded", zap.String("tx_id", tx.ID), zap.Error(err))
		return models.Transaction{}, fmt.Errorf("%w: audit mirror failed: %v", ErrPersistence, err)
	}

	if e.catalog != nil {
		e.catalog.Publish(item)
	}

	e.logger.Info("transaction committed",
		zap.String("status", string(StatusCommitted)),
		zap.String("tx_id", tx.ID),
		zap.String("item", item.Name),
		zap.String("type", string(tx.Type)),
		zap.Float64("quantity", tx.Quantity),
		zap.Float64("balance_after", tx.BalanceAfter),
		zap.String("acting_user", tx.ActingUser),
		zap.String("witness", tx.WitnessName))

	return tx, nil
}

// gateWitness applies the role policy and, when a witness is mandatory,
// validates and consumes the attached assertion.
func (e *Engine) gateWitness(item models.StockItem, p Proposal) (string, error) {
	if !e.policy.RequiresWitness(item, p.Type, p.Actor.Grade) {
		// An unrequired witness is still recorded when supplied.
		if p.Witness != nil {
			if p.Witness.WitnessID == p.Actor.ID {
				return "", ErrInvalidWitness
			}
			if err := p.Witness.Consume(); err != nil {
				return "", fmt.Errorf("%w: %w", ErrWitnessRequired, err)
			}
			return p.Witness.Name, nil
		}
		return "", nil
	}

	if p.Witness == nil {
		return "", ErrWitnessRequired
	}
	if p.Witness.WitnessID == p.Actor.ID {
		return "", ErrInvalidWitness
	}
	if err := p.Witness.Consume(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrWitnessRequired, err)
	}
	return p.Witness.Name, nil
}

// commitWithRetries runs the compute-and-conditionally-write sequence,
// re-reading the item on a conflict raised by an out-of-band writer.
func (e *Engine) commitWithRetries(ctx context.Context, p Proposal, item models.StockItem, witnessName string) (models.Transaction, models.StockItem, error) {
	for attempt := 0; ; attempt++ {
		newBalance, notes, err := e.computeBalance(item, p)
		if err != nil {
			return models.Transaction{}, models.StockItem{}, e.reject(p, err)
		}

		tx := models.Transaction{
			ID:           primitive.NewObjectID().Hex(),
			Timestamp:    e.now().UTC(),
			Type:         p.Type,
			ItemID:       item.ID,
			ItemName:     item.Name,
			Quantity:     p.Quantity,
			BalanceAfter: newBalance,
			ActingUser:   p.Actor.Name,
			ActingUserID: p.Actor.ID,
			WitnessName:  witnessName,
			Notes:        notes,
		}
		upd := repository.BalanceUpdate{
			ItemID:          item.ID,
			ExpectedBalance: item.CurrentBalance,
			NewBalance:      newBalance,
		}
		if p.Type == models.TxReceive {
			tx.BatchNumber = p.BatchNumber
			tx.ExpiryDate = p.ExpiryDate
			upd.BatchNumber = p.BatchNumber
			upd.ExpiryDate = p.ExpiryDate
		}

		err = e.store.CommitTransaction(ctx, upd, tx)
		if err == nil {
			item.CurrentBalance = newBalance
			if upd.BatchNumber != "" {
				item.BatchNumber = upd.BatchNumber
			}
			if upd.ExpiryDate != nil {
				item.ExpiryDate = upd.ExpiryDate
			}
			return tx, item, nil
		}

		switch {
		case errors.Is(err, repository.ErrNotFound):
			return models.Transaction{}, models.StockItem{}, e.reject(p, ErrItemNotFound)
		case errors.Is(err, repository.ErrConflict) && attempt < maxCommitRetries:
			e.logger.Warn("balance changed under commit, retrying",
				zap.String("item_id", item.ID),
				zap.Int("attempt", attempt+1))
			item, err = e.store.GetItem(ctx, p.ItemID)
			if err != nil {
				return models.Transaction{}, models.StockItem{}, e.reject(p, fmt.Errorf("%w: %v", ErrPersistence, err))
			}
			continue
		default:
			return models.Transaction{}, models.StockItem{}, e.reject(p, fmt.Errorf("%w: %v", ErrPersistence, err))
		}
	}
}

// computeBalance applies the balance transition table for the proposal.
func (e *Engine) computeBalance(item models.StockItem, p Proposal) (float64, string, error) {
	switch p.Type {
	case models.TxReceive:
		return item.CurrentBalance + p.Quantity, p.Notes, nil
	case models.TxAdminister, models.TxWaste, models.TxMove:
		newBalance := item.CurrentBalance - p.Quantity
		if newBalance < 0 {
			return 0, "", ErrInsufficientStock
		}
		return newBalance, p.Notes, nil
	case models.TxCheck:
		notes := p.Notes
		if p.Quantity != item.CurrentBalance {
			// Not a silent correction: the discrepancy stays visible in
			// the register and its audit text.
			discrepancy := fmt.Sprintf("Discrepancy corrected. Old: %g", item.CurrentBalance)
			if notes != "" {
				notes += ". "
			}
			notes += discrepancy
		}
		return p.Quantity, notes, nil
	default:
		return 0, "", models.ErrUnknownTransactionType
	}
}

func (e *Engine) reject(p Proposal, err error) error {
	e.logger.Warn("transaction rejected",
		zap.String("status", string(StatusRejected)),
		zap.String("item_id", p.ItemID),
		zap.String("type", string(p.Type)),
		zap.String("acting_user_id", p.Actor.ID),
		zap.Error(err))
	return err
}
