package models

import (
	"errors"
	"strings"
	"time"
)

// TransactionType enumerates the register's stock movements.
type TransactionType string

const (
	TxReceive    TransactionType = "Receive"
	TxAdminister TransactionType = "Administer"
	TxWaste      TransactionType = "Waste"
	TxMove       TransactionType = "Move"
	TxCheck      TransactionType = "Check"
)

// ErrUnknownTransactionType indicates the proposal named no supported movement.
var ErrUnknownTransactionType = errors.New("unknown transaction type")

// ParseTransactionType normalizes free-form type input from callers.
func ParseTransactionType(raw string) (TransactionType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "receive":
		return TxReceive, nil
	case "administer":
		return TxAdminister, nil
	case "waste":
		return TxWaste, nil
	case "move":
		return TxMove, nil
	case "check":
		return TxCheck, nil
	default:
		return "", ErrUnknownTransactionType
	}
}

// Transaction is one committed, immutable register entry. Corrections are
// made with a compensating transaction, never by rewriting an existing one.
type Transaction struct {
	ID           string          `bson:"_id" json:"id"`
	Timestamp    time.Time       `bson:"timestamp" json:"timestamp"`
	Type         TransactionType `bson:"type" json:"type"`
	ItemID       string          `bson:"itemId" json:"itemId"`
	ItemName     string          `bson:"itemName" json:"itemName"`
	Quantity     float64         `bson:"quantity" json:"quantity"`
	BalanceAfter float64         `bson:"balanceAfter" json:"balanceAfter"`
	ActingUser   string          `bson:"actingUser" json:"actingUser"`
	ActingUserID string          `bson:"actingUserId" json:"actingUserId"`
	WitnessName  string          `bson:"witnessName,omitempty" json:"witnessName,omitempty"`
	Notes        string          `bson:"notes,omitempty" json:"notes,omitempty"`
	BatchNumber  string          `bson:"batchNumber,omitempty" json:"batchNumber,omitempty"`
	ExpiryDate   *time.Time      `bson:"expiryDate,omitempty" json:"expiryDate,omitempty"`
}

// Delta returns the signed balance change this transaction applied. Check
// transactions replace the balance outright, so their delta is relative to
// the recorded prior balance (balanceAfter - quantity is meaningless there).
func (t Transaction) Delta() float64 {
	switch t.Type {
	case TxReceive:
		return t.Quantity
	case TxAdminister, TxWaste, TxMove:
		return -t.Quantity
	default:
		return 0
	}
}

// Apply replays this transaction against a running balance.
func (t Transaction) Apply(balance float64) float64 {
	if t.Type == TxCheck {
		return t.Quantity
	}
	return balance + t.Delta()
}
