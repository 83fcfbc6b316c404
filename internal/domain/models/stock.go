package models

import (
	"errors"
	"time"
)

// Classification marks whether an item falls under controlled-drug recording law.
type Classification string

const (
	ClassControlled Classification = "Controlled"
	ClassStandard   Classification = "Standard"
)

// ErrMalformedItem indicates a persisted item record is missing required fields.
var ErrMalformedItem = errors.New("malformed stock item record")

// StockItem is the register's view of one regulated drug line. CurrentBalance
// is mutated exclusively through committed transactions; items referenced by
// audit history are soft-retired, never deleted.
type StockItem struct {
	ID             string         `bson:"_id" json:"id"`
	Name           string         `bson:"name" json:"name"`
	Strength       string         `bson:"strength" json:"strength"`
	Unit           string         `bson:"unit" json:"unit"`
	CurrentBalance float64        `bson:"currentBalance" json:"currentBalance"`
	MinLevel       float64        `bson:"minLevel" json:"minLevel"`
	Class          Classification `bson:"class" json:"class"`
	BatchNumber    string         `bson:"batchNumber,omitempty" json:"batchNumber,omitempty"`
	ExpiryDate     *time.Time     `bson:"expiryDate,omitempty" json:"expiryDate,omitempty"`
	Retired        bool           `bson:"retired" json:"retired"`
}

// Validate rejects malformed records instead of coercing missing fields.
func (s StockItem) Validate() error {
	switch {
	case s.ID == "":
		return ErrMalformedItem
	case s.Name == "":
		return ErrMalformedItem
	case s.Class != ClassControlled && s.Class != ClassStandard:
		return ErrMalformedItem
	case s.CurrentBalance < 0:
		return ErrMalformedItem
	}
	return nil
}

// LowStock reports whether the balance has fallen to or below the minimum level.
func (s StockItem) LowStock() bool {
	return s.MinLevel > 0 && s.CurrentBalance <= s.MinLevel
}
