package models

import (
	"errors"
	"sync/atomic"
	"time"
)

// ErrAssertionSpent indicates a witness assertion was presented twice.
var ErrAssertionSpent = errors.New("witness assertion already consumed")

// WitnessAssertion proves one successful PIN verification by one witness.
// It is ephemeral: consumed by exactly one transaction commit, never
// persisted, and recorded only as the witness name on the resulting
// transaction.
type WitnessAssertion struct {
	WitnessID  string
	Name       string
	VerifiedAt time.Time

	spent atomic.Bool
}

// NewWitnessAssertion binds a fresh single-use assertion to a verified witness.
func NewWitnessAssertion(witnessID, name string, verifiedAt time.Time) *WitnessAssertion {
	return &WitnessAssertion{WitnessID: witnessID, Name: name, VerifiedAt: verifiedAt}
}

// Consume marks the assertion used. The second and every later call fails,
// so an assertion can never vouch for more than one transaction.
func (w *WitnessAssertion) Consume() error {
	if w == nil {
		return ErrAssertionSpent
	}
	if !w.spent.CompareAndSwap(false, true) {
		return ErrAssertionSpent
	}
	return nil
}
