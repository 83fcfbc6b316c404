// Package rolegate decides when a transaction legally requires a second
// person. It is pure policy: no state, no side effects, testable against a
// truth table.
package rolegate

import "github.com/stationhq/cdregister/internal/domain/models"

// DefaultReferenceGrade is the grade at or above which a clinician may
// administer unsupervised.
const DefaultReferenceGrade = models.GradeParamedic

// Policy holds the witness rules for one organization.
type Policy struct {
	ReferenceGrade models.Grade
}

// NewPolicy builds a policy, falling back to the default reference grade.
func NewPolicy(reference models.Grade) Policy {
	if reference.Rank() == 0 {
		reference = DefaultReferenceGrade
	}
	return Policy{ReferenceGrade: reference}
}

// RequiresWitness reports whether the transaction may not proceed without an
// independent witness. A witness is mandatory when the item is a controlled
// drug and the stock is being wasted or check-counted, or when anyone below
// the reference grade administers, regardless of classification. Receive and
// Move are never gated.
func (p Policy) RequiresWitness(item models.StockItem, txType models.TransactionType, actorGrade models.Grade) bool {
	if item.Class == models.ClassControlled {
		if txType == models.TxWaste || txType == models.TxCheck {
			return true
		}
	}
	if txType == models.TxAdminister && !actorGrade.AtLeast(p.ReferenceGrade) {
		return true
	}
	return false
}
