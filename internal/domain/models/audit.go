package models

import "time"

// AuditCategory tags entries in the organization-wide compliance log.
// Other domains write their own categories; this register only emits Drug.
type AuditCategory string

const CategoryDrug AuditCategory = "Drug"

// AuditEntry mirrors a committed transaction into the central compliance log.
// Write-once: the application never updates or deletes an entry. The
// timestamp is assigned server-side, independent of caller clocks.
type AuditEntry struct {
	ID         string        `bson:"_id" json:"id"`
	Timestamp  time.Time     `bson:"timestamp" json:"timestamp"`
	Category   AuditCategory `bson:"category" json:"category"`
	UserID     string        `bson:"userId" json:"userId"`
	UserName   string        `bson:"userName" json:"userName"`
	Action     string        `bson:"action" json:"action"`
	Detail     string        `bson:"detail" json:"detail"`
	TxID       string        `bson:"txId" json:"txId"`
}
