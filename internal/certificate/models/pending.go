package models

import (
	"time"

	"certledger/pkg/domain"
)

// PendingWrite is the recovery log entry for a certificate the ledger has
// acknowledged but the store has not yet confirmed. It is appended before
// the store write and resolved after it; unresolved entries are completed
// by the reconcile worker.
type PendingWrite struct {
	ID           domain.PendingWriteID
	Fingerprint  Fingerprint
	TxRef        string
	Triple       TripleKey
	Record       Certificate
	Attempts     int
	LastError    string
	// ClaimedUntil leases the entry to one reconcile worker.
	ClaimedUntil *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ResolvedAt   *time.Time
}

// IsResolved reports whether the store write has completed.
func (p *PendingWrite) IsResolved() bool {
	return p.ResolvedAt != nil
}

// NewPendingWrite captures a ledger-acknowledged record awaiting its store write.
func NewPendingWrite(record *Certificate, now time.Time) *PendingWrite {
	return &PendingWrite{
		ID:          domain.NewPendingWriteID(),
		Fingerprint: record.Fingerprint,
		TxRef:       record.LedgerTxRef,
		Triple:      record.Triple(),
		Record:      *record,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// ReconcileOutcome is what a reconciliation pass did with one pending write.
type ReconcileOutcome string

const (
	ReconcileCompleted       ReconcileOutcome = "completed"
	ReconcileAlreadyPresent  ReconcileOutcome = "already_present"
	ReconcileMissingOnLedger ReconcileOutcome = "missing_on_ledger"
	ReconcileFailed          ReconcileOutcome = "failed"
)
