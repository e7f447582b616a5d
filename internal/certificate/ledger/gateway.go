// Package ledger is the boundary to the append-only ledger that anchors
// certificate fingerprints.
//
// Gateways never retry: only the issuance coordinator knows whether a side
// effect already happened, so retry policy lives there.
package ledger

import (
	"context"
	"time"
)

//go:generate mockgen -source=gateway.go -destination=mocks/mocks.go -package=mocks Gateway

// Gateway submits fingerprints to the ledger and reads them back.
type Gateway interface {
	// Submit blocks until the ledger includes the submission or the
	// gateway's inclusion timeout elapses. A receipt with Committed=false
	// means the transaction was accepted but inclusion was not observed in
	// time; the caller should query before resubmitting.
	Submit(ctx context.Context, sub Submission) (*Receipt, error)

	// QueryByFingerprint returns the anchored record or an error matching
	// ErrNotFound.
	QueryByFingerprint(ctx context.Context, holderID, fingerprint string) (*OnChainRecord, error)
}

// Pinger is implemented by gateways that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Submission is the payload anchored on the ledger.
type Submission struct {
	Fingerprint string `json:"fingerprint"`
	IssuerID    string `json:"issuerId"`
	HolderID    string `json:"holderId"`
	Title       string `json:"title"`
	IssuedOn    string `json:"issuedOn"`
	ArtifactRef string `json:"artifactRef"`
}

// Receipt acknowledges a submission.
type Receipt struct {
	TxRef     string `json:"txRef"`
	Committed bool   `json:"committed"`
	Height    uint64 `json:"height,omitempty"`
}

// OnChainRecord is what the ledger holds for a fingerprint.
type OnChainRecord struct {
	Fingerprint string    `json:"fingerprint"`
	IssuerID    string    `json:"issuerId"`
	HolderID    string    `json:"holderId"`
	Title       string    `json:"title"`
	IssuedOn    string    `json:"issuedOn"`
	ArtifactRef string    `json:"artifactRef"`
	TxRef       string    `json:"txRef"`
	Height      uint64    `json:"height"`
	AnchoredAt  time.Time `json:"anchoredAt"`
}

// Receipt rebuilds the receipt of an already anchored record.
func (r *OnChainRecord) Receipt() *Receipt {
	return &Receipt{TxRef: r.TxRef, Committed: true, Height: r.Height}
}
