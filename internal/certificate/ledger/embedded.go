package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"certledger/pkg/validation"
)

var (
	certPrefix   = []byte("cert/")
	txPrefix     = []byte("tx/")
	heightKey    = []byte("meta/height")
	seqBandwidth = uint64(100)
)

// EmbeddedLedger is an append-only ledger kept in badger. It backs
// single-node deployments, the ledger-node command and tests. Records are
// never updated or deleted once anchored.
type EmbeddedLedger struct {
	db     *badger.DB
	seq    *badger.Sequence
	logger *slog.Logger
	now    func() time.Time
	dir    string

	// submissions are serialized so two submits of one fingerprint produce
	// exactly one transaction
	mu     sync.Mutex
	closed bool
}

// EmbeddedOption configures an EmbeddedLedger.
type EmbeddedOption func(*EmbeddedLedger)

// WithDataDir persists the ledger under dir. Without it the ledger is in-memory.
func WithDataDir(dir string) EmbeddedOption {
	return func(l *EmbeddedLedger) {
		l.dir = dir
	}
}

func WithEmbeddedLogger(logger *slog.Logger) EmbeddedOption {
	return func(l *EmbeddedLedger) {
		l.logger = logger
	}
}

// WithEmbeddedClock overrides the anchoring timestamp source.
func WithEmbeddedClock(now func() time.Time) EmbeddedOption {
	return func(l *EmbeddedLedger) {
		l.now = now
	}
}

// OpenEmbedded opens (or creates) an embedded ledger.
func OpenEmbedded(opts ...EmbeddedOption) (*EmbeddedLedger, error) {
	l := &EmbeddedLedger{now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	var bopts badger.Options
	if l.dir == "" {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(l.dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create ledger dir: %w", err)
		}
		bopts = badger.DefaultOptions(l.dir)
	}
	bopts = bopts.
		WithLogger(badgerLogger{l.logger}).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	seq, err := db.GetSequence(heightKey, seqBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open ledger height sequence: %w", err)
	}
	l.db = db
	l.seq = seq
	return l, nil
}

// Close releases the height sequence and closes badger.
func (l *EmbeddedLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	seqErr := l.seq.Release()
	return errors.Join(seqErr, l.db.Close())
}

// Submit anchors sub. Submitting an already anchored fingerprint returns
// the original receipt instead of a second transaction.
func (l *EmbeddedLedger) Submit(ctx context.Context, sub Submission) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewError(CategoryUnavailable, "submit", "context done", err)
	}
	if err := validateSubmission(sub); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, NewError(CategoryUnavailable, "submit", "ledger closed", nil)
	}

	existing, err := l.get(sub.Fingerprint)
	if err != nil && !IsNotFound(err) {
		return nil, err
	}
	if existing != nil {
		l.logger.DebugContext(ctx, "ledger submit is a replay",
			"fingerprint", sub.Fingerprint,
			"tx_ref", existing.TxRef,
		)
		return existing.Receipt(), nil
	}

	height, err := l.seq.Next()
	if err != nil {
		return nil, NewError(CategoryUnavailable, "submit", "failed to allocate height", err)
	}
	// Sequence starts at zero; heights start at one.
	height++

	rec := OnChainRecord{
		Fingerprint: sub.Fingerprint,
		IssuerID:    sub.IssuerID,
		HolderID:    sub.HolderID,
		Title:       sub.Title,
		IssuedOn:    sub.IssuedOn,
		ArtifactRef: sub.ArtifactRef,
		TxRef:       txRef(sub.Fingerprint, height),
		Height:      height,
		AnchoredAt:  l.now().UTC(),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, NewError(CategoryRejected, "submit", "failed to encode record", err)
	}
	err = l.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(certKey(rec.Fingerprint), raw); err != nil {
			return err
		}
		return txn.Set(append(append([]byte{}, txPrefix...), rec.TxRef...), []byte(rec.Fingerprint))
	})
	if err != nil {
		return nil, NewError(CategoryUnavailable, "submit", "failed to persist record", err)
	}

	l.logger.InfoContext(ctx, "ledger record anchored",
		"fingerprint", rec.Fingerprint,
		"tx_ref", rec.TxRef,
		"height", rec.Height,
	)
	return rec.Receipt(), nil
}

// QueryByFingerprint looks the fingerprint up. The embedded ledger indexes
// by fingerprint alone; holderID is accepted for parity with ledgers that
// partition records by holder and is not used as a filter, so a holder
// mismatch surfaces to the verifier instead of looking like NotFound.
func (l *EmbeddedLedger) QueryByFingerprint(ctx context.Context, _ string, fingerprint string) (*OnChainRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewError(CategoryUnavailable, "query", "context done", err)
	}
	return l.get(strings.ToLower(fingerprint))
}

// ReceiptByTxRef returns the receipt for a transaction reference.
func (l *EmbeddedLedger) ReceiptByTxRef(ctx context.Context, ref string) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewError(CategoryUnavailable, "receipt", "context done", err)
	}
	var fp string
	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(append(append([]byte{}, txPrefix...), ref...))
		if err != nil {
			return err
		}
		v, err := item.ValueCopy(nil)
		fp = string(v)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, NewError(CategoryNotFound, "receipt", "unknown transaction", nil)
	}
	if err != nil {
		return nil, NewError(CategoryUnavailable, "receipt", "failed to read transaction", err)
	}
	rec, err := l.get(fp)
	if err != nil {
		return nil, err
	}
	return rec.Receipt(), nil
}

// Height returns the number of anchored records.
func (l *EmbeddedLedger) Height() (uint64, error) {
	var n uint64
	err := l.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: certPrefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Ping reports whether the ledger is open.
func (l *EmbeddedLedger) Ping(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.db.IsClosed() {
		return NewError(CategoryUnavailable, "ping", "ledger closed", nil)
	}
	return nil
}

func (l *EmbeddedLedger) get(fingerprint string) (*OnChainRecord, error) {
	var rec OnChainRecord
	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(certKey(fingerprint))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			return json.Unmarshal(v, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, NewError(CategoryNotFound, "query", "fingerprint not anchored", nil)
	}
	if err != nil {
		return nil, NewError(CategoryUnavailable, "query", "failed to read record", err)
	}
	return &rec, nil
}

func validateSubmission(sub Submission) error {
	switch {
	case !validation.IsFingerprint(sub.Fingerprint):
		return NewError(CategoryRejected, "submit", "fingerprint must be 64 lowercase hex characters", nil)
	case strings.TrimSpace(sub.IssuerID) == "":
		return NewError(CategoryRejected, "submit", "issuer is required", nil)
	case strings.TrimSpace(sub.HolderID) == "":
		return NewError(CategoryRejected, "submit", "holder is required", nil)
	}
	return nil
}

func certKey(fingerprint string) []byte {
	return append(append([]byte{}, certPrefix...), fingerprint...)
}

// txRef derives a transaction reference from the fingerprint and height.
func txRef(fingerprint string, height uint64) string {
	var h [8]byte
	binary.BigEndian.PutUint64(h[:], height)
	sum := sha256.Sum256(append([]byte(fingerprint), h[:]...))
	return "0x" + hex.EncodeToString(sum[:])
}

// badgerLogger routes badger's printf-style logging into slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (b badgerLogger) Errorf(format string, args ...any) {
	b.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "ledger")
}

func (b badgerLogger) Warningf(format string, args ...any) {
	b.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "ledger")
}

func (b badgerLogger) Infof(format string, args ...any) {
	b.logger.Info(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "ledger")
}

func (b badgerLogger) Debugf(format string, args ...any) {
	b.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "ledger")
}

var (
	_ Gateway = (*EmbeddedLedger)(nil)
	_ Pinger  = (*EmbeddedLedger)(nil)
)
