package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"certledger/internal/certificate/models"
	"certledger/pkg/domain"
	"certledger/pkg/platform/sentinel"
)

const pendingColumns = `id, fingerprint, tx_ref, triple_key, record, attempts, last_error,
	claimed_until, created_at, updated_at, resolved_at`

// PostgresPendingStore keeps the recovery log in PostgreSQL.
type PostgresPendingStore struct {
	db *sql.DB
	tx *sql.Tx
}

func NewPostgresPending(db *sql.DB) *PostgresPendingStore {
	return &PostgresPendingStore{db: db}
}

func NewPostgresPendingTx(tx *sql.Tx) *PostgresPendingStore {
	return &PostgresPendingStore{tx: tx}
}

func (s *PostgresPendingStore) execer() dbExecutor {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

func (s *PostgresPendingStore) Append(ctx context.Context, p *models.PendingWrite) error {
	record, err := json.Marshal(p.Record)
	if err != nil {
		return fmt.Errorf("encode pending record: %w", err)
	}
	_, err = s.execer().ExecContext(ctx, `
		INSERT INTO pending_writes (id, fingerprint, tx_ref, triple_key, record, attempts, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.UUID(p.ID), string(p.Fingerprint), p.TxRef, p.Triple.String(), record,
		p.Attempts, p.LastError, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyExists
		}
		return fmt.Errorf("insert pending write: %w", err)
	}
	return nil
}

func (s *PostgresPendingStore) Resolve(ctx context.Context, id domain.PendingWriteID, at time.Time) error {
	res, err := s.execer().ExecContext(ctx, `
		UPDATE pending_writes
		SET resolved_at = COALESCE(resolved_at, $2), claimed_until = NULL, updated_at = $2
		WHERE id = $1`,
		uuid.UUID(id), at,
	)
	if err != nil {
		return fmt.Errorf("resolve pending write: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresPendingStore) RecordAttempt(ctx context.Context, id domain.PendingWriteID, lastErr string, at time.Time) error {
	res, err := s.execer().ExecContext(ctx, `
		UPDATE pending_writes
		SET attempts = attempts + 1, last_error = $2, updated_at = $3
		WHERE id = $1`,
		uuid.UUID(id), lastErr, at,
	)
	if err != nil {
		return fmt.Errorf("record pending attempt: %w", err)
	}
	return requireRow(res)
}

// ClaimUnresolved leases up to limit entries. SKIP LOCKED lets several
// reconcile workers share the table without claiming the same row.
func (s *PostgresPendingStore) ClaimUnresolved(ctx context.Context, limit int, now time.Time, lease time.Duration) ([]*models.PendingWrite, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.execer().QueryContext(ctx, `
		UPDATE pending_writes
		SET claimed_until = $2
		WHERE id IN (
			SELECT id FROM pending_writes
			WHERE resolved_at IS NULL AND (claimed_until IS NULL OR claimed_until <= $1)
			ORDER BY created_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+pendingColumns,
		now, now.Add(lease), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim pending writes: %w", err)
	}
	defer rows.Close()

	entries := make([]*models.PendingWrite, 0)
	for rows.Next() {
		p, err := scanPending(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending write: %w", err)
		}
		entries = append(entries, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending writes: %w", err)
	}
	sortPendingOldestFirst(entries)
	return entries, nil
}

func (s *PostgresPendingStore) HasUnresolvedTriple(ctx context.Context, key models.TripleKey) (bool, error) {
	var exists bool
	err := s.execer().QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM pending_writes WHERE triple_key = $1 AND resolved_at IS NULL)`,
		key.String(),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check pending triple: %w", err)
	}
	return exists, nil
}

func (s *PostgresPendingStore) CountUnresolved(ctx context.Context) (int, error) {
	var n int
	if err := s.execer().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pending_writes WHERE resolved_at IS NULL`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending writes: %w", err)
	}
	return n, nil
}

func (s *PostgresPendingStore) Get(ctx context.Context, id domain.PendingWriteID) (*models.PendingWrite, error) {
	p, err := scanPending(s.execer().QueryRowContext(ctx,
		`SELECT `+pendingColumns+` FROM pending_writes WHERE id = $1`, uuid.UUID(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find pending write: %w", err)
	}
	return p, nil
}

func scanPending(row rowScanner) (*models.PendingWrite, error) {
	var (
		p            models.PendingWrite
		id           uuid.UUID
		fp           string
		triple       string
		record       []byte
		claimedUntil sql.NullTime
		resolvedAt   sql.NullTime
	)
	err := row.Scan(&id, &fp, &p.TxRef, &triple, &record, &p.Attempts, &p.LastError,
		&claimedUntil, &p.CreatedAt, &p.UpdatedAt, &resolvedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(record, &p.Record); err != nil {
		return nil, fmt.Errorf("decode pending record: %w", err)
	}
	p.ID = domain.PendingWriteID(id)
	p.Fingerprint = models.Fingerprint(fp)
	p.Triple = models.TripleKey(triple)
	if claimedUntil.Valid {
		t := claimedUntil.Time
		p.ClaimedUntil = &t
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		p.ResolvedAt = &t
	}
	return &p, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
