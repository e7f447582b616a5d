package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"certledger/internal/certificate/models"
	"certledger/pkg/domain"
	"certledger/pkg/platform/sentinel"
)

const pgUniqueViolation = "23505"

const certificateColumns = `fingerprint, issuer_id, holder_id, title, college, course, major, issued_on,
	artifact_ref, ledger_tx_ref, batch_ref, issuance_status, verification_status, verification_reason,
	verified_at, created_at, updated_at`

// PostgresStore persists certificate records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
	tx *sql.Tx
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// NewPostgresTx binds the store to a caller-owned transaction.
func NewPostgresTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{tx: tx}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer() dbExecutor {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

func (s *PostgresStore) Create(ctx context.Context, c *models.Certificate) error {
	if c == nil {
		return fmt.Errorf("certificate record is required")
	}
	// A unique violation would abort the caller's transaction, so a taken
	// fingerprint is reported through the row count instead.
	res, err := s.execer().ExecContext(ctx, `
		INSERT INTO certificates (`+certificateColumns+`, triple_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (fingerprint) DO NOTHING`,
		string(c.Fingerprint),
		c.IssuerID.String(),
		c.HolderID.String(),
		c.Title,
		c.Classification.College,
		c.Classification.Course,
		c.Classification.Major,
		c.IssuedOn,
		c.ArtifactRef,
		c.LedgerTxRef,
		c.BatchRef,
		string(c.IssuanceStatus),
		string(c.VerificationStatus),
		string(c.VerificationReason),
		c.VerifiedAt,
		c.CreatedAt,
		c.UpdatedAt,
		c.Triple().String(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyExists
		}
		return fmt.Errorf("insert certificate: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert certificate: %w", err)
	}
	if n == 0 {
		return sentinel.ErrAlreadyExists
	}
	return nil
}

func (s *PostgresStore) FindByFingerprint(ctx context.Context, fp models.Fingerprint) (*models.Certificate, error) {
	c, err := scanCertificate(s.execer().QueryRowContext(ctx,
		`SELECT `+certificateColumns+` FROM certificates WHERE fingerprint = $1`, string(fp)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find certificate: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) ExistsConfirmedByTriple(ctx context.Context, key models.TripleKey) (bool, error) {
	var exists bool
	err := s.execer().QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM certificates WHERE triple_key = $1 AND issuance_status = 'CONFIRMED')`,
		key.String(),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check certificate triple: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) UpdateVerification(ctx context.Context, fp models.Fingerprint, status models.VerificationStatus, reason models.VerificationReason, at time.Time) (*models.Certificate, error) {
	c, err := scanCertificate(s.execer().QueryRowContext(ctx, `
		UPDATE certificates
		SET verification_status = $2, verification_reason = $3, verified_at = $4, updated_at = $4
		WHERE fingerprint = $1
		RETURNING `+certificateColumns,
		string(fp), string(status), string(reason), at,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("update certificate verification: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) UpdateIssuanceStatus(ctx context.Context, fp models.Fingerprint, status models.IssuanceStatus, at time.Time) (*models.Certificate, error) {
	c, err := scanCertificate(s.execer().QueryRowContext(ctx, `
		UPDATE certificates
		SET issuance_status = $2,
		    updated_at = CASE WHEN issuance_status = $2 THEN updated_at ELSE $3 END
		WHERE fingerprint = $1
		RETURNING `+certificateColumns,
		string(fp), string(status), at,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("update certificate status: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) ListByIssuer(ctx context.Context, issuer domain.IssuerID, f models.ListFilter) ([]*models.Certificate, error) {
	return s.list(ctx, "issuer_id", issuer.String(), f)
}

func (s *PostgresStore) ListByHolder(ctx context.Context, holder domain.HolderID, f models.ListFilter) ([]*models.Certificate, error) {
	return s.list(ctx, "holder_id", holder.String(), f)
}

func (s *PostgresStore) list(ctx context.Context, column, identity string, f models.ListFilter) ([]*models.Certificate, error) {
	f = f.Normalized(maxListLimit)
	// column is one of two constants above, never caller input
	query := `SELECT ` + certificateColumns + ` FROM certificates WHERE lower(` + column + `) = lower($1)`
	args := []any{identity}
	if f.Status != "" {
		query += ` AND issuance_status = $2`
		args = append(args, string(f.Status))
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, fingerprint LIMIT %d OFFSET %d`, f.Limit, f.Offset)

	rows, err := s.execer().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	defer rows.Close()

	records := make([]*models.Certificate, 0)
	for rows.Next() {
		c, err := scanCertificate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan certificate: %w", err)
		}
		records = append(records, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate certificates: %w", err)
	}
	return records, nil
}

func (s *PostgresStore) Delete(ctx context.Context, fp models.Fingerprint) error {
	res, err := s.execer().ExecContext(ctx, `DELETE FROM certificates WHERE fingerprint = $1`, string(fp))
	if err != nil {
		return fmt.Errorf("delete certificate: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete certificate rows: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCertificate(row rowScanner) (*models.Certificate, error) {
	var (
		c          models.Certificate
		fp         string
		issuer     string
		holder     string
		issuance   string
		verif      string
		reason     string
		verifiedAt sql.NullTime
	)
	err := row.Scan(
		&fp, &issuer, &holder, &c.Title,
		&c.Classification.College, &c.Classification.Course, &c.Classification.Major,
		&c.IssuedOn, &c.ArtifactRef, &c.LedgerTxRef, &c.BatchRef,
		&issuance, &verif, &reason, &verifiedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Fingerprint = models.Fingerprint(fp)
	c.IssuerID = domain.IssuerID(issuer)
	c.HolderID = domain.HolderID(holder)
	c.IssuedOn = c.IssuedOn.UTC()
	c.IssuanceStatus = models.IssuanceStatus(issuance)
	c.VerificationStatus = models.VerificationStatus(verif)
	c.VerificationReason = models.VerificationReason(reason)
	if verifiedAt.Valid {
		t := verifiedAt.Time
		c.VerifiedAt = &t
	}
	return &c, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
