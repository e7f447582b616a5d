package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"certledger/internal/certificate/models"
	"certledger/pkg/domain"
	"certledger/pkg/platform/sentinel"
)

type certificateRow struct {
	Fingerprint        string     `gorm:"primaryKey;size:64"`
	IssuerID           string     `gorm:"not null"`
	IssuerKey          string     `gorm:"not null;index:idx_certificates_issuer_key"`
	HolderID           string     `gorm:"not null"`
	HolderKey          string     `gorm:"not null;index:idx_certificates_holder_key"`
	Title              string     `gorm:"not null"`
	College            string     `gorm:"not null;default:''"`
	Course             string     `gorm:"not null;default:''"`
	Major              string     `gorm:"not null;default:''"`
	IssuedOn           time.Time  `gorm:"not null"`
	ArtifactRef        string     `gorm:"not null"`
	LedgerTxRef        string     `gorm:"not null"`
	BatchRef           string     `gorm:"not null;default:''"`
	TripleKey          string     `gorm:"not null;index:idx_certificates_triple_key"`
	IssuanceStatus     string     `gorm:"not null"`
	VerificationStatus string     `gorm:"not null"`
	VerificationReason string     `gorm:"not null;default:''"`
	VerifiedAt         *time.Time `gorm:"default:null"`
	CreatedAt          time.Time  `gorm:"not null;autoCreateTime:false;index:idx_certificates_created_at"`
	UpdatedAt          time.Time  `gorm:"not null;autoUpdateTime:false"`
}

func (certificateRow) TableName() string { return "certificates" }

type pendingWriteRow struct {
	ID           string     `gorm:"primaryKey;size:36"`
	Fingerprint  string     `gorm:"not null;size:64"`
	TxRef        string     `gorm:"not null"`
	TripleKey    string     `gorm:"not null;index:idx_pending_writes_triple_key"`
	Record       []byte     `gorm:"not null"`
	Attempts     int        `gorm:"not null;default:0"`
	LastError    string     `gorm:"not null;default:''"`
	ClaimedUntil *time.Time `gorm:"default:null"`
	CreatedAt    time.Time  `gorm:"not null;autoCreateTime:false;index:idx_pending_writes_created_at"`
	UpdatedAt    time.Time  `gorm:"not null;autoUpdateTime:false"`
	ResolvedAt   *time.Time `gorm:"default:null"`
}

func (pendingWriteRow) TableName() string { return "pending_writes" }

// OpenSQLite opens the embedded SQL database. An empty dataDir yields a
// private in-memory database.
func OpenSQLite(dataDir string) (*gorm.DB, error) {
	var dsn string
	if dataDir == "" {
		// a unique name keeps separate in-memory databases from sharing state
		dsn = fmt.Sprintf("file:certledger-%s?mode=memory&cache=shared", uuid.NewString())
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)",
			filepath.Join(dataDir, "certificates.sqlite"))
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Discard,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, fmt.Errorf("install sqlite tracing: %w", err)
	}
	if err := db.AutoMigrate(&certificateRow{}, &pendingWriteRow{}); err != nil {
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return db, nil
}

// SQLiteStore persists certificate records through gorm on SQLite.
type SQLiteStore struct {
	db *gorm.DB
}

func NewSQLite(db *gorm.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Create(ctx context.Context, c *models.Certificate) error {
	row := toCertificateRow(c)
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return fmt.Errorf("insert certificate: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return sentinel.ErrAlreadyExists
	}
	return nil
}

func (s *SQLiteStore) FindByFingerprint(ctx context.Context, fp models.Fingerprint) (*models.Certificate, error) {
	var row certificateRow
	err := s.db.WithContext(ctx).Where("fingerprint = ?", string(fp)).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find certificate: %w", err)
	}
	return row.toModel(), nil
}

func (s *SQLiteStore) ExistsConfirmedByTriple(ctx context.Context, key models.TripleKey) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&certificateRow{}).
		Where("triple_key = ? AND issuance_status = ?", key.String(), string(models.IssuanceConfirmed)).
		Limit(1).Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("check certificate triple: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) UpdateVerification(ctx context.Context, fp models.Fingerprint, status models.VerificationStatus, reason models.VerificationReason, at time.Time) (*models.Certificate, error) {
	return s.update(ctx, fp, func(c *models.Certificate) error {
		c.ApplyVerification(status, reason, at)
		return nil
	})
}

func (s *SQLiteStore) UpdateIssuanceStatus(ctx context.Context, fp models.Fingerprint, status models.IssuanceStatus, at time.Time) (*models.Certificate, error) {
	return s.update(ctx, fp, func(c *models.Certificate) error {
		_, err := c.TransitionIssuance(status, at)
		return err
	})
}

func (s *SQLiteStore) update(ctx context.Context, fp models.Fingerprint, mutate func(*models.Certificate) error) (*models.Certificate, error) {
	var out *models.Certificate
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row certificateRow
		if err := tx.Where("fingerprint = ?", string(fp)).Take(&row).Error; err != nil {
			return err
		}
		c := row.toModel()
		if err := mutate(c); err != nil {
			return err
		}
		updated := toCertificateRow(c)
		if err := tx.Save(&updated).Error; err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("update certificate: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) ListByIssuer(ctx context.Context, issuer domain.IssuerID, f models.ListFilter) ([]*models.Certificate, error) {
	return s.list(ctx, "issuer_key = ?", identityKey(issuer.String()), f)
}

func (s *SQLiteStore) ListByHolder(ctx context.Context, holder domain.HolderID, f models.ListFilter) ([]*models.Certificate, error) {
	return s.list(ctx, "holder_key = ?", identityKey(holder.String()), f)
}

func (s *SQLiteStore) list(ctx context.Context, cond, key string, f models.ListFilter) ([]*models.Certificate, error) {
	f = f.Normalized(maxListLimit)
	q := s.db.WithContext(ctx).Where(cond, key)
	if f.Status != "" {
		q = q.Where("issuance_status = ?", string(f.Status))
	}
	var rows []certificateRow
	err := q.Order("created_at DESC").Order("fingerprint").Limit(f.Limit).Offset(f.Offset).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	out := make([]*models.Certificate, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, fp models.Fingerprint) error {
	res := s.db.WithContext(ctx).Where("fingerprint = ?", string(fp)).Delete(&certificateRow{})
	if res.Error != nil {
		return fmt.Errorf("delete certificate: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func toCertificateRow(c *models.Certificate) certificateRow {
	return certificateRow{
		Fingerprint:        string(c.Fingerprint),
		IssuerID:           c.IssuerID.String(),
		IssuerKey:          identityKey(c.IssuerID.String()),
		HolderID:           c.HolderID.String(),
		HolderKey:          identityKey(c.HolderID.String()),
		Title:              c.Title,
		College:            c.Classification.College,
		Course:             c.Classification.Course,
		Major:              c.Classification.Major,
		IssuedOn:           c.IssuedOn,
		ArtifactRef:        c.ArtifactRef,
		LedgerTxRef:        c.LedgerTxRef,
		BatchRef:           c.BatchRef,
		TripleKey:          c.Triple().String(),
		IssuanceStatus:     string(c.IssuanceStatus),
		VerificationStatus: string(c.VerificationStatus),
		VerificationReason: string(c.VerificationReason),
		VerifiedAt:         c.VerifiedAt,
		CreatedAt:          c.CreatedAt,
		UpdatedAt:          c.UpdatedAt,
	}
}

func (r *certificateRow) toModel() *models.Certificate {
	return &models.Certificate{
		Fingerprint: models.Fingerprint(r.Fingerprint),
		IssuerID:    domain.IssuerID(r.IssuerID),
		HolderID:    domain.HolderID(r.HolderID),
		Title:       r.Title,
		Classification: models.Classification{
			College: r.College,
			Course:  r.Course,
			Major:   r.Major,
		},
		IssuedOn:           r.IssuedOn.UTC(),
		ArtifactRef:        r.ArtifactRef,
		LedgerTxRef:        r.LedgerTxRef,
		BatchRef:           r.BatchRef,
		IssuanceStatus:     models.IssuanceStatus(r.IssuanceStatus),
		VerificationStatus: models.VerificationStatus(r.VerificationStatus),
		VerificationReason: models.VerificationReason(r.VerificationReason),
		VerifiedAt:         r.VerifiedAt,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

// SQLitePendingStore keeps the recovery log next to the SQLite records.
type SQLitePendingStore struct {
	db *gorm.DB
}

func NewSQLitePending(db *gorm.DB) *SQLitePendingStore {
	return &SQLitePendingStore{db: db}
}

func (s *SQLitePendingStore) Append(ctx context.Context, p *models.PendingWrite) error {
	record, err := json.Marshal(p.Record)
	if err != nil {
		return fmt.Errorf("encode pending record: %w", err)
	}
	row := pendingWriteRow{
		ID:          p.ID.String(),
		Fingerprint: string(p.Fingerprint),
		TxRef:       p.TxRef,
		TripleKey:   p.Triple.String(),
		Record:      record,
		Attempts:    p.Attempts,
		LastError:   p.LastError,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return fmt.Errorf("insert pending write: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return sentinel.ErrAlreadyExists
	}
	return nil
}

func (s *SQLitePendingStore) Resolve(ctx context.Context, id domain.PendingWriteID, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&pendingWriteRow{}).Where("id = ?", id.String()).
		Updates(map[string]any{
			"resolved_at":   gorm.Expr("COALESCE(resolved_at, ?)", at),
			"claimed_until": nil,
			"updated_at":    at,
		})
	if res.Error != nil {
		return fmt.Errorf("resolve pending write: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *SQLitePendingStore) RecordAttempt(ctx context.Context, id domain.PendingWriteID, lastErr string, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&pendingWriteRow{}).Where("id = ?", id.String()).
		Updates(map[string]any{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": lastErr,
			"updated_at": at,
		})
	if res.Error != nil {
		return fmt.Errorf("record pending attempt: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *SQLitePendingStore) ClaimUnresolved(ctx context.Context, limit int, now time.Time, lease time.Duration) ([]*models.PendingWrite, error) {
	if limit <= 0 {
		return nil, nil
	}
	var rows []pendingWriteRow
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("resolved_at IS NULL AND (claimed_until IS NULL OR claimed_until <= ?)", now).
			Order("created_at").Limit(limit).Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		ids := make([]string, 0, len(rows))
		until := now.Add(lease)
		for i := range rows {
			ids = append(ids, rows[i].ID)
			rows[i].ClaimedUntil = &until
		}
		return tx.Model(&pendingWriteRow{}).Where("id IN ?", ids).Update("claimed_until", until).Error
	})
	if err != nil {
		return nil, fmt.Errorf("claim pending writes: %w", err)
	}
	out := make([]*models.PendingWrite, 0, len(rows))
	for i := range rows {
		p, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *SQLitePendingStore) HasUnresolvedTriple(ctx context.Context, key models.TripleKey) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&pendingWriteRow{}).
		Where("triple_key = ? AND resolved_at IS NULL", key.String()).
		Limit(1).Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("check pending triple: %w", err)
	}
	return n > 0, nil
}

func (s *SQLitePendingStore) CountUnresolved(ctx context.Context) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&pendingWriteRow{}).Where("resolved_at IS NULL").Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count pending writes: %w", err)
	}
	return int(n), nil
}

func (s *SQLitePendingStore) Get(ctx context.Context, id domain.PendingWriteID) (*models.PendingWrite, error) {
	var row pendingWriteRow
	if err := s.db.WithContext(ctx).Where("id = ?", id.String()).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find pending write: %w", err)
	}
	return row.toModel()
}

func (r *pendingWriteRow) toModel() (*models.PendingWrite, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("parse pending write id: %w", err)
	}
	p := &models.PendingWrite{
		ID:           domain.PendingWriteID(id),
		Fingerprint:  models.Fingerprint(r.Fingerprint),
		TxRef:        r.TxRef,
		Triple:       models.TripleKey(r.TripleKey),
		Attempts:     r.Attempts,
		LastError:    r.LastError,
		ClaimedUntil: r.ClaimedUntil,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		ResolvedAt:   r.ResolvedAt,
	}
	if err := json.Unmarshal(r.Record, &p.Record); err != nil {
		return nil, fmt.Errorf("decode pending record: %w", err)
	}
	return p, nil
}
