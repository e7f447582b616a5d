// Package sqlite stores outbox entries through gorm, for deployments that
// keep certificates in the embedded SQLite database.
package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"certledger/pkg/platform/outbox"
)

// maxBatch caps a single fetch.
const maxBatch = 1000

type entryRow struct {
	ID            string     `gorm:"primaryKey;size:36"`
	AggregateType string     `gorm:"not null"`
	AggregateID   string     `gorm:"not null"`
	EventType     string     `gorm:"not null"`
	Payload       []byte     `gorm:"not null"`
	CreatedAt     time.Time  `gorm:"not null;autoCreateTime:false;index:idx_outbox_created_at"`
	ProcessedAt   *time.Time `gorm:"default:null;index:idx_outbox_processed_at"`
}

func (entryRow) TableName() string { return "outbox" }

// Migrate creates the outbox table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&entryRow{}); err != nil {
		return fmt.Errorf("migrate outbox: %w", err)
	}
	return nil
}

// Store implements outbox.Store on gorm. Passing a transaction handle binds
// appends to the caller's transaction.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, entry *outbox.Entry) error {
	row := entryRow{
		ID:            entry.ID.String(),
		AggregateType: entry.AggregateType,
		AggregateID:   entry.AggregateID,
		EventType:     entry.EventType,
		Payload:       entry.Payload,
		CreatedAt:     entry.CreatedAt.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// FetchUnprocessed returns up to limit pending entries, oldest first.
// SQLite serializes writers, so no row locking is needed.
func (s *Store) FetchUnprocessed(ctx context.Context, limit int) ([]*outbox.Entry, error) {
	if limit <= 0 {
		return nil, nil
	}
	if limit > maxBatch {
		limit = maxBatch
	}
	var rows []entryRow
	err := s.db.WithContext(ctx).
		Where("processed_at IS NULL").
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("fetch unprocessed entries: %w", err)
	}

	entries := make([]*outbox.Entry, 0, len(rows))
	for _, r := range rows {
		id, err := uuid.Parse(r.ID)
		if err != nil {
			return nil, fmt.Errorf("parse outbox entry id %q: %w", r.ID, err)
		}
		entries = append(entries, &outbox.Entry{
			ID:            id,
			AggregateType: r.AggregateType,
			AggregateID:   r.AggregateID,
			EventType:     r.EventType,
			Payload:       r.Payload,
			CreatedAt:     r.CreatedAt,
		})
	}
	return entries, nil
}

func (s *Store) MarkProcessed(ctx context.Context, id uuid.UUID, processedAt time.Time) error {
	at := processedAt.UTC()
	res := s.db.WithContext(ctx).
		Model(&entryRow{}).
		Where("id = ? AND processed_at IS NULL", id.String()).
		Update("processed_at", &at)
	if res.Error != nil {
		return fmt.Errorf("mark outbox entry processed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("outbox entry not found or already processed: %s", id)
	}
	return nil
}

func (s *Store) CountPending(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&entryRow{}).Where("processed_at IS NULL").Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count pending entries: %w", err)
	}
	return count, nil
}

func (s *Store) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("processed_at IS NOT NULL AND processed_at < ?", before.UTC()).
		Delete(&entryRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete processed entries: %w", res.Error)
	}
	return res.RowsAffected, nil
}
