// Package store persists certificate records and the pending-write recovery log.
//
// Error Contract:
//   - Create returns sentinel.ErrAlreadyExists when the fingerprint is taken
//   - lookups and updates return sentinel.ErrNotFound for unknown keys
//   - other failures are wrapped infrastructure errors
//
// Identities match case-insensitively in every implementation.
package store

import (
	"sort"
	"strings"

	"certledger/internal/certificate/models"
)

// maxListLimit caps a single listing page.
const maxListLimit = 500

func sortNewestFirst(records []*models.Certificate) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.After(records[j].CreatedAt)
		}
		return records[i].Fingerprint < records[j].Fingerprint
	})
}

func page(records []*models.Certificate, f models.ListFilter) []*models.Certificate {
	if f.Offset >= len(records) {
		return []*models.Certificate{}
	}
	end := f.Offset + f.Limit
	if end > len(records) {
		end = len(records)
	}
	return records[f.Offset:end]
}

func identityKey(id string) string {
	return strings.ToLower(id)
}

func sortPendingOldestFirst(entries []*models.PendingWrite) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
}
