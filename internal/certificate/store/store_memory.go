package store

import (
	"context"
	"sync"
	"time"

	"certledger/internal/certificate/models"
	"certledger/pkg/domain"
	"certledger/pkg/platform/sentinel"
)

// InMemoryStore keeps certificate records in maps for tests and single-node runs.
type InMemoryStore struct {
	mu       sync.RWMutex
	byFP     map[models.Fingerprint]*models.Certificate
	byIssuer map[string]map[models.Fingerprint]struct{}
	byHolder map[string]map[models.Fingerprint]struct{}
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		byFP:     make(map[models.Fingerprint]*models.Certificate),
		byIssuer: make(map[string]map[models.Fingerprint]struct{}),
		byHolder: make(map[string]map[models.Fingerprint]struct{}),
	}
}

func (s *InMemoryStore) Create(_ context.Context, c *models.Certificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byFP[c.Fingerprint]; ok {
		return sentinel.ErrAlreadyExists
	}
	cp := *c
	s.byFP[c.Fingerprint] = &cp
	index(s.byIssuer, identityKey(c.IssuerID.String()), c.Fingerprint)
	index(s.byHolder, identityKey(c.HolderID.String()), c.Fingerprint)
	return nil
}

func (s *InMemoryStore) FindByFingerprint(_ context.Context, fp models.Fingerprint) (*models.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byFP[fp]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// ExistsConfirmedByTriple reports whether a CONFIRMED record matches the triple.
func (s *InMemoryStore) ExistsConfirmedByTriple(_ context.Context, key models.TripleKey) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.byFP {
		if c.IssuanceStatus == models.IssuanceConfirmed && c.Triple() == key {
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemoryStore) UpdateVerification(_ context.Context, fp models.Fingerprint, status models.VerificationStatus, reason models.VerificationReason, at time.Time) (*models.Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byFP[fp]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	c.ApplyVerification(status, reason, at)
	cp := *c
	return &cp, nil
}

func (s *InMemoryStore) UpdateIssuanceStatus(_ context.Context, fp models.Fingerprint, status models.IssuanceStatus, at time.Time) (*models.Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byFP[fp]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if _, err := c.TransitionIssuance(status, at); err != nil {
		return nil, err
	}
	cp := *c
	return &cp, nil
}

func (s *InMemoryStore) ListByIssuer(_ context.Context, issuer domain.IssuerID, f models.ListFilter) ([]*models.Certificate, error) {
	return s.list(s.byIssuer, identityKey(issuer.String()), f), nil
}

func (s *InMemoryStore) ListByHolder(_ context.Context, holder domain.HolderID, f models.ListFilter) ([]*models.Certificate, error) {
	return s.list(s.byHolder, identityKey(holder.String()), f), nil
}

// Delete removes the record and detaches it from the issuer and holder indexes.
func (s *InMemoryStore) Delete(_ context.Context, fp models.Fingerprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byFP[fp]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.byFP, fp)
	unindex(s.byIssuer, identityKey(c.IssuerID.String()), fp)
	unindex(s.byHolder, identityKey(c.HolderID.String()), fp)
	return nil
}

func (s *InMemoryStore) Ping(context.Context) error { return nil }

func (s *InMemoryStore) list(idx map[string]map[models.Fingerprint]struct{}, key string, f models.ListFilter) []*models.Certificate {
	f = f.Normalized(maxListLimit)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Certificate, 0, len(idx[key]))
	for fp := range idx[key] {
		c := s.byFP[fp]
		if f.Status != "" && c.IssuanceStatus != f.Status {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sortNewestFirst(out)
	return page(out, f)
}

func index(idx map[string]map[models.Fingerprint]struct{}, key string, fp models.Fingerprint) {
	set, ok := idx[key]
	if !ok {
		set = make(map[models.Fingerprint]struct{})
		idx[key] = set
	}
	set[fp] = struct{}{}
}

func unindex(idx map[string]map[models.Fingerprint]struct{}, key string, fp models.Fingerprint) {
	set := idx[key]
	delete(set, fp)
	if len(set) == 0 {
		delete(idx, key)
	}
}

// InMemoryPendingStore is the in-memory recovery log.
type InMemoryPendingStore struct {
	mu      sync.Mutex
	entries map[domain.PendingWriteID]*models.PendingWrite
}

func NewInMemoryPending() *InMemoryPendingStore {
	return &InMemoryPendingStore{entries: make(map[domain.PendingWriteID]*models.PendingWrite)}
}

func (s *InMemoryPendingStore) Append(_ context.Context, p *models.PendingWrite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[p.ID]; ok {
		return sentinel.ErrAlreadyExists
	}
	cp := *p
	s.entries[p.ID] = &cp
	return nil
}

// Resolve marks the entry complete. Resolving twice is a no-op.
func (s *InMemoryPendingStore) Resolve(_ context.Context, id domain.PendingWriteID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.entries[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if p.ResolvedAt == nil {
		resolved := at
		p.ResolvedAt = &resolved
		p.ClaimedUntil = nil
		p.UpdatedAt = at
	}
	return nil
}

func (s *InMemoryPendingStore) RecordAttempt(_ context.Context, id domain.PendingWriteID, lastErr string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.entries[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	p.Attempts++
	p.LastError = lastErr
	p.UpdatedAt = at
	return nil
}

// ClaimUnresolved leases up to limit unresolved entries, oldest first.
// Entries whose lease has not expired are skipped.
func (s *InMemoryPendingStore) ClaimUnresolved(_ context.Context, limit int, now time.Time, lease time.Duration) ([]*models.PendingWrite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	candidates := make([]*models.PendingWrite, 0)
	for _, p := range s.entries {
		if p.ResolvedAt != nil {
			continue
		}
		if p.ClaimedUntil != nil && p.ClaimedUntil.After(now) {
			continue
		}
		candidates = append(candidates, p)
	}
	sortPendingOldestFirst(candidates)
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	until := now.Add(lease)
	out := make([]*models.PendingWrite, 0, len(candidates))
	for _, p := range candidates {
		claimed := until
		p.ClaimedUntil = &claimed
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (s *InMemoryPendingStore) HasUnresolvedTriple(_ context.Context, key models.TripleKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.entries {
		if p.ResolvedAt == nil && p.Triple == key {
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemoryPendingStore) CountUnresolved(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.entries {
		if p.ResolvedAt == nil {
			n++
		}
	}
	return n, nil
}

// Get returns a copy of the entry, for tests and the CLI.
func (s *InMemoryPendingStore) Get(_ context.Context, id domain.PendingWriteID) (*models.PendingWrite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.entries[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *p
	return &cp, nil
}
