package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"certledger/internal/certificate/models"
	"certledger/internal/certificate/store"
	"certledger/pkg/domain"
	"certledger/pkg/platform/sentinel"
	"certledger/pkg/testutil"
)

// recordStore is the surface every certificate store implementation shares.
type recordStore interface {
	Create(ctx context.Context, c *models.Certificate) error
	FindByFingerprint(ctx context.Context, fp models.Fingerprint) (*models.Certificate, error)
	ExistsConfirmedByTriple(ctx context.Context, key models.TripleKey) (bool, error)
	UpdateVerification(ctx context.Context, fp models.Fingerprint, status models.VerificationStatus, reason models.VerificationReason, at time.Time) (*models.Certificate, error)
	UpdateIssuanceStatus(ctx context.Context, fp models.Fingerprint, status models.IssuanceStatus, at time.Time) (*models.Certificate, error)
	ListByIssuer(ctx context.Context, issuer domain.IssuerID, f models.ListFilter) ([]*models.Certificate, error)
	ListByHolder(ctx context.Context, holder domain.HolderID, f models.ListFilter) ([]*models.Certificate, error)
	Delete(ctx context.Context, fp models.Fingerprint) error
}

type pendingStore interface {
	Append(ctx context.Context, p *models.PendingWrite) error
	Resolve(ctx context.Context, id domain.PendingWriteID, at time.Time) error
	RecordAttempt(ctx context.Context, id domain.PendingWriteID, lastErr string, at time.Time) error
	ClaimUnresolved(ctx context.Context, limit int, now time.Time, lease time.Duration) ([]*models.PendingWrite, error)
	HasUnresolvedTriple(ctx context.Context, key models.TripleKey) (bool, error)
	CountUnresolved(ctx context.Context) (int, error)
	Get(ctx context.Context, id domain.PendingWriteID) (*models.PendingWrite, error)
}

// StoreSuite runs the same behavioral checks against every store backend.
type StoreSuite struct {
	suite.Suite
	open    func(t *testing.T) (recordStore, pendingStore)
	records recordStore
	pending pendingStore
	ctx     context.Context
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.records, s.pending = s.open(s.T())
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, &StoreSuite{open: func(*testing.T) (recordStore, pendingStore) {
		return store.NewInMemory(), store.NewInMemoryPending()
	}})
}

func TestSQLiteStoreSuite(t *testing.T) {
	suite.Run(t, &StoreSuite{open: func(t *testing.T) (recordStore, pendingStore) {
		db, err := store.OpenSQLite("")
		if err != nil {
			t.Fatalf("open sqlite: %v", err)
		}
		t.Cleanup(func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		})
		return store.NewSQLite(db), store.NewSQLitePending(db)
	}})
}

func (s *StoreSuite) TestCreateAndFind() {
	cert := testutil.NewCertificateBuilder().Build()
	s.Require().NoError(s.records.Create(s.ctx, cert))

	got, err := s.records.FindByFingerprint(s.ctx, cert.Fingerprint)
	s.Require().NoError(err)
	s.Equal(cert.Fingerprint, got.Fingerprint)
	s.Equal(cert.IssuerID, got.IssuerID)
	s.Equal(cert.HolderID, got.HolderID)
	s.Equal(cert.Title, got.Title)
	s.Equal(cert.Classification, got.Classification)
	s.True(cert.IssuedOn.Equal(got.IssuedOn))
	s.Equal(cert.LedgerTxRef, got.LedgerTxRef)
	s.Equal(models.IssuanceConfirmed, got.IssuanceStatus)
	s.Equal(models.VerificationPending, got.VerificationStatus)
	s.Nil(got.VerifiedAt)
}

func (s *StoreSuite) TestCreateRejectsTakenFingerprint() {
	cert := testutil.NewCertificateBuilder().Build()
	s.Require().NoError(s.records.Create(s.ctx, cert))

	err := s.records.Create(s.ctx, cert)
	s.ErrorIs(err, sentinel.ErrAlreadyExists)
}

func (s *StoreSuite) TestFindUnknownFingerprint() {
	got, err := s.records.FindByFingerprint(s.ctx, models.Fingerprint("missing"))
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.Nil(got)
}

func (s *StoreSuite) TestReturnedRecordsAreCopies() {
	cert := testutil.NewCertificateBuilder().Build()
	s.Require().NoError(s.records.Create(s.ctx, cert))

	got, err := s.records.FindByFingerprint(s.ctx, cert.Fingerprint)
	s.Require().NoError(err)
	got.Title = "tampered"

	again, err := s.records.FindByFingerprint(s.ctx, cert.Fingerprint)
	s.Require().NoError(err)
	s.Equal(cert.Title, again.Title)
}

func (s *StoreSuite) TestExistsConfirmedByTriple() {
	cert := testutil.NewCertificateBuilder().WithTitle("Master of Arts").Build()
	s.Require().NoError(s.records.Create(s.ctx, cert))

	s.Run("matches case-insensitively", func() {
		key := models.NewTripleKey("REGISTRAR@UNI.EXAMPLE", cert.HolderID, "master  of ARTS")
		ok, err := s.records.ExistsConfirmedByTriple(s.ctx, key)
		s.Require().NoError(err)
		s.True(ok)
	})

	s.Run("other title does not match", func() {
		ok, err := s.records.ExistsConfirmedByTriple(s.ctx, models.NewTripleKey(cert.IssuerID, cert.HolderID, "PhD"))
		s.Require().NoError(err)
		s.False(ok)
	})

	s.Run("revoked record no longer blocks", func() {
		_, err := s.records.UpdateIssuanceStatus(s.ctx, cert.Fingerprint, models.IssuanceRevoked, time.Now())
		s.Require().NoError(err)
		ok, err := s.records.ExistsConfirmedByTriple(s.ctx, cert.Triple())
		s.Require().NoError(err)
		s.False(ok)
	})
}

func (s *StoreSuite) TestUpdateVerification() {
	cert := testutil.NewCertificateBuilder().Build()
	s.Require().NoError(s.records.Create(s.ctx, cert))
	at := time.Now().UTC().Add(time.Minute).Truncate(time.Millisecond)

	got, err := s.records.UpdateVerification(s.ctx, cert.Fingerprint, models.VerificationNotVerified, models.ReasonIdentityMismatch, at)
	s.Require().NoError(err)
	s.Equal(models.VerificationNotVerified, got.VerificationStatus)
	s.Equal(models.ReasonIdentityMismatch, got.VerificationReason)
	s.Require().NotNil(got.VerifiedAt)
	s.WithinDuration(at, *got.VerifiedAt, time.Millisecond)

	stored, err := s.records.FindByFingerprint(s.ctx, cert.Fingerprint)
	s.Require().NoError(err)
	s.Equal(models.VerificationNotVerified, stored.VerificationStatus)
	s.Equal(models.IssuanceConfirmed, stored.IssuanceStatus)

	_, err = s.records.UpdateVerification(s.ctx, "missing", models.VerificationVerified, models.ReasonNone, at)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *StoreSuite) TestUpdateIssuanceStatus() {
	cert := testutil.NewCertificateBuilder().Build()
	s.Require().NoError(s.records.Create(s.ctx, cert))
	at := time.Now().UTC().Add(time.Hour).Truncate(time.Millisecond)

	got, err := s.records.UpdateIssuanceStatus(s.ctx, cert.Fingerprint, models.IssuanceRevoked, at)
	s.Require().NoError(err)
	s.Equal(models.IssuanceRevoked, got.IssuanceStatus)
	s.Equal(models.VerificationPending, got.VerificationStatus)
	s.WithinDuration(at, got.UpdatedAt, time.Millisecond)

	s.Run("same status leaves updated_at alone", func() {
		later := at.Add(time.Hour)
		again, err := s.records.UpdateIssuanceStatus(s.ctx, cert.Fingerprint, models.IssuanceRevoked, later)
		s.Require().NoError(err)
		s.WithinDuration(at, again.UpdatedAt, time.Millisecond)
	})

	s.Run("unknown fingerprint", func() {
		_, err := s.records.UpdateIssuanceStatus(s.ctx, "missing", models.IssuanceRevoked, at)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *StoreSuite) TestListByIssuerAndHolder() {
	base := time.Now().UTC().Truncate(time.Millisecond)
	titles := []string{"Diploma A", "Diploma B", "Diploma C"}
	for i, title := range titles {
		cert := testutil.NewCertificateBuilder().
			WithTitle(title).
			WithCreatedAt(base.Add(time.Duration(i) * time.Second)).
			Build()
		s.Require().NoError(s.records.Create(s.ctx, cert))
	}
	other := testutil.NewCertificateBuilder().WithIssuer(testutil.TestIDs.Issuer2).WithHolder(testutil.TestIDs.Holder2).Build()
	s.Require().NoError(s.records.Create(s.ctx, other))

	s.Run("issuer listing is newest first and case-insensitive", func() {
		list, err := s.records.ListByIssuer(s.ctx, "Registrar@UNI.example", models.ListFilter{})
		s.Require().NoError(err)
		s.Require().Len(list, 3)
		s.Equal("Diploma C", list[0].Title)
		s.Equal("Diploma A", list[2].Title)
	})

	s.Run("holder listing", func() {
		list, err := s.records.ListByHolder(s.ctx, testutil.TestIDs.Holder2, models.ListFilter{})
		s.Require().NoError(err)
		s.Require().Len(list, 1)
		s.Equal(other.Fingerprint, list[0].Fingerprint)
	})

	s.Run("paging", func() {
		list, err := s.records.ListByIssuer(s.ctx, testutil.TestIDs.Issuer1, models.ListFilter{Limit: 2, Offset: 1})
		s.Require().NoError(err)
		s.Require().Len(list, 2)
		s.Equal("Diploma B", list[0].Title)

		list, err = s.records.ListByIssuer(s.ctx, testutil.TestIDs.Issuer1, models.ListFilter{Offset: 10})
		s.Require().NoError(err)
		s.Empty(list)
	})

	s.Run("status filter", func() {
		list, err := s.records.ListByIssuer(s.ctx, testutil.TestIDs.Issuer1, models.ListFilter{})
		s.Require().NoError(err)
		_, err = s.records.UpdateIssuanceStatus(s.ctx, list[0].Fingerprint, models.IssuanceRevoked, time.Now())
		s.Require().NoError(err)

		revoked, err := s.records.ListByIssuer(s.ctx, testutil.TestIDs.Issuer1, models.ListFilter{Status: models.IssuanceRevoked})
		s.Require().NoError(err)
		s.Require().Len(revoked, 1)
		s.Equal(list[0].Fingerprint, revoked[0].Fingerprint)
	})

	s.Run("unknown identity yields empty list", func() {
		list, err := s.records.ListByHolder(s.ctx, "nobody@example", models.ListFilter{})
		s.Require().NoError(err)
		s.Empty(list)
	})
}

func (s *StoreSuite) TestDelete() {
	cert := testutil.NewCertificateBuilder().Build()
	s.Require().NoError(s.records.Create(s.ctx, cert))

	s.Require().NoError(s.records.Delete(s.ctx, cert.Fingerprint))

	_, err := s.records.FindByFingerprint(s.ctx, cert.Fingerprint)
	s.ErrorIs(err, sentinel.ErrNotFound)

	list, err := s.records.ListByIssuer(s.ctx, cert.IssuerID, models.ListFilter{})
	s.Require().NoError(err)
	s.Empty(list)

	ok, err := s.records.ExistsConfirmedByTriple(s.ctx, cert.Triple())
	s.Require().NoError(err)
	s.False(ok)

	s.ErrorIs(s.records.Delete(s.ctx, cert.Fingerprint), sentinel.ErrNotFound)
}

func (s *StoreSuite) newPending(createdAt time.Time, title string) *models.PendingWrite {
	cert := testutil.NewCertificateBuilder().WithTitle(title).Build()
	p := models.NewPendingWrite(cert, createdAt)
	s.Require().NoError(s.pending.Append(s.ctx, p))
	return p
}

func (s *StoreSuite) TestPendingAppendAndGet() {
	now := time.Now().UTC().Truncate(time.Millisecond)
	p := s.newPending(now, "Diploma")

	got, err := s.pending.Get(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(p.Fingerprint, got.Fingerprint)
	s.Equal(p.TxRef, got.TxRef)
	s.Equal(p.Triple, got.Triple)
	s.Equal(p.Record.Title, got.Record.Title)
	s.Equal(p.Record.HolderID, got.Record.HolderID)
	s.False(got.IsResolved())

	s.ErrorIs(s.pending.Append(s.ctx, p), sentinel.ErrAlreadyExists)

	_, err = s.pending.Get(s.ctx, domain.NewPendingWriteID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *StoreSuite) TestPendingResolveIsIdempotent() {
	now := time.Now().UTC().Truncate(time.Millisecond)
	p := s.newPending(now, "Diploma")

	ok, err := s.pending.HasUnresolvedTriple(s.ctx, p.Triple)
	s.Require().NoError(err)
	s.True(ok)

	first := now.Add(time.Second)
	s.Require().NoError(s.pending.Resolve(s.ctx, p.ID, first))
	s.Require().NoError(s.pending.Resolve(s.ctx, p.ID, first.Add(time.Hour)))

	got, err := s.pending.Get(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Require().NotNil(got.ResolvedAt)
	s.WithinDuration(first, *got.ResolvedAt, time.Millisecond)

	ok, err = s.pending.HasUnresolvedTriple(s.ctx, p.Triple)
	s.Require().NoError(err)
	s.False(ok)

	s.ErrorIs(s.pending.Resolve(s.ctx, domain.NewPendingWriteID(), now), sentinel.ErrNotFound)
}

func (s *StoreSuite) TestPendingRecordAttempt() {
	now := time.Now().UTC().Truncate(time.Millisecond)
	p := s.newPending(now, "Diploma")

	s.Require().NoError(s.pending.RecordAttempt(s.ctx, p.ID, "connection refused", now.Add(time.Second)))
	s.Require().NoError(s.pending.RecordAttempt(s.ctx, p.ID, "timeout", now.Add(2*time.Second)))

	got, err := s.pending.Get(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(2, got.Attempts)
	s.Equal("timeout", got.LastError)

	s.ErrorIs(s.pending.RecordAttempt(s.ctx, domain.NewPendingWriteID(), "x", now), sentinel.ErrNotFound)
}

func (s *StoreSuite) TestPendingClaimLeases() {
	now := time.Now().UTC().Truncate(time.Millisecond)
	oldest := s.newPending(now.Add(-3*time.Minute), "Diploma A")
	middle := s.newPending(now.Add(-2*time.Minute), "Diploma B")
	resolved := s.newPending(now.Add(-time.Minute), "Diploma C")
	s.Require().NoError(s.pending.Resolve(s.ctx, resolved.ID, now))

	n, err := s.pending.CountUnresolved(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, n)

	claimed, err := s.pending.ClaimUnresolved(s.ctx, 1, now, time.Minute)
	s.Require().NoError(err)
	s.Require().Len(claimed, 1)
	s.Equal(oldest.ID, claimed[0].ID)
	s.Require().NotNil(claimed[0].ClaimedUntil)

	s.Run("leased entries are skipped", func() {
		next, err := s.pending.ClaimUnresolved(s.ctx, 10, now.Add(time.Second), time.Minute)
		s.Require().NoError(err)
		s.Require().Len(next, 1)
		s.Equal(middle.ID, next[0].ID)

		none, err := s.pending.ClaimUnresolved(s.ctx, 10, now.Add(2*time.Second), time.Minute)
		s.Require().NoError(err)
		s.Empty(none)
	})

	s.Run("expired lease is reclaimable", func() {
		again, err := s.pending.ClaimUnresolved(s.ctx, 10, now.Add(2*time.Minute), time.Minute)
		s.Require().NoError(err)
		s.Len(again, 2)
	})
}
