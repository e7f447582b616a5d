package handler

// Handler tests cover transport concerns only: role checks, request parsing,
// error-code mapping and response shape. Issuance semantics are tested in
// the service package and end to end in e2e/.

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"certledger/internal/certificate/bulk"
	"certledger/internal/certificate/handler/mocks"
	"certledger/internal/certificate/models"
	"certledger/internal/certificate/service"
	"certledger/pkg/domain"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/requestcontext"
)

const (
	fp1 = "3f2a9c4e5b6d7e8f90a1b2c3d4e5f60718293a4b5c6d7e8f9a0b1c2d3e4f5a6b"
	fp2 = "0b1c2d3e4f5a6b7c8d9e0f1a2b3c4d5e6f708192a3b4c5d6e7f8091a2b3c4d5e"
)

type HandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	service *mocks.MockService
	router  chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)

	h := New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	r.Use(principalFromHeaders)
	h.Register(r)
	h.RegisterAdmin(r)
	s.router = r
}

// principalFromHeaders stands in for the auth middleware.
func principalFromHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if sub := r.Header.Get("X-Test-Subject"); sub != "" {
			ctx = requestcontext.WithPrincipal(ctx, sub, domain.Role(r.Header.Get("X-Test-Role")))
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *HandlerSuite) do(method, path string, body any, subject string, role domain.Role) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if subject != "" {
		req.Header.Set("X-Test-Subject", subject)
		req.Header.Set("X-Test-Role", string(role))
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *HandlerSuite) assertError(w *httptest.ResponseRecorder, status int, code string) {
	s.Equal(status, w.Code, w.Body.String())
	var body map[string]string
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))
	s.Equal(code, body["error"])
}

func sampleCertificate(fp string) *models.Certificate {
	now := time.Date(2025, time.June, 1, 9, 30, 0, 0, time.UTC)
	return &models.Certificate{
		Fingerprint:        models.Fingerprint(fp),
		IssuerID:           "registrar@uni.example",
		HolderID:           "h1@uni.example",
		Title:              "Diploma",
		Classification:     models.Classification{College: "Engineering", Course: "BSc", Major: "CS"},
		IssuedOn:           time.Date(2025, time.May, 30, 0, 0, 0, 0, time.UTC),
		ArtifactRef:        "https://cdn.example/d.png",
		LedgerTxRef:        "tx-1",
		IssuanceStatus:     models.IssuanceConfirmed,
		VerificationStatus: models.VerificationPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func issueBody() IssueRequest {
	return IssueRequest{
		HolderID:       " h1@uni.example ",
		Title:          "  Diploma  ",
		Classification: ClassificationRequest{College: "Engineering", Course: "BSc", Major: "CS"},
		ArtifactRef:    "https://cdn.example/d.png",
		IssuedOn:       "2025-05-30",
	}
}

func (s *HandlerSuite) TestIssue() {
	s.Run("binds issuer to the authenticated subject", func() {
		s.service.EXPECT().IssueCertificate(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, in models.IssueInput) (*models.IssueResult, error) {
				s.Equal(domain.IssuerID("registrar@uni.example"), in.IssuerID)
				s.Equal(domain.HolderID("h1@uni.example"), in.HolderID)
				s.Equal("Diploma", in.Title)
				s.Equal(time.Date(2025, time.May, 30, 0, 0, 0, 0, time.UTC), in.IssuedOn)
				return &models.IssueResult{Certificate: sampleCertificate(fp1), LedgerRef: "tx-1"}, nil
			})

		w := s.do(http.MethodPost, "/certificates", issueBody(), "registrar@uni.example", domain.RoleIssuer)

		s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
		var res IssueResponse
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &res))
		s.Equal("tx-1", res.LedgerRef)
		s.Equal(fp1, res.Certificate.Fingerprint)
		s.Equal("2025-05-30", res.Certificate.IssuedOn)
		s.Equal("PENDING", res.Certificate.VerificationStatus)
	})

	s.Run("holder role is forbidden", func() {
		w := s.do(http.MethodPost, "/certificates", issueBody(), "h1@uni.example", domain.RoleHolder)
		s.assertError(w, http.StatusForbidden, "forbidden")
	})

	s.Run("missing principal is an internal error", func() {
		w := s.do(http.MethodPost, "/certificates", issueBody(), "", "")
		s.assertError(w, http.StatusInternalServerError, "internal_error")
	})

	s.Run("malformed date is rejected before the service", func() {
		body := issueBody()
		body.IssuedOn = "30/05/2025"
		w := s.do(http.MethodPost, "/certificates", body, "registrar@uni.example", domain.RoleIssuer)
		s.assertError(w, http.StatusBadRequest, "validation_error")
	})

	s.Run("missing artifact is rejected", func() {
		body := issueBody()
		body.ArtifactRef = ""
		w := s.do(http.MethodPost, "/certificates", body, "registrar@uni.example", domain.RoleIssuer)
		s.assertError(w, http.StatusBadRequest, "validation_error")
	})

	s.Run("unknown fields are rejected", func() {
		w := s.do(http.MethodPost, "/certificates", map[string]string{"holder": "x"}, "registrar@uni.example", domain.RoleIssuer)
		s.assertError(w, http.StatusBadRequest, "bad_request")
	})

	s.Run("duplicate maps to 409", func() {
		s.service.EXPECT().IssueCertificate(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeDuplicateCertificate, "certificate already issued"))
		w := s.do(http.MethodPost, "/certificates", issueBody(), "registrar@uni.example", domain.RoleIssuer)
		s.assertError(w, http.StatusConflict, "duplicate_certificate")
	})

	s.Run("ledger outage maps to 503 with Retry-After", func() {
		s.service.EXPECT().IssueCertificate(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeLedgerUnavailable, "ledger unavailable"))
		w := s.do(http.MethodPost, "/certificates", issueBody(), "registrar@uni.example", domain.RoleIssuer)
		s.assertError(w, http.StatusServiceUnavailable, "ledger_unavailable")
		s.Equal("1", w.Header().Get("Retry-After"))
	})

	s.Run("store failure after commit maps to 500 inconsistent_state", func() {
		s.service.EXPECT().IssueCertificate(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeInconsistentState, "pending reconciliation"))
		w := s.do(http.MethodPost, "/certificates", issueBody(), "registrar@uni.example", domain.RoleIssuer)
		s.assertError(w, http.StatusInternalServerError, "inconsistent_state")
	})
}

func (s *HandlerSuite) TestBulkIssue() {
	body := BulkIssueRequest{
		Title:    "Diploma",
		IssuedOn: "2025-05-30",
		Holders: []BulkHolderRequest{
			{HolderID: "h1@uni.example", ArtifactRef: "https://cdn.example/1.png"},
			{HolderID: "h2@uni.example", ArtifactRef: "https://cdn.example/2.png"},
		},
	}

	s.Run("partial failure is 207 with per-item results", func() {
		s.service.EXPECT().BulkIssueCertificates(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, in models.BulkIssueInput) (*service.BulkIssueResult, error) {
				s.Require().Len(in.Holders, 2)
				s.Equal(domain.HolderID("h2@uni.example"), in.Holders[1].HolderID)
				results := []bulk.Result[models.IssueResult]{
					{Key: "h1@uni.example", Status: bulk.StatusSuccess, Payload: &models.IssueResult{Certificate: sampleCertificate(fp1), LedgerRef: "tx-1"}},
					{Key: "h2@uni.example", Status: bulk.StatusFailed, Error: &bulk.ItemError{Kind: "DuplicateCertificate", Message: "already issued"}},
				}
				return &service.BulkIssueResult{LedgerRef: "batch-1", TotalIssued: 1, Summary: bulk.Summarize(results), Results: results}, nil
			})

		w := s.do(http.MethodPost, "/certificates/bulk", body, "registrar@uni.example", domain.RoleIssuer)

		s.Require().Equal(http.StatusMultiStatus, w.Code, w.Body.String())
		var res BulkIssueResponse
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &res))
		s.Equal(1, res.TotalIssued)
		s.Equal(bulk.Summary{Total: 2, Succeeded: 1, Failed: 1}, res.Summary)
		s.Require().Len(res.Certificates, 2)
		s.Equal(fp1, res.Certificates[0].Payload.Certificate.Fingerprint)
		s.Nil(res.Certificates[1].Payload)
		s.Equal("DuplicateCertificate", res.Certificates[1].Error.Kind)
	})

	s.Run("batch rejected wholesale maps to 400", func() {
		s.service.EXPECT().BulkIssueCertificates(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeValidation, "holders must contain at least 2 items"))
		w := s.do(http.MethodPost, "/certificates/bulk", body, "registrar@uni.example", domain.RoleIssuer)
		s.assertError(w, http.StatusBadRequest, "validation_error")
	})

	s.Run("blank holder is rejected before the service", func() {
		bad := body
		bad.Holders = []BulkHolderRequest{{HolderID: " ", ArtifactRef: "https://cdn.example/1.png"}, body.Holders[1]}
		w := s.do(http.MethodPost, "/certificates/bulk", bad, "registrar@uni.example", domain.RoleIssuer)
		s.assertError(w, http.StatusBadRequest, "validation_error")
	})
}

func (s *HandlerSuite) TestVerify() {
	s.Run("any authenticated role may verify", func() {
		for _, role := range []domain.Role{domain.RoleVerifier, domain.RoleHolder, domain.RoleIssuer} {
			s.service.EXPECT().VerifyCertificate(gomock.Any(), fp1).Return(&models.VerificationOutcome{
				Fingerprint:    fp1,
				Valid:          true,
				Status:         models.VerificationVerified,
				IssuanceStatus: models.IssuanceConfirmed,
				OnChainHolder:  "h1@uni.example",
				LedgerTxRef:    "tx-1",
				Certificate:    sampleCertificate(fp1),
			}, nil)

			w := s.do(http.MethodPost, "/certificates/verify", VerifyRequest{Fingerprint: fp1}, "someone", role)

			s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
			var res VerifyResponse
			s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &res))
			s.True(res.Outcome.Valid)
			s.Equal("VERIFIED", res.Outcome.Status)
			s.Equal(fp1, res.Certificate.Fingerprint)
		}
	})

	s.Run("mismatch is reported in the outcome", func() {
		s.service.EXPECT().VerifyCertificate(gomock.Any(), fp1).Return(&models.VerificationOutcome{
			Fingerprint: fp1,
			Status:      models.VerificationNotVerified,
			Reason:      models.ReasonIdentityMismatch,
			Certificate: sampleCertificate(fp1),
		}, nil)

		w := s.do(http.MethodPost, "/certificates/verify", VerifyRequest{Fingerprint: fp1}, "v", domain.RoleVerifier)

		s.Require().Equal(http.StatusOK, w.Code)
		var res VerifyResponse
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &res))
		s.False(res.Outcome.Valid)
		s.Equal("identity_mismatch", res.Outcome.Reason)
	})

	s.Run("uppercase fingerprint is rejected", func() {
		w := s.do(http.MethodPost, "/certificates/verify", VerifyRequest{Fingerprint: strings.ToUpper(fp1)}, "v", domain.RoleVerifier)
		s.assertError(w, http.StatusBadRequest, "validation_error")
	})

	s.Run("unknown fingerprint is 404", func() {
		s.service.EXPECT().VerifyCertificate(gomock.Any(), fp2).Return(nil, dErrors.New(dErrors.CodeNotFound, "certificate not found"))
		w := s.do(http.MethodPost, "/certificates/verify", VerifyRequest{Fingerprint: fp2}, "v", domain.RoleVerifier)
		s.assertError(w, http.StatusNotFound, "not_found")
	})

	s.Run("unauthenticated is an internal error", func() {
		w := s.do(http.MethodPost, "/certificates/verify", VerifyRequest{Fingerprint: fp1}, "", "")
		s.assertError(w, http.StatusInternalServerError, "internal_error")
	})
}

func (s *HandlerSuite) TestBulkVerify() {
	s.service.EXPECT().BulkVerifyCertificates(gomock.Any(), []string{fp1, fp2}).
		DoAndReturn(func(context.Context, []string) (*service.BulkVerifyResult, error) {
			results := []bulk.Result[models.VerificationOutcome]{
				{Key: fp1, Status: bulk.StatusSuccess, Payload: &models.VerificationOutcome{Fingerprint: fp1, Valid: true, Status: models.VerificationVerified}},
				{Key: fp2, Status: bulk.StatusFailed, Error: &bulk.ItemError{Kind: string(models.KindNotFound), Message: "certificate not found"}},
			}
			return &service.BulkVerifyResult{Summary: bulk.Summarize(results), Results: results}, nil
		})

	w := s.do(http.MethodPost, "/certificates/verify/bulk", BulkVerifyRequest{Fingerprints: []string{fp1, " " + fp2}}, "v", domain.RoleVerifier)

	s.Require().Equal(http.StatusMultiStatus, w.Code, w.Body.String())
	var res BulkVerifyResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &res))
	s.Require().Len(res.Results, 2)
	s.Equal(bulk.StatusSuccess, res.Results[0].Status)
	s.Equal(fp2, res.Results[1].Key)
	s.Equal("NotFound", res.Results[1].Error.Kind)
}

func (s *HandlerSuite) TestBulkStatus() {
	s.Equal(http.StatusOK, bulkStatus(3, 0))
	s.Equal(http.StatusMultiStatus, bulkStatus(2, 1))
	s.Equal(http.StatusUnprocessableEntity, bulkStatus(0, 3))
}

func (s *HandlerSuite) TestUpdateStatus() {
	s.Run("revokes as the calling issuer", func() {
		revoked := sampleCertificate(fp1)
		revoked.IssuanceStatus = models.IssuanceRevoked
		s.service.EXPECT().
			UpdateCertificateStatus(gomock.Any(), domain.IssuerID("registrar@uni.example"), fp1, models.IssuanceRevoked).
			Return(revoked, nil)

		w := s.do(http.MethodPatch, "/certificates/"+fp1+"/status", UpdateStatusRequest{Status: "revoked"}, "registrar@uni.example", domain.RoleIssuer)

		s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
		var res CertificateResponse
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &res))
		s.Equal("REVOKED", res.IssuanceStatus)
	})

	s.Run("unknown status is rejected", func() {
		w := s.do(http.MethodPatch, "/certificates/"+fp1+"/status", UpdateStatusRequest{Status: "EXPIRED"}, "registrar@uni.example", domain.RoleIssuer)
		s.assertError(w, http.StatusBadRequest, "validation_error")
	})

	s.Run("another issuer's certificate is forbidden", func() {
		s.service.EXPECT().UpdateCertificateStatus(gomock.Any(), gomock.Any(), fp1, models.IssuanceRevoked).
			Return(nil, dErrors.New(dErrors.CodeForbidden, "certificate belongs to another issuer"))
		w := s.do(http.MethodPatch, "/certificates/"+fp1+"/status", UpdateStatusRequest{Status: "REVOKED"}, "other@uni.example", domain.RoleIssuer)
		s.assertError(w, http.StatusForbidden, "forbidden")
	})

	s.Run("verifier role cannot change status", func() {
		w := s.do(http.MethodPatch, "/certificates/"+fp1+"/status", UpdateStatusRequest{Status: "REVOKED"}, "v", domain.RoleVerifier)
		s.assertError(w, http.StatusForbidden, "forbidden")
	})
}

func (s *HandlerSuite) TestGet() {
	s.service.EXPECT().GetCertificate(gomock.Any(), fp1).Return(sampleCertificate(fp1), nil)
	w := s.do(http.MethodGet, "/certificates/"+fp1, nil, "v", domain.RoleVerifier)
	s.Require().Equal(http.StatusOK, w.Code)

	s.service.EXPECT().GetCertificate(gomock.Any(), fp2).Return(nil, dErrors.New(dErrors.CodeNotFound, "certificate not found"))
	w = s.do(http.MethodGet, "/certificates/"+fp2, nil, "v", domain.RoleVerifier)
	s.assertError(w, http.StatusNotFound, "not_found")
}

func (s *HandlerSuite) TestListings() {
	s.Run("holder listing pages with defaults", func() {
		s.service.EXPECT().
			ListHolderCertificates(gomock.Any(), domain.HolderID("h1@uni.example"), models.ListFilter{Limit: models.DefaultListLimit}).
			Return([]*models.Certificate{sampleCertificate(fp1)}, nil)

		w := s.do(http.MethodGet, "/holders/me/certificates", nil, "h1@uni.example", domain.RoleHolder)

		s.Require().Equal(http.StatusOK, w.Code)
		var res ListResponse
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &res))
		s.Len(res.Certificates, 1)
		s.Equal(models.DefaultListLimit, res.Limit)
	})

	s.Run("issuer listing passes filter and clamps limit", func() {
		s.service.EXPECT().
			ListIssuerCertificates(gomock.Any(), domain.IssuerID("registrar@uni.example"),
				models.ListFilter{Limit: maxPageSize, Offset: 10, Status: models.IssuanceRevoked}).
			Return(nil, nil)

		w := s.do(http.MethodGet, "/issuers/me/certificates?limit=5000&offset=10&status=revoked", nil, "registrar@uni.example", domain.RoleIssuer)

		s.Require().Equal(http.StatusOK, w.Code)
		var res ListResponse
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &res))
		s.NotNil(res.Certificates)
		s.Empty(res.Certificates)
	})

	s.Run("bad paging is rejected", func() {
		w := s.do(http.MethodGet, "/issuers/me/certificates?limit=-1", nil, "registrar@uni.example", domain.RoleIssuer)
		s.assertError(w, http.StatusBadRequest, "validation_error")
	})

	s.Run("issuer cannot use the holder listing", func() {
		w := s.do(http.MethodGet, "/holders/me/certificates", nil, "registrar@uni.example", domain.RoleIssuer)
		s.assertError(w, http.StatusForbidden, "forbidden")
	})
}

func (s *HandlerSuite) TestExportCSV() {
	full := make([]*models.Certificate, exportPageSize)
	for i := range full {
		full[i] = sampleCertificate(fp1)
	}
	last := sampleCertificate(fp2)
	verifiedAt := time.Date(2025, time.June, 2, 0, 0, 0, 0, time.UTC)
	last.VerifiedAt = &verifiedAt

	issuer := domain.IssuerID("registrar@uni.example")
	gomock.InOrder(
		s.service.EXPECT().ListIssuerCertificates(gomock.Any(), issuer, models.ListFilter{Limit: exportPageSize}).Return(full, nil),
		s.service.EXPECT().ListIssuerCertificates(gomock.Any(), issuer, models.ListFilter{Limit: exportPageSize, Offset: exportPageSize}).
			Return([]*models.Certificate{last}, nil),
	)

	w := s.do(http.MethodGet, "/issuers/me/certificates.csv", nil, issuer.String(), domain.RoleIssuer)

	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal("text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	records, err := csv.NewReader(w.Body).ReadAll()
	s.Require().NoError(err)
	s.Require().Len(records, exportPageSize+2)
	s.Equal(csvHeader, records[0])
	lastRow := records[len(records)-1]
	s.Equal(fp2, lastRow[0])
	s.Equal("2025-05-30", lastRow[6])
	s.Equal("2025-06-02T00:00:00Z", lastRow[12])
}

func (s *HandlerSuite) TestAdminDelete() {
	s.service.EXPECT().DeleteCertificate(gomock.Any(), fp1).Return(nil)
	w := s.do(http.MethodDelete, "/admin/certificates/"+fp1, nil, "", "")
	s.Equal(http.StatusNoContent, w.Code)

	s.service.EXPECT().DeleteCertificate(gomock.Any(), fp2).Return(dErrors.New(dErrors.CodeNotFound, "certificate not found"))
	w = s.do(http.MethodDelete, "/admin/certificates/"+fp2, nil, "", "")
	s.assertError(w, http.StatusNotFound, "not_found")
}
