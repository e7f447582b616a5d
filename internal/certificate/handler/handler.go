// Package handler exposes certificate issuance, verification and the read
// side over HTTP. Handlers decode and authorize; every rule lives in the service.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"certledger/internal/certificate/models"
	"certledger/internal/certificate/service"
	"certledger/pkg/domain"
	"certledger/pkg/platform/httputil"
	"certledger/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service is the certificate engine as seen by the HTTP layer.
type Service interface {
	IssueCertificate(ctx context.Context, in models.IssueInput) (*models.IssueResult, error)
	BulkIssueCertificates(ctx context.Context, in models.BulkIssueInput) (*service.BulkIssueResult, error)
	VerifyCertificate(ctx context.Context, fingerprint string) (*models.VerificationOutcome, error)
	BulkVerifyCertificates(ctx context.Context, fingerprints []string) (*service.BulkVerifyResult, error)
	UpdateCertificateStatus(ctx context.Context, issuer domain.IssuerID, fingerprint string, to models.IssuanceStatus) (*models.Certificate, error)
	GetCertificate(ctx context.Context, fingerprint string) (*models.Certificate, error)
	ListIssuerCertificates(ctx context.Context, issuer domain.IssuerID, f models.ListFilter) ([]*models.Certificate, error)
	ListHolderCertificates(ctx context.Context, holder domain.HolderID, f models.ListFilter) ([]*models.Certificate, error)
	DeleteCertificate(ctx context.Context, fingerprint string) error
}

const maxPageSize = 200

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

// Register mounts the authenticated routes. The caller installs the auth
// middleware on r.
func (h *Handler) Register(r chi.Router) {
	r.Post("/certificates", h.HandleIssue)
	r.Post("/certificates/bulk", h.HandleBulkIssue)
	r.Post("/certificates/verify", h.HandleVerify)
	r.Post("/certificates/verify/bulk", h.HandleBulkVerify)
	r.Get("/certificates/{fingerprint}", h.HandleGet)
	r.Patch("/certificates/{fingerprint}/status", h.HandleUpdateStatus)
	r.Get("/issuers/me/certificates", h.HandleListIssuer)
	r.Get("/issuers/me/certificates.csv", h.HandleExportIssuerCSV)
	r.Get("/holders/me/certificates", h.HandleListHolder)
}

// RegisterAdmin mounts operator routes. The caller installs the admin token
// middleware on r.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Delete("/admin/certificates/{fingerprint}", h.HandleAdminDelete)
}

func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	issuer, ok := h.issuer(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[IssueRequest](w, r, h.logger)
	if !ok {
		return
	}
	in, err := req.ToInput(issuer)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	res, err := h.service.IssueCertificate(ctx, in)
	if err != nil {
		h.logFailure(ctx, "issue certificate failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toIssueResponse(res))
}

func (h *Handler) HandleBulkIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	issuer, ok := h.issuer(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[BulkIssueRequest](w, r, h.logger)
	if !ok {
		return
	}
	in, err := req.ToInput(issuer)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	res, err := h.service.BulkIssueCertificates(ctx, in)
	if err != nil {
		h.logFailure(ctx, "bulk issue failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, bulkStatus(res.Summary.Succeeded, res.Summary.Failed), toBulkIssueResponse(res))
}

func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, err := httputil.RequirePrincipal(ctx, h.logger); err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[VerifyRequest](w, r, h.logger)
	if !ok {
		return
	}

	out, err := h.service.VerifyCertificate(ctx, req.Fingerprint)
	if err != nil {
		h.logFailure(ctx, "verify certificate failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toVerifyResponse(out))
}

func (h *Handler) HandleBulkVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, err := httputil.RequirePrincipal(ctx, h.logger); err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[BulkVerifyRequest](w, r, h.logger)
	if !ok {
		return
	}

	res, err := h.service.BulkVerifyCertificates(ctx, req.Fingerprints)
	if err != nil {
		h.logFailure(ctx, "bulk verify failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, bulkStatus(res.Summary.Succeeded, res.Summary.Failed), toBulkVerifyResponse(res))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, err := httputil.RequirePrincipal(ctx, h.logger); err != nil {
		httputil.WriteError(w, err)
		return
	}

	c, err := h.service.GetCertificate(ctx, chi.URLParam(r, "fingerprint"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCertificateResponse(c))
}

func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	issuer, ok := h.issuer(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateStatusRequest](w, r, h.logger)
	if !ok {
		return
	}

	c, err := h.service.UpdateCertificateStatus(ctx, issuer, chi.URLParam(r, "fingerprint"), models.IssuanceStatus(req.Status))
	if err != nil {
		h.logFailure(ctx, "update certificate status failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCertificateResponse(c))
}

func (h *Handler) HandleListIssuer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	issuer, ok := h.issuer(w, r)
	if !ok {
		return
	}
	f, ok := h.filter(w, r)
	if !ok {
		return
	}

	certs, err := h.service.ListIssuerCertificates(ctx, issuer, f)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toListResponse(certs, f))
}

func (h *Handler) HandleListHolder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject, err := httputil.RequirePrincipal(ctx, h.logger, domain.RoleHolder)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	holder, err := domain.ParseHolderID(subject)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	f, ok := h.filter(w, r)
	if !ok {
		return
	}

	certs, err := h.service.ListHolderCertificates(ctx, holder, f)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toListResponse(certs, f))
}

func (h *Handler) HandleAdminDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	fp := chi.URLParam(r, "fingerprint")
	if err := h.service.DeleteCertificate(ctx, fp); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "admin deleted certificate",
		"fingerprint", fp,
		"request_id", requestcontext.RequestID(ctx),
	)
	w.WriteHeader(http.StatusNoContent)
}

// issuer resolves the authenticated principal as an issuer identity.
func (h *Handler) issuer(w http.ResponseWriter, r *http.Request) (domain.IssuerID, bool) {
	subject, err := httputil.RequirePrincipal(r.Context(), h.logger, domain.RoleIssuer)
	if err != nil {
		httputil.WriteError(w, err)
		return "", false
	}
	issuer, err := domain.ParseIssuerID(subject)
	if err != nil {
		httputil.WriteError(w, err)
		return "", false
	}
	return issuer, true
}

func (h *Handler) filter(w http.ResponseWriter, r *http.Request) (models.ListFilter, bool) {
	q := r.URL.Query()
	f, err := listFilter(q.Get("limit"), q.Get("offset"), q.Get("status"))
	if err != nil {
		httputil.WriteError(w, err)
		return models.ListFilter{}, false
	}
	return f.Normalized(maxPageSize), true
}

func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	h.logger.WarnContext(ctx, msg,
		"error", err,
		"kind", models.KindString(err),
		"request_id", requestcontext.RequestID(ctx),
	)
}

// bulkStatus is 200 when every item succeeded, 207 when some failed and
// 422 when none did.
func bulkStatus(succeeded, failed int) int {
	switch {
	case failed == 0:
		return http.StatusOK
	case succeeded == 0:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusMultiStatus
	}
}
