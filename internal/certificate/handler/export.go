package handler

import (
	"encoding/csv"
	"net/http"
	"time"

	"certledger/internal/certificate/models"
	"certledger/pkg/domain"
	"certledger/pkg/platform/httputil"
	"certledger/pkg/requestcontext"
)

// exportPageSize pages through the store so an export never holds more than
// one page in memory.
const exportPageSize = maxPageSize

var csvHeader = []string{
	"fingerprint", "holder_id", "title", "college", "course", "major",
	"issued_on", "artifact_ref", "ledger_tx_ref", "batch_ref",
	"issuance_status", "verification_status", "verified_at", "created_at",
}

// HandleExportIssuerCSV streams every certificate of the calling issuer.
// Headers are committed on the first row, so a store failure midway
// truncates the file and is only logged.
func (h *Handler) HandleExportIssuerCSV(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	issuer, ok := h.issuer(w, r)
	if !ok {
		return
	}
	var status models.IssuanceStatus
	if v := r.URL.Query().Get("status"); v != "" {
		st, err := models.ParseIssuanceStatus(v)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		status = st
	}

	first, err := h.service.ListIssuerCertificates(ctx, issuer, models.ListFilter{Limit: exportPageSize, Status: status})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="certificates.csv"`)
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	_ = cw.Write(csvHeader)
	rows, err := h.writeRows(r, cw, issuer, status, first)
	cw.Flush()
	if err == nil {
		err = cw.Error()
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "certificate export interrupted",
			"issuer_id", issuer.String(),
			"rows", rows,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return
	}
	h.logger.InfoContext(ctx, "certificate export completed",
		"issuer_id", issuer.String(),
		"rows", rows,
		"request_id", requestcontext.RequestID(ctx),
	)
}

func (h *Handler) writeRows(r *http.Request, cw *csv.Writer, issuer domain.IssuerID, status models.IssuanceStatus, page []*models.Certificate) (int, error) {
	rows := 0
	offset := 0
	for {
		for _, c := range page {
			if err := cw.Write(csvRow(c)); err != nil {
				return rows, err
			}
			rows++
		}
		if len(page) < exportPageSize {
			return rows, nil
		}
		offset += len(page)
		var err error
		page, err = h.service.ListIssuerCertificates(r.Context(), issuer, models.ListFilter{Limit: exportPageSize, Offset: offset, Status: status})
		if err != nil {
			return rows, err
		}
	}
}

func csvRow(c *models.Certificate) []string {
	verifiedAt := ""
	if c.VerifiedAt != nil {
		verifiedAt = c.VerifiedAt.UTC().Format(time.RFC3339)
	}
	return []string{
		c.Fingerprint.String(),
		c.HolderID.String(),
		c.Title,
		c.Classification.College,
		c.Classification.Course,
		c.Classification.Major,
		formatDate(c.IssuedOn),
		c.ArtifactRef,
		c.LedgerTxRef,
		c.BatchRef,
		string(c.IssuanceStatus),
		string(c.VerificationStatus),
		verifiedAt,
		c.CreatedAt.UTC().Format(time.RFC3339),
	}
}
