package handler

import (
	"strconv"
	"strings"
	"time"

	"certledger/internal/certificate/models"
	"certledger/pkg/domain"
	dErrors "certledger/pkg/domain-errors"
	s "certledger/pkg/string"
	"certledger/pkg/validation"
)

// ClassificationRequest carries the free-text organizational attributes.
type ClassificationRequest struct {
	College string `json:"college" validate:"max=200"`
	Course  string `json:"course" validate:"max=200"`
	Major   string `json:"major" validate:"max=200"`
}

func (c *ClassificationRequest) normalize() {
	s.TrimStrings(&c.College, &c.Course, &c.Major)
}

func (c ClassificationRequest) toModel() models.Classification {
	return models.Classification{College: c.College, Course: c.Course, Major: c.Major}
}

// IssueRequest issues one certificate. The issuer is the authenticated principal.
type IssueRequest struct {
	HolderID       string                `json:"holderId" validate:"required,notblank,max=320"`
	Title          string                `json:"title" validate:"required,notblank,max=200"`
	Classification ClassificationRequest `json:"classification"`
	ArtifactRef    string                `json:"artifactRef" validate:"required,max=2048"`
	IssuedOn       string                `json:"issuedOn" validate:"required,isodate"`
}

func (r *IssueRequest) Normalize() {
	if r == nil {
		return
	}
	s.TrimStrings(&r.HolderID, &r.ArtifactRef, &r.IssuedOn)
	r.Title = s.CollapseSpace(r.Title)
	r.Classification.normalize()
}

func (r *IssueRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return validation.Validate(r)
}

// ToInput binds the request to the issuing principal.
func (r *IssueRequest) ToInput(issuer domain.IssuerID) (models.IssueInput, error) {
	holder, err := domain.ParseHolderID(r.HolderID)
	if err != nil {
		return models.IssueInput{}, err
	}
	issuedOn, err := validation.ParseISODate(r.IssuedOn)
	if err != nil {
		return models.IssueInput{}, err
	}
	return models.IssueInput{
		IssuerID:       issuer,
		HolderID:       holder,
		Title:          r.Title,
		Classification: r.Classification.toModel(),
		ArtifactRef:    r.ArtifactRef,
		IssuedOn:       issuedOn,
	}, nil
}

// BulkHolderRequest is one recipient of a bulk issuance.
type BulkHolderRequest struct {
	HolderID    string `json:"holderId" validate:"required,notblank,max=320"`
	ArtifactRef string `json:"artifactRef" validate:"required,max=2048"`
}

// BulkIssueRequest issues the same certificate to several holders.
type BulkIssueRequest struct {
	Title          string                `json:"title" validate:"required,notblank,max=200"`
	Classification ClassificationRequest `json:"classification"`
	IssuedOn       string                `json:"issuedOn" validate:"required,isodate"`
	Holders        []BulkHolderRequest   `json:"holders" validate:"required,dive"`
}

func (r *BulkIssueRequest) Normalize() {
	if r == nil {
		return
	}
	r.Title = s.CollapseSpace(r.Title)
	s.TrimStrings(&r.IssuedOn)
	r.Classification.normalize()
	for i := range r.Holders {
		s.TrimStrings(&r.Holders[i].HolderID, &r.Holders[i].ArtifactRef)
	}
}

func (r *BulkIssueRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return validation.Validate(r)
}

func (r *BulkIssueRequest) ToInput(issuer domain.IssuerID) (models.BulkIssueInput, error) {
	issuedOn, err := validation.ParseISODate(r.IssuedOn)
	if err != nil {
		return models.BulkIssueInput{}, err
	}
	holders := make([]models.BulkHolder, 0, len(r.Holders))
	for _, h := range r.Holders {
		holder, err := domain.ParseHolderID(h.HolderID)
		if err != nil {
			return models.BulkIssueInput{}, err
		}
		holders = append(holders, models.BulkHolder{HolderID: holder, ArtifactRef: h.ArtifactRef})
	}
	return models.BulkIssueInput{
		IssuerID:       issuer,
		Title:          r.Title,
		Classification: r.Classification.toModel(),
		IssuedOn:       issuedOn,
		Holders:        holders,
	}, nil
}

// VerifyRequest names one fingerprint to cross-check.
type VerifyRequest struct {
	Fingerprint string `json:"fingerprint" validate:"required,fingerprint"`
}

func (r *VerifyRequest) Normalize() {
	if r != nil {
		s.TrimStrings(&r.Fingerprint)
	}
}

func (r *VerifyRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return validation.Validate(r)
}

// BulkVerifyRequest lists fingerprints to cross-check. Batch limits and
// duplicate detection are enforced by the service.
type BulkVerifyRequest struct {
	Fingerprints []string `json:"fingerprints" validate:"required"`
}

func (r *BulkVerifyRequest) Normalize() {
	if r != nil {
		s.TrimSlice(r.Fingerprints)
	}
}

func (r *BulkVerifyRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return validation.Validate(r)
}

// UpdateStatusRequest moves a certificate between CONFIRMED and REVOKED.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (r *UpdateStatusRequest) Normalize() {
	if r != nil {
		r.Status = strings.ToUpper(strings.TrimSpace(r.Status))
	}
}

func (r *UpdateStatusRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if err := validation.Validate(r); err != nil {
		return err
	}
	_, err := models.ParseIssuanceStatus(r.Status)
	return err
}

// listFilter reads limit, offset and status from the query string.
func listFilter(limit, offset, status string) (models.ListFilter, error) {
	var f models.ListFilter
	var err error
	if limit != "" {
		if f.Limit, err = atoiField("limit", limit); err != nil {
			return f, err
		}
	}
	if offset != "" {
		if f.Offset, err = atoiField("offset", offset); err != nil {
			return f, err
		}
	}
	if status != "" {
		if f.Status, err = models.ParseIssuanceStatus(status); err != nil {
			return f, err
		}
	}
	return f, nil
}

func atoiField(name, v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, dErrors.New(dErrors.CodeValidation, name+" must be a non-negative integer")
	}
	return n, nil
}

func formatDate(t time.Time) string {
	return t.UTC().Format(validation.ISODateLayout)
}
