package validation

import (
	"net/url"
	"path"
	"strings"

	dErrors "certledger/pkg/domain-errors"
)

// DefaultArtifactExtensions are the image formats accepted for certificate artifacts.
var DefaultArtifactExtensions = []string{".png", ".jpg", ".jpeg", ".webp"}

// ArtifactRef checks that ref is an absolute http(s) URL whose path ends in
// one of allowed (case-insensitive). The artifact itself is never fetched.
func ArtifactRef(ref string, allowed []string) error {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return dErrors.New(dErrors.CodeValidation, "artifact_ref is required")
	}
	u, err := url.Parse(ref)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return dErrors.New(dErrors.CodeValidation, "artifact_ref must be an absolute url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return dErrors.New(dErrors.CodeValidation, "artifact_ref must use http or https")
	}
	if len(allowed) == 0 {
		allowed = DefaultArtifactExtensions
	}
	ext := strings.ToLower(path.Ext(u.Path))
	for _, a := range allowed {
		if ext == strings.ToLower(a) {
			return nil
		}
	}
	return dErrors.New(dErrors.CodeValidation, "artifact_ref must point to one of "+strings.Join(allowed, ", "))
}
