package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	dErrors "certledger/pkg/domain-errors"
)

func TestArtifactRef(t *testing.T) {
	tests := []struct {
		name    string
		ref     string
		allowed []string
		wantErr bool
	}{
		{name: "png", ref: "https://files.example/certs/a.png"},
		{name: "upper-case extension", ref: "https://files.example/certs/a.JPEG"},
		{name: "query string ignored", ref: "https://files.example/a.webp?sig=abc"},
		{name: "plain http", ref: "http://files.example/a.jpg"},
		{name: "empty", ref: "  ", wantErr: true},
		{name: "relative", ref: "/certs/a.png", wantErr: true},
		{name: "ftp", ref: "ftp://files.example/a.png", wantErr: true},
		{name: "pdf", ref: "https://files.example/a.pdf", wantErr: true},
		{name: "extension only in query", ref: "https://files.example/a?f=x.png", wantErr: true},
		{name: "custom allow-list", ref: "https://files.example/a.pdf", allowed: []string{".pdf"}},
		{name: "custom allow-list rejects default", ref: "https://files.example/a.png", allowed: []string{".pdf"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ArtifactRef(tt.ref, tt.allowed)
			if tt.wantErr {
				assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
				return
			}
			assert.NoError(t, err)
		})
	}
}
