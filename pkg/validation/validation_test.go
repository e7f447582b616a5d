package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "certledger/pkg/domain-errors"
)

type sampleRequest struct {
	HolderID    string `validate:"required,notblank,max=256"`
	Fingerprint string `validate:"omitempty,fingerprint"`
	IssuedOn    string `validate:"required,isodate"`
	Role        string `validate:"omitempty,oneof=issuer holder verifier"`
}

func TestValidate(t *testing.T) {
	valid := sampleRequest{
		HolderID:    "0xabc",
		Fingerprint: strings.Repeat("ab", 32),
		IssuedOn:    "2024-06-01",
	}
	require.NoError(t, Validate(valid))

	cases := []struct {
		name    string
		mutate  func(*sampleRequest)
		message string
	}{
		{"missing holder", func(r *sampleRequest) { r.HolderID = "" }, "holder_id is required"},
		{"blank holder", func(r *sampleRequest) { r.HolderID = "   " }, "holder_id must not be blank"},
		{"uppercase fingerprint", func(r *sampleRequest) { r.Fingerprint = strings.Repeat("AB", 32) }, "fingerprint must be a 64 character hex digest"},
		{"bad date", func(r *sampleRequest) { r.IssuedOn = "06/01/2024" }, "issued_on must be a YYYY-MM-DD date"},
		{"unknown role", func(r *sampleRequest) { r.Role = "admin" }, "role must be one of [issuer holder verifier]"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := valid
			tc.mutate(&req)
			err := Validate(req)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
			assert.Equal(t, tc.message, err.Error())
		})
	}
}

func TestParseISODate(t *testing.T) {
	d, err := ParseISODate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, 2024, d.Year())

	_, err = ParseISODate("2023-02-29")
	assert.Error(t, err)
}
