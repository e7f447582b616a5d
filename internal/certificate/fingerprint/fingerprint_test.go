package fingerprint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certledger/internal/certificate/models"
	"certledger/pkg/validation"
)

func baseFields() Fields {
	return Fields{
		IssuerID: "registrar@uni.example",
		HolderID: "0xAbC123",
		Title:    "Bachelor of Science",
		Classification: models.Classification{
			College: "Engineering",
			Course:  "Computer Science",
			Major:   "Distributed Systems",
		},
		IssuedOn: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	a := Compute(baseFields())
	b := Compute(baseFields())
	assert.Equal(t, a, b)
	require.Len(t, a.String(), 64)
	assert.True(t, validation.IsFingerprint(a.String()))
}

func TestComputeNormalization(t *testing.T) {
	base := Compute(baseFields())

	t.Run("identity case is ignored", func(t *testing.T) {
		f := baseFields()
		f.IssuerID = "REGISTRAR@UNI.EXAMPLE"
		f.HolderID = "0xabc123"
		assert.Equal(t, base, Compute(f))
	})

	t.Run("surrounding and repeated whitespace is ignored", func(t *testing.T) {
		f := baseFields()
		f.Title = "  Bachelor   of\tScience "
		f.Classification.College = "Engineering "
		assert.Equal(t, base, Compute(f))
	})

	t.Run("time of day and zone are ignored", func(t *testing.T) {
		f := baseFields()
		f.IssuedOn = time.Date(2024, 6, 1, 17, 45, 0, 0, time.UTC)
		assert.Equal(t, base, Compute(f))
	})
}

func TestComputeSensitivity(t *testing.T) {
	base := Compute(baseFields())
	cases := map[string]func(f *Fields){
		"title case":  func(f *Fields) { f.Title = "bachelor of science" },
		"holder":      func(f *Fields) { f.HolderID = "0xdef456" },
		"issuer":      func(f *Fields) { f.IssuerID = "dean@uni.example" },
		"college":     func(f *Fields) { f.Classification.College = "Science" },
		"course":      func(f *Fields) { f.Classification.Course = "Mathematics" },
		"major":       func(f *Fields) { f.Classification.Major = "Algebra" },
		"issued date": func(f *Fields) { f.IssuedOn = f.IssuedOn.AddDate(0, 0, 1) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			f := baseFields()
			mutate(&f)
			assert.NotEqual(t, base, Compute(f))
		})
	}
}

func TestComputeFieldBoundaries(t *testing.T) {
	a := baseFields()
	a.Classification.College = "ab"
	a.Classification.Course = "c"
	b := baseFields()
	b.Classification.College = "a"
	b.Classification.Course = "bc"
	assert.NotEqual(t, Compute(a), Compute(b))
}

func TestMatches(t *testing.T) {
	f := baseFields()
	c := &models.Certificate{
		IssuerID:       "registrar@uni.example",
		HolderID:       "0xAbC123",
		Title:          f.Title,
		Classification: f.Classification,
		IssuedOn:       f.IssuedOn,
		ArtifactRef:    "ipfs://anything",
	}
	c.Fingerprint = Compute(f)
	assert.True(t, Matches(c))

	c.Title = "Master of Science"
	assert.False(t, Matches(c))
}
