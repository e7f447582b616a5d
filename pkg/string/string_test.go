package string

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToSnakeCase(t *testing.T) {
	assert.Equal(t, "holder_id", ToSnakeCase("HolderID"))
	assert.Equal(t, "artifact_ref", ToSnakeCase("ArtifactRef"))
	assert.Equal(t, "title", ToSnakeCase("Title"))
}

func TestTrimStrings(t *testing.T) {
	a, b := "  x ", "y\t"
	TrimStrings(&a, &b)
	assert.Equal(t, "x", a)
	assert.Equal(t, "y", b)
}

func TestCollapseSpace(t *testing.T) {
	assert.Equal(t, "Computer Science", CollapseSpace("  Computer \t Science  "))
	assert.Equal(t, "", CollapseSpace("   "))
}
