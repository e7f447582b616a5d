package validation

import (
	"fmt"

	dErrors "certledger/pkg/domain-errors"
)

// MaxBulkBodySize bounds request bodies (1 MB); a full bulk batch fits well inside it.
const MaxBulkBodySize = 1024 * 1024

// Batch size limits
const (
	// MinBulkItems is the smallest batch the bulk endpoints accept.
	MinBulkItems = 2

	// MaxBulkItems is the largest batch the bulk endpoints accept by default.
	MaxBulkItems = 100
)

// CheckSliceCount validates that a slice does not exceed the maximum count.
func CheckSliceCount(fieldName string, count, max int) error {
	if count > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("too many %s: max %d allowed", fieldName, max))
	}
	return nil
}

// CheckSliceRange validates that a slice holds between min and max elements.
func CheckSliceRange(fieldName string, count, min, max int) error {
	if count < min {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("too few %s: at least %d required", fieldName, min))
	}
	return CheckSliceCount(fieldName, count, max)
}
