package validation

import (
	"time"

	dErrors "certledger/pkg/domain-errors"
)

// ISODateLayout is the calendar-date form used on the wire and in fingerprints.
const ISODateLayout = "2006-01-02"

// ParseISODate parses YYYY-MM-DD as midnight UTC.
func ParseISODate(v string) (time.Time, error) {
	t, err := time.Parse(ISODateLayout, v)
	if err != nil {
		return time.Time{}, dErrors.New(dErrors.CodeValidation, "date must be YYYY-MM-DD")
	}
	return t.UTC(), nil
}
