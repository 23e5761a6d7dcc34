// Package phone canonicalizes user-supplied phone numbers into the
// identifier format the messaging service expects.
package phone

import (
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"

	"github.com/pairforge/agent/internal/common"
	"github.com/pairforge/agent/internal/models"
)

// Normalize strips every non-digit character from raw, parses the rest
// as an international phone number, and returns the E.164 form without
// the leading plus. Pure and deterministic; invalid input fails with
// models.ErrInvalidIdentifier before any network or storage work runs.
func Normalize(raw string) (string, error) {

	digits := raw
	if !common.IsAllDigits(raw) {
		digits = stripNonDigits(raw)
	}

	if len(digits) == 0 {
		return "", fmt.Errorf("%w: no digits in %q", models.ErrInvalidIdentifier, raw)
	}

	parsed, err := phonenumbers.Parse("+"+digits, "")
	if err != nil {
		return "", fmt.Errorf("%w: %s", models.ErrInvalidIdentifier, err.Error())
	}

	if !phonenumbers.IsValidNumber(parsed) {
		return "", fmt.Errorf(
			"%w: %q is not a valid international number; include the country code without + or spaces",
			models.ErrInvalidIdentifier, raw)
	}

	canonical := phonenumbers.Format(parsed, phonenumbers.E164)

	return strings.TrimPrefix(canonical, "+"), nil
}

func stripNonDigits(s string) string {

	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}

	return b.String()
}
