// Package phone normalises phone-number identities.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// Normalize returns raw in E.164 form when it parses as a valid number for
// region (ISO 3166 code, used only for numbers without a leading +).
// Anything else comes back trimmed but otherwise untouched: identities are
// opaque and the carrier decides whether it can route them.
func Normalize(raw, region string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	num, err := phonenumbers.Parse(raw, region)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return raw
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}
