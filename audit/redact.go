// ABOUTME: Sensitive-field redaction applied to audit details at capture time
// ABOUTME: Masks secrets, hashes identifiers and truncates deep nesting
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/harperreed/studysync/canon"
)

// RedactedMarker replaces values stored under sensitive field names.
const RedactedMarker = "[REDACTED]"

// DefaultMaxDepth is how deep the sanitizer recurses before truncating to null.
const DefaultMaxDepth = 6

// Redactor sanitizes audit details. Field names match case-insensitively and
// ignore '_' and '-', so "access_token", "accessToken" and "Access-Token" agree.
type Redactor struct {
	Sensitive   map[string]bool
	Identifiers map[string]bool
	MaxDepth    int
}

// DefaultRedactor covers credentials and personal identifiers a study
// profile can carry.
func DefaultRedactor() *Redactor {
	return NewRedactor(
		[]string{
			"password", "passcode", "secret", "token", "accessToken",
			"refreshToken", "idToken", "apiKey", "authorization", "cookie",
			"session", "privateKey", "ssn", "dateOfBirth", "dob",
			"phone", "phoneNumber", "address", "creditCard",
		},
		[]string{
			"userId", "email", "deviceId", "profileId", "accountId",
			"ipAddress", "licenseNumber",
		},
	)
}

// NewRedactor builds a redactor from field name lists.
func NewRedactor(sensitive, identifiers []string) *Redactor {
	r := &Redactor{
		Sensitive:   make(map[string]bool, len(sensitive)),
		Identifiers: make(map[string]bool, len(identifiers)),
		MaxDepth:    DefaultMaxDepth,
	}
	for _, name := range sensitive {
		r.Sensitive[fieldKey(name)] = true
	}
	for _, name := range identifiers {
		r.Identifiers[fieldKey(name)] = true
	}
	return r
}

// Sanitize returns a redacted deep copy of details. The input must already
// be JSON-shaped (maps, slices, scalars).
func (r *Redactor) Sanitize(details map[string]any) map[string]any {
	if details == nil {
		return map[string]any{}
	}
	out, _ := r.walk(details, 0).(map[string]any)
	if out == nil {
		return map[string]any{}
	}
	return out
}

func (r *Redactor) walk(v any, depth int) any {
	if depth > r.MaxDepth {
		return nil
	}
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			key := fieldKey(k)
			switch {
			case r.Sensitive[key]:
				out[k] = RedactedMarker
			case r.Identifiers[key]:
				out[k] = HashIdentifier(elem)
			default:
				out[k] = r.walk(elem, depth+1)
			}
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = r.walk(elem, depth+1)
		}
		return out
	default:
		return v
	}
}

// HashIdentifier replaces an identifier with a short one-way digest so the
// same identifier still correlates across entries.
func HashIdentifier(v any) any {
	if v == nil {
		return nil
	}
	var s string
	switch val := v.(type) {
	case string:
		if val == "" {
			return ""
		}
		s = val
	default:
		b, err := canon.Marshal(val)
		if err != nil {
			return RedactedMarker
		}
		s = string(b)
	}
	sum := sha256.Sum256([]byte(s))
	return "sha256:" + hex.EncodeToString(sum[:])[:16]
}

func fieldKey(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "_", "")
	return strings.ReplaceAll(name, "-", "")
}
