// ABOUTME: Chain hash functions and entry hash computation for the audit log
// ABOUTME: xxhash by default; sha256 available where a stronger digest is wanted
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/harperreed/studysync/canon"
	"github.com/harperreed/studysync/models"
)

// Hasher is the chain hash function H.
type Hasher interface {
	Name() string
	Sum(data []byte) string
}

// XXHash is a fast non-cryptographic 64-bit hash. It detects corruption and
// casual edits, not a motivated attacker.
type XXHash struct{}

func (XXHash) Name() string { return "xxhash64" }

func (XXHash) Sum(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// SHA256 is the cryptographic alternative.
type SHA256 struct{}

func (SHA256) Name() string { return "sha256" }

func (SHA256) Sum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HasherByName resolves a configured hash name.
func HasherByName(name string) (Hasher, error) {
	switch name {
	case "", "xxhash", "xxhash64":
		return XXHash{}, nil
	case "sha256":
		return SHA256{}, nil
	default:
		return nil, fmt.Errorf("unknown audit hash %q", name)
	}
}

// ComputeHash returns H(previousHash + "|" + canonical(entry fields)).
// The entry's own PreviousHash and Hash are ignored.
func ComputeHash(h Hasher, previousHash string, e models.AuditLogEntry) (string, error) {
	details := e.Details
	if details == nil {
		details = map[string]any{}
	}
	payload, err := canon.Marshal(map[string]any{
		"id":           e.ID,
		"timestamp":    e.Timestamp,
		"action":       e.Action,
		"resourceType": e.ResourceType,
		"resourceId":   e.ResourceID,
		"severity":     e.Severity,
		"details":      details,
	})
	if err != nil {
		return "", fmt.Errorf("failed to serialize audit entry: %w", err)
	}
	return h.Sum([]byte(previousHash + "|" + string(payload))), nil
}
