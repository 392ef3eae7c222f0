package util

import (
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewID returns a new 21-character lowercase identifier.
func NewID() (string, error) {
	return gonanoid.Generate(idAlphabet, 21)
}

// MustNewID is NewID for callers that cannot fail; nanoid only errors on a
// broken entropy source.
func MustNewID() string {
	return gonanoid.MustGenerate(idAlphabet, 21)
}

// NormalizeEntityName folds an entity display name into its dedup key:
// trimmed, lowercased, inner whitespace collapsed to single underscores.
func NormalizeEntityName(name string) string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(name)))
	return strings.Join(fields, "_")
}
