package assertion

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Signature returns a stable digest of a specification's semantic
// content. Field values are whitespace-normalized and length-prefixed so
// that field boundaries cannot collide; two field-wise equal
// specifications always map to the same key.
func Signature(spec TestSpecification) string {
	h := sha256.New()
	for _, field := range []string{spec.TargetURL, spec.Instructions, spec.ExpectedResult} {
		norm := normalizeField(field)
		fmt.Fprintf(h, "%d:%s;", len(norm), norm)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// normalizeField collapses all runs of whitespace to single spaces and
// trims the ends, so formatting differences don't defeat deduplication.
func normalizeField(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
