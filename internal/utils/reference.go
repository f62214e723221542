package utils

import (
	"strings"

	"github.com/google/uuid"
)

// DefaultReferencePrefix is used when no prefix is configured.
const DefaultReferencePrefix = "BK"

// NewReferenceGenerator returns a function producing booking references of
// the form PREFIX-XXXXXXXX. The suffix is the first 8 hex digits of a random
// UUID, upper-cased. Eight characters are not globally unique; the bookings
// table carries a unique index and callers regenerate on a duplicate.
func NewReferenceGenerator(prefix string) func() string {
	p := normalizePrefix(prefix)
	return func() string {
		id := strings.ReplaceAll(uuid.NewString(), "-", "")
		return p + "-" + strings.ToUpper(id[:8])
	}
}

// GenerateReference produces a reference with the default prefix.
func GenerateReference() string {
	return NewReferenceGenerator(DefaultReferencePrefix)()
}

func normalizePrefix(prefix string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(prefix) {
		if r >= 'A' && r <= 'Z' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return DefaultReferencePrefix
	}
	return b.String()
}
