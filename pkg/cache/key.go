package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// KeyPrefixLen is how many hex characters of a key Stats exposes.
const KeyPrefixLen = 12

// DeriveKey computes the cache key for a query descriptor.
// The key is the hex-encoded SHA-256 digest of the descriptor, so the same
// descriptor always yields the same 64-character key.
func DeriveKey(descriptor string) string {
	sum := sha256.Sum256([]byte(descriptor))
	return hex.EncodeToString(sum[:])
}

// Query describes a single-row exact-match lookup that may be cached.
type Query struct {
	// Table is the logical table name (e.g., "people")
	Table string

	// Column is the column matched by equality (e.g., "email")
	Column string

	// Value is the already-normalized value bound to the column
	Value string
}

// String generates the canonical descriptor of the query.
// Format: select <table> where <column> = <value>
//
// Example:
//
//	select people where email = ana@x.com
func (q Query) String() string {
	table := strings.ToLower(strings.TrimSpace(q.Table))
	column := strings.ToLower(strings.TrimSpace(q.Column))
	return fmt.Sprintf("select %s where %s = %s", table, column, q.Value)
}

// Key returns the derived cache key for the query.
func (q Query) Key() string {
	return DeriveKey(q.String())
}

// shortKey truncates a derived key for display.
func shortKey(key string) string {
	if len(key) <= KeyPrefixLen {
		return key
	}
	return key[:KeyPrefixLen]
}
