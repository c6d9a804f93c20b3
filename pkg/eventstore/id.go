package eventstore

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// NewID returns a ULID-like identifier: a millisecond timestamp prefix
// (sortable lexicographically) followed by a random suffix that keeps
// IDs minted in the same millisecond distinct. IDs from different
// milliseconds sort in minting order; IDs minted within the same
// millisecond sort in random order, not minting order. Grounded in the random-token generation style of
// pkg/manager/token.go, extended with a sortable time prefix.
func NewID() string {
	suffix := make([]byte, 5)
	if _, err := rand.Read(suffix); err != nil {
		// crypto/rand failing is unrecoverable; fall back to a
		// nanosecond counter suffix rather than returning an error
		// from every append call.
		return fmt.Sprintf("%013d-%013d", time.Now().UnixMilli(), time.Now().UnixNano())
	}
	return fmt.Sprintf("%013d-%s", time.Now().UnixMilli(), hex.EncodeToString(suffix))
}
