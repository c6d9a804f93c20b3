package logsink

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// NewID returns a millisecond-timestamp-prefixed, crypto/rand-suffixed
// identifier, sortable by millisecond; IDs minted within the same
// millisecond sort in random order.
// Same scheme as pkg/eventstore.NewID, duplicated rather than imported
// so the log sink stays decoupled from the event pipeline.
func NewID() string {
	suffix := make([]byte, 5)
	if _, err := rand.Read(suffix); err != nil {
		return fmt.Sprintf("%013d-%013d", time.Now().UnixMilli(), time.Now().UnixNano())
	}
	return fmt.Sprintf("%013d-%s", time.Now().UnixMilli(), hex.EncodeToString(suffix))
}
