// Package authgate loads API keys from a JSON file and authorizes
// HTTP callers per project. Grounded on
// original_source/PramaIA-LogService/core/auth.py for key-file format,
// expiry checking, and key masking, and on
// Sergey-Bar-Alfred/services/gateway/middleware/auth.go for the header
// extraction and context-value pattern, adapted from a Bearer-token
// pass-through into a real local key store.
package authgate

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/warrenflow/pkg/log"
	"github.com/cuemby/warrenflow/pkg/metrics"
	"github.com/cuemby/warrenflow/pkg/types"
)

// Decision is the outcome of an authorization check.
type Decision int

const (
	Allowed Decision = iota
	MissingKey
	InvalidKey
	ForbiddenProject
)

// Gate holds the loaded API keys and authorizes callers against them.
// Reload replaces the key set atomically, so concurrent Authorize
// calls never see a partially-loaded file.
type Gate struct {
	path string

	mu   sync.RWMutex
	keys map[string]*types.ApiKey // keyed by Secret

	logger zerolog.Logger
}

// New loads path once at startup. If path does not exist, New starts
// with an empty in-memory key set rather than failing; the file itself
// is not created.
func New(path string) (*Gate, error) {
	g := &Gate{path: path, logger: log.WithComponent("authgate")}
	if err := g.Reload(); err != nil {
		return nil, err
	}
	return g, nil
}

// Reload re-reads the key file from disk, replacing the in-memory set.
// Safe to call concurrently with Authorize; intended to be wired to
// SIGHUP by the caller.
func (g *Gate) Reload() error {
	if _, err := os.Stat(g.path); os.IsNotExist(err) {
		g.mu.Lock()
		g.keys = map[string]*types.ApiKey{}
		g.mu.Unlock()
		return nil
	}

	data, err := os.ReadFile(g.path)
	if err != nil {
		return fmt.Errorf("read api keys file: %w", err)
	}

	var raw map[string]*types.ApiKey
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse api keys file: %w", err)
	}

	keys := make(map[string]*types.ApiKey, len(raw))
	for keyID, k := range raw {
		if k.KeyID == "" {
			k.KeyID = keyID
		}
		keys[k.Secret] = k
	}

	g.mu.Lock()
	g.keys = keys
	g.mu.Unlock()

	g.logger.Info().Int("keys", len(keys)).Msg("lifecycle: api keys reloaded")
	return nil
}

// Authorize checks secret against the loaded key set and, if project
// is non-empty, whether the key is scoped to it. A blank project means
// the caller only needs a valid key (used for read endpoints that
// self-filter by project afterward).
func (g *Gate) Authorize(secret, project string) (Decision, *types.ApiKey) {
	if secret == "" {
		metrics.AuthDecisionsTotal.WithLabelValues("missing_key").Inc()
		return MissingKey, nil
	}

	g.mu.RLock()
	key, ok := g.keys[secret]
	g.mu.RUnlock()

	if !ok || key.Expired(time.Now()) {
		metrics.AuthDecisionsTotal.WithLabelValues("invalid_key").Inc()
		return InvalidKey, nil
	}

	if project != "" && !key.AllowsProject(project) {
		metrics.AuthDecisionsTotal.WithLabelValues("forbidden_project").Inc()
		return ForbiddenProject, key
	}

	metrics.AuthDecisionsTotal.WithLabelValues("allowed").Inc()
	return Allowed, key
}

// AllowedProjects returns the projects a validated key may read or
// write, for filtering read endpoints to only authorized projects.
func (g *Gate) AllowedProjects(secret string) []string {
	g.mu.RLock()
	key, ok := g.keys[secret]
	g.mu.RUnlock()
	if !ok {
		return nil
	}
	return key.AllowedProjects
}

// MaskKey renders a secret safe for logging: "N/A" for an empty secret,
// all stars for one or two characters, the first two characters then
// stars for up to eight, and otherwise the first four and last four
// characters visible with the middle starred out.
func MaskKey(secret string) string {
	if secret == "" {
		return "N/A"
	}
	if len(secret) <= 2 {
		return repeatStar(len(secret))
	}
	if len(secret) <= 8 {
		return secret[:2] + repeatStar(len(secret)-2)
	}
	return secret[:4] + repeatStar(len(secret)-8) + secret[len(secret)-4:]
}

func repeatStar(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = '*'
	}
	return string(b)
}
