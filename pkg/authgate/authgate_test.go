package authgate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/warrenflow/pkg/types"
)

func writeKeysFile(t *testing.T, keys map[string]*types.ApiKey) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "api_keys.json")
	data, err := json.Marshal(keys)
	if err != nil {
		t.Fatalf("marshal keys: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write keys file: %v", err)
	}
	return path
}

func TestNew_MissingFileStartsWithEmptyKeySet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.json")
	g, err := New(path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	decision, _ := g.Authorize("anything", "")
	if decision != MissingKey && decision != InvalidKey {
		t.Errorf("Authorize() on empty key set = %v, want invalid/missing", decision)
	}
}

func TestAuthorize_MissingSecretIsMissingKey(t *testing.T) {
	path := writeKeysFile(t, map[string]*types.ApiKey{})
	g, err := New(path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	decision, _ := g.Authorize("", "ingest")
	if decision != MissingKey {
		t.Errorf("Authorize() = %v, want MissingKey", decision)
	}
}

func TestAuthorize_UnknownSecretIsInvalidKey(t *testing.T) {
	path := writeKeysFile(t, map[string]*types.ApiKey{})
	g, err := New(path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	decision, _ := g.Authorize("nope", "ingest")
	if decision != InvalidKey {
		t.Errorf("Authorize() = %v, want InvalidKey", decision)
	}
}

func TestAuthorize_ValidKeyWrongProjectIsForbidden(t *testing.T) {
	path := writeKeysFile(t, map[string]*types.ApiKey{
		"k1": {KeyID: "k1", Secret: "secret-1", Name: "tester", AllowedProjects: []string{"a"}},
	})
	g, err := New(path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	decision, _ := g.Authorize("secret-1", "b")
	if decision != ForbiddenProject {
		t.Errorf("Authorize() = %v, want ForbiddenProject", decision)
	}
}

func TestAuthorize_ValidKeyAllowedProjectSucceeds(t *testing.T) {
	path := writeKeysFile(t, map[string]*types.ApiKey{
		"k1": {KeyID: "k1", Secret: "secret-1", Name: "tester", AllowedProjects: []string{"a"}},
	})
	g, err := New(path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	decision, key := g.Authorize("secret-1", "a")
	if decision != Allowed {
		t.Fatalf("Authorize() = %v, want Allowed", decision)
	}
	if key.Name != "tester" {
		t.Errorf("key.Name = %v, want tester", key.Name)
	}
}

func TestAuthorize_ExpiredKeyIsInvalid(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	path := writeKeysFile(t, map[string]*types.ApiKey{
		"k1": {KeyID: "k1", Secret: "secret-1", AllowedProjects: []string{"a"}, Expiry: &past},
	})
	g, err := New(path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	decision, _ := g.Authorize("secret-1", "a")
	if decision != InvalidKey {
		t.Errorf("Authorize() = %v, want InvalidKey for expired key", decision)
	}
}

func TestReload_PicksUpFileChanges(t *testing.T) {
	path := writeKeysFile(t, map[string]*types.ApiKey{})
	g, err := New(path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if decision, _ := g.Authorize("secret-1", "a"); decision != InvalidKey {
		t.Fatalf("Authorize() before reload = %v, want InvalidKey", decision)
	}

	data, err := json.Marshal(map[string]*types.ApiKey{
		"k1": {KeyID: "k1", Secret: "secret-1", AllowedProjects: []string{"a"}},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := g.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	if decision, _ := g.Authorize("secret-1", "a"); decision != Allowed {
		t.Errorf("Authorize() after reload = %v, want Allowed", decision)
	}
}

func TestMaskKey(t *testing.T) {
	cases := map[string]string{
		"":                     "N/A",
		"a":                    "*",
		"ab":                   "**",
		"short":                "sh***",
		"wf_abcdefghijklmnop1": "wf_a************nop1",
	}
	for in, want := range cases {
		if got := MaskKey(in); got != want {
			t.Errorf("MaskKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCreateKey_WritesAndReturnsKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config", "api_keys.json")
	key, err := CreateKey(path, "tester", []string{"a", "b"}, 30)
	if err != nil {
		t.Fatalf("CreateKey() error = %v", err)
	}
	if key.Secret == "" {
		t.Fatal("CreateKey() returned empty secret")
	}

	g, err := New(path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if decision, _ := g.Authorize(key.Secret, "a"); decision != Allowed {
		t.Errorf("Authorize() for newly created key = %v, want Allowed", decision)
	}
}
