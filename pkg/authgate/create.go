package authgate

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/warrenflow/pkg/types"
)

// CreateKey generates a new key, appends it to path's key file
// (creating the file if missing), and returns it. expiryDays <= 0
// means no expiry. Grounded on create_api_key in
// original_source/PramaIA-LogService/core/auth.py.
func CreateKey(path, name string, projects []string, expiryDays int) (*types.ApiKey, error) {
	secret, err := randomSecret()
	if err != nil {
		return nil, fmt.Errorf("generate key secret: %w", err)
	}

	key := &types.ApiKey{
		KeyID:           uuid.NewString(),
		Secret:          secret,
		Name:            name,
		AllowedProjects: projects,
		CreatedAt:       time.Now(),
	}
	if expiryDays > 0 {
		expiry := time.Now().AddDate(0, 0, expiryDays)
		key.Expiry = &expiry
	}

	existing := map[string]*types.ApiKey{}
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &existing); err != nil {
			return nil, fmt.Errorf("parse existing api keys file: %w", err)
		}
	}
	existing[key.KeyID] = key

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, fmt.Errorf("write api keys file: %w", err)
	}

	return key, nil
}

func randomSecret() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "wf_" + hex.EncodeToString(b), nil
}
