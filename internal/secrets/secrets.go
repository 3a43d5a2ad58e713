// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API keys from a directory of plain-text files. Each
// file holds one secret: the filename is the key name and the trimmed file
// contents are the value.
//
// Known keys: gsa-api-key (GSA per-diem rates) and crossref-email (polite
// pool contact for doi.org lookups).
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/grant-engine/internal/logging"
)

// Key names and the environment variables that override them.
const (
	KeyGSA      = "gsa-api-key"
	KeyCrossref = "crossref-email"
	EnvGSA      = "GSA_API_KEY"
	EnvCrossref = "CROSSREF_EMAIL"
	DefaultDir  = ".secrets"
)

// Load reads all files in dir and returns a map of filename to trimmed contents.
// A missing directory yields an empty map. Unreadable files are logged and
// skipped.
func Load(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			logging.Default().Warn().Err(err).Str("secret", name).Msg("could not read secret")
			continue
		}
		if value := strings.TrimSpace(string(data)); value != "" {
			secrets[name] = value
		}
	}
	return secrets, nil
}

// Resolve returns the value of envVar when set, otherwise secrets[key].
func Resolve(secrets map[string]string, key, envVar string) string {
	if v := strings.TrimSpace(os.Getenv(envVar)); v != "" {
		return v
	}
	return secrets[key]
}
