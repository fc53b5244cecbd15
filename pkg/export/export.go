// Package export writes vault records to portable JSON artifacts and reads
// them back.
//
// The artifact keeps the secret in its encrypted form: the ciphertext, nonce
// and salt travel as the same base64 triple the store holds, so an exported
// file is exactly as hard to open as the vault row it came from.
package export

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pinlock-app/pinlock/pkg/crypto"
)

// FormatVersion is the current artifact schema version.
const FormatVersion = 1

var (
	// ErrInvalidArtifact indicates the file is not a valid export artifact.
	ErrInvalidArtifact = errors.New("export: invalid artifact")
	// ErrUnsupportedVersion indicates an artifact from a newer format.
	ErrUnsupportedVersion = errors.New("export: unsupported format version")
)

// Artifact is the on-disk export format.
type Artifact struct {
	Version    int    `json:"version"`
	Name       string `json:"name"`
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
	Salt       string `json:"salt"`
	ExportedAt string `json:"exported_at"` // RFC 3339 UTC
	Note       string `json:"note,omitempty"`
}

// New builds an artifact for a vault record.
func New(name string, secret crypto.EncryptedSecret, note string, now time.Time) Artifact {
	return Artifact{
		Version:    FormatVersion,
		Name:       name,
		Ciphertext: secret.Ciphertext,
		IV:         secret.IV,
		Salt:       secret.Salt,
		ExportedAt: now.UTC().Format(time.RFC3339),
		Note:       note,
	}
}

// Secret returns the encrypted secret carried by the artifact.
func (a Artifact) Secret() crypto.EncryptedSecret {
	return crypto.EncryptedSecret{
		Ciphertext: a.Ciphertext,
		IV:         a.IV,
		Salt:       a.Salt,
	}
}

// Validate checks the artifact's structural invariants.
func (a Artifact) Validate() error {
	if a.Version > FormatVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, a.Version)
	}
	if a.Version < 1 {
		return fmt.Errorf("%w: missing version", ErrInvalidArtifact)
	}
	if a.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidArtifact)
	}
	for field, value := range map[string]string{
		"ciphertext": a.Ciphertext,
		"iv":         a.IV,
		"salt":       a.Salt,
	} {
		if value == "" {
			return fmt.Errorf("%w: missing %s", ErrInvalidArtifact, field)
		}
		if _, err := base64.StdEncoding.DecodeString(value); err != nil {
			return fmt.Errorf("%w: %s is not base64", ErrInvalidArtifact, field)
		}
	}
	if _, err := time.Parse(time.RFC3339, a.ExportedAt); err != nil {
		return fmt.Errorf("%w: bad exported_at: %v", ErrInvalidArtifact, err)
	}
	return nil
}

// Write stores the artifact at path. The file is written to a temp name in
// the same directory first and renamed into place.
func Write(path string, a Artifact) error {
	if err := a.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("export: failed to marshal artifact: %w", err)
	}
	data = append(data, '\n')

	tempPath := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("export: failed to create directory: %w", err)
	}
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("export: failed to write artifact: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("export: failed to finalize artifact: %w", err)
	}
	return nil
}

// Read loads and validates an artifact from path.
func Read(path string) (Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("export: failed to read artifact: %w", err)
	}

	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return Artifact{}, fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
	}
	if err := a.Validate(); err != nil {
		return Artifact{}, err
	}
	return a, nil
}
