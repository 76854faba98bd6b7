package authsvc

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
)

// SessionKeySize is the size in bytes of a generated session signing key.
const SessionKeySize = 32

// GenerateSessionKey creates a new random session signing key.
// Returns an error if the system randomness source fails.
func GenerateSessionKey() ([]byte, error) {
	key := make([]byte, SessionKeySize)

	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}

	return key, nil
}

// GetSessionKey loads or creates the session signing key at the specified file path.
// If the file exists, it decodes the base64url-encoded key.
// If the file doesn't exist, it generates a new key and saves it to the file.
// Returns an error if any operation fails.
func GetSessionKey(path string) ([]byte, error) {
	// Try decode existing key
	encoded, err := os.ReadFile(path)
	if err == nil {
		key, err := base64.RawURLEncoding.DecodeString(string(encoded))
		if err != nil {
			return nil, fmt.Errorf("decode session key: %w", err)
		}

		return key, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	// Generate new key
	key, err := GenerateSessionKey()
	if err != nil {
		return nil, fmt.Errorf("generate session key: %w", err)
	}

	// Write key to file
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create key dir: %w", err)
	}

	if err := os.WriteFile(path, []byte(base64.RawURLEncoding.EncodeToString(key)), 0o600); err != nil {
		return nil, fmt.Errorf("write key file: %w", err)
	}

	return key, nil
}
