package authsvc

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mkrupp/taskcase-michael/internal/domain"
)

// EncodeSession serializes and signs a session as a cookie-safe token:
// a base64url-encoded JSON payload followed by a dot and its
// base64url-encoded HMAC-SHA256 signature.
func EncodeSession(key []byte, session domain.Session) (string, error) {
	payload, err := json.Marshal(session)
	if err != nil {
		return "", fmt.Errorf("marshal session: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(payload)

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(encoded))
	signature := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))

	return encoded + "." + signature, nil
}

// DecodeSession validates a session token by:
// - Splitting the token into payload and signature
// - Verifying the HMAC-SHA256 signature
// - Parsing the JSON payload into a Session
// - Checking if the session has expired
// Returns the parsed Session if valid.
// Returns domain.ErrInvalidSession for any validation failure.
func DecodeSession(key []byte, token string) (domain.Session, error) {
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 2 {
		return domain.Session{}, domain.ErrInvalidSession
	}

	encoded, signature := parts[0], parts[1]

	// Verify signature
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(encoded))

	want, err := base64.RawURLEncoding.DecodeString(signature)
	if err != nil {
		return domain.Session{}, errors.Join(domain.ErrInvalidSession, fmt.Errorf("decode signature: %w", err))
	}

	if !hmac.Equal(mac.Sum(nil), want) {
		return domain.Session{}, domain.ErrInvalidSession
	}

	// Parse session
	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return domain.Session{}, errors.Join(domain.ErrInvalidSession, fmt.Errorf("decode payload: %w", err))
	}

	var session domain.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return domain.Session{}, errors.Join(domain.ErrInvalidSession, fmt.Errorf("unmarshal session: %w", err))
	}

	// Check expiration
	if session.ExpiresAt < time.Now().Unix() {
		return domain.Session{}, domain.ErrInvalidSession
	}

	return session, nil
}
