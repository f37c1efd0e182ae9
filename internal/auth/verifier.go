// Package auth verifies the single admin credential that gates workbook uploads.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"results-portal/internal/models"
)

// DefaultUsername is used when no admin username is configured
const DefaultUsername = "admin"

// Verifier holds one admin username and the SHA-256 digest of its password
type Verifier struct {
	username string
	digest   [sha256.Size]byte
}

// NewVerifier creates a verifier for the given credential.
// The plaintext password is hashed immediately and not retained.
func NewVerifier(username, password string) (*Verifier, error) {
	if password == "" {
		return nil, &models.ConfigError{
			Key:     "ADMIN_PASSWORD",
			Message: "admin password not set",
		}
	}
	if username == "" {
		username = DefaultUsername
	}

	return &Verifier{
		username: username,
		digest:   sha256.Sum256([]byte(password)),
	}, nil
}

// NewVerifierFromDigest creates a verifier from the hex SHA-256 digest of the
// password, as printed by `resultctl hash-password`, so the plaintext never
// has to be configured.
func NewVerifierFromDigest(username, hexDigest string) (*Verifier, error) {
	decoded, err := hex.DecodeString(strings.TrimSpace(hexDigest))
	if err != nil || len(decoded) != sha256.Size {
		return nil, &models.ConfigError{
			Key:     "ADMIN_PASSWORD_SHA256",
			Message: "expected a 64 character hex SHA-256 digest",
		}
	}
	if username == "" {
		username = DefaultUsername
	}

	v := &Verifier{username: username}
	copy(v.digest[:], decoded)
	return v, nil
}

// Username returns the configured admin username
func (v *Verifier) Username() string {
	return v.username
}

// Login checks a username/password pair.
// Empty input and mismatched credentials both return an AuthError with a different reason.
func (v *Verifier) Login(username, password string) (bool, error) {
	if username == "" || password == "" {
		return false, &models.AuthError{Reason: models.AuthReasonEmptyCredentials}
	}

	attempt := sha256.Sum256([]byte(password))
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(v.username)) == 1
	passOK := subtle.ConstantTimeCompare(attempt[:], v.digest[:]) == 1
	if !userOK || !passOK {
		return false, &models.AuthError{Reason: models.AuthReasonInvalidCredentials}
	}

	return true, nil
}

// HashPassword returns the hex SHA-256 digest used for comparison
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}
