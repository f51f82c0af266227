// Package auth verifies user credentials.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/teachmate/internal/model"
)

// Verifier checks a username and password pair.
type Verifier interface {
	Verify(username, password string) bool
}

// UserLookup finds users by name; it returns nil for unknown users.
type UserLookup interface {
	GetUserByUsername(username string) (*model.User, error)
}

// BcryptVerifier checks passwords against bcrypt hashes of stored users.
type BcryptVerifier struct {
	users UserLookup
}

// NewBcryptVerifier returns a verifier backed by users.
func NewBcryptVerifier(users UserLookup) *BcryptVerifier {
	return &BcryptVerifier{users: users}
}

// Verify reports whether the user exists, is active and the password matches.
func (v *BcryptVerifier) Verify(username, password string) bool {
	if username == "" || password == "" {
		return false
	}
	user, err := v.users.GetUserByUsername(username)
	if err != nil {
		slog.Error("failed to get user", "username", username, "error", err)
		return false
	}
	if user == nil || !user.Active {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) == nil
}

// StaticVerifier checks credentials against a fixed username to password map.
type StaticVerifier map[string]string

// Verify reports whether password is the one configured for username.
func (s StaticVerifier) Verify(username, password string) bool {
	want, ok := s[username]
	if !ok || password == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(password)) == 1
}

// MinPasswordLength is the shortest password HashPassword accepts.
const MinPasswordLength = 8

// ErrWeakPassword is returned for passwords shorter than MinPasswordLength.
var ErrWeakPassword = errors.New("password too short")

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", fmt.Errorf("%w: need at least %d characters", ErrWeakPassword, MinPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
