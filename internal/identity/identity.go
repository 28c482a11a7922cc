// Package identity issues and validates the opaque per-client token carried
// in the request envelope, and derives admin status from it.
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Settings is the narrow configuration contract the resolver needs.
type Settings interface {
	Get(ctx context.Context, key string) (string, error)
	Merge(ctx context.Context, overlay map[string]string) error
}

// adminPassKey is the config-store key holding the bcrypt hash of the admin
// token.
const adminPassKey = "adminPassHash"

// Resolver maps access tokens to identities. Anonymous clients get a fresh
// random token echoed back once; the admin token is derived from the
// configured password.
type Resolver struct {
	settings Settings
}

// NewResolver creates a Resolver backed by the config store.
func NewResolver(settings Settings) *Resolver {
	return &Resolver{settings: settings}
}

// TokenFor derives the admin access token from the cleartext password.
func TokenFor(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// EnsureToken returns the caller's token, issuing a new one when the caller
// supplied none. The second result reports whether a token was issued and
// must therefore be echoed back in the response.
func (r *Resolver) EnsureToken(token string) (string, bool) {
	if token != "" {
		return token, false
	}
	return uuid.NewString(), true
}

// IsAdmin reports whether the token matches the stored admin-password hash.
// An unset hash means no admin has been configured yet.
func (r *Resolver) IsAdmin(ctx context.Context, token string) bool {
	if token == "" {
		return false
	}
	stored, err := r.settings.Get(ctx, adminPassKey)
	if err != nil || stored == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(token)) == nil
}

// PasswordConfigured reports whether an admin password has been set.
func (r *Resolver) PasswordConfigured(ctx context.Context) (bool, error) {
	stored, err := r.settings.Get(ctx, adminPassKey)
	if err != nil {
		return false, err
	}
	return stored != "", nil
}

// Login verifies the cleartext password and returns the admin token on
// success. The empty string signals a mismatch or an unconfigured password.
func (r *Resolver) Login(ctx context.Context, password string) (string, error) {
	stored, err := r.settings.Get(ctx, adminPassKey)
	if err != nil {
		return "", err
	}
	if stored == "" {
		return "", nil
	}
	token := TokenFor(password)
	if bcrypt.CompareHashAndPassword([]byte(stored), []byte(token)) != nil {
		return "", nil
	}
	return token, nil
}

// SetPassword stores the bcrypt hash of the derived admin token and returns
// the token for immediate client use.
func (r *Resolver) SetPassword(ctx context.Context, password string) (string, error) {
	token := TokenFor(password)
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	if err := r.settings.Merge(ctx, map[string]string{adminPassKey: string(hash)}); err != nil {
		return "", err
	}
	return token, nil
}
