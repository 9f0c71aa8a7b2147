// Package auth resolves the calling principal for the administrative
// API from a bearer token. Full identity management lives elsewhere;
// this is only enough to know who is calling and which roles they
// carry.
package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-erp/meridian/internal/authz"
)

// Credential pairs a principal with the bcrypt hash of its API token.
type Credential struct {
	UserID    string
	Roles     []string
	TokenHash string
}

// ParseCredentials reads the ADMIN_TOKENS format: comma-separated
// entries of "user:role1|role2:bcrypt-hash". The role segment may be
// empty.
func ParseCredentials(raw string) ([]Credential, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var creds []Credential
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
			return nil, fmt.Errorf("auth: malformed credential entry %q", entry)
		}
		cred := Credential{UserID: parts[0], TokenHash: parts[2]}
		for _, role := range strings.Split(parts[1], "|") {
			if role = strings.TrimSpace(role); role != "" {
				cred.Roles = append(cred.Roles, role)
			}
		}
		creds = append(creds, cred)
	}
	return creds, nil
}

// Authenticator checks bearer tokens against configured credentials.
type Authenticator struct {
	creds  []Credential
	logger *slog.Logger
}

// NewAuthenticator constructs an Authenticator.
func NewAuthenticator(creds []Credential, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{creds: creds, logger: logger}
}

// Resolve returns the principal for a presented token, or false when
// no credential matches.
func (a *Authenticator) Resolve(token string) (authz.User, bool) {
	if token == "" {
		return authz.User{}, false
	}
	for _, cred := range a.creds {
		if bcrypt.CompareHashAndPassword([]byte(cred.TokenHash), []byte(token)) == nil {
			return authz.User{ID: cred.UserID, Roles: cred.Roles}, true
		}
	}
	return authz.User{}, false
}

// Middleware resolves the Authorization bearer token into a principal
// on the request context. Requests without a valid token get 401;
// authorization decisions stay with the authz middleware downstream.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		user, ok := a.Resolve(token)
		if !ok {
			a.logger.Info("unauthenticated request", slog.String("path", r.URL.Path))
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(authz.ContextWithUser(r.Context(), user)))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
