package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-erp/meridian/internal/authz"
)

func hashToken(t *testing.T, token string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

func TestParseCredentials(t *testing.T) {
	hash := hashToken(t, "secret")
	creds, err := ParseCredentials("admin-1:authz_admin|auditor:" + hash + ", svc-2::" + hash)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(creds) != 2 {
		t.Fatalf("expected 2 credentials, got %d", len(creds))
	}
	if creds[0].UserID != "admin-1" || len(creds[0].Roles) != 2 {
		t.Fatalf("unexpected first credential: %+v", creds[0])
	}
	if creds[1].UserID != "svc-2" || len(creds[1].Roles) != 0 {
		t.Fatalf("unexpected second credential: %+v", creds[1])
	}
}

func TestParseCredentialsRejectsMalformed(t *testing.T) {
	for _, raw := range []string{"missinghash", "user:roles", ":roles:hash"} {
		if _, err := ParseCredentials(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
	if creds, err := ParseCredentials("  "); err != nil || creds != nil {
		t.Fatalf("blank input should parse to nothing, got %v %v", creds, err)
	}
}

func TestResolve(t *testing.T) {
	creds := []Credential{{UserID: "admin-1", Roles: []string{"authz_admin"}, TokenHash: hashToken(t, "secret")}}
	a := NewAuthenticator(creds, nil)

	user, ok := a.Resolve("secret")
	if !ok || user.ID != "admin-1" {
		t.Fatalf("expected resolution, got %v %v", user, ok)
	}
	if _, ok := a.Resolve("wrong"); ok {
		t.Fatalf("wrong token must not resolve")
	}
	if _, ok := a.Resolve(""); ok {
		t.Fatalf("empty token must not resolve")
	}
}

func TestMiddleware(t *testing.T) {
	creds := []Credential{{UserID: "admin-1", Roles: []string{"authz_admin"}, TokenHash: hashToken(t, "secret")}}
	a := NewAuthenticator(creds, nil)

	var resolved authz.User
	handler := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resolved, _ = authz.UserFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/authz/groups", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected pass-through, got %d", rec.Code)
	}
	if resolved.ID != "admin-1" {
		t.Fatalf("expected principal on context, got %+v", resolved)
	}

	req = httptest.NewRequest(http.MethodGet, "/authz/groups", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}
