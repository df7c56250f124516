package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kado-mall/api/internal/domain"
)

func TestAdminAuthenticator_RoundTrip(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	authn := NewAdminAuthenticator("signing-key", WithAdminClock(func() time.Time { return now }))

	token, err := authn.IssueToken("ops@example.com", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken error: %v", err)
	}

	claims, err := authn.Verify(token)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if claims.Subject != "ops@example.com" {
		t.Fatalf("unexpected subject %q", claims.Subject)
	}
	if claims.Role != "admin" {
		t.Fatalf("unexpected role %q", claims.Role)
	}
}

func TestAdminAuthenticator_ExpiredToken(t *testing.T) {
	issued := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := issued
	authn := NewAdminAuthenticator("signing-key", WithAdminClock(func() time.Time { return clock }))

	token, err := authn.IssueToken("ops@example.com", time.Minute)
	if err != nil {
		t.Fatalf("IssueToken error: %v", err)
	}

	clock = issued.Add(2 * time.Minute)
	if _, err := authn.Verify(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestAdminAuthenticator_RejectsForeignKey(t *testing.T) {
	good := NewAdminAuthenticator("signing-key")
	bad := NewAdminAuthenticator("other-key")

	token, err := bad.IssueToken("ops@example.com", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken error: %v", err)
	}
	if _, err := good.Verify(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestRequireAdmin_AttachesIdentity(t *testing.T) {
	authn := NewAdminAuthenticator("signing-key")
	token, err := authn.IssueToken("ops@example.com", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken error: %v", err)
	}

	var captured *Identity
	handler := authn.RequireAdmin()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/admin/settlements", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured == nil || !captured.IsAdmin() || captured.UID != "ops@example.com" {
		t.Fatalf("unexpected identity %+v", captured)
	}
}

func TestRequireAdmin_MissingHeader(t *testing.T) {
	authn := NewAdminAuthenticator("signing-key")
	handler := authn.RequireAdmin()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodPost, "/admin/settlements", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid error payload: %v", err)
	}
	if payload["error"] != "unauthenticated" {
		t.Fatalf("unexpected error code %v", payload["error"])
	}
}

type stubResolver struct {
	subsite domain.Subsite
	err     error
}

func (s *stubResolver) FindByAPIKey(context.Context, string) (domain.Subsite, error) {
	return s.subsite, s.err
}

var errNoSubsite = errors.New("subsite not found")

func (s *stubResolver) IsNotFound(err error) bool {
	return errors.Is(err, errNoSubsite)
}

func TestRequireSubsite_Success(t *testing.T) {
	resolver := &stubResolver{subsite: domain.Subsite{
		ID:        "sub_1",
		Name:      "Partner",
		Enabled:   true,
		APIKey:    "sk_abc",
		APISecret: "shh",
	}}
	authn := NewSubsiteAuthenticator(resolver)

	var captured *Identity
	handler := authn.RequireSubsite()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/subsite/orders/sync", nil)
	req.Header.Set("Authorization", "Bearer sk_abc")
	req.Header.Set(SecretHeader, "shh")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured == nil || !captured.IsSubsite() || captured.SubsiteID != "sub_1" {
		t.Fatalf("unexpected identity %+v", captured)
	}
	if id, ok := SubsiteFromContext(req.Context()); ok && id != "" {
		t.Fatalf("identity must not leak onto the original request context")
	}
}

func TestRequireSubsite_Rejections(t *testing.T) {
	active := domain.Subsite{ID: "sub_1", Enabled: true, APIKey: "sk_abc", APISecret: "shh"}

	cases := []struct {
		name       string
		resolver   *stubResolver
		key        string
		secret     string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "missing secret header",
			resolver:   &stubResolver{subsite: active},
			key:        "sk_abc",
			wantStatus: http.StatusUnauthorized,
			wantCode:   "unauthenticated",
		},
		{
			name:       "unknown key",
			resolver:   &stubResolver{err: errNoSubsite},
			key:        "sk_missing",
			secret:     "shh",
			wantStatus: http.StatusUnauthorized,
			wantCode:   "invalid_credentials",
		},
		{
			name:       "secret mismatch",
			resolver:   &stubResolver{subsite: active},
			key:        "sk_abc",
			secret:     "wrong",
			wantStatus: http.StatusUnauthorized,
			wantCode:   "invalid_credentials",
		},
		{
			name:       "disabled subsite",
			resolver:   &stubResolver{subsite: domain.Subsite{ID: "sub_2", APIKey: "sk_abc", APISecret: "shh"}},
			key:        "sk_abc",
			secret:     "shh",
			wantStatus: http.StatusForbidden,
			wantCode:   "subsite_disabled",
		},
		{
			name:       "backend failure",
			resolver:   &stubResolver{err: errors.New("firestore unavailable")},
			key:        "sk_abc",
			secret:     "shh",
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "unavailable",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			authn := NewSubsiteAuthenticator(tc.resolver)
			handler := authn.RequireSubsite()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				t.Fatal("handler must not run")
			}))

			req := httptest.NewRequest(http.MethodPost, "/api/v1/subsite/orders/sync", nil)
			req.Header.Set("Authorization", "Bearer "+tc.key)
			if tc.secret != "" {
				req.Header.Set(SecretHeader, tc.secret)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tc.wantStatus, rec.Code, rec.Body.String())
			}
			var payload map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
				t.Fatalf("invalid error payload: %v", err)
			}
			if payload["error"] != tc.wantCode {
				t.Fatalf("expected error code %q, got %v", tc.wantCode, payload["error"])
			}
		})
	}
}
