package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/kado-mall/api/internal/domain"
)

// SecretHeader carries the subsite API secret on inbound sync requests; the
// API key travels as the Authorization bearer token.
const SecretHeader = "X-Api-Secret"

const defaultLookupTimeout = 5 * time.Second

// SubsiteResolver loads a subsite by its API key.
type SubsiteResolver interface {
	FindByAPIKey(ctx context.Context, apiKey string) (domain.Subsite, error)
}

// NotFoundChecker lets the middleware distinguish unknown keys from backend
// failures.
type NotFoundChecker interface {
	IsNotFound(err error) bool
}

// SubsiteAuthenticator authenticates inbound requests from subsite storefronts
// using their API key and secret pair.
type SubsiteAuthenticator struct {
	resolver SubsiteResolver
	timeout  time.Duration
}

// SubsiteOption customises SubsiteAuthenticator behaviour.
type SubsiteOption func(*SubsiteAuthenticator)

// WithLookupTimeout bounds the credential lookup.
func WithLookupTimeout(d time.Duration) SubsiteOption {
	return func(a *SubsiteAuthenticator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// NewSubsiteAuthenticator constructs the middleware over a credential resolver.
func NewSubsiteAuthenticator(resolver SubsiteResolver, opts ...SubsiteOption) *SubsiteAuthenticator {
	a := &SubsiteAuthenticator{
		resolver: resolver,
		timeout:  defaultLookupTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// RequireSubsite verifies the API key and secret and attaches the subsite
// identity to the request context.
func (a *SubsiteAuthenticator) RequireSubsite() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				respondAuthError(w, http.StatusUnauthorized, "unauthenticated", "authorization header missing or invalid")
				return
			}
			secret := strings.TrimSpace(r.Header.Get(SecretHeader))
			if secret == "" {
				respondAuthError(w, http.StatusUnauthorized, "unauthenticated", "api secret header missing")
				return
			}
			if a == nil || a.resolver == nil {
				respondAuthError(w, http.StatusUnauthorized, "unauthenticated", "authorization service unavailable")
				return
			}

			ctx := r.Context()
			if a.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, a.timeout)
				defer cancel()
			}

			subsite, err := a.resolver.FindByAPIKey(ctx, apiKey)
			if err != nil {
				if checker, ok := a.resolver.(NotFoundChecker); ok && checker.IsNotFound(err) {
					respondAuthError(w, http.StatusUnauthorized, "invalid_credentials", "unknown api key")
					return
				}
				respondAuthError(w, http.StatusServiceUnavailable, "unavailable", "credential lookup failed")
				return
			}
			if subtle.ConstantTimeCompare([]byte(subsite.APISecret), []byte(secret)) != 1 {
				respondAuthError(w, http.StatusUnauthorized, "invalid_credentials", "api secret mismatch")
				return
			}
			if !subsite.Enabled {
				respondAuthError(w, http.StatusForbidden, "subsite_disabled", "subsite is disabled")
				return
			}

			identity := &Identity{
				UID:       subsite.ID,
				Kind:      PrincipalSubsite,
				SubsiteID: subsite.ID,
				Name:      subsite.Name,
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}
