package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultAdminIssuer = "kado-mall"
	defaultAdminRole   = "admin"
)

var (
	// ErrTokenExpired signals that the presented admin token has expired.
	ErrTokenExpired = errors.New("auth: admin token expired")
	// ErrTokenInvalid signals that the presented admin token failed verification.
	ErrTokenInvalid = errors.New("auth: admin token invalid")
)

// AdminClaims is the JWT claim set issued for the admin surface.
type AdminClaims struct {
	Role string `json:"role,omitempty"`
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// AdminAuthenticator verifies HMAC-signed admin bearer tokens.
type AdminAuthenticator struct {
	key    []byte
	issuer string
	now    func() time.Time
}

// AdminOption customises AdminAuthenticator behaviour.
type AdminOption func(*AdminAuthenticator)

// WithAdminIssuer overrides the expected token issuer.
func WithAdminIssuer(issuer string) AdminOption {
	return func(a *AdminAuthenticator) {
		issuer = strings.TrimSpace(issuer)
		if issuer != "" {
			a.issuer = issuer
		}
	}
}

// WithAdminClock injects the time source used for validity checks.
func WithAdminClock(now func() time.Time) AdminOption {
	return func(a *AdminAuthenticator) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAdminAuthenticator constructs an authenticator over the shared signing key.
func NewAdminAuthenticator(signingKey string, opts ...AdminOption) *AdminAuthenticator {
	a := &AdminAuthenticator{
		key:    []byte(signingKey),
		issuer: defaultAdminIssuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// IssueToken mints an admin bearer token for the given subject.
func (a *AdminAuthenticator) IssueToken(subject string, ttl time.Duration) (string, error) {
	if len(a.key) == 0 {
		return "", errors.New("auth: admin signing key not configured")
	}
	now := a.now()
	claims := AdminClaims{
		Role: defaultAdminRole,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.key)
}

// Verify parses and validates an admin bearer token string.
func (a *AdminAuthenticator) Verify(tokenStr string) (*AdminClaims, error) {
	if len(a.key) == 0 {
		return nil, ErrTokenInvalid
	}
	claims := &AdminClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	)
	_, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return a.key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if a.issuer != "" && claims.Issuer != a.issuer {
		return nil, fmt.Errorf("%w: unexpected issuer %q", ErrTokenInvalid, claims.Issuer)
	}
	return claims, nil
}

// RequireAdmin verifies the Authorization bearer token and attaches the admin
// identity to the request context.
func (a *AdminAuthenticator) RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				respondAuthError(w, http.StatusUnauthorized, "unauthenticated", "authorization header missing or invalid")
				return
			}

			claims, err := a.Verify(tokenStr)
			if err != nil {
				if errors.Is(err, ErrTokenExpired) {
					respondAuthError(w, http.StatusUnauthorized, "token_expired", "admin token expired")
					return
				}
				respondAuthError(w, http.StatusUnauthorized, "unauthenticated", "admin token invalid")
				return
			}
			if claims.Role != defaultAdminRole {
				respondAuthError(w, http.StatusForbidden, "insufficient_role", "identity does not have required role")
				return
			}

			identity := &Identity{
				UID:  claims.Subject,
				Kind: PrincipalAdmin,
				Name: claims.Name,
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func extractBearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", false
	}
	return token, true
}

func respondAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":   code,
		"message": message,
		"status":  status,
	})
}
