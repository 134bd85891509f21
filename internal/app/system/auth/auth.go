// internal/app/system/auth/auth.go
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/jmharper/taskhub/internal/domain/models"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrNoToken      = errors.New("no token supplied")
)

// SessionUser is what we decode from a token & inject into r.Context().
type SessionUser struct {
	ID    string
	Name  string
	Email string
	Role  string
}

type ctxKey string

const currentUserKey ctxKey = "currentUser"

// CurrentUser returns the user & “found?” flag.
func CurrentUser(r *http.Request) (*SessionUser, bool) {
	u, ok := r.Context().Value(currentUserKey).(*SessionUser)
	return u, ok
}

// WithUser injects a user into the request context. Handler tests use it to
// skip the token round-trip.
func WithUser(r *http.Request, u *SessionUser) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), currentUserKey, u))
}

/*─────────────────────────────────────────────────────────────────────────────*
| Token service                                                               |
*─────────────────────────────────────────────────────────────────────────────*/

// Service signs and verifies the HS256 bearer tokens issued at login.
type Service struct {
	secret []byte
	expiry time.Duration
	log    *zap.Logger
}

func NewService(secret string, expiry time.Duration, logger *zap.Logger) *Service {
	return &Service{secret: []byte(secret), expiry: expiry, log: logger}
}

type claims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Generate issues a signed token for the given user.
func (s *Service) Generate(u models.User) (string, error) {
	if len(s.secret) == 0 {
		return "", errors.New("token secret not configured")
	}

	c := claims{
		Email: u.Email,
		Name:  u.FullName,
		Role:  u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.Hex(),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString(s.secret)
}

// Validate parses and verifies a token and returns the user embedded in it.
func (s *Service) Validate(token string) (*SessionUser, error) {
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid || strings.TrimSpace(c.Subject) == "" {
		return nil, ErrInvalidToken
	}

	return &SessionUser{
		ID:    c.Subject,
		Name:  c.Name,
		Email: c.Email,
		Role:  c.Role,
	}, nil
}

// TokenFromRequest pulls the bearer token from the Authorization header, or
// from the `token` query parameter. The query form exists for the websocket
// handshake, where browsers cannot set headers.
func TokenFromRequest(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		const prefix = "Bearer "
		if !strings.HasPrefix(h, prefix) {
			return "", ErrInvalidToken
		}
		return strings.TrimSpace(h[len(prefix):]), nil
	}
	if t := r.URL.Query().Get("token"); t != "" {
		return t, nil
	}
	return "", ErrNoToken
}

/*─────────────────────────────────────────────────────────────────────────────*
| Middleware                                                                  |
*─────────────────────────────────────────────────────────────────────────────*/

// RequireAuth rejects requests without a valid token and injects the decoded
// user into the request context.
func (s *Service) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := TokenFromRequest(r)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		u, err := s.Validate(token)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, WithUser(r, u))
	})
}

// RequireRole ensures the signed-in user holds one of the allowed roles.
func (s *Service) RequireRole(allowed ...string) func(http.Handler) http.Handler {
	set := make(map[string]struct{}, len(allowed))
	for _, role := range allowed {
		set[strings.ToLower(strings.TrimSpace(role))] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := CurrentUser(r)
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if _, has := set[strings.ToLower(u.Role)]; !has {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
