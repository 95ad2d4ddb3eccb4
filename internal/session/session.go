// Package session authenticates dashboard users against a configured
// credential list and keeps them signed in with an HS256 JWT cookie.
package session

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"stockdash/internal/metrics"
)

const issuer = "stockdash"

var ErrInvalidCredentials = errors.New("invalid email or password")

// User is one configured account.
type User struct {
	Email    string
	Password string
	Name     string
}

// Claims carried in the session cookie.
type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// ParseCredentials reads "email:password:name" entries separated by commas.
// Entries with fewer than three fields are skipped.
func ParseCredentials(s string) map[string]User {
	users := make(map[string]User)
	for _, entry := range strings.Split(s, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) < 3 || parts[0] == "" {
			continue
		}
		users[parts[0]] = User{Email: parts[0], Password: parts[1], Name: parts[2]}
	}
	return users
}

// Config holds session settings.
type Config struct {
	Secret     string
	TTL        time.Duration
	CookieName string
	Secure     bool
}

// Manager issues and verifies session cookies. It is safe for concurrent use.
type Manager struct {
	users  map[string]User
	secret []byte
	ttl    time.Duration
	cookie string
	secure bool
	now    func() time.Time
	log    *zap.Logger
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.log = l }
}

func NewManager(users map[string]User, cfg Config, opts ...Option) (*Manager, error) {
	if cfg.Secret == "" {
		return nil, errors.New("session secret is required")
	}
	if len(users) == 0 {
		return nil, errors.New("no users configured")
	}
	m := &Manager{
		users:  users,
		secret: []byte(cfg.Secret),
		ttl:    cfg.TTL,
		cookie: cfg.CookieName,
		secure: cfg.Secure,
		now:    time.Now,
		log:    zap.NewNop(),
	}
	if m.ttl <= 0 {
		m.ttl = 24 * time.Hour
	}
	if m.cookie == "" {
		m.cookie = "session"
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Authenticate checks email and password against the configured users.
func (m *Manager) Authenticate(email, password string) (User, error) {
	u, ok := m.users[email]
	if !ok || subtle.ConstantTimeCompare([]byte(u.Password), []byte(password)) != 1 {
		metrics.AuthOperations.WithLabelValues("login", "error").Inc()
		return User{}, ErrInvalidCredentials
	}
	metrics.AuthOperations.WithLabelValues("login", "success").Inc()
	return u, nil
}

// Issue signs a session token for u.
func (m *Manager) Issue(u User) (string, error) {
	now := m.now()
	claims := Claims{
		Email: u.Email,
		Name:  u.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   u.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// Verify parses token and returns its claims.
func (m *Manager) Verify(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	if _, known := m.users[claims.Email]; !known {
		return nil, fmt.Errorf("unknown user %q", claims.Email)
	}
	return claims, nil
}

// SetCookie stores token in the session cookie.
func (m *Manager) SetCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookie,
		Value:    token,
		Path:     "/",
		Expires:  m.now().Add(m.ttl),
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie.
func (m *Manager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

type ctxKey struct{}

// Require rejects requests without a valid session cookie with a 401 JSON body.
func (m *Manager) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(m.cookie)
		if err != nil || c.Value == "" {
			metrics.AuthOperations.WithLabelValues("verify", "missing").Inc()
			unauthorized(w)
			return
		}
		claims, err := m.Verify(c.Value)
		if err != nil {
			m.log.Warn("session validation failed", zap.Error(err), zap.String("ip", r.RemoteAddr))
			metrics.AuthOperations.WithLabelValues("verify", "error").Inc()
			unauthorized(w)
			return
		}
		metrics.AuthOperations.WithLabelValues("verify", "success").Inc()
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, claims)))
	})
}

// UserFromContext returns the claims stored by Require.
func UserFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(ctxKey{}).(*Claims)
	return c, ok
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "Authentication required"})
}
