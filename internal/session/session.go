// internal/session/session.go
//
// Signed session cookie.
//
// Context
// -------
// Staff sign in once and carry a "civitas_session" cookie holding an
// HS256 JWT.  The claims name the user and, for platform admins, the
// city picked in the admin switcher.  The cookie is the only place the
// switcher choice lives; the request pipeline re-verifies the admin role
// on every request before honouring it.
//
// Usage
// -----
//
//	sm := session.NewManager(cfg.Session.Secret, cfg.Session.TTL)
//	_ = sm.Issue(w, r, session.Claims{UserID: 42})
//	c, err := sm.Read(r)
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	cookieName = "civitas_session"
	issuer     = "civitas"
)

var (
	ErrNoSession = errors.New("session: no cookie")
	ErrInvalid   = errors.New("session: invalid or expired")
)

// Claims is the JWT payload.
type Claims struct {
	jwt.RegisteredClaims
	UserID      int64  `json:"uid"`
	AdminCityID uint64 `json:"acid,omitempty"`
}

// AdminCity returns the switcher choice, if one was made.
func (c *Claims) AdminCity() (uint64, bool) {
	if c == nil || c.AdminCityID == 0 {
		return 0, false
	}
	return c.AdminCityID, true
}

// Manager issues and verifies session cookies.
type Manager struct {
	secret []byte
	ttl    time.Duration
}

// NewManager returns a Manager.  ttl <= 0 defaults to 12h.
func NewManager(secret string, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Manager{secret: []byte(secret), ttl: ttl}
}

// Issue signs c and sets the cookie.
func (m *Manager) Issue(w http.ResponseWriter, r *http.Request, c Claims) error {
	now := time.Now()
	c.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   strconv.FormatInt(c.UserID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.secret)
	if err != nil {
		return fmt.Errorf("session.Issue: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    signed,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		Expires:  now.Add(m.ttl),
	})
	return nil
}

// Read verifies the cookie on r.
func (m *Manager) Read(r *http.Request) (*Claims, error) {
	ck, err := r.Cookie(cookieName)
	if err != nil || ck.Value == "" {
		return nil, ErrNoSession
	}
	c := &Claims{}
	tok, err := jwt.ParseWithClaims(ck.Value, c, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithIssuer(issuer))
	if err != nil || !tok.Valid {
		return nil, ErrInvalid
	}
	return c, nil
}

// Clear expires the cookie.
func (m *Manager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

type claimsKey struct{}

// WithClaims stores verified claims on ctx.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// FromContext returns claims stored by WithClaims, or nil.
func FromContext(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey{}).(*Claims)
	return c
}
