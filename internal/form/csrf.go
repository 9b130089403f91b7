// internal/form/csrf.go
//
// Stateless CSRF tokens for cookie-authenticated endpoints.
//
// Context
//   The admin city switcher authenticates with the session cookie, so a
//   third-party page could post to it.  Clients first GET a token, then
//   echo it in the X-CSRF-Token header on every unsafe request:
//
//      base64url( nonce | unixMicro | HMAC_SHA256(secret, nonce+unixMicro) )
//
//   •  nonce – 16 random bytes.
//   •  unixMicro – issue time, 8 bytes, big-endian.
//   •  HMAC – keyed with the session secret.
//
//   Verification checks the signature and that the token is younger than
//   MaxAge.  No server-side state, so any node can verify any token.
//
//------------------------------------------------------------------------------

package form

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"net/http"
	"time"

	"github.com/yanizio/civitas/internal/httperr"
)

// HeaderCSRF carries the token on unsafe requests.
const HeaderCSRF = "X-CSRF-Token"

// CSRFInvalid is the error code for a missing or bad token.
const CSRFInvalid = "CSRF_INVALID"

const (
	tokenBytes = 16 + 8 + sha256.Size // nonce + ts + sig
	MaxAge     = 2 * time.Hour
)

// CSRF issues and verifies tokens.
type CSRF struct {
	secret []byte
	now    func() time.Time
}

// NewCSRF returns a CSRF keyed with secret.
func NewCSRF(secret []byte) *CSRF {
	return &CSRF{secret: secret, now: time.Now}
}

// Token creates a new token.
func (c *CSRF) Token() (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	ts := make([]byte, 8)
	binary.BigEndian.PutUint64(ts, uint64(c.now().UnixMicro()))

	buf := make([]byte, 0, tokenBytes)
	buf = append(buf, nonce...)
	buf = append(buf, ts...)
	buf = append(buf, c.sign(nonce, ts)...)
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Verify reports whether tok passes HMAC and age checks.
func (c *CSRF) Verify(tok string) bool {
	raw, err := base64.RawURLEncoding.DecodeString(tok)
	if err != nil || len(raw) != tokenBytes {
		return false
	}
	nonce, ts, sig := raw[:16], raw[16:24], raw[24:]

	issued := time.UnixMicro(int64(binary.BigEndian.Uint64(ts)))
	now := c.now()
	if now.Sub(issued) > MaxAge || issued.Sub(now) > time.Minute {
		return false
	}
	return hmac.Equal(sig, c.sign(nonce, ts))
}

func (c *CSRF) sign(nonce, ts []byte) []byte {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(nonce)
	mac.Write(ts)
	return mac.Sum(nil)
}

// Protect rejects unsafe requests without a valid token with 403.
func (c *CSRF) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
		default:
			if !c.Verify(r.Header.Get(HeaderCSRF)) {
				httperr.Write(w, http.StatusForbidden, CSRFInvalid)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// HandleToken answers {"token": "..."}.
func (c *CSRF) HandleToken(w http.ResponseWriter, _ *http.Request) {
	tok, err := c.Token()
	if err != nil {
		httperr.Write(w, http.StatusInternalServerError, httperr.Internal)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	httperr.JSON(w, http.StatusOK, map[string]string{"token": tok})
}
