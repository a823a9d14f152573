// Package auth resolves the calling principal from an API key header or an
// HS256 bearer token. Every request must present one of the two.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nomomon/sandbox-api/internal/config"
)

var ErrUnauthorized = errors.New("missing or invalid authentication (API key or Bearer token)")

// subjectClaims are checked in order when extracting the user from a token.
var subjectClaims = []string{"sub", "user_id", "uid"}

// Authenticator validates API keys and bearer tokens and maps them to a
// stable user identifier. API keys take precedence over tokens.
type Authenticator struct {
	keys      map[string]struct{}
	keyHeader string
	jwtSecret []byte
	jwtMethod string
	tokenTTL  time.Duration
}

func New(cfg config.AuthConfig) *Authenticator {
	keys := make(map[string]struct{}, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		k = strings.TrimSpace(k)
		if k != "" {
			keys[k] = struct{}{}
		}
	}
	return &Authenticator{
		keys:      keys,
		keyHeader: cfg.APIKeyHeader,
		jwtSecret: []byte(cfg.JWTSecret),
		jwtMethod: cfg.JWTAlgorithm,
		tokenTTL:  time.Duration(cfg.JWTExpireMinutes) * time.Minute,
	}
}

// Authenticate resolves the user behind a request. API key users are named
// after the key prefix so per-key rate limits and audit rows stay separable
// without logging the full secret.
func (a *Authenticator) Authenticate(r *http.Request) (string, error) {
	if user, ok := a.userFromAPIKey(r.Header.Get(a.keyHeader)); ok {
		return user, nil
	}
	if user, ok := a.userFromBearer(r.Header.Get("Authorization")); ok {
		return user, nil
	}
	return "", ErrUnauthorized
}

func (a *Authenticator) userFromAPIKey(key string) (string, bool) {
	if key == "" || len(a.keys) == 0 {
		return "", false
	}
	if _, ok := a.keys[key]; !ok {
		return "", false
	}
	prefix := key
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return "api:" + prefix, true
}

func (a *Authenticator) userFromBearer(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}

	parsed, err := jwt.Parse(token, func(*jwt.Token) (any, error) {
		return a.jwtSecret, nil
	}, jwt.WithValidMethods([]string{a.jwtMethod}))
	if err != nil || !parsed.Valid {
		return "", false
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", false
	}
	for _, name := range subjectClaims {
		if s := claimString(claims[name]); s != "" {
			return s, true
		}
	}
	return "", false
}

// IssueToken mints a signed token for user, valid for the configured
// lifetime. Used by operator tooling and tests.
func (a *Authenticator) IssueToken(user string) (string, error) {
	method := jwt.GetSigningMethod(a.jwtMethod)
	if method == nil {
		return "", fmt.Errorf("unknown signing method %q", a.jwtMethod)
	}
	now := time.Now()
	token := jwt.NewWithClaims(method, jwt.MapClaims{
		"sub": user,
		"iat": now.Unix(),
		"exp": now.Add(a.tokenTTL).Unix(),
	})
	return token.SignedString(a.jwtSecret)
}

// claimString renders a claim value as the issuer intended: numeric subjects
// become their decimal form.
func claimString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}
