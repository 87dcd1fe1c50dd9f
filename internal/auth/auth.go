package auth

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ILLUVRSE/serverquality/internal/config"
)

const (
	ScopeWrite = "quality:write"
	// ScopeAdmin also grants ScopeWrite.
	ScopeAdmin = "quality:admin"
)

var (
	ErrMissingToken = errors.New("bearer token required")
	ErrMissingScope = errors.New("missing required scope")
)

// Principal is the authenticated caller.
type Principal struct {
	Subject string
	Scopes  []string
}

// Verifier checks bearer JWTs signed either with a shared HMAC secret or by
// one of a set of PEM public keys.
type Verifier struct {
	hmacSecret []byte
	publicKeys []interface{} // *rsa.PublicKey, *ecdsa.PublicKey, ed25519.PublicKey
}

func NewVerifier(cfg config.AuthConfig) (*Verifier, error) {
	v := &Verifier{}
	if cfg.HMACSecret != "" {
		v.hmacSecret = []byte(cfg.HMACSecret)
	}
	if cfg.PublicKeysFile != "" {
		if err := v.loadKeys(cfg.PublicKeysFile); err != nil {
			return nil, fmt.Errorf("load public keys: %w", err)
		}
	}
	return v, nil
}

// Enabled reports whether any key is configured. A disabled verifier lets
// every request through.
func (v *Verifier) Enabled() bool {
	return v != nil && (len(v.hmacSecret) > 0 || len(v.publicKeys) > 0)
}

func (v *Verifier) loadKeys(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var keys []interface{}
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			cert, cerr := x509.ParseCertificate(block.Bytes)
			if cerr != nil {
				continue
			}
			key = cert.PublicKey
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return fmt.Errorf("no valid keys found in %s", path)
	}
	v.publicKeys = keys
	return nil
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return "", ErrMissingToken
	}
	tok := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	if tok == "" {
		return "", ErrMissingToken
	}
	return tok, nil
}

// Verify parses tokenStr and checks that it grants scope.
func (v *Verifier) Verify(tokenStr, scope string) (*Principal, error) {
	token, err := v.parse(tokenStr)
	if err != nil {
		return nil, fmt.Errorf("token parse error: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid claims")
	}
	scopes := Scopes(claims)
	if !Grants(scopes, scope) {
		return nil, ErrMissingScope
	}
	sub, _ := claims.GetSubject()
	return &Principal{Subject: sub, Scopes: scopes}, nil
}

func (v *Verifier) parse(tokenStr string) (*jwt.Token, error) {
	if len(v.hmacSecret) > 0 {
		token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
			return v.hmacSecret, nil
		}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
		if err == nil || len(v.publicKeys) == 0 {
			return token, err
		}
	}
	// PEM keys carry no kid, so try each in turn.
	var (
		token *jwt.Token
		err   = errors.New("no verification keys configured")
	)
	for _, key := range v.publicKeys {
		key := key
		token, err = jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
			return key, nil
		}, jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512", "EdDSA"}))
		if err == nil {
			return token, nil
		}
	}
	return nil, err
}

// Scopes reads the space separated "scope" claim, falling back to a "roles"
// array.
func Scopes(claims jwt.MapClaims) []string {
	if s, ok := claims["scope"].(string); ok {
		return strings.Fields(s)
	}
	var out []string
	if roles, ok := claims["roles"].([]interface{}); ok {
		for _, r := range roles {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

func Grants(scopes []string, want string) bool {
	for _, s := range scopes {
		if s == want || (s == ScopeAdmin && want == ScopeWrite) {
			return true
		}
	}
	return false
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the caller attached by the auth middleware, if any.
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}
