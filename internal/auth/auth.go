// Package auth guards catalog management routes with bearer JWTs signed by
// the platform identity service.
package auth

import (
	"crypto/subtle"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const DefaultWriteScope = "catalog:write"

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("missing required scope")
)

type Config struct {
	PublicKeyFile   string
	RequiredScope   string
	AllowDebugToken bool
	DebugToken      string
}

type Verifier struct {
	cfg  Config
	keys []interface{}
}

// NewVerifier loads PEM public keys (SPKI or certificates) from
// cfg.PublicKeyFile. With no key file only the debug token can pass.
func NewVerifier(cfg Config) (*Verifier, error) {
	if cfg.RequiredScope == "" {
		cfg.RequiredScope = DefaultWriteScope
	}
	v := &Verifier{cfg: cfg}
	if cfg.PublicKeyFile != "" {
		data, err := os.ReadFile(cfg.PublicKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read public keys: %w", err)
		}
		keys, err := ParsePublicKeys(data)
		if err != nil {
			return nil, fmt.Errorf("failed to load public keys: %w", err)
		}
		v.keys = keys
	}
	return v, nil
}

// NewVerifierWithKeys is used when keys are already in memory.
func NewVerifierWithKeys(cfg Config, keys ...interface{}) *Verifier {
	if cfg.RequiredScope == "" {
		cfg.RequiredScope = DefaultWriteScope
	}
	return &Verifier{cfg: cfg, keys: keys}
}

func ParsePublicKeys(data []byte) ([]interface{}, error) {
	var keys []interface{}
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
			keys = append(keys, key)
			continue
		}
		if cert, err := x509.ParseCertificate(block.Bytes); err == nil {
			keys = append(keys, cert.PublicKey)
		}
	}
	if len(keys) == 0 {
		return nil, errors.New("no valid PEM public keys found")
	}
	return keys, nil
}

// VerifyRequest returns nil when the request carries the debug token (if
// enabled) or a valid bearer token with the required scope.
func (v *Verifier) VerifyRequest(r *http.Request) error {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ErrUnauthenticated
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if v.cfg.AllowDebugToken && v.cfg.DebugToken != "" &&
		subtle.ConstantTimeCompare([]byte(token), []byte(v.cfg.DebugToken)) == 1 {
		return nil
	}
	return v.verifyToken(token)
}

func (v *Verifier) verifyToken(tokenStr string) error {
	if len(v.keys) == 0 {
		return fmt.Errorf("%w: no verification keys configured", ErrUnauthenticated)
	}
	var (
		token *jwt.Token
		err   error
	)
	for _, key := range v.keys {
		key := key
		token, err = jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
			return key, nil
		}, jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "ES256", "ES384", "EdDSA"}))
		if err == nil && token.Valid {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return fmt.Errorf("%w: invalid claims", ErrUnauthenticated)
	}
	if !hasScope(claims, v.cfg.RequiredScope) {
		return ErrForbidden
	}
	return nil
}

// hasScope accepts a space-delimited "scope" claim or a "roles" array.
func hasScope(claims jwt.MapClaims, want string) bool {
	if scope, ok := claims["scope"].(string); ok {
		for _, s := range strings.Fields(scope) {
			if s == want {
				return true
			}
		}
	}
	if roles, ok := claims["roles"].([]interface{}); ok {
		for _, r := range roles {
			if s, ok := r.(string); ok && s == want {
				return true
			}
		}
	}
	return false
}

// Middleware rejects unauthenticated requests with 401 and requests lacking
// the scope with 403.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := v.VerifyRequest(r); err != nil {
			status := http.StatusUnauthorized
			if errors.Is(err, ErrForbidden) {
				status = http.StatusForbidden
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		next.ServeHTTP(w, r)
	})
}
