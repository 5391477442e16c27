package http

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"coffeeshop/internal/config"
	"coffeeshop/internal/infra/auth/oidc"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testIssuer   = "https://issuer.test/"
	testAudience = "drinks"
	testKID      = "kid-1"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// identityProvider mints RS256 tokens and serves the matching key set over a
// fake transport.
type identityProvider struct {
	t       *testing.T
	key     *rsa.PrivateKey
	down    atomic.Bool
	fetches atomic.Int32
}

func newIdentityProvider(t *testing.T) *identityProvider {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return &identityProvider{t: t, key: key}
}

func (p *identityProvider) client() *http.Client {
	return &http.Client{
		Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			p.fetches.Add(1)
			if p.down.Load() {
				return &http.Response{
					StatusCode: http.StatusServiceUnavailable,
					Body:       io.NopCloser(bytes.NewBufferString(`{}`)),
					Header:     http.Header{},
				}, nil
			}
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(bytes.NewReader(p.jwks())),
				Header:     http.Header{"Content-Type": []string{"application/json"}},
			}, nil
		}),
	}
}

func (p *identityProvider) jwks() []byte {
	pub := p.key.PublicKey
	doc := map[string]any{
		"keys": []map[string]any{{
			"kty": "RSA",
			"kid": testKID,
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	}
	out, err := json.Marshal(doc)
	if err != nil {
		p.t.Fatalf("marshal jwks: %v", err)
	}
	return out
}

func (p *identityProvider) token(permissions ...string) string {
	claims := jwt.MapClaims{
		"iss":         testIssuer,
		"aud":         testAudience,
		"sub":         "auth0|barista",
		"exp":         time.Now().Add(10 * time.Minute).Unix(),
		"permissions": permissions,
	}
	if permissions == nil {
		claims["permissions"] = []string{}
	}
	return p.sign(claims)
}

func (p *identityProvider) tokenWithoutPermissions() string {
	return p.sign(jwt.MapClaims{
		"iss": testIssuer,
		"aud": testAudience,
		"sub": "auth0|barista",
		"exp": time.Now().Add(10 * time.Minute).Unix(),
	})
}

func (p *identityProvider) expiredToken(permissions ...string) string {
	return p.sign(jwt.MapClaims{
		"iss":         testIssuer,
		"aud":         testAudience,
		"sub":         "auth0|barista",
		"exp":         time.Now().Add(-10 * time.Minute).Unix(),
		"permissions": permissions,
	})
}

func (p *identityProvider) sign(claims jwt.MapClaims) string {
	p.t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKID
	signed, err := token.SignedString(p.key)
	if err != nil {
		p.t.Fatalf("sign token: %v", err)
	}
	return signed
}

func (p *identityProvider) verifier(cfg config.Config) *oidc.Verifier {
	p.t.Helper()
	v, err := oidc.NewVerifier(cfg, oidc.WithHTTPClient(p.client()))
	if err != nil {
		p.t.Fatalf("new verifier: %v", err)
	}
	return v
}

func testConfig() config.Config {
	cfg := config.Defaults()
	cfg.DBDriver = config.DriverMemory
	cfg.OIDCIssuerURL = testIssuer
	cfg.OIDCAudience = testAudience
	return cfg
}

func bearer(token string) string {
	return "Bearer " + token
}
