// Package testidp is an in-process identity provider for tests: it serves a
// JWKS document over httptest and signs RS256 tokens with the same keys.
package testidp

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"maps"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

const Audience = "drinks"

type IdP struct {
	t   testing.TB
	srv *httptest.Server

	mu        sync.Mutex
	published map[string]*rsa.PrivateKey
	signers   map[string]*rsa.PrivateKey
	delay     time.Duration

	hits atomic.Int32
}

// New starts a provider publishing one key per kid.
func New(t testing.TB, kids ...string) *IdP {
	t.Helper()
	p := &IdP{
		t:         t,
		published: map[string]*rsa.PrivateKey{},
		signers:   map[string]*rsa.PrivateKey{},
	}
	for _, kid := range kids {
		p.AddKey(kid)
	}
	p.srv = httptest.NewServer(http.HandlerFunc(p.serveJWKS))
	t.Cleanup(p.srv.Close)
	return p
}

func (p *IdP) serveJWKS(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/.well-known/jwks.json" {
		http.NotFound(w, r)
		return
	}
	p.hits.Add(1)

	p.mu.Lock()
	delay := p.delay
	keys := maps.Clone(p.published)
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	set := jwk.NewSet()
	for _, kid := range slices.Sorted(maps.Keys(keys)) {
		k, err := jwk.FromRaw(&keys[kid].PublicKey)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		_ = k.Set(jwk.KeyIDKey, kid)
		_ = k.Set(jwk.AlgorithmKey, "RS256")
		_ = k.Set(jwk.KeyUsageKey, "sig")
		_ = set.AddKey(k)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(set)
}

// AddKey mints a key for kid and publishes it.
func (p *IdP) AddKey(kid string) {
	p.t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		p.t.Fatalf("generate key: %v", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published[kid] = priv
	p.signers[kid] = priv
}

// AddUnpublishedKey mints a signing key for kid that the JWKS never lists.
func (p *IdP) AddUnpublishedKey(kid string) {
	p.t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		p.t.Fatalf("generate key: %v", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signers[kid] = priv
}

// SetDelay makes every JWKS response wait d first.
func (p *IdP) SetDelay(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delay = d
}

// Hits counts JWKS requests served.
func (p *IdP) Hits() int { return int(p.hits.Load()) }

func (p *IdP) URL() string     { return p.srv.URL }
func (p *IdP) Issuer() string  { return p.srv.URL + "/" }
func (p *IdP) JWKSURL() string { return p.srv.URL + "/.well-known/jwks.json" }

// Claims returns a valid claim set for the provider carrying perms.
func (p *IdP) Claims(perms ...string) gojwt.MapClaims {
	return gojwt.MapClaims{
		"iss":         p.Issuer(),
		"aud":         Audience,
		"sub":         "auth0|barista",
		"iat":         time.Now().Unix(),
		"exp":         time.Now().Add(10 * time.Minute).Unix(),
		"permissions": perms,
	}
}

// Sign issues an RS256 token under kid.
func (p *IdP) Sign(kid string, claims gojwt.MapClaims) string {
	p.t.Helper()
	p.mu.Lock()
	priv, ok := p.signers[kid]
	p.mu.Unlock()
	if !ok {
		p.t.Fatalf("no signing key for kid %q", kid)
	}
	tok := gojwt.NewWithClaims(gojwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	s, err := tok.SignedString(priv)
	if err != nil {
		p.t.Fatalf("sign token: %v", err)
	}
	return s
}

// Bearer is Sign formatted as an Authorization header value.
func (p *IdP) Bearer(kid string, claims gojwt.MapClaims) string {
	return "Bearer " + p.Sign(kid, claims)
}
