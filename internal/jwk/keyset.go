package jwk

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

var (
	ErrKeyNotFound  = errors.New("key not found")
	ErrFetchTimeout = errors.New("jwks fetch timed out")
	ErrInvalidJWKS  = errors.New("invalid JWKS")
	ErrNoUsableKeys = errors.New("JWKS contains no usable signing keys")
)

// KeySet is an immutable kid -> public key snapshot. A new KeySet is built
// on every refresh and published as a whole, never modified in place.
type KeySet struct {
	keys      map[string]any
	fetchedAt time.Time
}

// NewKeySet copies keys into a new snapshot stamped with fetchedAt.
func NewKeySet(keys map[string]any, fetchedAt time.Time) *KeySet {
	m := make(map[string]any, len(keys))
	for kid, k := range keys {
		m[kid] = k
	}
	return &KeySet{keys: m, fetchedAt: fetchedAt}
}

// Lookup returns the public key registered under kid.
func (s *KeySet) Lookup(kid string) (any, bool) {
	if s == nil {
		return nil, false
	}
	k, ok := s.keys[kid]
	return k, ok
}

func (s *KeySet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

// KIDs returns the key identifiers in sorted order.
func (s *KeySet) KIDs() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.keys))
	for kid := range s.keys {
		out = append(out, kid)
	}
	slices.Sort(out)
	return out
}

func (s *KeySet) FetchedAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.fetchedAt
}

// FromJWKS extracts the signature verification keys of set. Keys without a
// kid, keys marked for encryption and non-public key material are skipped.
func FromJWKS(set jwk.Set, fetchedAt time.Time) (*KeySet, error) {
	keys := make(map[string]any, set.Len())
	for i := 0; i < set.Len(); i++ {
		k, ok := set.Key(i)
		if !ok {
			continue
		}
		kid := k.KeyID()
		if kid == "" {
			continue
		}
		if use := k.KeyUsage(); use != "" && use != string(jwk.ForSignature) {
			continue
		}
		var raw any
		if err := k.Raw(&raw); err != nil {
			return nil, fmt.Errorf("%w: key %q: %v", ErrInvalidJWKS, kid, err)
		}
		switch raw.(type) {
		case *rsa.PublicKey, *ecdsa.PublicKey, ed25519.PublicKey:
			keys[kid] = raw
		}
	}
	if len(keys) == 0 {
		return nil, ErrNoUsableKeys
	}
	return &KeySet{keys: keys, fetchedAt: fetchedAt}, nil
}
