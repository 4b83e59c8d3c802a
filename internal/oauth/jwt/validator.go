package jwt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/keksclan/goBarista/internal/jwk"
)

// Failure classes reported by Validate. Each returned error wraps exactly
// one of these, in the order the checks run.
var (
	ErrMalformed       = errors.New("malformed token")
	ErrUnknownKey      = errors.New("unknown signing key")
	ErrKeyFetchTimeout = errors.New("signing key fetch timed out")
	ErrSignature       = errors.New("invalid signature")
	ErrExpired         = errors.New("token expired")
	ErrClaims          = errors.New("invalid claims")
)

// KeyProvider resolves a verification key by kid.
type KeyProvider interface {
	GetKey(ctx context.Context, kid string) (any, error)
}

type Config struct {
	Issuer      string
	Audience    string
	AllowedAlgs []string
	// ClockSkew is the leeway applied to exp and nbf. Zero means a token is
	// expired from the second named by exp.
	ClockSkew time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Validator verifies compact JWS tokens in four stages: structure, key
// resolution, signature, claims. It is safe for concurrent use.
type Validator struct {
	cfg           Config
	keys          KeyProvider
	allowedAlgSet map[string]struct{}
	// parserOpts is precomputed once at construction and reused for every
	// Validate call.
	parserOpts []jwt.ParserOption
}

func New(cfg Config, keys KeyProvider) (*Validator, error) {
	if keys == nil {
		return nil, errors.New("key provider is required")
	}
	if len(cfg.AllowedAlgs) == 0 {
		return nil, errors.New("at least one signing algorithm must be allowed")
	}
	v := &Validator{
		cfg:           cfg,
		keys:          keys,
		allowedAlgSet: make(map[string]struct{}, len(cfg.AllowedAlgs)),
	}
	for _, alg := range cfg.AllowedAlgs {
		if alg == jwt.SigningMethodNone.Alg() || jwt.GetSigningMethod(alg) == nil {
			return nil, fmt.Errorf("unsupported signing algorithm %q", alg)
		}
		v.allowedAlgSet[alg] = struct{}{}
	}

	v.parserOpts = []jwt.ParserOption{
		jwt.WithLeeway(cfg.ClockSkew),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		v.parserOpts = append(v.parserOpts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		v.parserOpts = append(v.parserOpts, jwt.WithAudience(cfg.Audience))
	}
	if cfg.Now != nil {
		v.parserOpts = append(v.parserOpts, jwt.WithTimeFunc(cfg.Now))
	}
	return v, nil
}

// Validate returns the token's claims once every stage has passed.
func (v *Validator) Validate(ctx context.Context, tokenStr string) (map[string]any, error) {
	// Errors from the header and key stages are recorded here because the
	// parser folds keyfunc failures into ErrTokenUnverifiable.
	var stageErr error

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		alg, _ := t.Header["alg"].(string)
		if _, ok := v.allowedAlgSet[alg]; !ok {
			stageErr = fmt.Errorf("%w: algorithm %q not allowed", ErrMalformed, alg)
			return nil, stageErr
		}
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			stageErr = fmt.Errorf("%w: missing kid in header", ErrMalformed)
			return nil, stageErr
		}

		key, err := v.keys.GetKey(ctx, kid)
		if err != nil {
			if errors.Is(err, jwk.ErrFetchTimeout) {
				stageErr = fmt.Errorf("%w: %v", ErrKeyFetchTimeout, err)
			} else {
				stageErr = fmt.Errorf("%w: %v", ErrUnknownKey, err)
			}
			return nil, stageErr
		}
		return key, nil
	}, v.parserOpts...)

	if err != nil {
		return nil, classify(err, stageErr)
	}
	return map[string]any(claims), nil
}

func classify(err, stageErr error) error {
	switch {
	case stageErr != nil:
		return stageErr
	case errors.Is(err, jwt.ErrTokenMalformed), errors.Is(err, jwt.ErrTokenUnverifiable):
		// Unverifiable before the keyfunc runs means the header named no
		// algorithm or one the library does not implement.
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrClaims, err)
	}
}
