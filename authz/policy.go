package authz

import (
	"errors"
	"fmt"
	"slices"
)

// Claim policy failures. Verify reports each of them as INVALID_CLAIMS.
var (
	ErrClaimMissing         = errors.New("required claim missing")
	ErrClaimForbidden       = errors.New("claim is forbidden")
	ErrClaimValueNotAllowed = errors.New("claim value not allowed")
)

// ClaimPolicy is a declarative check applied after the token's signature and
// registered claims have been validated. The zero value accepts everything.
type ClaimPolicy struct {
	// Required claims must be present.
	Required []string
	// Denylist claims must be absent.
	Denylist []string
	// EnforcedValues restricts a claim, when present, to the listed values.
	// For array claims at least one element must be listed.
	EnforcedValues map[string][]any
}

func (p ClaimPolicy) Validate(claims map[string]any) error {
	for _, k := range p.Required {
		if _, ok := claims[k]; !ok {
			return fmt.Errorf("%w: %s", ErrClaimMissing, k)
		}
	}
	for _, k := range p.Denylist {
		if _, ok := claims[k]; ok {
			return fmt.Errorf("%w: %s", ErrClaimForbidden, k)
		}
	}
	for k, allowed := range p.EnforcedValues {
		v, ok := claims[k]
		if !ok {
			continue
		}
		if !valueAllowed(v, allowed) {
			return fmt.Errorf("%w: %s", ErrClaimValueNotAllowed, k)
		}
	}
	return nil
}

func (p ClaimPolicy) empty() bool {
	return len(p.Required) == 0 && len(p.Denylist) == 0 && len(p.EnforcedValues) == 0
}

func valueAllowed(v any, allowed []any) bool {
	switch vv := v.(type) {
	case []any:
		return slices.ContainsFunc(vv, func(e any) bool { return valueAllowed(e, allowed) })
	case []string:
		return slices.ContainsFunc(vv, func(e string) bool { return valueAllowed(e, allowed) })
	}
	return slices.ContainsFunc(allowed, func(a any) bool { return scalarEqual(v, a) })
}

// scalarEqual compares JSON scalars, treating all numeric types as float64
// since decoded claims only ever carry float64.
func scalarEqual(a, b any) bool {
	af, aNum := toFloat64(a)
	bf, bNum := toFloat64(b)
	if aNum || bNum {
		return aNum && bNum && af == bf
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	return false
}

func toFloat64(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	}
	return 0, false
}
