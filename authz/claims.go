package authz

import (
	"maps"
	"strings"
	"time"
)

// Claims is the decoded payload of a verified token.
type Claims map[string]any

// Subject returns the sub claim, or "" when absent.
func (c Claims) Subject() string {
	s, _ := c["sub"].(string)
	return s
}

// ExpiresAt returns the exp claim. ok is false when it is missing or not a number.
func (c Claims) ExpiresAt() (t time.Time, ok bool) {
	switch v := c["exp"].(type) {
	case float64:
		return time.Unix(int64(v), 0), true
	case int64:
		return time.Unix(v, 0), true
	case int:
		return time.Unix(int64(v), 0), true
	}
	return time.Time{}, false
}

// Strings reads name as a list of strings. Arrays keep their string
// elements; a single string is split on whitespace, which is how the OAuth
// "scope" claim is encoded. ok reports whether the claim was present.
func (c Claims) Strings(name string) (values []string, ok bool) {
	raw, ok := c[name]
	if !ok {
		return nil, false
	}
	switch v := raw.(type) {
	case []string:
		return append([]string(nil), v...), true
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, isStr := e.(string); isStr {
				out = append(out, s)
			}
		}
		return out, true
	case string:
		return strings.Fields(v), true
	}
	return nil, true
}

// Clone returns a deep copy, so callers may not mutate cached claims.
func (c Claims) Clone() Claims {
	if c == nil {
		return nil
	}
	out := make(Claims, len(c))
	for k, v := range c {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := maps.Clone(t)
		for k, e := range m {
			m[k] = cloneValue(e)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = cloneValue(e)
		}
		return s
	case []string:
		return append([]string(nil), t...)
	}
	return v
}
