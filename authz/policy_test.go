package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClaimPolicy(t *testing.T) {
	claims := map[string]any{
		"sub":         "auth0|barista",
		"email":       "barista@coffee.test",
		"shift":       float64(2),
		"verified":    true,
		"permissions": []any{"get:drinks-detail", "post:drinks"},
	}

	tests := []struct {
		name    string
		policy  ClaimPolicy
		wantErr error
	}{
		{name: "zero value accepts"},
		{name: "required present", policy: ClaimPolicy{Required: []string{"sub", "email"}}},
		{name: "required missing", policy: ClaimPolicy{Required: []string{"org_id"}}, wantErr: ErrClaimMissing},
		{name: "denylisted claim present", policy: ClaimPolicy{Denylist: []string{"email"}}, wantErr: ErrClaimForbidden},
		{name: "denylisted claim absent", policy: ClaimPolicy{Denylist: []string{"act"}}},
		{name: "enforced string", policy: ClaimPolicy{EnforcedValues: map[string][]any{"email": {"barista@coffee.test"}}}},
		{name: "enforced string mismatch", policy: ClaimPolicy{EnforcedValues: map[string][]any{"email": {"x@y"}}}, wantErr: ErrClaimValueNotAllowed},
		{name: "enforced number across types", policy: ClaimPolicy{EnforcedValues: map[string][]any{"shift": {1, 2}}}},
		{name: "enforced bool", policy: ClaimPolicy{EnforcedValues: map[string][]any{"verified": {true}}}},
		{name: "enforced bool mismatch", policy: ClaimPolicy{EnforcedValues: map[string][]any{"verified": {false}}}, wantErr: ErrClaimValueNotAllowed},
		{name: "enforced array any match", policy: ClaimPolicy{EnforcedValues: map[string][]any{"permissions": {"post:drinks"}}}},
		{name: "enforced array no match", policy: ClaimPolicy{EnforcedValues: map[string][]any{"permissions": {"delete:drinks"}}}, wantErr: ErrClaimValueNotAllowed},
		{name: "enforced only when present", policy: ClaimPolicy{EnforcedValues: map[string][]any{"org_id": {"acme"}}}},
		{name: "number never equals string", policy: ClaimPolicy{EnforcedValues: map[string][]any{"shift": {"2"}}}, wantErr: ErrClaimValueNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate(claims)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestClaimsStrings(t *testing.T) {
	c := Claims{
		"arr":   []any{"a", 1.0, "b"},
		"strs":  []string{"x"},
		"scope": "openid  profile",
		"num":   3.0,
	}
	got, ok := c.Strings("arr")
	assert.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, got)

	got, _ = c.Strings("strs")
	assert.Equal(t, []string{"x"}, got)

	got, _ = c.Strings("scope")
	assert.Equal(t, []string{"openid", "profile"}, got)

	got, ok = c.Strings("num")
	assert.True(t, ok)
	assert.Empty(t, got)

	_, ok = c.Strings("missing")
	assert.False(t, ok)
}

func TestErrorIsMatchesKind(t *testing.T) {
	err := wrap(ErrTokenExpired, assert.AnError)
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.NotErrorIs(t, err, ErrInvalidClaims)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 401, err.Status)
}
