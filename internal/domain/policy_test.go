package domain

import (
	"errors"
	"testing"

	"github.com/annalist/annalist-backend/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTypeConfigDefaults(t *testing.T) {
	cfg, err := NewTypeConfig("document", nil)
	require.NoError(t, err)

	assert.Nil(t, cfg.Keep)
	assert.True(t, cfg.Automatic)
	assert.Empty(t, cfg.ExcludeSet())
}

func TestNewTypeConfigOptions(t *testing.T) {
	cfg, err := NewTypeConfig("document", map[string]any{
		"keep":      5,
		"automatic": false,
		"exclude":   []any{"password", "token"},
	})
	require.NoError(t, err)

	require.NotNil(t, cfg.Keep)
	assert.Equal(t, 5, *cfg.Keep)
	assert.False(t, cfg.Automatic)
	assert.True(t, cfg.Excluded("password"))
	assert.True(t, cfg.Excluded("token"))
	assert.False(t, cfg.Excluded("title"))
}

func TestNewTypeConfigInvalid(t *testing.T) {
	cases := []struct {
		name string
		opts map[string]any
	}{
		{"unrecognized key", map[string]any{"kep": 3}},
		{"zero keep", map[string]any{"keep": 0}},
		{"negative keep", map[string]any{"keep": -1}},
		{"fractional keep", map[string]any{"keep": 1.5}},
		{"non-bool automatic", map[string]any{"automatic": "yes"}},
		{"non-list exclude", map[string]any{"exclude": "password"}},
		{"non-string exclude entry", map[string]any{"exclude": []any{1}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewTypeConfig("document", tc.opts)
			assert.ErrorIs(t, err, common.ErrInvalidConfiguration)
		})
	}
}

func TestNewTypeConfigEmptyType(t *testing.T) {
	_, err := NewTypeConfig("", nil)
	assert.ErrorIs(t, err, common.ErrInvalidConfiguration)
}

func TestGateResolvesTypeDefaultLazily(t *testing.T) {
	auto, _ := NewTypeConfig("a", nil)
	manual, _ := NewTypeConfig("b", map[string]any{"automatic": false})

	g := &Gate{}
	assert.True(t, g.Enabled(auto))
	// Resolved value is memoized; a different config no longer matters.
	assert.True(t, g.Enabled(manual))

	g2 := &Gate{}
	assert.False(t, g2.Enabled(manual))
}

func TestGateSetOverrides(t *testing.T) {
	cfg, _ := NewTypeConfig("a", nil)

	g := &Gate{}
	g.Set(false)
	assert.False(t, g.Enabled(cfg))
	g.Set(true)
	assert.True(t, g.Enabled(cfg))
}

func TestGateScopedRestoresOnError(t *testing.T) {
	cfg, _ := NewTypeConfig("a", nil)

	g := &Gate{}
	g.Set(true)

	boom := errors.New("boom")
	err := g.Scoped(false, func() error {
		assert.False(t, g.Enabled(cfg))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.True(t, g.Enabled(cfg))
}

func TestGateScopedRestoresUnsetState(t *testing.T) {
	manual, _ := NewTypeConfig("b", map[string]any{"automatic": false})

	g := &Gate{}
	_ = g.Scoped(true, func() error { return nil })

	// The gate was never resolved or set outside the scope, so it falls
	// back to the type default afterwards.
	assert.False(t, g.Enabled(manual))
}

func TestGateScopedRestoresOnPanic(t *testing.T) {
	cfg, _ := NewTypeConfig("a", nil)

	g := &Gate{}
	g.Set(true)

	func() {
		defer func() { _ = recover() }()
		_ = g.Scoped(false, func() error { panic("boom") })
	}()

	assert.True(t, g.Enabled(cfg))
}
