package domain

import (
	"fmt"
	"sync"

	"github.com/annalist/annalist-backend/internal/common"
)

// TypeConfig is the immutable per-record-type versioning policy,
// constructed once at registration time and never mutated afterwards.
type TypeConfig struct {
	OwnerType string
	// Keep caps retained versions; nil means unlimited.
	Keep *int
	// Automatic is the default snapshot-on-save behavior for instances
	// whose gate was never toggled explicitly.
	Automatic bool
	// Exclude lists attribute names never captured into a snapshot.
	exclude map[string]bool
}

// Recognized registration option keys.
const (
	OptionKeep      = "keep"
	OptionAutomatic = "automatic"
	OptionExclude   = "exclude"
)

// NewTypeConfig validates registration options and builds the policy.
// Unrecognized keys, a non-positive keep, or a malformed exclude list
// fail with ErrInvalidConfiguration.
func NewTypeConfig(ownerType string, opts map[string]any) (*TypeConfig, error) {
	if ownerType == "" {
		return nil, fmt.Errorf("%w: empty owner type", common.ErrInvalidConfiguration)
	}

	cfg := &TypeConfig{
		OwnerType: ownerType,
		Automatic: true,
		exclude:   map[string]bool{},
	}

	for key, raw := range opts {
		switch key {
		case OptionKeep:
			keep, err := toInt(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: keep must be a positive integer, got %v", common.ErrInvalidConfiguration, raw)
			}
			if keep <= 0 {
				return nil, fmt.Errorf("%w: keep must be positive, got %d", common.ErrInvalidConfiguration, keep)
			}
			cfg.Keep = &keep
		case OptionAutomatic:
			b, ok := raw.(bool)
			if !ok {
				return nil, fmt.Errorf("%w: automatic must be a boolean, got %v", common.ErrInvalidConfiguration, raw)
			}
			cfg.Automatic = b
		case OptionExclude:
			names, err := toStrings(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: exclude must be a list of attribute names, got %v", common.ErrInvalidConfiguration, raw)
			}
			for _, n := range names {
				cfg.exclude[n] = true
			}
		default:
			return nil, fmt.Errorf("%w: unrecognized option %q for type %q", common.ErrInvalidConfiguration, key, ownerType)
		}
	}

	return cfg, nil
}

// Exclude reports whether an attribute name is excluded from capture.
func (c *TypeConfig) Excluded(name string) bool {
	return c.exclude[name]
}

// ExcludeSet returns a copy of the exclusion set.
func (c *TypeConfig) ExcludeSet() map[string]bool {
	out := make(map[string]bool, len(c.exclude))
	for k := range c.exclude {
		out[k] = true
	}
	return out
}

func toInt(raw any) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("not an integer")
		}
		return int(v), nil
	default:
		return 0, fmt.Errorf("not an integer")
	}
}

func toStrings(raw any) ([]string, error) {
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("not a string list")
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("not a string list")
	}
}

// Gate is the per-instance snapshot-on-save switch. It starts unset and
// resolves lazily to the type's Automatic default on first query; the
// resolved value is memoized for the instance's lifetime. The gate lives
// only in memory and is never persisted.
type Gate struct {
	mu    sync.Mutex
	state *bool
}

// Enabled resolves the gate, memoizing the type default when unset.
func (g *Gate) Enabled(cfg *TypeConfig) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == nil {
		v := cfg.Automatic
		g.state = &v
	}
	return *g.state
}

// Set overrides the gate for this instance.
func (g *Gate) Set(enabled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = &enabled
}

// Scoped installs the given gate value, runs body, and restores the
// previous value (including unset) on every exit path, panics included.
func (g *Gate) Scoped(enabled bool, body func() error) error {
	g.mu.Lock()
	prev := g.state
	g.state = &enabled
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.state = prev
		g.mu.Unlock()
	}()

	return body()
}
