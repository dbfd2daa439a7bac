package service

import (
	"fmt"
	"sync"

	"github.com/annalist/annalist-backend/internal/common"
	"github.com/annalist/annalist-backend/internal/domain"
	"github.com/annalist/annalist-backend/pkg/logger"
)

// PolicyService decides, per save event, whether a snapshot is captured,
// and runs retention immediately after a successful capture. Type
// policies are registered once at startup and never mutated.
type PolicyService interface {
	// Register installs an immutable policy for an owner type. Options
	// are validated here; a bad key or value is fatal at setup time.
	Register(ownerType string, opts map[string]any) (*domain.TypeConfig, error)
	// Config returns the registered policy for an owner type.
	Config(ownerType string) (*domain.TypeConfig, error)
	// OnSaved runs after the owner's own save succeeded: checks the gate,
	// captures a snapshot, and prunes synchronously when keep is set.
	// Returns the created version, or (nil, nil) when the gate is closed
	// or the write was skipped. A snapshot failure is returned for
	// observability but must never fail the triggering save; callers log
	// it and carry on.
	OnSaved(owner domain.Owner, gate *domain.Gate) (*domain.Version, error)
}

type policyService struct {
	versions VersionService

	mu    sync.RWMutex
	types map[string]*domain.TypeConfig
}

// NewPolicyService creates a new PolicyService
func NewPolicyService(versions VersionService) PolicyService {
	return &policyService{
		versions: versions,
		types:    make(map[string]*domain.TypeConfig),
	}
}

func (s *policyService) Register(ownerType string, opts map[string]any) (*domain.TypeConfig, error) {
	cfg, err := domain.NewTypeConfig(ownerType, opts)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.types[ownerType] = cfg
	s.mu.Unlock()

	return cfg, nil
}

func (s *policyService) Config(ownerType string) (*domain.TypeConfig, error) {
	s.mu.RLock()
	cfg, ok := s.types[ownerType]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrTypeNotRegistered, ownerType)
	}
	return cfg, nil
}

func (s *policyService) OnSaved(owner domain.Owner, gate *domain.Gate) (*domain.Version, error) {
	ref := owner.Ref()
	cfg, err := s.Config(ref.Type)
	if err != nil {
		return nil, err
	}

	if !gate.Enabled(cfg) {
		return nil, nil
	}

	v, err := s.versions.CreateVersion(ref, owner.Attributes(), cfg)
	if err != nil {
		return nil, err
	}
	if v == nil {
		// Write was skipped: no version, and nothing to prune.
		return nil, nil
	}

	if cfg.Keep != nil {
		report := s.versions.Prune(ref, *cfg.Keep)
		if pruneErr := report.Err(); pruneErr != nil {
			logger.WithOwner(ref.Type, ref.ID).Warn().
				Int("deleted", report.Deleted).
				Int("failed", len(report.Failures)).
				Err(pruneErr).
				Msg("retention pruning partially failed")
		}
	}

	return v, nil
}
