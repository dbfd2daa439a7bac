package service

import (
	"fmt"

	"github.com/annalist/annalist-backend/internal/codec"
	"github.com/annalist/annalist-backend/internal/common"
	"github.com/annalist/annalist-backend/internal/domain"
)

// DefaultRevertExcept is the revert-time exclusion applied when the
// caller does not override it: record timestamps keep their live values.
func DefaultRevertExcept() map[string]bool {
	return map[string]bool{
		"created_at": true,
		"updated_at": true,
	}
}

// RevertService restores an owner's live attributes from a chosen
// historical version. It never captures a snapshot of its own: if the
// policy is enabled for the subsequent save, the normal save-triggered
// flow applies.
type RevertService interface {
	// Resolve looks up a version by number for the owner. A number that
	// does not resolve fails with ErrVersionNotFound.
	Resolve(ref domain.OwnerRef, number uint) (*domain.Version, error)
	// Revert decodes the version payload, drops every key in except
	// (DefaultRevertExcept when nil), merges the rest onto the owner's
	// live attributes, and persists the owner through its own
	// collaborator, surfacing whatever failure that reports.
	Revert(owner domain.Owner, v *domain.Version, except map[string]bool) error
}

type revertService struct {
	versions VersionService
}

// NewRevertService creates a new RevertService
func NewRevertService(versions VersionService) RevertService {
	return &revertService{versions: versions}
}

func (s *revertService) Resolve(ref domain.OwnerRef, number uint) (*domain.Version, error) {
	v, err := s.versions.ByNumber(ref, number)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("%w: %s version %d", common.ErrVersionNotFound, ref.Key(), number)
	}
	return v, nil
}

func (s *revertService) Revert(owner domain.Owner, v *domain.Version, except map[string]bool) error {
	if v == nil || v.OwnerRef() != owner.Ref() {
		return fmt.Errorf("%w: version does not belong to %s", common.ErrVersionNotFound, owner.Ref().Key())
	}

	attrs, err := codec.Decode(v.Payload)
	if err != nil {
		return err
	}

	if except == nil {
		except = DefaultRevertExcept()
	}
	restored := make(domain.AttributeMap, len(attrs))
	for k, val := range attrs {
		if except[k] {
			continue
		}
		restored[k] = val
	}

	owner.SetAttributes(restored)
	return owner.Persist()
}
