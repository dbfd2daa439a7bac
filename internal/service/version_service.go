package service

import (
	"errors"
	"fmt"
	"sync"

	"github.com/annalist/annalist-backend/internal/codec"
	"github.com/annalist/annalist-backend/internal/common"
	"github.com/annalist/annalist-backend/internal/domain"
	"github.com/annalist/annalist-backend/internal/repository"
	"github.com/annalist/annalist-backend/pkg/logger"
)

// maxNumberingAttempts bounds the retry loop on a numbering conflict.
// After the last attempt the conflict escalates to ErrPersistence.
const maxNumberingAttempts = 3

// VersionService is the version store: durable ordered history per
// owner, monotonic numbering, retention, and navigation.
type VersionService interface {
	// CreateVersion captures a snapshot of attrs and assigns the next
	// number for the owner. Returns (nil, nil) when the storage layer
	// skipped the write (no version created, not an error).
	CreateVersion(ref domain.OwnerRef, attrs domain.AttributeMap, cfg *domain.TypeConfig) (*domain.Version, error)
	// Prune deletes every version numbered at or below max-keep, keeping
	// the keep most recent numbers. Victim deletions are independent:
	// one failure does not abort the rest.
	Prune(ref domain.OwnerRef, keep int) *PruneReport
	First(ref domain.OwnerRef) (*domain.Version, error)
	Current(ref domain.OwnerRef) (*domain.Version, error)
	ByNumber(ref domain.OwnerRef, number uint) (*domain.Version, error)
	NextAfter(ref domain.OwnerRef, number uint) (*domain.Version, error)
	PreviousBefore(ref domain.OwnerRef, number uint) (*domain.Version, error)
	List(ref domain.OwnerRef) ([]domain.VersionMeta, error)
	IsVersioned(ref domain.OwnerRef) (bool, error)
	// VersionNumber returns the current number, 0 when unversioned.
	VersionNumber(ref domain.OwnerRef) (uint, error)
	// DeleteHistory removes the owner's whole version log (owner deleted).
	DeleteHistory(ref domain.OwnerRef) error
}

// PruneReport collects the outcome of a prune pass. Failures are
// per-victim and reported as a list rather than aborting the pass.
type PruneReport struct {
	Deleted  int
	Failures []error
}

// Err returns the joined failure list, or nil when every victim was deleted.
func (r *PruneReport) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	return errors.Join(r.Failures...)
}

type versionService struct {
	repo  repository.VersionRepository
	locks ownerLocks
}

// NewVersionService creates a new VersionService
func NewVersionService(repo repository.VersionRepository) VersionService {
	return &versionService{repo: repo}
}

// CreateVersion serializes the read-max/assign/insert sequence per
// owner: a keyed mutex covers writers in this process, and the unique
// (owner_type, owner_id, number) index plus a bounded retry covers
// writers in other processes sharing the same database. Owners never
// share a lock, so distinct records version independently.
func (s *versionService) CreateVersion(ref domain.OwnerRef, attrs domain.AttributeMap, cfg *domain.TypeConfig) (*domain.Version, error) {
	payload, err := codec.Encode(attrs, cfg.ExcludeSet())
	if err != nil {
		return nil, err
	}

	mu := s.locks.get(ref.Key())
	mu.Lock()
	defer mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < maxNumberingAttempts; attempt++ {
		max, err := s.repo.MaxNumber(ref)
		if err != nil {
			return nil, fmt.Errorf("%w: reading max number: %v", common.ErrPersistence, err)
		}

		v := &domain.Version{
			OwnerType: ref.Type,
			OwnerID:   ref.ID,
			Number:    max + 1,
			Payload:   payload,
		}

		inserted, err := s.repo.Insert(v)
		if err == nil {
			if !inserted {
				return nil, nil
			}
			return v, nil
		}
		if !repository.IsDuplicateEntry(err) {
			return nil, fmt.Errorf("%w: inserting version: %v", common.ErrPersistence, err)
		}
		// Another writer took the number; re-read the max and retry.
		lastErr = fmt.Errorf("%w: number %d for %s", common.ErrNumberingConflict, v.Number, ref.Key())
		logger.WithOwner(ref.Type, ref.ID).Warn().
			Uint("number", v.Number).
			Int("attempt", attempt+1).
			Msg("version numbering conflict, retrying")
	}

	return nil, fmt.Errorf("%w: numbering retries exhausted: %v", common.ErrPersistence, lastErr)
}

// Prune computes the deletion threshold from one consistent read of the
// current maximum, so a concurrent CreateVersion moving the maximum
// cannot widen the victim set mid-pass. When keep meets or exceeds the
// current count the threshold is zero or negative and nothing matches.
func (s *versionService) Prune(ref domain.OwnerRef, keep int) *PruneReport {
	report := &PruneReport{}
	if keep <= 0 {
		return report
	}

	max, err := s.repo.MaxNumber(ref)
	if err != nil {
		report.Failures = append(report.Failures, fmt.Errorf("%w: reading max number: %v", common.ErrPersistence, err))
		return report
	}
	if uint(keep) >= max {
		return report
	}
	threshold := max - uint(keep)

	victims, err := s.repo.AtOrBelow(ref, threshold)
	if err != nil {
		report.Failures = append(report.Failures, fmt.Errorf("%w: listing prune victims: %v", common.ErrPersistence, err))
		return report
	}

	for _, v := range victims {
		if err := s.repo.Delete(v); err != nil {
			report.Failures = append(report.Failures,
				fmt.Errorf("%w: deleting version %d: %v", common.ErrPersistence, v.Number, err))
			continue
		}
		report.Deleted++
	}
	return report
}

func (s *versionService) First(ref domain.OwnerRef) (*domain.Version, error) {
	return s.repo.First(ref)
}

func (s *versionService) Current(ref domain.OwnerRef) (*domain.Version, error) {
	return s.repo.Current(ref)
}

func (s *versionService) ByNumber(ref domain.OwnerRef, number uint) (*domain.Version, error) {
	return s.repo.ByNumber(ref, number)
}

func (s *versionService) NextAfter(ref domain.OwnerRef, number uint) (*domain.Version, error) {
	return s.repo.NextAfter(ref, number)
}

func (s *versionService) PreviousBefore(ref domain.OwnerRef, number uint) (*domain.Version, error) {
	return s.repo.PreviousBefore(ref, number)
}

// List returns metadata only; payloads are decoded lazily elsewhere so
// listing succeeds even when a stored payload is corrupt.
func (s *versionService) List(ref domain.OwnerRef) ([]domain.VersionMeta, error) {
	versions, err := s.repo.ListByOwner(ref)
	if err != nil {
		return nil, err
	}
	metas := make([]domain.VersionMeta, 0, len(versions))
	for _, v := range versions {
		metas = append(metas, v.Meta())
	}
	return metas, nil
}

func (s *versionService) IsVersioned(ref domain.OwnerRef) (bool, error) {
	count, err := s.repo.Count(ref)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *versionService) VersionNumber(ref domain.OwnerRef) (uint, error) {
	return s.repo.MaxNumber(ref)
}

func (s *versionService) DeleteHistory(ref domain.OwnerRef) error {
	return s.repo.DeleteByOwner(ref)
}

// ownerLocks hands out one mutex per owner key. Entries are kept for
// the process lifetime; the key space is bounded by the set of records
// actually written during the process.
type ownerLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (l *ownerLocks) get(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.m == nil {
		l.m = make(map[string]*sync.Mutex)
	}
	if mu, ok := l.m[key]; ok {
		return mu
	}
	mu := &sync.Mutex{}
	l.m[key] = mu
	return mu
}
