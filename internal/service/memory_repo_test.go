package service

import (
	"errors"
	"sync"
	"time"

	"github.com/annalist/annalist-backend/internal/domain"
	"gorm.io/gorm"
)

// memoryVersionRepo is an in-memory VersionRepository that emulates the
// storage backend, including the unique (owner, number) constraint, so
// numbering and retention behavior can be tested without a database.
type memoryVersionRepo struct {
	mu     sync.Mutex
	nextID uint64
	rows   []*domain.Version

	// fault injection
	conflictsLeft int             // next N inserts fail with a duplicate-key error
	failInsert    error           // every insert fails with this error
	skipInsert    bool            // inserts report success without writing
	failDelete    map[uint]error  // per-number delete failures
}

func newMemoryVersionRepo() *memoryVersionRepo {
	return &memoryVersionRepo{failDelete: map[uint]error{}}
}

func (r *memoryVersionRepo) Insert(v *domain.Version) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failInsert != nil {
		return false, r.failInsert
	}
	if r.conflictsLeft > 0 {
		r.conflictsLeft--
		return false, gorm.ErrDuplicatedKey
	}
	if r.skipInsert {
		return false, nil
	}

	for _, row := range r.rows {
		if row.OwnerType == v.OwnerType && row.OwnerID == v.OwnerID && row.Number == v.Number {
			return false, gorm.ErrDuplicatedKey
		}
	}

	r.nextID++
	v.ID = r.nextID
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}
	stored := *v
	r.rows = append(r.rows, &stored)
	return true, nil
}

func (r *memoryVersionRepo) MaxNumber(ref domain.OwnerRef) (uint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var max uint
	for _, row := range r.owned(ref) {
		if row.Number > max {
			max = row.Number
		}
	}
	return max, nil
}

func (r *memoryVersionRepo) First(ref domain.OwnerRef) (*domain.Version, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *domain.Version
	for _, row := range r.owned(ref) {
		if best == nil || row.Number < best.Number {
			best = row
		}
	}
	return clone(best), nil
}

func (r *memoryVersionRepo) Current(ref domain.OwnerRef) (*domain.Version, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *domain.Version
	for _, row := range r.owned(ref) {
		if best == nil || row.Number > best.Number {
			best = row
		}
	}
	return clone(best), nil
}

func (r *memoryVersionRepo) ByNumber(ref domain.OwnerRef, number uint) (*domain.Version, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.owned(ref) {
		if row.Number == number {
			return clone(row), nil
		}
	}
	return nil, nil
}

func (r *memoryVersionRepo) NextAfter(ref domain.OwnerRef, number uint) (*domain.Version, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *domain.Version
	for _, row := range r.owned(ref) {
		if row.Number > number && (best == nil || row.Number < best.Number) {
			best = row
		}
	}
	return clone(best), nil
}

func (r *memoryVersionRepo) PreviousBefore(ref domain.OwnerRef, number uint) (*domain.Version, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *domain.Version
	for _, row := range r.owned(ref) {
		if row.Number < number && (best == nil || row.Number > best.Number) {
			best = row
		}
	}
	return clone(best), nil
}

func (r *memoryVersionRepo) Count(ref domain.OwnerRef) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.owned(ref))), nil
}

func (r *memoryVersionRepo) ListByOwner(ref domain.OwnerRef) ([]*domain.Version, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rows := r.owned(ref)
	out := make([]*domain.Version, 0, len(rows))
	// newest first
	for n := len(rows); n > 0; n-- {
		var best *domain.Version
		for _, row := range rows {
			if !contains(out, row.Number) && (best == nil || row.Number > best.Number) {
				best = row
			}
		}
		out = append(out, clone(best))
	}
	return out, nil
}

func (r *memoryVersionRepo) AtOrBelow(ref domain.OwnerRef, threshold uint) ([]*domain.Version, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Version
	for _, row := range r.owned(ref) {
		if row.Number <= threshold {
			out = append(out, clone(row))
		}
	}
	return out, nil
}

func (r *memoryVersionRepo) Delete(v *domain.Version) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.failDelete[v.Number]; ok {
		return err
	}
	for i, row := range r.rows {
		if row.ID == v.ID {
			r.rows = append(r.rows[:i], r.rows[i+1:]...)
			return nil
		}
	}
	return errors.New("no such version")
}

func (r *memoryVersionRepo) DeleteByOwner(ref domain.OwnerRef) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.rows[:0]
	for _, row := range r.rows {
		if row.OwnerType != ref.Type || row.OwnerID != ref.ID {
			kept = append(kept, row)
		}
	}
	r.rows = kept
	return nil
}

func (r *memoryVersionRepo) owned(ref domain.OwnerRef) []*domain.Version {
	var out []*domain.Version
	for _, row := range r.rows {
		if row.OwnerType == ref.Type && row.OwnerID == ref.ID {
			out = append(out, row)
		}
	}
	return out
}

func (r *memoryVersionRepo) numbers(ref domain.OwnerRef) []uint {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []uint
	for _, row := range r.owned(ref) {
		out = append(out, row.Number)
	}
	return out
}

func clone(v *domain.Version) *domain.Version {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func contains(rows []*domain.Version, number uint) bool {
	for _, row := range rows {
		if row.Number == number {
			return true
		}
	}
	return false
}
