package repository

import (
	"errors"

	"github.com/annalist/annalist-backend/internal/domain"
	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// VersionRepository is the storage backend for record versions: insert,
// max-number query, point/range lookup by owner+number, per-version
// delete and cascade delete by owner. Lookups that match nothing return
// (nil, nil), not an error.
type VersionRepository interface {
	// Insert persists a new version row. inserted is false when the
	// storage layer skipped the write without reporting an error.
	Insert(v *domain.Version) (inserted bool, err error)
	// MaxNumber returns the highest assigned number for the owner, 0 when
	// the owner has no versions.
	MaxNumber(ref domain.OwnerRef) (uint, error)
	First(ref domain.OwnerRef) (*domain.Version, error)
	Current(ref domain.OwnerRef) (*domain.Version, error)
	ByNumber(ref domain.OwnerRef, number uint) (*domain.Version, error)
	NextAfter(ref domain.OwnerRef, number uint) (*domain.Version, error)
	PreviousBefore(ref domain.OwnerRef, number uint) (*domain.Version, error)
	Count(ref domain.OwnerRef) (int64, error)
	// ListByOwner returns all versions for the owner, newest first.
	ListByOwner(ref domain.OwnerRef) ([]*domain.Version, error)
	// AtOrBelow returns versions with number <= threshold, oldest first.
	AtOrBelow(ref domain.OwnerRef, threshold uint) ([]*domain.Version, error)
	Delete(v *domain.Version) error
	// DeleteByOwner removes the owner's whole history (owner deletion cascade).
	DeleteByOwner(ref domain.OwnerRef) error
}

type versionRepository struct {
	db *gorm.DB
}

// NewVersionRepository creates a new VersionRepository
func NewVersionRepository(db *gorm.DB) VersionRepository {
	return &versionRepository{db: db}
}

func (r *versionRepository) Insert(v *domain.Version) (bool, error) {
	result := r.db.Create(v)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *versionRepository) MaxNumber(ref domain.OwnerRef) (uint, error) {
	var max *uint
	err := r.db.Model(&domain.Version{}).
		Where("owner_type = ? AND owner_id = ?", ref.Type, ref.ID).
		Select("MAX(number)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max, nil
}

func (r *versionRepository) First(ref domain.OwnerRef) (*domain.Version, error) {
	return r.one(r.db.Where("owner_type = ? AND owner_id = ?", ref.Type, ref.ID).
		Order("number ASC"))
}

func (r *versionRepository) Current(ref domain.OwnerRef) (*domain.Version, error) {
	return r.one(r.db.Where("owner_type = ? AND owner_id = ?", ref.Type, ref.ID).
		Order("number DESC"))
}

func (r *versionRepository) ByNumber(ref domain.OwnerRef, number uint) (*domain.Version, error) {
	return r.one(r.db.Where("owner_type = ? AND owner_id = ? AND number = ?", ref.Type, ref.ID, number))
}

func (r *versionRepository) NextAfter(ref domain.OwnerRef, number uint) (*domain.Version, error) {
	return r.one(r.db.Where("owner_type = ? AND owner_id = ? AND number > ?", ref.Type, ref.ID, number).
		Order("number ASC"))
}

func (r *versionRepository) PreviousBefore(ref domain.OwnerRef, number uint) (*domain.Version, error) {
	return r.one(r.db.Where("owner_type = ? AND owner_id = ? AND number < ?", ref.Type, ref.ID, number).
		Order("number DESC"))
}

func (r *versionRepository) Count(ref domain.OwnerRef) (int64, error) {
	var count int64
	err := r.db.Model(&domain.Version{}).
		Where("owner_type = ? AND owner_id = ?", ref.Type, ref.ID).
		Count(&count).Error
	return count, err
}

func (r *versionRepository) ListByOwner(ref domain.OwnerRef) ([]*domain.Version, error) {
	var versions []*domain.Version
	err := r.db.Where("owner_type = ? AND owner_id = ?", ref.Type, ref.ID).
		Order("number DESC").
		Find(&versions).Error
	return versions, err
}

func (r *versionRepository) AtOrBelow(ref domain.OwnerRef, threshold uint) ([]*domain.Version, error) {
	var versions []*domain.Version
	err := r.db.Where("owner_type = ? AND owner_id = ? AND number <= ?", ref.Type, ref.ID, threshold).
		Order("number ASC").
		Find(&versions).Error
	return versions, err
}

func (r *versionRepository) Delete(v *domain.Version) error {
	return r.db.Delete(&domain.Version{}, v.ID).Error
}

func (r *versionRepository) DeleteByOwner(ref domain.OwnerRef) error {
	return r.db.Where("owner_type = ? AND owner_id = ?", ref.Type, ref.ID).
		Delete(&domain.Version{}).Error
}

func (r *versionRepository) one(tx *gorm.DB) (*domain.Version, error) {
	var v domain.Version
	err := tx.First(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &v, nil
}

// IsDuplicateEntry reports whether err is a unique-constraint violation,
// the signal of a numbering race on (owner_type, owner_id, number).
func IsDuplicateEntry(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysqldriver.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}
