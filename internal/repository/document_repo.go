package repository

import (
	"errors"

	"github.com/annalist/annalist-backend/internal/domain"
	"gorm.io/gorm"
)

// DocumentRepository handles document data operations
type DocumentRepository interface {
	Create(doc *domain.Document) error
	Update(doc *domain.Document) error
	FindByPublicID(publicID string) (*domain.Document, error)
	List(page, limit int) ([]domain.Document, int64, error)
	Delete(publicID string) error
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository creates a new DocumentRepository
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) Create(doc *domain.Document) error {
	return r.db.Create(doc).Error
}

func (r *documentRepository) Update(doc *domain.Document) error {
	return r.db.Save(doc).Error
}

func (r *documentRepository) FindByPublicID(publicID string) (*domain.Document, error) {
	var doc domain.Document
	err := r.db.Where("public_id = ?", publicID).First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepository) List(page, limit int) ([]domain.Document, int64, error) {
	var docs []domain.Document
	var total int64

	if err := r.db.Model(&domain.Document{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := r.db.Order("updated_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&docs).Error
	return docs, total, err
}

func (r *documentRepository) Delete(publicID string) error {
	return r.db.Where("public_id = ?", publicID).Delete(&domain.Document{}).Error
}
