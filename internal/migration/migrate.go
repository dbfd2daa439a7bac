package migration

import (
	"github.com/annalist/annalist-backend/internal/domain"
	"gorm.io/gorm"
)

// Run applies schema migrations. The unique index on
// (owner_type, owner_id, number) is part of the Version model tags and
// backs the numbering-conflict detection, so it must exist before the
// server takes writes.
func Run(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Document{},
		&domain.Version{},
	)
}
