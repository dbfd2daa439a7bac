package domain

import "time"

// Version is an immutable numbered snapshot of an owning record's
// attributes. Numbers are unique and strictly increasing per owner,
// starting at 1. Pruning may remove the oldest entries (leaving gaps)
// but survivors are never renumbered.
type Version struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	OwnerType string    `gorm:"column:owner_type;size:100;uniqueIndex:uq_owner_number,priority:1" json:"owner_type"`
	OwnerID   string    `gorm:"column:owner_id;size:100;uniqueIndex:uq_owner_number,priority:2" json:"owner_id"`
	Number    uint      `gorm:"column:number;uniqueIndex:uq_owner_number,priority:3" json:"number"`
	Payload   []byte    `gorm:"column:payload;type:json" json:"-"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName returns the table name for Version
func (Version) TableName() string {
	return "record_versions"
}

// OwnerRef returns the owning record reference for this version.
func (v *Version) OwnerRef() OwnerRef {
	return OwnerRef{Type: v.OwnerType, ID: v.OwnerID}
}

// VersionMeta is the listing view of a version: metadata only, payload
// decode stays lazy so listing succeeds even when a payload is corrupt.
type VersionMeta struct {
	Number    uint      `json:"number"`
	CreatedAt time.Time `json:"created_at"`
}

// Meta returns the metadata view of the version.
func (v *Version) Meta() VersionMeta {
	return VersionMeta{Number: v.Number, CreatedAt: v.CreatedAt}
}
