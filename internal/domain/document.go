package domain

import "time"

// Versioned owner type tags
const (
	OwnerTypeDocument = "document"
)

// Document is a versioned record served by the API. Every successful
// save may capture a snapshot of its attribute map, per the registered
// policy for OwnerTypeDocument.
type Document struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	PublicID  string    `gorm:"column:public_id;size:36;uniqueIndex" json:"id"`
	Title     string    `gorm:"column:title;size:255" json:"title"`
	Content   string    `gorm:"column:content;type:mediumtext" json:"content"`
	Tags      string    `gorm:"column:tags;size:500" json:"tags"`
	EditorID  string    `gorm:"column:editor_id;size:100" json:"editor_id"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for Document
func (Document) TableName() string {
	return "documents"
}

// Ref returns the document's stable versioning identity.
func (d *Document) Ref() OwnerRef {
	return OwnerRef{Type: OwnerTypeDocument, ID: d.PublicID}
}

// Attributes returns the document's live attribute map. Timestamps are
// encoded as RFC3339 strings so snapshots round-trip without schema.
func (d *Document) Attributes() AttributeMap {
	return AttributeMap{
		"title":      d.Title,
		"content":    d.Content,
		"tags":       d.Tags,
		"editor_id":  d.EditorID,
		"created_at": d.CreatedAt.Format(time.RFC3339Nano),
		"updated_at": d.UpdatedAt.Format(time.RFC3339Nano),
	}
}

// SetAttributes applies a partial attribute update in memory. Unknown
// keys are ignored; keys absent from the map are left untouched.
func (d *Document) SetAttributes(attrs AttributeMap) {
	if v, ok := attrs["title"].(string); ok {
		d.Title = v
	}
	if v, ok := attrs["content"].(string); ok {
		d.Content = v
	}
	if v, ok := attrs["tags"].(string); ok {
		d.Tags = v
	}
	if v, ok := attrs["editor_id"].(string); ok {
		d.EditorID = v
	}
	if v, ok := attrs["created_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			d.CreatedAt = t
		}
	}
	if v, ok := attrs["updated_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			d.UpdatedAt = t
		}
	}
}

// DocumentRequest create/update request body
type DocumentRequest struct {
	Title   string `json:"title" binding:"required"`
	Content string `json:"content" binding:"required"`
	Tags    string `json:"tags"`
}

// RevertRequest revert request body
type RevertRequest struct {
	Version uint     `json:"version" binding:"required"`
	Except  []string `json:"except"`
}
