package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultNoteTitle replaces a blank title on create and update.
const DefaultNoteTitle = "Untitled Note"

// Note is a rich-text document owned by a single user. Content is HTML
// produced by the browser editor. ShareID is a capability token: anyone
// holding it may read the note while IsPublic is set.
type Note struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Title     string    `gorm:"not null;size:500" json:"title"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	ShareID   *string   `gorm:"size:36;uniqueIndex" json:"share_id,omitempty"`
	IsPublic  bool      `gorm:"default:false" json:"is_public"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
