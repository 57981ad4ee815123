package models

import (
	"time"

	"gorm.io/gorm"
)

// Status represents the lifecycle state of a workspace or page.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusDeleted  Status = "deleted"
)

// Title and content limits enforced on page writes.
const (
	TitleMinLen   = 1
	TitleMaxLen   = 100
	ContentMaxLen = 500
)

// Workspace is a top-level container for pages. Deleting a workspace removes
// every page that references it; the pages go first, and if any page deletion
// fails the workspace record is left in place.
type Workspace struct {
	ID          WorkspaceID `gorm:"type:uuid;primary_key" json:"id"`
	Title       string      `gorm:"not null" json:"title"`
	Description string      `json:"description,omitempty"`
	Status      Status      `gorm:"not null;default:active" json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// BeforeCreate hook to generate ID and default status if not set
func (w *Workspace) BeforeCreate(tx *gorm.DB) error {
	if w.ID.IsZero() {
		w.ID = NewWorkspaceID()
	}
	if w.Status == "" {
		w.Status = StatusActive
	}
	return nil
}

// Page is the unit of editing. WorkspaceID is immutable after creation.
// Version is owned by the server: it starts at 0 and is incremented by
// exactly 1 on every committed update, only ever through the version-checked
// update path. Clients echo the version they last saw; a mismatch means a
// concurrent edit happened in between.
type Page struct {
	ID          PageID      `gorm:"type:uuid;primary_key" json:"id"`
	WorkspaceID WorkspaceID `gorm:"type:uuid;not null;index" json:"workspace_id"`
	Title       string      `gorm:"not null" json:"title"`
	Content     string      `json:"content"`
	Status      Status      `gorm:"not null;default:active" json:"status"`
	Version     int64       `gorm:"column:version;not null;default:0" json:"v"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// BeforeCreate hook to generate ID and default status if not set
func (p *Page) BeforeCreate(tx *gorm.DB) error {
	if p.ID.IsZero() {
		p.ID = NewPageID()
	}
	if p.Status == "" {
		p.Status = StatusActive
	}
	return nil
}
