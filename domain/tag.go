package domain

import "time"

// DefaultTagColor is applied when a tag is created without a color.
const DefaultTagColor = "#3B82F6"

// Tag is a user-owned label.
type Tag struct {
	ID        int64     `json:"id" db:"id"`
	UserID    int64     `json:"userId" db:"user_id"`
	Name      string    `json:"name" db:"name"`
	Color     string    `json:"color" db:"color"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// TaskTag links one task with one tag.
type TaskTag struct {
	TaskID int64 `json:"taskId" db:"task_id"`
	TagID  int64 `json:"tagId" db:"tag_id"`
}

// TaskTagWithTag is a link together with the linked tag.
type TaskTagWithTag struct {
	TaskTag
	Tag Tag `json:"tag"`
}

// TagPatch carries partial tag updates.
type TagPatch struct {
	Name  *string
	Color *string
}

// Validate rejects blank names and colors.
func (p TagPatch) Validate() error {
	if p.Name != nil && *p.Name == "" {
		return Validationf("name must not be empty")
	}
	if p.Color != nil && *p.Color == "" {
		return Validationf("color must not be empty")
	}
	return nil
}

// User owns tasks and tags.
type User struct {
	ID           int64     `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}
