package domain

import "time"

// Task represents a single board item.
type Task struct {
	ID              int64      `json:"id" db:"id"`
	UserID          int64      `json:"userId" db:"user_id"`
	Name            string     `json:"name" db:"name"`
	Description     *string    `json:"description" db:"description"`
	Status          Status     `json:"status" db:"status"`
	Position        int        `json:"position" db:"position"`
	StartedAt       *time.Time `json:"startedAt" db:"started_at"`
	DurationMinutes *int       `json:"durationMinutes" db:"duration_minutes"`
	CreatedAt       time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time  `json:"updatedAt" db:"updated_at"`
}

// Deadline returns StartedAt + DurationMinutes. ok is false for tasks without a timer.
func (t Task) Deadline() (deadline time.Time, ok bool) {
	if t.StartedAt == nil || t.DurationMinutes == nil || *t.DurationMinutes <= 0 {
		return time.Time{}, false
	}
	return t.StartedAt.Add(time.Duration(*t.DurationMinutes) * time.Minute), true
}

// Expired reports whether the task is in DOING and its deadline is at or before now.
func (t Task) Expired(now time.Time) bool {
	if t.Status != StatusDoing {
		return false
	}
	deadline, ok := t.Deadline()
	return ok && !now.Before(deadline)
}

// NewTask carries the fields accepted when creating a task.
type NewTask struct {
	UserID          int64
	Name            string
	Description     *string
	Status          Status
	DurationMinutes *int
}

// Validate checks required fields and fills the default status.
func (n *NewTask) Validate() error {
	if n.UserID <= 0 {
		return Validationf("userId is required")
	}
	if n.Name == "" {
		return Validationf("name is required")
	}
	if n.Status == "" {
		n.Status = StatusPlan
	}
	if !n.Status.Valid() {
		return Validationf("invalid status %q", n.Status)
	}
	if n.DurationMinutes != nil && *n.DurationMinutes <= 0 {
		return Validationf("durationMinutes must be positive")
	}
	return nil
}

// TaskPatch carries partial task updates. Nil fields are left untouched;
// an empty Description clears it.
type TaskPatch struct {
	Name            *string
	Description     *string
	DurationMinutes *int
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.DurationMinutes == nil
}

// Validate rejects blank names and non-positive durations.
func (p TaskPatch) Validate() error {
	if p.Name != nil && *p.Name == "" {
		return Validationf("name must not be empty")
	}
	if p.DurationMinutes != nil && *p.DurationMinutes <= 0 {
		return Validationf("durationMinutes must be positive")
	}
	return nil
}
