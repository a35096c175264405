package domain

import "strings"

// Status is the board column a task belongs to.
type Status string

const (
	StatusPlan     Status = "PLAN"
	StatusDoing    Status = "DOING"
	StatusDone     Status = "DONE"
	StatusArchived Status = "ARCHIVED"
)

// legacyArchived is the spelling older clients still send.
const legacyArchived = "ARCHIEVED"

// Statuses lists the columns in board order.
var Statuses = []Status{StatusPlan, StatusDoing, StatusDone, StatusArchived}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPlan, StatusDoing, StatusDone, StatusArchived:
		return true
	}
	return false
}

// ParseStatus converts client input into a Status.
func ParseStatus(raw string) (Status, error) {
	v := strings.ToUpper(strings.TrimSpace(raw))
	if v == legacyArchived {
		return StatusArchived, nil
	}
	s := Status(v)
	if !s.Valid() {
		return "", Validationf("invalid status %q", raw)
	}
	return s, nil
}
