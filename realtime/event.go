package realtime

import (
	"encoding/json"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
)

// Table names the row family an event describes.
type Table string

const (
	TableTasks    Table = "tasks"
	TableTaskTags Table = "task_tags"
)

// Kind is the change type.
type Kind string

const (
	KindInsert Kind = "INSERT"
	KindUpdate Kind = "UPDATE"
	KindDelete Kind = "DELETE"
	// KindAlert is raised by the deadline watcher, not by a row change.
	KindAlert Kind = "ALERT"
)

// Event is a single row change scoped to one user.
type Event struct {
	ID     string          `json:"id"`
	Table  Table           `json:"table"`
	Kind   Kind            `json:"eventType"`
	UserID int64           `json:"userId"`
	New    json.RawMessage `json:"new,omitempty"`
	Old    json.RawMessage `json:"old,omitempty"`
	At     time.Time       `json:"at"`
}

// NewEvent builds an Event, encoding newRow and oldRow when they are non-nil.
func NewEvent(table Table, kind Kind, userID int64, newRow, oldRow any) (Event, error) {
	ev := Event{
		ID:     uuid.NewString(),
		Table:  table,
		Kind:   kind,
		UserID: userID,
		At:     time.Now().UTC(),
	}
	if newRow != nil {
		data, err := sonic.Marshal(newRow)
		if err != nil {
			return Event{}, err
		}
		ev.New = data
	}
	if oldRow != nil {
		data, err := sonic.Marshal(oldRow)
		if err != nil {
			return Event{}, err
		}
		ev.Old = data
	}
	return ev, nil
}

// Encode serialises the event for the wire.
func (e Event) Encode() ([]byte, error) {
	return sonic.Marshal(e)
}

// Decode parses a wire payload produced by Encode.
func Decode(data []byte) (Event, error) {
	var ev Event
	err := sonic.Unmarshal(data, &ev)
	return ev, err
}
