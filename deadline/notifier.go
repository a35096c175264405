package deadline

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/Adibmaros/tasks-management/domain"
)

// Alerter delivers an expiry alert somewhere the user will see it.
type Alerter interface {
	Alert(ctx context.Context, task domain.Task) error
}

// AlerterFunc adapts a function to Alerter.
type AlerterFunc func(ctx context.Context, task domain.Task) error

func (f AlerterFunc) Alert(ctx context.Context, task domain.Task) error { return f(ctx, task) }

// Alerters fans an alert out to several destinations and returns the first error.
type Alerters []Alerter

func (as Alerters) Alert(ctx context.Context, task domain.Task) error {
	var first error
	for _, a := range as {
		if err := a.Alert(ctx, task); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Notifier fires at most one alert per task id until the id is cleared.
type Notifier struct {
	alerter Alerter
	log     *log.Logger

	mu       sync.Mutex
	notified map[int64]struct{}
}

// NewNotifier builds a Notifier around alerter.
func NewNotifier(alerter Alerter, logger *log.Logger) *Notifier {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Notifier{alerter: alerter, log: logger, notified: make(map[int64]struct{})}
}

// NotifyOnce alerts for task unless it was already alerted. It reports whether
// an alert was dispatched. Alerter failures are logged, never returned.
func (n *Notifier) NotifyOnce(ctx context.Context, task domain.Task) bool {
	n.mu.Lock()
	if _, seen := n.notified[task.ID]; seen {
		n.mu.Unlock()
		return false
	}
	n.notified[task.ID] = struct{}{}
	n.mu.Unlock()

	if n.alerter == nil {
		return true
	}
	if err := n.alerter.Alert(ctx, task); err != nil {
		n.log.WithError(err).WithFields(log.Fields{"task": task.ID, "user": task.UserID}).Warn("deadline alert failed")
	}
	return true
}

// ClearNotified forgets id so a restarted task can alert again.
func (n *Notifier) ClearNotified(id int64) {
	n.mu.Lock()
	delete(n.notified, id)
	n.mu.Unlock()
}

// Notified reports whether id has been alerted.
func (n *Notifier) Notified(id int64) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.notified[id]
	return ok
}

// NotifiedIDs returns a snapshot of the alerted ids.
func (n *Notifier) NotifiedIDs() []int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	ids := make([]int64, 0, len(n.notified))
	for id := range n.notified {
		ids = append(ids, id)
	}
	return ids
}
