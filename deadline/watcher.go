package deadline

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Adibmaros/tasks-management/domain"
)

// ExpiredLister finds DOING tasks whose deadline passed at now.
type ExpiredLister interface {
	ListAllExpired(ctx context.Context, now time.Time) ([]domain.Task, error)
}

// Watcher periodically sweeps for expired tasks on the server side.
type Watcher struct {
	source   ExpiredLister
	notifier *Notifier
	interval time.Duration
	now      func() time.Time
	log      *log.Logger
}

// NewWatcher builds a Watcher; interval defaults to 15s.
func NewWatcher(source ExpiredLister, notifier *Notifier, interval time.Duration, logger *log.Logger) *Watcher {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Watcher{source: source, notifier: notifier, interval: interval, now: time.Now, log: logger}
}

// Run sweeps until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		if _, err := w.Sweep(ctx); err != nil && ctx.Err() == nil {
			w.log.WithError(err).Warn("deadline sweep failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep alerts every newly expired task and forgets ids that are no longer
// expired. It returns the number of alerts sent.
func (w *Watcher) Sweep(ctx context.Context) (int, error) {
	expired, err := w.source.ListAllExpired(ctx, w.now())
	if err != nil {
		return 0, err
	}

	current := make(map[int64]struct{}, len(expired))
	sent := 0
	for _, task := range expired {
		current[task.ID] = struct{}{}
		if w.notifier.NotifyOnce(ctx, task) {
			sent++
			w.log.WithFields(log.Fields{"task": task.ID, "user": task.UserID}).Info("task deadline passed")
		}
	}
	for _, id := range w.notifier.NotifiedIDs() {
		if _, still := current[id]; !still {
			w.notifier.ClearNotified(id)
		}
	}
	return sent, nil
}
