package syncer

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Adibmaros/tasks-management/realtime"
)

const (
	DefaultSuppressWindow = 2 * time.Second
	DefaultDebounce       = 500 * time.Millisecond
)

// EventSource delivers remote change events until the returned cancel func is called.
type EventSource interface {
	Subscribe(ctx context.Context, handle func(realtime.Event)) (cancel func(), err error)
}

// Option tweaks a Coordinator.
type Option func(*Coordinator)

// WithClock swaps the timer source.
func WithClock(clock Clock) Option {
	return func(c *Coordinator) { c.clock = clock }
}

// WithWindows overrides the suppression window and debounce delay.
func WithWindows(suppress, debounce time.Duration) Option {
	return func(c *Coordinator) {
		c.suppressFor = suppress
		c.debounce = debounce
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Coordinator) { c.log = logger }
}

// Coordinator decides when a client must refetch its board.
type Coordinator struct {
	refetch     func()
	clock       Clock
	suppressFor time.Duration
	debounce    time.Duration
	log         *log.Logger

	reset   *Scheduler
	pending *Scheduler

	mu         sync.Mutex
	suppressed bool
	localGen   uint64
	closed     bool
	cancelSub  func()
}

// New builds a Coordinator calling refetch after remote changes settle.
func New(refetch func(), opts ...Option) *Coordinator {
	c := &Coordinator{
		refetch:     refetch,
		clock:       RealClock,
		suppressFor: DefaultSuppressWindow,
		debounce:    DefaultDebounce,
		log:         log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.reset = NewScheduler(c.clock)
	c.pending = NewScheduler(c.clock)
	return c
}

// MarkLocalChange opens the suppression window. Repeated calls restart it,
// so it closes suppressFor after the last local write.
func (c *Coordinator) MarkLocalChange() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.localGen++
	gen := c.localGen
	c.suppressed = true
	c.mu.Unlock()

	c.reset.Schedule(c.suppressFor, func() { c.endSuppression(gen) })
}

// endSuppression closes the window opened by the local write numbered gen.
// A later write owns the window, so a stale reset leaves it open.
func (c *Coordinator) endSuppression(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.localGen == gen {
		c.suppressed = false
	}
}

// Suppressed reports whether remote events are currently ignored.
func (c *Coordinator) Suppressed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suppressed
}

// OnRemoteEvent schedules a debounced refetch unless the event is an echo of
// a local write. Deadline alerts carry no board change and never refetch.
// It reports whether a refetch was (re)scheduled.
func (c *Coordinator) OnRemoteEvent(ev realtime.Event) bool {
	if ev.Kind == realtime.KindAlert {
		return false
	}
	c.mu.Lock()
	if c.closed || c.suppressed {
		c.mu.Unlock()
		c.log.WithFields(log.Fields{"event": ev.ID, "table": ev.Table}).Debug("remote change suppressed")
		return false
	}
	c.mu.Unlock()

	return c.pending.Schedule(c.debounce, c.refetch)
}

// Run subscribes to src and blocks until ctx ends, then closes the
// coordinator. A failed subscription is logged and leaves the caller to
// refetch manually.
func (c *Coordinator) Run(ctx context.Context, src EventSource) error {
	cancel, err := src.Subscribe(ctx, func(ev realtime.Event) { c.OnRemoteEvent(ev) })
	if err != nil {
		c.log.WithError(err).Warn("realtime subscription unavailable, continuing without live updates")
		return nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		return nil
	}
	c.cancelSub = cancel
	c.mu.Unlock()

	<-ctx.Done()
	c.Close()
	return nil
}

// Close cancels pending timers and the subscription. No refetch starts afterwards.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cancel := c.cancelSub
	c.cancelSub = nil
	c.mu.Unlock()

	c.pending.Stop()
	c.reset.Stop()
	if cancel != nil {
		cancel()
	}
}
