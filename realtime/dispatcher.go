package realtime

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// DispatcherConfig sizes the publish worker pool.
type DispatcherConfig struct {
	Workers        int
	Buffer         int
	HandoffTimeout time.Duration
	DeliverTimeout time.Duration
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.Buffer < 0 {
		c.Buffer = 0
	}
	if c.DeliverTimeout <= 0 {
		c.DeliverTimeout = 5 * time.Second
	}
	return c
}

// Dispatcher delivers event batches on a bounded pool of workers. When the
// queue stays full past the hand-off timeout the batch is delivered inline.
type Dispatcher struct {
	cfg     DispatcherConfig
	jobs    chan []Event
	deliver func(ctx context.Context, ev Event) error
	log     *log.Logger
	wg      sync.WaitGroup
	once    sync.Once
}

// NewDispatcher starts cfg.Workers goroutines calling deliver.
func NewDispatcher(cfg DispatcherConfig, deliver func(ctx context.Context, ev Event) error, logger *log.Logger) *Dispatcher {
	if deliver == nil {
		panic("realtime.NewDispatcher: deliver is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	cfg = cfg.withDefaults()
	d := &Dispatcher{
		cfg:     cfg,
		jobs:    make(chan []Event, cfg.Buffer),
		deliver: deliver,
		log:     logger,
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	logger.Infof("change dispatcher started, workers: %d, buffer: %d, handoff: %v", cfg.Workers, cfg.Buffer, cfg.HandoffTimeout)
	return d
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for batch := range d.jobs {
		d.run(batch, id)
	}
}

func (d *Dispatcher) run(batch []Event, worker int) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.DeliverTimeout)
	defer cancel()
	for _, ev := range batch {
		if err := d.deliver(ctx, ev); err != nil {
			d.log.WithError(err).WithFields(log.Fields{
				"user":   ev.UserID,
				"event":  ev.ID,
				"worker": worker,
			}).Error("change delivery failed")
		}
	}
}

// Submit queues a batch. Events of one batch are delivered in order.
func (d *Dispatcher) Submit(batch []Event) {
	if len(batch) == 0 {
		return
	}
	if d.tryEnqueue(batch) {
		return
	}
	d.log.WithField("events", len(batch)).Warn("change queue saturated, delivering inline")
	d.run(batch, -1)
}

func (d *Dispatcher) tryEnqueue(batch []Event) bool {
	if ok, closed := trySendNonBlocking(d.jobs, batch); closed {
		return false
	} else if ok {
		return true
	}

	if d.cfg.HandoffTimeout <= 0 {
		return false
	}

	timer := time.NewTimer(d.cfg.HandoffTimeout)
	defer timer.Stop()

	ok, closed := sendWithTimer(d.jobs, batch, timer.C)
	if closed {
		return false
	}
	return ok
}

// Close stops accepting batches and waits for queued ones to finish.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		close(d.jobs)
		d.wg.Wait()
	})
}

func trySendNonBlocking(ch chan []Event, batch []Event) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- batch:
		return true, false
	default:
		return false, false
	}
}

func sendWithTimer(ch chan []Event, batch []Event, timer <-chan time.Time) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- batch:
		return true, false
	case <-timer:
		return false, false
	}
}
