package realtime

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// Publisher routes committed changes to subscribers. With a RedisFanout the
// events travel through Redis so every instance sees them; otherwise they go
// straight to the local Hub.
type Publisher struct {
	hub        *Hub
	fanout     *RedisFanout
	dispatcher *Dispatcher
	log        *log.Logger
}

// NewPublisher builds a Publisher. fanout may be nil.
func NewPublisher(hub *Hub, fanout *RedisFanout, cfg DispatcherConfig, logger *log.Logger) *Publisher {
	if logger == nil {
		logger = log.StandardLogger()
	}
	p := &Publisher{hub: hub, fanout: fanout, log: logger}
	p.dispatcher = NewDispatcher(cfg, p.deliver, logger)
	return p
}

// Publish hands events to the dispatcher. It never blocks on Redis.
func (p *Publisher) Publish(_ context.Context, events []Event) {
	p.dispatcher.Submit(events)
}

// Alert sends a deadline alert for task to its owner.
func (p *Publisher) Alert(_ context.Context, userID int64, task any) error {
	ev, err := NewEvent(TableTasks, KindAlert, userID, task, nil)
	if err != nil {
		return err
	}
	p.dispatcher.Submit([]Event{ev})
	return nil
}

func (p *Publisher) deliver(ctx context.Context, ev Event) error {
	if p.fanout != nil {
		err := p.fanout.Publish(ctx, ev)
		if err == nil {
			return nil
		}
		p.log.WithError(err).WithField("user", ev.UserID).Warn("redis publish failed, delivering locally")
	}
	p.hub.Broadcast(ev)
	return nil
}

// Run consumes the Redis fan-out into the local hub until ctx ends.
// Without Redis it just waits for ctx.
func (p *Publisher) Run(ctx context.Context) {
	if p.fanout == nil {
		<-ctx.Done()
		return
	}
	p.fanout.Run(ctx, p.hub.Broadcast)
}

// Close drains pending deliveries.
func (p *Publisher) Close() {
	p.dispatcher.Close()
}
