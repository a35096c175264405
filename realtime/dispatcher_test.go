package realtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
)

func idleDispatcher(buffer int, handoff time.Duration) *Dispatcher {
	logger, _ := test.NewNullLogger()
	return &Dispatcher{
		cfg:     DispatcherConfig{HandoffTimeout: handoff, DeliverTimeout: time.Second},
		jobs:    make(chan []Event, buffer),
		deliver: func(context.Context, Event) error { return nil },
		log:     logger,
	}
}

func TestTryEnqueueWaitsForCapacity(t *testing.T) {
	d := idleDispatcher(1, 50*time.Millisecond)
	d.jobs <- []Event{{}}

	done := make(chan bool, 1)
	go func() {
		done <- d.tryEnqueue([]Event{{}})
	}()

	select {
	case <-done:
		t.Fatal("tryEnqueue returned before capacity was freed")
	case <-time.After(20 * time.Millisecond):
	}

	<-d.jobs

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("expected successful enqueue after capacity freed")
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for enqueue completion")
	}
}

func TestTryEnqueueTimesOut(t *testing.T) {
	d := idleDispatcher(1, 30*time.Millisecond)
	d.jobs <- []Event{{}}

	if d.tryEnqueue([]Event{{}}) {
		t.Fatal("expected enqueue to fail when timeout elapsed")
	}

	select {
	case <-d.jobs:
	default:
		t.Fatal("expected channel to remain full after timeout")
	}
}

func TestTryEnqueueReturnsFalseWhenClosed(t *testing.T) {
	d := idleDispatcher(0, 0)
	close(d.jobs)

	if d.tryEnqueue([]Event{{}}) {
		t.Fatal("expected enqueue to fail when channel is closed")
	}
}

func TestSubmitDeliversInlineWhenSaturated(t *testing.T) {
	d := idleDispatcher(0, 0)
	var delivered []string
	d.deliver = func(_ context.Context, ev Event) error {
		delivered = append(delivered, ev.ID)
		return nil
	}

	d.Submit([]Event{{ID: "a"}, {ID: "b"}})

	if len(delivered) != 2 || delivered[0] != "a" || delivered[1] != "b" {
		t.Fatalf("expected inline in-order delivery, got %v", delivered)
	}
}

func TestDispatcherWorkersDeliverEverything(t *testing.T) {
	logger, _ := test.NewNullLogger()
	var mu sync.Mutex
	got := map[string]bool{}
	d := NewDispatcher(DispatcherConfig{Workers: 3, Buffer: 8, HandoffTimeout: 10 * time.Millisecond},
		func(_ context.Context, ev Event) error {
			mu.Lock()
			got[ev.ID] = true
			mu.Unlock()
			return nil
		}, logger)

	for _, id := range []string{"1", "2", "3", "4", "5"} {
		d.Submit([]Event{{ID: id}})
	}
	d.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 5 {
		t.Fatalf("expected 5 deliveries, got %d", len(got))
	}
}
