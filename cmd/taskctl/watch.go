package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"github.com/Adibmaros/tasks-management/client"
	"github.com/Adibmaros/tasks-management/deadline"
	"github.com/Adibmaros/tasks-management/domain"
	"github.com/Adibmaros/tasks-management/realtime"
	"github.com/Adibmaros/tasks-management/syncer"
)

const (
	clearScreen  = "\033[H\033[2J"
	tickInterval = time.Second
)

// boardSource is the part of client.Client the watcher reads from.
type boardSource interface {
	Board(ctx context.Context) ([]domain.Task, error)
}

// boardWriter is the part of client.Client the watcher writes through.
type boardWriter interface {
	CreateTask(ctx context.Context, name string, status domain.Status, durationMinutes *int) (domain.Task, error)
	Move(ctx context.Context, taskID int64, status domain.Status, position int) error
}

const watchUsage = "commands: mv <task-id> <status> <position> | add <name>"

// boardWatcher keeps a live board on screen: remote changes trigger a
// debounced refetch, a ticker redraws countdowns and each expired task
// alerts once. Lines typed on input are applied as writes.
type boardWatcher struct {
	source   boardSource
	writer   boardWriter
	events   syncer.EventSource
	input    io.Reader
	out      io.Writer
	alerts   io.Writer
	locale   deadline.Locale
	notifier *deadline.Notifier
	now      func() time.Time
	log      *log.Logger

	coord   *syncer.Coordinator
	refetch chan struct{}

	mu    sync.Mutex
	tasks []domain.Task
}

// newBoardWatcher builds a watcher without a server. The client it is bound
// to must be created with client.WithLocalChange(w.coord.MarkLocalChange).
func newBoardWatcher(out, alerts io.Writer, locale deadline.Locale, logger *log.Logger) *boardWatcher {
	w := &boardWatcher{
		out:     out,
		alerts:  alerts,
		locale:  locale,
		now:     time.Now,
		log:     logger,
		refetch: make(chan struct{}, 1),
	}
	w.notifier = deadline.NewNotifier(deadline.AlerterFunc(w.alert), w.log)
	w.coord = syncer.New(w.requestRefetch, syncer.WithLogger(w.log))
	return w
}

func (w *boardWatcher) bind(c *client.Client, input io.Reader) {
	w.source = c
	w.writer = c
	w.events = c.Stream()
	w.input = input
}

func (w *boardWatcher) requestRefetch() {
	select {
	case w.refetch <- struct{}{}:
	default:
	}
}

func (w *boardWatcher) alert(_ context.Context, task domain.Task) error {
	title, body := deadline.AlertText(task, w.locale)
	_, err := fmt.Fprintf(w.alerts, "\a%s %s\n", title, body)
	return err
}

// onAlert hands a server deadline alert to the notifier so it shares the
// once-per-expiry bookkeeping with locally detected expiries.
func (w *boardWatcher) onAlert(ctx context.Context, ev realtime.Event) {
	var task domain.Task
	if err := sonic.Unmarshal(ev.New, &task); err != nil {
		w.log.WithError(err).WithField("event", ev.ID).Warn("dropping malformed alert")
		return
	}
	w.notifier.NotifyOnce(ctx, task)
}

// alertRouter diverts alert events away from the coordinator.
type alertRouter struct {
	syncer.EventSource
	onAlert func(realtime.Event)
}

func (r alertRouter) Subscribe(ctx context.Context, handle func(realtime.Event)) (func(), error) {
	return r.EventSource.Subscribe(ctx, func(ev realtime.Event) {
		if ev.Kind == realtime.KindAlert {
			r.onAlert(ev)
			return
		}
		handle(ev)
	})
}

// Run draws until ctx ends.
func (w *boardWatcher) Run(ctx context.Context) error {
	defer w.coord.Close()
	if err := w.refresh(ctx); err != nil {
		return err
	}
	w.draw(ctx)

	events := alertRouter{EventSource: w.events, onAlert: func(ev realtime.Event) { w.onAlert(ctx, ev) }}
	go w.coord.Run(ctx, events)
	if w.input != nil && w.writer != nil {
		go w.readCommands(ctx)
	}

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.refetch:
			if err := w.refresh(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				w.log.WithError(err).Warn("board refetch failed")
				continue
			}
			w.draw(ctx)
		case <-ticker.C:
			w.draw(ctx)
		}
	}
}

// readCommands applies each input line as a write and refetches right away.
// The coordinator ignores the echo of the write.
func (w *boardWatcher) readCommands(ctx context.Context) {
	scanner := bufio.NewScanner(w.input)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := w.exec(ctx, line); err != nil {
			fmt.Fprintf(w.alerts, "%v\n%s\n", err, watchUsage)
			continue
		}
		w.requestRefetch()
	}
}

func (w *boardWatcher) exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	switch fields[0] {
	case "mv", "move":
		if len(fields) != 4 {
			return errors.New("mv takes a task id, a status and a position")
		}
		taskID, status, position, err := parseMoveArgs(fields[1:])
		if err != nil {
			return err
		}
		return w.writer.Move(ctx, taskID, status, position)
	case "add":
		if len(fields) < 2 {
			return errors.New("add needs a task name")
		}
		_, err := w.writer.CreateTask(ctx, strings.Join(fields[1:], " "), domain.StatusPlan, nil)
		return err
	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
}

func (w *boardWatcher) refresh(ctx context.Context) error {
	tasks, err := w.source.Board(ctx)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.tasks = tasks
	w.mu.Unlock()
	return nil
}

func (w *boardWatcher) draw(ctx context.Context) {
	now := w.now()
	w.mu.Lock()
	tasks := w.tasks
	w.mu.Unlock()

	w.checkDeadlines(ctx, tasks, now)
	fmt.Fprint(w.out, clearScreen+renderBoard(tasks, now, w.locale)+"\n")
}

// checkDeadlines alerts newly expired tasks and forgets tasks that are no
// longer expired so a restarted timer can alert again.
func (w *boardWatcher) checkDeadlines(ctx context.Context, tasks []domain.Task, now time.Time) int {
	expired := make(map[int64]struct{})
	sent := 0
	for _, t := range tasks {
		if !t.Expired(now) {
			continue
		}
		expired[t.ID] = struct{}{}
		if w.notifier.NotifyOnce(ctx, t) {
			sent++
		}
	}
	for _, id := range w.notifier.NotifiedIDs() {
		if _, ok := expired[id]; !ok {
			w.notifier.ClearNotified(id)
		}
	}
	return sent
}
