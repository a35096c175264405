package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/Adibmaros/tasks-management/domain"
	"github.com/Adibmaros/tasks-management/realtime"
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// ChangeSink receives the changes of every committed transaction.
type ChangeSink interface {
	Publish(ctx context.Context, events []realtime.Event)
}

type discardSink struct{}

func (discardSink) Publish(context.Context, []realtime.Event) {}

// Storage is the position ledger and entity store backed by SQL.
type Storage struct {
	db     *sqlx.DB
	driver string
	locks  *userLocks
	now    func() time.Time

	sinkMu sync.RWMutex
	sink   ChangeSink
}

// New opens the database for driver and applies pending migrations.
func New(driver, dsn string) (*Storage, error) {
	switch driver {
	case DriverSQLite:
		dsn = withSQLitePragmas(dsn)
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s db: %w", driver, err)
	}
	if driver == DriverSQLite {
		// One writer; also keeps ":memory:" databases alive across calls.
		db.SetMaxOpenConns(1)
		db.SetConnMaxLifetime(0)
	}

	s := &Storage{
		db:     db,
		driver: driver,
		locks:  newUserLocks(),
		now:    func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
		sink:   discardSink{},
	}
	if err := s.runMigrations(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func withSQLitePragmas(dsn string) string {
	if strings.Contains(dsn, "_pragma=foreign_keys") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// SetChangeSink replaces the destination of committed changes.
func (s *Storage) SetChangeSink(sink ChangeSink) {
	if sink == nil {
		sink = discardSink{}
	}
	s.sinkMu.Lock()
	s.sink = sink
	s.sinkMu.Unlock()
}

func (s *Storage) publish(ctx context.Context, events []realtime.Event) {
	if len(events) == 0 {
		return
	}
	s.sinkMu.RLock()
	sink := s.sink
	s.sinkMu.RUnlock()
	sink.Publish(ctx, events)
}

// Driver returns the database/sql driver name in use.
func (s *Storage) Driver() string { return s.driver }

// Ping checks the database connection.
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *Storage) Close() error {
	return s.db.Close()
}

// txn is a transaction bound to one user that collects change events until commit.
type txn struct {
	*sqlx.Tx
	userID int64
	now    time.Time
	events []realtime.Event
}

func (t *txn) record(table realtime.Table, kind realtime.Kind, newRow, oldRow any) error {
	ev, err := realtime.NewEvent(table, kind, t.userID, newRow, oldRow)
	if err != nil {
		return fmt.Errorf("encoding change event: %w", err)
	}
	t.events = append(t.events, ev)
	return nil
}

// withUserTx runs fn in a transaction serialised against every other write of
// userID. Events recorded by fn are published only after a successful commit.
func (s *Storage) withUserTx(ctx context.Context, userID int64, op string, fn func(t *txn) error) error {
	unlock := s.locks.lock(userID)
	defer unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.Persistence(op, fmt.Errorf("beginning transaction: %w", err))
	}
	defer tx.Rollback()

	if s.driver == DriverPostgres {
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", userID); err != nil {
			return domain.Persistence(op, fmt.Errorf("locking user %d: %w", userID, err))
		}
	}

	t := &txn{Tx: tx, userID: userID, now: s.now()}
	if err := fn(t); err != nil {
		return domain.Persistence(op, err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Persistence(op, fmt.Errorf("committing: %w", err))
	}
	s.publish(ctx, t.events)
	return nil
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// userLocks hands out one mutex per user, dropping it when unused.
type userLocks struct {
	mu sync.Mutex
	m  map[int64]*userLock
}

func newUserLocks() *userLocks {
	return &userLocks{m: make(map[int64]*userLock)}
}

func (l *userLocks) lock(userID int64) func() {
	l.mu.Lock()
	ul, ok := l.m[userID]
	if !ok {
		ul = &userLock{}
		l.m[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.mu.Lock()
	return func() {
		ul.mu.Unlock()
		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.m, userID)
		}
		l.mu.Unlock()
	}
}
