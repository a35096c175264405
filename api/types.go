package api

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Adibmaros/tasks-management/domain"
	"github.com/Adibmaros/tasks-management/realtime"
)

// Store abstracts persistence for handlers.
type Store interface {
	CreateUser(ctx context.Context, name, email, passwordHash string) (domain.User, error)
	GetUser(ctx context.Context, id int64) (domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error

	CreateTask(ctx context.Context, in domain.NewTask) (domain.Task, error)
	UpdateTask(ctx context.Context, userID, id int64, patch domain.TaskPatch) (domain.Task, error)
	DeleteTask(ctx context.Context, userID, id int64) error
	StartTask(ctx context.Context, userID, id int64) (domain.Task, error)
	ArchiveTask(ctx context.Context, userID, id int64) (domain.Task, error)
	UnarchiveTask(ctx context.Context, userID, id int64) (domain.Task, error)
	Reorder(ctx context.Context, req domain.MoveRequest) (domain.Task, error)
	ListBoard(ctx context.Context, userID int64) ([]domain.Task, error)
	ListArchived(ctx context.Context, userID int64) ([]domain.Task, error)
	ListExpired(ctx context.Context, userID int64, now time.Time) ([]domain.Task, error)

	CreateTag(ctx context.Context, userID int64, name, color string) (domain.Tag, error)
	UpdateTag(ctx context.Context, userID, id int64, patch domain.TagPatch) (domain.Tag, error)
	DeleteTag(ctx context.Context, userID, id int64) error
	ListTags(ctx context.Context, userID int64) ([]domain.Tag, error)
	AddTaskTag(ctx context.Context, userID, taskID, tagID int64) (domain.TaskTagWithTag, error)
	RemoveTaskTag(ctx context.Context, userID, taskID, tagID int64) error
	ListTaskTags(ctx context.Context, userID, taskID int64) ([]domain.Tag, error)

	Ping(ctx context.Context) error
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (int64, error)
	UserIDFromBearer(token string) (int64, error)
	Issue(userID int64) (token string, expires time.Time, err error)
}

// Feed hands out per-user change subscriptions.
type Feed interface {
	Subscribe(userID int64) *realtime.Subscription
}

// Deduper remembers responses to requests carrying an Idempotency-Key.
type Deduper interface {
	// Claim reserves key for userID. When the key was already completed the
	// stored response is returned and claimed is false.
	Claim(ctx context.Context, userID int64, key string) (claimed bool, stored *StoredResponse, err error)
	// Complete stores the response for a claimed key.
	Complete(ctx context.Context, userID int64, key string, resp StoredResponse) error
	// Release drops a claim, used when processing fails so the caller may retry.
	Release(ctx context.Context, userID int64, key string) error
}

// Pinger reports whether a dependency answers.
type Pinger func(ctx context.Context) error

// Deps groups everything the HTTP layer needs.
type Deps struct {
	Store         Store
	Auth          Authenticator
	Feed          Feed
	Deduper       Deduper
	SessionSecret []byte
	// SecureCookies marks the session cookie Secure.
	SecureCookies bool
	// Health lists extra checks run by /healthz besides the store ping.
	Health       map[string]Pinger
	PingInterval time.Duration
	Log          *log.Logger
	Now          func() time.Time
}
