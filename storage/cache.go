package storage

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Adibmaros/tasks-management/domain"
	"github.com/Adibmaros/tasks-management/realtime"
)

type boardSource interface {
	ListBoard(ctx context.Context, userID int64) ([]domain.Task, error)
}

// Cache wraps a Storage instance with Redis-backed caching of the board read.
type Cache struct {
	*Storage
	base  boardSource
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching Storage wrapper using the provided Redis client and TTL.
func NewCache(base boardSource, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}

	c := &Cache{
		base:  base,
		redis: client,
		ttl:   ttl,
	}
	if s, ok := base.(*Storage); ok {
		c.Storage = s
	}
	return c
}

// ListBoard serves the board from Redis when present.
func (c *Cache) ListBoard(ctx context.Context, userID int64) ([]domain.Task, error) {
	if tasks, ok := c.loadBoard(ctx, userID); ok {
		return tasks, nil
	}

	gen, genOK := c.generation(ctx, userID)
	tasks, err := c.base.ListBoard(ctx, userID)
	if err != nil {
		return nil, err
	}

	if genOK {
		c.storeBoard(ctx, userID, gen, tasks)
	}
	return tasks, nil
}

// Invalidate drops the cached board of userID and bumps its generation, so a
// read that started before the write cannot store its result afterwards.
func (c *Cache) Invalidate(ctx context.Context, userID int64) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, boardGenKey(userID))
		pipe.Del(ctx, boardCacheKey(userID))
		return nil
	})
}

// generation returns the current board generation of userID. An absent key
// is the empty generation.
func (c *Cache) generation(ctx context.Context, userID int64) (string, bool) {
	if c.redis == nil || c.ttl == 0 {
		return "", false
	}
	gen, err := c.redis.Get(ctx, boardGenKey(userID)).Result()
	switch {
	case err == redis.Nil:
		return "", true
	case err != nil:
		return "", false
	}
	return gen, true
}

// EvictingSink evicts the boards touched by a batch before passing it on,
// so a refetch triggered by the batch never reads a stale board.
func (c *Cache) EvictingSink(next ChangeSink) ChangeSink {
	if next == nil {
		next = discardSink{}
	}
	return evictingSink{cache: c, next: next}
}

type evictingSink struct {
	cache *Cache
	next  ChangeSink
}

func (s evictingSink) Publish(ctx context.Context, events []realtime.Event) {
	seen := make(map[int64]bool)
	for _, ev := range events {
		if ev.Table != realtime.TableTasks || seen[ev.UserID] {
			continue
		}
		seen[ev.UserID] = true
		s.cache.Invalidate(ctx, ev.UserID)
	}
	s.next.Publish(ctx, events)
}

func (c *Cache) loadBoard(ctx context.Context, userID int64) ([]domain.Task, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, boardCacheKey(userID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, boardCacheKey(userID)).Err()
		}
		return nil, false
	}
	var tasks []domain.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		_ = c.redis.Del(ctx, boardCacheKey(userID)).Err()
		return nil, false
	}
	return tasks, true
}

// storeIfCurrent sets KEYS[2] only while KEYS[1] still holds ARGV[1].
var storeIfCurrent = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur == false then cur = '' end
if cur ~= ARGV[1] then return 0 end
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
return 1
`)

func (c *Cache) storeBoard(ctx context.Context, userID int64, gen string, tasks []domain.Task) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(tasks)
	if err != nil {
		return
	}
	keys := []string{boardGenKey(userID), boardCacheKey(userID)}
	_ = storeIfCurrent.Run(ctx, c.redis, keys, gen, data, c.ttl.Milliseconds()).Err()
}

func boardCacheKey(userID int64) string {
	return "board:" + strconv.FormatInt(userID, 10)
}

func boardGenKey(userID int64) string {
	return "board:gen:" + strconv.FormatInt(userID, 10)
}
