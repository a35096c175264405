package realtime

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const channelPrefix = "changes:"

// ChannelFor is the Redis channel carrying userID's changes.
func ChannelFor(userID int64) string {
	return channelPrefix + strconv.FormatInt(userID, 10)
}

// RedisFanout spreads events to every API instance through Redis pub/sub.
type RedisFanout struct {
	rc  *redis.Client
	log *log.Logger
}

// NewRedisFanout wraps an existing client.
func NewRedisFanout(rc *redis.Client, logger *log.Logger) *RedisFanout {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &RedisFanout{rc: rc, log: logger}
}

// Publish sends ev on its user's channel.
func (f *RedisFanout) Publish(ctx context.Context, ev Event) error {
	data, err := ev.Encode()
	if err != nil {
		return err
	}
	return f.rc.Publish(ctx, ChannelFor(ev.UserID), data).Err()
}

// Run listens on every user channel and passes decoded events to deliver
// until ctx is cancelled. A closed subscription is re-established after a second.
func (f *RedisFanout) Run(ctx context.Context, deliver func(Event)) {
	for {
		sub := f.rc.PSubscribe(ctx, channelPrefix+"*")
		ch := sub.Channel()
	loop:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop
				}
				ev, err := Decode([]byte(msg.Payload))
				if err != nil {
					f.log.WithError(err).WithField("channel", msg.Channel).Error("unable to parse change event")
					continue
				}
				if ev.UserID == 0 {
					ev.UserID = userFromChannel(msg.Channel)
				}
				deliver(ev)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		f.log.Error("pubsub channel closed, reconnecting")
		time.Sleep(time.Second)
	}
}

func userFromChannel(channel string) int64 {
	id, err := strconv.ParseInt(strings.TrimPrefix(channel, channelPrefix), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
