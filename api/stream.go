package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/Adibmaros/tasks-management/realtime"
)

const defaultPingInterval = 25 * time.Second

// streamChanges serves the caller's change feed as server-sent events. Change
// events use the "change" event name; deadline alerts use "alert".
func streamChanges(feed Feed, pingInterval time.Duration, logger *log.Logger) echo.HandlerFunc {
	if pingInterval <= 0 {
		pingInterval = defaultPingInterval
	}
	return func(c echo.Context) error {
		userID := currentUserID(c)
		res := c.Response()
		res.Header().Set(echo.HeaderContentType, "text/event-stream")
		res.Header().Set(echo.HeaderCacheControl, "no-cache")
		res.Header().Set(echo.HeaderConnection, "keep-alive")
		res.Header().Set("X-Accel-Buffering", "no")
		flusher, ok := res.Writer.(http.Flusher)
		if !ok {
			return echo.NewHTTPError(http.StatusInternalServerError, "stream unsupported")
		}
		res.WriteHeader(http.StatusOK)

		sub := feed.Subscribe(userID)
		defer sub.Cancel()

		// flush headers so the client sees the stream open
		if _, err := res.Write([]byte(": connected\n\n")); err != nil {
			return nil
		}
		flusher.Flush()

		fields := log.Fields{"user": userID}
		logger.WithFields(fields).Debug("realtime stream opened")
		defer logger.WithFields(fields).Debug("realtime stream closed")

		ctx := c.Request().Context()
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev, ok := <-sub.Events():
				if !ok {
					return nil
				}
				frame, err := sseFrame(ev)
				if err != nil {
					logger.WithError(err).WithFields(fields).Warn("encoding change event")
					continue
				}
				if _, err := res.Write(frame); err != nil {
					return nil
				}
				flusher.Flush()
			case <-ticker.C:
				if _, err := res.Write([]byte(": ping\n\n")); err != nil {
					return nil
				}
				flusher.Flush()
			}
		}
	}
}

func sseFrame(ev realtime.Event) ([]byte, error) {
	data, err := ev.Encode()
	if err != nil {
		return nil, err
	}
	name := "change"
	if ev.Kind == realtime.KindAlert {
		name = "alert"
	}
	return fmt.Appendf(nil, "event: %s\nid: %s\ndata: %s\n\n", name, ev.ID, data), nil
}
