package client

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Adibmaros/tasks-management/realtime"
)

const maxFrameSize = 1 << 20

// Stream follows the server's change feed, reconnecting with backoff when the
// connection drops.
type Stream struct {
	client     *Client
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// Stream returns a change feed bound to c's credentials.
func (c *Client) Stream() *Stream {
	return &Stream{client: c, MinBackoff: time.Second, MaxBackoff: 5 * time.Second}
}

// Subscribe opens the feed and calls handle for each event until cancel is
// called or ctx ends. The first connection must succeed; later drops are
// retried in the background.
func (s *Stream) Subscribe(ctx context.Context, handle func(realtime.Event)) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	resp, err := s.open(ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.loop(ctx, resp, handle)
	}()
	return func() {
		cancel()
		<-done
	}, nil
}

func (s *Stream) loop(ctx context.Context, resp *http.Response, handle func(realtime.Event)) {
	logger := s.client.log
	backoff := s.MinBackoff
	for {
		if resp != nil {
			backoff = s.MinBackoff
			readEvents(resp.Body, handle, logger)
			resp.Body.Close()
		}
		if ctx.Err() != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, s.MaxBackoff)

		var err error
		resp, err = s.open(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.WithError(err).Debug("realtime reconnect failed")
			resp = nil
		}
	}
}

func (s *Stream) open(ctx context.Context) (*http.Response, error) {
	c := s.client
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/realtime", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	if c.Bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.Bearer)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeAPIError(resp)
	}
	return resp, nil
}

// readEvents parses server-sent event frames until r ends.
func readEvents(r io.Reader, handle func(realtime.Event), logger *log.Logger) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)

	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() == 0 {
				continue
			}
			ev, err := realtime.Decode([]byte(data.String()))
			data.Reset()
			if err != nil {
				logger.WithError(err).Warn("dropping malformed realtime frame")
				continue
			}
			handle(ev)
		case strings.HasPrefix(line, ":"):
			// comment or keep-alive
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
}
