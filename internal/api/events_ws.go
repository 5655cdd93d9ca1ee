package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	cws "github.com/coder/websocket"

	"agentdesk/internal/events"
)

const (
	eventBuffer       = 64
	eventWriteTimeout = 5 * time.Second
)

// handleEvents streams bus events to a websocket client as JSON text frames.
// The optional name query parameter filters by event name. A client that
// falls behind by more than eventBuffer events is disconnected.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.deps.Events == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "event bus is not configured")
		return
	}
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		name = events.Wildcard
	}

	conn, err := cws.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	queue := make(chan events.Event, eventBuffer)
	overflow := make(chan struct{})
	var overflowed bool
	unsubscribe := s.deps.Events.Subscribe(name, func(ev events.Event) {
		if overflowed {
			return
		}
		select {
		case queue <- ev:
		default:
			overflowed = true
			close(overflow)
		}
	})
	defer unsubscribe()

	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			return
		case <-overflow:
			conn.Close(cws.StatusPolicyViolation, "event stream overflow")
			return
		case ev := <-queue:
			if err := writeEvent(ctx, conn, ev); err != nil {
				s.logger.Debug("event stream closed", "err", err)
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *cws.Conn, ev events.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	return conn.Write(ctx, cws.MessageText, data)
}
