package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/graaaaa/nickutc/internal/store"
)

const (
	heartbeatInterval = 20 * time.Second

	// Reconnect replay is best effort: at most replayPages pages of
	// replayPageSize presence events are resent.
	replayPageSize = 100
	replayPages    = 5
)

// sseStream writes Server-Sent Events and flushes after each one.
type sseStream struct {
	w  io.Writer
	rc *http.ResponseController
}

func (s sseStream) send(m *Message) error {
	if m.ID != "" {
		if _, err := fmt.Fprintf(s.w, "id: %s\n", m.ID); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", m.Event, m.Data); err != nil {
		return err
	}
	return s.rc.Flush()
}

// comment writes an SSE comment line. Clients ignore it; proxies see traffic.
func (s sseStream) comment(text string) error {
	if _, err := fmt.Fprintf(s.w, ":%s\n\n", text); err != nil {
		return err
	}
	return s.rc.Flush()
}

// handleStream serves GET /api/v1/stream. user_id narrows the stream to a
// single user. A Last-Event-ID header (or last_event_id query parameter for
// manual reconnects) replays presence events stored after that cursor.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	userID, err := queryUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	stream := sseStream{w: w, rc: http.NewResponseController(w)}

	// Subscribe before the replay so nothing published meanwhile is missed.
	// Overlap is possible; clients drop ids they have already seen.
	sub := s.hub.Subscribe()
	defer s.hub.Unsubscribe(sub)

	ctx := r.Context()
	if last := lastEventID(r); last != "" {
		if err := s.replay(ctx, stream, last, userID); err != nil {
			s.logger.Debug("sse replay stopped", "error", err)
		}
	}

	if err := stream.comment(" connected"); err != nil {
		s.logger.Debug("sse stream not writable", "error", err)
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		var err error
		select {
		case m, ok := <-sub.Messages():
			if !ok {
				return
			}
			if userID == 0 || m.UserID == userID {
				err = stream.send(m)
			}
		case <-heartbeat.C:
			err = stream.comment("")
		case <-ctx.Done():
			return
		case <-sub.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

func lastEventID(r *http.Request) string {
	if id := r.Header.Get("Last-Event-ID"); id != "" {
		return id
	}
	return r.URL.Query().Get("last_event_id")
}

// replay resends stored presence events after cursor. An unparsable cursor
// is not an error; the client just gets live events only.
func (s *Server) replay(ctx context.Context, stream sseStream, cursor string, userID int64) error {
	filter := store.EventFilter{
		UserID: userID,
		Cursor: &cursor,
		Limit:  replayPageSize,
	}

	for range replayPages {
		page, err := s.events.Query(ctx, filter)
		if errors.Is(err, store.ErrInvalidCursor) {
			return nil
		}
		if err != nil {
			return err
		}
		for _, e := range page.Items {
			if err := stream.send(NewPresenceMessage(e)); err != nil {
				return err
			}
		}
		if page.NextCursor == nil {
			return nil
		}
		filter.Cursor = page.NextCursor
	}
	return nil
}
