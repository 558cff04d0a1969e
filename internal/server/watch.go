package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const (
	watchInterval     = 500 * time.Millisecond
	watchWriteTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The API key check already ran; browsers on other origins go through CORS.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleWatchJob streams snapshots of one job over a websocket until the job
// finishes or the client goes away. The last message is the final snapshot,
// followed by a normal close frame.
func (s *Server) handleWatchJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.deps.Jobs.GetJob(id); err != nil {
		s.respondError(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		s.logger.Debug("websocket upgrade failed", "job_id", id, "error", err)
		return
	}
	defer conn.Close()

	// The server's read deadline does not apply to a hijacked connection.
	_ = conn.SetReadDeadline(time.Time{})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	for {
		snap, err := s.deps.Jobs.GetJob(id)
		if err != nil {
			// Evicted while watching.
			s.closeWatch(conn, websocket.CloseGoingAway, "job no longer tracked")
			return
		}

		_ = conn.SetWriteDeadline(time.Now().Add(watchWriteTimeout))
		if err := conn.WriteJSON(snap); err != nil {
			s.logger.Debug("job watch write failed", "job_id", id, "error", err)
			return
		}
		if snap.Done() {
			s.closeWatch(conn, websocket.CloseNormalClosure, string(snap.Status))
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) closeWatch(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		s.logger.Debug("job watch close failed", "error", err)
	}
}
