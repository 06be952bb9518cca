package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const streamWriteWait = 5 * time.Second

// handleProgressStream upgrades to a WebSocket and pushes job snapshots
// until the job is terminal, expires, or the client goes away.
func (s *Server) handleProgressStream(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobId")
	job, err := s.conv.Job(jobID)
	if err != nil {
		s.fail(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "job_id", jobID, "error", err)
		return
	}
	defer conn.Close()

	// The client never sends data; reading only detects its departure.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		if err := conn.WriteJSON(job); err != nil {
			s.logger.Debug("progress stream closed", "job_id", jobID, "error", err)
			return
		}
		if job.Status.Terminal() {
			closeStream(conn, websocket.CloseNormalClosure, string(job.Status))
			return
		}

		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		if job, err = s.conv.Job(jobID); err != nil {
			closeStream(conn, websocket.CloseGoingAway, "job not found")
			return
		}
	}
}

func closeStream(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(streamWriteWait))
}
