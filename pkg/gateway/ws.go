package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/harun/toolshed/pkg/catalog"
	"github.com/harun/toolshed/pkg/detail"
	"github.com/harun/toolshed/pkg/render"
	"github.com/harun/toolshed/pkg/toolexecutor"
)

const (
	writeWait        = 5 * time.Second
	loadPollInterval = 250 * time.Millisecond
)

// InputMessage is sent by the page when an input changes
type InputMessage struct {
	Index *int `json:"index"`
	Value any  `json:"value"`
}

// StateMessage is pushed to the page after every controller change
type StateMessage struct {
	State      detail.State `json:"state"`
	ResultHTML string       `json:"result_html"`
	ResultKind render.Kind  `json:"result_kind,omitempty"`
	HasResult  bool         `json:"has_result"`
	Error      string       `json:"error"`
	Pristine   bool         `json:"pristine"`
	Running    bool         `json:"running"`
	// Problem reports a rejected client message
	Problem string `json:"problem,omitempty"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.trackConn() {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.conns.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	now := time.Now()
	sess := &Session{
		ID:           uuid.NewString(),
		ToolID:       catalog.ID(chi.URLParam(r, "id")),
		Conn:         conn,
		ConnectedAt:  now,
		LastActivity: now,
		IPAddress:    r.RemoteAddr,
	}
	logger := s.logger.With().Str("session_id", sess.ID).Str("tool_id", sess.ToolID.String()).Logger()

	runCtx := toolexecutor.ContextWithExecContext(context.Background(), &toolexecutor.ExecutionContext{
		SessionID: sess.ID,
		Source:    "detail",
	})
	sess.controller = detail.New(sess.ToolID, s.store, s.runner,
		detail.WithContext(runCtx),
		detail.WithDebounce(s.currentDebounce()),
		detail.WithAutoRun(s.cfg.AutoRun),
		detail.WithLogger(logger),
		detail.WithObserver(func(snap detail.Snapshot) {
			s.push(sess, s.stateMessage(snap))
		}),
	)

	s.sessions.Add(sess)
	s.metrics.SessionOpened()
	logger.Info().Str("ip", r.RemoteAddr).Msg("Session opened")

	defer func() {
		sess.controller.Close()
		conn.Close()
		s.sessions.Remove(sess.ID)
		s.metrics.SessionClosed()
		logger.Info().Msg("Session closed")
	}()

	s.push(sess, s.stateMessage(sess.controller.Snapshot()))

	stopPoll := make(chan struct{})
	defer close(stopPoll)
	if sess.controller.Snapshot().State == detail.StateLoading {
		go s.awaitLoad(sess, stopPoll)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.Warn().Err(err).Msg("WebSocket error")
			}
			return
		}
		s.sessions.UpdateActivity(sess.ID)
		s.handleInput(sess, data)
	}
}

func (s *Server) handleInput(sess *Session, data []byte) {
	var msg InputMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.Index == nil {
		s.pushProblem(sess, "expected {\"index\": n, \"value\": v}")
		return
	}

	if err := sess.controller.SetInput(*msg.Index, msg.Value); err != nil {
		s.pushProblem(sess, err.Error())
	}
}

// awaitLoad refreshes a controller opened before the registry finished
// loading until it resolves
func (s *Server) awaitLoad(sess *Session, stop <-chan struct{}) {
	ticker := time.NewTicker(loadPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if sess.controller.Refresh() != detail.StateLoading {
				return
			}
		}
	}
}

func (s *Server) stateMessage(snap detail.Snapshot) StateMessage {
	msg := StateMessage{
		State:     snap.State,
		HasResult: snap.HasResult,
		Error:     snap.Error,
		Pristine:  snap.Pristine,
		Running:   snap.Running,
	}
	if snap.HasResult {
		variant := render.Classify(snap.Result)
		msg.ResultKind = variant.Kind
		msg.ResultHTML = string(render.HTML(variant))
	}
	return msg
}

func (s *Server) pushProblem(sess *Session, problem string) {
	msg := s.stateMessage(sess.controller.Snapshot())
	msg.Problem = problem
	s.push(sess, msg)
}

func (s *Server) push(sess *Session, msg StateMessage) {
	if msg.HasResult {
		s.metrics.RecordRender(msg.ResultKind)
	}

	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()

	_ = sess.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := sess.Conn.WriteJSON(msg); err != nil {
		s.logger.Debug().Err(err).Str("session_id", sess.ID).Msg("Failed to push state")
	}
}

func (s *Server) trackConn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopping {
		return false
	}
	s.conns.Add(1)
	return true
}
