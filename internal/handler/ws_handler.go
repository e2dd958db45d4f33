package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/invigo/invigo-backend/internal/engine"
	"github.com/invigo/invigo-backend/internal/service"
	ws "github.com/invigo/invigo-backend/internal/websocket"
)

// SessionResolver looks up live sessions by ID.
type SessionResolver interface {
	Resolve(sessionID uuid.UUID) (*service.LiveSession, error)
}

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams a session over WebSocket: environment signals flow in,
// ticks, leave prompts, and the final verdict flow out.
type WSHandler struct {
	sessions SessionResolver
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessions SessionResolver, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessions: sessions,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/sessions/:session_id/stream
// Upgrades to WebSocket for real-time countdown and environment signaling.
// The note pump and the read loop's replies share one connection, so all
// writes go through the serialized ws.Conn wrapper.
func (h *WSHandler) SessionStream(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session ID"})
		return
	}

	live, err := h.sessions.Resolve(sessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.NewConn(raw)
	defer conn.Close()

	wsLog := h.log.With().Str("session_id", sessionID.String()).Logger()
	wsLog.Info().Msg("Client connected")

	// Note pump: session notes → client. Stops when the read loop returns.
	stop := make(chan struct{})
	go h.notePump(conn, live, stop)
	defer close(stop)

	for {
		var msg ws.RequestPayload
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		switch msg.Action {
		case ws.ActionSignal:
			h.handleSignal(conn, live, &msg)
		case ws.ActionPing:
			conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			conn.WriteError("unknown action: " + string(msg.Action))
		}
	}
}

// handleSignal forwards an environment signal into the session's monitor.
func (h *WSHandler) handleSignal(conn *ws.Conn, live *service.LiveSession, msg *ws.RequestPayload) {
	kind := engine.SignalKind(msg.Signal)
	switch kind {
	case engine.SignalVisibilityLoss, engine.SignalFocusLoss, engine.SignalFullscreenExit, engine.SignalNavAttempt:
		live.Signals.Emit(kind)
	default:
		conn.WriteError("unknown signal: " + msg.Signal)
	}
}

func (h *WSHandler) notePump(conn *ws.Conn, live *service.LiveSession, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case note := <-live.Engine.Notes():
			var err error
			switch note.Kind {
			case engine.NoteTick:
				err = conn.WriteTyped(ws.TickResponse{Event: ws.EventTick, Remaining: note.Remaining})
			case engine.NoteLeavePrompt:
				err = conn.WriteTyped(ws.LeavePromptResponse{Event: ws.EventLeavePrompt})
			case engine.NoteFinal:
				err = conn.WriteTyped(ws.FinalResponse{
					Event:      ws.EventFinal,
					Score:      note.Result.Score,
					TotalMarks: note.Result.TotalMarks,
					Status:     string(note.Result.ResultStatus),
					Terminated: note.Result.Terminated,
				})
			}
			if err != nil {
				return
			}
		}
	}
}
