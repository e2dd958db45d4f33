package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionSignal Action = "signal"
	ActionPing   Action = "ping"
)

// RequestPayload carries every client message. Signal is set for
// ActionSignal and names an environment event (visibility_loss, focus_loss,
// fullscreen_exit, nav_attempt).
type RequestPayload struct {
	Action Action `json:"action"`
	Signal string `json:"signal,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventTick        Event = "tick"
	EventLeavePrompt Event = "leave_prompt"
	EventFinal       Event = "final"
	EventPong        Event = "pong"
	EventError       Event = "error"
)

// TickResponse streams the remaining time, once per second.
type TickResponse struct {
	Event     Event `json:"event"`
	Remaining int   `json:"remaining"`
}

// LeavePromptResponse tells the client to confirm a navigation attempt.
type LeavePromptResponse struct {
	Event Event `json:"event"`
}

// FinalResponse carries the final verdict once the session has finished.
type FinalResponse struct {
	Event      Event  `json:"event"`
	Score      int    `json:"score"`
	TotalMarks int    `json:"total_marks"`
	Status     string `json:"status"`
	Terminated bool   `json:"terminated"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
