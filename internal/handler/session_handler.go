package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/invigo/invigo-backend/internal/engine"
	"github.com/invigo/invigo-backend/internal/model"
	"github.com/invigo/invigo-backend/internal/response"
	"github.com/invigo/invigo-backend/internal/service"
	"github.com/invigo/invigo-backend/internal/validator"
)

// SessionHandler exposes the exam attempt lifecycle over HTTP. Every
// operation is delegated to the in-memory session engine; the handler only
// translates transport concerns and error codes.
type SessionHandler struct {
	sessionService *service.SessionService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessionService *service.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

// Register godoc
// POST /api/v1/exams/:exam_id/sessions
// Creates a session and claims it for a student.
func (h *SessionHandler) Register(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.RegisterSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	live, err := h.sessionService.Register(c.Request.Context(), examID, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrExamNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, service.ErrInvalidEntryCode):
			response.Fail(c, http.StatusForbidden, response.ErrInvalidEntryCode)
		case errors.Is(err, engine.ErrIncompleteRegistration):
			response.Fail(c, http.StatusBadRequest, response.ErrIncompleteRegistration)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	state, err := live.Engine.State()
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"session_id": live.Engine.ID,
		"exam_id":    live.ExamID,
		"state":      state,
	})
}

// Start godoc
// POST /api/v1/sessions/:session_id/start
// Begins the attempt: the countdown starts and the integrity monitor arms.
func (h *SessionHandler) Start(c *gin.Context) {
	live, ok := h.resolve(c)
	if !ok {
		return
	}
	if err := live.Engine.Start(); err != nil {
		failEngine(c, err)
		return
	}
	h.respondState(c, live)
}

// Answer godoc
// POST /api/v1/sessions/:session_id/answers
// Records the selected option for a question. Later answers overwrite
// earlier ones for the same question.
func (h *SessionHandler) Answer(c *gin.Context) {
	live, ok := h.resolve(c)
	if !ok {
		return
	}

	var req model.AnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := live.Engine.Answer(req.QuestionID, *req.OptionIndex); err != nil {
		failEngine(c, err)
		return
	}
	h.respondState(c, live)
}

// Navigate godoc
// POST /api/v1/sessions/:session_id/navigate
// Moves the question cursor by a signed delta, clamped to the question range.
func (h *SessionHandler) Navigate(c *gin.Context) {
	live, ok := h.resolve(c)
	if !ok {
		return
	}

	var req model.NavigateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := live.Engine.Navigate(req.Delta); err != nil {
		failEngine(c, err)
		return
	}
	h.respondState(c, live)
}

// Review godoc
// POST /api/v1/sessions/:session_id/review
// Enters (active=true) or exits (active=false) review mode.
func (h *SessionHandler) Review(c *gin.Context) {
	live, ok := h.resolve(c)
	if !ok {
		return
	}

	var req model.ReviewRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	var err error
	if *req.Active {
		err = live.Engine.EnterReview()
	} else {
		err = live.Engine.ExitReview()
	}
	if err != nil {
		failEngine(c, err)
		return
	}
	h.respondState(c, live)
}

// Submit godoc
// POST /api/v1/sessions/:session_id/submit
// Finalizes the attempt and returns the result. Submitting twice returns
// the stored result again.
func (h *SessionHandler) Submit(c *gin.Context) {
	live, ok := h.resolve(c)
	if !ok {
		return
	}

	result, err := live.Engine.Submit()
	if err != nil {
		failEngine(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// GetState godoc
// GET /api/v1/sessions/:session_id/state
// Returns a snapshot of the session state (for reconnecting clients).
func (h *SessionHandler) GetState(c *gin.Context) {
	live, ok := h.resolve(c)
	if !ok {
		return
	}
	h.respondState(c, live)
}

func (h *SessionHandler) resolve(c *gin.Context) (*service.LiveSession, bool) {
	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, false
	}

	live, err := h.sessionService.Resolve(sessionID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return nil, false
	}
	return live, true
}

func (h *SessionHandler) respondState(c *gin.Context, live *service.LiveSession) {
	state, err := live.Engine.State()
	if err != nil {
		failEngine(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"state": state})
}

// failEngine maps session engine errors to API error codes.
func failEngine(c *gin.Context, err error) {
	switch {
	case errors.Is(err, engine.ErrSessionClosed):
		response.Fail(c, http.StatusConflict, response.ErrSessionClosed)
	case errors.Is(err, engine.ErrInvalidTransition):
		response.Fail(c, http.StatusConflict, response.ErrInvalidTransition)
	case errors.Is(err, engine.ErrUnknownQuestion):
		response.Fail(c, http.StatusBadRequest, response.ErrUnknownQuestion)
	case errors.Is(err, engine.ErrOptionOutOfRange):
		response.Fail(c, http.StatusBadRequest, response.ErrOptionOutOfRange)
	case errors.Is(err, engine.ErrIncompleteRegistration):
		response.Fail(c, http.StatusBadRequest, response.ErrIncompleteRegistration)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
