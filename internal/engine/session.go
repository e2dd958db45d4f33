package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/invigo/invigo-backend/internal/model"
)

// Domain errors surfaced by session transitions.
var (
	ErrInvalidTransition      = errors.New("transition not allowed in current state")
	ErrIncompleteRegistration = errors.New("student name and class are required")
	ErrUnknownQuestion        = errors.New("unknown question id")
	ErrOptionOutOfRange       = errors.New("option index out of range")
	ErrSessionClosed          = errors.New("session is closed")
)

// ResultReporter receives the final outcome of a session exactly once. The
// session enters its terminal state synchronously before Report runs, so
// the visible session state never depends on reporting latency.
type ResultReporter interface {
	Report(ctx context.Context, sub *Submission) error
}

// ViolationSink records terminal integrity violations for audit. Best-effort.
type ViolationSink interface {
	RecordViolation(ctx context.Context, sessionID, examID uuid.UUID, studentName string, kind SignalKind)
}

// Submission is the fire-once payload handed to the ResultReporter.
type Submission struct {
	SessionID    uuid.UUID        `json:"session_id"`
	ExamID       uuid.UUID        `json:"exam_id"`
	StudentName  string           `json:"student_name"`
	StudentClass string           `json:"student_class"`
	Responses    map[string]int   `json:"responses"`
	Result       model.ExamResult `json:"result"`
	FinishedAt   time.Time        `json:"finished_at"`
}

// NoteKind classifies session notifications pushed to the client stream.
type NoteKind string

const (
	NoteTick        NoteKind = "tick"
	NoteLeavePrompt NoteKind = "leave_prompt"
	NoteFinal       NoteKind = "final"
)

// Note is a one-way notification from the session to whoever is streaming
// it (normally the WebSocket handler). Delivery is best-effort.
type Note struct {
	Kind      NoteKind          `json:"kind"`
	Remaining int               `json:"remaining,omitempty"`
	Result    *model.ExamResult `json:"result,omitempty"`
}

// SessionConfig wires a session's collaborators. Zero values get defaults:
// system clock, empty signal source, no-op reporter, DefaultPassThreshold.
type SessionConfig struct {
	PassThreshold float64
	Clock         Clock
	Signals       SignalSource
	Reporter      ResultReporter
	Violations    ViolationSink
	Log           zerolog.Logger
}

// Session is the controller for one exam attempt: an explicit state machine
// driven by an event loop. Timer ticks, integrity violations, and user
// actions are all serialized onto the loop goroutine, so no transition ever
// runs concurrently with another. The terminal guard in the loop ensures at
// most one terminal transition per session; whichever of expiry, violation,
// or explicit submit the loop observes first wins, with a pending violation
// outranking a simultaneous expiry.
type Session struct {
	ID uuid.UUID

	exam *model.Exam
	key  model.SolutionKey
	cfg  SessionConfig

	timer   *Timer
	monitor *IntegrityMonitor

	state  model.SessionState
	result *model.ExamResult

	actions    chan request
	ticks      chan int
	expired    chan struct{}
	violations chan Signal
	notes      chan Note

	quit      chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once

	log zerolog.Logger
}

type request struct {
	fn   func() error
	resp chan error
}

// NewSession creates a session in the Idle state and starts its event loop.
// The exam and key must already satisfy the solution key invariant.
func NewSession(id uuid.UUID, exam *model.Exam, key model.SolutionKey, cfg SessionConfig) *Session {
	if cfg.Clock == nil {
		cfg.Clock = SystemClock
	}
	if cfg.Signals == nil {
		cfg.Signals = NewSignalBuffer()
	}
	if cfg.PassThreshold <= 0 {
		cfg.PassThreshold = exam.PassThreshold
	}

	s := &Session{
		ID:   id,
		exam: exam,
		key:  key,
		cfg:  cfg,
		state: model.SessionState{
			Status:    model.SessionStatusIdle,
			Responses: make(map[string]int),
		},
		actions:    make(chan request),
		ticks:      make(chan int, 8),
		expired:    make(chan struct{}, 1),
		violations: make(chan Signal, 4),
		notes:      make(chan Note, 128),
		quit:       make(chan struct{}),
		loopDone:   make(chan struct{}),
		log: cfg.Log.With().
			Str("component", "session").
			Str("session_id", id.String()).
			Str("exam_id", exam.ID.String()).
			Logger(),
	}

	s.timer = NewTimer(cfg.Clock)
	s.monitor = NewIntegrityMonitor(cfg.Signals, func() {
		s.pushNote(Note{Kind: NoteLeavePrompt})
	})

	go s.loop()
	return s
}

// Notes exposes the session's notification stream.
func (s *Session) Notes() <-chan Note { return s.notes }

// ─── Event loop ────────────────────────────────────────────────────

func (s *Session) loop() {
	defer close(s.loopDone)

	for {
		// A pending violation outranks every other pending event: an
		// active cheating signal beats the clock and the submit button.
		select {
		case sig := <-s.violations:
			s.handleViolation(sig)
			continue
		default:
		}

		select {
		case <-s.quit:
			return
		case sig := <-s.violations:
			s.handleViolation(sig)
		case <-s.expired:
			select {
			case sig := <-s.violations:
				s.handleViolation(sig)
			default:
			}
			s.handleExpiry()
		case remaining := <-s.ticks:
			s.handleTick(remaining)
		case req := <-s.actions:
			req.resp <- req.fn()
		}
	}
}

// do runs fn on the loop goroutine and returns its error.
func (s *Session) do(fn func() error) error {
	req := request{fn: fn, resp: make(chan error, 1)}
	select {
	case s.actions <- req:
	case <-s.loopDone:
		return ErrSessionClosed
	}
	select {
	case err := <-req.resp:
		return err
	case <-s.loopDone:
		return ErrSessionClosed
	}
}

// ─── User-initiated transitions ────────────────────────────────────

// Register claims the attempt for a student. Idle → Registered.
func (s *Session) Register(studentName, studentClass string) error {
	return s.do(func() error {
		if s.state.Status != model.SessionStatusIdle {
			return ErrInvalidTransition
		}
		if studentName == "" || studentClass == "" {
			return ErrIncompleteRegistration
		}
		s.state.StudentName = studentName
		s.state.StudentClass = studentClass
		s.state.Status = model.SessionStatusRegistered
		return nil
	})
}

// Start begins the attempt. Registered → InProgress: the countdown starts
// and the integrity monitor is armed.
func (s *Session) Start() error {
	return s.do(func() error {
		if s.state.Status != model.SessionStatusRegistered {
			return ErrInvalidTransition
		}
		s.state.Status = model.SessionStatusInProgress
		s.state.CurrentIndex = 0
		s.state.TimeRemainingSeconds = s.exam.DurationMinutes * 60

		s.monitor.Arm(func(sig Signal) {
			select {
			case s.violations <- sig:
			default:
			}
		})
		s.timer.Start(s.state.TimeRemainingSeconds,
			func(remaining int) {
				select {
				case s.ticks <- remaining:
				default:
				}
			},
			func() {
				select {
				case s.expired <- struct{}{}:
				default:
				}
			},
		)

		s.log.Info().Int("duration_s", s.state.TimeRemainingSeconds).Msg("Session started")
		return nil
	})
}

// Answer records the selected option index for a question. Rejected at the
// boundary: unknown question IDs and out-of-range indices are never stored.
func (s *Session) Answer(questionID string, optionIndex int) error {
	return s.do(func() error {
		if !s.active() {
			return s.transitionErr()
		}
		q := s.exam.Question(questionID)
		if q == nil {
			return ErrUnknownQuestion
		}
		if optionIndex < 0 || optionIndex >= len(q.Options) {
			return ErrOptionOutOfRange
		}
		s.state.Responses[questionID] = optionIndex
		return nil
	})
}

// Navigate moves the current question cursor by delta, clamped to the
// question range.
func (s *Session) Navigate(delta int) error {
	return s.do(func() error {
		if !s.active() {
			return s.transitionErr()
		}
		idx := s.state.CurrentIndex + delta
		if idx < 0 {
			idx = 0
		}
		if max := len(s.exam.Questions) - 1; idx > max {
			idx = max
		}
		s.state.CurrentIndex = idx
		return nil
	})
}

// EnterReview switches InProgress → Reviewing.
func (s *Session) EnterReview() error {
	return s.do(func() error {
		if s.state.Status != model.SessionStatusInProgress {
			return s.transitionErr()
		}
		s.state.Status = model.SessionStatusReviewing
		return nil
	})
}

// ExitReview switches Reviewing → InProgress.
func (s *Session) ExitReview() error {
	return s.do(func() error {
		if s.state.Status != model.SessionStatusReviewing {
			return s.transitionErr()
		}
		s.state.Status = model.SessionStatusInProgress
		return nil
	})
}

// Submit finalizes the attempt and returns the result. Submitting an
// already-finalized session is a no-op that returns the stored result, so
// repeated user action cannot double-submit.
func (s *Session) Submit() (*model.ExamResult, error) {
	var result *model.ExamResult
	err := s.do(func() error {
		if s.state.Status.Terminal() {
			result = s.result
			return nil
		}
		if !s.active() {
			return ErrInvalidTransition
		}
		s.finalize(false)
		result = s.result
		return nil
	})
	return result, err
}

// State returns a snapshot of the session state.
func (s *Session) State() (*model.SessionState, error) {
	var snap *model.SessionState
	err := s.do(func() error {
		snap = s.state.Clone()
		return nil
	})
	return snap, err
}

// Result returns the final result once a terminal transition has executed.
func (s *Session) Result() (*model.ExamResult, bool) {
	var res *model.ExamResult
	err := s.do(func() error {
		res = s.result
		return nil
	})
	if err != nil || res == nil {
		return nil, false
	}
	return res, true
}

// Close tears the session down: the event loop stops and the timer and
// monitor are released. Idempotent; safe on every exit path, including a
// forced shutdown with the attempt still in flight.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.quit)
		<-s.loopDone
		s.timer.Cancel()
		s.monitor.Disarm()
	})
}

// ─── Internal event handlers (loop goroutine only) ─────────────────

func (s *Session) active() bool {
	return s.state.Status == model.SessionStatusInProgress ||
		s.state.Status == model.SessionStatusReviewing
}

func (s *Session) transitionErr() error {
	if s.state.Status.Terminal() {
		return ErrSessionClosed
	}
	return ErrInvalidTransition
}

func (s *Session) handleTick(remaining int) {
	if !s.active() {
		return
	}
	s.state.TimeRemainingSeconds = remaining
	s.pushNote(Note{Kind: NoteTick, Remaining: remaining})
}

func (s *Session) handleExpiry() {
	if !s.active() {
		return
	}
	s.state.TimeRemainingSeconds = 0
	s.log.Info().Msg("Timer expired, auto-submitting")
	s.finalize(false)
}

func (s *Session) handleViolation(sig Signal) {
	if !s.active() {
		return
	}
	s.log.Warn().Str("kind", string(sig.Kind)).Msg("Integrity violation, terminating")
	s.finalize(true)

	if s.cfg.Violations != nil {
		go s.cfg.Violations.RecordViolation(context.Background(), s.ID, s.exam.ID, s.state.StudentName, sig.Kind)
	}
}

// finalize executes the single terminal transition: release the timer and
// monitor, score, flip the state, then report asynchronously. Callers must
// have checked that the session is still active.
func (s *Session) finalize(terminated bool) {
	s.timer.Cancel()
	s.monitor.Disarm()

	s.result = Score(s.exam, s.key, s.state.Responses, terminated, s.cfg.PassThreshold)
	if terminated {
		s.state.Status = model.SessionStatusTerminated
	} else {
		s.state.Status = model.SessionStatusSubmitted
	}

	s.pushNote(Note{Kind: NoteFinal, Result: s.result})

	sub := &Submission{
		SessionID:    s.ID,
		ExamID:       s.exam.ID,
		StudentName:  s.state.StudentName,
		StudentClass: s.state.StudentClass,
		Responses:    s.state.Clone().Responses,
		Result:       *s.result,
		FinishedAt:   time.Now(),
	}
	go s.report(sub)

	s.log.Info().
		Int("score", s.result.Score).
		Int("total", s.result.TotalMarks).
		Bool("terminated", terminated).
		Str("verdict", string(s.result.ResultStatus)).
		Msg("Session finalized")
}

// report delivers the submission to the reporter, retrying once. Losing a
// completed attempt is the worst-case outcome, so the failure is logged
// loudly; durable retry lives behind the reporter.
func (s *Session) report(sub *Submission) {
	if s.cfg.Reporter == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	err := s.cfg.Reporter.Report(ctx, sub)
	if err != nil {
		s.log.Warn().Err(err).Msg("Result report failed, retrying")
		err = s.cfg.Reporter.Report(ctx, sub)
	}
	if err != nil {
		s.log.Error().Err(err).Msg("Result report failed after retry")
	}
}

func (s *Session) pushNote(n Note) {
	select {
	case s.notes <- n:
	default:
	}
}
