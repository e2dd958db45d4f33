package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/invigo/invigo-backend/internal/config"
	"github.com/invigo/invigo-backend/internal/engine"
	"github.com/invigo/invigo-backend/internal/model"
	"github.com/invigo/invigo-backend/internal/repository"
)

// Session registry errors.
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrInvalidEntryCode = errors.New("invalid entry code")
)

// finishedGrace is how long a finalized session stays resolvable so the
// student can still fetch their result before the registry evicts it.
const finishedGrace = 10 * time.Minute

// LiveSession pairs a running session engine with its environment signal
// buffer. The WebSocket handler feeds signals in and streams notes out.
type LiveSession struct {
	Engine  *engine.Session
	Signals *engine.SignalBuffer
	ExamID  uuid.UUID

	finishedAt time.Time
}

// SessionService keeps every in-flight exam attempt in memory and bridges
// the engine's outcomes to durable storage: finished results and violations
// are queued to Redis for the background workers, with a direct Postgres
// fallback when Redis is down.
type SessionService struct {
	cfg        *config.Config
	exams      *ExamService
	resultRepo *repository.ResultRepository
	rdb        *redis.Client
	log        zerolog.Logger

	mu       sync.Mutex
	sessions map[uuid.UUID]*LiveSession

	janitorStop chan struct{}
	janitorDone chan struct{}
}

func NewSessionService(
	cfg *config.Config,
	exams *ExamService,
	resultRepo *repository.ResultRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *SessionService {
	s := &SessionService{
		cfg:         cfg,
		exams:       exams,
		resultRepo:  resultRepo,
		rdb:         rdb,
		log:         log.With().Str("component", "session_service").Logger(),
		sessions:    make(map[uuid.UUID]*LiveSession),
		janitorStop: make(chan struct{}),
		janitorDone: make(chan struct{}),
	}
	go s.janitor()
	return s
}

// Register creates a session for an exam and claims it for a student. The
// entry code is checked before any session state exists.
func (s *SessionService) Register(ctx context.Context, examID uuid.UUID, req *model.RegisterSessionRequest) (*LiveSession, error) {
	ok, err := s.exams.VerifyEntryCode(ctx, examID, req.EntryCode)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidEntryCode
	}

	exam, key, err := s.exams.GetExamWithKey(ctx, examID)
	if err != nil {
		return nil, err
	}

	threshold := exam.PassThreshold
	if threshold <= 0 {
		threshold = s.cfg.PassThreshold
	}

	signals := engine.NewSignalBuffer()
	sess := engine.NewSession(uuid.New(), exam, key, engine.SessionConfig{
		PassThreshold: threshold,
		Signals:       signals,
		Reporter:      s,
		Violations:    s,
		Log:           s.log,
	})

	if err := sess.Register(req.StudentName, req.StudentClass); err != nil {
		sess.Close()
		return nil, err
	}

	live := &LiveSession{Engine: sess, Signals: signals, ExamID: examID}
	s.mu.Lock()
	s.sessions[sess.ID] = live
	s.mu.Unlock()

	s.log.Info().
		Str("session_id", sess.ID.String()).
		Str("exam_id", examID.String()).
		Msg("Session registered")
	return live, nil
}

// Resolve returns the live session for an ID.
func (s *SessionService) Resolve(sessionID uuid.UUID) (*LiveSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	live, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return live, nil
}

// Report implements engine.ResultReporter: the finished attempt is queued to
// Redis for batched persistence. If Redis is unreachable the record is
// written straight to Postgres instead.
func (s *SessionService) Report(ctx context.Context, sub *engine.Submission) error {
	s.markFinished(sub.SessionID)

	rec := &repository.AttemptRecord{
		SessionID:    sub.SessionID,
		ExamID:       sub.ExamID,
		StudentName:  sub.StudentName,
		StudentClass: sub.StudentClass,
		Responses:    sub.Responses,
		Score:        sub.Result.Score,
		TotalMarks:   sub.Result.TotalMarks,
		ResultStatus: sub.Result.ResultStatus,
		Terminated:   sub.Result.Terminated,
		FinishedAt:   sub.FinishedAt,
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal attempt record: %w", err)
	}

	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, payload).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Result queue unavailable, writing directly")
		return s.resultRepo.Create(ctx, rec)
	}
	return nil
}

// RecordViolation implements engine.ViolationSink: violations are queued for
// the violation worker. Best-effort, an audit row is never worth failing a
// termination over.
func (s *SessionService) RecordViolation(ctx context.Context, sessionID, examID uuid.UUID, studentName string, kind engine.SignalKind) {
	payload, err := json.Marshal(map[string]interface{}{
		"session_id":   sessionID,
		"exam_id":      examID,
		"student_name": studentName,
		"kind":         kind,
		"recorded_at":  time.Now(),
	})
	if err != nil {
		return
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistViolationsQueue, payload).Err(); err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("Failed to queue violation record")
	}
}

func (s *SessionService) markFinished(sessionID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if live, ok := s.sessions[sessionID]; ok && live.finishedAt.IsZero() {
		live.finishedAt = time.Now()
	}
}

// janitor evicts finished sessions after a grace period so the registry
// does not grow without bound.
func (s *SessionService) janitor() {
	defer close(s.janitorDone)

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.janitorStop:
			return
		case <-ticker.C:
			s.evictFinished()
		}
	}
}

func (s *SessionService) evictFinished() {
	var stale []*LiveSession

	s.mu.Lock()
	for id, live := range s.sessions {
		if !live.finishedAt.IsZero() && time.Since(live.finishedAt) > finishedGrace {
			stale = append(stale, live)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, live := range stale {
		live.Engine.Close()
	}
	if len(stale) > 0 {
		s.log.Debug().Int("count", len(stale)).Msg("Evicted finished sessions")
	}
}

// Shutdown closes every live session and stops the janitor. Sessions still
// in flight are torn down without a result; their timers and monitors are
// released.
func (s *SessionService) Shutdown() {
	close(s.janitorStop)
	<-s.janitorDone

	s.mu.Lock()
	live := make([]*LiveSession, 0, len(s.sessions))
	for id, l := range s.sessions {
		live = append(live, l)
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	for _, l := range live {
		l.Engine.Close()
	}
	s.log.Info().Int("count", len(live)).Msg("All sessions closed")
}
