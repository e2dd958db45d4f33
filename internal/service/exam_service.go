package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/invigo/invigo-backend/internal/config"
	"github.com/invigo/invigo-backend/internal/engine"
	"github.com/invigo/invigo-backend/internal/extract"
	"github.com/invigo/invigo-backend/internal/model"
	"github.com/invigo/invigo-backend/internal/repository"
	"github.com/invigo/invigo-backend/internal/response"
)

// ErrExamNotFound indicates the requested exam does not exist.
var ErrExamNotFound = errors.New("exam not found")

// Extractor turns an uploaded question paper into questions + solution key.
type Extractor interface {
	Extract(ctx context.Context, filename string, document io.Reader) (*extract.Payload, error)
}

// ExamService owns exam creation, the Redis payload cache, and reporting
// queries. Scoring never happens here — results arrive through the session
// engine and are persisted by the result worker.
type ExamService struct {
	cfg           *config.Config
	examRepo      *repository.ExamRepository
	resultRepo    *repository.ResultRepository
	violationRepo *repository.ViolationRepository
	extractor     Extractor
	rdb           *redis.Client
	log           zerolog.Logger
}

func NewExamService(
	cfg *config.Config,
	examRepo *repository.ExamRepository,
	resultRepo *repository.ResultRepository,
	violationRepo *repository.ViolationRepository,
	extractor Extractor,
	rdb *redis.Client,
	log zerolog.Logger,
) *ExamService {
	return &ExamService{
		cfg:           cfg,
		examRepo:      examRepo,
		resultRepo:    resultRepo,
		violationRepo: violationRepo,
		extractor:     extractor,
		rdb:           rdb,
		log:           log.With().Str("component", "exam_service").Logger(),
	}
}

// CreateFromDocument runs the full exam build pipeline: extract questions
// from the uploaded document, shuffle options (remapping the solution key),
// persist, and warm the Redis cache. The returned exam carries the shuffled
// option order that students will see.
func (s *ExamService) CreateFromDocument(ctx context.Context, req *model.CreateExamRequest, filename string, document io.Reader) (*model.Exam, error) {
	payload, err := s.extractor.Extract(ctx, filename, document)
	if err != nil {
		return nil, err
	}

	seed := s.cfg.ShuffleSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	questions, key, err := engine.Shuffle(payload.Questions, payload.SolutionKey, rng)
	if err != nil {
		return nil, fmt.Errorf("shuffle questions: %w", err)
	}

	threshold := s.cfg.PassThreshold
	if req.PassThreshold != nil {
		threshold = *req.PassThreshold
	}

	exam := &model.Exam{
		ID:              uuid.New(),
		Title:           req.Title,
		ExaminerEmail:   req.ExaminerEmail,
		DurationMinutes: req.DurationMinutes,
		PassThreshold:   threshold,
		Questions:       questions,
	}

	var entryCodeHash []byte
	if req.EntryCode != "" {
		entryCodeHash, err = bcrypt.GenerateFromPassword([]byte(req.EntryCode), s.cfg.BcryptCost)
		if err != nil {
			return nil, fmt.Errorf("hash entry code: %w", err)
		}
	}

	if err := s.examRepo.Create(ctx, exam, key, entryCodeHash); err != nil {
		return nil, fmt.Errorf("persist exam: %w", err)
	}

	// Cache warming is best-effort; reads fall back to Postgres.
	if err := s.warmCache(ctx, exam, key); err != nil {
		s.log.Warn().Err(err).Str("exam_id", exam.ID.String()).Msg("failed to warm exam cache")
	}

	return exam, nil
}

// warmCache stores the student payload and solution key in Redis so session
// registration and paper fetches avoid Postgres on the hot path.
func (s *ExamService) warmCache(ctx context.Context, exam *model.Exam, key model.SolutionKey) error {
	payloadJSON, err := json.Marshal(exam.Payload())
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	solution := make(map[string]string, len(key))
	for qid, idx := range key {
		solution[qid] = strconv.Itoa(idx)
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.ExamPayloadKey(exam.ID.String()), payloadJSON, 0)
	pipe.Del(ctx, config.CacheKey.ExamSolutionKey(exam.ID.String()))
	pipe.HSet(ctx, config.CacheKey.ExamSolutionKey(exam.ID.String()), solution)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache to redis: %w", err)
	}
	return nil
}

// GetPaper returns the student-facing exam payload, preferring the Redis
// cache and falling back to Postgres (self-healing the cache on a miss).
func (s *ExamService) GetPaper(ctx context.Context, examID uuid.UUID) (*model.ExamPayload, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.ExamPayloadKey(examID.String())).Bytes()
	if err == nil {
		var payload model.ExamPayload
		if jsonErr := json.Unmarshal(data, &payload); jsonErr == nil {
			return &payload, nil
		}
		s.log.Warn().Str("exam_id", examID.String()).Msg("corrupt cached payload, falling back to database")
	} else if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Msg("redis unavailable, falling back to database")
	}

	exam, key, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrExamNotFound
		}
		return nil, err
	}

	if cacheErr := s.warmCache(ctx, exam, key); cacheErr != nil {
		s.log.Warn().Err(cacheErr).Str("exam_id", examID.String()).Msg("failed to re-warm exam cache")
	}
	return exam.Payload(), nil
}

// GetExamWithKey loads the full exam plus its solution key for session
// registration. The key never leaves the server process.
func (s *ExamService) GetExamWithKey(ctx context.Context, examID uuid.UUID) (*model.Exam, model.SolutionKey, error) {
	exam, key, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrExamNotFound
		}
		return nil, nil, err
	}
	return exam, key, nil
}

// VerifyEntryCode compares a submitted entry code against the stored bcrypt
// hash. Exams created without a code accept any input.
func (s *ExamService) VerifyEntryCode(ctx context.Context, examID uuid.UUID, code string) (bool, error) {
	hash, err := s.examRepo.GetEntryCodeHash(ctx, examID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, ErrExamNotFound
		}
		return false, err
	}
	if len(hash) == 0 {
		return true, nil
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(code)) == nil, nil
}

// ListResults returns persisted attempt results for an exam, newest first.
func (s *ExamService) ListResults(ctx context.Context, examID uuid.UUID, page, perPage int) ([]repository.AttemptRecord, *response.Pagination, error) {
	records, total, err := s.resultRepo.ListByExam(ctx, examID, page, perPage)
	if err != nil {
		return nil, nil, err
	}
	return records, response.NewPagination(page, perPage, total), nil
}

// ListViolations returns the recorded environment violations for an exam.
func (s *ExamService) ListViolations(ctx context.Context, examID uuid.UUID) ([]repository.ViolationRecord, error) {
	return s.violationRepo.ListByExam(ctx, examID)
}
