package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/invigo/invigo-backend/internal/config"
	"github.com/invigo/invigo-backend/internal/repository"
)

const (
	ResultBatchSize    = 50
	ResultBatchTimeout = 2 * time.Second
	ResultPollTimeout  = 1 * time.Second
)

// ResultWorker drains the persist-results queue and writes finished attempts
// to Postgres in batches. Duplicate session IDs are ignored by the insert,
// so requeued or retried reports stay safe.
type ResultWorker struct {
	pool       *pgxpool.Pool
	rdb        *redis.Client
	resultRepo *repository.ResultRepository
	log        zerolog.Logger
}

func NewResultWorker(pool *pgxpool.Pool, rdb *redis.Client, resultRepo *repository.ResultRepository, log zerolog.Logger) *ResultWorker {
	return &ResultWorker{
		pool:       pool,
		rdb:        rdb,
		resultRepo: resultRepo,
		log:        log.With().Str("component", "result_worker").Logger(),
	}
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

func (w *ResultWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ResultWorker started")

	batch := make([]*repository.AttemptRecord, 0, ResultBatchSize)
	lastFlush := time.Now()

	for {
		// Should flush?
		if len(batch) > 0 &&
			(len(batch) >= ResultBatchSize || time.Since(lastFlush) >= ResultBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, ResultPollTimeout, config.WorkerKey.PersistResultsQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var rec repository.AttemptRecord
			if err := json.Unmarshal([]byte(item[1]), &rec); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, &rec)
		}
	}
}

// ----------------------------------------------------------------
// Batch insert wrapper
// ----------------------------------------------------------------

func (w *ResultWorker) flushSafe(ctx context.Context, batch []*repository.AttemptRecord) {
	if len(batch) == 0 {
		return
	}

	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Msg("bulk result insert failed, using fallback")

		for _, rec := range batch {
			if err := w.resultRepo.Create(ctx, rec); err != nil {
				w.log.Error().Err(err).Str("session_id", rec.SessionID.String()).Msg("single insert failed — requeueing")
				raw, _ := json.Marshal(rec)
				w.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, raw)
			}
		}
	}
}

// ----------------------------------------------------------------
// BULK PostgreSQL INSERT using UNNEST + alias
// ----------------------------------------------------------------

func (w *ResultWorker) bulkInsert(ctx context.Context, batch []*repository.AttemptRecord) error {
	n := len(batch)

	sessionIDs := make([]string, 0, n)
	examIDs := make([]string, 0, n)
	names := make([]string, 0, n)
	classes := make([]string, 0, n)
	responses := make([]string, 0, n)
	scores := make([]int, 0, n)
	totals := make([]int, 0, n)
	statuses := make([]string, 0, n)
	terminated := make([]bool, 0, n)
	finishedAts := make([]time.Time, 0, n)

	for _, rec := range batch {
		responsesJSON, err := json.Marshal(rec.Responses)
		if err != nil {
			return err
		}
		sessionIDs = append(sessionIDs, rec.SessionID.String())
		examIDs = append(examIDs, rec.ExamID.String())
		names = append(names, rec.StudentName)
		classes = append(classes, rec.StudentClass)
		responses = append(responses, string(responsesJSON))
		scores = append(scores, rec.Score)
		totals = append(totals, rec.TotalMarks)
		statuses = append(statuses, string(rec.ResultStatus))
		terminated = append(terminated, rec.Terminated)
		finishedAts = append(finishedAts, rec.FinishedAt)
	}

	_, err := w.pool.Exec(ctx, `
		INSERT INTO attempt_results
		  (session_id, exam_id, student_name, student_class, responses, score, total_marks, result_status, terminated, finished_at)
		SELECT
		  v.session_id::uuid, v.exam_id::uuid, v.student_name, v.student_class,
		  v.responses::jsonb, v.score, v.total_marks, v.result_status, v.terminated, v.finished_at
		FROM UNNEST(
		  $1::text[], $2::text[], $3::text[], $4::text[], $5::text[],
		  $6::int[], $7::int[], $8::text[], $9::bool[], $10::timestamptz[]
		) AS v(session_id, exam_id, student_name, student_class, responses, score, total_marks, result_status, terminated, finished_at)
		ON CONFLICT (session_id) DO NOTHING`,
		sessionIDs, examIDs, names, classes, responses,
		scores, totals, statuses, terminated, finishedAts,
	)
	if err != nil {
		return err
	}

	w.log.Debug().Int("count", n).Msg("Flushed attempt results")
	return nil
}
