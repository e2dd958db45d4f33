package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/invigo/invigo-backend/internal/config"
)

const (
	ViolationBatchSize    = 50
	ViolationBatchTimeout = 2 * time.Second
	ViolationPollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// ViolationWorker drains the persist-violations queue and writes the
// integrity audit log to Postgres in batches.
type ViolationWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewViolationWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ViolationWorker {
	return &ViolationWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "violation_worker").Logger(),
	}
}

type violationPayload struct {
	SessionID   uuid.UUID `json:"session_id"`
	ExamID      uuid.UUID `json:"exam_id"`
	StudentName string    `json:"student_name"`
	Kind        string    `json:"kind"`
	RecordedAt  time.Time `json:"recorded_at"`
}

func (w *ViolationWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ViolationWorker started")

	buffer := make([]*violationPayload, 0, ViolationBatchSize)
	lastFlush := time.Now()

	for {
		if len(buffer) > 0 &&
			(len(buffer) >= ViolationBatchSize || time.Since(lastFlush) >= ViolationBatchTimeout) {

			w.flushSafe(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), buffer)
			return
		default:
		}

		result, err := w.rdb.BLPop(ctx, ViolationPollTimeout, config.WorkerKey.PersistViolationsQueue).Result()
		if err != nil {
			if err == redis.Nil {
				continue // Queue empty, loop back to check flush timer
			}
			if ctx.Err() != nil {
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}

		if len(result) < 2 {
			continue
		}

		var payload violationPayload
		if err := json.Unmarshal([]byte(result[1]), &payload); err != nil {
			// Malformed JSON cannot be retried. Log and discard.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
			continue
		}

		buffer = append(buffer, &payload)
	}
}

func (w *ViolationWorker) flushSafe(ctx context.Context, buffer []*violationPayload) {
	if len(buffer) == 0 {
		return
	}

	rows := make([][]interface{}, 0, len(buffer))
	for _, p := range buffer {
		rows = append(rows, []interface{}{p.ExamID, p.SessionID, p.StudentName, p.Kind, p.RecordedAt})
	}

	_, err := w.pool.CopyFrom(ctx,
		pgx.Identifier{"exam_violations"},
		[]string{"exam_id", "session_id", "student_name", "kind", "recorded_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		w.log.Warn().Err(err).Msg("bulk violation insert failed, requeueing batch")
		for _, p := range buffer {
			raw, _ := json.Marshal(p)
			w.rdb.RPush(ctx, config.WorkerKey.PersistViolationsQueue, raw)
		}
		return
	}

	w.log.Debug().Int("count", len(buffer)).Msg("Flushed violations")
}
