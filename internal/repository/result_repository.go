package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/invigo/invigo-backend/internal/model"
)

// AttemptRecord is one finished exam attempt as stored.
type AttemptRecord struct {
	SessionID    uuid.UUID          `json:"session_id"`
	ExamID       uuid.UUID          `json:"exam_id"`
	StudentName  string             `json:"student_name"`
	StudentClass string             `json:"student_class"`
	Responses    map[string]int     `json:"responses"`
	Score        int                `json:"score"`
	TotalMarks   int                `json:"total_marks"`
	ResultStatus model.ResultStatus `json:"result_status"`
	Terminated   bool               `json:"terminated"`
	FinishedAt   time.Time          `json:"finished_at"`
}

// ResultRepository handles attempt result persistence.
type ResultRepository struct {
	pool *pgxpool.Pool
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(pool *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{pool: pool}
}

// Create inserts a finished attempt. Conflicting session IDs are ignored so
// a retried report cannot produce duplicate rows.
func (r *ResultRepository) Create(ctx context.Context, rec *AttemptRecord) error {
	responsesJSON, err := json.Marshal(rec.Responses)
	if err != nil {
		return fmt.Errorf("marshal responses: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO attempt_results
		   (session_id, exam_id, student_name, student_class, responses, score, total_marks, result_status, terminated, finished_at)
		 VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8, $9, $10)
		 ON CONFLICT (session_id) DO NOTHING`,
		rec.SessionID, rec.ExamID, rec.StudentName, rec.StudentClass, responsesJSON,
		rec.Score, rec.TotalMarks, rec.ResultStatus, rec.Terminated, rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert attempt result: %w", err)
	}
	return nil
}

// ListByExam returns an exam's finished attempts, newest first, paginated.
func (r *ResultRepository) ListByExam(ctx context.Context, examID uuid.UUID, page, perPage int) ([]AttemptRecord, int, error) {
	offset := (page - 1) * perPage

	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM attempt_results WHERE exam_id = $1`, examID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count results: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT session_id, student_name, student_class, responses, score, total_marks, result_status, terminated, finished_at
		 FROM attempt_results
		 WHERE exam_id = $1
		 ORDER BY finished_at DESC
		 LIMIT $2 OFFSET $3`, examID, perPage, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("select results: %w", err)
	}
	defer rows.Close()

	var records []AttemptRecord
	for rows.Next() {
		rec := AttemptRecord{ExamID: examID}
		var responsesJSON []byte
		if err := rows.Scan(&rec.SessionID, &rec.StudentName, &rec.StudentClass, &responsesJSON,
			&rec.Score, &rec.TotalMarks, &rec.ResultStatus, &rec.Terminated, &rec.FinishedAt); err != nil {
			return nil, 0, fmt.Errorf("scan result: %w", err)
		}
		if err := json.Unmarshal(responsesJSON, &rec.Responses); err != nil {
			return nil, 0, fmt.Errorf("unmarshal responses: %w", err)
		}
		records = append(records, rec)
	}
	return records, total, rows.Err()
}
