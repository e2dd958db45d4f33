package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/invigo/invigo-backend/internal/model"
)

// ExamRepository handles exam and question persistence. The stored option
// order is the already-shuffled order, so the stored correct index is valid
// for what students see.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// Create persists an exam, its questions, and the solution key in one
// transaction. Nothing is persisted if any part fails.
func (r *ExamRepository) Create(ctx context.Context, exam *model.Exam, key model.SolutionKey, entryCodeHash []byte) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO exams (id, title, examiner_email, duration_minutes, pass_threshold, entry_code_hash)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at`,
		exam.ID, exam.Title, exam.ExaminerEmail, exam.DurationMinutes, exam.PassThreshold, entryCodeHash,
	).Scan(&exam.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert exam: %w", err)
	}

	rows := make([][]interface{}, 0, len(exam.Questions))
	for i, q := range exam.Questions {
		optionsJSON, err := json.Marshal(q.Options)
		if err != nil {
			return fmt.Errorf("marshal options for %s: %w", q.ID, err)
		}
		rows = append(rows, []interface{}{exam.ID, q.ID, q.Text, optionsJSON, key[q.ID], i})
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"questions"},
		[]string{"exam_id", "id", "question_text", "options", "correct_index", "order_num"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("insert questions: %w", err)
	}

	return tx.Commit(ctx)
}

// GetByID loads an exam with its questions (in stored order) and solution key.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, model.SolutionKey, error) {
	exam := &model.Exam{ID: id}
	err := r.pool.QueryRow(ctx,
		`SELECT title, examiner_email, duration_minutes, pass_threshold, created_at
		 FROM exams WHERE id = $1`, id,
	).Scan(&exam.Title, &exam.ExaminerEmail, &exam.DurationMinutes, &exam.PassThreshold, &exam.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("select exam: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, question_text, options, correct_index
		 FROM questions WHERE exam_id = $1 ORDER BY order_num`, id,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("select questions: %w", err)
	}
	defer rows.Close()

	key := make(model.SolutionKey)
	for rows.Next() {
		var (
			q           model.Question
			optionsJSON []byte
			correct     int
		)
		if err := rows.Scan(&q.ID, &q.Text, &optionsJSON, &correct); err != nil {
			return nil, nil, fmt.Errorf("scan question: %w", err)
		}
		if err := json.Unmarshal(optionsJSON, &q.Options); err != nil {
			return nil, nil, fmt.Errorf("unmarshal options for %s: %w", q.ID, err)
		}
		exam.Questions = append(exam.Questions, q)
		key[q.ID] = correct
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	return exam, key, nil
}

// GetEntryCodeHash returns the bcrypt hash of the exam's entry code, or nil
// when the exam has no entry code.
func (r *ExamRepository) GetEntryCodeHash(ctx context.Context, id uuid.UUID) ([]byte, error) {
	var hash []byte
	err := r.pool.QueryRow(ctx,
		`SELECT entry_code_hash FROM exams WHERE id = $1`, id,
	).Scan(&hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select entry code hash: %w", err)
	}
	return hash, nil
}
