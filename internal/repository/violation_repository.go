package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ViolationRecord is one recorded integrity violation.
type ViolationRecord struct {
	SessionID   uuid.UUID `json:"session_id"`
	StudentName string    `json:"student_name"`
	Kind        string    `json:"kind"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// ViolationRepository reads the integrity violation log. Writes go through
// the violation worker's bulk path.
type ViolationRepository struct {
	pool *pgxpool.Pool
}

// NewViolationRepository creates a new ViolationRepository.
func NewViolationRepository(pool *pgxpool.Pool) *ViolationRepository {
	return &ViolationRepository{pool: pool}
}

// ListByExam returns all violations recorded for an exam, newest first.
func (r *ViolationRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]ViolationRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT session_id, student_name, kind, recorded_at
		 FROM exam_violations
		 WHERE exam_id = $1
		 ORDER BY recorded_at DESC`, examID,
	)
	if err != nil {
		return nil, fmt.Errorf("select violations: %w", err)
	}
	defer rows.Close()

	var records []ViolationRecord
	for rows.Next() {
		var rec ViolationRecord
		if err := rows.Scan(&rec.SessionID, &rec.StudentName, &rec.Kind, &rec.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan violation: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
