package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Question is a single multiple-choice question with exactly one correct option.
// Its ID is unique within the owning exam.
type Question struct {
	ID      string   `json:"id"`
	Text    string   `json:"text"`
	Options []string `json:"options"`
}

// SolutionKey maps a question ID to the 0-based index of its correct option.
// A key is only valid for one specific option ordering.
type SolutionKey map[string]int

// Exam is an immutable exam definition. Options are shuffled once at
// creation, so the stored solution key matches the stored option order.
type Exam struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	ExaminerEmail   string     `json:"examiner_email"`
	DurationMinutes int        `json:"duration_minutes"`
	PassThreshold   float64    `json:"pass_threshold"`
	Questions       []Question `json:"questions"`
	CreatedAt       time.Time  `json:"created_at"`
}

// ErrInvalidSolutionKey indicates a question set and solution key that do not
// satisfy the one-to-one mapping invariant.
var ErrInvalidSolutionKey = errors.New("solution key does not match question set")

// ValidateSolutionKey checks that every question has at least two options,
// question IDs are unique, and the key maps each question ID to exactly one
// in-range option index (and nothing else).
func ValidateSolutionKey(questions []Question, key SolutionKey) error {
	if len(questions) == 0 {
		return fmt.Errorf("%w: empty question set", ErrInvalidSolutionKey)
	}

	seen := make(map[string]struct{}, len(questions))
	for _, q := range questions {
		if q.ID == "" {
			return fmt.Errorf("%w: question with empty id", ErrInvalidSolutionKey)
		}
		if _, dup := seen[q.ID]; dup {
			return fmt.Errorf("%w: duplicate question id %q", ErrInvalidSolutionKey, q.ID)
		}
		seen[q.ID] = struct{}{}

		if len(q.Options) < 2 {
			return fmt.Errorf("%w: question %q has %d options, need at least 2", ErrInvalidSolutionKey, q.ID, len(q.Options))
		}

		idx, ok := key[q.ID]
		if !ok {
			return fmt.Errorf("%w: question %q missing from key", ErrInvalidSolutionKey, q.ID)
		}
		if idx < 0 || idx >= len(q.Options) {
			return fmt.Errorf("%w: question %q key index %d out of range", ErrInvalidSolutionKey, q.ID, idx)
		}
	}

	if len(key) != len(questions) {
		return fmt.Errorf("%w: key has %d entries for %d questions", ErrInvalidSolutionKey, len(key), len(questions))
	}
	return nil
}

// Question returns the question with the given ID, or nil if absent.
func (e *Exam) Question(id string) *Question {
	for i := range e.Questions {
		if e.Questions[i].ID == id {
			return &e.Questions[i]
		}
	}
	return nil
}

// ExamPayload is the cached student-facing view of an exam: no solution key,
// no examiner data.
type ExamPayload struct {
	ExamID          uuid.UUID  `json:"exam_id"`
	Title           string     `json:"title"`
	DurationMinutes int        `json:"duration_minutes"`
	Questions       []Question `json:"questions"`
}

// Payload builds the student-facing view of the exam.
func (e *Exam) Payload() *ExamPayload {
	return &ExamPayload{
		ExamID:          e.ID,
		Title:           e.Title,
		DurationMinutes: e.DurationMinutes,
		Questions:       e.Questions,
	}
}

// CreateExamRequest is the multipart form payload for creating a new exam.
// The question paper document travels alongside as the "document" file part.
type CreateExamRequest struct {
	Title           string   `form:"title" binding:"required,min=3,max=255"`
	DurationMinutes int      `form:"duration_minutes" binding:"required,min=1,max=480"`
	ExaminerEmail   string   `form:"examiner_email" binding:"required,email"`
	PassThreshold   *float64 `form:"pass_threshold" binding:"omitempty,gt=0,lte=1"`
	EntryCode       string   `form:"entry_code" binding:"omitempty,min=4,max=20"`
}
