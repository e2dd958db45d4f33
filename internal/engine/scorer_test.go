package engine

import (
	"testing"

	"github.com/google/uuid"

	"github.com/invigo/invigo-backend/internal/model"
)

func threeQuestionExam() (*model.Exam, model.SolutionKey) {
	exam := &model.Exam{
		ID:              uuid.New(),
		Title:           "Sample",
		DurationMinutes: 10,
		Questions: []model.Question{
			{ID: "q1", Text: "one", Options: []string{"a", "b", "c"}},
			{ID: "q2", Text: "two", Options: []string{"a", "b", "c"}},
			{ID: "q3", Text: "three", Options: []string{"a", "b", "c"}},
		},
	}
	return exam, model.SolutionKey{"q1": 0, "q2": 1, "q3": 2}
}

func TestScore(t *testing.T) {
	exam, key := threeQuestionExam()

	tests := []struct {
		name       string
		responses  map[string]int
		threshold  float64
		wantScore  int
		wantStatus model.ResultStatus
	}{
		{
			name:       "all correct is full marks and pass",
			responses:  map[string]int{"q1": 0, "q2": 1, "q3": 2},
			threshold:  0.5,
			wantScore:  3,
			wantStatus: model.ResultStatusPass,
		},
		{
			name:       "empty responses score zero",
			responses:  map[string]int{},
			threshold:  0.5,
			wantScore:  0,
			wantStatus: model.ResultStatusFail,
		},
		{
			name:       "two of three fails a 0.7 threshold",
			responses:  map[string]int{"q1": 0, "q2": 1, "q3": 1},
			threshold:  0.7,
			wantScore:  2,
			wantStatus: model.ResultStatusFail,
		},
		{
			name:       "two of three passes a 0.5 threshold",
			responses:  map[string]int{"q1": 0, "q2": 1, "q3": 1},
			threshold:  0.5,
			wantScore:  2,
			wantStatus: model.ResultStatusPass,
		},
		{
			name:       "threshold boundary is inclusive",
			responses:  map[string]int{"q1": 0, "q2": 1},
			threshold:  2.0 / 3.0,
			wantScore:  2,
			wantStatus: model.ResultStatusPass,
		},
		{
			name:       "wrong answers earn nothing",
			responses:  map[string]int{"q1": 2, "q2": 0, "q3": 0},
			threshold:  0.5,
			wantScore:  0,
			wantStatus: model.ResultStatusFail,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Score(exam, key, tc.responses, false, tc.threshold)
			if got.Score != tc.wantScore {
				t.Fatalf("score = %d, want %d", got.Score, tc.wantScore)
			}
			if got.TotalMarks != len(exam.Questions) {
				t.Fatalf("total = %d, want %d", got.TotalMarks, len(exam.Questions))
			}
			if got.ResultStatus != tc.wantStatus {
				t.Fatalf("status = %s, want %s", got.ResultStatus, tc.wantStatus)
			}
			if got.Terminated {
				t.Fatal("terminated flag must mirror the caller's input")
			}
		})
	}
}

func TestScoreIsDeterministic(t *testing.T) {
	exam, key := threeQuestionExam()
	responses := map[string]int{"q1": 0, "q2": 2}

	first := Score(exam, key, responses, true, 0.5)
	for i := 0; i < 10; i++ {
		again := Score(exam, key, responses, true, 0.5)
		if *again != *first {
			t.Fatalf("run %d: result %+v differs from %+v", i, again, first)
		}
	}
}

func TestScoreCarriesTerminatedFlag(t *testing.T) {
	exam, key := threeQuestionExam()

	// A terminated attempt is still scored; remaining time is irrelevant.
	got := Score(exam, key, map[string]int{"q1": 0, "q2": 1, "q3": 2}, true, 0.5)
	if !got.Terminated {
		t.Fatal("terminated flag lost")
	}
	if got.Score != 3 {
		t.Fatalf("score = %d, want 3", got.Score)
	}
}
