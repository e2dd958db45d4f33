package engine

import "github.com/invigo/invigo-backend/internal/model"

// DefaultPassThreshold is the fraction of total marks required to PASS when
// an exam does not configure its own threshold. No universal default exists
// for this policy; 0.5 is the documented project choice.
const DefaultPassThreshold = 0.5

// Score grades submitted responses against the solution key. Each exact
// match earns one mark; unanswered or wrong earns zero. There is no partial
// credit and no negative marking. The function is pure and deterministic.
//
// The terminated flag is supplied by the caller: scoring itself does not
// care how the attempt ended.
func Score(exam *model.Exam, key model.SolutionKey, responses map[string]int, terminated bool, passThreshold float64) *model.ExamResult {
	if passThreshold <= 0 {
		passThreshold = DefaultPassThreshold
	}

	score := 0
	for _, q := range exam.Questions {
		selected, answered := responses[q.ID]
		if answered && selected == key[q.ID] {
			score++
		}
	}

	total := len(exam.Questions)
	status := model.ResultStatusFail
	if total > 0 && float64(score)/float64(total) >= passThreshold {
		status = model.ResultStatusPass
	}

	return &model.ExamResult{
		Score:        score,
		TotalMarks:   total,
		ResultStatus: status,
		Terminated:   terminated,
	}
}
