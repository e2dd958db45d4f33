package model

// ResultStatus is the pass/fail verdict of a scored attempt.
type ResultStatus string

const (
	ResultStatusPass ResultStatus = "PASS"
	ResultStatusFail ResultStatus = "FAIL"
)

// ExamResult is the immutable outcome of one exam attempt. Terminated is
// true when the attempt ended on an integrity violation rather than a
// submit or timer expiry.
type ExamResult struct {
	Score        int          `json:"score"`
	TotalMarks   int          `json:"total_marks"`
	ResultStatus ResultStatus `json:"result_status"`
	Terminated   bool         `json:"terminated"`
}
