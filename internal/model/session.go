package model

// SessionStatus enumerates the states of an exam attempt.
type SessionStatus string

const (
	SessionStatusIdle       SessionStatus = "IDLE"
	SessionStatusRegistered SessionStatus = "REGISTERED"
	SessionStatusInProgress SessionStatus = "IN_PROGRESS"
	SessionStatusReviewing  SessionStatus = "REVIEWING"
	SessionStatusSubmitted  SessionStatus = "SUBMITTED"
	SessionStatusTerminated SessionStatus = "TERMINATED"
)

// Terminal reports whether no further session transitions are possible.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusSubmitted || s == SessionStatusTerminated
}

// SessionState is the mutable state of one exam attempt. It is owned
// exclusively by the session controller and mutated only through its
// transition operations.
type SessionState struct {
	StudentName          string         `json:"student_name"`
	StudentClass         string         `json:"student_class"`
	Responses            map[string]int `json:"responses"`
	CurrentIndex         int            `json:"current_index"`
	Status               SessionStatus  `json:"status"`
	TimeRemainingSeconds int            `json:"time_remaining_seconds"`
}

// Clone returns a deep copy safe to hand outside the controller.
func (s *SessionState) Clone() *SessionState {
	cp := *s
	cp.Responses = make(map[string]int, len(s.Responses))
	for k, v := range s.Responses {
		cp.Responses[k] = v
	}
	return &cp
}

// RegisterSessionRequest is the payload for registering an exam attempt.
// Student identity is a free-text claim; there are no accounts.
type RegisterSessionRequest struct {
	StudentName  string `json:"student_name" binding:"required,min=1,max=255"`
	StudentClass string `json:"student_class" binding:"required,min=1,max=64"`
	EntryCode    string `json:"entry_code" binding:"omitempty,min=4,max=20"`
}

// AnswerRequest records the selected option for one question.
type AnswerRequest struct {
	QuestionID  string `json:"question_id" binding:"required"`
	OptionIndex *int   `json:"option_index" binding:"required,min=0"`
}

// NavigateRequest moves the current question cursor by a signed delta.
// Zero is a valid no-op, so the field carries no required binding.
type NavigateRequest struct {
	Delta int `json:"delta"`
}

// ReviewRequest enters (active=true) or exits (active=false) review mode.
type ReviewRequest struct {
	Active *bool `json:"active" binding:"required"`
}
