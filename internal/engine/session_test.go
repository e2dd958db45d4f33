package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/invigo/invigo-backend/internal/model"
)

type captureReporter struct {
	mu       sync.Mutex
	failures int
	calls    int
	subs     []*Submission
}

func (r *captureReporter) Report(ctx context.Context, sub *Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.failures > 0 {
		r.failures--
		return errors.New("store unreachable")
	}
	r.subs = append(r.subs, sub)
	return nil
}

func (r *captureReporter) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *captureReporter) submitted() []*Submission {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Submission(nil), r.subs...)
}

type sessionFixture struct {
	session  *Session
	clock    *fakeClock
	signals  *SignalBuffer
	reporter *captureReporter
}

func newFixture(t *testing.T, threshold float64) *sessionFixture {
	t.Helper()
	exam, key := threeQuestionExam()
	exam.DurationMinutes = 1
	exam.PassThreshold = threshold

	f := &sessionFixture{
		clock:    newFakeClock(),
		signals:  NewSignalBuffer(),
		reporter: &captureReporter{},
	}
	f.session = NewSession(uuid.New(), exam, key, SessionConfig{
		PassThreshold: threshold,
		Clock:         f.clock,
		Signals:       f.signals,
		Reporter:      f.reporter,
		Log:           zerolog.Nop(),
	})
	t.Cleanup(f.session.Close)
	return f
}

func (f *sessionFixture) mustStart(t *testing.T) {
	t.Helper()
	if err := f.session.Register("Ada Lovelace", "XII-A"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := f.session.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
}

func waitResult(t *testing.T, s *Session) *model.ExamResult {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if res, ok := s.Result(); ok {
			return res
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("timed out waiting for terminal result")
	return nil
}

func TestSessionTransitionPreconditions(t *testing.T) {
	f := newFixture(t, 0.5)
	s := f.session

	if err := s.Start(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("start before register: %v", err)
	}
	if err := s.Answer("q1", 0); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("answer while idle: %v", err)
	}
	if err := s.Register("", "XII-A"); !errors.Is(err, ErrIncompleteRegistration) {
		t.Fatalf("register with empty name: %v", err)
	}
	if err := s.Register("Ada", ""); !errors.Is(err, ErrIncompleteRegistration) {
		t.Fatalf("register with empty class: %v", err)
	}

	if err := s.Register("Ada", "XII-A"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := s.Register("Ada", "XII-A"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("double register: %v", err)
	}
	if err := s.ExitReview(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("exit review while registered: %v", err)
	}

	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	state, err := s.State()
	if err != nil {
		t.Fatal(err)
	}
	if state.Status != model.SessionStatusInProgress {
		t.Fatalf("status = %s, want IN_PROGRESS", state.Status)
	}
	if state.TimeRemainingSeconds != 60 {
		t.Fatalf("remaining = %d, want 60", state.TimeRemainingSeconds)
	}
	if state.CurrentIndex != 0 {
		t.Fatalf("current index = %d, want 0", state.CurrentIndex)
	}
}

func TestSessionAnswerValidation(t *testing.T) {
	f := newFixture(t, 0.5)
	f.mustStart(t)
	s := f.session

	if err := s.Answer("ghost", 0); !errors.Is(err, ErrUnknownQuestion) {
		t.Fatalf("unknown question: %v", err)
	}
	if err := s.Answer("q1", 3); !errors.Is(err, ErrOptionOutOfRange) {
		t.Fatalf("index too large: %v", err)
	}
	if err := s.Answer("q1", -1); !errors.Is(err, ErrOptionOutOfRange) {
		t.Fatalf("negative index: %v", err)
	}

	state, _ := s.State()
	if len(state.Responses) != 0 {
		t.Fatalf("rejected answers were stored: %v", state.Responses)
	}

	if err := s.Answer("q1", 2); err != nil {
		t.Fatalf("valid answer: %v", err)
	}
	if err := s.Answer("q1", 0); err != nil {
		t.Fatalf("re-answer: %v", err)
	}
	state, _ = s.State()
	if got := state.Responses["q1"]; got != 0 {
		t.Fatalf("responses[q1] = %d, want 0 (last answer wins)", got)
	}
}

func TestSessionNavigateClamps(t *testing.T) {
	f := newFixture(t, 0.5)
	f.mustStart(t)
	s := f.session

	steps := []struct {
		delta int
		want  int
	}{
		{delta: 1, want: 1},
		{delta: 5, want: 2},  // clamped to last question
		{delta: -10, want: 0}, // clamped to first question
		{delta: 2, want: 2},
	}
	for _, step := range steps {
		if err := s.Navigate(step.delta); err != nil {
			t.Fatalf("navigate(%d): %v", step.delta, err)
		}
		state, _ := s.State()
		if state.CurrentIndex != step.want {
			t.Fatalf("navigate(%d): index = %d, want %d", step.delta, state.CurrentIndex, step.want)
		}
	}
}

func TestSessionReviewRoundTrip(t *testing.T) {
	f := newFixture(t, 0.5)
	f.mustStart(t)
	s := f.session

	if err := s.EnterReview(); err != nil {
		t.Fatalf("enter review: %v", err)
	}
	state, _ := s.State()
	if state.Status != model.SessionStatusReviewing {
		t.Fatalf("status = %s, want REVIEWING", state.Status)
	}

	// Answers and navigation stay available while reviewing.
	if err := s.Answer("q2", 1); err != nil {
		t.Fatalf("answer in review: %v", err)
	}
	if err := s.EnterReview(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("double enter review: %v", err)
	}

	if err := s.ExitReview(); err != nil {
		t.Fatalf("exit review: %v", err)
	}
	state, _ = s.State()
	if state.Status != model.SessionStatusInProgress {
		t.Fatalf("status = %s, want IN_PROGRESS", state.Status)
	}
}

// Two of three correct: FAIL at 0.7, PASS at 0.5.
func TestSessionSubmitScoresAgainstThreshold(t *testing.T) {
	for _, tc := range []struct {
		threshold float64
		want      model.ResultStatus
	}{
		{threshold: 0.7, want: model.ResultStatusFail},
		{threshold: 0.5, want: model.ResultStatusPass},
	} {
		f := newFixture(t, tc.threshold)
		f.mustStart(t)
		s := f.session

		for qid, idx := range map[string]int{"q1": 0, "q2": 1, "q3": 1} {
			if err := s.Answer(qid, idx); err != nil {
				t.Fatalf("answer %s: %v", qid, err)
			}
		}

		result, err := s.Submit()
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		if result.Score != 2 || result.TotalMarks != 3 {
			t.Fatalf("score = %d/%d, want 2/3", result.Score, result.TotalMarks)
		}
		if result.ResultStatus != tc.want {
			t.Fatalf("threshold %.1f: status = %s, want %s", tc.threshold, result.ResultStatus, tc.want)
		}
		if result.Terminated {
			t.Fatal("user submit must not be terminated")
		}
	}
}

func TestSessionSubmitIsIdempotent(t *testing.T) {
	f := newFixture(t, 0.5)
	f.mustStart(t)
	s := f.session

	first, err := s.Submit()
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	again, err := s.Submit()
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if first != again {
		t.Fatal("second submit must return the stored result")
	}

	waitFor(t, "single report", func() bool { return f.reporter.callCount() >= 1 })
	time.Sleep(20 * time.Millisecond)
	if got := f.reporter.callCount(); got != 1 {
		t.Fatalf("reporter called %d times, want 1", got)
	}
}

func TestSessionTerminalStateFreezesEverything(t *testing.T) {
	f := newFixture(t, 0.5)
	f.mustStart(t)
	s := f.session

	if err := s.Answer("q1", 0); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Submit(); err != nil {
		t.Fatal(err)
	}

	before, _ := s.State()

	if err := s.Answer("q2", 1); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("answer after submit: %v", err)
	}
	if err := s.Navigate(1); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("navigate after submit: %v", err)
	}
	if err := s.EnterReview(); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("review after submit: %v", err)
	}

	after, _ := s.State()
	if after.Status != before.Status || after.CurrentIndex != before.CurrentIndex || len(after.Responses) != len(before.Responses) {
		t.Fatalf("state changed after terminal transition: %+v -> %+v", before, after)
	}

	waitFor(t, "report", func() bool { return f.reporter.callCount() >= 1 })
	time.Sleep(20 * time.Millisecond)
	if got := f.reporter.callCount(); got != 1 {
		t.Fatalf("reporter called %d times, want 1", got)
	}
}

// One-minute exam, 60 simulated ticks, no user action: the session
// auto-submits with whatever responses existed at tick 60.
func TestSessionAutoSubmitsOnExpiry(t *testing.T) {
	f := newFixture(t, 0.5)
	f.mustStart(t)
	s := f.session

	if err := s.Answer("q1", 0); err != nil {
		t.Fatal(err)
	}

	f.clock.Tick(60)

	result := waitResult(t, s)
	if result.Terminated {
		t.Fatal("timer expiry must submit, not terminate")
	}
	if result.Score != 1 {
		t.Fatalf("score = %d, want 1", result.Score)
	}

	state, _ := s.State()
	if state.Status != model.SessionStatusSubmitted {
		t.Fatalf("status = %s, want SUBMITTED", state.Status)
	}
	if state.TimeRemainingSeconds != 0 {
		t.Fatalf("remaining = %d, want 0", state.TimeRemainingSeconds)
	}
}

// Visibility loss mid-exam terminates regardless of remaining time.
func TestSessionViolationTerminates(t *testing.T) {
	f := newFixture(t, 0.5)
	f.mustStart(t)
	s := f.session

	f.clock.Tick(15) // 45 seconds remain
	f.signals.Emit(SignalVisibilityLoss)

	result := waitResult(t, s)
	if !result.Terminated {
		t.Fatal("violation must set terminated=true")
	}

	state, _ := s.State()
	if state.Status != model.SessionStatusTerminated {
		t.Fatalf("status = %s, want TERMINATED", state.Status)
	}

	waitFor(t, "report", func() bool { return len(f.reporter.submitted()) == 1 })
	sub := f.reporter.submitted()[0]
	if !sub.Result.Terminated {
		t.Fatal("reported submission lost the terminated flag")
	}
}

// When timer expiry and a violation are pending in the same loop wakeup,
// the violation wins: an active cheating signal outranks the clock.
func TestSessionSimultaneousExpiryAndViolation(t *testing.T) {
	f := newFixture(t, 0.5)
	f.mustStart(t)
	s := f.session

	// Park the event loop so both events queue up before either is seen.
	started := make(chan struct{})
	gate := make(chan struct{})
	go s.do(func() error {
		close(started)
		<-gate
		return nil
	})
	<-started

	s.expired <- struct{}{}
	s.violations <- Signal{Kind: SignalFullscreenExit, At: time.Now()}
	close(gate)

	result := waitResult(t, s)
	if !result.Terminated {
		t.Fatal("violation must take precedence over simultaneous expiry")
	}

	waitFor(t, "report", func() bool { return f.reporter.callCount() >= 1 })
	time.Sleep(20 * time.Millisecond)
	if got := f.reporter.callCount(); got != 1 {
		t.Fatalf("reporter called %d times, want exactly one terminal transition", got)
	}
}

func TestSessionReportRetriesOnce(t *testing.T) {
	f := newFixture(t, 0.5)
	f.reporter.failures = 1
	f.mustStart(t)

	if _, err := f.session.Submit(); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "retried report", func() bool { return len(f.reporter.submitted()) == 1 })
	if got := f.reporter.callCount(); got != 2 {
		t.Fatalf("reporter called %d times, want 2 (initial + retry)", got)
	}
}

func TestSessionNotesStreamTicksAndFinal(t *testing.T) {
	f := newFixture(t, 0.5)
	f.mustStart(t)
	s := f.session

	f.clock.Tick(1)

	var sawTick bool
	deadline := time.After(2 * time.Second)
	for !sawTick {
		select {
		case n := <-s.Notes():
			if n.Kind == NoteTick && n.Remaining == 59 {
				sawTick = true
			}
		case <-deadline:
			t.Fatal("no tick note received")
		}
	}

	f.signals.Emit(SignalNavAttempt)
	waitFor(t, "leave prompt note", func() bool {
		select {
		case n := <-s.Notes():
			return n.Kind == NoteLeavePrompt
		default:
			return false
		}
	})

	if _, err := s.Submit(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "final note", func() bool {
		select {
		case n := <-s.Notes():
			return n.Kind == NoteFinal && n.Result != nil
		default:
			return false
		}
	})
}

func TestSessionCloseReleasesWithoutResult(t *testing.T) {
	f := newFixture(t, 0.5)
	f.mustStart(t)
	s := f.session

	s.Close()
	s.Close() // idempotent

	if _, ok := s.Result(); ok {
		t.Fatal("forced teardown must not fabricate a result")
	}
	if err := s.Answer("q1", 0); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("answer after close: %v", err)
	}
	if got := f.reporter.callCount(); got != 0 {
		t.Fatalf("reporter called %d times after plain teardown, want 0", got)
	}
}
