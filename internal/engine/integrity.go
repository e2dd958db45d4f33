package engine

import (
	"sync"
	"time"
)

// SignalKind classifies environment signals reported by the exam client.
type SignalKind string

const (
	// SignalVisibilityLoss — the exam document/tab became hidden.
	SignalVisibilityLoss SignalKind = "visibility_loss"
	// SignalFocusLoss — the exam window lost input focus.
	SignalFocusLoss SignalKind = "focus_loss"
	// SignalFullscreenExit — the client left exclusive full-screen mode.
	SignalFullscreenExit SignalKind = "fullscreen_exit"
	// SignalNavAttempt — the student tried to navigate away or close the
	// window. Not a violation by itself: the client is told to surface a
	// confirmation prompt instead. Deterrence, not a guarantee.
	SignalNavAttempt SignalKind = "nav_attempt"
)

// Violation reports whether a signal of this kind terminates the attempt.
func (k SignalKind) Violation() bool {
	switch k {
	case SignalVisibilityLoss, SignalFocusLoss, SignalFullscreenExit:
		return true
	}
	return false
}

// Signal is one environment event observed by the exam client.
type Signal struct {
	Kind SignalKind `json:"kind"`
	At   time.Time  `json:"at"`
}

// SignalSource delivers environment signals to an IntegrityMonitor. The
// production source is fed by the session's WebSocket stream; tests feed a
// SignalBuffer directly.
type SignalSource interface {
	Signals() <-chan Signal
}

// SignalBuffer is a channel-backed SignalSource. Emit never blocks; when the
// buffer is full the signal is dropped (a stalled consumer means the session
// is already tearing down).
type SignalBuffer struct {
	ch chan Signal
}

// NewSignalBuffer creates an empty signal source.
func NewSignalBuffer() *SignalBuffer {
	return &SignalBuffer{ch: make(chan Signal, 16)}
}

// Signals implements SignalSource.
func (b *SignalBuffer) Signals() <-chan Signal { return b.ch }

// Emit queues a signal of the given kind.
func (b *SignalBuffer) Emit(kind SignalKind) {
	select {
	case b.ch <- Signal{Kind: kind, At: time.Now()}:
	default:
	}
}

// IntegrityMonitor watches a SignalSource while armed and reports the first
// violation it observes. One violation per arm/disarm cycle: the monitor
// self-disarms after reporting, so simultaneous signals cannot produce
// duplicate callbacks.
type IntegrityMonitor struct {
	source SignalSource

	// onLeaveAttempt is invoked for nav/close attempts while armed so the
	// client can be prompted to stay. Best-effort.
	onLeaveAttempt func()

	mu    sync.Mutex
	armed bool
	stop  chan struct{}
	done  chan struct{}
}

// NewIntegrityMonitor creates a disarmed monitor over the given source.
func NewIntegrityMonitor(source SignalSource, onLeaveAttempt func()) *IntegrityMonitor {
	return &IntegrityMonitor{source: source, onLeaveAttempt: onLeaveAttempt}
}

// Arm starts watching for violations. onViolation runs on the monitor
// goroutine and must not block. Arming an armed monitor is a no-op.
func (m *IntegrityMonitor) Arm(onViolation func(Signal)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.armed {
		return
	}
	m.armed = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})

	go m.watch(onViolation, m.stop, m.done)
}

func (m *IntegrityMonitor) watch(onViolation func(Signal), stop, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-stop:
			return
		case sig, ok := <-m.source.Signals():
			if !ok {
				return
			}
			if sig.Kind == SignalNavAttempt {
				if m.onLeaveAttempt != nil {
					m.onLeaveAttempt()
				}
				continue
			}
			if sig.Kind.Violation() {
				onViolation(sig)
				return // first violation wins; self-disarm
			}
		}
	}
}

// Disarm stops violation reporting. Idempotent; once it returns no further
// violations are delivered regardless of environment signals.
func (m *IntegrityMonitor) Disarm() {
	m.mu.Lock()
	if !m.armed {
		m.mu.Unlock()
		return
	}
	m.armed = false
	close(m.stop)
	done := m.done
	m.mu.Unlock()

	<-done
}
