package engine

import "time"

// Clock abstracts the tick source so tests can drive the countdown manually.
type Clock interface {
	NewTicker(d time.Duration) Ticker
}

// Ticker is the minimal surface of time.Ticker the timer needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type systemClock struct{}

func (systemClock) NewTicker(d time.Duration) Ticker {
	return &systemTicker{t: time.NewTicker(d)}
}

type systemTicker struct{ t *time.Ticker }

func (s *systemTicker) C() <-chan time.Time { return s.t.C }
func (s *systemTicker) Stop()               { s.t.Stop() }

// SystemClock ticks off the wall clock.
var SystemClock Clock = systemClock{}
