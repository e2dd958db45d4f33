package handler

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/invigo/invigo-backend/internal/engine"
	"github.com/invigo/invigo-backend/internal/model"
	"github.com/invigo/invigo-backend/internal/service"
	ws "github.com/invigo/invigo-backend/internal/websocket"
)

type stubClock struct {
	mu      sync.Mutex
	tickers []chan time.Time
}

func (c *stubClock) NewTicker(d time.Duration) engine.Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 256)
	c.tickers = append(c.tickers, ch)
	return &stubTicker{ch: ch}
}

// Tick advances every ticker n times without blocking.
func (c *stubClock) Tick(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < n; i++ {
		for _, ch := range c.tickers {
			select {
			case ch <- time.Time{}:
			default:
			}
		}
	}
}

type stubTicker struct{ ch chan time.Time }

func (t *stubTicker) C() <-chan time.Time { return t.ch }
func (t *stubTicker) Stop()               {}

type stubResolver struct{ live *service.LiveSession }

func (r *stubResolver) Resolve(id uuid.UUID) (*service.LiveSession, error) {
	if r.live != nil && r.live.Engine.ID == id {
		return r.live, nil
	}
	return nil, service.ErrSessionNotFound
}

// streamFixture is a started one-minute session behind a WS test server.
type streamFixture struct {
	clock  *stubClock
	live   *service.LiveSession
	server *httptest.Server
	conn   *websocket.Conn
}

func newStreamFixture(t *testing.T) *streamFixture {
	t.Helper()

	exam := &model.Exam{
		ID:              uuid.New(),
		Title:           "Stream test",
		DurationMinutes: 1,
		PassThreshold:   0.5,
		Questions: []model.Question{
			{ID: "q1", Text: "First?", Options: []string{"a", "b"}},
		},
	}
	key := model.SolutionKey{"q1": 0}

	clock := &stubClock{}
	signals := engine.NewSignalBuffer()
	sess := engine.NewSession(uuid.New(), exam, key, engine.SessionConfig{
		Clock:   clock,
		Signals: signals,
		Log:     zerolog.Nop(),
	})
	t.Cleanup(sess.Close)

	if err := sess.Register("Ada", "XII-A"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := sess.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	live := &service.LiveSession{Engine: sess, Signals: signals, ExamID: exam.ID}

	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewWSHandler(&stubResolver{live: live}, zerolog.Nop(), nil)
	r.GET("/ws/v1/sessions/:session_id/stream", h.SessionStream)

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/v1/sessions/" + sess.ID.String() + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return &streamFixture{clock: clock, live: live, server: server, conn: conn}
}

type eventFrame struct {
	Event      string `json:"event"`
	Remaining  int    `json:"remaining"`
	Terminated bool   `json:"terminated"`
}

func (f *streamFixture) readFrame(t *testing.T) eventFrame {
	t.Helper()
	f.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var frame eventFrame
	if err := f.conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

// Ticks and pong replies share one connection; this drives both writers at
// once and checks every expected frame still arrives intact.
func TestSessionStreamConcurrentPingsAndTicks(t *testing.T) {
	f := newStreamFixture(t)

	const pings = 20

	// Client pings from one goroutine while the test drives ticks, so the
	// note pump and the read loop's pong replies write concurrently.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < pings; i++ {
			if err := f.conn.WriteJSON(ws.RequestPayload{Action: ws.ActionPing}); err != nil {
				return
			}
		}
	}()

	for i := 0; i < 10; i++ {
		f.clock.Tick(1)
	}

	pongs, ticks := 0, 0
	deadline := time.Now().Add(5 * time.Second)
	for (pongs < pings || ticks == 0) && time.Now().Before(deadline) {
		switch frame := f.readFrame(t); frame.Event {
		case string(ws.EventPong):
			pongs++
		case string(ws.EventTick):
			ticks++
			if frame.Remaining <= 0 || frame.Remaining >= 60 {
				t.Errorf("tick remaining = %d, want within (0, 60)", frame.Remaining)
			}
		default:
			t.Fatalf("unexpected event %q", frame.Event)
		}
	}
	<-done

	if pongs != pings {
		t.Errorf("pongs = %d, want %d", pongs, pings)
	}
	if ticks == 0 {
		t.Error("no tick frames received")
	}
}

func TestSessionStreamViolationSendsFinal(t *testing.T) {
	f := newStreamFixture(t)

	if err := f.conn.WriteJSON(ws.RequestPayload{Action: ws.ActionSignal, Signal: "focus_loss"}); err != nil {
		t.Fatalf("write signal: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		frame := f.readFrame(t)
		if frame.Event != string(ws.EventFinal) {
			continue
		}
		if !frame.Terminated {
			t.Error("final frame not marked terminated")
		}
		return
	}
	t.Fatal("no final frame received after violation")
}

func TestSessionStreamRejectsUnknownSession(t *testing.T) {
	f := newStreamFixture(t)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/v1/sessions/" + uuid.NewString() + "/stream"
	if _, resp, err := websocket.DefaultDialer.Dial(url, nil); err == nil {
		t.Error("expected dial to fail for unknown session")
	} else if resp != nil && resp.StatusCode != 404 {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
