package feed

import (
	"math"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/signalsfoundry/thyrannic-sky/calendar"
	"github.com/signalsfoundry/thyrannic-sky/core"
	"github.com/signalsfoundry/thyrannic-sky/model"
)

type fakeClock struct {
	mu  sync.Mutex
	now calendar.DateTime
}

func (f *fakeClock) Now() calendar.DateTime {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) SetTime(t calendar.DateTime) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

type gaugeRecorder struct {
	mu   sync.Mutex
	last int
}

func (g *gaugeRecorder) SetFeedClients(n int) {
	g.mu.Lock()
	g.last = n
	g.mu.Unlock()
}

func (g *gaugeRecorder) value() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

func connect(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	waitFor(t, func() bool { return hub.ClientCount() == 1 })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return msg
}

func sampleFrame(timeValue float64) core.Frame {
	return core.NewFrame(timeValue, []model.Body{{
		ID:       "sun",
		Name:     "Sun",
		Position: model.ComputedPosition{RightAscension: 12, ZenithAngle: 30},
	}})
}

func TestBroadcastReachesClients(t *testing.T) {
	gauge := &gaugeRecorder{}
	hub := NewHub(WithClientGauge(gauge))
	conn := connect(t, hub)

	waitFor(t, func() bool { return gauge.value() == 1 })
	if err := hub.Broadcast(sampleFrame(36)); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}

	msg := readMessage(t, conn)
	if msg.Type != "frame" || msg.Frame == nil {
		t.Fatalf("message = %+v, want frame", msg)
	}
	if msg.Frame.TimeValue != 36 || msg.Frame.Bodies[0].Altitude != 60 {
		t.Fatalf("frame = %+v", msg.Frame)
	}

	_ = conn.Close()
	waitFor(t, func() bool { return hub.ClientCount() == 0 && gauge.value() == 0 })
}

func TestBroadcastRejectsNonFiniteFrame(t *testing.T) {
	hub := NewHub()
	if err := hub.Broadcast(sampleFrame(math.NaN())); err != ErrNonFiniteFrame {
		t.Fatalf("Broadcast(NaN) = %v, want ErrNonFiniteFrame", err)
	}
}

func TestSeekAndStep(t *testing.T) {
	clock := &fakeClock{now: calendar.FromValue(0)}
	hub := NewHub(WithController(clock))
	conn := connect(t, hub)

	if err := conn.WriteJSON(map[string]any{"seek": 100}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if msg := readMessage(t, conn); msg.Type != "ack" || msg.TimeValue != 100 {
		t.Fatalf("seek reply = %+v, want ack at 100", msg)
	}

	if err := conn.WriteJSON(map[string]any{"step": 2, "unit": "day"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if msg := readMessage(t, conn); msg.Type != "ack" || msg.TimeValue != 148 {
		t.Fatalf("step reply = %+v, want ack at 148", msg)
	}
	if got := clock.Now().Value(); got != 148 {
		t.Fatalf("clock = %v, want 148", got)
	}
}

func TestControlErrors(t *testing.T) {
	hub := NewHub(WithController(&fakeClock{}))
	conn := connect(t, hub)

	for _, raw := range []string{
		`{"step": 1, "unit": "fortnight"}`,
		`{"unit": "day"}`,
		`not json`,
	} {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
			t.Fatalf("WriteMessage: %v", err)
		}
		if msg := readMessage(t, conn); msg.Type != "error" {
			t.Fatalf("reply to %s = %+v, want error", raw, msg)
		}
	}
}

func TestControlDisabledWithoutController(t *testing.T) {
	conn := connect(t, NewHub())
	if err := conn.WriteJSON(map[string]any{"seek": 1}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if msg := readMessage(t, conn); msg.Type != "error" {
		t.Fatalf("reply = %+v, want error", msg)
	}
}

func TestControlIsRateLimited(t *testing.T) {
	hub := NewHub(WithController(&fakeClock{}), WithRateLimit(rate.Every(time.Hour), 1))
	conn := connect(t, hub)

	for i, want := range []string{"ack", "error"} {
		if err := conn.WriteJSON(map[string]any{"seek": 10}); err != nil {
			t.Fatalf("WriteJSON: %v", err)
		}
		msg := readMessage(t, conn)
		if msg.Type != want {
			t.Fatalf("message %d = %+v, want %s", i, msg, want)
		}
		if want == "error" && msg.Error != "rate limited" {
			t.Fatalf("error = %q, want rate limited", msg.Error)
		}
	}
}
