package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"aquacare-relay/internal/alerting"
	"aquacare-relay/internal/anomaly"
	"aquacare-relay/internal/config"
	"aquacare-relay/internal/data"
	"aquacare-relay/internal/storage"
)

// recordingStore counts sensor writes and can be told to fail.
type recordingStore struct {
	mu     sync.Mutex
	writes []map[string]interface{}
	err    error
}

func (s *recordingStore) Update(_ context.Context, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, fields)
	return s.err
}

func (s *recordingStore) Writes() []map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]interface{}(nil), s.writes...)
}

type sent struct{ topic, title, body string }

// recordingDispatcher records push notifications and can be told to fail.
type recordingDispatcher struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (d *recordingDispatcher) Send(_ context.Context, topic, title, body string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, sent{topic, title, body})
	return d.err
}

func (d *recordingDispatcher) Sent() []sent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]sent(nil), d.sent...)
}

type panickingEvaluator struct{}

func (panickingEvaluator) Check(context.Context, data.SensorReading) []data.Alert {
	panic("evaluator exploded")
}

type harness struct {
	hub        *Hub
	store      *recordingStore
	thresholds *storage.MemoryStore
	dispatcher *recordingDispatcher
	alerter    *alerting.Alerter
	pipeline   *Pipeline
	server     *httptest.Server
}

// newHarness starts a hub and a websocket server. opts run before any session starts.
func newHarness(t *testing.T, echoMode string, opts ...func(*harness)) *harness {
	t.Helper()

	thresholds := storage.NewMemoryStore()
	ctx := context.Background()
	_ = thresholds.SetBounds(ctx, data.MetricPH, data.Bounds{Min: 6, Max: 8})
	_ = thresholds.SetBounds(ctx, data.MetricTemperature, data.Bounds{Min: 20, Max: 30})
	_ = thresholds.SetBounds(ctx, data.MetricTurbidity, data.Bounds{Min: 0, Max: 5})

	h := &harness{
		hub:        NewHub(),
		store:      &recordingStore{},
		thresholds: thresholds,
		dispatcher: &recordingDispatcher{},
	}
	h.alerter = alerting.NewAlerter("aquacare", time.Second, alerting.Backend{Name: "test", Dispatcher: h.dispatcher})
	h.pipeline = NewPipeline(h.store, anomaly.NewDetector(thresholds, anomaly.BothZero), h.alerter, config.SessionConfig{
		EchoMode:     echoMode,
		StoreTimeout: time.Second,
	})

	for _, opt := range opts {
		opt(h)
	}

	go h.hub.Run()

	upgrader := websocket.Upgrader{}
	h.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		NewSession(h.hub, conn, h.pipeline, 0).Run(h.hub.Context())
	}))

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.hub.Shutdown(ctx)
		h.server.Close()
	})
	return h
}

// dial connects and consumes the welcome frame.
func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	welcome := readFrame(t, conn)
	if welcome["message"] != welcomeMessage {
		t.Fatalf("unexpected welcome frame: %v", welcome)
	}
	return conn
}

func send(t *testing.T, conn *websocket.Conn, payload string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var frame map[string]interface{}
	if err := json.Unmarshal(msg, &frame); err != nil {
		t.Fatalf("frame is not a JSON object: %s", msg)
	}
	return frame
}

func expectEcho(t *testing.T, conn *websocket.Conn, ph, temp, turb float64) {
	t.Helper()
	for _, want := range []struct {
		key   string
		value float64
	}{{"PH", ph}, {"Temperature", temp}, {"Turbidity", turb}} {
		frame := readFrame(t, conn)
		if len(frame) != 1 || frame[want.key] != want.value {
			t.Fatalf("expected {%q: %v}, got %v", want.key, want.value, frame)
		}
	}
}

func TestSessionInRangeReading(t *testing.T) {
	h := newHarness(t, config.EchoSeparate)
	conn := h.dial(t)

	send(t, conn, `{"PH":7.0,"Temperature":25.0,"Turbidity":3.0}`)
	expectEcho(t, conn, 7, 25, 3)

	// A follow-up invalid frame proves no alert frame was queued in between.
	send(t, conn, `{"PH":7.0}`)
	if frame := readFrame(t, conn); frame["error"] != "Invalid data format" {
		t.Fatalf("expected error frame, got %v", frame)
	}

	writes := h.store.Writes()
	if len(writes) != 1 {
		t.Fatalf("expected one store write, got %d", len(writes))
	}
	if writes[0]["PH"] != 7.0 || writes[0]["Temperature"] != 25.0 || writes[0]["Turbidity"] != 3.0 {
		t.Fatalf("unexpected store write: %v", writes[0])
	}
	h.alerter.Wait()
	if n := len(h.dispatcher.Sent()); n != 0 {
		t.Fatalf("expected no notifications, got %d", n)
	}
}

func TestSessionOutOfRangeReadingAlerts(t *testing.T) {
	h := newHarness(t, config.EchoSeparate)
	conn := h.dial(t)

	send(t, conn, `{"PH":9.5,"Temperature":25.0,"Turbidity":3.0}`)
	expectEcho(t, conn, 9.5, 25, 3)

	frame := readFrame(t, conn)
	if frame["alertForPH"] != "PH value is out of range" {
		t.Fatalf("expected PH alert frame, got %v", frame)
	}

	h.alerter.Wait()
	notifications := h.dispatcher.Sent()
	if len(notifications) != 1 {
		t.Fatalf("expected one notification, got %v", notifications)
	}
	want := sent{"aquacare", "PH Alert", "PH value 9.5 is out of range!"}
	if notifications[0] != want {
		t.Fatalf("notification = %+v, want %+v", notifications[0], want)
	}
}

func TestSessionAlertKeysPerMetric(t *testing.T) {
	h := newHarness(t, config.EchoSeparate)
	conn := h.dial(t)

	send(t, conn, `{"PH":1,"Temperature":45,"Turbidity":9}`)
	expectEcho(t, conn, 1, 45, 9)

	for _, key := range []string{"alertForPH", "alertForTemp", "alertForTurb"} {
		frame := readFrame(t, conn)
		if _, ok := frame[key]; !ok {
			t.Fatalf("expected %s frame, got %v", key, frame)
		}
	}
	h.alerter.Wait()
	if n := len(h.dispatcher.Sent()); n != 3 {
		t.Fatalf("expected three notifications, got %d", n)
	}
}

func TestSessionRejectsInvalidPayloadsAndStaysOpen(t *testing.T) {
	h := newHarness(t, config.EchoSeparate)
	conn := h.dial(t)

	tests := []struct {
		payload string
		want    string
	}{
		{`{"PH":7.0}`, "Invalid data format"},
		{`42`, "Invalid JSON structure"},
		{`[1,2,3]`, "Invalid JSON structure"},
		{`not json`, "Error processing data"},
		{`{"PH":"7","Temperature":25,"Turbidity":3}`, "Invalid data format"},
	}
	for _, tt := range tests {
		send(t, conn, tt.payload)
		frame := readFrame(t, conn)
		if len(frame) != 1 || frame["error"] != tt.want {
			t.Fatalf("payload %s: got %v, want error %q", tt.payload, frame, tt.want)
		}
	}
	if n := len(h.store.Writes()); n != 0 {
		t.Fatalf("invalid payloads must not be stored, got %d writes", n)
	}

	send(t, conn, `{"PH":7,"Temperature":25,"Turbidity":3}`)
	expectEcho(t, conn, 7, 25, 3)
}

func TestSessionSurvivesCollaboratorFailures(t *testing.T) {
	h := newHarness(t, config.EchoSeparate, func(h *harness) {
		h.store.err = errors.New("database offline")
		h.dispatcher.err = errors.New("fcm unavailable")
	})
	conn := h.dial(t)

	send(t, conn, `{"PH":9.5,"Temperature":25,"Turbidity":3}`)
	expectEcho(t, conn, 9.5, 25, 3)
	if frame := readFrame(t, conn); frame["alertForPH"] == nil {
		t.Fatalf("expected PH alert frame, got %v", frame)
	}
	h.alerter.Wait()

	send(t, conn, `{"PH":7.5,"Temperature":22,"Turbidity":1}`)
	expectEcho(t, conn, 7.5, 22, 1)

	if n := len(h.store.Writes()); n != 2 {
		t.Fatalf("expected both messages to attempt a write, got %d", n)
	}
}

func TestSessionPicksUpThresholdEdits(t *testing.T) {
	h := newHarness(t, config.EchoSeparate)
	conn := h.dial(t)

	send(t, conn, `{"PH":7,"Temperature":25,"Turbidity":3}`)
	expectEcho(t, conn, 7, 25, 3)

	_ = h.thresholds.SetBounds(context.Background(), data.MetricPH, data.Bounds{Min: 7.5, Max: 8})

	send(t, conn, `{"PH":7,"Temperature":25,"Turbidity":3}`)
	expectEcho(t, conn, 7, 25, 3)
	if frame := readFrame(t, conn); frame["alertForPH"] == nil {
		t.Fatalf("expected PH alert after edit, got %v", frame)
	}
}

func TestSessionCombinedEcho(t *testing.T) {
	h := newHarness(t, config.EchoCombined)
	conn := h.dial(t)

	send(t, conn, `{"PH":7,"Temperature":25,"Turbidity":3,"Extra":"ignored"}`)
	frame := readFrame(t, conn)
	if len(frame) != 3 || frame["PH"] != 7.0 || frame["Temperature"] != 25.0 || frame["Turbidity"] != 3.0 {
		t.Fatalf("unexpected combined frame: %v", frame)
	}
}

func TestSessionRecoversFromPanics(t *testing.T) {
	h := newHarness(t, config.EchoSeparate, func(h *harness) {
		h.pipeline.Detector = panickingEvaluator{}
	})
	conn := h.dial(t)

	for i := 0; i < 2; i++ {
		send(t, conn, `{"PH":7,"Temperature":25,"Turbidity":3}`)
		if frame := readFrame(t, conn); frame["error"] != "Error processing data" {
			t.Fatalf("expected processing error, got %v", frame)
		}
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	h := newHarness(t, config.EchoSeparate)
	first := h.dial(t)
	second := h.dial(t)

	first.Close()

	send(t, second, `{"PH":7,"Temperature":25,"Turbidity":3}`)
	expectEcho(t, second, 7, 25, 3)
}

func TestHubShutdownClosesSessions(t *testing.T) {
	h := newHarness(t, config.EchoSeparate)
	conn := h.dial(t)

	deadline := time.Now().Add(2 * time.Second)
	for h.hub.Count() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if h.hub.Count() != 1 {
		t.Fatalf("expected one registered session, got %d", h.hub.Count())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.hub.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected the connection to be closed")
	}
	if h.hub.Count() != 0 {
		t.Fatalf("expected no sessions after shutdown, got %d", h.hub.Count())
	}
}

func TestSessionStateString(t *testing.T) {
	for state, want := range map[SessionState]string{
		StateConnecting: "connecting",
		StateOpen:       "open",
		StateClosed:     "closed",
	} {
		if got := state.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", state, got, want)
		}
	}
}
