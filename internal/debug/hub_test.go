package debug

import (
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yourorg/synapse/internal/gate"
	"github.com/yourorg/synapse/internal/metrics"
)

type fakeClient struct {
	msgs   chan []byte
	closed atomic.Bool
	fail   bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{msgs: make(chan []byte, 16)}
}

func (f *fakeClient) WriteMessage(_ int, data []byte) error {
	if f.fail {
		return errors.New("broken pipe")
	}
	f.msgs <- data
	return nil
}

func (f *fakeClient) Close() error {
	f.closed.Store(true)
	return nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func connect(t *testing.T, h *Hub, c client) chan struct{} {
	t.Helper()
	release := make(chan struct{})
	before := h.Clients()
	go h.serve(c, func() error {
		<-release
		return errors.New("client gone")
	})
	waitFor(t, "client registration", func() bool { return h.Clients() == before+1 })
	return release
}

func receive(t *testing.T, c *fakeClient) []byte {
	t.Helper()
	select {
	case msg := <-c.msgs:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestHubBroadcastsGateEvents(t *testing.T) {
	h := NewHub(true)
	defer h.Close()

	c := newFakeClient()
	release := connect(t, h, c)

	h.SendGateEvent(gate.Event{Action: "unlock", Outcome: "verified", Token: "AB****"})
	var msg GateMessage
	if err := json.Unmarshal(receive(t, c), &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Type != "gate" || msg.Event.Outcome != "verified" || msg.Event.Token != "AB****" {
		t.Fatalf("unexpected message: %+v", msg)
	}

	h.SendLog("http", "info", "GET /api/health", map[string]any{"status": 200})
	var logMsg LogMessage
	if err := json.Unmarshal(receive(t, c), &logMsg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if logMsg.Type != "log" || logMsg.Message != "GET /api/health" {
		t.Fatalf("unexpected log: %+v", logMsg)
	}

	close(release)
	waitFor(t, "client removal", func() bool { return h.Clients() == 0 })
	if !c.closed.Load() {
		t.Fatal("client should be closed on unregister")
	}
}

func TestHubSendsMetrics(t *testing.T) {
	h := NewHub(true)
	defer h.Close()
	c := newFakeClient()
	release := connect(t, h, c)
	defer close(release)

	m := metrics.New()
	m.Inc(metrics.Verified)
	h.SendMetrics(m.Snapshot())

	var msg MetricsMessage
	if err := json.Unmarshal(receive(t, c), &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Counters["synapse_gate_verified_total"] != 1 {
		t.Fatalf("unexpected counters: %v", msg.Counters)
	}
}

func TestHubDropsBrokenClients(t *testing.T) {
	h := NewHub(true)
	defer h.Close()
	broken := &fakeClient{msgs: make(chan []byte, 1), fail: true}
	release := connect(t, h, broken)
	defer close(release)

	h.SendLog("http", "info", "ping", nil)
	waitFor(t, "broken client removal", func() bool { return h.Clients() == 0 })
	if !broken.closed.Load() {
		t.Fatal("broken client should be closed")
	}
}

func TestDisabledHub(t *testing.T) {
	h := NewHub(false)
	h.SendLog("http", "info", "ignored", nil)
	h.SendGateEvent(gate.Event{})
	h.Close()

	c := newFakeClient()
	h.serve(c, func() error { return nil })
	if !c.closed.Load() {
		t.Fatal("disabled hub should refuse connections")
	}

	var nilHub *Hub
	if nilHub.Enabled() || nilHub.Clients() != 0 {
		t.Fatal("nil hub should be disabled")
	}
}

func TestHubCloseDisconnectsClients(t *testing.T) {
	h := NewHub(true)
	c := newFakeClient()
	release := connect(t, h, c)
	defer close(release)

	h.Close()
	waitFor(t, "shutdown", func() bool { return c.closed.Load() })
	h.Close()
}
