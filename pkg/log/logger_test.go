package log

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/camharness/camharness-go/pkg/wire"
)

func TestNoopLoggerIsZeroValue(t *testing.T) {
	var logger NoopLogger
	logger.Log(Event{})
	OrNoop(nil).Log(Event{})
}

func TestMultiLoggerFansOut(t *testing.T) {
	a := NewMemoryLogger(0)
	b := NewMemoryLogger(0)
	m := NewMultiLogger(a, nil, b)

	m.Log(Event{ConnectionID: "x"})
	m.Log(Event{ConnectionID: "y"})

	if len(a.Events()) != 2 || len(b.Events()) != 2 {
		t.Fatalf("got %d and %d events", len(a.Events()), len(b.Events()))
	}
}

func TestMemoryLoggerLimit(t *testing.T) {
	m := NewMemoryLogger(2)
	for _, id := range []string{"1", "2", "3"} {
		m.Log(Event{ConnectionID: id})
	}
	got := m.Events()
	if len(got) != 2 || got[0].ConnectionID != "2" || got[1].ConnectionID != "3" {
		t.Fatalf("unexpected events: %+v", got)
	}

	layer := LayerBus
	m.Log(Event{ConnectionID: "4", Layer: LayerBus})
	if n := len(m.Filter(Filter{Layer: &layer})); n != 1 {
		t.Errorf("filtered %d events, want 1", n)
	}

	m.Reset()
	if len(m.Events()) != 0 {
		t.Error("Reset did not clear events")
	}
}

func TestFileLoggerAndReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.clog")
	fl, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}

	base := time.Now()
	events := []Event{
		{Timestamp: base, ConnectionID: "c1", Layer: LayerTransport, Packet: NewPacketEvent(8, []byte{1, 2, 3, 4})},
		{Timestamp: base.Add(time.Millisecond), ConnectionID: "c1", Layer: LayerWire, NodeName: "/cam1/driver",
			Message: NewMessageEvent(wire.NewPublish("/cam1/image_raw", 1, nil))},
		{Timestamp: base.Add(2 * time.Millisecond), ConnectionID: "c2", Layer: LayerBus, Category: CategoryState,
			StateChange: &StateChangeEvent{Entity: StateEntityNode, NewState: "ACTIVE"}},
	}
	for _, ev := range events {
		fl.Log(ev)
	}
	if fl.Written() != 3 {
		t.Errorf("Written = %d, want 3", fl.Written())
	}
	if err := fl.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	fl.Log(Event{})
	if err := fl.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	all, err := r.ReadAll()
	r.Close()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("read %d events, want 3", len(all))
	}

	r, err = NewFilteredReader(path, Filter{Name: "/cam1/image_raw"})
	if err != nil {
		t.Fatalf("NewFilteredReader: %v", err)
	}
	defer r.Close()
	ev, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if ev.NodeName != "/cam1/driver" {
		t.Errorf("NodeName = %q", ev.NodeName)
	}
	if _, err := r.Next(); err != io.EOF {
		t.Errorf("expected EOF, got %v", err)
	}
}

func TestFileLoggerConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concurrent.clog")
	fl, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				fl.Log(Event{Timestamp: time.Now(), ConnectionID: "c"})
			}
		}()
	}
	wg.Wait()
	fl.Close()

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()
	all, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(all) != 200 {
		t.Errorf("read %d events, want 200", len(all))
	}
}

func TestSlogAdapterLogsMessageEvent(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	adapter := NewSlogAdapter(slog.New(handler))

	req := wire.NewRequest(5, wire.OpCall, "/cam1/stream_stop", nil)
	adapter.Log(Event{
		ConnectionID: "conn-1",
		Direction:    DirectionOut,
		Layer:        LayerWire,
		NodeName:     "/_test_node_h1",
		Message:      NewMessageEvent(req),
	})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("parse log output: %v", err)
	}
	if entry["op"] != "Call" {
		t.Errorf("op = %v", entry["op"])
	}
	if entry["name"] != "/cam1/stream_stop" {
		t.Errorf("name = %v", entry["name"])
	}
	if entry["node"] != "/_test_node_h1" {
		t.Errorf("node = %v", entry["node"])
	}
	if entry["direction"] != "OUT" {
		t.Errorf("direction = %v", entry["direction"])
	}
}
