package commands

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/camharness/camharness-go/pkg/log"
	"github.com/camharness/camharness-go/pkg/wire"
)

func createTestLogFile(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.clog")

	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()
	return path
}

// sessionEvents is a short harness session: a stream_start call that
// succeeds, three frames on cam1/image_raw and a rejected feature write.
func sessionEvents() []log.Event {
	ts := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	call := wire.OpCall
	ok := wire.StatusOK
	rejected := wire.StatusRejected
	conn := "abc12345-6789-0123-4567-890abcdef012"

	events := []log.Event{
		{Timestamp: ts, ConnectionID: conn, Direction: log.DirectionOut, Layer: log.LayerWire, NodeName: "_test_node_h1",
			Message: &log.MessageEvent{Kind: wire.KindRequest, MessageID: 1, Op: &call, Name: "/cam1/stream_start"}},
		{Timestamp: ts.Add(time.Millisecond), ConnectionID: conn, Direction: log.DirectionIn, Layer: log.LayerWire,
			Message: &log.MessageEvent{Kind: wire.KindResponse, MessageID: 1, Status: &ok, Name: "/cam1/stream_start"}},
	}
	for i := 0; i < 3; i++ {
		events = append(events, log.Event{
			Timestamp: ts.Add(time.Duration(100*(i+1)) * time.Millisecond), ConnectionID: conn,
			Direction: log.DirectionIn, Layer: log.LayerWire,
			Message: &log.MessageEvent{Kind: wire.KindPublish, Name: "/cam1/image_raw", PayloadSize: 1000, Sequence: uint32(i + 1)},
		})
	}
	events = append(events,
		log.Event{Timestamp: ts.Add(time.Second), ConnectionID: conn, Direction: log.DirectionIn, Layer: log.LayerWire,
			Message: &log.MessageEvent{Kind: wire.KindResponse, MessageID: 2, Status: &rejected,
				Name: "/cam1/features/int_set", ErrorMessage: "feature is read-only"}},
		log.Event{Timestamp: ts.Add(time.Second), Layer: log.LayerBus, Category: log.CategoryError,
			Error: &log.ErrorEventData{Layer: log.LayerBus, Message: "decode frame", Context: "onImage"}},
	)
	return events
}

func TestFormatMessageEvent(t *testing.T) {
	var buf bytes.Buffer
	formatEvent(&buf, sessionEvents()[0])
	output := buf.String()

	for _, want := range []string{
		"2026-03-02T09:00:00.000000Z",
		"[conn:abc12345]",
		"OUT WIRE",
		"Operation: Call",
		"Name: /cam1/stream_start",
		"Node: _test_node_h1",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
}

func TestFormatLocalEvent(t *testing.T) {
	var buf bytes.Buffer
	formatEvent(&buf, log.Event{
		Category:    log.CategoryState,
		Layer:       log.LayerBus,
		StateChange: &log.StateChangeEvent{Entity: log.StateEntitySubscription, NewState: "active"},
	})
	if !strings.Contains(buf.String(), "[conn:local]") {
		t.Errorf("expected local marker, got: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "-> active") {
		t.Errorf("expected state transition, got: %s", buf.String())
	}
}

func TestRunViewFiltersByName(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())

	var buf bytes.Buffer
	if err := RunView(path, ViewFilter{Name: "/cam1/image_raw"}, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	if got := strings.Count(buf.String(), "Name: /cam1/image_raw"); got != 3 {
		t.Errorf("expected 3 image events, got %d", got)
	}
	if strings.Contains(buf.String(), "stream_start") {
		t.Error("filtered view contains other names")
	}
}

func TestStatsTopicsAndFailures(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	output := buf.String()

	for _, want := range []string{
		"Total Events: 7",
		"/cam1/image_raw",
		"3 msgs",
		"/cam1/features/int_set",
		"Errors: 1",
		"_test_node_h1",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
}

func TestTopicRate(t *testing.T) {
	ts := time.Now()
	stats := TopicStats{Messages: 11, FirstSeen: ts, LastSeen: ts.Add(time.Second)}
	if got := stats.Rate(); got != 10 {
		t.Errorf("Rate() = %v, want 10", got)
	}
	single := TopicStats{Messages: 1, FirstSeen: ts, LastSeen: ts}
	if got := single.Rate(); got != 0 {
		t.Errorf("Rate() = %v, want 0", got)
	}
}

func TestExportCSV(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())
	out := filepath.Join(t.TempDir(), "out.csv")

	if err := RunExport(path, "csv", out); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}
	f, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	if len(rows) != 8 {
		t.Fatalf("expected header + 7 rows, got %d", len(rows))
	}
	if rows[0][7] != "name" {
		t.Errorf("unexpected header: %v", rows[0])
	}
	if rows[3][7] != "/cam1/image_raw" || rows[3][9] != "1000" {
		t.Errorf("unexpected publish row: %v", rows[3])
	}
}

func TestExportJSONL(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())
	out := filepath.Join(t.TempDir(), "out.jsonl")

	if err := RunExport(path, "jsonl", out); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 7 {
		t.Fatalf("expected 7 lines, got %d", len(lines))
	}
	var first log.Event
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("invalid JSON line: %v", err)
	}
	if first.Message == nil || first.Message.Name != "/cam1/stream_start" {
		t.Errorf("unexpected first event: %+v", first)
	}
}

func TestExportUnknownFormat(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())
	err := RunExport(path, "xml", filepath.Join(t.TempDir(), "out"))
	if err == nil || !strings.Contains(err.Error(), "unknown format") {
		t.Errorf("expected unknown format error, got %v", err)
	}
}

func TestRunFilter(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())
	out := filepath.Join(t.TempDir(), "errors.clog")

	count, err := RunFilter(path, FilterOptions{Output: out, Category: "error"})
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 event, got %d", count)
	}

	reader, err := log.NewReader(out)
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()
	events, err := reader.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Error == nil {
		t.Errorf("unexpected filtered events: %+v", events)
	}
}

func TestRunFilterRejectsBadFlags(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())
	tests := map[string]FilterOptions{
		"layer":      {Layer: "session"},
		"direction":  {Direction: "sideways"},
		"category":   {Category: "snapshot"},
		"time-start": {TimeStart: "yesterday"},
	}
	for name, opts := range tests {
		t.Run(name, func(t *testing.T) {
			opts.Output = filepath.Join(t.TempDir(), "out.clog")
			if _, err := RunFilter(path, opts); err == nil {
				t.Error("expected error")
			}
		})
	}
}
