package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/camharness/camharness-go/pkg/log"
	"github.com/camharness/camharness-go/pkg/wire"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	Connections       map[string]*ConnectionStats

	// Topics counts published messages per topic; the image topics
	// dominate a harness log.
	Topics map[string]*TopicStats

	// FailedCalls counts responses with a non-OK status per service.
	FailedCalls map[string]int

	Errors    int
	TimeRange struct {
		Start time.Time
		End   time.Time
	}
}

// ConnectionStats holds statistics for a single connection.
type ConnectionStats struct {
	FirstSeen time.Time
	LastSeen  time.Time
	Events    int
	Nodes     map[string]bool
}

// TopicStats summarizes the publications on one topic.
type TopicStats struct {
	Messages  int
	Bytes     int
	FirstSeen time.Time
	LastSeen  time.Time
}

// Rate returns messages per second over the observed span.
func (t *TopicStats) Rate() float64 {
	span := t.LastSeen.Sub(t.FirstSeen).Seconds()
	if span <= 0 || t.Messages < 2 {
		return 0
	}
	return float64(t.Messages-1) / span
}

func newStats() *Stats {
	return &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		Connections:       make(map[string]*ConnectionStats),
		Topics:            make(map[string]*TopicStats),
		FailedCalls:       make(map[string]int),
	}
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	conn, ok := s.Connections[event.ConnectionID]
	if !ok {
		conn = &ConnectionStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp, Nodes: make(map[string]bool)}
		s.Connections[event.ConnectionID] = conn
	}
	conn.Events++
	if event.Timestamp.After(conn.LastSeen) {
		conn.LastSeen = event.Timestamp
	}
	if event.NodeName != "" {
		conn.Nodes[event.NodeName] = true
	}

	if msg := event.Message; msg != nil {
		switch {
		case msg.Kind == wire.KindPublish:
			ts, ok := s.Topics[msg.Name]
			if !ok {
				ts = &TopicStats{FirstSeen: event.Timestamp}
				s.Topics[msg.Name] = ts
			}
			ts.Messages++
			ts.Bytes += msg.PayloadSize
			ts.LastSeen = event.Timestamp
		case msg.Status != nil && *msg.Status != wire.StatusOK:
			s.FailedCalls[msg.Name]++
		}
	}

	if event.Error != nil {
		s.Errors++
	}
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := newStats()
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		stats.add(event)
	}

	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== Camera Harness Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Millisecond))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerTransport, log.LayerWire, log.LayerBus} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryMessage, log.CategoryControl, log.CategoryState, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", dir.String()+":", count)
		}
	}

	if len(stats.Topics) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Topics:")
		for _, name := range sortedKeys(stats.Topics) {
			ts := stats.Topics[name]
			fmt.Fprintf(w, "  %-36s %6d msgs %10d bytes %7.1f Hz\n", name, ts.Messages, ts.Bytes, ts.Rate())
		}
	}

	if len(stats.FailedCalls) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Failed Calls:")
		for _, name := range sortedKeys(stats.FailedCalls) {
			fmt.Fprintf(w, "  %-36s %d\n", name, stats.FailedCalls[name])
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Connections: %d\n", len(stats.Connections))
	if len(stats.Connections) > 0 {
		ids := sortedKeys(stats.Connections)
		sort.SliceStable(ids, func(i, j int) bool {
			return stats.Connections[ids[i]].FirstSeen.Before(stats.Connections[ids[j]].FirstSeen)
		})
		fmt.Fprintln(w)
		for _, id := range ids {
			cs := stats.Connections[id]
			duration := cs.LastSeen.Sub(cs.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %d events, duration %s\n", shortenConnID(id), cs.Events, duration)
			if len(cs.Nodes) > 0 {
				fmt.Fprintf(w, "           Nodes: %v\n", sortedKeys(cs.Nodes))
			}
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
