package subscription

import (
	"errors"
	"sync"
	"testing"
)

type collector struct {
	mu      sync.Mutex
	samples []Sample
}

func (c *collector) deliver(s Sample) {
	c.mu.Lock()
	c.samples = append(c.samples, s)
	c.mu.Unlock()
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.samples)
}

func TestSubscribeDispatch(t *testing.T) {
	m := NewManager()
	var a, b collector

	idA, err := m.Subscribe("/cam1/image_raw", "test", 0, a.deliver)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if _, err := m.Subscribe("/cam1/image_raw", "viewer", 5, b.deliver); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	sub, err := m.Get(idA)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if sub.Depth != DefaultDepth {
		t.Errorf("Depth = %d, want %d", sub.Depth, DefaultDepth)
	}

	if n := m.Dispatch("/cam1/image_raw", []byte{1}); n != 2 {
		t.Errorf("delivered to %d, want 2", n)
	}
	if n := m.Dispatch("/cam1/camera_info", []byte{2}); n != 0 {
		t.Errorf("delivered to %d, want 0", n)
	}
	m.Dispatch("/cam1/image_raw", []byte{3})

	if a.len() != 2 || b.len() != 2 {
		t.Fatalf("got %d and %d samples", a.len(), b.len())
	}
	if a.samples[0].Seq != 1 || a.samples[1].Seq != 2 {
		t.Errorf("unexpected sequence numbers: %d %d", a.samples[0].Seq, a.samples[1].Seq)
	}
	if sub.Delivered() != 2 {
		t.Errorf("Delivered = %d", sub.Delivered())
	}
}

func TestUnsubscribe(t *testing.T) {
	m := NewManager()
	var c collector

	id, _ := m.Subscribe("/cam1/image_raw", "test", 10, c.deliver)
	sub, _ := m.Get(id)

	if err := m.Unsubscribe(id); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if sub.IsActive() {
		t.Error("subscription still active")
	}
	if err := m.Unsubscribe(id); !errors.Is(err, ErrSubscriptionNotFound) {
		t.Errorf("second Unsubscribe: %v", err)
	}

	m.Dispatch("/cam1/image_raw", []byte{1})
	if c.len() != 0 {
		t.Error("sample delivered after unsubscribe")
	}
	if len(m.Topics()) != 0 {
		t.Errorf("Topics = %v", m.Topics())
	}
}

func TestUnsubscribeOwner(t *testing.T) {
	m := NewManager()
	var c collector
	m.Subscribe("/a/x", "n1", 1, c.deliver)
	m.Subscribe("/a/y", "n1", 1, c.deliver)
	m.Subscribe("/a/x", "n2", 1, c.deliver)

	var changes []string
	m.OnChange(func(topic string, count int) {
		if count == 0 {
			changes = append(changes, topic)
		}
	})

	if n := m.UnsubscribeOwner("n1"); n != 2 {
		t.Errorf("removed %d, want 2", n)
	}
	if m.Count() != 1 || m.CountTopic("/a/x") != 1 {
		t.Errorf("Count = %d, CountTopic = %d", m.Count(), m.CountTopic("/a/x"))
	}
	if len(changes) != 1 || changes[0] != "/a/y" {
		t.Errorf("emptied topics = %v", changes)
	}
}

func TestSubscribeValidation(t *testing.T) {
	m := NewManagerWithConfig(Config{MaxSubscriptions: 1})
	var c collector

	tests := []struct {
		topic   string
		wantErr error
	}{
		{"image_raw", ErrInvalidTopic},
		{"/", ErrInvalidTopic},
		{"/cam1//image_raw", ErrInvalidTopic},
		{"/cam1/", ErrInvalidTopic},
	}
	for _, tt := range tests {
		if _, err := m.Subscribe(tt.topic, "o", 1, c.deliver); !errors.Is(err, tt.wantErr) {
			t.Errorf("Subscribe(%q) = %v, want %v", tt.topic, err, tt.wantErr)
		}
	}

	if _, err := m.Subscribe("/ok", "o", 1, nil); !errors.Is(err, ErrNilDeliver) {
		t.Errorf("nil deliver: %v", err)
	}
	if _, err := m.Subscribe("/ok", "o", 1, c.deliver); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if _, err := m.Subscribe("/ok2", "o", 1, c.deliver); !errors.Is(err, ErrResourceExhausted) {
		t.Errorf("over limit: %v", err)
	}
}

func TestClearAll(t *testing.T) {
	m := NewManager()
	var c collector
	id, _ := m.Subscribe("/t", "o", 1, c.deliver)
	sub, _ := m.Get(id)

	m.ClearAll()
	if m.Count() != 0 || sub.IsActive() {
		t.Error("ClearAll left subscriptions behind")
	}
}

func TestDispatchSampleKeepsSequence(t *testing.T) {
	m := NewManager()
	var c collector
	m.Subscribe("/t", "o", 1, c.deliver)

	m.DispatchSample(Sample{Topic: "/t", Seq: 41, Payload: []byte{9}})
	if c.len() != 1 || c.samples[0].Seq != 41 {
		t.Fatalf("unexpected samples: %+v", c.samples)
	}
}

func TestConcurrentDispatch(t *testing.T) {
	m := NewManager()
	var c collector
	m.Subscribe("/t", "o", 1, c.deliver)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				m.Dispatch("/t", nil)
			}
		}()
	}
	wg.Wait()

	if c.len() != 200 {
		t.Errorf("got %d samples, want 200", c.len())
	}
	seen := make(map[uint32]bool)
	for _, s := range c.samples {
		if seen[s.Seq] {
			t.Fatalf("duplicate sequence %d", s.Seq)
		}
		seen[s.Seq] = true
	}
}
