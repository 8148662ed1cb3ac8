package transport

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestKeepAliveConfigDefaults(t *testing.T) {
	cfg := DefaultKeepAliveConfig()
	if cfg.DetectionDelay() != 5*time.Second*3+2*time.Second {
		t.Errorf("DetectionDelay = %v", cfg.DetectionDelay())
	}

	filled := KeepAliveConfig{PingInterval: time.Second}.withDefaults()
	if filled.PongTimeout != DefaultPongTimeout || filled.MaxMissedPongs != DefaultMaxMissedPongs {
		t.Errorf("defaults not applied: %+v", filled)
	}
}

func TestKeepAliveAnsweredPings(t *testing.T) {
	var ka *KeepAlive
	var pings atomic.Int32
	var timedOut atomic.Bool

	ka = NewKeepAlive(KeepAliveConfig{
		PingInterval:   20 * time.Millisecond,
		PongTimeout:    10 * time.Millisecond,
		MaxMissedPongs: 2,
	}, func(seq uint32) error {
		pings.Add(1)
		go ka.PongReceived(seq)
		return nil
	}, func() {
		timedOut.Store(true)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ka.Start(ctx)
	time.Sleep(120 * time.Millisecond)
	ka.Stop()

	if pings.Load() < 3 {
		t.Errorf("pings = %d, want >= 3", pings.Load())
	}
	if timedOut.Load() {
		t.Error("timeout fired despite pongs")
	}
	if ka.MissedPongs() != 0 {
		t.Errorf("MissedPongs = %d", ka.MissedPongs())
	}
	if ka.IsRunning() {
		t.Error("still running after Stop")
	}
}

func TestKeepAliveTimeout(t *testing.T) {
	fired := make(chan struct{})
	ka := NewKeepAlive(KeepAliveConfig{
		PingInterval:   10 * time.Millisecond,
		PongTimeout:    5 * time.Millisecond,
		MaxMissedPongs: 2,
	}, func(uint32) error { return nil }, func() { close(fired) })

	ka.Start(context.Background())
	defer ka.Stop()

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timeout callback not called")
	}
}
