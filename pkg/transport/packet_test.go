package transport

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/camharness/camharness-go/pkg/log"
)

func TestPacketRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	p := NewPacketizer(&buf, 0)

	payloads := [][]byte{{0x01}, bytes.Repeat([]byte{0xab}, 1000), []byte("hello")}
	for _, pl := range payloads {
		if err := p.WritePacket(pl); err != nil {
			t.Fatalf("WritePacket: %v", err)
		}
	}

	for i, want := range payloads {
		got, err := p.ReadPacket()
		if err != nil {
			t.Fatalf("ReadPacket %d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("packet %d mismatch", i)
		}
	}

	if _, err := p.ReadPacket(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestPacketErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		maxSize uint32
		wantErr error
	}{
		{"zero length", []byte{0, 0, 0, 0}, 0, ErrMessageEmpty},
		{"too large", []byte{0, 0, 0x10, 0}, 16, ErrMessageTooLarge},
		{"truncated prefix", []byte{0, 0}, 0, ErrPacketTruncated},
		{"truncated payload", []byte{0, 0, 0, 4, 1, 2}, 0, ErrPacketTruncated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewPacketReader(bytes.NewReader(tt.input), tt.maxSize)
			_, err := r.ReadPacket()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
		})
	}

	w := NewPacketWriter(io.Discard, 4)
	if err := w.WritePacket(nil); !errors.Is(err, ErrMessageEmpty) {
		t.Errorf("empty write: %v", err)
	}
	if err := w.WritePacket(make([]byte, 5)); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("oversized write: %v", err)
	}
}

func TestPacketLogging(t *testing.T) {
	var buf bytes.Buffer
	mem := log.NewMemoryLogger(0)
	p := NewPacketizer(&buf, 0)
	p.SetLogger(mem, "conn-1")

	if err := p.WritePacket(make([]byte, 1000)); err != nil {
		t.Fatalf("WritePacket: %v", err)
	}
	if _, err := p.ReadPacket(); err != nil {
		t.Fatalf("ReadPacket: %v", err)
	}

	events := mem.Events()
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Direction != log.DirectionOut || events[1].Direction != log.DirectionIn {
		t.Error("unexpected directions")
	}
	pe := events[0].Packet
	if pe == nil || pe.Size != PacketSize(1000) || !pe.Truncated {
		t.Errorf("unexpected packet event: %+v", pe)
	}
	if events[0].ConnectionID != "conn-1" {
		t.Errorf("ConnectionID = %q", events[0].ConnectionID)
	}
}
