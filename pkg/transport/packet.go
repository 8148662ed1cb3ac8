package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/camharness/camharness-go/pkg/log"
)

// Packet constants.
const (
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4

	// DefaultMaxMessageSize is the default maximum packet payload (32 MiB).
	// Large enough for an uncompressed 4K RGBA image.
	DefaultMaxMessageSize = 32 << 20
)

// Packet errors.
var (
	ErrMessageTooLarge = errors.New("message too large")
	ErrMessageEmpty    = errors.New("message is empty")
	ErrPacketTruncated = errors.New("packet truncated")
)

// PacketWriter writes length-prefixed packets to an underlying writer.
type PacketWriter struct {
	w              io.Writer
	maxMessageSize uint32
	mu             sync.Mutex

	logger log.Logger
	connID string
}

// NewPacketWriter creates a packet writer with the given max payload size.
// A zero maxSize selects DefaultMaxMessageSize.
func NewPacketWriter(w io.Writer, maxSize uint32) *PacketWriter {
	if maxSize == 0 {
		maxSize = DefaultMaxMessageSize
	}
	return &PacketWriter{w: w, maxMessageSize: maxSize}
}

// SetLogger configures packet capture. Pass nil to disable.
func (pw *PacketWriter) SetLogger(logger log.Logger, connID string) {
	pw.logger = logger
	pw.connID = connID
}

// WritePacket writes a length-prefixed packet.
// Safe for concurrent use.
func (pw *PacketWriter) WritePacket(data []byte) error {
	if len(data) == 0 {
		return ErrMessageEmpty
	}
	if uint64(len(data)) > uint64(pw.maxMessageSize) {
		return fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, len(data), pw.maxMessageSize)
	}

	pw.mu.Lock()
	defer pw.mu.Unlock()

	var lengthBuf [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(lengthBuf[:], uint32(len(data)))

	if _, err := pw.w.Write(lengthBuf[:]); err != nil {
		return fmt.Errorf("failed to write length prefix: %w", err)
	}
	if _, err := pw.w.Write(data); err != nil {
		return fmt.Errorf("failed to write payload: %w", err)
	}

	if pw.logger != nil {
		pw.logger.Log(packetEvent(pw.connID, data, log.DirectionOut))
	}
	return nil
}

// PacketReader reads length-prefixed packets from an underlying reader.
type PacketReader struct {
	r              io.Reader
	maxMessageSize uint32
	lengthBuf      [LengthPrefixSize]byte

	logger log.Logger
	connID string
}

// NewPacketReader creates a packet reader with the given max payload size.
// A zero maxSize selects DefaultMaxMessageSize.
func NewPacketReader(r io.Reader, maxSize uint32) *PacketReader {
	if maxSize == 0 {
		maxSize = DefaultMaxMessageSize
	}
	return &PacketReader{r: r, maxMessageSize: maxSize}
}

// SetLogger configures packet capture. Pass nil to disable.
func (pr *PacketReader) SetLogger(logger log.Logger, connID string) {
	pr.logger = logger
	pr.connID = connID
}

// ReadPacket reads one packet and returns its payload.
// Returns io.EOF on a clean end of stream.
func (pr *PacketReader) ReadPacket() ([]byte, error) {
	if _, err := io.ReadFull(pr.r, pr.lengthBuf[:]); err != nil {
		if err == io.EOF {
			return nil, err
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrPacketTruncated
		}
		return nil, fmt.Errorf("failed to read length prefix: %w", err)
	}

	length := binary.BigEndian.Uint32(pr.lengthBuf[:])
	if length == 0 {
		return nil, ErrMessageEmpty
	}
	if length > pr.maxMessageSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, length, pr.maxMessageSize)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(pr.r, payload); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || err == io.EOF {
			return nil, ErrPacketTruncated
		}
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}

	if pr.logger != nil {
		pr.logger.Log(packetEvent(pr.connID, payload, log.DirectionIn))
	}
	return payload, nil
}

func packetEvent(connID string, data []byte, dir log.Direction) log.Event {
	return log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    dir,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		Packet:       log.NewPacketEvent(LengthPrefixSize+len(data), data),
	}
}

// Packetizer combines packet reading and writing on one stream.
type Packetizer struct {
	*PacketReader
	*PacketWriter
}

// NewPacketizer creates a Packetizer for bidirectional communication.
func NewPacketizer(rw io.ReadWriter, maxSize uint32) *Packetizer {
	return &Packetizer{
		PacketReader: NewPacketReader(rw, maxSize),
		PacketWriter: NewPacketWriter(rw, maxSize),
	}
}

// SetLogger configures capture for both directions.
func (p *Packetizer) SetLogger(logger log.Logger, connID string) {
	p.PacketReader.SetLogger(logger, connID)
	p.PacketWriter.SetLogger(logger, connID)
}

// PacketSize returns the on-wire size including the length prefix.
func PacketSize(payloadSize int) int {
	return LengthPrefixSize + payloadSize
}
