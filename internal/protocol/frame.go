package protocol

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

const (
	// PrefixSize is the width of the native-endian length prefix.
	PrefixSize = 8

	// DefaultMaxFrameSize bounds a single payload.
	DefaultMaxFrameSize = 64 << 20
)

// EncodeMessage validates m and returns its payload bytes.
func EncodeMessage(codec Codec, m *Message) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	payload, err := codec.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", m.Kind, err)
	}
	return payload, nil
}

// DecodeMessage decodes and validates a payload.
func DecodeMessage(codec Codec, payload []byte) (*Message, error) {
	var m Message
	if err := codec.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// WriteFrame writes the length prefix and payload with a single Write call.
func WriteFrame(w io.Writer, payload []byte) error {
	buf := make([]byte, PrefixSize+len(payload))
	binary.NativeEndian.PutUint64(buf[:PrefixSize], uint64(len(payload)))
	copy(buf[PrefixSize:], payload)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// ReadFrame reads one frame. A clean end of stream before any prefix byte yields io.EOF.
func ReadFrame(r io.Reader, maxSize uint64) ([]byte, error) {
	var prefix [PrefixSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: short length prefix", ErrTruncatedFrame)
		}
		return nil, err
	}

	size := binary.NativeEndian.Uint64(prefix[:])
	if maxSize > 0 && size > maxSize {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrFrameTooLarge, size, maxSize)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: expected %d payload bytes", ErrTruncatedFrame, size)
		}
		return nil, err
	}
	return payload, nil
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// Conn exchanges framed messages over a byte stream. Reads must come from a
// single goroutine; writes may be issued concurrently.
type Conn struct {
	rw          io.ReadWriter
	br          *bufio.Reader
	codec       Codec
	maxFrame    uint64
	readTimeout time.Duration

	wmu sync.Mutex
}

func NewConn(rw io.ReadWriter, codec Codec) *Conn {
	return &Conn{
		rw:       rw,
		br:       bufio.NewReader(rw),
		codec:    codec,
		maxFrame: DefaultMaxFrameSize,
	}
}

func (c *Conn) Codec() Codec { return c.codec }

// SetMaxFrameSize changes the payload limit. Zero disables the check.
func (c *Conn) SetMaxFrameSize(n uint64) { c.maxFrame = n }

// SetReadTimeout bounds each ReadMessage call when the stream supports deadlines.
func (c *Conn) SetReadTimeout(d time.Duration) { c.readTimeout = d }

// ReadMessage blocks until a complete message is available.
func (c *Conn) ReadMessage() (*Message, error) {
	if c.readTimeout > 0 {
		if dl, ok := c.rw.(readDeadliner); ok {
			if err := dl.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
				return nil, fmt.Errorf("failed to set read deadline: %w", err)
			}
		}
	}

	payload, err := ReadFrame(c.br, c.maxFrame)
	if err != nil {
		return nil, err
	}
	return DecodeMessage(c.codec, payload)
}

// WriteMessage encodes and sends m as one frame.
func (c *Conn) WriteMessage(m *Message) error {
	payload, err := EncodeMessage(c.codec, m)
	if err != nil {
		return err
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	return WriteFrame(c.rw, payload)
}

// Close closes the underlying stream if it can be closed.
func (c *Conn) Close() error {
	if cl, ok := c.rw.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}
