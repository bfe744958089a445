package slcan

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/inkley/sensor-commander/cmd/commander/internal/frame"
)

var (
	// ErrTimeout reports that Receive observed no frame within its bound.
	ErrTimeout = errors.New("slcan: receive timeout")
	// ErrClosed reports use of a closed transport.
	ErrClosed = errors.New("slcan: transport closed")
)

// Transport is a bidirectional CAN channel. Receive must return within
// the given timeout even when the bus is quiet, so callers can poll a
// stop flag between attempts. Close is idempotent.
type Transport interface {
	Send(f frame.Frame) error
	Receive(timeout time.Duration) (frame.Frame, error)
	Close() error
}

// Serial is a Transport over a serial SLCAN adapter. Send and Receive
// take separate locks so transmitting a command never waits behind an
// in-flight receive slice.
type Serial struct {
	port serial.Port

	stateMu sync.Mutex
	closed  bool

	txMu sync.Mutex

	rxMu    sync.Mutex
	pending []byte
}

// serialBaudRate is the USB CDC baud rate for SLCAN dongles. The CAN-side
// bit rate is configured separately via the 'S' command.
const serialBaudRate = 115200

// Open opens the serial channel and configures the adapter: close any
// stale bus session, set the CAN bit rate, then open the bus.
func Open(channel string, bitRate uint32) (*Serial, error) {
	setup, err := BitrateCommand(bitRate)
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(channel, &serial.Mode{BaudRate: serialBaudRate})
	if err != nil {
		return nil, fmt.Errorf("open CAN channel %s: %w", channel, err)
	}

	for _, cmd := range []string{cmdClose, setup, cmdOpen} {
		if _, err := port.Write([]byte(cmd)); err != nil {
			port.Close()
			return nil, fmt.Errorf("configure CAN channel %s: %w", channel, err)
		}
	}
	// Drop any response bytes the adapter produced during setup.
	_ = port.ResetInputBuffer()

	return &Serial{port: port}, nil
}

func (s *Serial) isClosed() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.closed
}

// Send transmits one frame.
func (s *Serial) Send(f frame.Frame) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if s.isClosed() {
		return ErrClosed
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()
	if _, err := s.port.Write([]byte(EncodeFrame(f))); err != nil {
		return fmt.Errorf("send frame 0x%X: %w", f.ID, err)
	}
	return nil
}

// Receive returns the next data frame from the adapter, or ErrTimeout if
// none arrives within the bound. Non-frame lines (command echoes, error
// bells) are skipped silently.
func (s *Serial) Receive(timeout time.Duration) (frame.Frame, error) {
	s.rxMu.Lock()
	defer s.rxMu.Unlock()

	deadline := time.Now().Add(timeout)
	buf := make([]byte, 256)

	for {
		if s.isClosed() {
			return frame.Frame{}, ErrClosed
		}
		if f, ok := s.nextPendingFrame(); ok {
			return f, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return frame.Frame{}, ErrTimeout
		}
		if err := s.port.SetReadTimeout(remaining); err != nil {
			return frame.Frame{}, fmt.Errorf("set read deadline: %w", err)
		}
		n, err := s.port.Read(buf)
		if err != nil {
			if s.isClosed() {
				return frame.Frame{}, ErrClosed
			}
			return frame.Frame{}, fmt.Errorf("receive frame: %w", err)
		}
		// n == 0 means the port-level read timed out; the deadline check
		// above then decides whether to report ErrTimeout.
		s.pending = append(s.pending, buf[:n]...)
	}
}

// nextPendingFrame scans buffered bytes for the next complete line that
// decodes as a data frame. Caller holds s.rxMu.
func (s *Serial) nextPendingFrame() (frame.Frame, bool) {
	for {
		end := -1
		for i, b := range s.pending {
			if b == '\r' || b == '\n' || b == 0x07 {
				end = i
				break
			}
		}
		if end < 0 {
			return frame.Frame{}, false
		}
		line := string(s.pending[:end])
		s.pending = s.pending[end+1:]
		if f, ok := DecodeFrame(line); ok {
			return f, true
		}
	}
}

// Close shuts the bus down on the adapter and releases the port. Safe to
// call more than once.
func (s *Serial) Close() error {
	s.stateMu.Lock()
	if s.closed {
		s.stateMu.Unlock()
		return nil
	}
	s.closed = true
	s.stateMu.Unlock()

	s.txMu.Lock()
	_, _ = s.port.Write([]byte(cmdClose))
	s.txMu.Unlock()

	if err := s.port.Close(); err != nil {
		return fmt.Errorf("close CAN channel: %w", err)
	}
	return nil
}
