package app

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/inkley/sensor-commander/cmd/commander/internal/frame"
	"github.com/inkley/sensor-commander/cmd/commander/internal/slcan"
)

var (
	// ErrAlreadyStreaming rejects a stream start while one is active.
	ErrAlreadyStreaming = errors.New("streaming is already active")
	// ErrNotStreaming rejects a stream stop with no stream active.
	ErrNotStreaming = errors.New("streaming is not active")
	// ErrNoChannel reports that no CAN channel has been configured yet.
	ErrNoChannel = errors.New("no CAN channel configured")
)

// versionUnknown is reported until the module answers a version query.
const versionUnknown = "unknown"

// transportOpener abstracts slcan.Open so tests can substitute an
// in-memory transport.
type transportOpener func(channel string, bitRate uint32) (slcan.Transport, error)

// Session is the protocol session with one sensor module. It owns the
// transport, correlates commands with acknowledgements, and runs the
// streaming receive loop.
//
// Command issuance is synchronous and supports one outstanding
// command/await cycle at a time; callers must not overlap IssueAndAwait
// calls. Streaming state transitions are guarded internally.
type Session struct {
	logger Logger
	open   transportOpener
	cache  *telemetryCache

	mu        sync.Mutex
	cfg       Config
	transport slcan.Transport
	streaming bool
	stop      chan struct{}
	done      chan struct{}
	sink      *csvLog
	version   string
	outPath   string
}

// NewSession creates a session using the serial SLCAN transport. The
// transport is opened lazily on first bus use so the tool starts without
// a device attached.
func NewSession(cfg Config, logger Logger) *Session {
	return newSession(cfg, logger, func(channel string, bitRate uint32) (slcan.Transport, error) {
		return slcan.Open(channel, bitRate)
	})
}

func newSession(cfg Config, logger Logger, open transportOpener) *Session {
	return &Session{
		logger:  logger,
		open:    open,
		cache:   newTelemetryCache(),
		cfg:     cfg,
		version: versionUnknown,
	}
}

// connect returns the open transport, opening it on first use.
// Caller must hold s.mu.
func (s *Session) connect() (slcan.Transport, error) {
	if s.transport != nil {
		return s.transport, nil
	}
	if s.cfg.Channel == "" {
		return nil, ErrNoChannel
	}
	tr, err := s.open(s.cfg.Channel, s.cfg.BitRate)
	if err != nil {
		return nil, err
	}
	s.logger.Infof("CAN bus initialized on %s at %d bit/s", s.cfg.Channel, s.cfg.BitRate)
	s.transport = tr
	return tr, nil
}

func (s *Session) sendCommand(tr slcan.Transport, cmd frame.Command, param uint32) error {
	f := frame.EncodeCommand(cmd, s.responseID(), param)
	if err := tr.Send(f); err != nil {
		return fmt.Errorf("send %v: %w", cmd, err)
	}
	return nil
}

func (s *Session) responseID() uint32 {
	// cfg.ResponseID is fixed for the session lifetime, set before any
	// bus traffic.
	return s.cfg.ResponseID
}

// IssueAndAwait sends a command and waits for the matching
// acknowledgement, correlated by echoed opcode. The wait polls the
// transport in short slices so the overall deadline is honored even on a
// quiet bus. A timeout is not an error: the returned ok is false and the
// caller falls back to its last known state. Unrelated frames seen while
// waiting are discarded.
func (s *Session) IssueAndAwait(cmd frame.Command, param uint32, timeout time.Duration) (frame.Ack, bool, error) {
	s.mu.Lock()
	tr, err := s.connect()
	s.mu.Unlock()
	if err != nil {
		return frame.Ack{}, false, err
	}

	if err := s.sendCommand(tr, cmd, param); err != nil {
		return frame.Ack{}, false, err
	}

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return frame.Ack{}, false, nil
		}
		slice := s.pollInterval()
		if slice > remaining {
			slice = remaining
		}

		f, err := tr.Receive(slice)
		if errors.Is(err, slcan.ErrTimeout) {
			continue
		}
		if err != nil {
			return frame.Ack{}, false, err
		}

		ack, ok := frame.DecodeAck(f, s.responseID())
		if !ok || ack.Command != cmd {
			s.logger.Debugf("discarding frame 0x%X while awaiting %v ack", f.ID, cmd)
			continue
		}
		if ack.Command == frame.QueryVersion {
			s.setVersion(ack.Version.String())
		}
		return ack, true, nil
	}
}

func (s *Session) pollInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.PollInterval
}

// snapshotConfig returns a copy of the current configuration.
func (s *Session) snapshotConfig() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// StartStreaming sends the stream-start command (buffered selects the
// module's buffered mode), opens the log sink, and launches the receive
// loop. The loop keeps running until StopStreaming or Close.
func (s *Session) StartStreaming(buffered bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.streaming {
		return ErrAlreadyStreaming
	}
	tr, err := s.connect()
	if err != nil {
		return err
	}

	cmd := frame.StartStream
	if buffered {
		cmd = frame.StreamBuffered
	}
	if err := s.sendCommand(tr, cmd, 0); err != nil {
		return err
	}

	path := s.cfg.OutputPath()
	sink, err := openCSVLog(path, s.cfg.FlushEvery)
	if err != nil {
		return err
	}

	s.streaming = true
	s.sink = sink
	s.outPath = path
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.logger.Infof("streaming started, logging to %s", path)

	go s.streamLoop(tr, sink, s.cfg.StreamRecvTimeout, s.stop, s.done)
	return nil
}

// streamLoop services the bus while streaming: telemetry broadcasts go to
// the cache and the log sink, acknowledgements update local state. The
// short receive timeout bounds how long a quiet bus can delay the stop
// check.
func (s *Session) streamLoop(tr slcan.Transport, sink *csvLog, recvTimeout time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	samples := 0
	for {
		select {
		case <-stop:
			return
		default:
		}

		f, err := tr.Receive(recvTimeout)
		if errors.Is(err, slcan.ErrTimeout) {
			continue
		}
		if errors.Is(err, slcan.ErrClosed) {
			s.logger.Warnf("transport closed mid-stream")
			return
		}
		if err != nil {
			s.logger.Warnf("stream receive: %v", err)
			continue
		}
		now := time.Now()

		if sample, ok := frame.DecodeBroadcast(f, now); ok {
			s.cache.updatePacked(sample)
			if err := sink.append(sample.At, sample.Pressure1, sample.Pressure2); err != nil {
				s.logger.Errorf("log sample: %v", err)
			}
			samples++
			if samples%sink.flushEvery == 0 {
				s.logger.Infof("logged %d samples", samples)
			}
			continue
		}

		if ack, ok := frame.DecodeAck(f, s.responseID()); ok {
			if ack.Command == frame.QueryVersion {
				s.setVersion(ack.Version.String())
				s.logger.Infof("received firmware version %s", ack.Version)
			} else {
				s.logger.Infof("ack %v status=%d", ack.Command, ack.Status)
			}
			continue
		}

		s.logger.Debugf("ignoring frame 0x%X", f.ID)
	}
}

// StopStreaming sends the stop command, signals the receive loop, waits
// for it to exit, and closes the log sink. The stop command failing does
// not keep the loop alive; the local stream always comes down.
func (s *Session) StopStreaming() error {
	s.mu.Lock()
	if !s.streaming {
		s.mu.Unlock()
		return ErrNotStreaming
	}
	// Flip state first so a concurrent stop gets ErrNotStreaming instead
	// of closing the stop channel twice.
	s.streaming = false
	tr := s.transport
	stop, done, sink := s.stop, s.done, s.sink
	s.sink = nil
	s.mu.Unlock()

	if err := s.sendCommand(tr, frame.StopStream, 0); err != nil {
		s.logger.Warnf("stop command not sent: %v", err)
	}
	close(stop)
	<-done

	if err := sink.close(); err != nil {
		return err
	}
	s.logger.Infof("streaming stopped, data saved to %s", s.OutputPath())
	return nil
}

// Streaming reports whether the receive loop is active.
func (s *Session) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

// GetReadings triggers the module's readings command and returns the
// current telemetry snapshot. The command only signals the device;
// values are learned from the broadcast stream, so the snapshot reflects
// whatever has been received up to now.
func (s *Session) GetReadings() (map[string]Reading, error) {
	s.mu.Lock()
	tr, err := s.connect()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if err := s.sendCommand(tr, frame.GetReadings, 0); err != nil {
		return nil, err
	}
	return s.cache.snapshot(), nil
}

// Version returns the last firmware version reported by the module, or
// "unknown" before the first answer. When streaming is active a version
// query's ack may be consumed by the receive loop rather than the
// awaiting caller; the caller then times out and reads the value from
// here.
func (s *Session) Version() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

func (s *Session) setVersion(v string) {
	s.mu.Lock()
	s.version = v
	s.mu.Unlock()
}

// OutputPath is the resolved CSV destination: the active stream's file
// while streaming, otherwise where the next stream would log.
func (s *Session) OutputPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outPath != "" {
		return s.outPath
	}
	return s.cfg.OutputPath()
}

// SetChannel reconfigures the serial channel, dropping any open
// transport so the next bus action reconnects. Rejected while streaming.
func (s *Session) SetChannel(channel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streaming {
		return ErrAlreadyStreaming
	}
	if s.transport != nil {
		if err := s.transport.Close(); err != nil {
			s.logger.Warnf("closing previous channel: %v", err)
		}
		s.transport = nil
	}
	s.cfg.Channel = channel
	return nil
}

// Channel returns the configured serial channel, possibly empty.
func (s *Session) Channel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Channel
}

// SetOutputDir changes the log directory for the next stream.
func (s *Session) SetOutputDir(dir string) {
	s.mu.Lock()
	s.cfg.OutputDir = dir
	s.outPath = ""
	s.mu.Unlock()
}

// SetFilename changes the log filename for the next stream; ".csv" is
// appended when missing.
func (s *Session) SetFilename(name string) {
	s.mu.Lock()
	s.cfg.Filename = name
	s.outPath = ""
	s.mu.Unlock()
}

// Close tears the session down: stop streaming if active, then release
// the transport. Every step is attempted even if an earlier one fails.
func (s *Session) Close() error {
	var errs []error

	if err := s.StopStreaming(); err != nil && !errors.Is(err, ErrNotStreaming) {
		s.logger.Errorf("teardown: %v", err)
		errs = append(errs, err)
	}

	s.mu.Lock()
	tr := s.transport
	s.transport = nil
	s.mu.Unlock()
	if tr != nil {
		if err := tr.Close(); err != nil {
			s.logger.Errorf("teardown: close transport: %v", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
