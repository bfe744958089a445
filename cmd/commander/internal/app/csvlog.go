package app

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/inkley/sensor-commander/cmd/commander/internal/frame"
)

// defaultFlushEvery bounds data loss on abrupt termination to roughly one
// second of samples at the module's 1 kHz broadcast rate.
const defaultFlushEvery = 1000

// csvLog is the append-only sink for streamed samples. It is written by a
// single goroutine (the receive loop), so it carries no lock; teardown
// must sequence Close strictly after that goroutine has exited.
type csvLog struct {
	file       *os.File
	writer     *csv.Writer
	flushEvery int
	rows       int
	flushes    int
	closed     bool
}

// openCSVLog creates (or truncates) the log file, creating the parent
// directory if needed, and writes the header row.
func openCSVLog(path string, flushEvery int) (*csvLog, error) {
	if flushEvery <= 0 {
		flushEvery = defaultFlushEvery
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create log file: %w", err)
	}

	l := &csvLog{file: file, writer: csv.NewWriter(file), flushEvery: flushEvery}
	header := []string{"Timestamp", frame.ChannelPressure1, frame.ChannelPressure2}
	if err := l.writer.Write(header); err != nil {
		file.Close()
		return nil, fmt.Errorf("write log header: %w", err)
	}
	return l, nil
}

// append writes one sample row. The timestamp is ISO-8601 with
// millisecond precision. Every flushEvery rows the writer is flushed to
// the file so at most one flush window of samples is at risk.
func (l *csvLog) append(at time.Time, p1, p2 uint16) error {
	row := []string{
		at.Format("2006-01-02T15:04:05.000"),
		strconv.FormatUint(uint64(p1), 10),
		strconv.FormatUint(uint64(p2), 10),
	}
	if err := l.writer.Write(row); err != nil {
		return fmt.Errorf("write log row: %w", err)
	}
	l.rows++
	if l.rows%l.flushEvery == 0 {
		l.writer.Flush()
		l.flushes++
		if err := l.writer.Error(); err != nil {
			return fmt.Errorf("flush log: %w", err)
		}
	}
	return nil
}

// close flushes whatever is buffered and releases the file. Calling it
// again is a no-op.
func (l *csvLog) close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	l.writer.Flush()
	l.flushes++
	flushErr := l.writer.Error()
	closeErr := l.file.Close()
	if flushErr != nil {
		return fmt.Errorf("final log flush: %w", flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close log file: %w", closeErr)
	}
	return nil
}
