package app

import (
	"testing"
	"time"

	"github.com/inkley/sensor-commander/cmd/commander/internal/frame"
)

func TestCacheSnapshotEmpty(t *testing.T) {
	c := newTelemetryCache()
	if got := c.snapshot(); len(got) != 0 {
		t.Fatalf("expected empty snapshot, got %v", got)
	}
}

func TestCacheUpdatePacked(t *testing.T) {
	c := newTelemetryCache()
	at := time.Now()
	c.updatePacked(frame.Sample{Pressure1: 400, Pressure2: 600, At: at})

	snap := c.snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected two channels, got %d", len(snap))
	}
	if r := snap[frame.ChannelPressure1]; r.Value != 400 || !r.At.Equal(at) {
		t.Fatalf("unexpected Pressure1 reading %+v", r)
	}
	if r := snap[frame.ChannelPressure2]; r.Value != 600 || !r.At.Equal(at) {
		t.Fatalf("unexpected Pressure2 reading %+v", r)
	}
}

func TestCacheSnapshotIsCopy(t *testing.T) {
	c := newTelemetryCache()
	c.updatePacked(frame.Sample{Pressure1: 1, Pressure2: 2, At: time.Now()})

	snap := c.snapshot()
	snap[frame.ChannelPressure1] = Reading{Value: 999}

	if got := c.snapshot()[frame.ChannelPressure1].Value; got != 1 {
		t.Fatalf("snapshot mutation leaked into cache: %d", got)
	}
}

// A snapshot taken while another goroutine hammers updatePacked must never
// pair values or timestamps from two different samples. Each sample writes
// the same counter to both channels, so any tear is visible as a mismatch.
func TestCacheSnapshotNeverTorn(t *testing.T) {
	c := newTelemetryCache()
	done := make(chan struct{})

	go func() {
		defer close(done)
		for i := 1; i <= 10000; i++ {
			at := time.Unix(0, int64(i))
			c.updatePacked(frame.Sample{Pressure1: uint16(i), Pressure2: uint16(i), At: at})
		}
	}()

	for {
		select {
		case <-done:
			return
		default:
		}
		snap := c.snapshot()
		if len(snap) == 0 {
			continue
		}
		p1 := snap[frame.ChannelPressure1]
		p2 := snap[frame.ChannelPressure2]
		if p1.Value != p2.Value {
			t.Fatalf("torn snapshot: Pressure1=%d Pressure2=%d", p1.Value, p2.Value)
		}
		if !p1.At.Equal(p2.At) {
			t.Fatalf("torn snapshot timestamps: %v vs %v", p1.At, p2.At)
		}
		if p1.At.UnixNano() != int64(p1.Value) {
			t.Fatalf("value %d paired with timestamp from another update (%d)", p1.Value, p1.At.UnixNano())
		}
	}
}
