package app

import (
	"sync"
	"time"

	"github.com/inkley/sensor-commander/cmd/commander/internal/frame"
)

// Reading is the latest known value for one telemetry channel.
type Reading struct {
	Value uint16
	At    time.Time
}

// telemetryCache holds the most recent reading per channel. It is written
// by the streaming receive loop and read by the command path, so every
// access goes through the mutex. Both channels of one packed sample are
// stored under a single lock acquisition: a snapshot never pairs a value
// from one sample with a timestamp or sibling value from another.
type telemetryCache struct {
	mu       sync.Mutex
	readings map[string]Reading
}

func newTelemetryCache() *telemetryCache {
	return &telemetryCache{readings: make(map[string]Reading, 2)}
}

// updatePacked records both channels of one packed broadcast sample.
func (c *telemetryCache) updatePacked(s frame.Sample) {
	c.mu.Lock()
	c.readings[frame.ChannelPressure1] = Reading{Value: s.Pressure1, At: s.At}
	c.readings[frame.ChannelPressure2] = Reading{Value: s.Pressure2, At: s.At}
	c.mu.Unlock()
}

// snapshot returns a point-in-time copy of every known channel.
func (c *telemetryCache) snapshot() map[string]Reading {
	c.mu.Lock()
	out := make(map[string]Reading, len(c.readings))
	for name, r := range c.readings {
		out[name] = r
	}
	c.mu.Unlock()
	return out
}
