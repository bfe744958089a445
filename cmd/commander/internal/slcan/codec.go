// Package slcan drives a serial-to-CAN adapter speaking the SLCAN
// (Lawicel) ASCII protocol, as used by CANable/CANtact style USB dongles.
package slcan

import (
	"fmt"
	"strings"

	"github.com/inkley/sensor-commander/cmd/commander/internal/frame"
)

// Control command strings understood by SLCAN adapters.
const (
	cmdOpen  = "O\r"
	cmdClose = "C\r"
)

// EncodeFrame converts a CAN frame into the ASCII transmit command the
// adapter expects. The sensor bus only carries standard-id data frames,
// so only the 't' form is produced.
func EncodeFrame(f frame.Frame) string {
	var builder strings.Builder
	builder.WriteByte('t')
	builder.WriteString(fmt.Sprintf("%03X", f.ID&0x7FF))
	builder.WriteByte('0' + byte(len(f.Data)))
	for _, b := range f.Data {
		builder.WriteString(fmt.Sprintf("%02X", b))
	}
	builder.WriteByte('\r')
	return builder.String()
}

// DecodeFrame parses one received SLCAN line. Only complete standard-id
// data frames with the full 8-byte payload decode; command echoes, status
// responses, extended/remote frames, and garbled lines return ok=false so
// the receive path can skip them as noise.
func DecodeFrame(line string) (frame.Frame, bool) {
	// 't' + 3 id digits + 1 dlc digit + 16 data digits
	const wantLen = 1 + 3 + 1 + 16

	if len(line) != wantLen || line[0] != 't' {
		return frame.Frame{}, false
	}
	id, ok := parseHex(line[1:4])
	if !ok || id > 0x7FF {
		return frame.Frame{}, false
	}
	if line[4] != '8' {
		return frame.Frame{}, false
	}

	var f frame.Frame
	f.ID = id
	for i := 0; i < 8; i++ {
		b, ok := parseHex(line[5+2*i : 7+2*i])
		if !ok {
			return frame.Frame{}, false
		}
		f.Data[i] = byte(b)
	}
	return f, true
}

// BitrateCommand maps a CAN bit rate to the adapter's 'S' setup command.
// Only the rates defined by the SLCAN protocol are accepted.
func BitrateCommand(bitRate uint32) (string, error) {
	codes := map[uint32]byte{
		10000:   '0',
		20000:   '1',
		50000:   '2',
		100000:  '3',
		125000:  '4',
		250000:  '5',
		500000:  '6',
		800000:  '7',
		1000000: '8',
	}
	code, ok := codes[bitRate]
	if !ok {
		return "", fmt.Errorf("unsupported CAN bit rate %d", bitRate)
	}
	return string([]byte{'S', code, '\r'}), nil
}

func parseHex(s string) (uint32, bool) {
	var v uint32
	for i := 0; i < len(s); i++ {
		c := s[i]
		var d uint32
		switch {
		case c >= '0' && c <= '9':
			d = uint32(c - '0')
		case c >= 'A' && c <= 'F':
			d = uint32(c-'A') + 10
		case c >= 'a' && c <= 'f':
			d = uint32(c-'a') + 10
		default:
			return 0, false
		}
		v = v<<4 | d
	}
	return v, true
}
