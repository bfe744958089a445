// Package frame implements the binary protocol spoken by the Inkley
// pressure sensor module: outgoing command frames and the two incoming
// frame shapes (packed telemetry broadcasts and command acknowledgements)
// that share the bus.
package frame

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Fixed CAN identifiers used by the sensor module. Commands always go to
// CommandID; telemetry is broadcast on BroadcastID. Acknowledgements are
// sent to whatever response id the command payload asked for, so that one
// is configurable per session rather than a wire constant.
const (
	CommandID         = 0x107
	BroadcastID       = 0x7DF
	DefaultResponseID = 0x108
)

// maxStandardID is the largest 11-bit CAN identifier.
const maxStandardID = 0x7FF

// Discriminator bytes of the packed telemetry broadcast.
const (
	broadcastFrameType = 0x05
	broadcastSensorID  = 0x12
)

// Command identifies one of the module's request opcodes.
type Command uint8

const (
	QueryVersion   Command = 0x01
	StartStream    Command = 0x02
	StreamBuffered Command = 0x03
	StopStream     Command = 0x04
	GetReadings    Command = 0x05
)

func (c Command) String() string {
	switch c {
	case QueryVersion:
		return "query-version"
	case StartStream:
		return "start-stream"
	case StreamBuffered:
		return "stream-buffered"
	case StopStream:
		return "stop-stream"
	case GetReadings:
		return "get-readings"
	}
	return fmt.Sprintf("command(0x%02X)", uint8(c))
}

// Channel names carried by a packed broadcast, in payload order.
const (
	ChannelPressure1 = "Pressure1"
	ChannelPressure2 = "Pressure2"
)

// Frame is one CAN message on the sensor bus. The module only uses
// standard 11-bit identifiers and full 8-byte payloads.
type Frame struct {
	ID   uint32
	Data [8]byte
}

// Validate reports whether the identifier fits in 11 bits.
func (f Frame) Validate() error {
	if f.ID > maxStandardID {
		return fmt.Errorf("identifier 0x%X exceeds 11 bits", f.ID)
	}
	return nil
}

// Sample is one decoded packed broadcast: two pressure channel readings
// captured together.
type Sample struct {
	Pressure1 uint16
	Pressure2 uint16
	At        time.Time
}

// Version is the firmware version quadruple reported by the module.
type Version struct {
	Major uint8
	Minor uint8
	Patch uint8
	Build uint8
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Patch, v.Build)
}

// Ack is a decoded acknowledgement frame. The module echoes the opcode of
// the command it is answering; QueryVersion replies carry the firmware
// version, everything else carries a generic status word.
type Ack struct {
	Command Command
	Version Version
	Status  uint32
}

// EncodeCommand builds the outbound command frame addressed to the module.
//
// Payload layout (matches the module firmware):
//
//	[0]    opcode
//	[1..2] response id, big-endian — where the module should ack
//	[3..6] optional 32-bit parameter, big-endian, zero when unused
//	[7]    reserved, zero
func EncodeCommand(cmd Command, responseID uint32, param uint32) Frame {
	var f Frame
	f.ID = CommandID
	f.Data[0] = uint8(cmd)
	binary.BigEndian.PutUint16(f.Data[1:3], uint16(responseID))
	binary.BigEndian.PutUint32(f.Data[3:7], param)
	return f
}

// DecodeBroadcast extracts a packed telemetry sample from a broadcast
// frame. Only frames on the broadcast id carrying the packed-layout
// discriminators (frame_type 0x05, sensor id 0x12) are recognized;
// anything else returns ok=false. Bus noise never produces an error here.
func DecodeBroadcast(f Frame, at time.Time) (Sample, bool) {
	if f.ID != BroadcastID {
		return Sample{}, false
	}
	if f.Data[0] != broadcastFrameType || f.Data[1] != broadcastSensorID {
		return Sample{}, false
	}
	return Sample{
		Pressure1: binary.BigEndian.Uint16(f.Data[2:4]),
		Pressure2: binary.BigEndian.Uint16(f.Data[4:6]),
		At:        at,
	}, true
}

// DecodeAck extracts an acknowledgement from a frame addressed to the
// session's response id. The echoed opcode sits at byte 3; bytes 4..7 are
// the version quadruple for QueryVersion replies and a big-endian status
// word for everything else. Frames on any other id return ok=false.
func DecodeAck(f Frame, responseID uint32) (Ack, bool) {
	if f.ID != responseID {
		return Ack{}, false
	}
	ack := Ack{Command: Command(f.Data[3])}
	if ack.Command == QueryVersion {
		ack.Version = Version{
			Major: f.Data[4],
			Minor: f.Data[5],
			Patch: f.Data[6],
			Build: f.Data[7],
		}
	} else {
		ack.Status = binary.BigEndian.Uint32(f.Data[4:8])
	}
	return ack, true
}
