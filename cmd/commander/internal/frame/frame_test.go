package frame

import (
	"testing"
	"time"
)

func TestEncodeCommand(t *testing.T) {
	f := EncodeCommand(QueryVersion, 0x108, 0)

	if f.ID != CommandID {
		t.Fatalf("expected command id 0x%X, got 0x%X", CommandID, f.ID)
	}
	if err := f.Validate(); err != nil {
		t.Fatalf("frame failed validation: %v", err)
	}
	want := [8]byte{0x01, 0x01, 0x08, 0, 0, 0, 0, 0}
	if f.Data != want {
		t.Fatalf("unexpected payload %x, want %x", f.Data, want)
	}
}

func TestEncodeCommandWithParam(t *testing.T) {
	f := EncodeCommand(StreamBuffered, 0x2A5, 0xDEADBEEF)

	if f.Data[0] != 0x03 {
		t.Fatalf("unexpected opcode byte 0x%02X", f.Data[0])
	}
	if f.Data[1] != 0x02 || f.Data[2] != 0xA5 {
		t.Fatalf("unexpected response id bytes %02X %02X", f.Data[1], f.Data[2])
	}
	if f.Data[3] != 0xDE || f.Data[4] != 0xAD || f.Data[5] != 0xBE || f.Data[6] != 0xEF {
		t.Fatalf("unexpected param bytes %x", f.Data[3:7])
	}
	if f.Data[7] != 0 {
		t.Fatalf("reserved byte must be zero, got 0x%02X", f.Data[7])
	}
}

func TestDecodeBroadcastPacked(t *testing.T) {
	now := time.Now()
	f := Frame{
		ID:   BroadcastID,
		Data: [8]byte{0x05, 0x12, 0x01, 0x90, 0x02, 0x58, 0, 0},
	}

	sample, ok := DecodeBroadcast(f, now)
	if !ok {
		t.Fatalf("expected packed broadcast to decode")
	}
	if sample.Pressure1 != 400 {
		t.Fatalf("expected Pressure1=400, got %d", sample.Pressure1)
	}
	if sample.Pressure2 != 600 {
		t.Fatalf("expected Pressure2=600, got %d", sample.Pressure2)
	}
	if !sample.At.Equal(now) {
		t.Fatalf("capture timestamp not preserved")
	}
}

func TestDecodeBroadcastRejectsMismatches(t *testing.T) {
	cases := []struct {
		name string
		f    Frame
	}{
		{"wrong id", Frame{ID: 0x7DE, Data: [8]byte{0x05, 0x12}}},
		{"wrong frame type", Frame{ID: BroadcastID, Data: [8]byte{0x04, 0x12}}},
		{"legacy single sensor", Frame{ID: BroadcastID, Data: [8]byte{0x05, 0x01, 0, 0, 0, 0, 0x01, 0x90}}},
		{"command echo", Frame{ID: CommandID, Data: [8]byte{0x05, 0x12, 1, 2, 3, 4, 0, 0}}},
		{"zero frame", Frame{ID: BroadcastID}},
	}

	for _, tc := range cases {
		if _, ok := DecodeBroadcast(tc.f, time.Now()); ok {
			t.Fatalf("%s: expected broadcast decode to reject frame", tc.name)
		}
	}
}

func TestDecodeAckVersion(t *testing.T) {
	f := Frame{
		ID:   0x108,
		Data: [8]byte{8, 0, 0, 0x01, 1, 2, 3, 42},
	}

	ack, ok := DecodeAck(f, 0x108)
	if !ok {
		t.Fatalf("expected ack to decode")
	}
	if ack.Command != QueryVersion {
		t.Fatalf("expected query-version echo, got %v", ack.Command)
	}
	if got, want := ack.Version.String(), "1.2.3.42"; got != want {
		t.Fatalf("expected version %q, got %q", want, got)
	}
}

func TestDecodeAckStatus(t *testing.T) {
	f := Frame{
		ID:   0x108,
		Data: [8]byte{8, 0, 0, 0x04, 0x00, 0x00, 0x01, 0x02},
	}

	ack, ok := DecodeAck(f, 0x108)
	if !ok {
		t.Fatalf("expected ack to decode")
	}
	if ack.Command != StopStream {
		t.Fatalf("expected stop-stream echo, got %v", ack.Command)
	}
	if ack.Status != 0x0102 {
		t.Fatalf("expected status 0x0102, got 0x%X", ack.Status)
	}
}

func TestDecodeAckEchoesEveryOpcode(t *testing.T) {
	for _, cmd := range []Command{QueryVersion, StartStream, StreamBuffered, StopStream, GetReadings} {
		var f Frame
		f.ID = 0x2A5
		f.Data[3] = uint8(cmd)

		ack, ok := DecodeAck(f, 0x2A5)
		if !ok {
			t.Fatalf("%v: expected ack to decode", cmd)
		}
		if ack.Command != cmd {
			t.Fatalf("expected echoed opcode %v, got %v", cmd, ack.Command)
		}
	}
}

func TestDecodeAckWrongID(t *testing.T) {
	f := Frame{ID: BroadcastID, Data: [8]byte{0, 0, 0, 0x01, 1, 2, 3, 4}}
	if _, ok := DecodeAck(f, 0x108); ok {
		t.Fatalf("expected ack decode to reject broadcast id")
	}
}

func TestValidateRejectsWideID(t *testing.T) {
	f := Frame{ID: 0x800}
	if err := f.Validate(); err == nil {
		t.Fatalf("expected validation error for 12-bit id")
	}
}
