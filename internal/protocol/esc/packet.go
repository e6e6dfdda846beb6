package esc

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Telemetry line layout
const (
	DefaultMarker = "Data:"

	// PacketLength: 9 + 9 + 8 + 8 controller bytes + 1 signal byte
	PacketLength = 35

	DualSliceLength   = 9
	ScaledSliceLength = 8

	// SlotCount is the number of controller slices in one packet.
	SlotCount   = 4
	SignalIndex = PacketLength - 1
)

var (
	// ErrNotTelemetry 行首没有遥测标记，调用方应静默丢弃
	ErrNotTelemetry = errors.New("line carries no telemetry marker")
	// ErrMalformedPacket 标记正确但字节数或取值范围错误
	ErrMalformedPacket = errors.New("malformed packet")
	// ErrSliceLength 切片长度与解码类别不符
	ErrSliceLength = errors.New("slice length does not match decode class")
	// ErrSlot 槽位超出范围
	ErrSlot = errors.New("slot out of range")
)

// MalformedPacketError describes why a marked line was rejected. Field is
// the zero-based byte position, or -1 when the byte count itself is wrong.
type MalformedPacketError struct {
	Field  int
	Token  string
	Reason string
}

func (e *MalformedPacketError) Error() string {
	if e.Field < 0 {
		return fmt.Sprintf("%v: %s", ErrMalformedPacket, e.Reason)
	}
	return fmt.Sprintf("%v: byte %d (%q): %s", ErrMalformedPacket, e.Field, e.Token, e.Reason)
}

func (e *MalformedPacketError) Unwrap() error {
	return ErrMalformedPacket
}

// slotBounds 各槽位在报文中的偏移和长度
var slotBounds = [SlotCount]struct {
	offset int
	length int
}{
	{0, DualSliceLength},
	{9, DualSliceLength},
	{18, ScaledSliceLength},
	{26, ScaledSliceLength},
}

// Packet is one validated telemetry line.
type Packet struct {
	Bytes [PacketLength]byte
	Raw   string
}

// HasMarker reports whether line starts with marker, ignoring leading blanks.
func HasMarker(line, marker string) bool {
	return strings.HasPrefix(strings.TrimLeft(line, " \t"), marker)
}

// ParseLine validates a line and extracts its 35 bytes. A line without the
// marker yields ErrNotTelemetry; a marked line with the wrong shape yields a
// *MalformedPacketError. No partial packet is ever returned.
func ParseLine(line, marker string) (*Packet, error) {
	trimmed := strings.TrimLeft(line, " \t")
	if !strings.HasPrefix(trimmed, marker) {
		return nil, ErrNotTelemetry
	}

	fields := strings.Fields(trimmed[len(marker):])
	if len(fields) != PacketLength {
		return nil, &MalformedPacketError{
			Field:  -1,
			Reason: fmt.Sprintf("expected %d values, got %d", PacketLength, len(fields)),
		}
	}

	pkt := &Packet{Raw: line}
	for i, f := range fields {
		v, err := strconv.ParseUint(f, 10, 8)
		if err != nil {
			reason := "not a decimal integer"
			var numErr *strconv.NumError
			if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
				reason = "outside 0..255"
			}
			return nil, &MalformedPacketError{Field: i, Token: f, Reason: reason}
		}
		pkt.Bytes[i] = byte(v)
	}
	return pkt, nil
}

// Slot returns the controller slice at the given packet position.
func (p *Packet) Slot(slot int) ([]byte, error) {
	if slot < 0 || slot >= SlotCount {
		return nil, fmt.Errorf("%w: %d", ErrSlot, slot)
	}
	b := slotBounds[slot]
	return p.Bytes[b.offset : b.offset+b.length], nil
}

// SignalStrength returns the trailing byte, passed through untouched.
func (p *Packet) SignalStrength() byte {
	return p.Bytes[SignalIndex]
}

// SlotClass returns the decode class wired to a slot.
func SlotClass(slot int) (Class, error) {
	if slot < 0 || slot >= SlotCount {
		return 0, fmt.Errorf("%w: %d", ErrSlot, slot)
	}
	if slotBounds[slot].length == DualSliceLength {
		return ClassDualByteDirect, nil
	}
	return ClassScaled12Bit, nil
}
