package client

import (
	"math"

	"esc-telemetry/internal/protocol/esc"
)

// Values are the physical quantities of one simulated controller.
// Consumption is only encoded for dual-byte-direct slots.
type Values struct {
	Temp        float64
	Voltage     float64
	Current     float64
	Consumption float64
	RPM         float64
}

// PacketBuilder 反向编码: 把物理量写回报文字节, 供模拟器和测试使用
type PacketBuilder struct {
	Marker string
	Consts esc.Constants
	pkt    esc.Packet
}

func NewPacketBuilder(marker string, consts esc.Constants) *PacketBuilder {
	if marker == "" {
		marker = esc.DefaultMarker
	}
	if consts == (esc.Constants{}) {
		consts = esc.DefaultConstants()
	}
	return &PacketBuilder{Marker: marker, Consts: consts}
}

// SetSlot encodes v into slot using the class wired to that slot. Values
// outside what the wire can carry are clamped.
func (pb *PacketBuilder) SetSlot(slot int, v Values) error {
	class, err := esc.SlotClass(slot)
	if err != nil {
		return err
	}
	var data []byte
	switch class {
	case esc.ClassDualByteDirect:
		data = pb.encodeDual(v)
	default:
		data = pb.encodeScaled(v)
	}
	return pb.pkt.PutSlot(slot, data)
}

// SetSignal sets the trailing signal strength byte.
func (pb *PacketBuilder) SetSignal(b byte) {
	pb.pkt.Bytes[esc.SignalIndex] = b
}

// Reset zeroes every byte.
func (pb *PacketBuilder) Reset() {
	pb.pkt = esc.Packet{}
}

func (pb *PacketBuilder) Bytes() [esc.PacketLength]byte {
	return pb.pkt.Bytes
}

// Line renders the packet as one telemetry line without line terminator.
func (pb *PacketBuilder) Line() string {
	return esc.EncodePacket(pb.Marker, &pb.pkt)
}

func (pb *PacketBuilder) encodeDual(v Values) []byte {
	b := make([]byte, esc.DualSliceLength)
	b[0] = byte(clamp(v.Temp, math.MaxUint8))
	b[1], b[2] = esc.Split16(word(v.Voltage * 100))
	b[3], b[4] = esc.Split16(word(v.Current * 100))
	b[5], b[6] = esc.Split16(word(v.Consumption))
	b[7], b[8] = esc.Split16(word(v.RPM * 6 / 100))
	return b
}

func (pb *PacketBuilder) encodeScaled(v Values) []byte {
	k := pb.Consts
	raw := func(value, span float64) uint16 {
		if span == 0 {
			return 0
		}
		return word(value / span * k.Scale)
	}
	b := make([]byte, esc.ScaledSliceLength)
	b[0], b[1] = esc.Split16(raw(v.Temp, k.TempSpan))
	b[2], b[3] = esc.Split16(raw(v.Voltage, k.VoltageSpan))
	b[4], b[5] = esc.Split16(raw(v.Current, k.CurrentSpan))
	b[6], b[7] = esc.Split16(raw(v.RPM*k.RPMDivisor, k.RPMFullScale))
	return b
}

func word(v float64) uint16 {
	return uint16(clamp(v, math.MaxUint16))
}

func clamp(v, hi float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > hi:
		return hi
	default:
		return math.Round(v)
	}
}
