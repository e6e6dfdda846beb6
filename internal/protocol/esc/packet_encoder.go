package esc

import (
	"strconv"
	"strings"
)

// EncodePacket 将 Packet 编码为一行遥测文本 (不含换行符)
func EncodePacket(marker string, pkt *Packet) string {
	return EncodeLine(marker, pkt.Bytes[:])
}

// EncodeLine writes marker followed by the space-separated decimal bytes.
func EncodeLine(marker string, data []byte) string {
	var sb strings.Builder
	sb.Grow(len(marker) + len(data)*4)
	sb.WriteString(marker)
	for _, b := range data {
		sb.WriteByte(' ')
		sb.WriteString(strconv.Itoa(int(b)))
	}
	return sb.String()
}

// PutSlot copies a controller slice into its slot position.
func (p *Packet) PutSlot(slot int, data []byte) error {
	dst, err := p.Slot(slot)
	if err != nil {
		return err
	}
	if len(data) != len(dst) {
		return ErrSliceLength
	}
	copy(dst, data)
	return nil
}
