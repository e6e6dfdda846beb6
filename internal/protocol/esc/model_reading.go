package esc

import (
	"fmt"
	"math"
)

// Class 控制器解码类别
type Class int

const (
	ClassDualByteDirect Class = iota // 驱动电调, 9 字节
	ClassScaled12Bit                 // 武器/机械臂电调, 8 字节
)

func (c Class) String() string {
	switch c {
	case ClassDualByteDirect:
		return "dual-byte-direct"
	case ClassScaled12Bit:
		return "scaled-12bit"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// SliceLength returns the number of packet bytes a controller of this class owns.
func (c Class) SliceLength() int {
	if c == ClassDualByteDirect {
		return DualSliceLength
	}
	return ScaledSliceLength
}

func ParseClass(s string) (Class, error) {
	switch s {
	case "dual-byte-direct":
		return ClassDualByteDirect, nil
	case "scaled-12bit":
		return ClassScaled12Bit, nil
	default:
		return 0, fmt.Errorf("unknown ESC class %q", s)
	}
}

// Constants are the scaled-12bit conversion factors. Each span is the
// physical value a raw reading equal to Scale represents.
type Constants struct {
	Scale        float64
	TempSpan     float64
	VoltageSpan  float64
	CurrentSpan  float64
	RPMFullScale float64
	RPMDivisor   float64
	// TruncateRPM drops the fractional RPM before rounding, for both classes.
	TruncateRPM bool
}

func DefaultConstants() Constants {
	return Constants{
		Scale:        2042,
		TempSpan:     30,
		VoltageSpan:  20,
		CurrentSpan:  50,
		RPMFullScale: 20416.66,
		RPMDivisor:   7,
		TruncateRPM:  true,
	}
}

// Reading is one controller's decoded values for a single packet.
// Scaled-12bit controllers do not transmit consumption.
type Reading struct {
	Temp           float64 `json:"temp"`
	Voltage        float64 `json:"voltage"`
	Current        float64 `json:"current"`
	Consumption    float64 `json:"consumption"`
	RPM            float64 `json:"rpm"`
	HasConsumption bool    `json:"has_consumption"`
}

// Decode applies the formula of the given class to one controller slice.
func Decode(class Class, data []byte, k Constants) (Reading, error) {
	if len(data) != class.SliceLength() {
		return Reading{}, fmt.Errorf("%w: %s wants %d bytes, got %d",
			ErrSliceLength, class, class.SliceLength(), len(data))
	}
	switch class {
	case ClassDualByteDirect:
		return decodeDual(data, k), nil
	case ClassScaled12Bit:
		return decodeScaled(data, k), nil
	default:
		return Reading{}, fmt.Errorf("unknown ESC class %d", int(class))
	}
}

// decodeDual 布局: temp, v_hi, v_lo, i_hi, i_lo, c_hi, c_lo, r_hi, r_lo
func decodeDual(b []byte, k Constants) Reading {
	return Reading{
		Temp:           float64(b[0]),
		Voltage:        float64(Merge16(b[1], b[2])) / 100,
		Current:        float64(Merge16(b[3], b[4])) / 100,
		Consumption:    float64(Merge16(b[5], b[6])),
		RPM:            rpm(float64(Merge16(b[7], b[8]))*100/6, k),
		HasConsumption: true,
	}
}

// decodeScaled 布局: t_hi, t_lo, v_hi, v_lo, i_hi, i_lo, r_hi, r_lo
func decodeScaled(b []byte, k Constants) Reading {
	frac := func(hi, lo byte) float64 {
		return float64(Merge16(hi, lo)) / k.Scale
	}
	return Reading{
		Temp:    frac(b[0], b[1]) * k.TempSpan,
		Voltage: frac(b[2], b[3]) * k.VoltageSpan,
		Current: frac(b[4], b[5]) * k.CurrentSpan,
		RPM:     rpm(frac(b[6], b[7])*k.RPMFullScale/k.RPMDivisor, k),
	}
}

func rpm(v float64, k Constants) float64 {
	if k.TruncateRPM {
		return math.Trunc(v)
	}
	return v
}
