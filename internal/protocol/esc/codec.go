package esc

import "math"

// Merge16 joins a big-endian byte pair into one 16-bit magnitude.
func Merge16(hi, lo byte) uint16 {
	return uint16(hi)<<8 | uint16(lo)
}

// Split16 is the inverse of Merge16.
func Split16(v uint16) (hi, lo byte) {
	return byte(v >> 8), byte(v)
}

// Round rounds v half away from zero to the given number of decimals.
func Round(v float64, decimals int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	if decimals <= 0 {
		return math.Round(v)
	}
	p := math.Pow10(decimals)
	return math.Round(v*p) / p
}
