package esc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge16Bounds(t *testing.T) {
	assert.Equal(t, uint16(0), Merge16(0, 0))
	assert.Equal(t, uint16(65535), Merge16(255, 255))
	assert.Equal(t, uint16(10000), Merge16(39, 16))
	assert.Equal(t, uint16(2042), Merge16(7, 250))
}

func TestMerge16Injective(t *testing.T) {
	seen := make([]bool, 1<<16)
	for hi := 0; hi < 256; hi++ {
		for lo := 0; lo < 256; lo++ {
			v := Merge16(byte(hi), byte(lo))
			require.Falsef(t, seen[v], "collision at %d,%d", hi, lo)
			seen[v] = true

			h, l := Split16(v)
			require.Equal(t, byte(hi), h)
			require.Equal(t, byte(lo), l)
		}
	}
}

func TestRound(t *testing.T) {
	tests := []struct {
		name     string
		in       float64
		decimals int
		want     float64
	}{
		{"integer half away from zero", 2.5, 0, 3},
		{"negative half", -2.5, 0, -3},
		{"rpm", 2916.665714, 0, 2917},
		{"two decimals", 0.756, 2, 0.76},
		{"already exact", 1.5, 2, 1.5},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, Round(tc.in, tc.decimals), 1e-9)
		})
	}

	assert.True(t, math.IsNaN(Round(math.NaN(), 2)))
}
