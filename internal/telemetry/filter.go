package telemetry

import "math"

type Bounds struct {
	Min float64
	Max float64
}

func (b Bounds) contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

type TemperatureBounds struct {
	Min      float64
	Max      float64
	MaxDelta float64
}

// FilterConfig holds the spike rejection bounds per spike class.
type FilterConfig struct {
	Enabled     bool
	Temperature TemperatureBounds
	Voltage     Bounds
}

func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		Enabled:     true,
		Temperature: TemperatureBounds{Min: 15, Max: 110, MaxDelta: 30},
		Voltage:     Bounds{Min: 5, Max: 28},
	}
}

// SpikeFilter substitutes implausible samples with the previous accepted
// value. Without a previous value nothing is rejected.
type SpikeFilter struct {
	cfg FilterConfig
}

func NewSpikeFilter(cfg FilterConfig) SpikeFilter {
	return SpikeFilter{cfg: cfg}
}

// Apply returns the value to commit and whether v was rejected.
func (f SpikeFilter) Apply(kind Kind, v, prev float64, hasPrev bool) (float64, bool) {
	if !f.cfg.Enabled || !hasPrev || IsUnavailable(v) {
		return v, false
	}

	switch kindTable[kind].spike {
	case spikeTemperature:
		t := f.cfg.Temperature
		if v < t.Min || v > t.Max || math.Abs(v-prev) > t.MaxDelta {
			return prev, true
		}
	case spikeVoltage:
		if !f.cfg.Voltage.contains(v) {
			return prev, true
		}
	}
	return v, false
}

// commit runs the filter against the series' last value and appends.
func (f SpikeFilter) commit(s *Series, v float64) (float64, bool) {
	prev, hasPrev := s.Last()
	out, rejected := f.Apply(s.kind, v, prev, hasPrev)
	if rejected {
		s.markRejected()
	}
	s.Append(out)
	return out, rejected
}
