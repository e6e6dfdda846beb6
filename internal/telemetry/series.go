package telemetry

import "math"

// Unavailable marks a tick for which an aggregate could not be computed.
// It keeps the series aligned with the timestamps without inventing a value.
var Unavailable = math.NaN()

func IsUnavailable(v float64) bool {
	return math.IsNaN(v)
}

// Range is a declared [Min, Max] bound used for display clamping.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Series is an append-only buffer of one quantity, index-aligned with the
// robot timestamps. It is not safe for concurrent use; Robot guards it.
type Series struct {
	kind     Kind
	valid    *Range
	samples  []float64
	min      float64
	max      float64
	seeded   bool
	rejected uint64
}

func NewSeries(kind Kind, valid *Range) *Series {
	s := &Series{kind: kind}
	if valid != nil {
		r := *valid
		s.valid = &r
	}
	return s
}

func (s *Series) Kind() Kind       { return s.kind }
func (s *Series) Name() string     { return s.kind.String() }
func (s *Series) Unit() string     { return s.kind.Unit() }
func (s *Series) Len() int         { return len(s.samples) }
func (s *Series) Rejected() uint64 { return s.rejected }

// Append commits one sample. Unavailable samples keep their slot but never
// touch the observed extrema.
func (s *Series) Append(v float64) {
	s.samples = append(s.samples, v)
	if IsUnavailable(v) {
		return
	}
	if !s.seeded {
		s.min, s.max, s.seeded = v, v, true
		return
	}
	if v < s.min {
		s.min = v
	}
	if v > s.max {
		s.max = v
	}
}

func (s *Series) markRejected() {
	s.rejected++
}

// At returns the sample at index i; ok is false past the end or for an
// unavailable sample.
func (s *Series) At(i int) (float64, bool) {
	if i < 0 || i >= len(s.samples) || IsUnavailable(s.samples[i]) {
		return 0, false
	}
	return s.samples[i], true
}

// Last returns the most recent sample, if it is available.
func (s *Series) Last() (float64, bool) {
	return s.At(len(s.samples) - 1)
}

// LastN returns a copy of at most the n most recent samples.
func (s *Series) LastN(n int) []float64 {
	if n <= 0 {
		return nil
	}
	start := len(s.samples) - n
	if start < 0 {
		start = 0
	}
	return append([]float64(nil), s.samples[start:]...)
}

func (s *Series) Values() []float64 {
	return append([]float64(nil), s.samples...)
}

func (s *Series) Min() (float64, bool) { return s.min, s.seeded }
func (s *Series) Max() (float64, bool) { return s.max, s.seeded }

func (s *Series) ValidRange() (Range, bool) {
	if s.valid == nil {
		return Range{}, false
	}
	return *s.valid, true
}

// Clamp limits v to the declared range for display. Values are stored
// unclamped.
func (s *Series) Clamp(v float64) float64 {
	if s.valid == nil || IsUnavailable(v) {
		return v
	}
	return math.Max(s.valid.Min, math.Min(s.valid.Max, v))
}

// Reset empties the samples, extrema and rejection counter. Kind and range
// are kept.
func (s *Series) Reset() {
	s.samples = nil
	s.min, s.max, s.seeded = 0, 0, false
	s.rejected = 0
}
