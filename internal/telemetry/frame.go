package telemetry

import "time"

// Sample is one committed value of a tick.
type Sample struct {
	Kind        Kind    `json:"kind"`
	Value       float64 `json:"value"`
	Unavailable bool    `json:"unavailable,omitempty"`
	Rejected    bool    `json:"rejected,omitempty"`
}

func newSample(k Kind, v float64, rejected bool) Sample {
	if IsUnavailable(v) {
		return Sample{Kind: k, Unavailable: true}
	}
	return Sample{Kind: k, Value: v, Rejected: rejected}
}

type ESCFrame struct {
	Name    string   `json:"name"`
	Active  bool     `json:"active"`
	Samples []Sample `json:"samples"`
}

// Frame is the result of one accepted packet, as committed to the series.
type Frame struct {
	Robot      string     `json:"robot"`
	Index      int        `json:"index"`
	Time       time.Time  `json:"time"`
	Elapsed    float64    `json:"elapsed"`
	ESCs       []ESCFrame `json:"escs"`
	Aggregates []Sample   `json:"aggregates"`
}

// Value returns a controller sample of this frame.
func (f *Frame) Value(escName string, k Kind) (float64, bool) {
	for _, e := range f.ESCs {
		if e.Name != escName {
			continue
		}
		return lookup(e.Samples, k)
	}
	return 0, false
}

// Aggregate returns a robot-level sample of this frame.
func (f *Frame) Aggregate(k Kind) (float64, bool) {
	return lookup(f.Aggregates, k)
}

func lookup(samples []Sample, k Kind) (float64, bool) {
	for _, s := range samples {
		if s.Kind == k {
			return s.Value, !s.Unavailable
		}
	}
	return 0, false
}

// Rejections counts the samples of this frame the spike filter replaced.
func (f *Frame) Rejections() int {
	n := 0
	for _, e := range f.ESCs {
		for _, s := range e.Samples {
			if s.Rejected {
				n++
			}
		}
	}
	for _, s := range f.Aggregates {
		if s.Rejected {
			n++
		}
	}
	return n
}
