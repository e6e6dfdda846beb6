package telemetry

import "time"

// Measurement is the display view of one series: the current value, its
// clamped display value and severity, plus the observed extrema.
type Measurement struct {
	Kind     Kind    `json:"kind"`
	Unit     string  `json:"unit"`
	Value    float64 `json:"value"`
	HasValue bool    `json:"has_value"`
	Display  float64 `json:"display"`
	Level    Level   `json:"level"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Seeded   bool    `json:"seeded"`
	Rejected uint64  `json:"rejected"`
}

type ESCSnapshot struct {
	Name         string        `json:"name"`
	Class        string        `json:"class"`
	Active       bool          `json:"active"`
	Measurements []Measurement `json:"measurements"`
}

// Snapshot is what a display poller needs, copied in one read-locked pass.
type Snapshot struct {
	Robot      string        `json:"robot"`
	Start      time.Time     `json:"start"`
	Last       time.Time     `json:"last,omitempty"`
	Samples    int           `json:"samples"`
	Stats      Stats         `json:"stats"`
	ESCs       []ESCSnapshot `json:"escs"`
	Aggregates []Measurement `json:"aggregates"`
}

func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func measure(s *Series) Measurement {
	m := Measurement{
		Kind:     s.kind,
		Unit:     s.Unit(),
		Min:      s.min,
		Max:      s.max,
		Seeded:   s.seeded,
		Rejected: s.rejected,
	}
	if v, ok := s.Last(); ok {
		m.Value, m.HasValue = v, true
		m.Display = s.Clamp(v)
		m.Level = s.kind.Level(v)
	}
	return m
}

func (r *Robot) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := Snapshot{
		Robot:      r.name,
		Start:      r.start,
		Samples:    len(r.timestamps),
		Stats:      r.stats,
		ESCs:       make([]ESCSnapshot, 0, len(r.escs)),
		Aggregates: make([]Measurement, 0, len(RobotKinds)),
	}
	if last, ok := r.lastTimestamp(); ok {
		snap.Last = last
	}
	for _, e := range r.escs {
		es := ESCSnapshot{Name: e.name, Class: e.class.String(), Active: e.active}
		for _, k := range e.kinds {
			es.Measurements = append(es.Measurements, measure(e.series[k]))
		}
		snap.ESCs = append(snap.ESCs, es)
	}
	for _, k := range RobotKinds {
		snap.Aggregates = append(snap.Aggregates, measure(r.robot[k]))
	}
	return snap
}

// Aggregate returns a robot measurement of the snapshot.
func (s Snapshot) Aggregate(k Kind) (Measurement, bool) {
	for _, m := range s.Aggregates {
		if m.Kind == k {
			return m, true
		}
	}
	return Measurement{}, false
}
