package telemetry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"esc-telemetry/internal/protocol/esc"
)

// Options is everything a Robot needs from its environment.
type Options struct {
	Name   string
	Marker string
	ESCs   []ESCConfig
	// RobotRanges are display ranges of the robot-level series.
	RobotRanges map[Kind]Range
	// ReferenceESC supplies BatteryVoltage. Empty or inactive means the
	// aggregate is recorded as Unavailable.
	ReferenceESC string
	Precision    int
	Filter       FilterConfig
	Constants    esc.Constants
	StartTime    time.Time
}

// Stats are lifetime line counters; Clear does not reset them.
type Stats struct {
	Accepted  uint64 `json:"accepted"`
	Malformed uint64 `json:"malformed"`
	Ignored   uint64 `json:"ignored"`
}

// ClearHook receives the table as it was right before a clear.
type ClearHook func(Table) error

// Robot is the aggregate root: one timestamp sequence and every ESC and
// robot-level series aligned with it. HandleLine is expected to be called
// from a single goroutine; readers may call the accessors concurrently.
type Robot struct {
	mu sync.RWMutex

	name      string
	marker    string
	reference string
	precision int
	filter    SpikeFilter
	consts    esc.Constants
	start     time.Time

	escs       []*ESC // roster order, immutable after NewRobot
	byName     map[string]*ESC
	timestamps []time.Time
	robot      map[Kind]*Series
	stats      Stats
	onClear    ClearHook
}

func NewRobot(opts Options) (*Robot, error) {
	if len(opts.ESCs) == 0 {
		return nil, errors.New("robot has no ESCs")
	}
	if opts.Precision < 0 {
		return nil, fmt.Errorf("negative rounding precision %d", opts.Precision)
	}
	consts := opts.Constants
	if consts == (esc.Constants{}) {
		consts = esc.DefaultConstants()
	}
	if consts.Scale <= 0 || consts.RPMDivisor <= 0 {
		return nil, fmt.Errorf("invalid decode constants: scale %v, rpm divisor %v", consts.Scale, consts.RPMDivisor)
	}
	marker := opts.Marker
	if marker == "" {
		marker = esc.DefaultMarker
	}
	start := opts.StartTime
	if start.IsZero() {
		start = time.Now()
	}

	r := &Robot{
		name:      opts.Name,
		marker:    marker,
		reference: opts.ReferenceESC,
		precision: opts.Precision,
		filter:    NewSpikeFilter(opts.Filter),
		consts:    consts,
		start:     start,
		byName:    make(map[string]*ESC, len(opts.ESCs)),
		robot:     make(map[Kind]*Series, len(RobotKinds)),
	}

	slots := make(map[int]string, len(opts.ESCs))
	for _, cfg := range opts.ESCs {
		e, err := newESC(cfg)
		if err != nil {
			return nil, err
		}
		if _, dup := r.byName[e.name]; dup {
			return nil, fmt.Errorf("duplicate ESC name %q", e.name)
		}
		if other, dup := slots[e.slot]; dup {
			return nil, fmt.Errorf("ESC %q and %q share slot %d", other, e.name, e.slot)
		}
		slots[e.slot] = e.name
		r.byName[e.name] = e
		r.escs = append(r.escs, e)
	}
	if r.reference != "" {
		if _, ok := r.byName[r.reference]; !ok {
			return nil, fmt.Errorf("reference ESC %q is not in the roster", r.reference)
		}
	}

	for _, k := range RobotKinds {
		var valid *Range
		if rg, ok := opts.RobotRanges[k]; ok {
			valid = &rg
		}
		r.robot[k] = NewSeries(k, valid)
	}
	return r, nil
}

func (r *Robot) Name() string         { return r.name }
func (r *Robot) Marker() string       { return r.marker }
func (r *Robot) StartTime() time.Time { return r.start }
func (r *Robot) Precision() int       { return r.precision }

// HandleLine processes one received line. Lines without the marker are
// counted and ignored (nil frame, nil error). A malformed packet returns an
// error wrapping esc.ErrMalformedPacket and leaves every series untouched.
func (r *Robot) HandleLine(line string, at time.Time) (*Frame, error) {
	pkt, err := esc.ParseLine(line, r.marker)
	if errors.Is(err, esc.ErrNotTelemetry) {
		r.mu.Lock()
		r.stats.Ignored++
		r.mu.Unlock()
		return nil, nil
	}
	if err != nil {
		r.countMalformed()
		return nil, err
	}
	return r.HandlePacket(pkt, at)
}

// HandlePacket decodes every controller first and only then commits, so a
// decode failure never produces a partial tick.
func (r *Robot) HandlePacket(pkt *esc.Packet, at time.Time) (*Frame, error) {
	readings := make([]esc.Reading, len(r.escs))
	for i, e := range r.escs {
		data, err := pkt.Slot(e.slot)
		if err != nil {
			r.countMalformed()
			return nil, fmt.Errorf("%w: ESC %q: %v", esc.ErrMalformedPacket, e.name, err)
		}
		rd, err := esc.Decode(e.class, data, r.consts)
		if err != nil {
			r.countMalformed()
			return nil, fmt.Errorf("%w: ESC %q: %v", esc.ErrMalformedPacket, e.name, err)
		}
		readings[i] = rd
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	prev, hasPrev := r.lastTimestamp()
	if hasPrev && at.Before(prev) {
		at = prev
	}
	deltaHours := DeltaHours(prev, at, hasPrev)

	r.timestamps = append(r.timestamps, at)
	r.stats.Accepted++

	frame := &Frame{
		Robot:   r.name,
		Index:   len(r.timestamps) - 1,
		Time:    at,
		Elapsed: at.Sub(r.start).Seconds(),
		ESCs:    make([]ESCFrame, 0, len(r.escs)),
	}

	var totalCurrent, totalConsumption float64
	battery := Unavailable
	for i, e := range r.escs {
		rd := readings[i]
		if e.integrator != nil {
			rd.Consumption = e.integrator.Add(rd.Current, deltaHours)
			rd.HasConsumption = true
		}
		values := e.values(rd, r.precision)

		ef := ESCFrame{Name: e.name, Active: e.active, Samples: make([]Sample, 0, len(e.kinds))}
		for _, k := range e.kinds {
			v, ok := values[k]
			if !ok {
				// 该类别不提供此量 (例如 InputSignal), 仍占位保持对齐
				v = Unavailable
			}
			committed, rejected := r.filter.commit(e.series[k], v)
			ef.Samples = append(ef.Samples, newSample(k, committed, rejected))
		}
		frame.ESCs = append(frame.ESCs, ef)

		if !e.active {
			continue
		}
		totalCurrent += values[KindCurrent]
		totalConsumption += values[KindConsumption]
		if e.name == r.reference {
			battery = values[KindVoltage]
		}
	}

	aggregates := map[Kind]float64{
		KindBatteryVoltage:   battery,
		KindTotalCurrent:     esc.Round(totalCurrent, r.precision),
		KindTotalConsumption: esc.Round(totalConsumption, r.precision),
		KindSignalStrength:   float64(pkt.SignalStrength()),
	}
	frame.Aggregates = make([]Sample, 0, len(RobotKinds))
	for _, k := range RobotKinds {
		committed, rejected := r.filter.commit(r.robot[k], aggregates[k])
		frame.Aggregates = append(frame.Aggregates, newSample(k, committed, rejected))
	}
	return frame, nil
}

func (r *Robot) countMalformed() {
	r.mu.Lock()
	r.stats.Malformed++
	r.mu.Unlock()
}

func (r *Robot) lastTimestamp() (time.Time, bool) {
	if len(r.timestamps) == 0 {
		return time.Time{}, false
	}
	return r.timestamps[len(r.timestamps)-1], true
}

// OnClear registers the hook Clear runs before discarding data. The hook is
// called with the write lock held and must not call back into the Robot.
func (r *Robot) OnClear(hook ClearHook) {
	r.mu.Lock()
	r.onClear = hook
	r.mu.Unlock()
}

// Clear empties every series, the timestamps and the consumption
// accumulators. Start time and roster are kept. If the hook fails nothing is
// cleared.
func (r *Robot) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.onClear != nil && len(r.timestamps) > 0 {
		if err := r.onClear(r.tableLocked()); err != nil {
			return fmt.Errorf("clear aborted: %w", err)
		}
	}
	r.timestamps = nil
	for _, e := range r.escs {
		e.reset()
	}
	for _, s := range r.robot {
		s.Reset()
	}
	return nil
}

// ESCInfo describes a roster entry.
type ESCInfo struct {
	Name   string    `json:"name"`
	Class  esc.Class `json:"class"`
	Slot   int       `json:"slot"`
	Active bool      `json:"active"`
	Kinds  []Kind    `json:"kinds"`
}

func (e *ESC) info() ESCInfo {
	return ESCInfo{Name: e.name, Class: e.class, Slot: e.slot, Active: e.active, Kinds: e.Kinds()}
}

// ESCs lists the roster in configured order.
func (r *Robot) ESCs() []ESCInfo {
	out := make([]ESCInfo, 0, len(r.escs))
	for _, e := range r.escs {
		out = append(out, e.info())
	}
	return out
}

func (r *Robot) ESC(name string) (ESCInfo, bool) {
	e, ok := r.byName[name]
	if !ok {
		return ESCInfo{}, false
	}
	return e.info(), true
}

func (r *Robot) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.timestamps)
}

func (r *Robot) Timestamps() []time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]time.Time(nil), r.timestamps...)
}

func (r *Robot) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

// SeriesView is a copy of one series taken under the read lock.
type SeriesView struct {
	Kind     Kind      `json:"kind"`
	Unit     string    `json:"unit"`
	Values   []float64 `json:"-"`
	Min      float64   `json:"min"`
	Max      float64   `json:"max"`
	Seeded   bool      `json:"seeded"`
	Rejected uint64    `json:"rejected"`
	Range    *Range    `json:"range,omitempty"`
}

func (s *Series) view() SeriesView {
	v := SeriesView{
		Kind:     s.kind,
		Unit:     s.Unit(),
		Values:   s.Values(),
		Min:      s.min,
		Max:      s.max,
		Seeded:   s.seeded,
		Rejected: s.rejected,
	}
	if rg, ok := s.ValidRange(); ok {
		v.Range = &rg
	}
	return v
}

// Series returns a copy of one controller series.
func (r *Robot) Series(escName string, kind Kind) (SeriesView, bool) {
	e, ok := r.byName[escName]
	if !ok {
		return SeriesView{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := e.series[kind]
	if !ok {
		return SeriesView{}, false
	}
	return s.view(), true
}

func (r *Robot) RobotSeries(kind Kind) (SeriesView, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.robot[kind]
	if !ok {
		return SeriesView{}, false
	}
	return s.view(), true
}

// Consumption returns the accumulator of a scaled-12bit ESC.
func (r *Robot) Consumption(escName string) (float64, bool) {
	e, ok := r.byName[escName]
	if !ok || e.integrator == nil {
		return 0, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return e.integrator.Value(), true
}
