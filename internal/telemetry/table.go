package telemetry

import "time"

// Column is one exported series. ESC is empty for robot-level columns.
type Column struct {
	ESC    string
	Kind   Kind
	Values []float64
}

func (c Column) Header() string {
	if c.ESC == "" {
		return c.Kind.String()
	}
	return c.ESC + " " + c.Kind.String()
}

// Table is an aligned copy of the whole recording: column values are
// indexed by timestamp position.
type Table struct {
	Robot      string
	Start      time.Time
	Timestamps []time.Time
	Columns    []Column
}

func (t Table) Rows() int {
	return len(t.Timestamps)
}

// Cell returns the value of column col at row. ok is false for a missing
// or unavailable sample.
func (t Table) Cell(col, row int) (float64, bool) {
	if col < 0 || col >= len(t.Columns) {
		return 0, false
	}
	values := t.Columns[col].Values
	if row < 0 || row >= len(values) || IsUnavailable(values[row]) {
		return 0, false
	}
	return values[row], true
}

// Table copies the recording: roster columns in ESC then measurement order,
// followed by the robot columns.
func (r *Robot) Table() Table {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tableLocked()
}

func (r *Robot) tableLocked() Table {
	t := Table{
		Robot:      r.name,
		Start:      r.start,
		Timestamps: append([]time.Time(nil), r.timestamps...),
	}
	for _, e := range r.escs {
		for _, k := range e.kinds {
			t.Columns = append(t.Columns, Column{ESC: e.name, Kind: k, Values: e.series[k].Values()})
		}
	}
	for _, k := range RobotKinds {
		t.Columns = append(t.Columns, Column{Kind: k, Values: r.robot[k].Values()})
	}
	return t
}
