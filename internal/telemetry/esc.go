package telemetry

import (
	"fmt"

	"esc-telemetry/internal/protocol/esc"
)

// ESCConfig is the static description of one controller. Kinds fixes the
// measurement order; an empty list means DefaultESCKinds.
type ESCConfig struct {
	Name   string
	Class  esc.Class
	Slot   int
	Active bool
	Kinds  []Kind
	Ranges map[Kind]Range
}

// ESC owns the series of one controller. Inactive controllers are decoded
// and recorded but left out of the robot aggregates.
type ESC struct {
	name       string
	class      esc.Class
	slot       int
	active     bool
	kinds      []Kind
	series     map[Kind]*Series
	integrator *ConsumptionIntegrator
}

func newESC(cfg ESCConfig) (*ESC, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("ESC in slot %d has no name", cfg.Slot)
	}
	slotClass, err := esc.SlotClass(cfg.Slot)
	if err != nil {
		return nil, fmt.Errorf("ESC %q: %w", cfg.Name, err)
	}
	if slotClass != cfg.Class {
		return nil, fmt.Errorf("ESC %q: slot %d carries %s telemetry, configured as %s",
			cfg.Name, cfg.Slot, slotClass, cfg.Class)
	}

	kinds := cfg.Kinds
	if len(kinds) == 0 {
		kinds = DefaultESCKinds
	}

	e := &ESC{
		name:   cfg.Name,
		class:  cfg.Class,
		slot:   cfg.Slot,
		active: cfg.Active,
		kinds:  append([]Kind(nil), kinds...),
		series: make(map[Kind]*Series, len(kinds)),
	}
	for _, k := range e.kinds {
		if k.RobotLevel() {
			return nil, fmt.Errorf("ESC %q: %s is a robot-level measurement", cfg.Name, k)
		}
		if _, dup := e.series[k]; dup {
			return nil, fmt.Errorf("ESC %q: duplicate measurement %s", cfg.Name, k)
		}
		var valid *Range
		if r, ok := cfg.Ranges[k]; ok {
			valid = &r
		}
		e.series[k] = NewSeries(k, valid)
	}
	if cfg.Class == esc.ClassScaled12Bit {
		e.integrator = &ConsumptionIntegrator{}
	}
	return e, nil
}

func (e *ESC) Name() string     { return e.name }
func (e *ESC) Class() esc.Class { return e.class }
func (e *ESC) Slot() int        { return e.slot }
func (e *ESC) Active() bool     { return e.active }

func (e *ESC) Kinds() []Kind {
	return append([]Kind(nil), e.kinds...)
}

// values rounds a decoded reading into per-kind values. Kinds the class
// does not produce are absent.
func (e *ESC) values(r esc.Reading, precision int) map[Kind]float64 {
	out := map[Kind]float64{
		KindTemp:    esc.Round(r.Temp, precision),
		KindVoltage: esc.Round(r.Voltage, precision),
		KindCurrent: esc.Round(r.Current, precision),
		KindRPM:     esc.Round(r.RPM, precision),
	}
	if r.HasConsumption {
		out[KindConsumption] = esc.Round(r.Consumption, precision)
	}
	return out
}

func (e *ESC) reset() {
	for _, s := range e.series {
		s.Reset()
	}
	if e.integrator != nil {
		e.integrator.Reset()
	}
}
