package telemetry

import (
	"fmt"
	"time"

	"esc-telemetry/internal/config"
	"esc-telemetry/internal/protocol/esc"
)

// OptionsFromConfig converts the robot section of the config file. The
// roster order of the file is kept as the column order.
func OptionsFromConfig(cfg config.RobotConfig, start time.Time) (Options, error) {
	opts := Options{
		Name:         cfg.Name,
		Marker:       cfg.Marker,
		ReferenceESC: cfg.ReferenceESC,
		Precision:    cfg.Precision,
		StartTime:    start,
		Filter: FilterConfig{
			Enabled: cfg.Filter.Enabled,
			Temperature: TemperatureBounds{
				Min:      cfg.Filter.Temperature.Min,
				Max:      cfg.Filter.Temperature.Max,
				MaxDelta: cfg.Filter.Temperature.MaxDelta,
			},
			Voltage: Bounds{Min: cfg.Filter.Voltage.Min, Max: cfg.Filter.Voltage.Max},
		},
		Constants: esc.Constants{
			Scale:        cfg.Decode.Scale,
			TempSpan:     cfg.Decode.TempSpan,
			VoltageSpan:  cfg.Decode.VoltageSpan,
			CurrentSpan:  cfg.Decode.CurrentSpan,
			RPMFullScale: cfg.Decode.RPMFullScale,
			RPMDivisor:   cfg.Decode.RPMDivisor,
			TruncateRPM:  cfg.Decode.TruncateRPM,
		},
	}

	robotKinds, robotRanges, err := measurements(cfg.Measurements)
	if err != nil {
		return Options{}, fmt.Errorf("robot measurements: %w", err)
	}
	for _, k := range robotKinds {
		if !k.RobotLevel() {
			return Options{}, fmt.Errorf("robot measurements: %s is a controller measurement", k)
		}
	}
	opts.RobotRanges = robotRanges

	for _, e := range cfg.ESCs {
		class, err := esc.ParseClass(e.Class)
		if err != nil {
			return Options{}, fmt.Errorf("ESC %q: %w", e.Name, err)
		}
		kinds, ranges, err := measurements(e.Measurements)
		if err != nil {
			return Options{}, fmt.Errorf("ESC %q: %w", e.Name, err)
		}
		opts.ESCs = append(opts.ESCs, ESCConfig{
			Name:   e.Name,
			Class:  class,
			Slot:   e.Slot,
			Active: e.Active,
			Kinds:  kinds,
			Ranges: ranges,
		})
	}
	return opts, nil
}

func measurements(list []config.MeasurementConfig) ([]Kind, map[Kind]Range, error) {
	kinds := make([]Kind, 0, len(list))
	ranges := make(map[Kind]Range, len(list))
	for _, m := range list {
		k, err := ParseKind(m.Name)
		if err != nil {
			return nil, nil, err
		}
		kinds = append(kinds, k)
		switch {
		case m.Min == nil && m.Max == nil:
		case m.Min == nil || m.Max == nil:
			return nil, nil, fmt.Errorf("%s: range needs both min and max", k)
		case *m.Min > *m.Max:
			return nil, nil, fmt.Errorf("%s: min %v above max %v", k, *m.Min, *m.Max)
		default:
			ranges[k] = Range{Min: *m.Min, Max: *m.Max}
		}
	}
	return kinds, ranges, nil
}
