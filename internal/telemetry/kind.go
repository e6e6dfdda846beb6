package telemetry

import (
	"fmt"
	"math"
	"strings"
)

// Kind identifies a physical quantity. Behaviour that differs per quantity
// (unit, spike policy, display thresholds) is looked up from the kind.
type Kind int

const (
	KindTemp Kind = iota
	KindRPM
	KindCurrent
	KindConsumption
	KindVoltage
	KindInputSignal
	KindBatteryVoltage
	KindTotalCurrent
	KindTotalConsumption
	KindSignalStrength
)

type spikeClass int

const (
	spikeNone spikeClass = iota
	spikeTemperature
	spikeVoltage
)

// Level is a display severity for a current value.
type Level int

const (
	LevelNormal Level = iota
	LevelCaution
	LevelWarning
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelCaution:
		return "caution"
	case LevelWarning:
		return "warning"
	case LevelCritical:
		return "critical"
	default:
		return "normal"
	}
}

// thresholds 显示告警阈值; rising 为 true 时数值越大越危险
type thresholds struct {
	rising                     bool
	caution, warning, critical float64
}

type kindInfo struct {
	name   string
	unit   string
	spike  spikeClass
	levels *thresholds
}

var kindTable = map[Kind]kindInfo{
	KindTemp: {name: "Temp", unit: "°C", spike: spikeTemperature,
		levels: &thresholds{rising: true, caution: 68, warning: 75, critical: 85}},
	KindRPM:              {name: "RPM", unit: ""},
	KindCurrent:          {name: "Current", unit: "A"},
	KindConsumption:      {name: "Consumption", unit: "mAh"},
	KindVoltage:          {name: "Voltage", unit: "V", spike: spikeVoltage},
	KindInputSignal:      {name: "Input Signal", unit: "%"},
	KindBatteryVoltage:   {name: "Battery Voltage", unit: "V", spike: spikeVoltage},
	KindTotalCurrent:     {name: "Total Current", unit: "A"},
	KindTotalConsumption: {name: "Total Consumption", unit: "mAh"},
	KindSignalStrength: {name: "Signal Strength", unit: "dBm",
		levels: &thresholds{rising: false, caution: -70, warning: -80, critical: -90}},
}

// DefaultESCKinds is the measurement order of a controller when the roster
// does not list one.
var DefaultESCKinds = []Kind{KindTemp, KindRPM, KindCurrent, KindConsumption, KindVoltage}

// RobotKinds is the fixed order of the robot-level aggregates.
var RobotKinds = []Kind{KindBatteryVoltage, KindTotalCurrent, KindTotalConsumption, KindSignalStrength}

func (k Kind) String() string {
	if info, ok := kindTable[k]; ok {
		return info.name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k Kind) Unit() string {
	return kindTable[k].unit
}

// RobotLevel reports whether the kind is a robot aggregate rather than a
// per-controller measurement.
func (k Kind) RobotLevel() bool {
	return k >= KindBatteryVoltage && k <= KindSignalStrength
}

// Level classifies v against the kind's display thresholds.
func (k Kind) Level(v float64) Level {
	t := kindTable[k].levels
	if t == nil || math.IsNaN(v) {
		return LevelNormal
	}
	if t.rising {
		switch {
		case v >= t.critical:
			return LevelCritical
		case v >= t.warning:
			return LevelWarning
		case v >= t.caution:
			return LevelCaution
		}
		return LevelNormal
	}
	switch {
	case v < t.critical:
		return LevelCritical
	case v < t.warning:
		return LevelWarning
	case v < t.caution:
		return LevelCaution
	}
	return LevelNormal
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind accepts the display name in any case, with or without spaces
// ("Battery Voltage", "BatteryVoltage", "battery_voltage").
func ParseKind(name string) (Kind, error) {
	want := normalizeKindName(name)
	for k, info := range kindTable {
		if normalizeKindName(info.name) == want {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown measurement %q", name)
}

func normalizeKindName(s string) string {
	s = strings.ToLower(s)
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(s)
}
