package telemetry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esc-telemetry/internal/protocol/esc"
)

var t0 = time.Date(2024, 3, 9, 14, 0, 0, 0, time.UTC)

func dualBytes(temp byte, volt, cur, cons, rpm uint16) []byte {
	b := []byte{temp}
	for _, v := range []uint16{volt, cur, cons, rpm} {
		hi, lo := esc.Split16(v)
		b = append(b, hi, lo)
	}
	return b
}

func scaledBytes(temp, volt, cur, rpm uint16) []byte {
	var b []byte
	for _, v := range []uint16{temp, volt, cur, rpm} {
		hi, lo := esc.Split16(v)
		b = append(b, hi, lo)
	}
	return b
}

type tick struct {
	drive1, drive2, arm, weapon []byte
	signal                      byte
}

func (tk tick) line(t *testing.T) string {
	t.Helper()
	var pkt esc.Packet
	for slot, data := range [][]byte{tk.drive1, tk.drive2, tk.arm, tk.weapon} {
		if data == nil {
			continue
		}
		require.NoError(t, pkt.PutSlot(slot, data))
	}
	pkt.Bytes[esc.SignalIndex] = tk.signal
	return esc.EncodePacket(esc.DefaultMarker, &pkt)
}

func testOptions() Options {
	return Options{
		Name: "Colossal Avian",
		ESCs: []ESCConfig{
			{Name: "Drive ESC 1", Class: esc.ClassDualByteDirect, Slot: 0, Active: true},
			{Name: "Drive ESC 2", Class: esc.ClassDualByteDirect, Slot: 1, Active: false},
			{Name: "Arm ESC", Class: esc.ClassScaled12Bit, Slot: 2, Active: false},
			{Name: "Weapon ESC", Class: esc.ClassScaled12Bit, Slot: 3, Active: true},
		},
		ReferenceESC: "Weapon ESC",
		Precision:    2,
		Filter:       DefaultFilterConfig(),
		Constants:    esc.DefaultConstants(),
		StartTime:    t0,
	}
}

func newTestRobot(t *testing.T, mutate ...func(*Options)) *Robot {
	t.Helper()
	opts := testOptions()
	for _, m := range mutate {
		m(&opts)
	}
	r, err := NewRobot(opts)
	require.NoError(t, err)
	return r
}

func seriesValues(t *testing.T, r *Robot, escName string, k Kind) []float64 {
	t.Helper()
	s, ok := r.Series(escName, k)
	require.True(t, ok, "%s %s", escName, k)
	return s.Values
}

func robotValues(t *testing.T, r *Robot, k Kind) []float64 {
	t.Helper()
	s, ok := r.RobotSeries(k)
	require.True(t, ok, "%s", k)
	return s.Values
}

func TestRobotKeepsSeriesAligned(t *testing.T) {
	r := newTestRobot(t)
	tk := tick{
		drive1: dualBytes(40, 1200, 75, 100, 10000),
		weapon: scaledBytes(1500, 1500, 204, 1000),
		signal: 60,
	}
	for i := 0; i < 3; i++ {
		frame, err := r.HandleLine(tk.line(t), t0.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		require.NotNil(t, frame)
		assert.Equal(t, i, frame.Index)
		assert.Equal(t, float64(i), frame.Elapsed)
	}

	assert.Equal(t, 3, r.Len())
	assert.Len(t, r.Timestamps(), 3)
	table := r.Table()
	require.Equal(t, 3, table.Rows())
	for _, col := range table.Columns {
		assert.Len(t, col.Values, 3, col.Header())
	}
	assert.Equal(t, Stats{Accepted: 3}, r.Stats())
}

func TestRobotDualByteDirectDecode(t *testing.T) {
	r := newTestRobot(t)
	frame, err := r.HandleLine(tick{drive1: []byte{40, 0, 150, 0, 75, 0, 100, 39, 16}}.line(t), t0)
	require.NoError(t, err)

	want := map[Kind]float64{
		KindTemp:        40,
		KindVoltage:     1.5,
		KindCurrent:     0.75,
		KindConsumption: 100,
		KindRPM:         166666,
	}
	for k, v := range want {
		got, ok := frame.Value("Drive ESC 1", k)
		require.True(t, ok, "%s", k)
		assert.Equal(t, v, got, "%s", k)
	}
}

func TestRobotIgnoresUnmarkedLines(t *testing.T) {
	r := newTestRobot(t)

	frame, err := r.HandleLine("ESC boot v1.2", t0)
	assert.NoError(t, err)
	assert.Nil(t, frame)
	assert.Zero(t, r.Len())
	assert.Equal(t, uint64(1), r.Stats().Ignored)
}

func TestRobotMalformedPacketIsAllOrNothing(t *testing.T) {
	r := newTestRobot(t)
	_, err := r.HandleLine(tick{drive1: dualBytes(40, 1200, 0, 0, 0)}.line(t), t0)
	require.NoError(t, err)
	before := r.Table()

	_, err = r.HandleLine("Data: 1 2 3", t0.Add(time.Second))
	require.Error(t, err)
	assert.ErrorIs(t, err, esc.ErrMalformedPacket)

	_, err = r.HandleLine("Data: 1 2 3 4 5 6 7 8 9 10 11 12 13 14 15 16 17 18 19 20 21 22 23 24 25 26 27 28 29 30 31 32 33 34 256", t0.Add(time.Second))
	var mpe *esc.MalformedPacketError
	require.True(t, errors.As(err, &mpe))
	assert.Equal(t, 34, mpe.Field)

	assert.Equal(t, before, r.Table())
	assert.Equal(t, Stats{Accepted: 1, Malformed: 2}, r.Stats())
}

func TestRobotInactiveESCExcludedFromTotals(t *testing.T) {
	r := newTestRobot(t)
	tk := tick{
		drive1: dualBytes(40, 1200, 75, 100, 0),  // 0.75 A, 100 mAh
		drive2: dualBytes(40, 1200, 1000, 500, 0), // inactive: 10 A, 500 mAh
		arm:    scaledBytes(0, 0, 2042, 0),        // inactive: 50 A
		weapon: scaledBytes(0, 0, 2042, 0),        // 50 A
	}
	frame, err := r.HandleLine(tk.line(t), t0)
	require.NoError(t, err)

	total, ok := frame.Aggregate(KindTotalCurrent)
	require.True(t, ok)
	assert.Equal(t, 50.75, total)

	consumption, ok := frame.Aggregate(KindTotalConsumption)
	require.True(t, ok)
	assert.Equal(t, 100.0, consumption)

	// inactive controllers still record their own series
	assert.Equal(t, []float64{10}, seriesValues(t, r, "Drive ESC 2", KindCurrent))
	assert.Equal(t, []float64{500}, seriesValues(t, r, "Drive ESC 2", KindConsumption))
	assert.Equal(t, []float64{50}, seriesValues(t, r, "Arm ESC", KindCurrent))
}

func TestRobotBatteryVoltageFromReference(t *testing.T) {
	r := newTestRobot(t)
	frame, err := r.HandleLine(tick{weapon: scaledBytes(0, 1225, 0, 0)}.line(t), t0)
	require.NoError(t, err)

	v, ok := frame.Aggregate(KindBatteryVoltage)
	require.True(t, ok)
	assert.Equal(t, 12.0, v) // 1225/2042*20 = 11.998
}

func TestRobotBatteryVoltageUnavailableForInactiveReference(t *testing.T) {
	r := newTestRobot(t, func(o *Options) { o.ReferenceESC = "Arm ESC" })
	frame, err := r.HandleLine(tick{arm: scaledBytes(0, 1225, 0, 0), signal: 70}.line(t), t0)
	require.NoError(t, err)

	_, ok := frame.Aggregate(KindBatteryVoltage)
	assert.False(t, ok)

	battery := robotValues(t, r, KindBatteryVoltage)
	require.Len(t, battery, 1)
	assert.True(t, IsUnavailable(battery[0]))

	m, ok := r.Snapshot().Aggregate(KindBatteryVoltage)
	require.True(t, ok)
	assert.False(t, m.HasValue)
	assert.False(t, m.Seeded)

	signal, ok := frame.Aggregate(KindSignalStrength)
	require.True(t, ok)
	assert.Equal(t, 70.0, signal)
}

func TestRobotSpikeFilterSubstitutesPrevious(t *testing.T) {
	r := newTestRobot(t)
	_, err := r.HandleLine(tick{drive1: dualBytes(60, 1200, 0, 0, 0)}.line(t), t0)
	require.NoError(t, err)

	frame, err := r.HandleLine(tick{drive1: dualBytes(95, 300, 0, 0, 0)}.line(t), t0.Add(time.Second))
	require.NoError(t, err)
	assert.Positive(t, frame.Rejections())

	assert.Equal(t, []float64{60, 60}, seriesValues(t, r, "Drive ESC 1", KindTemp))
	assert.Equal(t, []float64{12, 12}, seriesValues(t, r, "Drive ESC 1", KindVoltage))

	temp, _ := r.Series("Drive ESC 1", KindTemp)
	assert.Equal(t, uint64(1), temp.Rejected)
	assert.Equal(t, 60.0, temp.Max)
}

func TestRobotConsumptionIntegration(t *testing.T) {
	r := newTestRobot(t, func(o *Options) { o.Constants.CurrentSpan = 10 })
	tk := tick{weapon: scaledBytes(0, 0, 2042, 0)} // 10 A

	_, err := r.HandleLine(tk.line(t), t0)
	require.NoError(t, err)
	_, err = r.HandleLine(tk.line(t), t0.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 10000}, seriesValues(t, r, "Weapon ESC", KindConsumption))
	acc, ok := r.Consumption("Weapon ESC")
	require.True(t, ok)
	assert.Equal(t, 10000.0, acc)
	assert.Equal(t, []float64{0, 10000}, robotValues(t, r, KindTotalConsumption))

	require.NoError(t, r.Clear())
	acc, _ = r.Consumption("Weapon ESC")
	assert.Zero(t, acc)

	_, ok = r.Consumption("Drive ESC 1")
	assert.False(t, ok)
}

func TestRobotFullScaleCurrentOverAnHour(t *testing.T) {
	r := newTestRobot(t)
	tk := tick{weapon: scaledBytes(0, 0, 2042, 0)} // 50 A
	for _, at := range []time.Time{t0, t0.Add(30 * time.Minute), t0.Add(time.Hour)} {
		_, err := r.HandleLine(tk.line(t), at)
		require.NoError(t, err)
	}
	assert.Equal(t, []float64{0, 25000, 50000}, seriesValues(t, r, "Weapon ESC", KindConsumption))
}

func TestRobotClampsNonMonotonicTime(t *testing.T) {
	r := newTestRobot(t)
	line := tick{}.line(t)
	_, err := r.HandleLine(line, t0.Add(time.Minute))
	require.NoError(t, err)
	frame, err := r.HandleLine(line, t0)
	require.NoError(t, err)

	assert.Equal(t, t0.Add(time.Minute), frame.Time)
	ts := r.Timestamps()
	assert.Equal(t, ts[0], ts[1])
}

func TestRobotClear(t *testing.T) {
	r := newTestRobot(t)
	_, err := r.HandleLine(tick{drive1: dualBytes(60, 1200, 0, 0, 0)}.line(t), t0)
	require.NoError(t, err)

	var saved Table
	r.OnClear(func(tb Table) error {
		saved = tb
		return nil
	})
	require.NoError(t, r.Clear())

	assert.Equal(t, 1, saved.Rows())
	assert.Zero(t, r.Len())
	assert.Empty(t, seriesValues(t, r, "Drive ESC 1", KindTemp))
	assert.Empty(t, robotValues(t, r, KindSignalStrength))
	assert.Equal(t, t0, r.StartTime())
	assert.Len(t, r.ESCs(), 4)

	// the first sample after a clear is never filtered
	_, err = r.HandleLine(tick{drive1: dualBytes(100, 1200, 0, 0, 0)}.line(t), t0.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, []float64{100}, seriesValues(t, r, "Drive ESC 1", KindTemp))
}

func TestRobotClearAbortsWhenHookFails(t *testing.T) {
	r := newTestRobot(t)
	_, err := r.HandleLine(tick{}.line(t), t0)
	require.NoError(t, err)

	boom := errors.New("disk full")
	r.OnClear(func(Table) error { return boom })

	assert.ErrorIs(t, r.Clear(), boom)
	assert.Equal(t, 1, r.Len())
}

func TestRobotClearSkipsHookWhenEmpty(t *testing.T) {
	r := newTestRobot(t)
	called := false
	r.OnClear(func(Table) error {
		called = true
		return nil
	})
	require.NoError(t, r.Clear())
	assert.False(t, called)
}

func TestRobotTableColumnOrder(t *testing.T) {
	r := newTestRobot(t, func(o *Options) {
		o.ESCs = o.ESCs[3:]
		o.ESCs[0].Kinds = []Kind{KindTemp, KindVoltage}
	})
	table := r.Table()

	var headers []string
	for _, c := range table.Columns {
		headers = append(headers, c.Header())
	}
	assert.Equal(t, []string{
		"Weapon ESC Temp", "Weapon ESC Voltage",
		"Battery Voltage", "Total Current", "Total Consumption", "Signal Strength",
	}, headers)
}

func TestRobotInputSignalIsUnavailable(t *testing.T) {
	r := newTestRobot(t, func(o *Options) {
		o.ESCs[0].Kinds = []Kind{KindTemp, KindInputSignal}
	})
	frame, err := r.HandleLine(tick{drive1: dualBytes(40, 0, 0, 0, 0)}.line(t), t0)
	require.NoError(t, err)

	_, ok := frame.Value("Drive ESC 1", KindInputSignal)
	assert.False(t, ok)
	values := seriesValues(t, r, "Drive ESC 1", KindInputSignal)
	require.Len(t, values, 1)
	assert.True(t, IsUnavailable(values[0]))
}

func TestRobotSnapshot(t *testing.T) {
	r := newTestRobot(t)
	_, err := r.HandleLine(tick{drive1: dualBytes(70, 1200, 0, 0, 0), signal: 85}.line(t), t0)
	require.NoError(t, err)
	_, err = r.HandleLine(tick{drive1: dualBytes(80, 1200, 0, 0, 0), signal: 85}.line(t), t0.Add(time.Second))
	require.NoError(t, err)

	snap := r.Snapshot()
	assert.Equal(t, "Colossal Avian", snap.Robot)
	assert.Equal(t, 2, snap.Samples)
	assert.Equal(t, t0.Add(time.Second), snap.Last)
	require.Len(t, snap.ESCs, 4)

	temp := snap.ESCs[0].Measurements[0]
	assert.Equal(t, KindTemp, temp.Kind)
	assert.Equal(t, 80.0, temp.Value)
	assert.Equal(t, 70.0, temp.Min)
	assert.Equal(t, 80.0, temp.Max)
	assert.Equal(t, LevelWarning, temp.Level)
}

func TestNewRobotValidation(t *testing.T) {
	cases := map[string]func(*Options){
		"no escs":            func(o *Options) { o.ESCs = nil },
		"duplicate name":     func(o *Options) { o.ESCs[1].Name = o.ESCs[0].Name },
		"shared slot":        func(o *Options) { o.ESCs[3].Slot = 2 },
		"class mismatch":     func(o *Options) { o.ESCs[0].Class = esc.ClassScaled12Bit },
		"slot out of range":  func(o *Options) { o.ESCs[0].Slot = 4 },
		"unknown reference":  func(o *Options) { o.ReferenceESC = "Spinner ESC" },
		"negative precision": func(o *Options) { o.Precision = -1 },
		"robot kind on esc":  func(o *Options) { o.ESCs[0].Kinds = []Kind{KindTotalCurrent} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			opts := testOptions()
			opts.ESCs = append([]ESCConfig(nil), opts.ESCs...)
			mutate(&opts)
			_, err := NewRobot(opts)
			assert.Error(t, err)
		})
	}
}
