package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeriesExtremaSkipUnavailable(t *testing.T) {
	s := NewSeries(KindBatteryVoltage, nil)
	s.Append(Unavailable)
	_, seeded := s.Min()
	assert.False(t, seeded)

	for _, v := range []float64{14.2, Unavailable, 11.8, 16.1} {
		s.Append(v)
	}
	assert.Equal(t, 5, s.Len())
	lo, _ := s.Min()
	hi, _ := s.Max()
	assert.Equal(t, 11.8, lo)
	assert.Equal(t, 16.1, hi)

	_, ok := s.At(2)
	assert.False(t, ok)
	v, ok := s.Last()
	require.True(t, ok)
	assert.Equal(t, 16.1, v)
}

func TestSeriesLastNAndCopies(t *testing.T) {
	s := NewSeries(KindRPM, nil)
	for i := 1; i <= 5; i++ {
		s.Append(float64(i))
	}
	assert.Equal(t, []float64{4, 5}, s.LastN(2))
	assert.Equal(t, []float64{1, 2, 3, 4, 5}, s.LastN(10))
	assert.Nil(t, s.LastN(0))

	values := s.Values()
	values[0] = 99
	v, _ := s.At(0)
	assert.Equal(t, 1.0, v)
}

func TestSeriesClamp(t *testing.T) {
	s := NewSeries(KindTemp, &Range{Min: 25, Max: 100})
	assert.Equal(t, 25.0, s.Clamp(10))
	assert.Equal(t, 100.0, s.Clamp(130))
	assert.Equal(t, 60.0, s.Clamp(60))
	assert.True(t, IsUnavailable(s.Clamp(Unavailable)))

	free := NewSeries(KindTemp, nil)
	assert.Equal(t, 130.0, free.Clamp(130))
	_, ok := free.ValidRange()
	assert.False(t, ok)
}

func TestSeriesReset(t *testing.T) {
	rg := Range{Min: 0, Max: 400}
	s := NewSeries(KindTotalCurrent, &rg)
	s.Append(12)
	s.markRejected()
	s.Reset()

	assert.Zero(t, s.Len())
	assert.Zero(t, s.Rejected())
	_, seeded := s.Max()
	assert.False(t, seeded)
	got, ok := s.ValidRange()
	require.True(t, ok)
	assert.Equal(t, rg, got)
	assert.Equal(t, KindTotalCurrent, s.Kind())
	assert.Equal(t, "A", s.Unit())
}

func TestSpikeFilter(t *testing.T) {
	f := NewSpikeFilter(DefaultFilterConfig())

	cases := []struct {
		name     string
		kind     Kind
		v, prev  float64
		hasPrev  bool
		want     float64
		rejected bool
	}{
		{"temp jump", KindTemp, 95, 60, true, 60, true},
		{"temp small step", KindTemp, 85, 60, true, 85, false},
		{"temp below floor", KindTemp, 10, 20, true, 20, true},
		{"temp above ceiling", KindTemp, 111, 100, true, 100, true},
		{"first temp", KindTemp, 200, 0, false, 200, false},
		{"voltage low", KindVoltage, 3, 12, true, 12, true},
		{"battery high", KindBatteryVoltage, 30, 24, true, 24, true},
		{"voltage ok", KindVoltage, 5, 12, true, 5, false},
		{"current passthrough", KindCurrent, 900, 1, true, 900, false},
		{"signal passthrough", KindSignalStrength, 255, 0, true, 255, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, rejected := f.Apply(tc.kind, tc.v, tc.prev, tc.hasPrev)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.rejected, rejected)
		})
	}
}

func TestSpikeFilterDisabled(t *testing.T) {
	cfg := DefaultFilterConfig()
	cfg.Enabled = false
	got, rejected := NewSpikeFilter(cfg).Apply(KindTemp, 95, 60, true)
	assert.Equal(t, 95.0, got)
	assert.False(t, rejected)
}

func TestSpikeFilterIgnoresUnavailablePrevious(t *testing.T) {
	s := NewSeries(KindBatteryVoltage, nil)
	f := NewSpikeFilter(DefaultFilterConfig())
	f.commit(s, Unavailable)

	got, rejected := f.commit(s, 40)
	assert.Equal(t, 40.0, got)
	assert.False(t, rejected)
}

func TestConsumptionIntegrator(t *testing.T) {
	var c ConsumptionIntegrator
	assert.Equal(t, 0.0, c.Add(10, 0))
	assert.Equal(t, 10000.0, c.Add(10, 1))
	assert.Equal(t, 10000.0, c.Value())
	c.Reset()
	assert.Zero(t, c.Value())
}

func TestDeltaHours(t *testing.T) {
	assert.Zero(t, DeltaHours(time.Time{}, t0, false))
	assert.Equal(t, 1.0, DeltaHours(t0, t0.Add(time.Hour), true))
	assert.Equal(t, 0.5, DeltaHours(t0, t0.Add(30*time.Minute), true))
	assert.Zero(t, DeltaHours(t0, t0.Add(-time.Minute), true))
}

func TestKindLevels(t *testing.T) {
	assert.Equal(t, LevelNormal, KindTemp.Level(67.9))
	assert.Equal(t, LevelCaution, KindTemp.Level(68))
	assert.Equal(t, LevelWarning, KindTemp.Level(75))
	assert.Equal(t, LevelCritical, KindTemp.Level(85))

	assert.Equal(t, LevelNormal, KindSignalStrength.Level(-60))
	assert.Equal(t, LevelCaution, KindSignalStrength.Level(-75))
	assert.Equal(t, LevelWarning, KindSignalStrength.Level(-85))
	assert.Equal(t, LevelCritical, KindSignalStrength.Level(-95))

	assert.Equal(t, LevelNormal, KindCurrent.Level(1e6))
	assert.Equal(t, LevelNormal, KindTemp.Level(Unavailable))
}

func TestParseKind(t *testing.T) {
	for _, name := range []string{"Battery Voltage", "BatteryVoltage", "battery_voltage"} {
		k, err := ParseKind(name)
		require.NoError(t, err, name)
		assert.Equal(t, KindBatteryVoltage, k)
	}
	_, err := ParseKind("Torque")
	assert.Error(t, err)

	text, err := KindTotalConsumption.MarshalText()
	require.NoError(t, err)
	var k Kind
	require.NoError(t, k.UnmarshalText(text))
	assert.Equal(t, KindTotalConsumption, k)
	assert.Equal(t, "mAh", k.Unit())
}
