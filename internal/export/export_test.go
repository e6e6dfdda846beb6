package export

import (
	"bytes"
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"esc-telemetry/internal/config"
	"esc-telemetry/internal/source"
	"esc-telemetry/internal/telemetry"
)

var start = time.Date(2024, 3, 9, 14, 0, 0, 0, time.UTC)

func sampleTable() telemetry.Table {
	return telemetry.Table{
		Robot: "Colossal Avian",
		Start: start,
		Timestamps: []time.Time{
			start,
			start.Add(500 * time.Millisecond),
			start.Add(1500 * time.Millisecond),
		},
		Columns: []telemetry.Column{
			{ESC: "Weapon ESC", Kind: telemetry.KindTemp, Values: []float64{30, 31.5, 32}},
			{ESC: "Weapon ESC", Kind: telemetry.KindRPM, Values: []float64{2916, telemetry.Unavailable, 0}},
			{Kind: telemetry.KindBatteryVoltage, Values: []float64{12, 12.1, 11.9}},
		},
	}
}

func newTestExporter(t *testing.T, at time.Time) *Exporter {
	t.Helper()
	e := NewExporter(config.ExportConfig{Dir: t.TempDir(), Prefix: "avian"}, zap.NewNop())
	e.now = func() time.Time { return at }
	return e
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestExportWritesHeaderAndRows(t *testing.T) {
	e := newTestExporter(t, start)
	tbl := sampleTable()

	path, err := e.Export(tbl)
	require.NoError(t, err)
	assert.Equal(t, "avian_2024_03_09_14_00_00.csv", filepath.Base(path))

	records := readCSV(t, path)
	require.Len(t, records, tbl.Rows()+1)
	assert.Equal(t, []string{"Timestamp", "Seconds from start", "Weapon ESC Temp", "Weapon ESC RPM", "Battery Voltage"}, records[0])
	assert.Equal(t, []string{"14_00_00_500000", "0.500", "31.5", "", "12.1"}, records[2])

	for i, rec := range records[1:] {
		for col := range tbl.Columns {
			got, err := ParseValue(rec[col+2])
			require.NoError(t, err)
			want := tbl.Columns[col].Values[i]
			if math.IsNaN(want) {
				assert.True(t, math.IsNaN(got), "row %d col %d", i, col)
				continue
			}
			assert.Equal(t, want, got, "row %d col %d", i, col)
		}
	}
}

func TestWriteTableIsDeterministic(t *testing.T) {
	var a, b bytes.Buffer
	require.NoError(t, WriteTable(&a, sampleTable()))
	require.NoError(t, WriteTable(&b, sampleTable()))
	assert.Equal(t, a.Bytes(), b.Bytes())
}

func TestWriteTableEmpty(t *testing.T) {
	var buf bytes.Buffer
	tbl := sampleTable()
	tbl.Timestamps = nil
	require.NoError(t, WriteTable(&buf, tbl))
	assert.Equal(t, "Timestamp,Seconds from start,Weapon ESC Temp,Weapon ESC RPM,Battery Voltage\n", buf.String())
}

func TestExportNameCollision(t *testing.T) {
	e := newTestExporter(t, start)

	first, err := e.Export(sampleTable())
	require.NoError(t, err)
	second, err := e.Export(sampleTable())
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, "avian_2024_03_09_14_00_00_2.csv", filepath.Base(second))
	assert.Len(t, readCSV(t, first), 4)
}

func TestAutoSaveSuffix(t *testing.T) {
	e := newTestExporter(t, start)
	path, err := e.AutoSave(sampleTable())
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "_auto_saved.csv"), path)
}

func TestExportUnwritableDir(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	e := NewExporter(config.ExportConfig{Dir: blocker}, zap.NewNop())
	_, err := e.Export(sampleTable())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExport)
}

func TestRawRoundTrip(t *testing.T) {
	entries := []source.RawEntry{
		{ReceivedAt: start.Add(123456789 * time.Nanosecond), Line: "Data: 1 2 3"},
		{ReceivedAt: start.Add(time.Second), Line: `Data: "quoted", 4`},
	}

	e := newTestExporter(t, start)
	path, err := e.ExportRaw(entries)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "_raw.csv"), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	got, err := ReadRaw(f)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for i := range entries {
		assert.True(t, entries[i].ReceivedAt.Equal(got[i].ReceivedAt))
		assert.Equal(t, entries[i].Line, got[i].Line)
	}
}

func TestReadRawPlainText(t *testing.T) {
	got, err := ReadRaw(strings.NewReader("Data: 1 2\r\nradio ok\nData: 3 4"))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Data: 1 2", got[0].Line)
	assert.Equal(t, "Data: 3 4", got[2].Line)
	assert.True(t, got[0].ReceivedAt.IsZero())
}

func TestReadRawBadTime(t *testing.T) {
	_, err := ReadRaw(strings.NewReader("arrival_time,line\nyesterday,Data: 1\n"))
	assert.Error(t, err)
}

func TestFormatting(t *testing.T) {
	at := time.Date(2024, 3, 9, 14, 0, 0, 123456789, time.UTC)
	assert.Equal(t, "14_00_00_123456", FormatRowTime(at))
	assert.Equal(t, "1.500", FormatSeconds(1.5))
	assert.Equal(t, "", FormatValue(telemetry.Unavailable))
	assert.Equal(t, "-72", FormatValue(-72))
	assert.Equal(t, "avian_2024_03_09_14_00_00_raw.csv", FileName("avian", at, SuffixRaw))

	v, err := ParseValue("")
	require.NoError(t, err)
	assert.True(t, math.IsNaN(v))
}
