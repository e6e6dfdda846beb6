package export

import (
	"encoding/csv"
	"io"

	"esc-telemetry/internal/telemetry"
)

const (
	headerTimestamp = "Timestamp"
	headerElapsed   = "Seconds from start"
)

// TableHeader returns the header row of a decoded export.
func TableHeader(t telemetry.Table) []string {
	header := make([]string, 0, 2+len(t.Columns))
	header = append(header, headerTimestamp, headerElapsed)
	for _, c := range t.Columns {
		header = append(header, c.Header())
	}
	return header
}

// TableRow formats row i. Cells past the end of a column, or unavailable
// samples, are left empty.
func TableRow(t telemetry.Table, i int) []string {
	ts := t.Timestamps[i]
	row := make([]string, 0, 2+len(t.Columns))
	row = append(row, FormatRowTime(ts), FormatSeconds(ts.Sub(t.Start).Seconds()))
	for col := range t.Columns {
		if v, ok := t.Cell(col, i); ok {
			row = append(row, FormatValue(v))
		} else {
			row = append(row, "")
		}
	}
	return row
}

// WriteTable writes the header and one row per timestamp.
func WriteTable(w io.Writer, t telemetry.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(TableHeader(t)); err != nil {
		return err
	}
	for i := range t.Timestamps {
		if err := cw.Write(TableRow(t, i)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
