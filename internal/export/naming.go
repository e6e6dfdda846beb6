package export

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

const (
	// SuffixAutoSaved marks exports taken on clear or shutdown.
	SuffixAutoSaved = "_auto_saved"
	// SuffixRaw marks the raw-line log.
	SuffixRaw = "_raw"

	fileTimeLayout = "2006_01_02_15_04_05"
	rowTimeLayout  = "15_04_05"
)

// FileName 生成导出文件名: <prefix>_YYYY_MM_DD_HH_MM_SS<suffix>.csv
func FileName(prefix string, at time.Time, suffix string) string {
	return prefix + "_" + at.Format(fileTimeLayout) + suffix + ".csv"
}

// FormatRowTime renders a row timestamp as hour_minute_second_microsecond.
func FormatRowTime(t time.Time) string {
	return fmt.Sprintf("%s_%06d", t.Format(rowTimeLayout), t.Nanosecond()/int(time.Microsecond))
}

// FormatSeconds renders elapsed seconds with three decimals.
func FormatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

// FormatValue renders a sample in its shortest exact form. Unavailable
// samples become an empty cell.
func FormatValue(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ParseValue is the inverse of FormatValue; an empty cell is NaN.
func ParseValue(s string) (float64, error) {
	if s == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}
