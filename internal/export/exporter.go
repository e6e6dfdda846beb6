package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"esc-telemetry/internal/config"
	"esc-telemetry/internal/source"
	"esc-telemetry/internal/telemetry"
)

// ErrExport wraps every I/O failure of an export. In-memory data is never
// touched by a failed export, so the call can be retried.
var ErrExport = errors.New("export failed")

const maxNameAttempts = 100

// Exporter writes recordings to timestamped CSV files under one directory.
type Exporter struct {
	dir     string
	prefix  string
	bufSize int
	logger  *zap.Logger
	now     func() time.Time
}

func NewExporter(cfg config.ExportConfig, logger *zap.Logger) *Exporter {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "telemetry"
	}
	return &Exporter{
		dir:     cfg.Dir,
		prefix:  prefix,
		bufSize: cfg.BufferSizeKB * 1024,
		logger:  logger,
		now:     time.Now,
	}
}

// Export writes a user-triggered export and returns the file path.
func (e *Exporter) Export(t telemetry.Table) (string, error) {
	return e.exportTable(t, "")
}

// AutoSave writes an export taken on clear or shutdown.
func (e *Exporter) AutoSave(t telemetry.Table) (string, error) {
	return e.exportTable(t, SuffixAutoSaved)
}

func (e *Exporter) exportTable(t telemetry.Table, suffix string) (string, error) {
	w, err := e.create(suffix, TableHeader(t))
	if err != nil {
		return "", err
	}
	for i := range t.Timestamps {
		if err := w.WriteRow(TableRow(t, i)); err != nil {
			w.Close()
			return "", fmt.Errorf("%w: %s: %w", ErrExport, w.Path(), err)
		}
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrExport, w.Path(), err)
	}

	e.logger.Info("Telemetry exported",
		zap.String("robot", t.Robot),
		zap.String("path", w.Path()),
		zap.Uint64("rows", w.Rows()),
		zap.Int("columns", len(t.Columns)))
	return w.Path(), nil
}

// ExportRaw writes the raw-line log of a source.
func (e *Exporter) ExportRaw(entries []source.RawEntry) (string, error) {
	w, err := e.create(SuffixRaw, rawHeader)
	if err != nil {
		return "", err
	}
	for _, entry := range entries {
		if err := w.WriteRow(rawRow(entry)); err != nil {
			w.Close()
			return "", fmt.Errorf("%w: %s: %w", ErrExport, w.Path(), err)
		}
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrExport, w.Path(), err)
	}

	e.logger.Info("Raw line log exported", zap.String("path", w.Path()), zap.Uint64("lines", w.Rows()))
	return w.Path(), nil
}

// create opens a new file for the current time. An existing file is never
// overwritten; a numeric suffix is added instead.
func (e *Exporter) create(suffix string, header []string) (*CSVWriter, error) {
	if e.dir != "" {
		if err := os.MkdirAll(e.dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create dir %s: %w", ErrExport, e.dir, err)
		}
	}

	base := FileName(e.prefix, e.now(), suffix)
	for attempt := 1; attempt <= maxNameAttempts; attempt++ {
		name := base
		if attempt > 1 {
			name = strings.TrimSuffix(base, ".csv") + "_" + strconv.Itoa(attempt) + ".csv"
		}
		path := filepath.Join(e.dir, name)

		w, err := newCSVWriter(path, e.bufSize, header)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrExport, path, err)
		}
		return w, nil
	}
	return nil, fmt.Errorf("%w: no free file name for %s", ErrExport, base)
}
