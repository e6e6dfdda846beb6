package export

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
)

const defaultBufferSize = 256 * 1024

// CSVWriter is a buffered CSV file writer. Rows go through a bufio.Writer
// and are only pushed to the OS on Flush or Close.
type CSVWriter struct {
	file *os.File
	buf  *bufio.Writer
	csv  *csv.Writer
	rows uint64
}

// newCSVWriter creates path exclusively and writes the header row.
func newCSVWriter(path string, bufSizeBytes int, header []string) (*CSVWriter, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, err
	}

	if bufSizeBytes <= 0 {
		bufSizeBytes = defaultBufferSize
	}
	bw := bufio.NewWriterSize(f, bufSizeBytes)
	w := &CSVWriter{
		file: f,
		buf:  bw,
		csv:  csv.NewWriter(bw),
	}

	if len(header) > 0 {
		if err := w.csv.Write(header); err != nil {
			f.Close()
			return nil, fmt.Errorf("csv write header: %w", err)
		}
	}
	return w, nil
}

// WriteRow appends one data row.
func (w *CSVWriter) WriteRow(row []string) error {
	if err := w.csv.Write(row); err != nil {
		return err
	}
	w.rows++
	return nil
}

func (w *CSVWriter) Flush() error {
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return err
	}
	return w.buf.Flush()
}

// Close flushes remaining data and closes the file.
func (w *CSVWriter) Close() error {
	flushErr := w.Flush()
	closeErr := w.file.Close()
	return errors.Join(flushErr, closeErr)
}

// Rows returns the number of data rows written (excludes header).
func (w *CSVWriter) Rows() uint64 {
	return w.rows
}

func (w *CSVWriter) Path() string {
	return w.file.Name()
}
