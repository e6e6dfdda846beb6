package export

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"esc-telemetry/internal/source"
)

var rawHeader = []string{"arrival_time", "line"}

// WriteRaw writes a raw-line log: arrival time (RFC 3339, nanoseconds) and
// the line verbatim.
func WriteRaw(w io.Writer, entries []source.RawEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(rawHeader); err != nil {
		return err
	}
	for _, e := range entries {
		if err := cw.Write(rawRow(e)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func rawRow(e source.RawEntry) []string {
	return []string{e.ReceivedAt.Format(time.RFC3339Nano), e.Line}
}

// ReadRaw parses a raw-line log written by WriteRaw. Input that does not
// start with the raw header is read as plain text, one line per entry,
// without arrival times.
func ReadRaw(r io.Reader) ([]source.RawEntry, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(strings.Join(rawHeader, ",")))
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, err
	}
	if string(head) != strings.Join(rawHeader, ",") {
		return readPlain(br)
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = len(rawHeader)
	if _, err := cr.Read(); err != nil {
		return nil, err
	}
	var out []source.RawEntry
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		at, err := time.Parse(time.RFC3339Nano, rec[0])
		if err != nil {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("raw log line %d: %w", line, err)
		}
		out = append(out, source.RawEntry{ReceivedAt: at, Line: rec[1]})
	}
}

func readPlain(r io.Reader) ([]source.RawEntry, error) {
	var out []source.RawEntry
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		out = append(out, source.RawEntry{Line: strings.TrimRight(sc.Text(), "\r")})
	}
	return out, sc.Err()
}
