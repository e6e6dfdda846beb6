package source

import (
	"sync"
	"sync/atomic"
	"time"

	"esc-telemetry/internal/protocol/esc"
)

// Line is one framed line as received. Sources never decode.
type Line struct {
	Text       string
	ReceivedAt time.Time
	// Link identifies the physical source: the serial port name or the
	// remote address of a bridged connection.
	Link string
}

// RawEntry is one line of the raw-line log.
type RawEntry struct {
	ReceivedAt time.Time
	Line       string
}

// RawLog keeps the marked lines a source received, in arrival order. A
// positive limit keeps only the newest entries.
type RawLog struct {
	mu      sync.Mutex
	entries []RawEntry
	limit   int
	dropped uint64
}

func NewRawLog(limit int) *RawLog {
	return &RawLog{limit: limit}
}

func (l *RawLog) Append(e RawEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.limit > 0 && len(l.entries) >= l.limit {
		n := len(l.entries) - l.limit + 1
		l.entries = append(l.entries[:0], l.entries[n:]...)
		l.dropped += uint64(n)
	}
	l.entries = append(l.entries, e)
}

// Entries returns a copy of the log.
func (l *RawLog) Entries() []RawEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]RawEntry(nil), l.entries...)
}

func (l *RawLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Dropped counts entries evicted by the limit.
func (l *RawLog) Dropped() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

func (l *RawLog) Reset() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
}

// Sink is the hand-off between a reader goroutine and the packet handler:
// marked lines go to the raw log, every line goes to a bounded channel.
// A full channel drops the line and counts it; the reader never blocks.
type Sink struct {
	out       chan Line
	raw       *RawLog
	marker    string
	forwarded atomic.Uint64
	dropped   atomic.Uint64

	mu     sync.RWMutex
	closed bool
}

func NewSink(buffer int, marker string, raw *RawLog) *Sink {
	if buffer <= 0 {
		buffer = 1024
	}
	if marker == "" {
		marker = esc.DefaultMarker
	}
	if raw == nil {
		raw = NewRawLog(0)
	}
	return &Sink{
		out:    make(chan Line, buffer),
		raw:    raw,
		marker: marker,
	}
}

// Emit records and forwards one line. It reports false when the line was
// dropped because the channel is full or the sink is closed. Safe for
// concurrent use.
func (s *Sink) Emit(l Line) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.dropped.Add(1)
		return false
	}
	if esc.HasMarker(l.Text, s.marker) {
		s.raw.Append(RawEntry{ReceivedAt: l.ReceivedAt, Line: l.Text})
	}
	select {
	case s.out <- l:
		s.forwarded.Add(1)
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

func (s *Sink) Lines() <-chan Line {
	return s.out
}

func (s *Sink) RawLog() *RawLog {
	return s.raw
}

func (s *Sink) Stats() (forwarded, dropped uint64) {
	return s.forwarded.Load(), s.dropped.Load()
}

// Close closes the line channel; later Emit calls are dropped.
func (s *Sink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.out)
	}
}
