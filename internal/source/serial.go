package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"esc-telemetry/internal/config"
	"esc-telemetry/internal/protocol/esc"
)

// readTimeout bounds a single port read so cancellation is noticed.
const readTimeout = 200 * time.Millisecond

// SerialReader reads telemetry lines from the receiver's serial port.
type SerialReader struct {
	portName string
	baudRate int
	scanner  *esc.LineScanner
	sink     *Sink
	logger   *zap.Logger
	now      func() time.Time
}

func NewSerialReader(cfg config.SourceConfig, marker string, logger *zap.Logger) *SerialReader {
	return &SerialReader{
		portName: cfg.Port,
		baudRate: cfg.BaudRate,
		scanner:  esc.NewLineScanner(cfg.MaxLineLength),
		sink:     NewSink(cfg.ChannelBuffer, marker, NewRawLog(cfg.RawLogLimit)),
		logger:   logger.With(zap.String("port", cfg.Port)),
		now:      time.Now,
	}
}

func (r *SerialReader) Lines() <-chan Line { return r.sink.Lines() }
func (r *SerialReader) RawLog() *RawLog    { return r.sink.RawLog() }
func (r *SerialReader) Stats() (uint64, uint64) {
	return r.sink.Stats()
}

// Run opens the port and reads until ctx is cancelled or the port fails.
// The line channel is closed when Run returns.
func (r *SerialReader) Run(ctx context.Context) error {
	defer r.sink.Close()

	mode := &serial.Mode{
		BaudRate: r.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(r.portName, mode)
	if err != nil {
		return fmt.Errorf("open serial port %s: %w", r.portName, err)
	}
	defer port.Close()
	if err := port.SetReadTimeout(readTimeout); err != nil {
		return fmt.Errorf("set read timeout on %s: %w", r.portName, err)
	}

	r.logger.Info("Serial reader started", zap.Int("baud_rate", r.baudRate))
	err = r.consume(ctx, &ctxReader{ctx: ctx, r: port})

	forwarded, dropped := r.sink.Stats()
	r.logger.Info("Serial reader stopped",
		zap.Uint64("forwarded", forwarded),
		zap.Uint64("dropped", dropped))
	return err
}

// consume frames lines from rd until EOF or cancellation. It does not
// close the sink.
func (r *SerialReader) consume(ctx context.Context, rd io.Reader) error {
	sc := bufio.NewScanner(rd)
	maxBuf := r.scanner.MaxLineLength() * 2
	if maxBuf < 4096 {
		maxBuf = 4096
	}
	sc.Buffer(make([]byte, 0, 4096), maxBuf)
	sc.Split(r.scanner.SplitFunc)

	var lastDropWarn time.Time
	for sc.Scan() {
		line := Line{Text: sc.Text(), ReceivedAt: r.now(), Link: r.portName}
		if !r.sink.Emit(line) && time.Since(lastDropWarn) > time.Second {
			lastDropWarn = time.Now()
			_, dropped := r.sink.Stats()
			r.logger.Warn("Line channel full, dropping lines", zap.Uint64("dropped", dropped))
		}
	}

	err := sc.Err()
	if err == nil || errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return nil
	}
	return fmt.Errorf("read %s: %w", r.portName, err)
}

// ctxReader retries timed-out reads (0 bytes, nil error) until data
// arrives or ctx is done, so bufio.Scanner never sees an empty read.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	for {
		if err := c.ctx.Err(); err != nil {
			return 0, err
		}
		n, err := c.r.Read(p)
		if n > 0 || err != nil {
			return n, err
		}
	}
}
