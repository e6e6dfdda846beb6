package server

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/panjf2000/gnet/v2"
	"go.uber.org/zap"

	"esc-telemetry/internal/config"
	"esc-telemetry/internal/protocol/esc"
	"esc-telemetry/internal/source"
)

// LinkTracker is told about bridged connections so stale ones can be
// closed by the heartbeat check.
type LinkTracker interface {
	Add(link string, closer io.Closer)
	Remove(link string)
}

// connContext 保存每个连接的状态
type connContext struct {
	buffer []byte
	addr   string
}

// gnetCloser closes a connection from outside its event loop.
type gnetCloser struct {
	conn gnet.Conn
}

func (w *gnetCloser) Close() error {
	return w.conn.CloseWithCallback(nil)
}

// TCPServer accepts telemetry lines from a network bridge (a radio gateway
// forwarding its serial output) and feeds them to the same line channel a
// serial reader would.
type TCPServer struct {
	gnet.BuiltinEventEngine

	addr      string
	multicore bool
	logger    *zap.Logger
	scanner   *esc.LineScanner
	sink      *source.Sink
	links     LinkTracker
	now       func() time.Time
}

func NewTCPServer(cfg *config.Config, logger *zap.Logger, links LinkTracker) *TCPServer {
	marker := cfg.Robot.Marker
	return &TCPServer{
		addr:      fmt.Sprintf("tcp://%s:%d", cfg.Server.Host, cfg.Server.Port),
		multicore: cfg.Server.Multicore,
		logger:    logger,
		scanner:   esc.NewLineScanner(cfg.Source.MaxLineLength),
		sink:      source.NewSink(cfg.Source.ChannelBuffer, marker, source.NewRawLog(cfg.Source.RawLogLimit)),
		links:     links,
		now:       time.Now,
	}
}

func (s *TCPServer) Lines() <-chan source.Line { return s.sink.Lines() }
func (s *TCPServer) RawLog() *source.RawLog    { return s.sink.RawLog() }
func (s *TCPServer) Stats() (uint64, uint64) {
	return s.sink.Stats()
}

func (s *TCPServer) OnBoot(eng gnet.Engine) (action gnet.Action) {
	s.logger.Info("TCP Server is booting", zap.String("address", s.addr))
	return
}

func (s *TCPServer) OnOpen(c gnet.Conn) (out []byte, action gnet.Action) {
	addr := c.RemoteAddr().String()
	s.logger.Info("New connection opened", zap.String("remote_addr", addr))

	c.SetContext(&connContext{
		buffer: make([]byte, 0, 4096),
		addr:   addr,
	})
	if s.links != nil {
		s.links.Add(addr, &gnetCloser{conn: c})
	}
	return
}

func (s *TCPServer) OnTraffic(c gnet.Conn) (action gnet.Action) {
	ctx := c.Context().(*connContext)

	buf, _ := c.Next(-1)
	if len(buf) == 0 {
		return
	}
	ctx.buffer = append(ctx.buffer, buf...)
	s.drain(ctx, false)
	return
}

// drain emits every complete line in the connection buffer. At close the
// trailing unterminated line is emitted too.
func (s *TCPServer) drain(ctx *connContext, atEOF bool) {
	off := 0
	for off < len(ctx.buffer) {
		advance, token, err := s.scanner.SplitFunc(ctx.buffer[off:], atEOF)
		if err != nil || advance == 0 {
			break
		}
		if token != nil {
			s.emit(ctx.addr, string(token))
		}
		off += advance
	}
	// 未消费的半行移到缓冲区头部
	n := copy(ctx.buffer, ctx.buffer[off:])
	ctx.buffer = ctx.buffer[:n]
}

func (s *TCPServer) emit(addr, text string) {
	if !s.sink.Emit(source.Line{Text: text, ReceivedAt: s.now(), Link: addr}) {
		s.logger.Debug("Line dropped", zap.String("remote_addr", addr))
	}
}

func (s *TCPServer) OnClose(c gnet.Conn, err error) (action gnet.Action) {
	s.logger.Info("Connection closed", zap.String("remote", c.RemoteAddr().String()), zap.Error(err))
	if ctx, ok := c.Context().(*connContext); ok {
		s.drain(ctx, true)
		if s.links != nil {
			s.links.Remove(ctx.addr)
		}
	}
	return
}

func (s *TCPServer) OnShutdown(eng gnet.Engine) {
	s.logger.Info("TCP Server is shutting down")
}

// Start runs the event loops until Stop. The line channel is closed when
// Start returns.
func (s *TCPServer) Start(ctx context.Context) error {
	defer s.sink.Close()
	s.logger.Info("Starting TCP Server", zap.String("addr", s.addr))
	return gnet.Run(s, s.addr,
		gnet.WithMulticore(s.multicore),
		gnet.WithLogger(s.logger.Sugar()),
		gnet.WithReusePort(true),
	)
}

func (s *TCPServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping TCP Server...")
	return gnet.Stop(ctx, s.addr)
}
