package telemetry

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"

	"esc-telemetry/internal/protocol/esc"
	"esc-telemetry/internal/source"
	core "esc-telemetry/internal/telemetry"
	"esc-telemetry/internal/usecase"
)

// Handler is the only writer of the Robot: it consumes framed lines in
// arrival order and publishes every committed frame.
type Handler struct {
	Robot      *core.Robot
	Links      *LinkMonitor
	Dispatcher *usecase.DataDispatcher
	session    string
	logger     *zap.Logger
}

func NewHandler(robot *core.Robot, links *LinkMonitor, dispatcher *usecase.DataDispatcher, session string, logger *zap.Logger) *Handler {
	return &Handler{
		Robot:      robot,
		Links:      links,
		Dispatcher: dispatcher,
		session:    session,
		logger:     logger.With(zap.String("robot", robot.Name())),
	}
}

// HandleLine 处理单行遥测数据; 无标记的行返回 nil, nil
func (h *Handler) HandleLine(line source.Line) (frame *core.Frame, err error) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Panic in HandleLine",
				zap.Any("recover", r),
				zap.String("line", line.Text),
				zap.String("stack", string(debug.Stack())))
			frame, err = nil, fmt.Errorf("internal error: %v", r)
		}
	}()

	if h.Links != nil && line.Link != "" {
		h.Links.Touch(line.Link)
	}

	frame, err = h.Robot.HandleLine(line.Text, line.ReceivedAt)
	if err != nil {
		if errors.Is(err, esc.ErrMalformedPacket) {
			h.logger.Warn("Malformed packet dropped",
				zap.String("link", line.Link),
				zap.String("line", line.Text),
				zap.Error(err))
		}
		return nil, err
	}
	if frame == nil {
		h.logger.Debug("Ignored line without telemetry marker", zap.String("link", line.Link))
		return nil, nil
	}

	if n := frame.Rejections(); n > 0 {
		h.logger.Debug("Spike filter substituted samples", zap.Int("index", frame.Index), zap.Int("count", n))
	}
	if h.Dispatcher != nil {
		h.Dispatcher.Dispatch(usecase.MQPayload{
			Type:    usecase.PayloadFrame,
			Robot:   h.Robot.Name(),
			Session: h.session,
			Data:    frame,
		})
	}
	return frame, nil
}

// Run handles lines until the channel is closed or ctx is done.
func (h *Handler) Run(ctx context.Context, lines <-chan source.Line) {
	h.logger.Info("Packet handler started")
	defer func() {
		st := h.Robot.Stats()
		h.logger.Info("Packet handler stopped",
			zap.Uint64("accepted", st.Accepted),
			zap.Uint64("malformed", st.Malformed),
			zap.Uint64("ignored", st.Ignored))
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			_, _ = h.HandleLine(line)
		}
	}
}

// Clear empties the recording (running the auto-save hook first) and tells
// consumers the series restarted.
func (h *Handler) Clear() error {
	samples := h.Robot.Len()
	if err := h.Robot.Clear(); err != nil {
		h.logger.Error("Clear failed, data kept", zap.Error(err))
		return err
	}
	h.logger.Info("Recording cleared", zap.Int("samples", samples))
	if h.Dispatcher != nil {
		h.Dispatcher.Dispatch(usecase.MQPayload{
			Type:    usecase.PayloadCleared,
			Robot:   h.Robot.Name(),
			Session: h.session,
			Data:    map[string]int{"samples": samples},
		})
	}
	return nil
}
