package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"esc-telemetry/internal/config"
	"esc-telemetry/internal/export"
	"esc-telemetry/internal/infra/kafka"
	"esc-telemetry/internal/infra/mq"
	"esc-telemetry/internal/infra/rabbitmq"
	"esc-telemetry/internal/logging"
	"esc-telemetry/internal/server"
	"esc-telemetry/internal/source"
	"esc-telemetry/internal/telemetry"
	"esc-telemetry/internal/usecase"
	handler "esc-telemetry/internal/usecase/telemetry"
)

// drainTimeout bounds how long shutdown waits for queued lines.
const drainTimeout = 5 * time.Second

var configPath string

var rootCmd = &cobra.Command{
	Use:   "recorder",
	Short: "Record ESC telemetry from the robot's radio link",
	Long: `Recorder reads "Data:" telemetry lines from a serial receiver (or a
TCP bridge), decodes every controller, and keeps the whole session in memory.

Signals:
  SIGUSR1  export the recording to CSV
  SIGUSR2  clear the recording (auto-saved first when enabled)
  SIGINT   stop, auto-save and write the raw-line log`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(configPath)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "path to the config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// lineSource is what the serial reader and the TCP bridge have in common.
type lineSource interface {
	Lines() <-chan source.Line
	RawLog() *source.RawLog
	Stats() (forwarded, dropped uint64)
}

func run(path string) error {
	// 1. 配置加载
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	session := uuid.New().String()
	logger := logging.New(cfg.Log).With(zap.String("session", session))
	defer logger.Sync()

	// 2. 基础设施层 (消息队列)
	producer, err := newProducer(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize message queue producer", zap.Error(err))
		return err
	}
	defer producer.Close()

	dispatcher := usecase.NewDataDispatcher(producer, cfg.MessageQueue.Topic, cfg.MessageQueue.Workers, logger)
	dispatcher.Start()
	defer dispatcher.Stop()

	// 3. 业务逻辑层 (机器人 & 导出 & 处理器)
	opts, err := telemetry.OptionsFromConfig(cfg.Robot, time.Now())
	if err != nil {
		return fmt.Errorf("robot config: %w", err)
	}
	robot, err := telemetry.NewRobot(opts)
	if err != nil {
		return fmt.Errorf("robot config: %w", err)
	}

	exporter := export.NewExporter(cfg.Export, logger)
	if cfg.Export.AutoSaveOnClear {
		robot.OnClear(func(t telemetry.Table) error {
			_, err := exporter.AutoSave(t)
			return err
		})
	}

	links := handler.NewLinkMonitor(logger)
	h := handler.NewHandler(robot, links, dispatcher, session, logger)

	// 4. 数据来源
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src, stop, srcErr := startSource(ctx, cfg, links, logger)

	handlerDone := make(chan struct{})
	go func() {
		defer close(handlerDone)
		h.Run(context.Background(), src.Lines())
	}()

	logger.Info("Recorder started",
		zap.String("robot", robot.Name()),
		zap.String("source", cfg.Source.Type),
		zap.Int("escs", len(robot.ESCs())))

	// 5. 主循环: 信号, 心跳, 状态
	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(sigC)

	heartbeat := newTicker(cfg.Source.LinkTimeout)
	defer heartbeat.Stop()
	status := newTicker(cfg.Robot.StatusPeriod)
	defer status.Stop()

loop:
	for {
		select {
		case sig := <-sigC:
			switch sig {
			case syscall.SIGUSR1:
				if _, err := exporter.Export(robot.Table()); err != nil {
					logger.Error("Export failed", zap.Error(err))
				}
			case syscall.SIGUSR2:
				_ = h.Clear()
			default:
				logger.Info("Shutting down...", zap.String("signal", sig.String()))
				break loop
			}
		case err := <-srcErr:
			if err != nil {
				logger.Error("Source stopped", zap.Error(err))
			} else {
				logger.Info("Source stopped")
			}
			break loop
		case <-heartbeat.C:
			links.CheckHeartbeat(cfg.Source.LinkTimeout)
		case <-status.C:
			logStatus(logger, robot.Snapshot(), src)
		}
	}

	// 优雅停机: 先停来源, 让处理器把队列中的行处理完, 再落盘
	stop()
	select {
	case <-handlerDone:
	case <-time.After(drainTimeout):
		logger.Warn("Handler did not drain in time")
	}

	if cfg.Export.AutoSaveOnExit && robot.Len() > 0 {
		if _, err := exporter.AutoSave(robot.Table()); err != nil {
			logger.Error("Auto-save on exit failed", zap.Error(err))
		}
	}
	if entries := src.RawLog().Entries(); len(entries) > 0 {
		if _, err := exporter.ExportRaw(entries); err != nil {
			logger.Error("Raw log export failed", zap.Error(err))
		}
	}

	sent, failed, dropped := dispatcher.Stats()
	logger.Info("Recorder stopped",
		zap.Int("samples", robot.Len()),
		zap.Uint64("mq_sent", sent),
		zap.Uint64("mq_failed", failed),
		zap.Uint64("mq_dropped", dropped))
	return nil
}

func newProducer(cfg *config.Config, logger *zap.Logger) (mq.Producer, error) {
	if !cfg.MessageQueue.Enabled {
		return mq.NewNoOpProducer(), nil
	}
	switch cfg.MessageQueue.Type {
	case "kafka":
		return kafka.NewKafkaProducer(cfg.MessageQueue.Kafka, logger)
	case "rabbitmq":
		return rabbitmq.NewRabbitMQProducer(cfg.MessageQueue.RabbitMQ, logger)
	default:
		return nil, fmt.Errorf("unknown message queue type %q", cfg.MessageQueue.Type)
	}
}

// startSource starts the configured source. stop makes it close its line
// channel; the error channel receives once when the source returns.
func startSource(ctx context.Context, cfg *config.Config, links *handler.LinkMonitor, logger *zap.Logger) (lineSource, func(), <-chan error) {
	errC := make(chan error, 1)

	if cfg.Source.Type == "tcp" {
		srv := server.NewTCPServer(cfg, logger, links)
		go func() { errC <- srv.Start(ctx) }()
		stop := func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
			if err := srv.Stop(stopCtx); err != nil {
				logger.Warn("TCP Server stop failed", zap.Error(err))
			}
		}
		return srv, stop, errC
	}

	readerCtx, cancel := context.WithCancel(ctx)
	reader := source.NewSerialReader(cfg.Source, cfg.Robot.Marker, logger)
	go func() { errC <- reader.Run(readerCtx) }()
	return reader, cancel, errC
}

func logStatus(logger *zap.Logger, snap telemetry.Snapshot, src lineSource) {
	fields := []zap.Field{
		zap.Int("samples", snap.Samples),
		zap.Uint64("accepted", snap.Stats.Accepted),
		zap.Uint64("malformed", snap.Stats.Malformed),
		zap.Uint64("ignored", snap.Stats.Ignored),
	}
	for _, m := range snap.Aggregates {
		if m.HasValue {
			fields = append(fields, zap.Float64(m.Kind.String(), m.Value))
		}
	}
	for _, e := range snap.ESCs {
		if !e.Active {
			continue
		}
		for _, m := range e.Measurements {
			if m.HasValue && m.Level != telemetry.LevelNormal {
				logger.Warn("Measurement out of normal range",
					zap.String("esc", e.Name),
					zap.String("kind", m.Kind.String()),
					zap.Float64("value", m.Value),
					zap.Stringer("level", m.Level))
			}
		}
	}
	_, dropped := src.Stats()
	fields = append(fields, zap.Uint64("lines_dropped", dropped))
	logger.Info("Status", fields...)
}

// newTicker returns a ticker that never fires for a non-positive period.
func newTicker(d time.Duration) *time.Ticker {
	if d <= 0 {
		t := time.NewTicker(time.Hour)
		t.Stop()
		return t
	}
	return time.NewTicker(d)
}
