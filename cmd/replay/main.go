package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"esc-telemetry/internal/config"
	"esc-telemetry/internal/export"
	"esc-telemetry/internal/logging"
	"esc-telemetry/internal/protocol/esc"
	"esc-telemetry/internal/source"
	"esc-telemetry/internal/telemetry"
)

var (
	configFlag   string
	outFlag      string
	intervalFlag time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "replay <raw-log>",
	Short: "Decode a raw-line log into a telemetry CSV",
	Long: `Replay feeds a raw-line log (the *_raw.csv a recorder writes on exit, or a
plain capture with one line per packet) through the configured roster and
writes the decoded export.

Recorded arrival times are kept. A plain capture has none, so packets are
spaced by --interval starting at the file's modification time.`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runReplay,
}

func init() {
	rootCmd.Flags().StringVarP(&configFlag, "config", "c", "configs/config.yaml", "path to the config file")
	rootCmd.Flags().StringVarP(&outFlag, "out", "o", "", "output file, \"-\" for stdout (default: export dir)")
	rootCmd.Flags().DurationVar(&intervalFlag, "interval", 100*time.Millisecond, "packet spacing for logs without arrival times")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configFlag)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.New(cfg.Log)
	defer logger.Sync()

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	entries, err := export.ReadRaw(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}
	if len(entries) == 0 {
		return errors.New("raw log is empty")
	}

	fallback := time.Now()
	if st, err := os.Stat(args[0]); err == nil {
		fallback = st.ModTime()
	}
	stampEntries(entries, fallback, intervalFlag)

	opts, err := telemetry.OptionsFromConfig(cfg.Robot, entries[0].ReceivedAt)
	if err != nil {
		return fmt.Errorf("robot config: %w", err)
	}
	robot, err := telemetry.NewRobot(opts)
	if err != nil {
		return fmt.Errorf("robot config: %w", err)
	}

	malformed := replay(robot, entries, logger)
	st := robot.Stats()
	logger.Info("Replay finished",
		zap.String("file", args[0]),
		zap.Uint64("accepted", st.Accepted),
		zap.Uint64("ignored", st.Ignored),
		zap.Int("malformed", malformed))

	return writeTable(cfg, robot.Table(), logger)
}

// stampEntries fills missing arrival times with evenly spaced synthetic ones.
func stampEntries(entries []source.RawEntry, start time.Time, interval time.Duration) {
	for i := range entries {
		if entries[i].ReceivedAt.IsZero() {
			entries[i].ReceivedAt = start.Add(time.Duration(i) * interval)
		}
	}
}

func replay(robot *telemetry.Robot, entries []source.RawEntry, logger *zap.Logger) int {
	malformed := 0
	for i, e := range entries {
		if _, err := robot.HandleLine(e.Line, e.ReceivedAt); err != nil {
			malformed++
			if errors.Is(err, esc.ErrMalformedPacket) {
				logger.Debug("Malformed packet skipped", zap.Int("entry", i), zap.Error(err))
			}
		}
	}
	return malformed
}

func writeTable(cfg *config.Config, t telemetry.Table, logger *zap.Logger) error {
	switch outFlag {
	case "":
		_, err := export.NewExporter(cfg.Export, logger).Export(t)
		return err
	case "-":
		return export.WriteTable(os.Stdout, t)
	default:
		f, err := os.OpenFile(outFlag, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			return fmt.Errorf("%w: %w", export.ErrExport, err)
		}
		if err := export.WriteTable(f, t); err != nil {
			f.Close()
			return fmt.Errorf("%w: %s: %w", export.ErrExport, outFlag, err)
		}
		return f.Close()
	}
}
