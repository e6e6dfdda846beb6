package main

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"esc-telemetry/internal/client"
	"esc-telemetry/internal/protocol/esc"
)

var (
	addrFlag    string
	rateFlag    int
	countFlag   int
	stdoutFlag  bool
	noiseFlag   int
	markerFlag  string
	weaponSlot  int
	armSlot     int
	weaponSpeed float64
)

func init() {
	rootCmd.Flags().StringVarP(&addrFlag, "addr", "a", "127.0.0.1:9760", "recorder TCP bridge address")
	rootCmd.Flags().IntVarP(&rateFlag, "rate", "r", 10, "packets per second")
	rootCmd.Flags().IntVarP(&countFlag, "count", "n", 100, "number of packets (0 runs until interrupted)")
	rootCmd.Flags().BoolVar(&stdoutFlag, "stdout", false, "write lines to stdout instead of dialing")
	rootCmd.Flags().IntVar(&noiseFlag, "noise-every", 20, "emit a non-telemetry radio line every N packets (0 disables)")
	rootCmd.Flags().StringVar(&markerFlag, "marker", esc.DefaultMarker, "telemetry line marker")
	rootCmd.Flags().IntVar(&weaponSlot, "weapon-slot", 3, "packet slot of the weapon ESC")
	rootCmd.Flags().IntVar(&armSlot, "arm-slot", 2, "packet slot of the arm ESC")
	rootCmd.Flags().Float64Var(&weaponSpeed, "weapon-rpm", 9000, "peak weapon RPM")
}

var rootCmd = &cobra.Command{
	Use:          "simulator",
	Short:        "Send synthetic ESC telemetry lines",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runSimulator,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runSimulator(cmd *cobra.Command, args []string) error {
	if rateFlag <= 0 {
		return fmt.Errorf("rate must be positive, got %d", rateFlag)
	}

	var out io.Writer = os.Stdout
	if !stdoutFlag {
		conn, err := net.Dial("tcp", addrFlag)
		if err != nil {
			return fmt.Errorf("连接服务器失败: %w", err)
		}
		defer conn.Close()
		fmt.Fprintf(os.Stderr, "已连接到服务器 %s\n", addrFlag)
		out = conn
	}
	w := bufio.NewWriter(out)

	builder := client.NewPacketBuilder(markerFlag, esc.DefaultConstants())
	ticker := time.NewTicker(time.Second / time.Duration(rateFlag))
	defer ticker.Stop()

	for i := 0; countFlag == 0 || i < countFlag; i++ {
		if noiseFlag > 0 && i > 0 && i%noiseFlag == 0 {
			fmt.Fprintf(w, "RSSI check %d ok\n", i)
		}
		if err := fillPacket(builder, i); err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w, builder.Line()); err != nil {
			return err
		}
		if err := w.Flush(); err != nil {
			return fmt.Errorf("send packet %d: %w", i, err)
		}
		<-ticker.C
	}
	fmt.Fprintf(os.Stderr, "已发送 %d 个数据包\n", countFlag)
	return nil
}

// fillPacket 生成第 i 个模拟数据包: 武器电机周期性加速, 温度缓慢上升, 电池缓慢下降
func fillPacket(pb *client.PacketBuilder, i int) error {
	t := float64(i) / float64(rateFlag)
	phase := 0.5 + 0.5*math.Sin(t/2)

	drive := client.Values{
		Temp:        30 + t/20,
		Voltage:     16.8 - t/600,
		Current:     4 + 2*phase,
		Consumption: t * 1.5,
		RPM:         3000 * phase,
	}
	for slot := 0; slot < 2; slot++ {
		if err := pb.SetSlot(slot, drive); err != nil {
			return err
		}
	}

	weapon := client.Values{
		Temp:    20 + math.Min(t/10, 9),
		Voltage: 16.5 - t/600,
		Current: 40 * phase,
		RPM:     weaponSpeed * phase,
	}
	if err := pb.SetSlot(weaponSlot, weapon); err != nil {
		return err
	}
	arm := client.Values{Temp: 22, Voltage: 16.5 - t/600, Current: 2 * phase, RPM: 500 * phase}
	if err := pb.SetSlot(armSlot, arm); err != nil {
		return err
	}
	pb.SetSignal(byte(180 + i%20))
	return nil
}
