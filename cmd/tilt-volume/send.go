package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sweeney/tilt-volume/internal/ingest"
	"github.com/sweeney/tilt-volume/internal/protocol"
)

var (
	sendTo       string
	sendCount    int
	sendInterval time.Duration
	sendStep     float64
	sendStart    float64
)

// sendCmd emits synthetic datagrams so a daemon can be exercised without the
// handheld.
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send synthetic sensor datagrams to a running daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := net.Dial("udp", sendTo)
		if err != nil {
			return fmt.Errorf("dial %s: %w", sendTo, err)
		}
		defer conn.Close()

		n, err := sendSweep(conn, sendCount, sendStart, sendStep, sendInterval)
		logger.Info("sent datagrams", zap.String("to", sendTo), zap.Int("count", n))
		return err
	},
}

// sendSweep writes count readings whose orientation y starts at start and
// moves by step each time.
func sendSweep(w io.Writer, count int, start, step float64, interval time.Duration) (int, error) {
	y := start
	for i := 0; i < count; i++ {
		if i > 0 && interval > 0 {
			time.Sleep(interval)
		}
		r := protocol.SensorReading{
			Gyroscope:   protocol.Vector3{X: 0, Y: step, Z: 0},
			Orientation: protocol.Vector3{X: 0, Y: y, Z: 0},
		}
		if _, err := w.Write(protocol.Encode(r)); err != nil {
			return i, fmt.Errorf("send datagram %d: %w", i, err)
		}
		y += step
	}
	return count, nil
}

var decodeCmd = &cobra.Command{
	Use:   "decode [payload]",
	Short: "Decode a datagram payload and print it as JSON",
	Long:  "Decode a payload given as an argument, or read from stdin when none is given.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var payload []byte
		if len(args) == 1 {
			payload = []byte(args[0])
		} else {
			b, err := io.ReadAll(io.LimitReader(os.Stdin, ingest.MaxDatagramSize))
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			payload = []byte(strings.TrimRight(string(b), "\r\n"))
		}
		return decodeTo(cmd.OutOrStdout(), payload)
	},
}

func decodeTo(w io.Writer, payload []byte) error {
	r, err := protocol.Decode(payload)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func init() {
	f := sendCmd.Flags()
	f.StringVar(&sendTo, "to", fmt.Sprintf("127.0.0.1:%d", ingest.DefaultPort), "Daemon address")
	f.IntVar(&sendCount, "count", 10, "Number of datagrams to send")
	f.DurationVar(&sendInterval, "interval", 100*time.Millisecond, "Gap between datagrams")
	f.Float64Var(&sendStep, "step", 0.1, "Orientation y change per datagram")
	f.Float64Var(&sendStart, "start", 0, "Initial orientation y")
}
