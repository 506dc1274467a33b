// Command tilt-volume listens for handheld motion-sensor datagrams over UDP
// and raises the system volume when the device tilts up.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sweeney/tilt-volume/internal/config"
)

var (
	configPath string
	verbose    bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "tilt-volume",
	Short: "Raise system volume from a handheld's orientation stream",
	Long: `tilt-volume binds a UDP socket (default port 50000) and decodes
"G,x,y,z?R,x,y,z" sensor datagrams from a handheld device. Every time the
orientation y value increases, the configured volume controller is raised.

The latest reading is served over HTTP (/, /index.json, /api/snapshot, /ws)
and optionally published to an MQTT broker.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = newLogger(verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runDaemon,
}

func newLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	addDaemonFlags(rootCmd.Flags())
	rootCmd.AddCommand(sendCmd, decodeCmd)
}

func addDaemonFlags(f *pflag.FlagSet) {
	f.StringVarP(&configPath, "config", "c", "", "YAML config file")
	f.String("host", "", "UDP bind host (empty = all interfaces)")
	f.Int("port", 50000, "UDP port")
	f.String("http", ":8080", "HTTP status address (empty to disable)")
	f.String("broker", "", "MQTT broker address, e.g. tcp://localhost:1883 (empty to disable)")
	f.Duration("publish-interval", 0, "Minimum gap between MQTT snapshot messages (0 = every reading)")
	f.Duration("heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	f.Duration("stale-after", 2*time.Second, "Report the feed as stalled after this long without a reading")
	f.String("volume-mode", config.ModeLog, "Volume controller: log, command or mqtt")
	f.StringSlice("volume-command", nil, "Mixer command for --volume-mode=command ({value} is replaced by the signal)")
	f.Duration("min-interval", 0, "Minimum gap between volume raises (0 = no limit)")
	f.Int("arm-pin", -1, "BCM pin of the arm switch (-1 to disable gating)")
}

// loadConfig reads the config file and applies any flags the user set.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}

	f := cmd.Flags()
	if f.Changed("host") {
		cfg.Listen.Host, _ = f.GetString("host")
	}
	if f.Changed("port") {
		cfg.Listen.Port, _ = f.GetInt("port")
	}
	if f.Changed("http") {
		cfg.HTTP.Addr, _ = f.GetString("http")
	}
	if f.Changed("broker") {
		cfg.MQTT.Broker, _ = f.GetString("broker")
	}
	if f.Changed("publish-interval") {
		cfg.MQTT.PublishInterval, _ = f.GetDuration("publish-interval")
	}
	if f.Changed("heartbeat") {
		cfg.Heartbeat, _ = f.GetDuration("heartbeat")
	}
	if f.Changed("stale-after") {
		cfg.StaleAfter, _ = f.GetDuration("stale-after")
	}
	if f.Changed("volume-mode") {
		cfg.Volume.Mode, _ = f.GetString("volume-mode")
	}
	if f.Changed("volume-command") {
		cfg.Volume.Command, _ = f.GetStringSlice("volume-command")
	}
	if f.Changed("min-interval") {
		cfg.Volume.MinInterval, _ = f.GetDuration("min-interval")
	}
	if f.Changed("arm-pin") {
		cfg.Volume.ArmPin, _ = f.GetInt("arm-pin")
	}
	if verbose {
		cfg.Logging.Debug = true
	}

	return cfg, cfg.Validate()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
