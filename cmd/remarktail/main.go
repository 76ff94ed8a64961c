// remarktail prints every message a broker delivers for a topic filter.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"remarker/internal/tail"
	"remarker/internal/transport/mqtt"
	logx "remarker/pkg/logx"
)

var (
	port           int
	protocol       int
	qos            int
	noColor        bool
	connectTimeout time.Duration
	verbose        bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "remarktail <broker-address> [topic]",
		Short: "Print MQTT messages from a broker",
		Long: `remarktail subscribes to a topic filter and prints one line per message:

  Time: <timestamp> Topic: <topic> | <payload>

The topic defaults to "#" (everything). Shorthands:
  remark  licor/niobrara/system/log_remark
  diag    licor/niobrara/output/diagnostics
`,
		Args:         cobra.RangeArgs(1, 2),
		SilenceUsage: false,
		RunE:         runTail,
	}

	rootCmd.Flags().IntVar(&port, "port", mqtt.DefaultPort, "Broker port (used when the address has none)")
	rootCmd.Flags().IntVar(&protocol, "protocol", 3, "MQTT protocol version: 3 (3.1.1) or 5")
	rootCmd.Flags().IntVar(&qos, "qos", 0, "Subscription QoS (0, 1 or 2)")
	rootCmd.Flags().BoolVar(&noColor, "no-color", false, "Disable topic colorization")
	rootCmd.Flags().DurationVar(&connectTimeout, "connect-timeout", 10*time.Second, "Connect timeout")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log connection events to stderr")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runTail(cmd *cobra.Command, args []string) error {
	level := "warn"
	if verbose {
		level = "debug"
	}
	log := logx.NewConsoleTo(logx.Stderr(), level)

	opt, err := dialOptions()
	if err != nil {
		return err
	}
	filter := mqtt.WildcardTopic
	if len(args) > 1 {
		filter = tail.ExpandTopic(args[1])
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	conn, err := mqtt.NewDialer(opt).Dial(ctx, args[0])
	if err != nil {
		return fmt.Errorf("connect %s: %w", args[0], err)
	}
	defer conn.Close()
	log.Info("connected", logx.String("broker", mqtt.HostPort(args[0], port)))

	// Usage is only useful for argument errors.
	cmd.SilenceUsage = true
	printer := tail.NewPrinter(os.Stdout, !noColor && !color.NoColor)
	return tail.Run(ctx, conn, filter, printer, log)
}

func dialOptions() (mqtt.Options, error) {
	opt := mqtt.Options{
		Port:           port,
		ClientIDPrefix: "remarktail",
		KeepAlive:      60 * time.Second,
		ConnectTimeout: connectTimeout,
		PublishTimeout: 5 * time.Second,
	}
	switch protocol {
	case 3, 4:
		opt.Protocol = mqtt.ProtocolV311
	case 5:
		opt.Protocol = mqtt.ProtocolV5
	default:
		return opt, fmt.Errorf("unsupported --protocol %d (use 3 or 5)", protocol)
	}
	if qos < 0 || qos > 2 {
		return opt, fmt.Errorf("--qos %d out of range", qos)
	}
	opt.QoS = byte(qos)
	return opt, nil
}
