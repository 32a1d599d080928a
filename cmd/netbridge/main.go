package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/glimte/netbridge"
	"github.com/glimte/netbridge/config"
	"github.com/glimte/netbridge/messaging"
)

var (
	// Version information
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

type runFlags struct {
	envFiles  []string
	endpoint  string
	pubsub    string
	httpAddr  string
	tick      time.Duration
	logLevel  string
	logFormat string
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "netbridge",
		Short: "Bridge vehicle state between a pub/sub bus and a remote ZeroMQ endpoint",
		Long: `netbridge forwards every local vehicle state to a remote request/reply
endpoint and republishes the remote replies as remote vehicle states.
Settings come from NETBRIDGE_* environment variables; flags override them.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var flags runFlags
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the bridge until interrupted",
		Long: `Run connects to the remote endpoint and the configured pub/sub side.
In memory mode local states are read as JSON lines from stdin and remote
states are written as JSON lines to stdout. Each line is sent only after
the reply to the previous one was received or abandoned; a line that
cannot be sent while the endpoint is unreachable is dropped. The process
exits once stdin is exhausted and the last reply is handled.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, &flags)
		},
	}
	runCmd.Flags().StringSliceVar(&flags.envFiles, "env-file", nil, "dotenv files to load (default .env)")
	runCmd.Flags().StringVarP(&flags.endpoint, "endpoint", "e", "", "remote REP endpoint, e.g. tcp://localhost:5555")
	runCmd.Flags().StringVarP(&flags.pubsub, "pubsub", "p", "", "pub/sub mode: memory, amqp or mqtt")
	runCmd.Flags().StringVar(&flags.httpAddr, "http", "", "address for health checks and the /ws live view")
	runCmd.Flags().DurationVar(&flags.tick, "tick", 0, "receive tick period")
	runCmd.Flags().StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error")
	runCmd.Flags().StringVar(&flags.logFormat, "log-format", "", "text or json")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "netbridge %s\n", rootCmd.Version)
		},
	}

	rootCmd.AddCommand(runCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, flags *runFlags) error {
	cfg, err := config.Load(flags.envFiles...)
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg, flags)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("shutting down", "signal", sig.String())
		cancel()
	}()

	ps, err := openPubSub(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open %s pub/sub: %w", cfg.PubSub, err)
	}

	node, err := netbridge.NewNode(ctx, cfg,
		netbridge.WithLogger(logger),
		netbridge.WithSource(ps.source),
		netbridge.WithSink(ps.sink))
	if err != nil {
		ps.source.Close()
		return fmt.Errorf("failed to start node: %w", err)
	}
	defer node.Close()

	if ps.input != nil {
		go feedStdin(ctx, cancel, node, ps.input, cfg.TickPeriod, logger)
	}

	logger.Info("netbridge running",
		"endpoint", cfg.Endpoint,
		"pubsub", cfg.PubSub,
		"connected", node.Connected(),
		"version", version)

	return node.Run(ctx)
}

// applyFlags copies explicitly set flags over the loaded configuration
func applyFlags(cmd *cobra.Command, cfg *config.Config, flags *runFlags) {
	f := cmd.Flags()
	if f.Changed("endpoint") {
		cfg.Endpoint = flags.endpoint
	}
	if f.Changed("pubsub") {
		cfg.PubSub = flags.pubsub
	}
	if f.Changed("http") {
		cfg.HTTPAddr = flags.httpAddr
	}
	if f.Changed("tick") {
		cfg.TickPeriod = flags.tick
	}
	if f.Changed("log-level") {
		cfg.Log.Level = flags.logLevel
	}
	if f.Changed("log-format") {
		cfg.Log.Format = flags.logFormat
	}
}

// feedStdin forwards stdin lines one request at a time and stops the
// process after the last reply
func feedStdin(ctx context.Context, stop context.CancelFunc, node *netbridge.Node, bus *messaging.MemoryBus, interval time.Duration, logger *slog.Logger) {
	defer stop()

	idle := func(ctx context.Context) error {
		return waitIdle(ctx, node.Adapter().AwaitingReply, interval)
	}
	if err := pumpLines(ctx, os.Stdin, bus, idle, logger); err != nil {
		logger.Error("stdin reader stopped", "error", err)
		return
	}
	if err := idle(ctx); err != nil {
		return
	}
	logger.Info("stdin exhausted, all replies handled")
}
