package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/spf13/cobra"

	"github.com/glimte/netbridge/config"
	"github.com/glimte/netbridge/serialization"
)

func main() {
	var (
		bind      string
		delay     time.Duration
		logLevel  string
		logFormat string
	)

	rootCmd := &cobra.Command{
		Use:   "echo-server",
		Short: "Reply to every vehicle state request with the same payload",
		Long: `echo-server is a stand-in for the remote endpoint. It binds a ZeroMQ REP
socket and answers each request with the bytes it received, logging the
decoded vehicle state.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := config.LogConfig{Level: logLevel, Format: logFormat}.NewLogger(os.Stderr)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sigChan
				cancel()
			}()

			return serve(ctx, bind, delay, logger)
		},
	}
	rootCmd.Flags().StringVarP(&bind, "bind", "b", "tcp://*:5555", "address to bind the REP socket to")
	rootCmd.Flags().DurationVar(&delay, "delay", 0, "wait this long before each reply")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	rootCmd.Flags().StringVar(&logFormat, "log-format", "text", "text or json")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, bind string, delay time.Duration, logger *slog.Logger) error {
	rep := zmq4.NewRep(ctx)
	defer rep.Close()

	if err := rep.Listen(bind); err != nil {
		return fmt.Errorf("failed to bind %s: %w", bind, err)
	}
	logger.Info("echo server listening", "bind", bind, "delay", delay)

	for {
		msg, err := rep.Recv()
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("echo server stopped")
				return nil
			}
			return fmt.Errorf("failed to receive request: %w", err)
		}

		payload := msg.Bytes()
		if state, err := serialization.Decode(payload); err != nil {
			logger.Warn("request is not a vehicle state, echoing anyway", "error", err, "bytes", len(payload))
		} else {
			logger.Info("received vehicle state",
				"x", state.PositionX,
				"y", state.PositionY,
				"yaw", state.Yaw)
		}

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil
			}
		}

		if err := rep.Send(zmq4.NewMsg(payload)); err != nil {
			return fmt.Errorf("failed to send reply: %w", err)
		}
	}
}
