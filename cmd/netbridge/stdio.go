package main

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/glimte/netbridge/contracts"
	"github.com/glimte/netbridge/messaging"
	"github.com/glimte/netbridge/serialization"
)

// pumpLines publishes one vehicle state per non-empty line of r until r is
// exhausted or ctx is done. Lines that do not decode are logged and skipped.
// When ready is set it is awaited before every publish.
func pumpLines(ctx context.Context, r io.Reader, sink messaging.Sink, ready func(context.Context) error, logger *slog.Logger) error {
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		if ctx.Err() != nil {
			return nil
		}

		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}

		state, err := serialization.Decode(data)
		if err != nil {
			logger.Warn("skipping malformed input line", "kind", contracts.KindDecode, "line", line, "error", err)
			continue
		}
		if ready != nil {
			if err := ready(ctx); err != nil {
				return nil
			}
		}
		if err := sink.Publish(ctx, state); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// waitIdle polls busy every interval until it reports false or ctx is done
func waitIdle(ctx context.Context, busy func() bool, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for busy() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

type lineSink struct {
	mu sync.Mutex
	w  io.Writer
}

func newLineSink(w io.Writer) *lineSink {
	return &lineSink{w: w}
}

// Publish writes state as a single JSON line
func (s *lineSink) Publish(_ context.Context, state contracts.VehicleState) error {
	data, err := serialization.Encode(state)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.w.Write(append(data, '\n'))
	return err
}
