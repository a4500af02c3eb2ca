package relay

import (
	"context"
	"errors"
	"math"
	"time"

	"example.com/socialwall/internal/broker"
	"example.com/socialwall/internal/logger"
)

var logg = logger.New()

// Relay forwards change events from the bus to this process's subscribers.
type Relay struct {
	source broker.Source
	hub    *broker.Hub
}

func New(source broker.Source, hub *broker.Hub) *Relay {
	return &Relay{source: source, hub: hub}
}

// Run reads the source until ctx is done, backing off on read errors.
func (r *Relay) Run(ctx context.Context) error {
	logg.Info("relay", "Starting change relay")
	var retry int
	for {
		select {
		case <-ctx.Done():
			logg.Info("relay", "Change relay stopped")
			return nil
		default:
		}

		ev, err := r.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				continue
			}
			backoff := time.Duration(math.Min(1000, math.Pow(2, float64(retry)))) * time.Millisecond
			logg.Error("relay", "Change read error, backing off", err)
			if waitWithContext(ctx, backoff) {
				retry++
			}
			continue
		}
		retry = 0

		// An empty payload decodes to a zero event
		if ev.Table == "" {
			waitWithContext(ctx, 50*time.Millisecond)
			continue
		}

		logg.Debug("relay", "Change on "+ev.Table+" ("+string(ev.Type)+")")
		r.hub.Dispatch(ev)
	}
}

// waitWithContext waits for duration or context cancellation.
func waitWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Close shuts down the change source.
func (r *Relay) Close() error {
	logg.Info("relay", "Closing change source")
	if err := r.source.Close(); err != nil {
		logg.Error("relay", "Error closing change source", err)
		return err
	}
	return nil
}
