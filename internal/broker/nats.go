package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NatsBus publishes each event on <prefix>.<table> and reads every table under <prefix>.>.
// Core NATS is enough: a notification nobody is listening for has no value later.
type NatsBus struct {
	nc     *nats.Conn
	prefix string
	sub    *nats.Subscription
	ch     chan *nats.Msg
}

// NewNatsBus connects to url.
func NewNatsBus(url, prefix string) (*NatsBus, error) {
	nc, err := nats.Connect(url, nats.Name("socialwall"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NatsBus{nc: nc, prefix: prefix}, nil
}

func (b *NatsBus) subject(table string) string {
	return fmt.Sprintf("%s.%s", b.prefix, table)
}

func (b *NatsBus) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}
	if err := b.nc.Publish(b.subject(ev.Table), data); err != nil {
		return fmt.Errorf("failed to publish to subject '%s': %w", b.subject(ev.Table), err)
	}
	return nil
}

// Next subscribes lazily on first use.
func (b *NatsBus) Next(ctx context.Context) (Event, error) {
	if b.sub == nil {
		b.ch = make(chan *nats.Msg, 64)
		sub, err := b.nc.ChanSubscribe(b.prefix+".>", b.ch)
		if err != nil {
			return Event{}, fmt.Errorf("failed to subscribe to '%s.>': %w", b.prefix, err)
		}
		b.sub = sub
		logg.Info("broker", "Subscribed to "+b.prefix+".>")
	}

	select {
	case <-ctx.Done():
		return Event{}, ctx.Err()
	case msg, ok := <-b.ch:
		if !ok {
			return Event{}, errors.New("nats subscription closed")
		}
		var ev Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return Event{}, fmt.Errorf("invalid change event on '%s': %w", msg.Subject, err)
		}
		return ev, nil
	}
}

func (b *NatsBus) Close() error {
	if b.sub != nil {
		_ = b.sub.Unsubscribe()
	}
	if b.nc != nil {
		b.nc.Close()
	}
	return nil
}
