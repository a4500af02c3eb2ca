// Package broker carries table change notifications between processes.
// Notifications have no payload beyond the table and the kind of change;
// subscribers re-read whatever they display.
package broker

import (
	"context"
	"time"

	"example.com/socialwall/internal/logger"
)

var logg = logger.New()

type EventType string

const (
	Insert EventType = "INSERT"
	Update EventType = "UPDATE"
	Delete EventType = "DELETE"
)

// Event announces that a table changed.
type Event struct {
	Table string    `json:"table"`
	Type  EventType `json:"type"`
	At    time.Time `json:"at"`
}

// NewEvent stamps a change of the given kind on table.
func NewEvent(table string, typ EventType) Event {
	return Event{Table: table, Type: typ, At: time.Now().UTC()}
}

// Publisher announces changes.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Source yields changes announced by any process.
type Source interface {
	Next(ctx context.Context) (Event, error)
	Close() error
}
