// Package pubsub fans out run progress events to in-process listeners such
// as the CLI progress printer.
package pubsub

import (
	"context"
	"time"
)

// EventType names a point in a run's life.
type EventType string

const (
	RunStarted    EventType = "run.started"
	PhaseStarted  EventType = "phase.started"
	PhaseFinished EventType = "phase.finished"
	PhaseFailed   EventType = "phase.failed"
	RunFinished   EventType = "run.finished"
)

// Event is one published occurrence with a typed payload.
type Event[T any] struct {
	Type    EventType
	Payload T
	At      time.Time
}

// Subscriber hands out event channels that close when ctx ends.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

// Publisher emits events without blocking the caller.
type Publisher[T any] interface {
	Publish(eventType EventType, payload T)
}
