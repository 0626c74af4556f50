// Package notify delivers UPS event notifications over email, push and
// webhook channels. Channels are isolated: one failing target never blocks
// the others.
package notify

import (
	"context"
	"time"

	"upswatch/models"
)

// EventContext carries everything a channel needs to render a notification.
type EventContext struct {
	Event *models.Event
	// Duration is the length of the episode a recovery event closed, when
	// one ended recently enough to be relevant.
	Duration *time.Duration
	// Data is the latest aggregate snapshot, nil when none exists yet.
	Data *models.AggregateRecord
}

// Result is the outcome of one delivery attempt.
type Result struct {
	Channel string `json:"channel"`
	Target  string `json:"target"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Channel is a notification transport.
type Channel interface {
	// Name identifies the transport in logs and results.
	Name() string
	// Send delivers the event. Implementations decide per-target whether
	// the event type is enabled.
	Send(ctx context.Context, ec *EventContext) []Result
}
