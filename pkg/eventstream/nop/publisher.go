// Package nop provides the publisher used when no event stream is
// configured.
package nop

import (
	"context"

	"github.com/TencentCloudADP/adp-chat-client/pkg/eventstream"
)

// Publisher drops every event after validating it.
type Publisher struct{}

// NewPublisher creates a publisher that drops events.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishTurn rejects nil events and drops the rest.
func (p *Publisher) PublishTurn(_ context.Context, event *eventstream.TurnFinishedEvent) error {
	if event == nil {
		return eventstream.ErrNilTurnEvent
	}
	return nil
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}
