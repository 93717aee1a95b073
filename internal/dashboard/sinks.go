package dashboard

import (
	"context"

	"github.com/rumor-ml/commons.systems/budgetter/internal/streaming"
)

// HubSink broadcasts payloads to a websocket room.
type HubSink struct {
	Hub  *streaming.StreamHub
	Room string
}

// Send broadcasts p; it never fails.
func (s HubSink) Send(_ context.Context, p *Payload) error {
	s.Hub.Broadcast(s.Room, streaming.NewDashboardEvent(p))
	return nil
}
