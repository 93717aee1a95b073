// Package streaming fans dashboard updates out to websocket subscribers.
package streaming

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// clientBuffer is the number of undelivered events a client may lag behind.
const clientBuffer = 10

// Client is one subscriber of a room.
type Client struct {
	ID     string
	Events chan Event
}

// NewClient creates a client with a buffered event channel.
func NewClient() *Client {
	return &Client{
		ID:     uuid.NewString(),
		Events: make(chan Event, clientBuffer),
	}
}

// RoomBroadcaster delivers a room's events to its clients.
type RoomBroadcaster struct {
	mu       sync.RWMutex
	clients  map[*Client]bool
	events   chan Event
	last     *Event
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	stopped  bool
	log      zerolog.Logger
}

// NewRoomBroadcaster creates a room broadcaster. Call Start to run it.
func NewRoomBroadcaster(ctx context.Context, log zerolog.Logger) *RoomBroadcaster {
	ctx, cancel := context.WithCancel(ctx)
	return &RoomBroadcaster{
		clients: make(map[*Client]bool),
		events:  make(chan Event, 100),
		ctx:     ctx,
		cancel:  cancel,
		log:     log,
	}
}

// Register adds a client. A client joining late immediately receives the
// room's most recent event.
func (b *RoomBroadcaster) Register(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[client] = true
	if b.last != nil {
		select {
		case client.Events <- *b.last:
		default:
		}
	}
	b.log.Debug().Str("client", client.ID).Int("clients", len(b.clients)).Msg("client registered")
}

// Unregister removes a client and closes its channel.
func (b *RoomBroadcaster) Unregister(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[client]; ok {
		delete(b.clients, client)
		// Stop already closed every client channel
		if !b.stopped {
			close(client.Events)
		}
		b.log.Debug().Str("client", client.ID).Int("clients", len(b.clients)).Msg("client unregistered")
	}
}

// ClientCount returns the number of connected clients
func (b *RoomBroadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Broadcast queues an event for every client. It never blocks: the event is
// dropped when the room's queue is full.
func (b *RoomBroadcaster) Broadcast(event Event) {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	if event.Type == EventTypeDashboard {
		e := event
		b.last = &e
	}
	b.mu.Unlock()

	select {
	case b.events <- event:
	case <-b.ctx.Done():
	default:
		b.log.Warn().Str("type", string(event.Type)).Msg("room queue full, dropping event")
	}
}

// Stop closes every client channel and ends the delivery goroutine.
func (b *RoomBroadcaster) Stop() {
	b.stopOnce.Do(func() {
		b.mu.Lock()
		b.stopped = true
		for client := range b.clients {
			close(client.Events)
			delete(b.clients, client)
		}
		b.mu.Unlock()
		b.cancel()
	})
}

// Start runs the delivery goroutine.
func (b *RoomBroadcaster) Start() {
	go func() {
		defer b.Stop()
		for {
			select {
			case <-b.ctx.Done():
				return
			case event := <-b.events:
				b.broadcastToClients(event)
			}
		}
	}()
}

// broadcastToClients skips clients whose buffer is full.
func (b *RoomBroadcaster) broadcastToClients(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.stopped {
		return
	}
	for client := range b.clients {
		select {
		case client.Events <- event:
		default:
			b.log.Warn().Str("client", client.ID).Str("type", string(event.Type)).Msg("client channel full, skipping event")
		}
	}
}

// StreamHub manages one broadcaster per room.
type StreamHub struct {
	mu           sync.RWMutex
	broadcasters map[string]*RoomBroadcaster
	ctx          context.Context
	cancel       context.CancelFunc
	log          zerolog.Logger
}

// NewStreamHub creates a hub. Rooms live until the hub is closed.
func NewStreamHub(log zerolog.Logger) *StreamHub {
	ctx, cancel := context.WithCancel(context.Background())
	return &StreamHub{
		broadcasters: make(map[string]*RoomBroadcaster),
		ctx:          ctx,
		cancel:       cancel,
		log:          log.With().Str("component", "hub").Logger(),
	}
}

func (h *StreamHub) room(name string) *RoomBroadcaster {
	b, ok := h.broadcasters[name]
	if !ok {
		b = NewRoomBroadcaster(h.ctx, h.log.With().Str("room", name).Logger())
		h.broadcasters[name] = b
		b.Start()
		h.log.Debug().Str("room", name).Msg("room opened")
	}
	return b
}

// Register subscribes a new client to room.
func (h *StreamHub) Register(room string) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	client := NewClient()
	h.room(room).Register(client)
	return client
}

// Unregister removes a client from a room. The room keeps its last event
// for future subscribers.
func (h *StreamHub) Unregister(room string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if b, ok := h.broadcasters[room]; ok {
		b.Unregister(client)
	}
}

// Broadcast sends an event to every client of room. Broadcasting to a room
// nobody joined yet opens it, so its last event reaches later subscribers.
func (h *StreamHub) Broadcast(room string, event Event) {
	h.mu.Lock()
	b := h.room(room)
	h.mu.Unlock()

	b.Broadcast(event)
}

// ClientCount returns the number of clients in room.
func (h *StreamHub) ClientCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if b, ok := h.broadcasters[room]; ok {
		return b.ClientCount()
	}
	return 0
}

// Close stops every room.
func (h *StreamHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for name, b := range h.broadcasters {
		b.Stop()
		delete(h.broadcasters, name)
	}
	h.cancel()
}
