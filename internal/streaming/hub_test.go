package streaming

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case e, ok := <-c.Events:
		if !ok {
			t.Fatal("client channel closed")
		}
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}
	return Event{}
}

// TestSingleClientReceivesAllEvents tests that a single client receives all broadcast events
func TestSingleClientReceivesAllEvents(t *testing.T) {
	hub := NewStreamHub(zerolog.Nop())
	defer hub.Close()

	client := hub.Register("dashboard")
	for i := 0; i < 3; i++ {
		hub.Broadcast("dashboard", NewDashboardEvent(map[string]int{"n": i}))
	}

	for i := 0; i < 3; i++ {
		event := receive(t, client)
		if event.Type != EventTypeDashboard {
			t.Errorf("Expected EventTypeDashboard, got %s", event.Type)
		}
		if got := event.Data.(map[string]int)["n"]; got != i {
			t.Errorf("Expected event %d, got %d", i, got)
		}
	}
}

// TestMultipleClientsReceiveSameEvents tests fan-out within a room
func TestMultipleClientsReceiveSameEvents(t *testing.T) {
	hub := NewStreamHub(zerolog.Nop())
	defer hub.Close()

	clients := make([]*Client, 3)
	for i := range clients {
		clients[i] = hub.Register("dashboard")
	}
	if n := hub.ClientCount("dashboard"); n != 3 {
		t.Fatalf("Expected 3 clients, got %d", n)
	}

	hub.Broadcast("dashboard", NewErrorEvent("recompute failed"))

	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			select {
			case event := <-c.Events:
				if event.Type != EventTypeError {
					t.Errorf("Expected EventTypeError, got %s", event.Type)
				}
			case <-time.After(2 * time.Second):
				t.Errorf("Client %s: timeout waiting for event", c.ID)
			}
		}(c)
	}
	wg.Wait()
}

// TestRoomsAreIsolated tests that events stay in their room
func TestRoomsAreIsolated(t *testing.T) {
	hub := NewStreamHub(zerolog.Nop())
	defer hub.Close()

	a := hub.Register("a")
	b := hub.Register("b")
	hub.Broadcast("a", NewHeartbeatEvent())

	receive(t, a)
	select {
	case e := <-b.Events:
		t.Errorf("Room b received an event of room a: %v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

// TestLateSubscriberGetsLastDashboard tests replay of the latest dashboard
func TestLateSubscriberGetsLastDashboard(t *testing.T) {
	hub := NewStreamHub(zerolog.Nop())
	defer hub.Close()

	hub.Broadcast("dashboard", NewDashboardEvent("first"))
	hub.Broadcast("dashboard", NewHeartbeatEvent())
	hub.Broadcast("dashboard", NewDashboardEvent("second"))
	// Let the room drain before subscribing.
	time.Sleep(50 * time.Millisecond)

	late := hub.Register("dashboard")
	event := receive(t, late)
	if event.Data != "second" {
		t.Errorf("Expected last dashboard payload, got %v", event.Data)
	}
}

// TestSlowClientDoesNotBlock tests that a full client buffer drops events
func TestSlowClientDoesNotBlock(t *testing.T) {
	hub := NewStreamHub(zerolog.Nop())
	defer hub.Close()

	hub.Register("dashboard") // never reads

	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			hub.Broadcast("dashboard", NewHeartbeatEvent())
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked on a slow client")
	}
}

// TestUnregisterClosesChannel tests client cleanup
func TestUnregisterClosesChannel(t *testing.T) {
	hub := NewStreamHub(zerolog.Nop())
	defer hub.Close()

	client := hub.Register("dashboard")
	hub.Unregister("dashboard", client)

	if _, ok := <-client.Events; ok {
		t.Error("Expected closed channel after Unregister")
	}
	if n := hub.ClientCount("dashboard"); n != 0 {
		t.Errorf("Expected 0 clients, got %d", n)
	}

	// Unknown rooms and repeated unregisters are no-ops.
	hub.Unregister("missing", client)
	hub.Unregister("dashboard", client)
}

// TestCloseStopsRooms tests hub shutdown
func TestCloseStopsRooms(t *testing.T) {
	hub := NewStreamHub(zerolog.Nop())
	client := hub.Register("dashboard")
	hub.Close()

	select {
	case _, ok := <-client.Events:
		if ok {
			t.Error("Expected closed channel after Close")
		}
	case <-time.After(time.Second):
		t.Fatal("client channel not closed by Close")
	}
	// Safe after close.
	hub.Unregister("dashboard", client)
	hub.Broadcast("dashboard", NewHeartbeatEvent())
}
