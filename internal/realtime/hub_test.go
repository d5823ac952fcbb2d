package realtime

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pharmalink/pharmalink-backend/internal/platform/logger"
)

func testHub(t *testing.T) *Hub {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return NewHub(log)
}

func TestHubRoutesByChannel(t *testing.T) {
	h := testHub(t)

	subscriber := h.NewClient(uuid.New())
	bystander := h.NewClient(uuid.New())
	h.AddChannel(subscriber, "requests")
	h.AddChannel(bystander, "chat:abc")

	h.Broadcast(Message{Channel: "requests", Event: EventRequestCreated})

	select {
	case msg := <-subscriber.Outbound:
		if msg.Event != EventRequestCreated {
			t.Fatalf("event = %q", msg.Event)
		}
	default:
		t.Fatalf("subscriber did not receive the broadcast")
	}
	select {
	case <-bystander.Outbound:
		t.Fatalf("bystander received a message for another channel")
	default:
	}
}

func TestHubRemoveChannelStopsDelivery(t *testing.T) {
	h := testHub(t)
	client := h.NewClient(uuid.New())
	h.AddChannel(client, "requests")
	h.RemoveChannel(client, "requests")

	h.Broadcast(Message{Channel: "requests", Event: EventRequestClosed})
	select {
	case <-client.Outbound:
		t.Fatalf("received after unsubscribe")
	default:
	}
}

func TestHubSlowClientDropsInsteadOfBlocking(t *testing.T) {
	h := testHub(t)
	client := h.NewClient(uuid.New())
	h.AddChannel(client, "requests")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < cap(client.Outbound)+5; i++ {
			h.Broadcast(Message{Channel: "requests", Event: EventRequestCreated})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("broadcast blocked on a full outbound buffer")
	}
	if got := len(client.Outbound); got != cap(client.Outbound) {
		t.Fatalf("buffered = %d, want full buffer %d", got, cap(client.Outbound))
	}
}

func TestHubRemoveClientClearsAllChannels(t *testing.T) {
	h := testHub(t)
	client := h.NewClient(uuid.New())
	h.AddChannel(client, "requests")
	h.AddChannel(client, ChatChannelKey("c1"))

	h.RemoveClient(client)

	h.Broadcast(Message{Channel: "requests"})
	h.Broadcast(Message{Channel: ChatChannelKey("c1")})
	select {
	case <-client.Outbound:
		t.Fatalf("removed client still receiving")
	default:
	}
	if len(client.Channels) != 0 {
		t.Fatalf("client channel set not cleared")
	}
}

func TestHubServeHTTPWritesEvents(t *testing.T) {
	h := testHub(t)
	client := h.NewClient(uuid.New())
	h.AddChannel(client, "requests")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/stream", nil)

	go func() {
		h.Broadcast(Message{Channel: "requests", Event: EventRequestCreated, Data: map[string]any{"k": "v"}})
		time.Sleep(50 * time.Millisecond)
		h.CloseClient(client)
	}()

	h.ServeHTTP(rec, req, client)

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type = %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "event: message") || !strings.Contains(body, string(EventRequestCreated)) {
		t.Fatalf("stream body missing event: %q", body)
	}
}
