package live

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Elizabethomito/tutormarket/internal/logging"
)

func recv(t *testing.T, c <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-c:
		if !ok {
			t.Fatal("subscription closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func expectNothing(t *testing.T, c <-chan Event) {
	t.Helper()
	select {
	case ev := <-c:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_DeliversOnlyFollowedTopics(t *testing.T) {
	hub := NewHub(logging.Discard(), 8)
	mine := hub.Subscribe(UserTopic("u1"), TicketsTopic)
	defer mine.Close()
	other := hub.Subscribe(UserTopic("u2"))
	defer other.Close()

	hub.Publish(Event{Topic: UserTopic("u1"), Kind: "notification", ID: "n1"})

	ev := recv(t, mine.C)
	if ev.Kind != "notification" || ev.ID != "n1" {
		t.Errorf("got %+v", ev)
	}
	if ev.At.IsZero() {
		t.Error("At should be stamped on delivery")
	}
	expectNothing(t, other.C)
}

func TestHub_CloseUnsubscribes(t *testing.T) {
	hub := NewHub(logging.Discard(), 8)
	sub := hub.Subscribe(TicketsTopic, TicketsTopic)
	if n := hub.SubscriberCount(TicketsTopic); n != 1 {
		t.Fatalf("subscriber count: got %d, want 1", n)
	}
	sub.Close()
	sub.Close() // second close is a no-op

	if n := hub.SubscriberCount(TicketsTopic); n != 0 {
		t.Errorf("subscriber count after close: got %d, want 0", n)
	}
	if _, ok := <-sub.C; ok {
		t.Error("channel should be closed")
	}
	// Publishing to a topic nobody follows must not panic.
	hub.Publish(Event{Topic: TicketsTopic, Kind: "ticket"})
}

func TestHub_FullBufferDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHub(logging.Discard(), 1)
	sub := hub.Subscribe(PresenceTopic)
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		hub.Publish(
			Event{Topic: PresenceTopic, Kind: "presence", ID: "a"},
			Event{Topic: PresenceTopic, Kind: "presence", ID: "b"},
		)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
	if ev := recv(t, sub.C); ev.ID != "a" {
		t.Errorf("got %q, want first event", ev.ID)
	}
}

func TestHub_SinksSeePublishedButNotDelivered(t *testing.T) {
	hub := NewHub(logging.Discard(), 8)
	var seen []string
	hub.AddSink(func(ev Event) { seen = append(seen, ev.ID) })

	hub.Publish(Event{Topic: TicketsTopic, ID: "local"})
	hub.Deliver(Event{Topic: TicketsTopic, ID: "remote"})

	if len(seen) != 1 || seen[0] != "local" {
		t.Errorf("sink saw %v, want [local]", seen)
	}
}

func TestServeWS_StreamsEvents(t *testing.T) {
	hub := NewHub(logging.Discard(), 8)
	up := NewUpgrader("*")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(up, w, r, []string{ConversationTopic("c1")})
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hub.Publish(Event{Topic: ConversationTopic("c1"), Kind: "message", ID: "m1"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Topic != "conversation:c1" || ev.Kind != "message" || ev.ID != "m1" {
		t.Errorf("got %+v", ev)
	}
}
