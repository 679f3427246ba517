package realtime

import (
	"errors"
	"testing"
)

type fakeConn struct {
	id       string
	sent     [][]byte
	failNext bool
}

func (f *fakeConn) ID() string { return f.id }

func (f *fakeConn) Send(payload []byte) error {
	if f.failNext {
		return errors.New("broken pipe")
	}
	f.sent = append(f.sent, payload)
	return nil
}

func TestSubscribeFirstAndLast(t *testing.T) {
	r := NewRegistry()
	c1 := &fakeConn{id: "c1"}
	c2 := &fakeConn{id: "c2"}

	if first := r.Subscribe(c1, "conversation:a:b"); !first {
		t.Error("expected first subscriber signal")
	}
	if first := r.Subscribe(c2, "conversation:a:b"); first {
		t.Error("expected non-first for second subscriber")
	}
	// Duplicate subscribe is idempotent.
	if first := r.Subscribe(c1, "conversation:a:b"); first {
		t.Error("duplicate subscribe must not report first")
	}
	if got := r.Subscribers("conversation:a:b"); got != 2 {
		t.Errorf("expected 2 subscribers, got %d", got)
	}

	if last := r.Leave("c1", "conversation:a:b"); last {
		t.Error("topic still has a subscriber, must not report last")
	}
	if last := r.Leave("c2", "conversation:a:b"); !last {
		t.Error("expected last-subscriber signal")
	}
	if r.HasTopic("conversation:a:b") {
		t.Error("empty topic must be deleted from the registry")
	}
}

func TestSubscribeExclusiveDropsPreviousTopics(t *testing.T) {
	r := NewRegistry()
	c := &fakeConn{id: "c1"}

	r.Subscribe(c, "conversation:a:b")
	r.Subscribe(c, "conversation:a:c")

	first, released := r.SubscribeExclusive(c, "payment:CO1:MR1")
	if !first {
		t.Error("expected first subscriber on the payment topic")
	}
	if len(released) != 2 {
		t.Fatalf("expected both previous topics released, got %v", released)
	}
	if r.HasTopic("conversation:a:b") || r.HasTopic("conversation:a:c") {
		t.Error("previous topics must be gone")
	}
	if got := r.TopicCount(); got != 1 {
		t.Errorf("expected exactly one live topic, got %d", got)
	}
}

func TestSubscribeExclusiveKeepsSharedTopicsAlive(t *testing.T) {
	r := NewRegistry()
	c1 := &fakeConn{id: "c1"}
	c2 := &fakeConn{id: "c2"}

	r.Subscribe(c1, "conversation:a:b")
	r.Subscribe(c2, "conversation:a:b")

	_, released := r.SubscribeExclusive(c1, "payment:CO1:MR1")
	if len(released) != 0 {
		t.Errorf("shared topic must not be released, got %v", released)
	}
	if got := r.Subscribers("conversation:a:b"); got != 1 {
		t.Errorf("expected c2 still subscribed, got %d", got)
	}
}

func TestUnsubscribeReleasesEmptiedTopics(t *testing.T) {
	r := NewRegistry()
	c1 := &fakeConn{id: "c1"}
	c2 := &fakeConn{id: "c2"}

	r.Subscribe(c1, "conversation:a:b")
	r.Subscribe(c1, "payment:CO1:MR1")
	r.Subscribe(c2, "conversation:a:b")

	released := r.Unsubscribe("c1")
	if len(released) != 1 || released[0] != "payment:CO1:MR1" {
		t.Errorf("expected only the solo topic released, got %v", released)
	}
	if !r.HasTopic("conversation:a:b") {
		t.Error("shared topic must survive")
	}
	if r.Subscribers("payment:CO1:MR1") != 0 {
		t.Error("expected no subscribers on released topic")
	}

	// Unsubscribing an unknown connection is a no-op.
	if got := r.Unsubscribe("ghost"); len(got) != 0 {
		t.Errorf("expected no releases, got %v", got)
	}
}

func TestPublishLocalDeliversAndExcludes(t *testing.T) {
	r := NewRegistry()
	sender := &fakeConn{id: "sender"}
	peer := &fakeConn{id: "peer"}
	r.Subscribe(sender, "conversation:a:b")
	r.Subscribe(peer, "conversation:a:b")

	delivered, released := r.PublishLocal("conversation:a:b", []byte(`{"type":"typing"}`), "sender")
	if delivered != 1 {
		t.Errorf("expected 1 delivery, got %d", delivered)
	}
	if len(released) != 0 {
		t.Errorf("expected no releases, got %v", released)
	}
	if len(sender.sent) != 0 {
		t.Error("excluded connection must not receive the payload")
	}
	if len(peer.sent) != 1 {
		t.Fatal("peer must receive the payload")
	}
}

func TestPublishLocalEvictsFailingConnections(t *testing.T) {
	r := NewRegistry()
	healthy := &fakeConn{id: "healthy"}
	broken := &fakeConn{id: "broken", failNext: true}
	r.Subscribe(healthy, "payment:CO1:MR1")
	r.Subscribe(broken, "payment:CO1:MR1")

	delivered, released := r.PublishLocal("payment:CO1:MR1", []byte(`{}`), "")
	if delivered != 1 {
		t.Errorf("expected delivery to the healthy connection, got %d", delivered)
	}
	if len(released) != 0 {
		t.Errorf("topic still has a subscriber, got releases %v", released)
	}
	if got := r.Subscribers("payment:CO1:MR1"); got != 1 {
		t.Errorf("expected failing connection evicted, got %d subscribers", got)
	}

	// Evicting the last subscriber releases the topic.
	healthy.failNext = true
	_, released = r.PublishLocal("payment:CO1:MR1", []byte(`{}`), "")
	if len(released) != 1 || released[0] != "payment:CO1:MR1" {
		t.Errorf("expected topic released after last eviction, got %v", released)
	}
	if r.HasTopic("payment:CO1:MR1") {
		t.Error("expected topic gone")
	}
}

func TestPublishLocalUnknownTopic(t *testing.T) {
	r := NewRegistry()
	delivered, released := r.PublishLocal("payment:none:none", []byte(`{}`), "")
	if delivered != 0 || len(released) != 0 {
		t.Errorf("expected no-op, got delivered=%d released=%v", delivered, released)
	}
}
