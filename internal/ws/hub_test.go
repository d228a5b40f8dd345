package ws

import (
	"errors"
	"testing"
	"time"
)

type chanSubscriber struct {
	received chan []byte
	fail     bool
	closed   chan struct{}
}

func newChanSubscriber(fail bool) *chanSubscriber {
	return &chanSubscriber{
		received: make(chan []byte, 8),
		fail:     fail,
		closed:   make(chan struct{}),
	}
}

func (s *chanSubscriber) Send(payload []byte) error {
	if s.fail {
		return errors.New("send failed")
	}
	s.received <- payload
	return nil
}

func (s *chanSubscriber) Close() {
	close(s.closed)
}

func waitFor(t *testing.T, ch chan []byte) []byte {
	t.Helper()
	select {
	case payload := <-ch:
		return payload
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for payload")
		return nil
	}
}

func TestHubBroadcastReachesTeamSubscribers(t *testing.T) {
	hub := NewHub()

	a := newChanSubscriber(false)
	b := newChanSubscriber(false)
	other := newChanSubscriber(false)
	hub.Register("team-1", a)
	hub.Register("team-1", b)
	hub.Register("team-2", other)

	hub.Broadcast("team-1", []byte("hello"))

	if got := waitFor(t, a.received); string(got) != "hello" {
		t.Fatalf("subscriber a got %q", got)
	}
	if got := waitFor(t, b.received); string(got) != "hello" {
		t.Fatalf("subscriber b got %q", got)
	}
	select {
	case payload := <-other.received:
		t.Fatalf("team-2 subscriber received foreign payload %q", payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubDropsFailingSubscriber(t *testing.T) {
	hub := NewHub()

	broken := newChanSubscriber(true)
	hub.Register("team-1", broken)
	hub.Broadcast("team-1", []byte("first"))

	select {
	case <-broken.closed:
	case <-time.After(time.Second):
		t.Fatal("failing subscriber was not closed")
	}
}

func TestHubUnregister(t *testing.T) {
	hub := NewHub()

	sub := newChanSubscriber(false)
	hub.Register("team-1", sub)
	hub.Unregister("team-1", sub)
	hub.Broadcast("team-1", []byte("late"))

	select {
	case payload := <-sub.received:
		t.Fatalf("unregistered subscriber received %q", payload)
	case <-time.After(50 * time.Millisecond):
	}
}
