package daemon

import (
	"testing"

	"github.com/majorcontext/tabclose/internal/timer"
)

func TestHub_FansOut(t *testing.T) {
	h := NewHub()
	a, unsubA := h.Subscribe()
	b, unsubB := h.Subscribe()
	defer unsubA()
	defer unsubB()

	h.Publish(timer.Event{Kind: timer.EventTimerComplete})

	for _, ch := range []<-chan timer.Event{a, b} {
		select {
		case ev := <-ch:
			if ev.Kind != timer.EventTimerComplete {
				t.Errorf("got %s", ev.Kind)
			}
		default:
			t.Error("subscriber missed event")
		}
	}
}

func TestHub_NoSubscribersIsNoop(t *testing.T) {
	h := NewHub()
	h.Publish(timer.Event{Kind: timer.EventStatusUpdate, Status: timer.IdleStatus})
	if h.Subscribers() != 0 {
		t.Error("expected no subscribers")
	}
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub()
	ch, unsub := h.Subscribe()
	defer unsub()

	for i := 0; i < subscriberBuffer*3; i++ {
		h.Publish(timer.Event{Kind: timer.EventStatusUpdate, RemainingMS: int64(i)})
	}
	if len(ch) != subscriberBuffer {
		t.Errorf("expected buffer full at %d, got %d", subscriberBuffer, len(ch))
	}
}

func TestHub_UnsubscribeClosesOnce(t *testing.T) {
	h := NewHub()
	ch, unsub := h.Subscribe()
	unsub()
	unsub()

	if _, ok := <-ch; ok {
		t.Error("channel should be closed")
	}
	if h.Subscribers() != 0 {
		t.Errorf("expected 0 subscribers, got %d", h.Subscribers())
	}
	h.Publish(timer.Event{Kind: timer.EventTimerComplete})
}
