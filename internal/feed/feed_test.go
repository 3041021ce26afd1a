package feed

import (
	"testing"
	"time"
)

func TestEmitReachesSubscribers(t *testing.T) {
	f := New()
	a, b := f.Subscribe(), f.Subscribe()
	defer f.Unsubscribe(a)
	defer f.Unsubscribe(b)

	f.Emit("d1", EvProposalCreated, nil)

	for _, sub := range []*Sub{a, b} {
		select {
		case ev := <-sub.C:
			if ev.DealId != "d1" || ev.Type != EvProposalCreated {
				t.Errorf("event = %+v", ev)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber never received the event")
		}
	}
}

func TestSlowSubscriberNeverBlocksEmit(t *testing.T) {
	f := New()
	s := f.Subscribe() // never drained
	defer f.Unsubscribe(s)

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Overflow the buffer; extra events must be dropped, not block
		for i := 0; i < 1000; i++ {
			f.Emit("d1", EvCounterOffer, i)
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Emit blocked on a slow subscriber")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	f := New()
	s := f.Subscribe()
	f.Unsubscribe(s)

	if _, ok := <-s.C; ok {
		t.Error("channel should be closed after unsubscribe")
	}

	// Double unsubscribe must not panic
	f.Unsubscribe(s)

	// Emitting with no subscribers is fine
	f.Emit("d1", EvDealRejected, nil)
}
