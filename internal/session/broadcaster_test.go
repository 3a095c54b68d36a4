package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBroadcaster_SnapshotFirstThenDeltasInOrder(t *testing.T) {
	assert := assert.New(t)

	b := NewBroadcaster()
	ch := b.Subscribe("conn1", "p1", Snapshot{SessionID: "s1", Phase: PhaseWaiting})

	first := <-ch
	assert.Equal(EventSnapshot, first.Type)
	snap, ok := first.Payload.(Snapshot)
	assert.True(ok)
	assert.Equal("s1", snap.SessionID)

	b.Publish(EventDelta, "", ActionReceipt{Identity: "p1", Submitted: true})
	b.Publish(EventPhaseChanged, "", PhaseChange{Phase: PhaseAction})
	b.Publish(EventDelta, "", ConnectionChange{Identity: "p2"})

	e1, e2, e3 := <-ch, <-ch, <-ch
	assert.Equal(EventDelta, e1.Type)
	assert.Equal(EventPhaseChanged, e2.Type)
	assert.Equal(EventDelta, e3.Type)
	assert.Less(e1.Version, e2.Version)
	assert.Less(e2.Version, e3.Version)
}

func TestBroadcaster_TargetedEventOnlyReachesBoundSubscriber(t *testing.T) {
	assert := assert.New(t)

	b := NewBroadcaster()
	ch1 := b.Subscribe("conn1", "p1", Snapshot{})
	ch2 := b.Subscribe("conn2", "p2", Snapshot{})
	<-ch1
	<-ch2

	b.Publish(EventChat, "p2", ChatDelivery{})

	select {
	case evt := <-ch2:
		assert.Equal(EventChat, evt.Type)
	default:
		t.Fatal("targeted subscriber got nothing")
	}
	select {
	case evt := <-ch1:
		t.Fatalf("untargeted subscriber got %s", evt.Type)
	default:
	}
}

func TestBroadcaster_CloseFlushesTerminalSnapshot(t *testing.T) {
	assert := assert.New(t)

	b := NewBroadcaster()
	ch := b.Subscribe("conn1", "", Snapshot{})
	<-ch

	b.Close(Snapshot{SessionID: "s1", Phase: PhaseEnded, EndReason: "completed"})

	evt, ok := <-ch
	assert.True(ok)
	assert.Equal(EventSnapshot, evt.Type)
	final := evt.Payload.(Snapshot)
	assert.Equal(PhaseEnded, final.Phase)

	_, open := <-ch
	assert.False(open, "channel should be closed after the terminal snapshot")
}

func TestBroadcaster_LateSubscriberSeesTerminalSnapshot(t *testing.T) {
	assert := assert.New(t)

	b := NewBroadcaster()
	b.Close(Snapshot{SessionID: "s1", Phase: PhaseEnded})

	ch := b.Subscribe("late", "", Snapshot{})
	evt, ok := <-ch
	assert.True(ok)
	assert.Equal(EventSnapshot, evt.Type)
	assert.Equal(PhaseEnded, evt.Payload.(Snapshot).Phase)

	_, open := <-ch
	assert.False(open)
}

func TestBroadcaster_UnsubscribeClosesChannel(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe("conn1", "", Snapshot{})
	<-ch
	b.Unsubscribe("conn1")
	_, open := <-ch
	assert.False(t, open)

	// Publishing after unsubscribe must not panic.
	b.Publish(EventDelta, "", HoldChange{Held: true})
}

func TestBroadcaster_SlowSubscriberDropped(t *testing.T) {
	assert := assert.New(t)

	b := NewBroadcaster()
	ch := b.Subscribe("slow", "", Snapshot{})

	// Never read: fill the buffer (snapshot already occupies one slot).
	for i := 0; i < subscriberBuffer+10; i++ {
		b.Publish(EventDelta, "", HoldChange{})
	}

	// The channel ends up closed once the subscriber is dropped.
	open := true
	for open {
		_, open = <-ch
	}
	assert.False(open)
}
