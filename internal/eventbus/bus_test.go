package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribePublishDelivers(t *testing.T) {
	b := New()
	defer b.Stop()

	sub := b.Subscribe("payment_accepted")
	b.Publish("payment_accepted", Event{Type: "accepted", Timestamp: time.Now()})

	select {
	case ev := <-sub.Ch:
		assert.Equal(t, "accepted", ev.Type)
	case <-time.After(time.Second):
		t.Fatal("expected event was not delivered")
	}
}

func TestPublishToUnsubscribedTopicIsANoop(t *testing.T) {
	b := New()
	defer b.Stop()

	sub := b.Subscribe("payment_accepted")
	b.Publish("payment_confirmed", Event{Type: "confirmed", Timestamp: time.Now()})

	select {
	case ev := <-sub.Ch:
		t.Fatalf("unexpected delivery for unsubscribed topic: %+v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSubscribeTopicAndUnsubscribeTopic(t *testing.T) {
	b := New()
	defer b.Stop()

	sub := b.Subscribe()
	b.SubscribeTopic(sub, "transfer:1")
	b.Publish("transfer:1", Event{Type: "validated", Timestamp: time.Now()})

	select {
	case ev := <-sub.Ch:
		assert.Equal(t, "validated", ev.Type)
	case <-time.After(time.Second):
		t.Fatal("expected event on transfer:1 was not delivered")
	}

	b.UnsubscribeTopic(sub, "transfer:1")
	b.Publish("transfer:1", Event{Type: "confirmed", Timestamp: time.Now()})

	select {
	case ev := <-sub.Ch:
		t.Fatalf("unexpected delivery after unsubscribe: %+v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestPublishGlobalAndTransferReachesBothTopics(t *testing.T) {
	b := New()
	defer b.Stop()

	globalSub := b.Subscribe(GlobalTopic("confirmed"))
	transferSub := b.Subscribe(TransferTopic(42))

	b.PublishGlobalAndTransfer(GlobalTopic("confirmed"), 42, Event{Type: "confirmed", Timestamp: time.Now()})

	for _, sub := range []*Subscriber{globalSub, transferSub} {
		select {
		case ev := <-sub.Ch:
			assert.Equal(t, "confirmed", ev.Type)
		case <-time.After(time.Second):
			t.Fatal("expected delivery on both global and per-transfer topics")
		}
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	defer b.Stop()

	sub := b.Subscribe("payment_accepted")
	b.Unsubscribe(sub)

	_, ok := <-sub.Ch
	assert.False(t, ok, "channel should be closed after Unsubscribe")

	b.Publish("payment_accepted", Event{Type: "accepted", Timestamp: time.Now()})
}

func TestPublishNeverBlocksOnAFullSubscriber(t *testing.T) {
	b := New()
	defer b.Stop()

	sub := b.Subscribe("payment_accepted")
	done := make(chan struct{})
	go func() {
		for i := 0; i < bufferSize+10; i++ {
			b.Publish("payment_accepted", Event{Type: "accepted", Timestamp: time.Now()})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber buffer")
	}
	require.NotNil(t, sub)
}
