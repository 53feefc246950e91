package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	bus := NewEventBus()
	ch := make(chan interface{}, 1)
	bus.Subscribe(ForcePoll, ch)

	bus.Publish(ForcePoll, "payload")

	select {
	case data := <-ch:
		assert.Equal(t, "payload", data)
	default:
		t.Fatal("expected event")
	}
}

func TestPublishWithoutSubscribersIsNoop(t *testing.T) {
	bus := NewEventBus()
	bus.Publish(BetResolved, nil)
}

func TestPublishDropsFullSubscriber(t *testing.T) {
	bus := NewEventBus()
	full := make(chan interface{}) // unbuffered, nobody reading
	ok := make(chan interface{}, 2)
	bus.Subscribe(BetPlaced, full)
	bus.Subscribe(BetPlaced, ok)

	bus.Publish(BetPlaced, 1)
	bus.Publish(BetPlaced, 2)

	assert.Len(t, ok, 2)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewEventBus()
	ch := make(chan interface{}, 1)
	bus.Subscribe(GameRecovered, ch)
	bus.Unsubscribe(GameRecovered, ch)

	bus.Publish(GameRecovered, nil)
	assert.Empty(t, ch)
}

func TestSubscribeNilChannelPanics(t *testing.T) {
	bus := NewEventBus()
	assert.Panics(t, func() { bus.Subscribe(ForcePoll, nil) })
}
