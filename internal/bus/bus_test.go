package bus

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	b := New()
	var mu sync.Mutex
	var got []string

	b.Subscribe(SignalReceived, func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, "first:"+e.TenantID)
	})
	b.Subscribe(SignalReceived, func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, "second:"+e.TenantID)
	})

	b.Publish(Event{Kind: SignalReceived, TenantID: "t1"})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.ElementsMatch(t, []string{"first:t1", "second:t1"}, got)
}

func TestPublishIsolatesPanickingHandler(t *testing.T) {
	b := New()
	called := false

	b.Subscribe(TradeOpened, func(Event) {
		panic("boom")
	})
	b.Subscribe(TradeOpened, func(Event) {
		called = true
	})

	assert.NotPanics(t, func() {
		b.Publish(Event{Kind: TradeOpened})
	})
	assert.True(t, called, "sibling handler must still run after a panic")
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	count := 0
	unsub := b.Subscribe(SystemError, func(Event) { count++ })

	b.Publish(Event{Kind: SystemError})
	unsub()
	b.Publish(Event{Kind: SystemError})

	assert.Equal(t, 1, count)
}

func TestPublishWithNoSubscribersIsNoop(t *testing.T) {
	b := New()
	assert.NotPanics(t, func() {
		b.Publish(Event{Kind: "nothing.subscribed"})
	})
}
