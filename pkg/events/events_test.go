package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubscribeAllKindsReceivesEverything(t *testing.T) {
	b := NewBroadcaster()
	var received []Kind
	b.Subscribe(AllKinds, func(e Event) {
		received = append(received, e.Kind)
	})

	b.Fire("oid-1", "uid-1", KindStatus, nil)
	b.Fire("oid-1", "uid-1", KindOpen, nil)

	require.Equal(t, []Kind{KindStatus, KindOpen}, received)
}

func TestSubscribeFiltersByKind(t *testing.T) {
	b := NewBroadcaster()
	var statusCount, openCount int
	b.Subscribe(KindStatus, func(e Event) { statusCount++ })
	b.Subscribe(KindOpen, func(e Event) { openCount++ })

	b.Fire("oid-1", "uid-1", KindStatus, nil)
	b.Fire("oid-1", "uid-1", KindStatus, nil)
	b.Fire("oid-1", "uid-1", KindOpen, nil)

	require.Equal(t, 2, statusCount)
	require.Equal(t, 1, openCount)
}

func TestFireDeliversInSubscriptionOrder(t *testing.T) {
	b := NewBroadcaster()
	var order []int
	b.Subscribe(AllKinds, func(e Event) { order = append(order, 1) })
	b.Subscribe(AllKinds, func(e Event) { order = append(order, 2) })
	b.Subscribe(AllKinds, func(e Event) { order = append(order, 3) })

	b.Fire("oid-1", "uid-1", KindStatus, nil)

	require.Equal(t, []int{1, 2, 3}, order)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBroadcaster()
	calls := 0
	h := b.Subscribe(AllKinds, func(e Event) { calls++ })

	b.Fire("oid-1", "uid-1", KindStatus, nil)
	b.Unsubscribe(h)
	b.Fire("oid-1", "uid-1", KindStatus, nil)

	require.Equal(t, 1, calls)
}

func TestUnsubscribeUnknownHandleIsNoop(t *testing.T) {
	b := NewBroadcaster()
	other := NewBroadcaster()
	h := other.Subscribe(AllKinds, func(Event) {})
	require.NotPanics(t, func() { b.Unsubscribe(h) })
	require.NotPanics(t, func() { b.Unsubscribe(nil) })
}

func TestPanickingSubscriberDoesNotBlockOthers(t *testing.T) {
	b := NewBroadcaster()
	secondCalled := false
	b.Subscribe(AllKinds, func(e Event) { panic("boom") })
	b.Subscribe(AllKinds, func(e Event) { secondCalled = true })

	require.NotPanics(t, func() {
		b.Fire("oid-1", "uid-1", KindStatus, nil)
	})
	require.True(t, secondCalled)
}

func TestEventCarriesPayload(t *testing.T) {
	b := NewBroadcaster()
	var got Event
	b.Subscribe(KindContainerIP, func(e Event) { got = e })

	b.Fire("oid-7", "uid-7", KindContainerIP, map[string]any{"containerIp": "10.0.0.7"})

	require.Equal(t, "oid-7", got.OID)
	require.Equal(t, "uid-7", got.UID)
	require.Equal(t, "10.0.0.7", got.Payload["containerIp"])
}
