package events

import (
	"sync"

	"github.com/cuemby/dflow/pkg/log"
	"github.com/cuemby/dflow/pkg/metrics"
)

// Kind identifies the category of an event. The zero value, AllKinds,
// is never used as an event's own Kind; it is reserved for
// subscribing to every kind fired by a Broadcaster.
type Kind string

const (
	// AllKinds is passed to Subscribe to receive every event.
	AllKinds Kind = ""

	KindStatus      Kind = "status"
	KindExecStatus  Kind = "execStatus"
	KindOpen        Kind = "open"
	KindContainerIP Kind = "containerIp"
	KindAttribute   Kind = "attribute"
)

// Event carries the identity of the firing node plus kind-specific
// payload fields. Payload is intentionally a loose map: subscribers
// that care about a particular Kind know which keys to expect (e.g.
// KindStatus carries "status", KindContainerIP carries "containerIp").
type Event struct {
	OID     string
	UID     string
	Kind    Kind
	Payload map[string]any
}

// Callback receives a fired Event. It must not block for long: it
// runs synchronously on the firing goroutine.
type Callback func(Event)

type subscription struct {
	id       uint64
	kind     Kind
	callback Callback
}

// Broadcaster is a per-node publish/subscribe hub. The zero value is
// not usable; construct with NewBroadcaster.
type Broadcaster struct {
	mu     sync.Mutex
	nextID uint64
	subs   []subscription
}

// NewBroadcaster returns a ready-to-use Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{}
}

// handle is an opaque subscription handle returned by Subscribe and
// accepted by Unsubscribe. It identifies one (callback, kind)
// registration, which lets the same function value be subscribed more
// than once under different kinds without ambiguity.
type handle struct {
	id uint64
	b  *Broadcaster
}

// Subscribe registers callback to receive events. If kind is
// AllKinds, callback receives every event fired on this Broadcaster;
// otherwise only events with a matching Kind. The returned handle can
// be passed to Unsubscribe.
func (b *Broadcaster) Subscribe(kind Kind, callback Callback) *handle {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, kind: kind, callback: callback})
	return &handle{id: id, b: b}
}

// Unsubscribe removes a registration made with Subscribe. It is a
// no-op if h is nil or already unsubscribed.
func (b *Broadcaster) Unsubscribe(h *handle) {
	if h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == h.id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Fire delivers a single event carrying oid, uid, kind, and payload to
// every subscriber registered for kind or for AllKinds, in the order
// they subscribed. Fire takes a snapshot of the subscriber list before
// invoking any callback, so a callback that subscribes or unsubscribes
// does not affect delivery of the event currently being fired.
//
// A callback that panics is recovered and logged; it does not prevent
// the remaining subscribers from being called.
func (b *Broadcaster) Fire(oid, uid string, kind Kind, payload map[string]any) {
	metrics.EventsFiredTotal.WithLabelValues(string(kind)).Inc()

	b.mu.Lock()
	snapshot := make([]subscription, len(b.subs))
	copy(snapshot, b.subs)
	b.mu.Unlock()

	ev := Event{OID: oid, UID: uid, Kind: kind, Payload: payload}
	for _, s := range snapshot {
		if s.kind != AllKinds && s.kind != kind {
			continue
		}
		b.dispatch(s.callback, ev)
	}
}

func (b *Broadcaster) dispatch(cb Callback, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			metrics.EventSubscriberPanicsTotal.Inc()
			log.WithComponent("events").Error().
				Str("uid", ev.UID).
				Str("kind", string(ev.Kind)).
				Interface("recovered", r).
				Msg("event subscriber panicked; swallowing")
		}
	}()
	cb(ev)
}
