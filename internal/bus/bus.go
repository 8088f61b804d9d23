// Package bus implements the in-process event bus signals and trades are
// published through. Handlers are isolated from one another: a panicking or
// erroring subscriber never prevents its siblings from running.
package bus

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Event kinds, mirroring the Python source's Events string constants.
const (
	SignalReceived            = "signal.received"
	SignalParsed               = "signal.parsed"
	SignalValidated            = "signal.validated"
	SignalPendingConfirmation = "signal.pending_confirmation"
	SignalSkipped             = "signal.skipped"
	SignalFailed              = "signal.failed"
	TradeOpened               = "trade.opened"
	TradeUpdated              = "trade.updated"
	TradeClosed               = "trade.closed"
	AccountUpdated            = "account.updated"
	SystemError               = "system.error"
	SystemStatus              = "system.status"
)

// Event is one published message. Payload is kind-specific; subscribers type
// assert it themselves.
type Event struct {
	Kind     string
	TenantID string
	Payload  interface{}
}

// Handler receives published events. It must not block for long — it runs
// synchronously on the publisher's goroutine, one handler at a time per
// Publish call, isolated from its siblings.
type Handler func(Event)

// Bus is a process-local pub/sub hub. The zero value is not usable; use New.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

// Subscribe registers handler for kind. Returns an Unsubscribe func that
// stops delivery to this handler; the entry stays in the kind's list but is
// no longer called.
func (b *Bus) Subscribe(kind string, handler Handler) (unsubscribe func()) {
	var removed atomic.Bool
	wrapped := func(e Event) {
		if !removed.Load() {
			handler(e)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], wrapped)

	return func() { removed.Store(true) }
}

// Publish fans event out to every handler subscribed to event.Kind. Each
// handler runs in its own recover block so one bad subscriber can't take
// down the publisher or its siblings.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	hs := make([]Handler, len(b.handlers[event.Kind]))
	copy(hs, b.handlers[event.Kind])
	b.mu.RUnlock()

	for _, h := range hs {
		b.dispatch(h, event)
	}
}

func (b *Bus) dispatch(h Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("component", "bus").
				Str("kind", event.Kind).
				Interface("panic", r).
				Msg("event handler panicked")
		}
	}()
	h(event)
}
