// Package events implements the typed pub/sub fabric the exchange core
// broadcasts on. Delivery is synchronous in the emitter's context; listeners
// must not block and must not call back into the core.
package events

import (
	"sync"
	"time"

	"github.com/quantfold/perpsim/pkg/types"
	"go.uber.org/zap"
)

// Kind discriminates event payloads.
type Kind string

const (
	KindBook    Kind = "book"
	KindTrade   Kind = "trade"
	KindAccount Kind = "account"
)

// BookEvent carries a full order-book snapshot for one symbol. Book events
// are unscoped and go to every subscriber interested in the symbol.
type BookEvent struct {
	Symbol   string              `json:"symbol"`
	Snapshot *types.BookSnapshot `json:"snapshot"`
}

// TradeEvent carries one execution plus the derived post-trade fields.
type TradeEvent struct {
	ID           string           `json:"id"`
	AccountID    string           `json:"accountId"`
	Symbol       string           `json:"symbol"`
	Result       *types.Execution `json:"result"`
	Timestamp    time.Time        `json:"timestamp"`
	RealizedPnl  float64          `json:"realizedPnl"`
	Notional     float64          `json:"notional"`
	Leverage     float64          `json:"leverage"`
	Confidence   *float64         `json:"confidence,omitempty"`
	Direction    types.Side       `json:"direction"`
	Completed    bool             `json:"completed"`
	AccountValue float64          `json:"accountValue"`
}

// AccountEvent carries a post-mutation account snapshot.
type AccountEvent struct {
	AccountID string                 `json:"accountId"`
	Snapshot  *types.AccountSnapshot `json:"snapshot"`
}

// Event is the envelope delivered to listeners. Payload is one of
// *BookEvent, *TradeEvent, *AccountEvent depending on Kind.
type Event struct {
	Kind    Kind `json:"kind"`
	Payload any  `json:"payload"`
}

// Listener receives events synchronously.
type Listener func(Event)

// Bus is a mutex-guarded callback registry with one listener set per kind.
type Bus struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[Kind]map[int]Listener
	logger    *zap.Logger
}

// NewBus creates an empty bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		listeners: make(map[Kind]map[int]Listener),
		logger:    logger,
	}
}

// Subscribe registers a listener for one event kind and returns a
// subscription id usable with Unsubscribe.
func (b *Bus) Subscribe(kind Kind, fn Listener) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	set, ok := b.listeners[kind]
	if !ok {
		set = make(map[int]Listener)
		b.listeners[kind] = set
	}
	set[id] = fn
	return id
}

// Unsubscribe removes a listener. Unknown ids are ignored.
func (b *Bus) Unsubscribe(kind Kind, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if set, ok := b.listeners[kind]; ok {
		delete(set, id)
	}
}

// Emit delivers the event to every listener of its kind, in the caller's
// goroutine. A panicking listener is recovered and logged so it cannot
// destabilize the emitter.
func (b *Bus) Emit(evt Event) {
	b.mu.RLock()
	set := b.listeners[evt.Kind]
	fns := make([]Listener, 0, len(set))
	for _, fn := range set {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	EmittedTotal.WithLabelValues(string(evt.Kind)).Inc()

	for _, fn := range fns {
		b.deliver(fn, evt)
	}
}

func (b *Bus) deliver(fn Listener, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			ListenerPanicsTotal.Inc()
			b.logger.Error("event-listener-panic",
				zap.String("kind", string(evt.Kind)),
				zap.Any("panic", r))
		}
	}()
	fn(evt)
}

// FilterAccount wraps a listener so it only sees trade/account events for one
// account. Book events always pass through.
func FilterAccount(accountID string, fn Listener) Listener {
	return func(evt Event) {
		switch p := evt.Payload.(type) {
		case *TradeEvent:
			if p.AccountID != accountID {
				return
			}
		case *AccountEvent:
			if p.AccountID != accountID {
				return
			}
		}
		fn(evt)
	}
}
