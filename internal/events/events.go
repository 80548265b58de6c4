// Package events delivers state-machine notifications to subscribers. Event
// kinds form a closed set; every kind has its own subscriber list.
package events

import (
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Kind identifies an event.
type Kind uint8

const (
	BlockConnected Kind = iota
	BlockDisconnected
	MintAdded
	SpendAccepted
	MempoolAdded
	MempoolRemoved
	SpendRejected

	numKinds
)

var kindNames = [numKinds]string{
	BlockConnected:    "block_connected",
	BlockDisconnected: "block_disconnected",
	MintAdded:         "mint_added",
	SpendAccepted:     "spend_accepted",
	MempoolAdded:      "mempool_added",
	MempoolRemoved:    "mempool_removed",
	SpendRejected:     "spend_rejected",
}

func (k Kind) String() string {
	if k < numKinds {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("events: unknown kind %q", s)
}

// Kinds returns every event kind.
func Kinds() []Kind {
	out := make([]Kind, numKinds)
	for i := range out {
		out[i] = Kind(i)
	}
	return out
}

// Event carries the fields relevant to its kind; the rest are zero.
type Event struct {
	Kind         Kind           `json:"-"`
	Height       int32          `json:"height,omitempty"`
	BlockHash    chainhash.Hash `json:"blockHash"`
	TxHash       chainhash.Hash `json:"txHash"`
	Serial       []byte         `json:"serial,omitempty"`
	Denomination int64          `json:"denomination,omitempty"`
	GroupID      int            `json:"groupId,omitempty"`
	Count        int            `json:"count,omitempty"`
	Reason       string         `json:"reason,omitempty"`
}

// Handler receives published events. Handlers run synchronously on the
// publishing goroutine and must not block.
type Handler func(Event)

type subscription struct {
	id int
	fn Handler
}

// Bus dispatches events to the subscribers of their kind.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   [numKinds][]subscription
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn for kind and returns a function that removes it.
func (b *Bus) Subscribe(kind Kind, fn Handler) (func(), error) {
	if kind >= numKinds {
		return nil, fmt.Errorf("events: unknown kind %d", kind)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs[kind] = append(b.subs[kind], subscription{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[kind]
		for i, s := range list {
			if s.id == id {
				b.subs[kind] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}, nil
}

// SubscribeAll registers fn for every kind.
func (b *Bus) SubscribeAll(fn Handler) func() {
	var cancels []func()
	for _, k := range Kinds() {
		c, _ := b.Subscribe(k, fn)
		cancels = append(cancels, c)
	}
	return func() {
		for _, c := range cancels {
			c()
		}
	}
}

// Publish delivers ev to every subscriber of ev.Kind. A nil Bus drops
// events.
func (b *Bus) Publish(ev Event) {
	if b == nil || ev.Kind >= numKinds {
		return
	}
	b.mu.RLock()
	list := b.subs[ev.Kind]
	b.mu.RUnlock()
	for _, s := range list {
		s.fn(ev)
	}
}
