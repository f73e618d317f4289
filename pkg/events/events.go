// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/adxyz/adpay/pkg/log"
)

// Type identifies a ledger event
type Type string

const (
	TypeAdPublished Type = "AdPublished"
	TypeAdBid       Type = "AdBid"
	TypeBidRefunded Type = "BidRefunded"
	TypeAdSettled   Type = "AdSettled"
	TypeWithdrawal  Type = "Withdrawal"
)

// Event is one ledger notification. AdID and Account are set where the
// event concerns a slot or an account; AdSettled carries the full split.
// Amount is a pointer so events without a money amount omit the field.
type Event struct {
	ID        string           `json:"id"`
	Type      Type             `json:"type"`
	AdID      string           `json:"ad_id,omitempty"`
	Account   string           `json:"account,omitempty"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
	Split     *Split           `json:"split,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// SetAmount attaches a money amount to the event
func (e *Event) SetAmount(amount decimal.Decimal) {
	e.Amount = &amount
}

// Split is the payout breakdown attached to AdSettled events
type Split struct {
	Creator         string          `json:"creator"`
	Publisher       string          `json:"publisher"`
	Total           decimal.Decimal `json:"total"`
	CreatorAmount   decimal.Decimal `json:"creator_amount"`
	PublisherAmount decimal.Decimal `json:"publisher_amount"`
	PlatformAmount  decimal.Decimal `json:"platform_amount"`
}

// New creates an event with a fresh id and timestamp
func New(t Type) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: time.Now(),
	}
}

// Bus fans ledger events out to subscribers. Delivery is best-effort: a
// subscriber that stops draining its channel loses events rather than
// blocking the ledger.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
	log  log.Logger
}

// NewBus creates an event bus
func NewBus(logger log.Logger) *Bus {
	return &Bus{
		subs: make(map[int]chan Event),
		log:  logger,
	}
}

// Subscribe registers a buffered subscriber channel. The returned cancel
// func removes the subscription and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++

	ch := make(chan Event, buffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.log.Warn("event dropped for slow subscriber",
				log.Int("subscriber", id),
				log.String("type", string(ev.Type)))
		}
	}
}
