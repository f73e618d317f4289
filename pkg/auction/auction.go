// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package auction

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/adxyz/adpay/pkg/log"
)

var (
	ErrDuplicateAd    = errors.New("ad id already exists")
	ErrAdNotFound     = errors.New("ad not found")
	ErrAlreadySettled = errors.New("ad already settled")
	ErrNoBids         = errors.New("ad has no bids")
	ErrStaleBid       = errors.New("bid does not beat current price")
	ErrInvalidShare   = errors.New("creator share plus platform fee must not exceed 100")
	ErrNegativePrice  = errors.New("minimum bid price must not be negative")
)

// PlatformFeePercent is the fixed share of the winning bid retained by the
// platform at settlement, independent of the per-slot creator share.
const PlatformFeePercent = 10

// MaxCreatorSharePercent caps the per-slot creator share so the publisher
// remainder at settlement can never go negative.
const MaxCreatorSharePercent = 100 - PlatformFeePercent

// baseUnitPlaces is the number of decimal places in one payment unit.
// Settlement shares truncate at this precision.
const baseUnitPlaces = 18

// Bid is the current highest bid on a slot
type Bid struct {
	Bidder string          `json:"bidder"`
	Amount decimal.Decimal `json:"amount"`
}

// AdSlot is one auctionable advertising opportunity. Slots are keyed by a
// caller-supplied id, created once and never deleted.
type AdSlot struct {
	ID                  string          `json:"id"`
	Publisher           string          `json:"publisher"`
	Creator             string          `json:"creator"`
	CreatorSharePercent uint32          `json:"creator_share_percent"`
	MinimumBidPrice     decimal.Decimal `json:"minimum_bid_price"`
	HighestBid          *Bid            `json:"highest_bid,omitempty"`
	Settled             bool            `json:"settled"`
	CreatedAt           time.Time       `json:"created_at"`
}

// Outcome is the revenue split computed when a slot settles
type Outcome struct {
	AdID            string          `json:"ad_id"`
	Publisher       string          `json:"publisher"`
	Creator         string          `json:"creator"`
	Winner          string          `json:"winner"`
	Total           decimal.Decimal `json:"total"`
	CreatorAmount   decimal.Decimal `json:"creator_amount"`
	PublisherAmount decimal.Decimal `json:"publisher_amount"`
	PlatformAmount  decimal.Decimal `json:"platform_amount"`
}

// Book holds every ad slot ever published
type Book struct {
	mu    sync.RWMutex
	slots map[string]*AdSlot
	log   log.Logger
}

// NewBook creates an empty slot book
func NewBook(logger log.Logger) *Book {
	return &Book{
		slots: make(map[string]*AdSlot),
		log:   logger,
	}
}

// Publish creates a new ad slot. Slot ids are insert-once: publishing an
// existing id is an error, never an update.
func (b *Book) Publish(adID, publisher, creator string, creatorShare uint32, minPrice decimal.Decimal) (*AdSlot, error) {
	if creatorShare > MaxCreatorSharePercent {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidShare, creatorShare)
	}
	if minPrice.IsNegative() {
		return nil, ErrNegativePrice
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.slots[adID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateAd, adID)
	}

	slot := &AdSlot{
		ID:                  adID,
		Publisher:           publisher,
		Creator:             creator,
		CreatorSharePercent: creatorShare,
		MinimumBidPrice:     minPrice,
		CreatedAt:           time.Now(),
	}
	b.slots[adID] = slot

	b.log.Info("ad published",
		log.String("ad", adID),
		log.String("publisher", publisher),
		log.Amount("min_price", minPrice))

	return slot.clone(), nil
}

// PlaceBid replaces the highest bid on an open slot. The first bid must be
// at least the minimum bid price; every later bid must strictly exceed the
// standing one (ties are rejected). Returns the displaced bid, if any, so
// the caller can refund its escrow.
func (b *Book) PlaceBid(adID, bidder string, amount decimal.Decimal) (*Bid, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	slot, exists := b.slots[adID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrAdNotFound, adID)
	}
	if slot.Settled {
		return nil, fmt.Errorf("%w: %s", ErrAlreadySettled, adID)
	}

	if slot.HighestBid == nil {
		if amount.LessThan(slot.MinimumBidPrice) {
			return nil, fmt.Errorf("%w: %s below minimum %s",
				ErrStaleBid, amount, slot.MinimumBidPrice)
		}
	} else if amount.LessThanOrEqual(slot.HighestBid.Amount) {
		return nil, fmt.Errorf("%w: %s does not exceed %s",
			ErrStaleBid, amount, slot.HighestBid.Amount)
	}

	displaced := slot.HighestBid
	slot.HighestBid = &Bid{Bidder: bidder, Amount: amount}

	b.log.Info("bid placed",
		log.String("ad", adID),
		log.String("bidder", bidder),
		log.Amount("amount", amount))

	return displaced, nil
}

// Settle closes the auction on a slot and computes the revenue split from
// its winning bid. A slot settles at most once.
func (b *Book) Settle(adID string) (*Outcome, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	slot, exists := b.slots[adID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrAdNotFound, adID)
	}
	if slot.Settled {
		return nil, fmt.Errorf("%w: %s", ErrAlreadySettled, adID)
	}
	if slot.HighestBid == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoBids, adID)
	}

	total := slot.HighestBid.Amount
	creatorAmount, platformAmount := splitShares(total, slot.CreatorSharePercent)
	publisherAmount := total.Sub(creatorAmount).Sub(platformAmount)

	slot.Settled = true

	outcome := &Outcome{
		AdID:            adID,
		Publisher:       slot.Publisher,
		Creator:         slot.Creator,
		Winner:          slot.HighestBid.Bidder,
		Total:           total,
		CreatorAmount:   creatorAmount,
		PublisherAmount: publisherAmount,
		PlatformAmount:  platformAmount,
	}

	b.log.Info("ad settled",
		log.String("ad", adID),
		log.String("winner", outcome.Winner),
		log.Amount("total", total))

	return outcome, nil
}

// Get returns a copy of the slot record
func (b *Book) Get(adID string) (*AdSlot, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	slot, exists := b.slots[adID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrAdNotFound, adID)
	}
	return slot.clone(), nil
}

// Slots returns copies of every slot record, for persistence snapshots
func (b *Book) Slots() []*AdSlot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*AdSlot, 0, len(b.slots))
	for _, slot := range b.slots {
		out = append(out, slot.clone())
	}
	return out
}

// Restore re-inserts a persisted slot record without lifecycle checks. Used
// only when reloading ledger state from storage.
func (b *Book) Restore(slot *AdSlot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.slots[slot.ID] = slot.clone()
}

func (s *AdSlot) clone() *AdSlot {
	c := *s
	if s.HighestBid != nil {
		bid := *s.HighestBid
		c.HighestBid = &bid
	}
	return &c
}

// splitShares computes the creator and platform cuts by truncating division
// at base-unit precision, replicating the reference integer math. The
// publisher takes the remainder, so the three shares always sum to the
// winning bid.
func splitShares(total decimal.Decimal, creatorShare uint32) (creator, platform decimal.Decimal) {
	hundred := decimal.NewFromInt(100)
	creator, _ = total.Mul(decimal.NewFromInt(int64(creatorShare))).QuoRem(hundred, baseUnitPlaces)
	platform, _ = total.Mul(decimal.NewFromInt(PlatformFeePercent)).QuoRem(hundred, baseUnitPlaces)
	return creator, platform
}
