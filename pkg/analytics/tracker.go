// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package analytics aggregates ledger events into per-account and
// marketplace-wide statistics for reporting endpoints.
package analytics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/adxyz/adpay/pkg/events"
	"github.com/adxyz/adpay/pkg/log"
)

// Tracker consumes the ledger event stream and keeps running totals.
// Counters are loosely consistent with the ledger: delivery over the bus is
// best-effort, so reports are advisory, never authoritative balances.
type Tracker struct {
	AdsPublished atomic.Uint64
	BidsPlaced   atomic.Uint64
	BidsRefunded atomic.Uint64
	AdsSettled   atomic.Uint64
	Withdrawals  atomic.Uint64

	mu            sync.RWMutex
	settledVolume decimal.Decimal
	platformFees  decimal.Decimal
	accounts      map[string]*AccountStats

	cancel func()
	done   chan struct{}
	log    log.Logger
}

// AccountStats is the per-account rollup
type AccountStats struct {
	Account    string          `json:"account"`
	BidsPlaced uint64          `json:"bids_placed"`
	BidVolume  decimal.Decimal `json:"bid_volume"`
	Refunded   decimal.Decimal `json:"refunded"`
	Earned     decimal.Decimal `json:"earned"`
	Withdrawn  decimal.Decimal `json:"withdrawn"`
}

// Report is a point-in-time marketplace snapshot
type Report struct {
	GeneratedAt   time.Time       `json:"generated_at"`
	AdsPublished  uint64          `json:"ads_published"`
	BidsPlaced    uint64          `json:"bids_placed"`
	BidsRefunded  uint64          `json:"bids_refunded"`
	AdsSettled    uint64          `json:"ads_settled"`
	Withdrawals   uint64          `json:"withdrawals"`
	SettledVolume decimal.Decimal `json:"settled_volume"`
	PlatformFees  decimal.Decimal `json:"platform_fees"`
}

// NewTracker creates a tracker. Call Start to attach it to a bus.
func NewTracker(logger log.Logger) *Tracker {
	return &Tracker{
		settledVolume: decimal.Zero,
		platformFees:  decimal.Zero,
		accounts:      make(map[string]*AccountStats),
		log:           logger,
	}
}

// Start subscribes to the bus and consumes events until Stop is called
func (t *Tracker) Start(bus *events.Bus) {
	ch, cancel := bus.Subscribe(256)
	t.cancel = cancel
	t.done = make(chan struct{})

	go func() {
		defer close(t.done)
		for ev := range ch {
			t.record(ev)
		}
	}()

	t.log.Info("analytics tracker started")
}

// Stop detaches from the bus and waits for the consumer to drain
func (t *Tracker) Stop() {
	if t.cancel == nil {
		return
	}
	t.cancel()
	<-t.done
}

func (t *Tracker) record(ev events.Event) {
	switch ev.Type {
	case events.TypeAdPublished:
		t.AdsPublished.Add(1)

	case events.TypeAdBid:
		t.BidsPlaced.Add(1)
		t.mu.Lock()
		stats := t.account(ev.Account)
		stats.BidsPlaced++
		stats.BidVolume = stats.BidVolume.Add(amountOf(ev))
		t.mu.Unlock()

	case events.TypeBidRefunded:
		t.BidsRefunded.Add(1)
		t.mu.Lock()
		stats := t.account(ev.Account)
		stats.Refunded = stats.Refunded.Add(amountOf(ev))
		t.mu.Unlock()

	case events.TypeAdSettled:
		t.AdsSettled.Add(1)
		if ev.Split == nil {
			return
		}
		t.mu.Lock()
		t.settledVolume = t.settledVolume.Add(ev.Split.Total)
		t.platformFees = t.platformFees.Add(ev.Split.PlatformAmount)
		creator := t.account(ev.Split.Creator)
		creator.Earned = creator.Earned.Add(ev.Split.CreatorAmount)
		publisher := t.account(ev.Split.Publisher)
		publisher.Earned = publisher.Earned.Add(ev.Split.PublisherAmount)
		t.mu.Unlock()

	case events.TypeWithdrawal:
		t.Withdrawals.Add(1)
		t.mu.Lock()
		stats := t.account(ev.Account)
		stats.Withdrawn = stats.Withdrawn.Add(amountOf(ev))
		t.mu.Unlock()
	}
}

func amountOf(ev events.Event) decimal.Decimal {
	if ev.Amount == nil {
		return decimal.Zero
	}
	return *ev.Amount
}

// account returns the stats entry for an account, creating it on first use.
// Callers must hold t.mu.
func (t *Tracker) account(name string) *AccountStats {
	stats, ok := t.accounts[name]
	if !ok {
		stats = &AccountStats{
			Account:   name,
			BidVolume: decimal.Zero,
			Refunded:  decimal.Zero,
			Earned:    decimal.Zero,
			Withdrawn: decimal.Zero,
		}
		t.accounts[name] = stats
	}
	return stats
}

// Snapshot returns the marketplace-wide report
func (t *Tracker) Snapshot() Report {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return Report{
		GeneratedAt:   time.Now(),
		AdsPublished:  t.AdsPublished.Load(),
		BidsPlaced:    t.BidsPlaced.Load(),
		BidsRefunded:  t.BidsRefunded.Load(),
		AdsSettled:    t.AdsSettled.Load(),
		Withdrawals:   t.Withdrawals.Load(),
		SettledVolume: t.settledVolume,
		PlatformFees:  t.platformFees,
	}
}

// AccountSnapshot returns a copy of one account's rollup
func (t *Tracker) AccountSnapshot(account string) AccountStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if stats, ok := t.accounts[account]; ok {
		return *stats
	}
	return AccountStats{
		Account:   account,
		BidVolume: decimal.Zero,
		Refunded:  decimal.Zero,
		Earned:    decimal.Zero,
		Withdrawn: decimal.Zero,
	}
}
