// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package analytics

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/adxyz/adpay/pkg/events"
	"github.com/adxyz/adpay/pkg/log"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func publish(bus *events.Bus, t events.Type, mutate func(*events.Event)) {
	ev := events.New(t)
	if mutate != nil {
		mutate(&ev)
	}
	bus.Publish(ev)
}

func TestTrackerAggregates(t *testing.T) {
	require := require.New(t)

	bus := events.NewBus(log.NoOp())
	tracker := NewTracker(log.NoOp())
	tracker.Start(bus)

	publish(bus, events.TypeAdPublished, func(ev *events.Event) {
		ev.AdID = "ABC123"
	})
	publish(bus, events.TypeAdBid, func(ev *events.Event) {
		ev.AdID = "ABC123"
		ev.Account = "adv1"
		ev.SetAmount(dec("2"))
	})
	publish(bus, events.TypeBidRefunded, func(ev *events.Event) {
		ev.AdID = "ABC123"
		ev.Account = "adv1"
		ev.SetAmount(dec("2"))
	})
	publish(bus, events.TypeAdBid, func(ev *events.Event) {
		ev.AdID = "ABC123"
		ev.Account = "adv2"
		ev.SetAmount(dec("4"))
	})
	publish(bus, events.TypeAdSettled, func(ev *events.Event) {
		ev.AdID = "ABC123"
		ev.Split = &events.Split{
			Creator:         "creator",
			Publisher:       "pub",
			Total:           dec("4"),
			CreatorAmount:   dec("0.4"),
			PublisherAmount: dec("3.2"),
			PlatformAmount:  dec("0.4"),
		}
	})
	publish(bus, events.TypeWithdrawal, func(ev *events.Event) {
		ev.Account = "creator"
		ev.SetAmount(dec("0.4"))
	})

	// Stop drains the subscription before we read the rollups.
	tracker.Stop()

	report := tracker.Snapshot()
	require.Equal(uint64(1), report.AdsPublished)
	require.Equal(uint64(2), report.BidsPlaced)
	require.Equal(uint64(1), report.BidsRefunded)
	require.Equal(uint64(1), report.AdsSettled)
	require.Equal(uint64(1), report.Withdrawals)
	require.True(report.SettledVolume.Equal(dec("4")))
	require.True(report.PlatformFees.Equal(dec("0.4")))
	require.WithinDuration(time.Now(), report.GeneratedAt, time.Minute)

	adv1 := tracker.AccountSnapshot("adv1")
	require.Equal(uint64(1), adv1.BidsPlaced)
	require.True(adv1.BidVolume.Equal(dec("2")))
	require.True(adv1.Refunded.Equal(dec("2")))

	creator := tracker.AccountSnapshot("creator")
	require.True(creator.Earned.Equal(dec("0.4")))
	require.True(creator.Withdrawn.Equal(dec("0.4")))

	pub := tracker.AccountSnapshot("pub")
	require.True(pub.Earned.Equal(dec("3.2")))

	// Unknown accounts report zeroes.
	ghost := tracker.AccountSnapshot("ghost")
	require.True(ghost.Earned.IsZero())
	require.Zero(ghost.BidsPlaced)
}

func TestTrackerStopIsIdempotentWhenNeverStarted(t *testing.T) {
	tracker := NewTracker(log.NoOp())
	tracker.Stop()
}
