// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package rtb bridges the adpay ledger and OpenRTB 2.x bidders: open slots
// are offered as bid requests, and seat bids map onto ledger bids.
package rtb

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/shopspring/decimal"

	"github.com/adxyz/adpay/pkg/auction"
)

var (
	ErrNoSeatBids   = errors.New("bid response carries no seat bids")
	ErrMissingSeat  = errors.New("seat bid carries no seat account")
	ErrMissingImpID = errors.New("bid carries no impression id")
	ErrNonPositive  = errors.New("bid price must be positive")
)

// BidRequestForSlot builds an OpenRTB solicitation for an open slot. The
// impression id and tag id both carry the slot id; the floor is the price a
// bid has to beat.
func BidRequestForSlot(slot *auction.AdSlot) *openrtb2.BidRequest {
	floor := slot.MinimumBidPrice
	if slot.HighestBid != nil {
		floor = slot.HighestBid.Amount
	}

	return &openrtb2.BidRequest{
		ID: uuid.NewString(),
		Imp: []openrtb2.Imp{{
			ID:          slot.ID,
			TagID:       slot.ID,
			BidFloor:    floor.InexactFloat64(),
			BidFloorCur: "USD",
		}},
		Cur: []string{"USD"},
	}
}

// Submission is one ledger bid extracted from an OpenRTB response
type Submission struct {
	AdID   string
	Bidder string
	Amount decimal.Decimal
}

// SubmissionFromResponse maps the first seat bid of an OpenRTB response
// onto a ledger bid. The seat identifies the bidding account; the bid's
// impression id names the slot.
func SubmissionFromResponse(resp *openrtb2.BidResponse) (*Submission, error) {
	if len(resp.SeatBid) == 0 || len(resp.SeatBid[0].Bid) == 0 {
		return nil, ErrNoSeatBids
	}

	seat := resp.SeatBid[0]
	if seat.Seat == "" {
		return nil, ErrMissingSeat
	}

	bid := seat.Bid[0]
	if bid.ImpID == "" {
		return nil, ErrMissingImpID
	}
	if bid.Price <= 0 {
		return nil, fmt.Errorf("%w: got %v", ErrNonPositive, bid.Price)
	}

	return &Submission{
		AdID:   bid.ImpID,
		Bidder: seat.Seat,
		Amount: decimal.NewFromFloat(bid.Price),
	}, nil
}
