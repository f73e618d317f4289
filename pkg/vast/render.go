// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vast

import (
	"encoding/xml"
	"errors"
	"fmt"

	"github.com/adxyz/adpay/pkg/auction"
)

const (
	vastVersion  = "4.2"
	adSystemName = "adpay"
)

// ErrNoMedia is returned when a tag is requested without a creative URL
var ErrNoMedia = errors.New("media url required")

// Params describe the creative and placement geometry for a rendered tag
type Params struct {
	MediaURL        string
	MimeType        string
	Width           int
	Height          int
	DurationSec     int
	ImpressionURL   string
	ClickThroughURL string
}

func (p *Params) applyDefaults() {
	if p.MimeType == "" {
		p.MimeType = "video/mp4"
	}
	if p.Width == 0 {
		p.Width = 1920
	}
	if p.Height == 0 {
		p.Height = 1080
	}
	if p.DurationSec == 0 {
		p.DurationSec = 30
	}
}

// BuildForSlot renders a VAST document for a published slot. The price in
// the tag is the standing highest bid, falling back to the slot's minimum
// bid price when the auction has not seen a bid yet.
func BuildForSlot(slot *auction.AdSlot, p Params) (*VAST, error) {
	if p.MediaURL == "" {
		return nil, ErrNoMedia
	}
	p.applyDefaults()

	price := slot.MinimumBidPrice
	advertiser := ""
	if slot.HighestBid != nil {
		price = slot.HighestBid.Amount
		advertiser = slot.HighestBid.Bidder
	}

	inline := &InLine{
		AdSystem:   AdSystem{Name: adSystemName, Version: vastVersion},
		AdTitle:    slot.ID,
		Advertiser: advertiser,
		Pricing: &Pricing{
			Model:    "CPM",
			Currency: "USD",
			Value:    price.String(),
		},
		Creatives: Creatives{
			Creative: []Creative{{
				ID: slot.ID,
				Linear: &Linear{
					Duration: formatDuration(p.DurationSec),
					MediaFiles: MediaFiles{
						MediaFile: []MediaFile{{
							Delivery: "progressive",
							Type:     p.MimeType,
							Width:    p.Width,
							Height:   p.Height,
							URL:      p.MediaURL,
						}},
					},
				},
			}},
		},
	}

	if p.ImpressionURL != "" {
		inline.Impression = []Impression{{ID: slot.ID, URL: p.ImpressionURL}}
	}
	if p.ClickThroughURL != "" {
		inline.Creatives.Creative[0].Linear.VideoClicks = &VideoClicks{
			ClickThrough: &ClickThrough{URL: p.ClickThroughURL},
		}
	}

	return &VAST{
		Version: vastVersion,
		Ads:     []Ad{{ID: slot.ID, InLine: inline}},
	}, nil
}

// Marshal serializes the document with an XML header
func (v *VAST) Marshal() ([]byte, error) {
	data, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), data...), nil
}

func formatDuration(seconds int) string {
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}
