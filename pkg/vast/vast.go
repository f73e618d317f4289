// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package vast renders VAST 4.x ad tags for published slots.
package vast

import "encoding/xml"

// VAST 4.x Video Ad Serving Template
type VAST struct {
	XMLName xml.Name `xml:"VAST"`
	Version string   `xml:"version,attr"`
	Ads     []Ad     `xml:"Ad"`
}

// Ad represents a VAST advertisement
type Ad struct {
	ID     string  `xml:"id,attr"`
	InLine *InLine `xml:"InLine,omitempty"`
}

// InLine contains all data to display the ad
type InLine struct {
	AdSystem   AdSystem     `xml:"AdSystem"`
	AdTitle    string       `xml:"AdTitle"`
	Advertiser string       `xml:"Advertiser,omitempty"`
	Pricing    *Pricing     `xml:"Pricing,omitempty"`
	Impression []Impression `xml:"Impression"`
	Creatives  Creatives    `xml:"Creatives"`
}

// AdSystem info
type AdSystem struct {
	Version string `xml:"version,attr,omitempty"`
	Name    string `xml:",chardata"`
}

// Pricing information
type Pricing struct {
	Model    string `xml:"model,attr"`
	Currency string `xml:"currency,attr"`
	Value    string `xml:",chardata"`
}

// Impression tracking pixel
type Impression struct {
	ID  string `xml:"id,attr,omitempty"`
	URL string `xml:",cdata"`
}

// Creatives container
type Creatives struct {
	Creative []Creative `xml:"Creative"`
}

// Creative element
type Creative struct {
	ID     string  `xml:"id,attr,omitempty"`
	Linear *Linear `xml:"Linear,omitempty"`
}

// Linear video ad
type Linear struct {
	Duration    string       `xml:"Duration"`
	MediaFiles  MediaFiles   `xml:"MediaFiles"`
	VideoClicks *VideoClicks `xml:"VideoClicks,omitempty"`
}

// MediaFiles container
type MediaFiles struct {
	MediaFile []MediaFile `xml:"MediaFile"`
}

// MediaFile represents a video file
type MediaFile struct {
	Delivery string `xml:"delivery,attr"`
	Type     string `xml:"type,attr"`
	Width    int    `xml:"width,attr"`
	Height   int    `xml:"height,attr"`
	URL      string `xml:",cdata"`
}

// VideoClicks for clickthrough
type VideoClicks struct {
	ClickThrough *ClickThrough `xml:"ClickThrough,omitempty"`
}

// ClickThrough URL
type ClickThrough struct {
	URL string `xml:",cdata"`
}
