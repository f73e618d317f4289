// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package adpaysdk is the Go client for the adpay API.
package adpaysdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/shopspring/decimal"
)

const accountHeader = "X-Adpay-Account"

// Client is the adpay API client. Account is sent as the caller identity
// on every request.
type Client struct {
	baseURL    string
	account    string
	httpClient *http.Client
}

// NewClient creates an adpay client for the given base URL, e.g.
// "http://localhost:8080/api/v1".
func NewClient(baseURL, account string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		account: account,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// AdSlot mirrors the server's slot record
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

// Bid is the standing highest bid on a slot
type Bid struct {
	Bidder string          `json:"bidder"`
	Amount decimal.Decimal `json:"amount"`
}

// SettlementReceipt reports a settlement split
type SettlementReceipt struct {
	AdID            string          `json:"ad_id"`
	Total           decimal.Decimal `json:"total"`
	CreatorAmount   decimal.Decimal `json:"creator_amount"`
	PublisherAmount decimal.Decimal `json:"publisher_amount"`
	PlatformAmount  decimal.Decimal `json:"platform_amount"`
}

// WithdrawalReceipt reports a completed withdrawal
type WithdrawalReceipt struct {
	ID      string          `json:"id"`
	Account string          `json:"account"`
	Amount  decimal.Decimal `json:"amount"`
}

// Event is one entry from the event stream. Amount is nil on events that
// carry no money amount.
type Event struct {
	ID        string           `json:"id"`
	Type      string           `json:"type"`
	AdID      string           `json:"ad_id,omitempty"`
	Account   string           `json:"account,omitempty"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// GrantRole grants a role to an account. The client account must be an admin.
func (c *Client) GrantRole(ctx context.Context, role, account string) error {
	body := map[string]string{"role": role, "account": account}
	return c.do(ctx, http.MethodPost, "/roles/grants", body, nil)
}

// RevokeRole removes a role from an account
func (c *Client) RevokeRole(ctx context.Context, role, account string) error {
	body := map[string]string{"role": role, "account": account}
	return c.do(ctx, http.MethodDelete, "/roles/grants", body, nil)
}

// HasRole reports whether an account holds a role
func (c *Client) HasRole(ctx context.Context, role, account string) (bool, error) {
	var out struct {
		Has bool `json:"has"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/roles/%s/%s", role, account), nil, &out)
	return out.Has, err
}

// PublishAd lists a new ad slot
func (c *Client) PublishAd(ctx context.Context, adID, creator string, creatorShare uint32, minPrice decimal.Decimal) (*AdSlot, error) {
	body := map[string]any{
		"ad_id":                 adID,
		"creator":               creator,
		"creator_share_percent": creatorShare,
		"minimum_bid_price":     minPrice,
	}
	var slot AdSlot
	if err := c.do(ctx, http.MethodPost, "/ads", body, &slot); err != nil {
		return nil, err
	}
	return &slot, nil
}

// GetAd fetches a slot record
func (c *Client) GetAd(ctx context.Context, adID string) (*AdSlot, error) {
	var slot AdSlot
	if err := c.do(ctx, http.MethodGet, "/ads/"+adID, nil, &slot); err != nil {
		return nil, err
	}
	return &slot, nil
}

// PlaceBid escrows a payment as the new highest bid
func (c *Client) PlaceBid(ctx context.Context, adID string, payment decimal.Decimal) (*AdSlot, error) {
	var slot AdSlot
	if err := c.do(ctx, http.MethodPost, "/ads/"+adID+"/bids", map[string]any{"payment": payment}, &slot); err != nil {
		return nil, err
	}
	return &slot, nil
}

// Settle closes the auction on a slot. The client account must be an admin.
func (c *Client) Settle(ctx context.Context, adID string) (*SettlementReceipt, error) {
	var receipt SettlementReceipt
	if err := c.do(ctx, http.MethodPost, "/ads/"+adID+"/settle", nil, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// Withdraw pays out the client account's full withdrawable balance
func (c *Client) Withdraw(ctx context.Context) (*WithdrawalReceipt, error) {
	var receipt WithdrawalReceipt
	if err := c.do(ctx, http.MethodPost, "/withdrawals", nil, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// Balance fetches an account's withdrawable balance
func (c *Client) Balance(ctx context.Context, account string) (decimal.Decimal, error) {
	var out struct {
		Balance decimal.Decimal `json:"balance"`
	}
	err := c.do(ctx, http.MethodGet, "/balances/"+account, nil, &out)
	return out.Balance, err
}

// RTBBid submits an OpenRTB bid response as a ledger bid
func (c *Client) RTBBid(ctx context.Context, resp *openrtb2.BidResponse) (*AdSlot, error) {
	var slot AdSlot
	if err := c.do(ctx, http.MethodPost, "/rtb/bid", resp, &slot); err != nil {
		return nil, err
	}
	return &slot, nil
}

// AdTag fetches the VAST markup for a slot
func (c *Client) AdTag(ctx context.Context, adID, mediaURL string) ([]byte, error) {
	url := fmt.Sprintf("%s/ads/%s/vast?media=%s", c.baseURL, adID, mediaURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(accountHeader, c.account)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vast request failed: %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// StreamEvents opens a websocket to the event stream and forwards events
// onto the returned channel until the context is cancelled
func (c *Client) StreamEvents(ctx context.Context) (<-chan Event, error) {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/events/ws"

	header := http.Header{}
	header.Set(accountHeader, c.account)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, err
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			var ev Event
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(accountHeader, c.account)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, apiErr.Error)
		}
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
