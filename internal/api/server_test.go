// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/adxyz/adpay/pkg/analytics"
	"github.com/adxyz/adpay/pkg/events"
	"github.com/adxyz/adpay/pkg/ledger"
	"github.com/adxyz/adpay/pkg/log"
	"github.com/adxyz/adpay/pkg/roles"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

const (
	owner    = "owner"
	treasury = "treasury"
	pub      = "pub"
	creator  = "creator"
	adv1     = "adv1"
	adv2     = "adv2"
)

func newTestServer(t *testing.T) (*gin.Engine, *ledger.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx := context.Background()
	svc, err := ledger.New(ctx, ledger.Params{Owner: owner, Treasury: treasury})
	require.NoError(t, err)

	require.NoError(t, svc.GrantRole(ctx, owner, roles.RolePublisher, pub))
	require.NoError(t, svc.GrantRole(ctx, owner, roles.RoleAdvertiser, adv1))
	require.NoError(t, svc.GrantRole(ctx, owner, roles.RoleAdvertiser, adv2))

	tracker := analytics.NewTracker(log.NoOp())
	tracker.Start(svc.Bus())
	t.Cleanup(tracker.Stop)

	return NewRouter(svc, tracker, log.NoOp()), svc
}

func doJSON(t *testing.T, router *gin.Engine, method, path, account string, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	if account != "" {
		req.Header.Set(accountHeader, account)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestPublishAndGetAd(t *testing.T) {
	require := require.New(t)
	router, _ := newTestServer(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/ads", pub,
		`{"ad_id":"ABC123","creator":"creator","creator_share_percent":10,"minimum_bid_price":"1"}`)
	require.Equal(http.StatusCreated, w.Code, w.Body.String())

	w = doJSON(t, router, http.MethodGet, "/api/v1/ads/ABC123", "", "")
	require.Equal(http.StatusOK, w.Code)

	var slot struct {
		ID      string `json:"id"`
		Settled bool   `json:"settled"`
	}
	require.NoError(json.Unmarshal(w.Body.Bytes(), &slot))
	require.Equal("ABC123", slot.ID)
	require.False(slot.Settled)
}

func TestPublishWithoutRole(t *testing.T) {
	require := require.New(t)
	router, _ := newTestServer(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/ads", creator,
		`{"ad_id":"ABC124","creator":"creator","creator_share_percent":10,"minimum_bid_price":"1"}`)
	require.Equal(http.StatusUnauthorized, w.Code)
	require.Contains(w.Body.String(), "missing role publisher")
}

func TestPublishWithoutAccountHeader(t *testing.T) {
	require := require.New(t)
	router, _ := newTestServer(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/ads", "",
		`{"ad_id":"ABC125","creator":"creator"}`)
	require.Equal(http.StatusBadRequest, w.Code)
}

func TestDuplicateAdConflicts(t *testing.T) {
	require := require.New(t)
	router, _ := newTestServer(t)

	body := `{"ad_id":"ABC123","creator":"creator","creator_share_percent":10,"minimum_bid_price":"1"}`
	w := doJSON(t, router, http.MethodPost, "/api/v1/ads", pub, body)
	require.Equal(http.StatusCreated, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/ads", pub, body)
	require.Equal(http.StatusConflict, w.Code)
}

func TestBidSettleWithdrawFlow(t *testing.T) {
	require := require.New(t)
	router, _ := newTestServer(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/ads", pub,
		`{"ad_id":"ABC123","creator":"creator","creator_share_percent":10,"minimum_bid_price":"1"}`)
	require.Equal(http.StatusCreated, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/ads/ABC123/bids", adv1, `{"payment":"2"}`)
	require.Equal(http.StatusOK, w.Code, w.Body.String())

	// A tie is rejected with a conflict.
	w = doJSON(t, router, http.MethodPost, "/api/v1/ads/ABC123/bids", adv2, `{"payment":"2"}`)
	require.Equal(http.StatusConflict, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/ads/ABC123/bids", adv2, `{"payment":"4"}`)
	require.Equal(http.StatusOK, w.Code)

	// Settlement is admin-only.
	w = doJSON(t, router, http.MethodPost, "/api/v1/ads/ABC123/settle", pub, "")
	require.Equal(http.StatusUnauthorized, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/ads/ABC123/settle", owner, "")
	require.Equal(http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, router, http.MethodGet, "/api/v1/balances/creator", "", "")
	require.Equal(http.StatusOK, w.Code)
	require.Contains(w.Body.String(), "0.4")

	w = doJSON(t, router, http.MethodPost, "/api/v1/withdrawals", creator, "")
	require.Equal(http.StatusOK, w.Code)
	require.Contains(w.Body.String(), "0.4")

	// Second withdrawal finds nothing.
	w = doJSON(t, router, http.MethodPost, "/api/v1/withdrawals", creator, "")
	require.Equal(http.StatusConflict, w.Code)
}

func TestBidOnUnknownAd(t *testing.T) {
	require := require.New(t)
	router, _ := newTestServer(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/ads/nope/bids", adv1, `{"payment":"2"}`)
	require.Equal(http.StatusNotFound, w.Code)
}

func TestRoleEndpoints(t *testing.T) {
	require := require.New(t)
	router, _ := newTestServer(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/roles/grants", owner,
		`{"role":"advertiser","account":"newcomer"}`)
	require.Equal(http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/roles/advertiser/newcomer", "", "")
	require.Equal(http.StatusOK, w.Code)
	require.Contains(w.Body.String(), `"has":true`)

	w = doJSON(t, router, http.MethodDelete, "/api/v1/roles/grants", owner,
		`{"role":"advertiser","account":"newcomer"}`)
	require.Equal(http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/roles/advertiser/newcomer", "", "")
	require.Contains(w.Body.String(), `"has":false`)

	// Non-admins cannot grant.
	w = doJSON(t, router, http.MethodPost, "/api/v1/roles/grants", pub,
		`{"role":"advertiser","account":"x"}`)
	require.Equal(http.StatusUnauthorized, w.Code)

	// Unknown role names are a bad request.
	w = doJSON(t, router, http.MethodPost, "/api/v1/roles/grants", owner,
		`{"role":"moderator","account":"x"}`)
	require.Equal(http.StatusBadRequest, w.Code)
}

func TestRTBBid(t *testing.T) {
	require := require.New(t)
	router, _ := newTestServer(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/ads", pub,
		`{"ad_id":"ABC123","creator":"creator","creator_share_percent":10,"minimum_bid_price":"1"}`)
	require.Equal(http.StatusCreated, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/rtb/bid", adv1,
		`{"id":"resp-1","seatbid":[{"seat":"adv1","bid":[{"id":"b1","impid":"ABC123","price":2.5}]}]}`)
	require.Equal(http.StatusOK, w.Code, w.Body.String())

	var slot struct {
		HighestBid struct {
			Bidder string `json:"bidder"`
		} `json:"highest_bid"`
	}
	require.NoError(json.Unmarshal(w.Body.Bytes(), &slot))
	require.Equal("adv1", slot.HighestBid.Bidder)

	// Anonymous submissions are rejected, as is a seat claiming another
	// caller's identity.
	w = doJSON(t, router, http.MethodPost, "/api/v1/rtb/bid", "",
		`{"id":"resp-2","seatbid":[{"seat":"adv1","bid":[{"id":"b2","impid":"ABC123","price":9}]}]}`)
	require.Equal(http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/rtb/bid", adv2,
		`{"id":"resp-3","seatbid":[{"seat":"adv1","bid":[{"id":"b3","impid":"ABC123","price":9}]}]}`)
	require.Equal(http.StatusBadRequest, w.Code)
	require.Contains(w.Body.String(), "does not match caller")

	// The seat still needs the advertiser role.
	w = doJSON(t, router, http.MethodPost, "/api/v1/rtb/bid", "stranger",
		`{"id":"resp-4","seatbid":[{"seat":"stranger","bid":[{"id":"b4","impid":"ABC123","price":9}]}]}`)
	require.Equal(http.StatusUnauthorized, w.Code)
}

func TestEventStream(t *testing.T) {
	require := require.New(t)
	router, svc := newTestServer(t)

	srv := httptest.NewServer(router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(err)
	defer conn.Close()

	// Give the handler a moment to register its subscription.
	time.Sleep(50 * time.Millisecond)

	ctx := context.Background()
	_, err = svc.PublishAd(ctx, pub, "WS1", creator, 10, dec("1"))
	require.NoError(err)

	var ev events.Event
	require.NoError(conn.ReadJSON(&ev))
	require.Equal(events.TypeAdPublished, ev.Type)
	require.Equal("WS1", ev.AdID)
}

func TestAdTag(t *testing.T) {
	require := require.New(t)
	router, _ := newTestServer(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/ads", pub,
		`{"ad_id":"ABC123","creator":"creator","creator_share_percent":10,"minimum_bid_price":"1"}`)
	require.Equal(http.StatusCreated, w.Code)

	w = doJSON(t, router, http.MethodGet,
		"/api/v1/ads/ABC123/vast?media=https%3A%2F%2Fcdn.example.com%2Fspot.mp4&dur=15", "", "")
	require.Equal(http.StatusOK, w.Code, w.Body.String())
	require.Contains(w.Header().Get("Content-Type"), "application/xml")
	require.Contains(w.Body.String(), `<VAST version="4.2">`)
	require.Contains(w.Body.String(), "00:00:15")

	// No creative URL is a bad request, unknown slots are not found.
	w = doJSON(t, router, http.MethodGet, "/api/v1/ads/ABC123/vast", "", "")
	require.Equal(http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/ads/nope/vast?media=x", "", "")
	require.Equal(http.StatusNotFound, w.Code)
}

func TestAnalyticsEndpoints(t *testing.T) {
	require := require.New(t)
	router, _ := newTestServer(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/ads", pub,
		`{"ad_id":"ABC123","creator":"creator","creator_share_percent":10,"minimum_bid_price":"1"}`)
	require.Equal(http.StatusCreated, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/ads/ABC123/bids", adv1, `{"payment":"2"}`)
	require.Equal(http.StatusOK, w.Code)

	// The tracker consumes the bus asynchronously; give it a beat.
	require.Eventually(func() bool {
		w := doJSON(t, router, http.MethodGet, "/api/v1/analytics", "", "")
		return w.Code == http.StatusOK && strings.Contains(w.Body.String(), `"bids_placed":1`)
	}, time.Second, 10*time.Millisecond)

	w = doJSON(t, router, http.MethodGet, "/api/v1/analytics/accounts/adv1", "", "")
	require.Equal(http.StatusOK, w.Code)
	require.Contains(w.Body.String(), `"bid_volume":"2"`)
}

func TestOpsRouter(t *testing.T) {
	require := require.New(t)
	_, svc := newTestServer(t)

	ops := NewOpsRouter(svc.Metrics())

	w := httptest.NewRecorder()
	ops.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(http.StatusOK, w.Code)
	require.Contains(w.Body.String(), "ok")

	w = httptest.NewRecorder()
	ops.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(http.StatusOK, w.Code)
	require.Contains(w.Body.String(), "adpay_")
}
