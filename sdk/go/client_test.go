// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package adpaysdk

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/adxyz/adpay/internal/api"
	"github.com/adxyz/adpay/pkg/ledger"
	"github.com/adxyz/adpay/pkg/log"
)

func newTestBackend(t *testing.T) string {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc, err := ledger.New(context.Background(), ledger.Params{
		Owner:    "owner",
		Treasury: "treasury",
	})
	require.NoError(t, err)

	srv := httptest.NewServer(api.NewRouter(svc, nil, log.NoOp()))
	t.Cleanup(srv.Close)

	return srv.URL + "/api/v1"
}

func TestClientLifecycle(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	base := newTestBackend(t)

	admin := NewClient(base, "owner")
	pub := NewClient(base, "pub")
	adv := NewClient(base, "adv")

	require.NoError(admin.GrantRole(ctx, "publisher", "pub"))
	require.NoError(admin.GrantRole(ctx, "advertiser", "adv"))

	has, err := admin.HasRole(ctx, "publisher", "pub")
	require.NoError(err)
	require.True(has)

	slot, err := pub.PublishAd(ctx, "ABC123", "creator", 10, decimal.NewFromInt(1))
	require.NoError(err)
	require.Equal("ABC123", slot.ID)

	slot, err = adv.PlaceBid(ctx, "ABC123", decimal.NewFromInt(4))
	require.NoError(err)
	require.Equal("adv", slot.HighestBid.Bidder)

	receipt, err := admin.Settle(ctx, "ABC123")
	require.NoError(err)
	require.True(receipt.Total.Equal(decimal.NewFromInt(4)))

	balance, err := admin.Balance(ctx, "creator")
	require.NoError(err)
	require.True(balance.Equal(decimal.RequireFromString("0.4")))

	creator := NewClient(base, "creator")
	wr, err := creator.Withdraw(ctx)
	require.NoError(err)
	require.True(wr.Amount.Equal(decimal.RequireFromString("0.4")))

	// The server rejects unauthorized callers through the same error path.
	_, err = creator.Withdraw(ctx)
	require.Error(err)
	require.Contains(err.Error(), "nothing to withdraw")

	tag, err := pub.AdTag(ctx, "ABC123", "https://cdn.example.com/spot.mp4")
	require.NoError(err)
	require.Contains(string(tag), "<VAST")
}

func TestClientSurfacesServerErrors(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	base := newTestBackend(t)

	stranger := NewClient(base, "stranger")
	err := stranger.GrantRole(ctx, "publisher", "x")
	require.Error(err)
	require.Contains(err.Error(), "missing role admin")

	_, err = stranger.GetAd(ctx, "nope")
	require.Error(err)
}
