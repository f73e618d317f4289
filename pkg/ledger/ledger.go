// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ledger ties the role registry, the auction book, and the payout
// ledger into the adpay operation surface. Every mutating operation runs
// under one service mutex, so callers observe a strict total order.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/adxyz/adpay/pkg/auction"
	"github.com/adxyz/adpay/pkg/events"
	"github.com/adxyz/adpay/pkg/log"
	"github.com/adxyz/adpay/pkg/metric"
	"github.com/adxyz/adpay/pkg/roles"
	"github.com/adxyz/adpay/pkg/settlement"
	"github.com/adxyz/adpay/pkg/storage"
)

const (
	keyPrefixAd      = "ad:"
	keyPrefixBalance = "bal:"
	keyPrefixRole    = "role:"
)

// Params configures a ledger service. Owner receives the admin role;
// Treasury receives the platform fee at settlement. Store, Logger, Metrics
// and Bus default to in-memory / no-op instances when nil.
type Params struct {
	Owner    string
	Treasury string
	Store    storage.Backend
	Logger   log.Logger
	Metrics  *metric.Metrics
	Bus      *events.Bus
}

// Service is the adpay auction-and-escrow ledger
type Service struct {
	mu sync.Mutex

	roles    *roles.Registry
	book     *auction.Book
	payouts  *settlement.PayoutLedger
	store    storage.Backend
	bus      *events.Bus
	metrics  *metric.Metrics
	treasury string
	log      log.Logger
}

// New creates a ledger service, granting admin to the owner and reloading
// any persisted state from the store
func New(ctx context.Context, p Params) (*Service, error) {
	if p.Owner == "" {
		return nil, errors.New("owner account required")
	}
	if p.Treasury == "" {
		return nil, errors.New("treasury account required")
	}
	if p.Logger == nil {
		p.Logger = log.NoOp()
	}
	if p.Store == nil {
		p.Store = storage.NewMemory()
	}
	if p.Metrics == nil {
		p.Metrics = metric.New()
	}
	if p.Bus == nil {
		p.Bus = events.NewBus(p.Logger)
	}

	s := &Service{
		roles:    roles.NewRegistry(p.Owner),
		book:     auction.NewBook(p.Logger),
		payouts:  settlement.NewPayoutLedger(p.Logger),
		store:    p.Store,
		bus:      p.Bus,
		metrics:  p.Metrics,
		treasury: p.Treasury,
		log:      p.Logger,
	}

	if err := s.load(ctx); err != nil {
		return nil, fmt.Errorf("load ledger state: %w", err)
	}
	if err := s.store.Put(ctx, roleKey(roles.RoleAdmin, p.Owner), []byte("1")); err != nil {
		return nil, fmt.Errorf("persist owner role: %w", err)
	}

	s.log.Info("ledger initialized",
		log.String("owner", p.Owner),
		log.String("treasury", p.Treasury))

	return s, nil
}

// Bus returns the ledger's event bus
func (s *Service) Bus() *events.Bus {
	return s.bus
}

// Metrics returns the ledger's metrics
func (s *Service) Metrics() *metric.Metrics {
	return s.metrics
}

// GrantRole adds account to role. Caller must hold the admin role.
func (s *Service) GrantRole(ctx context.Context, caller string, role roles.Role, account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.roles.Grant(caller, role, account); err != nil {
		s.countError("grant_role", err)
		return err
	}
	return s.store.Put(ctx, roleKey(role, account), []byte("1"))
}

// RevokeRole removes account from role. Caller must hold the admin role.
func (s *Service) RevokeRole(ctx context.Context, caller string, role roles.Role, account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.roles.Revoke(caller, role, account); err != nil {
		s.countError("revoke_role", err)
		return err
	}
	return s.store.Delete(ctx, roleKey(role, account))
}

// HasRole reports whether account holds role
func (s *Service) HasRole(role roles.Role, account string) bool {
	return s.roles.Has(role, account)
}

// PublishAd creates a new ad slot. Caller must hold the publisher role.
func (s *Service) PublishAd(ctx context.Context, caller, adID, creator string, creatorShare uint32, minPrice decimal.Decimal) (*auction.AdSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.roles.Require(roles.RolePublisher, caller); err != nil {
		s.countError("publish_ad", err)
		return nil, err
	}

	slot, err := s.book.Publish(adID, caller, creator, creatorShare, minPrice)
	if err != nil {
		s.countError("publish_ad", err)
		return nil, err
	}

	if err := s.persistSlot(ctx, slot); err != nil {
		return nil, err
	}

	s.metrics.AdsPublished.Inc()

	ev := events.New(events.TypeAdPublished)
	ev.AdID = adID
	s.bus.Publish(ev)

	return slot, nil
}

// PlaceBid escrows a payment as the new highest bid on a slot. Caller must
// hold the advertiser role. When a standing bid is displaced, its escrow is
// credited back to the outbid advertiser as withdrawable balance.
func (s *Service) PlaceBid(ctx context.Context, caller, adID string, payment decimal.Decimal) (*auction.AdSlot, error) {
	start := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.roles.Require(roles.RoleAdvertiser, caller); err != nil {
		s.countError("place_bid", err)
		return nil, err
	}

	displaced, err := s.book.PlaceBid(adID, caller, payment)
	if err != nil {
		s.countError("place_bid", err)
		return nil, err
	}

	if displaced != nil {
		s.payouts.Credit(displaced.Bidder, displaced.Amount)
		if err := s.persistBalance(ctx, displaced.Bidder); err != nil {
			return nil, err
		}
		s.metrics.BidsRefunded.Inc()

		refund := events.New(events.TypeBidRefunded)
		refund.AdID = adID
		refund.Account = displaced.Bidder
		refund.SetAmount(displaced.Amount)
		s.bus.Publish(refund)
	}

	slot, err := s.book.Get(adID)
	if err != nil {
		return nil, err
	}
	if err := s.persistSlot(ctx, slot); err != nil {
		return nil, err
	}

	s.metrics.BidsPlaced.Inc()
	s.metrics.BidLatency.Observe(time.Since(start).Seconds())

	ev := events.New(events.TypeAdBid)
	ev.AdID = adID
	ev.Account = caller
	ev.SetAmount(payment)
	s.bus.Publish(ev)

	return slot, nil
}

// Settle closes the auction on a slot and credits the creator, publisher
// and platform treasury. Caller must hold the admin role.
func (s *Service) Settle(ctx context.Context, caller, adID string) (*settlement.SettlementReceipt, error) {
	start := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.roles.Require(roles.RoleAdmin, caller); err != nil {
		s.countError("settle", err)
		return nil, err
	}

	outcome, err := s.book.Settle(adID)
	if err != nil {
		s.countError("settle", err)
		return nil, err
	}

	receipt := s.payouts.ApplySettlement(outcome, s.treasury)

	slot, err := s.book.Get(adID)
	if err != nil {
		return nil, err
	}
	if err := s.persistSlot(ctx, slot); err != nil {
		return nil, err
	}
	for _, account := range []string{outcome.Creator, outcome.Publisher, s.treasury} {
		if err := s.persistBalance(ctx, account); err != nil {
			return nil, err
		}
	}

	s.metrics.AdsSettled.Inc()
	s.metrics.SettledVolume.Add(outcome.Total.InexactFloat64())
	s.metrics.SettleDuration.Observe(time.Since(start).Seconds())

	ev := events.New(events.TypeAdSettled)
	ev.AdID = adID
	ev.Split = &events.Split{
		Creator:         outcome.Creator,
		Publisher:       outcome.Publisher,
		Total:           outcome.Total,
		CreatorAmount:   outcome.CreatorAmount,
		PublisherAmount: outcome.PublisherAmount,
		PlatformAmount:  outcome.PlatformAmount,
	}
	s.bus.Publish(ev)

	return receipt, nil
}

// Withdraw pays out the caller's full balance and zeroes it
func (s *Service) Withdraw(ctx context.Context, caller string) (*settlement.WithdrawalReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	receipt, err := s.payouts.Withdraw(caller)
	if err != nil {
		s.countError("withdraw", err)
		return nil, err
	}

	if err := s.store.Delete(ctx, keyPrefixBalance+caller); err != nil {
		return nil, err
	}

	s.metrics.Withdrawals.Inc()

	ev := events.New(events.TypeWithdrawal)
	ev.Account = caller
	ev.SetAmount(receipt.Amount)
	s.bus.Publish(ev)

	return receipt, nil
}

// Balance returns the account's withdrawable credit
func (s *Service) Balance(account string) decimal.Decimal {
	return s.payouts.Balance(account)
}

// GetAd returns the slot record for adID
func (s *Service) GetAd(adID string) (*auction.AdSlot, error) {
	return s.book.Get(adID)
}

// SettlementReceipts returns the settlements applied so far
func (s *Service) SettlementReceipts() []*settlement.SettlementReceipt {
	return s.payouts.Receipts()
}

func (s *Service) persistSlot(ctx context.Context, slot *auction.AdSlot) error {
	data, err := json.Marshal(slot)
	if err != nil {
		return err
	}
	return s.store.Put(ctx, keyPrefixAd+slot.ID, data)
}

func (s *Service) persistBalance(ctx context.Context, account string) error {
	balance := s.payouts.Balance(account)
	return s.store.Put(ctx, keyPrefixBalance+account, []byte(balance.String()))
}

func (s *Service) load(ctx context.Context) error {
	slots, err := s.store.List(ctx, keyPrefixAd)
	if err != nil {
		return err
	}
	for key, data := range slots {
		var slot auction.AdSlot
		if err := json.Unmarshal(data, &slot); err != nil {
			return fmt.Errorf("decode slot %s: %w", key, err)
		}
		s.book.Restore(&slot)
	}

	balances, err := s.store.List(ctx, keyPrefixBalance)
	if err != nil {
		return err
	}
	for key, data := range balances {
		balance, err := decimal.NewFromString(string(data))
		if err != nil {
			return fmt.Errorf("decode balance %s: %w", key, err)
		}
		s.payouts.Restore(strings.TrimPrefix(key, keyPrefixBalance), balance)
	}

	grants, err := s.store.List(ctx, keyPrefixRole)
	if err != nil {
		return err
	}
	for key := range grants {
		parts := strings.SplitN(strings.TrimPrefix(key, keyPrefixRole), ":", 2)
		if len(parts) != 2 {
			continue
		}
		role, err := roles.Parse(parts[0])
		if err != nil {
			continue
		}
		s.roles.Restore(role, parts[1])
	}

	if len(slots) > 0 || len(balances) > 0 || len(grants) > 0 {
		s.log.Info("ledger state restored",
			log.Int("slots", len(slots)),
			log.Int("balances", len(balances)),
			log.Int("role_grants", len(grants)))
	}
	return nil
}

func (s *Service) countError(op string, err error) {
	s.metrics.OperationErrors.WithLabelValues(op, reason(err)).Inc()
}

func reason(err error) string {
	switch {
	case errors.Is(err, roles.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, auction.ErrDuplicateAd):
		return "duplicate_ad"
	case errors.Is(err, auction.ErrAdNotFound):
		return "not_found"
	case errors.Is(err, auction.ErrAlreadySettled):
		return "already_settled"
	case errors.Is(err, auction.ErrNoBids):
		return "no_bids"
	case errors.Is(err, auction.ErrStaleBid):
		return "stale_bid"
	case errors.Is(err, settlement.ErrNothingToWithdraw):
		return "nothing_to_withdraw"
	default:
		return "other"
	}
}

func roleKey(role roles.Role, account string) string {
	return keyPrefixRole + string(role) + ":" + account
}
