// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package settlement

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/adxyz/adpay/pkg/auction"
	"github.com/adxyz/adpay/pkg/log"
)

var ErrNothingToWithdraw = errors.New("nothing to withdraw")

// SettlementReceipt records one applied revenue split
type SettlementReceipt struct {
	AdID            string          `json:"ad_id"`
	Total           decimal.Decimal `json:"total"`
	CreatorAmount   decimal.Decimal `json:"creator_amount"`
	PublisherAmount decimal.Decimal `json:"publisher_amount"`
	PlatformAmount  decimal.Decimal `json:"platform_amount"`
	Treasury        string          `json:"treasury"`
	Time            time.Time       `json:"time"`
}

// WithdrawalReceipt records one completed pull-payment
type WithdrawalReceipt struct {
	ID      string          `json:"id"`
	Account string          `json:"account"`
	Amount  decimal.Decimal `json:"amount"`
	Time    time.Time       `json:"time"`
}

// PayoutLedger holds each account's withdrawable credit. Credit accrues
// from settlement payouts and outbid refunds, and leaves only through a
// full-balance withdrawal.
type PayoutLedger struct {
	mu       sync.RWMutex
	balances map[string]decimal.Decimal
	receipts []*SettlementReceipt
	log      log.Logger
}

// NewPayoutLedger creates an empty payout ledger
func NewPayoutLedger(logger log.Logger) *PayoutLedger {
	return &PayoutLedger{
		balances: make(map[string]decimal.Decimal),
		log:      logger,
	}
}

// Credit adds amount to the account's withdrawable balance and returns the
// new balance
func (l *PayoutLedger) Credit(account string, amount decimal.Decimal) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.credit(account, amount)
}

func (l *PayoutLedger) credit(account string, amount decimal.Decimal) decimal.Decimal {
	balance := l.balances[account].Add(amount)
	l.balances[account] = balance

	l.log.Debug("balance credited",
		log.String("account", account),
		log.Amount("amount", amount),
		log.Amount("balance", balance))

	return balance
}

// ApplySettlement credits the three payout accounts of an auction outcome
// in one atomic step and records a settlement receipt
func (l *PayoutLedger) ApplySettlement(outcome *auction.Outcome, treasury string) *SettlementReceipt {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.credit(outcome.Creator, outcome.CreatorAmount)
	l.credit(outcome.Publisher, outcome.PublisherAmount)
	l.credit(treasury, outcome.PlatformAmount)

	receipt := &SettlementReceipt{
		AdID:            outcome.AdID,
		Total:           outcome.Total,
		CreatorAmount:   outcome.CreatorAmount,
		PublisherAmount: outcome.PublisherAmount,
		PlatformAmount:  outcome.PlatformAmount,
		Treasury:        treasury,
		Time:            time.Now(),
	}
	l.receipts = append(l.receipts, receipt)

	return receipt
}

// Balance returns the account's withdrawable credit, zero for unknown
// accounts
func (l *PayoutLedger) Balance(account string) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.balances[account]
}

// Withdraw zeroes the account's balance and returns a receipt for the full
// amount. The balance is reset before the receipt is handed out, so a
// reentrant second withdrawal can never drain more than was recorded.
func (l *PayoutLedger) Withdraw(account string) (*WithdrawalReceipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	balance := l.balances[account]
	if balance.IsZero() {
		return nil, ErrNothingToWithdraw
	}

	l.balances[account] = decimal.Zero

	receipt := &WithdrawalReceipt{
		ID:      uuid.NewString(),
		Account: account,
		Amount:  balance,
		Time:    time.Now(),
	}

	l.log.Info("balance withdrawn",
		log.String("account", account),
		log.Amount("amount", balance))

	return receipt, nil
}

// Receipts returns the settlement receipts recorded so far
func (l *PayoutLedger) Receipts() []*SettlementReceipt {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*SettlementReceipt, len(l.receipts))
	copy(out, l.receipts)
	return out
}

// Balances returns a snapshot of all nonzero balances, for persistence
func (l *PayoutLedger) Balances() map[string]decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]decimal.Decimal, len(l.balances))
	for account, balance := range l.balances {
		if !balance.IsZero() {
			out[account] = balance
		}
	}
	return out
}

// Restore sets a persisted balance without crediting. Used only when
// reloading ledger state from storage.
func (l *PayoutLedger) Restore(account string, balance decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.balances[account] = balance
}
