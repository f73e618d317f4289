// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package roles

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrUnknownRole  = errors.New("unknown role")
)

// Role identifies one of the three access tiers of the ledger
type Role string

const (
	RoleAdmin      Role = "admin"
	RolePublisher  Role = "publisher"
	RoleAdvertiser Role = "advertiser"
)

// Parse maps a role name onto a Role
func Parse(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RolePublisher, RoleAdvertiser:
		return Role(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

// Registry holds role membership. The admin role administers all three
// roles; only admins may grant or revoke membership.
type Registry struct {
	mu      sync.RWMutex
	members map[Role]map[string]struct{}
}

// NewRegistry creates a registry with owner holding the admin role
func NewRegistry(owner string) *Registry {
	r := &Registry{
		members: map[Role]map[string]struct{}{
			RoleAdmin:      {},
			RolePublisher:  {},
			RoleAdvertiser: {},
		},
	}
	r.members[RoleAdmin][owner] = struct{}{}
	return r
}

// Grant adds account to role. Caller must hold the admin role.
func (r *Registry) Grant(caller string, role Role, account string) error {
	if err := r.Require(RoleAdmin, caller); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.members[role]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	set[account] = struct{}{}
	return nil
}

// Revoke removes account from role. Caller must hold the admin role.
func (r *Registry) Revoke(caller string, role Role, account string) error {
	if err := r.Require(RoleAdmin, caller); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.members[role]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	delete(set, account)
	return nil
}

// Has reports whether account holds role
func (r *Registry) Has(role Role, account string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.members[role][account]
	return ok
}

// Require returns an unauthorized error naming the missing role and the
// offending account when account does not hold role
func (r *Registry) Require(role Role, account string) error {
	if !r.Has(role, account) {
		return fmt.Errorf("%w: account %s is missing role %s", ErrUnauthorized, account, role)
	}
	return nil
}

// Members returns the accounts holding role
func (r *Registry) Members(role Role) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	accounts := make([]string, 0, len(r.members[role]))
	for account := range r.members[role] {
		accounts = append(accounts, account)
	}
	return accounts
}

// Restore re-adds a persisted membership without an admin check. Used only
// when reloading ledger state from storage.
func (r *Registry) Restore(role Role, account string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if set, ok := r.members[role]; ok {
		set[account] = struct{}{}
	}
}
