// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package roles

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOwnerHoldsAdmin(t *testing.T) {
	require := require.New(t)

	r := NewRegistry("owner")
	require.True(r.Has(RoleAdmin, "owner"))
	require.False(r.Has(RolePublisher, "owner"))
	require.False(r.Has(RoleAdmin, "someone-else"))
}

func TestGrantRevoke(t *testing.T) {
	require := require.New(t)
	r := NewRegistry("owner")

	require.NoError(r.Grant("owner", RolePublisher, "pub"))
	require.True(r.Has(RolePublisher, "pub"))

	require.NoError(r.Revoke("owner", RolePublisher, "pub"))
	require.False(r.Has(RolePublisher, "pub"))
}

func TestGrantRequiresAdmin(t *testing.T) {
	require := require.New(t)
	r := NewRegistry("owner")

	err := r.Grant("intruder", RolePublisher, "pub")
	require.ErrorIs(err, ErrUnauthorized)
	require.Contains(err.Error(), "intruder")
	require.Contains(err.Error(), "admin")
	require.False(r.Has(RolePublisher, "pub"))

	// Publishers cannot administer roles either; only admins can.
	require.NoError(r.Grant("owner", RolePublisher, "pub"))
	err = r.Grant("pub", RoleAdvertiser, "adv")
	require.ErrorIs(err, ErrUnauthorized)
}

func TestRequireNamesRoleAndAccount(t *testing.T) {
	require := require.New(t)
	r := NewRegistry("owner")

	err := r.Require(RoleAdvertiser, "0xdead")
	require.ErrorIs(err, ErrUnauthorized)
	require.Contains(err.Error(), "account 0xdead is missing role advertiser")
}

func TestParse(t *testing.T) {
	require := require.New(t)

	for _, name := range []string{"admin", "publisher", "advertiser"} {
		role, err := Parse(name)
		require.NoError(err)
		require.Equal(Role(name), role)
	}

	_, err := Parse("moderator")
	require.ErrorIs(err, ErrUnknownRole)
}

func TestMembersAndRestore(t *testing.T) {
	require := require.New(t)
	r := NewRegistry("owner")

	require.NoError(r.Grant("owner", RoleAdvertiser, "adv1"))
	require.NoError(r.Grant("owner", RoleAdvertiser, "adv2"))
	require.ElementsMatch([]string{"adv1", "adv2"}, r.Members(RoleAdvertiser))

	fresh := NewRegistry("owner")
	fresh.Restore(RoleAdvertiser, "adv1")
	require.True(fresh.Has(RoleAdvertiser, "adv1"))
}
