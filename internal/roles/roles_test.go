package roles

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner  = common.HexToAddress("0x1000000000000000000000000000000000000001")
	issuer = common.HexToAddress("0x1000000000000000000000000000000000000002")
	alice  = common.HexToAddress("0x1000000000000000000000000000000000000003")
)

func TestAssignRequiresOwner(t *testing.T) {
	table := NewTable(owner)

	_, err := table.Assign(alice, Issuer, alice)
	assert.ErrorIs(t, err, ErrNotOwner)

	changed, err := table.Assign(owner, Issuer, issuer)
	require.NoError(t, err)
	assert.Equal(t, Issuer, changed.Role)
	assert.Equal(t, issuer, changed.Current)
	assert.NoError(t, table.Require(Issuer, issuer))
	assert.ErrorIs(t, table.Require(Issuer, alice), ErrNotIssuer)
}

func TestUnassignedRoleHasNoHolder(t *testing.T) {
	table := NewTable(owner)
	assert.ErrorIs(t, table.Require(Moderator, common.Address{}), ErrNotModerator)
	assert.ErrorIs(t, table.Require(Controller, owner), ErrNotController)
}

func TestOwnershipTransfer(t *testing.T) {
	table := NewTable(owner)
	_, err := table.Assign(owner, Owner, common.Address{})
	assert.ErrorIs(t, err, ErrZeroAddress)

	_, err = table.Assign(owner, Owner, alice)
	require.NoError(t, err)
	assert.ErrorIs(t, table.Require(Owner, owner), ErrNotOwner)
	assert.NoError(t, table.Require(Owner, alice))
}

func TestSnapshotRestore(t *testing.T) {
	table := NewTable(owner)
	_, err := table.Assign(owner, Issuer, issuer)
	require.NoError(t, err)

	restored := NewTable(alice)
	restored.Restore(table.Snapshot())
	assert.Equal(t, owner, restored.Holder(Owner))
	assert.Equal(t, issuer, restored.Holder(Issuer))
}
