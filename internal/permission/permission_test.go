package permission

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rebasefi/stbt-ledger/internal/events"
	"github.com/rebasefi/stbt-ledger/internal/roles"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner     = common.HexToAddress("0xa000000000000000000000000000000000000001")
	moderator = common.HexToAddress("0xa000000000000000000000000000000000000002")
	bridge    = common.HexToAddress("0xa000000000000000000000000000000000000003")
	alice     = common.HexToAddress("0xa000000000000000000000000000000000000004")
	bob       = common.HexToAddress("0xa000000000000000000000000000000000000005")
)

const now = uint64(1_700_000_000)

func newRegistry(t *testing.T) (*Registry, *events.Recorder) {
	t.Helper()
	table := roles.NewTable(owner)
	_, err := table.Assign(owner, roles.Moderator, moderator)
	require.NoError(t, err)
	_, err = table.Assign(owner, roles.Bridge, bridge)
	require.NoError(t, err)
	rec := &events.Recorder{}
	return NewRegistry(table, rec), rec
}

func TestSetPermissionRequiresModerator(t *testing.T) {
	reg, rec := newRegistry(t)

	err := reg.SetPermission(alice, alice, Full)
	assert.ErrorIs(t, err, roles.ErrNotModerator)
	assert.Empty(t, rec.Events())

	require.NoError(t, reg.SetPermission(moderator, alice, Permission{true, false, 12345}))
	assert.Equal(t, Permission{true, false, 12345}, reg.Permission(alice))
	require.Len(t, rec.Named("PermissionSet"), 1)
}

func TestActiveWindow(t *testing.T) {
	tests := []struct {
		name        string
		perm        Permission
		sendAllowed bool
		recvAllowed bool
	}{
		{"default", Permission{}, false, false},
		{"never expires", Permission{true, true, 0}, true, true},
		{"expired", Permission{true, true, 12345}, false, false},
		{"expires exactly now", Permission{true, true, now}, false, false},
		{"future expiry", Permission{true, false, now + 100}, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, _ := newRegistry(t)
			require.NoError(t, reg.SetPermission(moderator, alice, tt.perm))
			assert.Equal(t, tt.sendAllowed, reg.IsSendAllowed(alice, now))
			assert.Equal(t, tt.recvAllowed, reg.IsReceiveAllowed(alice, now))
		})
	}
}

func TestRequireReasons(t *testing.T) {
	reg, _ := newRegistry(t)

	assert.ErrorIs(t, reg.RequireSend(alice, now), ErrNoSendPermission)
	assert.ErrorIs(t, reg.RequireReceive(alice, now), ErrNoReceivePermission)

	require.NoError(t, reg.SetPermission(moderator, alice, Permission{true, true, 12345}))
	assert.ErrorIs(t, reg.RequireSend(alice, now), ErrSendPermissionExpired)
	assert.ErrorIs(t, reg.RequireReceive(alice, now), ErrReceivePermissionExpired)

	require.NoError(t, reg.SetPermission(moderator, alice, Permission{false, true, 12345}))
	assert.ErrorIs(t, reg.RequireSend(alice, now), ErrNoSendPermission)
}

func TestCheckTransferOrdering(t *testing.T) {
	reg, _ := newRegistry(t)

	assert.Equal(t, Deny(PermissionRequested, CannotSend), reg.CheckTransfer(alice, bob, now))

	require.NoError(t, reg.SetPermission(moderator, alice, Permission{true, false, now + 100}))
	assert.Equal(t, Deny(PermissionRequested, CannotReceive), reg.CheckTransfer(alice, bob, now))

	require.NoError(t, reg.SetPermission(moderator, bob, Permission{false, true, 0}))
	res := reg.CheckTransfer(alice, bob, now)
	assert.True(t, res.OK)
	assert.Equal(t, Success, res.Status)
	assert.Equal(t, common.Hash{}, res.Reason.Bytes32())
}

func TestGrant(t *testing.T) {
	reg, _ := newRegistry(t)

	assert.ErrorIs(t, reg.Grant(alice, bob), roles.ErrNotModerator)
	require.NoError(t, reg.Grant(bridge, bob))
	p, ok := reg.Lookup(bob)
	assert.True(t, ok)
	assert.Equal(t, Full, p)
}

func TestReasonBytes32(t *testing.T) {
	h := CannotSend.Bytes32()
	assert.Equal(t, byte('C'), h[0])
	assert.Equal(t, byte(0), h[31])
}
