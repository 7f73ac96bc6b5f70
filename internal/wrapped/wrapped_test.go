package wrapped

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rebasefi/stbt-ledger/internal/events"
	"github.com/rebasefi/stbt-ledger/internal/ledger"
	"github.com/rebasefi/stbt-ledger/internal/permission"
	"github.com/rebasefi/stbt-ledger/internal/roles"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner     = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	issuer    = common.HexToAddress("0x0000000000000000000000000000000000000a02")
	moderator = common.HexToAddress("0x0000000000000000000000000000000000000a04")
	adapter   = common.HexToAddress("0x0000000000000000000000000000000000000c01")
	alice     = common.HexToAddress("0x0000000000000000000000000000000000000b01")
	bob       = common.HexToAddress("0x0000000000000000000000000000000000000b02")
)

func u(n uint64) *uint256.Int { return uint256.NewInt(n) }

type fixture struct {
	l   *ledger.Ledger
	w   *Token
	rec *events.Recorder
	now time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	table := roles.NewTable(owner)
	rec := &events.Recorder{}
	perms := permission.NewRegistry(table, rec)
	f := &fixture{rec: rec, now: time.Unix(1_700_000_000, 0)}
	f.l = ledger.New(table, perms,
		ledger.WithSink(rec),
		ledger.WithClock(func() time.Time { return f.now }),
		ledger.WithDistributionLimits(0, u(1_000_000_000_000_000_000)),
	)
	require.NoError(t, f.l.SetIssuer(owner, issuer))
	require.NoError(t, f.l.SetModerator(owner, moderator))
	for _, a := range []common.Address{alice, bob, adapter} {
		require.NoError(t, perms.SetPermission(moderator, a, permission.Full))
	}
	f.w = New(adapter, "Wrapped STBT", "wSTBT", f.l, rec, nil)
	return f
}

func TestWrapRequiresAllowance(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.l.Issue(issuer, alice, u(1_000_000), nil))

	_, err := f.w.Wrap(alice, u(0))
	assert.ErrorIs(t, err, ErrZeroAmount)
	_, err = f.w.Wrap(alice, u(1000))
	assert.ErrorIs(t, err, ledger.ErrTransferExceedsAllw)
	assert.True(t, f.w.TotalSupply().IsZero())
}

func TestWrapUnwrapAtParity(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.l.Issue(issuer, alice, u(1_000_000), nil))
	require.NoError(t, f.l.Approve(alice, adapter, u(1_000_000)))

	f.rec.Reset()
	units, err := f.w.Wrap(alice, u(1_000_000))
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), units.Uint64())
	assert.Equal(t, uint64(1_000_000), f.w.BalanceOf(alice).Uint64())
	assert.Equal(t, uint64(1_000_000), f.l.SharesOf(adapter).Uint64())
	assert.Equal(t, Wrapped{Account: alice, Amount: u(1_000_000), Units: u(1_000_000)}, f.rec.Named("Wrapped")[0])

	amount, err := f.w.Unwrap(alice, u(400_000))
	require.NoError(t, err)
	assert.Equal(t, uint64(400_000), amount.Uint64())
	assert.Equal(t, uint64(600_000), f.w.BalanceOf(alice).Uint64())
	assert.Equal(t, uint64(600_000), f.w.TotalSupply().Uint64())

	_, err = f.w.Unwrap(alice, u(600_001))
	assert.ErrorIs(t, err, ErrUnwrapExceedsBalance)
}

func TestBalancesDoNotRebase(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.l.Issue(issuer, alice, u(10000), nil))
	require.NoError(t, f.l.Issue(issuer, bob, u(20000), nil))
	require.NoError(t, f.l.Approve(alice, adapter, u(10000)))
	_, err := f.w.Wrap(alice, u(10000))
	require.NoError(t, err)

	require.NoError(t, f.l.DistributeInterests(issuer, big.NewInt(2100), 0, 0))

	assert.Equal(t, uint64(10000), f.w.BalanceOf(alice).Uint64())
	worth, err := f.w.AmountForUnits(u(10000))
	require.NoError(t, err)
	assert.Equal(t, uint64(10700), worth.Uint64())

	perUnit, err := f.w.AmountPerUnit()
	require.NoError(t, err)
	assert.Equal(t, "1070000000000000000", perUnit.Dec())

	amount, err := f.w.Unwrap(alice, u(10000))
	require.NoError(t, err)
	assert.Equal(t, uint64(10700), amount.Uint64())
	bal, err := f.l.BalanceOf(alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(10700), bal.Uint64())
}

func TestWrapRoundsDown(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.l.Issue(issuer, alice, u(10000), nil))
	require.NoError(t, f.l.Issue(issuer, bob, u(20000), nil))
	require.NoError(t, f.l.DistributeInterests(issuer, big.NewInt(2100), 0, 0))
	require.NoError(t, f.l.Approve(alice, adapter, u(10700)))

	// 1000 * 30000 / 32100 = 934.57, floored
	units, err := f.w.Wrap(alice, u(1000))
	require.NoError(t, err)
	assert.Equal(t, uint64(934), units.Uint64())

	preview, err := f.w.UnitsForAmount(u(1000))
	require.NoError(t, err)
	assert.Equal(t, units, preview)

	// 934 * 32100 / 30000 = 999.38, floored: the round trip loses one unit
	amount, err := f.w.Unwrap(alice, units)
	require.NoError(t, err)
	assert.Equal(t, uint64(999), amount.Uint64())
}

func TestTransfersArePlain(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.l.Issue(issuer, alice, u(5000), nil))
	require.NoError(t, f.l.Approve(alice, adapter, u(5000)))
	_, err := f.w.Wrap(alice, u(5000))
	require.NoError(t, err)

	// no ledger permission for the recipient is needed to hold wrapped units
	carol := common.HexToAddress("0x0000000000000000000000000000000000000b03")
	require.NoError(t, f.w.Transfer(alice, carol, u(100)))
	assert.Equal(t, uint64(100), f.w.BalanceOf(carol).Uint64())

	assert.ErrorIs(t, f.w.Transfer(alice, carol, u(5000)), ErrExceedsBalance)
	assert.ErrorIs(t, f.w.Transfer(alice, common.Address{}, u(1)), ErrTransferToZero)

	assert.ErrorIs(t, f.w.TransferFrom(bob, alice, bob, u(10)), ErrExceedsAllowance)
	require.NoError(t, f.w.Approve(alice, bob, u(50)))
	require.NoError(t, f.w.TransferFrom(bob, alice, bob, u(10)))
	assert.Equal(t, uint64(40), f.w.Allowance(alice, bob).Uint64())
	assert.Equal(t, uint64(10), f.w.BalanceOf(bob).Uint64())
	assert.Equal(t, uint64(5000), f.w.TotalSupply().Uint64())
}

func TestSnapshotRestore(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.l.Issue(issuer, alice, u(5000), nil))
	require.NoError(t, f.l.Approve(alice, adapter, u(5000)))
	_, err := f.w.Wrap(alice, u(5000))
	require.NoError(t, err)
	require.NoError(t, f.w.Approve(alice, bob, u(7)))

	other := New(adapter, "Wrapped STBT", "wSTBT", f.l, nil, nil)
	require.NoError(t, other.Restore(f.w.Snapshot()))
	assert.Equal(t, f.w.Snapshot(), other.Snapshot())
	assert.Equal(t, uint64(7), other.Allowance(alice, bob).Uint64())
}
