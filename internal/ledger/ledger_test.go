package ledger

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rebasefi/stbt-ledger/internal/calc"
	"github.com/rebasefi/stbt-ledger/internal/events"
	"github.com/rebasefi/stbt-ledger/internal/permission"
	"github.com/rebasefi/stbt-ledger/internal/roles"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner      = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	issuer     = common.HexToAddress("0x0000000000000000000000000000000000000a02")
	controller = common.HexToAddress("0x0000000000000000000000000000000000000a03")
	moderator  = common.HexToAddress("0x0000000000000000000000000000000000000a04")
	alice      = common.HexToAddress("0x0000000000000000000000000000000000000b01")
	bob        = common.HexToAddress("0x0000000000000000000000000000000000000b02")
	cindy      = common.HexToAddress("0x0000000000000000000000000000000000000b03")
	zeroAddr   = common.Address{}
)

func u(n uint64) *uint256.Int { return uint256.NewInt(n) }

type fixture struct {
	l   *Ledger
	rec *events.Recorder
	now time.Time
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	table := roles.NewTable(owner)
	rec := &events.Recorder{}
	reg := permission.NewRegistry(table, rec)
	f := &fixture{rec: rec, now: time.Unix(1_700_000_000, 0)}
	base := []Option{
		WithSink(rec),
		WithClock(func() time.Time { return f.now }),
	}
	f.l = New(table, reg, append(base, opts...)...)
	require.NoError(t, f.l.SetIssuer(owner, issuer))
	require.NoError(t, f.l.SetController(owner, controller))
	require.NoError(t, f.l.SetModerator(owner, moderator))
	rec.Reset()
	return f
}

func (f *fixture) permit(t *testing.T, who common.Address, send, receive bool, expiry uint64) {
	t.Helper()
	require.NoError(t, f.l.Permissions().SetPermission(moderator, who, permission.Permission{
		SendAllowed:    send,
		ReceiveAllowed: receive,
		Expiry:         expiry,
	}))
}

func (f *fixture) issue(t *testing.T, to common.Address, amount uint64) {
	t.Helper()
	require.NoError(t, f.l.Issue(issuer, to, u(amount), nil))
}

func (f *fixture) balance(t *testing.T, who common.Address) uint64 {
	t.Helper()
	b, err := f.l.BalanceOf(who)
	require.NoError(t, err)
	return b.Uint64()
}

func (f *fixture) unix() uint64 { return uint64(f.now.Unix()) }

func TestMetadata(t *testing.T) {
	f := newFixture(t)
	meta := f.l.Metadata()
	assert.Equal(t, "Short-term Treasury Bond Token", meta.Name)
	assert.Equal(t, "STBT", meta.Symbol)
	assert.Equal(t, uint8(18), meta.Decimals)
	assert.True(t, f.l.IsIssuable())
	assert.True(t, f.l.IsControllable())
}

func TestOwnerOnlyOps(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.l.SetIssuer(alice, alice), roles.ErrNotOwner)
	assert.ErrorIs(t, f.l.SetController(alice, alice), roles.ErrNotOwner)
	assert.ErrorIs(t, f.l.SetModerator(alice, alice), roles.ErrNotOwner)
	assert.ErrorIs(t, f.l.SetMinDistributeInterval(alice, 1), roles.ErrNotOwner)
	assert.ErrorIs(t, f.l.SetMaxDistributeRatio(alice, u(1)), roles.ErrNotOwner)
	assert.ErrorIs(t, f.l.TransferOwnership(alice, alice), roles.ErrNotOwner)
}

func TestTransferPermissionChecks(t *testing.T) {
	f := newFixture(t)
	f.permit(t, alice, false, true, 0)
	f.issue(t, alice, 10000)

	f.permit(t, alice, false, false, 0)
	assert.ErrorIs(t, f.l.Transfer(alice, bob, u(100)), permission.ErrNoSendPermission)

	f.permit(t, alice, true, false, 12345)
	assert.ErrorIs(t, f.l.Transfer(alice, bob, u(100)), permission.ErrSendPermissionExpired)

	f.permit(t, alice, true, false, f.unix()+100)
	assert.ErrorIs(t, f.l.Transfer(alice, bob, u(100)), permission.ErrNoReceivePermission)

	f.permit(t, bob, false, false, 0)
	assert.ErrorIs(t, f.l.Transfer(alice, bob, u(100)), permission.ErrNoReceivePermission)

	f.permit(t, bob, false, true, 12345)
	assert.ErrorIs(t, f.l.Transfer(alice, bob, u(100)), permission.ErrReceivePermissionExpired)

	f.permit(t, bob, false, true, 0)
	assert.ErrorIs(t, f.l.Transfer(alice, bob, u(10001)), ErrTransferExceedsBal)
	assert.Equal(t, uint64(10000), f.balance(t, alice))
}

func TestTransferEventsAndBalances(t *testing.T) {
	f := newFixture(t)
	f.permit(t, alice, true, true, 0)
	f.permit(t, bob, true, true, 0)
	f.issue(t, alice, 10000)
	f.rec.Reset()

	require.NoError(t, f.l.TransferWithData(alice, bob, u(4000), []byte{0x12, 0x34}))

	evts := f.rec.Events()
	require.Len(t, evts, 2)
	assert.Equal(t, Transfer{From: alice, To: bob, Amount: u(4000)}, evts[0])
	assert.Equal(t, TransferShares{From: alice, To: bob, Shares: u(4000)}, evts[1])
	assert.Equal(t, uint64(6000), f.balance(t, alice))
	assert.Equal(t, uint64(4000), f.balance(t, bob))
	assert.Equal(t, uint64(10000), f.l.TotalSupply().Uint64())
}

func TestTransferZeroAddresses(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.l.Transfer(alice, zeroAddr, u(1)), ErrTransferToZero)
	assert.ErrorIs(t, f.l.TransferFrom(alice, zeroAddr, bob, u(0)), ErrTransferFromZero)
}

func TestApproveAndAllowances(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.l.Approve(bob, alice, u(2000)))
	assert.Equal(t, Approval{Owner: bob, Spender: alice, Amount: u(2000)}, f.rec.Events()[0])
	require.NoError(t, f.l.Approve(bob, alice, u(5000)))
	assert.Equal(t, uint64(5000), f.l.Allowance(bob, alice).Uint64())

	require.NoError(t, f.l.Approve(bob, alice, u(1000)))
	require.NoError(t, f.l.IncreaseAllowance(bob, alice, u(2000)))
	assert.Equal(t, uint64(3000), f.l.Allowance(bob, alice).Uint64())
	require.NoError(t, f.l.DecreaseAllowance(bob, alice, u(500)))
	require.NoError(t, f.l.DecreaseAllowance(bob, alice, u(600)))
	assert.Equal(t, uint64(1900), f.l.Allowance(bob, alice).Uint64())
	assert.ErrorIs(t, f.l.DecreaseAllowance(bob, alice, u(2000)), ErrAllowanceBelowZero)

	assert.ErrorIs(t, f.l.Approve(bob, zeroAddr, u(1)), ErrApproveToZero)
}

func TestTransferFrom(t *testing.T) {
	f := newFixture(t)
	f.permit(t, alice, true, true, 0)
	f.issue(t, alice, 10000)

	assert.ErrorIs(t, f.l.TransferFrom(cindy, alice, bob, u(800)), ErrTransferExceedsAllw)
	require.NoError(t, f.l.Approve(alice, cindy, u(2000)))
	assert.ErrorIs(t, f.l.TransferFrom(cindy, alice, bob, u(2001)), ErrTransferExceedsAllw)

	// allowance is fine, bob cannot receive yet
	assert.ErrorIs(t, f.l.TransferFrom(cindy, alice, bob, u(800)), permission.ErrNoReceivePermission)

	f.permit(t, bob, true, true, 0)
	f.rec.Reset()
	require.NoError(t, f.l.TransferFromWithData(cindy, alice, bob, u(800), []byte{0x12, 0x34}))

	evts := f.rec.Events()
	require.Len(t, evts, 3)
	assert.Equal(t, Transfer{From: alice, To: bob, Amount: u(800)}, evts[0])
	assert.Equal(t, TransferShares{From: alice, To: bob, Shares: u(800)}, evts[1])
	assert.Equal(t, Approval{Owner: alice, Spender: cindy, Amount: u(1200)}, evts[2])
	assert.Equal(t, uint64(9200), f.balance(t, alice))
	assert.Equal(t, uint64(800), f.balance(t, bob))
	assert.Equal(t, uint64(1200), f.l.Allowance(alice, cindy).Uint64())
}

func TestIssue(t *testing.T) {
	f := newFixture(t)

	assert.ErrorIs(t, f.l.Issue(alice, alice, u(1), nil), roles.ErrNotIssuer)
	assert.ErrorIs(t, f.l.Issue(issuer, zeroAddr, u(1), nil), ErrMintToZero)
	assert.ErrorIs(t, f.l.Issue(issuer, alice, u(1), nil), permission.ErrNoReceivePermission)

	// zero-value issuance is a no-op for any recipient
	require.NoError(t, f.l.Issue(issuer, zeroAddr, u(0), nil))
	require.NoError(t, f.l.Issue(issuer, alice, u(0), nil))
	assert.Empty(t, f.rec.Events())

	f.permit(t, alice, false, true, 0)
	f.permit(t, bob, false, true, 0)
	f.rec.Reset()
	require.NoError(t, f.l.Issue(issuer, alice, u(123), []byte{0x0a, 0x11, 0xce}))
	issued := f.rec.Named("Issued")
	require.Len(t, issued, 1)
	assert.Equal(t, Issued{Operator: issuer, To: alice, Amount: u(123), Data: []byte{0x0a, 0x11, 0xce}}, issued[0])

	f.issue(t, bob, 456789)
	assert.Equal(t, uint64(123+456789), f.l.TotalSupply().Uint64())
	assert.Equal(t, uint64(123+456789), f.l.TotalShares().Uint64())
	assert.Equal(t, uint64(456789), f.balance(t, bob))
}

func TestRedeemByHolder(t *testing.T) {
	f := newFixture(t, WithRedemptionPolicy(RedeemByHolder))
	f.permit(t, alice, false, true, 0)
	f.issue(t, alice, 10000)

	f.permit(t, alice, false, false, 0)
	require.NoError(t, f.l.Redeem(alice, u(0), nil))
	assert.ErrorIs(t, f.l.Redeem(alice, u(123), nil), permission.ErrNoSendPermission)

	f.permit(t, alice, true, true, 0)
	assert.ErrorIs(t, f.l.Redeem(alice, u(10001), nil), ErrBurnExceedsBalance)

	f.rec.Reset()
	require.NoError(t, f.l.Redeem(alice, u(2000), []byte{0x12, 0x34}))
	assert.Equal(t, SharesBurnt{Account: alice, PreRebaseAmount: u(2000), PostRebaseAmount: u(2500), Shares: u(2000)},
		f.rec.Named("SharesBurnt")[0])
	assert.Equal(t, Redeemed{Operator: alice, From: alice, Amount: u(2000), Data: []byte{0x12, 0x34}},
		f.rec.Named("Redeemed")[0])
	assert.Equal(t, uint64(8000), f.l.TotalSupply().Uint64())
	assert.Equal(t, uint64(8000), f.balance(t, alice))
	assert.Equal(t, uint64(8000), f.l.SharesOf(alice).Uint64())
}

func TestRedeemFromByHolder(t *testing.T) {
	f := newFixture(t, WithRedemptionPolicy(RedeemByHolder))
	f.permit(t, bob, false, true, 0)
	f.issue(t, bob, 10000)
	f.permit(t, bob, false, false, 0)

	assert.ErrorIs(t, f.l.RedeemFrom(alice, bob, u(123), nil), ErrRedeemExceedsAllw)
	require.NoError(t, f.l.Approve(bob, alice, u(10000)))
	assert.ErrorIs(t, f.l.RedeemFrom(alice, bob, u(12345), nil), ErrRedeemExceedsAllw)
	assert.ErrorIs(t, f.l.RedeemFrom(alice, bob, u(123), nil), permission.ErrNoSendPermission)

	f.permit(t, bob, true, true, 0)
	require.NoError(t, f.l.Approve(bob, alice, u(20000)))
	f.rec.Reset()
	require.NoError(t, f.l.RedeemFrom(alice, bob, u(3000), []byte{0x43, 0x21}))

	assert.Equal(t, SharesBurnt{Account: bob, PreRebaseAmount: u(3000), PostRebaseAmount: u(4285), Shares: u(3000)},
		f.rec.Named("SharesBurnt")[0])
	assert.Equal(t, Redeemed{Operator: alice, From: bob, Amount: u(3000), Data: []byte{0x43, 0x21}},
		f.rec.Named("Redeemed")[0])
	assert.Equal(t, Approval{Owner: bob, Spender: alice, Amount: u(17000)}, f.rec.Named("Approval")[0])
	assert.Equal(t, uint64(7000), f.l.TotalSupply().Uint64())
	assert.Equal(t, uint64(7000), f.balance(t, bob))
}

func TestRedeemByIssuer(t *testing.T) {
	f := newFixture(t)
	f.permit(t, alice, true, true, 0)
	f.permit(t, issuer, true, true, 0)
	f.issue(t, alice, 10000)

	assert.ErrorIs(t, f.l.Redeem(alice, u(100), nil), roles.ErrNotIssuer)
	assert.ErrorIs(t, f.l.RedeemFrom(alice, alice, u(100), nil), roles.ErrNotIssuer)

	// holder hands tokens to the issuer, which redeems them
	require.NoError(t, f.l.Transfer(alice, issuer, u(1000)))
	require.NoError(t, f.l.Redeem(issuer, u(1000), nil))
	assert.Equal(t, uint64(9000), f.l.TotalSupply().Uint64())

	// or the issuer pulls through the holder's allowance
	require.NoError(t, f.l.Approve(alice, issuer, u(500)))
	require.NoError(t, f.l.RedeemFrom(issuer, alice, u(500), nil))
	assert.Equal(t, uint64(8500), f.balance(t, alice))
	assert.True(t, f.l.Allowance(alice, issuer).IsZero())
}

func TestCanTransfer(t *testing.T) {
	f := newFixture(t)
	f.permit(t, alice, false, true, 0)
	f.issue(t, alice, 10000)
	f.permit(t, alice, false, false, 0)

	deny := permission.Deny
	tests := []struct {
		name   string
		setup  func()
		amount uint64
		want   permission.Result
	}{
		{"sender lacks send", func() {}, 100, deny(permission.PermissionRequested, permission.CannotSend)},
		{"sender expired", func() { f.permit(t, alice, true, false, 12345) }, 100, deny(permission.PermissionRequested, permission.CannotSend)},
		{"receiver lacks receive", func() { f.permit(t, alice, true, false, f.unix()+100) }, 100, deny(permission.PermissionRequested, permission.CannotReceive)},
		{"sender never expires", func() { f.permit(t, alice, true, false, 0) }, 100, deny(permission.PermissionRequested, permission.CannotReceive)},
		{"receiver expired", func() { f.permit(t, bob, false, true, 12345) }, 100, deny(permission.PermissionRequested, permission.CannotReceive)},
		{"shares short", func() { f.permit(t, bob, false, true, f.unix()+100) }, 20000, deny(permission.UpperLimit, permission.SharesNotEnough)},
		{"shares short no expiry", func() { f.permit(t, bob, false, true, 0) }, 20000, deny(permission.UpperLimit, permission.SharesNotEnough)},
		{"ok", func() {}, 200, permission.Allow()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			assert.Equal(t, tt.want, f.l.CanTransfer(alice, bob, u(tt.amount)))
		})
	}
}

func TestCanTransferFromChecksAllowanceFirst(t *testing.T) {
	f := newFixture(t)
	f.permit(t, alice, false, true, 0)
	f.issue(t, alice, 10000)
	f.permit(t, alice, false, false, 0)

	assert.Equal(t, permission.Deny(permission.UpperLimit, permission.AllowanceNotEnough),
		f.l.CanTransferFrom(cindy, alice, bob, u(100)))

	require.NoError(t, f.l.Approve(alice, cindy, u(20000)))
	assert.Equal(t, permission.Deny(permission.PermissionRequested, permission.CannotSend),
		f.l.CanTransferFrom(cindy, alice, bob, u(100)))

	f.permit(t, alice, true, false, 0)
	f.permit(t, bob, false, true, 0)
	assert.Equal(t, permission.Deny(permission.UpperLimit, permission.SharesNotEnough),
		f.l.CanTransferFrom(cindy, alice, bob, u(20000)))
	assert.Equal(t, permission.Allow(), f.l.CanTransferFrom(cindy, alice, bob, u(200)))
}

func TestCanTransferMatchesTransfer(t *testing.T) {
	f := newFixture(t)
	f.permit(t, alice, true, true, 0)
	f.permit(t, bob, true, true, 0)
	f.issue(t, alice, 500)

	for _, amount := range []uint64{0, 1, 499, 500, 501, 10000} {
		res := f.l.CanTransfer(alice, bob, u(amount))
		before := f.l.Snapshot()
		err := f.l.Transfer(alice, bob, u(amount))
		assert.Equal(t, res.OK, err == nil, "amount %d", amount)
		if err == nil {
			require.NoError(t, f.l.Restore(before))
		}
	}
}

type denyList map[common.Address]bool

func (d denyList) CheckTransfer(from, to common.Address) error {
	if d[from] || d[to] {
		return permission.ErrNoSendPermission
	}
	return nil
}

func TestGuardBlocksTransfersButNotController(t *testing.T) {
	guard := denyList{bob: true}
	f := newFixture(t, WithGuard(guard))
	f.permit(t, alice, true, true, 0)
	f.permit(t, bob, true, true, 0)
	f.issue(t, bob, 1000)

	assert.Error(t, f.l.Transfer(bob, alice, u(10)))
	assert.Equal(t, permission.Deny(permission.RevokedOrBanned, permission.Forbidden), f.l.CanTransfer(bob, alice, u(10)))
	require.NoError(t, f.l.ControllerTransfer(controller, bob, alice, u(10), nil, nil))
	assert.Equal(t, uint64(10), f.balance(t, alice))
}

func TestControllerTransfer(t *testing.T) {
	f := newFixture(t)
	f.permit(t, alice, false, true, 0)
	f.permit(t, bob, false, true, 0)
	f.issue(t, alice, 10000)
	f.issue(t, bob, 10000)

	data, opData := []byte{0x12, 0x34}, []byte{0x56, 0x78}
	assert.ErrorIs(t, f.l.ControllerTransfer(alice, alice, bob, u(123), data, opData), roles.ErrNotController)
	assert.ErrorIs(t, f.l.ControllerTransfer(controller, zeroAddr, bob, u(123), data, opData), ErrTransferFromZero)
	assert.ErrorIs(t, f.l.ControllerTransfer(controller, bob, zeroAddr, u(123), data, opData), ErrTransferToZero)
	assert.ErrorIs(t, f.l.ControllerTransfer(controller, alice, bob, u(12345), data, opData), ErrTransferExceedsBal)

	f.rec.Reset()
	require.NoError(t, f.l.ControllerTransfer(controller, alice, bob, u(4000), data, opData))
	evts := f.rec.Events()
	require.Len(t, evts, 3)
	assert.Equal(t, Transfer{From: alice, To: bob, Amount: u(4000)}, evts[0])
	assert.Equal(t, TransferShares{From: alice, To: bob, Shares: u(4000)}, evts[1])
	assert.Equal(t, ControllerTransfer{Controller: controller, From: alice, To: bob, Amount: u(4000), Data: data, OperatorData: opData}, evts[2])
	assert.Equal(t, uint64(6000), f.balance(t, alice))
	assert.Equal(t, uint64(14000), f.balance(t, bob))
}

func TestControllerRedeem(t *testing.T) {
	f := newFixture(t)
	f.permit(t, alice, false, true, 0)
	f.issue(t, alice, 10000)
	f.permit(t, alice, false, false, 0)

	data, opData := []byte{0x12, 0x34}, []byte{0x56, 0x78}
	assert.ErrorIs(t, f.l.ControllerRedeem(alice, alice, u(123), data, opData), roles.ErrNotController)
	assert.ErrorIs(t, f.l.ControllerRedeem(controller, zeroAddr, u(123), data, opData), ErrBurnFromZero)
	assert.ErrorIs(t, f.l.ControllerRedeem(controller, alice, u(12345), data, opData), ErrBurnExceedsBalance)

	f.rec.Reset()
	require.NoError(t, f.l.ControllerRedeem(controller, alice, u(4000), data, opData))
	assert.Equal(t, SharesBurnt{Account: alice, PreRebaseAmount: u(4000), PostRebaseAmount: u(6666), Shares: u(4000)},
		f.rec.Named("SharesBurnt")[0])
	assert.Equal(t, ControllerRedemption{Controller: controller, TokenHolder: alice, Amount: u(4000), Data: data, OperatorData: opData},
		f.rec.Named("ControllerRedemption")[0])
	assert.Equal(t, uint64(6000), f.balance(t, alice))
}

func setLimits(t *testing.T, f *fixture) {
	t.Helper()
	ratio, err := calc.RatioFromDecimal(decimalTenth)
	require.NoError(t, err)
	require.NoError(t, f.l.SetMaxDistributeRatio(owner, ratio))
	require.NoError(t, f.l.SetMinDistributeInterval(owner, 24*3600))
}

func TestDistributeInterestsErrors(t *testing.T) {
	f := newFixture(t)
	f.permit(t, alice, false, true, 0)
	f.issue(t, alice, 10000)
	setLimits(t, f)

	assert.ErrorIs(t, f.l.DistributeInterests(alice, big.NewInt(12345), 0, 0), roles.ErrNotIssuer)
	assert.ErrorIs(t, f.l.DistributeInterests(issuer, big.NewInt(1001), 0, 0), ErrMaxRatioExceeded)
	require.NoError(t, f.l.DistributeInterests(issuer, big.NewInt(1000), 0, 0))
	assert.ErrorIs(t, f.l.DistributeInterests(issuer, big.NewInt(1000), 0, 0), ErrMinIntervalViolated)

	f.now = f.now.Add(23 * time.Hour)
	assert.ErrorIs(t, f.l.DistributeInterests(issuer, big.NewInt(1000), 0, 0), ErrMinIntervalViolated)

	f.now = f.now.Add(time.Hour)
	require.NoError(t, f.l.DistributeInterests(issuer, big.NewInt(1000), 0, 0))
}

func TestDistributeInterestsRebases(t *testing.T) {
	f := newFixture(t)
	f.permit(t, alice, false, true, 0)
	f.permit(t, bob, false, true, 0)
	f.issue(t, alice, 10000)
	f.issue(t, bob, 20000)
	setLimits(t, f)
	f.rec.Reset()

	require.NoError(t, f.l.DistributeInterests(issuer, big.NewInt(2100), 100, 200))
	evt := f.rec.Named("InterestsDistributed")[0].(InterestsDistributed)
	assert.Equal(t, int64(2100), evt.Interest.Int64())
	assert.Equal(t, uint64(32100), evt.NewTotalSupply.Uint64())
	assert.Equal(t, uint64(100), evt.RangeStart)
	assert.Equal(t, uint64(200), evt.RangeEnd)

	assert.Equal(t, uint64(32100), f.l.TotalSupply().Uint64())
	assert.Equal(t, uint64(30000), f.l.TotalShares().Uint64())
	assert.Equal(t, uint64(10700), f.balance(t, alice))
	assert.Equal(t, uint64(10000), f.l.SharesOf(alice).Uint64())
	assert.Equal(t, uint64(21400), f.balance(t, bob))

	f.now = f.now.Add(24 * time.Hour)
	require.NoError(t, f.l.DistributeInterests(issuer, big.NewInt(-1500), 200, 300))
	assert.Equal(t, uint64(30600), f.l.TotalSupply().Uint64())
	assert.Equal(t, uint64(10200), f.balance(t, alice))
	assert.Equal(t, uint64(20400), f.balance(t, bob))
	assert.Equal(t, f.unix(), f.l.LastDistributeTime())
}

func TestConversionFloorsAfterRebase(t *testing.T) {
	f := newFixture(t)
	f.permit(t, alice, true, true, 0)
	f.permit(t, bob, true, true, 0)
	f.issue(t, alice, 10000)
	f.issue(t, bob, 20000)
	setLimits(t, f)
	require.NoError(t, f.l.DistributeInterests(issuer, big.NewInt(2100), 0, 0))

	// 1 * 30000 / 32100 floors to zero shares
	shares, err := f.l.SharesFor(u(1))
	require.NoError(t, err)
	assert.True(t, shares.IsZero())

	require.NoError(t, f.l.Transfer(alice, bob, u(1000)))
	// 1000 * 30000 / 32100 = 934 shares
	assert.Equal(t, uint64(10000-934), f.l.SharesOf(alice).Uint64())
	assert.Equal(t, uint64(30000), f.l.TotalShares().Uint64())
}

func rebased(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := newFixture(t, opts...)
	for _, who := range []common.Address{alice, bob, cindy, issuer} {
		f.permit(t, who, true, true, 0)
	}
	f.issue(t, alice, 10000)
	f.issue(t, bob, 20000)
	setLimits(t, f)
	require.NoError(t, f.l.DistributeInterests(issuer, big.NewInt(2100), 0, 0))
	f.rec.Reset()
	return f
}

func TestAllowanceSpendsAmountAfterRebase(t *testing.T) {
	f := rebased(t)

	require.NoError(t, f.l.Approve(alice, cindy, u(5000)))
	require.NoError(t, f.l.TransferFrom(cindy, alice, bob, u(1000)))
	assert.Equal(t, uint64(4000), f.l.Allowance(alice, cindy).Uint64())

	require.NoError(t, f.l.Approve(alice, issuer, u(600)))
	require.NoError(t, f.l.RedeemFrom(issuer, alice, u(500), nil))
	assert.Equal(t, uint64(100), f.l.Allowance(alice, issuer).Uint64())
}

func TestShareConversionRoundsDown(t *testing.T) {
	f := rebased(t)

	for _, s := range []uint64{1, 2, 3, 14, 15, 99, 934, 1000, 9999, 29999, 30000} {
		amount, err := f.l.AmountFor(u(s))
		require.NoError(t, err)
		back, err := f.l.SharesFor(amount)
		require.NoError(t, err)
		assert.LessOrEqual(t, back.Uint64(), s, "shares %d", s)
		assert.LessOrEqual(t, s-back.Uint64(), uint64(1), "shares %d", s)
	}
	for _, a := range []uint64{1, 2, 107, 1000, 32099} {
		shares, err := f.l.SharesFor(u(a))
		require.NoError(t, err)
		back, err := f.l.AmountFor(shares)
		require.NoError(t, err)
		assert.LessOrEqual(t, back.Uint64(), a, "amount %d", a)
	}
}

func TestIssueAndRedeemMoveExactDeltas(t *testing.T) {
	f := rebased(t, WithRedemptionPolicy(RedeemByHolder))

	supply, shares := f.l.TotalSupply().Uint64(), f.l.TotalShares().Uint64()
	want, err := f.l.SharesFor(u(1000))
	require.NoError(t, err)
	assert.Equal(t, uint64(934), want.Uint64())
	f.issue(t, cindy, 1000)
	assert.Equal(t, supply+1000, f.l.TotalSupply().Uint64())
	assert.Equal(t, shares+934, f.l.TotalShares().Uint64())
	assert.Equal(t, uint64(934), f.l.SharesOf(cindy).Uint64())

	supply, shares = f.l.TotalSupply().Uint64(), f.l.TotalShares().Uint64()
	want, err = f.l.SharesFor(u(321))
	require.NoError(t, err)
	require.NoError(t, f.l.Redeem(alice, u(321), nil))
	assert.Equal(t, supply-321, f.l.TotalSupply().Uint64())
	assert.Equal(t, shares-want.Uint64(), f.l.TotalShares().Uint64())
	assert.Equal(t, 10000-want.Uint64(), f.l.SharesOf(alice).Uint64())
}

func TestNegativeDistributionBounded(t *testing.T) {
	f := newFixture(t)
	f.permit(t, alice, false, true, 0)
	f.issue(t, alice, 30000)
	setLimits(t, f)

	assert.ErrorIs(t, f.l.DistributeInterests(issuer, big.NewInt(-3001), 0, 0), ErrMaxRatioExceeded)
	assert.Equal(t, uint64(30000), f.l.TotalSupply().Uint64())
	assert.Empty(t, f.rec.Named("InterestsDistributed"))

	require.NoError(t, f.l.DistributeInterests(issuer, big.NewInt(-3000), 0, 0))
	assert.Equal(t, uint64(27000), f.l.TotalSupply().Uint64())
	assert.Equal(t, uint64(30000), f.l.TotalShares().Uint64())
}

func TestSharesAlwaysSumToTotal(t *testing.T) {
	f := newFixture(t, WithRedemptionPolicy(RedeemByHolder))
	for _, who := range []common.Address{alice, bob, cindy} {
		f.permit(t, who, true, true, 0)
	}
	setLimits(t, f)
	f.issue(t, alice, 7777)
	f.issue(t, bob, 3333)
	require.NoError(t, f.l.DistributeInterests(issuer, big.NewInt(999), 0, 0))
	require.NoError(t, f.l.Transfer(alice, cindy, u(1234)))
	require.NoError(t, f.l.Redeem(bob, u(1001), nil))
	f.issue(t, cindy, 4242)
	require.NoError(t, f.l.ControllerTransfer(controller, cindy, alice, u(17), nil, nil))

	snap := f.l.Snapshot()
	sum := calc.Zero()
	for _, v := range snap.Shares {
		n, err := calc.ParseUnits(v)
		require.NoError(t, err)
		sum, err = calc.Add(sum, n)
		require.NoError(t, err)
	}
	assert.Equal(t, snap.TotalShares, sum.Dec())
}

func TestFailedOperationLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	f.permit(t, alice, true, true, 0)
	f.permit(t, bob, true, true, 0)
	f.issue(t, alice, 100)
	before := f.l.Snapshot()
	f.rec.Reset()

	assert.Error(t, f.l.Transfer(alice, bob, u(101)))
	assert.Error(t, f.l.Issue(issuer, alice, new(uint256.Int).SetAllOne(), nil))
	assert.Equal(t, before, f.l.Snapshot())
	assert.Empty(t, f.rec.Events())
}

func TestSnapshotRestore(t *testing.T) {
	f := newFixture(t)
	f.permit(t, alice, true, true, 0)
	f.issue(t, alice, 10000)
	require.NoError(t, f.l.Approve(alice, bob, u(77)))

	g := newFixture(t)
	require.NoError(t, g.l.Restore(f.l.Snapshot()))
	assert.Equal(t, uint64(10000), g.balance(t, alice))
	assert.Equal(t, uint64(77), g.l.Allowance(alice, bob).Uint64())
	assert.True(t, g.l.Permissions().IsSendAllowed(alice, g.unix()))

	bad := f.l.Snapshot()
	bad.TotalShares = "1"
	assert.Error(t, g.l.Restore(bad))
}

func TestCallDispatch(t *testing.T) {
	f := newFixture(t)

	data, err := EncodeCall("setPermission", alice, PermissionArg{SendAllowed: false, ReceiveAllowed: true, ExpiryTime: 0})
	require.NoError(t, err)
	require.NoError(t, f.l.Call(moderator, data))
	assert.Equal(t, permission.Permission{ReceiveAllowed: true}, f.l.Permissions().Permission(alice))

	data, err = EncodeCall("issue", alice, big.NewInt(10000), []byte{0x12, 0x34})
	require.NoError(t, err)
	assert.ErrorIs(t, f.l.Call(alice, data), roles.ErrNotIssuer)
	require.NoError(t, f.l.Call(issuer, data))
	assert.Equal(t, uint64(10000), f.balance(t, alice))
	assert.Equal(t, []byte{0x12, 0x34}, []byte(f.rec.Named("Issued")[0].(Issued).Data))

	assert.ErrorIs(t, f.l.Call(issuer, []byte{0x12, 0x34, 0x56, 0x78, 0x90}), ErrUnknownSelector)
	assert.ErrorIs(t, f.l.Call(issuer, []byte{0x12}), ErrUnknownSelector)
}

func TestCallDistributeRejectsWideRange(t *testing.T) {
	f := newFixture(t)
	f.permit(t, alice, false, true, 0)
	f.issue(t, alice, 10000)
	setLimits(t, f)
	f.rec.Reset()

	wide := new(big.Int).Lsh(big.NewInt(1), 64)
	for _, args := range [][2]*big.Int{{wide, big.NewInt(1)}, {big.NewInt(1), wide}} {
		data, err := EncodeCall("distributeInterests", big.NewInt(100), args[0], args[1])
		require.NoError(t, err)
		assert.ErrorIs(t, f.l.Call(issuer, data), ErrMalformedCalldata)
	}
	assert.Empty(t, f.rec.Events())
	assert.Equal(t, uint64(10000), f.l.TotalSupply().Uint64())

	top := new(big.Int).SetUint64(^uint64(0))
	data, err := EncodeCall("distributeInterests", big.NewInt(100), big.NewInt(7), top)
	require.NoError(t, err)
	require.NoError(t, f.l.Call(issuer, data))
	evt := f.rec.Named("InterestsDistributed")[0].(InterestsDistributed)
	assert.Equal(t, uint64(7), evt.RangeStart)
	assert.Equal(t, ^uint64(0), evt.RangeEnd)
}

func TestSelectors(t *testing.T) {
	sel, err := Selector("issue")
	require.NoError(t, err)
	assert.Equal(t, [4]byte{0xbb, 0x3a, 0xcd, 0xe9}, sel)

	_, err = Selector("nope")
	assert.Error(t, err)
}
