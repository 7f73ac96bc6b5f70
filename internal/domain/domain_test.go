package domain

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rebasefi/stbt-ledger/internal/crosschain"
	"github.com/rebasefi/stbt-ledger/internal/documents"
	"github.com/rebasefi/stbt-ledger/internal/events"
	"github.com/rebasefi/stbt-ledger/internal/ledger"
	"github.com/rebasefi/stbt-ledger/internal/permission"
	"github.com/rebasefi/stbt-ledger/internal/relay"
	"github.com/rebasefi/stbt-ledger/internal/roles"
	"github.com/rebasefi/stbt-ledger/internal/timelock"
	"github.com/rebasefi/stbt-ledger/internal/upgrade"
)

var (
	owner      = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	issuer     = common.HexToAddress("0x0000000000000000000000000000000000000a02")
	controller = common.HexToAddress("0x0000000000000000000000000000000000000a03")
	moderator  = common.HexToAddress("0x0000000000000000000000000000000000000a04")
	messager   = common.HexToAddress("0x0000000000000000000000000000000000000a07")
	alice      = common.HexToAddress("0x0000000000000000000000000000000000000b01")
	bob        = common.HexToAddress("0x0000000000000000000000000000000000000b02")
)

func u(n uint64) *uint256.Int { return uint256.NewInt(n) }

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func params(c *clock, rec *events.Recorder, pub crosschain.Publisher) Params {
	return Params{
		Owner:       owner,
		Issuer:      issuer,
		Controller:  controller,
		Moderator:   moderator,
		Messager:    messager,
		SendEnabled: true,
		Clock:       c.Now,
		Sink:        rec,
		Publisher:   pub,
	}
}

func TestBuildMainWiring(t *testing.T) {
	c := &clock{now: time.Unix(1_700_000_000, 0)}
	d, err := BuildMain(params(c, &events.Recorder{}, nil))
	require.NoError(t, err)

	assert.Equal(t, Main, d.Name)
	assert.Equal(t, crosschain.SelectorMain, d.Selector)
	assert.NotNil(t, d.Wrapped)
	assert.Nil(t, d.Timelock)
	assert.True(t, d.Roles.Has(roles.Issuer, issuer))
	assert.True(t, d.Endpoint.Roles().Has(roles.Messager, messager))
	assert.NotSame(t, d.Roles, d.Endpoint.Roles())
	assert.True(t, d.Endpoint.SendEnabled())

	now := d.Ledger().Now()
	for _, infra := range []common.Address{WrappedAddress, MainBridgeAddress} {
		assert.True(t, d.Permissions.IsReceiveAllowed(infra, now), infra.Hex())
	}
	assert.Equal(t, ledger.DefaultMetadata, d.Ledger().Metadata())
}

func TestBuildSideWiring(t *testing.T) {
	c := &clock{now: time.Unix(1_700_000_000, 0)}
	d, err := BuildSide(params(c, &events.Recorder{}, nil))
	require.NoError(t, err)

	assert.Nil(t, d.Wrapped)
	assert.Same(t, d.Roles, d.Endpoint.Roles())
	assert.True(t, d.Roles.Has(roles.Bridge, SideBridgeAddress))
	assert.Equal(t, common.Address{}, d.Roles.Holder(roles.Issuer))

	// the forbidden list guards ordinary side transfers
	require.NoError(t, d.Permissions.SetPermission(moderator, alice, permission.Full))
	require.NoError(t, d.Permissions.SetPermission(moderator, bob, permission.Full))
	require.NoError(t, d.Ledger().BridgeMint(SideBridgeAddress, alice, u(100)))
	require.NoError(t, d.Forbidden.Set(controller, bob, true))
	assert.ErrorIs(t, d.Ledger().Transfer(alice, bob, u(10)), crosschain.ErrForbidden)
}

func TestLinkAllowsPeersBothWays(t *testing.T) {
	c := &clock{now: time.Unix(1_700_000_000, 0)}
	rec := &events.Recorder{}
	main, err := BuildMain(params(c, rec, nil))
	require.NoError(t, err)
	side, err := BuildSide(params(c, rec, nil))
	require.NoError(t, err)

	require.NoError(t, Link(main, side))
	assert.True(t, main.Messager.IsAllowedPeer(crosschain.SelectorSide, messager))
	assert.True(t, side.Messager.IsAllowedPeer(crosschain.SelectorMain, messager))
	assert.Len(t, rec.Named("AllowedPeerSet"), 2)
}

func TestRoundTripThroughRelay(t *testing.T) {
	c := &clock{now: time.Unix(1_700_000_000, 0)}
	rec := &events.Recorder{}
	transport := relay.NewMemoryTransport(relay.WithRetry(1, time.Millisecond))
	defer transport.Close()

	main, err := BuildMain(params(c, rec, transport))
	require.NoError(t, err)
	side, err := BuildSide(params(c, rec, transport))
	require.NoError(t, err)
	require.NoError(t, Link(main, side))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	for _, d := range []*Domain{main, side} {
		w := relay.NewWorker(transport, d.Messager)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = w.Run(ctx)
		}()
	}

	for _, who := range []common.Address{alice, bob} {
		require.NoError(t, main.Permissions.SetPermission(moderator, who, permission.Full))
	}
	require.NoError(t, main.Ledger().Issue(issuer, alice, u(1_000_000), nil))
	require.NoError(t, main.Ledger().Approve(alice, WrappedAddress, u(1_000_000)))
	_, err = main.Wrapped.Wrap(alice, u(1_000_000))
	require.NoError(t, err)
	require.NoError(t, main.Wrapped.Approve(alice, MainBridgeAddress, u(1_000_000)))

	_, err = main.Messager.TransferToChain(ctx, crosschain.SelectorSide, messager, alice, bob, u(4000))
	require.NoError(t, err)
	assert.Equal(t, uint64(4000), main.Wrapped.BalanceOf(MainBridgeAddress).Uint64())

	require.Eventually(t, func() bool {
		b, err := side.Ledger().BalanceOf(bob)
		return err == nil && b.Uint64() == 4000
	}, 2*time.Second, 10*time.Millisecond)

	perUnit, err := main.Wrapped.AmountPerUnit()
	require.NoError(t, err)
	rate := side.Endpoint.Rate()
	require.NotNil(t, rate.AmountPerUnit)
	assert.Equal(t, perUnit, rate.AmountPerUnit)
	assert.Equal(t, uint64(1_700_000_000), rate.UpdatedAt)
	assert.Len(t, rec.Named("PriceToSTBTUpdated"), 1)

	_, err = side.Messager.TransferToChain(ctx, crosschain.SelectorMain, messager, bob, alice, u(1500))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return main.Wrapped.BalanceOf(MainBridgeAddress).Uint64() == 2500
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, uint64(1_000_000-2500), main.Wrapped.BalanceOf(alice).Uint64())
	assert.Equal(t, uint64(2500), side.Ledger().TotalSupply().Uint64())

	cancel()
	wg.Wait()
}

func TestUpgradeCarriesState(t *testing.T) {
	c := &clock{now: time.Unix(1_700_000_000, 0)}
	d, err := BuildMain(params(c, &events.Recorder{}, nil))
	require.NoError(t, err)
	require.NoError(t, d.Permissions.SetPermission(moderator, alice, permission.Full))
	require.NoError(t, d.Ledger().Issue(issuer, alice, u(500), nil))
	before := d.Ledger()

	_, err = d.Upgrade(alice)
	assert.ErrorIs(t, err, roles.ErrNotOwner)

	reset, err := d.Upgrade(owner)
	require.NoError(t, err)
	assert.Equal(t, upgrade.Reset{Name: LedgerImpl, Version: 2}, reset)
	assert.NotSame(t, before, d.Ledger())

	b, err := d.Ledger().BalanceOf(alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), b.Uint64())

	// the wrapped token follows the new implementation
	require.NoError(t, d.Ledger().Approve(alice, WrappedAddress, u(500)))
	_, err = d.Wrapped.Wrap(alice, u(200))
	require.NoError(t, err)
	b, err = d.Ledger().BalanceOf(alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), b.Uint64())
}

func TestTimelockDelaysIssue(t *testing.T) {
	c := &clock{now: time.Unix(1_700_000_000, 0)}
	p := params(c, &events.Recorder{}, nil)
	p.Timelock = &TimelockParams{
		Admin:  owner,
		Delays: map[string]time.Duration{"issue": time.Hour},
	}
	d, err := BuildMain(p)
	require.NoError(t, err)
	require.NotNil(t, d.Timelock)
	assert.True(t, d.Roles.Has(roles.Issuer, MainTimelockAddress))
	assert.True(t, d.Roles.Has(roles.Moderator, moderator))
	assert.True(t, d.Timelock.HasRole(timelock.Proposer, issuer))

	require.NoError(t, d.Permissions.SetPermission(moderator, alice, permission.Full))
	assert.ErrorIs(t, d.Ledger().Issue(issuer, alice, u(10), nil), roles.ErrNotIssuer)

	data, err := ledger.EncodeCall("issue", alice, uint256.NewInt(700).ToBig(), []byte{})
	require.NoError(t, err)
	_, err = d.Timelock.Schedule(issuer, MainLedgerAddress, data, common.Hash{}, common.Hash{}, 0)
	require.NoError(t, err)

	err = d.Timelock.Execute(issuer, MainLedgerAddress, data, common.Hash{}, common.Hash{})
	assert.ErrorIs(t, err, timelock.ErrNotReady)

	c.Advance(time.Hour)
	require.NoError(t, d.Timelock.Execute(issuer, MainLedgerAddress, data, common.Hash{}, common.Hash{}))
	b, err := d.Ledger().BalanceOf(alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(700), b.Uint64())
}

func TestTimelockOwnerKeepsSideFallback(t *testing.T) {
	c := &clock{now: time.Unix(1_700_000_000, 0)}
	p := params(c, &events.Recorder{}, nil)
	p.Timelock = &TimelockParams{
		Admin:  owner,
		Delays: map[string]time.Duration{"setModerator": time.Hour},
	}
	d, err := BuildSide(p)
	require.NoError(t, err)
	assert.True(t, d.Roles.Has(roles.Owner, SideTimelockAddress))
	assert.Equal(t, owner, d.Endpoint.Fallback())

	// a forbidden recipient is redirected to the former owner
	require.NoError(t, d.Forbidden.Set(controller, bob, true))
	payload, err := crosschain.EncodeMessage(alice, bob, u(250))
	require.NoError(t, err)
	receipt, err := d.Endpoint.Receive(messager, payload)
	require.NoError(t, err)
	assert.True(t, receipt.Redirected)
	b, err := d.Ledger().BalanceOf(owner)
	require.NoError(t, err)
	assert.Equal(t, uint64(250), b.Uint64())
	b, err = d.Ledger().BalanceOf(SideTimelockAddress)
	require.NoError(t, err)
	assert.True(t, b.IsZero())
}

func TestTimelockOwnerHonoursConfiguredFallback(t *testing.T) {
	treasury := common.HexToAddress("0x0000000000000000000000000000000000000d01")
	p := params(&clock{now: time.Unix(1_700_000_000, 0)}, &events.Recorder{}, nil)
	p.Fallback = treasury
	p.Timelock = &TimelockParams{Admin: owner, Delays: map[string]time.Duration{"setModerator": time.Hour}}
	d, err := BuildSide(p)
	require.NoError(t, err)
	assert.Equal(t, treasury, d.Endpoint.Fallback())
}

func TestTimelockRejectsUnknownMethod(t *testing.T) {
	p := params(&clock{now: time.Unix(1_700_000_000, 0)}, &events.Recorder{}, nil)
	p.Timelock = &TimelockParams{Admin: owner, Delays: map[string]time.Duration{"transfer": time.Hour}}
	_, err := BuildMain(p)
	assert.Error(t, err)
}

func TestSnapshotRoundTrip(t *testing.T) {
	c := &clock{now: time.Unix(1_700_000_000, 0)}
	src, err := BuildMain(params(c, &events.Recorder{}, nil))
	require.NoError(t, err)
	require.NoError(t, src.Permissions.SetPermission(moderator, alice, permission.Full))
	require.NoError(t, src.Ledger().Issue(issuer, alice, u(900), nil))
	require.NoError(t, src.Ledger().Approve(alice, WrappedAddress, u(300)))
	_, err = src.Wrapped.Wrap(alice, u(300))
	require.NoError(t, err)
	require.NoError(t, src.Documents.SetDocument(owner, documents.Name("prospectus"), "ipfs://doc", common.Hash{1}))
	require.NoError(t, src.Forbidden.Set(controller, bob, true))
	require.NoError(t, src.Endpoint.SetSendEnabled(owner, false))

	data, err := src.CaptureJSON()
	require.NoError(t, err)

	dst, err := BuildMain(params(c, &events.Recorder{}, nil))
	require.NoError(t, err)
	require.NoError(t, dst.RestoreJSON(data))

	b, err := dst.Ledger().BalanceOf(alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(600), b.Uint64())
	assert.Equal(t, uint64(300), dst.Wrapped.BalanceOf(alice).Uint64())
	doc, ok := dst.Documents.GetDocument(documents.Name("prospectus"))
	require.True(t, ok)
	assert.Equal(t, "ipfs://doc", doc.URI)
	assert.True(t, dst.Forbidden.IsForbidden(bob))
	assert.False(t, dst.Endpoint.SendEnabled())
	assert.Equal(t, src.Endpoint.Roles().Snapshot(), dst.Endpoint.Roles().Snapshot())
	assert.Equal(t, "main", dst.SnapshotKey())

	assert.Error(t, dst.RestoreJSON([]byte("{")))
}
