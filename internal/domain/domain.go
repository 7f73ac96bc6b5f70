// Package domain assembles one ledger domain: the share ledger behind its
// implementation table, permissions, documents, the bridge endpoint with its
// messager and, when configured, the delayed admin gateway.
package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/rebasefi/stbt-ledger/internal/crosschain"
	"github.com/rebasefi/stbt-ledger/internal/documents"
	"github.com/rebasefi/stbt-ledger/internal/events"
	"github.com/rebasefi/stbt-ledger/internal/ledger"
	"github.com/rebasefi/stbt-ledger/internal/permission"
	"github.com/rebasefi/stbt-ledger/internal/roles"
	"github.com/rebasefi/stbt-ledger/internal/timelock"
	"github.com/rebasefi/stbt-ledger/internal/upgrade"
	"github.com/rebasefi/stbt-ledger/internal/wrapped"
)

const (
	Main = "main"
	Side = "side"

	// LedgerImpl is the implementation table entry of the share ledger.
	LedgerImpl = "stbt"
)

// Component addresses. They identify the in-process contracts to each other
// and in permission records.
var (
	MainLedgerAddress   = common.HexToAddress("0x0000000000000000000000000000000000000c00")
	WrappedAddress      = common.HexToAddress("0x0000000000000000000000000000000000000c01")
	MainBridgeAddress   = common.HexToAddress("0x0000000000000000000000000000000000000c02")
	SideBridgeAddress   = common.HexToAddress("0x0000000000000000000000000000000000000c03")
	SideLedgerAddress   = common.HexToAddress("0x0000000000000000000000000000000000000c04")
	MainTimelockAddress = common.HexToAddress("0x0000000000000000000000000000000000000c05")
	SideTimelockAddress = common.HexToAddress("0x0000000000000000000000000000000000000c06")
)

// methodRoles is the role each delayable ledger method runs under.
var methodRoles = map[string]roles.Role{
	"issue":                    roles.Issuer,
	"redeem":                   roles.Issuer,
	"redeemFrom":               roles.Issuer,
	"distributeInterests":      roles.Issuer,
	"setPermission":            roles.Moderator,
	"controllerTransfer":       roles.Controller,
	"controllerRedeem":         roles.Controller,
	"setIssuer":                roles.Owner,
	"setController":            roles.Owner,
	"setModerator":             roles.Owner,
	"setMinDistributeInterval": roles.Owner,
	"setMaxDistributeRatio":    roles.Owner,
}

type TimelockParams struct {
	Admin     common.Address
	Proposers []common.Address
	Executors []common.Address
	// Delays maps ledger method names to their minimum delay.
	Delays map[string]time.Duration
}

type Params struct {
	Owner      common.Address
	Issuer     common.Address
	Controller common.Address
	Moderator  common.Address
	Messager   common.Address
	Fallback   common.Address

	Metadata              ledger.Metadata
	RedemptionPolicy      ledger.RedemptionPolicy
	MinDistributeInterval uint64
	MaxDistributeRatio    *uint256.Int
	SendEnabled           bool

	// Timelock is nil when admin calls are not delayed.
	Timelock *TimelockParams

	Clock     func() time.Time
	Sink      events.Sink
	Logger    *zap.SugaredLogger
	Observer  crosschain.Observer
	Publisher crosschain.Publisher
}

func (p *Params) defaults() {
	if p.Clock == nil {
		p.Clock = time.Now
	}
	if p.Sink == nil {
		p.Sink = events.Nop
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop().Sugar()
	}
	if p.Metadata.Symbol == "" {
		p.Metadata = ledger.DefaultMetadata
	}
	if p.RedemptionPolicy == "" {
		p.RedemptionPolicy = ledger.RedeemByIssuer
	}
	if p.MaxDistributeRatio == nil {
		p.MaxDistributeRatio = uint256.NewInt(0)
	}
}

type Domain struct {
	Name     string
	Selector crosschain.ChainSelector
	Address  common.Address

	Roles       *roles.Table
	Permissions *permission.Registry
	Ledgers     *upgrade.Table[*ledger.Ledger]
	Documents   *documents.Store
	// Wrapped is nil on the side domain.
	Wrapped   *wrapped.Token
	Endpoint  *crosschain.Endpoint
	Forbidden *crosschain.Forbidden
	Messager  *crosschain.Messager
	// Timelock is nil unless admin calls are delayed.
	Timelock *timelock.Controller

	proxy      ledgerProxy
	ledgerOpts []ledger.Option
	sink       events.Sink
	logger     *zap.SugaredLogger
}

// Ledger returns the current ledger implementation.
func (d *Domain) Ledger() *ledger.Ledger {
	return d.proxy.current()
}

// BuildMain wires the main domain: the rebasing ledger, the wrapped token
// and the escrowing bridge endpoint.
func BuildMain(p Params) (*Domain, error) {
	p.defaults()
	logger := p.Logger.With("domain", Main)

	table := roles.NewTable(p.Owner)
	d := newDomain(Main, crosschain.SelectorMain, MainLedgerAddress, table, p, logger)
	if err := d.assign(p.Owner, map[roles.Role]common.Address{
		roles.Issuer:     p.Issuer,
		roles.Controller: p.Controller,
		roles.Moderator:  p.Moderator,
	}); err != nil {
		return nil, err
	}

	d.Wrapped = wrapped.New(WrappedAddress, "Wrapped "+p.Metadata.Name, "w"+p.Metadata.Symbol, d.proxy, p.Sink, logger)

	// the endpoint keeps its own admin table; its controller curates the
	// forbidden list
	bridgeTable := roles.NewTable(p.Owner)
	for r, who := range map[roles.Role]common.Address{
		roles.Messager:   p.Messager,
		roles.Controller: p.Controller,
	} {
		if _, err := bridgeTable.Assign(p.Owner, r, who); err != nil {
			return nil, fmt.Errorf("assign bridge %s: %w", r, err)
		}
	}
	d.Forbidden = crosschain.NewForbidden(bridgeTable, p.Sink)
	d.Endpoint = crosschain.NewEndpoint(MainBridgeAddress, bridgeTable, d.Forbidden,
		crosschain.NewMainCustody(MainBridgeAddress, d.Wrapped, d.proxy),
		endpointOptions(p, logger)...)

	// the adapter and the escrow hold ledger value
	for _, infra := range []common.Address{WrappedAddress, MainBridgeAddress} {
		if err := d.Permissions.Grant(p.Moderator, infra); err != nil {
			return nil, fmt.Errorf("grant %s: %w", infra.Hex(), err)
		}
	}

	if err := d.finish(p, MainTimelockAddress, crosschain.WithRateSource(d.Wrapped.AmountPerUnit)); err != nil {
		return nil, err
	}
	logger.Infow("Domain ready",
		"ledger", d.Address.Hex(),
		"wrapped", WrappedAddress.Hex(),
		"bridge", MainBridgeAddress.Hex(),
		"timelock", p.Timelock != nil,
	)
	return d, nil
}

// BuildSide wires the side domain: a rebasing clone minted and burnt by its
// bridge endpoint and guarded by the endpoint's forbidden list.
func BuildSide(p Params) (*Domain, error) {
	p.defaults()
	logger := p.Logger.With("domain", Side)

	table := roles.NewTable(p.Owner)
	forbidden := crosschain.NewForbidden(table, p.Sink)
	d := newDomain(Side, crosschain.SelectorSide, SideLedgerAddress, table, p, logger,
		ledger.WithGuard(forbidden))
	d.Forbidden = forbidden
	if err := d.assign(p.Owner, map[roles.Role]common.Address{
		roles.Controller: p.Controller,
		roles.Moderator:  p.Moderator,
		roles.Messager:   p.Messager,
		roles.Bridge:     SideBridgeAddress,
	}); err != nil {
		return nil, err
	}

	d.Endpoint = crosschain.NewEndpoint(SideBridgeAddress, table, forbidden,
		crosschain.NewSideCustody(SideBridgeAddress, d.proxy),
		endpointOptions(p, logger)...)

	if err := d.finish(p, SideTimelockAddress); err != nil {
		return nil, err
	}
	logger.Infow("Domain ready",
		"ledger", d.Address.Hex(),
		"bridge", SideBridgeAddress.Hex(),
		"timelock", p.Timelock != nil,
	)
	return d, nil
}

func newDomain(name string, selector crosschain.ChainSelector, addr common.Address, table *roles.Table, p Params, logger *zap.SugaredLogger, extra ...ledger.Option) *Domain {
	perms := permission.NewRegistry(table, p.Sink)
	opts := append([]ledger.Option{
		ledger.WithClock(p.Clock),
		ledger.WithSink(p.Sink),
		ledger.WithLogger(logger),
		ledger.WithRedemptionPolicy(p.RedemptionPolicy),
		ledger.WithMetadata(p.Metadata),
		ledger.WithDistributionLimits(p.MinDistributeInterval, p.MaxDistributeRatio),
	}, extra...)

	impls := upgrade.NewTable[*ledger.Ledger](table)
	impls.Register(LedgerImpl, ledger.New(table, perms, opts...))

	return &Domain{
		Name:        name,
		Selector:    selector,
		Address:     addr,
		Roles:       table,
		Permissions: perms,
		Ledgers:     impls,
		Documents:   documents.NewStore(table, p.Sink, p.Clock),
		proxy:       ledgerProxy{table: impls, name: LedgerImpl},
		ledgerOpts:  opts,
		sink:        p.Sink,
		logger:      logger,
	}
}

func endpointOptions(p Params, logger *zap.SugaredLogger) []crosschain.Option {
	opts := []crosschain.Option{
		crosschain.WithSink(p.Sink),
		crosschain.WithLogger(logger),
		crosschain.WithSendEnabled(p.SendEnabled),
	}
	if p.Fallback != (common.Address{}) {
		opts = append(opts, crosschain.WithFallback(p.Fallback))
	}
	return opts
}

// finish attaches the messager and, when configured, hands the delayed
// roles to the gateway.
func (d *Domain) finish(p Params, timelockAddr common.Address, extra ...crosschain.MessagerOption) error {
	msgOpts := append([]crosschain.MessagerOption{
		crosschain.WithMessagerSink(p.Sink),
		crosschain.WithMessagerLogger(d.logger),
		crosschain.WithMessagerClock(p.Clock),
	}, extra...)
	if p.Observer != nil {
		msgOpts = append(msgOpts, crosschain.WithObserver(p.Observer))
	}
	d.Messager = crosschain.NewMessager(p.Messager, d.Selector, d.Endpoint, p.Publisher, msgOpts...)

	if p.Timelock == nil {
		return nil
	}
	return d.attachTimelock(p, timelockAddr)
}

func (d *Domain) attachTimelock(p Params, addr common.Address) error {
	tp := p.Timelock
	delays := make(map[[4]byte]time.Duration, len(tp.Delays))
	delegated := make(map[roles.Role]bool)
	for method, delay := range tp.Delays {
		sel, err := ledger.Selector(method)
		if err != nil {
			return fmt.Errorf("timelock delay: %w", err)
		}
		r, ok := methodRoles[method]
		if !ok {
			return fmt.Errorf("timelock delay: method %q cannot be delayed", method)
		}
		delays[sel] = delay
		delegated[r] = true
	}

	proposers := tp.Proposers
	if len(proposers) == 0 {
		proposers = []common.Address{p.Issuer, p.Moderator}
	}
	executors := tp.Executors
	if len(executors) == 0 {
		executors = proposers
	}

	d.Timelock = timelock.New(addr, tp.Admin, proposers, executors, delays,
		timelock.WithClock(p.Clock),
		timelock.WithSink(d.sink),
		timelock.WithLogger(d.logger),
	)
	d.Timelock.RegisterTarget(d.Address, d.proxy)

	// ownership moves last so the other reassignments still pass the owner
	// check
	handover := make([]roles.Role, 0, len(delegated))
	for r := range delegated {
		if r != roles.Owner {
			handover = append(handover, r)
		}
	}
	sort.Slice(handover, func(i, j int) bool { return handover[i] < handover[j] })
	if delegated[roles.Owner] {
		handover = append(handover, roles.Owner)
		// an endpoint sharing the ledger table would otherwise redirect to
		// the gateway, which cannot move what it receives
		if d.Endpoint.Roles() == d.Roles && p.Fallback == (common.Address{}) {
			if err := d.Endpoint.SetFallback(p.Owner, p.Owner); err != nil {
				return fmt.Errorf("pin fallback: %w", err)
			}
		}
	}
	for _, r := range handover {
		if err := d.assign(p.Owner, map[roles.Role]common.Address{r: addr}); err != nil {
			return err
		}
	}
	d.logger.Infow("Admin calls delayed",
		"timelock", addr.Hex(),
		"methods", len(delays),
		"roles", handover,
	)
	return nil
}

func (d *Domain) assign(caller common.Address, holders map[roles.Role]common.Address) error {
	for r, who := range holders {
		changed, err := d.Roles.Assign(caller, r, who)
		if err != nil {
			return fmt.Errorf("assign %s: %w", r, err)
		}
		d.sink.Publish(changed)
	}
	return nil
}

// Link allow-lists the two domains' messagers as each other's peers.
func Link(main, side *Domain) error {
	for _, pair := range [][2]*Domain{{main, side}, {side, main}} {
		local, remote := pair[0], pair[1]
		owner := local.Endpoint.Roles().Holder(roles.Owner)
		if err := local.Messager.SetAllowedPeer(owner, remote.Selector, remote.Messager.Address(), true); err != nil {
			return fmt.Errorf("link %s to %s: %w", local.Name, remote.Name, err)
		}
	}
	return nil
}

// Upgrade installs a fresh ledger implementation carrying the current
// state. Owner only. Writes racing the swap may be lost, so callers pause
// traffic first.
func (d *Domain) Upgrade(caller common.Address) (upgrade.Reset, error) {
	if err := d.Roles.Require(roles.Owner, caller); err != nil {
		return upgrade.Reset{}, err
	}
	next := ledger.New(d.Roles, d.Permissions, d.ledgerOpts...)
	if err := next.Restore(d.Ledger().Snapshot()); err != nil {
		return upgrade.Reset{}, fmt.Errorf("carry ledger state: %w", err)
	}
	reset, err := d.Ledgers.ResetImplementation(caller, LedgerImpl, next)
	if err != nil {
		return upgrade.Reset{}, err
	}
	d.sink.Publish(reset)
	d.logger.Infow("Ledger implementation reset", "version", reset.Version)
	return reset, nil
}
