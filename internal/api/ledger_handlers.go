package api

import (
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/rebasefi/stbt-ledger/internal/calc"
	"github.com/rebasefi/stbt-ledger/internal/domain"
	"github.com/rebasefi/stbt-ledger/internal/roles"
)

func (h *Handler) GetLedgerState(w http.ResponseWriter, r *http.Request) {
	d, ok := h.domain(w, r)
	if !ok {
		return
	}
	l := d.Ledger()
	meta := l.Metadata()
	supply := l.TotalSupply()
	minInterval, maxRatio := l.DistributionLimits()

	holders := make(map[string]common.Address)
	for role, who := range d.Roles.Snapshot() {
		holders[string(role)] = who
	}

	h.writeJSON(w, http.StatusOK, LedgerStateDTO{
		Name:                  meta.Name,
		Symbol:                meta.Symbol,
		Decimals:              meta.Decimals,
		TotalSupply:           supply.Dec(),
		TotalSupplyDisplay:    calc.ToDecimal(supply, int32(meta.Decimals)).String(),
		TotalShares:           l.TotalShares().Dec(),
		LastDistributeTime:    l.LastDistributeTime(),
		MinDistributeInterval: minInterval,
		MaxDistributeRatio:    calc.RatioToDecimal(maxRatio).String(),
		RedemptionPolicy:      string(l.RedemptionPolicy()),
		ImplementationVersion: d.Ledgers.Version(domain.LedgerImpl),
		Roles:                 holders,
	})
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	d, ok := h.domain(w, r)
	if !ok {
		return
	}
	addr, err := pathAddress(r, "address")
	if err != nil {
		h.writeFault(w, err)
		return
	}
	l := d.Ledger()
	balance, err := l.BalanceOf(addr)
	if err != nil {
		h.writeFault(w, err)
		return
	}
	dto := AccountDTO{
		Address:        addr,
		Balance:        balance.Dec(),
		BalanceDisplay: calc.ToDecimal(balance, int32(l.Metadata().Decimals)).String(),
		Shares:         l.SharesOf(addr).Dec(),
		Permission:     d.Permissions.Permission(addr),
		Forbidden:      d.Forbidden.IsForbidden(addr),
	}
	if d.Wrapped != nil {
		dto.WrappedBalance = d.Wrapped.BalanceOf(addr).Dec()
	}
	h.writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) GetAllowance(w http.ResponseWriter, r *http.Request) {
	d, ok := h.domain(w, r)
	if !ok {
		return
	}
	owner, err := pathAddress(r, "owner")
	if err != nil {
		h.writeFault(w, err)
		return
	}
	spender, err := pathAddress(r, "spender")
	if err != nil {
		h.writeFault(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, AllowanceDTO{
		Owner:   owner,
		Spender: spender,
		Amount:  d.Ledger().Allowance(owner, spender).Dec(),
	})
}

// Transfer moves amount from the caller, or from body.from through the
// caller's allowance when from is set.
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	d, caller, ok := h.begin(w, r)
	if !ok {
		return
	}
	var req TransferRequest
	if !h.decode(w, r, &req) {
		return
	}
	op := "transfer"
	if req.From != "" {
		op = "transferFrom"
	}
	h.apply(w, r, op, func() (any, error) {
		to, err := parseAddress("to", req.To)
		if err != nil {
			return nil, err
		}
		amount, err := parseAmount("amount", req.Amount)
		if err != nil {
			return nil, err
		}
		if req.From == "" {
			return nil, d.Ledger().Transfer(caller, to, amount)
		}
		from, err := parseAddress("from", req.From)
		if err != nil {
			return nil, err
		}
		return nil, d.Ledger().TransferFrom(caller, from, to, amount)
	})
}

func (h *Handler) TransferShares(w http.ResponseWriter, r *http.Request) {
	d, caller, ok := h.begin(w, r)
	if !ok {
		return
	}
	var req TransferRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.apply(w, r, "transferShares", func() (any, error) {
		to, err := parseAddress("to", req.To)
		if err != nil {
			return nil, err
		}
		shares, err := parseAmount("amount", req.Amount)
		if err != nil {
			return nil, err
		}
		return nil, d.Ledger().TransferShares(caller, to, shares)
	})
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	h.allowance(w, r, "approve")
}

func (h *Handler) IncreaseAllowance(w http.ResponseWriter, r *http.Request) {
	h.allowance(w, r, "increaseAllowance")
}

func (h *Handler) DecreaseAllowance(w http.ResponseWriter, r *http.Request) {
	h.allowance(w, r, "decreaseAllowance")
}

func (h *Handler) allowance(w http.ResponseWriter, r *http.Request, op string) {
	d, caller, ok := h.begin(w, r)
	if !ok {
		return
	}
	var req ApproveRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.apply(w, r, op, func() (any, error) {
		spender, err := parseAddress("spender", req.Spender)
		if err != nil {
			return nil, err
		}
		amount, err := parseAmount("amount", req.Amount)
		if err != nil {
			return nil, err
		}
		l := d.Ledger()
		switch op {
		case "increaseAllowance":
			return nil, l.IncreaseAllowance(caller, spender, amount)
		case "decreaseAllowance":
			return nil, l.DecreaseAllowance(caller, spender, amount)
		default:
			return nil, l.Approve(caller, spender, amount)
		}
	})
}

func (h *Handler) Issue(w http.ResponseWriter, r *http.Request) {
	d, caller, ok := h.begin(w, r)
	if !ok {
		return
	}
	var req IssueRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.apply(w, r, "issue", func() (any, error) {
		to, err := parseAddress("to", req.To)
		if err != nil {
			return nil, err
		}
		amount, err := parseAmount("amount", req.Amount)
		if err != nil {
			return nil, err
		}
		data, err := parseData("data", req.Data)
		if err != nil {
			return nil, err
		}
		return nil, d.Ledger().Issue(caller, to, amount, data)
	})
}

// Redeem burns the caller's own holding, or holder's through the caller's
// allowance when holder is set.
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	d, caller, ok := h.begin(w, r)
	if !ok {
		return
	}
	var req RedeemRequest
	if !h.decode(w, r, &req) {
		return
	}
	op := "redeem"
	if req.Holder != "" {
		op = "redeemFrom"
	}
	h.apply(w, r, op, func() (any, error) {
		amount, err := parseAmount("amount", req.Amount)
		if err != nil {
			return nil, err
		}
		data, err := parseData("data", req.Data)
		if err != nil {
			return nil, err
		}
		if req.Holder == "" {
			return nil, d.Ledger().Redeem(caller, amount, data)
		}
		holder, err := parseAddress("holder", req.Holder)
		if err != nil {
			return nil, err
		}
		return nil, d.Ledger().RedeemFrom(caller, holder, amount, data)
	})
}

func (h *Handler) ControllerTransfer(w http.ResponseWriter, r *http.Request) {
	d, caller, ok := h.begin(w, r)
	if !ok {
		return
	}
	var req ControllerRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.apply(w, r, "controllerTransfer", func() (any, error) {
		from, err := parseAddress("from", req.From)
		if err != nil {
			return nil, err
		}
		to, err := parseAddress("to", req.To)
		if err != nil {
			return nil, err
		}
		amount, data, opData, err := controllerArgs(req)
		if err != nil {
			return nil, err
		}
		return nil, d.Ledger().ControllerTransfer(caller, from, to, amount, data, opData)
	})
}

func (h *Handler) ControllerRedeem(w http.ResponseWriter, r *http.Request) {
	d, caller, ok := h.begin(w, r)
	if !ok {
		return
	}
	var req ControllerRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.apply(w, r, "controllerRedeem", func() (any, error) {
		holder, err := parseAddress("from", req.From)
		if err != nil {
			return nil, err
		}
		amount, data, opData, err := controllerArgs(req)
		if err != nil {
			return nil, err
		}
		return nil, d.Ledger().ControllerRedeem(caller, holder, amount, data, opData)
	})
}

func (h *Handler) DistributeInterests(w http.ResponseWriter, r *http.Request) {
	d, caller, ok := h.begin(w, r)
	if !ok {
		return
	}
	var req DistributeRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.apply(w, r, "distributeInterests", func() (any, error) {
		delta, err := calc.ParseSigned(req.Delta)
		if err != nil {
			return nil, badInput("delta: %v", err)
		}
		return nil, d.Ledger().DistributeInterests(caller, delta, req.RangeStart, req.RangeEnd)
	})
}

// CanTransfer simulates a transfer, through spender's allowance when set.
func (h *Handler) CanTransfer(w http.ResponseWriter, r *http.Request) {
	d, ok := h.domain(w, r)
	if !ok {
		return
	}
	var req CanTransferRequest
	if !h.decode(w, r, &req) {
		return
	}
	from, err := parseAddress("from", req.From)
	if err != nil {
		h.writeFault(w, err)
		return
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		h.writeFault(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		h.writeFault(w, err)
		return
	}

	res := d.Ledger().CanTransfer(from, to, amount)
	if req.Spender != "" {
		spender, err := parseAddress("spender", req.Spender)
		if err != nil {
			h.writeFault(w, err)
			return
		}
		res = d.Ledger().CanTransferFrom(spender, from, to, amount)
	}
	h.writeJSON(w, http.StatusOK, CanTransferDTO{
		OK:     res.OK,
		Status: res.Status.String(),
		Code:   fmt.Sprintf("0x%02x", byte(res.Status)),
		Reason: res.Reason.Bytes32(),
		Text:   string(res.Reason),
	})
}

// SetRole assigns a ledger role. Owner only.
func (h *Handler) SetRole(w http.ResponseWriter, r *http.Request) {
	d, caller, ok := h.begin(w, r)
	if !ok {
		return
	}
	var req RoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.apply(w, r, "setRole", func() (any, error) {
		who, err := parseAddress("address", req.Address)
		if err != nil {
			return nil, err
		}
		l := d.Ledger()
		switch roles.Role(req.Role) {
		case roles.Owner:
			return nil, l.TransferOwnership(caller, who)
		case roles.Issuer:
			return nil, l.SetIssuer(caller, who)
		case roles.Controller:
			return nil, l.SetController(caller, who)
		case roles.Moderator:
			return nil, l.SetModerator(caller, who)
		case roles.Bridge:
			return nil, l.SetBridge(caller, who)
		default:
			return nil, badInput("role: %q cannot be assigned on the ledger", req.Role)
		}
	})
}

func (h *Handler) SetLimits(w http.ResponseWriter, r *http.Request) {
	d, caller, ok := h.begin(w, r)
	if !ok {
		return
	}
	var req LimitsRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.apply(w, r, "setDistributionLimits", func() (any, error) {
		l := d.Ledger()
		if req.MaxDistributeRatio != "" {
			frac, err := decimal.NewFromString(req.MaxDistributeRatio)
			if err != nil {
				return nil, badInput("maxDistributeRatio: %v", err)
			}
			ratio, err := calc.RatioFromDecimal(frac)
			if err != nil {
				return nil, badInput("maxDistributeRatio: %v", err)
			}
			if err := l.SetMaxDistributeRatio(caller, ratio); err != nil {
				return nil, err
			}
		}
		if req.MinDistributeInterval != nil {
			if err := l.SetMinDistributeInterval(caller, *req.MinDistributeInterval); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
}

// Upgrade resets the ledger implementation. Owner only.
func (h *Handler) Upgrade(w http.ResponseWriter, r *http.Request) {
	d, caller, ok := h.begin(w, r)
	if !ok {
		return
	}
	h.apply(w, r, "resetImplementation", func() (any, error) {
		reset, err := d.Upgrade(caller)
		if err != nil {
			return nil, err
		}
		return UpgradeDTO{Name: reset.Name, Version: reset.Version}, nil
	})
}

// begin resolves the domain and the caller of a mutating request.
func (h *Handler) begin(w http.ResponseWriter, r *http.Request) (*domain.Domain, common.Address, bool) {
	d, ok := h.domain(w, r)
	if !ok {
		return nil, common.Address{}, false
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return nil, common.Address{}, false
	}
	return d, caller, true
}

func controllerArgs(req ControllerRequest) (amount *uint256.Int, data, opData []byte, err error) {
	if amount, err = parseAmount("amount", req.Amount); err != nil {
		return nil, nil, nil, err
	}
	if data, err = parseData("data", req.Data); err != nil {
		return nil, nil, nil, err
	}
	if opData, err = parseData("operatorData", req.OperatorData); err != nil {
		return nil, nil, nil, err
	}
	return amount, data, opData, nil
}

func parseData(field, s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, badInput("%s: %v", field, err)
	}
	return b, nil
}
