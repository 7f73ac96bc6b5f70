package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rebasefi/stbt-ledger/internal/crosschain"
	"github.com/rebasefi/stbt-ledger/internal/domain"
)

func (h *Handler) GetBridge(w http.ResponseWriter, r *http.Request) {
	d, ok := h.domain(w, r)
	if !ok {
		return
	}
	e := d.Endpoint
	dto := BridgeStateDTO{
		Endpoint:    e.Address(),
		Kind:        string(e.Kind()),
		Selector:    strconv.FormatUint(uint64(d.Selector), 10),
		Messager:    d.Messager.Address(),
		SendEnabled: e.SendEnabled(),
		Fallback:    e.Fallback(),
		Forbidden:   e.Forbidden().Snapshot(),
	}
	if rate := e.Rate(); rate.AmountPerUnit != nil {
		dto.PriceToSTBT = rate.AmountPerUnit.Dec()
		dto.PriceUpdatedAt = rate.UpdatedAt
	}
	h.writeJSON(w, http.StatusOK, dto)
}

// BridgeSend moves the caller's funds to the other domain through the
// messager and the relay.
func (h *Handler) BridgeSend(w http.ResponseWriter, r *http.Request) {
	d, caller, ok := h.begin(w, r)
	if !ok {
		return
	}
	var req BridgeSendRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.apply(w, r, "bridgeSend", func() (any, error) {
		to, err := parseAddress("to", req.To)
		if err != nil {
			return nil, err
		}
		amount, err := parseAmount("amount", req.Amount)
		if err != nil {
			return nil, err
		}
		dest, err := destination(d, req.Destination)
		if err != nil {
			return nil, err
		}
		peer := h.peer
		if req.Peer != "" {
			if peer, err = parseAddress("peer", req.Peer); err != nil {
				return nil, err
			}
		}
		env, err := d.Messager.TransferToChain(r.Context(), dest, peer, caller, to, amount)
		if err != nil {
			return nil, err
		}
		return env, nil
	})
}

// BridgeReceive applies a payload directly. The caller must hold the
// endpoint's messager role; it is the manual path for replaying a message.
func (h *Handler) BridgeReceive(w http.ResponseWriter, r *http.Request) {
	d, caller, ok := h.begin(w, r)
	if !ok {
		return
	}
	var req BridgeReceiveRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.apply(w, r, "bridgeReceive", func() (any, error) {
		receipt, err := d.Endpoint.ReceiveWithRate(caller, req.Payload, req.Rate)
		if err != nil {
			return nil, err
		}
		if h.journal != nil {
			if err := h.journal.RecordReceipt(r.Context(), d.Name, receipt); err != nil {
				h.logger.Warnw("Receipt not journaled", "domain", d.Name, "error", err)
			}
		}
		return receipt, nil
	})
}

// GetSendData rebuilds the payload a send of from, to, amount produces.
func (h *Handler) GetSendData(w http.ResponseWriter, r *http.Request) {
	d, ok := h.domain(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	from, err := parseAddress("from", q.Get("from"))
	if err != nil {
		h.writeFault(w, err)
		return
	}
	to, err := parseAddress("to", q.Get("to"))
	if err != nil {
		h.writeFault(w, err)
		return
	}
	amount, err := parseAmount("amount", q.Get("amount"))
	if err != nil {
		h.writeFault(w, err)
		return
	}
	payload, err := d.Endpoint.GetCcSendData(from, to, amount)
	if err != nil {
		h.writeFault(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, SendDataDTO{Payload: payload})
}

func (h *Handler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.domain(w, r); !ok {
		return
	}
	receipt, found, err := h.journal.Receipt(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "JOURNAL_ERROR", err.Error())
		return
	}
	if !found {
		h.writeError(w, http.StatusNotFound, "UNKNOWN_ENVELOPE", "no receipt for envelope")
		return
	}
	h.writeJSON(w, http.StatusOK, receipt)
}

// SetForbidden blocks or unblocks an account. Controller only.
func (h *Handler) SetForbidden(w http.ResponseWriter, r *http.Request) {
	d, caller, ok := h.begin(w, r)
	if !ok {
		return
	}
	var req ForbiddenRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.apply(w, r, "setForbidden", func() (any, error) {
		addr, err := pathAddress(r, "address")
		if err != nil {
			return nil, err
		}
		return nil, d.Endpoint.SetForbidden(caller, addr, req.Forbidden)
	})
}

func (h *Handler) SetPeer(w http.ResponseWriter, r *http.Request) {
	d, caller, ok := h.begin(w, r)
	if !ok {
		return
	}
	var req PeerRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.apply(w, r, "setAllowedPeer", func() (any, error) {
		sel, err := parseSelector(req.Selector)
		if err != nil {
			return nil, err
		}
		peer, err := parseAddress("peer", req.Peer)
		if err != nil {
			return nil, err
		}
		return nil, d.Messager.SetAllowedPeer(caller, sel, peer, req.Enabled)
	})
}

func (h *Handler) SetSendEnabled(w http.ResponseWriter, r *http.Request) {
	d, caller, ok := h.begin(w, r)
	if !ok {
		return
	}
	var req SendEnabledRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.apply(w, r, "setSendEnabled", func() (any, error) {
		return nil, d.Endpoint.SetSendEnabled(caller, req.Enabled)
	})
}

func (h *Handler) SetFallback(w http.ResponseWriter, r *http.Request) {
	d, caller, ok := h.begin(w, r)
	if !ok {
		return
	}
	var req FallbackRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.apply(w, r, "setFallback", func() (any, error) {
		account, err := parseAddress("account", req.Account)
		if err != nil {
			return nil, err
		}
		return nil, d.Endpoint.SetFallback(caller, account)
	})
}

func (h *Handler) SetBridgeRole(w http.ResponseWriter, r *http.Request) {
	d, caller, ok := h.begin(w, r)
	if !ok {
		return
	}
	var req RoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.apply(w, r, "setBridgeRole", func() (any, error) {
		who, err := parseAddress("address", req.Address)
		if err != nil {
			return nil, err
		}
		switch req.Role {
		case "messager":
			return nil, d.Endpoint.SetMessager(caller, who)
		case "controller":
			return nil, d.Endpoint.SetController(caller, who)
		default:
			return nil, badInput("role: %q cannot be assigned on the endpoint", req.Role)
		}
	})
}

func destination(d *domain.Domain, name string) (crosschain.ChainSelector, error) {
	switch name {
	case "":
		if d.Selector == crosschain.SelectorMain {
			return crosschain.SelectorSide, nil
		}
		return crosschain.SelectorMain, nil
	case domain.Main:
		return crosschain.SelectorMain, nil
	case domain.Side:
		return crosschain.SelectorSide, nil
	default:
		return 0, badInput("destination: unknown domain %q", name)
	}
}

// parseSelector accepts a domain name or a decimal chain selector.
func parseSelector(s string) (crosschain.ChainSelector, error) {
	switch s {
	case domain.Main:
		return crosschain.SelectorMain, nil
	case domain.Side:
		return crosschain.SelectorSide, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, badInput("selector: %q is neither a domain nor a selector", s)
	}
	return crosschain.ChainSelector(v), nil
}
