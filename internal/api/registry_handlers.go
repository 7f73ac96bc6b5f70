package api

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/rebasefi/stbt-ledger/internal/documents"
	"github.com/rebasefi/stbt-ledger/internal/domain"
	"github.com/rebasefi/stbt-ledger/internal/permission"
)

func (h *Handler) GetPermission(w http.ResponseWriter, r *http.Request) {
	d, ok := h.domain(w, r)
	if !ok {
		return
	}
	addr, err := pathAddress(r, "address")
	if err != nil {
		h.writeFault(w, err)
		return
	}
	p, found := d.Permissions.Lookup(addr)
	now := d.Ledger().Now()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"address":    addr,
		"recorded":   found,
		"permission": p,
		"canSend":    d.Permissions.IsSendAllowed(addr, now),
		"canReceive": d.Permissions.IsReceiveAllowed(addr, now),
	})
}

// SetPermission records an account's tuple. Moderator only.
func (h *Handler) SetPermission(w http.ResponseWriter, r *http.Request) {
	d, caller, ok := h.begin(w, r)
	if !ok {
		return
	}
	var req PermissionRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.apply(w, r, "setPermission", func() (any, error) {
		addr, err := pathAddress(r, "address")
		if err != nil {
			return nil, err
		}
		return nil, d.Permissions.SetPermission(caller, addr, permission.Permission{
			SendAllowed:    req.SendAllowed,
			ReceiveAllowed: req.ReceiveAllowed,
			Expiry:         req.ExpiryTime,
		})
	})
}

func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	d, ok := h.domain(w, r)
	if !ok {
		return
	}
	names := d.Documents.GetAllDocuments()
	out := make([]documents.Document, 0, len(names))
	for _, n := range names {
		if doc, ok := d.Documents.GetDocument(n); ok {
			out = append(out, doc)
		}
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	d, ok := h.domain(w, r)
	if !ok {
		return
	}
	doc, found := d.Documents.GetDocument(documentName(r))
	if !found {
		h.writeError(w, http.StatusNotFound, documents.ErrNotExist.Reason, "document not found")
		return
	}
	h.writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) SetDocument(w http.ResponseWriter, r *http.Request) {
	d, caller, ok := h.begin(w, r)
	if !ok {
		return
	}
	var req DocumentRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.apply(w, r, "setDocument", func() (any, error) {
		var hash common.Hash
		if req.DocumentHash != "" {
			b, err := parseData("documentHash", req.DocumentHash)
			if err != nil {
				return nil, err
			}
			if len(b) != common.HashLength {
				return nil, badInput("documentHash: want %d bytes, got %d", common.HashLength, len(b))
			}
			hash = common.BytesToHash(b)
		}
		return nil, d.Documents.SetDocument(caller, documentName(r), req.URI, hash)
	})
}

func (h *Handler) RemoveDocument(w http.ResponseWriter, r *http.Request) {
	d, caller, ok := h.begin(w, r)
	if !ok {
		return
	}
	h.apply(w, r, "removeDocument", func() (any, error) {
		return nil, d.Documents.RemoveDocument(caller, documentName(r))
	})
}

// documentName accepts a 0x-prefixed bytes32 or a short label.
func documentName(r *http.Request) common.Hash {
	raw := chi.URLParam(r, "name")
	if len(raw) == 2+2*common.HashLength && raw[:2] == "0x" {
		return common.HexToHash(raw)
	}
	return documents.Name(raw)
}

func (h *Handler) GetWrapped(w http.ResponseWriter, r *http.Request) {
	d, ok := h.wrappedDomain(w, r)
	if !ok {
		return
	}
	t := d.Wrapped
	per, err := t.AmountPerUnit()
	if err != nil {
		h.writeFault(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, WrappedStateDTO{
		Address:       t.Address(),
		Name:          t.Name(),
		Symbol:        t.Symbol(),
		TotalSupply:   t.TotalSupply().Dec(),
		AmountPerUnit: per.Dec(),
	})
}

// Wrap needs the caller's ledger allowance to the wrapped token.
func (h *Handler) Wrap(w http.ResponseWriter, r *http.Request) {
	h.wrapOp(w, r, "wrap")
}

func (h *Handler) Unwrap(w http.ResponseWriter, r *http.Request) {
	h.wrapOp(w, r, "unwrap")
}

func (h *Handler) wrapOp(w http.ResponseWriter, r *http.Request, op string) {
	d, ok := h.wrappedDomain(w, r)
	if !ok {
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req WrapRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.apply(w, r, op, func() (any, error) {
		in, err := parseAmount("amount", req.Amount)
		if err != nil {
			return nil, err
		}
		if op == "wrap" {
			units, err := d.Wrapped.Wrap(caller, in)
			if err != nil {
				return nil, err
			}
			return WrapDTO{Amount: in.Dec(), Units: units.Dec()}, nil
		}
		amount, err := d.Wrapped.Unwrap(caller, in)
		if err != nil {
			return nil, err
		}
		return WrapDTO{Amount: amount.Dec(), Units: in.Dec()}, nil
	})
}

func (h *Handler) WrappedTransfer(w http.ResponseWriter, r *http.Request) {
	d, ok := h.wrappedDomain(w, r)
	if !ok {
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req TransferRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.apply(w, r, "wrappedTransfer", func() (any, error) {
		to, err := parseAddress("to", req.To)
		if err != nil {
			return nil, err
		}
		units, err := parseAmount("amount", req.Amount)
		if err != nil {
			return nil, err
		}
		if req.From == "" {
			return nil, d.Wrapped.Transfer(caller, to, units)
		}
		from, err := parseAddress("from", req.From)
		if err != nil {
			return nil, err
		}
		return nil, d.Wrapped.TransferFrom(caller, from, to, units)
	})
}

func (h *Handler) WrappedApprove(w http.ResponseWriter, r *http.Request) {
	d, ok := h.wrappedDomain(w, r)
	if !ok {
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req ApproveRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.apply(w, r, "wrappedApprove", func() (any, error) {
		spender, err := parseAddress("spender", req.Spender)
		if err != nil {
			return nil, err
		}
		units, err := parseAmount("amount", req.Amount)
		if err != nil {
			return nil, err
		}
		return nil, d.Wrapped.Approve(caller, spender, units)
	})
}

func (h *Handler) wrappedDomain(w http.ResponseWriter, r *http.Request) (*domain.Domain, bool) {
	d, ok := h.domain(w, r)
	if !ok {
		return nil, false
	}
	if d.Wrapped == nil {
		h.writeError(w, http.StatusNotFound, "NO_WRAPPED_TOKEN", "domain "+d.Name+" has no wrapped token")
		return nil, false
	}
	return d, true
}
