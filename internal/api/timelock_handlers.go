package api

import (
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/rebasefi/stbt-ledger/internal/domain"
	"github.com/rebasefi/stbt-ledger/internal/timelock"
)

func (h *Handler) Schedule(w http.ResponseWriter, r *http.Request) {
	d, caller, ok := h.timelockRequest(w, r)
	if !ok {
		return
	}
	var req ScheduleRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.apply(w, r, "schedule", func() (any, error) {
		target, pred, salt, err := operationArgs(d, req)
		if err != nil {
			return nil, err
		}
		delay := time.Duration(req.DelaySeconds) * time.Second
		id, err := d.Timelock.Schedule(caller, target, req.Data, pred, salt, delay)
		if err != nil {
			return nil, err
		}
		return h.operation(d, id), nil
	})
}

func (h *Handler) Execute(w http.ResponseWriter, r *http.Request) {
	d, caller, ok := h.timelockRequest(w, r)
	if !ok {
		return
	}
	var req ScheduleRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.apply(w, r, "execute", func() (any, error) {
		target, pred, salt, err := operationArgs(d, req)
		if err != nil {
			return nil, err
		}
		if err := d.Timelock.Execute(caller, target, req.Data, pred, salt); err != nil {
			return nil, err
		}
		id, err := timelock.HashOperation(target, req.Data, pred, salt)
		if err != nil {
			return nil, err
		}
		return h.operation(d, id), nil
	})
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	d, caller, ok := h.timelockRequest(w, r)
	if !ok {
		return
	}
	var req CancelRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.apply(w, r, "cancel", func() (any, error) {
		id, err := parseHash("id", req.ID)
		if err != nil {
			return nil, err
		}
		return nil, d.Timelock.Cancel(caller, id)
	})
}

func (h *Handler) GetOperation(w http.ResponseWriter, r *http.Request) {
	d, ok := h.domain(w, r)
	if !ok {
		return
	}
	if d.Timelock == nil {
		h.writeError(w, http.StatusNotFound, "NO_TIMELOCK", "domain "+d.Name+" has no timelock")
		return
	}
	id, err := parseHash("id", chi.URLParam(r, "id"))
	if err != nil {
		h.writeFault(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.operation(d, id))
}

func (h *Handler) operation(d *domain.Domain, id common.Hash) OperationDTO {
	return OperationDTO{
		ID:        id,
		Timestamp: d.Timelock.Timestamp(id),
		Pending:   d.Timelock.IsOperationPending(id),
		Ready:     d.Timelock.IsOperationReady(id),
		Done:      d.Timelock.IsOperationDone(id),
	}
}

func (h *Handler) timelockRequest(w http.ResponseWriter, r *http.Request) (*domain.Domain, common.Address, bool) {
	d, caller, ok := h.begin(w, r)
	if !ok {
		return nil, common.Address{}, false
	}
	if d.Timelock == nil {
		h.writeError(w, http.StatusNotFound, "NO_TIMELOCK", "domain "+d.Name+" has no timelock")
		return nil, common.Address{}, false
	}
	return d, caller, true
}

// operationArgs defaults the target to the domain's ledger.
func operationArgs(d *domain.Domain, req ScheduleRequest) (target common.Address, pred, salt common.Hash, err error) {
	target = d.Address
	if req.Target != "" {
		if target, err = parseAddress("target", req.Target); err != nil {
			return
		}
	}
	if req.Predecessor != "" {
		if pred, err = parseHash("predecessor", req.Predecessor); err != nil {
			return
		}
	}
	if req.Salt != "" {
		salt, err = parseHash("salt", req.Salt)
	}
	return
}

func parseHash(field, s string) (common.Hash, error) {
	b, err := parseData(field, s)
	if err != nil {
		return common.Hash{}, err
	}
	if len(b) != common.HashLength {
		return common.Hash{}, badInput("%s: want %d bytes, got %d", field, common.HashLength, len(b))
	}
	return common.BytesToHash(b), nil
}
