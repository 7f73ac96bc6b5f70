package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/rebasefi/stbt-ledger/internal/calc"
	"github.com/rebasefi/stbt-ledger/internal/domain"
	"github.com/rebasefi/stbt-ledger/internal/fault"
	"github.com/rebasefi/stbt-ledger/internal/journal"
	"github.com/rebasefi/stbt-ledger/internal/metrics"
	"github.com/rebasefi/stbt-ledger/internal/ws"
)

// CallerHeader names the principal a request acts as.
const CallerHeader = "X-Caller-Address"

const maxBodyBytes = 1 << 20

// Check is a readiness check of one dependency.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

type Handler struct {
	domains map[string]*domain.Domain
	journal journal.Journal
	hub     *ws.Hub
	checks  []Check
	metrics *metrics.Metrics
	logger  *zap.SugaredLogger
	// peer is the default remote messager for bridge sends.
	peer common.Address
}

type Options struct {
	Domains []*domain.Domain
	Journal journal.Journal
	Hub     *ws.Hub
	Checks  []Check
	Metrics *metrics.Metrics
	Logger  *zap.SugaredLogger
	// Peer is the remote messager used when a send names none.
	Peer common.Address
}

func NewHandler(opts Options) *Handler {
	h := &Handler{
		domains: make(map[string]*domain.Domain, len(opts.Domains)),
		journal: opts.Journal,
		hub:     opts.Hub,
		checks:  opts.Checks,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		peer:    opts.Peer,
	}
	if h.logger == nil {
		h.logger = zap.NewNop().Sugar()
	}
	for _, d := range opts.Domains {
		h.domains[d.Name] = d
	}
	return h
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failing := make(map[string]string)
	for _, c := range h.checks {
		if err := c.Probe(ctx); err != nil {
			failing[c.Name] = err.Error()
		}
	}
	if len(failing) > 0 {
		h.logger.Warnw("Readiness check failed", "failing", failing)
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failing": failing})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.hub.HandleWebSocket(w, r)
}

func (h *Handler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	h.hub.HandleSSE(w, r)
}

// ListDomains reports which domains this process hosts.
func (h *Handler) ListDomains(w http.ResponseWriter, r *http.Request) {
	out := make([]DomainDTO, 0, len(h.domains))
	for _, name := range []string{domain.Main, domain.Side} {
		d, ok := h.domains[name]
		if !ok {
			continue
		}
		out = append(out, DomainDTO{
			Name:     d.Name,
			Selector: fmt.Sprintf("%d", uint64(d.Selector)),
			Ledger:   d.Address,
			Bridge:   d.Endpoint.Address(),
			Messager: d.Messager.Address(),
			Wrapped:  d.Wrapped != nil,
			Timelock: d.Timelock != nil,
		})
	}
	h.writeJSON(w, http.StatusOK, out)
}

// ListEvents pages through the journal of one domain.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	d, ok := h.domain(w, r)
	if !ok {
		return
	}
	after, err := queryUint(r, "after", 0)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_QUERY", err.Error())
		return
	}
	limit, err := queryUint(r, "limit", 100)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_QUERY", err.Error())
		return
	}
	entries, err := h.journal.List(r.Context(), d.Name, after, int(limit))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "JOURNAL_ERROR", err.Error())
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	h.writeJSON(w, http.StatusOK, entries)
}

// domain resolves the {domain} path parameter.
func (h *Handler) domain(w http.ResponseWriter, r *http.Request) (*domain.Domain, bool) {
	name := chi.URLParam(r, "domain")
	d, ok := h.domains[name]
	if !ok {
		h.writeError(w, http.StatusNotFound, "UNKNOWN_DOMAIN", fmt.Sprintf("domain %q is not hosted here", name))
		return nil, false
	}
	return d, true
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	raw := r.Header.Get(CallerHeader)
	if !common.IsHexAddress(raw) {
		h.writeError(w, http.StatusBadRequest, "MISSING_CALLER", CallerHeader+" must carry an address")
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

// apply runs a state-changing operation, records it and writes the outcome.
func (h *Handler) apply(w http.ResponseWriter, r *http.Request, op string, fn func() (any, error)) {
	out, err := fn()
	reason := "ok"
	if err != nil {
		reason = fault.ReasonOf(err)
		if reason == "" {
			reason = "error"
		}
	}
	h.metrics.RecordLedgerOp(r.Context(), op, reason)
	if err != nil {
		h.writeFault(w, err)
		return
	}
	if out == nil {
		out = OKDTO{OK: true}
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warnw("Response encode failed", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	if status >= http.StatusInternalServerError {
		h.logger.Errorw("API error", "code", code, "message", message, "status", status)
	}
	writeErrorBody(w, status, code, message)
}

func (h *Handler) writeFault(w http.ResponseWriter, err error) {
	var fe *fault.Error
	if !errors.As(err, &fe) {
		var bad inputError
		if errors.As(err, &bad) {
			h.writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
			return
		}
		h.writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	h.writeError(w, StatusFor(fe.Kind), fe.Reason, err.Error())
}

func writeErrorBody(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Code: code, Message: message})
}

// StatusFor maps a rejection kind to its HTTP status.
func StatusFor(k fault.Kind) int {
	switch k {
	case fault.AuthorizationDenied, fault.PermissionDenied:
		return http.StatusForbidden
	case fault.InsufficientFunds, fault.Arithmetic:
		return http.StatusUnprocessableEntity
	case fault.InvalidArgument:
		return http.StatusBadRequest
	case fault.RateOrBoundViolation:
		return http.StatusTooManyRequests
	case fault.ReplayOrUnknownOperation:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// inputError marks a malformed request field.
type inputError struct{ err error }

func (e inputError) Error() string { return e.err.Error() }
func (e inputError) Unwrap() error { return e.err }

func badInput(format string, args ...any) error {
	return inputError{err: fmt.Errorf(format, args...)}
}

func parseAddress(field, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, badInput("%s: %q is not an address", field, s)
	}
	return common.HexToAddress(s), nil
}

func parseAmount(field, s string) (*uint256.Int, error) {
	v, err := calc.ParseUnits(s)
	if err != nil {
		return nil, badInput("%s: %v", field, err)
	}
	return v, nil
}

func pathAddress(r *http.Request, param string) (common.Address, error) {
	return parseAddress(param, chi.URLParam(r, param))
}

func queryUint(r *http.Request, key string, def uint64) (uint64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not an unsigned integer", key, raw)
	}
	return v, nil
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}
