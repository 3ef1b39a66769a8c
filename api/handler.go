// Package api exposes a local node over HTTP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ignasirv/zkVaccionation/identity"
	"github.com/ignasirv/zkVaccionation/state"
	"github.com/ignasirv/zkVaccionation/zkapp"
)

// maxAttempts bounds how often a stale transaction is rebuilt against fresh state.
const maxAttempts = 3

type Contract interface {
	State(ctx context.Context) (state.Snapshot, error)
	AddVaccination(ctx context.Context, signer identity.Credential) (*zkapp.Transaction, error)
	CheckVaccination(ctx context.Context) (*zkapp.Transaction, error)
	Send(ctx context.Context, tx *zkapp.Transaction) (zkapp.Receipt, error)
}

type Handler struct {
	contract Contract
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

func New(contract Contract, gatherer prometheus.Gatherer, logger *slog.Logger) *Handler {
	return &Handler{contract: contract, gatherer: gatherer, logger: logger}
}

// Router returns the node routes with request ids and panic recovery.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	h.Register(r)
	return r
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/state", h.HandleState)
	r.Post("/vaccinations", h.HandleAddVaccination)
	r.Post("/check", h.HandleCheckVaccination)
	if h.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}
}

type StateResponse struct {
	Issuer              identity.PublicKey `json:"issuer"`
	VaccinationCount    uint64             `json:"vaccinationCount"`
	LastVaccinationTime uint64             `json:"lastVaccinationTime"`
	Commitment          string             `json:"commitment"`
}

type AddVaccinationRequest struct {
	// Credential is the hex secret of the signing authority.
	Credential string `json:"credential"`
}

type CheckResponse struct {
	Valid   bool          `json:"valid"`
	Receipt zkapp.Receipt `json:"receipt"`
}

// HandleState implements GET /state.
func (h *Handler) HandleState(w http.ResponseWriter, r *http.Request) {
	snap, err := h.contract.State(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, newStateResponse(snap))
}

// HandleAddVaccination implements POST /vaccinations.
// Input: { "credential": "0x..." }
// Output: the committed receipt.
func (h *Handler) HandleAddVaccination(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetReqID(ctx)
	r.Body = http.MaxBytesReader(w, r.Body, 4*1024)

	var req AddVaccinationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode add vaccination request",
			"error", err,
			"request_id", requestID,
		)
		WriteError(w, fmt.Errorf("%w: invalid JSON in request body", errBadRequest))
		return
	}
	cred, err := identity.ParseCredential(req.Credential)
	if err != nil {
		WriteError(w, err)
		return
	}

	receipt, err := h.send(ctx, func() (*zkapp.Transaction, error) {
		return h.contract.AddVaccination(ctx, cred)
	})
	if err != nil {
		h.logger.WarnContext(ctx, "add vaccination failed", "error", err, "request_id", requestID)
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, receipt)
}

// HandleCheckVaccination implements POST /check. An invalid certificate is a 422 with the
// failed checks in error_description.
func (h *Handler) HandleCheckVaccination(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	receipt, err := h.send(ctx, func() (*zkapp.Transaction, error) {
		return h.contract.CheckVaccination(ctx)
	})
	if err != nil {
		h.logger.InfoContext(ctx, "check vaccination failed", "error", err, "request_id", middleware.GetReqID(ctx))
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, CheckResponse{Valid: true, Receipt: receipt})
}

// send builds and submits a transaction, rebuilding it while the rejection is retryable.
func (h *Handler) send(ctx context.Context, build func() (*zkapp.Transaction, error)) (zkapp.Receipt, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		tx, err := build()
		if err != nil {
			return zkapp.Receipt{}, err
		}
		receipt, err := h.contract.Send(ctx, tx)
		if err == nil || !zkapp.IsRetryable(err) {
			return receipt, err
		}
		h.logger.DebugContext(ctx, "retrying stale transaction", "tx_id", tx.ID, "attempt", attempt)
		lastErr = err
	}
	return zkapp.Receipt{}, lastErr
}

func newStateResponse(snap state.Snapshot) StateResponse {
	issuer, _ := snap.Issuer()
	count, _ := snap.VaccinationCount()
	last, _ := snap.LastVaccinationTime()
	return StateResponse{
		Issuer:              issuer,
		VaccinationCount:    count,
		LastVaccinationTime: last,
		Commitment:          hexutil.EncodeBig(snap.Commitment()),
	}
}

