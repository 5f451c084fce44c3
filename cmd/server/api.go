package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"solana-rent-reclaimer/internal/credential"
	"solana-rent-reclaimer/internal/domain"
	"solana-rent-reclaimer/internal/observability"
	"solana-rent-reclaimer/internal/session"
)

// maxCredentialBody bounds the credential request body. A base58 secret key
// is under 100 bytes.
const maxCredentialBody = 1 << 10

type api struct {
	manager *session.Manager
	logger  *zap.Logger
}

func newAPI(m *session.Manager, logger *zap.Logger) *api {
	return &api{manager: m, logger: logger}
}

func (a *api) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/sessions", a.handleSubmitWallet)
	mux.HandleFunc("POST /v1/sessions/{requester}/confirm", a.handleConfirm)
	mux.HandleFunc("POST /v1/sessions/{requester}/credential", a.handleCredential)
	mux.HandleFunc("DELETE /v1/sessions/{requester}", a.handleCancel)
	mux.HandleFunc("GET /v1/sessions/{requester}", a.handleStatus)
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.Handle("GET /metrics", observability.Handler())
	return mux
}

type submitWalletRequest struct {
	Requester string `json:"requester"`
	Wallet    string `json:"wallet"`
}

type quoteResponse struct {
	SessionID             string         `json:"session_id"`
	Wallet                string         `json:"wallet"`
	Candidates            int            `json:"candidates"`
	ByReason              map[string]int `json:"by_reason,omitempty"`
	RefundPerAccount      uint64         `json:"refund_per_account"`
	EstimatedLamports     uint64         `json:"estimated_lamports"`
	EstimatedSOL          string         `json:"estimated_sol"`
	NoReclaimableAccounts bool           `json:"no_reclaimable_accounts"`
	Prompt                string         `json:"prompt,omitempty"`
}

func (a *api) handleSubmitWallet(w http.ResponseWriter, r *http.Request) {
	var req submitWalletRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.Requester == "" {
		writeError(w, http.StatusBadRequest, "requester is required")
		return
	}

	q, err := a.manager.SubmitWallet(r.Context(), req.Requester, req.Wallet)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}

	resp := quoteResponse{
		SessionID:             q.SessionID,
		Wallet:                q.Wallet.String(),
		Candidates:            q.Candidates,
		RefundPerAccount:      uint64(q.RefundPerAccount),
		EstimatedLamports:     uint64(q.EstimatedLamports),
		EstimatedSOL:          q.EstimatedLamports.SOL().String(),
		NoReclaimableAccounts: q.NoReclaimableAccounts,
		Prompt:                q.Prompt,
	}
	if len(q.ByReason) > 0 {
		resp.ByReason = make(map[string]int, len(q.ByReason))
		for reason, n := range q.ByReason {
			resp.ByReason[string(reason)] = n
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type confirmRequest struct {
	Token string `json:"token"`
}

func (a *api) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	res, err := a.manager.Confirm(r.PathValue("requester"), req.Token)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": string(res)})
}

type batchResponse struct {
	Index     int    `json:"index"`
	Signature string `json:"signature,omitempty"`
	Status    string `json:"status"`
	Accounts  int    `json:"accounts"`
	Refund    uint64 `json:"refund_lamports"`
	Reused    bool   `json:"reused,omitempty"`
	Error     string `json:"error,omitempty"`
}

type reportResponse struct {
	AccountsClosed   int             `json:"accounts_closed"`
	AccountsFailed   int             `json:"accounts_failed"`
	RefundedLamports uint64          `json:"refunded_lamports"`
	RefundedSOL      string          `json:"refunded_sol"`
	ConfirmedBatches int             `json:"confirmed_batches"`
	FailedBatches    int             `json:"failed_batches"`
	TimedOutBatches  int             `json:"timed_out_batches"`
	Batches          []batchResponse `json:"batches"`
	Error            string          `json:"error,omitempty"`
}

var errCredentialTooLarge = errors.New("credential too large")

// readCredential reads r into one buffer of limit+1 bytes allocated up front, so
// the secret is never copied by a growing buffer. The caller wipes buf; the
// body is buf[:n].
func readCredential(r io.Reader, limit int) (buf []byte, n int, err error) {
	buf = make([]byte, limit+1)
	n, err = io.ReadFull(r, buf)
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return buf, n, nil
	case err != nil:
		return buf, n, err
	}
	return buf, n, errCredentialTooLarge
}

// handleCredential takes the raw secret key as the request body. The body
// buffer is zeroed before the handler returns.
func (a *api) handleCredential(w http.ResponseWriter, r *http.Request) {
	buf, n, err := readCredential(r.Body, maxCredentialBody)
	defer credential.Wipe(buf)
	switch {
	case errors.Is(err, errCredentialTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	report, err := a.manager.ProvideCredential(r.Context(), r.PathValue("requester"), bytes.TrimSpace(buf[:n]))
	if report == nil {
		a.writeDomainError(w, err)
		return
	}

	resp := reportResponse{
		AccountsClosed:   report.AccountsClosed,
		AccountsFailed:   report.AccountsFailed,
		RefundedLamports: uint64(report.RefundedLamports),
		RefundedSOL:      report.RefundedLamports.SOL().String(),
		ConfirmedBatches: report.ConfirmedBatches,
		FailedBatches:    report.FailedBatches,
		TimedOutBatches:  report.TimedOutBatches,
		Batches:          make([]batchResponse, 0, len(report.Outcomes)),
	}
	for _, o := range report.Outcomes {
		resp.Batches = append(resp.Batches, batchResponse{
			Index:     o.Index,
			Signature: o.Signature,
			Status:    o.Status.String(),
			Accounts:  o.Accounts,
			Refund:    uint64(o.Refund),
			Reused:    o.Reused,
			Error:     o.Error,
		})
	}
	status := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		if !report.AnyConfirmed() {
			status = http.StatusBadGateway
		}
	}
	writeJSON(w, status, resp)
}

func (a *api) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := a.manager.Cancel(r.PathValue("requester")); err != nil {
		a.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := a.manager.Status(r.PathValue("requester"))
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *api) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"active_sessions": a.manager.Active(),
	})
}

// writeDomainError maps reclamation errors to HTTP statuses.
func (a *api) writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidAddressFormat), errors.Is(err, domain.ErrCredentialFormat):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrCredentialWalletMismatch):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrSessionBusy),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrNotCancellable):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrNetwork):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		a.logger.Error("request failed", zap.Error(err))
	}
	writeError(w, status, err.Error())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
