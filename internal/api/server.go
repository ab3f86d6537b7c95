// Package api exposes the ledger over HTTP. Routing and identity are thin
// plumbing: a verified (userId, role) pair arrives from the external
// authorization gateway in headers and is trusted as-is.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/corebank/ledger-engine/internal/accounts"
	"github.com/corebank/ledger-engine/internal/ledger"
	"github.com/corebank/ledger-engine/internal/models"
)

const (
	headerUserID = "X-User-Id"
	headerRole   = "X-User-Role"

	roleAdmin = "admin"
)

// Server is the HTTP API server.
type Server struct {
	accounts *accounts.Service
	ledger   *ledger.Ledger
	logger   *slog.Logger
}

func NewServer(accounts *accounts.Service, ledger *ledger.Ledger, logger *slog.Logger) *Server {
	return &Server{accounts: accounts, ledger: ledger, logger: logger}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(requireIdentity)

		r.Post("/accounts", s.createAccount)
		r.Get("/accounts", s.listAccounts)
		r.Get("/accounts/{accountNumber}", s.getAccount)
		r.Get("/accounts/{accountNumber}/balance", s.getBalance)
		r.Get("/accounts/{accountNumber}/transactions", s.listAccountTransactions)
		r.Post("/accounts/{accountNumber}/fund", s.fundAccount)
		r.Patch("/accounts/{accountNumber}/freeze", s.freezeAccount)
		r.Patch("/accounts/{accountNumber}/unfreeze", s.unfreezeAccount)
		r.Patch("/accounts/{accountNumber}/close", s.closeAccount)
		r.Delete("/accounts/{accountNumber}", s.deleteAccount)

		r.Post("/transactions", s.postTransaction)
		r.Get("/transactions", s.listUserTransactions)
		r.Get("/transactions/{id}", s.getTransaction)
	})

	return r
}

// requireIdentity demands the verified identity headers set by the gateway.
// Verification itself happened upstream; absence is the only rejection here.
func requireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(headerUserID) == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func userID(r *http.Request) string { return r.Header.Get(headerUserID) }
func role(r *http.Request) string   { return r.Header.Get(headerRole) }

type createAccountRequest struct {
	AccountType models.AccountType `json:"accountType"`
}

func (s *Server) createAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}

	account, err := s.accounts.Create(r.Context(), userID(r), req.AccountType)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	list, err := s.accounts.ListByOwner(r.Context(), userID(r))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if list == nil {
		list = []models.Account{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	account, err := s.accounts.GetByNumber(r.Context(), chi.URLParam(r, "accountNumber"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	accountNumber := chi.URLParam(r, "accountNumber")
	balance, err := s.accounts.Balance(r.Context(), accountNumber, userID(r))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"accountNumber": accountNumber,
		"balance":       balance,
	})
}

type fundRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (s *Server) fundAccount(w http.ResponseWriter, r *http.Request) {
	var req fundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}

	account, err := s.accounts.Fund(r.Context(), chi.URLParam(r, "accountNumber"), userID(r), req.Amount)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (s *Server) freezeAccount(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.accounts.Freeze)
}

func (s *Server) unfreezeAccount(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.accounts.Unfreeze)
}

func (s *Server) closeAccount(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.accounts.Close)
}

func (s *Server) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, accountNumber string) (models.Account, error)) {
	account, err := op(r.Context(), chi.URLParam(r, "accountNumber"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (s *Server) deleteAccount(w http.ResponseWriter, r *http.Request) {
	if role(r) != roleAdmin {
		writeError(w, http.StatusForbidden, "forbidden", "admin role required")
		return
	}
	if err := s.accounts.Delete(r.Context(), chi.URLParam(r, "accountNumber")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) postTransaction(w http.ResponseWriter, r *http.Request) {
	var req ledger.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}
	req.InitiatorUserID = userID(r)

	tx, err := s.ledger.PostTransaction(r.Context(), req)
	if err != nil {
		status, code, message := classify(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("transaction request failed", "error", err)
		}
		writeJSON(w, status, map[string]any{
			"error":       message,
			"code":        code,
			"transaction": txOrNil(tx),
		})
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

// txOrNil keeps the failed audit record out of the body for requests that
// never produced one (validation rejections).
func txOrNil(tx models.Transaction) any {
	if tx.ID == "" {
		return nil
	}
	return tx
}

func (s *Server) getTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := s.ledger.GetTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) listUserTransactions(w http.ResponseWriter, r *http.Request) {
	list, err := s.ledger.UserTransactions(r.Context(), userID(r))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if list == nil {
		list = []models.Transaction{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) listAccountTransactions(w http.ResponseWriter, r *http.Request) {
	list, err := s.ledger.AccountTransactions(r.Context(), chi.URLParam(r, "accountNumber"), userID(r))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if list == nil {
		list = []models.Transaction{}
	}
	writeJSON(w, http.StatusOK, list)
}

// classify maps a domain error to HTTP status, machine-readable code and the
// message callers see. Internal faults stay generic.
func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, models.ErrInvalidAmount),
		errors.Is(err, models.ErrInvalidAccountType),
		errors.Is(err, models.ErrInvalidTransactionType),
		errors.Is(err, models.ErrMissingAccountRef),
		errors.Is(err, models.ErrUnexpectedAccountRef):
		return http.StatusBadRequest, "validation_error", err.Error()
	case errors.Is(err, models.ErrAccountNotFound),
		errors.Is(err, models.ErrTransactionNotFound),
		errors.Is(err, models.ErrAccessDenied):
		return http.StatusNotFound, "not_found", err.Error()
	case errors.Is(err, models.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, "insufficient_funds", err.Error()
	case errors.Is(err, models.ErrAlreadyFrozenOrClosed),
		errors.Is(err, models.ErrNotFrozen),
		errors.Is(err, models.ErrMustBeFrozenFirst),
		errors.Is(err, models.ErrStatusConflict),
		errors.Is(err, models.ErrAccountNotActive):
		return http.StatusConflict, "conflict", err.Error()
	default:
		return http.StatusInternalServerError, "internal_error", "internal error"
	}
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	status, code, message := classify(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeError(w, status, code, message)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": message, "code": code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
