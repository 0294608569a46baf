package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"dfund/internal/domain"
)

type finalizeFunc func(ctx context.Context, projectID uint64, caller string) (domain.Status, error)

func (a *App) finalizeWith(fn finalizeFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := projectIDParam(r)
		if err != nil {
			a.badRequest(w, r, err.Error())
			return
		}
		outcome, err := fn(r.Context(), id, caller(r))
		if err != nil {
			a.fail(w, r, err)
			return
		}
		a.json(w, http.StatusOK, map[string]any{"project_id": id, "status": outcome.String()})
	}
}

// Finalize settles the project by its recorded totals.
func (a *App) Finalize(w http.ResponseWriter, r *http.Request) {
	a.finalizeWith(a.Ledger.Finalize)(w, r)
}

// Release settles the project only if the goal was met.
func (a *App) Release(w http.ResponseWriter, r *http.Request) {
	a.finalizeWith(a.Ledger.ReleaseFunds)(w, r)
}

// Refund settles the project only if the goal was missed.
func (a *App) Refund(w http.ResponseWriter, r *http.Request) {
	a.finalizeWith(a.Ledger.Refund)(w, r)
}

// RefundClaim pays the caller's contribution back from a refunding project.
func (a *App) RefundClaim(w http.ResponseWriter, r *http.Request) {
	id, err := projectIDParam(r)
	if err != nil {
		a.badRequest(w, r, err.Error())
		return
	}
	donor := caller(r)
	amount, err := a.Ledger.ClaimRefund(r.Context(), id, donor)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"project_id": id, "donor": donor, "amount": amount})
}

func (a *App) AccountBalance(w http.ResponseWriter, r *http.Request) {
	account := strings.TrimSpace(chi.URLParam(r, "account"))
	if account == "" {
		a.badRequest(w, r, "account is required")
		return
	}
	balance, err := a.Ledger.AccountBalance(r.Context(), account)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"account": account, "balance": balance})
}
