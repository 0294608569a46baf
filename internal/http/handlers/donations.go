package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"dfund/internal/domain"
	"dfund/internal/ledger"
	"dfund/internal/middleware"
)

type donationRequest struct {
	Amount int64 `json:"amount"`
}

// DonationsCreate escrows a donation from the caller. The donor country
// resolved by the I18N middleware is recorded in the journal.
func (a *App) DonationsCreate(w http.ResponseWriter, r *http.Request) {
	id, err := projectIDParam(r)
	if err != nil {
		a.badRequest(w, r, err.Error())
		return
	}
	var req donationRequest
	if err := decodeJSON(r, &req); err != nil {
		a.badRequest(w, r, err.Error())
		return
	}
	donor := caller(r)
	total, err := a.Ledger.Donate(r.Context(), ledger.DonateInput{
		ProjectID: id,
		Donor:     donor,
		Amount:    req.Amount,
		Country:   middleware.CountryFromContext(r.Context()),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	contribution, err := a.Ledger.ContributionOf(r.Context(), id, donor)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, map[string]any{
		"project_id":    id,
		"donor":         donor,
		"amount":        req.Amount,
		"total_donated": total,
		"contribution":  contribution,
	})
}

func (a *App) DonationsTotal(w http.ResponseWriter, r *http.Request) {
	id, err := projectIDParam(r)
	if err != nil {
		a.badRequest(w, r, err.Error())
		return
	}
	total, err := a.Ledger.TotalDonated(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"project_id": id, "total_donated": total})
}

func (a *App) ProjectBalance(w http.ResponseWriter, r *http.Request) {
	id, err := projectIDParam(r)
	if err != nil {
		a.badRequest(w, r, err.Error())
		return
	}
	balance, err := a.Ledger.ProjectBalance(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"project_id": id, "balance": balance})
}

// ContributionGet returns the donor's current contribution. Donors who never
// gave read as zero.
func (a *App) ContributionGet(w http.ResponseWriter, r *http.Request) {
	id, err := projectIDParam(r)
	if err != nil {
		a.badRequest(w, r, err.Error())
		return
	}
	donor := strings.TrimSpace(chi.URLParam(r, "donor"))
	amount, err := a.Ledger.ContributionOf(r.Context(), id, donor)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"project_id": id, "donor": donor, "amount": amount})
}

type entryView struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Account   string    `json:"account"`
	Amount    int64     `json:"amount"`
	Country   string    `json:"country,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// LedgerList returns the project's journal in append order.
func (a *App) LedgerList(w http.ResponseWriter, r *http.Request) {
	id, err := projectIDParam(r)
	if err != nil {
		a.badRequest(w, r, err.Error())
		return
	}
	entries, err := a.Ledger.LedgerEntries(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	items := make([]entryView, 0, len(entries))
	for _, e := range entries {
		items = append(items, toEntryView(e))
	}
	a.json(w, http.StatusOK, map[string]any{"project_id": id, "items": items})
}

func toEntryView(e domain.LedgerEntry) entryView {
	return entryView{
		ID:        e.ID,
		Kind:      string(e.Kind),
		Account:   e.Account,
		Amount:    e.Amount,
		Country:   e.Country,
		CreatedAt: e.CreatedAt,
	}
}
