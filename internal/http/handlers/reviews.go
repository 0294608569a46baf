package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"dfund/internal/domain"
	"dfund/internal/ledger"
)

type reviewWindowRequest struct {
	VotingDeadline time.Time `json:"voting_deadline"`
}

type reviewRequest struct {
	IsPositive bool   `json:"is_positive"`
	Comment    string `json:"comment"`
}

type reviewView struct {
	Reviewer    string    `json:"reviewer"`
	IsPositive  bool      `json:"is_positive"`
	Comment     string    `json:"comment"`
	SubmittedAt time.Time `json:"submitted_at"`
}

func toReviewView(v domain.ReviewVote) reviewView {
	return reviewView{
		Reviewer:    v.Reviewer,
		IsPositive:  v.IsPositive,
		Comment:     v.Comment,
		SubmittedAt: v.SubmittedAt,
	}
}

// ReviewWindowOpen lets the creator open the review window.
func (a *App) ReviewWindowOpen(w http.ResponseWriter, r *http.Request) {
	id, err := projectIDParam(r)
	if err != nil {
		a.badRequest(w, r, err.Error())
		return
	}
	var req reviewWindowRequest
	if err := decodeJSON(r, &req); err != nil {
		a.badRequest(w, r, err.Error())
		return
	}
	if err := a.Ledger.EnableReview(r.Context(), id, caller(r), req.VotingDeadline); err != nil {
		a.fail(w, r, err)
		return
	}
	a.reviewResult(w, r, id, http.StatusCreated)
}

// ReviewsCreate records the caller's vote.
func (a *App) ReviewsCreate(w http.ResponseWriter, r *http.Request) {
	id, err := projectIDParam(r)
	if err != nil {
		a.badRequest(w, r, err.Error())
		return
	}
	var req reviewRequest
	if err := decodeJSON(r, &req); err != nil {
		a.badRequest(w, r, err.Error())
		return
	}
	err = a.Ledger.SubmitReview(r.Context(), ledger.SubmitReviewInput{
		ProjectID:  id,
		Reviewer:   caller(r),
		IsPositive: req.IsPositive,
		Comment:    req.Comment,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.reviewResult(w, r, id, http.StatusCreated)
}

// ReviewsList returns the tally and every vote in submission order.
func (a *App) ReviewsList(w http.ResponseWriter, r *http.Request) {
	id, err := projectIDParam(r)
	if err != nil {
		a.badRequest(w, r, err.Error())
		return
	}
	result, err := a.Ledger.GetReviewResult(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	votes, err := a.Ledger.GetReviews(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	items := make([]reviewView, 0, len(votes))
	for _, v := range votes {
		items = append(items, toReviewView(v))
	}
	body := resultBody(id, result)
	body["items"] = items
	a.json(w, http.StatusOK, body)
}

func (a *App) ReviewsGet(w http.ResponseWriter, r *http.Request) {
	id, err := projectIDParam(r)
	if err != nil {
		a.badRequest(w, r, err.Error())
		return
	}
	vote, err := a.Ledger.GetReview(r.Context(), id, strings.TrimSpace(chi.URLParam(r, "reviewer")))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toReviewView(vote))
}

func (a *App) reviewResult(w http.ResponseWriter, r *http.Request, id uint64, status int) {
	result, err := a.Ledger.GetReviewResult(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, status, resultBody(id, result))
}

func resultBody(id uint64, result domain.ReviewResult) map[string]any {
	body := map[string]any{
		"project_id":     id,
		"enabled":        result.Enabled,
		"positive_count": result.PositiveCount,
		"negative_count": result.NegativeCount,
	}
	if result.Enabled {
		body["voting_deadline"] = result.VotingDeadline
	}
	return body
}
