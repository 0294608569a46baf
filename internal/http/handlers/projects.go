package handlers

import (
	"net/http"
	"strings"
	"time"

	"dfund/internal/domain"
	"dfund/internal/ledger"
)

type projectView struct {
	ID                    uint64     `json:"id"`
	Creator               string     `json:"creator"`
	Title                 string     `json:"title"`
	Description           string     `json:"description"`
	Image                 string     `json:"image"`
	DetailImages          []string   `json:"detail_images"`
	GoalAmount            int64      `json:"goal_amount"`
	Deadline              time.Time  `json:"deadline"`
	ExpertReviewRequested bool       `json:"expert_review_requested"`
	Status                string     `json:"status"`
	TotalDonated          int64      `json:"total_donated"`
	EscrowBalance         int64      `json:"escrow_balance"`
	FundedPercent         int64      `json:"funded_percent"`
	CreatedAt             time.Time  `json:"created_at"`
	FinalizedAt           *time.Time `json:"finalized_at,omitempty"`
}

func toProjectView(p domain.Project) projectView {
	images := p.DetailImages
	if images == nil {
		images = []string{}
	}
	return projectView{
		ID:                    p.ID,
		Creator:               p.Creator,
		Title:                 p.Title,
		Description:           p.Description,
		Image:                 p.Image,
		DetailImages:          images,
		GoalAmount:            p.GoalAmount,
		Deadline:              p.Deadline,
		ExpertReviewRequested: p.ExpertReviewRequested,
		Status:                p.Status.String(),
		TotalDonated:          p.TotalDonated,
		EscrowBalance:         p.EscrowBalance,
		FundedPercent:         p.FundedPercent(),
		CreatedAt:             p.CreatedAt,
		FinalizedAt:           p.FinalizedAt,
	}
}

func toProjectViews(projects []domain.Project) []projectView {
	out := make([]projectView, 0, len(projects))
	for _, p := range projects {
		out = append(out, toProjectView(p))
	}
	return out
}

type registerRequest struct {
	Title                 string     `json:"title"`
	Description           string     `json:"description"`
	Image                 string     `json:"image"`
	DetailImages          []string   `json:"detail_images"`
	GoalAmount            int64      `json:"goal_amount"`
	Deadline              time.Time  `json:"deadline"`
	ExpertReviewRequested bool       `json:"expert_review_requested"`
	ReviewDeadline        *time.Time `json:"review_deadline"`
}

// ProjectsCreate registers a project owned by the authenticated caller.
func (a *App) ProjectsCreate(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		a.badRequest(w, r, err.Error())
		return
	}
	id, err := a.Ledger.Register(r.Context(), ledger.RegisterInput{
		Creator:               caller(r),
		Title:                 req.Title,
		Description:           req.Description,
		Image:                 req.Image,
		DetailImages:          req.DetailImages,
		GoalAmount:            req.GoalAmount,
		Deadline:              req.Deadline,
		ExpertReviewRequested: req.ExpertReviewRequested,
		ReviewDeadline:        req.ReviewDeadline,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	p, err := a.Ledger.GetProject(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/projects/"+formatID(id))
	a.json(w, http.StatusCreated, toProjectView(p))
}

// ProjectsGet returns one project with its recorded totals.
func (a *App) ProjectsGet(w http.ResponseWriter, r *http.Request) {
	id, err := projectIDParam(r)
	if err != nil {
		a.badRequest(w, r, err.Error())
		return
	}
	p, err := a.Ledger.GetProject(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toProjectView(p))
}

// ProjectsList pages through projects by id. Without a status filter only
// fundable projects are listed unless all=true.
func (a *App) ProjectsList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status, err := domain.ParseStatus(q.Get("status"))
	if err != nil {
		a.badRequest(w, r, err.Error())
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		a.badRequest(w, r, err.Error())
		return
	}
	after, err := queryInt(r, "after", 0)
	if err != nil {
		a.badRequest(w, r, err.Error())
		return
	}

	var projects []domain.Project
	if status == domain.StatusUnknown && !strings.EqualFold(q.Get("all"), "true") {
		projects, err = a.Ledger.ListFundable(r.Context(), uint64(after), limit)
	} else {
		projects, err = a.Ledger.ListProjects(r.Context(), domain.ProjectFilter{
			Status:  status,
			AfterID: uint64(after),
			Limit:   limit,
		})
	}
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"items": toProjectViews(projects)})
}

func (a *App) ProjectsCount(w http.ResponseWriter, r *http.Request) {
	count, err := a.Ledger.ProjectCount(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]uint64{"count": count})
}

// ProjectsTop ranks fundable projects by funded percentage.
func (a *App) ProjectsTop(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 3)
	if err != nil {
		a.badRequest(w, r, err.Error())
		return
	}
	projects, err := a.Ledger.TopProjects(r.Context(), limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"items": toProjectViews(projects)})
}
