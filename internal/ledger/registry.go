package ledger

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"dfund/internal/domain"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// topProjectsPage is how many fundable projects TopProjects reads per page.
var topProjectsPage = 500

// RegisterInput carries a new project. ReviewDeadline is optional; when set
// together with ExpertReviewRequested the review window opens atomically
// with the registration.
type RegisterInput struct {
	Creator               string
	Title                 string
	Description           string
	Image                 string
	DetailImages          []string
	GoalAmount            int64
	Deadline              time.Time
	ExpertReviewRequested bool
	ReviewDeadline        *time.Time
}

// Register validates and stores a project with status Active and returns its id.
func (s *Service) Register(ctx context.Context, in RegisterInput) (id uint64, err error) {
	ctx, span := s.startSpan(ctx, "Register", attribute.String("creator", in.Creator))
	defer func() { endSpan(span, err) }()
	defer func() { s.logRejected("register", err) }()

	now := s.now()
	creator := strings.TrimSpace(in.Creator)
	title := strings.TrimSpace(in.Title)
	if creator == "" {
		return 0, domain.Validation(domain.CodeCreatorRequired, "creator is required")
	}
	if title == "" {
		return 0, domain.Validation(domain.CodeTitleEmpty, "title is required")
	}
	if in.GoalAmount <= 0 {
		return 0, domain.Validation(domain.CodeGoalNotPositive, "goal amount must be greater than zero")
	}
	deadline := storedInstant(in.Deadline)
	if !deadline.After(now) {
		return 0, domain.Validation(domain.CodeDeadlineNotFuture, "deadline must be in the future")
	}
	var reviewDeadline time.Time
	if in.ReviewDeadline != nil {
		if !in.ExpertReviewRequested {
			return 0, domain.Validation(domain.CodeReviewNotRequested, "review deadline given without requesting expert review")
		}
		reviewDeadline = storedInstant(*in.ReviewDeadline)
		if err := validateVotingDeadline(reviewDeadline, deadline, now); err != nil {
			return 0, err
		}
	}

	details := make([]string, 0, len(in.DetailImages))
	for _, url := range in.DetailImages {
		if url = strings.TrimSpace(url); url != "" {
			details = append(details, url)
		}
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		var txErr error
		id, txErr = tx.CreateProject(ctx, domain.Project{
			Creator:               creator,
			Title:                 title,
			Description:           in.Description,
			Image:                 strings.TrimSpace(in.Image),
			DetailImages:          details,
			GoalAmount:            in.GoalAmount,
			Deadline:              deadline,
			ExpertReviewRequested: in.ExpertReviewRequested,
			Status:                domain.StatusActive,
			CreatedAt:             now,
		})
		if txErr != nil {
			return txErr
		}
		if reviewDeadline.IsZero() {
			return nil
		}
		return tx.CreateReviewWindow(ctx, domain.ReviewWindow{
			ProjectID:      id,
			VotingDeadline: reviewDeadline,
			EnabledAt:      now,
		})
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info().
		Uint64("project_id", id).
		Str("creator", creator).
		Int64("goal_amount", in.GoalAmount).
		Time("deadline", deadline).
		Bool("expert_review", in.ExpertReviewRequested).
		Msg("project registered")
	return id, nil
}

// GetProject returns the project stored under id.
func (s *Service) GetProject(ctx context.Context, id uint64) (p domain.Project, err error) {
	ctx, span := s.startSpan(ctx, "GetProject", attribute.Int64("project_id", int64(id)))
	defer func() { endSpan(span, err) }()

	err = s.store.View(ctx, func(ctx context.Context, tx domain.Tx) error {
		var txErr error
		p, txErr = loadProject(ctx, tx, id, false)
		return txErr
	})
	return p, err
}

// ProjectCount returns how many ids have been assigned.
func (s *Service) ProjectCount(ctx context.Context) (count uint64, err error) {
	err = s.store.View(ctx, func(ctx context.Context, tx domain.Tx) error {
		var txErr error
		count, txErr = tx.CountProjects(ctx)
		return txErr
	})
	return count, err
}

// ListProjects enumerates projects in id order.
func (s *Service) ListProjects(ctx context.Context, filter domain.ProjectFilter) (projects []domain.Project, err error) {
	ctx, span := s.startSpan(ctx, "ListProjects")
	defer func() { endSpan(span, err) }()

	filter.Limit = clampLimit(filter.Limit)
	err = s.store.View(ctx, func(ctx context.Context, tx domain.Tx) error {
		var txErr error
		projects, txErr = tx.ListProjects(ctx, filter)
		return txErr
	})
	return projects, err
}

// ListFundable enumerates projects that accept donations right now.
func (s *Service) ListFundable(ctx context.Context, afterID uint64, limit int) ([]domain.Project, error) {
	return s.ListProjects(ctx, domain.ProjectFilter{
		FundableAt: s.now(),
		AfterID:    afterID,
		Limit:      limit,
	})
}

// TopProjects ranks fundable projects by the share of their goal raised.
func (s *Service) TopProjects(ctx context.Context, limit int) (projects []domain.Project, err error) {
	ctx, span := s.startSpan(ctx, "TopProjects")
	defer func() { endSpan(span, err) }()

	limit = clampLimit(limit)
	now := s.now()
	// Every fundable project is ranked; only the best limit are kept between pages.
	err = s.store.View(ctx, func(ctx context.Context, tx domain.Tx) error {
		var after uint64
		for {
			page, err := tx.ListProjects(ctx, domain.ProjectFilter{FundableAt: now, AfterID: after, Limit: topProjectsPage})
			if err != nil {
				return err
			}
			if len(page) == 0 {
				return nil
			}
			after = page[len(page)-1].ID
			projects = rankByFunding(append(projects, page...), limit)
			if len(page) < topProjectsPage {
				return nil
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return projects, nil
}

// rankByFunding orders projects by funded percent, ties broken by id, and
// keeps at most limit of them.
func rankByFunding(projects []domain.Project, limit int) []domain.Project {
	sort.SliceStable(projects, func(i, j int) bool {
		pi, pj := projects[i].FundedPercent(), projects[j].FundedPercent()
		if pi != pj {
			return pi > pj
		}
		return projects[i].ID < projects[j].ID
	})
	if len(projects) > limit {
		projects = projects[:limit]
	}
	return projects
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
