package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"dfund/internal/domain"
)

// storedInstant drops precision below a millisecond, the coarsest resolution
// any store keeps, so a deadline validated here reads back unchanged.
func storedInstant(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

func validateVotingDeadline(votingDeadline, projectDeadline, now time.Time) error {
	if !votingDeadline.After(now) {
		return domain.Validation(domain.CodeVotingDeadlineInvalid, "voting deadline must be in the future")
	}
	if votingDeadline.After(projectDeadline) {
		return domain.Validation(domain.CodeVotingDeadlineInvalid, "voting deadline must not be after the project deadline")
	}
	return nil
}

// EnableReview opens the review window of a project registered with expert
// review requested. It succeeds at most once per project.
func (s *Service) EnableReview(ctx context.Context, projectID uint64, caller string, votingDeadline time.Time) (err error) {
	ctx, span := s.startSpan(ctx, "EnableReview", attribute.Int64("project_id", int64(projectID)))
	defer func() { endSpan(span, err) }()
	defer func() { s.logRejected("enable_review", err) }()

	caller = strings.TrimSpace(caller)
	now := s.now()
	votingDeadline = storedInstant(votingDeadline)
	err = s.store.WithTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		p, err := loadProject(ctx, tx, projectID, true)
		if err != nil {
			return err
		}
		if !p.ExpertReviewRequested {
			return domain.State(domain.CodeReviewNotRequested, "expert review was not requested for this project")
		}
		if caller != p.Creator {
			return domain.Authorization(domain.CodeNotCreator, "only the creator may enable review")
		}
		if _, err := tx.GetReviewWindow(ctx, p.ID); err == nil {
			return domain.State(domain.CodeReviewAlreadyEnabled, "review already enabled")
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if err := validateVotingDeadline(votingDeadline, p.Deadline, now); err != nil {
			return err
		}
		err = tx.CreateReviewWindow(ctx, domain.ReviewWindow{
			ProjectID:      p.ID,
			VotingDeadline: votingDeadline,
			EnabledAt:      now,
		})
		if errors.Is(err, domain.ErrAlreadyExists) {
			return domain.State(domain.CodeReviewAlreadyEnabled, "review already enabled")
		}
		return err
	})
	if err != nil {
		return err
	}

	s.logger.Info().
		Uint64("project_id", projectID).
		Time("voting_deadline", votingDeadline).
		Msg("review enabled")
	return nil
}

// SubmitReviewInput carries one reviewer vote.
type SubmitReviewInput struct {
	ProjectID  uint64
	Reviewer   string
	IsPositive bool
	Comment    string
}

// SubmitReview records the reviewer's only vote on the project.
func (s *Service) SubmitReview(ctx context.Context, in SubmitReviewInput) (err error) {
	ctx, span := s.startSpan(ctx, "SubmitReview",
		attribute.Int64("project_id", int64(in.ProjectID)),
		attribute.Bool("positive", in.IsPositive),
	)
	defer func() { endSpan(span, err) }()
	defer func() { s.logRejected("submit_review", err) }()

	reviewer := strings.TrimSpace(in.Reviewer)
	comment := strings.TrimSpace(in.Comment)
	if reviewer == "" {
		return domain.Validation(domain.CodeReviewerRequired, "reviewer is required")
	}
	if comment == "" {
		return domain.Validation(domain.CodeCommentEmpty, "comment is required")
	}

	now := s.now()
	err = s.store.WithTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		p, err := loadProject(ctx, tx, in.ProjectID, false)
		if err != nil {
			return err
		}
		window, err := tx.GetReviewWindow(ctx, p.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.State(domain.CodeReviewNotEnabled, "review is not enabled for this project")
			}
			return err
		}
		if !window.OpenAt(now) {
			return domain.State(domain.CodeReviewWindowClosed, "review window is closed")
		}
		if reviewer == p.Creator {
			return domain.Authorization(domain.CodeCreatorCannotReview, "creators cannot review their own project")
		}
		if len(s.panel) > 0 {
			if _, ok := s.panel[reviewer]; !ok {
				return domain.Authorization(domain.CodeReviewerNotOnPanel, "reviewer is not on the expert panel")
			}
		}
		err = tx.CreateReviewVote(ctx, domain.ReviewVote{
			ProjectID:   p.ID,
			Reviewer:    reviewer,
			IsPositive:  in.IsPositive,
			Comment:     comment,
			SubmittedAt: now,
		})
		if errors.Is(err, domain.ErrAlreadyExists) {
			return domain.State(domain.CodeReviewAlreadySubmitted, "reviewer already voted on this project")
		}
		return err
	})
	if err != nil {
		return err
	}

	s.logger.Info().
		Uint64("project_id", in.ProjectID).
		Str("reviewer", reviewer).
		Bool("positive", in.IsPositive).
		Msg("review submitted")
	return nil
}

// HasReviewerVoted reports whether reviewer already voted on the project.
func (s *Service) HasReviewerVoted(ctx context.Context, projectID uint64, reviewer string) (voted bool, err error) {
	_, err = s.GetReview(ctx, projectID, reviewer)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, domain.NotFound(domain.CodeReviewNotFound, "")) {
		return false, nil
	}
	return false, err
}

// GetReviewResult returns the tally. Projects without a window report zero votes.
func (s *Service) GetReviewResult(ctx context.Context, projectID uint64) (result domain.ReviewResult, err error) {
	err = s.store.View(ctx, func(ctx context.Context, tx domain.Tx) error {
		if _, err := loadProject(ctx, tx, projectID, false); err != nil {
			return err
		}
		window, err := tx.GetReviewWindow(ctx, projectID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil
			}
			return err
		}
		result = domain.ReviewResult{
			Enabled:        true,
			VotingDeadline: window.VotingDeadline,
			PositiveCount:  window.PositiveCount,
			NegativeCount:  window.NegativeCount,
		}
		return nil
	})
	return result, err
}

// GetReviewers lists reviewers in the order they voted.
func (s *Service) GetReviewers(ctx context.Context, projectID uint64) ([]string, error) {
	votes, err := s.GetReviews(ctx, projectID)
	if err != nil {
		return nil, err
	}
	reviewers := make([]string, 0, len(votes))
	for _, v := range votes {
		reviewers = append(reviewers, v.Reviewer)
	}
	return reviewers, nil
}

// GetReviews lists votes in the order they were cast.
func (s *Service) GetReviews(ctx context.Context, projectID uint64) (votes []domain.ReviewVote, err error) {
	err = s.store.View(ctx, func(ctx context.Context, tx domain.Tx) error {
		if _, err := loadProject(ctx, tx, projectID, false); err != nil {
			return err
		}
		var txErr error
		votes, txErr = tx.ListReviewVotes(ctx, projectID)
		return txErr
	})
	return votes, err
}

// GetComment returns the reviewer's comment on the project.
func (s *Service) GetComment(ctx context.Context, projectID uint64, reviewer string) (string, error) {
	vote, err := s.GetReview(ctx, projectID, reviewer)
	if err != nil {
		return "", err
	}
	return vote.Comment, nil
}

// GetReview returns the reviewer's vote on the project.
func (s *Service) GetReview(ctx context.Context, projectID uint64, reviewer string) (vote domain.ReviewVote, err error) {
	reviewer = strings.TrimSpace(reviewer)
	err = s.store.View(ctx, func(ctx context.Context, tx domain.Tx) error {
		if _, err := loadProject(ctx, tx, projectID, false); err != nil {
			return err
		}
		var txErr error
		vote, txErr = tx.GetReviewVote(ctx, projectID, reviewer)
		if errors.Is(txErr, domain.ErrNotFound) {
			return domain.NotFound(domain.CodeReviewNotFound, "reviewer has not voted on this project")
		}
		return txErr
	})
	return vote, err
}
