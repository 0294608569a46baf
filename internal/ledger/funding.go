package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"dfund/internal/domain"
)

type finalizeMode int

const (
	modeAuto finalizeMode = iota
	modeRelease
	modeRefund
)

func (m finalizeMode) String() string {
	switch m {
	case modeRelease:
		return "release"
	case modeRefund:
		return "refund"
	default:
		return "auto"
	}
}

// Finalize decides the outcome from the recorded total and applies it once.
// The creator may call it from the deadline on; anyone may once the grace
// period after the deadline has elapsed.
func (s *Service) Finalize(ctx context.Context, projectID uint64, caller string) (domain.Status, error) {
	return s.finalize(ctx, projectID, caller, modeAuto)
}

// ReleaseFunds finalizes a project whose goal was met, paying the escrow to the creator.
func (s *Service) ReleaseFunds(ctx context.Context, projectID uint64, caller string) (domain.Status, error) {
	return s.finalize(ctx, projectID, caller, modeRelease)
}

// Refund finalizes a project whose goal was missed, opening refund claims.
func (s *Service) Refund(ctx context.Context, projectID uint64, caller string) (domain.Status, error) {
	return s.finalize(ctx, projectID, caller, modeRefund)
}

func (s *Service) finalize(ctx context.Context, projectID uint64, caller string, mode finalizeMode) (outcome domain.Status, err error) {
	ctx, span := s.startSpan(ctx, "Finalize",
		attribute.Int64("project_id", int64(projectID)),
		attribute.String("mode", mode.String()),
	)
	defer func() { endSpan(span, err) }()
	defer func() { s.logRejected("finalize", err) }()

	caller = strings.TrimSpace(caller)
	if caller == "" {
		return domain.StatusUnknown, domain.Authorization(domain.CodeNotCreator, "caller identity is required")
	}

	now := s.now()
	var (
		creator  string
		released int64
	)
	err = s.store.WithTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		p, err := loadProject(ctx, tx, projectID, true)
		if err != nil {
			return err
		}
		if p.Status != domain.StatusActive {
			return domain.State(domain.CodeAlreadyFinalized, fmt.Sprintf("project already finalized as %s", p.Status))
		}
		if now.Before(p.Deadline) {
			return domain.State(domain.CodeDeadlineNotReached, "project deadline has not passed")
		}
		if caller != p.Creator && now.Before(p.Deadline.Add(s.grace)) {
			return domain.Authorization(domain.CodeNotCreator, "only the creator may finalize during the grace period")
		}

		outcome = domain.StatusRefunding
		if p.GoalReached() {
			outcome = domain.StatusReleased
		}
		switch {
		case mode == modeRelease && outcome != domain.StatusReleased:
			return domain.State(domain.CodeGoalNotMet, "goal not met; funds cannot be released")
		case mode == modeRefund && outcome != domain.StatusRefunding:
			return domain.State(domain.CodeGoalMet, "goal met; project cannot be refunded")
		}
		if err := domain.ValidateTransition(p.Status, outcome); err != nil {
			return err
		}

		// Status is committed to the transaction before any value leaves escrow.
		if err := tx.UpdateProjectStatus(ctx, p.ID, p.Status, outcome, now); err != nil {
			return err
		}
		if outcome == domain.StatusRefunding {
			return nil
		}

		creator = p.Creator
		released, err = tx.ReleaseEscrow(ctx, p.ID)
		if err != nil {
			return err
		}
		if released == 0 {
			return nil
		}
		if _, err := tx.CreditAccount(ctx, p.Creator, released, now); err != nil {
			return err
		}
		return tx.AppendEntry(ctx, domain.LedgerEntry{
			ID:        uuid.NewString(),
			ProjectID: p.ID,
			Kind:      domain.EntryRelease,
			Account:   p.Creator,
			Amount:    released,
			CreatedAt: now,
		})
	})
	if err != nil {
		return domain.StatusUnknown, err
	}

	event := s.logger.Info().
		Uint64("project_id", projectID).
		Str("caller", caller).
		Str("outcome", outcome.String())
	if outcome == domain.StatusReleased {
		event = event.Str("creator", creator).Int64("released", released)
	}
	event.Msg("project finalized")
	return outcome, nil
}

// ClaimRefund pays the donor's recorded contribution back to their account
// and zeroes it. A second claim fails with a state error.
func (s *Service) ClaimRefund(ctx context.Context, projectID uint64, donor string) (amount int64, err error) {
	ctx, span := s.startSpan(ctx, "ClaimRefund", attribute.Int64("project_id", int64(projectID)))
	defer func() { endSpan(span, err) }()
	defer func() { s.logRejected("claim_refund", err) }()

	donor = strings.TrimSpace(donor)
	if donor == "" {
		return 0, domain.Validation(domain.CodeDonorRequired, "donor is required")
	}

	now := s.now()
	err = s.store.WithTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		p, err := loadProject(ctx, tx, projectID, true)
		if err != nil {
			return err
		}
		if p.Status != domain.StatusRefunding {
			return domain.State(domain.CodeNotRefunding, "project is not refunding")
		}
		amount, err = tx.ClearContribution(ctx, p.ID, donor, now)
		if err != nil {
			return err
		}
		if amount == 0 {
			return domain.State(domain.CodeNothingToRefund, "no contribution left to refund")
		}
		if _, err := tx.CreditAccount(ctx, donor, amount, now); err != nil {
			return err
		}
		return tx.AppendEntry(ctx, domain.LedgerEntry{
			ID:        uuid.NewString(),
			ProjectID: p.ID,
			Kind:      domain.EntryRefund,
			Account:   donor,
			Amount:    amount,
			CreatedAt: now,
		})
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info().
		Uint64("project_id", projectID).
		Str("donor", donor).
		Int64("amount", amount).
		Msg("refund claimed")
	return amount, nil
}

// Finalization is the result of one sweeper finalization.
type Finalization struct {
	ProjectID uint64
	Outcome   domain.Status
}

// FinalizeDue finalizes up to limit active projects whose grace period has
// elapsed. Projects finalized concurrently by someone else are skipped.
func (s *Service) FinalizeDue(ctx context.Context, limit int) ([]Finalization, error) {
	now := s.now()
	due, err := s.ListProjects(ctx, domain.ProjectFilter{
		Status:         domain.StatusActive,
		DeadlineBefore: now.Add(-s.grace),
		Limit:          limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list due projects: %w", err)
	}

	var (
		done []Finalization
		errs []error
	)
	for _, p := range due {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		outcome, err := s.Finalize(ctx, p.ID, SystemCaller)
		if err != nil {
			switch domain.KindOf(err) {
			case domain.KindState, domain.KindConflict:
				continue
			}
			errs = append(errs, fmt.Errorf("finalize project %d: %w", p.ID, err))
			continue
		}
		done = append(done, Finalization{ProjectID: p.ID, Outcome: outcome})
	}
	return done, errors.Join(errs...)
}

// AccountBalance is the total value released or refunded to account.
func (s *Service) AccountBalance(ctx context.Context, account string) (balance int64, err error) {
	err = s.store.View(ctx, func(ctx context.Context, tx domain.Tx) error {
		var txErr error
		balance, txErr = tx.AccountBalance(ctx, strings.TrimSpace(account))
		return txErr
	})
	return balance, err
}

// LedgerEntries returns the project's journal in append order.
func (s *Service) LedgerEntries(ctx context.Context, projectID uint64) (entries []domain.LedgerEntry, err error) {
	err = s.store.View(ctx, func(ctx context.Context, tx domain.Tx) error {
		if _, err := loadProject(ctx, tx, projectID, false); err != nil {
			return err
		}
		var txErr error
		entries, txErr = tx.ListEntries(ctx, projectID)
		return txErr
	})
	return entries, err
}

// Stats summarizes the ledger.
func (s *Service) Stats(ctx context.Context) (stats domain.LedgerStats, err error) {
	err = s.store.View(ctx, func(ctx context.Context, tx domain.Tx) error {
		var txErr error
		stats, txErr = tx.Stats(ctx)
		return txErr
	})
	return stats, err
}
