package ledger

import (
	"context"
	"math"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"dfund/internal/domain"
)

// DonateInput carries one donation. Country is the donor's ISO origin when
// the transport could resolve it; it is only recorded in the journal.
type DonateInput struct {
	ProjectID uint64
	Donor     string
	Amount    int64
	Country   string
}

// Donate escrows amount for the project and returns the new project total.
func (s *Service) Donate(ctx context.Context, in DonateInput) (total int64, err error) {
	ctx, span := s.startSpan(ctx, "Donate",
		attribute.Int64("project_id", int64(in.ProjectID)),
		attribute.Int64("amount", in.Amount),
	)
	defer func() { endSpan(span, err) }()
	defer func() { s.logRejected("donate", err) }()

	donor := strings.TrimSpace(in.Donor)
	if donor == "" {
		return 0, domain.Validation(domain.CodeDonorRequired, "donor is required")
	}
	if in.Amount <= 0 {
		return 0, domain.Validation(domain.CodeAmountNotPositive, "donation amount must be greater than zero")
	}

	now := s.now()
	var totals domain.DonationTotals
	err = s.store.WithTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		p, err := loadProject(ctx, tx, in.ProjectID, true)
		if err != nil {
			return err
		}
		if !p.FundableAt(now) {
			return domain.State(domain.CodeProjectNotFundable, "project is not accepting donations")
		}
		if p.TotalDonated > math.MaxInt64-in.Amount {
			return domain.Validation(domain.CodeAmountOverflow, "donation would overflow the project total")
		}
		totals, err = tx.ApplyDonation(ctx, p.ID, donor, in.Amount, now)
		if err != nil {
			return err
		}
		return tx.AppendEntry(ctx, domain.LedgerEntry{
			ID:        uuid.NewString(),
			ProjectID: p.ID,
			Kind:      domain.EntryDonation,
			Account:   donor,
			Amount:    in.Amount,
			Country:   strings.ToUpper(strings.TrimSpace(in.Country)),
			CreatedAt: now,
		})
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info().
		Uint64("project_id", in.ProjectID).
		Str("donor", donor).
		Int64("amount", in.Amount).
		Int64("total", totals.TotalDonated).
		Msg("donation accepted")
	return totals.TotalDonated, nil
}

// TotalDonated is the sum of every recorded contribution to the project.
func (s *Service) TotalDonated(ctx context.Context, projectID uint64) (int64, error) {
	p, err := s.GetProject(ctx, projectID)
	if err != nil {
		return 0, err
	}
	return p.TotalDonated, nil
}

// ProjectBalance is the value currently held in escrow for the project.
func (s *Service) ProjectBalance(ctx context.Context, projectID uint64) (int64, error) {
	p, err := s.GetProject(ctx, projectID)
	if err != nil {
		return 0, err
	}
	return p.EscrowBalance, nil
}

// ContributionOf returns what donor has contributed and not yet reclaimed.
func (s *Service) ContributionOf(ctx context.Context, projectID uint64, donor string) (amount int64, err error) {
	err = s.store.View(ctx, func(ctx context.Context, tx domain.Tx) error {
		if _, err := loadProject(ctx, tx, projectID, false); err != nil {
			return err
		}
		var txErr error
		amount, txErr = tx.Contribution(ctx, projectID, strings.TrimSpace(donor))
		return txErr
	})
	return amount, err
}

// Contributions lists every donor record of the project.
func (s *Service) Contributions(ctx context.Context, projectID uint64) (items []domain.Contribution, err error) {
	err = s.store.View(ctx, func(ctx context.Context, tx domain.Tx) error {
		if _, err := loadProject(ctx, tx, projectID, false); err != nil {
			return err
		}
		var txErr error
		items, txErr = tx.ListContributions(ctx, projectID)
		return txErr
	})
	return items, err
}
