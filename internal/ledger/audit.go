package ledger

import (
	"context"
	"fmt"

	"dfund/internal/domain"
)

// AuditReport recomputes a project's balances from its contribution records
// and journal. Violations is empty when every invariant holds.
type AuditReport struct {
	ProjectID       uint64
	Status          domain.Status
	TotalDonated    int64
	ContributionSum int64
	EscrowBalance   int64
	Donated         int64
	Released        int64
	Refunded        int64
	Violations      []string
}

// OK reports whether the audit found nothing.
func (r AuditReport) OK() bool {
	return len(r.Violations) == 0
}

// Audit checks one project inside a single transaction so the figures are consistent.
func (s *Service) Audit(ctx context.Context, projectID uint64) (report AuditReport, err error) {
	err = s.store.View(ctx, func(ctx context.Context, tx domain.Tx) error {
		p, err := loadProject(ctx, tx, projectID, false)
		if err != nil {
			return err
		}
		contributions, err := tx.ListContributions(ctx, p.ID)
		if err != nil {
			return err
		}
		entries, err := tx.ListEntries(ctx, p.ID)
		if err != nil {
			return err
		}
		report = buildAudit(p, contributions, entries)
		return nil
	})
	return report, err
}

func buildAudit(p domain.Project, contributions []domain.Contribution, entries []domain.LedgerEntry) AuditReport {
	r := AuditReport{
		ProjectID:     p.ID,
		Status:        p.Status,
		TotalDonated:  p.TotalDonated,
		EscrowBalance: p.EscrowBalance,
	}
	for _, c := range contributions {
		r.ContributionSum += c.Amount
	}
	for _, e := range entries {
		switch e.Kind {
		case domain.EntryDonation:
			r.Donated += e.Amount
		case domain.EntryRelease:
			r.Released += e.Amount
		case domain.EntryRefund:
			r.Refunded += e.Amount
		}
	}

	if r.ContributionSum != r.TotalDonated {
		r.Violations = append(r.Violations, fmt.Sprintf("contribution sum %d != total donated %d", r.ContributionSum, r.TotalDonated))
	}
	if r.Donated-r.Refunded != r.TotalDonated {
		r.Violations = append(r.Violations, fmt.Sprintf("journal donations %d minus refunds %d != total donated %d", r.Donated, r.Refunded, r.TotalDonated))
	}
	if !p.Status.Valid() {
		r.Violations = append(r.Violations, fmt.Sprintf("unknown status %d", uint8(p.Status)))
	}
	switch p.Status {
	case domain.StatusReleased:
		if r.EscrowBalance != 0 {
			r.Violations = append(r.Violations, fmt.Sprintf("released project still holds %d in escrow", r.EscrowBalance))
		}
		if r.Released != r.TotalDonated {
			r.Violations = append(r.Violations, fmt.Sprintf("released %d != total donated %d", r.Released, r.TotalDonated))
		}
		if r.Refunded != 0 {
			r.Violations = append(r.Violations, fmt.Sprintf("released project paid refunds of %d", r.Refunded))
		}
	default:
		if r.EscrowBalance != r.TotalDonated {
			r.Violations = append(r.Violations, fmt.Sprintf("escrow %d != total donated %d", r.EscrowBalance, r.TotalDonated))
		}
		if r.Released != 0 {
			r.Violations = append(r.Violations, fmt.Sprintf("%s project released %d", p.Status, r.Released))
		}
		if p.Status != domain.StatusRefunding && r.Refunded != 0 {
			r.Violations = append(r.Violations, fmt.Sprintf("%s project paid refunds of %d", p.Status, r.Refunded))
		}
	}
	return r
}
