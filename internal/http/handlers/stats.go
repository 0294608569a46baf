package handlers

import (
	"net/http"

	"dfund/internal/domain"
)

// StatsSummary reports project counts per status and the value held and paid out.
func (a *App) StatsSummary(w http.ResponseWriter, r *http.Request) {
	stats, err := a.Ledger.Stats(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	byStatus := make(map[string]uint64, 4)
	var total uint64
	for _, s := range []domain.Status{domain.StatusActive, domain.StatusSuccessful, domain.StatusReleased, domain.StatusRefunding} {
		byStatus[s.String()] = stats.ProjectsByStatus[s]
		total += stats.ProjectsByStatus[s]
	}
	a.json(w, http.StatusOK, map[string]any{
		"projects":           total,
		"projects_by_status": byStatus,
		"escrow_total":       stats.EscrowTotal,
		"paid_out_total":     stats.PaidOutTotal,
	})
}
