package ledger

// SetTopProjectsPage shrinks the TopProjects page size and returns a restore func.
func SetTopProjectsPage(n int) (restore func()) {
	prev := topProjectsPage
	topProjectsPage = n
	return func() { topProjectsPage = prev }
}
