package audit

import (
	"sort"
	"time"

	"github.com/HendryAvila/evolve/internal/proposals"
)

// StatusCount is the number of proposals in one status.
type StatusCount struct {
	Status proposals.Status `json:"status"`
	Count  int              `json:"count"`
}

// Summary is the short form of a proposal used in report sections.
type Summary struct {
	ID        string             `json:"id"`
	Title     string             `json:"title"`
	Category  proposals.Category `json:"category"`
	Status    proposals.Status   `json:"status"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Active is an IMPLEMENTING proposal with its checklist progress.
type Active struct {
	Summary
	Progress float64 `json:"progress"`
	Done     int     `json:"done"`
	Total    int     `json:"total"`
}

// Report aggregates the state of every proposal and the snapshot store.
type Report struct {
	GeneratedAt       time.Time     `json:"generated_at"`
	Total             int           `json:"total"`
	ByStatus          []StatusCount `json:"by_status"`
	Active            []Active      `json:"active"`
	PendingReview     []Summary     `json:"pending_review"`
	RecentlyCompleted []Summary     `json:"recently_completed"`
	SnapshotCount     int           `json:"snapshot_count"`
}

// BuildReport aggregates list into a Report. Every status appears in
// ByStatus, zero counts included. RecentlyCompleted holds at most
// recentLimit proposals, most recently updated first; a limit of zero
// omits the section.
func BuildReport(list []proposals.Proposal, snapshotCount, recentLimit int, now time.Time) *Report {
	r := &Report{
		GeneratedAt:       now,
		Total:             len(list),
		Active:            []Active{},
		PendingReview:     []Summary{},
		RecentlyCompleted: []Summary{},
		SnapshotCount:     snapshotCount,
	}

	counts := make(map[proposals.Status]int, len(proposals.Statuses))
	var completed []Summary
	for i := range list {
		p := &list[i]
		counts[p.Status]++
		switch p.Status {
		case proposals.StatusImplementing:
			r.Active = append(r.Active, Active{
				Summary:  summarize(p),
				Progress: proposals.Progress(p),
				Done:     len(p.Checklist) - len(proposals.PendingTasks(p)),
				Total:    len(p.Checklist),
			})
		case proposals.StatusPendingReview:
			r.PendingReview = append(r.PendingReview, summarize(p))
		case proposals.StatusCompleted:
			completed = append(completed, summarize(p))
		}
	}
	for _, s := range proposals.Statuses {
		r.ByStatus = append(r.ByStatus, StatusCount{Status: s, Count: counts[s]})
	}

	sort.SliceStable(completed, func(i, j int) bool {
		return completed[i].UpdatedAt.After(completed[j].UpdatedAt)
	})
	if recentLimit < 0 {
		recentLimit = 0
	}
	if len(completed) > recentLimit {
		completed = completed[:recentLimit]
	}
	r.RecentlyCompleted = append(r.RecentlyCompleted, completed...)
	return r
}

func summarize(p *proposals.Proposal) Summary {
	return Summary{
		ID:        p.ID,
		Title:     p.Title,
		Category:  p.Category,
		Status:    p.Status,
		UpdatedAt: p.UpdatedAt,
	}
}
