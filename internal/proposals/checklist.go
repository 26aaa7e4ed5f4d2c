package proposals

import (
	"fmt"
	"strings"
)

// --- Checklist tracker ---

// addChecklistItem appends a pending task with an id local to the proposal.
// Ids are "task-1", "task-2", ... in insertion order.
func addChecklistItem(p *Proposal, task string) ChecklistItem {
	item := ChecklistItem{
		ID:   fmt.Sprintf("task-%d", len(p.Checklist)+1),
		Task: strings.TrimSpace(task),
	}
	p.Checklist = append(p.Checklist, item)
	return item
}

// FindTask returns the index of a checklist item by id, or -1.
func FindTask(p *Proposal, taskID string) int {
	for i, item := range p.Checklist {
		if item.ID == taskID {
			return i
		}
	}
	return -1
}

// CompleteTask marks a checklist item done on an IMPLEMENTING proposal,
// stamps its completion time, stores the notes and appends an execution
// log entry.
func CompleteTask(p *Proposal, taskID, notes string) error {
	if err := CanTransition(p, ActCompleteTask); err != nil {
		return err
	}
	idx := FindTask(p, taskID)
	if idx < 0 {
		return fmt.Errorf("task %q in proposal %q: %w", taskID, p.ID, ErrNotFound)
	}
	item := &p.Checklist[idx]
	if item.Completed {
		return fmt.Errorf("task %q in proposal %q: %w: already completed", taskID, p.ID, ErrInvalidTransition)
	}

	now := timeNow().UTC()
	item.Completed = true
	item.CompletedAt = &now
	item.Notes = notes
	p.appendLog(LogTaskCompleted, fmt.Sprintf("%s: %s", item.ID, item.Task))
	return nil
}

// Progress returns the completed share of the checklist as a percentage.
// An empty checklist is 0, never NaN.
func Progress(p *Proposal) float64 {
	total := len(p.Checklist)
	if total == 0 {
		return 0
	}
	done := 0
	for _, item := range p.Checklist {
		if item.Completed {
			done++
		}
	}
	return float64(done) / float64(total) * 100
}

// PendingTasks returns the checklist items not yet completed.
func PendingTasks(p *Proposal) []ChecklistItem {
	var pending []ChecklistItem
	for _, item := range p.Checklist {
		if !item.Completed {
			pending = append(pending, item)
		}
	}
	return pending
}
