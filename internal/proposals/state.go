package proposals

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// --- State machine for the proposal lifecycle ---
//
// Every mutating entry point goes through CanTransition, which consults the
// table below. A call that is not in the table fails before touching
// the record.

// Sentinel errors. Callers match them with errors.Is.
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrMissingPrerequisite = errors.New("missing prerequisite")
)

// Action names a lifecycle operation.
type Action string

const (
	ActSubmit         Action = "submit_for_review"
	ActApprove        Action = "review_approve"
	ActRequestChanges Action = "review_request_changes"
	ActReject         Action = "review_reject"
	ActRevise         Action = "revise_proposal"
	ActPlan           Action = "create_implementation_plan"
	ActBegin          Action = "begin_implementation"
	ActCompleteTask   Action = "complete_task"
	ActComplete       Action = "complete_implementation"
	ActRollback       Action = "rollback_implementation"
)

// Transitions is the exhaustive table of legal moves: from -> action -> to.
// A from/to pair with equal statuses is an in-place update.
var Transitions = map[Status]map[Action]Status{
	StatusDraft: {
		ActSubmit: StatusPendingReview,
	},
	StatusPendingReview: {
		ActApprove:        StatusApproved,
		ActRequestChanges: StatusRevisionRequested,
		ActReject:         StatusRejected,
	},
	StatusRevisionRequested: {
		ActRevise: StatusPendingReview,
	},
	StatusApproved: {
		ActPlan:  StatusApproved,
		ActBegin: StatusImplementing,
	},
	StatusImplementing: {
		ActCompleteTask: StatusImplementing,
		ActComplete:     StatusCompleted,
		ActRollback:     StatusRolledBack,
	},
	StatusCompleted: {
		ActRollback: StatusRolledBack,
	},
}

// reviewActions maps a reviewer verdict to its lifecycle action.
var reviewActions = map[ReviewAction]Action{
	ActionApprove:        ActApprove,
	ActionRequestChanges: ActRequestChanges,
	ActionReject:         ActReject,
}

// ReviewActionFor returns the lifecycle action of a reviewer verdict.
func ReviewActionFor(verdict ReviewAction) (Action, error) {
	action, ok := reviewActions[verdict]
	if !ok {
		return "", ValidateAction(verdict)
	}
	return action, nil
}

// Next returns the status reached by applying action from the given status.
func Next(from Status, action Action) (Status, error) {
	to, ok := Transitions[from][action]
	if !ok {
		return from, fmt.Errorf("%w: %s is not allowed from %s", ErrInvalidTransition, action, from)
	}
	return to, nil
}

// Allowed lists the actions legal from a status, sorted by name.
func Allowed(from Status) []Action {
	var actions []Action
	for a := range Transitions[from] {
		actions = append(actions, a)
	}
	slices.Sort(actions)
	return actions
}

// IsTerminal reports whether no forward action leaves the status.
// COMPLETED is terminal for forward progress even though rollback is allowed.
func IsTerminal(s Status) bool {
	switch s {
	case StatusRejected, StatusCompleted, StatusRolledBack:
		return true
	}
	return false
}

// CanTransition checks the table and the action-specific preconditions
// without mutating the proposal.
func CanTransition(p *Proposal, action Action) error {
	if _, err := Next(p.Status, action); err != nil {
		return fmt.Errorf("proposal %q: %w", p.ID, err)
	}
	switch action {
	case ActBegin:
		if strings.TrimSpace(p.Plan) == "" {
			return fmt.Errorf("proposal %q: %w: implementation plan is not set", p.ID, ErrMissingPrerequisite)
		}
	case ActRollback:
		if p.PreSnapshotID == "" {
			return fmt.Errorf("proposal %q: %w: no pre-implementation snapshot", p.ID, ErrMissingPrerequisite)
		}
	}
	return nil
}

// transition validates and applies a status change. It appends one
// execution log entry describing the move.
func transition(p *Proposal, action Action, logAction, details string) error {
	if err := CanTransition(p, action); err != nil {
		return err
	}
	to, _ := Next(p.Status, action)
	p.Status = to
	p.appendLog(logAction, details)
	return nil
}

// --- Lifecycle operations on an in-memory proposal ---
//
// These mutate only the struct. The caller persists the record with
// Store.Update right after a successful call.

// Submit moves a DRAFT proposal to PENDING_REVIEW.
func Submit(p *Proposal) error {
	return transition(p, ActSubmit, LogSubmitted, "")
}

// ApplyReview records a reviewer verdict on a PENDING_REVIEW proposal.
// Only request_changes increments RevisionCount.
func ApplyReview(p *Proposal, reviewer string, verdict ReviewAction, comment string) error {
	if err := ValidateAction(verdict); err != nil {
		return err
	}
	if strings.TrimSpace(reviewer) == "" {
		return fmt.Errorf("reviewer is required")
	}
	action := reviewActions[verdict]
	if err := CanTransition(p, action); err != nil {
		return err
	}

	to, _ := Next(p.Status, action)
	now := timeNow().UTC()
	p.Status = to
	p.Reviews = append(p.Reviews, Review{
		Reviewer:  reviewer,
		Comment:   comment,
		Action:    verdict,
		Timestamp: now,
		Seq:       p.nextSeq(),
	})
	if verdict == ActionRequestChanges {
		p.RevisionCount++
	}
	p.UpdatedAt = now
	return nil
}

// Revise resubmits a REVISION_REQUESTED proposal. A nil summary or nil
// items slice leaves that field unchanged.
func Revise(p *Proposal, summary *string, items []Item) error {
	for i, item := range items {
		if err := item.Validate(); err != nil {
			return fmt.Errorf("item %d: %w", i+1, err)
		}
	}
	if err := CanTransition(p, ActRevise); err != nil {
		return err
	}
	if summary != nil {
		p.Summary = *summary
	}
	if items != nil {
		p.Items = items
	}
	return transition(p, ActRevise, LogRevised, fmt.Sprintf("revision %d resubmitted", p.RevisionCount))
}

// AttachPlan sets the implementation plan of an APPROVED proposal and
// appends the given tasks to its checklist. Checklist additions happen
// only here.
func AttachPlan(p *Proposal, plan string, tasks []string, blueprint []byte) error {
	if strings.TrimSpace(plan) == "" {
		return fmt.Errorf("implementation plan text is required")
	}
	if err := CanTransition(p, ActPlan); err != nil {
		return err
	}
	p.Plan = plan
	if blueprint != nil {
		p.Blueprint = append([]byte(nil), blueprint...)
	}
	for _, task := range tasks {
		if strings.TrimSpace(task) == "" {
			continue
		}
		addChecklistItem(p, task)
	}
	p.appendLog(LogPlanCreated, fmt.Sprintf("%d checklist items", len(p.Checklist)))
	return nil
}

// Begin moves an APPROVED proposal with a plan to IMPLEMENTING and records
// the pre-implementation snapshot id. The id is set at most once.
func Begin(p *Proposal, preSnapshotID string) error {
	if err := CanTransition(p, ActBegin); err != nil {
		return err
	}
	if preSnapshotID == "" {
		return fmt.Errorf("proposal %q: %w: pre-implementation snapshot id is empty", p.ID, ErrMissingPrerequisite)
	}
	if p.PreSnapshotID == "" {
		p.PreSnapshotID = preSnapshotID
	}
	return transition(p, ActBegin, LogStarted, "pre-snapshot "+p.PreSnapshotID)
}

// Complete moves an IMPLEMENTING proposal to COMPLETED regardless of
// checklist progress and records the post-implementation snapshot id.
func Complete(p *Proposal, postSnapshotID string) error {
	if err := CanTransition(p, ActComplete); err != nil {
		return err
	}
	if p.PostSnapshotID == "" {
		p.PostSnapshotID = postSnapshotID
	}
	return transition(p, ActComplete, LogCompleted, fmt.Sprintf("post-snapshot %s, progress %.0f%%", p.PostSnapshotID, Progress(p)))
}

// MarkRolledBack moves an IMPLEMENTING or COMPLETED proposal to ROLLED_BACK.
// The caller restores the pre-implementation snapshot first.
func MarkRolledBack(p *Proposal, details string) error {
	return transition(p, ActRollback, LogRolledBack, details)
}
