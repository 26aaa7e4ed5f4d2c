// Package proposals holds the durable records of the self-improvement workflow.
//
// A proposal carries a suggested system change from draft through review,
// implementation and, if needed, rollback. This package owns:
// - the record types and their enumerated fields
// - the exhaustive transition table (state.go)
// - the checklist tracker (checklist.go)
// - the JSON-per-record FileStore (store.go)
//
// It knows nothing about snapshots; the engine package composes the two.
package proposals

import (
	"encoding/json"
	"fmt"
	"time"
)

// --- Category enum ---

// Category tags what part of the system a proposal changes.
type Category string

const (
	CategoryPerformance Category = "performance"
	CategoryReliability Category = "reliability"
	CategoryAccuracy    Category = "accuracy"
	CategoryCapability  Category = "capability"
	CategoryKnowledge   Category = "knowledge"
	CategoryTooling     Category = "tooling"
	CategorySafety      Category = "safety"
)

var validCategories = map[Category]bool{
	CategoryPerformance: true,
	CategoryReliability: true,
	CategoryAccuracy:    true,
	CategoryCapability:  true,
	CategoryKnowledge:   true,
	CategoryTooling:     true,
	CategorySafety:      true,
}

// Categories lists every category in display order.
var Categories = []Category{
	CategoryPerformance, CategoryReliability, CategoryAccuracy,
	CategoryCapability, CategoryKnowledge, CategoryTooling, CategorySafety,
}

// ValidateCategory returns an error if the category is not recognized.
func ValidateCategory(c Category) error {
	if !validCategories[c] {
		return fmt.Errorf("invalid category %q: must be one of: performance, reliability, accuracy, capability, knowledge, tooling, safety", c)
	}
	return nil
}

// --- Status enum ---

// Status is the lifecycle position of a proposal. The only legal moves
// between statuses are the ones in the transition table.
type Status string

const (
	StatusDraft             Status = "draft"
	StatusPendingReview     Status = "pending_review"
	StatusRevisionRequested Status = "revision_requested"
	StatusApproved          Status = "approved"
	StatusRejected          Status = "rejected"
	StatusImplementing      Status = "implementing"
	StatusCompleted         Status = "completed"
	StatusRolledBack        Status = "rolled_back"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusDraft, StatusPendingReview, StatusRevisionRequested, StatusApproved,
	StatusRejected, StatusImplementing, StatusCompleted, StatusRolledBack,
}

var validStatuses = map[Status]bool{
	StatusDraft:             true,
	StatusPendingReview:     true,
	StatusRevisionRequested: true,
	StatusApproved:          true,
	StatusRejected:          true,
	StatusImplementing:      true,
	StatusCompleted:         true,
	StatusRolledBack:        true,
}

// ValidateStatus returns an error if the status is not recognized.
func ValidateStatus(s Status) error {
	if !validStatuses[s] {
		return fmt.Errorf("invalid status %q", s)
	}
	return nil
}

// --- Review action enum ---

// ReviewAction is the verdict a reviewer attaches to a review.
type ReviewAction string

const (
	ActionApprove        ReviewAction = "approve"
	ActionRequestChanges ReviewAction = "request_changes"
	ActionReject         ReviewAction = "reject"
)

var validActions = map[ReviewAction]bool{
	ActionApprove:        true,
	ActionRequestChanges: true,
	ActionReject:         true,
}

// ValidateAction returns an error if the review action is not recognized.
func ValidateAction(a ReviewAction) error {
	if !validActions[a] {
		return fmt.Errorf("invalid review action %q: must be one of: approve, request_changes, reject", a)
	}
	return nil
}

// --- Impact / risk levels ---

// Level grades the impact or risk of a proposal item.
type Level string

const (
	LevelHigh   Level = "high"
	LevelMedium Level = "medium"
	LevelLow    Level = "low"
)

// ValidateLevel returns an error if the level is not high, medium or low.
// An empty level is accepted and means "not assessed".
func ValidateLevel(l Level) error {
	switch l {
	case "", LevelHigh, LevelMedium, LevelLow:
		return nil
	}
	return fmt.Errorf("invalid level %q: must be one of: high, medium, low", l)
}

// --- Core data structures ---

// Item is one concrete change inside a proposal.
type Item struct {
	Description     string   `json:"description"`
	Rationale       string   `json:"rationale,omitempty"`
	Impact          Level    `json:"impact,omitempty"`
	Risk            Level    `json:"risk,omitempty"`
	EstimatedEffort string   `json:"estimated_effort,omitempty"`
	Dependencies    []string `json:"dependencies,omitempty"`
}

// Validate checks the item's required fields and levels.
func (i Item) Validate() error {
	if i.Description == "" {
		return fmt.Errorf("item description is required")
	}
	if err := ValidateLevel(i.Impact); err != nil {
		return fmt.Errorf("impact: %w", err)
	}
	if err := ValidateLevel(i.Risk); err != nil {
		return fmt.Errorf("risk: %w", err)
	}
	return nil
}

// Review records one reviewer verdict.
type Review struct {
	Reviewer  string       `json:"reviewer"`
	Comment   string       `json:"comment"`
	Action    ReviewAction `json:"action"`
	Timestamp time.Time    `json:"timestamp"`
	Seq       int          `json:"seq,omitempty"`
}

// ChecklistItem is one implementation sub-task.
type ChecklistItem struct {
	ID          string     `json:"id"`
	Task        string     `json:"task"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

// LogEntry is one timestamped execution record.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Details   string    `json:"details,omitempty"`
	Seq       int       `json:"seq,omitempty"`
}

// Execution log action names.
const (
	LogSubmitted        = "submitted_for_review"
	LogRevised          = "revised"
	LogPlanCreated      = "implementation_plan_created"
	LogStarted          = "implementation_started"
	LogTaskCompleted    = "task_completed"
	LogCompleted        = "implementation_completed"
	LogRolledBack       = "rolled_back"
	LogWarning          = "warning"
	LogSnapshotRecorded = "snapshot_recorded"
)

// Proposal is the root record, persisted as <id>.json. EventSeq numbers
// reviews and execution entries in recording order across both lists.
type Proposal struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	Category       Category        `json:"category"`
	Status         Status          `json:"status"`
	Summary        string          `json:"summary"`
	Items          []Item          `json:"items"`
	Reviews        []Review        `json:"reviews"`
	RevisionCount  int             `json:"revision_count"`
	Plan           string          `json:"implementation_plan,omitempty"`
	Checklist      []ChecklistItem `json:"checklist"`
	Blueprint      json.RawMessage `json:"blueprint,omitempty"`
	ExecutionLog   []LogEntry      `json:"execution_log"`
	EventSeq       int             `json:"event_seq"`
	PreSnapshotID  string          `json:"pre_implementation_snapshot,omitempty"`
	PostSnapshotID string          `json:"post_implementation_snapshot,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// New builds a DRAFT proposal with a fresh id. It validates the category and
// every item but does not persist anything.
func New(title string, category Category, summary string, items []Item) (*Proposal, error) {
	if title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if err := ValidateCategory(category); err != nil {
		return nil, err
	}
	for i, item := range items {
		if err := item.Validate(); err != nil {
			return nil, fmt.Errorf("item %d: %w", i+1, err)
		}
	}

	now := timeNow().UTC()
	if items == nil {
		items = []Item{}
	}
	return &Proposal{
		ID:           NewID(now),
		Title:        title,
		Category:     category,
		Status:       StatusDraft,
		Summary:      summary,
		Items:        items,
		Reviews:      []Review{},
		Checklist:    []ChecklistItem{},
		ExecutionLog: []LogEntry{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// appendLog records an execution entry and bumps UpdatedAt.
func (p *Proposal) appendLog(action, details string) {
	now := timeNow().UTC()
	p.ExecutionLog = append(p.ExecutionLog, LogEntry{
		Timestamp: now,
		Action:    action,
		Details:   details,
		Seq:       p.nextSeq(),
	})
	p.UpdatedAt = now
}

// nextSeq advances and returns the proposal's event counter.
func (p *Proposal) nextSeq() int {
	p.EventSeq++
	return p.EventSeq
}

// Log appends an execution entry that is not tied to a status change,
// such as a warning or a snapshot note.
func (p *Proposal) Log(action, details string) {
	p.appendLog(action, details)
}
