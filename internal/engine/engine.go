// Package engine is the lifecycle controller of the self-improvement
// workflow. It owns the proposal store, the snapshot manager and the
// optional history journal, and is the only code that mutates proposals.
//
// Every mutating call loads the record, applies one transition and
// persists the whole record before returning, all under a lock keyed by
// proposal id. A call that fails leaves the stored record untouched.
package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/HendryAvila/evolve/internal/audit"
	"github.com/HendryAvila/evolve/internal/config"
	"github.com/HendryAvila/evolve/internal/journal"
	"github.com/HendryAvila/evolve/internal/logging"
	"github.com/HendryAvila/evolve/internal/proposals"
	"github.com/HendryAvila/evolve/internal/snapshot"
	"github.com/HendryAvila/evolve/internal/templates"
)

// ErrJournalDisabled is returned by history queries when no journal is wired.
var ErrJournalDisabled = errors.New("history journal is disabled")

// timeNow is replaced in tests.
var timeNow = time.Now

// Snapshots is the subset of *snapshot.Manager the engine uses.
type Snapshots interface {
	Create(name, description string, paths, dbPaths []string, metadata map[string]any) (*snapshot.Snapshot, error)
	Restore(id string) (*snapshot.RestoreResult, error)
	Get(id string) (*snapshot.Snapshot, error)
	List() []snapshot.Snapshot
	Count() int
	Delete(id string) error
}

// Journal is the subset of *journal.Store the engine uses.
type Journal interface {
	Record(e journal.Entry) (int64, error)
	ForProposal(proposalID string) ([]journal.Entry, error)
	Search(query string, limit int) ([]journal.SearchResult, error)
	Stats() (*journal.Stats, error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithJournal mirrors every transition into j.
func WithJournal(j Journal) Option {
	return func(e *Engine) { e.journal = j }
}

// WithLogger sets the logger. The default discards output.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithRenderer overrides the report renderer.
func WithRenderer(r templates.Renderer) Option {
	return func(e *Engine) { e.renderer = r }
}

// Engine applies lifecycle transitions. Safe for concurrent use.
type Engine struct {
	cfg      *config.Config
	store    proposals.Store
	snaps    Snapshots
	journal  Journal
	renderer templates.Renderer
	log      *log.Logger
	locks    *keyedMutex
}

// New builds an Engine over the given store and snapshot manager.
func New(cfg *config.Config, store proposals.Store, snaps Snapshots, opts ...Option) (*Engine, error) {
	if cfg == nil || store == nil || snaps == nil {
		return nil, fmt.Errorf("engine: config, store and snapshots are required")
	}
	e := &Engine{
		cfg:   cfg,
		store: store,
		snaps: snaps,
		log:   logging.Discard(),
		locks: newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.renderer == nil {
		r, err := templates.NewRenderer()
		if err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
		e.renderer = r
	}
	return e, nil
}

// ─── Proposals ───────────────────────────────────────────────────────────────

// CreateProposal persists a new DRAFT proposal.
func (e *Engine) CreateProposal(title string, category proposals.Category, summary string, items []proposals.Item) (*proposals.Proposal, error) {
	p, err := proposals.New(title, category, summary, items)
	if err != nil {
		return nil, err
	}
	if err := e.store.Create(p); err != nil {
		return nil, err
	}
	e.log.Info("proposal created", "proposal", p.ID, "category", p.Category, "items", len(p.Items))
	e.record(p, "created", "", p.Title)
	return p, nil
}

// GetProposal returns the stored proposal.
func (e *Engine) GetProposal(id string) (*proposals.Proposal, error) {
	return e.store.Get(id)
}

// ListProposals returns proposals matching f, newest first.
func (e *Engine) ListProposals(f proposals.Filter) ([]proposals.Proposal, error) {
	return e.store.List(f)
}

// SubmitForReview moves a DRAFT proposal to PENDING_REVIEW.
func (e *Engine) SubmitForReview(id string) (*proposals.Proposal, error) {
	return e.mutate(id, proposals.ActSubmit, "", func(p *proposals.Proposal) (string, error) {
		return "", proposals.Submit(p)
	})
}

// ReviewProposal records a reviewer verdict on a PENDING_REVIEW proposal.
func (e *Engine) ReviewProposal(id, reviewer string, verdict proposals.ReviewAction, comment string) (*proposals.Proposal, error) {
	action, err := proposals.ReviewActionFor(verdict)
	if err != nil {
		return nil, err
	}
	return e.mutate(id, action, reviewer, func(p *proposals.Proposal) (string, error) {
		return comment, proposals.ApplyReview(p, reviewer, verdict, comment)
	})
}

// ReviseProposal resubmits a REVISION_REQUESTED proposal. Nil arguments
// leave the corresponding field unchanged.
func (e *Engine) ReviseProposal(id string, summary *string, items []proposals.Item) (*proposals.Proposal, error) {
	return e.mutate(id, proposals.ActRevise, "", func(p *proposals.Proposal) (string, error) {
		if err := proposals.Revise(p, summary, items); err != nil {
			return "", err
		}
		return fmt.Sprintf("revision %d", p.RevisionCount), nil
	})
}

// CreateImplementationPlan attaches a plan and checklist to an APPROVED
// proposal.
func (e *Engine) CreateImplementationPlan(id, plan string, tasks []string, blueprint []byte) (*proposals.Proposal, error) {
	return e.mutate(id, proposals.ActPlan, "", func(p *proposals.Proposal) (string, error) {
		if err := proposals.AttachPlan(p, plan, tasks, blueprint); err != nil {
			return "", err
		}
		return fmt.Sprintf("%d checklist items", len(p.Checklist)), nil
	})
}

// BeginImplementation takes the pre-implementation snapshot of the tracked
// paths and moves an APPROVED proposal with a plan to IMPLEMENTING.
//
// A partial snapshot is accepted with a warning. If the snapshot cannot be
// created at all the proposal is left unchanged.
func (e *Engine) BeginImplementation(id string) (*proposals.Proposal, error) {
	var taken string
	p, err := e.mutate(id, proposals.ActBegin, "", func(p *proposals.Proposal) (string, error) {
		if err := proposals.CanTransition(p, proposals.ActBegin); err != nil {
			return "", err
		}
		snap, err := e.phaseSnapshot(p, "pre")
		if err != nil {
			return "", err
		}
		taken = snap.ID
		if err := proposals.Begin(p, snap.ID); err != nil {
			return "", err
		}
		return "pre-snapshot " + p.PreSnapshotID, nil
	})
	if err != nil && taken != "" {
		e.discardSnapshot(id, taken)
	}
	return p, err
}

// CompleteTask marks one checklist item of an IMPLEMENTING proposal done.
func (e *Engine) CompleteTask(id, taskID, notes string) (*proposals.Proposal, error) {
	return e.mutate(id, proposals.ActCompleteTask, "", func(p *proposals.Proposal) (string, error) {
		if err := proposals.CompleteTask(p, taskID, notes); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s done, progress %.0f%%", taskID, proposals.Progress(p)), nil
	})
}

// CompleteImplementation takes the post-implementation snapshot and moves
// an IMPLEMENTING proposal to COMPLETED. Unfinished checklist items do not
// block completion; they produce a warning log line and a warning entry
// in the execution log.
func (e *Engine) CompleteImplementation(id string) (*proposals.Proposal, error) {
	var taken string
	p, err := e.mutate(id, proposals.ActComplete, "", func(p *proposals.Proposal) (string, error) {
		if err := proposals.CanTransition(p, proposals.ActComplete); err != nil {
			return "", err
		}
		snap, err := e.phaseSnapshot(p, "post")
		if err != nil {
			return "", err
		}
		taken = snap.ID
		if progress := proposals.Progress(p); progress < 100 {
			pending := len(proposals.PendingTasks(p))
			e.log.Warn("completing with unfinished checklist", "proposal", p.ID, "progress", progress, "pending", pending)
			p.Log(proposals.LogWarning, fmt.Sprintf("completed at %.0f%% progress with %d pending task(s)", progress, pending))
		}
		if err := proposals.Complete(p, snap.ID); err != nil {
			return "", err
		}
		return "post-snapshot " + p.PostSnapshotID, nil
	})
	if err != nil && taken != "" {
		e.discardSnapshot(id, taken)
	}
	return p, err
}

// RollbackImplementation restores the pre-implementation snapshot of an
// IMPLEMENTING or COMPLETED proposal and marks it ROLLED_BACK. When the
// restore fails, even partially, the proposal keeps its status and the
// restore result is returned alongside the error.
func (e *Engine) RollbackImplementation(id string) (*proposals.Proposal, *snapshot.RestoreResult, error) {
	var res *snapshot.RestoreResult
	p, err := e.mutate(id, proposals.ActRollback, "", func(p *proposals.Proposal) (string, error) {
		if err := proposals.CanTransition(p, proposals.ActRollback); err != nil {
			return "", err
		}
		var err error
		res, err = e.snaps.Restore(p.PreSnapshotID)
		if err != nil {
			e.log.Warn("rollback restore failed", "proposal", p.ID, "snapshot", p.PreSnapshotID, "err", err)
			return "", fmt.Errorf("restoring %s: %w", p.PreSnapshotID, err)
		}
		details := fmt.Sprintf("restored %d path(s) from %s", len(res.Restored), res.SnapshotID)
		if res.DatabaseBackup != "" {
			details += "; database backup left at " + res.DatabaseBackup
		}
		if err := proposals.MarkRolledBack(p, details); err != nil {
			return "", err
		}
		return details, nil
	})
	return p, res, err
}

// phaseSnapshot snapshots the tracked paths for a pre or post
// implementation boundary. A partial copy is logged and noted in the
// execution log; any other failure is returned.
func (e *Engine) phaseSnapshot(p *proposals.Proposal, phase string) (*snapshot.Snapshot, error) {
	snap, err := e.snaps.Create(
		phase+"-"+p.ID,
		fmt.Sprintf("%s-implementation snapshot for %q", phase, p.Title),
		e.cfg.TrackedPaths,
		e.cfg.DatabasePaths,
		map[string]any{"proposal_id": p.ID, "phase": phase},
	)
	switch {
	case err == nil:
	case errors.Is(err, snapshot.ErrPartialCopy) && snap != nil:
		e.log.Warn("partial snapshot", "proposal", p.ID, "snapshot", snap.ID, "failures", len(snap.Failures))
		p.Log(proposals.LogWarning, fmt.Sprintf("%s-snapshot %s is partial: %d path(s) failed", phase, snap.ID, len(snap.Failures)))
	default:
		return nil, fmt.Errorf("%s-implementation snapshot: %w", phase, err)
	}
	p.Log(proposals.LogSnapshotRecorded, fmt.Sprintf("%s %s (%d path(s))", phase, snap.ID, len(snap.FilesBackedUp)))
	return snap, nil
}

// discardSnapshot removes a boundary snapshot whose transition was not
// persisted, so no snapshot is left without an owning proposal.
func (e *Engine) discardSnapshot(proposalID, snapshotID string) {
	if err := e.snaps.Delete(snapshotID); err != nil {
		e.log.Warn("orphaned snapshot", "proposal", proposalID, "snapshot", snapshotID, "err", err)
		return
	}
	e.log.Debug("discarded snapshot", "proposal", proposalID, "snapshot", snapshotID)
}

// mutate runs fn on a freshly loaded copy of the proposal under its id
// lock and persists the result. fn returns the details for the journal.
func (e *Engine) mutate(id string, action proposals.Action, actor string, fn func(*proposals.Proposal) (string, error)) (*proposals.Proposal, error) {
	unlock := e.locks.lock(id)
	defer unlock()

	p, err := e.store.Get(id)
	if err != nil {
		return nil, err
	}
	from := p.Status
	details, err := fn(p)
	if err != nil {
		e.log.Debug("transition rejected", "proposal", id, "action", action, "status", from, "err", err)
		return nil, err
	}
	if err := e.store.Update(p); err != nil {
		return nil, fmt.Errorf("persisting proposal %s: %w", id, err)
	}

	e.log.Info("transition", "proposal", id, "action", action, "from", from, "to", p.Status)
	e.record(p, string(action), actor, details)
	return p, nil
}

// record mirrors an event into the journal. Journal failures are logged,
// never returned: the proposal record is the source of truth.
func (e *Engine) record(p *proposals.Proposal, action, actor, details string) {
	if e.journal == nil {
		return
	}
	_, err := e.journal.Record(journal.Entry{
		ProposalID: p.ID,
		Title:      p.Title,
		Action:     action,
		Actor:      actor,
		Status:     string(p.Status),
		Details:    details,
	})
	if err != nil {
		e.log.Warn("journal write failed", "proposal", p.ID, "action", action, "err", err)
	}
}

// ─── Snapshots ───────────────────────────────────────────────────────────────

// CreateSnapshot backs up paths and database files. A partial snapshot is
// returned together with an error wrapping snapshot.ErrPartialCopy.
func (e *Engine) CreateSnapshot(name, description string, paths, dbPaths []string) (*snapshot.Snapshot, error) {
	snap, err := e.snaps.Create(name, description, paths, dbPaths, nil)
	if err != nil && snap != nil {
		e.log.Warn("partial snapshot", "snapshot", snap.ID, "failures", len(snap.Failures))
	} else if err == nil {
		e.log.Info("snapshot created", "snapshot", snap.ID, "paths", len(snap.FilesBackedUp))
	}
	return snap, err
}

// RestoreSnapshot copies a snapshot's files back into place. Database
// backups are reported in the result, not restored.
func (e *Engine) RestoreSnapshot(id string) (*snapshot.RestoreResult, error) {
	res, err := e.snaps.Restore(id)
	if err != nil {
		e.log.Warn("restore failed", "snapshot", id, "err", err)
		return res, err
	}
	e.log.Info("snapshot restored", "snapshot", id, "paths", len(res.Restored))
	return res, nil
}

// GetSnapshot returns one snapshot.
func (e *Engine) GetSnapshot(id string) (*snapshot.Snapshot, error) {
	return e.snaps.Get(id)
}

// ListSnapshots returns every snapshot, newest first.
func (e *Engine) ListSnapshots() []snapshot.Snapshot {
	return e.snaps.List()
}

// ─── Audit ───────────────────────────────────────────────────────────────────

// GetAuditTrail returns the chronological event trail of one proposal.
func (e *Engine) GetAuditTrail(id string) ([]audit.Event, error) {
	p, err := e.store.Get(id)
	if err != nil {
		return nil, err
	}
	return audit.Trail(p), nil
}

// Report aggregates every proposal and the snapshot count.
func (e *Engine) Report() (*audit.Report, error) {
	list, err := e.store.List(proposals.Filter{})
	if err != nil {
		return nil, err
	}
	return audit.BuildReport(list, e.snaps.Count(), e.cfg.RecentLimit, timeNow().UTC()), nil
}

// GenerateReport renders Report as markdown text.
func (e *Engine) GenerateReport() (string, error) {
	r, err := e.Report()
	if err != nil {
		return "", err
	}
	return e.renderer.Render(templates.Report, r)
}

// RenderProposal renders one proposal as markdown text.
func (e *Engine) RenderProposal(id string) (string, error) {
	p, err := e.store.Get(id)
	if err != nil {
		return "", err
	}
	return e.renderer.Render(templates.Proposal, p)
}

// ─── History ─────────────────────────────────────────────────────────────────

// SearchHistory runs a full-text query over journaled events.
func (e *Engine) SearchHistory(query string, limit int) ([]journal.SearchResult, error) {
	if e.journal == nil {
		return nil, ErrJournalDisabled
	}
	return e.journal.Search(query, limit)
}

// History returns the journaled events of one proposal.
func (e *Engine) History(id string) ([]journal.Entry, error) {
	if e.journal == nil {
		return nil, ErrJournalDisabled
	}
	return e.journal.ForProposal(id)
}

// HistoryStats summarizes the journal.
func (e *Engine) HistoryStats() (*journal.Stats, error) {
	if e.journal == nil {
		return nil, ErrJournalDisabled
	}
	return e.journal.Stats()
}
