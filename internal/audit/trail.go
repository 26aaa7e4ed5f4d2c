// Package audit provides the read-only views over proposal history: the
// merged per-proposal event trail and the aggregate engine report.
//
// Nothing in this package mutates a proposal.
package audit

import (
	"sort"
	"time"

	"github.com/HendryAvila/evolve/internal/proposals"
)

// Kind classifies where an event came from.
type Kind string

const (
	KindCreated   Kind = "created"
	KindReview    Kind = "review"
	KindExecution Kind = "execution"
)

// Event is one entry of a proposal's audit trail.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      Kind      `json:"kind"`
	Action    string    `json:"action"`
	Actor     string    `json:"actor,omitempty"`
	Details   string    `json:"details,omitempty"`

	seq int
}

// Trail merges the creation event, every review and every execution log
// entry of p into one sequence ordered by timestamp. Events with equal
// timestamps are ordered by their recording sequence; creation comes first.
func Trail(p *proposals.Proposal) []Event {
	events := make([]Event, 0, 1+len(p.Reviews)+len(p.ExecutionLog))
	events = append(events, Event{
		Timestamp: p.CreatedAt,
		Kind:      KindCreated,
		Action:    "created",
		Details:   p.Title,
	})
	for _, r := range p.Reviews {
		events = append(events, Event{
			Timestamp: r.Timestamp,
			Kind:      KindReview,
			Action:    string(r.Action),
			Actor:     r.Reviewer,
			Details:   r.Comment,
			seq:       r.Seq,
		})
	}
	for _, e := range p.ExecutionLog {
		events = append(events, Event{
			Timestamp: e.Timestamp,
			Kind:      KindExecution,
			Action:    e.Action,
			Details:   e.Details,
			seq:       e.Seq,
		})
	}

	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].Timestamp.Before(events[j].Timestamp)
		}
		return events[i].seq < events[j].seq
	})
	return events
}
