// Package status accumulates per-replica outcomes into the result returned
// to the caller.
package status

import (
	"sort"
	"sync"
	"time"

	"github.com/datagrid/phymv/internal/fault"
	"github.com/datagrid/phymv/internal/policy"
)

// State summarizes what an operation left behind in the catalog.
type State string

// Aggregate states.
const (
	// StateUnchanged means nothing was committed, or everything committed
	// was rolled back.
	StateUnchanged State = "unchanged"
	// StateCommitted means every target now points at its new location.
	StateCommitted State = "committed"
	// StatePartial means some targets moved and others did not.
	StatePartial State = "partial"
	// StateReconcile means the catalog became unreachable after bytes were
	// moved; an operator has to reconcile the affected replicas.
	StateReconcile State = "reconcile"
)

// Outcome is the result of acting on one replica.
type Outcome struct {
	ReplNum          int
	SourceResource   string
	DestResource     string
	BytesTransferred int64
	Elapsed          time.Duration
	Success          bool
	ErrorKind        fault.Kind
	Detail           string
	// Committed reports that the catalog points at the new location.
	Committed bool
	// Reconcile reports that the replica's catalog state is unknown.
	Reconcile bool
}

// Failed builds the outcome of a target that failed with err.
func Failed(replNum int, source, dest string, elapsed time.Duration, err error) Outcome {
	kind := fault.KindOf(err)
	if kind == "" {
		kind = fault.TransferFailed
	}
	return Outcome{
		ReplNum:        replNum,
		SourceResource: source,
		DestResource:   dest,
		Elapsed:        elapsed,
		ErrorKind:      kind,
		Detail:         err.Error(),
	}
}

// AggregateResult is returned to the caller of a relocation.
type AggregateResult struct {
	OverallSuccess bool
	State          State
	Mode           policy.ExecutionMode
	Outcomes       []Outcome
}

// BytesTransferred sums bytes moved by successful targets.
func (r *AggregateResult) BytesTransferred() int64 {
	var n int64
	for _, o := range r.Outcomes {
		if o.Success {
			n += o.BytesTransferred
		}
	}
	return n
}

// Tracker collects outcomes. It is safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	outcomes []Outcome
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Record adds one outcome.
func (t *Tracker) Record(o Outcome) {
	t.mu.Lock()
	t.outcomes = append(t.outcomes, o)
	t.mu.Unlock()
}

// Summarize builds the aggregate result. OverallSuccess means every target
// succeeded, in either mode; a best-effort batch where only some targets
// moved reports StatePartial instead. Satisfied tells whether mode accepts
// the batch.
func (t *Tracker) Summarize(mode policy.ExecutionMode) AggregateResult {
	t.mu.Lock()
	outcomes := make([]Outcome, len(t.outcomes))
	copy(outcomes, t.outcomes)
	t.mu.Unlock()

	sort.SliceStable(outcomes, func(i, j int) bool {
		return outcomes[i].ReplNum < outcomes[j].ReplNum
	})

	var succeeded, committed, reconcile int
	for _, o := range outcomes {
		if o.Success {
			succeeded++
		}
		if o.Committed {
			committed++
		}
		if o.Reconcile {
			reconcile++
		}
	}

	res := AggregateResult{Mode: mode, Outcomes: outcomes}
	switch {
	case reconcile > 0:
		res.State = StateReconcile
	case committed == 0:
		res.State = StateUnchanged
	case committed == len(outcomes):
		res.State = StateCommitted
	default:
		res.State = StatePartial
	}

	res.OverallSuccess = len(outcomes) > 0 && succeeded == len(outcomes)
	return res
}

// Satisfied reports whether the result is acceptable under its mode:
// all-or-nothing needs every target, best-effort needs at least one.
func (r *AggregateResult) Satisfied() bool {
	if r.Mode == policy.BestEffort {
		for _, o := range r.Outcomes {
			if o.Success {
				return true
			}
		}
		return false
	}
	return r.OverallSuccess
}
