package attendance

import (
	"context"
	"sync/atomic"
)

// Gate lets one submission run at a time. A call made while another is
// outstanding does nothing and returns ErrSubmissionInFlight.
type Gate struct {
	next       Submitter
	submitting atomic.Bool
}

func NewGate(next Submitter) *Gate {
	return &Gate{next: next}
}

// Submit implements Submitter.
func (g *Gate) Submit(ctx context.Context, name, studentID, displayTime string) error {
	if !g.submitting.CompareAndSwap(false, true) {
		return ErrSubmissionInFlight
	}
	defer g.submitting.Store(false)
	return g.next.Submit(ctx, name, studentID, displayTime)
}

// Submitting reports whether a submission is outstanding.
func (g *Gate) Submitting() bool {
	return g.submitting.Load()
}
