package deployment

import (
	"context"

	"github.com/cespare/xxhash/v2"
)

const lockStripes = 64

// agentLocks serializes claims per agent over a fixed set of stripes.
// Distinct agents may share a stripe; that only costs throughput.
type agentLocks struct {
	stripes [lockStripes]chan struct{}
}

func newAgentLocks() *agentLocks {
	l := &agentLocks{}
	for i := range l.stripes {
		l.stripes[i] = make(chan struct{}, 1)
	}
	return l
}

// acquire blocks until the agent's stripe is free or ctx is done
func (l *agentLocks) acquire(ctx context.Context, agentID string) (release func(), err error) {
	stripe := l.stripes[xxhash.Sum64String(agentID)%lockStripes]
	select {
	case stripe <- struct{}{}:
		return func() { <-stripe }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
