package stacks

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDStrategy selects how Stacks assigns new volume ids: either a
// monotone counter (stable, compact, good for tests) or a random
// globally-unique id.
type IDStrategy string

const (
	IDStrategyMonotone IDStrategy = "monotone"
	IDStrategyRandom   IDStrategy = "random"
)

// idGenerator produces new volume ids according to the configured
// strategy. It is safe for concurrent use.
type idGenerator struct {
	strategy IDStrategy
	counter  uint64
}

func newIDGenerator(strategy IDStrategy) *idGenerator {
	if strategy == "" {
		strategy = IDStrategyMonotone
	}
	return &idGenerator{strategy: strategy}
}

func (g *idGenerator) next() string {
	switch g.strategy {
	case IDStrategyRandom:
		return uuid.NewString()
	default:
		n := atomic.AddUint64(&g.counter, 1)
		return fmt.Sprintf("vol_%d", n)
	}
}
