package steal

import (
	"fmt"
	"math/rand"

	"github.com/petrijr/constellation/pkg/api"
)

// Strategy selects a victim for an idle executor. Implementations never
// return the executor itself and honor the skip set, which holds victims
// that already came up empty during the current idle spin (re-polling them
// immediately only wastes lock acquisitions and, for remote victims,
// cross-node messages).
//
// A strategy instance belongs to one executor and is not safe for concurrent
// use.
type Strategy interface {
	SelectVictim(self ExecutorRef, candidates []ExecutorRef, skip map[ExecutorRef]bool) (ExecutorRef, bool)
}

// New builds the strategy named by kind. Each executor gets its own
// instance, seeded distinctly so random choices do not stampede the same
// victim.
func New(kind api.StealStrategyKind, seed int64) (Strategy, error) {
	switch kind {
	case api.StealRoundRobin:
		return &roundRobin{}, nil
	case api.StealRandom:
		return &random{rnd: rand.New(rand.NewSource(seed))}, nil
	case api.StealLocality:
		return &locality{rnd: rand.New(rand.NewSource(seed))}, nil
	default:
		return nil, fmt.Errorf("steal: unknown strategy %q", kind)
	}
}

// roundRobin rotates through the candidates, resuming after the previously
// chosen victim.
type roundRobin struct {
	next int
}

func (s *roundRobin) SelectVictim(self ExecutorRef, candidates []ExecutorRef, skip map[ExecutorRef]bool) (ExecutorRef, bool) {
	n := len(candidates)
	for i := 0; i < n; i++ {
		v := candidates[(s.next+i)%n]
		if v == self || skip[v] {
			continue
		}
		s.next = (s.next + i + 1) % n
		return v, true
	}
	return ExecutorRef{}, false
}

// random picks a uniform-random candidate.
type random struct {
	rnd *rand.Rand
}

func (s *random) SelectVictim(self ExecutorRef, candidates []ExecutorRef, skip map[ExecutorRef]bool) (ExecutorRef, bool) {
	eligible := make([]ExecutorRef, 0, len(candidates))
	for _, v := range candidates {
		if v != self && !skip[v] {
			eligible = append(eligible, v)
		}
	}
	if len(eligible) == 0 {
		return ExecutorRef{}, false
	}
	return eligible[s.rnd.Intn(len(eligible))], true
}

// locality prefers same-node victims; cross-node victims are considered only
// once every local one has come up empty.
type locality struct {
	rnd *rand.Rand
}

func (s *locality) SelectVictim(self ExecutorRef, candidates []ExecutorRef, skip map[ExecutorRef]bool) (ExecutorRef, bool) {
	var local, remote []ExecutorRef
	for _, v := range candidates {
		if v == self || skip[v] {
			continue
		}
		if v.Node == self.Node {
			local = append(local, v)
		} else {
			remote = append(remote, v)
		}
	}
	if len(local) > 0 {
		return local[s.rnd.Intn(len(local))], true
	}
	if len(remote) > 0 {
		return remote[s.rnd.Intn(len(remote))], true
	}
	return ExecutorRef{}, false
}
