// Package steal holds the victim-selection policies and steal-pool
// topologies idle executors use to find work.
package steal

// ExecutorRef names one executor in the run: the node it lives on and its
// index within that node.
type ExecutorRef struct {
	Node  int32
	Index int
}

// Pool is the static set of executors eligible as steal partners. Membership
// is fixed for a run's duration and identical from every member's point of
// view: no executor is visible to some members and invisible to others.
type Pool struct {
	members []ExecutorRef
}

// NewNodeLocalPool builds the default topology: one pool holding every
// executor of a single node.
func NewNodeLocalPool(node int32, executors int) *Pool {
	p := &Pool{members: make([]ExecutorRef, 0, executors)}
	for i := 0; i < executors; i++ {
		p.members = append(p.members, ExecutorRef{Node: node, Index: i})
	}
	return p
}

// NewHierarchicalPool builds the cross-node topology: every executor of
// every node, in node order. Nodes are assumed homogeneous (the launcher
// starts each process with the same executor count). Remote members are
// reached through the node router as steal-request messages, never by direct
// queue access.
func NewHierarchicalPool(nodes, executorsPerNode int) *Pool {
	p := &Pool{members: make([]ExecutorRef, 0, nodes*executorsPerNode)}
	for n := 0; n < nodes; n++ {
		for i := 0; i < executorsPerNode; i++ {
			p.members = append(p.members, ExecutorRef{Node: int32(n), Index: i})
		}
	}
	return p
}

// Members returns the full membership, in stable order.
func (p *Pool) Members() []ExecutorRef { return p.members }

// MembersOf returns the steal candidates for the given executor: every pool
// member except itself.
func (p *Pool) MembersOf(self ExecutorRef) []ExecutorRef {
	out := make([]ExecutorRef, 0, len(p.members)-1)
	for _, m := range p.members {
		if m != self {
			out = append(out, m)
		}
	}
	return out
}

// Contains reports whether ref is a pool member.
func (p *Pool) Contains(ref ExecutorRef) bool {
	for _, m := range p.members {
		if m == ref {
			return true
		}
	}
	return false
}
