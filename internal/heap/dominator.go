package heap

import (
	"time"

	apperrors "github.com/heapdump-analysis/pkg/errors"
)

// virtualRootRPO is the reverse-post-order index of the synthetic node ⊥
// that dominates every GC root. Without it, intersect(r1, r2) for an object
// reachable from two distinct roots has no common ancestor and the
// iteration oscillates (§4.4).
const virtualRootRPO = 0

// DefaultStagnationPatience is the number of consecutive non-improving iterations
// the fixed-point loop tolerates before aborting with the current
// approximation (§4.4 step 5). The source this algorithm is drawn from
// hardcodes 20; exposed here as a tuning knob per the corresponding open
// question.
const DefaultStagnationPatience = 20

// predecessorWatchdogInterval is how long predecessor-map construction can
// go without a progress tick before a stall is logged (§4.4).
const predecessorWatchdogInterval = 30 * time.Second

// unsetIdom marks a node whose idom has not been assigned yet while the
// fixed-point iteration runs. It is kept apart from -1, which stands for
// the virtual root ⊥ during the iteration.
const unsetIdom int32 = -2

// OutboundRefsFunc yields the live (resolved, in-bounds) outbound object
// references of id32, limited to edges pointing at another live object
// (§4.4 "Inputs"). Implementations typically re-parse the object's body
// lazily from the mmap'd dump.
type OutboundRefsFunc func(id32 int32) ([]int32, error)

// DominatorOptions configures a ComputeDominators run.
type DominatorOptions struct {
	StagnationPatience int
	Progress           Progress
	Cancel             CancelPredicate
	Logger             Logger
}

// Logger is the minimal logging surface the dominator engine and path
// finder need; internal/heap never imports pkg/utils directly so that it
// stays embeddable without pulling the full logging stack into callers
// that don't want it.
type Logger interface {
	Warn(msg string, args ...interface{})
}

func (o *DominatorOptions) fillDefaults() {
	if o.StagnationPatience <= 0 {
		o.StagnationPatience = DefaultStagnationPatience
	}
	if o.Progress == nil {
		o.Progress = NullProgress{}
	}
	if o.Cancel == nil {
		o.Cancel = NeverCancel{}
	}
}

// DominatorResult holds the per-object outputs of ComputeDominators, keyed
// by id32. Approximate is set when the stagnation guard tripped before the
// fixed point was reached (§4.4 step 5, §7 CodeComputationApproximate).
type DominatorResult struct {
	Idom         []int32 // by id32; UndefID32 for unreachable objects, roots, and objects dominated only by the virtual root
	RetainedSize []int64 // by id32; shallow size alone for unreachable objects
	Approximate  bool
}

// rpoState holds the reverse-post-order numbering built from a DFS seeded
// at every GC root, with the virtual root ⊥ prepended at index 0. Node id32
// values and RPO indices are distinct spaces: rpoOf maps id32 -> rpo index
// (or -1 if unreached), nodeOf is the inverse.
type rpoState struct {
	rpoOf  []int32 // by id32
	nodeOf []int32 // by rpo index; nodeOf[0] is the virtual root, encoded as -1
}

// buildRPO runs an iterative (explicit-stack) post-order DFS from every
// root, producing the reverse post-order numbering (§4.4 step 1). An
// iterative DFS is used because heap graphs regularly exceed the recursion
// depth a goroutine stack can safely hold.
func buildRPO(objectCount int, roots []int32, outbound OutboundRefsFunc, cancel CancelPredicate) (*rpoState, error) {
	visited := make([]bool, objectCount)
	postOrder := make([]int32, 0, objectCount)

	type frame struct {
		node     int32
		children []int32
		next     int
	}

	for _, root := range roots {
		if root < 0 || int(root) >= objectCount || visited[root] {
			continue
		}
		stack := []*frame{{node: root}}
		visited[root] = true
		iter := 0
		for len(stack) > 0 {
			iter++
			if iter%10000 == 0 && cancel.Cancelled() {
				return nil, apperrors.ErrCancelled
			}
			top := stack[len(stack)-1]
			if top.children == nil {
				refs, err := outbound(top.node)
				if err != nil {
					return nil, err
				}
				top.children = refs
			}
			advanced := false
			for top.next < len(top.children) {
				child := top.children[top.next]
				top.next++
				if child < 0 || int(child) >= objectCount || visited[child] {
					continue
				}
				visited[child] = true
				stack = append(stack, &frame{node: child})
				advanced = true
				break
			}
			if advanced {
				continue
			}
			postOrder = append(postOrder, top.node)
			stack = stack[:len(stack)-1]
		}
	}

	// RPO index 0 is the virtual root; indices 1..n are the reverse of
	// postOrder (last-finished node visited first, i.e. closest to a root).
	n := len(postOrder)
	rpoOf := make([]int32, objectCount)
	for i := range rpoOf {
		rpoOf[i] = -1
	}
	nodeOf := make([]int32, n+1)
	nodeOf[0] = -1
	for i, obj := range postOrder {
		rpoIdx := int32(n - i)
		nodeOf[rpoIdx] = obj
		rpoOf[obj] = rpoIdx
	}

	return &rpoState{rpoOf: rpoOf, nodeOf: nodeOf}, nil
}

// buildPredecessorMap inverts the outbound-reference relation restricted to
// reachable nodes (those with an RPO index), so the fixed-point iteration
// can ask "who points at n" in O(1) amortized (§4.4 step 2 prerequisite).
func buildPredecessorMap(rpo *rpoState, outbound OutboundRefsFunc, progress Progress, cancel CancelPredicate, logger Logger) ([][]int32, error) {
	n := len(rpo.nodeOf) - 1 // exclude the virtual root slot
	preds := make([][]int32, n+1)

	lastTick := time.Now()
	processed := 0
	total := n
	for rpoIdx := 1; rpoIdx <= n; rpoIdx++ {
		node := rpo.nodeOf[rpoIdx]
		refs, err := outbound(node)
		if err != nil {
			return nil, err
		}
		for _, to := range refs {
			if to < 0 || int(to) >= len(rpo.rpoOf) {
				continue
			}
			toRPO := rpo.rpoOf[to]
			if toRPO < 0 {
				continue
			}
			preds[toRPO] = append(preds[toRPO], int32(rpoIdx))
		}

		processed++
		if processed%10000 == 0 {
			if cancel.Cancelled() {
				return nil, apperrors.ErrCancelled
			}
			if logger != nil && time.Since(lastTick) > predecessorWatchdogInterval {
				logger.Warn("predecessor map construction stalled", "processed", processed, "total", total)
			}
			if total > 0 {
				frac := 0.2 + 0.2*float64(processed)/float64(total)
				progress.Tick(frac, "building predecessor map")
				lastTick = time.Now()
			}
		}
	}
	return preds, nil
}

// intersect walks up the idom tree from whichever of a, b has the later
// (higher) RPO index until the two paths meet, returning the common
// ancestor (§4.4 step 4). Both walks guard against unset links (unsetIdom):
// the RPO produced by buildRPO cannot fully linearize a cyclic graph, so a
// walk can hit a node whose idom isn't set yet mid-iteration. A walk that
// follows a root's idom reaches -1, the virtual root ⊥ at RPO index 0, so
// two nodes whose only common dominator is ⊥ meet there and -1 is returned.
func intersect(idom []int32, rpoOf []int32, nodeOf []int32, a, b int32) int32 {
	for a != b {
		for rpoIndexOf(rpoOf, nodeOf, a) > rpoIndexOf(rpoOf, nodeOf, b) {
			next := idom[a]
			if next == unsetIdom {
				return b
			}
			a = next
		}
		for rpoIndexOf(rpoOf, nodeOf, b) > rpoIndexOf(rpoOf, nodeOf, a) {
			next := idom[b]
			if next == unsetIdom {
				return a
			}
			b = next
		}
	}
	return a
}

// rpoIndexOf resolves a node's RPO index, where the virtual root is encoded
// as id32 == -1 and always sorts as index 0.
func rpoIndexOf(rpoOf []int32, nodeOf []int32, node int32) int32 {
	if node == -1 {
		return virtualRootRPO
	}
	return rpoOf[node]
}

// ComputeDominators runs the full C4 pipeline: RPO, predecessor map,
// iterative Cooper-Harvey-Kennedy to a fixed point (or stagnation), and a
// reverse-RPO retained-size pass (§4.4).
func ComputeDominators(objectCount int, shallowSize func(id32 int32) int64, roots []int32, outbound OutboundRefsFunc, opts DominatorOptions) (*DominatorResult, error) {
	opts.fillDefaults()

	opts.Progress.Tick(0.0, "computing reverse post-order")
	rpo, err := buildRPO(objectCount, roots, outbound, opts.Cancel)
	if err != nil {
		return nil, err
	}
	opts.Progress.Tick(0.2, "reverse post-order complete")

	preds, err := buildPredecessorMap(rpo, outbound, opts.Progress, opts.Cancel, opts.Logger)
	if err != nil {
		return nil, err
	}
	opts.Progress.Tick(0.4, "predecessor map complete")

	n := len(rpo.nodeOf) - 1
	// idom is indexed by id32 for every node. While the iteration runs, -1
	// stands for the virtual root ⊥ (roots start there, and so does any node
	// whose only common dominator is ⊥), and unsetIdom marks a node that has
	// not been assigned yet. ⊥ itself carries no id32 and is never looked up.
	idom := make([]int32, objectCount)
	for i := range idom {
		idom[i] = unsetIdom
	}
	rootSet := make(map[int32]bool, len(roots))
	for _, r := range roots {
		if r < 0 || int(r) >= objectCount {
			continue
		}
		idom[r] = -1 // dominated by the virtual root
		rootSet[r] = true
	}

	approximate := false
	lastChangeCount := -1
	stagnantStreak := 0

	for iteration := 1; ; iteration++ {
		if opts.Cancel.Cancelled() {
			return nil, apperrors.ErrCancelled
		}
		changed := false
		changeCount := 0

		for rpoIdx := 1; rpoIdx <= n; rpoIdx++ {
			node := rpo.nodeOf[rpoIdx]
			if rootSet[node] {
				continue
			}
			newIdom := unsetIdom
			for _, p := range preds[rpoIdx] {
				pNode := rpo.nodeOf[p]
				pIdomKnown := pNode != -1 && (idom[pNode] != unsetIdom || rootSet[pNode])
				if !pIdomKnown {
					continue
				}
				if newIdom == unsetIdom {
					newIdom = pNode
				} else {
					newIdom = intersect(idom, rpo.rpoOf, rpo.nodeOf, newIdom, pNode)
				}
			}
			if newIdom != unsetIdom && idom[node] != newIdom {
				idom[node] = newIdom
				changed = true
				changeCount++
			}
		}

		frac := 0.4 + 0.3*float64(iteration)/float64(iteration+4) // interpolated, converges toward 0.7
		if frac > 0.7 {
			frac = 0.7
		}
		opts.Progress.Tick(frac, "iterating dominator fixed point")

		if !changed {
			break
		}

		if lastChangeCount >= 0 && changeCount >= lastChangeCount {
			stagnantStreak++
		} else {
			stagnantStreak = 0
		}
		lastChangeCount = changeCount

		if stagnantStreak >= opts.StagnationPatience {
			approximate = true
			break
		}
	}

	// Map the iteration-time encoding onto the public one: nodes never
	// assigned (unreachable from every root) become UndefID32, and nodes
	// whose idom is ⊥ (the roots themselves and objects shared by several
	// roots) keep -1, which is UndefID32, since they have no in-graph
	// dominator to report. Callers tell roots apart through GcRoots().
	for i := range idom {
		if idom[i] == unsetIdom {
			idom[i] = UndefID32
		}
	}

	opts.Progress.Tick(0.7, "computing retained sizes")
	retained, err := computeRetainedSizes(objectCount, shallowSize, idom, rpo)
	if err != nil {
		return nil, err
	}
	opts.Progress.Tick(1.0, "dominator computation complete")

	return &DominatorResult{Idom: idom, RetainedSize: retained, Approximate: approximate}, nil
}

// computeRetainedSizes builds children[d] = {n : idom[n] == d} and sums
// bottom-up by walking RPO in reverse (leaves first), so that every child's
// retained size is finalized before its parent needs it (§4.4 step 6, O(V)).
func computeRetainedSizes(objectCount int, shallowSize func(id32 int32) int64, idom []int32, rpo *rpoState) ([]int64, error) {
	retained := make([]int64, objectCount)
	for i := 0; i < objectCount; i++ {
		retained[i] = shallowSize(int32(i))
	}

	children := make(map[int32][]int32)
	for node, d := range idom {
		if d == UndefID32 || d == -1 {
			continue
		}
		children[d] = append(children[d], int32(node))
	}

	// RPO index increases with distance from the roots (buildRPO assigns
	// the lowest indices to the last-finished, closest-to-root nodes), so
	// traversing from n down to 1 visits every child strictly before its
	// parent — the "leaves first" order the spec calls for.
	n := len(rpo.nodeOf) - 1
	for rpoIdx := n; rpoIdx >= 1; rpoIdx-- {
		node := rpo.nodeOf[rpoIdx]
		for _, c := range children[node] {
			retained[node] += retained[c]
		}
	}
	return retained, nil
}
