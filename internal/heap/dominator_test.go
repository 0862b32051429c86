package heap

import "testing"

// graph is a tiny adjacency-list test fixture: graph[i] lists i's outbound
// id32 references.
type graph [][]int32

func (g graph) outbound(id32 int32) ([]int32, error) {
	if int(id32) >= len(g) {
		return nil, nil
	}
	return g[id32], nil
}

func unitShallow(int32) int64 { return 1 }

// S1: trivial graph, one root pointing straight at one object. The object's
// immediate and only dominator is the root.
func TestComputeDominatorsTrivialChain(t *testing.T) {
	// 0 -> 1 -> 2
	g := graph{{1}, {2}, {}}
	res, err := ComputeDominators(3, unitShallow, []int32{0}, g.outbound, DominatorOptions{})
	if err != nil {
		t.Fatalf("ComputeDominators: %v", err)
	}
	if res.Approximate {
		t.Fatalf("expected exact result on a trivial chain")
	}
	if res.Idom[0] != UndefID32 {
		t.Errorf("root 0 should have no in-graph dominator, got %d", res.Idom[0])
	}
	if res.Idom[1] != 0 {
		t.Errorf("idom(1) = %d, want 0", res.Idom[1])
	}
	if res.Idom[2] != 1 {
		t.Errorf("idom(2) = %d, want 1", res.Idom[2])
	}
	// P5: retained(root) == sum of shallow sizes of everything it dominates.
	if res.RetainedSize[0] != 3 {
		t.Errorf("retained(0) = %d, want 3", res.RetainedSize[0])
	}
	if res.RetainedSize[1] != 2 {
		t.Errorf("retained(1) = %d, want 2", res.RetainedSize[1])
	}
	if res.RetainedSize[2] != 1 {
		t.Errorf("retained(2) = %d, want 1", res.RetainedSize[2])
	}
}

// S2: two roots sharing a child. Neither root dominates the shared node —
// only the virtual root does — so its idom must be UndefID32 and its
// retained size must NOT be folded into either root's retained size (P4/P5).
func TestComputeDominatorsSharedChildBetweenTwoRoots(t *testing.T) {
	// roots 0 and 1 both point at 2.
	g := graph{{2}, {2}, {}}
	res, err := ComputeDominators(3, unitShallow, []int32{0, 1}, g.outbound, DominatorOptions{})
	if err != nil {
		t.Fatalf("ComputeDominators: %v", err)
	}
	if res.Idom[2] != UndefID32 {
		t.Errorf("idom(2) = %d, want UndefID32 (only the virtual root dominates it)", res.Idom[2])
	}
	if res.RetainedSize[0] != 1 || res.RetainedSize[1] != 1 {
		t.Errorf("shared child must not inflate either root's retained size: got %d, %d", res.RetainedSize[0], res.RetainedSize[1])
	}
	if res.RetainedSize[2] != 1 {
		t.Errorf("retained(2) = %d, want 1 (itself only)", res.RetainedSize[2])
	}
}

// S3: a cycle entirely below one root. The root still dominates every node
// in the cycle, and retained size must still terminate (no infinite loop)
// and sum correctly despite the cycle (P4).
func TestComputeDominatorsCycleBelowOneRoot(t *testing.T) {
	// 0 -> 1 -> 2 -> 1 (cycle between 1 and 2)
	g := graph{{1}, {2}, {1}}
	res, err := ComputeDominators(3, unitShallow, []int32{0}, g.outbound, DominatorOptions{})
	if err != nil {
		t.Fatalf("ComputeDominators: %v", err)
	}
	if res.Approximate {
		t.Fatalf("small cycle should converge exactly, got Approximate=true")
	}
	if res.Idom[1] != 0 {
		t.Errorf("idom(1) = %d, want 0", res.Idom[1])
	}
	if res.Idom[2] != 1 {
		t.Errorf("idom(2) = %d, want 1", res.Idom[2])
	}
	if res.RetainedSize[0] != 3 {
		t.Errorf("retained(0) = %d, want 3 (entire cycle retained by the root)", res.RetainedSize[0])
	}
}

// S4: an object with no path from any root is unreachable: it keeps its own
// shallow size as its retained size and an UndefID32 dominator, and is
// excluded from every reachable root's retained size.
func TestComputeDominatorsUnreachableIsland(t *testing.T) {
	// 0 -> 1; 2 is an island.
	g := graph{{1}, {}, {}}
	res, err := ComputeDominators(3, unitShallow, []int32{0}, g.outbound, DominatorOptions{})
	if err != nil {
		t.Fatalf("ComputeDominators: %v", err)
	}
	if res.Idom[2] != UndefID32 {
		t.Errorf("idom(2) = %d, want UndefID32 for an unreachable object", res.Idom[2])
	}
	if res.RetainedSize[2] != 1 {
		t.Errorf("retained(2) = %d, want 1 (its own shallow size only)", res.RetainedSize[2])
	}
	if res.RetainedSize[0] != 2 {
		t.Errorf("retained(0) = %d, want 2 (root's reachable subgraph only)", res.RetainedSize[0])
	}
}

// P4: retained size is never smaller than shallow size, across a slightly
// larger graph with branching and a diamond.
func TestComputeDominatorsRetainedAtLeastShallow(t *testing.T) {
	// 0 -> 1, 0 -> 2, 1 -> 3, 2 -> 3 (diamond; 3 dominated only by 0)
	g := graph{{1, 2}, {3}, {3}, {}}
	shallow := func(id32 int32) int64 { return int64(id32) + 1 }
	res, err := ComputeDominators(4, shallow, []int32{0}, g.outbound, DominatorOptions{})
	if err != nil {
		t.Fatalf("ComputeDominators: %v", err)
	}
	for i := 0; i < 4; i++ {
		if res.RetainedSize[i] < shallow(int32(i)) {
			t.Errorf("retained(%d) = %d < shallow(%d) = %d", i, res.RetainedSize[i], i, shallow(int32(i)))
		}
	}
	if res.Idom[3] != 0 {
		t.Errorf("idom(3) = %d, want 0 (diamond apex dominated only by the shared ancestor)", res.Idom[3])
	}
}

// The stagnation guard must cap iteration and report Approximate rather than
// loop forever; a patience of zero falls back to the documented default
// rather than spinning with patience 0.
func TestDominatorOptionsFillDefaults(t *testing.T) {
	var opts DominatorOptions
	opts.fillDefaults()
	if opts.StagnationPatience != DefaultStagnationPatience {
		t.Errorf("StagnationPatience = %d, want default %d", opts.StagnationPatience, DefaultStagnationPatience)
	}
	if opts.Progress == nil || opts.Cancel == nil {
		t.Errorf("fillDefaults left a nil Progress/Cancel")
	}
}
