package heap

import (
	"reflect"
	"testing"
)

// P7: FindPathToGcRoot must return the shortest chain, not merely *a* chain
// — here target 3 is two hops from root 0 (through root 1) and one hop from
// root 1; the 1-hop path must win.
func TestFindPathToGcRootReturnsShortest(t *testing.T) {
	// root 0 -> 1 -> 3 (target)
	// root 1 -> 3 (target), directly
	// 2 -> 3 as well, but nothing reaches 2
	g := graph{{1}, {3}, {3}, {}}
	path, err := FindPathToGcRoot(4, 3, []int32{0, 1}, g.outbound)
	if err != nil {
		t.Fatalf("FindPathToGcRoot: %v", err)
	}
	want := []int32{1, 3}
	if !reflect.DeepEqual(path, want) {
		t.Errorf("path = %v, want %v", path, want)
	}
}

// P6: every returned path starts at a GC root and ends at the target.
func TestFindPathToGcRootEndpoints(t *testing.T) {
	g := graph{{1}, {2}, {}}
	path, err := FindPathToGcRoot(3, 2, []int32{0}, g.outbound)
	if err != nil {
		t.Fatalf("FindPathToGcRoot: %v", err)
	}
	if len(path) == 0 {
		t.Fatalf("expected a non-empty path")
	}
	if path[0] != 0 {
		t.Errorf("path does not start at a root: %v", path)
	}
	if path[len(path)-1] != 2 {
		t.Errorf("path does not end at the target: %v", path)
	}
}

// A root that is itself the target returns a single-element path (§4.5).
func TestFindPathToGcRootTargetIsRoot(t *testing.T) {
	g := graph{{}, {}}
	path, err := FindPathToGcRoot(2, 0, []int32{0}, g.outbound)
	if err != nil {
		t.Fatalf("FindPathToGcRoot: %v", err)
	}
	if !reflect.DeepEqual(path, []int32{0}) {
		t.Errorf("path = %v, want [0]", path)
	}
}

// An unreachable target yields an empty, non-nil-error result.
func TestFindPathToGcRootUnreachable(t *testing.T) {
	g := graph{{}, {}}
	path, err := FindPathToGcRoot(2, 1, []int32{0}, g.outbound)
	if err != nil {
		t.Fatalf("FindPathToGcRoot: %v", err)
	}
	if len(path) != 0 {
		t.Errorf("path = %v, want empty for an unreachable target", path)
	}
}

// FindAllPaths must find every distinct path within maxDepth, including two
// paths to the same target from the same root via a diamond, and must not
// loop forever on a cycle (onStack cycle guard).
func TestFindAllPathsDiamondAndCycle(t *testing.T) {
	// 0 -> 1, 0 -> 2, 1 -> 3, 2 -> 3, 3 -> 1 (cycle back into the diamond)
	g := graph{{1, 2}, {3}, {3}, {1}}
	paths, err := FindAllPaths(4, 3, []int32{0}, g.outbound, 5)
	if err != nil {
		t.Fatalf("FindAllPaths: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected 2 distinct paths through the diamond, got %d: %v", len(paths), paths)
	}
	for _, p := range paths {
		if p[0] != 0 || p[len(p)-1] != 3 {
			t.Errorf("path %v does not start at root and end at target", p)
		}
	}
}

// maxDepth bounds how far FindAllPaths searches: a path longer than maxDepth
// edges must not be returned.
func TestFindAllPathsRespectsMaxDepth(t *testing.T) {
	// 0 -> 1 -> 2 -> 3 -> 4 (target), 4 edges long.
	g := graph{{1}, {2}, {3}, {4}, {}}
	paths, err := FindAllPaths(5, 4, []int32{0}, g.outbound, 2)
	if err != nil {
		t.Fatalf("FindAllPaths: %v", err)
	}
	if len(paths) != 0 {
		t.Errorf("expected no paths within depth 2 for a 4-edge-deep target, got %v", paths)
	}
}
