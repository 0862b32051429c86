package heap

// FindPathToGcRoot returns the shortest reference chain from some GC root to
// target, as a slice of id32 ordered [root, o1, ..., target]. Empty if
// target is unreachable; a single-element slice if target is itself a GC
// root (§4.5).
//
// BFS is seeded simultaneously from every root rather than run once per
// root, since the shortest chain from "any" root is what's wanted, not the
// shortest chain from a particular one.
func FindPathToGcRoot(objectCount int, target int32, roots []int32, outbound OutboundRefsFunc) ([]int32, error) {
	if target < 0 || int(target) >= objectCount {
		return nil, nil
	}
	for _, r := range roots {
		if r == target {
			return []int32{target}, nil
		}
	}

	parent := make([]int32, objectCount)
	for i := range parent {
		parent[i] = UndefID32
	}
	visited := make([]bool, objectCount)
	queue := make([]int32, 0, len(roots))

	for _, r := range roots {
		if r < 0 || int(r) >= objectCount || visited[r] {
			continue
		}
		visited[r] = true
		queue = append(queue, r)
	}

	found := false
	for head := 0; head < len(queue) && !found; head++ {
		node := queue[head]
		refs, err := outbound(node)
		if err != nil {
			return nil, err
		}
		for _, child := range refs {
			if child < 0 || int(child) >= objectCount || visited[child] {
				continue
			}
			visited[child] = true
			parent[child] = node
			if child == target {
				found = true
				break
			}
			queue = append(queue, child)
		}
	}

	if !visited[target] {
		return nil, nil
	}

	// Reconstruct by walking parent pointers backward from target, then
	// reversing, since parent only lets us walk root-ward.
	path := []int32{target}
	cur := target
	for {
		p := parent[cur]
		if p == UndefID32 {
			break
		}
		path = append(path, p)
		cur = p
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// FindAllPaths performs a depth-limited DFS from every root and returns
// every distinct path to target of length <= maxDepth edges. Documented as
// potentially expensive (unbounded per-root DFS, no cross-root
// deduplication) and intended for interactive exploration, not default
// queries (§4.5, open question (b)).
func FindAllPaths(objectCount int, target int32, roots []int32, outbound OutboundRefsFunc, maxDepth int) ([][]int32, error) {
	if target < 0 || int(target) >= objectCount || maxDepth < 0 {
		return nil, nil
	}

	var results [][]int32
	onStack := make([]bool, objectCount)
	path := make([]int32, 0, maxDepth+1)

	var dfs func(node int32, depth int) error
	dfs = func(node int32, depth int) error {
		path = append(path, node)
		defer func() { path = path[:len(path)-1] }()

		if node == target {
			found := make([]int32, len(path))
			copy(found, path)
			results = append(results, found)
			return nil
		}
		if depth >= maxDepth {
			return nil
		}

		onStack[node] = true
		defer func() { onStack[node] = false }()

		refs, err := outbound(node)
		if err != nil {
			return err
		}
		for _, child := range refs {
			if child < 0 || int(child) >= objectCount || onStack[child] {
				continue
			}
			if err := dfs(child, depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	for _, r := range roots {
		if r < 0 || int(r) >= objectCount {
			continue
		}
		if err := dfs(r, 0); err != nil {
			return nil, err
		}
	}
	return results, nil
}
