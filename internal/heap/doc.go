// Package heap parses and analyzes Java HPROF heap dump files.
//
// # Package organization
//
// Files are grouped by file-name prefix, the same convention the project
// uses elsewhere:
//
//   - types.go: record tags, basic types, and the entity model
//     (HeapClass / HeapField / HeapObject / GcRoot).
//   - reader_mmap.go: segmented memory-mapped big-endian cursor over the
//     dump file (C1).
//   - decoder.go: tag dispatch and lazy record decoding (C2).
//   - index_codec.go: fixed-width on-disk record layouts and the
//     magic/version header shared by every index file (C3).
//   - index_store.go: index build (two-scan) and index read, choosing
//     between an in-memory and a disk-backed representation by dump size
//     (C3).
//   - dominator.go: Cooper-Harvey-Kennedy dominator computation and
//     retained-size pass over a virtual-root-augmented graph (C4).
//   - pathfinder.go: shortest-path-to-root and bounded-depth path
//     enumeration (C5).
//   - heapdump.go: the public HeapDump/HeapClass/HeapObject/GcRoot API,
//     including the java.lang.String value convenience.
//   - filter_biggest.go: biggest-objects and biggest-classes queries,
//     composed from the above.
//
// # Usage
//
//	dump, err := heap.Open(path, heap.DefaultOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer dump.Close()
//
//	dump.ComputeDominators()
//	for _, obj := range dump.BiggestObjects(10, heap.ByRetainedSize) {
//	    class, _ := obj.Class()
//	    fmt.Printf("%s: retained %d bytes\n", class.Name, obj.RetainedSize())
//	}
//
// # Concurrency
//
// A HeapDump is not safe for concurrent use (§5): every exported operation
// is blocking and assumes a single caller goroutine at a time. Progress and
// cancellation are cooperative, delivered through the caller-supplied
// Progress and CancelPredicate interfaces rather than channels or contexts,
// so a caller can carry rate-limiting state across calls.
package heap
