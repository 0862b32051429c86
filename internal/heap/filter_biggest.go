package heap

import (
	"sort"

	"github.com/heapdump-analysis/pkg/filter"
)

// SizeMetric selects which size field BiggestObjects ranks by.
type SizeMetric int

const (
	ByShallowSize SizeMetric = iota
	ByRetainedSize
)

// BiggestObjects returns the top-n objects ranked by metric, largest first.
// Ranking by ByRetainedSize before ComputeDominators has run falls back to
// shallow size for every object, since retained size is undefined (-1) at
// that point. Objects whose class is a container/proxy/lambda type that
// pkg/filter flags as top-level noise (HashMap$Node, $$Lambda, ...) are
// excluded so the view surfaces the objects actually holding the memory.
func (hd *HeapDump) BiggestObjects(n int, metric SizeMetric) []*Object {
	if n <= 0 {
		return nil
	}
	useRetained := metric == ByRetainedSize && hd.HasDominators()

	all := make([]*Object, 0, hd.index.ObjectCount())
	for i := 0; i < hd.index.ObjectCount(); i++ {
		obj, _ := hd.Object(int32(i))
		if class, ok := obj.Class(); ok && filter.ShouldFilterTopLevel(class.Name) {
			continue
		}
		all = append(all, obj)
	}

	sort.Slice(all, func(i, j int) bool {
		return sizeOf(all[i], useRetained) > sizeOf(all[j], useRetained)
	})

	if n > len(all) {
		n = len(all)
	}
	return all[:n]
}

func sizeOf(o *Object, useRetained bool) int64 {
	if useRetained {
		return o.RetainedSize()
	}
	return o.ShallowSize()
}

// BiggestClassesByInstanceCount returns the top-n classes ranked by live
// instance count, largest first — the cheapest "what's eating the heap"
// query since it needs no dominator computation at all.
func (hd *HeapDump) BiggestClassesByInstanceCount(n int) []*HeapClass {
	if n <= 0 {
		return nil
	}
	classes := hd.Classes()
	sort.Slice(classes, func(i, j int) bool {
		return classes[i].InstanceCount > classes[j].InstanceCount
	})
	if n > len(classes) {
		n = len(classes)
	}
	return classes[:n]
}

// BiggestClassesByTotalShallow returns the top-n classes ranked by the sum
// of their instances' shallow sizes, largest first.
func (hd *HeapDump) BiggestClassesByTotalShallow(n int) []*HeapClass {
	if n <= 0 {
		return nil
	}
	classes := hd.Classes()
	totals := make(map[int32]int64, len(classes))
	for i := 0; i < hd.index.ObjectCount(); i++ {
		o, _ := hd.index.Object(int32(i))
		if o.ClassID32 >= 0 {
			totals[o.ClassID32] += o.ShallowSize
		}
	}
	sort.Slice(classes, func(i, j int) bool {
		return totals[classes[i].ClassID32] > totals[classes[j].ClassID32]
	})
	if n > len(classes) {
		n = len(classes)
	}
	return classes[:n]
}
