package concept

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/pthm/typecore/engine"
)

// ordinalRegistry assigns small, transaction-scoped integers to
// ThingRefs so the finalize-time fixpoint passes (spec §4.3: "iterated
// to fixpoint, then again over freshly-inserted empty relations") can
// track touched/candidate vertices with a roaring.Bitmap instead of a
// map keyed by the full 16-byte vertex id, and get cheap Or/AndNot
// set operations across passes as the worklist shrinks and grows.
type ordinalRegistry struct {
	byOrdinal []engine.ThingRef
	toOrdinal map[string]uint32
}

func newOrdinalRegistry() *ordinalRegistry {
	return &ordinalRegistry{toOrdinal: make(map[string]uint32)}
}

func refKey(ref engine.ThingRef) string {
	return ref.Type.String() + "\x00" + string(ref.ID)
}

func (r *ordinalRegistry) ordinal(ref engine.ThingRef) uint32 {
	key := refKey(ref)
	if o, ok := r.toOrdinal[key]; ok {
		return o
	}
	o := uint32(len(r.byOrdinal))
	r.byOrdinal = append(r.byOrdinal, ref)
	r.toOrdinal[key] = o
	return o
}

func (r *ordinalRegistry) ref(ordinal uint32) engine.ThingRef {
	return r.byOrdinal[ordinal]
}

// bitmapWorklist is a set of pending ThingRefs backed by a roaring
// bitmap of registry ordinals, used by Finalise's two fixpoint loops.
type bitmapWorklist struct {
	reg *ordinalRegistry
	bm  *roaring.Bitmap
}

func newBitmapWorklist(reg *ordinalRegistry) *bitmapWorklist {
	return &bitmapWorklist{reg: reg, bm: roaring.New()}
}

func (w *bitmapWorklist) add(ref engine.ThingRef) { w.bm.Add(w.reg.ordinal(ref)) }

func (w *bitmapWorklist) remove(ref engine.ThingRef) {
	if o, ok := w.reg.toOrdinal[refKey(ref)]; ok {
		w.bm.Remove(o)
	}
}

func (w *bitmapWorklist) isEmpty() bool { return w.bm.IsEmpty() }

func (w *bitmapWorklist) items() []engine.ThingRef {
	out := make([]engine.ThingRef, 0, w.bm.GetCardinality())
	it := w.bm.Iterator()
	for it.HasNext() {
		out = append(out, w.reg.ref(it.Next()))
	}
	return out
}

// drainInto moves every member of w into target and empties w, used
// when a cleanup pass discovers newly-empty relations that must be
// folded into the next fixpoint round (spec §4.3).
func (w *bitmapWorklist) drainInto(target *bitmapWorklist) {
	target.bm.Or(w.bm)
	w.bm.Clear()
}
