package vm

import (
	"fmt"
	"sort"

	"github.com/chazu/skiff/pkg/bytecode"
)

// NoMeta marks a table without a meta-table.
const NoMeta Handle = -1

// MinHeapObjects is the floor for the collection threshold, so small
// scripts never pay for a collection.
const MinHeapObjects = 256

// DefaultGCGrowth is the post-collection threshold multiplier.
const DefaultGCGrowth = 2.0

type objKind uint8

const (
	objFree objKind = iota
	objList
	objTable
	objClosure
)

// object is one heap cell. Freed cells stay in the arena and are reused
// through the free list.
type object struct {
	kind    objKind
	marked  bool
	pins    int
	list    []Value
	table   map[string]Value
	meta    Handle
	closure *Closure
}

// Closure pairs a compiled function with its captured variables.
type Closure struct {
	FnIndex  int
	Fn       *bytecode.Function
	Upvalues []*Upvalue
}

// Upvalue is a captured variable. While the variable's stack slot is
// live the upvalue is open and reads through to the stack; when the
// slot is popped the value moves into the upvalue and it closes.
type Upvalue struct {
	Slot   int // stack slot while open
	Closed bool
	Value  Value
}

// GCStats reports what the last collection did.
type GCStats struct {
	Collections int
	LastSwept   int
	Live        int
	Threshold   int
}

// Heap is an arena of garbage-collected objects with free-list reuse.
// Collection is mark-and-sweep; the VM supplies the roots and runs
// collections only between instructions.
type Heap struct {
	objects   []object
	free      []Handle
	live      int
	threshold int
	growth    float64
	stats     GCStats
}

// NewHeap creates an empty heap with the given growth factor; pass 0
// for the default.
func NewHeap(growth float64) *Heap {
	if growth <= 1 {
		growth = DefaultGCGrowth
	}
	return &Heap{threshold: MinHeapObjects, growth: growth}
}

// Stats returns collection counters.
func (h *Heap) Stats() GCStats {
	s := h.stats
	s.Live = h.live
	s.Threshold = h.threshold
	return s
}

// ShouldCollect reports whether the live count has reached the
// collection threshold.
func (h *Heap) ShouldCollect() bool { return h.live >= h.threshold }

func (h *Heap) alloc() Handle {
	h.live++
	if n := len(h.free); n > 0 {
		handle := h.free[n-1]
		h.free = h.free[:n-1]
		return handle
	}
	h.objects = append(h.objects, object{})
	return Handle(len(h.objects) - 1)
}

func (h *Heap) obj(handle Handle) *object {
	if handle < 0 || int(handle) >= len(h.objects) || h.objects[handle].kind == objFree {
		panic(fmt.Sprintf("vm: dangling heap handle %d", handle))
	}
	return &h.objects[handle]
}

// AllocList allocates a list owning elems.
func (h *Heap) AllocList(elems []Value) Handle {
	handle := h.alloc()
	h.objects[handle] = object{kind: objList, list: elems, meta: NoMeta}
	return handle
}

// AllocTable allocates an empty table.
func (h *Heap) AllocTable() Handle {
	handle := h.alloc()
	h.objects[handle] = object{kind: objTable, table: make(map[string]Value), meta: NoMeta}
	return handle
}

// AllocClosure allocates a closure object.
func (h *Heap) AllocClosure(c *Closure) Handle {
	handle := h.alloc()
	h.objects[handle] = object{kind: objClosure, closure: c, meta: NoMeta}
	return handle
}

// List returns the backing slice of a list object.
func (h *Heap) List(handle Handle) []Value { return h.obj(handle).list }

// SetList replaces the backing slice of a list object.
func (h *Heap) SetList(handle Handle, elems []Value) { h.obj(handle).list = elems }

// ListAppend pushes a value onto a list.
func (h *Heap) ListAppend(handle Handle, v Value) {
	o := h.obj(handle)
	o.list = append(o.list, v)
}

// TableGet reads a table key without meta-table mediation.
func (h *Heap) TableGet(handle Handle, key string) (Value, bool) {
	v, ok := h.obj(handle).table[key]
	return v, ok
}

// TableSet writes a table key without meta-table mediation.
func (h *Heap) TableSet(handle Handle, key string, v Value) {
	h.obj(handle).table[key] = v
}

// TableDelete removes a table key.
func (h *Heap) TableDelete(handle Handle, key string) {
	delete(h.obj(handle).table, key)
}

// TableLen returns the number of keys in a table.
func (h *Heap) TableLen(handle Handle) int { return len(h.obj(handle).table) }

// TableKeys returns a table's keys in sorted order, so iteration and
// display are deterministic.
func (h *Heap) TableKeys(handle Handle) []string {
	t := h.obj(handle).table
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Meta returns a table's meta-table handle, or NoMeta.
func (h *Heap) Meta(handle Handle) Handle { return h.obj(handle).meta }

// SetMeta attaches or clears a table's meta-table.
func (h *Heap) SetMeta(handle, meta Handle) { h.obj(handle).meta = meta }

// Closure returns a closure object's payload.
func (h *Heap) Closure(handle Handle) *Closure { return h.obj(handle).closure }

// Kind reports whether a handle currently refers to a live object and,
// if so, which kind of value it backs.
func (h *Heap) Kind(handle Handle) (Kind, bool) {
	if handle < 0 || int(handle) >= len(h.objects) {
		return 0, false
	}
	switch h.objects[handle].kind {
	case objList:
		return KindList, true
	case objTable:
		return KindTable, true
	case objClosure:
		return KindClosure, true
	default:
		return 0, false
	}
}

// Pin protects an object from collection while the host holds a
// reference to it. Pins nest.
func (h *Heap) Pin(handle Handle) { h.obj(handle).pins++ }

// Unpin releases one pin.
func (h *Heap) Unpin(handle Handle) {
	o := h.obj(handle)
	if o.pins > 0 {
		o.pins--
	}
}

// ---------------------------------------------------------------------------
// Collection
// ---------------------------------------------------------------------------

// Collect runs a full mark-and-sweep pass. rootSets are the VM's stack
// and any other value slices whose referents must survive. Pinned
// objects are always roots.
func (h *Heap) Collect(rootSets ...[]Value) {
	var work []Handle

	// Tuples are inline but may hold heap references, so marking a
	// value recurses through tuple elements; the recursion is bounded
	// by tuple nesting depth.
	var markValue func(v Value)
	markValue = func(v Value) {
		switch v.Kind {
		case KindList, KindTable, KindClosure:
			if o := h.obj(v.Handle); !o.marked {
				o.marked = true
				work = append(work, v.Handle)
			}
		case KindTuple:
			for _, e := range v.Tuple {
				markValue(e)
			}
		}
	}

	for _, roots := range rootSets {
		for _, v := range roots {
			markValue(v)
		}
	}
	for i := range h.objects {
		if h.objects[i].kind != objFree && h.objects[i].pins > 0 && !h.objects[i].marked {
			h.objects[i].marked = true
			work = append(work, Handle(i))
		}
	}

	for len(work) > 0 {
		handle := work[len(work)-1]
		work = work[:len(work)-1]
		o := &h.objects[handle]

		if o.meta != NoMeta {
			if mo := h.obj(o.meta); !mo.marked {
				mo.marked = true
				work = append(work, o.meta)
			}
		}
		switch o.kind {
		case objList:
			for _, v := range o.list {
				markValue(v)
			}
		case objTable:
			for _, v := range o.table {
				markValue(v)
			}
		case objClosure:
			for _, uv := range o.closure.Upvalues {
				if uv.Closed {
					markValue(uv.Value)
				}
			}
		}
	}

	// Sweep.
	swept := 0
	for i := range h.objects {
		o := &h.objects[i]
		if o.kind == objFree {
			continue
		}
		if o.marked {
			o.marked = false
			continue
		}
		*o = object{kind: objFree}
		h.free = append(h.free, Handle(i))
		swept++
	}
	h.live -= swept

	h.stats.Collections++
	h.stats.LastSwept = swept

	h.threshold = int(float64(h.live) * h.growth)
	if h.threshold < MinHeapObjects {
		h.threshold = MinHeapObjects
	}
}
