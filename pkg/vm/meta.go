package vm

// Meta-table protocol. A table may carry another table as its
// meta-table; well-known string slots on the meta-table customize
// operator and member dispatch. Resolution chains through meta-tables
// and is bounded by the configured depth so cyclic chains fail
// deterministically instead of hanging.

// Meta slot names.
const (
	MetaAdd   = "__add"
	MetaSub   = "__sub"
	MetaMul   = "__mul"
	MetaDiv   = "__div"
	MetaMod   = "__mod"
	MetaPow   = "__pow"
	MetaNeg   = "__neg"
	MetaEq    = "__eq"
	MetaLt    = "__lt"
	MetaLe    = "__le"
	MetaIndex = "__index"
)

// DefaultMaxMetaDepth bounds meta-table chain traversal.
const DefaultMaxMetaDepth = 64

// metaSlot looks up an operator slot, starting at the value's
// meta-table and walking each meta-table's own meta-table on a miss.
// The walk is bounded by the configured depth so a cyclic chain
// without the slot gives up instead of spinning.
func (vm *VM) metaSlot(v Value, slot string) (Value, bool) {
	if v.Kind != KindTable {
		return Value{}, false
	}
	meta := vm.heap.Meta(v.Handle)
	for depth := 0; meta != NoMeta && depth < vm.limits.MaxMetaDepth; depth++ {
		if val, ok := vm.heap.TableGet(meta, slot); ok {
			return val, true
		}
		meta = vm.heap.Meta(meta)
	}
	return Value{}, false
}

// resolveMember reads a member from a table, falling back through the
// __index chain on a missing key. The chain is bounded; exceeding the
// bound is a runtime error naming the depth.
func (vm *VM) resolveMember(v Value, name string) (Value, *RuntimeError) {
	if v.Kind != KindTable {
		return Value{}, spanlessError("%s has no members", v.TypeName())
	}

	current := v.Handle
	for depth := 0; depth <= vm.limits.MaxMetaDepth; depth++ {
		if val, ok := vm.heap.TableGet(current, name); ok {
			return val, nil
		}
		meta := vm.heap.Meta(current)
		if meta == NoMeta {
			return Value{}, spanlessError("table has no member %q", name)
		}
		next, ok := vm.heap.TableGet(meta, MetaIndex)
		if !ok {
			return Value{}, spanlessError("table has no member %q", name)
		}
		if next.Kind != KindTable {
			return Value{}, spanlessError("__index must be a table, got %s", next.TypeName())
		}
		current = next.Handle
	}
	return Value{}, spanlessError(
		"meta-table chain exceeds %d levels resolving %q", vm.limits.MaxMetaDepth, name)
}
