package skiff

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/chazu/skiff/pkg/vm"
)

// FuncRef is an opaque handle to a script function. It is only valid
// for the session that issued it; the referenced closure is pinned
// against collection until the session closes.
type FuncRef struct {
	id string
}

// String returns the reference identifier.
func (r FuncRef) String() string { return "func:" + r.id }

// valueOut converts a VM value for the host. Scalars copy directly;
// tuples, lists, and tables deep-copy so the host can never mutate the
// VM heap; functions become pinned FuncRefs.
func (s *Session) valueOut(v vm.Value) interface{} {
	heap := s.vm.Heap()
	switch v.Kind {
	case vm.KindInt:
		return v.Int
	case vm.KindFloat:
		return v.Float
	case vm.KindBool:
		return v.Bool
	case vm.KindString:
		return v.Str
	case vm.KindTuple:
		if len(v.Tuple) == 0 {
			return nil // the unit value
		}
		out := make([]interface{}, len(v.Tuple))
		for i, e := range v.Tuple {
			out[i] = s.valueOut(e)
		}
		return out
	case vm.KindList:
		elems := heap.List(v.Handle)
		out := make([]interface{}, len(elems))
		for i, e := range elems {
			out[i] = s.valueOut(e)
		}
		return out
	case vm.KindTable:
		out := make(map[string]interface{})
		for _, k := range heap.TableKeys(v.Handle) {
			val, _ := heap.TableGet(v.Handle, k)
			out[k] = s.valueOut(val)
		}
		return out
	case vm.KindClosure:
		ref := FuncRef{id: uuid.New().String()}
		heap.Pin(v.Handle)
		s.refs[ref.id] = v
		return ref
	case vm.KindNative:
		return FuncRef{id: "native:" + v.Native.Name}
	default:
		return nil
	}
}

// valueIn converts a Go value into the session's VM. Slices and maps
// deep-copy onto the VM heap; a nil becomes the unit value.
func (s *Session) valueIn(v interface{}) (vm.Value, error) {
	heap := s.vm.Heap()
	switch v := v.(type) {
	case nil:
		return vm.Unit(), nil
	case int:
		return vm.IntValue(int64(v)), nil
	case int64:
		return vm.IntValue(v), nil
	case float64:
		return vm.FloatValue(v), nil
	case bool:
		return vm.BoolValue(v), nil
	case string:
		return vm.StringValue(v), nil
	case []interface{}:
		elems := make([]vm.Value, len(v))
		for i, e := range v {
			ev, err := s.valueIn(e)
			if err != nil {
				return vm.Value{}, err
			}
			elems[i] = ev
		}
		return vm.Value{Kind: vm.KindList, Handle: heap.AllocList(elems)}, nil
	case map[string]interface{}:
		handle := heap.AllocTable()
		for k, e := range v {
			ev, err := s.valueIn(e)
			if err != nil {
				return vm.Value{}, err
			}
			heap.TableSet(handle, k, ev)
		}
		return vm.Value{Kind: vm.KindTable, Handle: handle}, nil
	case FuncRef:
		fn, ok := s.refs[v.id]
		if !ok {
			return vm.Value{}, fmt.Errorf("skiff: unknown function reference %s", v.id)
		}
		return fn, nil
	default:
		return vm.Value{}, fmt.Errorf("skiff: cannot convert %T into a script value", v)
	}
}
