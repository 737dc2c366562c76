package vm

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Prelude returns the standard native registry every script compiles
// against. Output from print goes to w.
func Prelude(w io.Writer) []*NativeFunction {
	return []*NativeFunction{
		{Name: "print", Arity: -1, Fn: func(vm *VM, args []Value) (Value, error) {
			parts := make([]string, len(args))
			for i, a := range args {
				parts[i] = a.Display(vm.heap)
			}
			fmt.Fprintln(w, strings.Join(parts, " "))
			return Unit(), nil
		}},

		{Name: "len", Arity: 1, Fn: func(vm *VM, args []Value) (Value, error) {
			switch v := args[0]; v.Kind {
			case KindString:
				return IntValue(int64(len(v.Str))), nil
			case KindList:
				return IntValue(int64(len(vm.heap.List(v.Handle)))), nil
			case KindTuple:
				return IntValue(int64(len(v.Tuple))), nil
			case KindTable:
				return IntValue(int64(vm.heap.TableLen(v.Handle))), nil
			default:
				return Value{}, spanlessError("len does not apply to %s", v.TypeName())
			}
		}},

		{Name: "push", Arity: 2, Fn: func(vm *VM, args []Value) (Value, error) {
			if args[0].Kind != KindList {
				return Value{}, spanlessError("push requires a list, got %s", args[0].TypeName())
			}
			vm.heap.ListAppend(args[0].Handle, args[1])
			return Unit(), nil
		}},

		{Name: "pop", Arity: 1, Fn: func(vm *VM, args []Value) (Value, error) {
			if args[0].Kind != KindList {
				return Value{}, spanlessError("pop requires a list, got %s", args[0].TypeName())
			}
			elems := vm.heap.List(args[0].Handle)
			if len(elems) == 0 {
				return Value{}, spanlessError("pop from an empty list")
			}
			last := elems[len(elems)-1]
			vm.heap.SetList(args[0].Handle, elems[:len(elems)-1])
			return last, nil
		}},

		{Name: "keys", Arity: 1, Fn: func(vm *VM, args []Value) (Value, error) {
			if args[0].Kind != KindTable {
				return Value{}, spanlessError("keys requires a table, got %s", args[0].TypeName())
			}
			names := vm.heap.TableKeys(args[0].Handle)
			elems := make([]Value, len(names))
			for i, k := range names {
				elems[i] = StringValue(k)
			}
			return Value{Kind: KindList, Handle: vm.heap.AllocList(elems)}, nil
		}},

		{Name: "str", Arity: 1, Fn: func(vm *VM, args []Value) (Value, error) {
			return StringValue(args[0].Display(vm.heap)), nil
		}},

		{Name: "int", Arity: 1, Fn: func(vm *VM, args []Value) (Value, error) {
			switch v := args[0]; v.Kind {
			case KindInt:
				return v, nil
			case KindFloat:
				return IntValue(int64(v.Float)), nil
			case KindString:
				i, err := strconv.ParseInt(strings.TrimSpace(v.Str), 10, 64)
				if err != nil {
					return Value{}, spanlessError("cannot parse %q as an integer", v.Str)
				}
				return IntValue(i), nil
			default:
				return Value{}, spanlessError("cannot convert %s to an integer", v.TypeName())
			}
		}},

		{Name: "float", Arity: 1, Fn: func(vm *VM, args []Value) (Value, error) {
			switch v := args[0]; v.Kind {
			case KindFloat:
				return v, nil
			case KindInt:
				return FloatValue(float64(v.Int)), nil
			case KindString:
				f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
				if err != nil {
					return Value{}, spanlessError("cannot parse %q as a float", v.Str)
				}
				return FloatValue(f), nil
			default:
				return Value{}, spanlessError("cannot convert %s to a float", v.TypeName())
			}
		}},

		{Name: "type", Arity: 1, Fn: func(vm *VM, args []Value) (Value, error) {
			return StringValue(args[0].TypeName()), nil
		}},

		{Name: "setmeta", Arity: 2, Fn: func(vm *VM, args []Value) (Value, error) {
			if args[0].Kind != KindTable {
				return Value{}, spanlessError("setmeta requires a table, got %s", args[0].TypeName())
			}
			switch {
			case args[1].Kind == KindTable:
				vm.heap.SetMeta(args[0].Handle, args[1].Handle)
			case args[1].IsUnit():
				vm.heap.SetMeta(args[0].Handle, NoMeta)
			default:
				return Value{}, spanlessError("meta-table must be a table or (), got %s", args[1].TypeName())
			}
			return args[0], nil
		}},

		{Name: "getmeta", Arity: 1, Fn: func(vm *VM, args []Value) (Value, error) {
			if args[0].Kind != KindTable {
				return Value{}, spanlessError("getmeta requires a table, got %s", args[0].TypeName())
			}
			meta := vm.heap.Meta(args[0].Handle)
			if meta == NoMeta {
				return Unit(), nil
			}
			return Value{Kind: KindTable, Handle: meta}, nil
		}},
	}
}

// PreludeNames returns the registry names in order, for the compiler's
// builtin resolution.
func PreludeNames(natives []*NativeFunction) []string {
	names := make([]string, len(natives))
	for i, n := range natives {
		names[i] = n.Name
	}
	return names
}
