package bytecode

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/skiff/pkg/diag"
)

// The wire format is canonical CBOR: identical modules always encode to
// identical bytes, so encoded modules can be content-addressed.

// wireMagic identifies an encoded module.
const wireMagic = "SKBC"

type wireModule struct {
	Magic     string         `cbor:"1,keyasint"`
	Version   uint16         `cbor:"2,keyasint"`
	Name      string         `cbor:"3,keyasint"`
	Functions []wireFunction `cbor:"4,keyasint"`
}

type wireFunction struct {
	Name      string         `cbor:"1,keyasint"`
	NumParams uint8          `cbor:"2,keyasint"`
	NumLocals uint8          `cbor:"3,keyasint"`
	Code      []byte         `cbor:"4,keyasint"`
	Constants []wireConstant `cbor:"5,keyasint"`
	Upvalues  []wireUpvalue  `cbor:"6,keyasint"`
	Spans     []wireSpan     `cbor:"7,keyasint,omitempty"`
}

type wireConstant struct {
	Kind  uint8   `cbor:"1,keyasint"`
	Int   int64   `cbor:"2,keyasint,omitempty"`
	Float float64 `cbor:"3,keyasint,omitempty"`
	Str   string  `cbor:"4,keyasint,omitempty"`
}

type wireUpvalue struct {
	InParent bool  `cbor:"1,keyasint"`
	Index    uint8 `cbor:"2,keyasint"`
}

type wireSpan struct {
	Offset uint32 `cbor:"1,keyasint"`
	Start  int    `cbor:"2,keyasint"`
	End    int    `cbor:"3,keyasint"`
}

var (
	wireEncMode cbor.EncMode
	wireDecMode cbor.DecMode
)

func init() {
	var err error
	wireEncMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: building CBOR encode mode: %v", err))
	}
	wireDecMode, err = cbor.DecOptions{
		MaxArrayElements: 1 << 20,
		MaxMapPairs:      1 << 20,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: building CBOR decode mode: %v", err))
	}
}

// EncodeModule serializes a compiled module for caching or transport.
func EncodeModule(m *Module) ([]byte, error) {
	w := wireModule{
		Magic:   wireMagic,
		Version: m.Version,
		Name:    m.Name,
	}
	w.Functions = make([]wireFunction, len(m.Functions))
	for i, fn := range m.Functions {
		wf := wireFunction{
			Name:      fn.Name,
			NumParams: fn.NumParams,
			NumLocals: fn.NumLocals,
			Code:      fn.Code,
		}
		for _, c := range fn.Constants {
			wf.Constants = append(wf.Constants, wireConstant{
				Kind: uint8(c.Kind), Int: c.Int, Float: c.Float, Str: c.Str,
			})
		}
		for _, u := range fn.Upvalues {
			wf.Upvalues = append(wf.Upvalues, wireUpvalue{InParent: u.InParent, Index: u.Index})
		}
		for _, s := range fn.Spans {
			wf.Spans = append(wf.Spans, wireSpan{Offset: s.Offset, Start: s.Span.Start, End: s.Span.End})
		}
		w.Functions[i] = wf
	}
	return wireEncMode.Marshal(w)
}

// DecodeModule deserializes a module encoded by EncodeModule, verifying
// the magic and format version.
func DecodeModule(data []byte) (*Module, error) {
	var w wireModule
	if err := wireDecMode.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decoding module: %w", err)
	}
	if w.Magic != wireMagic {
		return nil, fmt.Errorf("not an encoded module (magic %q)", w.Magic)
	}
	if w.Version != BytecodeVersion {
		return nil, fmt.Errorf("unsupported bytecode version %d (want %d)", w.Version, BytecodeVersion)
	}
	if len(w.Functions) == 0 {
		return nil, fmt.Errorf("encoded module has no functions")
	}

	m := &Module{Version: w.Version, Name: w.Name}
	for _, wf := range w.Functions {
		fn := &Function{
			Name:      wf.Name,
			NumParams: wf.NumParams,
			NumLocals: wf.NumLocals,
			Code:      wf.Code,
		}
		for _, c := range wf.Constants {
			if c.Kind > uint8(ConstString) {
				return nil, fmt.Errorf("function %s: unknown constant kind %d", wf.Name, c.Kind)
			}
			fn.Constants = append(fn.Constants, Constant{
				Kind: ConstKind(c.Kind), Int: c.Int, Float: c.Float, Str: c.Str,
			})
		}
		for _, u := range wf.Upvalues {
			fn.Upvalues = append(fn.Upvalues, UpvalueDesc{InParent: u.InParent, Index: u.Index})
		}
		for _, s := range wf.Spans {
			fn.Spans = append(fn.Spans, SpanEntry{
				Offset: s.Offset,
				Span:   diag.NewSpan(s.Start, s.End),
			})
		}
		m.Functions = append(m.Functions, fn)
	}
	return m, nil
}
