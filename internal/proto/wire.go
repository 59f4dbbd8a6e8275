package proto

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Frames use protobuf wire framing (tag + wire type) without generated code.
// Field numbers below are the schema; both ends must agree on them.

const (
	fieldID     protowire.Number = 1
	fieldOp     protowire.Number = 2
	fieldParams protowire.Number = 3
	fieldResult protowire.Number = 3
	fieldError  protowire.Number = 4
)

func appendString(b []byte, n protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, n, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// appendOptString writes s only when it is non-empty.
func appendOptString(b []byte, n protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	return appendString(b, n, s)
}

func appendStringPtr(b []byte, n protowire.Number, s *string) []byte {
	if s == nil {
		return b
	}
	return appendString(b, n, *s)
}

func appendBytes(b []byte, n protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, n, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendUint(b []byte, n protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, n, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, n protowire.Number, v bool) []byte {
	return appendUint(b, n, protowire.EncodeBool(v))
}

func appendDouble(b []byte, n protowire.Number, f float64) []byte {
	b = protowire.AppendTag(b, n, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(f))
}

func appendFloat(b []byte, n protowire.Number, f float32) []byte {
	b = protowire.AppendTag(b, n, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, math.Float32bits(f))
}

type field struct {
	num protowire.Number
	typ protowire.Type
	u   uint64
	b   []byte
}

// msg is a parsed message: the flat list of its fields in wire order.
type msg []field

func parseMsg(b []byte) (msg, error) {
	var m msg
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, ErrTruncated
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.u, n = protowire.ConsumeVarint(b)
		case protowire.Fixed32Type:
			var v uint32
			v, n = protowire.ConsumeFixed32(b)
			f.u = uint64(v)
		case protowire.Fixed64Type:
			f.u, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			f.b, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return nil, ErrTruncated
		}
		b = b[n:]
		m = append(m, f)
	}
	return m, nil
}

// get returns the last occurrence of field n, as protobuf does for scalars.
func (m msg) get(n protowire.Number) (field, bool) {
	for i := len(m) - 1; i >= 0; i-- {
		if m[i].num == n {
			return m[i], true
		}
	}
	return field{}, false
}

func (m msg) has(n protowire.Number) bool {
	_, ok := m.get(n)
	return ok
}

func (m msg) str(n protowire.Number) string {
	if f, ok := m.get(n); ok && f.typ == protowire.BytesType {
		return string(f.b)
	}
	return ""
}

func (m msg) strPtr(n protowire.Number) *string {
	if f, ok := m.get(n); ok && f.typ == protowire.BytesType {
		s := string(f.b)
		return &s
	}
	return nil
}

func (m msg) bytes(n protowire.Number) []byte {
	if f, ok := m.get(n); ok && f.typ == protowire.BytesType {
		return f.b
	}
	return nil
}

func (m msg) uint(n protowire.Number) uint64 {
	if f, ok := m.get(n); ok && f.typ == protowire.VarintType {
		return f.u
	}
	return 0
}

func (m msg) bool(n protowire.Number) bool {
	return m.uint(n) != 0
}

func (m msg) double(n protowire.Number) float64 {
	if f, ok := m.get(n); ok && f.typ == protowire.Fixed64Type {
		return math.Float64frombits(f.u)
	}
	return 0
}

func (m msg) doublePtr(n protowire.Number) *float64 {
	if f, ok := m.get(n); ok && f.typ == protowire.Fixed64Type {
		v := math.Float64frombits(f.u)
		return &v
	}
	return nil
}

func (m msg) float(n protowire.Number) float32 {
	if f, ok := m.get(n); ok && f.typ == protowire.Fixed32Type {
		return math.Float32frombits(uint32(f.u))
	}
	return 0
}

// all returns every occurrence of a repeated length-delimited field.
func (m msg) all(n protowire.Number) [][]byte {
	var out [][]byte
	for _, f := range m {
		if f.num == n && f.typ == protowire.BytesType {
			out = append(out, f.b)
		}
	}
	return out
}

func (m msg) strings(n protowire.Number) []string {
	raw := m.all(n)
	if len(raw) == 0 {
		return nil
	}
	out := make([]string, len(raw))
	for i, b := range raw {
		out[i] = string(b)
	}
	return out
}

// each decodes every occurrence of a repeated message field.
func each[T any](m msg, n protowire.Number, dec func(msg) T) ([]T, error) {
	raw := m.all(n)
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]T, 0, len(raw))
	for _, b := range raw {
		sub, err := parseMsg(b)
		if err != nil {
			return nil, err
		}
		out = append(out, dec(sub))
	}
	return out, nil
}

func sub(m msg, n protowire.Number) (msg, error) {
	return parseMsg(m.bytes(n))
}
