// Package value implements the self-describing typed field codec the
// changelog needs: a text-only encoding (e.g. JSON) cannot round-trip
// binary columns, so every changelog field value carries an explicit
// type tag through msgpack instead of relying on msgpack's own
// interface{} guessing.
package value

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Kind tags which variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt64
	KindFloat64
	KindText
	KindBool
	KindBytes
)

// Value is a tagged union over the engine's native column types. It is
// the wire representation of ZV_CHANGE_FIELD.field_value.
type Value struct {
	kind  Kind
	i64   int64
	f64   float64
	text  string
	b     bool
	bytes []byte
}

func Null() Value               { return Value{kind: KindNull} }
func Int64(v int64) Value       { return Value{kind: KindInt64, i64: v} }
func Float64(v float64) Value   { return Value{kind: KindFloat64, f64: v} }
func Text(v string) Value       { return Value{kind: KindText, text: v} }
func Bool(v bool) Value         { return Value{kind: KindBool, b: v} }
func Bytes(v []byte) Value      { return Value{kind: KindBytes, bytes: append([]byte(nil), v...)} }

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// Any returns the value as a plain Go value suitable for binding into
// a database/sql parameter (int64, float64, string, bool, []byte, or
// nil).
func (v Value) Any() any {
	switch v.kind {
	case KindInt64:
		return v.i64
	case KindFloat64:
		return v.f64
	case KindText:
		return v.text
	case KindBool:
		return v.b
	case KindBytes:
		return v.bytes
	default:
		return nil
	}
}

// FromAny converts a value as returned by the SQL driver (or supplied
// by application code) into a tagged Value.
func FromAny(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case int64:
		return Int64(x), nil
	case int:
		return Int64(int64(x)), nil
	case int32:
		return Int64(int64(x)), nil
	case float64:
		return Float64(x), nil
	case float32:
		return Float64(float64(x)), nil
	case string:
		return Text(x), nil
	case bool:
		return Bool(x), nil
	case []byte:
		return Bytes(x), nil
	default:
		return Value{}, fmt.Errorf("value: unsupported Go type %T", v)
	}
}

// Equal reports whether two values carry the same kind and content,
// the comparison the changelog writer uses to decide whether a field
// actually changed.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindInt64:
		return a.i64 == b.i64
	case KindFloat64:
		return a.f64 == b.f64
	case KindText:
		return a.text == b.text
	case KindBool:
		return a.b == b.b
	case KindBytes:
		if len(a.bytes) != len(b.bytes) {
			return false
		}
		for i := range a.bytes {
			if a.bytes[i] != b.bytes[i] {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// EncodeMsgpack implements msgpack.CustomEncoder, writing an explicit
// kind tag ahead of the payload so decoding never has to guess a type.
func (v Value) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeUint8(uint8(v.kind)); err != nil {
		return err
	}
	switch v.kind {
	case KindNull:
		return nil
	case KindInt64:
		return enc.EncodeInt64(v.i64)
	case KindFloat64:
		return enc.EncodeFloat64(v.f64)
	case KindText:
		return enc.EncodeString(v.text)
	case KindBool:
		return enc.EncodeBool(v.b)
	case KindBytes:
		return enc.EncodeBytes(v.bytes)
	default:
		return fmt.Errorf("value: unknown kind %d", v.kind)
	}
}

// DecodeMsgpack implements msgpack.CustomDecoder.
func (v *Value) DecodeMsgpack(dec *msgpack.Decoder) error {
	kindByte, err := dec.DecodeUint8()
	if err != nil {
		return err
	}
	kind := Kind(kindByte)
	switch kind {
	case KindNull:
		*v = Null()
	case KindInt64:
		n, err := dec.DecodeInt64()
		if err != nil {
			return err
		}
		*v = Int64(n)
	case KindFloat64:
		f, err := dec.DecodeFloat64()
		if err != nil {
			return err
		}
		*v = Float64(f)
	case KindText:
		s, err := dec.DecodeString()
		if err != nil {
			return err
		}
		*v = Text(s)
	case KindBool:
		b, err := dec.DecodeBool()
		if err != nil {
			return err
		}
		*v = Bool(b)
	case KindBytes:
		b, err := dec.DecodeBytes()
		if err != nil {
			return err
		}
		*v = Bytes(b)
	default:
		return fmt.Errorf("value: unknown kind tag %d", kindByte)
	}
	return nil
}
