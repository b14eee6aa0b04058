package property

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

type ValueKind uint8

const (
	Int    ValueKind = 0
	Float  ValueKind = 1
	String ValueKind = 2
	Bool   ValueKind = 3
	UInt   ValueKind = 4
	Byte   ValueKind = 5
	Long   ValueKind = 6

	ArrayFlag ValueKind = 8

	IntArray    = Int | ArrayFlag
	FloatArray  = Float | ArrayFlag
	StringArray = String | ArrayFlag
	BoolArray   = Bool | ArrayFlag
	UIntArray   = UInt | ArrayFlag
	ByteArray   = Byte | ArrayFlag
	LongArray   = Long | ArrayFlag

	Undefined ValueKind = 255
)

func (k ValueKind) IsArray() bool {
	return k != Undefined && k&ArrayFlag != 0
}

// Elem is the scalar kind of an array kind.
func (k ValueKind) Elem() ValueKind {
	if !k.IsArray() {
		return k
	}
	return k &^ ArrayFlag
}

func (k ValueKind) size() int {
	switch k.Elem() {
	case Int, Float, UInt:
		return 4
	case Bool, Byte:
		return 1
	case Long:
		return 8
	}
	return 0
}

var kindNames = map[ValueKind]string{
	Int: "int", Float: "float", String: "string", Bool: "bool",
	UInt: "uint", Byte: "byte", Long: "long", Undefined: "undefined",
}

func (k ValueKind) String() string {
	if k.IsArray() {
		return kindNames[k.Elem()] + "[]"
	}
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Value holds a typed payload as little-endian bytes. String arrays are
// stored as zero-terminated strings back to back.
type Value struct {
	node
	kind ValueKind
	data []byte
	n    int
}

func newValue(kind ValueKind, data []byte, n int) *Value {
	v := &Value{kind: kind, data: data, n: n}
	v.self = v
	return v
}

// NewRaw builds a value from an encoded payload. n is the array length and
// is ignored for scalars.
func NewRaw(kind ValueKind, data []byte, n int) *Value {
	if !kind.IsArray() {
		n = 1
	}
	return newValue(kind, append([]byte{}, data...), n)
}

func NewInt(i int32) *Value {
	return newValue(Int, binary.LittleEndian.AppendUint32(nil, uint32(i)), 1)
}

func NewUInt(u uint32) *Value {
	return newValue(UInt, binary.LittleEndian.AppendUint32(nil, u), 1)
}

func NewLong(l int64) *Value {
	return newValue(Long, binary.LittleEndian.AppendUint64(nil, uint64(l)), 1)
}

func NewFloat(f float32) *Value {
	return newValue(Float, binary.LittleEndian.AppendUint32(nil, math.Float32bits(f)), 1)
}

func NewByte(b uint8) *Value {
	return newValue(Byte, []byte{b}, 1)
}

func NewBool(b bool) *Value {
	if b {
		return newValue(Bool, []byte{1}, 1)
	}
	return newValue(Bool, []byte{0}, 1)
}

func NewString(s string) *Value {
	return newValue(String, []byte(s), 1)
}

func NewIntArray(a []int32) *Value {
	data := make([]byte, 0, 4*len(a))
	for _, i := range a {
		data = binary.LittleEndian.AppendUint32(data, uint32(i))
	}
	return newValue(IntArray, data, len(a))
}

func NewUIntArray(a []uint32) *Value {
	data := make([]byte, 0, 4*len(a))
	for _, u := range a {
		data = binary.LittleEndian.AppendUint32(data, u)
	}
	return newValue(UIntArray, data, len(a))
}

func NewLongArray(a []int64) *Value {
	data := make([]byte, 0, 8*len(a))
	for _, l := range a {
		data = binary.LittleEndian.AppendUint64(data, uint64(l))
	}
	return newValue(LongArray, data, len(a))
}

func NewFloatArray(a []float32) *Value {
	data := make([]byte, 0, 4*len(a))
	for _, f := range a {
		data = binary.LittleEndian.AppendUint32(data, math.Float32bits(f))
	}
	return newValue(FloatArray, data, len(a))
}

func NewBoolArray(a []bool) *Value {
	data := make([]byte, len(a))
	for i, b := range a {
		if b {
			data[i] = 1
		}
	}
	return newValue(BoolArray, data, len(a))
}

func NewBytes(b []byte) *Value {
	return newValue(ByteArray, append([]byte{}, b...), len(b))
}

func NewStringArray(a []string) *Value {
	var data []byte
	for _, s := range a {
		data = append(data, s...)
		data = append(data, 0)
	}
	return newValue(StringArray, data, len(a))
}

func (v *Value) Type() Type { return ValueType }

func (v *Value) Kind() ValueKind { return v.kind }

func (v *Value) IsArray() bool { return v.kind.IsArray() }

// ArrayLen is the number of array elements, or 1 for scalars.
func (v *Value) ArrayLen() int { return v.n }

// Data is the encoded payload. Callers must not modify it.
func (v *Value) Data() []byte { return v.data }

func (v *Value) must(k ValueKind) {
	if v.kind != k {
		panic(fmt.Sprintf("property: cannot read %s value as %s", v.kind, k))
	}
}

func (v *Value) AsInt() int32 {
	v.must(Int)
	return int32(binary.LittleEndian.Uint32(v.data))
}

func (v *Value) AsUInt() uint32 {
	v.must(UInt)
	return binary.LittleEndian.Uint32(v.data)
}

func (v *Value) AsLong() int64 {
	v.must(Long)
	return int64(binary.LittleEndian.Uint64(v.data))
}

func (v *Value) AsFloat() float32 {
	v.must(Float)
	return math.Float32frombits(binary.LittleEndian.Uint32(v.data))
}

func (v *Value) AsByte() uint8 {
	v.must(Byte)
	return v.data[0]
}

func (v *Value) AsBool() bool {
	v.must(Bool)
	return v.data[0] != 0
}

func (v *Value) AsString() string {
	v.must(String)
	return string(v.data)
}

func (v *Value) AsIntArray() []int32 {
	v.must(IntArray)
	ret := make([]int32, v.n)
	for i := range ret {
		ret[i] = int32(binary.LittleEndian.Uint32(v.data[4*i:]))
	}
	return ret
}

func (v *Value) AsUIntArray() []uint32 {
	v.must(UIntArray)
	ret := make([]uint32, v.n)
	for i := range ret {
		ret[i] = binary.LittleEndian.Uint32(v.data[4*i:])
	}
	return ret
}

func (v *Value) AsLongArray() []int64 {
	v.must(LongArray)
	ret := make([]int64, v.n)
	for i := range ret {
		ret[i] = int64(binary.LittleEndian.Uint64(v.data[8*i:]))
	}
	return ret
}

func (v *Value) AsFloatArray() []float32 {
	v.must(FloatArray)
	ret := make([]float32, v.n)
	for i := range ret {
		ret[i] = math.Float32frombits(binary.LittleEndian.Uint32(v.data[4*i:]))
	}
	return ret
}

func (v *Value) AsBoolArray() []bool {
	v.must(BoolArray)
	ret := make([]bool, v.n)
	for i := range ret {
		ret[i] = v.data[i] != 0
	}
	return ret
}

func (v *Value) AsBytes() []byte {
	v.must(ByteArray)
	return append([]byte{}, v.data...)
}

func (v *Value) AsStringArray() []string {
	v.must(StringArray)
	if v.n == 0 {
		return []string{}
	}
	parts := strings.Split(string(v.data[:len(v.data)-1]), "\x00")
	return parts
}

// Set copies the kind and payload of o into v in place and reports the edit.
// It does nothing if the two are already equal.
func (v *Value) Set(o *Value) {
	if v.Equals(o) {
		return
	}
	v.kind = o.kind
	v.data = append(v.data[:0:0], o.data...)
	v.n = o.n
	v.report(Change{Kind: ChangeSet, Property: v})
}

func (v *Value) Clone() Property {
	return newValue(v.kind, append([]byte{}, v.data...), v.n)
}

func (v *Value) Equals(other Property) bool {
	o, ok := other.(*Value)
	return ok && o.kind == v.kind && o.n == v.n && bytes.Equal(o.data, v.data)
}

func (v *Value) String() string {
	switch v.kind {
	case Int:
		return fmt.Sprint(v.AsInt())
	case UInt:
		return fmt.Sprint(v.AsUInt())
	case Long:
		return fmt.Sprint(v.AsLong())
	case Float:
		return fmt.Sprint(v.AsFloat())
	case Byte:
		return fmt.Sprint(v.AsByte())
	case Bool:
		return fmt.Sprint(v.AsBool())
	case String:
		return fmt.Sprintf("%q", v.AsString())
	case IntArray:
		return fmt.Sprint(v.AsIntArray())
	case UIntArray:
		return fmt.Sprint(v.AsUIntArray())
	case LongArray:
		return fmt.Sprint(v.AsLongArray())
	case FloatArray:
		return fmt.Sprint(v.AsFloatArray())
	case BoolArray:
		return fmt.Sprint(v.AsBoolArray())
	case ByteArray:
		return fmt.Sprintf("%x", v.data)
	case StringArray:
		return fmt.Sprintf("%q", v.AsStringArray())
	}
	return "undefined"
}
