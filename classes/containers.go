package classes

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash"
)

// table is the hash index shared by OrderedMap and OrderedSet. Keys are
// found through their xxhash fingerprint. Keys mutated in place keep their
// old fingerprint, so the index goes stale until Rehash.
type table struct {
	keyType *Type
	keys    []any
	values  []any
	hashes  []uint64
	buckets map[uint64][]int
}

func newTable(keyType *Type) table {
	return table{keyType: keyType, buckets: make(map[uint64][]int)}
}

// Fingerprint hashes a value of type t.
func Fingerprint(t *Type, v any) uint64 {
	return xxhash.Sum64(appendKey(nil, t, v))
}

func appendKey(buf []byte, t *Type, v any) []byte {
	if v == nil && t.Kind != Object {
		v = t.Zero()
	}
	switch t.Kind {
	case Bool:
		if v.(bool) {
			return append(buf, 1)
		}
		return append(buf, 0)
	case Int:
		return binary.LittleEndian.AppendUint32(buf, uint32(v.(int32)))
	case UInt:
		return binary.LittleEndian.AppendUint32(buf, v.(uint32))
	case Long:
		return binary.LittleEndian.AppendUint64(buf, uint64(v.(int64)))
	case Float:
		return binary.LittleEndian.AppendUint32(buf, math.Float32bits(v.(float32)))
	case Double:
		return binary.LittleEndian.AppendUint64(buf, math.Float64bits(v.(float64)))
	case Byte:
		return append(buf, v.(uint8))
	case String, Name, Enum:
		return append(append(buf, v.(string)...), 0)
	case Array:
		vs, _ := v.([]any)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(vs)))
		for _, e := range vs {
			buf = appendKey(buf, t.Elem, e)
		}
		return buf
	case Structure:
		for _, m := range t.Members {
			buf = appendKey(buf, m.Type, t.StructMember(v, m))
		}
		return buf
	case Object:
		if IsNil(v) {
			return append(buf, 0)
		}
		return fmt.Appendf(buf, "%p", v)
	}
	return fmt.Appendf(buf, "%v", v)
}

func (tb *table) Len() int { return len(tb.keys) }

func (tb *table) find(key any) int {
	h := Fingerprint(tb.keyType, key)
	for _, i := range tb.buckets[h] {
		if tb.keyType.Equal(tb.keys[i], key) {
			return i
		}
	}
	return -1
}

func (tb *table) add(key, value any) {
	h := Fingerprint(tb.keyType, key)
	tb.buckets[h] = append(tb.buckets[h], len(tb.keys))
	tb.keys = append(tb.keys, key)
	tb.values = append(tb.values, value)
	tb.hashes = append(tb.hashes, h)
}

func (tb *table) removeAt(i int) {
	tb.keys = append(tb.keys[:i], tb.keys[i+1:]...)
	tb.values = append(tb.values[:i], tb.values[i+1:]...)
	tb.hashes = append(tb.hashes[:i], tb.hashes[i+1:]...)
	tb.reindex()
}

func (tb *table) clear() {
	tb.keys, tb.values, tb.hashes = nil, nil, nil
	tb.buckets = make(map[uint64][]int)
}

func (tb *table) reindex() {
	tb.buckets = make(map[uint64][]int, len(tb.keys))
	for i, h := range tb.hashes {
		tb.buckets[h] = append(tb.buckets[h], i)
	}
}

// IsStale is true if a key changed since it was indexed.
func (tb *table) IsStale() bool {
	for i, k := range tb.keys {
		if Fingerprint(tb.keyType, k) != tb.hashes[i] {
			return true
		}
	}
	return false
}

// Rehash rebuilds the index from the current keys. Entries whose key
// became a duplicate of an earlier one are dropped; the count is returned.
func (tb *table) Rehash() (dropped int) {
	keys, values := tb.keys, tb.values
	tb.clear()
	for i, k := range keys {
		if tb.find(k) >= 0 {
			dropped++
			continue
		}
		tb.add(k, values[i])
	}
	return
}

// OrderedMap is an insertion ordered hash map.
type OrderedMap struct {
	table
	valueType *Type
}

func NewMap(t *Type) *OrderedMap {
	return &OrderedMap{table: newTable(t.Key), valueType: t.Elem}
}

func (m *OrderedMap) At(i int) (key, value any) { return m.keys[i], m.values[i] }

// SetKeyAt replaces a key without reindexing, the way host code mutating a
// key in place does. Call Rehash afterwards.
func (m *OrderedMap) SetKeyAt(i int, key any) { m.keys[i] = key }

func (m *OrderedMap) SetValueAt(i int, value any) { m.values[i] = value }

func (m *OrderedMap) Get(key any) (any, bool) {
	if i := m.find(key); i >= 0 {
		return m.values[i], true
	}
	return nil, false
}

func (m *OrderedMap) Put(key, value any) {
	if i := m.find(key); i >= 0 {
		m.values[i] = value
		return
	}
	m.add(key, value)
}

func (m *OrderedMap) Remove(key any) bool {
	i := m.find(key)
	if i < 0 {
		return false
	}
	m.removeAt(i)
	return true
}

func (m *OrderedMap) Clear() { m.clear() }

type OrderedSet struct {
	table
}

func NewSet(t *Type) *OrderedSet {
	return &OrderedSet{table: newTable(t.Elem)}
}

func (s *OrderedSet) At(i int) any { return s.keys[i] }

// SetAt replaces an element without reindexing.
func (s *OrderedSet) SetAt(i int, v any) { s.keys[i] = v }

func (s *OrderedSet) Has(v any) bool { return s.find(v) >= 0 }

// Add returns false if v is already present.
func (s *OrderedSet) Add(v any) bool {
	if s.find(v) >= 0 {
		return false
	}
	s.add(v, nil)
	return true
}

func (s *OrderedSet) Remove(v any) bool {
	i := s.find(v)
	if i < 0 {
		return false
	}
	s.removeAt(i)
	return true
}

func (s *OrderedSet) Clear() { s.clear() }
