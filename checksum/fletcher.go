// Package checksum computes Fletcher-64 over property trees.
//
// Two trees with the same content hash the same no matter in which order
// their dictionary entries were inserted; list order is significant.
// Dictionary keys are mixed in as string table ids, so peers sharing a
// string table get the same checksum.
package checksum

import (
	"encoding/binary"
	"sort"
	"strings"

	"github.com/drpcorg/scenesync/property"
)

// StringTable maps dictionary keys to their shared integer ids.
type StringTable interface {
	GetStringTableId(s string) uint32
}

// Filter reports whether a dictionary key takes part in the checksum.
// A nil Filter accepts every key.
type Filter func(key string) bool

// MetaPrefix marks dictionary keys that carry metadata rather than content.
const MetaPrefix = "#"

// SkipMetaKeys excludes keys starting with MetaPrefix.
func SkipMetaKeys(key string) bool {
	return !strings.HasPrefix(key, MetaPrefix)
}

type fletcher struct {
	c1, c2 uint32
	table  StringTable
	filter Filter
}

func (f *fletcher) mix(u uint32) {
	f.c1 += u
	f.c2 += f.c1
}

// Fletcher64 returns c1 | c2<<32 where both sums are taken modulo 2^32.
func Fletcher64(p property.Property, table StringTable, filter Filter) uint64 {
	f := fletcher{table: table, filter: filter}
	if p != nil {
		f.property(p)
	}
	return uint64(f.c1) | uint64(f.c2)<<32
}

func (f *fletcher) property(p property.Property) {
	f.mix(uint32(p.Type()))
	switch t := p.(type) {
	case *property.Dictionary:
		f.dictionary(t)
	case *property.List:
		t.Range(func(_ int, e property.Property) bool {
			f.property(e)
			return true
		})
	case *property.Value:
		f.value(t)
	case *property.Reference:
		f.mix(t.ObjectId())
	}
}

func (f *fletcher) dictionary(d *property.Dictionary) {
	type entry struct {
		id  uint32
		key string
	}
	var entries []entry
	d.Range(func(key string, _ property.Property) bool {
		if f.filter == nil || f.filter(key) {
			entries = append(entries, entry{f.table.GetStringTableId(key), key})
		}
		return true
	})
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].id < entries[j].id
	})
	for _, e := range entries {
		f.mix(e.id)
		f.property(d.Get(e.key))
	}
}

func (f *fletcher) value(v *property.Value) {
	f.mix(uint32(v.Kind()))
	if v.IsArray() {
		f.mix(uint32(v.ArrayLen()))
	}
	data := v.Data()
	words := len(data) / 4
	for i := 0; i < words; i++ {
		f.mix(binary.LittleEndian.Uint32(data[4*i:]))
	}
	if rest := data[4*words:]; len(rest) > 0 {
		var pad [4]byte
		copy(pad[:], rest)
		f.mix(binary.LittleEndian.Uint32(pad[:]))
	}
}
