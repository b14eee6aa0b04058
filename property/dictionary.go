package property

import (
	"sort"
	"strings"
)

type Dictionary struct {
	node
	items map[string]Property
}

func NewDictionary() *Dictionary {
	d := &Dictionary{items: make(map[string]Property)}
	d.self = d
	return d
}

func (d *Dictionary) Type() Type { return DictionaryType }

func (d *Dictionary) Size() int { return len(d.items) }

// Get returns nil if key is not present.
func (d *Dictionary) Get(key string) Property { return d.items[key] }

func (d *Dictionary) TryGet(key string) (Property, bool) {
	p, ok := d.items[key]
	return p, ok
}

func (d *Dictionary) HasKey(key string) bool {
	_, ok := d.items[key]
	return ok
}

// Set puts p under key, replacing and orphaning the previous entry. A nil p
// is stored as Null.
func (d *Dictionary) Set(key string, p Property) {
	if p == nil {
		p = NewNull()
	}
	if old, ok := d.items[key]; ok {
		if old == p {
			return
		}
		orphan(old)
	}
	adopt(d, p, key)
	d.items[key] = p
	d.report(Change{Kind: ChangeSet, Property: p})
}

// Remove deletes key. It returns false if the key was not present.
func (d *Dictionary) Remove(key string) bool {
	old, ok := d.items[key]
	if !ok {
		return false
	}
	delete(d.items, key)
	orphan(old)
	d.report(Change{Kind: ChangeRemove, Property: d, Key: key})
	return true
}

// Keys returns the keys in ascending order.
func (d *Dictionary) Keys() []string {
	keys := make([]string, 0, len(d.items))
	for k := range d.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Range calls fn for every entry in ascending key order until fn returns
// false.
func (d *Dictionary) Range(fn func(key string, p Property) bool) {
	for _, k := range d.Keys() {
		if !fn(k, d.items[k]) {
			return
		}
	}
}

func (d *Dictionary) Clone() Property {
	c := NewDictionary()
	for k, p := range d.items {
		cp := p.Clone()
		adopt(c, cp, k)
		c.items[k] = cp
	}
	return c
}

func (d *Dictionary) Equals(other Property) bool {
	o, ok := other.(*Dictionary)
	if !ok || len(o.items) != len(d.items) {
		return false
	}
	for k, p := range d.items {
		op, ok := o.items[k]
		if !ok || !p.Equals(op) {
			return false
		}
	}
	return true
}

func (d *Dictionary) String() string {
	b := strings.Builder{}
	b.WriteByte('{')
	for i, k := range d.Keys() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(d.items[k].String())
	}
	b.WriteByte('}')
	return b.String()
}
