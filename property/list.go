package property

import (
	"fmt"
	"strings"
)

// OutOfRangeError is the panic value for bad list indexes.
type OutOfRangeError struct {
	Index int
	Size  int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("property: list index %d out of range [0,%d)", e.Index, e.Size)
}

type List struct {
	node
	items []Property
}

func NewList(items ...Property) *List {
	l := &List{}
	l.self = l
	for _, p := range items {
		l.items = append(l.items, l.own(p))
	}
	return l
}

func (l *List) Type() Type { return ListType }

func (l *List) Size() int { return len(l.items) }

func (l *List) check(index, size int) {
	if index < 0 || index >= size {
		panic(&OutOfRangeError{Index: index, Size: size})
	}
}

func (l *List) own(p Property) Property {
	if p == nil {
		p = NewNull()
	}
	adopt(l, p, "")
	return p
}

func (l *List) Get(index int) Property {
	l.check(index, len(l.items))
	return l.items[index]
}

func (l *List) Set(index int, p Property) {
	l.check(index, len(l.items))
	if l.items[index] == p {
		return
	}
	old := l.items[index]
	p = l.own(p)
	// own may have removed p from this very list
	index = l.indexOf(old)
	orphan(old)
	l.items[index] = p
	l.report(Change{Kind: ChangeSet, Property: p})
}

func (l *List) indexOf(p Property) int {
	for i, e := range l.items {
		if e == p {
			return i
		}
	}
	return -1
}

func (l *List) Add(p Property) {
	l.InsertRange(len(l.items), p)
}

func (l *List) AddRange(ps ...Property) {
	l.InsertRange(len(l.items), ps...)
}

// Insert puts p before index. index may equal Size.
func (l *List) Insert(index int, p Property) {
	l.InsertRange(index, p)
}

func (l *List) InsertRange(index int, ps ...Property) {
	l.check(index, len(l.items)+1)
	if len(ps) == 0 {
		return
	}
	owned := make([]Property, len(ps))
	for i, p := range ps {
		owned[i] = l.own(p)
	}
	if index > len(l.items) {
		index = len(l.items)
	}
	tail := append([]Property{}, l.items[index:]...)
	l.items = append(append(l.items[:index], owned...), tail...)
	l.report(Change{Kind: ChangeListAdd, Property: l, Index: index, Count: len(owned)})
}

func (l *List) Remove(index int) {
	l.RemoveRange(index, 1)
}

// RemoveRange removes count elements starting at index.
func (l *List) RemoveRange(index, count int) {
	if count <= 0 {
		return
	}
	l.check(index, len(l.items))
	l.check(index+count-1, len(l.items))
	for _, p := range l.items[index : index+count] {
		orphan(p)
	}
	l.items = append(l.items[:index], l.items[index+count:]...)
	l.report(Change{Kind: ChangeListRemove, Property: l, Index: index, Count: count})
}

// Resize truncates the list or pads it with Null elements.
func (l *List) Resize(size int) {
	if size < 0 {
		panic(&OutOfRangeError{Index: size, Size: len(l.items)})
	}
	switch {
	case size < len(l.items):
		l.RemoveRange(size, len(l.items)-size)
	case size > len(l.items):
		pad := make([]Property, size-len(l.items))
		for i := range pad {
			pad[i] = NewNull()
		}
		l.AddRange(pad...)
	}
}

// Range calls fn for every element in index order until fn returns false.
func (l *List) Range(fn func(i int, p Property) bool) {
	for i, p := range l.items {
		if !fn(i, p) {
			return
		}
	}
}

func (l *List) Clone() Property {
	c := NewList()
	for _, p := range l.items {
		cp := p.Clone()
		adopt(c, cp, "")
		c.items = append(c.items, cp)
	}
	return c
}

func (l *List) Equals(other Property) bool {
	o, ok := other.(*List)
	if !ok || len(o.items) != len(l.items) {
		return false
	}
	for i, p := range l.items {
		if !p.Equals(o.items[i]) {
			return false
		}
	}
	return true
}

func (l *List) String() string {
	parts := make([]string, len(l.items))
	for i, p := range l.items {
		parts[i] = p.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
