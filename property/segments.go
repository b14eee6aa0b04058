package property

// Segment addresses one child: a dictionary Key, or a list Index when Key is
// empty and Index >= 0.
type Segment struct {
	Key   string
	Index int
}

func (s Segment) IsIndex() bool { return s.Key == "" && s.Index >= 0 }

// Segments returns the address of p relative to its root.
func Segments(p Property) []Segment {
	var segs []Segment
	for ; p != nil && p.Parent() != nil; p = p.Parent() {
		if p.Parent().Type() == ListType {
			segs = append(segs, Segment{Index: p.Index()})
		} else {
			segs = append(segs, Segment{Key: p.base().key, Index: -1})
		}
	}
	for i, j := 0, len(segs)-1; i < j; i, j = i+1, j-1 {
		segs[i], segs[j] = segs[j], segs[i]
	}
	return segs
}

// Resolve follows segs from root. It returns nil if any step is missing or
// has the wrong kind.
func Resolve(root Property, segs []Segment) Property {
	p := root
	for _, s := range segs {
		switch t := p.(type) {
		case *Dictionary:
			if s.IsIndex() {
				return nil
			}
			p = t.Get(s.Key)
		case *List:
			if !s.IsIndex() || s.Index >= t.Size() {
				return nil
			}
			p = t.items[s.Index]
		default:
			return nil
		}
		if p == nil {
			return nil
		}
	}
	return p
}
