package props

import "github.com/drpcorg/scenesync/property"

// Copy makes dst equal to src with the fewest edits, so that only the parts
// that differ are reported. It returns false if the two have different
// variants; the caller then replaces dst.
func Copy(dst, src property.Property) bool {
	switch d := dst.(type) {
	case *property.Value:
		s, ok := src.(*property.Value)
		if ok {
			d.Set(s)
		}
		return ok
	case *property.Dictionary:
		s, ok := src.(*property.Dictionary)
		if ok {
			CopyDict(d, s)
		}
		return ok
	case *property.List:
		s, ok := src.(*property.List)
		if ok {
			CopyList(d, s)
		}
		return ok
	case *property.Reference:
		s, ok := src.(*property.Reference)
		if ok {
			d.SetObjectId(s.ObjectId())
		}
		return ok
	case *property.Null:
		_, ok := src.(*property.Null)
		return ok
	}
	return false
}

func CopyDict(dst, src *property.Dictionary) {
	for _, k := range dst.Keys() {
		if !src.HasKey(k) {
			dst.Remove(k)
		}
	}
	src.Range(func(k string, p property.Property) bool {
		if cur := dst.Get(k); cur == nil || !Copy(cur, p) {
			dst.Set(k, p.Clone())
		}
		return true
	})
}

func CopyList(dst, src *property.List) {
	n := min(dst.Size(), src.Size())
	for i := 0; i < n; i++ {
		if !Copy(dst.Get(i), src.Get(i)) {
			dst.Set(i, src.Get(i).Clone())
		}
	}
	if dst.Size() > src.Size() {
		dst.RemoveRange(src.Size(), dst.Size()-src.Size())
	}
	for i := dst.Size(); i < src.Size(); i++ {
		dst.Add(src.Get(i).Clone())
	}
}

// FromString stores s as a string table id. The empty string stays a string.
func (m *Manager) FromString(s string) property.Property {
	if s == "" {
		return property.NewString("")
	}
	return property.NewUInt(m.session.GetStringTableId(s))
}

// ToString reads a string stored with FromString or as a plain string.
func (m *Manager) ToString(p property.Property) string {
	s, _ := m.TryToString(p)
	return s
}

func (m *Manager) TryToString(p property.Property) (string, bool) {
	v, ok := p.(*property.Value)
	if !ok {
		return "", false
	}
	switch v.Kind() {
	case property.String:
		return v.AsString(), true
	case property.UInt:
		return m.session.TryGetStringFromTable(v.AsUInt())
	}
	return "", false
}
