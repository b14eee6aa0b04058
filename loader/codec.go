package loader

import (
	"fmt"
	"math"
	"strings"

	"github.com/drpcorg/scenesync/classes"
)

// decode converts a value read from YAML to the Go form of type t.
func (d *DirStorage) decode(t *classes.Type, raw any) (any, error) {
	switch t.Kind {
	case classes.Bool:
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("want bool, got %T", raw)
		}
		return b, nil
	case classes.Int, classes.UInt, classes.Long, classes.Byte:
		n, ok := raw.(int)
		if !ok {
			return nil, fmt.Errorf("want integer, got %T", raw)
		}
		switch t.Kind {
		case classes.Int:
			if int64(n) < math.MinInt32 || int64(n) > math.MaxInt32 {
				return nil, fmt.Errorf("%d out of int range", n)
			}
			return int32(n), nil
		case classes.UInt:
			if n < 0 || int64(n) > math.MaxUint32 {
				return nil, fmt.Errorf("%d out of uint range", n)
			}
			return uint32(n), nil
		case classes.Byte:
			if n < 0 || n > math.MaxUint8 {
				return nil, fmt.Errorf("%d out of byte range", n)
			}
			return uint8(n), nil
		}
		return int64(n), nil
	case classes.Float, classes.Double:
		var f float64
		switch x := raw.(type) {
		case float64:
			f = x
		case int:
			f = float64(x)
		default:
			return nil, fmt.Errorf("want number, got %T", raw)
		}
		if t.Kind == classes.Float {
			return float32(f), nil
		}
		return f, nil
	case classes.String, classes.Name, classes.Enum:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("want string, got %T", raw)
		}
		return s, nil
	case classes.Array:
		items, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("want list, got %T", raw)
		}
		ret := make([]any, len(items))
		for i, item := range items {
			v, err := d.decode(t.Elem, item)
			if err != nil {
				return nil, err
			}
			ret[i] = v
		}
		return ret, nil
	case classes.Set:
		items, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("want list, got %T", raw)
		}
		ret := classes.NewSet(t)
		for _, item := range items {
			v, err := d.decode(t.Elem, item)
			if err != nil {
				return nil, err
			}
			ret.Add(v)
		}
		return ret, nil
	case classes.Map:
		// a list of [key, value] pairs, so keys may be of any type
		items, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("want list of pairs, got %T", raw)
		}
		ret := classes.NewMap(t)
		for _, item := range items {
			pair, ok := item.([]any)
			if !ok || len(pair) != 2 {
				return nil, fmt.Errorf("want [key, value], got %v", item)
			}
			k, err := d.decode(t.Key, pair[0])
			if err != nil {
				return nil, err
			}
			v, err := d.decode(t.Elem, pair[1])
			if err != nil {
				return nil, err
			}
			ret.Put(k, v)
		}
		return ret, nil
	case classes.Structure:
		fields, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("want mapping, got %T", raw)
		}
		ret := classes.Struct{}
		for _, m := range t.Members {
			mv, ok := fields[m.Name]
			if !ok {
				continue
			}
			v, err := d.decode(m.Type, mv)
			if err != nil {
				return nil, err
			}
			ret[m.Name] = v
		}
		return ret, nil
	case classes.Object:
		if raw == nil {
			return nil, nil
		}
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("want \"Class;path\", got %T", raw)
		}
		class, path, ok := strings.Cut(s, ";")
		if !ok || d.Resolve == nil {
			return nil, nil
		}
		if n := d.Resolve(path, class); n != nil && n.Class().IsA(t.Class) {
			return n, nil
		}
		return nil, nil
	}
	return nil, fmt.Errorf("unsupported type %s", t)
}

// encode converts a field value to its YAML form.
func encode(t *classes.Type, v any) any {
	switch t.Kind {
	case classes.Int, classes.UInt, classes.Long, classes.Byte:
		switch n := v.(type) {
		case int32:
			return int(n)
		case uint32:
			return int(n)
		case uint8:
			return int(n)
		case int64:
			return int(n)
		}
	case classes.Float:
		f, _ := v.(float32)
		return float64(f)
	case classes.Array:
		items, _ := v.([]any)
		ret := make([]any, len(items))
		for i, item := range items {
			ret[i] = encode(t.Elem, item)
		}
		return ret
	case classes.Set:
		s, ok := v.(*classes.OrderedSet)
		ret := []any{}
		for i := 0; ok && s != nil && i < s.Len(); i++ {
			ret = append(ret, encode(t.Elem, s.At(i)))
		}
		return ret
	case classes.Map:
		m, ok := v.(*classes.OrderedMap)
		ret := []any{}
		for i := 0; ok && m != nil && i < m.Len(); i++ {
			k, e := m.At(i)
			ret = append(ret, []any{encode(t.Key, k), encode(t.Elem, e)})
		}
		return ret
	case classes.Structure:
		ret := map[string]any{}
		for _, m := range t.Members {
			ret[m.Name] = encode(m.Type, t.StructMember(v, m))
		}
		return ret
	case classes.Object:
		if a, ok := v.(classes.Asset); ok && !classes.IsNil(a) {
			return a.Class().Name + ";" + a.Path()
		}
		return nil
	}
	return v
}
