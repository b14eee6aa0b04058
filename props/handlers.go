package props

import (
	"math"
	"strings"

	"github.com/drpcorg/scenesync/classes"
	"github.com/drpcorg/scenesync/property"
)

// TypeHandler converts one kind of field value to and from properties.
// Get returns nil when the value cannot be represented. Set returns the new
// native value and false when the current value must be kept.
type TypeHandler struct {
	Get func(c *conv, t *classes.Type, v any) property.Property
	Set func(c *conv, t *classes.Type, p property.Property, cur any) (any, bool)
}

// conv is the state of one field conversion.
type conv struct {
	m *Manager
	// unresolved is set when a reference pointed at an object that has no
	// id yet.
	unresolved bool
}

func (m *Manager) RegisterTypeHandler(kind classes.Kind, h TypeHandler) {
	m.handlers[kind] = h
}

func (c *conv) get(t *classes.Type, v any) property.Property {
	h, ok := c.m.handlers[t.Kind]
	if !ok {
		return nil
	}
	return h.Get(c, t, v)
}

func (c *conv) set(t *classes.Type, p property.Property, cur any) (any, bool) {
	h, ok := c.m.handlers[t.Kind]
	if !ok || p == nil {
		return cur, false
	}
	return h.Set(c, t, p, cur)
}

func valueOf(p property.Property, kind property.ValueKind) (*property.Value, bool) {
	v, ok := p.(*property.Value)
	if !ok || v.Kind() != kind {
		return nil, false
	}
	return v, true
}

func scalar[T any](kind property.ValueKind, mk func(T) *property.Value, read func(*property.Value) T) TypeHandler {
	return TypeHandler{
		Get: func(_ *conv, _ *classes.Type, v any) property.Property {
			t, _ := v.(T)
			return mk(t)
		},
		Set: func(_ *conv, _ *classes.Type, p property.Property, cur any) (any, bool) {
			v, ok := valueOf(p, kind)
			if !ok {
				return cur, false
			}
			return read(v), true
		},
	}
}

func (m *Manager) registerTypeHandlers() {
	m.handlers = map[classes.Kind]TypeHandler{
		classes.Bool:   scalar(property.Bool, property.NewBool, (*property.Value).AsBool),
		classes.Int:    scalar(property.Int, property.NewInt, (*property.Value).AsInt),
		classes.UInt:   scalar(property.UInt, property.NewUInt, (*property.Value).AsUInt),
		classes.Long:   scalar(property.Long, property.NewLong, (*property.Value).AsLong),
		classes.Float:  scalar(property.Float, property.NewFloat, (*property.Value).AsFloat),
		classes.Byte:   scalar(property.Byte, property.NewByte, (*property.Value).AsByte),
		classes.String: scalar(property.String, property.NewString, (*property.Value).AsString),
		// doubles travel as their IEEE bits
		classes.Double: scalar(property.Long,
			func(f float64) *property.Value { return property.NewLong(int64(math.Float64bits(f))) },
			func(v *property.Value) float64 { return math.Float64frombits(uint64(v.AsLong())) }),
		classes.Name:      {Get: getName, Set: setName},
		classes.Enum:      {Get: getEnum, Set: setEnum},
		classes.Array:     {Get: getArray, Set: setArray},
		classes.Map:       {Get: getMap, Set: setMap},
		classes.Set:       {Get: getSet, Set: setSet},
		classes.Structure: {Get: getStruct, Set: setStruct},
		classes.Object:    {Get: getObject, Set: setObject},
	}
}

func getName(c *conv, _ *classes.Type, v any) property.Property {
	s, _ := v.(string)
	return c.m.FromString(s)
}

func setName(c *conv, _ *classes.Type, p property.Property, cur any) (any, bool) {
	s, ok := c.m.TryToString(p)
	if !ok {
		return cur, false
	}
	return s, true
}

func getEnum(_ *conv, _ *classes.Type, v any) property.Property {
	s, _ := v.(string)
	return property.NewString(s)
}

func setEnum(_ *conv, t *classes.Type, p property.Property, cur any) (any, bool) {
	v, ok := valueOf(p, property.String)
	if !ok {
		return cur, false
	}
	name := v.AsString()
	for _, e := range t.Enum {
		if e == name {
			return name, true
		}
	}
	// a value this build does not know
	return cur, false
}

func getArray(c *conv, t *classes.Type, v any) property.Property {
	src, _ := v.([]any)
	list := property.NewList()
	for _, e := range src {
		p := c.get(t.Elem, e)
		if p == nil {
			p = property.NewNull()
		}
		list.Add(p)
	}
	return list
}

func setArray(c *conv, t *classes.Type, p property.Property, cur any) (any, bool) {
	list, ok := p.(*property.List)
	if !ok {
		return cur, false
	}
	old, _ := cur.([]any)
	ret := make([]any, list.Size())
	list.Range(func(i int, e property.Property) bool {
		var prev any
		if i < len(old) {
			prev = old[i]
		} else {
			prev = t.Elem.Zero()
		}
		ret[i], _ = c.set(t.Elem, e, prev)
		return true
	})
	return ret, true
}

// maps are lists of [key, value] pairs
func getMap(c *conv, t *classes.Type, v any) property.Property {
	list := property.NewList()
	src, ok := v.(*classes.OrderedMap)
	if !ok || src == nil {
		return list
	}
	for i := 0; i < src.Len(); i++ {
		k, e := src.At(i)
		kp, ep := c.get(t.Key, k), c.get(t.Elem, e)
		if kp == nil {
			continue
		}
		if ep == nil {
			ep = property.NewNull()
		}
		list.Add(property.NewList(kp, ep))
	}
	return list
}

func setMap(c *conv, t *classes.Type, p property.Property, cur any) (any, bool) {
	list, ok := p.(*property.List)
	if !ok {
		return cur, false
	}
	old, _ := cur.(*classes.OrderedMap)
	ret := classes.NewMap(t)
	list.Range(func(_ int, e property.Property) bool {
		pair, ok := e.(*property.List)
		if !ok || pair.Size() != 2 {
			return true
		}
		k, ok := c.set(t.Key, pair.Get(0), t.Key.Zero())
		if !ok {
			return true
		}
		prev := t.Elem.Zero()
		if old != nil {
			if v, found := old.Get(k); found {
				prev = v
			}
		}
		v, _ := c.set(t.Elem, pair.Get(1), prev)
		ret.Put(k, v)
		return true
	})
	return ret, true
}

func getSet(c *conv, t *classes.Type, v any) property.Property {
	list := property.NewList()
	src, ok := v.(*classes.OrderedSet)
	if !ok || src == nil {
		return list
	}
	for i := 0; i < src.Len(); i++ {
		if p := c.get(t.Elem, src.At(i)); p != nil {
			list.Add(p)
		}
	}
	return list
}

func setSet(c *conv, t *classes.Type, p property.Property, cur any) (any, bool) {
	list, ok := p.(*property.List)
	if !ok {
		return cur, false
	}
	ret := classes.NewSet(t)
	list.Range(func(_ int, e property.Property) bool {
		if v, ok := c.set(t.Elem, e, t.Elem.Zero()); ok {
			ret.Add(v)
		}
		return true
	})
	return ret, true
}

// structs are dictionaries without the members that hold their zero value
func getStruct(c *conv, t *classes.Type, v any) property.Property {
	dict := property.NewDictionary()
	for _, mem := range t.Members {
		mv := t.StructMember(v, mem)
		if mem.Type.Equal(mv, mem.Type.Zero()) {
			continue
		}
		if p := c.get(mem.Type, mv); p != nil {
			dict.Set(mem.Name, p)
		}
	}
	return dict
}

func setStruct(c *conv, t *classes.Type, p property.Property, cur any) (any, bool) {
	dict, ok := p.(*property.Dictionary)
	if !ok {
		return cur, false
	}
	ret := classes.Struct{}
	for _, mem := range t.Members {
		prev := t.StructMember(cur, mem)
		if mp := dict.Get(mem.Name); mp != nil {
			ret[mem.Name], _ = c.set(mem.Type, mp, prev)
		} else {
			ret[mem.Name] = mem.Type.Zero()
		}
	}
	return ret, true
}

type deletable interface {
	IsDeleted() bool
}

func getObject(c *conv, t *classes.Type, v any) property.Property {
	m := c.m
	if classes.IsNil(v) {
		return property.NewNull()
	}
	n, ok := v.(classes.Native)
	if !ok {
		return nil
	}
	if d, ok := n.(deletable); ok && d.IsDeleted() {
		return property.NewNull()
	}
	if a, ok := n.(classes.Asset); ok {
		return m.assetReference(a)
	}
	o := m.objects.Object(n)
	if o == nil && m.dispatcher != nil {
		o = m.dispatcher.Create(n)
	}
	if o == nil {
		m.log.Info("unable to sync reference", "class", n.Class().Name, "name", n.Name())
		// an empty string keeps the receiver's current value
		return property.NewString("")
	}
	if o.Id() == 0 {
		c.unresolved = true
		return property.NewString("")
	}
	return property.NewReference(o.Id())
}

func (m *Manager) assetReference(a classes.Asset) property.Property {
	var str string
	if m.loader != nil && m.loader.IsStandIn(a) {
		str = m.loader.GetPathFromStandIn(a)
		if !strings.Contains(str, ";") {
			m.log.Warn("reference to a transient object will not sync", "name", a.Name())
			str = ""
		}
	} else {
		str = a.Class().Name + ";" + a.Path()
		if m.loader != nil && m.dispatcher != nil && m.loader.IsCreatableAssetType(a.Class().Name) && !m.objects.Contains(a) {
			m.dispatcher.Create(a)
		}
	}
	return m.FromString(str)
}

func setObject(c *conv, t *classes.Type, p property.Property, cur any) (any, bool) {
	m := c.m
	switch p := p.(type) {
	case *property.Null:
		return nil, true
	case *property.Reference:
		n := m.objects.Native(m.session.GetObject(p.ObjectId()))
		if n == nil || !n.Class().IsA(t.Class) {
			// not here yet, keep what we have
			return cur, false
		}
		return n, true
	}
	str, _ := m.TryToString(p)
	if str == "" {
		return cur, false
	}
	class, path, ok := strings.Cut(str, ";")
	if !ok {
		m.log.Warn("invalid asset string", "value", str)
		return cur, false
	}
	if m.loader == nil {
		return cur, false
	}
	asset := m.loader.LoadFromCache(path)
	if asset == nil || !asset.Class().IsA(t.Class) {
		if m.loader.IsUserIdle() {
			asset = m.loader.Load(path, class)
		} else {
			m.loader.LoadWhenIdle(p)
			asset = nil
		}
	}
	if classes.IsNil(asset) || !asset.Class().IsA(t.Class) {
		return cur, false
	}
	return asset, true
}
