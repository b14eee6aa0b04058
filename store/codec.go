package store

import (
	"github.com/drpcorg/scenesync/property"
	"github.com/drpcorg/scenesync/scene_errors"
	"github.com/learn-decentralized-systems/toytlv"
	"github.com/pkg/errors"
)

const (
	litValue      = 'V'
	litDictionary = 'D'
	litList       = 'L'
	litReference  = 'R'
	litNull       = 'N'
	litKey        = 'K'
)

// AppendProperty serializes a property tree.
func AppendProperty(into []byte, p property.Property) []byte {
	switch t := p.(type) {
	case *property.Value:
		head := append([]byte{byte(t.Kind())}, u32(uint32(t.ArrayLen()))...)
		return toytlv.Append(into, litValue, head, t.Data())
	case *property.Reference:
		return toytlv.Append(into, litReference, u32(t.ObjectId()))
	case *property.Dictionary:
		var bm int
		bm, into = toytlv.OpenHeader(into, litDictionary)
		t.Range(func(key string, e property.Property) bool {
			into = toytlv.Append(into, litKey, []byte(key))
			into = AppendProperty(into, e)
			return true
		})
		toytlv.CloseHeader(into, bm)
		return into
	case *property.List:
		var bm int
		bm, into = toytlv.OpenHeader(into, litList)
		t.Range(func(_ int, e property.Property) bool {
			into = AppendProperty(into, e)
			return true
		})
		toytlv.CloseHeader(into, bm)
		return into
	}
	return toytlv.Append(into, litNull)
}

// ReadProperty parses one property tree and returns the remaining bytes.
func ReadProperty(data []byte) (p property.Property, rest []byte, err error) {
	lit, body, rest, err := take(data)
	if err != nil {
		return nil, data, errors.Wrap(err, "property record")
	}
	switch lit {
	case litValue:
		if len(body) < 5 {
			return nil, data, errors.Wrap(scene_errors.ErrBadRecord, "value header")
		}
		n, _ := readU32(body[1:5])
		p = property.NewRaw(property.ValueKind(body[0]), body[5:], int(n))
	case litReference:
		id, e := readU32(body)
		if e != nil {
			return nil, data, errors.Wrap(e, "reference")
		}
		p = property.NewReference(id)
	case litNull:
		p = property.NewNull()
	case litList:
		l := property.NewList()
		for len(body) > 0 {
			var e property.Property
			if e, body, err = ReadProperty(body); err != nil {
				return nil, data, err
			}
			l.Add(e)
		}
		p = l
	case litDictionary:
		d := property.NewDictionary()
		for len(body) > 0 {
			var key []byte
			if key, body, err = takeLit(litKey, body); err != nil {
				return nil, data, errors.Wrap(err, "dictionary key")
			}
			var e property.Property
			if e, body, err = ReadProperty(body); err != nil {
				return nil, data, errors.Wrapf(err, "dictionary entry %q", key)
			}
			d.Set(string(key), e)
		}
		p = d
	default:
		return nil, data, errors.Wrapf(scene_errors.ErrBadRecord, "unknown property type %c", lit)
	}
	return p, rest, nil
}
