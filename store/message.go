package store

import (
	"encoding/binary"
	"math"

	"github.com/drpcorg/scenesync/graph"
	"github.com/drpcorg/scenesync/property"
	"github.com/drpcorg/scenesync/scene_errors"
	"github.com/learn-decentralized-systems/toytlv"
	"github.com/pkg/errors"
)

// Wire form of a graph.Message:
//
//	M( H(kind RequestId ObjectId ParentId ChildIndex UserId Index Count)
//	   I(ids) J(object) E(J...) G(S...) K(key) Y(property) A(values...)
//	   U(user) Z(color) )
//
// Everything but H is omitted when zero. Objects nest as
// J( H(id flags lock owner) T(type) Y(property) J... ).
const (
	litMessage  = 'M'
	litHead     = 'H'
	litIds      = 'I'
	litData     = 'J'
	litChildren = 'E'
	litPath     = 'G'
	litSegment  = 'S'
	litValues   = 'A'
	litUser     = 'U'
	litColor    = 'Z'
)

const msgHeadLen = 1 + 7*4

func i32(v int) []byte { return u32(uint32(int32(v))) }

func appendColor(into []byte, c graph.Color) []byte {
	for _, f := range c {
		into = binary.LittleEndian.AppendUint32(into, math.Float32bits(f))
	}
	return into
}

func readColor(b []byte) (c graph.Color, err error) {
	if len(b) != 12 {
		return c, scene_errors.ErrBadRecord
	}
	for i := range c {
		c[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return c, nil
}

// AppendMessage serializes m. The unexported object pointers of outgoing
// client messages are not carried.
func AppendMessage(into []byte, m *graph.Message) []byte {
	bm, into := toytlv.OpenHeader(into, litMessage)
	head := make([]byte, 0, msgHeadLen)
	head = append(head, byte(m.Kind))
	head = append(head, u32(m.RequestId)...)
	head = append(head, u32(m.ObjectId)...)
	head = append(head, u32(m.ParentId)...)
	head = append(head, i32(m.ChildIndex)...)
	head = append(head, u32(m.UserId)...)
	head = append(head, i32(m.Index)...)
	head = append(head, i32(m.Count)...)
	into = toytlv.Append(into, litHead, head)
	if len(m.Ids) > 0 {
		ids := make([]byte, 0, len(m.Ids)*4)
		for _, id := range m.Ids {
			ids = binary.LittleEndian.AppendUint32(ids, id)
		}
		into = toytlv.Append(into, litIds, ids)
	}
	if m.Object != nil {
		into = appendObjectData(into, m.Object)
	}
	if m.Children != nil {
		var cbm int
		cbm, into = toytlv.OpenHeader(into, litChildren)
		for _, d := range m.Children {
			into = appendObjectData(into, d)
		}
		toytlv.CloseHeader(into, cbm)
	}
	if len(m.Path) > 0 {
		var pbm int
		pbm, into = toytlv.OpenHeader(into, litPath)
		for _, s := range m.Path {
			into = toytlv.Append(into, litSegment, i32(s.Index), []byte(s.Key))
		}
		toytlv.CloseHeader(into, pbm)
	}
	if m.Key != "" {
		into = toytlv.Append(into, litKey, []byte(m.Key))
	}
	if m.Property != nil {
		into = toytlv.Append(into, litProperty, AppendProperty(nil, m.Property))
	}
	if m.Values != nil {
		var vbm int
		vbm, into = toytlv.OpenHeader(into, litValues)
		for _, v := range m.Values {
			into = AppendProperty(into, v)
		}
		toytlv.CloseHeader(into, vbm)
	}
	if m.User != nil {
		into = toytlv.Append(into, litUser, u32(m.User.Id), appendColor(nil, m.User.Color), []byte(m.User.Name))
	}
	if m.Color != (graph.Color{}) {
		into = toytlv.Append(into, litColor, appendColor(nil, m.Color))
	}
	toytlv.CloseHeader(into, bm)
	return into
}

func appendObjectData(into []byte, d *graph.ObjectData) []byte {
	bm, into := toytlv.OpenHeader(into, litData)
	head := append(u32(d.Id), byte(d.Flags), 0)
	if d.Lock {
		head[5] = 1
	}
	head = append(head, u32(d.LockOwner)...)
	into = toytlv.Append(into, litHead, head)
	into = toytlv.Append(into, litType, []byte(d.Type))
	if d.Property != nil {
		into = toytlv.Append(into, litProperty, AppendProperty(nil, d.Property))
	}
	for _, c := range d.Children {
		into = appendObjectData(into, c)
	}
	toytlv.CloseHeader(into, bm)
	return into
}

// ReadMessage parses one message record.
func ReadMessage(data []byte) (*graph.Message, error) {
	body, _, err := takeLit(litMessage, data)
	if err != nil {
		return nil, errors.Wrap(err, "message record")
	}
	m := &graph.Message{}
	for len(body) > 0 {
		var lit byte
		var field []byte
		if lit, field, body, err = take(body); err != nil {
			return nil, errors.Wrap(err, "message field")
		}
		switch lit {
		case litHead:
			err = readMessageHead(m, field)
		case litIds:
			if len(field)%4 != 0 {
				err = scene_errors.ErrBadRecord
				break
			}
			m.Ids = make([]uint32, 0, len(field)/4)
			for ; len(field) > 0; field = field[4:] {
				m.Ids = append(m.Ids, binary.LittleEndian.Uint32(field))
			}
		case litData:
			m.Object, err = readObjectData(field)
		case litChildren:
			m.Children = []*graph.ObjectData{}
			for len(field) > 0 && err == nil {
				var one []byte
				if one, field, err = takeLit(litData, field); err == nil {
					var d *graph.ObjectData
					d, err = readObjectData(one)
					m.Children = append(m.Children, d)
				}
			}
		case litPath:
			for len(field) > 0 && err == nil {
				var seg []byte
				if seg, field, err = takeLit(litSegment, field); err != nil {
					break
				}
				if len(seg) < 4 {
					err = scene_errors.ErrBadRecord
					break
				}
				m.Path = append(m.Path, property.Segment{
					Key:   string(seg[4:]),
					Index: int(int32(binary.LittleEndian.Uint32(seg))),
				})
			}
		case litKey:
			m.Key = string(field)
		case litProperty:
			m.Property, _, err = ReadProperty(field)
		case litValues:
			m.Values = []property.Property{}
			for len(field) > 0 && err == nil {
				var v property.Property
				if v, field, err = ReadProperty(field); err == nil {
					m.Values = append(m.Values, v)
				}
			}
		case litUser:
			if len(field) < 16 {
				err = scene_errors.ErrBadRecord
				break
			}
			u := &graph.UserData{Id: binary.LittleEndian.Uint32(field), Name: string(field[16:])}
			u.Color, err = readColor(field[4:16])
			m.User = u
		case litColor:
			m.Color, err = readColor(field)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "message field %c", lit)
		}
	}
	if m.Kind == 0 {
		return nil, errors.Wrap(scene_errors.ErrBadRecord, "message without a header")
	}
	return m, nil
}

func readMessageHead(m *graph.Message, b []byte) error {
	if len(b) != msgHeadLen {
		return scene_errors.ErrBadRecord
	}
	word := func(i int) uint32 { return binary.LittleEndian.Uint32(b[1+i*4:]) }
	m.Kind = graph.MessageKind(b[0])
	m.RequestId = word(0)
	m.ObjectId = word(1)
	m.ParentId = word(2)
	m.ChildIndex = int(int32(word(3)))
	m.UserId = word(4)
	m.Index = int(int32(word(5)))
	m.Count = int(int32(word(6)))
	return nil
}

func readObjectData(body []byte) (*graph.ObjectData, error) {
	d := &graph.ObjectData{}
	head := false
	for len(body) > 0 {
		lit, field, rest, err := take(body)
		if err != nil {
			return nil, errors.Wrap(err, "object data")
		}
		body = rest
		switch lit {
		case litHead:
			if len(field) != 10 {
				return nil, errors.Wrap(scene_errors.ErrBadRecord, "object data header")
			}
			d.Id = binary.LittleEndian.Uint32(field)
			d.Flags = graph.Flags(field[4])
			d.Lock = field[5] != 0
			d.LockOwner = binary.LittleEndian.Uint32(field[6:])
			head = true
		case litType:
			d.Type = string(field)
		case litProperty:
			p, _, err := ReadProperty(field)
			if err != nil {
				return nil, err
			}
			dict, ok := p.(*property.Dictionary)
			if !ok {
				return nil, errors.Wrap(scene_errors.ErrBadRecord, "object property is not a dictionary")
			}
			d.Property = dict
		case litData:
			c, err := readObjectData(field)
			if err != nil {
				return nil, err
			}
			d.Children = append(d.Children, c)
		}
	}
	if !head {
		return nil, errors.Wrap(scene_errors.ErrBadRecord, "object data without a header")
	}
	return d, nil
}
