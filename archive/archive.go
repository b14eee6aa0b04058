// Package archive encodes binary blobs for properties that carry native
// data the field tables cannot describe. Object references inside a blob
// are written as a one byte tag followed by an id:
//
//	0 null
//	1 unsynced, the reader keeps its current value
//	2 object in the graph, then the 4 byte object id
//	3 asset, then the 4 byte string table id of "Class;path"
//
// All integers are little-endian. A finished blob starts with the 4 byte
// length of the rest.
package archive

import (
	"encoding/binary"
	"math"
	"strings"

	"github.com/drpcorg/scenesync/classes"
	"github.com/drpcorg/scenesync/props"
	"github.com/drpcorg/scenesync/scene_errors"
	"github.com/pkg/errors"
)

const (
	RefNull byte = iota
	RefUnsynced
	RefObject
	RefAsset
)

type deletable interface {
	IsDeleted() bool
}

// pathIds is an insertion-ordered set.
type pathIds struct {
	ids  []uint32
	seen map[uint32]bool
}

func (p *pathIds) add(id uint32) {
	if p.seen == nil {
		p.seen = make(map[uint32]bool)
	}
	if !p.seen[id] {
		p.seen[id] = true
		p.ids = append(p.ids, id)
	}
}

type Writer struct {
	m       *props.Manager
	buf     []byte
	missing pathIds
}

func NewWriter(m *props.Manager) *Writer {
	return &Writer{m: m, buf: make([]byte, 4, 64)}
}

func (w *Writer) WriteUint8(b uint8) { w.buf = append(w.buf, b) }

func (w *Writer) WriteBool(b bool) {
	if b {
		w.WriteUint8(1)
	} else {
		w.WriteUint8(0)
	}
}

func (w *Writer) WriteUint32(u uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, u) }

func (w *Writer) WriteInt32(i int32) { w.WriteUint32(uint32(i)) }

func (w *Writer) WriteFloat32(f float32) { w.WriteUint32(math.Float32bits(f)) }

// WriteString writes the length, then the bytes.
func (w *Writer) WriteString(s string) {
	w.WriteUint32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

// WriteObject writes a reference to n. References to stand-ins are written
// as the missing asset and the path id is remembered, see MissingPathIds.
func (w *Writer) WriteObject(n classes.Native) {
	if classes.IsNil(n) {
		w.WriteUint8(RefNull)
		return
	}
	if d, ok := n.(deletable); ok && d.IsDeleted() {
		w.WriteUint8(RefNull)
		return
	}
	session := w.m.Session()
	if a, ok := n.(classes.Asset); ok {
		str := a.Class().Name + ";" + a.Path()
		if l := w.m.Loader(); l != nil && l.IsStandIn(a) {
			str = l.GetPathFromStandIn(a)
			if str == "" {
				w.m.Logger().Warn("unable to serialize reference to a transient asset", "name", a.Name())
				w.WriteUint8(RefUnsynced)
				return
			}
			w.missing.add(session.GetStringTableId(str))
		}
		w.WriteUint8(RefAsset)
		w.WriteUint32(session.GetStringTableId(str))
		return
	}
	o := w.m.Objects().Object(n)
	if o == nil || o.Id() == 0 {
		w.m.Logger().Warn("unable to serialize reference to an unsynced object",
			"class", n.Class().Name, "name", n.Name())
		w.WriteUint8(RefUnsynced)
		return
	}
	w.WriteUint8(RefObject)
	w.WriteUint32(o.Id())
}

// MissingPathIds are the stand-in references written so far.
func (w *Writer) MissingPathIds() []uint32 { return w.missing.ids }

// Bytes finishes the blob. The writer may be used further; the next call
// covers everything written.
func (w *Writer) Bytes() []byte {
	binary.LittleEndian.PutUint32(w.buf[:4], uint32(len(w.buf)-4))
	return append([]byte(nil), w.buf...)
}

// Reader decodes a blob. Errors are sticky: after the first one every read
// returns the zero value and Err reports it.
type Reader struct {
	m       *props.Manager
	data    []byte
	err     error
	missing pathIds
}

func NewReader(m *props.Manager, blob []byte) (*Reader, error) {
	if len(blob) < 4 {
		return nil, errors.Wrap(scene_errors.ErrBadBlob, "no length")
	}
	n := binary.LittleEndian.Uint32(blob)
	if int64(n) != int64(len(blob)-4) {
		return nil, errors.Wrapf(scene_errors.ErrBadBlob, "length %d, have %d bytes", n, len(blob)-4)
	}
	return &Reader{m: m, data: blob[4:]}, nil
}

func (r *Reader) Err() error { return r.err }

// Len is the number of unread bytes.
func (r *Reader) Len() int { return len(r.data) }

func (r *Reader) next(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.data) < n {
		r.err = errors.Wrapf(scene_errors.ErrIncomplete, "want %d bytes, have %d", n, len(r.data))
		r.data = nil
		return nil
	}
	b := r.data[:n]
	r.data = r.data[n:]
	return b
}

func (r *Reader) ReadUint8() uint8 {
	if b := r.next(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *Reader) ReadBool() bool { return r.ReadUint8() != 0 }

func (r *Reader) ReadUint32() uint32 {
	if b := r.next(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (r *Reader) ReadInt32() int32 { return int32(r.ReadUint32()) }

func (r *Reader) ReadFloat32() float32 { return math.Float32frombits(r.ReadUint32()) }

func (r *Reader) ReadString() string {
	n := r.ReadUint32()
	if r.err == nil && uint64(n) > uint64(len(r.data)) {
		r.err = errors.Wrapf(scene_errors.ErrIncomplete, "string of %d bytes, have %d", n, len(r.data))
		r.data = nil
	}
	if r.err != nil {
		return ""
	}
	return string(r.next(int(n)))
}

// ReadObject reads a reference. Unsynced and unresolvable references
// return cur. Assets that load as stand-ins are remembered, see
// MissingPathIds.
func (r *Reader) ReadObject(cur classes.Native) classes.Native {
	tag := r.ReadUint8()
	if r.err != nil {
		return cur
	}
	switch tag {
	case RefNull:
		return nil
	case RefUnsynced:
		return cur
	case RefObject:
		id := r.ReadUint32()
		if r.err != nil {
			return cur
		}
		n := r.m.Objects().Native(r.m.Session().GetObject(id))
		if n == nil {
			r.m.Logger().Warn("unable to deserialize object reference", "id", id)
			return cur
		}
		return n
	case RefAsset:
		id := r.ReadUint32()
		if r.err != nil {
			return cur
		}
		str := r.m.Session().GetStringFromTable(id)
		class, path, ok := strings.Cut(str, ";")
		if !ok {
			r.m.Logger().Warn("invalid asset string", "value", str)
			return cur
		}
		l := r.m.Loader()
		if l == nil {
			return cur
		}
		n := l.Load(path, class)
		if n == nil {
			return cur
		}
		if l.IsStandIn(n) {
			r.missing.add(id)
		}
		return n
	}
	r.err = errors.Wrapf(scene_errors.ErrBadBlob, "reference tag %d", tag)
	r.data = nil
	return cur
}

// MissingPathIds are the string table ids of the assets read as stand-ins.
// Register the blob property for each with the loader's
// AddStandInReference so it is read again when the asset shows up.
func (r *Reader) MissingPathIds() []uint32 { return r.missing.ids }
