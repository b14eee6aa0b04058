// Package store persists the server side of a session in pebble.
//
// Keys:
//
//	M            session id (uuid)
//	O<id BE32>   object record
//	S<id BE32>   string table entry
package store

import (
	"encoding/binary"

	"github.com/cockroachdb/pebble"
	"github.com/drpcorg/scenesync/property"
	"github.com/drpcorg/scenesync/scene_errors"
	"github.com/drpcorg/scenesync/utils"
	"github.com/google/uuid"
	"github.com/learn-decentralized-systems/toytlv"
	"github.com/pkg/errors"
)

type Options struct {
	pebble.Options

	// SessionId names a new store. Zero means a random one.
	SessionId uuid.UUID
}

type ObjectRecord struct {
	Id         uint32
	ParentId   uint32
	ChildIndex uint32
	Type       string
	Flags      uint8
	Creator    uint32
	Property   *property.Dictionary
}

type Snapshot struct {
	Objects []ObjectRecord
	Strings map[uint32]string
}

type Store struct {
	db      *pebble.DB
	dir     string
	log     utils.Logger
	session uuid.UUID
}

var metaKey = []byte{'M'}

func objectKey(id uint32) []byte {
	return binary.BigEndian.AppendUint32([]byte{'O'}, id)
}

func stringKey(id uint32) []byte {
	return binary.BigEndian.AppendUint32([]byte{'S'}, id)
}

func Open(dir string, opts Options, log utils.Logger) (*Store, error) {
	db, err := pebble.Open(dir, &opts.Options)
	if err != nil {
		return nil, errors.Wrapf(err, "open store %s", dir)
	}
	s := &Store{db: db, dir: dir, log: log}

	val, closer, err := db.Get(metaKey)
	switch {
	case err == nil:
		s.session, err = uuid.FromBytes(val)
		_ = closer.Close()
		if err != nil {
			_ = db.Close()
			return nil, errors.Wrap(err, "session id")
		}
	case errors.Is(err, pebble.ErrNotFound):
		s.session = opts.SessionId
		if s.session == uuid.Nil {
			s.session = uuid.New()
		}
		if err = db.Set(metaKey, s.session[:], pebble.Sync); err != nil {
			_ = db.Close()
			return nil, errors.Wrap(err, "write session id")
		}
	default:
		_ = db.Close()
		return nil, errors.Wrap(err, "read session id")
	}
	log.Info("store opened", "dir", dir, "session", s.session.String())
	return s, nil
}

func (s *Store) SessionId() uuid.UUID { return s.session }

func (s *Store) Close() error {
	if s.db == nil {
		return scene_errors.ErrClosed
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Save replaces the stored objects and strings with snap.
func (s *Store) Save(snap *Snapshot) error {
	if s.db == nil {
		return scene_errors.ErrClosed
	}
	b := s.db.NewBatch()
	defer b.Close()
	if err := b.DeleteRange([]byte{'O'}, []byte{'P'}, nil); err != nil {
		return errors.Wrap(err, "clear objects")
	}
	if err := b.DeleteRange([]byte{'S'}, []byte{'T'}, nil); err != nil {
		return errors.Wrap(err, "clear strings")
	}
	for i := range snap.Objects {
		rec := &snap.Objects[i]
		if err := b.Set(objectKey(rec.Id), EncodeObject(rec), nil); err != nil {
			return errors.Wrapf(err, "object %d", rec.Id)
		}
	}
	for id, str := range snap.Strings {
		if err := b.Set(stringKey(id), []byte(str), nil); err != nil {
			return errors.Wrapf(err, "string %d", id)
		}
	}
	return errors.Wrap(b.Commit(pebble.Sync), "commit snapshot")
}

// Load reads the last saved snapshot. Objects come in id order.
func (s *Store) Load() (*Snapshot, error) {
	if s.db == nil {
		return nil, scene_errors.ErrClosed
	}
	snap := &Snapshot{Strings: make(map[uint32]string)}

	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: []byte{'O'}, UpperBound: []byte{'P'}})
	if err != nil {
		return nil, errors.Wrap(err, "object iterator")
	}
	for it.SeekGE([]byte{'O'}); it.Valid(); it.Next() {
		rec, err := DecodeObject(it.Value())
		if err != nil {
			_ = it.Close()
			return nil, errors.Wrapf(err, "object key %x", it.Key())
		}
		snap.Objects = append(snap.Objects, *rec)
	}
	if err = it.Close(); err != nil {
		return nil, err
	}

	it, err = s.db.NewIter(&pebble.IterOptions{LowerBound: []byte{'S'}, UpperBound: []byte{'T'}})
	if err != nil {
		return nil, errors.Wrap(err, "string iterator")
	}
	for it.SeekGE([]byte{'S'}); it.Valid(); it.Next() {
		key := it.Key()
		if len(key) != 5 {
			continue
		}
		snap.Strings[binary.BigEndian.Uint32(key[1:])] = string(it.Value())
	}
	return snap, it.Close()
}

// Object reads one stored object.
func (s *Store) Object(id uint32) (*ObjectRecord, error) {
	if s.db == nil {
		return nil, scene_errors.ErrClosed
	}
	val, closer, err := s.db.Get(objectKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, scene_errors.ErrObjectUnknown
	} else if err != nil {
		return nil, errors.Wrapf(err, "object %d", id)
	}
	defer closer.Close()
	return DecodeObject(val)
}

const (
	litObject   = 'O'
	litId       = 'I'
	litParent   = 'P'
	litIndex    = 'X'
	litType     = 'T'
	litFlags    = 'F'
	litCreator  = 'C'
	litProperty = 'Y'
)

func EncodeObject(rec *ObjectRecord) []byte {
	bm, buf := toytlv.OpenHeader(nil, litObject)
	buf = toytlv.Append(buf, litId, u32(rec.Id))
	buf = toytlv.Append(buf, litParent, u32(rec.ParentId))
	buf = toytlv.Append(buf, litIndex, u32(rec.ChildIndex))
	buf = toytlv.Append(buf, litType, []byte(rec.Type))
	buf = toytlv.Append(buf, litFlags, []byte{rec.Flags})
	buf = toytlv.Append(buf, litCreator, u32(rec.Creator))
	var prop property.Property = rec.Property
	if rec.Property == nil {
		prop = property.NewDictionary()
	}
	buf = toytlv.Append(buf, litProperty, AppendProperty(nil, prop))
	toytlv.CloseHeader(buf, bm)
	return buf
}

func DecodeObject(data []byte) (*ObjectRecord, error) {
	body, _, err := takeLit(litObject, data)
	if err != nil {
		return nil, errors.Wrap(err, "object record")
	}
	rec := &ObjectRecord{}
	for len(body) > 0 {
		var lit byte
		var field []byte
		if lit, field, body, err = take(body); err != nil {
			return nil, errors.Wrap(err, "object field")
		}
		switch lit {
		case litId:
			rec.Id, err = readU32(field)
		case litParent:
			rec.ParentId, err = readU32(field)
		case litIndex:
			rec.ChildIndex, err = readU32(field)
		case litCreator:
			rec.Creator, err = readU32(field)
		case litType:
			rec.Type = string(field)
		case litFlags:
			if len(field) == 1 {
				rec.Flags = field[0]
			}
		case litProperty:
			var p property.Property
			p, _, err = ReadProperty(field)
			if err == nil {
				d, ok := p.(*property.Dictionary)
				if !ok {
					return nil, errors.Wrap(scene_errors.ErrBadRecord, "object property is not a dictionary")
				}
				rec.Property = d
			}
		}
		if err != nil {
			return nil, errors.Wrapf(err, "object field %c", lit)
		}
	}
	if rec.Property == nil {
		rec.Property = property.NewDictionary()
	}
	return rec, nil
}
