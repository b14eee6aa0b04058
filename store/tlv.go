package store

import (
	"encoding/binary"

	"github.com/drpcorg/scenesync/scene_errors"
	"github.com/learn-decentralized-systems/toytlv"
)

// take splits off the first record. lit is uppercase. Tiny records carry no
// type and are never written by this package, so they are rejected.
func take(data []byte) (lit byte, body, rest []byte, err error) {
	lit, hdr, n := toytlv.ProbeHeader(data)
	switch lit {
	case 0:
		return 0, nil, data, scene_errors.ErrIncomplete
	case '-', '0':
		return 0, nil, data, scene_errors.ErrBadRecord
	}
	if len(data) < hdr+n {
		return 0, nil, data, scene_errors.ErrIncomplete
	}
	return lit, data[hdr : hdr+n], data[hdr+n:], nil
}

// takeLit is take that also checks the record type.
func takeLit(want byte, data []byte) (body, rest []byte, err error) {
	lit, body, rest, err := take(data)
	if err == nil && lit != want {
		err = scene_errors.ErrBadRecord
	}
	return
}

func u32(v uint32) []byte {
	return binary.LittleEndian.AppendUint32(nil, v)
}

func readU32(b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, scene_errors.ErrBadRecord
	}
	return binary.LittleEndian.Uint32(b), nil
}
