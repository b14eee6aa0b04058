// Provides common scenesync errors definitions.
package scene_errors

import "errors"

var (
	ErrObjectUnknown = errors.New("scenesync: unknown object")
	ErrTypeUnknown   = errors.New("scenesync: unknown object type")

	ErrAssetNotFound = errors.New("scenesync: asset not found")
	ErrBadBlob       = errors.New("scenesync: bad object reference blob")
	ErrBadRecord     = errors.New("scenesync: bad TLV record format")
	ErrIncomplete    = errors.New("scenesync: incomplete data")
	ErrClosed        = errors.New("scenesync: store is closed")
)
