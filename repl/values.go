package repl

import (
	"strconv"
	"strings"

	"github.com/drpcorg/scenesync"
	"github.com/drpcorg/scenesync/classes"
	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

var ErrBadValue = errors.New("bad value")

// ParseValue reads a field value typed at the console:
//
//	true 12 1.5 text              scalars
//	X=1,Y=2,Z=3                   structs, missing members keep zero
//	[1,2,3]                       arrays
//	Cube /Game/Red.Red none       actors by name, assets by path, nil
func ParseValue(s *scenesync.SceneSync, t *classes.Type, str string) (any, error) {
	switch t.Kind {
	case classes.Bool:
		b, err := strconv.ParseBool(str)
		return b, wrapValue(err, str)
	case classes.Int:
		return parseSigned[int32](str, 32)
	case classes.UInt:
		return parseUnsigned[uint32](str, 32)
	case classes.Long:
		return parseSigned[int64](str, 64)
	case classes.Byte:
		return parseUnsigned[uint8](str, 8)
	case classes.Float:
		return parseFloat[float32](str, 32)
	case classes.Double:
		return parseFloat[float64](str, 64)
	case classes.String, classes.Name:
		return str, nil
	case classes.Enum:
		for _, v := range t.Enum {
			if v == str {
				return v, nil
			}
		}
		return nil, errors.Wrapf(ErrBadValue, "%s is not one of %s", str, strings.Join(t.Enum, ", "))
	case classes.Structure:
		ret := classes.Struct{}
		for _, kv := range strings.Split(str, ",") {
			k, v, ok := strings.Cut(kv, "=")
			m := t.Member(strings.TrimSpace(k))
			if !ok || m == nil {
				return nil, errors.Wrapf(ErrBadValue, "no member %q in %s", k, t)
			}
			x, err := ParseValue(s, m.Type, strings.TrimSpace(v))
			if err != nil {
				return nil, err
			}
			ret[m.Name] = x
		}
		return ret, nil
	case classes.Array:
		str = strings.TrimSuffix(strings.TrimPrefix(str, "["), "]")
		ret := []any{}
		if strings.TrimSpace(str) == "" {
			return ret, nil
		}
		for _, item := range strings.Split(str, ",") {
			x, err := ParseValue(s, t.Elem, strings.TrimSpace(item))
			if err != nil {
				return nil, err
			}
			ret = append(ret, x)
		}
		return ret, nil
	case classes.Object:
		if str == "none" {
			return nil, nil
		}
		if strings.HasPrefix(str, "/") {
			if n := s.Loader.Load(str, t.Class); n != nil {
				return n, nil
			}
			return nil, errors.Wrapf(ErrBadValue, "no %s asset at %s", t.Class, str)
		}
		if a := findActor(s, str); a != nil {
			return a, nil
		}
		return nil, errors.Wrapf(ErrBadValue, "no actor %s", str)
	}
	return nil, errors.Wrapf(ErrBadValue, "%s values are not editable here", t)
}

func parseSigned[T constraints.Signed](str string, bits int) (any, error) {
	i, err := strconv.ParseInt(str, 10, bits)
	return T(i), wrapValue(err, str)
}

func parseUnsigned[T constraints.Unsigned](str string, bits int) (any, error) {
	u, err := strconv.ParseUint(str, 10, bits)
	return T(u), wrapValue(err, str)
}

func parseFloat[T constraints.Float](str string, bits int) (any, error) {
	f, err := strconv.ParseFloat(str, bits)
	return T(f), wrapValue(err, str)
}

func wrapValue(err error, str string) error {
	if err != nil {
		return errors.Wrapf(ErrBadValue, "%q: %v", str, err)
	}
	return nil
}
