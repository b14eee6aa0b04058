package checksum

import (
	"testing"

	"github.com/drpcorg/scenesync/property"
	"github.com/stretchr/testify/assert"
)

type table map[string]uint32

func (t table) GetStringTableId(s string) uint32 {
	id, ok := t[s]
	if !ok {
		id = uint32(len(t) + 1)
		t[s] = id
	}
	return id
}

func TestFletcher64_DictionaryOrder(t *testing.T) {
	tbl := table{}
	a := property.NewDictionary()
	a.Set("a", property.NewInt(1))
	a.Set("b", property.NewInt(2))
	b := property.NewDictionary()
	b.Set("b", property.NewInt(2))
	b.Set("a", property.NewInt(1))
	assert.Equal(t, Fletcher64(a, tbl, nil), Fletcher64(b, tbl, nil))

	// the string table order decides the mixing order, not the key text
	rev := table{"b": 1, "a": 2}
	assert.Equal(t, Fletcher64(a, rev, nil), Fletcher64(b, rev, nil))
}

func TestFletcher64_ListOrder(t *testing.T) {
	tbl := table{}
	a := property.NewList(property.NewInt(1), property.NewInt(2))
	b := property.NewList(property.NewInt(2), property.NewInt(1))
	assert.NotEqual(t, Fletcher64(a, tbl, nil), Fletcher64(b, tbl, nil))
}

func TestFletcher64_Clone(t *testing.T) {
	tbl := table{}
	root := property.NewDictionary()
	root.Set("name", property.NewString("Rock_01"))
	root.Set("scale", property.NewFloatArray([]float32{1, 2, 3}))
	root.Set("parent", property.NewReference(44))
	root.Set("tags", property.NewList(property.NewString("a"), property.NewNull()))
	nested := property.NewDictionary()
	nested.Set("x", property.NewBool(true))
	root.Set("nested", nested)
	assert.Equal(t, Fletcher64(root, tbl, nil), Fletcher64(root.Clone(), tbl, nil))
}

func TestFletcher64_KnownValues(t *testing.T) {
	// null: type tag 3 -> c1=3, c2=3
	assert.Equal(t, uint64(3)|uint64(3)<<32, Fletcher64(property.NewNull(), table{}, nil))

	// value int 5: tags 0, kind 0, payload 5
	// c1: 0,0,5  c2: 0,0,5
	assert.Equal(t, uint64(5)|uint64(5)<<32, Fletcher64(property.NewInt(5), table{}, nil))

	// reference 7: tag 4 then id 7 -> c1: 4, 11  c2: 4, 15
	assert.Equal(t, uint64(11)|uint64(15)<<32, Fletcher64(property.NewReference(7), table{}, nil))

	// byte array [1,2,3,4,5]: tag 0, kind 13, len 5, word 0x04030201, word 5
	var c1, c2 uint32
	for _, u := range []uint32{0, 13, 5, 0x04030201, 5} {
		c1 += u
		c2 += c1
	}
	assert.Equal(t, uint64(c1)|uint64(c2)<<32,
		Fletcher64(property.NewBytes([]byte{1, 2, 3, 4, 5}), table{}, nil))
}

func TestFletcher64_Wraparound(t *testing.T) {
	v := property.NewUIntArray([]uint32{0xffffffff, 0xffffffff, 2})
	var c1, c2 uint32
	for _, u := range []uint32{0, uint32(property.UIntArray), 3, 0xffffffff, 0xffffffff, 2} {
		c1 += u
		c2 += c1
	}
	assert.Equal(t, uint64(c1)|uint64(c2)<<32, Fletcher64(v, table{}, nil))
}

func TestFletcher64_Filter(t *testing.T) {
	tbl := table{}
	a := property.NewDictionary()
	a.Set("mesh", property.NewString("/Game/Rock"))
	b := a.Clone().(*property.Dictionary)
	b.Set("#checksum", property.NewLong(12345))
	assert.NotEqual(t, Fletcher64(a, tbl, nil), Fletcher64(b, tbl, nil))
	assert.Equal(t, Fletcher64(a, tbl, SkipMetaKeys), Fletcher64(b, tbl, SkipMetaKeys))
	assert.Equal(t, uint64(0), Fletcher64(nil, tbl, nil))
}
