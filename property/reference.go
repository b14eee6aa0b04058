package property

import "fmt"

// Reference points at another synced object by id. The id is resolved by the
// session when needed; a reference to an object that is not known locally is
// kept as is.
type Reference struct {
	node
	id uint32
}

func NewReference(id uint32) *Reference {
	r := &Reference{id: id}
	r.self = r
	return r
}

func (r *Reference) Type() Type { return ReferenceType }

func (r *Reference) ObjectId() uint32 { return r.id }

// SetObjectId changes the target and reports the edit.
func (r *Reference) SetObjectId(id uint32) {
	if r.id == id {
		return
	}
	r.id = id
	r.report(Change{Kind: ChangeSet, Property: r})
}

func (r *Reference) Clone() Property { return NewReference(r.id) }

func (r *Reference) Equals(other Property) bool {
	o, ok := other.(*Reference)
	return ok && o.id == r.id
}

func (r *Reference) String() string { return fmt.Sprintf("ref(%d)", r.id) }
