package property

type Null struct {
	node
}

func NewNull() *Null {
	n := &Null{}
	n.self = n
	return n
}

func (n *Null) Type() Type { return NullType }

func (n *Null) Clone() Property { return NewNull() }

func (n *Null) Equals(other Property) bool {
	return other != nil && other.Type() == NullType
}

func (n *Null) String() string { return "null" }
