package graph

import "github.com/drpcorg/scenesync/property"

type MessageKind byte

// Client to server and server to client messages share one struct. Fields
// a kind does not use are left zero.
const (
	MsgWelcome        MessageKind = 'W' // User: the local user
	MsgCreate         MessageKind = 'C' // RequestId, ParentId, ChildIndex, Object
	MsgCreateAck      MessageKind = 'K' // RequestId, Ids (pre-order)
	MsgCreateFailed   MessageKind = 'F' // RequestId
	MsgDelete         MessageKind = 'D' // ObjectId
	MsgDeleteAck      MessageKind = 'd' // ObjectId
	MsgLock           MessageKind = 'L' // ObjectId, UserId (to client)
	MsgUnlock         MessageKind = 'U' // ObjectId
	MsgParent         MessageKind = 'P' // ObjectId, ParentId, ChildIndex
	MsgSet            MessageKind = 'S' // ObjectId, Path, Property
	MsgRemove         MessageKind = 'R' // ObjectId, Path, Key
	MsgListAdd        MessageKind = 'A' // ObjectId, Path, Index, Values
	MsgListRemove     MessageKind = 'X' // ObjectId, Path, Index, Count
	MsgSubscribe      MessageKind = 'B' // ObjectId
	MsgSubscribeAck   MessageKind = 'b' // ObjectId, Children
	MsgUnsubscribe    MessageKind = 'N' // ObjectId
	MsgUnsubscribeAck MessageKind = 'n' // ObjectId
	MsgUserJoin       MessageKind = 'J' // User
	MsgUserLeave      MessageKind = 'Q' // UserId
	MsgUserColor      MessageKind = 'O' // UserId, Color
)

// ObjectData is an object subtree as it travels in create messages.
type ObjectData struct {
	Id        uint32
	Type      string
	Flags     Flags
	Property  *property.Dictionary
	Lock      bool
	LockOwner uint32
	Children  []*ObjectData
}

// Walk visits d and its descendants in pre-order.
func (d *ObjectData) Walk(fn func(d *ObjectData)) {
	fn(d)
	for _, c := range d.Children {
		c.Walk(fn)
	}
}

type UserData struct {
	Id    uint32
	Name  string
	Color Color
}

type Message struct {
	Kind       MessageKind
	RequestId  uint32
	ObjectId   uint32
	ParentId   uint32
	ChildIndex int
	UserId     uint32
	Ids        []uint32
	Object     *ObjectData
	Children   []*ObjectData
	Path       []property.Segment
	Key        string
	Index      int
	Count      int
	Property   property.Property
	Values     []property.Property
	User       *UserData
	Color      Color

	// set on outgoing messages about objects whose ids are not known yet
	obj    *Object
	parent *Object
}

// Service is the connection to the authoritative session server.
type Service interface {
	Send(msg *Message)
	// Poll returns the messages received since the last call.
	Poll() []*Message
	StringTableId(s string) uint32
	StringFromTable(id uint32) (string, bool)
	// ObjectLimit is the max number of objects of type t, or NoLimit.
	ObjectLimit(t string) uint32
	Connected() bool
	Close() error
}

const NoLimit = ^uint32(0)
