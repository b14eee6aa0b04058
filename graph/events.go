package graph

import "github.com/drpcorg/scenesync/property"

// Event is a list of handlers for one kind of session notification.
type Event[T any] struct {
	handlers []handler[T]
	next     int
}

type handler[T any] struct {
	id int
	fn func(T)
}

// Add registers fn and returns an id for Remove.
func (e *Event[T]) Add(fn func(T)) int {
	e.next++
	e.handlers = append(e.handlers, handler[T]{id: e.next, fn: fn})
	return e.next
}

func (e *Event[T]) Remove(id int) {
	for i, h := range e.handlers {
		if h.id == id {
			e.handlers = append(e.handlers[:i:i], e.handlers[i+1:]...)
			return
		}
	}
}

func (e *Event[T]) Len() int { return len(e.handlers) }

// Fire calls the handlers in registration order.
func (e *Event[T]) Fire(arg T) {
	for _, h := range e.handlers {
		h.fn(arg)
	}
}

type ChildEvent struct {
	Object     *Object
	ChildIndex int
}

type ConfirmDeleteEvent struct {
	Object       *Object
	Unsubscribed bool
}

type DictionaryRemoveEvent struct {
	Dictionary *property.Dictionary
	Key        string
}

type ListEvent struct {
	List  *property.List
	Index int
	Count int
}

// Events are fired from Session.Update, except the lock events caused by a
// local ReleaseLock.
type Events struct {
	// Create fires for the root of every remotely created batch.
	Create        Event[ChildEvent]
	CreateFailed  Event[*Object]
	Delete        Event[*Object]
	ConfirmDelete Event[ConfirmDeleteEvent]

	Lock             Event[*Object]
	Unlock           Event[*Object]
	LockOwnerChange  Event[*Object]
	DirectLockChange Event[*Object]

	ParentChange     Event[ChildEvent]
	PropertyChange   Event[property.Property]
	DictionaryRemove Event[DictionaryRemoveEvent]
	ListAdd          Event[ListEvent]
	ListRemove       Event[ListEvent]

	UserJoin        Event[*User]
	UserLeave       Event[*User]
	UserColorChange Event[*User]

	AcknowledgeSubscription Event[*Object]
}
