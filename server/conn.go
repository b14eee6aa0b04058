package server

import (
	"github.com/drpcorg/scenesync/graph"
	"github.com/drpcorg/scenesync/store"
	"github.com/learn-decentralized-systems/toyqueue"
)

// Conn is one user's connection. It implements graph.Service.
//
// Messages to the client are serialized into its outbox queue as they are
// sent and parsed back on Poll, so no property tree is shared between the
// server and a client.
type Conn struct {
	srv      *Server
	user     graph.UserData
	outbox   toyqueue.RecordQueue
	subs     map[uint32]bool
	closed   bool
	overflow bool
}

func (c *Conn) User() graph.UserData { return c.user }

// send queues m for this client; the server lock is held. A client whose
// outbox is full is dropped on the next Process.
func (c *Conn) send(m *graph.Message) {
	if c.closed || c.overflow {
		return
	}
	err := c.outbox.Drain(toyqueue.Records{store.AppendMessage(nil, m)})
	if err != nil {
		c.srv.log.Warn("client outbox is full", "user", c.user.Name, "limit", c.outbox.Limit, "err", err)
		c.overflow = true
	}
}

func (c *Conn) Send(m *graph.Message) {
	if !c.closed {
		c.srv.enqueue(c, m)
	}
}

// Poll lets the server handle queued messages and returns what it sent to
// this client.
func (c *Conn) Poll() (out []*graph.Message) {
	c.srv.Process()
	for {
		recs, err := c.outbox.Feed()
		if err != nil {
			return
		}
		for _, rec := range recs {
			m, err := store.ReadMessage(rec)
			if err != nil {
				c.srv.log.Error("unreadable outbound message", "user", c.user.Name, "err", err)
				continue
			}
			out = append(out, m)
		}
	}
}

func (c *Conn) StringTableId(s string) uint32 { return c.srv.Intern(s) }

func (c *Conn) StringFromTable(id uint32) (string, bool) { return c.srv.ids.Load(id) }

func (c *Conn) ObjectLimit(t string) uint32 { return c.srv.ObjectLimit(t) }

func (c *Conn) Connected() bool {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	return !c.closed
}

func (c *Conn) Close() error {
	c.srv.disconnect(c)
	return nil
}
