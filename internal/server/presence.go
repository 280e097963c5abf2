package server

import (
	"slices"
	"sync"
)

// Directory maps user identities to their live connection and back. Both
// directions change together under one lock.
type Directory struct {
	mu     sync.RWMutex
	byUser map[string]*Client
	byConn map[*Client]string
}

func NewDirectory() *Directory {
	return &Directory{
		byUser: make(map[string]*Client),
		byConn: make(map[*Client]string),
	}
}

// Register binds identity to c and returns the connection it replaced, if
// any. The replaced connection loses its binding, so unregistering it later
// leaves the new session in place.
func (d *Directory) Register(identity string, c *Client) *Client {
	d.mu.Lock()
	defer d.mu.Unlock()

	if prev, ok := d.byConn[c]; ok && prev != identity {
		if d.byUser[prev] == c {
			delete(d.byUser, prev)
		}
	}

	var superseded *Client
	if old, ok := d.byUser[identity]; ok && old != c {
		delete(d.byConn, old)
		superseded = old
	}

	d.byUser[identity] = c
	d.byConn[c] = identity

	return superseded
}

// Unregister removes the bindings held by c. It reports false when c was
// not bound to an identity.
func (d *Directory) Unregister(c *Client) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	identity, ok := d.byConn[c]
	if !ok {
		return "", false
	}

	delete(d.byConn, c)
	if d.byUser[identity] == c {
		delete(d.byUser, identity)
	}

	return identity, true
}

func (d *Directory) Lookup(identity string) (*Client, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	c, ok := d.byUser[identity]
	return c, ok
}

func (d *Directory) Identity(c *Client) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	identity, ok := d.byConn[c]
	return identity, ok
}

// ListOnline returns a sorted snapshot of the identities with a live
// connection.
func (d *Directory) ListOnline() []string {
	d.mu.RLock()
	users := make([]string, 0, len(d.byUser))
	for identity := range d.byUser {
		users = append(users, identity)
	}
	d.mu.RUnlock()

	slices.Sort(users)
	return users
}

func (d *Directory) Connections() []*Client {
	d.mu.RLock()
	defer d.mu.RUnlock()

	conns := make([]*Client, 0, len(d.byConn))
	for c := range d.byConn {
		conns = append(conns, c)
	}
	return conns
}

func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byUser)
}
