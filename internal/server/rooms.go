package server

import (
	"log"
	"slices"
	"sync"

	"github.com/npezzotti/chat-relay/internal/types"
)

type room struct {
	id      string
	name    string
	members map[string]struct{}
}

func (r *room) othersThan(identity string) []string {
	others := make([]string, 0, len(r.members))
	for m := range r.members {
		if m != identity {
			others = append(others, m)
		}
	}
	return others
}

// RoomManager tracks membership of the statically provisioned rooms.
// Notices are sent after the lock is released.
type RoomManager struct {
	mu    sync.RWMutex
	order []string
	rooms map[string]*room
	dir   *Directory
	log   *log.Logger
}

func NewRoomManager(rooms []types.Room, dir *Directory, logger *log.Logger) *RoomManager {
	rm := &RoomManager{
		rooms: make(map[string]*room, len(rooms)),
		dir:   dir,
		log:   logger,
	}

	for _, r := range rooms {
		if _, dup := rm.rooms[r.Id]; dup {
			continue
		}
		rm.order = append(rm.order, r.Id)
		rm.rooms[r.Id] = &room{
			id:      r.Id,
			name:    r.Name,
			members: make(map[string]struct{}),
		}
	}

	return rm
}

// Join adds identity to the room and notifies the other members. Unknown
// rooms and existing members are a no-op.
func (rm *RoomManager) Join(identity, roomId string) bool {
	rm.mu.Lock()
	r, ok := rm.rooms[roomId]
	if !ok {
		rm.mu.Unlock()
		return false
	}
	if _, member := r.members[identity]; member {
		rm.mu.Unlock()
		return false
	}
	others := r.othersThan(identity)
	r.members[identity] = struct{}{}
	rm.mu.Unlock()

	rm.log.Printf("%q joined room %q", identity, roomId)
	rm.notify(others, notice(EventJoined, &Notification{
		Membership: &Membership{UserId: identity, RoomId: roomId},
	}))

	return true
}

func (rm *RoomManager) Leave(identity, roomId string) bool {
	rm.mu.Lock()
	r, ok := rm.rooms[roomId]
	if !ok {
		rm.mu.Unlock()
		return false
	}
	if _, member := r.members[identity]; !member {
		rm.mu.Unlock()
		return false
	}
	delete(r.members, identity)
	others := r.othersThan(identity)
	rm.mu.Unlock()

	rm.log.Printf("%q left room %q", identity, roomId)
	rm.notify(others, notice(EventLeft, &Notification{
		Membership: &Membership{UserId: identity, RoomId: roomId},
	}))

	return true
}

// LeaveAll removes identity from every room it belongs to, sending one
// left notice per room, and returns the rooms it left.
func (rm *RoomManager) LeaveAll(identity, reason string) []string {
	type departure struct {
		roomId string
		others []string
	}

	var departures []departure
	rm.mu.Lock()
	for _, id := range rm.order {
		r := rm.rooms[id]
		if _, member := r.members[identity]; !member {
			continue
		}
		delete(r.members, identity)
		departures = append(departures, departure{roomId: id, others: r.othersThan(identity)})
	}
	rm.mu.Unlock()

	left := make([]string, 0, len(departures))
	for _, d := range departures {
		rm.notify(d.others, notice(EventLeft, &Notification{
			Membership: &Membership{UserId: identity, RoomId: d.roomId, Reason: reason},
		}))
		left = append(left, d.roomId)
	}

	if len(left) > 0 {
		rm.log.Printf("%q left rooms %v: %s", identity, left, reason)
	}

	return left
}

// Members returns a sorted snapshot of the room's members.
func (rm *RoomManager) Members(roomId string) ([]string, bool) {
	rm.mu.RLock()
	r, ok := rm.rooms[roomId]
	if !ok {
		rm.mu.RUnlock()
		return nil, false
	}
	members := r.othersThan("")
	rm.mu.RUnlock()

	slices.Sort(members)
	return members, true
}

func (rm *RoomManager) Exists(roomId string) bool {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	_, ok := rm.rooms[roomId]
	return ok
}

func (rm *RoomManager) List() []types.Room {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	rooms := make([]types.Room, 0, len(rm.order))
	for _, id := range rm.order {
		r := rm.rooms[id]
		rooms = append(rooms, types.Room{
			Id:        r.id,
			Name:      r.name,
			UserCount: len(r.members),
		})
	}
	return rooms
}

func (rm *RoomManager) notify(identities []string, msg *ServerMessage) {
	for _, identity := range identities {
		if c, ok := rm.dir.Lookup(identity); ok {
			c.queueMessage(msg)
		}
	}
}
