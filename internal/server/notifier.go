package server

// Notifier relays ephemeral signals to live connections. Nothing is queued
// for identities that are offline.
type Notifier struct {
	dir   *Directory
	rooms *RoomManager
}

func NewNotifier(dir *Directory, rooms *RoomManager) *Notifier {
	return &Notifier{dir: dir, rooms: rooms}
}

// Relay forwards msg to the live connection of targetId, or to every live
// member of the room targetId when isRoom is set. The source connection is
// always skipped. It returns the number of connections the message was
// queued on.
func (n *Notifier) Relay(source *Client, targetId string, isRoom bool, msg *ServerMessage) int {
	if !isRoom {
		c, ok := n.dir.Lookup(targetId)
		if !ok || c == source {
			return 0
		}
		if c.queueMessage(msg) {
			return 1
		}
		return 0
	}

	members, ok := n.rooms.Members(targetId)
	if !ok {
		return 0
	}

	var delivered int
	for _, member := range members {
		c, ok := n.dir.Lookup(member)
		if !ok || c == source {
			continue
		}
		if c.queueMessage(msg) {
			delivered++
		}
	}
	return delivered
}

// Broadcast queues msg on every signed-in connection except skip, which
// may be nil.
func (n *Notifier) Broadcast(skip *Client, msg *ServerMessage) int {
	var delivered int
	for _, c := range n.dir.Connections() {
		if c == skip {
			continue
		}
		if c.queueMessage(msg) {
			delivered++
		}
	}
	return delivered
}
