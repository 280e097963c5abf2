package server

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/npezzotti/chat-relay/internal/database"
	"github.com/npezzotti/chat-relay/internal/stats"
	"github.com/npezzotti/chat-relay/internal/types"
)

const (
	statActiveConnections = "ActiveConnections"
	statOnlineUsers       = "OnlineUsers"
	statMessagesPersisted = "MessagesPersisted"
	statMessagesDelivered = "MessagesDelivered"
	statMessagesPending   = "MessagesPending"
	statRoomBroadcasts    = "RoomBroadcasts"

	cleanupTimeout = 5 * time.Second

	reasonDisconnect = "disconnect"
	reasonSignout    = "signout"
)

var (
	ErrServerStopped  = errors.New("chat server stopped")
	errSourceMismatch = errors.New("sourceId does not match the signed-in user")
)

type Options struct {
	Rooms []types.Room
	// DisconnectSuperseded closes a connection once another connection
	// signs in with the same identity.
	DisconnectSuperseded bool
}

type stopReq struct {
	done chan struct{}
}

type ChatServer struct {
	log            *log.Logger
	store          database.Store
	stats          stats.StatsProvider
	opts           Options
	dir            *Directory
	rooms          *RoomManager
	agg            *Aggregator
	router         *Router
	notifier       *Notifier
	clients        map[*Client]struct{}
	registerChan   chan *Client
	deRegisterChan chan *Client
	stop           chan stopReq
	done           chan struct{}
}

func NewChatServer(logger *log.Logger, store database.Store, su stats.StatsProvider, opts Options) (*ChatServer, error) {
	if store == nil {
		return nil, errors.New("a message store is required")
	}

	dir := NewDirectory()
	rooms := NewRoomManager(opts.Rooms, dir, logger)
	agg := NewAggregator(store, dir)

	for _, name := range []string{
		statActiveConnections,
		statMessagesPersisted,
		statMessagesDelivered,
		statMessagesPending,
		statRoomBroadcasts,
	} {
		su.RegisterMetric(name)
	}
	su.RegisterGauge(statOnlineUsers, func() int64 { return int64(dir.Len()) })

	return &ChatServer{
		log:            logger,
		store:          store,
		stats:          su,
		opts:           opts,
		dir:            dir,
		rooms:          rooms,
		agg:            agg,
		router:         NewRouter(logger, store, dir, rooms, agg, su),
		notifier:       NewNotifier(dir, rooms),
		clients:        make(map[*Client]struct{}),
		registerChan:   make(chan *Client),
		deRegisterChan: make(chan *Client),
		stop:           make(chan stopReq),
		done:           make(chan struct{}),
	}, nil
}

func (cs *ChatServer) Run() {
	defer close(cs.done)

	for {
		select {
		case c := <-cs.registerChan:
			cs.log.Printf("adding connection %s", c.id)
			cs.clients[c] = struct{}{}
			cs.stats.Incr(statActiveConnections)
		case c := <-cs.deRegisterChan:
			if _, ok := cs.clients[c]; ok {
				cs.log.Printf("removing connection %s", c.id)
				delete(cs.clients, c)
				cs.stats.Decr(statActiveConnections)
			}
		case req := <-cs.stop:
			cs.log.Printf("closing %d connections", len(cs.clients))
			for c := range cs.clients {
				c.Close()
			}
			close(req.done)
			return
		}
	}
}

// RegisterClient tracks c until it disconnects. It fails once the server
// has stopped.
func (cs *ChatServer) RegisterClient(c *Client) error {
	select {
	case cs.registerChan <- c:
		return nil
	case <-cs.done:
		return ErrServerStopped
	}
}

func (cs *ChatServer) deregisterClient(c *Client) {
	select {
	case cs.deRegisterChan <- c:
	case <-cs.done:
	}
}

// Shutdown closes every open connection and stops Run.
func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("received shutdown signal")

	req := stopReq{done: make(chan struct{})}
	select {
	case cs.stop <- req:
	case <-cs.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (cs *ChatServer) Directory() *Directory {
	return cs.dir
}

func (cs *ChatServer) Rooms() *RoomManager {
	return cs.rooms
}

func (cs *ChatServer) Aggregator() *Aggregator {
	return cs.agg
}

func (cs *ChatServer) Router() *Router {
	return cs.router
}

// Signin binds identity to c and announces it to the other connections.
func (cs *ChatServer) Signin(ctx context.Context, c *Client, reqId int, identity string) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		c.queueMessage(ErrSignin(reqId, "Invalid user ID"))
		return
	}

	previous, wasBound := cs.dir.Identity(c)
	superseded := cs.dir.Register(identity, c)
	if wasBound && previous != identity {
		if _, stillOnline := cs.dir.Lookup(previous); !stillOnline {
			cs.goOffline(ctx, previous, c, reasonSignout)
		}
	}

	if superseded != nil {
		cs.log.Printf("connection %s superseded by %s for %q", superseded.id, c.id, identity)
		superseded.queueMessage(notice(EventSuperseded, &Notification{
			Presence: &Presence{UserId: identity, Online: true, LastSeen: Now()},
		}))
		if cs.opts.DisconnectSuperseded {
			superseded.Close()
		}
	}

	now := Now()
	if err := cs.store.SetPresence(ctx, identity, true, now); err != nil {
		cs.log.Printf("SetPresence: %v", err)
	}

	online := cs.dir.ListOnline()
	c.queueMessage(NoErrOK(reqId, EventSigninSuccess, map[string]any{
		"userId":       identity,
		"connectionId": c.id,
	}))
	c.queueMessage(notice(EventOnlineUsers, &Notification{Online: &OnlineUsers{Users: online}}))
	c.queueMessage(notice(EventRoomsList, &Notification{Rooms: cs.rooms.List()}))

	cs.notifier.Broadcast(c, notice(EventUserOnline, &Notification{
		Presence: &Presence{UserId: identity, Online: true, LastSeen: now},
	}))
	cs.notifier.Broadcast(nil, notice(EventUsersUpdate, &Notification{Online: &OnlineUsers{Users: online}}))

	cs.log.Printf("%q signed in on connection %s", identity, c.id)
}

// Disconnect reconciles presence and room membership for a closed
// connection. It uses its own context so it completes during shutdown and
// is safe to call more than once.
func (cs *ChatServer) Disconnect(c *Client) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	cs.deregisterClient(c)

	identity, ok := cs.dir.Unregister(c)
	if !ok {
		return
	}

	cs.log.Printf("%q disconnected from connection %s", identity, c.id)
	cs.goOffline(ctx, identity, c, reasonDisconnect)
}

// goOffline retires identity once its last connection is gone. It stops
// early when the identity signs in again on another connection meanwhile.
func (cs *ChatServer) goOffline(ctx context.Context, identity string, skip *Client, reason string) {
	if _, online := cs.dir.Lookup(identity); online {
		return
	}

	cs.rooms.LeaveAll(identity, reason)

	now := Now()
	if err := cs.store.SetPresence(ctx, identity, false, now); err != nil {
		cs.log.Printf("SetPresence: %v", err)
	}

	if _, online := cs.dir.Lookup(identity); online {
		cs.log.Printf("%q signed in again during cleanup", identity)
		if err := cs.store.SetPresence(ctx, identity, true, Now()); err != nil {
			cs.log.Printf("SetPresence: %v", err)
		}
		return
	}

	cs.notifier.Broadcast(skip, notice(EventUserOffline, &Notification{
		Presence: &Presence{UserId: identity, Online: false, LastSeen: now},
	}))
	cs.notifier.Broadcast(nil, notice(EventUsersUpdate, &Notification{
		Online: &OnlineUsers{Users: cs.dir.ListOnline()},
	}))
}

// MarkAsRead applies a read receipt outside of a websocket session.
func (cs *ChatServer) MarkAsRead(ctx context.Context, messageId int64, readerId, senderId string) (bool, error) {
	return cs.router.MarkAsRead(ctx, nil, 0, messageId, readerId, senderId)
}

func (cs *ChatServer) dispatch(ctx context.Context, c *Client, msg *ClientMessage) {
	switch {
	case msg.Signin != nil:
		cs.Signin(ctx, c, msg.Id, msg.Signin.UserId)
		return
	case msg.Heartbeat != nil:
		c.queueMessage(NoErrOK(msg.Id, EventHeartbeat, map[string]any{"timestamp": Now()}))
		return
	}

	identity, ok := cs.dir.Identity(c)
	if !ok {
		c.queueMessage(ErrNotSignedIn(msg.Id))
		return
	}

	switch {
	case msg.Message != nil:
		if src := msg.Message.SourceId; src != "" && src != identity {
			cs.reportRouteError(c, msg.Id, &RouteError{Code: CodeInvalidMessage, Err: errSourceMismatch})
			return
		}
		if err := cs.router.Route(ctx, c, msg.Id, msg.Message); err != nil {
			cs.reportRouteError(c, msg.Id, err)
		}
	case msg.JoinRoom != nil:
		joined := cs.rooms.Join(identity, msg.JoinRoom.RoomId)
		c.queueMessage(NoErrOK(msg.Id, EventRoomJoined, map[string]any{
			"roomId": msg.JoinRoom.RoomId,
			"joined": joined,
		}))
	case msg.LeaveRoom != nil:
		left := cs.rooms.Leave(identity, msg.LeaveRoom.RoomId)
		c.queueMessage(NoErrOK(msg.Id, EventRoomLeft, map[string]any{
			"roomId": msg.LeaveRoom.RoomId,
			"left":   left,
		}))
	case msg.Typing != nil:
		cs.notifier.Relay(c, msg.Typing.TargetId, msg.Typing.IsRoom, notice(EventTypingUpdate, &Notification{
			Typing: &TypingUpdate{
				UserId:   identity,
				TargetId: msg.Typing.TargetId,
				IsTyping: msg.Typing.IsTyping,
				IsRoom:   msg.Typing.IsRoom,
			},
		}))
	case msg.Activity != nil:
		cs.notifier.Relay(c, msg.Activity.TargetId, msg.Activity.IsRoom, notice(EventActivity, &Notification{
			Activity: &ActivityInfo{
				UserId:   identity,
				TargetId: msg.Activity.TargetId,
				LastSeen: Now(),
			},
		}))
	case msg.Status != nil:
		if msg.Status.Status == "" {
			c.queueMessage(ErrInvalidMessage(msg.Id))
			return
		}
		cs.notifier.Broadcast(c, notice(EventUserStatusUpdate, &Notification{
			Status: &StatusUpdate{UserId: identity, Status: msg.Status.Status},
		}))
	case msg.MarkAsRead != nil:
		readerId := msg.MarkAsRead.ReaderId
		if readerId == "" {
			readerId = identity
		}
		if _, err := cs.router.MarkAsRead(ctx, c, msg.Id, msg.MarkAsRead.MessageId, readerId, msg.MarkAsRead.SenderId); err != nil {
			cs.reportRouteError(c, msg.Id, err)
		}
	default:
		c.queueMessage(ErrInvalidMessage(msg.Id))
	}
}

func (cs *ChatServer) reportRouteError(c *Client, reqId int, err error) {
	var routeErr *RouteError
	if errors.As(err, &routeErr) {
		c.queueMessage(routeErr.response(reqId))
		return
	}
	cs.log.Printf("route: %v", err)
	c.queueMessage(ErrPersistenceFailure(reqId))
}
