package server

import (
	"context"
	"errors"
	"log"

	"github.com/npezzotti/chat-relay/internal/database"
	"github.com/npezzotti/chat-relay/internal/stats"
	"github.com/npezzotti/chat-relay/internal/types"
)

const reasonUserOffline = "User offline"

var errMissingField = errors.New("message, sourceId and targetId are required")

// Router persists inbound messages and delivers them to live connections.
type Router struct {
	log   *log.Logger
	store database.Store
	dir   *Directory
	rooms *RoomManager
	agg   *Aggregator
	stats stats.StatsProvider
}

func NewRouter(logger *log.Logger, store database.Store, dir *Directory, rooms *RoomManager, agg *Aggregator, su stats.StatsProvider) *Router {
	return &Router{
		log:   logger,
		store: store,
		dir:   dir,
		rooms: rooms,
		agg:   agg,
		stats: su,
	}
}

// Route validates and persists p, then delivers it. Nothing is sent to the
// sender when an error is returned.
func (r *Router) Route(ctx context.Context, sender *Client, reqId int, p *Publish) error {
	if p == nil || p.Message == "" || p.SourceId == "" || p.TargetId == "" {
		return &RouteError{Code: CodeInvalidMessage, Err: errMissingField}
	}

	kind := p.Kind()
	if kind == types.MessageTypeRoom && !r.rooms.Exists(p.TargetId) {
		return &RouteError{Code: CodeRoomNotFound}
	}

	stored, err := r.store.AppendMessage(ctx, database.NewMessage{
		SourceId:    p.SourceId,
		TargetId:    p.TargetId,
		Body:        p.Message,
		MessageType: kind,
		Path:        p.Path,
	})
	if err != nil {
		r.log.Printf("AppendMessage: %v", err)
		return &RouteError{Code: CodePersistenceFailure, Err: err}
	}
	r.stats.Incr(statMessagesPersisted)

	msg := WireMessage(stored)
	if kind == types.MessageTypeRoom {
		r.routeRoom(sender, reqId, msg)
		return nil
	}

	r.routeDirect(ctx, sender, reqId, msg)
	return nil
}

func (r *Router) routeRoom(sender *Client, reqId int, msg types.Message) {
	sent := newServerMessage(reqId, EventSent)
	sent.Message = &msg
	sender.queueMessage(sent)

	members, _ := r.rooms.Members(msg.TargetId)
	received := newServerMessage(0, EventMessageReceived)
	received.Message = &msg
	for _, member := range members {
		c, ok := r.dir.Lookup(member)
		if !ok || c == sender {
			continue
		}
		c.queueMessage(received)
	}
	r.stats.Incr(statRoomBroadcasts)
}

func (r *Router) routeDirect(ctx context.Context, sender *Client, reqId int, msg types.Message) {
	if err := r.agg.UpsertSummary(ctx, msg.SourceId, msg.TargetId, msg.Body, msg.Timestamp); err != nil {
		r.log.Printf("UpsertSummary: %v", err)
	}

	sent := newServerMessage(reqId, EventSent)
	sent.Message = &msg
	sender.queueMessage(sent)

	state := types.DeliveryPending
	if target, ok := r.dir.Lookup(msg.TargetId); ok && target != sender {
		delivered := msg
		delivered.DeliveryState = types.DeliveryDelivered
		received := newServerMessage(0, EventMessageReceived)
		received.Message = &delivered
		target.queueMessage(received)

		ack := newServerMessage(reqId, EventDelivered)
		ack.Delivery = &Delivery{
			MessageId: msg.Id,
			TargetId:  msg.TargetId,
			Status:    string(types.DeliveryDelivered),
		}
		sender.queueMessage(ack)
		state = types.DeliveryDelivered
		r.stats.Incr(statMessagesDelivered)
	} else {
		ack := newServerMessage(reqId, EventPending)
		ack.Delivery = &Delivery{
			MessageId: msg.Id,
			TargetId:  msg.TargetId,
			Status:    string(types.DeliveryPending),
			Reason:    reasonUserOffline,
		}
		sender.queueMessage(ack)
		r.stats.Incr(statMessagesPending)
	}

	if err := r.store.UpdateDeliveryState(ctx, msg.Id, state); err != nil {
		r.log.Printf("UpdateDeliveryState: %v", err)
	}
}

// MarkAsRead marks a direct message as read by readerId. A message not
// addressed to readerId is left untouched and reports false. reader may be
// nil when the request did not come over a websocket.
func (r *Router) MarkAsRead(ctx context.Context, reader *Client, reqId int, messageId int64, readerId, senderId string) (bool, error) {
	updated, err := r.store.MarkRead(ctx, messageId, readerId)
	if err != nil {
		r.log.Printf("MarkRead: %v", err)
		return false, &RouteError{Code: CodePersistenceFailure, Err: err}
	}
	if !updated {
		return false, nil
	}

	if reader != nil {
		ack := newServerMessage(reqId, EventMessageRead)
		ack.Delivery = &Delivery{MessageId: messageId}
		reader.queueMessage(ack)
	}

	if senderId != "" {
		if c, ok := r.dir.Lookup(senderId); ok && c != reader {
			receipt := newServerMessage(0, EventMessageRead)
			receipt.Delivery = &Delivery{MessageId: messageId, ReadBy: readerId}
			c.queueMessage(receipt)
		}
	}

	return true, nil
}
