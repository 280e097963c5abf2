package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/npezzotti/chat-relay/internal/database"
	"github.com/npezzotti/chat-relay/internal/types"
)

// Outbound event names.
const (
	EventSigninSuccess    = "signinSuccess"
	EventSigninError      = "signinError"
	EventSuperseded       = "superseded"
	EventSent             = "sent"
	EventDelivered        = "delivered"
	EventPending          = "pending"
	EventMessageError     = "messageError"
	EventMessageReceived  = "messageReceived"
	EventMessageRead      = "messageRead"
	EventJoined           = "joined"
	EventLeft             = "left"
	EventRoomJoined       = "roomJoined"
	EventRoomLeft         = "roomLeft"
	EventOnlineUsers      = "onlineUsers"
	EventUsersUpdate      = "usersUpdate"
	EventUserOnline       = "userOnline"
	EventUserOffline      = "userOffline"
	EventRoomsList        = "roomsList"
	EventTypingUpdate     = "typingUpdate"
	EventActivity         = "activity"
	EventUserStatusUpdate = "userStatusUpdate"
	EventHeartbeat        = "heartbeat"
	EventError            = "error"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ClientMessage struct {
	BaseMessage
	Signin     *Signin     `json:"signin,omitempty"`
	Message    *Publish    `json:"message,omitempty"`
	JoinRoom   *RoomChange `json:"joinRoom,omitempty"`
	LeaveRoom  *RoomChange `json:"leaveRoom,omitempty"`
	Typing     *Typing     `json:"typing,omitempty"`
	Activity   *Activity   `json:"activity,omitempty"`
	Status     *Status     `json:"status,omitempty"`
	MarkAsRead *MarkAsRead `json:"markAsRead,omitempty"`
	Heartbeat  *Heartbeat  `json:"heartbeat,omitempty"`
}

type Signin struct {
	UserId string `json:"userId"`
}

type Publish struct {
	Message     string `json:"message"`
	SourceId    string `json:"sourceId"`
	TargetId    string `json:"targetId"`
	MessageType string `json:"messageType,omitempty"`
	Path        string `json:"path,omitempty"`
	IsRoom      bool   `json:"isRoom,omitempty"`
}

// Kind maps the inbound message type onto a stored message type. "direct"
// is accepted as an alias of "text".
func (p *Publish) Kind() types.MessageType {
	if p.IsRoom || strings.EqualFold(p.MessageType, string(types.MessageTypeRoom)) {
		return types.MessageTypeRoom
	}
	return types.MessageTypeText
}

type RoomChange struct {
	RoomId string `json:"roomId"`
}

type Typing struct {
	TargetId string `json:"targetId"`
	IsTyping bool   `json:"isTyping"`
	IsRoom   bool   `json:"isRoom,omitempty"`
}

type Activity struct {
	TargetId string `json:"targetId"`
	IsRoom   bool   `json:"isRoom,omitempty"`
}

type Status struct {
	Status string `json:"status"`
}

type MarkAsRead struct {
	MessageId int64  `json:"messageId"`
	ReaderId  string `json:"readerId,omitempty"`
	SenderId  string `json:"senderId,omitempty"`
}

type Heartbeat struct{}

type ServerMessage struct {
	BaseMessage
	Event        string         `json:"event"`
	Response     *Response      `json:"response,omitempty"`
	Message      *types.Message `json:"message,omitempty"`
	Delivery     *Delivery      `json:"delivery,omitempty"`
	Notification *Notification  `json:"notification,omitempty"`
}

type Response struct {
	ResponseCode int       `json:"response_code"`
	Code         ErrorCode `json:"code,omitempty"`
	Error        string    `json:"error,omitempty"`
	Data         any       `json:"data,omitempty"`
}

// Delivery reports the state of a single message back to its sender.
type Delivery struct {
	MessageId int64  `json:"messageId"`
	TargetId  string `json:"targetId,omitempty"`
	Status    string `json:"status,omitempty"`
	Reason    string `json:"reason,omitempty"`
	ReadBy    string `json:"readBy,omitempty"`
}

type Notification struct {
	Presence   *Presence     `json:"presence,omitempty"`
	Membership *Membership   `json:"membership,omitempty"`
	Online     *OnlineUsers  `json:"online,omitempty"`
	Rooms      []types.Room  `json:"rooms,omitempty"`
	Typing     *TypingUpdate `json:"typing,omitempty"`
	Activity   *ActivityInfo `json:"activity,omitempty"`
	Status     *StatusUpdate `json:"status,omitempty"`
}

type Presence struct {
	UserId   string    `json:"userId"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"lastSeen"`
}

type Membership struct {
	UserId string `json:"userId"`
	RoomId string `json:"roomId"`
	Reason string `json:"reason,omitempty"`
}

type OnlineUsers struct {
	Users []string `json:"users"`
}

type TypingUpdate struct {
	UserId   string `json:"userId"`
	TargetId string `json:"targetId"`
	IsTyping bool   `json:"isTyping"`
	IsRoom   bool   `json:"isRoom"`
}

type ActivityInfo struct {
	UserId   string    `json:"userId"`
	TargetId string    `json:"targetId"`
	LastSeen time.Time `json:"lastSeen"`
}

type StatusUpdate struct {
	UserId string `json:"userId"`
	Status string `json:"status"`
}

func newServerMessage(id int, event string) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Event: event,
	}
}

func notice(event string, n *Notification) *ServerMessage {
	msg := newServerMessage(0, event)
	msg.Notification = n
	return msg
}

func NoErrOK(id int, event string, data any) *ServerMessage {
	msg := newServerMessage(id, event)
	msg.Response = &Response{
		ResponseCode: http.StatusOK,
		Data:         data,
	}
	return msg
}

func errResponse(id int, event string, code ErrorCode, text string) *ServerMessage {
	msg := newServerMessage(id, event)
	if id < 0 {
		msg.Id = 0
	}
	msg.Response = &Response{
		ResponseCode: code.status(),
		Code:         code,
		Error:        text,
	}
	return msg
}

func ErrInvalidMessage(id int) *ServerMessage {
	return errResponse(id, EventMessageError, CodeInvalidMessage, "invalid message data")
}

func ErrRoomNotFound(id int) *ServerMessage {
	return errResponse(id, EventMessageError, CodeRoomNotFound, "room not found")
}

func ErrPersistenceFailure(id int) *ServerMessage {
	return errResponse(id, EventMessageError, CodePersistenceFailure, "failed to save message")
}

func ErrNotSignedIn(id int) *ServerMessage {
	return errResponse(id, EventError, CodeNotSignedIn, "not signed in")
}

func ErrSignin(id int, reason string) *ServerMessage {
	return errResponse(id, EventSigninError, CodeInvalidMessage, reason)
}

// WireMessage converts a stored message to its client representation.
func WireMessage(m database.Message) types.Message {
	return types.Message{
		Id:            m.Id,
		SourceId:      m.SourceId,
		TargetId:      m.TargetId,
		Body:          m.Body,
		MessageType:   m.MessageType,
		Path:          m.Path,
		IsRoom:        m.MessageType == types.MessageTypeRoom,
		IsRead:        m.IsRead,
		DeliveryState: m.DeliveryState,
		Timestamp:     m.CreatedAt,
	}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
