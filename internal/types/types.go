package types

import (
	"time"
)

type MessageType string

const (
	MessageTypeText MessageType = "text"
	MessageTypeRoom MessageType = "room"
)

type DeliveryState string

const (
	DeliveryCreated   DeliveryState = "created"
	DeliveryDelivered DeliveryState = "delivered"
	DeliveryPending   DeliveryState = "pending"
)

type Message struct {
	Id            int64         `json:"id"`
	SourceId      string        `json:"sourceId"`
	TargetId      string        `json:"targetId"`
	Body          string        `json:"message"`
	MessageType   MessageType   `json:"messageType"`
	Path          string        `json:"path"`
	IsRoom        bool          `json:"isRoom"`
	IsRead        bool          `json:"isRead"`
	DeliveryState DeliveryState `json:"deliveryState,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
}

type Room struct {
	Id        string `json:"id"`
	Name      string `json:"name"`
	UserCount int    `json:"userCount"`
}

type ConversationSummary struct {
	OtherUserId     string    `json:"otherUserId"`
	LastMessage     string    `json:"lastMessage"`
	LastMessageTime time.Time `json:"lastMessageTime"`
	UnreadCount     int       `json:"unreadCount"`
	IsOnline        bool      `json:"isOnline"`
}

type UserPresence struct {
	UserId   string    `json:"userId"`
	IsOnline bool      `json:"isOnline"`
	LastSeen time.Time `json:"lastSeen"`
}
