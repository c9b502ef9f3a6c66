package models

import "time"

// InboundKind enumerates every event a client may send over a live connection.
type InboundKind string

const (
	InboundGroupJoin     InboundKind = "group:join"
	InboundGroupLeave    InboundKind = "group:leave"
	InboundTypingStart   InboundKind = "typing:start"
	InboundTypingStop    InboundKind = "typing:stop"
	InboundDMTypingStart InboundKind = "dm:typing:start"
	InboundDMTypingStop  InboundKind = "dm:typing:stop"
	InboundSendGroup     InboundKind = "send_group_message"
	InboundSendDM        InboundKind = "send_dm"
	InboundMessageRead   InboundKind = "message:read"
	InboundGroupOnline   InboundKind = "group:online"
	InboundTaskUpdate    InboundKind = "task:update"
	InboundResourceNew   InboundKind = "resource:new"
	InboundEventNew      InboundKind = "event:new"
	InboundLogout        InboundKind = "logout"
)

// OutboundKind enumerates every event the relay emits.
type OutboundKind string

const (
	OutboundUserOnline      OutboundKind = "user:online"
	OutboundUserOffline     OutboundKind = "user:offline"
	OutboundGroupMessage    OutboundKind = "group_message"
	OutboundDirectMessage   OutboundKind = "dm_message"
	OutboundTyping          OutboundKind = "typing:user"
	OutboundDMTyping        OutboundKind = "dm:typing"
	OutboundMessageRead     OutboundKind = "message:read"
	OutboundMessageError    OutboundKind = "message:error"
	OutboundGroupOnlineList OutboundKind = "group:online:list"
	OutboundTaskUpdated     OutboundKind = "task:updated"
	OutboundResourceAdded   OutboundKind = "resource:added"
	OutboundEventAdded      OutboundKind = "event:added"
)

// Envelope is the frame exchanged in both directions.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Inbound is implemented by the decoded payload of every InboundKind.
// The set is closed: only types in this file implement it.
type Inbound interface {
	Kind() InboundKind
}

type JoinGroup struct {
	GroupID string `json:"groupId" validate:"required"`
}

type LeaveGroup struct {
	GroupID string `json:"groupId" validate:"required"`
}

type GroupTyping struct {
	GroupID string `json:"groupId" validate:"required"`
	Typing  bool   `json:"-"`
}

type DirectTyping struct {
	ReceiverID string `json:"receiverId" validate:"required"`
	Typing     bool   `json:"-"`
}

type SendGroupMessage struct {
	SendGroupMessageRequest
}

type SendDirectMessage struct {
	SendDirectMessageRequest
}

type MessageRead struct {
	MessageID      string `json:"messageId" validate:"required"`
	ConversationID string `json:"conversationId" validate:"required"`
}

type GroupOnline struct {
	GroupID string `json:"groupId" validate:"required"`
}

// GroupActivity relays an opaque task, resource or calendar item to a group.
// Payload holds only the item, without the envelope's groupId.
type GroupActivity struct {
	Activity InboundKind `json:"-"`
	GroupID  string      `json:"groupId" validate:"required"`
	Payload  []byte      `json:"-"`
}

type Logout struct{}

func (JoinGroup) Kind() InboundKind         { return InboundGroupJoin }
func (LeaveGroup) Kind() InboundKind        { return InboundGroupLeave }
func (SendGroupMessage) Kind() InboundKind  { return InboundSendGroup }
func (SendDirectMessage) Kind() InboundKind { return InboundSendDM }
func (MessageRead) Kind() InboundKind       { return InboundMessageRead }
func (GroupOnline) Kind() InboundKind       { return InboundGroupOnline }
func (Logout) Kind() InboundKind            { return InboundLogout }
func (a GroupActivity) Kind() InboundKind   { return a.Activity }

func (t GroupTyping) Kind() InboundKind {
	if t.Typing {
		return InboundTypingStart
	}
	return InboundTypingStop
}

func (t DirectTyping) Kind() InboundKind {
	if t.Typing {
		return InboundDMTypingStart
	}
	return InboundDMTypingStop
}

type UserOnlinePayload struct {
	UserID string     `json:"userId"`
	Status UserStatus `json:"status"`
}

type UserOfflinePayload struct {
	UserID   string     `json:"userId"`
	Status   UserStatus `json:"status"`
	LastSeen time.Time  `json:"lastSeen"`
}

type TypingPayload struct {
	GroupID string `json:"groupId"`
	UserID  string `json:"userId"`
	Typing  bool   `json:"typing"`
}

type DMTypingPayload struct {
	UserID string `json:"userId"`
	Typing bool   `json:"typing"`
}

type ReadReceiptPayload struct {
	MessageID string `json:"messageId"`
	ReadBy    string `json:"readBy"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type OnlineListPayload struct {
	GroupID     string   `json:"groupId"`
	OnlineUsers []string `json:"onlineUsers"`
}
