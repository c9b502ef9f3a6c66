package models

import (
	"errors"
	"time"
)

const MaxContentLength = 5000

type ChannelType string

const (
	ChannelGroup        ChannelType = "GROUP"
	ChannelAnnouncement ChannelType = "ANNOUNCEMENT"
	ChannelDM           ChannelType = "DM"
)

// IsGroupChannel reports whether messages of this type are addressed to a group.
func (c ChannelType) IsGroupChannel() bool {
	return c == ChannelGroup || c == ChannelAnnouncement
}

type Message struct {
	ID            string      `json:"id"`
	SenderID      string      `json:"senderId"`
	GroupID       string      `json:"groupId,omitempty"`
	ReceiverID    string      `json:"receiverId,omitempty"`
	Content       string      `json:"content"`
	AttachmentURL string      `json:"attachmentUrl,omitempty"`
	ChannelType   ChannelType `json:"channelType"`
	Read          bool        `json:"read"`
	CreatedAt     time.Time   `json:"createdAt"`

	Sender   *Profile `json:"sender,omitempty"`
	Receiver *Profile `json:"receiver,omitempty"`
}

var (
	errEmptyContent   = errors.New("message content is required")
	errAddressing     = errors.New("message must have exactly one of groupId or receiverId")
	errChannelMissing = errors.New("message channel type does not match its address")
)

// Validate checks the structural invariants every stored message must hold.
func (m *Message) Validate() error {
	if m.Content == "" {
		return errEmptyContent
	}
	if (m.GroupID == "") == (m.ReceiverID == "") {
		return errAddressing
	}
	if m.GroupID != "" && !m.ChannelType.IsGroupChannel() {
		return errChannelMissing
	}
	if m.ReceiverID != "" && m.ChannelType != ChannelDM {
		return errChannelMissing
	}
	return nil
}

type Conversation struct {
	User        User    `json:"user"`
	LastMessage Message `json:"lastMessage"`
}

// HistoryQuery selects one page of a message timeline, newest first.
type HistoryQuery struct {
	Limit       int
	Before      time.Time
	ChannelType ChannelType
}

type SendGroupMessageRequest struct {
	GroupID       string      `json:"groupId" validate:"required"`
	Content       string      `json:"content" validate:"required,max=5000"`
	AttachmentURL string      `json:"attachmentUrl,omitempty" validate:"omitempty,max=2048"`
	ChannelType   ChannelType `json:"channelType,omitempty" validate:"omitempty,oneof=GROUP ANNOUNCEMENT"`
}

type SendDirectMessageRequest struct {
	ReceiverID    string `json:"receiverId" validate:"required"`
	Content       string `json:"content" validate:"required,max=5000"`
	AttachmentURL string `json:"attachmentUrl,omitempty" validate:"omitempty,max=2048"`
}
