package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	MessageTypeText   = "text"
	MessageTypeImage  = "image"
	MessageTypeSystem = "system"

	// SystemSenderID is the sender sentinel for system-generated messages.
	SystemSenderID = "system"
)

// ChatChannel is the two-party thread opened when a pharmacy declares
// availability. Participants are fixed at creation and never renegotiated.
type ChatChannel struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"chat_id"`
	RequestID uuid.UUID `gorm:"type:uuid;not null;index" json:"request_id"`

	CustomerID   uuid.UUID `gorm:"type:uuid;not null;index" json:"customer_id"`
	CustomerName string    `gorm:"column:customer_name;not null" json:"customer_name"`
	PharmacyID   uuid.UUID `gorm:"type:uuid;not null;index" json:"pharmacy_id"`
	PharmacyName string    `gorm:"column:pharmacy_name;not null" json:"pharmacy_name"`

	IsActive bool `gorm:"column:is_active;not null;default:true" json:"is_active"`

	// Concurrency-safe per-channel message sequencing.
	NextSeq int64 `gorm:"column:next_seq;not null;default:0" json:"next_seq"`

	// Denormalized tail of the message log, refreshed on every send.
	LastMessageText     string     `gorm:"column:last_message_text;not null;default:''" json:"last_message_text,omitempty"`
	LastMessageSenderID string     `gorm:"column:last_message_sender_id;not null;default:''" json:"last_message_sender_id,omitempty"`
	LastMessageAt       *time.Time `gorm:"column:last_message_at" json:"last_message_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (ChatChannel) TableName() string { return "chat_channel" }

// HasParticipant reports whether senderID may post into the channel. The
// system sentinel is always allowed; real identity checks live in the
// caller's session context.
func (c *ChatChannel) HasParticipant(senderID string) bool {
	return senderID == SystemSenderID ||
		senderID == c.CustomerID.String() ||
		senderID == c.PharmacyID.String()
}

// ChatMessage is one append-only entry of a channel's log. Ordering is by
// seq, allocated server-side under the channel row lock, so createdAt ties
// can never reorder messages.
type ChatMessage struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"message_id"`
	ChannelID uuid.UUID `gorm:"type:uuid;not null;index;index:idx_chat_message_channel_seq,unique,priority:1" json:"chat_id"`

	Seq int64 `gorm:"column:seq;not null;index:idx_chat_message_channel_seq,unique,priority:2" json:"seq"`

	SenderID   string `gorm:"column:sender_id;not null" json:"sender_id"`
	SenderRole string `gorm:"column:sender_role;not null" json:"sender_role"`

	Text     string `gorm:"column:text;type:text;not null;default:''" json:"text"`
	Type     string `gorm:"column:type;not null;default:'text'" json:"type"`
	ImageURL string `gorm:"column:image_url;not null;default:''" json:"image_url,omitempty"`

	CreatedAt time.Time  `gorm:"not null;default:now();index" json:"created_at"`
	ReadAt    *time.Time `gorm:"column:read_at" json:"read_at,omitempty"`
}

func (ChatMessage) TableName() string { return "chat_message" }
