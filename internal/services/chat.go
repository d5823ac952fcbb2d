package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pharmalink/pharmalink-backend/internal/data/db"
	"github.com/pharmalink/pharmalink-backend/internal/data/repos/chat"
	"github.com/pharmalink/pharmalink-backend/internal/data/repos/user"
	"github.com/pharmalink/pharmalink-backend/internal/domain"
	"github.com/pharmalink/pharmalink-backend/internal/platform/dbctx"
	"github.com/pharmalink/pharmalink-backend/internal/platform/logger"
	"github.com/pharmalink/pharmalink-backend/internal/realtime"
	"github.com/pharmalink/pharmalink-backend/internal/realtime/bus"
)

const maxMessageLength = 4000

type SendMessageInput struct {
	ChatID     uuid.UUID
	SenderID   string
	SenderRole string
	Text       string
	Type       string
	ImageURL   string
}

type ChatService interface {
	// SendMessage appends to the channel log. The seq is allocated under the
	// channel row lock, so two concurrent sends can never get the same slot
	// and the log order is the seq order.
	SendMessage(dbc dbctx.Context, in SendMessageInput) (*domain.ChatMessage, error)
	Get(dbc dbctx.Context, chatID uuid.UUID, callerID uuid.UUID) (*domain.ChatChannel, error)
	// ListMessages replays the log in seq order; afterSeq >= 0 resumes a
	// reconnecting client from where it left off.
	ListMessages(dbc dbctx.Context, chatID uuid.UUID, callerID uuid.UUID, afterSeq int64, limit int) ([]*domain.ChatMessage, error)
	ListForUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*domain.ChatChannel, error)
}

type chatService struct {
	db       *gorm.DB
	log      *logger.Logger
	txRunner db.TxRunner
	channels chat.ChannelRepo
	messages chat.MessageRepo
	users    user.UserRepo
	bus      bus.Bus
	push     PushService
}

func NewChatService(
	gdb *gorm.DB,
	baseLog *logger.Logger,
	txRunner db.TxRunner,
	channelRepo chat.ChannelRepo,
	messageRepo chat.MessageRepo,
	userRepo user.UserRepo,
	eventBus bus.Bus,
	pushService PushService,
) ChatService {
	return &chatService{
		db:       gdb,
		log:      baseLog.With("service", "ChatService"),
		txRunner: txRunner,
		channels: channelRepo,
		messages: messageRepo,
		users:    userRepo,
		bus:      eventBus,
		push:     pushService,
	}
}

func (s *chatService) SendMessage(dbc dbctx.Context, in SendMessageInput) (*domain.ChatMessage, error) {
	if in.ChatID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing chat_id", domain.ErrValidation)
	}
	in.Text = strings.TrimSpace(in.Text)
	if in.Type == "" {
		in.Type = domain.MessageTypeText
	}
	switch in.Type {
	case domain.MessageTypeText, domain.MessageTypeSystem:
		if in.Text == "" {
			return nil, fmt.Errorf("%w: empty message", domain.ErrValidation)
		}
	case domain.MessageTypeImage:
		if in.ImageURL == "" {
			return nil, fmt.Errorf("%w: image message needs image_url", domain.ErrValidation)
		}
	default:
		return nil, fmt.Errorf("%w: unknown message type %q", domain.ErrValidation, in.Type)
	}
	if len(in.Text) > maxMessageLength {
		return nil, fmt.Errorf("%w: message too long", domain.ErrValidation)
	}

	now := time.Now().UTC()
	var row *domain.ChatMessage

	err := s.txRunner.InTx(dbc.Ctx, func(txc dbctx.Context) error {
		channel, err := s.channels.LockByID(txc, in.ChatID)
		if err != nil {
			return err
		}
		if channel == nil {
			return fmt.Errorf("chat %s: %w", in.ChatID, domain.ErrNotFound)
		}
		if !channel.HasParticipant(in.SenderID) {
			return fmt.Errorf("chat %s: %w", in.ChatID, domain.ErrNotFound)
		}

		row = &domain.ChatMessage{
			ID:         uuid.New(),
			ChannelID:  channel.ID,
			Seq:        channel.NextSeq,
			SenderID:   in.SenderID,
			SenderRole: in.SenderRole,
			Text:       in.Text,
			Type:       in.Type,
			ImageURL:   in.ImageURL,
			CreatedAt:  now,
		}
		if err := s.messages.Create(txc, row); err != nil {
			return err
		}
		return s.channels.AdvanceSeq(txc, channel.ID, in.Text, in.SenderID, now)
	})
	if err != nil {
		return nil, err
	}

	s.fanOut(dbc, row)
	return row, nil
}

func (s *chatService) Get(dbc dbctx.Context, chatID uuid.UUID, callerID uuid.UUID) (*domain.ChatChannel, error) {
	channel, err := s.channels.GetByID(dbc, chatID)
	if err != nil {
		return nil, err
	}
	if channel == nil {
		return nil, fmt.Errorf("chat %s: %w", chatID, domain.ErrNotFound)
	}
	if callerID != uuid.Nil && !channel.HasParticipant(callerID.String()) {
		return nil, fmt.Errorf("chat %s: %w", chatID, domain.ErrNotFound)
	}
	return channel, nil
}

func (s *chatService) ListMessages(dbc dbctx.Context, chatID uuid.UUID, callerID uuid.UUID, afterSeq int64, limit int) ([]*domain.ChatMessage, error) {
	if _, err := s.Get(dbc, chatID, callerID); err != nil {
		return nil, err
	}
	if afterSeq >= 0 {
		return s.messages.ListSinceSeq(dbc, chatID, afterSeq, limit)
	}
	return s.messages.ListByChannel(dbc, chatID, limit)
}

func (s *chatService) ListForUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*domain.ChatChannel, error) {
	return s.channels.ListByParticipant(dbc, userID, limit)
}

// fanOut announces the message on the chat's bus channel and pushes a device
// alert to the other participant. Both are fire-and-forget.
func (s *chatService) fanOut(dbc dbctx.Context, row *domain.ChatMessage) {
	if s.bus != nil {
		msg := realtime.Message{
			Channel: realtime.ChatChannelKey(row.ChannelID.String()),
			Event:   realtime.EventChatMessage,
			Data:    row,
		}
		if err := s.bus.Publish(dbc.Ctx, msg); err != nil {
			s.log.Warn("bus publish failed", "chat_id", row.ChannelID, "error", err)
		}
	}

	if s.push == nil || row.SenderID == domain.SystemSenderID {
		return
	}
	channel, err := s.channels.GetByID(dbc, row.ChannelID)
	if err != nil || channel == nil {
		return
	}
	recipientID := channel.CustomerID
	senderName := channel.CustomerName
	if row.SenderID == channel.CustomerID.String() {
		recipientID = channel.PharmacyID
	} else {
		senderName = channel.PharmacyName
	}
	recipient, err := s.users.GetByID(dbc, recipientID)
	if err != nil || recipient == nil {
		return
	}
	body := row.Text
	if row.Type == domain.MessageTypeImage {
		body = "Sent a photo"
	}
	s.push.Notify(dbc.Ctx, deviceTokens(recipient), senderName, body, map[string]string{
		"chat_id": row.ChannelID.String(),
	})
}
