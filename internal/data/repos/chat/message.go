package chat

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pharmalink/pharmalink-backend/internal/domain"
	"github.com/pharmalink/pharmalink-backend/internal/platform/dbctx"
	"github.com/pharmalink/pharmalink-backend/internal/platform/logger"
)

type MessageRepo interface {
	Create(dbc dbctx.Context, row *domain.ChatMessage) error
	// ListByChannel returns the log in seq ascending order; the log is
	// append-only, so a later call only ever extends the tail.
	ListByChannel(dbc dbctx.Context, channelID uuid.UUID, limit int) ([]*domain.ChatMessage, error)
	// ListSinceSeq is the reconnect path: replay everything after the last
	// seq a client saw.
	ListSinceSeq(dbc dbctx.Context, channelID uuid.UUID, afterSeq int64, limit int) ([]*domain.ChatMessage, error)
}

type messageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMessageRepo(db *gorm.DB, log *logger.Logger) MessageRepo {
	return &messageRepo{db: db, log: log.With("repo", "MessageRepo")}
}

func (r *messageRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *messageRepo) Create(dbc dbctx.Context, row *domain.ChatMessage) error {
	if row == nil {
		return fmt.Errorf("missing message row")
	}
	return r.handle(dbc).WithContext(dbc.Ctx).Create(row).Error
}

func (r *messageRepo) ListByChannel(dbc dbctx.Context, channelID uuid.UUID, limit int) ([]*domain.ChatMessage, error) {
	if channelID == uuid.Nil {
		return nil, fmt.Errorf("missing chat_id")
	}
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	var rows []*domain.ChatMessage
	if err := r.handle(dbc).WithContext(dbc.Ctx).
		Model(&domain.ChatMessage{}).
		Where("channel_id = ?", channelID).
		Order("seq ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *messageRepo) ListSinceSeq(dbc dbctx.Context, channelID uuid.UUID, afterSeq int64, limit int) ([]*domain.ChatMessage, error) {
	if channelID == uuid.Nil {
		return nil, fmt.Errorf("missing chat_id")
	}
	if limit <= 0 || limit > 1000 {
		limit = 300
	}
	var rows []*domain.ChatMessage
	if err := r.handle(dbc).WithContext(dbc.Ctx).
		Model(&domain.ChatMessage{}).
		Where("channel_id = ? AND seq > ?", channelID, afterSeq).
		Order("seq ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
