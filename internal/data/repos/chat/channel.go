package chat

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pharmalink/pharmalink-backend/internal/domain"
	"github.com/pharmalink/pharmalink-backend/internal/platform/dbctx"
	"github.com/pharmalink/pharmalink-backend/internal/platform/logger"
)

type ChannelRepo interface {
	Create(dbc dbctx.Context, row *domain.ChatChannel) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.ChatChannel, error)
	// LockByID loads the channel row under FOR UPDATE; callers use it to
	// serialize seq allocation within a transaction.
	LockByID(dbc dbctx.Context, id uuid.UUID) (*domain.ChatChannel, error)
	// AdvanceSeq bumps next_seq and refreshes the denormalized last-message
	// cache in one statement.
	AdvanceSeq(dbc dbctx.Context, id uuid.UUID, lastText, lastSenderID string, now time.Time) error
	ListByParticipant(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*domain.ChatChannel, error)
}

type channelRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChannelRepo(db *gorm.DB, log *logger.Logger) ChannelRepo {
	return &channelRepo{db: db, log: log.With("repo", "ChannelRepo")}
}

func (r *channelRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *channelRepo) Create(dbc dbctx.Context, row *domain.ChatChannel) error {
	if row == nil {
		return fmt.Errorf("missing channel row")
	}
	return r.handle(dbc).WithContext(dbc.Ctx).Create(row).Error
}

func (r *channelRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.ChatChannel, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing chat_id")
	}
	var row domain.ChatChannel
	err := r.handle(dbc).WithContext(dbc.Ctx).
		Where("id = ?", id).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *channelRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*domain.ChatChannel, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing chat_id")
	}
	var row domain.ChatChannel
	err := r.handle(dbc).WithContext(dbc.Ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *channelRepo) AdvanceSeq(dbc dbctx.Context, id uuid.UUID, lastText, lastSenderID string, now time.Time) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing chat_id")
	}
	res := r.handle(dbc).WithContext(dbc.Ctx).
		Model(&domain.ChatChannel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"next_seq":               gorm.Expr("next_seq + 1"),
			"last_message_text":      lastText,
			"last_message_sender_id": lastSenderID,
			"last_message_at":        now,
			"updated_at":             now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("chat %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (r *channelRepo) ListByParticipant(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*domain.ChatChannel, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("missing user_id")
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var rows []*domain.ChatChannel
	if err := r.handle(dbc).WithContext(dbc.Ctx).
		Model(&domain.ChatChannel{}).
		Where("customer_id = ? OR pharmacy_id = ?", userID, userID).
		Order("updated_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
