package user

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pharmalink/pharmalink-backend/internal/domain"
	"github.com/pharmalink/pharmalink-backend/internal/platform/dbctx"
	"github.com/pharmalink/pharmalink-backend/internal/platform/logger"
)

type UserRepo interface {
	Create(dbc dbctx.Context, row *domain.User) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.User, error)
	GetByPhone(dbc dbctx.Context, phone string) (*domain.User, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	UpsertPharmacyProfile(dbc dbctx.Context, row *domain.PharmacyProfile) error
	// SetPharmacyOnline is a plain overwrite: the flag is only ever written
	// by the owning pharmacy's session.
	SetPharmacyOnline(dbc dbctx.Context, userID uuid.UUID, online bool) error
	BumpPharmacyResponses(dbc dbctx.Context, userID uuid.UUID) error
	List(dbc dbctx.Context, role string, limit int) ([]*domain.User, error)
}

type userRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserRepo(db *gorm.DB, log *logger.Logger) UserRepo {
	return &userRepo{db: db, log: log.With("repo", "UserRepo")}
}

func (r *userRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *userRepo) Create(dbc dbctx.Context, row *domain.User) error {
	if row == nil {
		return fmt.Errorf("missing user row")
	}
	return r.handle(dbc).WithContext(dbc.Ctx).Create(row).Error
}

func (r *userRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.User, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing user_id")
	}
	var row domain.User
	err := r.handle(dbc).WithContext(dbc.Ctx).
		Preload("Pharmacy").
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

func (r *userRepo) GetByPhone(dbc dbctx.Context, phone string) (*domain.User, error) {
	if phone == "" {
		return nil, fmt.Errorf("missing phone")
	}
	var row domain.User
	err := r.handle(dbc).WithContext(dbc.Ctx).
		Preload("Pharmacy").
		Where("phone = ?", phone).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *userRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing user_id")
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["updated_at"] = time.Now().UTC()
	return r.handle(dbc).WithContext(dbc.Ctx).
		Model(&domain.User{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *userRepo) UpsertPharmacyProfile(dbc dbctx.Context, row *domain.PharmacyProfile) error {
	if row == nil || row.UserID == uuid.Nil {
		return fmt.Errorf("missing pharmacy profile")
	}
	row.UpdatedAt = time.Now().UTC()
	return r.handle(dbc).WithContext(dbc.Ctx).Save(row).Error
}

func (r *userRepo) SetPharmacyOnline(dbc dbctx.Context, userID uuid.UUID, online bool) error {
	if userID == uuid.Nil {
		return fmt.Errorf("missing user_id")
	}
	return r.handle(dbc).WithContext(dbc.Ctx).
		Model(&domain.PharmacyProfile{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"is_online":  online,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *userRepo) BumpPharmacyResponses(dbc dbctx.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return fmt.Errorf("missing user_id")
	}
	return r.handle(dbc).WithContext(dbc.Ctx).
		Model(&domain.PharmacyProfile{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"total_responses": gorm.Expr("total_responses + 1"),
			"updated_at":      time.Now().UTC(),
		}).Error
}

func (r *userRepo) List(dbc dbctx.Context, role string, limit int) ([]*domain.User, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := r.handle(dbc).WithContext(dbc.Ctx).
		Model(&domain.User{}).
		Preload("Pharmacy").
		Order("created_at DESC").
		Limit(limit)
	if role != "" {
		q = q.Where("role = ?", role)
	}
	var rows []*domain.User
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
