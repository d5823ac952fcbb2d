package request

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pharmalink/pharmalink-backend/internal/domain"
	"github.com/pharmalink/pharmalink-backend/internal/platform/dbctx"
	"github.com/pharmalink/pharmalink-backend/internal/platform/logger"
)

type ResponseRepo interface {
	// Create inserts a response. A second submission from the same pharmacy
	// for the same request trips the (request_id, pharmacy_id) unique index
	// and surfaces as domain.ErrDuplicateResponse; the check lives in the
	// storage layer, not an application pre-read.
	Create(dbc dbctx.Context, row *domain.PharmacyResponse) error
	GetForPharmacy(dbc dbctx.Context, requestID, pharmacyID uuid.UUID) (*domain.PharmacyResponse, error)
	ListByRequest(dbc dbctx.Context, requestID uuid.UUID) ([]*domain.PharmacyResponse, error)
}

type responseRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewResponseRepo(db *gorm.DB, log *logger.Logger) ResponseRepo {
	return &responseRepo{db: db, log: log.With("repo", "ResponseRepo")}
}

func (r *responseRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *responseRepo) Create(dbc dbctx.Context, row *domain.PharmacyResponse) error {
	if row == nil {
		return fmt.Errorf("missing response row")
	}
	err := r.handle(dbc).WithContext(dbc.Ctx).Create(row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("pharmacy %s request %s: %w", row.PharmacyID, row.RequestID, domain.ErrDuplicateResponse)
	}
	return err
}

func (r *responseRepo) GetForPharmacy(dbc dbctx.Context, requestID, pharmacyID uuid.UUID) (*domain.PharmacyResponse, error) {
	if requestID == uuid.Nil || pharmacyID == uuid.Nil {
		return nil, fmt.Errorf("missing request_id or pharmacy_id")
	}
	var row domain.PharmacyResponse
	err := r.handle(dbc).WithContext(dbc.Ctx).
		Where("request_id = ? AND pharmacy_id = ?", requestID, pharmacyID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *responseRepo) ListByRequest(dbc dbctx.Context, requestID uuid.UUID) ([]*domain.PharmacyResponse, error) {
	if requestID == uuid.Nil {
		return nil, fmt.Errorf("missing request_id")
	}
	var rows []*domain.PharmacyResponse
	if err := r.handle(dbc).WithContext(dbc.Ctx).
		Model(&domain.PharmacyResponse{}).
		Where("request_id = ?", requestID).
		Order("responded_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
