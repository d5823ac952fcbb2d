package request

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pharmalink/pharmalink-backend/internal/domain"
	"github.com/pharmalink/pharmalink-backend/internal/geo"
	"github.com/pharmalink/pharmalink-backend/internal/platform/dbctx"
	"github.com/pharmalink/pharmalink-backend/internal/platform/logger"
)

type RequestRepo interface {
	Create(dbc dbctx.Context, row *domain.MedicineRequest) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.MedicineRequest, error)
	// Close transitions an active request to a terminal status. Returns false
	// without error when the request is already terminal (idempotent no-op).
	Close(dbc dbctx.Context, id uuid.UUID, reason string, now time.Time) (bool, error)
	// RecordResponse bumps response_count and sets first_response_at if still
	// unset, in one statement so concurrent submissions can not lose updates.
	RecordResponse(dbc dbctx.Context, id uuid.UUID, now time.Time) error
	// ListActiveInBounds scans one geocode range per bound. The union may
	// contain duplicates (bounds can overlap); callers dedupe by id before
	// the exact distance filter.
	ListActiveInBounds(dbc dbctx.Context, bounds []geo.Bounds) ([]*domain.MedicineRequest, error)
	ListByCustomer(dbc dbctx.Context, customerID uuid.UUID, limit int) ([]*domain.MedicineRequest, error)
	ListAll(dbc dbctx.Context, status string, limit int) ([]*domain.MedicineRequest, error)
	// ExpireDue flips every active request whose deadline has passed and
	// returns the affected ids.
	ExpireDue(dbc dbctx.Context, now time.Time) ([]uuid.UUID, error)
}

type requestRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRequestRepo(db *gorm.DB, log *logger.Logger) RequestRepo {
	return &requestRepo{db: db, log: log.With("repo", "RequestRepo")}
}

func (r *requestRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *requestRepo) Create(dbc dbctx.Context, row *domain.MedicineRequest) error {
	if row == nil {
		return fmt.Errorf("missing request row")
	}
	return r.handle(dbc).WithContext(dbc.Ctx).Create(row).Error
}

func (r *requestRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.MedicineRequest, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing request_id")
	}
	var row domain.MedicineRequest
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

func (r *requestRepo) Close(dbc dbctx.Context, id uuid.UUID, reason string, now time.Time) (bool, error) {
	if id == uuid.Nil {
		return false, fmt.Errorf("missing request_id")
	}
	status := domain.RequestStatusClosed
	if reason == domain.ClosedReasonExpired {
		status = domain.RequestStatusExpired
	}
	res := r.handle(dbc).WithContext(dbc.Ctx).
		Model(&domain.MedicineRequest{}).
		Where("id = ? AND status = ?", id, domain.RequestStatusActive).
		Updates(map[string]interface{}{
			"status":        status,
			"closed_at":     now,
			"closed_reason": reason,
			"updated_at":    now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *requestRepo) RecordResponse(dbc dbctx.Context, id uuid.UUID, now time.Time) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing request_id")
	}
	res := r.handle(dbc).WithContext(dbc.Ctx).
		Model(&domain.MedicineRequest{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"response_count":    gorm.Expr("response_count + 1"),
			"first_response_at": gorm.Expr("COALESCE(first_response_at, ?)", now),
			"updated_at":        now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("request %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (r *requestRepo) ListActiveInBounds(dbc dbctx.Context, bounds []geo.Bounds) ([]*domain.MedicineRequest, error) {
	out := make([]*domain.MedicineRequest, 0, 16)
	for _, b := range bounds {
		var rows []*domain.MedicineRequest
		if err := r.handle(dbc).WithContext(dbc.Ctx).
			Model(&domain.MedicineRequest{}).
			Where("status = ? AND geocode >= ? AND geocode < ?", domain.RequestStatusActive, b.Start, b.End).
			Find(&rows).Error; err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

func (r *requestRepo) ListByCustomer(dbc dbctx.Context, customerID uuid.UUID, limit int) ([]*domain.MedicineRequest, error) {
	if customerID == uuid.Nil {
		return nil, fmt.Errorf("missing customer_id")
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var rows []*domain.MedicineRequest
	if err := r.handle(dbc).WithContext(dbc.Ctx).
		Model(&domain.MedicineRequest{}).
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *requestRepo) ListAll(dbc dbctx.Context, status string, limit int) ([]*domain.MedicineRequest, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := r.handle(dbc).WithContext(dbc.Ctx).
		Model(&domain.MedicineRequest{}).
		Order("created_at DESC").
		Limit(limit)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var rows []*domain.MedicineRequest
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *requestRepo) ExpireDue(dbc dbctx.Context, now time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.handle(dbc).WithContext(dbc.Ctx).Raw(`
		UPDATE medicine_request
		SET status = ?, closed_at = ?, closed_reason = ?, updated_at = ?
		WHERE status = ? AND expires_at <= ?
		RETURNING id
	`, domain.RequestStatusExpired, now, domain.ClosedReasonExpired, now,
		domain.RequestStatusActive, now).
		Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
