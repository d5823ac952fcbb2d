package stats

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/pharmalink/pharmalink-backend/internal/domain"
	"github.com/pharmalink/pharmalink-backend/internal/platform/dbctx"
	"github.com/pharmalink/pharmalink-backend/internal/platform/logger"
)

// Deltas are applied as atomic column increments on the singleton row.
type Deltas struct {
	TotalRequests   int64
	ActiveRequests  int64
	TotalCustomers  int64
	TotalPharmacies int64
}

type StatsRepo interface {
	Increment(dbc dbctx.Context, d Deltas) error
	Get(dbc dbctx.Context) (*domain.GlobalStats, error)
}

type statsRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStatsRepo(db *gorm.DB, log *logger.Logger) StatsRepo {
	return &statsRepo{db: db, log: log.With("repo", "StatsRepo")}
}

func (r *statsRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *statsRepo) Increment(dbc dbctx.Context, d Deltas) error {
	now := time.Now().UTC()
	res := r.handle(dbc).WithContext(dbc.Ctx).Exec(`
		INSERT INTO global_stats (id, total_requests, active_requests, total_customers, total_pharmacies, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			total_requests   = global_stats.total_requests + EXCLUDED.total_requests,
			active_requests  = global_stats.active_requests + EXCLUDED.active_requests,
			total_customers  = global_stats.total_customers + EXCLUDED.total_customers,
			total_pharmacies = global_stats.total_pharmacies + EXCLUDED.total_pharmacies,
			updated_at       = EXCLUDED.updated_at
	`, d.TotalRequests, d.ActiveRequests, d.TotalCustomers, d.TotalPharmacies, now)
	return res.Error
}

func (r *statsRepo) Get(dbc dbctx.Context) (*domain.GlobalStats, error) {
	var row domain.GlobalStats
	err := r.handle(dbc).WithContext(dbc.Ctx).
		Where("id = 1").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &domain.GlobalStats{ID: 1}, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
