package domain

import "time"

// GlobalStats is a singleton row of aggregate counters, maintained with
// atomic column increments. Informational only; no core flow reads it.
type GlobalStats struct {
	ID int `gorm:"primaryKey;default:1" json:"-"`

	TotalRequests   int64 `gorm:"column:total_requests;not null;default:0" json:"total_requests"`
	ActiveRequests  int64 `gorm:"column:active_requests;not null;default:0" json:"active_requests"`
	TotalCustomers  int64 `gorm:"column:total_customers;not null;default:0" json:"total_customers"`
	TotalPharmacies int64 `gorm:"column:total_pharmacies;not null;default:0" json:"total_pharmacies"`

	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (GlobalStats) TableName() string { return "global_stats" }
