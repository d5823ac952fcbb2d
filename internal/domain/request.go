package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	RequestTypePrescription = "prescription"
	RequestTypeText         = "text"

	RequestStatusActive  = "active"
	RequestStatusClosed  = "closed"
	RequestStatusExpired = "expired"

	ClosedReasonExpired = "expired"
	ClosedReasonManual  = "manual"

	// RequestTTL is fixed at creation; the deadline is authoritative and the
	// status column is only a cache of it.
	RequestTTL = 60 * time.Minute
)

type MedicineRequest struct {
	ID            uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"request_id"`
	CustomerID    uuid.UUID `gorm:"type:uuid;not null;index" json:"customer_id"`
	CustomerName  string    `gorm:"column:customer_name;not null" json:"customer_name"`
	CustomerPhone string    `gorm:"column:customer_phone;not null" json:"customer_phone"`

	RequestType string `gorm:"column:request_type;not null" json:"request_type"`

	// Exactly one of the two payloads is populated, matching RequestType.
	PrescriptionImageURLs datatypes.JSON `gorm:"type:jsonb;column:prescription_image_urls;default:'[]'" json:"prescription_image_urls,omitempty"`
	MedicineText          string         `gorm:"column:medicine_text;type:text;not null;default:''" json:"medicine_text,omitempty"`

	Location Location `gorm:"embedded" json:"location"`

	Status string `gorm:"column:status;not null;default:'active';index;index:idx_request_status_geocode,priority:1" json:"status"`

	CreatedAt time.Time  `gorm:"not null;default:now();index" json:"created_at"`
	ExpiresAt time.Time  `gorm:"column:expires_at;not null;index" json:"expires_at"`
	ClosedAt  *time.Time `gorm:"column:closed_at" json:"closed_at,omitempty"`

	ClosedReason string `gorm:"column:closed_reason;not null;default:''" json:"closed_reason,omitempty"`

	FirstResponseAt *time.Time `gorm:"column:first_response_at" json:"first_response_at,omitempty"`
	ResponseCount   int64      `gorm:"column:response_count;not null;default:0" json:"response_count"`

	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (MedicineRequest) TableName() string { return "medicine_request" }

// Deadline-based expiry check; trusts expires_at, not the status cache.
func (r *MedicineRequest) ExpiredAt(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

// Active reports whether the request can still accept responses at now.
func (r *MedicineRequest) Active(now time.Time) bool {
	return r.Status == RequestStatusActive && !r.ExpiredAt(now)
}
