package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	AvailabilityAvailable    = "available"
	AvailabilityNotAvailable = "not_available"
)

// PharmacyResponse is a pharmacy's one-shot availability declaration for a
// request. The (request_id, pharmacy_id) unique index is the storage-level
// guard against double submission; rows are immutable once created.
type PharmacyResponse struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"response_id"`
	RequestID uuid.UUID `gorm:"type:uuid;not null;index;index:idx_response_request_pharmacy,unique,priority:1" json:"request_id"`

	PharmacyID    uuid.UUID `gorm:"type:uuid;not null;index;index:idx_response_request_pharmacy,unique,priority:2" json:"pharmacy_id"`
	PharmacyName  string    `gorm:"column:pharmacy_name;not null" json:"pharmacy_name"`
	PharmacyPhone string    `gorm:"column:pharmacy_phone;not null" json:"pharmacy_phone"`

	PharmacyLocation Location `gorm:"embedded;embeddedPrefix:pharmacy_" json:"pharmacy_location"`

	// Computed once at submission time from the pharmacy's location and the
	// request's location; never recomputed.
	DistanceKm float64 `gorm:"column:distance_km;not null" json:"distance_km"`

	Availability string `gorm:"column:availability;not null" json:"availability"`

	// Set iff availability is "available"; points at the chat created in the
	// same transaction.
	ChatID *uuid.UUID `gorm:"type:uuid;column:chat_id" json:"chat_id,omitempty"`

	RespondedAt time.Time `gorm:"column:responded_at;not null;default:now();index" json:"responded_at"`
}

func (PharmacyResponse) TableName() string { return "pharmacy_response" }
