package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	RoleCustomer = "customer"
	RolePharmacy = "pharmacy"
)

// User is the account-store record for both roles. The pharmacy sub-record
// carries the online flag and location the broadcast engine reads; it is only
// ever mutated by the owning pharmacy's session, so plain overwrites are safe.
type User struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"uid"`
	Role        string    `gorm:"column:role;not null;index" json:"role"`
	Phone       string    `gorm:"column:phone;not null;uniqueIndex" json:"phone"`
	Email       string    `gorm:"column:email;not null;default:''" json:"email,omitempty"`
	DisplayName string    `gorm:"column:display_name;not null" json:"display_name"`

	PasswordHash string `gorm:"column:password_hash;not null" json:"-"`

	// Device tokens for the fire-and-forget alert channel.
	FCMTokens datatypes.JSON `gorm:"type:jsonb;column:fcm_tokens;default:'[]'" json:"fcm_tokens,omitempty"`

	IsActive bool `gorm:"column:is_active;not null;default:true" json:"is_active"`

	Pharmacy *PharmacyProfile `gorm:"foreignKey:UserID" json:"pharmacy_profile,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (User) TableName() string { return "app_user" }

type PharmacyProfile struct {
	UserID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	PharmacyName  string    `gorm:"column:pharmacy_name;not null" json:"pharmacy_name"`
	LicenseNumber string    `gorm:"column:license_number;not null;default:''" json:"license_number,omitempty"`

	Location Location `gorm:"embedded" json:"location"`

	IsOnline   bool    `gorm:"column:is_online;not null;default:false;index" json:"is_online"`
	IsVerified bool    `gorm:"column:is_verified;not null;default:false" json:"is_verified"`
	Rating     float64 `gorm:"column:rating;not null;default:0" json:"rating"`

	// Lifetime availability declarations submitted by this pharmacy.
	TotalResponses int64 `gorm:"column:total_responses;not null;default:0" json:"total_responses"`

	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (PharmacyProfile) TableName() string { return "pharmacy_profile" }
