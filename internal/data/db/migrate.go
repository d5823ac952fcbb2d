package db

import (
	"gorm.io/gorm"

	"github.com/pharmalink/pharmalink-backend/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		// Accounts
		&domain.User{},
		&domain.PharmacyProfile{},

		// Request + response matching
		&domain.MedicineRequest{},
		&domain.PharmacyResponse{},

		// Chat
		&domain.ChatChannel{},
		&domain.ChatMessage{},

		// Aggregate counters
		&domain.GlobalStats{},
	)
}
