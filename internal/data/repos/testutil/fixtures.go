package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pharmalink/pharmalink-backend/internal/domain"
	"github.com/pharmalink/pharmalink-backend/internal/geo"
)

func SeedCustomer(tb testing.TB, ctx context.Context, tx *gorm.DB, phone string) *domain.User {
	tb.Helper()
	u := &domain.User{
		ID:           uuid.New(),
		Role:         domain.RoleCustomer,
		Phone:        phone,
		DisplayName:  "Test Customer",
		PasswordHash: "x",
		IsActive:     true,
	}
	if err := tx.WithContext(ctx).Create(u).Error; err != nil {
		tb.Fatalf("seed customer: %v", err)
	}
	return u
}

func SeedPharmacy(tb testing.TB, ctx context.Context, tx *gorm.DB, phone string, lat, lng float64) *domain.User {
	tb.Helper()
	u := &domain.User{
		ID:           uuid.New(),
		Role:         domain.RolePharmacy,
		Phone:        phone,
		DisplayName:  "Test Pharmacy",
		PasswordHash: "x",
		IsActive:     true,
	}
	if err := tx.WithContext(ctx).Create(u).Error; err != nil {
		tb.Fatalf("seed pharmacy: %v", err)
	}
	p := &domain.PharmacyProfile{
		UserID:       u.ID,
		PharmacyName: "Test Pharmacy",
		Location: domain.Location{
			Lat:     lat,
			Lng:     lng,
			Geocode: geo.Encode(lat, lng),
		},
		IsOnline: true,
	}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed pharmacy profile: %v", err)
	}
	u.Pharmacy = p
	return u
}

func SeedRequest(tb testing.TB, ctx context.Context, tx *gorm.DB, customer *domain.User, lat, lng float64) *domain.MedicineRequest {
	tb.Helper()
	now := time.Now().UTC()
	r := &domain.MedicineRequest{
		ID:            uuid.New(),
		CustomerID:    customer.ID,
		CustomerName:  customer.DisplayName,
		CustomerPhone: customer.Phone,
		RequestType:   domain.RequestTypeText,
		MedicineText:  "Paracetamol 500mg",
		Location: domain.Location{
			Lat:     lat,
			Lng:     lng,
			Geocode: geo.Encode(lat, lng),
		},
		Status:    domain.RequestStatusActive,
		CreatedAt: now,
		ExpiresAt: now.Add(domain.RequestTTL),
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(r).Error; err != nil {
		tb.Fatalf("seed request: %v", err)
	}
	return r
}

func SeedChannel(tb testing.TB, ctx context.Context, tx *gorm.DB, req *domain.MedicineRequest, pharmacy *domain.User) *domain.ChatChannel {
	tb.Helper()
	now := time.Now().UTC()
	c := &domain.ChatChannel{
		ID:           uuid.New(),
		RequestID:    req.ID,
		CustomerID:   req.CustomerID,
		CustomerName: req.CustomerName,
		PharmacyID:   pharmacy.ID,
		PharmacyName: pharmacy.DisplayName,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed channel: %v", err)
	}
	return c
}
