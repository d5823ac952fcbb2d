package services

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/pharmalink/pharmalink-backend/internal/data/repos/user"
	"github.com/pharmalink/pharmalink-backend/internal/domain"
	"github.com/pharmalink/pharmalink-backend/internal/geo"
	"github.com/pharmalink/pharmalink-backend/internal/platform/dbctx"
	"github.com/pharmalink/pharmalink-backend/internal/platform/logger"
)

const maxDeviceTokens = 10

type UpdatePharmacyInput struct {
	PharmacyName  *string
	LicenseNumber *string
	Lat           *float64
	Lng           *float64
}

type AccountService interface {
	GetProfile(dbc dbctx.Context, userID uuid.UUID) (*domain.User, error)
	// UpdatePharmacyProfile patches the pharmacy sub-record; a location
	// change recomputes the geocode so the broadcast index stays consistent.
	UpdatePharmacyProfile(dbc dbctx.Context, userID uuid.UUID, in UpdatePharmacyInput) (*domain.User, error)
	SetPharmacyOnline(dbc dbctx.Context, userID uuid.UUID, online bool) error
	// AddDeviceToken registers an FCM token, keeping the newest tokens when
	// the list overflows.
	AddDeviceToken(dbc dbctx.Context, userID uuid.UUID, token string) error
	RemoveDeviceToken(dbc dbctx.Context, userID uuid.UUID, token string) error
	ListUsers(dbc dbctx.Context, role string, limit int) ([]*domain.User, error)
}

type accountService struct {
	db    *gorm.DB
	log   *logger.Logger
	users user.UserRepo
}

func NewAccountService(gdb *gorm.DB, baseLog *logger.Logger, userRepo user.UserRepo) AccountService {
	return &accountService{
		db:    gdb,
		log:   baseLog.With("service", "AccountService"),
		users: userRepo,
	}
}

func (s *accountService) GetProfile(dbc dbctx.Context, userID uuid.UUID) (*domain.User, error) {
	row, err := s.users.GetByID(dbc, userID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}
	return row, nil
}

func (s *accountService) UpdatePharmacyProfile(dbc dbctx.Context, userID uuid.UUID, in UpdatePharmacyInput) (*domain.User, error) {
	row, err := s.GetProfile(dbc, userID)
	if err != nil {
		return nil, err
	}
	if row.Role != domain.RolePharmacy || row.Pharmacy == nil {
		return nil, fmt.Errorf("%w: not a pharmacy account", domain.ErrValidation)
	}

	profile := row.Pharmacy
	if in.PharmacyName != nil {
		name := strings.TrimSpace(*in.PharmacyName)
		if name == "" {
			return nil, fmt.Errorf("%w: pharmacy_name can not be empty", domain.ErrValidation)
		}
		profile.PharmacyName = name
	}
	if in.LicenseNumber != nil {
		profile.LicenseNumber = strings.TrimSpace(*in.LicenseNumber)
	}
	if in.Lat != nil || in.Lng != nil {
		if in.Lat == nil || in.Lng == nil {
			return nil, fmt.Errorf("%w: lat and lng must be updated together", domain.ErrValidation)
		}
		if !geo.IsValidLocation(*in.Lat, *in.Lng) {
			return nil, fmt.Errorf("%w: location out of range", domain.ErrValidation)
		}
		profile.Location = domain.Location{
			Lat:     *in.Lat,
			Lng:     *in.Lng,
			Geocode: geo.Encode(*in.Lat, *in.Lng),
		}
	}
	profile.UpdatedAt = time.Now().UTC()

	if err := s.users.UpsertPharmacyProfile(dbc, profile); err != nil {
		return nil, err
	}
	return row, nil
}

func (s *accountService) SetPharmacyOnline(dbc dbctx.Context, userID uuid.UUID, online bool) error {
	row, err := s.GetProfile(dbc, userID)
	if err != nil {
		return err
	}
	if row.Role != domain.RolePharmacy {
		return fmt.Errorf("%w: not a pharmacy account", domain.ErrValidation)
	}
	return s.users.SetPharmacyOnline(dbc, userID, online)
}

func (s *accountService) AddDeviceToken(dbc dbctx.Context, userID uuid.UUID, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: missing token", domain.ErrValidation)
	}
	row, err := s.GetProfile(dbc, userID)
	if err != nil {
		return err
	}
	tokens := deviceTokens(row)
	for _, t := range tokens {
		if t == token {
			return nil
		}
	}
	tokens = append(tokens, token)
	if len(tokens) > maxDeviceTokens {
		tokens = tokens[len(tokens)-maxDeviceTokens:]
	}
	return s.saveTokens(dbc, userID, tokens)
}

func (s *accountService) RemoveDeviceToken(dbc dbctx.Context, userID uuid.UUID, token string) error {
	row, err := s.GetProfile(dbc, userID)
	if err != nil {
		return err
	}
	tokens := deviceTokens(row)
	kept := tokens[:0]
	for _, t := range tokens {
		if t != token {
			kept = append(kept, t)
		}
	}
	if len(kept) == len(tokens) {
		return nil
	}
	return s.saveTokens(dbc, userID, kept)
}

func (s *accountService) ListUsers(dbc dbctx.Context, role string, limit int) ([]*domain.User, error) {
	return s.users.List(dbc, role, limit)
}

func (s *accountService) saveTokens(dbc dbctx.Context, userID uuid.UUID, tokens []string) error {
	raw, err := json.Marshal(tokens)
	if err != nil {
		return err
	}
	return s.users.UpdateFields(dbc, userID, map[string]interface{}{
		"fcm_tokens": datatypes.JSON(raw),
	})
}
