package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/pharmalink/pharmalink-backend/internal/data/db"
	"github.com/pharmalink/pharmalink-backend/internal/data/repos/stats"
	"github.com/pharmalink/pharmalink-backend/internal/data/repos/user"
	"github.com/pharmalink/pharmalink-backend/internal/domain"
	"github.com/pharmalink/pharmalink-backend/internal/geo"
	"github.com/pharmalink/pharmalink-backend/internal/platform/ctxutil"
	"github.com/pharmalink/pharmalink-backend/internal/platform/dbctx"
	"github.com/pharmalink/pharmalink-backend/internal/platform/logger"
)

type RegisterInput struct {
	Role        string
	Phone       string
	Password    string
	DisplayName string
	Email       string

	// pharmacy-only fields
	PharmacyName  string
	LicenseNumber string
	Lat           float64
	Lng           float64
}

type authClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type AuthService interface {
	Register(dbc dbctx.Context, in RegisterInput) (*domain.User, string, error)
	Login(dbc dbctx.Context, phone, password string) (*domain.User, string, error)
	// ParseToken validates a bearer token and returns the caller identity
	// the middleware stores on the request context.
	ParseToken(tokenString string) (*ctxutil.RequestData, error)
}

type authService struct {
	db        *gorm.DB
	log       *logger.Logger
	txRunner  db.TxRunner
	users     user.UserRepo
	stats     stats.StatsRepo
	jwtSecret []byte
	accessTTL time.Duration
}

func NewAuthService(
	gdb *gorm.DB,
	baseLog *logger.Logger,
	txRunner db.TxRunner,
	userRepo user.UserRepo,
	statsRepo stats.StatsRepo,
	jwtSecret string,
	accessTTL time.Duration,
) (AuthService, error) {
	if strings.TrimSpace(jwtSecret) == "" {
		return nil, fmt.Errorf("missing JWT secret")
	}
	if accessTTL <= 0 {
		accessTTL = 7 * 24 * time.Hour
	}
	return &authService{
		db:        gdb,
		log:       baseLog.With("service", "AuthService"),
		txRunner:  txRunner,
		users:     userRepo,
		stats:     statsRepo,
		jwtSecret: []byte(jwtSecret),
		accessTTL: accessTTL,
	}, nil
}

func (s *authService) Register(dbc dbctx.Context, in RegisterInput) (*domain.User, string, error) {
	in.Phone = strings.TrimSpace(in.Phone)
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	if in.Phone == "" || len(in.Password) < 8 {
		return nil, "", fmt.Errorf("%w: phone and a password of 8+ chars required", domain.ErrValidation)
	}
	if in.DisplayName == "" {
		return nil, "", fmt.Errorf("%w: missing display_name", domain.ErrValidation)
	}
	if in.Role != domain.RoleCustomer && in.Role != domain.RolePharmacy {
		return nil, "", fmt.Errorf("%w: unknown role %q", domain.ErrValidation, in.Role)
	}
	if in.Role == domain.RolePharmacy {
		if strings.TrimSpace(in.PharmacyName) == "" {
			return nil, "", fmt.Errorf("%w: missing pharmacy_name", domain.ErrValidation)
		}
		if !geo.IsValidLocation(in.Lat, in.Lng) {
			return nil, "", fmt.Errorf("%w: location out of range", domain.ErrValidation)
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	row := &domain.User{
		ID:           uuid.New(),
		Role:         in.Role,
		Phone:        in.Phone,
		Email:        strings.TrimSpace(in.Email),
		DisplayName:  in.DisplayName,
		PasswordHash: string(hash),
		FCMTokens:    datatypes.JSON(`[]`),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.txRunner.InTx(dbc.Ctx, func(txc dbctx.Context) error {
		if err := s.users.Create(txc, row); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: phone already registered", domain.ErrValidation)
			}
			return err
		}
		deltas := stats.Deltas{TotalCustomers: 1}
		if in.Role == domain.RolePharmacy {
			deltas = stats.Deltas{TotalPharmacies: 1}
			profile := &domain.PharmacyProfile{
				UserID:        row.ID,
				PharmacyName:  strings.TrimSpace(in.PharmacyName),
				LicenseNumber: strings.TrimSpace(in.LicenseNumber),
				Location: domain.Location{
					Lat:     in.Lat,
					Lng:     in.Lng,
					Geocode: geo.Encode(in.Lat, in.Lng),
				},
				UpdatedAt: now,
			}
			if err := s.users.UpsertPharmacyProfile(txc, profile); err != nil {
				return err
			}
			row.Pharmacy = profile
		}
		return s.stats.Increment(txc, deltas)
	})
	if err != nil {
		return nil, "", err
	}

	token, err := s.issueToken(row)
	if err != nil {
		return nil, "", err
	}
	return row, token, nil
}

func (s *authService) Login(dbc dbctx.Context, phone, password string) (*domain.User, string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" || password == "" {
		return nil, "", fmt.Errorf("%w: missing phone or password", domain.ErrValidation)
	}
	row, err := s.users.GetByPhone(dbc, phone)
	if err != nil {
		return nil, "", err
	}
	if row == nil || !row.IsActive {
		return nil, "", fmt.Errorf("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(row.PasswordHash), []byte(password)); err != nil {
		return nil, "", fmt.Errorf("invalid credentials")
	}
	token, err := s.issueToken(row)
	if err != nil {
		return nil, "", err
	}
	return row, token, nil
}

func (s *authService) ParseToken(tokenString string) (*ctxutil.RequestData, error) {
	claims := &authClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	uid, err := uuid.Parse(claims.Subject)
	if err != nil || uid == uuid.Nil {
		return nil, fmt.Errorf("invalid token subject")
	}
	return &ctxutil.RequestData{UserID: uid, Role: claims.Role}, nil
}

func (s *authService) issueToken(row *domain.User) (string, error) {
	now := time.Now().UTC()
	claims := authClaims{
		Role: row.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   row.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
