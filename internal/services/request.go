package services

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/pharmalink/pharmalink-backend/internal/data/db"
	"github.com/pharmalink/pharmalink-backend/internal/data/repos/request"
	"github.com/pharmalink/pharmalink-backend/internal/data/repos/stats"
	"github.com/pharmalink/pharmalink-backend/internal/domain"
	"github.com/pharmalink/pharmalink-backend/internal/geo"
	"github.com/pharmalink/pharmalink-backend/internal/platform/dbctx"
	"github.com/pharmalink/pharmalink-backend/internal/platform/logger"
	"github.com/pharmalink/pharmalink-backend/internal/realtime"
	"github.com/pharmalink/pharmalink-backend/internal/realtime/bus"
)

const maxPrescriptionImages = 5

type CreateRequestInput struct {
	CustomerID    uuid.UUID
	CustomerName  string
	CustomerPhone string

	RequestType           string
	PrescriptionImageURLs []string
	MedicineText          string

	Lat float64
	Lng float64
}

type RequestService interface {
	// Create validates the payload, derives the geocode from the coordinates
	// and opens the request with a fixed TTL deadline.
	Create(dbc dbctx.Context, in CreateRequestInput) (*domain.MedicineRequest, error)
	// Get returns the request with lazy expiry applied: a row whose deadline
	// passed is reported as expired even before the sweeper caught it.
	Get(dbc dbctx.Context, id uuid.UUID) (*domain.MedicineRequest, error)
	// Close terminates an active request on the owner's behalf. Closing a
	// request that is already terminal is a no-op, not an error.
	Close(dbc dbctx.Context, id uuid.UUID, callerID uuid.UUID) (*domain.MedicineRequest, error)
	ListForCustomer(dbc dbctx.Context, customerID uuid.UUID, limit int) ([]*domain.MedicineRequest, error)
	ListAll(dbc dbctx.Context, status string, limit int) ([]*domain.MedicineRequest, error)
}

type requestService struct {
	db       *gorm.DB
	log      *logger.Logger
	txRunner db.TxRunner
	requests request.RequestRepo
	stats    stats.StatsRepo
	bus      bus.Bus
}

func NewRequestService(
	gdb *gorm.DB,
	baseLog *logger.Logger,
	txRunner db.TxRunner,
	requestRepo request.RequestRepo,
	statsRepo stats.StatsRepo,
	eventBus bus.Bus,
) RequestService {
	return &requestService{
		db:       gdb,
		log:      baseLog.With("service", "RequestService"),
		txRunner: txRunner,
		requests: requestRepo,
		stats:    statsRepo,
		bus:      eventBus,
	}
}

func (s *requestService) Create(dbc dbctx.Context, in CreateRequestInput) (*domain.MedicineRequest, error) {
	if in.CustomerID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing customer_id", domain.ErrValidation)
	}
	if !geo.IsValidLocation(in.Lat, in.Lng) {
		return nil, fmt.Errorf("%w: location out of range", domain.ErrValidation)
	}

	in.MedicineText = strings.TrimSpace(in.MedicineText)
	switch in.RequestType {
	case domain.RequestTypePrescription:
		if len(in.PrescriptionImageURLs) == 0 {
			return nil, fmt.Errorf("%w: prescription request needs at least one image", domain.ErrValidation)
		}
		if len(in.PrescriptionImageURLs) > maxPrescriptionImages {
			return nil, fmt.Errorf("%w: too many prescription images", domain.ErrValidation)
		}
		in.MedicineText = ""
	case domain.RequestTypeText:
		if in.MedicineText == "" {
			return nil, fmt.Errorf("%w: text request needs medicine_text", domain.ErrValidation)
		}
		in.PrescriptionImageURLs = nil
	default:
		return nil, fmt.Errorf("%w: unknown request_type %q", domain.ErrValidation, in.RequestType)
	}

	images, err := json.Marshal(in.PrescriptionImageURLs)
	if err != nil {
		return nil, fmt.Errorf("marshal image urls: %w", err)
	}
	if in.PrescriptionImageURLs == nil {
		images = []byte(`[]`)
	}

	now := time.Now().UTC()
	row := &domain.MedicineRequest{
		ID:                    uuid.New(),
		CustomerID:            in.CustomerID,
		CustomerName:          strings.TrimSpace(in.CustomerName),
		CustomerPhone:         strings.TrimSpace(in.CustomerPhone),
		RequestType:           in.RequestType,
		PrescriptionImageURLs: datatypes.JSON(images),
		MedicineText:          in.MedicineText,
		Location: domain.Location{
			Lat:     in.Lat,
			Lng:     in.Lng,
			Geocode: geo.Encode(in.Lat, in.Lng),
		},
		Status:    domain.RequestStatusActive,
		CreatedAt: now,
		ExpiresAt: now.Add(domain.RequestTTL),
		UpdatedAt: now,
	}

	err = s.txRunner.InTx(dbc.Ctx, func(txc dbctx.Context) error {
		if err := s.requests.Create(txc, row); err != nil {
			return err
		}
		return s.stats.Increment(txc, stats.Deltas{TotalRequests: 1, ActiveRequests: 1})
	})
	if err != nil {
		return nil, err
	}

	s.publish(dbc, realtime.Message{
		Channel: realtime.RequestFeed,
		Event:   realtime.EventRequestCreated,
		Data:    row,
	})
	return row, nil
}

func (s *requestService) Get(dbc dbctx.Context, id uuid.UUID) (*domain.MedicineRequest, error) {
	row, err := s.requests.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("request %s: %w", id, domain.ErrNotFound)
	}
	applyLazyExpiry(row, time.Now().UTC())
	return row, nil
}

func (s *requestService) Close(dbc dbctx.Context, id uuid.UUID, callerID uuid.UUID) (*domain.MedicineRequest, error) {
	row, err := s.requests.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("request %s: %w", id, domain.ErrNotFound)
	}
	if callerID != uuid.Nil && row.CustomerID != callerID {
		return nil, fmt.Errorf("request %s: %w", id, domain.ErrNotFound)
	}

	now := time.Now().UTC()
	changed, err := s.requests.Close(dbc, id, domain.ClosedReasonManual, now)
	if err != nil {
		return nil, err
	}
	if changed {
		if err := s.stats.Increment(dbc, stats.Deltas{ActiveRequests: -1}); err != nil {
			s.log.Warn("stats decrement after close failed", "request_id", id, "error", err)
		}
		s.publish(dbc, realtime.Message{
			Channel: realtime.RequestFeed,
			Event:   realtime.EventRequestClosed,
			Data: map[string]any{
				"request_id":    id,
				"closed_reason": domain.ClosedReasonManual,
			},
		})
	}

	row, err = s.requests.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("request %s: %w", id, domain.ErrNotFound)
	}
	applyLazyExpiry(row, now)
	return row, nil
}

func (s *requestService) ListForCustomer(dbc dbctx.Context, customerID uuid.UUID, limit int) ([]*domain.MedicineRequest, error) {
	rows, err := s.requests.ListByCustomer(dbc, customerID, limit)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	for _, row := range rows {
		applyLazyExpiry(row, now)
	}
	return rows, nil
}

func (s *requestService) ListAll(dbc dbctx.Context, status string, limit int) ([]*domain.MedicineRequest, error) {
	rows, err := s.requests.ListAll(dbc, status, limit)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	for _, row := range rows {
		applyLazyExpiry(row, now)
	}
	return rows, nil
}

func (s *requestService) publish(dbc dbctx.Context, msg realtime.Message) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(dbc.Ctx, msg); err != nil {
		s.log.Warn("bus publish failed", "event", msg.Event, "error", err)
	}
}

// applyLazyExpiry rewrites the status view of a row whose deadline passed
// before the sweeper flipped it. The write stays with the sweeper; reads only
// ever present the deadline truth.
func applyLazyExpiry(row *domain.MedicineRequest, now time.Time) {
	if row == nil {
		return
	}
	if row.Status == domain.RequestStatusActive && row.ExpiredAt(now) {
		row.Status = domain.RequestStatusExpired
		row.ClosedReason = domain.ClosedReasonExpired
		closedAt := row.ExpiresAt
		row.ClosedAt = &closedAt
	}
}
