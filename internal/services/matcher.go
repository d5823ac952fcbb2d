package services

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pharmalink/pharmalink-backend/internal/data/db"
	"github.com/pharmalink/pharmalink-backend/internal/data/repos/chat"
	"github.com/pharmalink/pharmalink-backend/internal/data/repos/request"
	"github.com/pharmalink/pharmalink-backend/internal/data/repos/user"
	"github.com/pharmalink/pharmalink-backend/internal/domain"
	"github.com/pharmalink/pharmalink-backend/internal/geo"
	"github.com/pharmalink/pharmalink-backend/internal/platform/dbctx"
	"github.com/pharmalink/pharmalink-backend/internal/platform/logger"
	"github.com/pharmalink/pharmalink-backend/internal/realtime"
	"github.com/pharmalink/pharmalink-backend/internal/realtime/bus"
)

type SubmitResponseInput struct {
	RequestID    uuid.UUID
	PharmacyID   uuid.UUID
	Availability string
}

type ResponseService interface {
	// Submit records a pharmacy's one-shot availability declaration. When the
	// pharmacy declares available, the chat channel is opened in the same
	// transaction, so a response with a chat_id always has a live chat behind
	// it. A second submission surfaces as domain.ErrDuplicateResponse; a
	// submission against a closed or overdue request as domain.ErrRequestClosed.
	Submit(dbc dbctx.Context, in SubmitResponseInput) (*domain.PharmacyResponse, *domain.ChatChannel, error)
	GetForPharmacy(dbc dbctx.Context, requestID, pharmacyID uuid.UUID) (*domain.PharmacyResponse, error)
	// ListForRequest returns the responses in arrival order. Only the request
	// owner may read them; callerID == uuid.Nil bypasses the check for
	// internal callers.
	ListForRequest(dbc dbctx.Context, requestID, callerID uuid.UUID) ([]*domain.PharmacyResponse, error)
}

type responseService struct {
	db        *gorm.DB
	log       *logger.Logger
	txRunner  db.TxRunner
	requests  request.RequestRepo
	responses request.ResponseRepo
	channels  chat.ChannelRepo
	messages  chat.MessageRepo
	users     user.UserRepo
	bus       bus.Bus
	push      PushService
}

func NewResponseService(
	gdb *gorm.DB,
	baseLog *logger.Logger,
	txRunner db.TxRunner,
	requestRepo request.RequestRepo,
	responseRepo request.ResponseRepo,
	channelRepo chat.ChannelRepo,
	messageRepo chat.MessageRepo,
	userRepo user.UserRepo,
	eventBus bus.Bus,
	pushService PushService,
) ResponseService {
	return &responseService{
		db:        gdb,
		log:       baseLog.With("service", "ResponseService"),
		txRunner:  txRunner,
		requests:  requestRepo,
		responses: responseRepo,
		channels:  channelRepo,
		messages:  messageRepo,
		users:     userRepo,
		bus:       eventBus,
		push:      pushService,
	}
}

func (s *responseService) Submit(dbc dbctx.Context, in SubmitResponseInput) (*domain.PharmacyResponse, *domain.ChatChannel, error) {
	if in.RequestID == uuid.Nil || in.PharmacyID == uuid.Nil {
		return nil, nil, fmt.Errorf("%w: missing request_id or pharmacy_id", domain.ErrValidation)
	}
	if in.Availability != domain.AvailabilityAvailable && in.Availability != domain.AvailabilityNotAvailable {
		return nil, nil, fmt.Errorf("%w: unknown availability %q", domain.ErrValidation, in.Availability)
	}

	pharmacy, err := s.users.GetByID(dbc, in.PharmacyID)
	if err != nil {
		return nil, nil, err
	}
	if pharmacy == nil || pharmacy.Role != domain.RolePharmacy || pharmacy.Pharmacy == nil {
		return nil, nil, fmt.Errorf("pharmacy %s: %w", in.PharmacyID, domain.ErrNotFound)
	}

	now := time.Now().UTC()
	var (
		resp    *domain.PharmacyResponse
		channel *domain.ChatChannel
		req     *domain.MedicineRequest
	)

	err = s.txRunner.InTx(dbc.Ctx, func(txc dbctx.Context) error {
		req, err = s.requests.GetByID(txc, in.RequestID)
		if err != nil {
			return err
		}
		if req == nil {
			return fmt.Errorf("request %s: %w", in.RequestID, domain.ErrNotFound)
		}
		if !req.Active(now) {
			// Flip an overdue row on the way out so the sweeper has less to do.
			if req.Status == domain.RequestStatusActive && req.ExpiredAt(now) {
				if _, closeErr := s.requests.Close(txc, req.ID, domain.ClosedReasonExpired, now); closeErr != nil {
					return closeErr
				}
			}
			return fmt.Errorf("request %s: %w", in.RequestID, domain.ErrRequestClosed)
		}

		distance := geo.DistanceKm(
			pharmacy.Pharmacy.Location.Lat, pharmacy.Pharmacy.Location.Lng,
			req.Location.Lat, req.Location.Lng,
		)

		resp = &domain.PharmacyResponse{
			ID:            uuid.New(),
			RequestID:     req.ID,
			PharmacyID:    pharmacy.ID,
			PharmacyName:  pharmacy.Pharmacy.PharmacyName,
			PharmacyPhone: pharmacy.Phone,
			PharmacyLocation: domain.Location{
				Lat:     pharmacy.Pharmacy.Location.Lat,
				Lng:     pharmacy.Pharmacy.Location.Lng,
				Geocode: pharmacy.Pharmacy.Location.Geocode,
			},
			DistanceKm:   distance,
			Availability: in.Availability,
			RespondedAt:  now,
		}

		if in.Availability == domain.AvailabilityAvailable {
			channel = &domain.ChatChannel{
				ID:           uuid.New(),
				RequestID:    req.ID,
				CustomerID:   req.CustomerID,
				CustomerName: req.CustomerName,
				PharmacyID:   pharmacy.ID,
				PharmacyName: pharmacy.Pharmacy.PharmacyName,
				IsActive:     true,
				NextSeq:      1,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := s.channels.Create(txc, channel); err != nil {
				return err
			}
			opening := &domain.ChatMessage{
				ID:         uuid.New(),
				ChannelID:  channel.ID,
				Seq:        0,
				SenderID:   domain.SystemSenderID,
				SenderRole: domain.SystemSenderID,
				Text:       fmt.Sprintf("%s has the requested medicine available.", pharmacy.Pharmacy.PharmacyName),
				Type:       domain.MessageTypeSystem,
				CreatedAt:  now,
			}
			if err := s.messages.Create(txc, opening); err != nil {
				return err
			}
			resp.ChatID = &channel.ID
		}

		if err := s.responses.Create(txc, resp); err != nil {
			return err
		}
		if err := s.requests.RecordResponse(txc, req.ID, now); err != nil {
			return err
		}
		return s.users.BumpPharmacyResponses(txc, pharmacy.ID)
	})
	if err != nil {
		return nil, nil, err
	}

	s.notifyCustomer(dbc, req, resp, channel)
	return resp, channel, nil
}

func (s *responseService) GetForPharmacy(dbc dbctx.Context, requestID, pharmacyID uuid.UUID) (*domain.PharmacyResponse, error) {
	return s.responses.GetForPharmacy(dbc, requestID, pharmacyID)
}

func (s *responseService) ListForRequest(dbc dbctx.Context, requestID, callerID uuid.UUID) ([]*domain.PharmacyResponse, error) {
	req, err := s.requests.GetByID(dbc, requestID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, fmt.Errorf("request %s: %w", requestID, domain.ErrNotFound)
	}
	if callerID != uuid.Nil && req.CustomerID != callerID {
		return nil, fmt.Errorf("request %s: %w", requestID, domain.ErrNotFound)
	}
	return s.responses.ListByRequest(dbc, requestID)
}

func (s *responseService) notifyCustomer(dbc dbctx.Context, req *domain.MedicineRequest, resp *domain.PharmacyResponse, channel *domain.ChatChannel) {
	if s.bus != nil {
		msg := realtime.Message{
			Channel: req.CustomerID.String(),
			Event:   realtime.EventResponseSubmitted,
			Data:    resp,
		}
		if err := s.bus.Publish(dbc.Ctx, msg); err != nil {
			s.log.Warn("bus publish failed", "event", msg.Event, "error", err)
		}
		if channel != nil {
			created := realtime.Message{
				Channel: req.CustomerID.String(),
				Event:   realtime.EventChatCreated,
				Data:    channel,
			}
			if err := s.bus.Publish(dbc.Ctx, created); err != nil {
				s.log.Warn("bus publish failed", "event", created.Event, "error", err)
			}
		}
	}

	if s.push == nil {
		return
	}
	customer, err := s.users.GetByID(dbc, req.CustomerID)
	if err != nil || customer == nil {
		return
	}
	title := "Pharmacy responded"
	body := fmt.Sprintf("%s is %s", resp.PharmacyName, resp.Availability)
	if resp.Availability == domain.AvailabilityAvailable {
		body = fmt.Sprintf("%s has your medicine (%.1f km away)", resp.PharmacyName, resp.DistanceKm)
	}
	s.push.Notify(dbc.Ctx, deviceTokens(customer), title, body, map[string]string{
		"request_id":  req.ID.String(),
		"response_id": resp.ID.String(),
	})
}

// deviceTokens decodes the jsonb token list; a malformed blob just means no
// push for that user.
func deviceTokens(u *domain.User) []string {
	if u == nil || len(u.FCMTokens) == 0 {
		return nil
	}
	var tokens []string
	if err := json.Unmarshal(u.FCMTokens, &tokens); err != nil {
		return nil
	}
	return tokens
}
