package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pharmalink/pharmalink-backend/internal/domain"
	"github.com/pharmalink/pharmalink-backend/internal/platform/ctxutil"
	"github.com/pharmalink/pharmalink-backend/internal/platform/dbctx"
	"github.com/pharmalink/pharmalink-backend/internal/platform/logger"
	"github.com/pharmalink/pharmalink-backend/internal/realtime"
	"github.com/pharmalink/pharmalink-backend/internal/services"
)

type SSEHandler struct {
	log       *logger.Logger
	hub       *realtime.Hub
	chats     services.ChatService
	broadcast services.BroadcastService
	notifier  *services.Notifier
}

func NewSSEHandler(
	baseLog *logger.Logger,
	hub *realtime.Hub,
	chats services.ChatService,
	broadcast services.BroadcastService,
	notifier *services.Notifier,
) *SSEHandler {
	return &SSEHandler{
		log:       baseLog.With("handler", "SSEHandler"),
		hub:       hub,
		chats:     chats,
		broadcast: broadcast,
		notifier:  notifier,
	}
}

// GET /api/stream?chats=<id,...>&lat=&lng=&radius_km=
//
// One long-lived connection per app session. Every caller gets its personal
// channel plus the chats it participates in; a pharmacy passing coordinates
// also gets a live proximity query whose snapshots arrive as NearbySnapshot
// events on the same stream.
func (h *SSEHandler) Stream(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	client := h.hub.NewClient(rd.UserID)
	defer h.hub.RemoveClient(client)

	h.hub.AddChannel(client, rd.UserID.String())

	dbc := dbctx.Context{Ctx: c.Request.Context()}
	if raw := strings.TrimSpace(c.Query("chats")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			chatID, err := uuid.Parse(strings.TrimSpace(part))
			if err != nil {
				continue
			}
			// membership check; unknown or foreign chats are skipped silently
			if _, err := h.chats.Get(dbc, chatID, rd.UserID); err != nil {
				continue
			}
			h.hub.AddChannel(client, realtime.ChatChannelKey(chatID.String()))
		}
	}

	if rd.Role == domain.RolePharmacy && c.Query("lat") != "" {
		lat, latErr := strconv.ParseFloat(c.Query("lat"), 64)
		lng, lngErr := strconv.ParseFloat(c.Query("lng"), 64)
		if latErr != nil || lngErr != nil {
			RespondError(c, http.StatusBadRequest, "invalid_coordinates", nil)
			return
		}
		radiusKm, _ := strconv.ParseFloat(c.DefaultQuery("radius_km", "0"), 64)

		pharmacyID := rd.UserID
		streamCtx := c.Request.Context()
		unsubscribe, err := h.broadcast.Subscribe(lat, lng, radiusKm, func(snapshot []services.NearbyRequest) {
			h.hub.Broadcast(realtime.Message{
				Channel: pharmacyID.String(),
				Event:   realtime.EventNearbySnapshot,
				Data:    snapshot,
			})
			if h.notifier != nil {
				h.notifier.OnSnapshot(streamCtx, pharmacyID, snapshot)
			}
		})
		if err != nil {
			RespondDomainError(c, err)
			return
		}
		defer unsubscribe()
	}

	h.hub.ServeHTTP(c.Writer, c.Request, client)
}
