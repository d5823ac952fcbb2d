package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pharmalink/pharmalink-backend/internal/domain"
	"github.com/pharmalink/pharmalink-backend/internal/platform/ctxutil"
	"github.com/pharmalink/pharmalink-backend/internal/platform/dbctx"
	"github.com/pharmalink/pharmalink-backend/internal/services"
)

type RequestHandler struct {
	requests  services.RequestService
	responses services.ResponseService
	broadcast services.BroadcastService
	accounts  services.AccountService
}

func NewRequestHandler(
	requests services.RequestService,
	responses services.ResponseService,
	broadcast services.BroadcastService,
	accounts services.AccountService,
) *RequestHandler {
	return &RequestHandler{
		requests:  requests,
		responses: responses,
		broadcast: broadcast,
		accounts:  accounts,
	}
}

type createRequestBody struct {
	RequestType           string   `json:"request_type" binding:"required"`
	PrescriptionImageURLs []string `json:"prescription_image_urls"`
	MedicineText          string   `json:"medicine_text"`
	Lat                   float64  `json:"lat"`
	Lng                   float64  `json:"lng"`
}

// POST /api/requests
func (h *RequestHandler) Create(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	var body createRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}

	me, err := h.accounts.GetProfile(dbc, rd.UserID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}

	row, err := h.requests.Create(dbc, services.CreateRequestInput{
		CustomerID:            me.ID,
		CustomerName:          me.DisplayName,
		CustomerPhone:         me.Phone,
		RequestType:           body.RequestType,
		PrescriptionImageURLs: body.PrescriptionImageURLs,
		MedicineText:          body.MedicineText,
		Lat:                   body.Lat,
		Lng:                   body.Lng,
	})
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"request": row})
}

// GET /api/requests/:id
func (h *RequestHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request_id", err)
		return
	}
	row, err := h.requests.Get(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"request": row})
}

// POST /api/requests/:id/close
func (h *RequestHandler) Close(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request_id", err)
		return
	}
	row, err := h.requests.Close(dbctx.Context{Ctx: c.Request.Context()}, id, rd.UserID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"request": row})
}

// GET /api/requests (own requests, newest first)
func (h *RequestHandler) ListMine(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	rows, err := h.requests.ListForCustomer(dbctx.Context{Ctx: c.Request.Context()}, rd.UserID, limit)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"requests": rows})
}

// GET /api/requests/nearby?lat=&lng=&radius_km=
// One-shot proximity query for pharmacies that poll instead of streaming.
func (h *RequestHandler) ListNearby(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.Role != domain.RolePharmacy {
		RespondError(c, http.StatusForbidden, "forbidden", nil)
		return
	}
	lat, latErr := strconv.ParseFloat(c.Query("lat"), 64)
	lng, lngErr := strconv.ParseFloat(c.Query("lng"), 64)
	if latErr != nil || lngErr != nil {
		RespondError(c, http.StatusBadRequest, "invalid_coordinates", nil)
		return
	}
	radiusKm, _ := strconv.ParseFloat(c.DefaultQuery("radius_km", "0"), 64)

	rows, err := h.broadcast.Query(dbctx.Context{Ctx: c.Request.Context()}, lat, lng, radiusKm)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"requests": rows})
}

type submitResponseBody struct {
	Availability string `json:"availability" binding:"required"`
}

// POST /api/requests/:id/responses
func (h *RequestHandler) SubmitResponse(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.Role != domain.RolePharmacy {
		RespondError(c, http.StatusForbidden, "forbidden", nil)
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request_id", err)
		return
	}
	var body submitResponseBody
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	resp, channel, err := h.responses.Submit(dbctx.Context{Ctx: c.Request.Context()}, services.SubmitResponseInput{
		RequestID:    id,
		PharmacyID:   rd.UserID,
		Availability: body.Availability,
	})
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"response": resp, "chat": channel})
}

// GET /api/requests/:id/responses
func (h *RequestHandler) ListResponses(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request_id", err)
		return
	}
	rows, err := h.responses.ListForRequest(dbctx.Context{Ctx: c.Request.Context()}, id, rd.UserID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"responses": rows})
}

// GET /api/requests/:id/responses/mine
// A pharmacy checking whether it already answered.
func (h *RequestHandler) GetMyResponse(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.Role != domain.RolePharmacy {
		RespondError(c, http.StatusForbidden, "forbidden", nil)
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request_id", err)
		return
	}
	row, err := h.responses.GetForPharmacy(dbctx.Context{Ctx: c.Request.Context()}, id, rd.UserID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"response": row})
}
