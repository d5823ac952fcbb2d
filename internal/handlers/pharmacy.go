package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pharmalink/pharmalink-backend/internal/domain"
	"github.com/pharmalink/pharmalink-backend/internal/platform/ctxutil"
	"github.com/pharmalink/pharmalink-backend/internal/platform/dbctx"
	"github.com/pharmalink/pharmalink-backend/internal/services"
)

type PharmacyHandler struct {
	accounts services.AccountService
}

func NewPharmacyHandler(accounts services.AccountService) *PharmacyHandler {
	return &PharmacyHandler{accounts: accounts}
}

type updatePharmacyBody struct {
	PharmacyName  *string  `json:"pharmacy_name"`
	LicenseNumber *string  `json:"license_number"`
	Lat           *float64 `json:"lat"`
	Lng           *float64 `json:"lng"`
}

// PATCH /api/pharmacy/profile
func (h *PharmacyHandler) UpdateProfile(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.Role != domain.RolePharmacy {
		RespondError(c, http.StatusForbidden, "forbidden", nil)
		return
	}
	var body updatePharmacyBody
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	user, err := h.accounts.UpdatePharmacyProfile(dbctx.Context{Ctx: c.Request.Context()}, rd.UserID, services.UpdatePharmacyInput{
		PharmacyName:  body.PharmacyName,
		LicenseNumber: body.LicenseNumber,
		Lat:           body.Lat,
		Lng:           body.Lng,
	})
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"user": user})
}

type onlineBody struct {
	Online *bool `json:"online" binding:"required"`
}

// POST /api/pharmacy/online
func (h *PharmacyHandler) SetOnline(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.Role != domain.RolePharmacy {
		RespondError(c, http.StatusForbidden, "forbidden", nil)
		return
	}
	var body onlineBody
	if err := c.ShouldBindJSON(&body); err != nil || body.Online == nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if err := h.accounts.SetPharmacyOnline(dbctx.Context{Ctx: c.Request.Context()}, rd.UserID, *body.Online); err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"ok": true})
}
