package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pharmalink/pharmalink-backend/internal/platform/ctxutil"
	"github.com/pharmalink/pharmalink-backend/internal/platform/dbctx"
	"github.com/pharmalink/pharmalink-backend/internal/services"
)

type AuthHandler struct {
	auth     services.AuthService
	accounts services.AccountService
}

func NewAuthHandler(auth services.AuthService, accounts services.AccountService) *AuthHandler {
	return &AuthHandler{auth: auth, accounts: accounts}
}

type registerBody struct {
	Role        string `json:"role" binding:"required"`
	Phone       string `json:"phone" binding:"required"`
	Password    string `json:"password" binding:"required"`
	DisplayName string `json:"display_name" binding:"required"`
	Email       string `json:"email"`

	PharmacyName  string  `json:"pharmacy_name"`
	LicenseNumber string  `json:"license_number"`
	Lat           float64 `json:"lat"`
	Lng           float64 `json:"lng"`
}

// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var body registerBody
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	user, token, err := h.auth.Register(dbctx.Context{Ctx: c.Request.Context()}, services.RegisterInput{
		Role:          body.Role,
		Phone:         body.Phone,
		Password:      body.Password,
		DisplayName:   body.DisplayName,
		Email:         body.Email,
		PharmacyName:  body.PharmacyName,
		LicenseNumber: body.LicenseNumber,
		Lat:           body.Lat,
		Lng:           body.Lng,
	})
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"user": user, "token": token})
}

type loginBody struct {
	Phone    string `json:"phone" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginBody
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	user, token, err := h.auth.Login(dbctx.Context{Ctx: c.Request.Context()}, body.Phone, body.Password)
	if err != nil {
		RespondError(c, http.StatusUnauthorized, "invalid_credentials", err)
		return
	}
	RespondOK(c, gin.H{"user": user, "token": token})
}

// GET /api/me
func (h *AuthHandler) Me(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	user, err := h.accounts.GetProfile(dbctx.Context{Ctx: c.Request.Context()}, rd.UserID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"user": user})
}

type deviceTokenBody struct {
	Token string `json:"token" binding:"required"`
}

// POST /api/me/device-tokens
func (h *AuthHandler) AddDeviceToken(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	var body deviceTokenBody
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if err := h.accounts.AddDeviceToken(dbctx.Context{Ctx: c.Request.Context()}, rd.UserID, body.Token); err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"ok": true})
}

// DELETE /api/me/device-tokens
func (h *AuthHandler) RemoveDeviceToken(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	var body deviceTokenBody
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if err := h.accounts.RemoveDeviceToken(dbctx.Context{Ctx: c.Request.Context()}, rd.UserID, body.Token); err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"ok": true})
}
