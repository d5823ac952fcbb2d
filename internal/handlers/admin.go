package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pharmalink/pharmalink-backend/internal/data/repos/stats"
	"github.com/pharmalink/pharmalink-backend/internal/platform/dbctx"
	"github.com/pharmalink/pharmalink-backend/internal/services"
)

// AdminHandler serves the ops dashboard: aggregate counters and raw listings.
// Access is fenced by a shared key, not user auth.
type AdminHandler struct {
	adminKey string
	stats    stats.StatsRepo
	requests services.RequestService
	accounts services.AccountService
}

func NewAdminHandler(
	adminKey string,
	statsRepo stats.StatsRepo,
	requests services.RequestService,
	accounts services.AccountService,
) *AdminHandler {
	return &AdminHandler{
		adminKey: adminKey,
		stats:    statsRepo,
		requests: requests,
		accounts: accounts,
	}
}

// RequireKey rejects calls without the X-Admin-Key header. An empty
// configured key disables the whole surface.
func (h *AdminHandler) RequireKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.adminKey == "" || c.GetHeader("X-Admin-Key") != h.adminKey {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// GET /api/admin/stats
func (h *AdminHandler) Stats(c *gin.Context) {
	row, err := h.stats.Get(dbctx.Context{Ctx: c.Request.Context()})
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"stats": row})
}

// GET /api/admin/requests?status=&limit=
func (h *AdminHandler) ListRequests(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	rows, err := h.requests.ListAll(dbctx.Context{Ctx: c.Request.Context()}, c.Query("status"), limit)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"requests": rows})
}

// GET /api/admin/users?role=&limit=
func (h *AdminHandler) ListUsers(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	rows, err := h.accounts.ListUsers(dbctx.Context{Ctx: c.Request.Context()}, c.Query("role"), limit)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"users": rows})
}
