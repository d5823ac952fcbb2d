package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pharmalink/pharmalink-backend/internal/platform/ctxutil"
	"github.com/pharmalink/pharmalink-backend/internal/platform/dbctx"
	"github.com/pharmalink/pharmalink-backend/internal/services"
)

type ChatHandler struct {
	chats services.ChatService
}

func NewChatHandler(chats services.ChatService) *ChatHandler {
	return &ChatHandler{chats: chats}
}

// GET /api/chats
func (h *ChatHandler) ListMine(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	rows, err := h.chats.ListForUser(dbctx.Context{Ctx: c.Request.Context()}, rd.UserID, limit)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"chats": rows})
}

// GET /api/chats/:id
func (h *ChatHandler) Get(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_chat_id", err)
		return
	}
	channel, err := h.chats.Get(dbctx.Context{Ctx: c.Request.Context()}, id, rd.UserID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"chat": channel})
}

// GET /api/chats/:id/messages?after_seq=&limit=
func (h *ChatHandler) ListMessages(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_chat_id", err)
		return
	}
	afterSeq := int64(-1)
	if raw := c.Query("after_seq"); raw != "" {
		if v, perr := strconv.ParseInt(raw, 10, 64); perr == nil {
			afterSeq = v
		}
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "200"))

	rows, err := h.chats.ListMessages(dbctx.Context{Ctx: c.Request.Context()}, id, rd.UserID, afterSeq, limit)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"messages": rows})
}

type sendMessageBody struct {
	Text     string `json:"text"`
	Type     string `json:"type"`
	ImageURL string `json:"image_url"`
}

// POST /api/chats/:id/messages
func (h *ChatHandler) SendMessage(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_chat_id", err)
		return
	}
	var body sendMessageBody
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	row, err := h.chats.SendMessage(dbctx.Context{Ctx: c.Request.Context()}, services.SendMessageInput{
		ChatID:     id,
		SenderID:   rd.UserID.String(),
		SenderRole: rd.Role,
		Text:       body.Text,
		Type:       body.Type,
		ImageURL:   body.ImageURL,
	})
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"message": row})
}
