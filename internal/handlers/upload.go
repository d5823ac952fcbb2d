package handlers

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pharmalink/pharmalink-backend/internal/platform/ctxutil"
	"github.com/pharmalink/pharmalink-backend/internal/services"
)

const maxUploadBytes = 10 << 20 // 10MB

type UploadHandler struct {
	bucket services.BucketService
}

func NewUploadHandler(bucket services.BucketService) *UploadHandler {
	return &UploadHandler{bucket: bucket}
}

// POST /api/uploads  (multipart, field "file", optional "kind")
//
// The client uploads first, then references the returned URL in a request or
// chat message. Keys are namespaced by kind and owner so nothing collides.
func (h *UploadHandler) Upload(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	if h.bucket == nil {
		RespondError(c, http.StatusServiceUnavailable, "uploads_disabled", fmt.Errorf("object storage not configured"))
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "missing_file", err)
		return
	}
	if fileHeader.Size > maxUploadBytes {
		RespondError(c, http.StatusBadRequest, "file_too_large", fmt.Errorf("max %d bytes", maxUploadBytes))
		return
	}

	kind := c.DefaultPostForm("kind", "prescription")
	switch kind {
	case "prescription", "chat":
	default:
		RespondError(c, http.StatusBadRequest, "invalid_kind", fmt.Errorf("unknown kind %q", kind))
		return
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".webp", ".pdf":
	default:
		RespondError(c, http.StatusBadRequest, "invalid_file_type", fmt.Errorf("unsupported extension %q", ext))
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		RespondError(c, http.StatusBadRequest, "unreadable_file", err)
		return
	}
	defer f.Close()

	key := fmt.Sprintf("%s/%s/%d_%s%s", kind, rd.UserID, time.Now().UnixNano(), uuid.NewString()[:8], ext)
	contentType := fileHeader.Header.Get("Content-Type")

	url, err := h.bucket.UploadFile(c.Request.Context(), key, contentType, f)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "upload_failed", err)
		return
	}
	RespondOK(c, gin.H{"url": url, "key": key})
}
