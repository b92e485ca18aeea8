package attendance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"presence/internal/apperror"
)

// maxSubmitBytes caps the submission body; the payload is four short fields.
const maxSubmitBytes = 4 << 10

// Submitter is the service surface used by Handler.
type Submitter interface {
	Submit(ctx context.Context, req *SubmitRequest) (Outcome, error)
	Recent(ctx context.Context, limit int) ([]Record, error)
}

// Handler exposes the attendance service over HTTP.
type Handler struct {
	service   Submitter
	listLimit int
}

// NewHandler creates a handler. listLimit caps GET /api/presences.
func NewHandler(service Submitter, listLimit int) *Handler {
	if listLimit <= 0 {
		listLimit = defaultListLimit
	}
	return &Handler{service: service, listLimit: listLimit}
}

func writeError(c *gin.Context, err error) {
	httpErr := apperror.ToHTTP(err)
	c.JSON(httpErr.Status, gin.H{"message": httpErr.Message})
}

// Submit handles POST /api/presence.
// 200 when accepted, 403 when refused, 400 on validation failure.
func (h *Handler) Submit(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSubmitBytes)
	raw, err := c.GetRawData()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(c, apperror.Wrap(err, apperror.CodeInvalidInput, "payload too large", http.StatusRequestEntityTooLarge))
			return
		}
		writeError(c, apperror.Invalid(MsgMissingData))
		return
	}
	req, err := decodeSubmitRequest(raw)
	if err != nil {
		writeError(c, apperror.Wrap(err, apperror.CodeInvalidInput, "invalid JSON payload", http.StatusBadRequest))
		return
	}

	out, err := h.service.Submit(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}

	status := http.StatusOK
	if out.Status == StatusRefused {
		status = http.StatusForbidden
	}
	c.JSON(status, out)
}

// List handles GET /api/presences?limit=N.
func (h *Handler) List(c *gin.Context) {
	limit := h.listLimit
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeError(c, apperror.Invalid("limit must be a positive integer"))
			return
		}
		limit = min(parsed, h.listLimit)
	}

	records, err := h.service.Recent(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"presences": records})
}

// decodeSubmitRequest returns nil for an empty or null body so the service can
// report the payload as missing.
func decodeSubmitRequest(raw []byte) (*SubmitRequest, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var req SubmitRequest
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return nil, err
	}
	return &req, nil
}
