// Package handlers exposes the REST surface for documentations, uploads,
// threads, messages and chat streams.
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses
// and streamed observers).
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-docchat-backend/internal/blob"
	"github.com/tbourn/go-docchat-backend/internal/http/middleware"
	"github.com/tbourn/go-docchat-backend/internal/services"
	"github.com/tbourn/go-docchat-backend/internal/utils"
)

//
// Handler wiring
//

// Handlers groups HTTP endpoints over the application services.
type Handlers struct {
	docs    *services.DocumentationService
	threads *services.ThreadService
	chat    *services.ChatStreamService
	db      *gorm.DB
}

// New constructs and returns a Handlers instance bound to the given services.
// db is used for the cheap list statistics behind weak ETags.
func New(db *gorm.DB, docs *services.DocumentationService, threads *services.ThreadService, chat *services.ChatStreamService) *Handlers {
	return &Handlers{docs: docs, threads: threads, chat: chat, db: db}
}

// userID is the caller identity resolved by middleware.Identity.
func userID(c *gin.Context) string { return middleware.UserID(c) }

//
// DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(p utils.Page, total int64) Pagination {
	return Pagination{
		Page:       p.Number,
		PageSize:   p.Size,
		Total:      total,
		TotalPages: p.TotalPages(total),
		HasNext:    p.HasNext(total),
	}
}

// MessageResponse is a plain acknowledgement body.
type MessageResponse struct {
	Message string `json:"message" example:"Successfully add 2 file(s)"`
}

//
// Helpers
//

// pageQuery reads the page and page_size query params.
func pageQuery(c *gin.Context) utils.Page {
	return utils.ParsePage(c.Query("page"), c.Query("page_size"))
}

// notModified sets a weak ETag built from (kind, scope, count, maxTS) and
// reports whether the request's If-None-Match already matches it. Stats
// failures skip the ETag (best effort).
func notModified(c *gin.Context, kind, scope string, stats func() (int64, *time.Time, error)) bool {
	count, maxTS, err := stats()
	if err != nil {
		return false
	}
	var ts int64
	if maxTS != nil {
		ts = maxTS.Unix()
	}
	etag := fmt.Sprintf(`W/"%s:%s:%d:%d"`, kind, scope, count, ts)
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return true
	}
	return false
}

// serviceError maps service sentinels to the error envelope. Unknown errors
// become a 500 carrying fallbackCode.
func serviceError(c *gin.Context, err error, fallbackCode string) {
	switch {
	case errors.Is(err, services.ErrDocumentationNotFound),
		errors.Is(err, services.ErrUnitNotFound),
		errors.Is(err, services.ErrWebLinksNotFound),
		errors.Is(err, services.ErrThreadNotFound),
		errors.Is(err, services.ErrMessageNotFound),
		errors.Is(err, services.ErrStreamNotFound),
		errors.Is(err, blob.ErrNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, services.ErrNotOwner):
		fail(c, http.StatusForbidden, ErrCodeForbidden, err.Error())
	case errors.Is(err, services.ErrInsufficientCredits):
		fail(c, http.StatusPaymentRequired, ErrCodeInsufficientCredits, err.Error())
	case errors.Is(err, services.ErrQuotaExceeded):
		fail(c, http.StatusTooManyRequests, ErrCodeQuotaExceeded, err.Error())
	case errors.Is(err, blob.ErrTooLarge):
		fail(c, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, err.Error())
	case errors.Is(err, services.ErrWrongType),
		errors.Is(err, services.ErrNoFiles),
		errors.Is(err, services.ErrInvalidFileName),
		errors.Is(err, services.ErrInvalidURL),
		errors.Is(err, services.ErrEmptyPrompt),
		errors.Is(err, services.ErrTooLong),
		errors.Is(err, blob.ErrInvalidKey):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	default:
		fail(c, http.StatusInternalServerError, fallbackCode, err.Error())
	}
}

// chatError is serviceError for chat quota consumers: an exhausted quota is
// reported with the user-facing daily limit text.
func chatError(c *gin.Context, err error, fallbackCode string) {
	if errors.Is(err, services.ErrQuotaExceeded) {
		fail(c, http.StatusTooManyRequests, ErrCodeQuotaExceeded, services.QuotaMessageChats)
		return
	}
	serviceError(c, err, fallbackCode)
}
