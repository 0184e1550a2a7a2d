// Message HTTP handlers.
//
// This file exposes REST endpoints for thread messages:
//   - POST /threads/{id}/messages   (append a user message and start the assistant stream)
//   - GET  /threads/{id}/messages   (list paginated messages for a thread)
//
// Handlers are transport-thin:
//   - validate & normalize inputs (including newline and length constraints)
//   - delegate to the ChatStreamService
//   - implement conditional responses (ETag) and idempotency semantics
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// result exists for (user, thread, key), the service returns that recorded
// turn and the handler sets `Idempotency-Replayed: true`.
package handlers

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-docchat-backend/internal/domain"
	"github.com/tbourn/go-docchat-backend/internal/http/middleware"
	"github.com/tbourn/go-docchat-backend/internal/repo"
)

//
// DTOs
//

// PostMessageRequest is the JSON payload for sending a user message.
//
// Content is normalized by the handler (line endings and excessive blank lines)
// before being passed to the service layer. When SelectedDocumentation is
// present it replaces the thread's selection before the turn starts.
type PostMessageRequest struct {
	// Content is the user prompt. It must be non-empty.
	Content string `json:"content" binding:"required,min=1" example:"How do I configure the ingestion workers?"`
	// SelectedDocumentation optionally patches the thread selection.
	SelectedDocumentation *[]string `json:"selected_documentation,omitempty"`
}

// PostMessageResponse describes a started (or replayed) turn. The assistant
// message is a placeholder; its text arrives on the stream.
type PostMessageResponse struct {
	UserMessage      *domain.Message `json:"user_message,omitempty"`
	AssistantMessage *domain.Message `json:"assistant_message"`
	StreamID         string          `json:"stream_id" example:"5a0c6a0e-8a53-4d83-9d4e-3b7f5f0f3a11"`
}

// ListMessagesResponse contains a page of thread messages and pagination metadata.
type ListMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

//
// Helpers
//

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent normalizes user text for consistent downstream behavior:
//   - converts CRLF/CR to LF,
//   - collapses runs of 3+ LFs to exactly two (paragraph separation),
//   - trims surrounding whitespace.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// maxPromptRunes returns the configured prompt cap, or a conservative
// fallback when the service leaves it unset.
func (h *Handlers) maxPromptRunes() int {
	const fallback = 4000
	if h.chat != nil && h.chat.MaxPromptRunes > 0 {
		return h.chat.MaxPromptRunes
	}
	return fallback
}

// idempotencyKey prefers the key validated by middleware and falls back to
// the raw header when no validator is mounted.
func idempotencyKey(c *gin.Context) string {
	if k, ok := middleware.GetIdempotencyKey(c); ok {
		return k
	}
	return strings.TrimSpace(c.GetHeader(middleware.HeaderIdempotencyKey))
}

//
// Handlers
//

// PostMessage godoc
// @ID          postMessage
// @Summary     Send a message and start the assistant reply
// @Description Appends a user message, creates a streaming assistant placeholder and schedules generation.
// @Description Follow the reply on /streams/{stream_id}. Supports idempotency via the Idempotency-Key header.
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Param       X-User-ID        header  string  false "User ID (demo header)"  example(user123)
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"
// @Param       id               path    string  true  "Thread ID (UUID)"  format(uuid)
// @Param       body             body    handlers.PostMessageRequest  true  "User message payload"
// @Success     202  {object}  handlers.PostMessageResponse  "Turn started"
// @Success     200  {object}  handlers.PostMessageResponse  "Replayed turn"
// @Failure     400  {object}  handlers.ErrorResponse        "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse        "Thread not found"
// @Failure     429  {object}  handlers.ErrorResponse        "Daily chat limit reached"
// @Failure     500  {object}  handlers.ErrorResponse        "Internal error"
// @Router      /threads/{id}/messages [post]
func (h *Handlers) PostMessage(c *gin.Context) {
	threadID, okID := idParam(c, "id", "thread")
	if !okID {
		return
	}

	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}

	// Sanitize + early size cap to fail fast at the edge.
	content := sanitizeContent(req.Content)
	maxRunes := h.maxPromptRunes()
	if utf8.RuneCountInString(content) > maxRunes {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("content too long: max %d runes", maxRunes))
		return
	}
	if content == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}

	res, err := h.chat.SendMessage(c.Request.Context(), userID(c), threadID, content, req.SelectedDocumentation, idempotencyKey(c))
	if err != nil {
		chatError(c, err, ErrCodeSendFailed)
		return
	}

	resp := PostMessageResponse{
		UserMessage:      res.UserMessage,
		AssistantMessage: res.AssistantMessage,
		StreamID:         res.StreamID,
	}
	if res.Replayed {
		c.Header("Idempotency-Replayed", "true")
		ok(c, http.StatusOK, resp)
		return
	}
	ok(c, http.StatusAccepted, resp)
}

// ListMessages godoc
// @ID          listMessages
// @Summary     List messages in a thread
// @Description Returns a page of messages for the given thread, newest first. Supports weak ETag via If-None-Match.
// @Tags        Messages
// @Produce     json
// @Param       X-User-ID      header  string  false "User ID (demo header)"  example(user123)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       id             path    string  true  "Thread ID (UUID)"  format(uuid)
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object} handlers.ListMessagesResponse
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Thread not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /threads/{id}/messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	threadID, okID := idParam(c, "id", "thread")
	if !okID {
		return
	}
	uid := userID(c)

	// Ownership first so ETags never leak another user's activity.
	if _, err := h.threads.Get(ctx, uid, threadID); err != nil {
		serviceError(c, err, ErrCodeListFailed)
		return
	}

	p := pageQuery(c)
	scope := fmt.Sprintf("%s:%d:%d", threadID, p.Number, p.Size)
	if notModified(c, "messages", scope, func() (int64, *time.Time, error) {
		return repo.MessagesStats(ctx, h.db, threadID)
	}) {
		return
	}

	items, total, err := h.chat.ListMessages(ctx, uid, threadID, p.Number, p.Size)
	if err != nil {
		serviceError(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, ListMessagesResponse{
		Messages:   items,
		Pagination: newPagination(p, total),
	})
}
