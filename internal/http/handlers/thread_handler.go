// Thread HTTP handlers.
//
// This file exposes REST endpoints for chat threads:
//   - POST   /threads                 (create)
//   - GET    /threads                 (list, paginated, ETag support)
//   - GET    /threads/{id}            (get)
//   - PUT    /threads/{id}/name       (rename)
//   - PUT    /threads/{id}/selection  (replace selected documentations)
//   - DELETE /threads/{id}            (delete with messages and fragments)
package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-docchat-backend/internal/domain"
	"github.com/tbourn/go-docchat-backend/internal/repo"
)

//
// DTOs
//

// CreateThreadRequest is the JSON payload for creating a thread.
type CreateThreadRequest struct {
	// SelectedDocumentation optionally scopes retrieval to these documentations.
	SelectedDocumentation []string `json:"selected_documentation"`
}

// UpdateSelectionRequest replaces a thread's selected documentations.
type UpdateSelectionRequest struct {
	SelectedDocumentation []string `json:"selected_documentation"`
}

// ListThreadsResponse wraps a page of threads and pagination information.
type ListThreadsResponse struct {
	Threads    []domain.Thread `json:"threads"`
	Pagination Pagination      `json:"pagination"`
}

//
// Handlers
//

// CreateThread godoc
// @ID          createThread
// @Summary     Create a new thread
// @Description Creates a thread named "New Chat" for the current user. Consumes one unit of the daily chat quota.
// @Tags        Threads
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       body       body    handlers.CreateThreadRequest  false  "Create thread payload"
// @Success     201  {object}  domain.Thread
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "Documentation belongs to another user"
// @Failure     429  {object}  handlers.ErrorResponse  "Daily chat limit reached"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /threads [post]
func (h *Handlers) CreateThread(c *gin.Context) {
	var req CreateThreadRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
			return
		}
	}
	th, err := h.threads.Create(c.Request.Context(), userID(c), req.SelectedDocumentation)
	if err != nil {
		chatError(c, err, ErrCodeCreateFailed)
		return
	}
	ok(c, http.StatusCreated, th)
}

// ListThreads godoc
// @ID          listThreads
// @Summary     List threads (paginated)
// @Description Returns a page of the user's threads, most recently active first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Threads
// @Produce     json
// @Param       X-User-ID      header  string  false "User ID (demo header)"       example(user123)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
// @Success     200  {object} handlers.ListThreadsResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /threads [get]
func (h *Handlers) ListThreads(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)
	p := pageQuery(c)

	scope := fmt.Sprintf("%s:%d:%d", uid, p.Number, p.Size)
	if notModified(c, "threads", scope, func() (int64, *time.Time, error) {
		return repo.ThreadsStats(ctx, h.db, uid)
	}) {
		return
	}

	items, total, err := h.threads.ListPage(ctx, uid, p.Number, p.Size)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListThreadsResponse{
		Threads:    items,
		Pagination: newPagination(p, total),
	})
}

// GetThread godoc
// @ID          getThread
// @Summary     Get a thread
// @Tags        Threads
// @Produce     json
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Thread ID (UUID)"  format(uuid)
// @Success     200  {object} domain.Thread
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Thread not found"
// @Router      /threads/{id} [get]
func (h *Handlers) GetThread(c *gin.Context) {
	id, okID := idParam(c, "id", "thread")
	if !okID {
		return
	}
	th, err := h.threads.Get(c.Request.Context(), userID(c), id)
	if err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, th)
}

// RenameThread godoc
// @ID          renameThread
// @Summary     Rename a thread
// @Description Updates the name of a thread owned by the current user. Named threads are no longer auto-titled.
// @Tags        Threads
// @Accept      json
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Thread ID (UUID)"  format(uuid)
// @Param       body       body    handlers.RenameRequest  true  "New name"
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Thread not found"
// @Router      /threads/{id}/name [put]
func (h *Handlers) RenameThread(c *gin.Context) {
	id, okID := idParam(c, "id", "thread")
	if !okID {
		return
	}
	var req RenameRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name required (1-255 chars)")
		return
	}
	if err := h.threads.Rename(c.Request.Context(), userID(c), id, req.Name); err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}
	noContent(c)
}

// UpdateThreadSelection godoc
// @ID          updateThreadSelection
// @Summary     Replace selected documentations
// @Tags        Threads
// @Accept      json
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Thread ID (UUID)"  format(uuid)
// @Param       body       body    handlers.UpdateSelectionRequest  true  "Selection"
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     403  {object} handlers.ErrorResponse "Documentation belongs to another user"
// @Failure     404  {object} handlers.ErrorResponse "Thread not found"
// @Router      /threads/{id}/selection [put]
func (h *Handlers) UpdateThreadSelection(c *gin.Context) {
	id, okID := idParam(c, "id", "thread")
	if !okID {
		return
	}
	var req UpdateSelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if err := h.threads.UpdateSelection(c.Request.Context(), userID(c), id, req.SelectedDocumentation); err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}
	noContent(c)
}

// DeleteThread godoc
// @ID          deleteThread
// @Summary     Delete a thread
// @Tags        Threads
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Thread ID (UUID)"  format(uuid)
// @Success     204  {string} string "No Content"
// @Failure     404  {object} handlers.ErrorResponse "Thread not found"
// @Router      /threads/{id} [delete]
func (h *Handlers) DeleteThread(c *gin.Context) {
	id, okID := idParam(c, "id", "thread")
	if !okID {
		return
	}
	if err := h.threads.Delete(c.Request.Context(), userID(c), id); err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}
	noContent(c)
}
