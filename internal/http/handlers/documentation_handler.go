// Documentation HTTP handlers.
//
// This file exposes REST endpoints for documentations and their units:
//   - POST   /documentations/files                       (create from uploaded files)
//   - POST   /documentations/web                         (create from a site map)
//   - GET    /documentations                             (list, paginated, ETag support)
//   - GET    /documentations/options                     (id/name/type pick list)
//   - GET    /documentations/{id}                        (get)
//   - PUT    /documentations/{id}/name                   (rename)
//   - DELETE /documentations/{id}                        (delete with cascade)
//   - GET    /documentations/{id}/web                    (site metadata and links)
//   - GET    /documentations/{id}/files                  (list file units)
//   - POST   /documentations/{id}/files                  (add files)
//   - POST   /documentations/{id}/files/{fileId}/rescan  (rescan a file)
//   - DELETE /documentations/{id}/files/{fileId}         (delete a file)
//   - GET    /documentations/{id}/pages                  (list page units)
//   - POST   /documentations/{id}/pages                  (scrape one page)
//   - POST   /documentations/{id}/pages/scan-all         (scrape every unscanned link)
//   - DELETE /documentations/{id}/pages?url=             (delete a link and its page)
//   - POST   /uploads                                    (multipart upload to blob storage)
package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-docchat-backend/internal/domain"
	"github.com/tbourn/go-docchat-backend/internal/repo"
	"github.com/tbourn/go-docchat-backend/internal/services"
)

//
// DTOs
//

// CreateFilesDocumentationRequest registers previously uploaded files as a
// new documentation.
type CreateFilesDocumentationRequest struct {
	Name  string               `json:"name" example:"Runbooks"`
	Files []services.FileInput `json:"files" binding:"required"`
}

// CreateWebDocumentationRequest maps a site into a new web documentation.
type CreateWebDocumentationRequest struct {
	URL string `json:"url" binding:"required" example:"https://docs.example.com"`
}

// AddFilesRequest registers more uploaded files on a files documentation.
type AddFilesRequest struct {
	Files []services.FileInput `json:"files" binding:"required"`
}

// RenameRequest is the JSON payload for renaming a resource.
type RenameRequest struct {
	Name string `json:"name" binding:"required,min=1,max=255" example:"Platform docs"`
}

// StartPageRequest schedules one page of a web documentation.
type StartPageRequest struct {
	URL   string `json:"url" binding:"required" example:"https://docs.example.com/install"`
	Title string `json:"title" example:"Install"`
}

// ScanAllResponse reports how many pages were scheduled.
type ScanAllResponse struct {
	Scheduled int `json:"scheduled" example:"12"`
}

// ListDocumentationsResponse wraps a page of documentations.
type ListDocumentationsResponse struct {
	Documentations []domain.Documentation `json:"documentations"`
	Pagination     Pagination             `json:"pagination"`
}

// OptionsResponse lists documentation pick-list entries.
type OptionsResponse struct {
	Options []repo.DocumentationOption `json:"options"`
}

// WebInfoResponse carries site metadata and the crawled link list.
type WebInfoResponse struct {
	Info  *domain.WebInfo  `json:"info"`
	Links *domain.WebLinks `json:"links"`
}

// FilesResponse lists file units.
type FilesResponse struct {
	Files []domain.FileDocument `json:"files"`
}

// PagesResponse lists page units.
type PagesResponse struct {
	Pages []domain.PageDocument `json:"pages"`
}

// UploadResponse lists stored uploads ready for registration.
type UploadResponse struct {
	Files []services.FileInput `json:"files"`
}

//
// Helpers
//

// idParam returns the named path parameter when it is a UUID, else responds
// 400 and returns false.
func idParam(c *gin.Context, name, label string) (string, bool) {
	id := c.Param(name)
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, label+" id must be a UUID")
		return "", false
	}
	return id, true
}

//
// Handlers
//

// CreateFilesDocumentation godoc
// @ID          createFilesDocumentation
// @Summary     Create a files documentation
// @Description Registers uploaded files as a documentation and schedules their ingestion.
// @Tags        Documentations
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       body       body    handlers.CreateFilesDocumentationRequest  true  "Files to register"
// @Success     201  {object}  domain.Documentation
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     402  {object}  handlers.ErrorResponse  "Insufficient credits"
// @Failure     429  {object}  handlers.ErrorResponse  "Quota exceeded"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /documentations/files [post]
func (h *Handlers) CreateFilesDocumentation(c *gin.Context) {
	var req CreateFilesDocumentationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	doc, err := h.docs.CreateFilesDocumentation(c.Request.Context(), userID(c), strings.TrimSpace(req.Name), req.Files)
	if err != nil {
		serviceError(c, err, ErrCodeCreateFailed)
		return
	}
	ok(c, http.StatusCreated, doc)
}

// CreateWebDocumentation godoc
// @ID          createWebDocumentation
// @Summary     Create a web documentation
// @Description Maps the site at url and stores it as a draft documentation with its link list.
// @Tags        Documentations
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       body       body    handlers.CreateWebDocumentationRequest  true  "Site to map"
// @Success     201  {object}  domain.Documentation
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     429  {object}  handlers.ErrorResponse  "Quota exceeded"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /documentations/web [post]
func (h *Handlers) CreateWebDocumentation(c *gin.Context) {
	var req CreateWebDocumentationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "url required")
		return
	}
	doc, err := h.docs.CreateWebDocumentation(c.Request.Context(), userID(c), req.URL)
	if err != nil {
		serviceError(c, err, ErrCodeCreateFailed)
		return
	}
	ok(c, http.StatusCreated, doc)
}

// ListDocumentations godoc
// @ID          listDocumentations
// @Summary     List documentations (paginated)
// @Description Returns a page of the user's documentations. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Documentations
// @Produce     json
// @Param       X-User-ID      header  string  false "User ID (demo header)"       example(user123)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
// @Success     200  {object} handlers.ListDocumentationsResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /documentations [get]
func (h *Handlers) ListDocumentations(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)
	p := pageQuery(c)

	scope := fmt.Sprintf("%s:%d:%d", uid, p.Number, p.Size)
	if notModified(c, "documentations", scope, func() (int64, *time.Time, error) {
		return repo.DocumentationsStats(ctx, h.db, uid)
	}) {
		return
	}

	items, total, err := h.docs.ListPage(ctx, uid, p.Number, p.Size)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListDocumentationsResponse{
		Documentations: items,
		Pagination:     newPagination(p, total),
	})
}

// DocumentationOptions godoc
// @ID          documentationOptions
// @Summary     Documentation pick list
// @Tags        Documentations
// @Produce     json
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Success     200  {object} handlers.OptionsResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /documentations/options [get]
func (h *Handlers) DocumentationOptions(c *gin.Context) {
	opts, err := h.docs.Options(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, OptionsResponse{Options: opts})
}

// GetDocumentation godoc
// @ID          getDocumentation
// @Summary     Get a documentation
// @Tags        Documentations
// @Produce     json
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Documentation ID (UUID)"  format(uuid)
// @Success     200  {object} domain.Documentation
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Documentation not found"
// @Router      /documentations/{id} [get]
func (h *Handlers) GetDocumentation(c *gin.Context) {
	id, okID := idParam(c, "id", "documentation")
	if !okID {
		return
	}
	doc, err := h.docs.Get(c.Request.Context(), userID(c), id)
	if err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, doc)
}

// RenameDocumentation godoc
// @ID          renameDocumentation
// @Summary     Rename a documentation
// @Tags        Documentations
// @Accept      json
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Documentation ID (UUID)"  format(uuid)
// @Param       body       body    handlers.RenameRequest  true  "New name"
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Documentation not found"
// @Router      /documentations/{id}/name [put]
func (h *Handlers) RenameDocumentation(c *gin.Context) {
	id, okID := idParam(c, "id", "documentation")
	if !okID {
		return
	}
	var req RenameRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name required (1-255 chars)")
		return
	}
	if err := h.docs.Rename(c.Request.Context(), userID(c), id, req.Name); err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}
	noContent(c)
}

// DeleteDocumentation godoc
// @ID          deleteDocumentation
// @Summary     Delete a documentation
// @Description Removes the documentation with its units, chunks, web rows and blobs, and drops it from thread selections.
// @Tags        Documentations
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Documentation ID (UUID)"  format(uuid)
// @Success     204  {string} string "No Content"
// @Failure     404  {object} handlers.ErrorResponse "Documentation not found"
// @Router      /documentations/{id} [delete]
func (h *Handlers) DeleteDocumentation(c *gin.Context) {
	id, okID := idParam(c, "id", "documentation")
	if !okID {
		return
	}
	if err := h.docs.DeleteDocumentation(c.Request.Context(), userID(c), id); err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}
	noContent(c)
}

// GetWebInfo godoc
// @ID          getWebInfo
// @Summary     Site metadata and link list
// @Tags        Documentations
// @Produce     json
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Documentation ID (UUID)"  format(uuid)
// @Success     200  {object} handlers.WebInfoResponse
// @Failure     404  {object} handlers.ErrorResponse "Not found"
// @Router      /documentations/{id}/web [get]
func (h *Handlers) GetWebInfo(c *gin.Context) {
	id, okID := idParam(c, "id", "documentation")
	if !okID {
		return
	}
	info, links, err := h.docs.WebInfo(c.Request.Context(), userID(c), id)
	if err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, WebInfoResponse{Info: info, Links: links})
}

// ListFiles godoc
// @ID          listFiles
// @Summary     List file units
// @Tags        Documentations
// @Produce     json
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Documentation ID (UUID)"  format(uuid)
// @Success     200  {object} handlers.FilesResponse
// @Failure     404  {object} handlers.ErrorResponse "Documentation not found"
// @Router      /documentations/{id}/files [get]
func (h *Handlers) ListFiles(c *gin.Context) {
	id, okID := idParam(c, "id", "documentation")
	if !okID {
		return
	}
	files, err := h.docs.ListFiles(c.Request.Context(), userID(c), id)
	if err != nil {
		serviceError(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, FilesResponse{Files: files})
}

// AddFiles godoc
// @ID          addFiles
// @Summary     Add files to a documentation
// @Tags        Documentations
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Documentation ID (UUID)"  format(uuid)
// @Param       body       body    handlers.AddFilesRequest  true  "Files to register"
// @Success     200  {object} handlers.MessageResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     402  {object} handlers.ErrorResponse "Insufficient credits"
// @Failure     404  {object} handlers.ErrorResponse "Documentation not found"
// @Router      /documentations/{id}/files [post]
func (h *Handlers) AddFiles(c *gin.Context) {
	id, okID := idParam(c, "id", "documentation")
	if !okID {
		return
	}
	var req AddFilesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	n, err := h.docs.AddFiles(c.Request.Context(), userID(c), id, req.Files)
	if err != nil {
		serviceError(c, err, ErrCodeCreateFailed)
		return
	}
	ok(c, http.StatusOK, MessageResponse{Message: fmt.Sprintf("Successfully add %d file(s)", n)})
}

// RescanFile godoc
// @ID          rescanFile
// @Summary     Rescan a file
// @Description Resets a file that is not completed back to starting and schedules it.
// @Tags        Documentations
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Documentation ID (UUID)"  format(uuid)
// @Param       fileId     path    string  true  "File ID (UUID)"           format(uuid)
// @Success     202  {string} string "Accepted"
// @Failure     402  {object} handlers.ErrorResponse "Insufficient credits"
// @Failure     404  {object} handlers.ErrorResponse "Not found"
// @Router      /documentations/{id}/files/{fileId}/rescan [post]
func (h *Handlers) RescanFile(c *gin.Context) {
	id, okID := idParam(c, "id", "documentation")
	if !okID {
		return
	}
	fileID, okID := idParam(c, "fileId", "file")
	if !okID {
		return
	}
	if err := h.docs.RescanFile(c.Request.Context(), userID(c), id, fileID); err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}
	c.Status(http.StatusAccepted)
}

// DeleteFile godoc
// @ID          deleteFile
// @Summary     Delete a file
// @Tags        Documentations
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Documentation ID (UUID)"  format(uuid)
// @Param       fileId     path    string  true  "File ID (UUID)"           format(uuid)
// @Success     204  {string} string "No Content"
// @Failure     404  {object} handlers.ErrorResponse "Not found"
// @Router      /documentations/{id}/files/{fileId} [delete]
func (h *Handlers) DeleteFile(c *gin.Context) {
	id, okID := idParam(c, "id", "documentation")
	if !okID {
		return
	}
	fileID, okID := idParam(c, "fileId", "file")
	if !okID {
		return
	}
	if err := h.docs.DeleteFile(c.Request.Context(), userID(c), id, fileID); err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}
	noContent(c)
}

// ListPages godoc
// @ID          listPages
// @Summary     List page units
// @Tags        Documentations
// @Produce     json
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Documentation ID (UUID)"  format(uuid)
// @Success     200  {object} handlers.PagesResponse
// @Failure     404  {object} handlers.ErrorResponse "Documentation not found"
// @Router      /documentations/{id}/pages [get]
func (h *Handlers) ListPages(c *gin.Context) {
	id, okID := idParam(c, "id", "documentation")
	if !okID {
		return
	}
	pages, err := h.docs.ListPages(c.Request.Context(), userID(c), id)
	if err != nil {
		serviceError(c, err, ErrCodeListFailed)
		return
	}
	for i := range pages {
		pages[i].Markdown = ""
	}
	ok(c, http.StatusOK, PagesResponse{Pages: pages})
}

// StartPage godoc
// @ID          startPage
// @Summary     Scrape one page
// @Tags        Documentations
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Documentation ID (UUID)"  format(uuid)
// @Param       body       body    handlers.StartPageRequest  true  "Page to scrape"
// @Success     202  {object} domain.PageDocument
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     402  {object} handlers.ErrorResponse "Insufficient credits"
// @Router      /documentations/{id}/pages [post]
func (h *Handlers) StartPage(c *gin.Context) {
	id, okID := idParam(c, "id", "documentation")
	if !okID {
		return
	}
	var req StartPageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "url required")
		return
	}
	page, err := h.docs.StartPageScrape(c.Request.Context(), userID(c), id, req.URL, req.Title)
	if err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusAccepted, page)
}

// ScanAllPages godoc
// @ID          scanAllPages
// @Summary     Scrape every unscanned link
// @Description Schedules every link without a page or with a failed page, staggered in time.
// @Tags        Documentations
// @Produce     json
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Documentation ID (UUID)"  format(uuid)
// @Success     202  {object} handlers.ScanAllResponse
// @Failure     402  {object} handlers.ErrorResponse "Insufficient credits"
// @Failure     404  {object} handlers.ErrorResponse "Not found"
// @Router      /documentations/{id}/pages/scan-all [post]
func (h *Handlers) ScanAllPages(c *gin.Context) {
	id, okID := idParam(c, "id", "documentation")
	if !okID {
		return
	}
	n, err := h.docs.ScanAllPages(c.Request.Context(), userID(c), id)
	if err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusAccepted, ScanAllResponse{Scheduled: n})
}

// DeleteLinkPage godoc
// @ID          deleteLinkPage
// @Summary     Delete a link and its page
// @Tags        Documentations
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Documentation ID (UUID)"  format(uuid)
// @Param       url        query   string  true  "Link URL"
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Not found"
// @Router      /documentations/{id}/pages [delete]
func (h *Handlers) DeleteLinkPage(c *gin.Context) {
	id, okID := idParam(c, "id", "documentation")
	if !okID {
		return
	}
	link := strings.TrimSpace(c.Query("url"))
	if link == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "url required")
		return
	}
	if err := h.docs.DeleteLinkPage(c.Request.Context(), userID(c), id, link); err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}
	noContent(c)
}

// Upload godoc
// @ID          upload
// @Summary     Upload files
// @Description Stores each multipart "file" part in blob storage and returns the inputs for registration.
// @Tags        Uploads
// @Accept      mpfd
// @Produce     json
// @Param       X-User-ID  header    string  false "User ID (demo header)"  example(user123)
// @Param       file       formData  file    true  "File (repeatable)"
// @Success     201  {object} handlers.UploadResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     413  {object} handlers.ErrorResponse "Too large"
// @Router      /uploads [post]
func (h *Handlers) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil || len(form.File["file"]) == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "multipart field \"file\" required")
		return
	}
	ctx := c.Request.Context()
	uid := userID(c)
	out := make([]services.FileInput, 0, len(form.File["file"]))
	for _, fh := range form.File["file"] {
		f, err := fh.Open()
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable upload")
			return
		}
		in, err := h.docs.Upload(ctx, uid, fh.Filename, f)
		_ = f.Close()
		if err != nil {
			serviceError(c, err, ErrCodeUploadFailed)
			return
		}
		out = append(out, *in)
	}
	ok(c, http.StatusCreated, UploadResponse{Files: out})
}
