// Stream HTTP handlers.
//
// Assistant replies are persisted as an ordered fragment log. Observers can:
//   - GET /streams/{id}         snapshot of fragments after ?after=N plus status
//   - GET /streams/{id}/events  Server-Sent Events: replay, then live tail until done
//   - GET /streams/{id}/ws      WebSocket: same sequence as JSON frames
//
// Every observer sees the same fragments in seq order; a late observer
// replays from the log before tailing.
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/tbourn/go-docchat-backend/internal/domain"
	"github.com/tbourn/go-docchat-backend/internal/http/middleware"
	"github.com/tbourn/go-docchat-backend/internal/utils"
)

const wsWriteWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origins are checked by the CORS middleware.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamFrame is one WebSocket message. Type is "fragment" or "done".
type StreamFrame struct {
	Type   string              `json:"type"`
	Seq    int                 `json:"seq,omitempty"`
	Text   string              `json:"text,omitempty"`
	Status domain.StreamStatus `json:"status,omitempty"`
}

// afterSeq reads the resume point from ?after=N or, for SSE reconnects, the
// Last-Event-ID header. Fragments are numbered from 0, so -1 (the default)
// replays the whole stream.
func afterSeq(c *gin.Context) int {
	n := utils.AtoiDefault(c.Query("after"), -1)
	if last := c.GetHeader("Last-Event-ID"); last != "" {
		if v, err := strconv.Atoi(last); err == nil && v > n {
			n = v
		}
	}
	if n < -1 {
		n = -1
	}
	return n
}

// GetStream godoc
// @ID          getStream
// @Summary     Stream snapshot
// @Description Returns the persisted fragments with seq greater than after, the stream status and, once done, the final content.
// @Tags        Streams
// @Produce     json
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Stream ID (UUID)"  format(uuid)
// @Param       after      query   int     false "Only fragments after this seq"  minimum(-1) default(-1)
// @Success     200  {object} services.StreamSnapshot
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Stream not found"
// @Router      /streams/{id} [get]
func (h *Handlers) GetStream(c *gin.Context) {
	id, okID := idParam(c, "id", "stream")
	if !okID {
		return
	}
	snap, err := h.chat.Snapshot(c.Request.Context(), userID(c), id, afterSeq(c))
	if err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, snap)
}

// StreamEvents godoc
// @ID          streamEvents
// @Summary     Follow a stream (SSE)
// @Description Emits "fragment" events (id = seq) for persisted and live fragments, then one "done" event with the terminal status.
// @Tags        Streams
// @Produce     text/event-stream
// @Param       X-User-ID      header  string  false "User ID (demo header)"  example(user123)
// @Param       Last-Event-ID  header  string  false "Resume after this seq"
// @Param       id             path    string  true  "Stream ID (UUID)"  format(uuid)
// @Param       after          query   int     false "Only fragments after this seq"  minimum(-1) default(-1)
// @Success     200  {string} string "event stream"
// @Failure     404  {object} handlers.ErrorResponse "Stream not found"
// @Router      /streams/{id}/events [get]
func (h *Handlers) StreamEvents(c *gin.Context) {
	id, okID := idParam(c, "id", "stream")
	if !okID {
		return
	}
	ctx := c.Request.Context()
	uid := userID(c)
	after := afterSeq(c)

	// Resolve ownership while an error envelope can still be written.
	if _, err := h.chat.Snapshot(ctx, uid, id, after); err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}

	defer middleware.TrackStream(c, "sse")()

	hdr := c.Writer.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	status, err := h.chat.Follow(ctx, uid, id, after, func(f domain.StreamFragment) error {
		c.Render(-1, sse.Event{Id: strconv.Itoa(f.Seq), Event: "fragment", Data: f})
		c.Writer.Flush()
		return ctx.Err()
	})
	if err != nil {
		if ctx.Err() == nil {
			lg := middleware.LoggerFrom(c)
			lg.Warn().Err(err).Str("stream_id", id).Msg("sse follow aborted")
		}
		return
	}
	c.SSEvent("done", gin.H{"status": status})
	c.Writer.Flush()
}

// StreamSocket godoc
// @ID          streamSocket
// @Summary     Follow a stream (WebSocket)
// @Description Upgrades to a WebSocket and sends StreamFrame JSON messages: fragments in seq order, then one "done" frame.
// @Tags        Streams
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Stream ID (UUID)"  format(uuid)
// @Param       after      query   int     false "Only fragments after this seq"  minimum(-1) default(-1)
// @Success     101  {string} string "Switching Protocols"
// @Failure     404  {object} handlers.ErrorResponse "Stream not found"
// @Router      /streams/{id}/ws [get]
func (h *Handlers) StreamSocket(c *gin.Context) {
	id, okID := idParam(c, "id", "stream")
	if !okID {
		return
	}
	uid := userID(c)
	after := afterSeq(c)
	if _, err := h.chat.Snapshot(c.Request.Context(), uid, id, after); err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		lg := middleware.LoggerFrom(c)
		lg.Warn().Err(err).Str("stream_id", id).Msg("websocket upgrade")
		return
	}
	defer conn.Close()
	defer middleware.TrackStream(c, "ws")()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// The reader only watches for the peer going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	write := func(f StreamFrame) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(f)
	}

	status, err := h.chat.Follow(ctx, uid, id, after, func(f domain.StreamFragment) error {
		return write(StreamFrame{Type: "fragment", Seq: f.Seq, Text: f.Text})
	})
	if err != nil {
		return
	}
	if err := write(StreamFrame{Type: "done", Status: status}); err != nil {
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(status)),
		time.Now().Add(wsWriteWait))
}
