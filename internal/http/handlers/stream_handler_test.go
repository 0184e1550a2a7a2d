package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tbourn/go-docchat-backend/internal/domain"
	"github.com/tbourn/go-docchat-backend/internal/services"
)

func (f *fixture) producedStream(t *testing.T, user string) string {
	t.Helper()
	_, res := f.sendTurn(t, user, "hi")
	if err := f.chat.Produce(context.Background(), res.StreamID); err != nil {
		t.Fatalf("produce: %v", err)
	}
	return res.StreamID
}

func TestGetStream_Snapshot(t *testing.T) {
	f := newFixture(t, unlimited())
	_, res := f.sendTurn(t, "u1", "hi")

	pending := decode[services.StreamSnapshot](t, f.do(t, http.MethodGet, "/streams/"+res.StreamID, "u1", nil))
	if pending.Done || pending.Status != domain.StreamPending || len(pending.Fragments) != 0 {
		t.Fatalf("unexpected pending snapshot: %+v", pending)
	}

	if err := f.chat.Produce(context.Background(), res.StreamID); err != nil {
		t.Fatalf("produce: %v", err)
	}
	snap := decode[services.StreamSnapshot](t, f.do(t, http.MethodGet, "/streams/"+res.StreamID, "u1", nil))
	if !snap.Done || snap.Status != domain.StreamComplete || snap.Content != "Hello" || len(snap.Fragments) != 2 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.Fragments[0].Seq != 0 || snap.Fragments[1].Text != "lo" {
		t.Fatalf("fragments out of order: %+v", snap.Fragments)
	}

	tail := decode[services.StreamSnapshot](t, f.do(t, http.MethodGet, "/streams/"+res.StreamID+"?after=0", "u1", nil))
	if len(tail.Fragments) != 1 || tail.Fragments[0].Seq != 1 {
		t.Fatalf("after=0 should return only seq 1: %+v", tail.Fragments)
	}

	wantCode(t, f.do(t, http.MethodGet, "/streams/"+res.StreamID, "u2", nil), http.StatusNotFound, ErrCodeNotFound)
	wantCode(t, f.do(t, http.MethodGet, "/streams/xyz", "u1", nil), http.StatusBadRequest, ErrCodeBadRequest)
}

func TestStreamEvents_Replay(t *testing.T) {
	f := newFixture(t, unlimited())
	id := f.producedStream(t, "u1")

	w := f.do(t, http.MethodGet, "/streams/"+id+"/events", "u1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content-type=%q", ct)
	}
	body := w.Body.String()
	first := strings.Index(body, "id:0\nevent:fragment\n")
	second := strings.Index(body, "id:1\nevent:fragment\n")
	done := strings.Index(body, "event:done\n")
	if first < 0 || second < first || done < second {
		t.Fatalf("unexpected event order:\n%s", body)
	}
	if !strings.Contains(body, `"status":"complete"`) {
		t.Fatalf("done event lacks status:\n%s", body)
	}

	// Resume after the first fragment.
	w = f.do(t, http.MethodGet, "/streams/"+id+"/events", "u1", nil, "Last-Event-ID", "0")
	if body := w.Body.String(); strings.Contains(body, "id:0\n") || !strings.Contains(body, "id:1\n") {
		t.Fatalf("resume replayed wrong fragments:\n%s", body)
	}
}

func TestStreamEvents_LiveTail(t *testing.T) {
	f := newFixture(t, unlimited())
	_, res := f.sendTurn(t, "u1", "hi")

	w := httptest.NewRecorder()
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		req := httptest.NewRequest(http.MethodGet, "/streams/"+res.StreamID+"/events", nil)
		req.Header.Set("X-User-ID", "u1")
		f.r.ServeHTTP(w, req)
	}()

	time.Sleep(20 * time.Millisecond)
	if err := f.chat.Produce(context.Background(), res.StreamID); err != nil {
		t.Fatalf("produce: %v", err)
	}

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatalf("follower did not finish")
	}
	body := w.Body.String()
	if strings.Count(body, "event:fragment") != 2 || !strings.Contains(body, "event:done") {
		t.Fatalf("unexpected body:\n%s", body)
	}
}

func TestStreamEvents_Foreign(t *testing.T) {
	f := newFixture(t, unlimited())
	id := f.producedStream(t, "u1")

	w := f.do(t, http.MethodGet, "/streams/"+id+"/events", "u2", nil)
	wantCode(t, w, http.StatusNotFound, ErrCodeNotFound)
	if strings.HasPrefix(w.Header().Get("Content-Type"), "text/event-stream") {
		t.Fatalf("error must not be sent as an event stream")
	}
}

func TestStreamSocket_Frames(t *testing.T) {
	f := newFixture(t, unlimited())
	id := f.producedStream(t, "u1")

	srv := httptest.NewServer(f.r)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/streams/" + id + "/ws"

	hdr := http.Header{}
	hdr.Set("X-User-ID", "u1")
	conn, _, err := websocket.DefaultDialer.Dial(url, hdr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var frames []StreamFrame
	for {
		var fr StreamFrame
		if err := conn.ReadJSON(&fr); err != nil {
			t.Fatalf("read: %v", err)
		}
		frames = append(frames, fr)
		if fr.Type == "done" {
			break
		}
	}
	if len(frames) != 3 || frames[0].Text != "Hel" || frames[1].Seq != 1 || frames[2].Status != domain.StreamComplete {
		t.Fatalf("unexpected frames: %+v", frames)
	}

	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("want normal close, got %v", err)
	}

	// Ownership is checked before the upgrade.
	hdr.Set("X-User-ID", "u2")
	_, resp, err := websocket.DefaultDialer.Dial(url, hdr)
	if err == nil {
		t.Fatalf("foreign dial should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("want 404 handshake response, got %+v", resp)
	}
}
