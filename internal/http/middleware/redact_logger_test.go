package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRedact(t *testing.T) {
	cases := map[string]string{
		"": "",
		"thread=5a0c6a0e-8a53-4d83-9d4e-3b7f5f0f3a11": "thread=[REDACTED:id]",
		"mail alice@example.com now":                  "mail [REDACTED:email] now",
		"call 212-555-1212":                           "call [REDACTED:phone]",
		"page=2&page_size=20":                         "page=2&page_size=20",
	}
	for in, want := range cases {
		if got := Redact(in); got != want {
			t.Fatalf("Redact(%q)=%q want %q", in, got, want)
		}
	}
}

func TestRedactingLogger_ScrubsAndLevels(t *testing.T) {
	buf := captureLogs(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), Identity(IdentityOptions{}), RedactingLogger(RedactOptions{MaskHeaders: []string{"X-API-Key"}}))
	r.GET("/documentations/:id", func(c *gin.Context) { c.JSON(http.StatusNotFound, gin.H{"code": "not_found"}) })

	req := httptest.NewRequest(http.MethodGet,
		"/documentations/5a0c6a0e-8a53-4d83-9d4e-3b7f5f0f3a11?email=bob@example.com", nil)
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set("X-API-Key", "k-123")
	req.Header.Set("X-Trace", "carol@example.com")
	req.Header.Set(HeaderUserID, "u1")
	r.ServeHTTP(httptest.NewRecorder(), req)

	var entry struct {
		Level   string            `json:"level"`
		Msg     string            `json:"message"`
		Path    string            `json:"path"`
		Query   string            `json:"query"`
		Status  int               `json:"status"`
		UserID  string            `json:"user_id"`
		Headers map[string]string `json:"headers"`
	}
	line := strings.TrimSpace(buf.String())
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("json: %v\n%s", err, line)
	}
	if entry.Msg != "http_request" || entry.Level != "warn" || entry.Status != 404 {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.Path != "/documentations/:id" || entry.UserID != "u1" {
		t.Fatalf("route or user missing: %+v", entry)
	}
	if strings.Contains(line, "bob@example.com") || strings.Contains(line, "carol@example.com") ||
		strings.Contains(line, "secret") || strings.Contains(line, "k-123") {
		t.Fatalf("sensitive data leaked:\n%s", line)
	}
	if entry.Headers["Authorization"] != "[REDACTED]" || entry.Headers["X-Api-Key"] != "[REDACTED]" {
		t.Fatalf("headers not masked: %v", entry.Headers)
	}
}

func TestRedactingLogger_ErrorLevel(t *testing.T) {
	buf := captureLogs(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RedactingLogger(RedactOptions{}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusBadGateway) })
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
	if !strings.Contains(buf.String(), `"level":"error"`) {
		t.Fatalf("5xx should log at error:\n%s", buf.String())
	}
}
