package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/coursecatalog-backend/internal/pkg/ctxutil"
)

func TestAttachTraceContextKeepsIncomingRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AttachTraceContext())

	var seen *ctxutil.TraceData
	r.GET("/ping", func(c *gin.Context) {
		seen = ctxutil.GetTraceData(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(headerRequestID, "req-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if seen == nil {
		t.Fatalf("trace data: want set got nil")
	}
	if seen.RequestID != "req-123" {
		t.Fatalf("request id: want=%q got=%q", "req-123", seen.RequestID)
	}
	if seen.TraceID == "" {
		t.Fatalf("trace id: want generated got empty")
	}
	if got := rec.Header().Get(headerRequestID); got != "req-123" {
		t.Fatalf("response request id: want=%q got=%q", "req-123", got)
	}
	if got := rec.Header().Get(headerTraceID); got != seen.TraceID {
		t.Fatalf("response trace id: want=%q got=%q", seen.TraceID, got)
	}
}
