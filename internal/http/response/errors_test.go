package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	domainagg "github.com/yungbote/coursecatalog-backend/internal/domain/aggregates"
)

func TestStatusFor(t *testing.T) {
	cases := map[domainagg.ErrorCode]int{
		domainagg.CodeValidation:         http.StatusBadRequest,
		domainagg.CodeBusinessRule:       http.StatusBadRequest,
		domainagg.CodeInvariantViolation: http.StatusBadRequest,
		domainagg.CodeNotFound:           http.StatusNotFound,
		domainagg.CodeConflict:           http.StatusConflict,
		domainagg.CodePreconditionFailed: http.StatusPreconditionFailed,
		domainagg.CodeRetryable:          http.StatusServiceUnavailable,
		domainagg.CodeTimeout:            http.StatusGatewayTimeout,
		domainagg.CodeInternal:           http.StatusInternalServerError,
		"":                               http.StatusInternalServerError,
	}
	for code, want := range cases {
		if got := StatusFor(code); got != want {
			t.Fatalf("StatusFor(%q): want=%d got=%d", code, want, got)
		}
	}
}

func respond(err error) (*httptest.ResponseRecorder, ErrorEnvelope) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	RespondAggregateError(c, nil, "catalog.test", "course", "id", err)
	var env ErrorEnvelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

func TestRespondAggregateErrorKeepsBusinessMessage(t *testing.T) {
	err := domainagg.NewError(domainagg.CodeBusinessRule, "catalog.change_status", "cannot publish without lessons", nil)
	rec, env := respond(err)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: want=%d got=%d", http.StatusBadRequest, rec.Code)
	}
	if env.Error.Message != "cannot publish without lessons" || env.Error.Code != "business_rule" {
		t.Fatalf("envelope: got=%+v", env.Error)
	}
}

func TestRespondAggregateErrorHidesInternalCause(t *testing.T) {
	rec, env := respond(errors.New("pq: connection reset"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status: want=%d got=%d", http.StatusInternalServerError, rec.Code)
	}
	if env.Error.Message != "internal error" || env.Error.Code != "internal" {
		t.Fatalf("envelope: got=%+v", env.Error)
	}
}

func TestRespondAggregateErrorCarriesDetails(t *testing.T) {
	err := domainagg.WithDetails(
		domainagg.NewError(domainagg.CodeNotFound, "catalog.bulk_change_status", "no courses could be updated", nil),
		map[string]int{"notFound": 2},
	)
	rec, env := respond(err)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status: want=%d got=%d", http.StatusNotFound, rec.Code)
	}
	details, ok := env.Error.Details.(map[string]any)
	if !ok || details["notFound"] != float64(2) {
		t.Fatalf("details: got=%#v", env.Error.Details)
	}
}
