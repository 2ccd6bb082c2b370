package aggregates

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	domainagg "github.com/yungbote/coursecatalog-backend/internal/domain/aggregates"
	"github.com/yungbote/coursecatalog-backend/internal/domain/lifecycle"
	pkgerrors "github.com/yungbote/coursecatalog-backend/internal/pkg/errors"
)

func TestMapError_Validation(t *testing.T) {
	err := MapError("op", ValidationError("bad input"))
	if !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("expected validation code, got %q (%v)", domainagg.CodeOf(err), err)
	}
}

func TestMapError_Conflict(t *testing.T) {
	err := MapError("op", ConflictError("stale"))
	if !domainagg.IsCode(err, domainagg.CodeConflict) {
		t.Fatalf("expected conflict code, got %q (%v)", domainagg.CodeOf(err), err)
	}
}

func TestMapError_NotFound(t *testing.T) {
	for _, in := range []error{gorm.ErrRecordNotFound, NotFoundError("chapter x not found"), fmt.Errorf("%w: lesson", pkgerrors.ErrNotFound)} {
		err := MapError("op", in)
		if !domainagg.IsCode(err, domainagg.CodeNotFound) {
			t.Fatalf("expected not_found code for %v, got %q", in, domainagg.CodeOf(err))
		}
	}
}

func TestMapError_BusinessRuleKeepsReason(t *testing.T) {
	err := MapError("catalog.change_status", BusinessRuleError("cannot publish without lessons"))
	var aggErr *domainagg.Error
	if !errors.As(err, &aggErr) {
		t.Fatalf("expected *domainagg.Error, got %T", err)
	}
	if aggErr.Code != domainagg.CodeBusinessRule {
		t.Fatalf("code: want=%s got=%s", domainagg.CodeBusinessRule, aggErr.Code)
	}
	if aggErr.Message != "cannot publish without lessons" {
		t.Fatalf("message: got=%q", aggErr.Message)
	}
}

func TestMapError_Infrastructure(t *testing.T) {
	cases := []struct {
		in   error
		want domainagg.ErrorCode
	}{
		{&pgconn.PgError{Code: "23505"}, domainagg.CodeConflict},
		{&pgconn.PgError{Code: "40P01"}, domainagg.CodeRetryable},
		{&pgconn.PgError{Code: "57014"}, domainagg.CodeTimeout},
		{errors.New("UNIQUE constraint failed: chapter.slug"), domainagg.CodeConflict},
		{errors.New("database is locked"), domainagg.CodeRetryable},
		{context.DeadlineExceeded, domainagg.CodeTimeout},
		{context.Canceled, domainagg.CodeRetryable},
		{fmt.Errorf("%w: position 0", pkgerrors.ErrInvalidArgument), domainagg.CodeValidation},
		{errors.New("connection reset"), domainagg.CodeInternal},
	}
	for _, tc := range cases {
		if got := domainagg.CodeOf(MapError("op", tc.in)); got != tc.want {
			t.Fatalf("MapError(%v): want=%s got=%s", tc.in, tc.want, got)
		}
	}
}

func TestMapError_PassthroughAggregateError(t *testing.T) {
	in := domainagg.NewError(domainagg.CodeRetryable, "op", "retry", errors.New("boom"))
	out := MapError("other", in)
	if out != in {
		t.Fatalf("expected passthrough aggregate error")
	}
}

func TestDecisionError(t *testing.T) {
	if err := DecisionError(lifecycle.Decision{Allowed: true}); err != nil {
		t.Fatalf("allowed decision: want nil got=%v", err)
	}
	err := DecisionError(lifecycle.Decision{Rule: lifecycle.RuleInput, Reason: "unknown status"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("input denial: want ErrValidation got=%v", err)
	}
	err = DecisionError(lifecycle.Decision{Rule: lifecycle.RuleDelete, Reason: "parent is archived forever"})
	if !errors.Is(err, ErrBusinessRule) {
		t.Fatalf("matrix denial: want ErrBusinessRule got=%v", err)
	}
}
