package aggregates

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	domainagg "github.com/yungbote/coursecatalog-backend/internal/domain/aggregates"
	"github.com/yungbote/coursecatalog-backend/internal/domain/lifecycle"
	pkgerrors "github.com/yungbote/coursecatalog-backend/internal/pkg/errors"
)

var (
	// ErrValidation indicates caller input validation failure.
	ErrValidation = errors.New("aggregate validation")
	// ErrInvariant indicates invariant rule violation.
	ErrInvariant = errors.New("aggregate invariant violation")
	// ErrConflict indicates a uniqueness or concurrency conflict.
	ErrConflict = errors.New("aggregate conflict")
	// ErrRetryable indicates transient retryable failure.
	ErrRetryable = errors.New("aggregate retryable")
	// ErrBusinessRule indicates a lifecycle rule denial.
	ErrBusinessRule = errors.New("aggregate business rule")
	// ErrNotFound indicates a missing target row.
	ErrNotFound = errors.New("aggregate not found")
)

func tag(sentinel error, msg string) error {
	return errors.Join(sentinel, errors.New(strings.TrimSpace(msg)))
}

func ValidationError(msg string) error { return tag(ErrValidation, msg) }

func InvariantError(msg string) error { return tag(ErrInvariant, msg) }

func ConflictError(msg string) error { return tag(ErrConflict, msg) }

func RetryableError(msg string) error { return tag(ErrRetryable, msg) }

// BusinessRuleError carries the user-facing reason of a denied lifecycle rule.
func BusinessRuleError(msg string) error { return tag(ErrBusinessRule, msg) }

func NotFoundError(msg string) error { return tag(ErrNotFound, msg) }

// DecisionError turns a lifecycle denial into a tagged error. Malformed input
// is a validation failure; every other denial is a business rule.
func DecisionError(d lifecycle.Decision) error {
	if d.Allowed {
		return nil
	}
	if d.Rule == lifecycle.RuleInput {
		return ValidationError(d.Reason)
	}
	return BusinessRuleError(d.Reason)
}

// tagMessage drops the sentinel line errors.Join puts in front of msg.
func tagMessage(err, sentinel error) string {
	msg := err.Error()
	if rest, ok := strings.CutPrefix(msg, sentinel.Error()+"\n"); ok {
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(msg)
}

func wrapTagged(code domainagg.ErrorCode, op string, err, sentinel error) error {
	return domainagg.NewError(code, op, tagMessage(err, sentinel), err)
}

// MapError maps infrastructure/domain failures into aggregate error codes.
func MapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var aggErr *domainagg.Error
	if errors.As(err, &aggErr) {
		return aggErr
	}
	switch {
	case errors.Is(err, ErrValidation):
		return wrapTagged(domainagg.CodeValidation, op, err, ErrValidation)
	case errors.Is(err, ErrBusinessRule):
		return wrapTagged(domainagg.CodeBusinessRule, op, err, ErrBusinessRule)
	case errors.Is(err, ErrNotFound):
		return wrapTagged(domainagg.CodeNotFound, op, err, ErrNotFound)
	case errors.Is(err, ErrInvariant):
		return wrapTagged(domainagg.CodeInvariantViolation, op, err, ErrInvariant)
	case errors.Is(err, ErrConflict):
		return wrapTagged(domainagg.CodeConflict, op, err, ErrConflict)
	case errors.Is(err, ErrRetryable):
		return wrapTagged(domainagg.CodeRetryable, op, err, ErrRetryable)
	case errors.Is(err, pkgerrors.ErrInvalidArgument):
		return domainagg.Wrap(domainagg.CodeValidation, op, err)
	case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, pkgerrors.ErrNotFound):
		return domainagg.Wrap(domainagg.CodeNotFound, op, err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return domainagg.Wrap(domainagg.CodeConflict, op, err)
	case errors.Is(err, context.DeadlineExceeded):
		return domainagg.Wrap(domainagg.CodeTimeout, op, err)
	case errors.Is(err, context.Canceled):
		return domainagg.Wrap(domainagg.CodeRetryable, op, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch strings.TrimSpace(pgErr.Code) {
		case "23505":
			return domainagg.Wrap(domainagg.CodeConflict, op, err) // unique_violation
		case "23503":
			return domainagg.Wrap(domainagg.CodePreconditionFailed, op, err) // foreign_key_violation
		case "40001", "40P01", "55P03":
			return domainagg.Wrap(domainagg.CodeRetryable, op, err) // serialization/deadlock/lock_not_available
		case "57014":
			return domainagg.Wrap(domainagg.CodeTimeout, op, err) // query_canceled (statement_timeout)
		}
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "duplicate key"),
		strings.Contains(msg, "unique constraint failed"),
		strings.Contains(msg, "already exists"):
		return domainagg.Wrap(domainagg.CodeConflict, op, err)
	case strings.Contains(msg, "timeout"):
		return domainagg.Wrap(domainagg.CodeTimeout, op, err)
	case strings.Contains(msg, "deadlock"),
		strings.Contains(msg, "serialization"),
		strings.Contains(msg, "database is locked"),
		strings.Contains(msg, "temporar"):
		return domainagg.Wrap(domainagg.CodeRetryable, op, err)
	default:
		return domainagg.Wrap(domainagg.CodeInternal, op, err)
	}
}
