package aggregates

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/coursecatalog-backend/internal/domain/catalog"
	"github.com/yungbote/coursecatalog-backend/internal/domain/lifecycle"
)

var CatalogAggregateContract = Contract{
	Name:             "Catalog.LifecycleAggregate",
	WriteTxOwnership: WriteTxOwnedByAggregate,
	ReadPolicy:       ReadPolicyInvariantScoped,
	Notes:            "Owns status, position and soft-delete consistency across a catalog subtree, including cascades to descendants and lesson payloads.",
}

// CatalogAggregate owns the lifecycle invariants of the catalog hierarchy.
//
// Write method failures return *aggregates.Error with codes:
// CodeValidation, CodeNotFound, CodeConflict, CodeBusinessRule, CodeInvariantViolation,
// CodeRetryable, CodeTimeout, CodeInternal.
type CatalogAggregate interface {
	Aggregate

	// Create inserts a draft entity at the end of its sibling scope (or at an explicit position).
	Create(ctx context.Context, in CreateNodeInput) (NodeResult, error)

	// Update patches descriptive fields; a title change re-derives the slug.
	Update(ctx context.Context, in UpdateNodeInput) (NodeResult, error)

	// ChangeStatus moves one entity through the lifecycle and downgrades affected descendants.
	ChangeStatus(ctx context.Context, in ChangeStatusInput) (ChangeStatusResult, error)

	// BulkChangeStatus applies ChangeStatus per id and reports per-id outcomes.
	BulkChangeStatus(ctx context.Context, in BulkChangeStatusInput) (BulkChangeStatusResult, error)

	// SoftDelete marks the entity and, per delete policy, its active descendants as deleted.
	SoftDelete(ctx context.Context, in SoftDeleteInput) (SoftDeleteResult, error)

	// Restore brings back a soft-deleted entity and the descendants deleted with it.
	Restore(ctx context.Context, in RestoreInput) (RestoreResult, error)

	// HardDelete removes the entity and its subtree and renumbers surviving siblings.
	HardDelete(ctx context.Context, in HardDeleteInput) (HardDeleteResult, error)

	// Reposition applies a validated batch of sibling positions atomically.
	Reposition(ctx context.Context, in RepositionInput) (RepositionResult, error)

	// UpdateLessonContent replaces the payload of a lesson through its type strategy.
	UpdateLessonContent(ctx context.Context, in UpdateContentInput) (ContentResult, error)
}

// NodeFields are the writable descriptive columns. Nil means "leave as is";
// fields that do not exist on the target level are ignored.
type NodeFields struct {
	Title           *string
	Description     *string
	IconURL         *string
	CourseLevel     *string
	Language        *string
	DurationMinutes *int
	URL             *string
	Kind            *string
}

// ContentInput is the lesson payload; the lesson type decides which fields apply.
type ContentInput struct {
	Format       *string
	Body         *string
	Instructions *string
	MaxScore     *int
	DueInDays    *int
	Questions    []catalog.QuizQuestion
	PassingScore *int
	Pdf          *PdfObject
}

// PdfObject points at an already-uploaded blob.
type PdfObject struct {
	StorageKey  string
	FileName    string
	ContentType string
	SizeBytes   int64
}

type CreateNodeInput struct {
	Level      catalog.Level
	ParentID   *uuid.UUID
	Fields     NodeFields
	Position   *int
	LessonType catalog.LessonType
	Content    *ContentInput
}

type UpdateNodeInput struct {
	Level  catalog.Level
	ID     uuid.UUID
	Fields NodeFields
}

type NodeResult struct {
	Level  catalog.Level
	Entity catalog.Entity
}

type ChangeStatusInput struct {
	Level  catalog.Level
	ID     uuid.UUID
	Status lifecycle.Status
}

type ChangeStatusResult struct {
	Level  catalog.Level
	Entity catalog.Entity
	From   lifecycle.Status
	To     lifecycle.Status
	Impact lifecycle.Impact
	// CascadeUpdated counts downgraded descendants by plural label, e.g. {"lessons": 2}.
	CascadeUpdated map[string]int
}

type BulkChangeStatusInput struct {
	Level  catalog.Level
	IDs    []uuid.UUID
	Status lifecycle.Status
}

type BulkFailure struct {
	ID     uuid.UUID `json:"id"`
	Reason string    `json:"reason"`
	Code   ErrorCode `json:"code"`
}

type BulkSummary struct {
	Requested      int            `json:"requested"`
	Successful     int            `json:"successful"`
	Skipped        int            `json:"skipped"`
	Failed         int            `json:"failed"`
	NotFound       int            `json:"notFound"`
	SucceededIDs   []uuid.UUID    `json:"succeededIds"`
	SkippedIDs     []uuid.UUID    `json:"skippedIds"`
	NotFoundIDs    []uuid.UUID    `json:"notFoundIds"`
	Failures       []BulkFailure  `json:"failures"`
	CascadeUpdated map[string]int `json:"cascadeUpdated,omitempty"`
}

type BulkChangeStatusResult struct {
	Level   catalog.Level
	Status  lifecycle.Status
	Summary BulkSummary
}

type SoftDeleteInput struct {
	Level catalog.Level
	ID    uuid.UUID
	// Cascade is explicit consent to take active descendants down with a
	// require_empty level.
	Cascade bool
}

type SoftDeleteResult struct {
	Level    catalog.Level
	ID       uuid.UUID
	BatchID  uuid.UUID
	Cascaded map[string]int
}

type RestoreInput struct {
	Level catalog.Level
	ID    uuid.UUID
}

type RestoreResult struct {
	Level    catalog.Level
	Entity   catalog.Entity
	Restored map[string]int
	// Repositioned is set when the old position was taken and the entity moved to the end.
	Repositioned bool
}

type HardDeleteInput struct {
	Level catalog.Level
	ID    uuid.UUID
}

type HardDeleteResult struct {
	Level      catalog.Level
	ID         uuid.UUID
	Deleted    map[string]int
	Renumbered int
	// BlobKeys are objects the caller should purge once the transaction committed.
	BlobKeys []string
}

type PositionEntry struct {
	ID       uuid.UUID
	Position int
}

type RepositionInput struct {
	Level   catalog.Level
	Entries []PositionEntry
}

type RepositionResult struct {
	Level    catalog.Level
	ParentID *uuid.UUID
	Updated  int
}

type UpdateContentInput struct {
	LessonID uuid.UUID
	Content  ContentInput
}

type ContentResult struct {
	LessonID uuid.UUID
	Type     catalog.LessonType
	Payload  catalog.Payload
	// BlobKeys are replaced objects the caller should purge once the transaction committed.
	BlobKeys []string
}
