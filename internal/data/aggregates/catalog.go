package aggregates

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/coursecatalog-backend/internal/data/content"
	catalogrepo "github.com/yungbote/coursecatalog-backend/internal/data/repos/catalog"
	domainagg "github.com/yungbote/coursecatalog-backend/internal/domain/aggregates"
	"github.com/yungbote/coursecatalog-backend/internal/domain/catalog"
	"github.com/yungbote/coursecatalog-backend/internal/domain/lifecycle"
	"github.com/yungbote/coursecatalog-backend/internal/pkg/dbctx"
	"github.com/yungbote/coursecatalog-backend/internal/pkg/logger"
	"github.com/yungbote/coursecatalog-backend/internal/platform/slug"
)

const (
	opCreate           = "catalog.create"
	opUpdate           = "catalog.update"
	opChangeStatus     = "catalog.change_status"
	opBulkChangeStatus = "catalog.bulk_change_status"
	opSoftDelete       = "catalog.soft_delete"
	opRestore          = "catalog.restore"
	opHardDelete       = "catalog.hard_delete"
	opReposition       = "catalog.reposition"
	opUpdateContent    = "catalog.update_content"

	slugAttempts = 5
)

type CatalogAggregateDeps struct {
	BaseDeps
	Repos   *catalogrepo.Set
	Content *content.Registry
	Chart   *lifecycle.Chart
	Now     func() time.Time
}

type catalogAggregate struct {
	deps    CatalogAggregateDeps
	base    BaseDeps
	h       *catalog.Hierarchy
	repos   *catalogrepo.Set
	content *content.Registry
	chart   *lifecycle.Chart
	log     *logger.Logger
}

var _ domainagg.CatalogAggregate = (*catalogAggregate)(nil)

func NewCatalogAggregate(deps CatalogAggregateDeps) (domainagg.CatalogAggregate, error) {
	if deps.Repos == nil || deps.Repos.Hierarchy == nil {
		return nil, errors.New("catalog aggregate: repos are required")
	}
	base := deps.BaseDeps.withDefaults()
	if deps.Content == nil {
		reg, err := content.NewRegistry(base.Log, deps.Repos)
		if err != nil {
			return nil, fmt.Errorf("catalog aggregate: %w", err)
		}
		deps.Content = reg
	}
	if deps.Chart == nil {
		chart, err := lifecycle.NewChart()
		if err != nil {
			return nil, fmt.Errorf("catalog aggregate: %w", err)
		}
		deps.Chart = chart
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	return &catalogAggregate{
		deps:    deps,
		base:    base,
		h:       deps.Repos.Hierarchy,
		repos:   deps.Repos,
		content: deps.Content,
		chart:   deps.Chart,
		log:     base.Log.With("aggregate", "CatalogAggregate"),
	}, nil
}

func (a *catalogAggregate) Contract() domainagg.Contract {
	return domainagg.CatalogAggregateContract
}

// levelCtx bundles the LevelSpec and repos of one level and its parent level.
type levelCtx struct {
	spec        catalog.LevelSpec
	nodes       catalogrepo.NodeRepo
	entities    catalogrepo.EntityRepo
	parent      *catalog.LevelSpec
	parentNodes catalogrepo.NodeRepo
}

func (lc levelCtx) parentLabel() string {
	if lc.parent == nil {
		return ""
	}
	return lc.parent.Label
}

func (a *catalogAggregate) level(l catalog.Level) (levelCtx, error) {
	spec, ok := a.h.Spec(l)
	if !ok {
		return levelCtx{}, ValidationError(fmt.Sprintf("unknown catalog level %q", l))
	}
	lc := levelCtx{spec: spec, nodes: a.repos.Nodes[l], entities: a.repos.Entities[l]}
	if p, ok := a.h.Parent(l); ok {
		lc.parent = &p
		lc.parentNodes = a.repos.Nodes[p.Level]
	}
	return lc, nil
}

func spanAttrs(level catalog.Level, id uuid.UUID) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String("catalog.level", string(level))}
	if id != uuid.Nil {
		attrs = append(attrs, attribute.String("catalog.id", id.String()))
	}
	return attrs
}

// scope is the sibling scope of an entity after its lock was taken. parent is
// nil for root scopes.
type scope struct {
	parentID *uuid.UUID
	parent   *catalogrepo.NodeRow
}

func (s scope) parentStatus() *lifecycle.Status {
	if s.parent == nil {
		return nil
	}
	st := s.parent.Status
	return &st
}

// lockScope locks the parent row (or the root scope) of a sibling scope. A
// missing parent is not found; a soft-deleted parent is returned as is.
func (a *catalogAggregate) lockScope(dbc dbctx.Context, lc levelCtx, parentID *uuid.UUID) (scope, error) {
	if lc.parent == nil || parentID == nil {
		if err := lc.nodes.LockScope(dbc, parentID); err != nil {
			return scope{}, err
		}
		return scope{parentID: parentID}, nil
	}
	row, err := lc.parentNodes.GetByID(dbc, *parentID, catalogrepo.ReadOptions{IncludeDeleted: true, Lock: true})
	if err != nil {
		return scope{}, err
	}
	if row == nil {
		return scope{}, NotFoundError(fmt.Sprintf("%s %s not found", lc.parent.Label, *parentID))
	}
	return scope{parentID: parentID, parent: row}, nil
}

// lockTarget locks the scope of id, then id itself. Locks go parent first so
// concurrent writers in one scope queue on the same row.
func (a *catalogAggregate) lockTarget(dbc dbctx.Context, lc levelCtx, id uuid.UUID, includeDeleted bool) (scope, *catalogrepo.NodeRow, error) {
	if id == uuid.Nil {
		return scope{}, nil, ValidationError(fmt.Sprintf("%s id is required", lc.spec.Label))
	}
	row, err := lc.nodes.GetByID(dbc, id, catalogrepo.ReadOptions{IncludeDeleted: includeDeleted})
	if err != nil {
		return scope{}, nil, err
	}
	if row == nil {
		return scope{}, nil, NotFoundError(fmt.Sprintf("%s %s not found", lc.spec.Label, id))
	}
	sc, err := a.lockScope(dbc, lc, row.ParentID)
	if err != nil {
		return scope{}, nil, err
	}
	locked, err := lc.nodes.GetByID(dbc, id, catalogrepo.ReadOptions{IncludeDeleted: includeDeleted, Lock: true})
	if err != nil {
		return scope{}, nil, err
	}
	if locked == nil {
		return scope{}, nil, NotFoundError(fmt.Sprintf("%s %s not found", lc.spec.Label, id))
	}
	return sc, locked, nil
}

// subtree holds descendant ids per level, nearest level first.
type subtree struct {
	levels []catalog.LevelSpec
	ids    map[catalog.Level][]uuid.UUID
}

func (s subtree) counts() map[string]int {
	out := map[string]int{}
	for _, l := range s.levels {
		if n := len(s.ids[l.Level]); n > 0 {
			out[l.Plural] = n
		}
	}
	return out
}

// collectSubtree walks every descendant level below rootID. Rows are read
// with opts, so callers choose whether deleted rows count and whether to lock.
func (a *catalogAggregate) collectSubtree(dbc dbctx.Context, lc levelCtx, rootID uuid.UUID, opts catalogrepo.ListOptions) (subtree, error) {
	out := subtree{ids: map[catalog.Level][]uuid.UUID{}}
	parents := []uuid.UUID{rootID}
	for _, d := range a.h.Descendants(lc.spec.Level) {
		if len(parents) == 0 {
			break
		}
		rows, err := a.repos.Nodes[d.Level].ListByParents(dbc, parents, opts)
		if err != nil {
			return subtree{}, err
		}
		ids := make([]uuid.UUID, 0, len(rows))
		for _, r := range rows {
			ids = append(ids, r.ID)
		}
		out.levels = append(out.levels, d)
		out.ids[d.Level] = ids
		parents = ids
	}
	return out, nil
}

// lessonIDs returns the lessons among root and its subtree.
func lessonIDs(lc levelCtx, rootID uuid.UUID, st subtree) []uuid.UUID {
	var out []uuid.UUID
	if lc.spec.HasContent {
		out = append(out, rootID)
	}
	for _, l := range st.levels {
		if l.HasContent {
			out = append(out, st.ids[l.Level]...)
		}
	}
	return out
}

func (a *catalogAggregate) resolveSlug(dbc dbctx.Context, nodes catalogrepo.NodeRepo, title string, excludeID uuid.UUID) (string, error) {
	base := slug.Make(title)
	candidate := base
	for attempt := 0; attempt <= slugAttempts; attempt++ {
		taken, err := nodes.SlugExists(dbc, candidate, excludeID)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = slug.WithSuffix(base)
	}
	return "", ConflictError(fmt.Sprintf("no free slug for %q after %d attempts", title, slugAttempts))
}

func applyFields(e catalog.Entity, f domainagg.NodeFields) error {
	n := e.Base()
	if f.Description != nil {
		n.Description = strings.TrimSpace(*f.Description)
	}
	switch m := e.(type) {
	case *catalog.Category:
		if f.IconURL != nil {
			m.IconURL = strings.TrimSpace(*f.IconURL)
		}
	case *catalog.Course:
		if f.CourseLevel != nil {
			m.Level = strings.TrimSpace(*f.CourseLevel)
		}
		if f.Language != nil {
			m.Language = strings.TrimSpace(*f.Language)
		}
	case *catalog.Lesson:
		if f.DurationMinutes != nil {
			if *f.DurationMinutes < 0 {
				return ValidationError("duration minutes cannot be negative")
			}
			m.DurationMinutes = *f.DurationMinutes
		}
	case *catalog.Resource:
		if f.URL != nil {
			m.URL = strings.TrimSpace(*f.URL)
		}
		if f.Kind != nil {
			m.Kind = strings.TrimSpace(*f.Kind)
		}
	}
	return nil
}

// reload fetches the full model of id inside the current transaction.
func (a *catalogAggregate) reload(dbc dbctx.Context, lc levelCtx, id uuid.UUID, includeDeleted bool) (catalog.Entity, error) {
	e, err := lc.entities.GetByID(dbc, id, includeDeleted)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, NotFoundError(fmt.Sprintf("%s %s not found", lc.spec.Label, id))
	}
	return e, nil
}
