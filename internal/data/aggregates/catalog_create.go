package aggregates

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	catalogrepo "github.com/yungbote/coursecatalog-backend/internal/data/repos/catalog"
	domainagg "github.com/yungbote/coursecatalog-backend/internal/domain/aggregates"
	"github.com/yungbote/coursecatalog-backend/internal/domain/catalog"
	"github.com/yungbote/coursecatalog-backend/internal/domain/lifecycle"
	"github.com/yungbote/coursecatalog-backend/internal/pkg/dbctx"
)

func (a *catalogAggregate) Create(ctx context.Context, in domainagg.CreateNodeInput) (domainagg.NodeResult, error) {
	out := domainagg.NodeResult{Level: in.Level}
	lc, err := a.level(in.Level)
	if err != nil {
		return out, MapError(opCreate, err)
	}
	title := ""
	if in.Fields.Title != nil {
		title = strings.TrimSpace(*in.Fields.Title)
	}
	if title == "" {
		return out, MapError(opCreate, ValidationError(lc.spec.Label+" title is required"))
	}
	if lc.parent == nil && in.ParentID != nil {
		return out, MapError(opCreate, ValidationError(fmt.Sprintf("%s has no parent level", lc.spec.Label)))
	}
	if in.Position != nil && *in.Position < 1 {
		return out, MapError(opCreate, ValidationError("position must be >= 1"))
	}
	lessonType := in.LessonType
	if lc.spec.HasContent {
		if lessonType, err = catalog.ParseLessonType(string(in.LessonType)); err != nil {
			return out, MapError(opCreate, ValidationError(err.Error()))
		}
	} else if in.Content != nil || in.LessonType != "" {
		return out, MapError(opCreate, ValidationError(lc.spec.Label+" does not carry lesson content"))
	}

	err = executeWrite(ctx, a.base, opCreate, func(dbc dbctx.Context) error {
		sc, err := a.lockScope(dbc, lc, in.ParentID)
		if err != nil {
			return err
		}
		if sc.parent != nil && sc.parent.Deleted() {
			return NotFoundError(fmt.Sprintf("%s %s not found", lc.parent.Label, *in.ParentID))
		}
		d := lifecycle.Validate(lifecycle.Check{
			ParentStatus: sc.parentStatus(),
			Action:       lifecycle.ActionCreate,
			Entity:       lc.spec.Label,
			Parent:       lc.parentLabel(),
		})
		if !d.Allowed {
			return DecisionError(d)
		}

		position, err := a.createPosition(dbc, lc, in.ParentID, in.Position)
		if err != nil {
			return err
		}
		slugValue, err := a.resolveSlug(dbc, lc.nodes, title, uuid.Nil)
		if err != nil {
			return err
		}

		e := lc.entities.New()
		n := e.Base()
		n.ID = uuid.New()
		n.Title = title
		n.Slug = slugValue
		n.Position = position
		n.Status = lifecycle.StatusDraft
		e.SetParentRef(in.ParentID)
		if err := applyFields(e, in.Fields); err != nil {
			return err
		}

		var payload catalog.Payload
		if lesson, ok := e.(*catalog.Lesson); ok {
			lesson.Type = lessonType
			strategy, err := a.content.For(lessonType)
			if err != nil {
				return ValidationError(err.Error())
			}
			if payload, err = strategy.Prepare(n.ID, in.Content); err != nil {
				return err
			}
		}

		if err := lc.entities.Create(dbc, e); err != nil {
			return err
		}
		if payload != nil {
			repo, err := a.repos.Payload(lessonType)
			if err != nil {
				return err
			}
			if err := repo.Create(dbc, payload); err != nil {
				return err
			}
		}
		out.Entity = e
		a.log.Debug("catalog entity created", "level", lc.spec.Level, "id", n.ID, "position", position)
		return nil
	}, spanAttrs(in.Level, uuid.Nil)...)
	return out, err
}

// createPosition appends to the scope unless an explicit free slot was asked for.
func (a *catalogAggregate) createPosition(dbc dbctx.Context, lc levelCtx, parentID *uuid.UUID, requested *int) (int, error) {
	if requested == nil {
		maxPos, err := lc.nodes.MaxPosition(dbc, parentID)
		if err != nil {
			return 0, err
		}
		return maxPos + 1, nil
	}
	siblings, err := lc.nodes.ListByScope(dbc, parentID, catalogrepo.ListOptions{})
	if err != nil {
		return 0, err
	}
	for _, s := range siblings {
		if s.Position == *requested {
			return 0, ConflictError(fmt.Sprintf("position %d is already taken by %s %s", *requested, lc.spec.Label, s.ID))
		}
	}
	return *requested, nil
}

func (a *catalogAggregate) Update(ctx context.Context, in domainagg.UpdateNodeInput) (domainagg.NodeResult, error) {
	out := domainagg.NodeResult{Level: in.Level}
	lc, err := a.level(in.Level)
	if err != nil {
		return out, MapError(opUpdate, err)
	}
	if in.Fields.Title != nil && strings.TrimSpace(*in.Fields.Title) == "" {
		return out, MapError(opUpdate, ValidationError(lc.spec.Label+" title cannot be empty"))
	}

	err = executeWrite(ctx, a.base, opUpdate, func(dbc dbctx.Context) error {
		sc, row, err := a.lockTarget(dbc, lc, in.ID, false)
		if err != nil {
			return err
		}
		d := lifecycle.Validate(lifecycle.Check{
			ParentStatus: sc.parentStatus(),
			EntityStatus: &row.Status,
			Action:       lifecycle.ActionUpdate,
			Entity:       lc.spec.Label,
			Parent:       lc.parentLabel(),
		})
		if !d.Allowed {
			return DecisionError(d)
		}

		e, err := a.reload(dbc, lc, in.ID, false)
		if err != nil {
			return err
		}
		n := e.Base()
		if in.Fields.Title != nil {
			title := strings.TrimSpace(*in.Fields.Title)
			if title != n.Title {
				n.Title = title
				if n.Slug, err = a.resolveSlug(dbc, lc.nodes, title, n.ID); err != nil {
					return err
				}
			}
		}
		if err := applyFields(e, in.Fields); err != nil {
			return err
		}
		if err := lc.entities.Save(dbc, e); err != nil {
			return err
		}
		out.Entity = e
		return nil
	}, spanAttrs(in.Level, in.ID)...)
	return out, err
}
