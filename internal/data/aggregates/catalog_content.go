package aggregates

import (
	"context"

	domainagg "github.com/yungbote/coursecatalog-backend/internal/domain/aggregates"
	"github.com/yungbote/coursecatalog-backend/internal/domain/catalog"
	"github.com/yungbote/coursecatalog-backend/internal/domain/lifecycle"
	"github.com/yungbote/coursecatalog-backend/internal/pkg/dbctx"
)

func (a *catalogAggregate) UpdateLessonContent(ctx context.Context, in domainagg.UpdateContentInput) (domainagg.ContentResult, error) {
	out := domainagg.ContentResult{LessonID: in.LessonID}
	lc, err := a.level(catalog.LevelLesson)
	if err != nil {
		return out, MapError(opUpdateContent, err)
	}
	err = executeWrite(ctx, a.base, opUpdateContent, func(dbc dbctx.Context) error {
		sc, row, err := a.lockTarget(dbc, lc, in.LessonID, false)
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

		e, err := a.reload(dbc, lc, in.LessonID, false)
		if err != nil {
			return err
		}
		lesson, ok := e.(*catalog.Lesson)
		if !ok {
			return InvariantError("lesson row did not load as a lesson")
		}
		strategy, err := a.content.For(lesson.Type)
		if err != nil {
			return InvariantError(err.Error())
		}
		repo := strategy.Repo()

		p, err := repo.GetByLessonID(dbc, lesson.ID, false)
		if err != nil {
			return err
		}
		if p == nil {
			content := in.Content
			if p, err = strategy.Prepare(lesson.ID, &content); err != nil {
				return err
			}
			if err := repo.Create(dbc, p); err != nil {
				return err
			}
		} else {
			replaced, err := strategy.Update(p, in.Content)
			if err != nil {
				return err
			}
			if err := repo.Save(dbc, p); err != nil {
				return err
			}
			out.BlobKeys = replaced
		}
		out.Type = lesson.Type
		out.Payload = p
		return nil
	}, spanAttrs(catalog.LevelLesson, in.LessonID)...)
	return out, err
}
