package aggregates

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	catalogrepo "github.com/yungbote/coursecatalog-backend/internal/data/repos/catalog"
	domainagg "github.com/yungbote/coursecatalog-backend/internal/domain/aggregates"
	"github.com/yungbote/coursecatalog-backend/internal/domain/catalog"
	"github.com/yungbote/coursecatalog-backend/internal/domain/lifecycle"
	"github.com/yungbote/coursecatalog-backend/internal/pkg/dbctx"
)

func (a *catalogAggregate) SoftDelete(ctx context.Context, in domainagg.SoftDeleteInput) (domainagg.SoftDeleteResult, error) {
	out := domainagg.SoftDeleteResult{Level: in.Level, ID: in.ID}
	lc, err := a.level(in.Level)
	if err != nil {
		return out, MapError(opSoftDelete, err)
	}
	err = executeWrite(ctx, a.base, opSoftDelete, func(dbc dbctx.Context) error {
		sc, row, err := a.lockTarget(dbc, lc, in.ID, false)
		if err != nil {
			return err
		}
		d := lifecycle.Validate(lifecycle.Check{
			ParentStatus: sc.parentStatus(),
			EntityStatus: &row.Status,
			Action:       lifecycle.ActionDelete,
			Entity:       lc.spec.Label,
			Parent:       lc.parentLabel(),
		})
		if !d.Allowed {
			return DecisionError(d)
		}

		st, err := a.collectSubtree(dbc, lc, in.ID, catalogrepo.ListOptions{ReadOptions: catalogrepo.ReadOptions{Lock: true}})
		if err != nil {
			return err
		}
		if len(st.levels) > 0 && lc.spec.DeletePolicy == catalog.DeleteRequireEmpty && !in.Cascade {
			child := st.levels[0]
			if n := len(st.ids[child.Level]); n > 0 {
				return BusinessRuleError(fmt.Sprintf("cannot delete %s with %d active %s; delete them first or confirm the cascade", lc.spec.Label, n, child.Plural))
			}
		}

		batchID := uuid.New()
		now := a.deps.Now()
		items := catalog.BatchItems{}

		payloadIDs, err := a.content.CleanupOnDelete(dbc, lessonIDs(lc, in.ID, st), batchID, now)
		if err != nil {
			return err
		}
		items.Add(catalog.ContentKey, payloadIDs...)

		for i := len(st.levels) - 1; i >= 0; i-- {
			l := st.levels[i]
			ids := st.ids[l.Level]
			if len(ids) == 0 {
				continue
			}
			n, err := a.repos.Nodes[l.Level].SoftDeleteByIDs(dbc, ids, batchID, now)
			if err != nil {
				return err
			}
			items.Add(l.Plural, ids...)
			a.base.Hooks.ObserveCascade("delete", string(l.Level), int(n))
		}
		n, err := lc.nodes.SoftDeleteByIDs(dbc, []uuid.UUID{in.ID}, batchID, now)
		if err != nil {
			return err
		}
		if n == 0 {
			return ConflictError(fmt.Sprintf("%s %s changed concurrently", lc.spec.Label, in.ID))
		}

		cascaded := items.Counts()
		items.Add(lc.spec.Plural, in.ID)
		raw, err := items.JSON()
		if err != nil {
			return err
		}
		if err := a.repos.Batches.Create(dbc, &catalog.DeletionBatch{
			ID:        batchID,
			RootLevel: lc.spec.Level,
			RootID:    in.ID,
			Items:     raw,
			CreatedAt: now,
		}); err != nil {
			return err
		}
		out.BatchID = batchID
		out.Cascaded = cascaded
		a.log.Debug("catalog entity soft-deleted", "level", lc.spec.Level, "id", in.ID, "batch_id", batchID, "cascaded", cascaded)
		return nil
	}, spanAttrs(in.Level, in.ID)...)
	return out, err
}

func (a *catalogAggregate) Restore(ctx context.Context, in domainagg.RestoreInput) (domainagg.RestoreResult, error) {
	out := domainagg.RestoreResult{Level: in.Level}
	lc, err := a.level(in.Level)
	if err != nil {
		return out, MapError(opRestore, err)
	}
	err = executeWrite(ctx, a.base, opRestore, func(dbc dbctx.Context) error {
		sc, row, err := a.lockTarget(dbc, lc, in.ID, true)
		if err != nil {
			return err
		}
		if !row.Deleted() {
			return BusinessRuleError(fmt.Sprintf("nothing to restore: %s is not deleted", lc.spec.Label))
		}
		parentDeleted := sc.parent != nil && sc.parent.Deleted()
		d := lifecycle.ValidateUndelete(sc.parentStatus(), parentDeleted, row.Status, lc.spec.Label, lc.parentLabel())
		if !d.Allowed {
			return DecisionError(d)
		}

		restored := map[string]int{}
		var st subtree
		var batch *catalog.DeletionBatch
		if row.DeletionBatchID != nil {
			batchID := *row.DeletionBatchID
			st, err = a.collectSubtree(dbc, lc, in.ID, catalogrepo.ListOptions{
				ReadOptions: catalogrepo.ReadOptions{IncludeDeleted: true, Lock: true},
				BatchID:     &batchID,
				OnlyDeleted: true,
			})
			if err != nil {
				return err
			}
			if batch, err = a.repos.Batches.GetByID(dbc, batchID); err != nil {
				return err
			}
		}

		siblings, err := lc.nodes.ListByScope(dbc, row.ParentID, catalogrepo.ListOptions{})
		if err != nil {
			return err
		}
		if _, err := lc.nodes.RestoreByIDs(dbc, []uuid.UUID{in.ID}); err != nil {
			return err
		}
		for _, s := range siblings {
			if s.Position != row.Position {
				continue
			}
			maxPos, err := lc.nodes.MaxPosition(dbc, row.ParentID)
			if err != nil {
				return err
			}
			if err := lc.nodes.UpdatePositions(dbc, map[uuid.UUID]int{in.ID: maxPos + 1}); err != nil {
				return err
			}
			out.Repositioned = true
			break
		}

		for _, l := range st.levels {
			ids := st.ids[l.Level]
			if len(ids) == 0 {
				continue
			}
			n, err := a.repos.Nodes[l.Level].RestoreByIDs(dbc, ids)
			if err != nil {
				return err
			}
			restored[l.Plural] = int(n)
			a.base.Hooks.ObserveCascade("restore", string(l.Level), int(n))
		}

		if batch != nil {
			items, err := batch.DecodeItems()
			if err != nil {
				return InvariantError(fmt.Sprintf("deletion batch %s is unreadable: %v", batch.ID, err))
			}
			if ids := items[catalog.ContentKey]; len(ids) > 0 {
				n, err := a.content.Restore(dbc, ids)
				if err != nil {
					return err
				}
				if n > 0 {
					restored[catalog.ContentKey] = int(n)
				}
			}
			if batch.RootID == in.ID {
				if err := a.repos.Batches.DeleteByIDs(dbc, []uuid.UUID{batch.ID}); err != nil {
					return err
				}
			}
		} else if row.DeletionBatchID != nil {
			a.log.Warn("deletion batch missing on restore", "level", lc.spec.Level, "id", in.ID, "batch_id", *row.DeletionBatchID)
		}

		e, err := a.reload(dbc, lc, in.ID, false)
		if err != nil {
			return err
		}
		out.Entity = e
		out.Restored = restored
		return nil
	}, spanAttrs(in.Level, in.ID)...)
	return out, err
}

func (a *catalogAggregate) HardDelete(ctx context.Context, in domainagg.HardDeleteInput) (domainagg.HardDeleteResult, error) {
	out := domainagg.HardDeleteResult{Level: in.Level, ID: in.ID}
	lc, err := a.level(in.Level)
	if err != nil {
		return out, MapError(opHardDelete, err)
	}
	err = executeWrite(ctx, a.base, opHardDelete, func(dbc dbctx.Context) error {
		sc, row, err := a.lockTarget(dbc, lc, in.ID, true)
		if err != nil {
			return err
		}
		if !row.Deleted() {
			d := lifecycle.Validate(lifecycle.Check{
				ParentStatus: sc.parentStatus(),
				EntityStatus: &row.Status,
				Action:       lifecycle.ActionDelete,
				Entity:       lc.spec.Label,
				Parent:       lc.parentLabel(),
			})
			if !d.Allowed {
				return DecisionError(d)
			}
		}

		st, err := a.collectSubtree(dbc, lc, in.ID, catalogrepo.ListOptions{ReadOptions: catalogrepo.ReadOptions{IncludeDeleted: true, Lock: true}})
		if err != nil {
			return err
		}
		keys, err := a.content.CleanupOnHardDelete(dbc, lessonIDs(lc, in.ID, st))
		if err != nil {
			return err
		}
		deleted := st.counts()
		for i := len(st.levels) - 1; i >= 0; i-- {
			l := st.levels[i]
			ids := st.ids[l.Level]
			if len(ids) == 0 {
				continue
			}
			if err := a.repos.Nodes[l.Level].FullDeleteByIDs(dbc, ids); err != nil {
				return err
			}
			a.base.Hooks.ObserveCascade("purge", string(l.Level), len(ids))
		}
		if err := lc.nodes.FullDeleteByIDs(dbc, []uuid.UUID{in.ID}); err != nil {
			return err
		}
		deleted[lc.spec.Plural]++

		roots := []uuid.UUID{in.ID}
		for _, ids := range st.ids {
			roots = append(roots, ids...)
		}
		if _, err := a.repos.Batches.DeleteByRootIDs(dbc, roots); err != nil {
			return err
		}

		renumbered, err := a.renumber(dbc, lc, row.ParentID)
		if err != nil {
			return err
		}
		out.Deleted = deleted
		out.Renumbered = renumbered
		out.BlobKeys = keys
		a.log.Debug("catalog entity purged", "level", lc.spec.Level, "id", in.ID, "deleted", deleted, "blob_keys", len(keys))
		return nil
	}, spanAttrs(in.Level, in.ID)...)
	return out, err
}
