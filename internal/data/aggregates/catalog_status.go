package aggregates

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	catalogrepo "github.com/yungbote/coursecatalog-backend/internal/data/repos/catalog"
	domainagg "github.com/yungbote/coursecatalog-backend/internal/domain/aggregates"
	"github.com/yungbote/coursecatalog-backend/internal/domain/lifecycle"
	"github.com/yungbote/coursecatalog-backend/internal/pkg/dbctx"
)

func (a *catalogAggregate) ChangeStatus(ctx context.Context, in domainagg.ChangeStatusInput) (domainagg.ChangeStatusResult, error) {
	out := domainagg.ChangeStatusResult{Level: in.Level, To: in.Status}
	lc, err := a.level(in.Level)
	if err != nil {
		return out, MapError(opChangeStatus, err)
	}
	if !in.Status.Valid() {
		return out, MapError(opChangeStatus, ValidationError(fmt.Sprintf("unknown status %q", in.Status)))
	}
	err = executeWrite(ctx, a.base, opChangeStatus, func(dbc dbctx.Context) error {
		res, err := a.changeStatus(dbc, lc, in.ID, in.Status)
		if err != nil {
			return err
		}
		out = res
		return nil
	}, spanAttrs(in.Level, in.ID)...)
	return out, err
}

// changeStatus runs one status change inside the caller's transaction.
func (a *catalogAggregate) changeStatus(dbc dbctx.Context, lc levelCtx, id uuid.UUID, to lifecycle.Status) (domainagg.ChangeStatusResult, error) {
	out := domainagg.ChangeStatusResult{Level: lc.spec.Level, To: to}
	sc, row, err := a.lockTarget(dbc, lc, id, false)
	if err != nil {
		return out, err
	}
	out.From = row.Status

	d := lifecycle.ValidateStatusChange(sc.parentStatus(), row.Status, to, lc.spec.Label, lc.parentLabel())
	if !d.Allowed {
		return out, DecisionError(d)
	}
	if _, err := a.chart.Step(lc.spec.Label, row.Status, to); err != nil {
		return out, BusinessRuleError(err.Error())
	}
	if to == lifecycle.StatusPublished && lc.spec.RequireChildrenToPublish {
		if err := a.requireActiveChildren(dbc, lc, id); err != nil {
			return out, err
		}
	}

	now := a.deps.Now()
	ok, err := a.base.CASGuard.UpdateByStatus(dbc, lc.spec.Table, id, []lifecycle.Status{row.Status}, catalogrepo.StatusUpdates(to, now))
	if err != nil {
		return out, err
	}
	if err := RequireCASSuccess(ok, fmt.Sprintf("%s %s changed concurrently", lc.spec.Label, id)); err != nil {
		return out, err
	}

	impact, updated, err := a.cascadeStatus(dbc, lc, []uuid.UUID{id}, to, now)
	if err != nil {
		return out, err
	}
	out.Impact = impact
	out.CascadeUpdated = updated

	e, err := a.reload(dbc, lc, id, false)
	if err != nil {
		return out, err
	}
	out.Entity = e
	a.log.Debug("catalog status changed", "level", lc.spec.Level, "id", id, "from", out.From, "to", to, "cascade", updated)
	return out, nil
}

func (a *catalogAggregate) requireActiveChildren(dbc dbctx.Context, lc levelCtx, id uuid.UUID) error {
	child, ok := a.h.Child(lc.spec.Level)
	if !ok {
		return nil
	}
	n, err := a.repos.Nodes[child.Level].CountActiveByScope(dbc, &id)
	if err != nil {
		return err
	}
	if n == 0 {
		return BusinessRuleError("cannot publish without " + child.Plural)
	}
	return nil
}

// cascadeStatus moves active descendants of parentIDs that the new status no
// longer tolerates to that status, one level at a time. Only parents that
// changed are followed further down. The returned impact is the one on the
// direct children.
func (a *catalogAggregate) cascadeStatus(dbc dbctx.Context, lc levelCtx, parentIDs []uuid.UUID, to lifecycle.Status, now time.Time) (lifecycle.Impact, map[string]int, error) {
	updated := map[string]int{}
	var first *lifecycle.Impact
	parentLabel := lc.spec.Label
	for _, d := range a.h.Descendants(lc.spec.Level) {
		if len(parentIDs) == 0 {
			break
		}
		nodes := a.repos.Nodes[d.Level]
		rows, err := nodes.ListByParents(dbc, parentIDs, catalogrepo.ListOptions{ReadOptions: catalogrepo.ReadOptions{Lock: true}})
		if err != nil {
			return lifecycle.Impact{}, nil, err
		}
		statuses := make([]lifecycle.Status, 0, len(rows))
		for _, r := range rows {
			statuses = append(statuses, r.Status)
		}
		impact := lifecycle.AnalyzeParentChange(to, statuses, parentLabel, d.Plural)
		if first == nil {
			first = &impact
		}
		if impact.Resolution == lifecycle.ResolutionBlock {
			return lifecycle.Impact{}, nil, BusinessRuleError(impact.Recommendation)
		}

		var affected []uuid.UUID
		for _, r := range rows {
			if impact.Affected(r.Status) {
				affected = append(affected, r.ID)
			}
		}
		if len(affected) > 0 {
			n, err := nodes.UpdateStatus(dbc, affected, to, now)
			if err != nil {
				return lifecycle.Impact{}, nil, err
			}
			updated[d.Plural] = int(n)
			a.base.Hooks.ObserveCascade("status", string(d.Level), int(n))
		}
		parentIDs = affected
		parentLabel = d.Label
	}
	if first == nil {
		return lifecycle.AnalyzeParentChange(to, nil, lc.spec.Label, ""), updated, nil
	}
	return *first, updated, nil
}

func (a *catalogAggregate) BulkChangeStatus(ctx context.Context, in domainagg.BulkChangeStatusInput) (domainagg.BulkChangeStatusResult, error) {
	out := domainagg.BulkChangeStatusResult{Level: in.Level, Status: in.Status}
	lc, err := a.level(in.Level)
	if err != nil {
		return out, MapError(opBulkChangeStatus, err)
	}
	if !in.Status.Valid() {
		return out, MapError(opBulkChangeStatus, ValidationError(fmt.Sprintf("unknown status %q", in.Status)))
	}
	ids, err := dedupeIDs(in.IDs)
	if err != nil {
		return out, MapError(opBulkChangeStatus, err)
	}

	var summary domainagg.BulkSummary
	err = executeWrite(ctx, a.base, opBulkChangeStatus, func(dbc dbctx.Context) error {
		summary = newBulkSummary(len(ids))
		for i, id := range ids {
			row, err := lc.nodes.GetByID(dbc, id, catalogrepo.ReadOptions{})
			if err != nil {
				return err
			}
			if row == nil {
				summary.NotFound++
				summary.NotFoundIDs = append(summary.NotFoundIDs, id)
				continue
			}
			if row.Status == in.Status {
				summary.Skipped++
				summary.SkippedIDs = append(summary.SkippedIDs, id)
				continue
			}

			var res domainagg.ChangeStatusResult
			err = inSavepoint(dbc, fmt.Sprintf("bulk_%d", i), func(dbc dbctx.Context) error {
				var err error
				res, err = a.changeStatus(dbc, lc, id, in.Status)
				return err
			})
			if err != nil {
				mapped := MapError(opBulkChangeStatus, err)
				switch domainagg.CodeOf(mapped) {
				case domainagg.CodeInternal, domainagg.CodeRetryable, domainagg.CodeTimeout:
					return err
				}
				summary.Failed++
				summary.Failures = append(summary.Failures, domainagg.BulkFailure{
					ID:     id,
					Reason: errorMessage(mapped),
					Code:   domainagg.CodeOf(mapped),
				})
				continue
			}
			summary.Successful++
			summary.SucceededIDs = append(summary.SucceededIDs, id)
			for k, n := range res.CascadeUpdated {
				summary.CascadeUpdated[k] += n
			}
		}
		if summary.Successful == 0 && summary.Skipped == 0 {
			code := domainagg.CodeBusinessRule
			if summary.NotFound == summary.Requested {
				code = domainagg.CodeNotFound
			}
			return domainagg.WithDetails(
				domainagg.NewError(code, opBulkChangeStatus, fmt.Sprintf("no %s could be updated", lc.spec.Plural), nil),
				summary,
			)
		}
		return nil
	}, append(spanAttrs(in.Level, uuid.Nil), attribute.Int("catalog.bulk_size", len(ids)))...)
	out.Summary = summary
	return out, err
}

func newBulkSummary(requested int) domainagg.BulkSummary {
	return domainagg.BulkSummary{
		Requested:      requested,
		SucceededIDs:   []uuid.UUID{},
		SkippedIDs:     []uuid.UUID{},
		NotFoundIDs:    []uuid.UUID{},
		Failures:       []domainagg.BulkFailure{},
		CascadeUpdated: map[string]int{},
	}
}

// dedupeIDs drops repeated ids and sorts the rest so bulk writers take row
// locks in one global order.
func dedupeIDs(ids []uuid.UUID) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, ValidationError("ids are required")
	}
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			return nil, ValidationError("ids must be valid uuids")
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func errorMessage(err error) string {
	var aggErr *domainagg.Error
	if errors.As(err, &aggErr) && aggErr.Message != "" {
		return aggErr.Message
	}
	return err.Error()
}
