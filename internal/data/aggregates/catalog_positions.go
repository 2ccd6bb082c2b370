package aggregates

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	catalogrepo "github.com/yungbote/coursecatalog-backend/internal/data/repos/catalog"
	domainagg "github.com/yungbote/coursecatalog-backend/internal/domain/aggregates"
	"github.com/yungbote/coursecatalog-backend/internal/domain/lifecycle"
	"github.com/yungbote/coursecatalog-backend/internal/pkg/dbctx"
)

// checkPositionEntries validates a batch on its own, before any row is read.
func checkPositionEntries(entries []domainagg.PositionEntry) error {
	if len(entries) == 0 {
		return ValidationError("positions are required")
	}
	ids := make(map[uuid.UUID]struct{}, len(entries))
	positions := make(map[int]struct{}, len(entries))
	for _, e := range entries {
		if e.ID == uuid.Nil {
			return ValidationError("position entries need an id")
		}
		if _, dup := ids[e.ID]; dup {
			return ValidationError(fmt.Sprintf("duplicate id %s in positions", e.ID))
		}
		ids[e.ID] = struct{}{}
		if _, dup := positions[e.Position]; dup {
			return ValidationError("duplicate positions detected")
		}
		positions[e.Position] = struct{}{}
		if e.Position < 1 {
			return ValidationError(fmt.Sprintf("position must be >= 1, got %d", e.Position))
		}
	}
	return nil
}

func sameScope(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (a *catalogAggregate) Reposition(ctx context.Context, in domainagg.RepositionInput) (domainagg.RepositionResult, error) {
	out := domainagg.RepositionResult{Level: in.Level}
	lc, err := a.level(in.Level)
	if err != nil {
		return out, MapError(opReposition, err)
	}
	if err := checkPositionEntries(in.Entries); err != nil {
		return out, MapError(opReposition, err)
	}
	ids := make([]uuid.UUID, 0, len(in.Entries))
	for _, e := range in.Entries {
		ids = append(ids, e.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	err = executeWrite(ctx, a.base, opReposition, func(dbc dbctx.Context) error {
		rows, err := lc.nodes.GetByIDs(dbc, ids, catalogrepo.ReadOptions{})
		if err != nil {
			return err
		}
		if err := requireAllFound(lc, ids, rows); err != nil {
			return err
		}
		parentID := rows[0].ParentID
		for _, r := range rows[1:] {
			if !sameScope(parentID, r.ParentID) {
				return ValidationError(lc.spec.Plural + " in one reposition must share a parent")
			}
		}

		sc, err := a.lockScope(dbc, lc, parentID)
		if err != nil {
			return err
		}
		if sc.parent != nil && sc.parent.Deleted() {
			return NotFoundError(fmt.Sprintf("%s %s not found", lc.parent.Label, *parentID))
		}
		locked, err := lc.nodes.GetByIDs(dbc, ids, catalogrepo.ReadOptions{Lock: true})
		if err != nil {
			return err
		}
		if len(locked) != len(ids) {
			return ConflictError(lc.spec.Plural + " changed concurrently")
		}
		for _, r := range locked {
			if !sameScope(parentID, r.ParentID) {
				return ConflictError(lc.spec.Plural + " changed concurrently")
			}
			d := lifecycle.Validate(lifecycle.Check{
				ParentStatus: sc.parentStatus(),
				EntityStatus: &r.Status,
				Action:       lifecycle.ActionReorder,
				Entity:       lc.spec.Label,
				Parent:       lc.parentLabel(),
			})
			if !d.Allowed {
				return DecisionError(d)
			}
		}

		siblings, err := lc.nodes.ListByScope(dbc, parentID, catalogrepo.ListOptions{})
		if err != nil {
			return err
		}
		inBatch := make(map[uuid.UUID]int, len(in.Entries))
		for _, e := range in.Entries {
			if e.Position > len(siblings) {
				return ValidationError(fmt.Sprintf("position %d is out of range 1..%d", e.Position, len(siblings)))
			}
			inBatch[e.ID] = e.Position
		}
		held := make(map[int]uuid.UUID, len(siblings))
		for _, s := range siblings {
			if _, ok := inBatch[s.ID]; !ok {
				held[s.Position] = s.ID
			}
		}
		for _, e := range in.Entries {
			if other, taken := held[e.Position]; taken {
				return ConflictError(fmt.Sprintf("position %d is held by %s %s outside the batch", e.Position, lc.spec.Label, other))
			}
		}

		if err := lc.nodes.UpdatePositions(dbc, inBatch); err != nil {
			return err
		}
		out.ParentID = parentID
		out.Updated = len(inBatch)
		return nil
	}, spanAttrs(in.Level, uuid.Nil)...)
	return out, err
}

func requireAllFound(lc levelCtx, ids []uuid.UUID, rows []*catalogrepo.NodeRow) error {
	if len(rows) == len(ids) {
		return nil
	}
	found := make(map[uuid.UUID]struct{}, len(rows))
	for _, r := range rows {
		found[r.ID] = struct{}{}
	}
	var missing []string
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id.String())
		}
	}
	return NotFoundError(fmt.Sprintf("%s not found: %s", lc.spec.Plural, strings.Join(missing, ", ")))
}

// renumber closes gaps in the active siblings of a scope, keeping their order.
func (a *catalogAggregate) renumber(dbc dbctx.Context, lc levelCtx, parentID *uuid.UUID) (int, error) {
	siblings, err := lc.nodes.ListByScope(dbc, parentID, catalogrepo.ListOptions{ReadOptions: catalogrepo.ReadOptions{Lock: true}})
	if err != nil {
		return 0, err
	}
	changes := map[uuid.UUID]int{}
	for i, s := range siblings {
		if s.Position != i+1 {
			changes[s.ID] = i + 1
		}
	}
	if err := lc.nodes.UpdatePositions(dbc, changes); err != nil {
		return 0, err
	}
	return len(changes), nil
}
