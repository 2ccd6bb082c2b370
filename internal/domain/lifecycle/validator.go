package lifecycle

import (
	"fmt"
	"strings"
)

// Rule names reported on a Decision so callers and logs can tell which
// table produced the answer.
const (
	RulePermission  = "action_permission"
	RuleCreate      = "create"
	RuleUpdate      = "update_matrix"
	RuleDelete      = "delete_matrix"
	RuleRestore     = "restore_matrix"
	RuleUndelete    = "undelete_matrix"
	RuleReorder     = "reorder"
	RuleTransition  = "transition"
	RuleParentScope = "allowed_children"
	RuleInput       = "input"
)

// Decision is the outcome of a lifecycle check. Denials always carry a
// user-facing Reason.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Rule    string `json:"rule,omitempty"`
}

func allowed() Decision { return Decision{Allowed: true} }

func denied(rule, reason string) Decision {
	return Decision{Allowed: false, Rule: rule, Reason: reason}
}

// Check describes one parent-aware action on an entity. A nil ParentStatus
// means the entity lives at the root of its hierarchy. EntityStatus is nil
// for create.
type Check struct {
	ParentStatus *Status
	EntityStatus *Status
	Action       Action
	Entity       string
	Parent       string
}

func (c Check) names() (entity, parent string) {
	entity, parent = c.Entity, c.Parent
	if entity == "" {
		entity = "entity"
	}
	if parent == "" {
		parent = "parent"
	}
	return entity, parent
}

func render(tmpl, entity, parent string, status Status) string {
	r := strings.NewReplacer("{entity}", entity, "{parent}", parent, "{status}", string(status))
	return r.Replace(tmpl)
}

// Validate decides whether the action in c is legal. It never panics and
// never returns an error; malformed checks come back as denials.
func Validate(c Check) Decision {
	entity, parent := c.names()

	if c.ParentStatus != nil && !c.ParentStatus.Valid() {
		return denied(RuleInput, fmt.Sprintf("unknown parent status %q", *c.ParentStatus))
	}
	if c.EntityStatus != nil && !c.EntityStatus.Valid() {
		return denied(RuleInput, fmt.Sprintf("unknown %s status %q", entity, *c.EntityStatus))
	}

	switch c.Action {
	case ActionCreate:
		return validateCreate(c.ParentStatus, entity, parent)
	case ActionUpdate:
		return validateMatrix(c, updateRules, RuleUpdate, entity, parent)
	case ActionDelete:
		return validateMatrix(c, deleteRules, RuleDelete, entity, parent)
	case ActionRestore:
		return validateRestore(c, entity, parent)
	case ActionReorder:
		return validateReorder(c, entity, parent)
	}
	return denied(RuleInput, fmt.Sprintf("unknown action %q", c.Action))
}

func validateCreate(ps *Status, entity, parent string) Decision {
	if ps == nil {
		return allowed()
	}
	switch *ps {
	case StatusArchived:
		return denied(RuleCreate, fmt.Sprintf("cannot create under archived parent %s", parent))
	case StatusInactive:
		return denied(RuleCreate, fmt.Sprintf("cannot create under inactive parent %s; republish it first", parent))
	}
	return allowed()
}

func validateMatrix(c Check, m matrix, ruleName, entity, parent string) Decision {
	if c.EntityStatus == nil {
		return denied(RuleInput, fmt.Sprintf("%s status is required for %s", entity, c.Action))
	}
	es := *c.EntityStatus
	if c.Action == ActionUpdate && !CanPerform(es, ActionUpdate) {
		return denied(RulePermission, render("cannot update an archived {entity}; restore it first", entity, parent, es))
	}
	if c.ParentStatus == nil {
		return allowed()
	}
	r, ok := m.lookup(*c.ParentStatus, es)
	if !ok {
		return denied(ruleName, fmt.Sprintf("no %s rule for %s under %s", c.Action, es, *c.ParentStatus))
	}
	if !r.allowed {
		return denied(ruleName, render(r.reason, entity, parent, es))
	}
	return allowed()
}

func validateRestore(c Check, entity, parent string) Decision {
	if c.EntityStatus == nil {
		return denied(RuleInput, fmt.Sprintf("%s status is required for restore", entity))
	}
	es := *c.EntityStatus
	if c.ParentStatus == nil {
		if !CanPerform(es, ActionRestore) {
			return denied(RuleRestore, fmt.Sprintf("nothing to restore: %s is %s", entity, es))
		}
		return allowed()
	}
	return validateMatrix(c, restoreRules, RuleRestore, entity, parent)
}

func validateReorder(c Check, entity, parent string) Decision {
	if c.ParentStatus != nil {
		switch *c.ParentStatus {
		case StatusInactive, StatusArchived:
			return denied(RuleReorder, fmt.Sprintf("cannot reorder %s under %s parent %s", entity, *c.ParentStatus, parent))
		}
	}
	if c.EntityStatus != nil && !CanPerform(*c.EntityStatus, ActionReorder) {
		return denied(RulePermission, fmt.Sprintf("cannot reorder a %s %s", *c.EntityStatus, entity))
	}
	return allowed()
}

// ValidateTransition checks the base status graph only.
func ValidateTransition(from, to Status, entity string) Decision {
	if entity == "" {
		entity = "entity"
	}
	if !from.Valid() || !to.Valid() {
		return denied(RuleInput, fmt.Sprintf("unknown status transition %q -> %q", from, to))
	}
	if from == to {
		return denied(RuleTransition, fmt.Sprintf("%s is already %s", entity, to))
	}
	if to == StatusDraft {
		return denied(RuleTransition, fmt.Sprintf("cannot revert %s to draft once it has left draft", entity))
	}
	if !CanTransition(from, to) {
		return denied(RuleTransition, fmt.Sprintf("cannot move %s from %s to %s; publish it first", entity, from, to))
	}
	return allowed()
}

// ValidateStatusChange composes the base transition, the restore matrix when
// an inactive or archived entity is reactivated, and the parent's tolerance
// for the target status.
func ValidateStatusChange(parentStatus *Status, from, to Status, entity, parent string) Decision {
	if d := ValidateTransition(from, to, entity); !d.Allowed {
		return d
	}
	if parentStatus == nil {
		return allowed()
	}
	if parent == "" {
		parent = "parent"
	}
	if to == StatusPublished && (from == StatusInactive || from == StatusArchived) {
		if d := Validate(Check{ParentStatus: parentStatus, EntityStatus: &from, Action: ActionRestore, Entity: entity, Parent: parent}); !d.Allowed {
			return d
		}
	}
	if !AcceptsChild(*parentStatus, to) {
		return denied(RuleParentScope, fmt.Sprintf("cannot set %s to %s while parent %s is %s", entity, to, parent, *parentStatus))
	}
	return allowed()
}

// ValidateUndelete decides whether a soft-deleted entity whose status was
// childStatus may come back under its parent's current state.
func ValidateUndelete(parentStatus *Status, parentDeleted bool, childStatus Status, entity, parent string) Decision {
	if entity == "" {
		entity = "entity"
	}
	if parent == "" {
		parent = "parent"
	}
	if !childStatus.Valid() {
		return denied(RuleInput, fmt.Sprintf("unknown %s status %q", entity, childStatus))
	}
	if parentDeleted {
		return denied(RuleUndelete, fmt.Sprintf("cannot restore %s: parent %s is deleted; restore parent first", entity, parent))
	}
	if parentStatus == nil {
		return allowed()
	}
	r, ok := undeleteRules.lookup(*parentStatus, childStatus)
	if !ok {
		return denied(RuleInput, fmt.Sprintf("unknown parent status %q", *parentStatus))
	}
	if !r.allowed {
		return denied(RuleUndelete, render(r.reason, entity, parent, childStatus))
	}
	return allowed()
}
