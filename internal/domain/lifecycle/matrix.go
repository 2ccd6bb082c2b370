package lifecycle

// rule is one cell of a (parent, child) matrix. Reason templates may use
// {entity} and {parent}; they are filled in by the validator.
type rule struct {
	allowed bool
	reason  string
}

func allow() rule { return rule{allowed: true} }

func deny(reason string) rule { return rule{reason: reason} }

type matrix map[Status]map[Status]rule

func (m matrix) lookup(parent, child Status) (rule, bool) {
	row, ok := m[parent]
	if !ok {
		return rule{}, false
	}
	r, ok := row[child]
	return r, ok
}

const invalidStateReason = "invalid state: a {parent} in draft cannot contain a {status} {entity}"

// actionPermissions lists what an entity may undergo given its own status.
var actionPermissions = map[Status]map[Action]bool{
	StatusDraft: {
		ActionCreate: true, ActionUpdate: true, ActionDelete: true, ActionReorder: true,
	},
	StatusPublished: {
		ActionCreate: true, ActionUpdate: true, ActionDelete: true, ActionReorder: true,
	},
	StatusInactive: {
		ActionUpdate: true, ActionDelete: true, ActionRestore: true,
	},
	StatusArchived: {
		ActionRestore: true,
	},
}

// CanPerform reports whether an entity in status s permits action a on itself.
func CanPerform(s Status, a Action) bool {
	return actionPermissions[s][a]
}

var deleteRules = matrix{
	StatusDraft: {
		StatusDraft:     allow(),
		StatusPublished: deny(invalidStateReason),
		StatusInactive:  deny(invalidStateReason),
		StatusArchived:  deny(invalidStateReason),
	},
	StatusPublished: {
		StatusDraft:     allow(),
		StatusPublished: allow(),
		StatusInactive:  deny("cannot delete an inactive {entity}; republish it first"),
		StatusArchived:  allow(),
	},
	StatusInactive: {
		StatusDraft:     deny("cannot delete {entity}: parent {parent} is inactive"),
		StatusPublished: deny("cannot delete {entity}: parent {parent} is inactive"),
		StatusInactive:  deny("cannot delete {entity}: parent {parent} is inactive"),
		StatusArchived:  deny("cannot delete {entity}: parent {parent} is inactive"),
	},
	StatusArchived: {
		StatusDraft:     deny("cannot delete {entity}: parent is archived forever ({parent})"),
		StatusPublished: deny("cannot delete {entity}: parent is archived forever ({parent})"),
		StatusInactive:  deny("cannot delete {entity}: parent is archived forever ({parent})"),
		StatusArchived:  deny("cannot delete {entity}: parent is archived forever ({parent})"),
	},
}

// restoreRules govern reactivation: bringing an inactive or archived child
// back to published.
var restoreRules = matrix{
	StatusDraft: {
		StatusDraft:     deny("nothing to restore: {entity} is a draft"),
		StatusPublished: deny(invalidStateReason),
		StatusInactive:  deny(invalidStateReason),
		StatusArchived:  deny(invalidStateReason),
	},
	StatusPublished: {
		StatusDraft:     deny("nothing to restore: {entity} is a draft"),
		StatusPublished: deny("nothing to restore: {entity} is already published"),
		StatusInactive:  allow(),
		StatusArchived:  allow(),
	},
	StatusInactive: {
		StatusDraft:     deny("cannot restore {entity}: parent {parent} is inactive; restore parent first"),
		StatusPublished: deny("cannot restore {entity}: parent {parent} is inactive; restore parent first"),
		StatusInactive:  deny("cannot restore {entity}: parent {parent} is inactive; restore parent first"),
		StatusArchived:  deny("cannot restore {entity}: parent {parent} is inactive; restore parent first"),
	},
	StatusArchived: {
		StatusDraft:     deny("cannot restore {entity}: parent {parent} is archived; restore parent first"),
		StatusPublished: deny("cannot restore {entity}: parent {parent} is archived; restore parent first"),
		StatusInactive:  deny("cannot restore {entity}: parent {parent} is archived; restore parent first"),
		StatusArchived:  deny("cannot restore {entity}: parent {parent} is archived; restore parent first"),
	},
}

var updateRules = matrix{
	StatusDraft: {
		StatusDraft:     allow(),
		StatusPublished: deny(invalidStateReason),
		StatusInactive:  deny(invalidStateReason),
		StatusArchived:  deny(invalidStateReason),
	},
	StatusPublished: {
		StatusDraft:     allow(),
		StatusPublished: allow(),
		StatusInactive:  allow(),
		StatusArchived:  deny("cannot update an archived {entity}; restore it first"),
	},
	StatusInactive: {
		StatusDraft:     deny("cannot update {entity}: parent {parent} is inactive"),
		StatusPublished: deny("cannot update {entity}: parent {parent} is inactive"),
		StatusInactive:  allow(),
		StatusArchived:  deny("cannot update {entity}: parent {parent} is inactive"),
	},
	StatusArchived: {
		StatusDraft:     deny("cannot update {entity}: parent {parent} is archived"),
		StatusPublished: deny("cannot update {entity}: parent {parent} is archived"),
		StatusInactive:  deny("cannot update {entity}: parent {parent} is archived"),
		StatusArchived:  deny("cannot update {entity}: parent {parent} is archived"),
	},
}

// undeleteRules decide whether a soft-deleted child with the given
// pre-deletion status may come back under the parent's current status.
var undeleteRules = matrix{
	StatusDraft: {
		StatusDraft:     allow(),
		StatusPublished: deny("cannot restore a {status} {entity} under a draft {parent}"),
		StatusInactive:  deny("cannot restore a {status} {entity} under a draft {parent}"),
		StatusArchived:  deny("cannot restore a {status} {entity} under a draft {parent}"),
	},
	StatusPublished: {
		StatusDraft:     allow(),
		StatusPublished: allow(),
		StatusInactive:  allow(),
		StatusArchived:  allow(),
	},
	StatusInactive: {
		StatusDraft:     deny("cannot restore to inactive parent; reactivate parent first ({parent} is inactive)"),
		StatusPublished: deny("cannot restore to inactive parent; reactivate parent first ({parent} is inactive)"),
		StatusInactive:  deny("cannot restore to inactive parent; reactivate parent first ({parent} is inactive)"),
		StatusArchived:  deny("cannot restore to inactive parent; reactivate parent first ({parent} is inactive)"),
	},
	StatusArchived: {
		StatusDraft:     deny("cannot restore to archived parent; restore parent first ({parent} is archived)"),
		StatusPublished: deny("cannot restore to archived parent; restore parent first ({parent} is archived)"),
		StatusInactive:  deny("cannot restore to archived parent; restore parent first ({parent} is archived)"),
		StatusArchived:  deny("cannot restore to archived parent; restore parent first ({parent} is archived)"),
	},
}

// transitions is the base status graph. Nothing leads back to draft.
var transitions = map[Status]map[Status]bool{
	StatusDraft:     {StatusPublished: true},
	StatusPublished: {StatusInactive: true, StatusArchived: true},
	StatusInactive:  {StatusPublished: true},
	StatusArchived:  {StatusPublished: true},
}

// CanTransition reports whether from→to is an edge of the base status graph.
func CanTransition(from, to Status) bool {
	return transitions[from][to]
}

// NextStatuses returns the statuses directly reachable from s, in lifecycle order.
func NextStatuses(s Status) []Status {
	out := make([]Status, 0, 2)
	for _, cand := range Statuses {
		if transitions[s][cand] {
			out = append(out, cand)
		}
	}
	return out
}

var allowedChildren = map[Status]map[Status]bool{
	StatusDraft:     {StatusDraft: true},
	StatusPublished: {StatusDraft: true, StatusPublished: true, StatusInactive: true, StatusArchived: true},
	StatusInactive:  {StatusInactive: true, StatusArchived: true},
	StatusArchived:  {StatusArchived: true},
}

// AllowedChildrenFor returns the child statuses a parent in status s tolerates.
func AllowedChildrenFor(s Status) []Status {
	out := make([]Status, 0, len(Statuses))
	for _, cand := range Statuses {
		if allowedChildren[s][cand] {
			out = append(out, cand)
		}
	}
	return out
}

// AcceptsChild reports whether child is in AllowedChildrenFor(parent).
func AcceptsChild(parent, child Status) bool {
	return allowedChildren[parent][child]
}
