package lifecycle

import (
	"fmt"
	"strings"
)

// Resolution is what the cascade executor should do about affected children.
type Resolution string

const (
	ResolutionNone          Resolution = "none"
	ResolutionAutoDowngrade Resolution = "auto_downgrade"
	ResolutionBlock         Resolution = "block"
)

// Impact describes how a prospective parent status change lands on the
// parent's direct children.
type Impact struct {
	NewParentStatus      Status         `json:"newParentStatus"`
	WillMakeInaccessible bool           `json:"willMakeInaccessible"`
	AffectedChildren     []Status       `json:"affectedChildren"`
	Counts               map[Status]int `json:"counts,omitempty"`
	Summary              string         `json:"summary"`
	Recommendation       string         `json:"recommendation"`
	Resolution           Resolution     `json:"resolution"`
}

// Affected reports whether a child in status s falls outside the new parent's
// allowance.
func (i Impact) Affected(s Status) bool {
	return !AcceptsChild(i.NewParentStatus, s)
}

// AnalyzeParentChange computes which children become policy-invalid if their
// parent moves to newParent. childName is the plural label used in messages.
func AnalyzeParentChange(newParent Status, children []Status, parentName, childName string) Impact {
	if parentName == "" {
		parentName = "parent"
	}
	if childName == "" {
		childName = "children"
	}
	out := Impact{
		NewParentStatus:  newParent,
		AffectedChildren: []Status{},
		Resolution:       ResolutionNone,
	}

	counts := map[Status]int{}
	for _, s := range children {
		if AcceptsChild(newParent, s) {
			continue
		}
		out.AffectedChildren = append(out.AffectedChildren, s)
		counts[s]++
	}

	if len(out.AffectedChildren) == 0 {
		out.Summary = fmt.Sprintf("no %s affected", childName)
		out.Recommendation = fmt.Sprintf("safe to set %s to %s", parentName, newParent)
		return out
	}

	out.WillMakeInaccessible = true
	out.Counts = counts
	out.Summary = summarize(len(out.AffectedChildren), counts, childName)

	switch newParent {
	case StatusInactive:
		out.Resolution = ResolutionAutoDowngrade
		out.Recommendation = fmt.Sprintf("deactivate the affected %s first, or they become inaccessible once %s is inactive", childName, parentName)
	case StatusArchived:
		out.Resolution = ResolutionAutoDowngrade
		out.Recommendation = fmt.Sprintf("archive the affected %s first, or they become inaccessible once %s is archived", childName, parentName)
	case StatusDraft:
		out.Resolution = ResolutionBlock
		out.Recommendation = fmt.Sprintf("cannot move %s to draft while it has non-draft %s", parentName, childName)
	default:
		out.Resolution = ResolutionBlock
		out.Recommendation = fmt.Sprintf("%s cannot hold these %s as %s", parentName, childName, newParent)
	}
	return out
}

func summarize(total int, counts map[Status]int, childName string) string {
	parts := make([]string, 0, len(counts))
	for _, s := range Statuses {
		if n := counts[s]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, s))
		}
	}
	return fmt.Sprintf("%d %s affected (%s)", total, childName, strings.Join(parts, ", "))
}
