package lifecycle

import (
	"strings"
	"testing"
)

func TestAnalyzeParentChangeNoImpact(t *testing.T) {
	got := AnalyzeParentChange(StatusPublished, []Status{d, p, i, a}, "chapter", "lessons")
	if got.WillMakeInaccessible {
		t.Fatalf("WillMakeInaccessible: want=false got=true")
	}
	if got.Resolution != ResolutionNone {
		t.Fatalf("resolution: want=%s got=%s", ResolutionNone, got.Resolution)
	}
	if len(got.AffectedChildren) != 0 {
		t.Fatalf("affected: want none got=%v", got.AffectedChildren)
	}
}

func TestAnalyzeParentChangeInactive(t *testing.T) {
	got := AnalyzeParentChange(StatusInactive, []Status{p, d, i}, "chapter", "lessons")
	if !got.WillMakeInaccessible {
		t.Fatalf("WillMakeInaccessible: want=true got=false")
	}
	if len(got.AffectedChildren) != 2 {
		t.Fatalf("affected: want=2 got=%d (%v)", len(got.AffectedChildren), got.AffectedChildren)
	}
	if got.Counts[p] != 1 || got.Counts[d] != 1 {
		t.Fatalf("counts: got=%v", got.Counts)
	}
	if got.Resolution != ResolutionAutoDowngrade {
		t.Fatalf("resolution: want=%s got=%s", ResolutionAutoDowngrade, got.Resolution)
	}
	if !strings.Contains(got.Recommendation, "deactivate") {
		t.Fatalf("recommendation: got=%q", got.Recommendation)
	}
	if got.Summary != "2 lessons affected (1 draft, 1 published)" {
		t.Fatalf("summary: got=%q", got.Summary)
	}
	if got.Affected(i) {
		t.Fatalf("Affected(inactive): want=false")
	}
}

func TestAnalyzeParentChangeArchived(t *testing.T) {
	got := AnalyzeParentChange(StatusArchived, []Status{i, a}, "course", "chapters")
	if got.Resolution != ResolutionAutoDowngrade || len(got.AffectedChildren) != 1 {
		t.Fatalf("archived: got=%+v", got)
	}
	if !strings.Contains(got.Recommendation, "archive") {
		t.Fatalf("recommendation: got=%q", got.Recommendation)
	}
}

func TestAnalyzeParentChangeDraftBlocks(t *testing.T) {
	got := AnalyzeParentChange(StatusDraft, []Status{p}, "course", "chapters")
	if got.Resolution != ResolutionBlock {
		t.Fatalf("resolution: want=%s got=%s", ResolutionBlock, got.Resolution)
	}
}
