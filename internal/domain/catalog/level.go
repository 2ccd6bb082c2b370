// Package catalog describes the course catalog hierarchy: the levels, how they
// nest, the per-level policies and the persisted entity models.
package catalog

import (
	"fmt"
	"strings"
)

type Level string

const (
	LevelCategory        Level = "category"
	LevelCourse          Level = "course"
	LevelChapter         Level = "chapter"
	LevelLesson          Level = "lesson"
	LevelResourceLibrary Level = "resource_library"
	LevelResource        Level = "resource"
)

// DeletePolicy decides what soft-deleting a parent with active children does.
type DeletePolicy string

const (
	DeleteCascade      DeletePolicy = "cascade"
	DeleteRequireEmpty DeletePolicy = "require_empty"
)

func (p DeletePolicy) Valid() bool {
	return p == DeleteCascade || p == DeleteRequireEmpty
}

// ContentKey partitions lesson payload ids inside a deletion batch.
const ContentKey = "contents"

// LevelSpec is everything the lifecycle engine needs to know about one tier.
type LevelSpec struct {
	Level        Level
	Label        string
	Plural       string
	Route        string
	Table        string
	ParentLevel  Level
	ParentColumn string
	ChildLevel   Level

	RequireChildrenToPublish bool
	DeletePolicy             DeletePolicy
	HasContent               bool
}

func (s LevelSpec) IsRoot() bool { return s.ParentLevel == "" }

func (s LevelSpec) HasChildren() bool { return s.ChildLevel != "" }

// Hierarchy is the ordered set of levels. It is built once at startup and
// read concurrently afterwards.
type Hierarchy struct {
	order  []Level
	levels map[Level]LevelSpec
}

func defaultLevels() []LevelSpec {
	return []LevelSpec{
		{
			Level: LevelCategory, Label: "category", Plural: "categories", Route: "categories",
			Table: "category", ChildLevel: LevelCourse,
			RequireChildrenToPublish: true, DeletePolicy: DeleteRequireEmpty,
		},
		{
			Level: LevelCourse, Label: "course", Plural: "courses", Route: "courses",
			Table: "course", ParentLevel: LevelCategory, ParentColumn: "category_id", ChildLevel: LevelChapter,
			RequireChildrenToPublish: true, DeletePolicy: DeleteRequireEmpty,
		},
		{
			Level: LevelChapter, Label: "chapter", Plural: "chapters", Route: "chapters",
			Table: "chapter", ParentLevel: LevelCourse, ParentColumn: "course_id", ChildLevel: LevelLesson,
			RequireChildrenToPublish: true, DeletePolicy: DeleteCascade,
		},
		{
			Level: LevelLesson, Label: "lesson", Plural: "lessons", Route: "lessons",
			Table: "lesson", ParentLevel: LevelChapter, ParentColumn: "chapter_id",
			DeletePolicy: DeleteCascade, HasContent: true,
		},
		{
			Level: LevelResourceLibrary, Label: "resource library", Plural: "resource libraries", Route: "resource-libraries",
			Table: "resource_library", ChildLevel: LevelResource,
			RequireChildrenToPublish: true, DeletePolicy: DeleteCascade,
		},
		{
			Level: LevelResource, Label: "resource", Plural: "resources", Route: "resources",
			Table: "resource", ParentLevel: LevelResourceLibrary, ParentColumn: "library_id",
			DeletePolicy: DeleteCascade,
		},
	}
}

// DefaultHierarchy returns the built-in catalog tree with default policies.
func DefaultHierarchy() *Hierarchy {
	h, err := NewHierarchy(defaultLevels())
	if err != nil {
		panic(err)
	}
	return h
}

// NewHierarchy validates the level graph: parents and children must point at
// each other and every table must be unique.
func NewHierarchy(specs []LevelSpec) (*Hierarchy, error) {
	h := &Hierarchy{levels: make(map[Level]LevelSpec, len(specs))}
	tables := map[string]Level{}
	for _, s := range specs {
		if s.Level == "" || strings.TrimSpace(s.Table) == "" {
			return nil, fmt.Errorf("level spec missing level or table: %+v", s)
		}
		if _, dup := h.levels[s.Level]; dup {
			return nil, fmt.Errorf("duplicate level %q", s.Level)
		}
		if other, dup := tables[s.Table]; dup {
			return nil, fmt.Errorf("table %q used by %q and %q", s.Table, other, s.Level)
		}
		if !s.DeletePolicy.Valid() {
			return nil, fmt.Errorf("level %q: invalid delete policy %q", s.Level, s.DeletePolicy)
		}
		tables[s.Table] = s.Level
		h.levels[s.Level] = s
		h.order = append(h.order, s.Level)
	}
	for _, s := range specs {
		if s.ParentLevel != "" {
			p, ok := h.levels[s.ParentLevel]
			if !ok || p.ChildLevel != s.Level {
				return nil, fmt.Errorf("level %q: parent %q does not list it as child", s.Level, s.ParentLevel)
			}
			if s.ParentColumn == "" {
				return nil, fmt.Errorf("level %q: parent column required", s.Level)
			}
		}
		if s.ChildLevel != "" {
			c, ok := h.levels[s.ChildLevel]
			if !ok || c.ParentLevel != s.Level {
				return nil, fmt.Errorf("level %q: child %q does not point back", s.Level, s.ChildLevel)
			}
		}
	}
	return h, nil
}

func (h *Hierarchy) Levels() []Level {
	out := make([]Level, len(h.order))
	copy(out, h.order)
	return out
}

func (h *Hierarchy) Spec(level Level) (LevelSpec, bool) {
	s, ok := h.levels[level]
	return s, ok
}

// MustSpec is for levels known at compile time.
func (h *Hierarchy) MustSpec(level Level) LevelSpec {
	s, ok := h.levels[level]
	if !ok {
		panic(fmt.Sprintf("unknown catalog level %q", level))
	}
	return s
}

func (h *Hierarchy) ByRoute(route string) (LevelSpec, bool) {
	for _, l := range h.order {
		if h.levels[l].Route == route {
			return h.levels[l], true
		}
	}
	return LevelSpec{}, false
}

func (h *Hierarchy) Parent(level Level) (LevelSpec, bool) {
	s, ok := h.levels[level]
	if !ok || s.ParentLevel == "" {
		return LevelSpec{}, false
	}
	return h.Spec(s.ParentLevel)
}

func (h *Hierarchy) Child(level Level) (LevelSpec, bool) {
	s, ok := h.levels[level]
	if !ok || s.ChildLevel == "" {
		return LevelSpec{}, false
	}
	return h.Spec(s.ChildLevel)
}

// Descendants returns the levels below level, nearest first.
func (h *Hierarchy) Descendants(level Level) []LevelSpec {
	var out []LevelSpec
	cur, ok := h.Child(level)
	for ok {
		out = append(out, cur)
		cur, ok = h.Child(cur.Level)
	}
	return out
}

// Roots returns the levels that have no parent.
func (h *Hierarchy) Roots() []LevelSpec {
	var out []LevelSpec
	for _, l := range h.order {
		if h.levels[l].IsRoot() {
			out = append(out, h.levels[l])
		}
	}
	return out
}
