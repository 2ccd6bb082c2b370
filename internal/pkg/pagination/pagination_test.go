package pagination

import (
	"net/url"
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	got := Params{Page: 0, Limit: 500}.Normalize()
	if got.Page != 1 || got.Limit != MaxLimit {
		t.Fatalf("Normalize: got=%+v", got)
	}
	got = Params{Page: 3, Limit: 0}.Normalize()
	if got.Limit != DefaultLimit {
		t.Fatalf("default limit: want=%d got=%d", DefaultLimit, got.Limit)
	}
	if off := (Params{Page: 3, Limit: 10}).Offset(); off != 20 {
		t.Fatalf("Offset: want=20 got=%d", off)
	}
}

func TestNewMetaAndLinks(t *testing.T) {
	m := NewMeta(Params{Page: 2, Limit: 10}, 25)
	if m.TotalPages != 3 || m.CurrentPage != 2 || m.TotalItems != 25 {
		t.Fatalf("meta: got=%+v", m)
	}

	links := BuildLinks("/api/lessons", url.Values{"parent_id": {"abc"}}, m)
	if !strings.Contains(links.Next, "page=3") || !strings.Contains(links.Previous, "page=1") {
		t.Fatalf("links: got=%+v", links)
	}
	if !strings.Contains(links.First, "parent_id=abc") {
		t.Fatalf("first link lost filters: %s", links.First)
	}

	empty := BuildLinks("/api/lessons", nil, NewMeta(Params{}, 0))
	if empty.Next != "" || empty.Previous != "" || !strings.Contains(empty.Last, "page=1") {
		t.Fatalf("empty links: got=%+v", empty)
	}
}
