package pagination

import (
	"fmt"
	"net/url"
	"strconv"

	"gorm.io/gorm"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

type Params struct {
	Page  int
	Limit int
}

// Normalize clamps page to >= 1 and limit to [1, MaxLimit].
func (p Params) Normalize() Params {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p
}

func (p Params) Offset() int {
	p = p.Normalize()
	return (p.Page - 1) * p.Limit
}

type Meta struct {
	ItemsPerPage int   `json:"itemsPerPage"`
	TotalItems   int64 `json:"totalItems"`
	CurrentPage  int   `json:"currentPage"`
	TotalPages   int   `json:"totalPages"`
}

type Links struct {
	First    string `json:"first"`
	Previous string `json:"previous,omitempty"`
	Next     string `json:"next,omitempty"`
	Last     string `json:"last"`
}

// Paginate counts q, then loads the requested page into dest ordered by
// order. q must not carry an ORDER BY; postgres rejects it on the count.
func Paginate(q *gorm.DB, dest any, p Params, order string) (Meta, error) {
	p = p.Normalize()
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return Meta{}, err
	}
	page := q.Session(&gorm.Session{})
	if order != "" {
		page = page.Order(order)
	}
	if err := page.Offset(p.Offset()).Limit(p.Limit).Find(dest).Error; err != nil {
		return Meta{}, err
	}
	return NewMeta(p, total), nil
}

func NewMeta(p Params, total int64) Meta {
	p = p.Normalize()
	pages := int((total + int64(p.Limit) - 1) / int64(p.Limit))
	return Meta{
		ItemsPerPage: p.Limit,
		TotalItems:   total,
		CurrentPage:  p.Page,
		TotalPages:   pages,
	}
}

// BuildLinks renders page links for route, keeping the other query values.
func BuildLinks(route string, query url.Values, m Meta) Links {
	link := func(page int) string {
		q := url.Values{}
		for k, v := range query {
			q[k] = append([]string(nil), v...)
		}
		q.Set("page", strconv.Itoa(page))
		q.Set("limit", strconv.Itoa(m.ItemsPerPage))
		return fmt.Sprintf("%s?%s", route, q.Encode())
	}
	last := m.TotalPages
	if last < 1 {
		last = 1
	}
	out := Links{First: link(1), Last: link(last)}
	if m.CurrentPage > 1 {
		out.Previous = link(m.CurrentPage - 1)
	}
	if m.CurrentPage < m.TotalPages {
		out.Next = link(m.CurrentPage + 1)
	}
	return out
}
