package pagination

import (
	"strconv"
	"strings"
)

const (
	// DefaultPageSize is used when the caller does not ask for a size.
	DefaultPageSize = 25
	// MaxPageSize caps how many rows a single page may return.
	MaxPageSize = 100
)

// Params holds page-number pagination inputs from controllers or services.
type Params struct {
	Page     int
	PageSize int
}

// Normalize clamps the page to >= 1 and the size into (0, MaxPageSize].
func (p Params) Normalize() Params {
	if p.Page < 1 {
		p.Page = 1
	}
	p.PageSize = NormalizePageSize(p.PageSize)
	return p
}

// Offset is the number of rows to skip for the normalized page.
func (p Params) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.PageSize
}

// Limit is the normalized page size.
func (p Params) Limit() int {
	return NormalizePageSize(p.PageSize)
}

// NormalizePageSize enforces the default and maximum page sizes.
func NormalizePageSize(size int) int {
	if size <= 0 {
		return DefaultPageSize
	}
	if size > MaxPageSize {
		return MaxPageSize
	}
	return size
}

// FromQuery parses page and page_size query values, ignoring garbage.
func FromQuery(page, pageSize string) Params {
	return Params{
		Page:     atoiOrZero(page),
		PageSize: atoiOrZero(pageSize),
	}.Normalize()
}

func atoiOrZero(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return n
}

// Page is a page of results plus the total matching count.
type Page[T any] struct {
	Items      []T   `json:"items"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// NewPage assembles a Page, never returning a nil Items slice.
func NewPage[T any](items []T, params Params, total int64) Page[T] {
	params = params.Normalize()
	if items == nil {
		items = []T{}
	}
	pages := int((total + int64(params.PageSize) - 1) / int64(params.PageSize))
	return Page[T]{
		Items:      items,
		Page:       params.Page,
		PageSize:   params.PageSize,
		Total:      total,
		TotalPages: pages,
	}
}

// Map converts the items of a page while keeping its counters.
func Map[T, U any](in Page[T], fn func(T) U) Page[U] {
	out := Page[U]{
		Items:      make([]U, 0, len(in.Items)),
		Page:       in.Page,
		PageSize:   in.PageSize,
		Total:      in.Total,
		TotalPages: in.TotalPages,
	}
	for _, item := range in.Items {
		out.Items = append(out.Items, fn(item))
	}
	return out
}
