package pagination

import (
	"net/http"
	"strconv"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100
)

type Page struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func FromRequest(r *http.Request) Page {
	page := Page{Limit: DefaultLimit}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			page.Limit = v
		}
	}
	if page.Limit > MaxLimit {
		page.Limit = MaxLimit
	}

	if raw := r.URL.Query().Get("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			page.Offset = v
		}
	}

	return page
}

type Meta struct {
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
	Total  int64 `json:"total"`
}

func NewMeta(page Page, total int64) Meta {
	return Meta{Limit: page.Limit, Offset: page.Offset, Total: total}
}
