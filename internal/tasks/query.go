package tasks

import (
	"net/url"
	"strconv"
	"strings"
)

// ListQuery describes filtering, ordering and paging for List. Zero values
// mean no filter, store-defined order and no paging.
type ListQuery struct {
	Completed *bool
	SortField string
	SortDesc  bool
	Limit     int
	Skip      int
}

// ParseListQuery reads completed, sortBy, limit and skip from the query
// string. Unparseable values are dropped rather than rejected.
func ParseListQuery(values url.Values) ListQuery {
	var q ListQuery

	switch values.Get("completed") {
	case "true":
		v := true
		q.Completed = &v
	case "false":
		v := false
		q.Completed = &v
	}

	if sortBy := values.Get("sortBy"); sortBy != "" {
		field, direction, _ := strings.Cut(sortBy, ":")
		q.SortField = field
		q.SortDesc = direction == "desc"
	}

	if n, err := strconv.Atoi(values.Get("limit")); err == nil && n > 0 {
		q.Limit = n
	}
	if n, err := strconv.Atoi(values.Get("skip")); err == nil && n >= 0 {
		q.Skip = n
	}
	return q
}

// sortColumns maps accepted sort names to PostgreSQL columns.
var sortColumns = map[string]string{
	"createdAt":   "created_at",
	"created_at":  "created_at",
	"updatedAt":   "updated_at",
	"updated_at":  "updated_at",
	"description": "description",
	"completed":   "completed",
	"id":          "id",
}
