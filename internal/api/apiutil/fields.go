package apiutil

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

func ParseNonNegativeInt64Field(raw string, field string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("%s is required", field)
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("%s must be 0 or greater", field)
	}
	return value, nil
}

func ParsePositiveInt64Field(raw string, field string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("%s is required", field)
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", field)
	}
	return value, nil
}

// PathID reads a positive id from the named path wildcard.
func PathID(r *http.Request, name string) (int64, error) {
	id, err := ParsePositiveInt64Field(r.PathValue(name), name)
	if err != nil {
		return 0, BadRequest(err.Error(), err)
	}
	return id, nil
}

// OptionalInt64Query reads a positive id from the query string. An absent
// key yields nil.
func OptionalInt64Query(r *http.Request, key string) (*int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	id, err := ParsePositiveInt64Field(raw, key)
	if err != nil {
		return nil, BadRequest(err.Error(), err)
	}
	return &id, nil
}

// Int64ListQuery reads repeated or comma separated positive ids.
func Int64ListQuery(r *http.Request, key string) ([]int64, error) {
	var ids []int64
	for _, value := range r.URL.Query()[key] {
		for _, part := range strings.Split(value, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			id, err := ParsePositiveInt64Field(part, key)
			if err != nil {
				return nil, BadRequest(err.Error(), err)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// StringListQuery reads repeated or comma separated values.
func StringListQuery(r *http.Request, key string) []string {
	var out []string
	for _, value := range r.URL.Query()[key] {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// BoolQuery treats "1", "true" and "yes" as true.
func BoolQuery(r *http.Request, key string) bool {
	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get(key))) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}
