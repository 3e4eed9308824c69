package api

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/lei/runwatch/internal/service"
)

const maxListLimit = 100

// parseRunQuery reads limit, search and status from the list query string.
// status accepts a comma-separated list.
func parseRunQuery(values url.Values) (service.RunQuery, error) {
	q := service.RunQuery{Search: strings.TrimSpace(values.Get("search"))}

	limit, err := parseLimitParam(values.Get("limit"))
	if err != nil {
		return q, err
	}
	q.Limit = limit

	statuses, invalid := service.ParseStatuses(values.Get("status"))
	if len(invalid) > 0 {
		return q, fmt.Errorf("invalid status filter: %s", strings.Join(invalid, ", "))
	}
	q.Statuses = statuses

	return q, nil
}

// parseLimitParam parses the optional limit, capping it at maxListLimit.
// Zero means the configured default.
func parseLimitParam(value string) (int, error) {
	if value == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(value)
	if err != nil || limit < 0 {
		return 0, fmt.Errorf("invalid limit %q", value)
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit, nil
}
