package filter

import (
	"fmt"
	"strings"
	"time"
)

// addHelperFunctions adds all helper functions to the provided map
func addHelperFunctions(env map[string]any) {
	// Date helpers. Freshdesk timestamps are RFC3339 strings.
	env["parseTime"] = parseTime
	env["daysSince"] = func(v any) int {
		t := parseTime(v)
		if t.IsZero() {
			return -1
		}
		return int(time.Since(t).Hours() / 24)
	}
	env["daysAgo"] = func(days int) time.Time {
		return time.Now().AddDate(0, 0, -days)
	}
	env["after"] = func(v any, date string) bool {
		return parseTime(v).After(parseTime(date))
	}
	// String helpers
	env["contains"] = func(str, substr any) bool {
		return strings.Contains(strings.ToLower(toString(str)), strings.ToLower(toString(substr)))
	}
	env["startsWith"] = func(str, prefix any) bool {
		return strings.HasPrefix(strings.ToLower(toString(str)), strings.ToLower(toString(prefix)))
	}
	env["lower"] = func(v any) string {
		return strings.ToLower(toString(v))
	}
	// Current time
	env["now"] = time.Now
}

func parseTime(v any) time.Time {
	s, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	}
	return fmt.Sprint(v)
}

func createHasTagFunc(tags any) func(string) bool {
	// Pre-convert to lowercase for case-insensitive comparison
	var lowerTags []string
	if list, ok := tags.([]any); ok {
		for _, tag := range list {
			lowerTags = append(lowerTags, strings.ToLower(toString(tag)))
		}
	}
	return func(tag string) bool {
		target := strings.ToLower(tag)
		for _, t := range lowerTags {
			if t == target {
				return true
			}
		}
		return false
	}
}
