package task

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	domain "github.com/example/taskboard/domain/task"
)

var enumKey = strings.NewReplacer("-", "_", " ", "_")

func canonical(raw string) string {
	return enumKey.Replace(strings.ToUpper(strings.TrimSpace(raw)))
}

// ParseStatus matches raw case-insensitively against the known statuses.
// "in progress" and "in-progress" are accepted as IN_PROGRESS.
func ParseStatus(raw string) (domain.Status, bool) {
	switch s := domain.Status(canonical(raw)); s {
	case domain.StatusTodo, domain.StatusInProgress, domain.StatusDone:
		return s, true
	}
	return "", false
}

// NormalizeStatus is ParseStatus with a TODO fallback.
func NormalizeStatus(raw string) domain.Status {
	if s, ok := ParseStatus(raw); ok {
		return s
	}
	return domain.StatusTodo
}

// ParsePriority matches raw case-insensitively against the known priorities.
func ParsePriority(raw string) (domain.Priority, bool) {
	switch p := domain.Priority(canonical(raw)); p {
	case domain.PriorityLow, domain.PriorityMedium, domain.PriorityHigh:
		return p, true
	}
	return "", false
}

// NormalizePriority is ParsePriority with a MEDIUM fallback.
func NormalizePriority(raw string) domain.Priority {
	if p, ok := ParsePriority(raw); ok {
		return p
	}
	return domain.PriorityMedium
}

// ParseTags decodes a JSON array of strings. Empty or malformed input
// yields an empty list.
func ParseTags(raw string) []string {
	return parseStringList(raw)
}

// ParseIDList decodes a JSON array of ids. Empty or malformed input yields
// an empty list. Blank and repeated ids are dropped.
func ParseIDList(raw string) []string {
	return CleanIDs(parseStringList(raw))
}

func parseStringList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []string{}
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil || out == nil {
		return []string{}
	}
	return out
}

// CleanIDs drops blank and repeated ids, keeping first-seen order.
func CleanIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

var dueDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseDueDate parses a due date. Blank, "null" and "undefined" mean no due date.
func ParseDueDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	switch strings.ToLower(raw) {
	case "", "null", "undefined":
		return nil, nil
	}

	for _, layout := range dueDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidDueDate, raw)
}
