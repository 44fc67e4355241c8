package util

import (
	"encoding/json"
	"strings"
)

// TagList is a tag sequence that accepts either a JSON array of strings or a
// single comma separated string on the wire.
type TagList []string

func (t *TagList) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*t = nil
		return nil
	}
	if strings.HasPrefix(trimmed, "\"") {
		var joined string
		if err := json.Unmarshal(data, &joined); err != nil {
			return err
		}
		*t = TagList(SplitTags(joined))
		return nil
	}
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	*t = TagList(NormalizeTags(items))
	return nil
}

// SplitTags splits a comma separated string and normalizes the parts.
func SplitTags(value string) []string {
	return NormalizeTags(strings.Split(value, ","))
}

// NormalizeTags trims every tag, drops empties and removes exact duplicates.
// The first occurrence keeps its position. Matching is case-sensitive.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		item := strings.TrimSpace(tag)
		if item == "" {
			continue
		}
		if _, dup := seen[item]; dup {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

// TrimOrNil trims value and returns nil when nothing is left.
func TrimOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// StringPtr returns nil for a blank string.
func StringPtr(value string) *string {
	return TrimOrNil(&value)
}

func FirstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
