package sequence

import (
	"bytes"
	"encoding/json"
	"strings"
)

// ParseSubmission decodes a submitted sequence. The canonical shape is a JSON
// array of strings; a JSON string is tolerated for older clients and is read
// either as an embedded JSON array or as a comma-delimited list.
func ParseSubmission(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, ErrInvalidSequence
	}

	var list []string
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, ErrInvalidSequence
		}
		return requireLength(list)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, ErrInvalidSequence
	}
	return ParseDelimited(s)
}

// ParseDelimited reads a form-style value: a JSON array encoded as a string,
// or a comma-separated list with empty items dropped.
func ParseDelimited(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	var list []string
	if strings.HasPrefix(s, "[") && json.Unmarshal([]byte(s), &list) == nil {
		return requireLength(list)
	}
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			list = append(list, p)
		}
	}
	return requireLength(list)
}

func requireLength(list []string) ([]string, error) {
	if len(list) < MinLength {
		return nil, ErrInvalidSequence
	}
	return list, nil
}
