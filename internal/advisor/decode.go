package advisor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Text is a string field that tolerates non-string JSON scalars. Numbers
// and booleans keep their JSON spelling; null decodes to "".
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*t = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	*t = Text(compact(b))
	return nil
}

// String returns t as a plain string.
func (t Text) String() string { return string(t) }

// StringList is a list field that also accepts a single bare string.
// Non-string elements are kept in their JSON spelling.
type StringList []string

func (l *StringList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*l = nil
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*l = StringList{s}
		return nil
	case len(b) > 0 && b[0] == '[':
		var items []Text
		if err := json.Unmarshal(b, &items); err != nil {
			return err
		}
		out := make(StringList, 0, len(items))
		for _, it := range items {
			out = append(out, string(it))
		}
		*l = out
		return nil
	default:
		// Objects and scalars: keep the JSON text as a single entry.
		*l = StringList{compact(b)}
		return nil
	}
}

func compact(b []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, b); err != nil {
		return string(b)
	}
	return buf.String()
}

// stripCodeFences removes a surrounding markdown code fence (with or
// without a language tag) from a model reply.
func stripCodeFences(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if !strings.Contains(cleaned, "```") {
		return cleaned
	}

	lines := strings.Split(cleaned, "\n")
	start, end := -1, len(lines)
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			if start < 0 {
				start = i + 1
			} else {
				end = i
				break
			}
		}
	}
	if start >= 0 && end > start {
		cleaned = strings.Join(lines[start:end], "\n")
	}
	return strings.TrimSpace(cleaned)
}

// decodeReply strips fences and unmarshals a model reply into out.
func decodeReply(raw string, out any) error {
	cleaned := stripCodeFences(raw)
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return fmt.Errorf("%w: %v (raw: %s)", ErrMalformedResponse, err, truncateForError(raw, 200))
	}
	return nil
}

// UnknownSender is the sender of an email reply that names none.
const UnknownSender = "Unknown"

func (m *EmailMetadata) UnmarshalJSON(b []byte) error {
	type plain EmailMetadata
	p := plain{Sender: UnknownSender}
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*m = EmailMetadata(p)
	return nil
}

// salvageEmailReply reads "key: value" lines from a non-JSON reply. Keys
// are lowercased; any of the five expected keys left out become "unknown".
func salvageEmailReply(raw string) EmailMetadata {
	fields := map[string]string{}
	for _, line := range strings.Split(stripCodeFences(raw), "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		fields[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}
	get := func(k string) Text {
		if v, ok := fields[k]; ok {
			return Text(v)
		}
		return "unknown"
	}
	return EmailMetadata{
		Sender:  get("sender"),
		Subject: get("subject"),
		Intent:  get("intent"),
		Urgency: get("urgency"),
		Summary: get("summary"),
	}
}

func truncateForError(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
