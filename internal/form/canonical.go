package form

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// canonicalValue reduces a stored field value to a deterministic text
// form so that two values differing only in object key order compare
// equal. Object keys are sorted, array order is preserved, numbers keep
// their stored notation. A value that does not parse as JSON is
// compared as the raw string it was stored as.
func canonicalValue(raw string) string {
	decoder := json.NewDecoder(strings.NewReader(raw))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return raw
	}
	// Trailing garbage after a valid prefix means the value was never
	// real JSON, e.g. a free-text answer starting with a digit.
	if decoder.More() {
		return raw
	}

	var builder strings.Builder
	writeCanonical(&builder, value)
	return builder.String()
}

func writeCanonical(builder *strings.Builder, value any) {
	switch v := value.(type) {
	case nil:
		builder.WriteString("null")
	case bool:
		builder.WriteString(strconv.FormatBool(v))
	case json.Number:
		builder.WriteString(v.String())
	case string:
		encoded, _ := json.Marshal(v)
		builder.Write(encoded)
	case []any:
		builder.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				builder.WriteByte(',')
			}
			writeCanonical(builder, item)
		}
		builder.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		builder.WriteByte('{')
		for i, key := range keys {
			if i > 0 {
				builder.WriteByte(',')
			}
			encoded, _ := json.Marshal(key)
			builder.Write(encoded)
			builder.WriteByte(':')
			writeCanonical(builder, v[key])
		}
		builder.WriteByte('}')
	}
}
