package feed

import (
	"encoding/json"

	"alphafeed/internal/news"
)

// ParseMessage is the validation gate for upstream frames. A frame is
// accepted only when it is a JSON object carrying non-empty string "_id"
// and "title" keys, matched exactly. Optional fields with unexpected types
// are ignored rather than rejecting the frame. The verbatim bytes are kept
// in Raw.
func ParseMessage(raw []byte) (news.RawMessage, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return news.RawMessage{}, false
	}

	var msg news.RawMessage
	if !decodeField(fields, "_id", &msg.ID) || !decodeField(fields, "title", &msg.Title) {
		return news.RawMessage{}, false
	}
	if msg.ID == "" || msg.Title == "" {
		return news.RawMessage{}, false
	}

	decodeField(fields, "time", &msg.Time)
	decodeField(fields, "source", &msg.Source)
	decodeField(fields, "sourceName", &msg.SourceName)
	decodeField(fields, "type", &msg.Type)
	decodeField(fields, "url", &msg.URL)
	decodeField(fields, "link", &msg.Link)
	decodeField(fields, "en", &msg.En)
	decodeField(fields, "body", &msg.Body)
	decodeField(fields, "icon", &msg.Icon)
	decodeField(fields, "image", &msg.Image)
	decodeField(fields, "symbols", &msg.Symbols)
	decodeField(fields, "suggestions", &msg.Suggestions)
	decodeField(fields, "actions", &msg.Actions)
	decodeField(fields, "firstPrice", &msg.FirstPrice)
	decodeField(fields, "delay", &msg.Delay)

	msg.Raw = append(json.RawMessage(nil), raw...)
	return msg, true
}

// decodeField decodes fields[key] into dst. On a type mismatch dst is left
// untouched and false is returned; a missing key is not an error.
func decodeField[T any](fields map[string]json.RawMessage, key string, dst *T) bool {
	value, ok := fields[key]
	if !ok {
		return true
	}
	var v T
	if err := json.Unmarshal(value, &v); err != nil {
		return false
	}
	*dst = v
	return true
}
