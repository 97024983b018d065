package news

import "time"

const unknownSource = "unknown"

// Normalize maps an upstream frame into the canonical News record.
// receivedAt is the server-side ingestion time.
func Normalize(msg RawMessage, receivedAt time.Time) News {
	return News{
		ID:         msg.ID,
		Title:      msg.Title,
		Body:       firstNonEmpty(msg.En, msg.Body, msg.Title),
		Source:     firstNonEmpty(msg.Source, msg.Type, unknownSource),
		SourceName: firstNonEmpty(msg.SourceName, msg.Source, msg.Type, unknownSource),
		URL:        firstNonEmpty(msg.URL, msg.Link),
		Tickers:    ExtractTickers(msg),
		Time:       time.UnixMilli(msg.Time).UTC(),
		ReceivedAt: receivedAt.UTC(),
		RawData:    msg.Raw,
	}
}

// NormalizeNow is Normalize stamped with the current wall-clock time.
func NormalizeNow(msg RawMessage) News {
	return Normalize(msg, time.Now())
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
