package hub

import "time"

// Event is the frame fanned out to every live connection.
type Event struct {
	Type        string `json:"type"`
	Content     string `json:"content"`
	DisplayName string `json:"display_name"`
	MessageID   string `json:"message_id"`
	Timestamp   string `json:"timestamp"`
	System      bool   `json:"system"`
}

// EventTypeMessage is the only server-to-client event type.
const EventTypeMessage = "message"

// FormatTimestamp renders a timestamp as ISO-8601 with millisecond
// precision and a literal Z suffix, the shape clients sort on.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
