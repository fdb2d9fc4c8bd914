// Package notification holds the notification record and the pure
// transforms the dashboard derives its views from.
package notification

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the wire form of Notification.Timestamp: UTC with
// millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Notification is a timestamped read/unread message.
type Notification struct {
	// ID is opaque and expected to be unique within a collection.
	// Nothing enforces that; producers own it.
	ID      string
	Message string
	// Timestamp drives both display and ordering.
	Timestamp time.Time
	Read      bool
}

type wireNotification struct {
	ID        string `json:"id"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Read      bool   `json:"read"`
}

func (n Notification) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireNotification{
		ID:        n.ID,
		Message:   n.Message,
		Timestamp: FormatTimestamp(n.Timestamp),
		Read:      n.Read,
	})
}

func (n *Notification) UnmarshalJSON(b []byte) error {
	var w wireNotification
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	ts, err := ParseTimestamp(w.Timestamp)
	if err != nil {
		return err
	}
	*n = Notification{ID: w.ID, Message: w.Message, Timestamp: ts, Read: w.Read}
	return nil
}

// FormatTimestamp renders t in the wire layout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp accepts any RFC 3339 instant.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q: %w", s, err)
	}
	return t, nil
}

// Normalize truncates the timestamp to what survives a JSON round trip.
func (n Notification) Normalize() Notification {
	n.Timestamp = n.Timestamp.UTC().Truncate(time.Millisecond)
	return n
}

// Validate reports the first structural problem with n.
func (n Notification) Validate() error {
	if strings.TrimSpace(n.ID) == "" {
		return fmt.Errorf("notification: id is required")
	}
	if strings.TrimSpace(n.Message) == "" {
		return fmt.Errorf("notification %s: message is required", n.ID)
	}
	if n.Timestamp.IsZero() {
		return fmt.Errorf("notification %s: timestamp is required", n.ID)
	}
	// The wire layout has a four digit year.
	if y := n.Timestamp.UTC().Year(); y < 0 || y > 9999 {
		return fmt.Errorf("notification %s: timestamp year %d out of range", n.ID, y)
	}
	return nil
}

// Clone returns a copy of items that shares nothing with the input.
func Clone(items []Notification) []Notification {
	if items == nil {
		return nil
	}
	out := make([]Notification, len(items))
	copy(out, items)
	return out
}

// UnreadCount counts items with Read == false.
func UnreadCount(items []Notification) int {
	n := 0
	for _, it := range items {
		if !it.Read {
			n++
		}
	}
	return n
}
