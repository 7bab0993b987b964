package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"workhours/internal/core"
)

// WorkDaySyncMessage announces that a day changed in SQLite. It carries only
// the key and version; the worker reads the current row itself.
type WorkDaySyncMessage struct {
	Date      string    `json:"date"`
	Version   int64     `json:"version"`
	Deleted   bool      `json:"deleted"`
	Timestamp time.Time `json:"timestamp"`
}

func NewWorkDaySyncMessage(date core.Date, version int64, deleted bool) *WorkDaySyncMessage {
	return &WorkDaySyncMessage{
		Date:      date.String(),
		Version:   version,
		Deleted:   deleted,
		Timestamp: time.Now(),
	}
}

// WorkDate parses the message date.
func (m *WorkDaySyncMessage) WorkDate() (core.Date, error) {
	return core.ParseDate(m.Date)
}

func (m *WorkDaySyncMessage) Validate() error {
	if _, err := m.WorkDate(); err != nil {
		return fmt.Errorf("message date: %w", err)
	}
	if m.Version < 1 {
		return errors.New("message version must be positive")
	}
	return nil
}

func (m *WorkDaySyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// WorkDaySyncMessageFromJSON decodes and validates a message body.
func WorkDaySyncMessageFromJSON(data []byte) (*WorkDaySyncMessage, error) {
	var msg WorkDaySyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
