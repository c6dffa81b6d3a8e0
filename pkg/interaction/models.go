package interaction

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Defaults applied when a source export leaves a field blank
const (
	DefaultMediaType = "message"
	DefaultDirection = "Inbound/Outbound"
	UnknownAgent     = "Unknown Agent"
	UnknownQueue     = "Unknown Queue"
)

// Interaction is a canonical contact-center interaction record.
// Records are never mutated once the store has assigned an ID.
type Interaction struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversationId"`
	Agent          string    `json:"agent"`
	Customer       string    `json:"customer"`
	Queue          string    `json:"queue"`
	MediaType      string    `json:"mediaType"`
	Direction      string    `json:"direction"`
	Duration       int64     `json:"duration"` // milliseconds
	WrapUp         *string   `json:"wrapUp"`
	Flow           *string   `json:"flow"`
	StartTime      time.Time `json:"startTime"`
	EndTime        time.Time `json:"endTime"`
	ANI            *string   `json:"ani"`
	DNIS           *string   `json:"dnis"`
}

// Candidate is an interaction that has not been stored yet
type Candidate struct {
	ConversationID string    `json:"conversationId"`
	Agent          string    `json:"agent"`
	Customer       string    `json:"customer"`
	Queue          string    `json:"queue"`
	MediaType      string    `json:"mediaType"`
	Direction      string    `json:"direction"`
	Duration       int64     `json:"duration"`
	WrapUp         *string   `json:"wrapUp"`
	Flow           *string   `json:"flow"`
	StartTime      time.Time `json:"startTime"`
	EndTime        time.Time `json:"endTime"`
	ANI            *string   `json:"ani"`
	DNIS           *string   `json:"dnis"`
}

// Validate checks the insert contract of the record store.
func (c Candidate) Validate() error {
	var missing []string
	if strings.TrimSpace(c.ConversationID) == "" {
		missing = append(missing, "conversationId")
	}
	if strings.TrimSpace(c.Agent) == "" {
		missing = append(missing, "agent")
	}
	if strings.TrimSpace(c.Customer) == "" {
		missing = append(missing, "customer")
	}
	if strings.TrimSpace(c.Queue) == "" {
		missing = append(missing, "queue")
	}
	if strings.TrimSpace(c.MediaType) == "" {
		missing = append(missing, "mediaType")
	}
	if strings.TrimSpace(c.Direction) == "" {
		missing = append(missing, "direction")
	}
	if c.StartTime.IsZero() {
		missing = append(missing, "startTime")
	}
	if c.EndTime.IsZero() {
		missing = append(missing, "endTime")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	if c.Duration < 0 {
		return fmt.Errorf("duration must be non-negative, got %d", c.Duration)
	}
	return nil
}

// Normalized returns a copy with empty nullable strings set to nil
func (c Candidate) Normalized() Candidate {
	c.WrapUp = NullIfEmpty(c.WrapUp)
	c.Flow = NullIfEmpty(c.Flow)
	c.ANI = NullIfEmpty(c.ANI)
	c.DNIS = NullIfEmpty(c.DNIS)
	return c
}

// WithID turns the candidate into a stored interaction
func (c Candidate) WithID(id int64) Interaction {
	return Interaction{
		ID:             id,
		ConversationID: c.ConversationID,
		Agent:          c.Agent,
		Customer:       c.Customer,
		Queue:          c.Queue,
		MediaType:      c.MediaType,
		Direction:      c.Direction,
		Duration:       c.Duration,
		WrapUp:         c.WrapUp,
		Flow:           c.Flow,
		StartTime:      c.StartTime,
		EndTime:        c.EndTime,
		ANI:            c.ANI,
		DNIS:           c.DNIS,
	}
}

// Value returns the display value of a column. Nullable columns return "" when unset.
func (i Interaction) Value(col Column) string {
	switch col {
	case ColumnMediaType:
		return i.MediaType
	case ColumnAgent:
		return i.Agent
	case ColumnCustomer:
		return i.Customer
	case ColumnStartTime:
		return i.StartTime.Format(time.RFC3339)
	case ColumnEndTime:
		return i.EndTime.Format(time.RFC3339)
	case ColumnDuration:
		return strconv.FormatInt(i.Duration, 10)
	case ColumnDirection:
		return i.Direction
	case ColumnANI:
		return Deref(i.ANI)
	case ColumnDNIS:
		return Deref(i.DNIS)
	case ColumnQueue:
		return i.Queue
	case ColumnWrapUp:
		return Deref(i.WrapUp)
	case ColumnFlow:
		return Deref(i.Flow)
	case ColumnConversationID:
		return i.ConversationID
	}
	return ""
}

// Text returns a column value as a nullable string. ok is false for nil fields
// and for columns that are not text.
func (i Interaction) Text(col Column) (value string, ok bool) {
	switch col {
	case ColumnMediaType, ColumnAgent, ColumnCustomer, ColumnDirection, ColumnQueue, ColumnConversationID:
		return i.Value(col), true
	case ColumnWrapUp:
		return derefOK(i.WrapUp)
	case ColumnFlow:
		return derefOK(i.Flow)
	case ColumnANI:
		return derefOK(i.ANI)
	case ColumnDNIS:
		return derefOK(i.DNIS)
	}
	return "", false
}

// StringPtr returns a pointer to s
func StringPtr(s string) *string {
	return &s
}

// NullIfEmpty maps a nil or blank string to nil
func NullIfEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}

// Deref returns the pointed-to string or ""
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefOK(s *string) (string, bool) {
	if s == nil {
		return "", false
	}
	return *s, true
}
