package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// TopicPrefix prefixes every deployment progress topic.
const TopicPrefix = "deployment-"

// Topic returns the progress topic name for a subscription.
func Topic(subscriptionID int) string {
	return TopicPrefix + strconv.Itoa(subscriptionID)
}

// EventType identifies a progress event variant.
type EventType string

const (
	EventStatusChanged EventType = "statusChanged"
	EventProgress      EventType = "progress"
	EventCompleted     EventType = "completed"
	EventError         EventType = "error"
)

// ProgressEvent is one deployment notification scoped to a subscription.
// Only the fields belonging to Type are meaningful.
type ProgressEvent struct {
	Type           EventType
	SubscriptionID int
	Status         string
	Message        string
	Percentage     int
	Step           string
	Success        bool
}

func StatusChangedEvent(subscriptionID int, status, message string) ProgressEvent {
	return ProgressEvent{Type: EventStatusChanged, SubscriptionID: subscriptionID, Status: status, Message: message}
}

func ProgressUpdateEvent(subscriptionID, percentage int, step string) ProgressEvent {
	if percentage < 0 {
		percentage = 0
	}
	if percentage > 100 {
		percentage = 100
	}
	return ProgressEvent{Type: EventProgress, SubscriptionID: subscriptionID, Percentage: percentage, Step: step}
}

func CompletedEvent(subscriptionID int, success bool, message string) ProgressEvent {
	return ProgressEvent{Type: EventCompleted, SubscriptionID: subscriptionID, Success: success, Message: message}
}

func ErrorEvent(subscriptionID int, message string) ProgressEvent {
	return ProgressEvent{Type: EventError, SubscriptionID: subscriptionID, Message: message}
}

// Topic returns the topic the event is published on.
func (e ProgressEvent) Topic() string {
	return Topic(e.SubscriptionID)
}

type statusChangedWire struct {
	Type           EventType `json:"type"`
	SubscriptionID int       `json:"subscriptionId"`
	Status         string    `json:"status"`
	Message        string    `json:"message"`
}

type progressWire struct {
	Type           EventType `json:"type"`
	SubscriptionID int       `json:"subscriptionId"`
	Percentage     int       `json:"percentage"`
	Step           string    `json:"step"`
}

type completedWire struct {
	Type           EventType `json:"type"`
	SubscriptionID int       `json:"subscriptionId"`
	Success        bool      `json:"success"`
	Message        string    `json:"message"`
}

type errorWire struct {
	Type           EventType `json:"type"`
	SubscriptionID int       `json:"subscriptionId"`
	Message        string    `json:"message"`
}

// MarshalJSON encodes only the fields of the event's variant.
func (e ProgressEvent) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventStatusChanged:
		return json.Marshal(statusChangedWire{e.Type, e.SubscriptionID, e.Status, e.Message})
	case EventProgress:
		return json.Marshal(progressWire{e.Type, e.SubscriptionID, e.Percentage, e.Step})
	case EventCompleted:
		return json.Marshal(completedWire{e.Type, e.SubscriptionID, e.Success, e.Message})
	case EventError:
		return json.Marshal(errorWire{e.Type, e.SubscriptionID, e.Message})
	}
	return nil, fmt.Errorf("unknown event type %q", e.Type)
}

// UnmarshalJSON decodes any variant written by MarshalJSON.
func (e *ProgressEvent) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type           EventType `json:"type"`
		SubscriptionID int       `json:"subscriptionId"`
		Status         string    `json:"status"`
		Message        string    `json:"message"`
		Percentage     int       `json:"percentage"`
		Step           string    `json:"step"`
		Success        bool      `json:"success"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Type {
	case EventStatusChanged, EventProgress, EventCompleted, EventError:
	default:
		return fmt.Errorf("unknown event type %q", raw.Type)
	}
	*e = ProgressEvent{
		Type:           raw.Type,
		SubscriptionID: raw.SubscriptionID,
		Status:         raw.Status,
		Message:        raw.Message,
		Percentage:     raw.Percentage,
		Step:           raw.Step,
		Success:        raw.Success,
	}
	return nil
}
