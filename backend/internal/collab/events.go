package collab

import (
	"time"

	"github.com/google/uuid"

	"streamtracker/backend/internal/cache"
)

const (
	EventCellLocked    = "cell_locked"
	EventCellUnlocked  = "cell_unlocked"
	EventCellUpdated   = "cell_updated"
	EventUserJoined    = "user_joined"
	EventUserLeft      = "user_left"
	EventStreamUpdated = "stream_updated"
)

// Event is one broadcast payload. Payloads are self-contained; receivers
// never join them against live state.
type Event struct {
	Type     string       `json:"type"`
	EntityID uint64       `json:"entityId,omitempty"`
	Field    string       `json:"field,omitempty"`
	Value    string       `json:"value,omitempty"`
	User     cache.Member `json:"user"`
	At       time.Time    `json:"at"`
}

// MessageType lets an Event ride the websocket outbound queue directly.
func (e Event) MessageType() string { return e.Type }

// Broadcaster is the single write path for state-change notifications.
// Every attached session receives each published event, sender included.
type Broadcaster interface {
	Publish(evt Event)
}

// TopicEvent is the kafka envelope mirroring an Event onto the shared topic.
type TopicEvent struct {
	EventID string `json:"eventId"`
	Event
	PublishedAt time.Time `json:"publishedAt"`
}

func NewTopicEvent(evt Event) TopicEvent {
	return TopicEvent{
		EventID:     uuid.NewString(),
		Event:       evt,
		PublishedAt: time.Now().UTC(),
	}
}
