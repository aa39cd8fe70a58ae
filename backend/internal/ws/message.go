package ws

import "streamtracker/backend/internal/cache"

// ClientMessage is every inbound action; Type selects which fields matter.
type ClientMessage struct {
	Type     string `json:"type"`
	EntityID uint64 `json:"entityId,omitempty"`
	Field    string `json:"field,omitempty"`
	Value    string `json:"value,omitempty"`
}

// ServerMessage is a private reply to one caller; broadcasts travel as
// collab.Event instead.
type ServerMessage struct {
	Type     string         `json:"type"`
	Code     string         `json:"code,omitempty"`
	EntityID uint64         `json:"entityId,omitempty"`
	Field    string         `json:"field,omitempty"`
	Holder   uint64         `json:"holder,omitempty"`
	Members  []cache.Member `json:"members,omitempty"`
	Content  string         `json:"content,omitempty"`
}

// OutboundMessage is anything the write loop can serialize to the client.
type OutboundMessage interface {
	MessageType() string
}

func (m ServerMessage) MessageType() string { return m.Type }
