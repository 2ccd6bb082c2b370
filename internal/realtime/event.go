package realtime

import (
	"strings"
	"time"
)

type Event string

const (
	EventEntityCreated     Event = "EntityCreated"
	EventEntityUpdated     Event = "EntityUpdated"
	EventStatusChanged     Event = "StatusChanged"
	EventBulkStatusChanged Event = "BulkStatusChanged"
	EventEntityDeleted     Event = "EntityDeleted"
	EventEntityRestored    Event = "EntityRestored"
	EventEntityPurged      Event = "EntityPurged"
	EventPositionsChanged  Event = "PositionsChanged"
	EventContentUpdated    Event = "ContentUpdated"
)

// ChannelAll receives every catalog event; LevelChannel narrows to one level.
const ChannelAll = "catalog"

func LevelChannel(level string) string {
	level = strings.TrimSpace(level)
	if level == "" {
		return ChannelAll
	}
	return ChannelAll + ":" + level
}

// Message is the unit carried by the bus and streamed to SSE clients.
type Message struct {
	Channel string    `json:"channel"`
	Event   Event     `json:"event"`
	Level   string    `json:"level,omitempty"`
	ID      string    `json:"id,omitempty"`
	Data    any       `json:"data,omitempty"`
	At      time.Time `json:"at"`
}
