package web

import (
	"encoding/json"

	"github.com/tinywideclouds/go-push-gateway/internal/notification"
)

type envelope struct {
	EventID     string `json:"event_id"`
	RoomID      string `json:"room_id"`
	Unread      int    `json:"unread"`
	MissedCalls int    `json:"missed_calls"`

	Type              string                 `json:"type,omitempty"`
	Sender            string                 `json:"sender,omitempty"`
	SenderDisplayName string                 `json:"sender_display_name,omitempty"`
	RoomName          string                 `json:"room_name,omitempty"`
	Content           map[string]interface{} `json:"content,omitempty"`
}

func buildEnvelope(n *notification.Notification, eventIDOnly bool) ([]byte, error) {
	env := envelope{
		EventID:     n.EventID,
		RoomID:      n.RoomID,
		Unread:      n.Counts.Unread,
		MissedCalls: n.Counts.MissedCalls,
	}
	if !eventIDOnly {
		env.Type = n.Type
		env.Sender = n.Sender
		env.SenderDisplayName = n.SenderDisplayName
		env.RoomName = n.RoomName
		env.Content = n.Content
	}
	return json.Marshal(env)
}
