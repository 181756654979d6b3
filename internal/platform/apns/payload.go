package apns

import (
	"github.com/sideshow/apns2/payload"

	"github.com/tinywideclouds/go-push-gateway/internal/notification"
)

// buildPayload shapes the outgoing alert payload. In event_id_only mode
// the push is silent (content-available) and carries only the event/room ids
// and counters; the full
// payload otherwise builds a user-visible alert from the notification.
func buildPayload(n *notification.Notification, device notification.Device, eventIDOnly bool) *payload.Payload {
	p := payload.NewPayload()

	if eventIDOnly {
		p.ContentAvailable()
		p.Custom("event_id", n.EventID)
		p.Custom("room_id", n.RoomID)
		p.Custom("unread", n.Counts.Unread)
		p.Custom("missed_calls", n.Counts.MissedCalls)
		return p
	}

	title := n.RoomName
	if title == "" {
		title = n.SenderDisplayName
	}
	body := alertBody(n)
	p.AlertTitle(title).AlertBody(body)

	sound := "default"
	if device.Tweaks != nil && device.Tweaks.Sound != "" {
		sound = device.Tweaks.Sound
	} else if device.Tweaks != nil && device.Tweaks.Highlight {
		sound = "default"
	}
	p.Sound(sound)

	p.Custom("event_id", n.EventID)
	p.Custom("room_id", n.RoomID)
	p.Custom("unread", n.Counts.Unread)
	p.Custom("missed_calls", n.Counts.MissedCalls)

	for k, v := range n.Content {
		if _, wantedByDevice := device.Data[k]; wantedByDevice {
			p.Custom(k, v)
		}
	}

	return p
}

func alertBody(n *notification.Notification) string {
	switch n.Type {
	case "m.room.message":
		if n.SenderDisplayName != "" {
			return n.SenderDisplayName + " sent a message"
		}
		return "New message"
	default:
		if n.SenderDisplayName != "" {
			return n.SenderDisplayName + " sent an event"
		}
		return "New event"
	}
}
