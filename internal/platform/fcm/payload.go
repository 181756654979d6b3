package fcm

import (
	"fmt"

	"github.com/tinywideclouds/go-push-gateway/internal/notification"
)

// message is the HTTP v1 send envelope.
type message struct {
	Message payload `json:"message"`
}

type payload struct {
	Token   string            `json:"token"`
	Android *androidConfig    `json:"android,omitempty"`
	Data    map[string]string `json:"data"`
}

type androidConfig struct {
	Priority string            `json:"priority"`
	Data     map[string]string `json:"data,omitempty"`
}

func buildMessage(n *notification.Notification, device notification.Device, eventIDOnly bool) message {
	priority := "normal"
	if n.EffectivePriority() == notification.PriorityHigh {
		priority = "high"
	}

	data := map[string]string{}
	if eventIDOnly {
		data["event_id"] = n.EventID
		data["room_id"] = n.RoomID
		data["unread"] = fmt.Sprintf("%d", n.Counts.Unread)
		data["missed_calls"] = fmt.Sprintf("%d", n.Counts.MissedCalls)
		data["prio"] = string(n.EffectivePriority())
	} else {
		data["event_id"] = n.EventID
		data["room_id"] = n.RoomID
		data["type"] = n.Type
		data["sender"] = n.Sender
		data["sender_display_name"] = n.SenderDisplayName
		data["room_name"] = n.RoomName
		data["unread"] = fmt.Sprintf("%d", n.Counts.Unread)
		data["missed_calls"] = fmt.Sprintf("%d", n.Counts.MissedCalls)
		for k, v := range n.Content {
			if _, wanted := device.Data[k]; wanted {
				data[k] = fmt.Sprintf("%v", v)
			}
		}
	}

	return message{Message: payload{
		Token: device.PushKey,
		Android: &androidConfig{
			Priority: priority,
			Data:     data,
		},
		Data: data,
	}}
}
