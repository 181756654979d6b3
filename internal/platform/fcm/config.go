package fcm

import "time"

// Config holds the per-app_id settings for one FCM pushkin instance.
type Config struct {
	// ServiceAccountJSON is the Google service-account key file content,
	// used for the OAuth2 JWT-bearer exchange.
	ServiceAccountJSON []byte

	// ProjectID is the Firebase project the HTTP v1 API sends to.
	ProjectID string

	// EventIDOnly sends only {event_id, room_id, unread, missed_calls, prio}
	// instead of the full notification content.
	EventIDOnly bool

	MaxConnections int
	RatePerSecond  float64
}

const tokenEndpoint = "https://oauth2.googleapis.com/token"
const messagingScope = "https://www.googleapis.com/auth/firebase.messaging"

// refreshMargin is how long before the reported expires_in a cached access
// token is treated as expired ("until 60s before...").
const refreshMargin = 60 * time.Second

func (c Config) sendURL() string {
	return "https://fcm.googleapis.com/v1/projects/" + c.ProjectID + "/messages:send"
}
