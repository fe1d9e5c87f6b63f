package domain

import "time"

// Platform identifies a push delivery channel.
type Platform string

const (
	PlatformFCM     Platform = "fcm"
	PlatformWebPush Platform = "webpush"
)

// Device is a push-capable endpoint registered by a user. The triple
// (user, platform, token) is the identity; registering it twice refreshes
// LastSeenAt instead of duplicating the record.
type Device struct {
	UserID     string    `json:"user_id"`
	Platform   Platform  `json:"platform"`
	Token      string    `json:"token"`
	LastSeenAt time.Time `json:"last_seen_at"`
}
