package models

import "time"

// Score is one submitted score as returned to clients.
type Score struct {
	TimeOfScore time.Time `json:"timestamp"`
	Value       int32     `json:"value"`
	UserID      string    `json:"userId"`
}

// DiscordUser is the profile returned by the provider's current-user endpoint.
// Only ID is used; the remaining fields are decoded and discarded.
type DiscordUser struct {
	ID            string  `json:"id"`
	Username      string  `json:"username"`
	Avatar        *string `json:"avatar"`
	Discriminator string  `json:"discriminator"`
	Banner        *string `json:"banner"`
	BannerColor   *string `json:"banner_color"`
	AccentColor   *int    `json:"accent_color"`
	Locale        string  `json:"locale"`
}
