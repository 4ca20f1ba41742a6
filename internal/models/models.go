/*
Copyright (C) 2026 AdVero Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"
)

// MediaStatus enumerates the persisted lifecycle of an uploaded ad.
type MediaStatus string

const (
	StatusPending  MediaStatus = "pending"
	StatusPaid     MediaStatus = "paid"
	StatusRejected MediaStatus = "rejected"
	StatusPlaying  MediaStatus = "playing"
	StatusPlayed   MediaStatus = "played"
)

// MediaType enumerates supported content kinds.
type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
)

// Screen is a physical unattended display, the unit of playlist scope.
type Screen struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	OwnerID   string `gorm:"type:uuid;index"`
	Name      string `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// VenueProfile describes the venue a screen belongs to. Shown on the
// idle presentation.
type VenueProfile struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	VenueName string
	Category  string `gorm:"type:varchar(64)"`
	Location  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MediaItem is one paid advertisement uploaded for a screen.
type MediaItem struct {
	ID              string      `gorm:"type:uuid;primaryKey" json:"id"`
	ScreenID        string      `gorm:"type:uuid;index" json:"screen_id"`
	FileURL         string      `json:"file_url"`
	MediaType       MediaType   `gorm:"type:varchar(16)" json:"media_type"`
	DurationSeconds int         `json:"duration_seconds"`
	Status          MediaStatus `gorm:"type:varchar(16);index" json:"status"`
	ExpiresAt       *time.Time  `json:"expires_at,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// Expired reports whether the item's expiration has passed. Items
// without an expiration never expire.
func (m MediaItem) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && !m.ExpiresAt.After(now)
}

// Eligible reports whether the item currently qualifies for playback:
// status paid or playing, and not expired.
func (m MediaItem) Eligible(now time.Time) bool {
	if m.Status != StatusPaid && m.Status != StatusPlaying {
		return false
	}
	return !m.Expired(now)
}

// Duration returns the declared on-screen duration clamped to floor.
// Zero, negative, or missing durations are malformed input and clamp
// up rather than reject.
func (m MediaItem) Duration(floor time.Duration) time.Duration {
	d := time.Duration(m.DurationSeconds) * time.Second
	if d < floor {
		return floor
	}
	return d
}

// ActivityType classifies activity log rows.
type ActivityType string

const (
	ActivityInfo     ActivityType = "INFO"
	ActivityWarning  ActivityType = "WARNING"
	ActivityError    ActivityType = "ERROR"
	ActivityRevenue  ActivityType = "REVENUE"
	ActivitySystem   ActivityType = "SYSTEM"
	ActivitySecurity ActivityType = "SECURITY"
)

// ActivityLog is an append-only operational event record.
type ActivityLog struct {
	ID        string         `gorm:"type:uuid;primaryKey"`
	Type      ActivityType   `gorm:"type:varchar(16);index"`
	Event     string         `gorm:"type:varchar(64);index"`
	Message   string         `gorm:"type:text"`
	Metadata  map[string]any `gorm:"serializer:json"`
	ScreenID  string         `gorm:"type:uuid;index"`
	OwnerID   string         `gorm:"type:uuid"`
	CreatedAt time.Time      `gorm:"index"`
}
