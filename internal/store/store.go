/*
Copyright (C) 2026 AdVero Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package store is the agent's interface to the media record store.
// The playback engine only reads eligible items and writes a single
// status annotation; everything else mutating the store lives in other
// subsystems.
package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/adverolabs/advero/internal/eventbus"
	"github.com/adverolabs/advero/internal/events"
	"github.com/adverolabs/advero/internal/models"
	"github.com/adverolabs/advero/internal/telemetry"
)

// Service provides media record access backed by GORM.
type Service struct {
	db       *gorm.DB
	notifier eventbus.Bus
	logger   zerolog.Logger
}

// New creates a store service.
func New(database *gorm.DB, notifier eventbus.Bus, logger zerolog.Logger) *Service {
	return &Service{
		db:       database,
		notifier: notifier,
		logger:   logger.With().Str("component", "store").Logger(),
	}
}

// FetchEligible returns the snapshot of items with status paid or
// playing for a screen, ascending by creation time. Expiration is NOT
// applied here: the reconciler filters client-side so that NULL and
// just-expired values are handled in one place against one clock.
func (s *Service) FetchEligible(ctx context.Context, screenID string) ([]models.MediaItem, error) {
	ctx, span := telemetry.StartSpan(ctx, "store", "FetchEligible")
	defer span.End()

	var items []models.MediaItem
	err := s.db.WithContext(ctx).
		Where("screen_id = ?", screenID).
		Where("status IN ?", []models.MediaStatus{models.StatusPaid, models.StatusPlaying}).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("fetch eligible media for screen %s: %w", screenID, err)
	}
	return items, nil
}

// MarkPlaying annotates an item as actively playing. Best-effort: the
// caller does not retry and playback never blocks on the result.
func (s *Service) MarkPlaying(ctx context.Context, mediaID string) error {
	err := s.db.WithContext(ctx).
		Model(&models.MediaItem{}).
		Where("id = ?", mediaID).
		Update("status", models.StatusPlaying).Error
	if err != nil {
		return fmt.Errorf("mark media %s playing: %w", mediaID, err)
	}

	// Mirror what the hosted store's change feed would emit, so other
	// local subscribers observe the mutation.
	if s.notifier != nil {
		s.notifier.Publish(events.EventMediaChanged, events.Payload{
			"media_id": mediaID,
			"op":       "update",
		})
	}
	return nil
}

// GetScreen loads a screen record.
func (s *Service) GetScreen(ctx context.Context, screenID string) (*models.Screen, error) {
	var screen models.Screen
	if err := s.db.WithContext(ctx).First(&screen, "id = ?", screenID).Error; err != nil {
		return nil, fmt.Errorf("load screen %s: %w", screenID, err)
	}
	return &screen, nil
}

// GetVenueProfile loads the venue profile owning a screen.
func (s *Service) GetVenueProfile(ctx context.Context, ownerID string) (*models.VenueProfile, error) {
	var profile models.VenueProfile
	if err := s.db.WithContext(ctx).First(&profile, "id = ?", ownerID).Error; err != nil {
		return nil, fmt.Errorf("load venue profile %s: %w", ownerID, err)
	}
	return &profile, nil
}

// AppendActivity writes an activity log row.
func (s *Service) AppendActivity(ctx context.Context, entry models.ActivityLog) error {
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("append activity log: %w", err)
	}
	return nil
}

// QueryActivity returns recent activity rows for a screen, newest
// first. An empty screenID returns all screens.
func (s *Service) QueryActivity(ctx context.Context, screenID string, limit int) ([]models.ActivityLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if screenID != "" {
		q = q.Where("screen_id = ?", screenID)
	}
	var rows []models.ActivityLog
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query activity log: %w", err)
	}
	return rows, nil
}
