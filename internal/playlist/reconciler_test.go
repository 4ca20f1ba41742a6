/*
Copyright (C) 2026 AdVero Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playlist

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/adverolabs/advero/internal/eventbus"
	"github.com/adverolabs/advero/internal/events"
	"github.com/adverolabs/advero/internal/models"
)

// fakeFetcher serves a swappable item set and can be told to fail.
type fakeFetcher struct {
	mu    sync.Mutex
	items []models.MediaItem
	err   error
}

func (f *fakeFetcher) FetchEligible(ctx context.Context, screenID string) ([]models.MediaItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.MediaItem, len(f.items))
	copy(out, f.items)
	return out, nil
}

func (f *fakeFetcher) set(items ...models.MediaItem) {
	f.mu.Lock()
	f.items = items
	f.mu.Unlock()
}

func (f *fakeFetcher) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

// recordingWarmer records which items were preloaded.
type recordingWarmer struct {
	mu  sync.Mutex
	ids []string
}

func (w *recordingWarmer) Warm(item models.MediaItem) {
	w.mu.Lock()
	w.ids = append(w.ids, item.ID)
	w.mu.Unlock()
}

func (w *recordingWarmer) warmed() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.ids...)
}

func paidItem(id string) models.MediaItem {
	return models.MediaItem{ID: id, ScreenID: "screen-1", Status: models.StatusPaid}
}

func startReconciler(t *testing.T, fetcher Fetcher, warmer Warmer, interval time.Duration) (*Reconciler, *events.Bus) {
	t.Helper()
	bus := events.NewBus()
	r := NewReconciler("screen-1", fetcher, warmer, eventbus.NewMemoryBus(bus), bus, interval, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)
	t.Cleanup(cancel)
	return r, bus
}

func waitUpdate(t *testing.T, ch events.Subscriber) events.Payload {
	t.Helper()
	select {
	case payload := <-ch:
		return payload
	case <-time.After(2 * time.Second):
		t.Fatal("no playlist update")
		return nil
	}
}

func TestReconcilerPublishesInitialPlaylist(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.set(paidItem("a"), paidItem("b"))

	bus := events.NewBus()
	updates := bus.Subscribe(events.EventPlaylistUpdated)
	r := NewReconciler("screen-1", fetcher, nil, eventbus.NewMemoryBus(bus), bus, time.Minute, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	payload := waitUpdate(t, updates)
	if payload.ScreenID() != "screen-1" {
		t.Fatalf("screen_id = %q", payload.ScreenID())
	}

	pl := r.Current()
	if got := pl.IDs(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("playlist ids = %v, want [a b]", got)
	}
	if pl.Version != 1 {
		t.Fatalf("version = %d, want 1", pl.Version)
	}
}

func TestReconcilerDoesNotRepublishUnchangedPlaylist(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.set(paidItem("a"))

	r, bus := startReconciler(t, fetcher, nil, 10*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for r.Current().Version == 0 {
		if time.Now().After(deadline) {
			t.Fatal("initial playlist never published")
		}
		time.Sleep(5 * time.Millisecond)
	}

	updates := bus.Subscribe(events.EventPlaylistUpdated)

	// Many poll passes elapse; the id sequence never changes.
	time.Sleep(150 * time.Millisecond)

	if v := r.Current().Version; v != 1 {
		t.Fatalf("version = %d after identical polls, want 1", v)
	}
	select {
	case payload := <-updates:
		t.Fatalf("unexpected republish: %v", payload)
	default:
	}
}

func TestReconcilerStatusFlipIsNotAPlaylistChange(t *testing.T) {
	a := paidItem("a")
	fetcher := &fakeFetcher{}
	fetcher.set(a)

	r, _ := startReconciler(t, fetcher, nil, 10*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for r.Current().Version == 0 {
		if time.Now().After(deadline) {
			t.Fatal("initial playlist never published")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// The mark-as-playing write flips status but keeps the id sequence.
	a.Status = models.StatusPlaying
	fetcher.set(a)

	time.Sleep(100 * time.Millisecond)
	if v := r.Current().Version; v != 1 {
		t.Fatalf("version = %d after status flip, want 1", v)
	}
}

func TestReconcilerFiltersExpiredAndDuplicates(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	stale := paidItem("stale")
	stale.ExpiresAt = &past

	fetcher := &fakeFetcher{}
	fetcher.set(paidItem("a"), stale, paidItem("a"), paidItem("b"))

	bus := events.NewBus()
	updates := bus.Subscribe(events.EventPlaylistUpdated)
	r := NewReconciler("screen-1", fetcher, nil, eventbus.NewMemoryBus(bus), bus, time.Minute, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	waitUpdate(t, updates)
	if got := r.Current().IDs(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("playlist ids = %v, want [a b]", got)
	}
}

func TestReconcilerSortsByCreationTime(t *testing.T) {
	base := time.Now().Add(-time.Hour)
	newest := paidItem("newest")
	newest.CreatedAt = base.Add(2 * time.Minute)
	oldest := paidItem("oldest")
	oldest.CreatedAt = base
	middle := paidItem("middle")
	middle.CreatedAt = base.Add(time.Minute)

	fetcher := &fakeFetcher{}
	fetcher.set(newest, oldest, middle)

	bus := events.NewBus()
	updates := bus.Subscribe(events.EventPlaylistUpdated)
	r := NewReconciler("screen-1", fetcher, nil, eventbus.NewMemoryBus(bus), bus, time.Minute, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)
	waitUpdate(t, updates)

	got := r.Current().IDs()
	want := []string{"oldest", "middle", "newest"}
	if len(got) != len(want) {
		t.Fatalf("playlist ids = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("playlist ids = %v, want %v", got, want)
		}
	}
}

func TestReconcilerRefreshesOnMediaChangedEvent(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.set(paidItem("a"))

	bus := events.NewBus()
	notifier := eventbus.NewMemoryBus(bus)
	updates := bus.Subscribe(events.EventPlaylistUpdated)
	// Poll interval far beyond the test horizon: only the event can
	// trigger the second pass.
	r := NewReconciler("screen-1", fetcher, nil, notifier, bus, time.Hour, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	waitUpdate(t, updates)

	fetcher.set(paidItem("a"), paidItem("b"))
	notifier.Publish(events.EventMediaChanged, events.Payload{"screen_id": "screen-1"})

	waitUpdate(t, updates)
	if got := r.Current().IDs(); len(got) != 2 {
		t.Fatalf("playlist ids = %v, want two items", got)
	}
}

func TestReconcilerIgnoresOtherScreensEvents(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.set(paidItem("a"))

	bus := events.NewBus()
	notifier := eventbus.NewMemoryBus(bus)
	updates := bus.Subscribe(events.EventPlaylistUpdated)
	r := NewReconciler("screen-1", fetcher, nil, notifier, bus, time.Hour, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	waitUpdate(t, updates)

	fetcher.set(paidItem("a"), paidItem("b"))
	notifier.Publish(events.EventMediaChanged, events.Payload{"screen_id": "other"})

	time.Sleep(100 * time.Millisecond)
	if got := r.Current().IDs(); len(got) != 1 {
		t.Fatalf("playlist ids = %v, want only the original item", got)
	}
}

func TestReconcilerWarmsOnlyNewItems(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.set(paidItem("a"), paidItem("b"))
	warmer := &recordingWarmer{}

	bus := events.NewBus()
	notifier := eventbus.NewMemoryBus(bus)
	updates := bus.Subscribe(events.EventPlaylistUpdated)
	r := NewReconciler("screen-1", fetcher, warmer, notifier, bus, time.Hour, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	waitUpdate(t, updates)
	if got := warmer.warmed(); len(got) != 2 {
		t.Fatalf("warmed = %v, want initial two items", got)
	}

	fetcher.set(paidItem("a"), paidItem("b"), paidItem("c"))
	notifier.Publish(events.EventMediaChanged, events.Payload{"screen_id": "screen-1"})

	waitUpdate(t, updates)
	got := warmer.warmed()
	if len(got) != 3 || got[2] != "c" {
		t.Fatalf("warmed = %v, want only c added", got)
	}
	if ids := r.Current().IDs(); len(ids) != 3 {
		t.Fatalf("playlist ids = %v, want three items", ids)
	}
}

func TestReconcilerKeepsLastPlaylistOnFetchError(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.set(paidItem("a"))

	r, _ := startReconciler(t, fetcher, nil, 10*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for r.Current().Version == 0 {
		if time.Now().After(deadline) {
			t.Fatal("initial playlist never published")
		}
		time.Sleep(5 * time.Millisecond)
	}

	fetcher.fail(errors.New("database unreachable"))
	time.Sleep(100 * time.Millisecond)

	pl := r.Current()
	if got := pl.IDs(); len(got) != 1 || got[0] != "a" {
		t.Fatalf("playlist ids = %v, want last good snapshot", got)
	}
}
