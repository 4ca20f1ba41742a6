/*
Copyright (C) 2026 AdVero Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/adverolabs/advero/internal/events"
	"github.com/adverolabs/advero/internal/models"
	"github.com/adverolabs/advero/internal/playlist"
)

// fakeSource is a swappable playlist snapshot.
type fakeSource struct {
	current atomic.Pointer[playlist.Playlist]
}

func newFakeSource(items ...models.MediaItem) *fakeSource {
	s := &fakeSource{}
	s.set(items...)
	return s
}

func (s *fakeSource) Current() *playlist.Playlist {
	return s.current.Load()
}

func (s *fakeSource) set(items ...models.MediaItem) {
	pl := &playlist.Playlist{Version: 1, Items: items}
	s.current.Store(pl)
}

// recordingStatus records mark-as-playing calls.
type recordingStatus struct {
	mu    sync.Mutex
	ids   []string
	err   error
	calls int
}

func (r *recordingStatus) MarkPlaying(ctx context.Context, mediaID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, mediaID)
	r.calls++
	return r.err
}

func (r *recordingStatus) marked() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

func item(id string) models.MediaItem {
	return models.MediaItem{
		ID:        id,
		ScreenID:  "screen-1",
		FileURL:   "https://cdn.example.com/" + id + ".mp4",
		MediaType: models.MediaTypeVideo,
		Status:    models.StatusPaid,
	}
}

func expiredItem(id string) models.MediaItem {
	m := item(id)
	past := time.Now().Add(-time.Minute)
	m.ExpiresAt = &past
	return m
}

// fastConfig keeps tests quick: every ad clamps to the 30ms floor.
func fastConfig() Config {
	return Config{
		PromoEvery:      3,
		PromoDuration:   20 * time.Millisecond,
		MinItemDuration: 30 * time.Millisecond,
		ProgressTick:    5 * time.Millisecond,
	}
}

func startSession(t *testing.T, source Source, status StatusWriter, bus *events.Bus) (*Session, context.CancelFunc) {
	t.Helper()
	sess := NewSession("screen-1", fastConfig(), source, status, nil, bus, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go sess.Run(ctx)
	t.Cleanup(cancel)
	return sess, cancel
}

// collect drains n now-playing media ids, failing the test on timeout.
func collect(t *testing.T, ch events.Subscriber, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	timeout := time.After(5 * time.Second)
	for len(ids) < n {
		select {
		case payload := <-ch:
			id, _ := payload["media_id"].(string)
			ids = append(ids, id)
		case <-timeout:
			t.Fatalf("timed out after %d of %d items: %v", len(ids), n, ids)
		}
	}
	return ids
}

func TestSessionCircularOrderWithPromoCadence(t *testing.T) {
	bus := events.NewBus()
	nowPlaying := bus.Subscribe(events.EventNowPlaying)
	source := newFakeSource(item("a"), item("b"), item("c"))

	startSession(t, source, &recordingStatus{}, bus)

	got := collect(t, nowPlaying, 8)
	want := []string{"a", "b", "c", PromoID, "a", "b", "c", PromoID}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sequence mismatch at %d: got %v, want %v", i, got, want)
		}
	}
}

func TestSessionPromoCadenceWithTwoItems(t *testing.T) {
	bus := events.NewBus()
	nowPlaying := bus.Subscribe(events.EventNowPlaying)
	source := newFakeSource(item("a"), item("b"))

	startSession(t, source, &recordingStatus{}, bus)

	// Promo still fires on completed-count boundaries, not on playlist
	// wraps: a b a . b a b .
	got := collect(t, nowPlaying, 8)
	want := []string{"a", "b", "a", PromoID, "b", "a", "b", PromoID}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sequence mismatch at %d: got %v, want %v", i, got, want)
		}
	}
}

func TestSessionEmptyPlaylistStaysIdle(t *testing.T) {
	bus := events.NewBus()
	nowPlaying := bus.Subscribe(events.EventNowPlaying)
	source := newFakeSource()

	sess, _ := startSession(t, source, &recordingStatus{}, bus)

	time.Sleep(100 * time.Millisecond)
	if st := sess.Status().State; st != StateIdle {
		t.Fatalf("state = %s, want %s", st, StateIdle)
	}
	select {
	case payload := <-nowPlaying:
		t.Fatalf("unexpected now-playing event: %v", payload)
	default:
	}
}

func TestSessionWakesOnPlaylistUpdate(t *testing.T) {
	bus := events.NewBus()
	nowPlaying := bus.Subscribe(events.EventNowPlaying)
	source := newFakeSource()

	startSession(t, source, &recordingStatus{}, bus)
	time.Sleep(50 * time.Millisecond)

	source.set(item("a"))
	bus.Publish(events.EventPlaylistUpdated, events.Payload{"screen_id": "screen-1"})

	got := collect(t, nowPlaying, 1)
	if got[0] != "a" {
		t.Fatalf("first item = %q, want %q", got[0], "a")
	}
}

func TestSessionIgnoresOtherScreensUpdates(t *testing.T) {
	bus := events.NewBus()
	nowPlaying := bus.Subscribe(events.EventNowPlaying)
	source := newFakeSource()

	startSession(t, source, &recordingStatus{}, bus)
	time.Sleep(20 * time.Millisecond)

	source.set(item("a"))
	bus.Publish(events.EventPlaylistUpdated, events.Payload{"screen_id": "other-screen"})

	time.Sleep(100 * time.Millisecond)
	select {
	case payload := <-nowPlaying:
		t.Fatalf("unexpected now-playing event: %v", payload)
	default:
	}
}

func TestSessionSkipsExpiredAtDequeue(t *testing.T) {
	bus := events.NewBus()
	nowPlaying := bus.Subscribe(events.EventNowPlaying)
	status := &recordingStatus{}
	source := newFakeSource(expiredItem("stale"), item("b"))

	startSession(t, source, status, bus)

	got := collect(t, nowPlaying, 1)
	if got[0] != "b" {
		t.Fatalf("first item = %q, want %q", got[0], "b")
	}
	for _, id := range status.marked() {
		if id == "stale" {
			t.Fatal("expired item was marked as playing")
		}
	}
}

func TestSessionAllExpiredGoesIdle(t *testing.T) {
	bus := events.NewBus()
	source := newFakeSource(expiredItem("x"), expiredItem("y"))

	sess, _ := startSession(t, source, &recordingStatus{}, bus)

	time.Sleep(100 * time.Millisecond)
	st := sess.Status()
	if st.State != StateIdle {
		t.Fatalf("state = %s, want %s", st.State, StateIdle)
	}
	if st.PlayedCount != 0 {
		t.Fatalf("played count = %d, want 0", st.PlayedCount)
	}
}

func TestSessionRemovalDuringPlaybackGoesIdle(t *testing.T) {
	bus := events.NewBus()
	nowPlaying := bus.Subscribe(events.EventNowPlaying)
	idle := bus.Subscribe(events.EventPlaybackIdle)

	long := item("a")
	long.DurationSeconds = 30
	source := newFakeSource(long)

	startSession(t, source, &recordingStatus{}, bus)

	collect(t, nowPlaying, 1)
	source.set()

	select {
	case <-idle:
	case <-time.After(time.Second):
		t.Fatal("session did not go idle after removal")
	}
}

func TestSessionRemovalResumesWithRemainingItems(t *testing.T) {
	bus := events.NewBus()
	nowPlaying := bus.Subscribe(events.EventNowPlaying)

	longA := item("a")
	longA.DurationSeconds = 30
	longB := item("b")
	longB.DurationSeconds = 30
	source := newFakeSource(longA, longB)

	sess, _ := startSession(t, source, &recordingStatus{}, bus)

	collect(t, nowPlaying, 1)
	source.set(longB)

	got := collect(t, nowPlaying, 1)
	if got[0] != "b" {
		t.Fatalf("resumed with %q, want %q", got[0], "b")
	}
	// The interrupted item never completed.
	if count := sess.Status().PlayedCount; count != 0 {
		t.Fatalf("played count = %d, want 0", count)
	}
}

func TestSessionDurationFloor(t *testing.T) {
	bus := events.NewBus()
	nowPlaying := bus.Subscribe(events.EventNowPlaying)
	source := newFakeSource(item("a"), item("b"))

	startSession(t, source, &recordingStatus{}, bus)

	var first, second time.Time
	timeout := time.After(5 * time.Second)
	for second.IsZero() {
		select {
		case payload := <-nowPlaying:
			switch payload["media_id"] {
			case "a":
				if first.IsZero() {
					first = time.Now()
				}
			case "b":
				second = time.Now()
			}
		case <-timeout:
			t.Fatal("timed out waiting for second item")
		}
	}

	// Zero-duration items clamp up to the floor.
	if gap := second.Sub(first); gap < 25*time.Millisecond {
		t.Fatalf("item held screen for %v, want at least the floor", gap)
	}
}

func TestSessionStatusWriteFailureDoesNotStopPlayback(t *testing.T) {
	bus := events.NewBus()
	nowPlaying := bus.Subscribe(events.EventNowPlaying)
	status := &recordingStatus{err: context.DeadlineExceeded}
	source := newFakeSource(item("a"), item("b"))

	startSession(t, source, status, bus)

	got := collect(t, nowPlaying, 3)
	want := []string{"a", "b", "a"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sequence mismatch: got %v, want %v", got, want)
		}
	}
}

func TestSessionMarksPlayingOnlyOnFirstTransition(t *testing.T) {
	bus := events.NewBus()
	nowPlaying := bus.Subscribe(events.EventNowPlaying)
	status := &recordingStatus{}
	playing := item("a")
	playing.Status = models.StatusPlaying
	source := newFakeSource(playing, item("b"))

	startSession(t, source, status, bus)

	// Two full rotations over "a" plus the interleaved promo.
	collect(t, nowPlaying, 6)

	marked := status.marked()
	if len(marked) == 0 {
		t.Fatal("no status writes recorded")
	}
	for _, id := range marked {
		if id == "a" {
			t.Fatalf("already-playing item written again: %v", marked)
		}
	}
}

func TestSessionTeardownStops(t *testing.T) {
	bus := events.NewBus()
	nowPlaying := bus.Subscribe(events.EventNowPlaying)
	source := newFakeSource(item("a"))

	sess, cancel := startSession(t, source, &recordingStatus{}, bus)
	collect(t, nowPlaying, 1)

	cancel()
	deadline := time.Now().Add(time.Second)
	for sess.Status().State != StateStopped {
		if time.Now().After(deadline) {
			t.Fatalf("state = %s, want %s", sess.Status().State, StateStopped)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSessionNowPlayingPayload(t *testing.T) {
	bus := events.NewBus()
	nowPlaying := bus.Subscribe(events.EventNowPlaying)
	source := newFakeSource(item("a"))

	startSession(t, source, &recordingStatus{}, bus)

	select {
	case payload := <-nowPlaying:
		if payload.ScreenID() != "screen-1" {
			t.Errorf("screen_id = %q", payload.ScreenID())
		}
		if kind, _ := payload["kind"].(string); kind != string(KindAd) {
			t.Errorf("kind = %q, want %q", kind, KindAd)
		}
		if url, _ := payload["file_url"].(string); url == "" {
			t.Error("file_url missing")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no now-playing event")
	}
}
