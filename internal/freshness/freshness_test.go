package freshness

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tonio1998/snsulms-sub001/internal/cache"
	"github.com/tonio1998/snsulms-sub001/internal/kvstore"
	"github.com/tonio1998/snsulms-sub001/internal/lms"
	"github.com/tonio1998/snsulms-sub001/internal/testutil"
)

func TestDescribe(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	ago := func(d time.Duration) *time.Time {
		ts := now.Add(-d)
		return &ts
	}

	tests := []struct {
		name      string
		writtenAt *time.Time
		want      string
	}{
		{name: "never cached", writtenAt: nil, want: "never"},
		{name: "now", writtenAt: ago(0), want: "just now"},
		{name: "30 seconds", writtenAt: ago(30 * time.Second), want: "just now"},
		{name: "65 seconds", writtenAt: ago(65 * time.Second), want: "about a minute ago"},
		{name: "5 minutes", writtenAt: ago(5 * time.Minute), want: "5 minutes ago"},
		{name: "90 minutes", writtenAt: ago(90 * time.Minute), want: "about an hour ago"},
		{name: "3 hours", writtenAt: ago(3 * time.Hour), want: "3 hours ago"},
		{name: "30 hours", writtenAt: ago(30 * time.Hour), want: "a day ago"},
		{name: "2 days", writtenAt: ago(48 * time.Hour), want: "2 days ago"},
		{name: "45 days", writtenAt: ago(45 * 24 * time.Hour), want: "a month ago"},
		{name: "400 days", writtenAt: ago(400 * 24 * time.Hour), want: "a year ago"},
		{name: "future skew", writtenAt: ago(-10 * time.Second), want: "just now"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Describe(tt.writtenAt, now); got != tt.want {
				t.Errorf("Describe() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDescribe_MinuteDistinctFromDays(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	recent := now.Add(-65 * time.Second)
	old := now.Add(-48 * time.Hour)

	if Describe(&recent, now) == Describe(&old, now) {
		t.Errorf("65s and 2 days share the label %q", Describe(&recent, now))
	}
}

func TestIndicator(t *testing.T) {
	ctx := context.Background()
	clock := testutil.FixedClock()
	c := cache.New(kvstore.NewMemoryStore(), clock, lms.NewNopLogger())
	events := cache.NewBucket[[]string](c, cache.EntityEvents)

	reloads := 0
	ind := ForEntity(c, cache.EntityEvents, func(ctx context.Context) error {
		reloads++
		events.Save(ctx, cache.IDs(42), []string{"orientation"})
		return nil
	}, clock)

	if got := ind.Label(ctx); got != Never {
		t.Errorf("Label() before any save = %q, want %q", got, Never)
	}

	if err := ind.Reload(ctx); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if reloads != 1 {
		t.Errorf("reload called %d times, want 1", reloads)
	}
	if got := ind.Label(ctx); got != "just now" {
		t.Errorf("Label() after reload = %q, want %q", got, "just now")
	}

	clock.Advance(10 * time.Minute)
	if got := ind.Label(ctx); got != "10 minutes ago" {
		t.Errorf("Label() = %q, want %q", got, "10 minutes ago")
	}
}

func TestIndicator_ReloadError(t *testing.T) {
	boom := errors.New("offline")
	ind := NewIndicator(func(context.Context) *time.Time { return nil }, func(context.Context) error { return boom }, nil)

	if err := ind.Reload(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Reload() error = %v, want %v", err, boom)
	}
	if ind.WrittenAt(context.Background()) != nil {
		t.Error("WrittenAt() != nil")
	}
}
