// Package freshness turns cache timestamps into "last updated" labels.
package freshness

import (
	"context"
	"math"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tonio1998/snsulms-sub001/internal/cache"
	"github.com/tonio1998/snsulms-sub001/internal/lms"
)

// Never is the label for data that has never been cached.
const Never = "never"

var magnitudes = []humanize.RelTimeMagnitude{
	{D: 45 * time.Second, Format: "just now", DivBy: time.Second},
	{D: 2 * time.Minute, Format: "about a minute %s", DivBy: time.Second},
	{D: time.Hour, Format: "%d minutes %s", DivBy: time.Minute},
	{D: 2 * time.Hour, Format: "about an hour %s", DivBy: time.Second},
	{D: humanize.Day, Format: "%d hours %s", DivBy: time.Hour},
	{D: 2 * humanize.Day, Format: "a day %s", DivBy: time.Second},
	{D: humanize.Month, Format: "%d days %s", DivBy: humanize.Day},
	{D: 2 * humanize.Month, Format: "a month %s", DivBy: time.Second},
	{D: humanize.Year, Format: "%d months %s", DivBy: humanize.Month},
	{D: 2 * humanize.Year, Format: "a year %s", DivBy: time.Second},
	{D: math.MaxInt64, Format: "%d years %s", DivBy: humanize.Year},
}

// Describe returns a relative label for writtenAt as seen at now.
// Timestamps slightly in the future (clock skew) read as "just now".
func Describe(writtenAt *time.Time, now time.Time) string {
	if writtenAt == nil {
		return Never
	}
	t := *writtenAt
	if t.After(now) {
		t = now
	}
	return humanize.CustomRelTime(t, now, "ago", "from now", magnitudes)
}

// Indicator is the "last updated" line of one screen plus its reload action.
type Indicator struct {
	source func(ctx context.Context) *time.Time
	reload func(ctx context.Context) error
	clock  lms.Clock
}

// NewIndicator creates an Indicator reading its timestamp from source and
// delegating Reload to reload.
func NewIndicator(source func(ctx context.Context) *time.Time, reload func(ctx context.Context) error, clock lms.Clock) *Indicator {
	if clock == nil {
		clock = lms.RealClock{}
	}
	return &Indicator{source: source, reload: reload, clock: clock}
}

// ForEntity creates an Indicator over the newest cached write of entity.
func ForEntity(c *cache.Cache, entity string, reload func(ctx context.Context) error, clock lms.Clock) *Indicator {
	return NewIndicator(func(ctx context.Context) *time.Time {
		return c.Latest(ctx, entity)
	}, reload, clock)
}

// WrittenAt returns the current timestamp from the source.
func (i *Indicator) WrittenAt(ctx context.Context) *time.Time {
	return i.source(ctx)
}

// Label describes the current timestamp.
func (i *Indicator) Label(ctx context.Context) string {
	return Describe(i.source(ctx), i.clock.Now())
}

// Reload runs the owning screen's refresh. The new timestamp shows up on
// the next Label call.
func (i *Indicator) Reload(ctx context.Context) error {
	if i.reload == nil {
		return nil
	}
	return i.reload(ctx)
}
