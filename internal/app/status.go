package app

import (
	"context"
	"fmt"
	"time"

	"github.com/tonio1998/snsulms-sub001/internal/cache"
	"github.com/tonio1998/snsulms-sub001/internal/freshness"
)

// Status is a snapshot of the sync layer for status surfaces.
type Status struct {
	DeviceID     string      `json:"device_id"`
	Online       bool        `json:"online"`
	Foregrounded bool        `json:"foregrounded"`
	Locked       bool        `json:"locked"`
	Pending      int         `json:"pending"`
	Stalled      int         `json:"stalled"`
	Freshness    []Freshness `json:"freshness"`
}

// Freshness is the "last updated" state of one entity type.
type Freshness struct {
	Entity    string     `json:"entity"`
	Label     string     `json:"label"`
	WrittenAt *time.Time `json:"written_at,omitempty"`
}

// StalledBanner returns the non-blocking warning to show for scans that
// keep failing, or "" when there is nothing to show.
func (s *Status) StalledBanner() string {
	switch s.Stalled {
	case 0:
		return ""
	case 1:
		return "1 item failed to sync"
	default:
		return fmt.Sprintf("%d items failed to sync", s.Stalled)
	}
}

// Status collects the current state.
func (a *LMSApp) Status(ctx context.Context) (*Status, error) {
	pending, err := a.queue.PendingCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting pending scans: %w", err)
	}
	stalled, err := a.queue.Stalled(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting stalled scans: %w", err)
	}

	st := &Status{
		DeviceID:     a.cfg.DeviceID,
		Online:       a.conn.IsOnline(),
		Foregrounded: a.syncer.Foregrounded(),
		Locked:       a.Locked(),
		Pending:      pending,
		Stalled:      stalled,
	}

	now := a.clock.Now()
	for _, entity := range cache.Entities {
		ind := a.indicators[entity]
		writtenAt := ind.WrittenAt(ctx)
		st.Freshness = append(st.Freshness, Freshness{
			Entity:    entity,
			Label:     freshness.Describe(writtenAt, now),
			WrittenAt: writtenAt,
		})
	}
	return st, nil
}
