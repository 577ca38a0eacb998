package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/tonio1998/snsulms-sub001/internal/api"
	"github.com/tonio1998/snsulms-sub001/internal/cache"
)

// ErrNotCached is returned by the read views when the device is offline
// and nothing has been cached for the requested scope.
var ErrNotCached = errors.New("not cached and offline")

// readThrough serves scope from the cache, refreshing it first while
// online. A failed refresh falls back to the cached copy; the error only
// reaches the caller when there is nothing cached to show.
func readThrough[T any](ctx context.Context, a *LMSApp, b *cache.Bucket[T], scope cache.Scope, fetch func(ctx context.Context) (T, error)) (cache.Entry[T], error) {
	if a.conn.IsOnline() {
		fresh, err := fetch(ctx)
		if err == nil {
			at := b.Save(ctx, scope, fresh)
			return cache.Entry[T]{Data: &fresh, WrittenAt: at}, nil
		}
		cached := b.Load(ctx, scope)
		if cached.Hit() {
			a.logger.Warn("refresh failed, serving cache", "entity", b.Entity(), "error", err)
			return cached, nil
		}
		return cached, fmt.Errorf("loading %s: %w", b.Entity(), err)
	}

	cached := b.Load(ctx, scope)
	if !cached.Hit() {
		return cached, fmt.Errorf("loading %s: %w", b.Entity(), ErrNotCached)
	}
	return cached, nil
}

// Events returns the actor's event feed.
func (a *LMSApp) Events(ctx context.Context) (cache.Entry[[]api.Event], error) {
	actor, err := a.actorID()
	if err != nil {
		return cache.Entry[[]api.Event]{}, err
	}
	return readThrough(ctx, a, a.events, cache.IDs(actor), func(ctx context.Context) ([]api.Event, error) {
		return a.client.Events(ctx, actor)
	})
}

// Classes returns the actor's classes.
func (a *LMSApp) Classes(ctx context.Context) (cache.Entry[[]api.Class], error) {
	actor, err := a.actorID()
	if err != nil {
		return cache.Entry[[]api.Class]{}, err
	}
	return readThrough(ctx, a, a.classes, cache.IDs(actor), func(ctx context.Context) ([]api.Class, error) {
		return a.client.Classes(ctx, actor)
	})
}

// Activities returns the actor's activities in one class.
func (a *LMSApp) Activities(ctx context.Context, classID int64) (cache.Entry[[]api.Activity], error) {
	actor, err := a.actorID()
	if err != nil {
		return cache.Entry[[]api.Activity]{}, err
	}
	return readThrough(ctx, a, a.activities, cache.IDs(actor, classID), func(ctx context.Context) ([]api.Activity, error) {
		return a.client.Activities(ctx, actor, classID)
	})
}

// ClassActivities returns the activity list of one class.
func (a *LMSApp) ClassActivities(ctx context.Context, classID int64) (cache.Entry[[]api.ClassActivity], error) {
	return readThrough(ctx, a, a.classActivities, cache.IDs(classID), func(ctx context.Context) ([]api.ClassActivity, error) {
		return a.client.ClassActivities(ctx, classID)
	})
}

// Activity returns one activity.
func (a *LMSApp) Activity(ctx context.Context, activityID int64) (cache.Entry[api.Activity], error) {
	return readThrough(ctx, a, a.activity, cache.IDs(activityID), func(ctx context.Context) (api.Activity, error) {
		act, err := a.client.Activity(ctx, activityID)
		if err != nil {
			return api.Activity{}, err
		}
		return *act, nil
	})
}

// ClassWall returns the posts of a class wall. With more set, the next
// page is fetched and merged into the posts already loaded in this
// session; otherwise the wall restarts at page one.
func (a *LMSApp) ClassWall(ctx context.Context, classID int64, more bool) (cache.Entry[[]api.WallPost], error) {
	scope := cache.IDs(classID)
	if a.conn.IsOnline() {
		_, err := a.loadWall(ctx, classID, more)
		cached := a.classWall.Load(ctx, scope)
		if err == nil || cached.Hit() {
			if err != nil {
				a.logger.Warn("refresh failed, serving cache", "entity", cache.EntityClassWall, "error", err)
			}
			return cached, nil
		}
		return cached, fmt.Errorf("loading %s: %w", cache.EntityClassWall, err)
	}

	cached := a.classWall.Load(ctx, scope)
	if !cached.Hit() {
		return cached, fmt.Errorf("loading %s: %w", cache.EntityClassWall, ErrNotCached)
	}
	return cached, nil
}
