package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/tonio1998/snsulms-sub001/internal/api"
	"github.com/tonio1998/snsulms-sub001/internal/cache"
	"github.com/tonio1998/snsulms-sub001/internal/freshness"
	"github.com/tonio1998/snsulms-sub001/internal/syncer"
)

// manifest is the ordered list of entities a resync pass refreshes. The
// per-class tasks walk the cached class list, so classes comes first.
func (a *LMSApp) manifest() []syncer.Task {
	return []syncer.Task{
		{Name: cache.EntityEvents, Run: a.syncEvents},
		{Name: cache.EntityClasses, Run: a.syncClasses},
		{Name: cache.EntityActivities, Run: a.syncActivities},
		{Name: cache.EntityClassActivities, Run: a.syncClassActivities},
		{Name: cache.EntityClassWall, Run: a.syncClassWalls},
	}
}

func (a *LMSApp) buildIndicators() map[string]*freshness.Indicator {
	tasks := make(map[string]bool)
	for _, name := range a.syncer.Tasks() {
		tasks[name] = true
	}

	out := make(map[string]*freshness.Indicator, len(cache.Entities))
	for _, entity := range cache.Entities {
		var reload func(ctx context.Context) error
		if tasks[entity] {
			name := entity
			reload = func(ctx context.Context) error { return a.Reload(ctx, name) }
		}
		out[entity] = freshness.ForEntity(a.cache, entity, reload, a.clock)
	}
	return out
}

// Indicator returns the freshness indicator of entity, or nil for an
// unknown entity.
func (a *LMSApp) Indicator(entity string) *freshness.Indicator {
	return a.indicators[entity]
}

// stored turns a failed cache write into an error so the resync report
// shows it.
func stored(entity string, at *time.Time) error {
	if at == nil {
		return fmt.Errorf("caching %s failed", entity)
	}
	return nil
}

func (a *LMSApp) syncEvents(ctx context.Context) error {
	actor, err := a.actorID()
	if err != nil {
		return err
	}
	events, err := a.client.Events(ctx, actor)
	if err != nil {
		return err
	}
	return stored(cache.EntityEvents, a.events.Save(ctx, cache.IDs(actor), events))
}

func (a *LMSApp) syncClasses(ctx context.Context) error {
	actor, err := a.actorID()
	if err != nil {
		return err
	}
	classes, err := a.client.Classes(ctx, actor)
	if err != nil {
		return err
	}
	return stored(cache.EntityClasses, a.classes.Save(ctx, cache.IDs(actor), classes))
}

func (a *LMSApp) syncActivities(ctx context.Context) error {
	actor, err := a.actorID()
	if err != nil {
		return err
	}
	return a.forEachClass(ctx, func(ctx context.Context, classID int64) error {
		acts, err := a.client.Activities(ctx, actor, classID)
		if err != nil {
			return err
		}
		return stored(cache.EntityActivities, a.activities.Save(ctx, cache.IDs(actor, classID), acts))
	})
}

func (a *LMSApp) syncClassActivities(ctx context.Context) error {
	return a.forEachClass(ctx, func(ctx context.Context, classID int64) error {
		acts, err := a.client.ClassActivities(ctx, classID)
		if err != nil {
			return err
		}
		return stored(cache.EntityClassActivities, a.classActivities.Save(ctx, cache.IDs(classID), acts))
	})
}

func (a *LMSApp) syncClassWalls(ctx context.Context) error {
	return a.forEachClass(ctx, func(ctx context.Context, classID int64) error {
		_, err := a.loadWall(ctx, classID, false)
		return err
	})
}

// forEachClass runs fn for every class in the cached class list. One
// class failing does not stop the rest.
func (a *LMSApp) forEachClass(ctx context.Context, fn func(ctx context.Context, classID int64) error) error {
	actor, err := a.actorID()
	if err != nil {
		return err
	}
	entry := a.classes.Load(ctx, cache.IDs(actor))
	if !entry.Hit() {
		return nil
	}

	var errs []error
	for _, c := range *entry.Data {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		if err := fn(ctx, c.ID); err != nil {
			errs = append(errs, fmt.Errorf("class %d: %w", c.ID, err))
		}
	}
	return errors.Join(errs...)
}

// loadWall fetches the first page of a class wall, or the next one when
// more is set, and caches the merged posts.
func (a *LMSApp) loadWall(ctx context.Context, classID int64, more bool) (*time.Time, error) {
	a.wallMu.Lock()
	defer a.wallMu.Unlock()

	p, ok := a.walls[classID]
	if !ok {
		p = cache.NewPager(func(post api.WallPost) string { return strconv.FormatInt(post.ID, 10) })
		a.walls[classID] = p
	}

	page := 1
	if more && p.LastPage() > 0 {
		if !p.HasMore() {
			return a.classWall.Load(ctx, cache.IDs(classID)).WrittenAt, nil
		}
		page = p.NextPage()
	}

	wp, err := a.client.ClassWall(ctx, classID, page)
	if err != nil {
		return nil, err
	}
	if page == 1 {
		p.Reset()
	}
	p.Merge(wp.CurrentPage, wp.LastPage, wp.Posts)

	at := a.classWall.Save(ctx, cache.IDs(classID), p.Items())
	return at, stored(cache.EntityClassWall, at)
}
