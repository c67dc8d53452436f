package client

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/librepage/librepage-back/internal/notify"
)

// Cache keys. Each distinct query gets a stable composite key.
const (
	KeyCurrentUser = "current-user"
	KeyLinks       = "links"
	KeyGroups      = "link-groups"
)

// Editor wires the cache, the coordinator and the API together for one
// rendering context. Other contexts of the same session (e.g. a live
// preview) hold their own Editor over the same hub, and reconcile through
// the signals it publishes.
type Editor struct {
	api    *API
	cache  *QueryCache
	coord  *Coordinator
	hub    *notify.Hub
	logger *zap.SugaredLogger
}

func NewEditor(api *API, hub *notify.Hub, staleAfter time.Duration, logger *zap.SugaredLogger) *Editor {
	cache := NewQueryCache(staleAfter)
	return &Editor{
		api:    api,
		cache:  cache,
		coord:  NewCoordinator(cache, api, hub, logger),
		hub:    hub,
		logger: logger,
	}
}

func (e *Editor) Cache() *QueryCache { return e.cache }

func (e *Editor) Links(ctx context.Context) ([]Link, error) {
	v, err := e.cache.GetOrFetch(ctx, KeyLinks, func(ctx context.Context) (interface{}, error) {
		return e.api.Links(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Link), nil
}

func (e *Editor) Groups(ctx context.Context) ([]Group, error) {
	v, err := e.cache.GetOrFetch(ctx, KeyGroups, func(ctx context.Context) (interface{}, error) {
		return e.api.Groups(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Group), nil
}

func (e *Editor) CurrentUser(ctx context.Context) (*User, error) {
	v, err := e.cache.GetOrFetch(ctx, KeyCurrentUser, func(ctx context.Context) (interface{}, error) {
		return e.api.CurrentUser(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*User), nil
}

// Reorder handles a drop gesture over the current link sequence.
func (e *Editor) Reorder(ctx context.Context, from, to int) error {
	links, err := e.Links(ctx)
	if err != nil {
		return err
	}
	return e.coord.Move(ctx, KeyLinks, links, from, to)
}

func (e *Editor) MoveUp(ctx context.Context, index int) error {
	links, err := e.Links(ctx)
	if err != nil {
		return err
	}
	return e.coord.MoveUp(ctx, KeyLinks, links, index)
}

func (e *Editor) MoveDown(ctx context.Context, index int) error {
	links, err := e.Links(ctx)
	if err != nil {
		return err
	}
	return e.coord.MoveDown(ctx, KeyLinks, links, index)
}

// Watch subscribes to cross-context signals and marks the matching cache
// keys stale until ctx is done. Receivers never trust a payload; they just
// refetch on their next read.
func (e *Editor) Watch(ctx context.Context) {
	ch, cancel := e.hub.Subscribe()
	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case s, ok := <-ch:
				if !ok {
					return
				}
				switch s {
				case notify.SignalLinksChanged:
					e.cache.MarkStale(KeyLinks)
				case notify.SignalGroupsChanged:
					e.cache.MarkStale(KeyGroups)
				case notify.SignalProfileChanged, notify.SignalUserChanged:
					e.cache.MarkStale(KeyCurrentUser)
				}
			}
		}
	}()
}
