package client

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/librepage/librepage-back/internal/notify"
)

type (
	// Link is the editor's view of a link row.
	Link struct {
		ID       uint64  `json:"id"`
		Title    string  `json:"title"`
		URL      string  `json:"url"`
		Order    int     `json:"order"`
		IsSocial bool    `json:"isSocial"`
		GroupID  *uint64 `json:"groupId"`
	}

	LinkOrder struct {
		ID    uint64 `json:"id"`
		Order int    `json:"order"`
	}

	// Persister writes a full order sequence to the server.
	Persister interface {
		PersistOrder(ctx context.Context, items []LinkOrder) error
	}

	// Coordinator turns a drop gesture into an optimistic cache write plus a
	// full-sequence persist. Persisting the whole sequence keeps the server
	// column dense and makes the call idempotent, so rapid sequential drags
	// are last-writer-wins safe regardless of completion order.
	Coordinator struct {
		cache     *QueryCache
		persister Persister
		hub       *notify.Hub
		logger    *zap.SugaredLogger

		mu         sync.Mutex
		lastIssued uint64
	}
)

var ErrIndexOutOfRange = errors.New("index out of range")

func NewCoordinator(cache *QueryCache, persister Persister, hub *notify.Hub, logger *zap.SugaredLogger) *Coordinator {
	return &Coordinator{
		cache:     cache,
		persister: persister,
		hub:       hub,
		logger:    logger,
	}
}

// ArrayMove removes the item at from and reinserts it at to; no other items
// change relative order.
func ArrayMove[T any](items []T, from, to int) []T {
	out := make([]T, len(items))
	copy(out, items)

	item := out[from]
	out = append(out[:from], out[from+1:]...)

	tail := append([]T{item}, out[to:]...)
	return append(out[:to], tail...)
}

// Move handles a drop of the item at index from onto index to within the
// sequence cached under key. Dropping at the current position is a no-op:
// no cache write, no network call.
func (c *Coordinator) Move(ctx context.Context, key string, links []Link, from, to int) error {
	if from < 0 || from >= len(links) || to < 0 || to >= len(links) {
		return ErrIndexOutOfRange
	}
	if from == to {
		return nil
	}

	next := ArrayMove(links, from, to)
	for i := range next {
		next[i].Order = i
	}

	// issuing the sequence number and writing the cache happen under one
	// lock, so the cache always holds the value of the latest issued drag
	reqID := c.issue(func() {
		c.cache.SetOptimistic(key, next)
	})

	items := make([]LinkOrder, len(next))
	for i := range next {
		items[i] = LinkOrder{ID: next[i].ID, Order: next[i].Order}
	}
	err := c.persister.PersistOrder(ctx, items)

	if c.superseded(reqID) {
		// a newer drag already owns the cache; this completion is stale
		// either way and must not touch it
		return nil
	}

	if err != nil {
		c.cache.Invalidate(key)
		return errors.Wrap(err, "persist order")
	}

	c.hub.Publish(notify.SignalLinksChanged)
	return nil
}

// MoveUp and MoveDown are the discrete keyboard affordance.
func (c *Coordinator) MoveUp(ctx context.Context, key string, links []Link, index int) error {
	if index == 0 {
		return nil
	}
	return c.Move(ctx, key, links, index, index-1)
}

func (c *Coordinator) MoveDown(ctx context.Context, key string, links []Link, index int) error {
	if index == len(links)-1 {
		return nil
	}
	return c.Move(ctx, key, links, index, index+1)
}

func (c *Coordinator) issue(apply func()) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastIssued++
	apply()
	return c.lastIssued
}

func (c *Coordinator) superseded(reqID uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return reqID != c.lastIssued
}
