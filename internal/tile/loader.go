package tile

import (
	"context"
	"errors"
	"image"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"slidescope/internal/logging"
	"slidescope/internal/metrics"
)

// DefaultLoaderLimit bounds the number of concurrent fetches.
const DefaultLoaderLimit = 4

// request is one in-flight fetch. version is the transform version the
// request was last confirmed visible at.
type request struct {
	id      ID
	version uint64
	cancel  context.CancelFunc
}

type completion struct {
	req *request
	img image.Image
	err error
}

// Loader issues cancellable tile fetches and hands completions back to the
// owning goroutine. Only Schedule, Drain, Wait and Close touch loader state,
// and they must all be called from that goroutine; fetches run elsewhere and
// communicate only through the completion channel.
type Loader struct {
	src     Source
	sem     *semaphore.Weighted
	logger  *zap.Logger
	metrics *metrics.Tiles

	done    chan struct{}
	results chan completion
	pending map[ID]*request
	failed  map[ID]error
	version uint64
	closed  bool
}

// NewLoader creates a loader for src with at most limit concurrent fetches.
func NewLoader(src Source, limit int, logger *zap.Logger, m *metrics.Tiles) *Loader {
	if limit <= 0 {
		limit = DefaultLoaderLimit
	}
	return &Loader{
		src:     src,
		sem:     semaphore.NewWeighted(int64(limit)),
		logger:  logging.OrNop(logger),
		metrics: m,
		done:    make(chan struct{}),
		results: make(chan completion, 64),
		pending: make(map[ID]*request),
		failed:  make(map[ID]error),
	}
}

// Schedule reconciles in-flight requests with the tiles visible at version.
// Pending requests that are no longer visible are cancelled; visible tiles
// that are neither cached nor pending are requested.
func (l *Loader) Schedule(version uint64, visible []ID, cache *Cache) {
	if l.closed {
		return
	}
	l.version = version

	want := make(map[ID]struct{}, len(visible))
	for _, id := range visible {
		want[id] = struct{}{}
	}
	for id, req := range l.pending {
		if _, ok := want[id]; !ok {
			req.cancel()
			delete(l.pending, id)
			l.metrics.Request(metrics.OutcomeCancelled)
			continue
		}
		req.version = version
	}
	for id := range l.failed {
		if _, ok := want[id]; !ok {
			delete(l.failed, id)
		}
	}

	for _, id := range visible {
		if cache.Contains(id) {
			l.metrics.Hit()
			continue
		}
		if _, ok := l.pending[id]; ok {
			continue
		}
		l.metrics.Miss()
		l.issue(id)
	}
	l.metrics.SetPending(len(l.pending))
}

func (l *Loader) issue(id ID) {
	ctx, cancel := context.WithCancel(context.Background())
	req := &request{id: id, version: l.version, cancel: cancel}
	l.pending[id] = req

	go func() {
		defer cancel()
		var (
			img image.Image
			err error
		)
		if err = l.sem.Acquire(ctx, 1); err == nil {
			img, err = l.src.Fetch(ctx, id)
			l.sem.Release(1)
		}
		select {
		case l.results <- completion{req: req, img: img, err: err}:
		case <-l.done:
		}
	}()
}

// Drain applies every completion that has already arrived without blocking.
// It returns the number of tiles handed to apply.
func (l *Loader) Drain(apply func(ID, image.Image)) int {
	applied := 0
	for {
		select {
		case c := <-l.results:
			if l.complete(c, apply) {
				applied++
			}
		default:
			return applied
		}
	}
}

// Wait blocks until no request is pending or ctx is done, applying
// completions as they arrive.
func (l *Loader) Wait(ctx context.Context, apply func(ID, image.Image)) error {
	for len(l.pending) > 0 && !l.closed {
		select {
		case c := <-l.results:
			l.complete(c, apply)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// complete honours a completion only if its request is still the pending
// request for the tile and carries the current transform version.
func (l *Loader) complete(c completion, apply func(ID, image.Image)) bool {
	id := c.req.id
	if cur, ok := l.pending[id]; !ok || cur != c.req || c.req.version != l.version {
		l.metrics.Request(metrics.OutcomeStale)
		return false
	}
	delete(l.pending, id)
	l.metrics.SetPending(len(l.pending))

	if c.err != nil {
		if errors.Is(c.err, context.Canceled) {
			l.metrics.Request(metrics.OutcomeCancelled)
			return false
		}
		l.failed[id] = c.err
		l.metrics.Request(metrics.OutcomeFailed)
		l.logger.Warn("tile fetch failed", zap.Stringer("tile", id), zap.Error(c.err))
		return false
	}
	if c.img == nil {
		l.failed[id] = errors.New("source returned no image")
		l.metrics.Request(metrics.OutcomeFailed)
		l.logger.Warn("tile fetch returned no image", zap.Stringer("tile", id))
		return false
	}

	delete(l.failed, id)
	l.metrics.Request(metrics.OutcomeLoaded)
	apply(id, c.img)
	return true
}

// Pending returns the number of requests in flight.
func (l *Loader) Pending() int {
	return len(l.pending)
}

// IsPending reports whether a tile has a request in flight.
func (l *Loader) IsPending(id ID) bool {
	_, ok := l.pending[id]
	return ok
}

// Failed returns the number of tiles whose last fetch failed.
func (l *Loader) Failed() int {
	return len(l.failed)
}

// Close cancels every pending request. Completions arriving afterwards are
// discarded. Close is idempotent.
func (l *Loader) Close() {
	if l.closed {
		return
	}
	l.closed = true
	for id, req := range l.pending {
		req.cancel()
		delete(l.pending, id)
	}
	close(l.done)
	l.metrics.SetPending(0)
}
