package queue

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/chatcenter/authkit/internal/core/domain"
	"github.com/chatcenter/authkit/internal/core/ports"
)

const (
	defaultWorkers = 4
	channelBuffer  = 256
)

// AuditDispatcher fans audit events out to a fixed set of workers using
// consistent hashing on the user ID, so events for one account are written
// in the order they happened. It implements ports.AuditSink: Record never
// blocks the authentication path.
type AuditDispatcher struct {
	workers []chan domain.AuditEvent
	repo    ports.AuditRepository
	log     zerolog.Logger
	wg      sync.WaitGroup
}

// NewAuditDispatcher creates an AuditDispatcher with numWorkers sharded
// workers. If numWorkers <= 0, defaultWorkers is used.
func NewAuditDispatcher(numWorkers int, repo ports.AuditRepository, log zerolog.Logger) *AuditDispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &AuditDispatcher{
		workers: make([]chan domain.AuditEvent, numWorkers),
		repo:    repo,
		log:     log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan domain.AuditEvent, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled.
func (d *AuditDispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		d.wg.Add(1)
		go d.runWorker(ctx, i, ch)
	}
}

// Wait blocks until all workers have drained and exited.
func (d *AuditDispatcher) Wait() {
	d.wg.Wait()
}

// Record enqueues the event for its account's worker. When the worker's
// buffer is full the event is dropped with a warning: audit writes must
// never stall a login.
func (d *AuditDispatcher) Record(ev domain.AuditEvent) {
	select {
	case d.workers[d.shardIndex(ev.UserID)] <- ev:
	default:
		d.log.Warn().
			Str("action", ev.Action).
			Msg("audit queue full, event dropped")
	}
}

// shardIndex maps a user ID deterministically to a worker index.
func (d *AuditDispatcher) shardIndex(userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32()) % len(d.workers)
}

func (d *AuditDispatcher) runWorker(ctx context.Context, id int, ch <-chan domain.AuditEvent) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := d.repo.Insert(ctx, ev); err != nil {
				d.log.Error().Err(err).
					Str("action", ev.Action).
					Int("worker_id", id).
					Msg("audit write failed")
			}
		}
	}
}
