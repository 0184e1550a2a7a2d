// Package queue schedules background jobs: unit ingestion, stream
// production and thread titling. Delivery is at-least-once within a process;
// handlers must tolerate re-execution.
package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-docchat-backend/internal/observability"
)

// Job kinds.
const (
	KindIngestFile  = "ingest.file"
	KindIngestPage  = "ingest.page"
	KindThreadTitle = "thread.title"
	KindChatStream  = "chat.stream"
)

// dropTimeout bounds one OnDrop callback, and how long Shutdown waits for
// cancelled jobs to settle.
const dropTimeout = 5 * time.Second

// ErrClosed is returned by Enqueue after Shutdown.
var ErrClosed = errors.New("queue: closed")

// Job is one unit of background work. Target is the id the handler acts on
// (a unit, a thread or a stream handle).
type Job struct {
	Kind   string
	Target string
}

// Handler executes a job.
type Handler func(ctx context.Context, job Job) error

// Queue is the scheduling collaborator.
type Queue interface {
	Enqueue(ctx context.Context, job Job, delay time.Duration) error
}

// Local runs jobs in-process. Delayed jobs wait on timers. Kinds registered
// WithSlots run in their own pool; the others share Workers slots.
type Local struct {
	kinds map[string]*kind
	sem   chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	closed  bool
	pending map[*time.Timer]Job
	wg      sync.WaitGroup
}

type kind struct {
	handler Handler
	sem     chan struct{}
	dropped func(ctx context.Context, job Job)
}

// Option configures a registered kind.
type Option func(*kind)

// WithSlots gives the kind a dedicated pool of n concurrent slots, so a
// backlog of other kinds never delays it.
func WithSlots(n int) Option {
	return func(k *kind) {
		if n > 0 {
			k.sem = make(chan struct{}, n)
		}
	}
}

// OnDrop registers fn for jobs of the kind discarded by Shutdown before they
// ran. fn receives a context that is not tied to the queue.
func OnDrop(fn func(ctx context.Context, job Job)) Option {
	return func(k *kind) { k.dropped = fn }
}

// NewLocal returns a queue whose shared pool runs at most workers jobs.
func NewLocal(workers int) *Local {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Local{
		kinds:   map[string]*kind{},
		sem:     make(chan struct{}, workers),
		ctx:     ctx,
		cancel:  cancel,
		pending: map[*time.Timer]Job{},
	}
}

// Handle registers h for kind. It must be called before jobs of that kind
// are enqueued.
func (q *Local) Handle(name string, h Handler, opts ...Option) {
	k := &kind{handler: h, sem: q.sem}
	for _, o := range opts {
		o(k)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.kinds[name] = k
}

// Enqueue implements Queue. The request context only bounds the call
// itself; the job runs on the queue's own context.
func (q *Local) Enqueue(_ context.Context, job Job, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	if _, ok := q.kinds[job.Kind]; !ok {
		return fmt.Errorf("queue: no handler for %q", job.Kind)
	}
	q.wg.Add(1)
	if delay <= 0 {
		go q.run(job)
		return nil
	}
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.pending, t)
		q.mu.Unlock()
		q.run(job)
	})
	q.pending[t] = job
	return nil
}

func (q *Local) run(job Job) {
	defer q.wg.Done()
	q.mu.Lock()
	k := q.kinds[job.Kind]
	q.mu.Unlock()

	select {
	case k.sem <- struct{}{}:
	case <-q.ctx.Done():
		q.drop(k, job)
		return
	}
	defer func() { <-k.sem }()

	logger := log.With().Str("job", job.Kind).Str("target", job.Target).Logger()
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			observability.QueueJobs.WithLabelValues(job.Kind, "panic").Inc()
			logger.Error().Interface("panic", rec).Bytes("stack", debug.Stack()).Msg("job panicked")
		}
	}()

	err := k.handler(q.ctx, job)
	observability.QueueJobs.WithLabelValues(job.Kind, observability.Outcome(err)).Inc()
	if err != nil {
		logger.Warn().Err(err).Dur("elapsed", time.Since(start)).Msg("job failed")
		return
	}
	logger.Debug().Dur("elapsed", time.Since(start)).Msg("job done")
}

// drop records a job that will never run and hands it to the kind's OnDrop.
func (q *Local) drop(k *kind, job Job) {
	observability.QueueJobs.WithLabelValues(job.Kind, "dropped").Inc()
	if k == nil || k.dropped == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Str("job", job.Kind).Msg("drop callback panicked")
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), dropTimeout)
	defer cancel()
	k.dropped(ctx, job)
}

// Shutdown stops accepting jobs, drops jobs still waiting on their delay
// (passing them to OnDrop) and waits for running jobs. When ctx expires first
// the running jobs' context is cancelled, jobs waiting on a slot are dropped
// and ctx.Err() is returned once they settle or dropTimeout passes.
func (q *Local) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	var dropped []Job
	kinds := make([]*kind, 0, len(q.pending))
	for t, job := range q.pending {
		if t.Stop() {
			dropped = append(dropped, job)
			kinds = append(kinds, q.kinds[job.Kind])
		}
		delete(q.pending, t)
	}
	q.mu.Unlock()
	for i, job := range dropped {
		q.drop(kinds[i], job)
		q.wg.Done()
	}
	if len(dropped) > 0 {
		log.Info().Int("jobs", len(dropped)).Msg("delayed jobs dropped on shutdown")
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		select {
		case <-done:
		case <-time.After(dropTimeout):
			log.Warn().Msg("jobs still running after cancel")
		}
		return ctx.Err()
	}
}
