package audit

import (
	"context"
	"sync"
	"time"

	"opticore.org/internal/ids"
	"opticore.org/internal/obs"
)

const (
	defaultQueueSize      = 1024
	defaultRetentionYears = 6
	writeTimeout          = 5 * time.Second
)

// Pipeline is the bounded outbox between request handlers and the audit
// store. Record never blocks and never fails the caller: queue-full drops
// and store failures are logged locally and counted for operational
// alerting, and the triggering business operation completes regardless.
type Pipeline struct {
	store          Store
	retentionYears int
	now            func() time.Time

	queue chan Record
	wg    sync.WaitGroup

	closeOnce sync.Once

	// lastStamp makes timestamps strictly monotonic within the process so
	// multiple events from one request order correctly.
	stampMu   sync.Mutex
	lastStamp time.Time
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithQueueSize bounds the outbox.
func WithQueueSize(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.queue = make(chan Record, n)
		}
	}
}

// WithRetentionYears overrides the retention window stamped on records.
func WithRetentionYears(years int) PipelineOption {
	return func(p *Pipeline) {
		if years > 0 {
			p.retentionYears = years
		}
	}
}

// WithClock overrides the time source (useful in tests).
func WithClock(fn func() time.Time) PipelineOption {
	return func(p *Pipeline) {
		if fn != nil {
			p.now = fn
		}
	}
}

// NewPipeline constructs a Pipeline and starts its background writer.
func NewPipeline(store Store, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		store:          store,
		retentionYears: defaultRetentionYears,
		now:            time.Now,
		queue:          make(chan Record, defaultQueueSize),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// Record classifies, stamps and enqueues one audit record. It is safe for
// concurrent use and returns immediately; delivery is best-effort.
func (p *Pipeline) Record(rec Record) {
	if rec.ID == "" {
		rec.ID = ids.New()
	}
	rec.PHIAccessed, rec.PHIFields = Classify(rec.Resource, rec.PHIFields)
	rec.OccurredAt = p.stamp()
	rec.RetentionUntil = rec.OccurredAt.AddDate(p.retentionYears, 0, 0)

	select {
	case p.queue <- rec:
		obs.AuditQueueDepth.Set(float64(len(p.queue)))
	default:
		obs.AuditDroppedTotal.Inc()
		obs.Error("audit_record_dropped", map[string]any{
			"resource": rec.Resource,
			"verb":     rec.Verb,
			"actor_id": rec.ActorID,
		})
	}
}

// Close stops accepting records and drains the queue.
func (p *Pipeline) Close() {
	p.closeOnce.Do(func() {
		close(p.queue)
	})
	p.wg.Wait()
}

func (p *Pipeline) run() {
	defer p.wg.Done()
	for rec := range p.queue {
		obs.AuditQueueDepth.Set(float64(len(p.queue)))
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := p.store.Append(ctx, &rec)
		cancel()
		if err != nil {
			obs.AuditWriteFailuresTotal.Inc()
			obs.Error("audit_write_failed", map[string]any{
				"record_id": rec.ID,
				"resource":  rec.Resource,
				"verb":      rec.Verb,
				"error":     err.Error(),
			})
		}
	}
}

func (p *Pipeline) stamp() time.Time {
	p.stampMu.Lock()
	defer p.stampMu.Unlock()
	now := p.now().UTC()
	if !now.After(p.lastStamp) {
		now = p.lastStamp.Add(time.Nanosecond)
	}
	p.lastStamp = now
	return now
}
