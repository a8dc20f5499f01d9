package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/frahmantamala/authz/internal"
	"github.com/frahmantamala/authz/internal/obs"
	"github.com/google/uuid"
)

// Recorder buffers audit records in a bounded queue and flushes them
// to the store asynchronously. Enqueue blocks when the queue is full:
// audit completeness is a compliance requirement, so backpressure
// beats dropping. Ordering is preserved per queue, which covers the
// per-user ordering requirement.
type Recorder struct {
	repo   RepositoryAPI
	logger *slog.Logger

	queue         chan Record
	flushBatch    int
	flushInterval time.Duration
	maxRetries    int
	retryBackoff  time.Duration

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.RWMutex
	closed bool
}

func NewRecorder(repo RepositoryAPI, cfg internal.AuditConfig, logger *slog.Logger) *Recorder {
	r := &Recorder{
		repo:          repo,
		logger:        logger,
		queue:         make(chan Record, cfg.QueueSize),
		flushBatch:    cfg.FlushBatch,
		flushInterval: cfg.FlushInterval,
		maxRetries:    cfg.MaxRetries,
		retryBackoff:  cfg.RetryBackoff,
		done:          make(chan struct{}),
	}

	r.wg.Add(1)
	go r.flushLoop()

	return r
}

// Enqueue places the record on the queue, blocking while the queue is
// full. Once this returns nil the record is durably buffered and will
// reach the store at least once.
func (r *Recorder) Enqueue(ctx context.Context, record Record) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}

	// The read lock spans the send: shutdown cannot close intake and
	// drain while a producer sits between the closed check and the send,
	// so an accepted record always reaches the flusher.
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrRecorderClosed
	}

	select {
	case r.queue <- record:
		obs.SetAuditQueueDepth(len(r.queue))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops intake, drains buffered records to the store and
// waits for the flusher to exit.
func (r *Recorder) Shutdown() {
	r.once.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()
		close(r.done)
	})
	r.wg.Wait()
}

func (r *Recorder) flushLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	batch := make([]Record, 0, r.flushBatch)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		r.writeWithRetry(batch)
		batch = batch[:0]
		obs.SetAuditQueueDepth(len(r.queue))
	}

	for {
		select {
		case record := <-r.queue:
			batch = append(batch, record)
			if len(batch) >= r.flushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-r.done:
			// drain whatever producers managed to queue before intake closed
			for {
				select {
				case record := <-r.queue:
					batch = append(batch, record)
					if len(batch) >= r.flushBatch {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

// writeWithRetry appends the batch with bounded backoff. A batch that
// exhausts its retries is logged for operational escalation; it never
// surfaces to the caller whose decision was already returned.
func (r *Recorder) writeWithRetry(batch []Record) {
	records := make([]Record, len(batch))
	copy(records, batch)

	backoff := r.retryBackoff
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := r.repo.AppendBatch(ctx, records)
		cancel()

		if err == nil {
			return
		}

		r.logger.Warn("audit flush failed, will retry",
			"error", err,
			"attempt", attempt,
			"records", len(records))

		if attempt < r.maxRetries {
			time.Sleep(backoff)
			backoff *= 2
		}
	}

	obs.IncAuditFlushFailures()
	r.logger.Error("audit flush exhausted retries, records lost",
		"records", len(records),
		"first_action", records[0].Action)
}
