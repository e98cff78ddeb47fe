package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"homefeed/internal/queue"
)

const (
	// DefaultWorkerCount is the default number of worker goroutines.
	DefaultWorkerCount = 2

	// DefaultBatchSize is the number of messages to read per batch.
	DefaultBatchSize = 10

	// DefaultBlockTimeout is how long to block waiting for new messages.
	DefaultBlockTimeout = 5 * time.Second

	// DefaultPendingRetryInterval is how often a worker re-walks its
	// pending list to retry messages whose handler failed transiently.
	DefaultPendingRetryInterval = 30 * time.Second
)

// EntryTrimmer deletes feed entries past the retention age.
type EntryTrimmer interface {
	DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error)
}

// Manager orchestrates worker goroutines that consume from the timeline
// stream, plus an optional retention sweep.
type Manager struct {
	consumer     queue.Consumer
	handler      *Handler
	workerCount  int
	batchSize    int64
	blockTime    time.Duration
	pendingRetry time.Duration

	trimmer           EntryTrimmer
	retentionAge      time.Duration
	retentionInterval time.Duration

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// ManagerConfig holds configuration for the worker manager.
type ManagerConfig struct {
	WorkerCount  int           // Number of worker goroutines
	BatchSize    int64         // Messages per read
	BlockTimeout time.Duration // Block time for XREADGROUP

	// PendingRetryInterval is how often each worker re-reads its pending
	// list so transiently failed (unacked) jobs get re-executed.
	PendingRetryInterval time.Duration

	// RetentionAge > 0 enables the periodic trim of feed entries older
	// than the threshold. Deletes are idempotent, so sweeps racing across
	// processes converge.
	RetentionAge      time.Duration
	RetentionInterval time.Duration
}

// DefaultManagerConfig returns sensible defaults (retention disabled).
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		WorkerCount:  DefaultWorkerCount,
		BatchSize:    DefaultBatchSize,
		BlockTimeout: DefaultBlockTimeout,
	}
}

// NewManager creates a new worker manager.
func NewManager(consumer queue.Consumer, handler *Handler, trimmer EntryTrimmer, cfg ManagerConfig) *Manager {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = DefaultWorkerCount
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = DefaultBlockTimeout
	}
	if cfg.RetentionInterval <= 0 {
		cfg.RetentionInterval = time.Hour
	}
	if cfg.PendingRetryInterval <= 0 {
		cfg.PendingRetryInterval = DefaultPendingRetryInterval
	}

	return &Manager{
		consumer:          consumer,
		handler:           handler,
		workerCount:       cfg.WorkerCount,
		batchSize:         cfg.BatchSize,
		blockTime:         cfg.BlockTimeout,
		pendingRetry:      cfg.PendingRetryInterval,
		trimmer:           trimmer,
		retentionAge:      cfg.RetentionAge,
		retentionInterval: cfg.RetentionInterval,
	}
}

// Start begins the worker goroutines. Call Stop() to shut down.
func (m *Manager) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	if err := m.consumer.EnsureGroup(m.ctx, queue.StreamTimeline, queue.ConsumerGroupTimeline); err != nil {
		return err
	}

	log.Printf("[Manager] Starting %d workers for stream=%s group=%s",
		m.workerCount, queue.StreamTimeline, queue.ConsumerGroupTimeline)

	for i := 0; i < m.workerCount; i++ {
		workerID := i + 1
		consumerName := fmt.Sprintf("worker-%d", workerID)

		m.wg.Add(1)
		go m.runWorker(workerID, consumerName)
	}

	if m.trimmer != nil && m.retentionAge > 0 {
		m.wg.Add(1)
		go m.runRetention()
	}

	log.Printf("[Manager] All %d workers started", m.workerCount)
	return nil
}

// Stop gracefully shuts down all workers.
// Blocks until all workers have finished.
func (m *Manager) Stop() {
	log.Printf("[Manager] Stopping workers...")
	m.cancel()
	m.wg.Wait()
	log.Printf("[Manager] All workers stopped")
}

// runWorker is the main loop for a single worker goroutine.
func (m *Manager) runWorker(workerID int, consumerName string) {
	defer m.wg.Done()

	log.Printf("[Worker-%d] Started (consumer=%s)", workerID, consumerName)

	// Crash recovery: jobs delivered to this consumer but never acked get
	// re-executed first. Handlers tolerate the redelivery.
	m.processPending(workerID, consumerName)
	lastPendingPass := time.Now()

	for {
		select {
		case <-m.ctx.Done():
			log.Printf("[Worker-%d] Shutting down", workerID)
			return
		default:
			m.processMessages(workerID, consumerName)

			// Jobs whose handler failed transiently stay in the pending
			// list unacked; re-walk it periodically so they get retried.
			if time.Since(lastPendingPass) >= m.pendingRetry {
				m.processPending(workerID, consumerName)
				lastPendingPass = time.Now()
			}
		}
	}
}

// processPending handles messages that were delivered but not acknowledged.
// The walk advances a start id rather than re-reading from "0", so a
// message that keeps failing is retried once per pass, not spun on.
func (m *Manager) processPending(workerID int, consumerName string) {
	startID := "0"
	for {
		messages, err := m.consumer.ReadPending(m.ctx, queue.StreamTimeline, queue.ConsumerGroupTimeline, consumerName, startID, m.batchSize)
		if err != nil {
			log.Printf("[Worker-%d] Error reading pending: %v", workerID, err)
			return
		}

		if len(messages) == 0 {
			return
		}

		log.Printf("[Worker-%d] Processing %d pending messages", workerID, len(messages))
		m.handleMessages(workerID, messages)
		startID = messages[len(messages)-1].ID
	}
}

// processMessages reads and handles a batch of messages.
func (m *Manager) processMessages(workerID int, consumerName string) {
	messages, err := m.consumer.Read(
		m.ctx,
		queue.StreamTimeline,
		queue.ConsumerGroupTimeline,
		consumerName,
		m.batchSize,
		m.blockTime,
	)

	if err != nil {
		log.Printf("[Worker-%d] Error reading: %v", workerID, err)
		time.Sleep(time.Second) // Back off on error
		return
	}

	if len(messages) == 0 {
		return // Timeout, no messages
	}

	m.handleMessages(workerID, messages)
}

// handleMessages processes a batch of messages, acknowledging each on
// success. A transient handler failure leaves the message in the pending
// list so the periodic pending pass redelivers it; redelivery is safe
// because all feed writes are conflict-ignore inserts. Only jobs that can
// never succeed (no handler exists for them) are acked and dropped.
func (m *Manager) handleMessages(workerID int, messages []queue.Message) {
	for _, msg := range messages {
		log.Printf("[Worker-%d] Processing msgID=%s type=%s", workerID, msg.ID, msg.Job.Type)

		if err := m.handler.HandleJob(m.ctx, msg.Job); err != nil {
			if !errors.Is(err, ErrUnknownJobType) {
				log.Printf("[Worker-%d] Handler error msgID=%s: %v (left pending for retry)", workerID, msg.ID, err)
				// TODO: cap redeliveries and route repeat offenders to a
				// dead-letter stream.
				continue
			}
			log.Printf("[Worker-%d] Dropping msgID=%s: %v", workerID, msg.ID, err)
		}

		if err := m.consumer.Ack(m.ctx, queue.StreamTimeline, queue.ConsumerGroupTimeline, msg.ID); err != nil {
			log.Printf("[Worker-%d] ACK error msgID=%s: %v", workerID, msg.ID, err)
		}
	}
}

// runRetention periodically trims feed entries older than the retention
// threshold.
func (m *Manager) runRetention() {
	defer m.wg.Done()

	log.Printf("[Retention] Started: age=%v interval=%v", m.retentionAge, m.retentionInterval)
	ticker := time.NewTicker(m.retentionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			log.Printf("[Retention] Shutting down")
			return
		case <-ticker.C:
			trimmed, err := m.trimmer.DeleteOlderThan(m.ctx, m.retentionAge)
			if err != nil {
				log.Printf("[Retention] Trim FAILED: %v", err)
				continue
			}
			log.Printf("[Retention] Trim OK: removed=%d older_than=%v", trimmed, m.retentionAge)
		}
	}
}
