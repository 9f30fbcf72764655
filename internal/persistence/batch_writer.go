// Package persistence journals order and trade lifecycle notifications.
package persistence

import (
	"database/sql"
	"sync"
	"time"

	"futures-bridge/pkg/logging"
)

var log = logging.For("journal")

// WriteOp represents a database write operation.
type WriteOp struct {
	Query string
	Args  []any
}

// BatchWriter batches database writes, one transaction per flush.
type BatchWriter struct {
	db          *sql.DB
	mu          sync.Mutex
	buffer      []WriteOp
	maxSize     int
	flushIntval time.Duration
	done        chan struct{}
	closeOnce   sync.Once
	wg          sync.WaitGroup

	statsMu sync.Mutex
	stats   BatchWriterStats
}

// BatchWriterStats provides statistics about batch operations.
type BatchWriterStats struct {
	TotalWrites   uint64    `json:"total_writes"`
	TotalBatches  uint64    `json:"total_batches"`
	TotalErrors   uint64    `json:"total_errors"`
	LastBatchSize int       `json:"last_batch_size"`
	LastFlushTime time.Time `json:"last_flush_time"`
}

// NewBatchWriter creates a batch writer that flushes every maxSize operations
// or every interval, whichever comes first.
func NewBatchWriter(db *sql.DB, maxSize int, interval time.Duration) *BatchWriter {
	if maxSize <= 0 {
		maxSize = 50
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	bw := &BatchWriter{
		db:          db,
		buffer:      make([]WriteOp, 0, maxSize),
		maxSize:     maxSize,
		flushIntval: interval,
		done:        make(chan struct{}),
	}

	bw.wg.Add(1)
	go bw.backgroundFlush()

	return bw
}

// Write adds a write operation to the batch.
func (bw *BatchWriter) Write(op WriteOp) {
	bw.mu.Lock()
	bw.buffer = append(bw.buffer, op)
	shouldFlush := len(bw.buffer) >= bw.maxSize
	bw.mu.Unlock()

	if shouldFlush {
		if err := bw.Flush(); err != nil {
			log.WithError(err).Warn("size flush failed")
		}
	}
}

// WriteQuery is a convenience method for simple queries.
func (bw *BatchWriter) WriteQuery(query string, args ...any) {
	bw.Write(WriteOp{Query: query, Args: args})
}

// Flush immediately writes all buffered operations to the database.
func (bw *BatchWriter) Flush() error {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return nil
	}
	ops := bw.buffer
	bw.buffer = make([]WriteOp, 0, bw.maxSize)
	bw.mu.Unlock()

	return bw.executeBatch(ops)
}

// executeBatch runs a batch of operations in a transaction.
func (bw *BatchWriter) executeBatch(ops []WriteOp) error {
	bw.statsMu.Lock()
	bw.stats.TotalWrites += uint64(len(ops))
	bw.stats.TotalBatches++
	bw.stats.LastBatchSize = len(ops)
	bw.stats.LastFlushTime = time.Now()
	bw.statsMu.Unlock()

	tx, err := bw.db.Begin()
	if err != nil {
		bw.failed()
		return err
	}
	for _, op := range ops {
		if _, err := tx.Exec(op.Query, op.Args...); err != nil {
			_ = tx.Rollback()
			bw.failed()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		bw.failed()
		return err
	}

	log.WithField("ops", len(ops)).Debug("batch flushed")
	return nil
}

func (bw *BatchWriter) failed() {
	bw.statsMu.Lock()
	bw.stats.TotalErrors++
	bw.statsMu.Unlock()
}

// backgroundFlush periodically flushes the buffer.
func (bw *BatchWriter) backgroundFlush() {
	defer bw.wg.Done()
	ticker := time.NewTicker(bw.flushIntval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := bw.Flush(); err != nil {
				log.WithError(err).Warn("background flush failed, batch dropped")
			}
		case <-bw.done:
			if err := bw.Flush(); err != nil {
				log.WithError(err).Warn("final flush failed")
			}
			return
		}
	}
}

// Pending returns the number of pending operations.
func (bw *BatchWriter) Pending() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

// Stats returns a copy of the counters.
func (bw *BatchWriter) Stats() BatchWriterStats {
	bw.statsMu.Lock()
	defer bw.statsMu.Unlock()
	return bw.stats
}

// Close flushes what is buffered and stops the background flush.
func (bw *BatchWriter) Close() error {
	bw.closeOnce.Do(func() { close(bw.done) })
	bw.wg.Wait()
	return nil
}
