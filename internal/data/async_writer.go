package data

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"

	dberrors "github.com/adityat54544/AI-SAAS-1/pkg/errors"
)

// asyncWriterBuffer is the queue length of every async writer.
const asyncWriterBuffer = 1000

// asyncWriter inserts rows on a background goroutine. Enqueue never blocks:
// rows are dropped with a warning when the queue is full or the writer is
// closed. Close drains the queue before returning. Every enqueued row is
// counted exactly once as written, failed or dropped.
type asyncWriter[T any] struct {
	table  string
	insert func(ctx context.Context, row *T) error

	// mu orders sends on ch against close(ch).
	mu     sync.RWMutex
	closed bool
	ch     chan *T
	wg     sync.WaitGroup

	written atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
	logger  *log.Helper
}

func newAsyncWriter[T any](db *gorm.DB, table string, logger *log.Helper) *asyncWriter[T] {
	w := &asyncWriter[T]{
		table: table,
		insert: func(ctx context.Context, row *T) error {
			return db.WithContext(ctx).Table(table).Create(row).Error
		},
		ch:     make(chan *T, asyncWriterBuffer),
		logger: logger,
	}
	w.wg.Add(1)
	go w.start()
	return w
}

func (w *asyncWriter[T]) enqueue(row *T) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		w.dropped.Add(1)
		w.logger.Warnw("msg", "writer closed, dropping row", "table", w.table)
		return false
	}
	select {
	case w.ch <- row:
		return true
	default:
		w.dropped.Add(1)
		w.logger.Warnw("msg", "write queue full, dropping row", "table", w.table)
		return false
	}
}

func (w *asyncWriter[T]) start() {
	defer w.wg.Done()
	for row := range w.ch {
		w.write(row)
	}
}

// write inserts one row, retrying once on transient errors. Duplicate keys
// are treated as already written.
func (w *asyncWriter[T]) write(row *T) {
	ctx := context.Background()

	err := w.insert(ctx, row)
	if err != nil && dberrors.IsRetryable(err) {
		w.logger.Warnw("msg", "transient write error, retrying once", "table", w.table, "error", err)
		err = w.insert(ctx, row)
	}

	switch {
	case err == nil:
		w.written.Add(1)
		w.logger.Debugw("msg", "row written", "table", w.table)
	case dberrors.IsDuplicateKeyError(err):
		w.written.Add(1)
		w.logger.Debugw("msg", "row already written", "table", w.table)
	default:
		w.failed.Add(1)
		dbErr := dberrors.ClassifyDBError(err)
		w.logger.Errorw("msg", "failed to write row",
			"table", w.table,
			"error_type", dbErr.Type.String(),
			"error", err)
	}
}

// close stops the writer after the queued rows are written.
func (w *asyncWriter[T]) close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.ch)
	w.mu.Unlock()

	w.wg.Wait()
}
