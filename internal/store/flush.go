package store

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// pendingWrite is one not-yet-persisted ledger mutation. It carries the full
// resulting record rather than a delta so replaying it after a reload is
// idempotent.
type pendingWrite struct {
	rec      UserRecord
	attempts int
}

// flushQueue buffers dirty ledger records and persists them in batches,
// coalescing writes per user. Records that keep failing past maxAttempts are
// logged as lost and dropped so the queue stays bounded.
type flushQueue struct {
	mu          sync.Mutex
	pending     map[int64]pendingWrite
	maxAttempts int
	logger      *zap.Logger
}

func newFlushQueue(maxAttempts int, logger *zap.Logger) *flushQueue {
	return &flushQueue{
		pending:     make(map[int64]pendingWrite),
		maxAttempts: maxAttempts,
		logger:      logger.Named("flush"),
	}
}

// Enqueue records a mutation for the next flush cycle. A newer write for the
// same user replaces the older one and resets its attempt count.
func (q *flushQueue) Enqueue(rec UserRecord) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pending[rec.UserID] = pendingWrite{rec: rec}
}

// Replay applies every pending write back into the ledger. Called after a
// full reload so a refresh never silently loses an un-flushed local mutation.
func (q *flushQueue) Replay(ledger *userLedger) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, pw := range q.pending {
		ledger.Put(pw.rec)
	}
}

// Len returns the number of users with pending writes.
func (q *flushQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.pending)
}

// Flush persists pending writes to the backing store. Known users update
// their existing row; new users append and claim the next row index. A
// failed write stays queued for the next cycle until maxAttempts is reached.
func (q *flushQueue) Flush(ctx context.Context, backing TableStore, table string, ledger *userLedger) {
	q.mu.Lock()
	snapshot := make(map[int64]UserRecord, len(q.pending))

	for userID, pw := range q.pending {
		snapshot[userID] = pw.rec
	}
	q.mu.Unlock()

	for userID, rec := range snapshot {
		var err error

		if row, ok := ledger.rowIndex(userID); ok {
			err = backing.UpdateRow(ctx, table, row, encodeUserRow(rec))
		} else {
			err = backing.AppendRow(ctx, table, encodeUserRow(rec))
			if err == nil {
				ledger.claimRow(userID)
			}
		}

		if err != nil {
			q.fail(userID, rec, err)
			continue
		}

		q.complete(userID, rec)
	}
}

// complete removes a persisted write unless a newer mutation was enqueued
// while the flush was in flight.
func (q *flushQueue) complete(userID int64, flushed UserRecord) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if pw, ok := q.pending[userID]; ok && pw.rec == flushed {
		delete(q.pending, userID)
	}
}

// fail counts a failed attempt and drops the mutation once the budget is
// spent. A newer enqueued write keeps its fresh attempt count.
func (q *flushQueue) fail(userID int64, attempted UserRecord, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	pw, ok := q.pending[userID]
	if !ok || pw.rec != attempted {
		return
	}

	pw.attempts++
	if pw.attempts >= q.maxAttempts {
		q.logger.Error("Dropping ledger mutation after repeated flush failures",
			zap.Int64("userID", userID),
			zap.Int("attempts", pw.attempts),
			zap.Error(err))
		delete(q.pending, userID)

		return
	}

	q.logger.Warn("Flush failed, requeueing mutation",
		zap.Int64("userID", userID),
		zap.Int("attempts", pw.attempts),
		zap.Error(err))
	q.pending[userID] = pw
}
