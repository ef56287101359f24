package store

import (
	"strconv"
	"sync"
)

// joinKey is the composite key of one join request.
type joinKey struct {
	userID    int64
	channelID int64
}

// joinRequestLedger is a bounded set of (user, channel) pairs recording users
// who requested to join a gated channel. Inserts are idempotent; when the
// limit is exceeded the oldest entries are evicted first. Stale entries are
// acceptable because those users have likely since passed live membership
// checks.
type joinRequestLedger struct {
	mu      sync.Mutex
	entries map[joinKey]struct{}
	order   []joinKey
	limit   int
}

func newJoinRequestLedger(limit int) *joinRequestLedger {
	return &joinRequestLedger{
		entries: make(map[joinKey]struct{}),
		limit:   limit,
	}
}

// Has reports whether the pair is recorded.
func (j *joinRequestLedger) Has(userID, channelID int64) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, ok := j.entries[joinKey{userID: userID, channelID: channelID}]
	return ok
}

// Add inserts the pair and reports whether it was new. A duplicate is a
// silent no-op so the caller can skip the remote append.
func (j *joinRequestLedger) Add(userID, channelID int64) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	key := joinKey{userID: userID, channelID: channelID}
	if _, ok := j.entries[key]; ok {
		return false
	}

	j.entries[key] = struct{}{}
	j.order = append(j.order, key)
	j.evictLocked()

	return true
}

// Replace swaps in a freshly loaded set, keeping insertion order for
// eviction. On overflow only the most recent entries survive.
func (j *joinRequestLedger) Replace(keys []joinKey) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.entries = make(map[joinKey]struct{}, len(keys))
	j.order = j.order[:0]

	for _, key := range keys {
		if _, ok := j.entries[key]; ok {
			continue
		}

		j.entries[key] = struct{}{}
		j.order = append(j.order, key)
	}

	j.evictLocked()
}

// Len returns the number of recorded pairs.
func (j *joinRequestLedger) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()

	return len(j.entries)
}

func (j *joinRequestLedger) evictLocked() {
	if j.limit <= 0 {
		return
	}

	for len(j.order) > j.limit {
		oldest := j.order[0]
		j.order = j.order[1:]
		delete(j.entries, oldest)
	}
}

// encodeJoinRequestRow serializes a pair for the JoinRequests table.
func encodeJoinRequestRow(userID, channelID int64) []string {
	return []string{
		strconv.FormatInt(userID, 10),
		strconv.FormatInt(channelID, 10),
	}
}

// decodeJoinRequestRow parses a JoinRequests table row.
func decodeJoinRequestRow(row []string) (joinKey, bool) {
	if len(row) < 2 {
		return joinKey{}, false
	}

	userID, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return joinKey{}, false
	}

	channelID, err := strconv.ParseInt(row[1], 10, 64)
	if err != nil {
		return joinKey{}, false
	}

	return joinKey{userID: userID, channelID: channelID}, true
}
