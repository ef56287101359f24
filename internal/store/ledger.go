package store

import (
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"
)

// UserRecord is the per-user ledger state. The backing store owns the durable
// copy; the ledger cache is a bounded-staleness replica of it.
type UserRecord struct {
	UserID        int64
	Username      string
	DisplayName   string
	SearchCredits int
	InvitedCount  int
	Subscribed    bool
}

// UserPatch is a partial update merged into a ledger record. Nil fields are
// left unchanged.
type UserPatch struct {
	Username      *string
	DisplayName   *string
	SearchCredits *int
	InvitedCount  *int
	Subscribed    *bool
}

// userLedger is the in-process owner of user records. All mutation goes
// through its methods so dirty tracking and the non-negative credits
// invariant hold. rowOf tracks each user's data row in the backing store so
// flushes can update in place; nextRow is the index the next append lands on.
type userLedger struct {
	mu      sync.Mutex
	users   map[int64]UserRecord
	rowOf   map[int64]int
	nextRow int
	logger  *zap.Logger
}

func newUserLedger(logger *zap.Logger) *userLedger {
	return &userLedger{
		users:  make(map[int64]UserRecord),
		rowOf:  make(map[int64]int),
		logger: logger.Named("ledger"),
	}
}

// Get returns a copy of the user's record.
func (l *userLedger) Get(userID int64) (UserRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.users[userID]
	return rec, ok
}

// Upsert merges a partial update into the user's record, creating the record
// if absent, and returns the result.
func (l *userLedger) Upsert(userID int64, patch UserPatch) UserRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.users[userID]
	if !ok {
		rec = UserRecord{UserID: userID}
	}

	if patch.Username != nil {
		rec.Username = *patch.Username
	}

	if patch.DisplayName != nil {
		rec.DisplayName = *patch.DisplayName
	}

	if patch.SearchCredits != nil {
		rec.SearchCredits = *patch.SearchCredits
	}

	if patch.InvitedCount != nil {
		rec.InvitedCount = *patch.InvitedCount
	}

	if patch.Subscribed != nil {
		rec.Subscribed = *patch.Subscribed
	}

	l.users[userID] = rec

	return rec
}

// Credit atomically adjusts credits and invited count by signed deltas.
// A debit that would take credits below zero fails with
// ErrInsufficientCredits without mutating the record.
func (l *userLedger) Credit(userID int64, credits, invited int) (UserRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.users[userID]
	if !ok {
		return UserRecord{}, fmt.Errorf("%w: %d", ErrUnknownUser, userID)
	}

	if rec.SearchCredits+credits < 0 {
		return rec, ErrInsufficientCredits
	}

	rec.SearchCredits += credits
	rec.InvitedCount += invited
	l.users[userID] = rec

	return rec, nil
}

// Put overwrites a record wholesale. Used by the flush coordinator to replay
// pending writes after a full reload; row bookkeeping is left untouched.
func (l *userLedger) Put(rec UserRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.users[rec.UserID] = rec
}

// Replace swaps in a freshly loaded snapshot, discarding the previous one.
// The caller must replay pending local writes afterwards.
func (l *userLedger) Replace(users map[int64]UserRecord, rowOf map[int64]int, nextRow int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.users = users
	l.rowOf = rowOf
	l.nextRow = nextRow
}

// rowIndex returns the user's data row in the backing store, if known.
func (l *userLedger) rowIndex(userID int64) (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	row, ok := l.rowOf[userID]
	return row, ok
}

// claimRow records that the user's record was appended to the backing store
// and returns the row index it landed on.
func (l *userLedger) claimRow(userID int64) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	row := l.nextRow
	l.rowOf[userID] = row
	l.nextRow++

	return row
}

// Len returns the number of cached records.
func (l *userLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.users)
}

// encodeUserRow serializes a record for the Users table.
func encodeUserRow(rec UserRecord) []string {
	subscribed := "0"
	if rec.Subscribed {
		subscribed = "1"
	}

	return []string{
		strconv.FormatInt(rec.UserID, 10),
		rec.Username,
		rec.DisplayName,
		strconv.Itoa(rec.SearchCredits),
		strconv.Itoa(rec.InvitedCount),
		subscribed,
	}
}

// decodeUserRow parses a Users table row. Short rows are tolerated because
// the subscribed column was added after the table already had data.
func decodeUserRow(row []string) (UserRecord, error) {
	if len(row) < 5 {
		return UserRecord{}, fmt.Errorf("user row has %d columns, want at least 5", len(row))
	}

	userID, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return UserRecord{}, fmt.Errorf("invalid user id %q: %w", row[0], err)
	}

	credits, err := strconv.Atoi(row[3])
	if err != nil {
		return UserRecord{}, fmt.Errorf("invalid credits %q: %w", row[3], err)
	}

	invited, err := strconv.Atoi(row[4])
	if err != nil {
		return UserRecord{}, fmt.Errorf("invalid invited count %q: %w", row[4], err)
	}

	rec := UserRecord{
		UserID:        userID,
		Username:      row[1],
		DisplayName:   row[2],
		SearchCredits: credits,
		InvitedCount:  invited,
	}

	if len(row) > 5 {
		rec.Subscribed = row[5] == "1"
	}

	return rec, nil
}
