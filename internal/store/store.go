// Package store owns the in-memory caches of the ledger system and keeps
// them synchronized with the tabular backing store through periodic reloads
// and buffered batched writes.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config controls table names, refresh cadence, and ledger defaults.
type Config struct {
	UsersTable        string
	MoviesTable       string
	JoinRequestsTable string

	LedgerRefresh      time.Duration
	CatalogRefresh     time.Duration
	JoinRequestRefresh time.Duration
	FlushInterval      time.Duration

	FlushMaxAttempts int
	JoinRequestLimit int
	StartCredits     int
}

// Store is the process-wide owner of the user ledger, movie catalog, and
// join-request caches. It is constructed at startup, started once, and
// stopped at shutdown; handlers receive it rather than reaching for globals.
type Store struct {
	backing TableStore
	cfg     Config
	logger  *zap.Logger

	ledger   *userLedger
	flush    *flushQueue
	catalog  *movieCatalog
	joinReqs *joinRequestLedger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Store over the given backing store.
func New(backing TableStore, cfg Config, logger *zap.Logger) *Store {
	logger = logger.Named("store")

	return &Store{
		backing:  backing,
		cfg:      cfg,
		logger:   logger,
		ledger:   newUserLedger(logger),
		flush:    newFlushQueue(cfg.FlushMaxAttempts, logger),
		catalog:  newMovieCatalog(),
		joinReqs: newJoinRequestLedger(cfg.JoinRequestLimit),
	}
}

// Start performs the initial load and launches the background refresh and
// flush loops. The ledger and catalog must load for startup to succeed; a
// failed join-request load only degrades the gate to live checks.
func (s *Store) Start(ctx context.Context) error {
	if err := s.refreshLedger(ctx); err != nil {
		return fmt.Errorf("initial ledger load: %w", err)
	}

	if err := s.refreshCatalog(ctx); err != nil {
		return fmt.Errorf("initial catalog load: %w", err)
	}

	if err := s.refreshJoinRequests(ctx); err != nil {
		s.logger.Warn("Initial join request load failed, continuing without it", zap.Error(err))
	}

	s.logger.Info("Store loaded",
		zap.Int("users", s.ledger.Len()),
		zap.Int("movies", s.catalog.Len()),
		zap.Int("joinRequests", s.joinReqs.Len()))

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	s.loop(loopCtx, "ledger_refresh", s.cfg.LedgerRefresh, s.refreshLedger)
	s.loop(loopCtx, "catalog_refresh", s.cfg.CatalogRefresh, s.refreshCatalog)
	s.loop(loopCtx, "join_request_refresh", s.cfg.JoinRequestRefresh, s.refreshJoinRequests)
	s.loop(loopCtx, "flush", s.cfg.FlushInterval, s.flushOnce)

	return nil
}

// Stop cancels the background loops, waits for them, and makes a final flush
// attempt so a clean shutdown loses no pending writes.
func (s *Store) Stop() {
	if s.cancel != nil {
		s.cancel()
	}

	s.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.flushOnce(ctx); err != nil {
		s.logger.Error("Final flush failed", zap.Error(err))
	}
}

// loop runs fn on a fixed interval until ctx is cancelled. A failed or
// panicking cycle is logged and isolated; the previous cache state stays in
// place and the loop keeps running.
func (s *Store) loop(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) {
	logger := s.logger.Named(name)

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			func() {
				defer func() {
					if r := recover(); r != nil {
						logger.Error("Cycle panicked", zap.Any("panic", r))
					}
				}()

				if err := fn(ctx); err != nil {
					logger.Warn("Cycle failed, keeping previous state", zap.Error(err))
				}
			}()
		}
	}()
}

// refreshLedger fully reloads the user table and then replays pending local
// writes so the reload cannot silently lose an un-flushed mutation.
func (s *Store) refreshLedger(ctx context.Context) error {
	rows, err := s.backing.GetAllRows(ctx, s.cfg.UsersTable)
	if err != nil {
		return fmt.Errorf("failed to load user table: %w", err)
	}

	users := make(map[int64]UserRecord, len(rows))
	rowOf := make(map[int64]int, len(rows))

	for i, row := range rows {
		rec, err := decodeUserRow(row)
		if err != nil {
			s.logger.Warn("Skipping malformed user row", zap.Int("row", i), zap.Error(err))
			continue
		}

		users[rec.UserID] = rec
		rowOf[rec.UserID] = i
	}

	s.ledger.Replace(users, rowOf, len(rows))
	s.flush.Replay(s.ledger)

	return nil
}

func (s *Store) refreshCatalog(ctx context.Context) error {
	return s.catalog.Refresh(ctx, s.backing, s.cfg.MoviesTable)
}

func (s *Store) refreshJoinRequests(ctx context.Context) error {
	rows, err := s.backing.GetAllRows(ctx, s.cfg.JoinRequestsTable)
	if err != nil {
		return fmt.Errorf("failed to load join request table: %w", err)
	}

	keys := make([]joinKey, 0, len(rows))

	for _, row := range rows {
		if key, ok := decodeJoinRequestRow(row); ok {
			keys = append(keys, key)
		}
	}

	s.joinReqs.Replace(keys)

	return nil
}

func (s *Store) flushOnce(ctx context.Context) error {
	s.flush.Flush(ctx, s.backing, s.cfg.UsersTable, s.ledger)
	return nil
}

// GetUser returns a copy of the user's ledger record.
func (s *Store) GetUser(userID int64) (UserRecord, bool) {
	return s.ledger.Get(userID)
}

// EnsureUser creates the user's record on first contact with default credits
// and refreshes username/display name on every later sighting. Reports
// whether the record was created.
func (s *Store) EnsureUser(userID int64, username, displayName string) (UserRecord, bool) {
	rec, ok := s.ledger.Get(userID)
	if !ok {
		rec = s.ledger.Upsert(userID, UserPatch{
			Username:      &username,
			DisplayName:   &displayName,
			SearchCredits: &s.cfg.StartCredits,
		})
		s.flush.Enqueue(rec)
		s.logger.Info("Created ledger record",
			zap.Int64("userID", userID),
			zap.Int("credits", rec.SearchCredits))

		return rec, true
	}

	if rec.Username != username || rec.DisplayName != displayName {
		rec = s.ledger.Upsert(userID, UserPatch{
			Username:    &username,
			DisplayName: &displayName,
		})
		s.flush.Enqueue(rec)
	}

	return rec, false
}

// UpsertUser merges a partial update into the user's record and marks it for
// the next flush.
func (s *Store) UpsertUser(userID int64, patch UserPatch) UserRecord {
	rec := s.ledger.Upsert(userID, patch)
	s.flush.Enqueue(rec)

	return rec
}

// Credit atomically adjusts a user's credits and invited count. A debit that
// would underflow fails with ErrInsufficientCredits and changes nothing.
func (s *Store) Credit(userID int64, credits, invited int) (UserRecord, error) {
	rec, err := s.ledger.Credit(userID, credits, invited)
	if err != nil {
		return rec, err
	}

	s.flush.Enqueue(rec)

	return rec, nil
}

// SetSubscribed marks the user's membership verification result.
func (s *Store) SetSubscribed(userID int64, subscribed bool) UserRecord {
	return s.UpsertUser(userID, UserPatch{Subscribed: &subscribed})
}

// LookupMovie returns the title for a movie code.
func (s *Store) LookupMovie(code string) (string, bool) {
	return s.catalog.Lookup(code)
}

// HasJoinRequest reports whether the user has requested to join the channel.
func (s *Store) HasJoinRequest(userID, channelID int64) bool {
	return s.joinReqs.Has(userID, channelID)
}

// RecordJoinRequest records a join request. Duplicates are silent no-ops
// checked before the remote append so the table gets no duplicate rows. The
// in-memory entry is kept even when the append fails; the next full reload
// reconciles it.
func (s *Store) RecordJoinRequest(ctx context.Context, userID, channelID int64) error {
	if !s.joinReqs.Add(userID, channelID) {
		return nil
	}

	if err := s.backing.AppendRow(ctx, s.cfg.JoinRequestsTable, encodeJoinRequestRow(userID, channelID)); err != nil {
		return fmt.Errorf("failed to persist join request: %w", err)
	}

	return nil
}

// PendingWrites returns the number of users with un-flushed mutations.
func (s *Store) PendingWrites() int {
	return s.flush.Len()
}
