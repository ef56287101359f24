package gate_test

import (
	"context"
	"sync"

	"github.com/filmgatebot/filmgate/internal/gateway"
	"github.com/filmgatebot/filmgate/internal/store"
)

// fakeStore implements gate.Store with ledger-equivalent credit semantics.
type fakeStore struct {
	mu       sync.Mutex
	users    map[int64]store.UserRecord
	movies   map[string]string
	joinReqs map[[2]int64]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[int64]store.UserRecord),
		movies:   make(map[string]string),
		joinReqs: make(map[[2]int64]bool),
	}
}

func (f *fakeStore) addUser(rec store.UserRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.users[rec.UserID] = rec
}

func (f *fakeStore) GetUser(userID int64) (store.UserRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.users[userID]
	return rec, ok
}

func (f *fakeStore) Credit(userID int64, credits, invited int) (store.UserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.users[userID]
	if !ok {
		return store.UserRecord{}, store.ErrUnknownUser
	}

	if rec.SearchCredits+credits < 0 {
		return rec, store.ErrInsufficientCredits
	}

	rec.SearchCredits += credits
	rec.InvitedCount += invited
	f.users[userID] = rec

	return rec, nil
}

func (f *fakeStore) LookupMovie(code string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	title, ok := f.movies[code]
	return title, ok
}

func (f *fakeStore) HasJoinRequest(userID, channelID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.joinReqs[[2]int64{userID, channelID}]
}

// fakeGateway implements gateway.Gateway with per-channel canned results.
type fakeGateway struct {
	mu          sync.Mutex
	statuses    map[int64]gateway.MemberStatus
	errs        map[int64]error
	sendErr     error
	memberCalls int
	sentTo      []int64
	sentTexts   []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		statuses: make(map[int64]gateway.MemberStatus),
		errs:     make(map[int64]error),
	}
}

func (f *fakeGateway) setStatus(channelID int64, status gateway.MemberStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.statuses[channelID] = status
}

func (f *fakeGateway) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.sentTo)
}

func (f *fakeGateway) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.memberCalls
}

func (f *fakeGateway) GetChatMember(_ context.Context, channelID, _ int64) (gateway.MemberStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.memberCalls++

	if err := f.errs[channelID]; err != nil {
		return "", err
	}

	if status, ok := f.statuses[channelID]; ok {
		return status, nil
	}

	return gateway.StatusLeft, nil
}

func (f *fakeGateway) SendMessage(_ context.Context, chatID int64, text string, _ [][]gateway.Button) (gateway.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.sendErr != nil {
		return gateway.MessageRef{}, f.sendErr
	}

	f.sentTo = append(f.sentTo, chatID)
	f.sentTexts = append(f.sentTexts, text)

	return gateway.MessageRef{ChatID: chatID, MessageID: len(f.sentTo)}, nil
}

func (f *fakeGateway) EditMessage(_ context.Context, _ gateway.MessageRef, _ string, _ [][]gateway.Button) error {
	return nil
}

func (f *fakeGateway) AnswerCallback(_ context.Context, _ string) error {
	return nil
}
