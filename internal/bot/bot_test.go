package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/filmgatebot/filmgate/internal/gate"
	"github.com/filmgatebot/filmgate/internal/gateway"
	"github.com/filmgatebot/filmgate/internal/setup/config"
	"github.com/filmgatebot/filmgate/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// memBacking is a minimal in-memory TableStore for end-to-end handler tests.
type memBacking struct {
	mu     sync.Mutex
	tables map[string][][]string
}

func newMemBacking() *memBacking {
	return &memBacking{tables: make(map[string][][]string)}
}

func (m *memBacking) GetAllRows(_ context.Context, table string) ([][]string, error) {
	return m.GetRowsSince(context.Background(), table, 0)
}

func (m *memBacking) GetRowsSince(_ context.Context, table string, start int) ([][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.tables[table]
	if start >= len(rows) {
		return nil, nil
	}

	out := make([][]string, len(rows)-start)
	copy(out, rows[start:])

	return out, nil
}

func (m *memBacking) AppendRow(_ context.Context, table string, row []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tables[table] = append(m.tables[table], row)

	return nil
}

func (m *memBacking) UpdateRow(_ context.Context, table string, index int, row []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tables[table][index] = row

	return nil
}

// scriptGateway answers every membership check with a fixed status and
// records outbound messages.
type scriptGateway struct {
	mu     sync.Mutex
	status gateway.MemberStatus
	sent   []string
	edits  []string
}

func (g *scriptGateway) GetChatMember(_ context.Context, _, _ int64) (gateway.MemberStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.status, nil
}

func (g *scriptGateway) SendMessage(_ context.Context, chatID int64, text string, _ [][]gateway.Button) (gateway.MessageRef, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.sent = append(g.sent, text)

	return gateway.MessageRef{ChatID: chatID, MessageID: len(g.sent)}, nil
}

func (g *scriptGateway) EditMessage(_ context.Context, _ gateway.MessageRef, text string, _ [][]gateway.Button) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.edits = append(g.edits, text)

	return nil
}

func (g *scriptGateway) AnswerCallback(_ context.Context, _ string) error {
	return nil
}

func (g *scriptGateway) lastMessage() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.sent) == 0 {
		return ""
	}

	return g.sent[len(g.sent)-1]
}

func newTestBot(t *testing.T, backing *memBacking, gw *scriptGateway) *Bot {
	t.Helper()

	logger := zaptest.NewLogger(t)
	channels := []config.Channel{
		{ID: -100, Title: "Channel 1", URL: "https://t.me/+one"},
		{ID: -200, Title: "Channel 2", URL: "https://t.me/+two"},
	}

	st := store.New(backing, store.Config{
		UsersTable:         "Users",
		MoviesTable:        "Movies",
		JoinRequestsTable:  "JoinRequests",
		LedgerRefresh:      time.Hour,
		CatalogRefresh:     time.Hour,
		JoinRequestRefresh: time.Hour,
		FlushInterval:      time.Hour,
		FlushMaxAttempts:   3,
		JoinRequestLimit:   100,
		StartCredits:       5,
	}, logger)

	verifier := gate.NewVerifier(gw, st, channels, 1000, logger)
	referrals := gate.NewReferralEngine(st, gw, 2, logger)
	resolver := gate.NewResolver(st, verifier, logger)

	return New(gw, nil, st, verifier, referrals, resolver, channels, "filmgate_bot", logger)
}

func command(userID int64, name, payload string) gateway.Event {
	return gateway.Event{Command: &gateway.CommandEvent{
		Sender:  gateway.Sender{UserID: userID, Username: fmt.Sprintf("user%d", userID), DisplayName: "User"},
		ChatID:  userID,
		Name:    name,
		Payload: payload,
	}}
}

func text(userID int64, body string) gateway.Event {
	return gateway.Event{Text: &gateway.TextEvent{
		Sender: gateway.Sender{UserID: userID, Username: fmt.Sprintf("user%d", userID), DisplayName: "User"},
		ChatID: userID,
		Text:   body,
	}}
}

func checkCallback(userID int64) gateway.Event {
	return gateway.Event{Callback: &gateway.CallbackEvent{
		Sender:     gateway.Sender{UserID: userID, Username: fmt.Sprintf("user%d", userID), DisplayName: "User"},
		CallbackID: "cb",
		ChatID:     userID,
		MessageID:  1,
		Data:       callbackCheckSubscription,
	}}
}

func TestNewUserJourney(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	backing := newMemBacking()
	require.NoError(t, backing.AppendRow(ctx, "Movies", []string{"42", "Inception"}))

	gw := &scriptGateway{status: gateway.StatusLeft}
	b := newTestBot(t, backing, gw)
	require.NoError(t, b.store.Start(ctx))
	defer b.store.Stop()

	// /start creates the ledger record with default credits
	b.handle(ctx, command(1, "start", ""))

	rec, ok := b.store.GetUser(1)
	require.True(t, ok)
	assert.Equal(t, 5, rec.SearchCredits)
	assert.Equal(t, 0, rec.InvitedCount)

	// Lookup before verification is gated
	b.handle(ctx, text(1, "42"))
	assert.Equal(t, promptText, gw.lastMessage())

	rec, _ = b.store.GetUser(1)
	assert.Equal(t, 5, rec.SearchCredits)

	// Failed check keeps the user unverified
	b.handle(ctx, checkCallback(1))
	assert.False(t, b.verifier.IsVerified(1))

	// User subscribes everywhere and re-checks
	gw.mu.Lock()
	gw.status = gateway.StatusMember
	gw.mu.Unlock()

	b.handle(ctx, checkCallback(1))
	assert.True(t, b.verifier.IsVerified(1))

	rec, _ = b.store.GetUser(1)
	assert.True(t, rec.Subscribed)

	// A hit returns the title and debits one credit
	b.handle(ctx, text(1, "42"))
	assert.Contains(t, gw.lastMessage(), "Inception")

	rec, _ = b.store.GetUser(1)
	assert.Equal(t, 4, rec.SearchCredits)

	// A miss does not consume quota
	b.handle(ctx, text(1, "999"))
	assert.Equal(t, notFoundText, gw.lastMessage())

	rec, _ = b.store.GetUser(1)
	assert.Equal(t, 4, rec.SearchCredits)
}

func TestReferralJourney(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	backing := newMemBacking()
	gw := &scriptGateway{status: gateway.StatusMember}
	b := newTestBot(t, backing, gw)
	require.NoError(t, b.store.Start(ctx))
	defer b.store.Stop()

	// Referrer joins first
	b.handle(ctx, command(1, "start", ""))

	// Referred user arrives through the deep link and verifies
	b.handle(ctx, command(2, "start", "ref_1"))
	b.handle(ctx, checkCallback(2))

	rec, _ := b.store.GetUser(1)
	assert.Equal(t, 1, rec.InvitedCount)
	assert.Equal(t, 7, rec.SearchCredits)

	// A duplicate verification event credits nothing further
	b.handle(ctx, checkCallback(2))

	rec, _ = b.store.GetUser(1)
	assert.Equal(t, 1, rec.InvitedCount)
	assert.Equal(t, 7, rec.SearchCredits)
}

func TestSelfReferralNeverCredits(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	backing := newMemBacking()
	gw := &scriptGateway{status: gateway.StatusMember}
	b := newTestBot(t, backing, gw)
	require.NoError(t, b.store.Start(ctx))
	defer b.store.Stop()

	b.handle(ctx, command(1, "start", "ref_1"))
	b.handle(ctx, checkCallback(1))

	rec, _ := b.store.GetUser(1)
	assert.Equal(t, 0, rec.InvitedCount)
	assert.Equal(t, 5, rec.SearchCredits)
}

func TestJoinRequestRecorded(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	backing := newMemBacking()
	gw := &scriptGateway{status: gateway.StatusLeft}
	b := newTestBot(t, backing, gw)
	require.NoError(t, b.store.Start(ctx))
	defer b.store.Stop()

	ev := gateway.Event{JoinRequest: &gateway.JoinRequestEvent{
		Sender:    gateway.Sender{UserID: 1, Username: "user1", DisplayName: "User"},
		ChannelID: -100,
	}}

	b.handle(ctx, ev)
	b.handle(ctx, ev)

	assert.True(t, b.store.HasJoinRequest(1, -100))

	rows, err := backing.GetAllRows(ctx, "JoinRequests")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestParseReferralPayload(t *testing.T) {
	t.Parallel()

	tests := []struct {
		payload string
		want    int64
		ok      bool
	}{
		{"ref_123", 123, true},
		{"123", 123, true},
		{" ref_123 ", 123, true},
		{"", 0, false},
		{"ref_", 0, false},
		{"ref_abc", 0, false},
		{"ref_-5", 0, false},
	}

	for _, tt := range tests {
		got, ok := parseReferralPayload(tt.payload)
		assert.Equal(t, tt.ok, ok, "payload %q", tt.payload)

		if tt.ok {
			assert.Equal(t, tt.want, got, "payload %q", tt.payload)
		}
	}
}

func TestQuotaExhaustedSuggestsInvite(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	backing := newMemBacking()
	require.NoError(t, backing.AppendRow(ctx, "Movies", []string{"42", "Inception"}))
	require.NoError(t, backing.AppendRow(ctx, "Users",
		[]string{"1", "user1", "User", "0", "0", "0"}))

	gw := &scriptGateway{status: gateway.StatusMember}
	b := newTestBot(t, backing, gw)
	require.NoError(t, b.store.Start(ctx))
	defer b.store.Stop()

	b.handle(ctx, checkCallback(1))
	b.handle(ctx, text(1, "42"))

	assert.True(t, strings.Contains(gw.lastMessage(), "out of search credits"))

	rec, _ := b.store.GetUser(1)
	assert.Equal(t, 0, rec.SearchCredits)
}
