// Package bot dispatches inbound events to the gate and store. It is a thin
// I/O layer; all decisions live in the gate and store packages.
package bot

import (
	"context"

	"github.com/filmgatebot/filmgate/internal/gate"
	"github.com/filmgatebot/filmgate/internal/gateway"
	"github.com/filmgatebot/filmgate/internal/setup/config"
	"github.com/filmgatebot/filmgate/internal/store"
	"go.uber.org/zap"
)

// Bot wires the event stream to the handlers.
type Bot struct {
	gw        gateway.Gateway
	src       gateway.Source
	store     *store.Store
	verifier  *gate.Verifier
	referrals *gate.ReferralEngine
	resolver  *gate.Resolver
	channels  []config.Channel
	botName   string
	logger    *zap.Logger
}

// New creates a Bot. botName is the bot's public username, used to build
// referral deep links.
func New(
	gw gateway.Gateway, src gateway.Source, st *store.Store,
	verifier *gate.Verifier, referrals *gate.ReferralEngine, resolver *gate.Resolver,
	channels []config.Channel, botName string, logger *zap.Logger,
) *Bot {
	return &Bot{
		gw:        gw,
		src:       src,
		store:     st,
		verifier:  verifier,
		referrals: referrals,
		resolver:  resolver,
		channels:  channels,
		botName:   botName,
		logger:    logger.Named("bot"),
	}
}

// Run consumes events until ctx is cancelled. Events are handled one at a
// time so operations from a single user are processed in arrival order.
func (b *Bot) Run(ctx context.Context) {
	b.logger.Info("Event loop started")

	for ev := range b.src.Events(ctx) {
		b.handle(ctx, ev)
	}

	b.logger.Info("Event loop stopped")
}

func (b *Bot) handle(ctx context.Context, ev gateway.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Handler panicked", zap.Any("panic", r))
		}
	}()

	switch {
	case ev.Command != nil:
		b.handleCommand(ctx, ev.Command)
	case ev.Text != nil:
		b.handleText(ctx, ev.Text)
	case ev.Callback != nil:
		b.handleCallback(ctx, ev.Callback)
	case ev.JoinRequest != nil:
		b.handleJoinRequest(ctx, ev.JoinRequest)
	}
}
