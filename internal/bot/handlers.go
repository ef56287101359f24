package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/filmgatebot/filmgate/internal/gate"
	"github.com/filmgatebot/filmgate/internal/gateway"
	"github.com/filmgatebot/filmgate/internal/setup/config"
	"github.com/filmgatebot/filmgate/internal/store"
	"go.uber.org/zap"
)

const (
	callbackCheckSubscription = "check_subscription"
	referralPayloadPrefix     = "ref_"

	welcomeText = "To continue searching for movies, subscribe to our sponsor channels first.\n" +
		"When you are done, press the button below."
	promptText       = "Subscribe to the sponsor channels, then press the button below."
	verifiedText     = "You are subscribed to all channels! Send me a movie code to search."
	notSubscribedTxt = "Looks like you haven't subscribed to every channel yet. Check again and press the button."
	invalidCodeText  = "Movie codes are numbers only. Send me something like 42."
	notFoundText     = "No movie with that code. Your credits were not spent."
	unknownUserText  = "Send /start first so I can set you up."
	checkButton      = "I SUBSCRIBED"
)

func (b *Bot) handleCommand(ctx context.Context, ev *gateway.CommandEvent) {
	switch ev.Name {
	case "start":
		b.handleStart(ctx, ev)
	case "invite":
		b.handleInvite(ctx, ev)
	case "help":
		b.reply(ctx, ev.ChatID, welcomeText)
	default:
		b.logger.Debug("Ignoring unknown command", zap.String("command", ev.Name))
	}
}

// handleStart registers an optional referral link and prompts the user with
// the sponsor channel keyboard. The referral must be registered before the
// ledger record is created: referrals only count for first-contact users.
func (b *Bot) handleStart(ctx context.Context, ev *gateway.CommandEvent) {
	if referrerID, ok := parseReferralPayload(ev.Payload); ok {
		if err := b.referrals.Register(ev.UserID, referrerID); err != nil {
			b.logger.Debug("Rejected referral",
				zap.Int64("userID", ev.UserID),
				zap.Int64("referrerID", referrerID),
				zap.Error(err))
		}
	}

	_, created := b.store.EnsureUser(ev.UserID, ev.Username, ev.DisplayName)
	if created {
		b.logger.Info("User started the bot", zap.Int64("userID", ev.UserID))
	}

	b.reply(ctx, ev.ChatID, welcomeText)

	if _, err := b.gw.SendMessage(ctx, ev.ChatID, promptText, b.gateKeyboard(b.channels)); err != nil {
		b.logger.Warn("Failed to send gate prompt", zap.Int64("chatID", ev.ChatID), zap.Error(err))
	}
}

// handleInvite shows the user's referral link and stats.
func (b *Bot) handleInvite(ctx context.Context, ev *gateway.CommandEvent) {
	rec, _ := b.store.EnsureUser(ev.UserID, ev.Username, ev.DisplayName)

	text := fmt.Sprintf(
		"Your invite link:\nhttps://t.me/%s?start=%s%d\n\nInvited: %d\nSearch credits: %d",
		b.botName, referralPayloadPrefix, ev.UserID, rec.InvitedCount, rec.SearchCredits,
	)
	b.reply(ctx, ev.ChatID, text)
}

// handleCallback re-runs the membership check when the user presses the
// confirmation button. On a pass the referral, if any, is settled.
func (b *Bot) handleCallback(ctx context.Context, ev *gateway.CallbackEvent) {
	if ev.Data != callbackCheckSubscription {
		return
	}

	if err := b.gw.AnswerCallback(ctx, ev.CallbackID); err != nil {
		b.logger.Debug("Failed to answer callback", zap.Error(err))
	}

	b.store.EnsureUser(ev.UserID, ev.Username, ev.DisplayName)

	passed, unsatisfied := b.verifier.CheckAll(ctx, ev.UserID)
	if passed {
		b.store.SetSubscribed(ev.UserID, true)
		b.referrals.Settle(ctx, ev.UserID)
		b.editOrReply(ctx, ev, verifiedText, nil)

		return
	}

	b.editOrReply(ctx, ev, notSubscribedTxt, b.gateKeyboard(unsatisfied))
}

// handleText treats any free text as a movie code lookup.
func (b *Bot) handleText(ctx context.Context, ev *gateway.TextEvent) {
	b.store.EnsureUser(ev.UserID, ev.Username, ev.DisplayName)

	code := strings.TrimSpace(ev.Text)

	title, err := b.resolver.ResolveCode(ev.UserID, code)
	if err != nil {
		b.replyLookupError(ctx, ev, err)
		return
	}

	rec, _ := b.store.GetUser(ev.UserID)
	b.reply(ctx, ev.ChatID, fmt.Sprintf("Found it: %s\nCredits left: %d", title, rec.SearchCredits))
}

func (b *Bot) replyLookupError(ctx context.Context, ev *gateway.TextEvent, err error) {
	switch {
	case errors.Is(err, gate.ErrSubscriptionRequired):
		if _, sendErr := b.gw.SendMessage(ctx, ev.ChatID, promptText, b.gateKeyboard(b.channels)); sendErr != nil {
			b.logger.Warn("Failed to send gate prompt", zap.Int64("chatID", ev.ChatID), zap.Error(sendErr))
		}
	case errors.Is(err, gate.ErrInvalidFormat):
		b.reply(ctx, ev.ChatID, invalidCodeText)
	case errors.Is(err, store.ErrInsufficientCredits):
		text := fmt.Sprintf(
			"You're out of search credits. Invite friends to earn more:\nhttps://t.me/%s?start=%s%d",
			b.botName, referralPayloadPrefix, ev.UserID,
		)
		b.reply(ctx, ev.ChatID, text)
	case errors.Is(err, store.ErrMovieNotFound):
		b.reply(ctx, ev.ChatID, notFoundText)
	case errors.Is(err, store.ErrUnknownUser):
		b.reply(ctx, ev.ChatID, unknownUserText)
	default:
		b.logger.Error("Lookup failed", zap.Int64("userID", ev.UserID), zap.Error(err))
		b.reply(ctx, ev.ChatID, "Something went wrong, try again in a minute.")
	}
}

// handleJoinRequest records the (user, channel) pair as alternate proof of
// subscription for approval-gated channels.
func (b *Bot) handleJoinRequest(ctx context.Context, ev *gateway.JoinRequestEvent) {
	if err := b.store.RecordJoinRequest(ctx, ev.UserID, ev.ChannelID); err != nil {
		b.logger.Warn("Failed to record join request",
			zap.Int64("userID", ev.UserID),
			zap.Int64("channelID", ev.ChannelID),
			zap.Error(err))

		return
	}

	b.logger.Info("Recorded join request",
		zap.Int64("userID", ev.UserID),
		zap.Int64("channelID", ev.ChannelID))
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if _, err := b.gw.SendMessage(ctx, chatID, text, nil); err != nil {
		b.logger.Warn("Failed to send message", zap.Int64("chatID", chatID), zap.Error(err))
	}
}

// editOrReply updates the prompt message in place when possible, falling
// back to a fresh message.
func (b *Bot) editOrReply(ctx context.Context, ev *gateway.CallbackEvent, text string, keyboard [][]gateway.Button) {
	if ev.MessageID != 0 {
		ref := gateway.MessageRef{ChatID: ev.ChatID, MessageID: ev.MessageID}
		if err := b.gw.EditMessage(ctx, ref, text, keyboard); err == nil {
			return
		}
	}

	if _, err := b.gw.SendMessage(ctx, ev.ChatID, text, keyboard); err != nil {
		b.logger.Warn("Failed to send message", zap.Int64("chatID", ev.ChatID), zap.Error(err))
	}
}

// gateKeyboard renders one URL button per channel plus the confirmation
// button.
func (b *Bot) gateKeyboard(channels []config.Channel) [][]gateway.Button {
	rows := make([][]gateway.Button, 0, len(channels)+1)

	for _, channel := range channels {
		rows = append(rows, []gateway.Button{{Text: channel.Title, URL: channel.URL}})
	}

	rows = append(rows, []gateway.Button{{Text: checkButton, CallbackData: callbackCheckSubscription}})

	return rows
}

// parseReferralPayload extracts the referrer ID from a /start deep link
// payload such as "ref_123456".
func parseReferralPayload(payload string) (int64, bool) {
	payload = strings.TrimPrefix(strings.TrimSpace(payload), referralPayloadPrefix)
	if payload == "" {
		return 0, false
	}

	id, err := strconv.ParseInt(payload, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}

	return id, true
}
