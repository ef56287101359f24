// Package telegram implements the messaging gateway over the Telegram Bot
// API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/filmgatebot/filmgate/internal/gateway"
	"github.com/filmgatebot/filmgate/pkg/utils"
	"go.uber.org/zap"
)

// Client talks to the Telegram Bot API. Calls retry transient failures with
// bounded backoff and honor Telegram's retry_after hint on rate limits.
type Client struct {
	api         *tgbotapi.BotAPI
	retry       utils.RetryOptions
	pollTimeout int
	logger      *zap.Logger
}

// NewClient authenticates against the Bot API and returns a Client.
func NewClient(token string, pollTimeout int, logger *zap.Logger) (*Client, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate bot: %w", err)
	}

	logger = logger.Named("telegram")
	logger.Info("Authenticated bot", zap.String("username", api.Self.UserName))

	return &Client{
		api:         api,
		retry:       utils.GetGatewayRetryOptions(),
		pollTimeout: pollTimeout,
		logger:      logger,
	}, nil
}

// Username returns the bot's public username, used for deep links.
func (c *Client) Username() string {
	return c.api.Self.UserName
}

// GetChatMember returns the user's membership status in a channel.
func (c *Client) GetChatMember(ctx context.Context, channelID, userID int64) (gateway.MemberStatus, error) {
	var member tgbotapi.ChatMember

	err := c.invoke(ctx, func() error {
		var err error
		member, err = c.api.GetChatMember(tgbotapi.GetChatMemberConfig{
			ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
				ChatID: channelID,
				UserID: userID,
			},
		})

		return err
	})
	if err != nil {
		return "", fmt.Errorf("%w: getChatMember(%d, %d): %s", gateway.ErrUnavailable, channelID, userID, err)
	}

	return gateway.MemberStatus(member.Status), nil
}

// SendMessage sends a text message with an optional inline keyboard.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, keyboard [][]gateway.Button) (gateway.MessageRef, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	if keyboard != nil {
		msg.ReplyMarkup = toMarkup(keyboard)
	}

	var sent tgbotapi.Message

	err := c.invoke(ctx, func() error {
		var err error
		sent, err = c.api.Send(msg)

		return err
	})
	if err != nil {
		return gateway.MessageRef{}, fmt.Errorf("%w: sendMessage(%d): %s", gateway.ErrUnavailable, chatID, err)
	}

	return gateway.MessageRef{ChatID: chatID, MessageID: sent.MessageID}, nil
}

// EditMessage replaces the text and keyboard of a previously sent message.
func (c *Client) EditMessage(ctx context.Context, ref gateway.MessageRef, text string, keyboard [][]gateway.Button) error {
	var msg tgbotapi.Chattable
	if keyboard != nil {
		edit := tgbotapi.NewEditMessageTextAndMarkup(ref.ChatID, ref.MessageID, text, toMarkup(keyboard))
		msg = edit
	} else {
		msg = tgbotapi.NewEditMessageText(ref.ChatID, ref.MessageID, text)
	}

	err := c.invoke(ctx, func() error {
		_, err := c.api.Send(msg)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: editMessage(%d, %d): %s", gateway.ErrUnavailable, ref.ChatID, ref.MessageID, err)
	}

	return nil
}

// AnswerCallback acknowledges a button callback.
func (c *Client) AnswerCallback(ctx context.Context, callbackID string) error {
	err := c.invoke(ctx, func() error {
		_, err := c.api.Request(tgbotapi.NewCallback(callbackID, ""))
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: answerCallback(%s): %s", gateway.ErrUnavailable, callbackID, err)
	}

	return nil
}

// invoke runs one API call under the shared retry policy. Rate-limited calls
// wait out the provider-specified delay before the next attempt; other API
// errors below 500 are not retried.
func (c *Client) invoke(ctx context.Context, op func() error) error {
	return utils.WithRetry(ctx, func() error {
		err := op()
		if err == nil {
			return nil
		}

		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) {
			if apiErr.RetryAfter > 0 {
				c.logger.Warn("Rate limited, honoring retry_after",
					zap.Int("retryAfter", apiErr.RetryAfter))
				c.wait(ctx, time.Duration(apiErr.RetryAfter)*time.Second)

				return err
			}

			if apiErr.Code >= 500 {
				return err
			}

			return utils.Permanent(err)
		}

		// Network-level failure, retryable.
		return err
	}, c.retry)
}

func (c *Client) wait(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func toMarkup(keyboard [][]gateway.Button) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(keyboard))

	for _, row := range keyboard {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))

		for _, b := range row {
			if b.URL != "" {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
				continue
			}

			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.CallbackData))
		}

		rows = append(rows, buttons)
	}

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
