package telegram

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/filmgatebot/filmgate/internal/gateway"
)

// Events starts long polling and returns the inbound event stream. The
// channel closes when ctx is cancelled or polling stops.
func (c *Client) Events(ctx context.Context) <-chan gateway.Event {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = c.pollTimeout
	u.AllowedUpdates = []string{"message", "callback_query", "chat_join_request"}

	updates := c.api.GetUpdatesChan(u)
	out := make(chan gateway.Event)

	go func() {
		defer close(out)
		defer c.api.StopReceivingUpdates()

		for {
			select {
			case <-ctx.Done():
				return
			case upd, ok := <-updates:
				if !ok {
					return
				}

				ev, ok := convertUpdate(upd)
				if !ok {
					continue
				}

				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

// convertUpdate maps a raw update to a gateway event. Updates without an
// identifiable sender are dropped.
func convertUpdate(upd tgbotapi.Update) (gateway.Event, bool) {
	switch {
	case upd.Message != nil && upd.Message.From != nil:
		msg := upd.Message
		sender := senderOf(msg.From)

		if msg.IsCommand() {
			return gateway.Event{Command: &gateway.CommandEvent{
				Sender:  sender,
				ChatID:  msg.Chat.ID,
				Name:    msg.Command(),
				Payload: msg.CommandArguments(),
			}}, true
		}

		return gateway.Event{Text: &gateway.TextEvent{
			Sender: sender,
			ChatID: msg.Chat.ID,
			Text:   msg.Text,
		}}, true

	case upd.CallbackQuery != nil:
		cq := upd.CallbackQuery

		ev := &gateway.CallbackEvent{
			Sender:     senderOf(cq.From),
			CallbackID: cq.ID,
			Data:       cq.Data,
		}
		if cq.Message != nil {
			ev.ChatID = cq.Message.Chat.ID
			ev.MessageID = cq.Message.MessageID
		}

		return gateway.Event{Callback: ev}, true

	case upd.ChatJoinRequest != nil:
		req := upd.ChatJoinRequest

		return gateway.Event{JoinRequest: &gateway.JoinRequestEvent{
			Sender:    senderOf(&req.From),
			ChannelID: req.Chat.ID,
		}}, true
	}

	return gateway.Event{}, false
}

func senderOf(user *tgbotapi.User) gateway.Sender {
	return gateway.Sender{
		UserID:      user.ID,
		Username:    user.UserName,
		DisplayName: strings.TrimSpace(user.FirstName + " " + user.LastName),
	}
}
