package telegram

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	apperrors "github.com/CardosoB8/Bot-telegram2025/internal/errors"
	"github.com/CardosoB8/Bot-telegram2025/internal/resilience"
	"github.com/CardosoB8/Bot-telegram2025/internal/transport"
)

type conn struct {
	id      string
	bot     *bot.Bot
	gateway *Gateway
	logger  *slog.Logger
	guard   *resilience.Guard

	cancel context.CancelFunc
	done   chan struct{}

	once    sync.Once
	stopErr error
}

var _ transport.Conn = (*conn)(nil)

func (c *conn) SendText(ctx context.Context, target, text string, opts transport.SendOptions) error {
	err := c.guard.Do(ctx, func(ctx context.Context) error {
		_, err := c.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:             chatID(target),
			Text:               text,
			ParseMode:          models.ParseModeHTML,
			ReplyMarkup:        replyMarkup(opts.Keyboard),
			LinkPreviewOptions: linkPreview(opts),
		})
		return err
	})
	if err != nil {
		return apperrors.NewTransportError("send_message", err)
	}
	return nil
}

func (c *conn) SendImage(ctx context.Context, target, image, caption string, opts transport.SendOptions) error {
	err := c.guard.Do(ctx, func(ctx context.Context) error {
		_, err := c.bot.SendPhoto(ctx, &bot.SendPhotoParams{
			ChatID:      chatID(target),
			Photo:       &models.InputFileString{Data: image},
			Caption:     caption,
			ParseMode:   models.ParseModeHTML,
			ReplyMarkup: replyMarkup(opts.Keyboard),
		})
		return err
	})
	if err != nil {
		return apperrors.NewTransportError("send_photo", err)
	}
	return nil
}

func (c *conn) SendPoll(ctx context.Context, target, question string, options []string, anonymous bool, opts transport.SendOptions) error {
	pollOptions := make([]models.InputPollOption, 0, len(options))
	for _, o := range options {
		pollOptions = append(pollOptions, models.InputPollOption{Text: o})
	}

	err := c.guard.Do(ctx, func(ctx context.Context) error {
		_, err := c.bot.SendPoll(ctx, &bot.SendPollParams{
			ChatID:      chatID(target),
			Question:    question,
			Options:     pollOptions,
			IsAnonymous: &anonymous,
			ReplyMarkup: replyMarkup(opts.Keyboard),
		})
		return err
	})
	if err != nil {
		return apperrors.NewTransportError("send_poll", err)
	}
	return nil
}

func (c *conn) EditText(ctx context.Context, target string, messageID int, text string, opts transport.SendOptions) error {
	err := c.guard.Do(ctx, func(ctx context.Context) error {
		_, err := c.bot.EditMessageText(ctx, &bot.EditMessageTextParams{
			ChatID:             chatID(target),
			MessageID:          messageID,
			Text:               text,
			ParseMode:          models.ParseModeHTML,
			ReplyMarkup:        replyMarkup(opts.Keyboard),
			LinkPreviewOptions: linkPreview(opts),
		})
		return err
	})
	if err != nil {
		return apperrors.NewTransportError("edit_message", err)
	}
	return nil
}

func (c *conn) DeleteMessage(ctx context.Context, target string, messageID int) error {
	if _, err := c.bot.DeleteMessage(ctx, &bot.DeleteMessageParams{ChatID: chatID(target), MessageID: messageID}); err != nil {
		return apperrors.NewTransportError("delete_message", err)
	}
	return nil
}

func (c *conn) IsAdministrator(ctx context.Context, chatID, userID int64) (bool, error) {
	member, err := c.bot.GetChatMember(ctx, &bot.GetChatMemberParams{ChatID: chatID, UserID: userID})
	if err != nil {
		return false, apperrors.NewTransportError("get_chat_member", err)
	}
	switch member.Type {
	case models.ChatMemberTypeOwner, models.ChatMemberTypeAdministrator:
		return true, nil
	default:
		return false, nil
	}
}

func (c *conn) AcknowledgeCallback(ctx context.Context, callbackID string) error {
	if _, err := c.bot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{CallbackQueryID: callbackID}); err != nil {
		return apperrors.NewTransportError("answer_callback", err)
	}
	return nil
}

func (c *conn) BanMember(ctx context.Context, chatID, userID int64) error {
	if _, err := c.bot.BanChatMember(ctx, &bot.BanChatMemberParams{ChatID: chatID, UserID: userID}); err != nil {
		return apperrors.NewTransportError("ban_chat_member", err)
	}
	return nil
}

func (c *conn) RestrictMember(ctx context.Context, chatID, userID int64, until time.Time) error {
	_, err := c.bot.RestrictChatMember(ctx, &bot.RestrictChatMemberParams{
		ChatID:      chatID,
		UserID:      userID,
		Permissions: &models.ChatPermissions{CanSendMessages: false},
		UntilDate:   int(until.Unix()),
	})
	if err != nil {
		return apperrors.NewTransportError("restrict_chat_member", err)
	}
	return nil
}

// Disconnect stops update delivery and waits for the receive loop to exit.
// Calling it more than once is a no-op.
func (c *conn) Disconnect(ctx context.Context, teardown bool) error {
	c.once.Do(func() {
		c.gateway.unregister(c.id)
		c.cancel()

		select {
		case <-c.done:
		case <-ctx.Done():
			c.logger.Warn("Timed out waiting for update loop to exit")
		}

		if teardown {
			if _, err := c.bot.DeleteWebhook(ctx, &bot.DeleteWebhookParams{DropPendingUpdates: true}); err != nil {
				c.stopErr = apperrors.NewTransportError("delete_webhook", err)
				return
			}
			c.logger.Info("Webhook removed")
		}
	})
	return c.stopErr
}
