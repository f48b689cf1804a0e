// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package notify

import (
	"context"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/autoir-dev/autoir/internal/store"
	autoirerr "github.com/autoir-dev/autoir/pkg/errors"
)

// TelegramBot is the subset of tgbotapi.BotAPI the notifier uses.
type TelegramBot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramConfig holds Telegram notifier settings.
type TelegramConfig struct {
	Token       string
	ChatID      int64
	APIEndpoint string // tgbotapi endpoint format; empty uses the public API
	HTTPClient  *http.Client
}

// Telegram sends alerts to one chat via the Bot API.
type Telegram struct {
	bot    TelegramBot
	chatID int64
}

// NewTelegram authorizes the bot token and returns a notifier.
func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	if cfg.Token == "" {
		return nil, autoirerr.New(autoirerr.CodeNotifyConfigInvalid, "telegram: token is required")
	}
	if cfg.ChatID == 0 {
		return nil, autoirerr.New(autoirerr.CodeNotifyConfigInvalid, "telegram: chat_id is required")
	}

	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}

	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, endpoint, client)
	if err != nil {
		return nil, autoirerr.Errorf(autoirerr.CodeNotifyConfigInvalid, "telegram: authorizing bot: %s", err)
	}
	return NewTelegramWithBot(bot, cfg.ChatID), nil
}

// NewTelegramWithBot creates a notifier over an existing bot client.
func NewTelegramWithBot(bot TelegramBot, chatID int64) *Telegram {
	return &Telegram{bot: bot, chatID: chatID}
}

func (t *Telegram) Name() string { return "telegram" }

// Notify sends the alert. The Bot API client has no context support, so
// the send runs in a goroutine and ctx bounds the wait.
func (t *Telegram) Notify(ctx context.Context, inc *store.Incident) error {
	msg := tgbotapi.NewMessage(t.chatID, FormatIncident(inc))
	msg.DisableWebPagePreview = true

	done := make(chan error, 1)
	go func() {
		_, err := t.bot.Send(msg)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return autoirerr.Errorf(autoirerr.CodeNotifyDeliveryFailure, "telegram: send: %s", err)
		}
		return nil
	case <-ctx.Done():
		return autoirerr.Errorf(autoirerr.CodeNotifyDeliveryFailure, "telegram: send: %s", ctx.Err())
	}
}
