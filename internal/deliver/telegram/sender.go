// Package telegram implements the chat delivery interface over the
// Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/rashadk/media-courier/internal/pipeline"
)

// Sender sends files and status messages to Telegram chats. Destinations
// are chat IDs in decimal string form.
type Sender struct {
	bot    *tgbotapi.BotAPI
	logger *zap.Logger
}

// New authenticates against the bot API.
func New(token string, logger *zap.Logger) (*Sender, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	logger.Info("telegram bot authorized", zap.String("username", bot.Self.UserName))
	return &Sender{bot: bot, logger: logger}, nil
}

// SendFile uploads a local file to the chat. AsDocument forces document
// framing instead of media framing.
func (s *Sender) SendFile(ctx context.Context, dest string, path string, asDocument bool, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chatID, err := parseChatID(dest)
	if err != nil {
		return err
	}
	file := tgbotapi.FilePath(path)
	var msg tgbotapi.Chattable
	if asDocument {
		doc := tgbotapi.NewDocument(chatID, file)
		doc.Caption = caption
		msg = doc
	} else {
		vid := tgbotapi.NewVideo(chatID, file)
		vid.Caption = caption
		msg = vid
	}
	if _, err := s.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send file: %w", err)
	}
	return nil
}

// SendText posts a plain message.
func (s *Sender) SendText(ctx context.Context, dest string, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chatID, err := parseChatID(dest)
	if err != nil {
		return err
	}
	if _, err := s.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("telegram send text: %w", err)
	}
	return nil
}

// SendStatus posts an editable status message and returns its handle.
func (s *Sender) SendStatus(ctx context.Context, dest string, text string) (pipeline.StatusMessage, error) {
	if err := ctx.Err(); err != nil {
		return pipeline.StatusMessage{}, err
	}
	chatID, err := parseChatID(dest)
	if err != nil {
		return pipeline.StatusMessage{}, err
	}
	sent, err := s.bot.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		return pipeline.StatusMessage{}, fmt.Errorf("telegram send status: %w", err)
	}
	return pipeline.StatusMessage{Dest: dest, ID: sent.MessageID}, nil
}

// EditStatus rewrites a previously sent status message.
func (s *Sender) EditStatus(ctx context.Context, msg pipeline.StatusMessage, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chatID, err := parseChatID(msg.Dest)
	if err != nil {
		return err
	}
	if _, err := s.bot.Send(tgbotapi.NewEditMessageText(chatID, msg.ID, text)); err != nil {
		return fmt.Errorf("telegram edit status: %w", err)
	}
	return nil
}

// DeleteStatus removes a status message after successful delivery.
func (s *Sender) DeleteStatus(ctx context.Context, msg pipeline.StatusMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chatID, err := parseChatID(msg.Dest)
	if err != nil {
		return err
	}
	if _, err := s.bot.Request(tgbotapi.NewDeleteMessage(chatID, msg.ID)); err != nil {
		return fmt.Errorf("telegram delete status: %w", err)
	}
	return nil
}

func parseChatID(dest string) (int64, error) {
	id, err := strconv.ParseInt(dest, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("destination %q is not a chat id: %w", dest, err)
	}
	return id, nil
}
