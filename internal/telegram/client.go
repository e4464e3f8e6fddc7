package telegram

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-telegram/bot"
	tg "github.com/go-telegram/bot/models"

	"support-chat-service/internal/models"
	"support-chat-service/internal/observability"
)

// ErrRateLimited marks a send dropped by the per-thread budget.
var ErrRateLimited = fmt.Errorf("telegram: thread send limit reached")

// Client is the Bot API adapter. It owns long polling and implements
// Transport for outbound traffic into the manager group and direct chats.
type Client struct {
	bot       *bot.Bot
	groupID   int64
	webAppURL string
	limiter   *TopicLimiter
	http      *http.Client

	onUpdate func(ctx context.Context, u *tg.Update)
}

func NewClient(token string, groupID int64, webAppURL string) (*Client, error) {
	c := &Client{
		groupID:   groupID,
		webAppURL: webAppURL,
		limiter:   NewTopicLimiter(SendLimit, SendWindow),
		http:      &http.Client{Timeout: 2 * time.Minute},
	}
	b, err := bot.New(token, bot.WithDefaultHandler(func(ctx context.Context, _ *bot.Bot, u *tg.Update) {
		if c.onUpdate != nil {
			c.onUpdate(ctx, u)
		}
	}))
	if err != nil {
		return nil, fmt.Errorf("telegram client init: %w", err)
	}
	c.bot = b
	return c, nil
}

// OnUpdate binds the update handler. Must be called before Start.
func (c *Client) OnUpdate(fn func(ctx context.Context, u *tg.Update)) {
	c.onUpdate = fn
}

// Start runs long polling until ctx is cancelled.
func (c *Client) Start(ctx context.Context) {
	c.bot.Start(ctx)
}

func closeButton(chatID string) *tg.InlineKeyboardMarkup {
	return &tg.InlineKeyboardMarkup{InlineKeyboard: [][]tg.InlineKeyboardButton{{
		{Text: "Завершить чат", CallbackData: "closechat_" + chatID},
	}}}
}

func takeButton(chatID string) *tg.InlineKeyboardMarkup {
	return &tg.InlineKeyboardMarkup{InlineKeyboard: [][]tg.InlineKeyboardButton{{
		{Text: "Взять чат", CallbackData: "takechat_" + chatID},
	}}}
}

func (c *Client) openChatButton() *tg.InlineKeyboardMarkup {
	if c.webAppURL == "" {
		return nil
	}
	return &tg.InlineKeyboardMarkup{InlineKeyboard: [][]tg.InlineKeyboardButton{{
		{Text: "Открыть чат", WebApp: &tg.WebAppInfo{URL: c.webAppURL}},
	}}}
}

func (c *Client) allowTopicSend(topicID int) error {
	if !c.limiter.Allow(topicID) {
		observability.IncTelegramDrop()
		log.Printf("telegram: dropping send to topic %d, rate limit reached", topicID)
		return ErrRateLimited
	}
	return nil
}

func (c *Client) SendTopicText(ctx context.Context, topicID int, text string, closeChatID string) error {
	if err := c.allowTopicSend(topicID); err != nil {
		return err
	}
	params := &bot.SendMessageParams{
		ChatID:          c.groupID,
		MessageThreadID: topicID,
		Text:            text,
		ParseMode:       tg.ParseModeHTML,
	}
	if closeChatID != "" {
		params.ReplyMarkup = closeButton(closeChatID)
	}
	if _, err := c.bot.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("send to topic %d: %w", topicID, err)
	}
	observability.IncTelegramSend("topic_text")
	return nil
}

func (c *Client) SendTopicMedia(ctx context.Context, topicID int, media OutboundMedia, closeChatID string) error {
	if err := c.allowTopicSend(topicID); err != nil {
		return err
	}
	var markup tg.ReplyMarkup
	if closeChatID != "" {
		markup = closeButton(closeChatID)
	}
	file := &tg.InputFileString{Data: media.URL}
	var err error
	switch media.Kind {
	case models.MediaPhoto:
		_, err = c.bot.SendPhoto(ctx, &bot.SendPhotoParams{
			ChatID: c.groupID, MessageThreadID: topicID, Photo: file,
			Caption: media.Caption, ParseMode: tg.ParseModeHTML, ReplyMarkup: markup,
		})
	case models.MediaVideo:
		_, err = c.bot.SendVideo(ctx, &bot.SendVideoParams{
			ChatID: c.groupID, MessageThreadID: topicID, Video: file,
			Caption: media.Caption, ParseMode: tg.ParseModeHTML, ReplyMarkup: markup,
		})
	case models.MediaVoice:
		_, err = c.bot.SendVoice(ctx, &bot.SendVoiceParams{
			ChatID: c.groupID, MessageThreadID: topicID, Voice: file,
			Caption: media.Caption, ParseMode: tg.ParseModeHTML, ReplyMarkup: markup,
		})
	case models.MediaVideoNote:
		_, err = c.bot.SendVideoNote(ctx, &bot.SendVideoNoteParams{
			ChatID: c.groupID, MessageThreadID: topicID, VideoNote: file,
			ReplyMarkup: markup,
		})
	default:
		_, err = c.bot.SendDocument(ctx, &bot.SendDocumentParams{
			ChatID: c.groupID, MessageThreadID: topicID, Document: file,
			Caption: media.Caption, ParseMode: tg.ParseModeHTML, ReplyMarkup: markup,
		})
	}
	if err != nil {
		return fmt.Errorf("send %s to topic %d: %w", media.Kind, topicID, err)
	}
	observability.IncTelegramSend("topic_media")
	return nil
}

func (c *Client) SendTopicDocument(ctx context.Context, topicID int, filename string, data []byte, caption string) error {
	if err := c.allowTopicSend(topicID); err != nil {
		return err
	}
	_, err := c.bot.SendDocument(ctx, &bot.SendDocumentParams{
		ChatID:          c.groupID,
		MessageThreadID: topicID,
		Document:        &tg.InputFileUpload{Filename: filename, Data: bytes.NewReader(data)},
		Caption:         caption,
		ParseMode:       tg.ParseModeHTML,
	})
	if err != nil {
		return fmt.Errorf("send document to topic %d: %w", topicID, err)
	}
	observability.IncTelegramSend("topic_document")
	return nil
}

func (c *Client) SendTakeNotice(ctx context.Context, topicID int, text string, chatID string) error {
	if err := c.allowTopicSend(topicID); err != nil {
		return err
	}
	_, err := c.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:          c.groupID,
		MessageThreadID: topicID,
		Text:            text,
		ParseMode:       tg.ParseModeHTML,
		ReplyMarkup:     takeButton(chatID),
	})
	if err != nil {
		return fmt.Errorf("send take notice to topic %d: %w", topicID, err)
	}
	observability.IncTelegramSend("take_notice")
	return nil
}

func (c *Client) SendDirectText(ctx context.Context, userID int64, text string) error {
	_, err := c.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      userID,
		Text:        text,
		ParseMode:   tg.ParseModeHTML,
		ReplyMarkup: c.openChatButton(),
	})
	if err != nil {
		return fmt.Errorf("send direct to %d: %w", userID, err)
	}
	observability.IncTelegramSend("direct_text")
	return nil
}

func (c *Client) SendDirectMedia(ctx context.Context, userID int64, media OutboundMedia) error {
	file := &tg.InputFileString{Data: media.URL}
	markup := c.openChatButton()
	var err error
	switch media.Kind {
	case models.MediaPhoto:
		_, err = c.bot.SendPhoto(ctx, &bot.SendPhotoParams{
			ChatID: userID, Photo: file, Caption: media.Caption,
			ParseMode: tg.ParseModeHTML, ReplyMarkup: markup,
		})
	case models.MediaVideo:
		_, err = c.bot.SendVideo(ctx, &bot.SendVideoParams{
			ChatID: userID, Video: file, Caption: media.Caption,
			ParseMode: tg.ParseModeHTML, ReplyMarkup: markup,
		})
	case models.MediaVoice:
		_, err = c.bot.SendVoice(ctx, &bot.SendVoiceParams{
			ChatID: userID, Voice: file, Caption: media.Caption,
			ParseMode: tg.ParseModeHTML, ReplyMarkup: markup,
		})
	case models.MediaVideoNote:
		_, err = c.bot.SendVideoNote(ctx, &bot.SendVideoNoteParams{
			ChatID: userID, VideoNote: file, ReplyMarkup: markup,
		})
	default:
		_, err = c.bot.SendDocument(ctx, &bot.SendDocumentParams{
			ChatID: userID, Document: file, Caption: media.Caption,
			ParseMode: tg.ParseModeHTML, ReplyMarkup: markup,
		})
	}
	if err != nil {
		return fmt.Errorf("send direct %s to %d: %w", media.Kind, userID, err)
	}
	observability.IncTelegramSend("direct_media")
	return nil
}

func (c *Client) CreateTopic(ctx context.Context, name string) (int, error) {
	topic, err := c.bot.CreateForumTopic(ctx, &bot.CreateForumTopicParams{
		ChatID: c.groupID,
		Name:   name,
	})
	if err != nil {
		return 0, fmt.Errorf("create forum topic: %w", err)
	}
	return topic.MessageThreadID, nil
}

func (c *Client) RenameTopic(ctx context.Context, topicID int, name string) error {
	_, err := c.bot.EditForumTopic(ctx, &bot.EditForumTopicParams{
		ChatID:          c.groupID,
		MessageThreadID: topicID,
		Name:            name,
	})
	if err != nil {
		return fmt.Errorf("rename topic %d: %w", topicID, err)
	}
	return nil
}

func (c *Client) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	f, err := c.bot.GetFile(ctx, &bot.GetFileParams{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("resolve file %s: %w", fileID, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.bot.FileDownloadLink(f), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file %s: %w", fileID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file %s: status %d", fileID, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("download file %s: %w", fileID, err)
	}
	return data, nil
}

func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	_, err := c.bot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
		ShowAlert:       alert,
	})
	return err
}

func (c *Client) ClearMessageButtons(ctx context.Context, messageID int) error {
	_, err := c.bot.EditMessageReplyMarkup(ctx, &bot.EditMessageReplyMarkupParams{
		ChatID:    c.groupID,
		MessageID: messageID,
	})
	return err
}
