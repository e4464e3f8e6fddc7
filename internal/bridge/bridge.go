package bridge

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"support-chat-service/internal/models"
	"support-chat-service/internal/repositories"
	"support-chat-service/internal/storage"
	"support-chat-service/internal/telegram"
)

const operatorHistoryLimit = 250

// Bridge is the manager-group side of a chat: it owns forum topic naming,
// escalation notices and the group-facing renders of customer traffic.
type Bridge struct {
	transport telegram.Transport
	messages  repositories.MessageRepository
	blobs     storage.BlobStore
}

func New(transport telegram.Transport, messages repositories.MessageRepository, blobs storage.BlobStore) *Bridge {
	return &Bridge{
		transport: transport,
		messages:  messages,
		blobs:     blobs,
	}
}

func activeTitle(user models.User) string {
	return fmt.Sprintf("[ACTIVE] %s (ID: %d)", user.UserName, user.UserID)
}

func closedTitle(user models.User) string {
	return fmt.Sprintf("[CLOSED] %s (ID: %d)", user.UserName, user.UserID)
}

func (b *Bridge) CreateTopic(ctx context.Context, user models.User, chat models.Chat) (int, error) {
	return b.transport.CreateTopic(ctx, activeTitle(user))
}

// RebindTopic renames a retained thread back to active. The rename doubles
// as the existence probe: a dead thread fails it and the caller falls back
// to a fresh one.
func (b *Bridge) RebindTopic(ctx context.Context, topicID int, user models.User, chat models.Chat) error {
	if err := b.transport.RenameTopic(ctx, topicID, activeTitle(user)); err != nil {
		return err
	}
	text := fmt.Sprintf("<b>Клиент %s переоткрыл чат.</b>", user.UserName)
	if err := b.transport.SendTopicText(ctx, topicID, text, chat.ChatID); err != nil {
		log.Printf("bridge: reopen announcement in topic %d: %v", topicID, err)
	}
	return nil
}

// SendHistory posts the full transcript into the thread as a text document,
// so operators get context without scrolling the widget view.
func (b *Bridge) SendHistory(ctx context.Context, topicID int, chat models.Chat, user models.User) {
	msgs, err := b.messages.ListForChat(ctx, chat.ChatID, nil, operatorHistoryLimit)
	if err != nil {
		log.Printf("bridge: load history for chat %s: %v", chat.ChatID, err)
		return
	}
	if len(msgs) == 0 {
		if err := b.transport.SendTopicText(ctx, topicID, "История сообщений пуста.", ""); err != nil {
			log.Printf("bridge: empty-history note in topic %d: %v", topicID, err)
		}
		return
	}

	var sb strings.Builder
	for _, m := range msgs {
		sender := m.SenderID
		if m.SenderID == models.SenderAI {
			sender = "AI"
		} else if m.SenderID == fmt.Sprintf("%d", chat.UserID) {
			sender = user.UserName
		}
		sb.WriteString(m.Timestamp.Format("2006-01-02 15:04"))
		sb.WriteString(" ")
		sb.WriteString(sender)
		sb.WriteString(": ")
		if m.Text != "" {
			sb.WriteString(m.Text)
		}
		if m.Media != nil {
			sb.WriteString(fmt.Sprintf("[вложение: %s]", m.Media.Type))
		}
		sb.WriteString("\n")
	}

	filename := fmt.Sprintf("chat_history_%s.txt", chat.ChatID)
	caption := fmt.Sprintf("История чата с %s", user.UserName)
	if err := b.transport.SendTopicDocument(ctx, topicID, filename, []byte(sb.String()), caption); err != nil {
		log.Printf("bridge: history document in topic %d: %v", topicID, err)
	}
}

func (b *Bridge) NotifyNewRequest(ctx context.Context, topicID int, user models.User, chat models.Chat, firstMessage string) error {
	if firstMessage == "" {
		firstMessage = "(нет сообщений)"
	}
	text := fmt.Sprintf(
		"<b>Новый запрос от клиента %s (ID: %d)</b>\n\nПервое сообщение:\n%s",
		user.UserName, user.UserID, firstMessage,
	)
	return b.transport.SendTakeNotice(ctx, topicID, text, chat.ChatID)
}

func (b *Bridge) PostClientText(ctx context.Context, topicID int, user models.User, chat models.Chat, text string) error {
	rendered := fmt.Sprintf("<b>Сообщение от клиента %s:</b>\n%s", user.UserName, text)
	return b.transport.SendTopicText(ctx, topicID, rendered, chat.ChatID)
}

func (b *Bridge) PostClientMedia(ctx context.Context, topicID int, user models.User, chat models.Chat, caption string, media *models.MediaContent) error {
	url, err := b.blobs.PresignedURL(ctx, media.FileID)
	if err != nil {
		return fmt.Errorf("presign %s: %w", media.FileID, err)
	}
	rendered := fmt.Sprintf("<b>Вложение от клиента %s</b>", user.UserName)
	if caption != "" {
		rendered += "\n" + caption
	}
	return b.transport.SendTopicMedia(ctx, topicID, telegram.OutboundMedia{
		Kind:    media.Type,
		URL:     url,
		Caption: rendered,
	}, chat.ChatID)
}

func (b *Bridge) AnnounceClosed(ctx context.Context, topicID int, chat models.Chat, user models.User, closedBy string) {
	if err := b.transport.RenameTopic(ctx, topicID, closedTitle(user)); err != nil {
		log.Printf("bridge: rename topic %d closed: %v", topicID, err)
	}
	text := "<b>Чат завершен.</b>"
	if closedBy != "" {
		text = fmt.Sprintf("<b>Чат завершен менеджером %s.</b>", closedBy)
	}
	if err := b.transport.SendTopicText(ctx, topicID, text, ""); err != nil {
		log.Printf("bridge: close announcement in topic %d: %v", topicID, err)
	}
}

// Reminder settings: once a day stale operator chats get a ping in their
// thread.
const (
	reminderHourUTC = 9
	staleAfter      = 12 * time.Hour
)

// RunReminders pings threads of active chats whose last message is older
// than the staleness threshold. Runs daily at 09:00 UTC until ctx ends.
func (b *Bridge) RunReminders(ctx context.Context, chats repositories.ChatRepository) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(untilNextReminder(time.Now().UTC())):
		}
		b.remindStaleChats(ctx, chats)
	}
}

func untilNextReminder(now time.Time) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), reminderHourUTC, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next.Sub(now)
}

func (b *Bridge) remindStaleChats(ctx context.Context, chats repositories.ChatRepository) {
	active, err := chats.ListActiveChats(ctx)
	if err != nil {
		log.Printf("bridge: list active chats for reminders: %v", err)
		return
	}
	for _, chat := range active {
		if chat.TopicID == nil {
			continue
		}
		last, err := b.messages.LastMessage(ctx, chat.ChatID)
		if err != nil {
			continue
		}
		// Only nag while the customer's message is the unanswered one.
		if last.SenderID != fmt.Sprintf("%d", chat.UserID) {
			continue
		}
		if time.Since(last.Timestamp) < staleAfter {
			continue
		}
		text := "<b>Напоминание:</b> клиент ожидает ответа в этом чате."
		if err := b.transport.SendTopicText(ctx, *chat.TopicID, text, chat.ChatID); err != nil {
			log.Printf("bridge: reminder in topic %d: %v", *chat.TopicID, err)
		}
	}
}
