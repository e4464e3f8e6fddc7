package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	tg "github.com/go-telegram/bot/models"

	"support-chat-service/internal/models"
	"support-chat-service/internal/repositories"
	"support-chat-service/internal/session"
)

// Router forwards operator messages from forum threads to the bound chat.
type Router interface {
	RouteOperatorMessage(ctx context.Context, msg InboundMessage) error
}

// Sessions is the chat control surface the bot callbacks drive.
type Sessions interface {
	Claim(ctx context.Context, chatID string, managerID int64) error
	CloseByOperator(ctx context.Context, chatID string, closedBy string) error
}

// Handlers dispatches Bot API updates: private commands, operator messages
// inside the manager group, and the take/close inline buttons.
type Handlers struct {
	transport Transport
	router    Router
	sessions  Sessions
	managers  repositories.ManagerRepository
	users     repositories.UserRepository
	groupID   int64
	adminID   int64
}

func NewHandlers(
	transport Transport,
	router Router,
	sessions Sessions,
	managers repositories.ManagerRepository,
	users repositories.UserRepository,
	groupID, adminID int64,
) *Handlers {
	return &Handlers{
		transport: transport,
		router:    router,
		sessions:  sessions,
		managers:  managers,
		users:     users,
		groupID:   groupID,
		adminID:   adminID,
	}
}

func (h *Handlers) HandleUpdate(ctx context.Context, u *tg.Update) {
	switch {
	case u.CallbackQuery != nil:
		h.handleCallback(ctx, u.CallbackQuery)
	case u.Message != nil && u.Message.Chat.Type == "private":
		h.handlePrivate(ctx, u.Message)
	case u.Message != nil && u.Message.Chat.ID == h.groupID:
		h.handleGroupMessage(ctx, u.Message)
	}
}

func (h *Handlers) handlePrivate(ctx context.Context, m *tg.Message) {
	if m.From == nil {
		return
	}
	switch {
	case strings.HasPrefix(m.Text, "/start"):
		if _, err := h.users.FindOrCreateUser(ctx, m.From.ID, displayName(m.From)); err != nil {
			log.Printf("telegram: /start user upsert for %d: %v", m.From.ID, err)
		}
		if err := h.transport.SendDirectText(ctx, m.From.ID,
			"Здравствуйте! Нажмите кнопку ниже, чтобы открыть чат поддержки.\n"+
				"Вы получите уведомление, когда оператор ответит."); err != nil {
			log.Printf("telegram: /start reply to %d: %v", m.From.ID, err)
		}
	case strings.HasPrefix(m.Text, "/addmanager"):
		h.handleAddManager(ctx, m)
	}
}

func (h *Handlers) reply(ctx context.Context, userID int64, text string) {
	if err := h.transport.SendDirectText(ctx, userID, text); err != nil {
		log.Printf("telegram: reply to %d: %v", userID, err)
	}
}

// handleAddManager registers an operator: "/addmanager <user_id> [name]".
// Only the configured admin may run it.
func (h *Handlers) handleAddManager(ctx context.Context, m *tg.Message) {
	if h.adminID == 0 || m.From.ID != h.adminID {
		h.reply(ctx, m.From.ID, "Команда доступна только администратору.")
		return
	}
	parts := strings.Fields(m.Text)
	if len(parts) < 2 {
		h.reply(ctx, m.From.ID, "Использование: /addmanager <user_id> [имя]")
		return
	}
	managerID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		h.reply(ctx, m.From.ID, "Некорректный user_id.")
		return
	}
	name := "Manager_" + parts[1]
	if len(parts) > 2 {
		name = strings.Join(parts[2:], " ")
	}
	if err := h.managers.AddManager(ctx, managerID, name); err != nil {
		log.Printf("telegram: add manager %d: %v", managerID, err)
		h.reply(ctx, m.From.ID, "Не удалось добавить менеджера.")
		return
	}
	h.reply(ctx, m.From.ID, fmt.Sprintf("Менеджер %s (%d) добавлен.", name, managerID))
}

func (h *Handlers) handleGroupMessage(ctx context.Context, m *tg.Message) {
	if m.From == nil || m.From.IsBot || m.MessageThreadID == 0 {
		return
	}
	msg := InboundMessage{
		TopicID:    m.MessageThreadID,
		SenderID:   m.From.ID,
		SenderName: displayName(m.From),
		Text:       m.Text,
		Media:      extractMedia(m),
	}
	if msg.Text == "" && msg.Media == nil {
		return
	}
	if err := h.router.RouteOperatorMessage(ctx, msg); err != nil {
		log.Printf("telegram: route operator message from topic %d: %v", msg.TopicID, err)
	}
}

func (h *Handlers) handleCallback(ctx context.Context, q *tg.CallbackQuery) {
	answer := func(text string, alert bool) {
		if err := h.transport.AnswerCallback(ctx, q.ID, text, alert); err != nil {
			log.Printf("telegram: answer callback %s: %v", q.ID, err)
		}
	}

	isManager, err := h.managers.IsManager(ctx, q.From.ID)
	if err != nil {
		log.Printf("telegram: manager lookup for %d: %v", q.From.ID, err)
		answer("Произошла ошибка. Попробуйте еще раз.", true)
		return
	}
	if !isManager {
		answer("Вы не являетесь менеджером.", true)
		return
	}

	switch {
	case strings.HasPrefix(q.Data, "takechat_"):
		h.handleTakeChat(ctx, q, strings.TrimPrefix(q.Data, "takechat_"), answer)
	case strings.HasPrefix(q.Data, "closechat_"):
		h.handleCloseChat(ctx, q, strings.TrimPrefix(q.Data, "closechat_"), answer)
	default:
		answer("", false)
	}
}

func (h *Handlers) handleTakeChat(ctx context.Context, q *tg.CallbackQuery, chatID string, answer func(string, bool)) {
	err := h.sessions.Claim(ctx, chatID, q.From.ID)
	switch {
	case errors.Is(err, repositories.ErrManagerConflict):
		answer("Чат уже взят другим менеджером.", true)
		return
	case errors.Is(err, session.ErrChatClosed):
		answer("Чат уже завершен.", true)
		return
	case errors.Is(err, repositories.ErrChatNotFound):
		answer("Чат не найден.", true)
		return
	case err != nil:
		log.Printf("telegram: claim chat %s by %d: %v", chatID, q.From.ID, err)
		answer("Не удалось взять чат. Попробуйте еще раз.", true)
		return
	}
	answer("Чат закреплен за вами.", false)

	if msg := accessibleMessage(q); msg != nil {
		if err := h.transport.ClearMessageButtons(ctx, msg.ID); err != nil {
			log.Printf("telegram: clear take button on message %d: %v", msg.ID, err)
		}
		if msg.MessageThreadID != 0 {
			text := fmt.Sprintf("<b>Менеджер %s подключился к чату.</b>", displayName(&q.From))
			if err := h.transport.SendTopicText(ctx, msg.MessageThreadID, text, chatID); err != nil {
				log.Printf("telegram: announce claim in topic %d: %v", msg.MessageThreadID, err)
			}
		}
	}
}

func (h *Handlers) handleCloseChat(ctx context.Context, q *tg.CallbackQuery, chatID string, answer func(string, bool)) {
	err := h.sessions.CloseByOperator(ctx, chatID, displayName(&q.From))
	switch {
	case errors.Is(err, repositories.ErrChatNotFound):
		answer("Чат не найден.", true)
		return
	case err != nil:
		log.Printf("telegram: close chat %s by %d: %v", chatID, q.From.ID, err)
		answer("Не удалось завершить чат.", true)
		return
	}
	answer("Чат завершен.", false)
	if msg := accessibleMessage(q); msg != nil {
		if err := h.transport.ClearMessageButtons(ctx, msg.ID); err != nil {
			log.Printf("telegram: clear close button on message %d: %v", msg.ID, err)
		}
	}
}

func accessibleMessage(q *tg.CallbackQuery) *tg.Message {
	return q.Message.Message
}

func displayName(u *tg.User) string {
	if u.Username != "" {
		return u.Username
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = "User_" + strconv.FormatInt(u.ID, 10)
	}
	return name
}

func extractMedia(m *tg.Message) *InboundMedia {
	switch {
	case len(m.Photo) > 0:
		best := m.Photo[len(m.Photo)-1]
		return &InboundMedia{
			Kind:     models.MediaPhoto,
			FileID:   best.FileID,
			Caption:  m.Caption,
			MimeType: "image/jpeg",
			FileSize: int64(best.FileSize),
			Width:    best.Width,
			Height:   best.Height,
		}
	case m.Video != nil:
		return &InboundMedia{
			Kind:     models.MediaVideo,
			FileID:   m.Video.FileID,
			Caption:  m.Caption,
			MimeType: m.Video.MimeType,
			FileSize: int64(m.Video.FileSize),
			Duration: m.Video.Duration,
			Width:    m.Video.Width,
			Height:   m.Video.Height,
			Name:     m.Video.FileName,
		}
	case m.Voice != nil:
		return &InboundMedia{
			Kind:     models.MediaVoice,
			FileID:   m.Voice.FileID,
			Caption:  m.Caption,
			MimeType: m.Voice.MimeType,
			FileSize: int64(m.Voice.FileSize),
			Duration: m.Voice.Duration,
		}
	case m.VideoNote != nil:
		return &InboundMedia{
			Kind:     models.MediaVideoNote,
			FileID:   m.VideoNote.FileID,
			MimeType: "video/mp4",
			FileSize: int64(m.VideoNote.FileSize),
			Duration: m.VideoNote.Duration,
		}
	case m.Document != nil:
		return &InboundMedia{
			Kind:     models.MediaDocument,
			FileID:   m.Document.FileID,
			Caption:  m.Caption,
			MimeType: m.Document.MimeType,
			FileSize: int64(m.Document.FileSize),
			Name:     m.Document.FileName,
		}
	}
	return nil
}
