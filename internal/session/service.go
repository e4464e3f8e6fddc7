package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"support-chat-service/internal/ai"
	"support-chat-service/internal/models"
	"support-chat-service/internal/observability"
	"support-chat-service/internal/repositories"
	"support-chat-service/internal/storage"
	"support-chat-service/internal/telemetry"
)

var (
	// ErrChatClosed is returned when an operator acts on an already closed chat.
	ErrChatClosed = errors.New("chat is closed")
	// ErrManagerNotRequested is returned on a claim attempt before the
	// customer asked for an operator.
	ErrManagerNotRequested = errors.New("operator was not requested for this chat")
)

// Deliverer pushes an event to the customer over whichever channel reaches
// them. Implemented by the message router; bound after construction because
// the router also calls back into the session service.
type Deliverer interface {
	Deliver(ctx context.Context, userID int64, event models.Event)
}

// Operators is the manager-group side of a chat: forum topics, operator
// notifications and group-facing announcements.
type Operators interface {
	// CreateTopic opens a forum thread for the chat and returns its id.
	CreateTopic(ctx context.Context, user models.User, chat models.Chat) (int, error)
	// RebindTopic renames a retained thread back to active and announces the
	// reopen in it. An error means the thread no longer exists.
	RebindTopic(ctx context.Context, topicID int, user models.User, chat models.Chat) error
	// SendHistory posts the visible transcript into the thread. Failures are
	// logged inside, history is best effort.
	SendHistory(ctx context.Context, topicID int, chat models.Chat, user models.User)
	// NotifyNewRequest posts the escalation notice with the take-chat button.
	NotifyNewRequest(ctx context.Context, topicID int, user models.User, chat models.Chat, firstMessage string) error
	// PostClientText forwards a customer text message into the thread.
	PostClientText(ctx context.Context, topicID int, user models.User, chat models.Chat, text string) error
	// PostClientMedia forwards a customer attachment into the thread.
	PostClientMedia(ctx context.Context, topicID int, user models.User, chat models.Chat, caption string, media *models.MediaContent) error
	// AnnounceClosed renames the thread to closed and posts the confirmation.
	AnnounceClosed(ctx context.Context, topicID int, chat models.Chat, user models.User, closedBy string)
}

const (
	historyLimit = 50

	msgAIError          = "К сожалению, возникла ошибка при обработке вашего запроса. Попробуйте позже или позовите оператора."
	msgChatCompleted    = "Этот чат завершен. Начните новый чат, чтобы продолжить."
	msgOperatorRequest  = "Запрос отправлен оператору. Ожидайте ответа."
	msgOperatorFailed   = "Не удалось позвать оператора. Попробуйте позже."
	msgChatReopened     = "Чат переоткрыт. Ожидайте ответа оператора."
	msgOperatorJoined   = "Оператор подключился к чату."
	msgClosedByOperator = "Чат завершен оператором. Спасибо за обращение!"
	msgClosedByFeedback = "Спасибо за обратную связь! Чат завершен."
)

// Service owns the chat lifecycle: ai_pending, active and closed states and
// every transition between them.
type Service struct {
	chats     repositories.ChatRepository
	messages  repositories.MessageRepository
	users     repositories.UserRepository
	operators Operators
	generator ai.Generator
	blobs     storage.BlobStore
	events    *telemetry.ChatEventEmitter

	deliverer Deliverer
}

func NewService(
	chats repositories.ChatRepository,
	messages repositories.MessageRepository,
	users repositories.UserRepository,
	operators Operators,
	generator ai.Generator,
	blobs storage.BlobStore,
	events *telemetry.ChatEventEmitter,
) *Service {
	return &Service{
		chats:     chats,
		messages:  messages,
		users:     users,
		operators: operators,
		generator: generator,
		blobs:     blobs,
		events:    events,
	}
}

// SetDeliverer binds the outbound channel. Must be called before the service
// receives traffic.
func (s *Service) SetDeliverer(d Deliverer) { s.deliverer = d }

func (s *Service) deliver(ctx context.Context, userID int64, event models.Event) {
	if s.deliverer == nil {
		log.Printf("session: no deliverer bound, dropping %s event for user %d", event.Type, userID)
		return
	}
	s.deliverer.Deliver(ctx, userID, event)
}

func (s *Service) emit(ctx context.Context, eventType string, chat models.Chat, detail string) {
	s.events.Emit(ctx, eventType, telemetry.ChatEventPayload{
		ChatID:    chat.ChatID,
		UserID:    chat.UserID,
		ManagerID: chat.ManagerID,
		Detail:    detail,
	})
}

// InitSession resolves the customer's latest chat on connect. A closed chat
// is re-entered in ai_pending with history hidden before the reopen point; no
// chat at all yields an init event without a chat id.
func (s *Service) InitSession(ctx context.Context, user models.User) (string, models.Event, error) {
	chat, err := s.chats.LatestChatForUser(ctx, user.UserID)
	if errors.Is(err, repositories.ErrChatNotFound) {
		return "", models.NewInitEvent(models.InitPayload{
			History: []models.HistoryEntry{},
			Status:  "no_chat",
		}), nil
	}
	if err != nil {
		return "", models.Event{}, fmt.Errorf("resolve latest chat for %d: %w", user.UserID, err)
	}

	if chat.IsClosed() {
		if err := s.chats.ReAIPending(ctx, chat.ChatID); err != nil {
			return "", models.Event{}, fmt.Errorf("re-enter ai_pending for %s: %w", chat.ChatID, err)
		}
		s.emit(ctx, telemetry.EventChatReopened, chat, "customer reconnect")
		if chat, err = s.chats.GetChat(ctx, chat.ChatID); err != nil {
			return "", models.Event{}, err
		}
	}

	history, err := s.visibleHistory(ctx, chat)
	if err != nil {
		return "", models.Event{}, err
	}
	return chat.ChatID, models.NewInitEvent(models.InitPayload{
		ChatID:      chat.ChatID,
		History:     history,
		Status:      string(chat.Status),
		ShowButtons: showButtonsAfter(history),
	}), nil
}

// visibleHistory lists messages for the init payload, cutting off everything
// before the most recent reopen.
func (s *Service) visibleHistory(ctx context.Context, chat models.Chat) ([]models.HistoryEntry, error) {
	msgs, err := s.messages.ListForChat(ctx, chat.ChatID, chat.ReopenedAt, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("list history for %s: %w", chat.ChatID, err)
	}
	entries := make([]models.HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		entries = append(entries, models.HistoryEntry{
			Text:      m.Text,
			SenderID:  m.SenderID,
			Timestamp: m.Timestamp,
			Media:     m.Media,
		})
	}
	return entries, nil
}

// showButtonsAfter reports whether the widget should offer the call-operator
// buttons, which it does right after an AI reply.
func showButtonsAfter(history []models.HistoryEntry) bool {
	if len(history) == 0 {
		return false
	}
	return history[len(history)-1].SenderID == models.SenderAI
}

// ClientMessage handles one customer frame. Returns the chat id the
// connection should track afterwards.
func (s *Service) ClientMessage(ctx context.Context, user models.User, currentChatID string, p models.ClientMessagePayload) (string, error) {
	if len(p.File) > 0 {
		return currentChatID, s.echoUpload(ctx, user, currentChatID)
	}
	if p.Text == "" {
		return currentChatID, nil
	}

	chat, err := s.resolveChatForMessage(ctx, user, currentChatID)
	if err != nil {
		if errors.Is(err, errChatGone) {
			s.deliver(ctx, user.UserID, models.NewErrorEvent(models.ErrorPayload{
				Message:           msgChatCompleted,
				ShowNewChatButton: true,
				ChatID:            currentChatID,
			}))
			return "", nil
		}
		return currentChatID, err
	}

	msg := models.Message{
		ChatID:    chat.ChatID,
		SenderID:  fmt.Sprintf("%d", user.UserID),
		Text:      p.Text,
		Timestamp: time.Now().UTC(),
	}
	if err := s.messages.Append(ctx, msg); err != nil {
		return chat.ChatID, fmt.Errorf("persist client message: %w", err)
	}

	switch {
	case chat.Status == models.StatusAIPending:
		s.answerWithAI(ctx, user, chat, p.Text)
	case chat.Status == models.StatusActive && chat.TopicID != nil:
		if err := s.operators.PostClientText(ctx, *chat.TopicID, user, chat, p.Text); err != nil {
			log.Printf("session: forward client text to topic %d: %v", *chat.TopicID, err)
		} else {
			observability.IncChannelDelivery("operator_topic")
		}
	}
	return chat.ChatID, nil
}

var errChatGone = errors.New("chat missing or closed")

// resolveChatForMessage finds the chat a fresh message belongs to. With no
// current chat the latest one is picked up (a closed one re-enters
// ai_pending) or a new chat is created; with a current chat that turns out
// closed the customer is told to start over.
func (s *Service) resolveChatForMessage(ctx context.Context, user models.User, currentChatID string) (models.Chat, error) {
	if currentChatID == "" {
		chat, err := s.chats.LatestChatForUser(ctx, user.UserID)
		switch {
		case errors.Is(err, repositories.ErrChatNotFound):
			chat, err = s.chats.CreateChat(ctx, user.UserID)
			if err != nil {
				return models.Chat{}, fmt.Errorf("create chat for %d: %w", user.UserID, err)
			}
			s.emit(ctx, telemetry.EventChatCreated, chat, "")
			return chat, nil
		case err != nil:
			return models.Chat{}, err
		}
		if chat.IsClosed() {
			if err := s.chats.ReAIPending(ctx, chat.ChatID); err != nil {
				return models.Chat{}, err
			}
			s.emit(ctx, telemetry.EventChatReopened, chat, "message into closed chat")
			return s.chats.GetChat(ctx, chat.ChatID)
		}
		return chat, nil
	}

	chat, err := s.chats.GetChat(ctx, currentChatID)
	if errors.Is(err, repositories.ErrChatNotFound) {
		return models.Chat{}, errChatGone
	}
	if err != nil {
		return models.Chat{}, err
	}
	if chat.IsClosed() {
		return models.Chat{}, errChatGone
	}
	return chat, nil
}

func (s *Service) answerWithAI(ctx context.Context, user models.User, chat models.Chat, question string) {
	answer, err := s.generator.Answer(ctx, question)
	if err != nil || answer == "" {
		if err != nil {
			log.Printf("session: ai answer for chat %s: %v", chat.ChatID, err)
		}
		s.deliver(ctx, user.UserID, models.NewErrorEvent(models.ErrorPayload{
			Message:            msgAIError,
			ShowOperatorButton: true,
			ChatID:             chat.ChatID,
		}))
		return
	}

	now := time.Now().UTC()
	aiMsg := models.Message{
		ChatID:    chat.ChatID,
		SenderID:  models.SenderAI,
		Text:      answer,
		Timestamp: now,
	}
	if err := s.messages.Append(ctx, aiMsg); err != nil {
		log.Printf("session: persist ai answer for chat %s: %v", chat.ChatID, err)
	}
	s.deliver(ctx, user.UserID, models.NewAIResponseEvent(models.AIResponsePayload{
		ChatID:    chat.ChatID,
		SenderID:  models.SenderAI,
		Text:      answer,
		Timestamp: now,
	}))
	observability.IncAIAnswer()
}

// echoUpload reflects a just-uploaded attachment back to the customer and,
// when an operator thread is bound, forwards it there. The upload endpoint
// already persisted the message.
func (s *Service) echoUpload(ctx context.Context, user models.User, currentChatID string) error {
	if currentChatID == "" {
		return nil
	}
	last, err := s.messages.LastMessage(ctx, currentChatID)
	if err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			return nil
		}
		return fmt.Errorf("load uploaded message for %s: %w", currentChatID, err)
	}
	if last.Media == nil {
		return nil
	}

	s.deliver(ctx, user.UserID, models.NewMessageEvent(models.MessagePayload{
		ChatID:    currentChatID,
		SenderID:  last.SenderID,
		Text:      last.Text,
		Timestamp: last.Timestamp,
		Media:     last.Media,
	}))

	chat, err := s.chats.GetChat(ctx, currentChatID)
	if err != nil {
		return err
	}
	if chat.Status == models.StatusActive && chat.TopicID != nil {
		if err := s.operators.PostClientMedia(ctx, *chat.TopicID, user, chat, last.Text, last.Media); err != nil {
			log.Printf("session: forward upload to topic %d: %v", *chat.TopicID, err)
		}
	}
	return nil
}

// StartNewChat resets the customer's conversation: the latest chat re-enters
// ai_pending with a fresh history cutoff, or a brand new chat is created.
func (s *Service) StartNewChat(ctx context.Context, user models.User) (string, models.Event, error) {
	chat, err := s.chats.LatestChatForUser(ctx, user.UserID)
	switch {
	case errors.Is(err, repositories.ErrChatNotFound):
		chat, err = s.chats.CreateChat(ctx, user.UserID)
		if err != nil {
			return "", models.Event{}, fmt.Errorf("create chat for %d: %w", user.UserID, err)
		}
		s.emit(ctx, telemetry.EventChatCreated, chat, "")
	case err != nil:
		return "", models.Event{}, err
	default:
		if err := s.chats.ReAIPending(ctx, chat.ChatID); err != nil {
			return "", models.Event{}, fmt.Errorf("reset chat %s: %w", chat.ChatID, err)
		}
		s.emit(ctx, telemetry.EventChatReopened, chat, "start new chat")
		if chat, err = s.chats.GetChat(ctx, chat.ChatID); err != nil {
			return "", models.Event{}, err
		}
	}

	return chat.ChatID, models.NewInitEvent(models.InitPayload{
		ChatID:  chat.ChatID,
		History: []models.HistoryEntry{},
		Status:  string(chat.Status),
	}), nil
}

// RequestOperator escalates a chat to the manager group: reopening it first
// if it was closed (rebinding the retained thread when it still exists),
// creating a thread when there is none, then posting history and the
// escalation notice. The escalation is committed even when the notice fails.
func (s *Service) RequestOperator(ctx context.Context, chatID string) error {
	chat, err := s.chats.GetChat(ctx, chatID)
	if err != nil {
		return err
	}
	user, err := s.users.GetUser(ctx, chat.UserID)
	if err != nil {
		return fmt.Errorf("load user %d: %w", chat.UserID, err)
	}

	if chat.IsClosed() {
		chat, err = s.reopenForOperator(ctx, chat, user)
		if err != nil {
			return err
		}
		if chat.ManagerRequested {
			// Rebound to the retained thread; escalation is complete.
			return nil
		}
	}

	if chat.TopicID == nil {
		topicID, err := s.operators.CreateTopic(ctx, user, chat)
		if err != nil {
			s.deliver(ctx, user.UserID, models.NewErrorEvent(models.ErrorPayload{
				Message: msgOperatorFailed,
				ChatID:  chat.ChatID,
			}))
			return fmt.Errorf("create topic for chat %s: %w", chat.ChatID, err)
		}
		chat.TopicID = &topicID
	}

	s.operators.SendHistory(ctx, *chat.TopicID, chat, user)

	firstMessage := ""
	if history, err := s.visibleHistory(ctx, chat); err == nil && len(history) > 0 {
		firstMessage = history[0].Text
	}
	if err := s.operators.NotifyNewRequest(ctx, *chat.TopicID, user, chat, firstMessage); err != nil {
		// Escalation still commits, the operators just lose the ping.
		log.Printf("session: escalation notice for chat %s: %v", chat.ChatID, err)
	}

	if err := s.chats.SetManagerRequested(ctx, chat.ChatID, *chat.TopicID); err != nil {
		return fmt.Errorf("mark operator requested for %s: %w", chat.ChatID, err)
	}
	s.emit(ctx, telemetry.EventChatEscalated, chat, "")
	s.deliver(ctx, user.UserID, models.NewStatusUpdateEvent(models.StatusUpdatePayload{
		Status:  string(models.StatusActive),
		Message: msgOperatorRequest,
		ChatID:  chat.ChatID,
	}))
	return nil
}

// reopenForOperator brings a closed chat back for an operator request. A
// retained thread is probed by renaming it back to active; when that fails
// the chat reopens unbound and a fresh thread is created by the caller.
func (s *Service) reopenForOperator(ctx context.Context, chat models.Chat, user models.User) (models.Chat, error) {
	var rebound *int
	if chat.TopicID != nil {
		if err := s.operators.RebindTopic(ctx, *chat.TopicID, user, chat); err != nil {
			log.Printf("session: rebind topic %d for chat %s: %v", *chat.TopicID, chat.ChatID, err)
		} else {
			rebound = chat.TopicID
		}
	}
	if err := s.chats.ReopenChat(ctx, chat.ChatID, rebound); err != nil {
		return models.Chat{}, fmt.Errorf("reopen chat %s: %w", chat.ChatID, err)
	}
	s.emit(ctx, telemetry.EventChatReopened, chat, "operator request")
	if rebound != nil {
		s.deliver(ctx, user.UserID, models.NewStatusUpdateEvent(models.StatusUpdatePayload{
			Status:  string(models.StatusActive),
			Message: msgChatReopened,
			ChatID:  chat.ChatID,
		}))
	}
	return s.chats.GetChat(ctx, chat.ChatID)
}

// Claim assigns a chat to a manager, exactly once.
func (s *Service) Claim(ctx context.Context, chatID string, managerID int64) error {
	chat, err := s.chats.GetChat(ctx, chatID)
	if err != nil {
		return err
	}
	if chat.IsClosed() {
		return ErrChatClosed
	}
	if !chat.ManagerRequested {
		return ErrManagerNotRequested
	}
	if chat.ManagerID != nil {
		return repositories.ErrManagerConflict
	}
	if err := s.chats.AssignManager(ctx, chatID, managerID); err != nil {
		return err
	}
	chat.ManagerID = &managerID
	s.emit(ctx, telemetry.EventChatClaimed, chat, "")
	s.deliver(ctx, chat.UserID, models.NewStatusUpdateEvent(models.StatusUpdatePayload{
		Status:  string(models.StatusActive),
		Message: msgOperatorJoined,
		ChatID:  chatID,
	}))
	return nil
}

// CloseOptions control a close: operator closes keep the thread bound so a
// reopen can reuse it, feedback closes drop it.
type CloseOptions struct {
	KeepTopic bool
	ClosedBy  string
	Notice    string
}

// Close finishes a chat, purges its uploaded files and tells the customer.
// Closing an already closed chat is a no-op.
func (s *Service) Close(ctx context.Context, chatID string, opts CloseOptions) error {
	chat, err := s.chats.GetChat(ctx, chatID)
	if err != nil {
		return err
	}
	if chat.IsClosed() {
		return nil
	}

	if err := s.chats.CloseChat(ctx, chatID, repositories.CloseOptions{KeepTopic: opts.KeepTopic}); err != nil {
		if errors.Is(err, repositories.ErrChatClosed) {
			// Lost the race against another closer; purge and
			// notification already happened there.
			return nil
		}
		return fmt.Errorf("close chat %s: %w", chatID, err)
	}
	s.emit(ctx, telemetry.EventChatClosed, chat, opts.ClosedBy)

	if err := s.blobs.PurgePrefix(ctx, chatID+"/"); err != nil {
		log.Printf("session: purge files for chat %s: %v", chatID, err)
	}

	notice := opts.Notice
	if notice == "" {
		notice = msgClosedByOperator
	}
	s.deliver(ctx, chat.UserID, models.NewStatusUpdateEvent(models.StatusUpdatePayload{
		Status:            string(models.StatusClosed),
		Message:           notice,
		ShowNewChatButton: true,
		ChatID:            chatID,
	}))

	if chat.TopicID != nil {
		user, err := s.users.GetUser(ctx, chat.UserID)
		if err != nil {
			log.Printf("session: load user %d for close announcement: %v", chat.UserID, err)
			return nil
		}
		s.operators.AnnounceClosed(ctx, *chat.TopicID, chat, user, opts.ClosedBy)
	}
	return nil
}

// CloseByOperator closes a chat from the thread's close button, keeping the
// thread bound for a later reopen.
func (s *Service) CloseByOperator(ctx context.Context, chatID string, closedBy string) error {
	return s.Close(ctx, chatID, CloseOptions{
		KeepTopic: true,
		ClosedBy:  closedBy,
		Notice:    msgClosedByOperator,
	})
}

// CloseByFeedback closes a chat after the customer marked the conversation
// resolved. Thread binding is dropped.
func (s *Service) CloseByFeedback(ctx context.Context, chatID string) error {
	return s.Close(ctx, chatID, CloseOptions{Notice: msgClosedByFeedback})
}
