package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"support-chat-service/internal/models"
	"support-chat-service/internal/repositories"
	"support-chat-service/internal/telegram"
)

type ChatRepositoryMock struct {
	mock.Mock
}

func (m *ChatRepositoryMock) CreateChat(ctx context.Context, userID int64) (models.Chat, error) {
	args := m.Called(ctx, userID)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) GetChat(ctx context.Context, chatID string) (models.Chat, error) {
	args := m.Called(ctx, chatID)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) GetChatByTopic(ctx context.Context, topicID int) (models.Chat, error) {
	args := m.Called(ctx, topicID)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) LatestChatForUser(ctx context.Context, userID int64) (models.Chat, error) {
	args := m.Called(ctx, userID)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) CloseChat(ctx context.Context, chatID string, opts repositories.CloseOptions) error {
	args := m.Called(ctx, chatID, opts)
	return args.Error(0)
}

func (m *ChatRepositoryMock) AssignManager(ctx context.Context, chatID string, managerID int64) error {
	args := m.Called(ctx, chatID, managerID)
	return args.Error(0)
}

func (m *ChatRepositoryMock) ResetManager(ctx context.Context, chatID string) error {
	args := m.Called(ctx, chatID)
	return args.Error(0)
}

func (m *ChatRepositoryMock) SetManagerRequested(ctx context.Context, chatID string, topicID int) error {
	args := m.Called(ctx, chatID, topicID)
	return args.Error(0)
}

func (m *ChatRepositoryMock) ResetManagerRequested(ctx context.Context, chatID string) error {
	args := m.Called(ctx, chatID)
	return args.Error(0)
}

func (m *ChatRepositoryMock) ReopenChat(ctx context.Context, chatID string, reboundTopicID *int) error {
	args := m.Called(ctx, chatID, reboundTopicID)
	return args.Error(0)
}

func (m *ChatRepositoryMock) ReAIPending(ctx context.Context, chatID string) error {
	args := m.Called(ctx, chatID)
	return args.Error(0)
}

func (m *ChatRepositoryMock) ListActiveChats(ctx context.Context) ([]models.Chat, error) {
	args := m.Called(ctx)
	var chats []models.Chat
	if val := args.Get(0); val != nil {
		chats = val.([]models.Chat)
	}
	return chats, args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Append(ctx context.Context, msg models.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MessageRepositoryMock) ListForChat(ctx context.Context, chatID string, after *time.Time, limit int64) ([]models.Message, error) {
	args := m.Called(ctx, chatID, after, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) LastMessage(ctx context.Context, chatID string) (models.Message, error) {
	args := m.Called(ctx, chatID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) GetUser(ctx context.Context, userID int64) (models.User, error) {
	args := m.Called(ctx, userID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) FindOrCreateUser(ctx context.Context, userID int64, userName string) (models.User, error) {
	args := m.Called(ctx, userID, userName)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

type ManagerRepositoryMock struct {
	mock.Mock
}

func (m *ManagerRepositoryMock) IsManager(ctx context.Context, userID int64) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ManagerRepositoryMock) AddManager(ctx context.Context, userID int64, name string) error {
	args := m.Called(ctx, userID, name)
	return args.Error(0)
}

func (m *ManagerRepositoryMock) ListManagers(ctx context.Context) ([]models.Manager, error) {
	args := m.Called(ctx)
	var managers []models.Manager
	if val := args.Get(0); val != nil {
		managers = val.([]models.Manager)
	}
	return managers, args.Error(1)
}

func (m *ManagerRepositoryMock) CountManagers(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type BlobStoreMock struct {
	mock.Mock
}

func (m *BlobStoreMock) Put(ctx context.Context, key string, data []byte, contentType string) error {
	args := m.Called(ctx, key, data, contentType)
	return args.Error(0)
}

func (m *BlobStoreMock) PresignedURL(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *BlobStoreMock) Remove(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *BlobStoreMock) PurgePrefix(ctx context.Context, prefix string) error {
	args := m.Called(ctx, prefix)
	return args.Error(0)
}

type GeneratorMock struct {
	mock.Mock
}

func (m *GeneratorMock) Answer(ctx context.Context, question string) (string, error) {
	args := m.Called(ctx, question)
	return args.String(0), args.Error(1)
}

type TransportMock struct {
	mock.Mock
}

func (m *TransportMock) SendTopicText(ctx context.Context, topicID int, text string, closeChatID string) error {
	args := m.Called(ctx, topicID, text, closeChatID)
	return args.Error(0)
}

func (m *TransportMock) SendTopicMedia(ctx context.Context, topicID int, media telegram.OutboundMedia, closeChatID string) error {
	args := m.Called(ctx, topicID, media, closeChatID)
	return args.Error(0)
}

func (m *TransportMock) SendTopicDocument(ctx context.Context, topicID int, filename string, data []byte, caption string) error {
	args := m.Called(ctx, topicID, filename, data, caption)
	return args.Error(0)
}

func (m *TransportMock) SendTakeNotice(ctx context.Context, topicID int, text string, chatID string) error {
	args := m.Called(ctx, topicID, text, chatID)
	return args.Error(0)
}

func (m *TransportMock) SendDirectText(ctx context.Context, userID int64, text string) error {
	args := m.Called(ctx, userID, text)
	return args.Error(0)
}

func (m *TransportMock) SendDirectMedia(ctx context.Context, userID int64, media telegram.OutboundMedia) error {
	args := m.Called(ctx, userID, media)
	return args.Error(0)
}

func (m *TransportMock) CreateTopic(ctx context.Context, name string) (int, error) {
	args := m.Called(ctx, name)
	return args.Int(0), args.Error(1)
}

func (m *TransportMock) RenameTopic(ctx context.Context, topicID int, name string) error {
	args := m.Called(ctx, topicID, name)
	return args.Error(0)
}

func (m *TransportMock) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	args := m.Called(ctx, fileID)
	var data []byte
	if val := args.Get(0); val != nil {
		data = val.([]byte)
	}
	return data, args.Error(1)
}

func (m *TransportMock) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	args := m.Called(ctx, callbackID, text, alert)
	return args.Error(0)
}

func (m *TransportMock) ClearMessageButtons(ctx context.Context, messageID int) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

type OperatorsMock struct {
	mock.Mock
}

func (m *OperatorsMock) CreateTopic(ctx context.Context, user models.User, chat models.Chat) (int, error) {
	args := m.Called(ctx, user, chat)
	return args.Int(0), args.Error(1)
}

func (m *OperatorsMock) RebindTopic(ctx context.Context, topicID int, user models.User, chat models.Chat) error {
	args := m.Called(ctx, topicID, user, chat)
	return args.Error(0)
}

func (m *OperatorsMock) SendHistory(ctx context.Context, topicID int, chat models.Chat, user models.User) {
	m.Called(ctx, topicID, chat, user)
}

func (m *OperatorsMock) NotifyNewRequest(ctx context.Context, topicID int, user models.User, chat models.Chat, firstMessage string) error {
	args := m.Called(ctx, topicID, user, chat, firstMessage)
	return args.Error(0)
}

func (m *OperatorsMock) PostClientText(ctx context.Context, topicID int, user models.User, chat models.Chat, text string) error {
	args := m.Called(ctx, topicID, user, chat, text)
	return args.Error(0)
}

func (m *OperatorsMock) PostClientMedia(ctx context.Context, topicID int, user models.User, chat models.Chat, caption string, media *models.MediaContent) error {
	args := m.Called(ctx, topicID, user, chat, caption, media)
	return args.Error(0)
}

func (m *OperatorsMock) AnnounceClosed(ctx context.Context, topicID int, chat models.Chat, user models.User, closedBy string) {
	m.Called(ctx, topicID, chat, user, closedBy)
}

type DelivererMock struct {
	mock.Mock
}

func (m *DelivererMock) Deliver(ctx context.Context, userID int64, event models.Event) {
	m.Called(ctx, userID, event)
}

type SessionControlMock struct {
	mock.Mock
}

func (m *SessionControlMock) Claim(ctx context.Context, chatID string, managerID int64) error {
	args := m.Called(ctx, chatID, managerID)
	return args.Error(0)
}

func (m *SessionControlMock) RequestOperator(ctx context.Context, chatID string) error {
	args := m.Called(ctx, chatID)
	return args.Error(0)
}

func (m *SessionControlMock) CloseByFeedback(ctx context.Context, chatID string) error {
	args := m.Called(ctx, chatID)
	return args.Error(0)
}

func (m *SessionControlMock) CloseByOperator(ctx context.Context, chatID string, closedBy string) error {
	args := m.Called(ctx, chatID, closedBy)
	return args.Error(0)
}
