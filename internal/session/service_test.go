package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"support-chat-service/internal/mocks"
	"support-chat-service/internal/models"
	"support-chat-service/internal/repositories"
	"support-chat-service/internal/session"
)

type fixture struct {
	chats     *mocks.ChatRepositoryMock
	messages  *mocks.MessageRepositoryMock
	users     *mocks.UserRepositoryMock
	operators *mocks.OperatorsMock
	generator *mocks.GeneratorMock
	blobs     *mocks.BlobStoreMock
	deliverer *mocks.DelivererMock
	svc       *session.Service
}

func newFixture() *fixture {
	f := &fixture{
		chats:     &mocks.ChatRepositoryMock{},
		messages:  &mocks.MessageRepositoryMock{},
		users:     &mocks.UserRepositoryMock{},
		operators: &mocks.OperatorsMock{},
		generator: &mocks.GeneratorMock{},
		blobs:     &mocks.BlobStoreMock{},
		deliverer: &mocks.DelivererMock{},
	}
	f.svc = session.NewService(f.chats, f.messages, f.users, f.operators, f.generator, f.blobs, nil)
	f.svc.SetDeliverer(f.deliverer)
	return f
}

var testUser = models.User{UserID: 42, UserName: "alice"}

func activeChat(topicID *int) models.Chat {
	return models.Chat{
		ChatID:  "chat-1",
		UserID:  testUser.UserID,
		Status:  models.StatusActive,
		TopicID: topicID,
	}
}

func closedChat(topicID *int) models.Chat {
	closedAt := time.Now().UTC().Add(-time.Hour)
	return models.Chat{
		ChatID:   "chat-1",
		UserID:   testUser.UserID,
		Status:   models.StatusClosed,
		TopicID:  topicID,
		ClosedAt: &closedAt,
	}
}

func aiPendingChat() models.Chat {
	return models.Chat{
		ChatID: "chat-1",
		UserID: testUser.UserID,
		Status: models.StatusAIPending,
	}
}

func TestInitSessionNoChat(t *testing.T) {
	f := newFixture()
	f.chats.On("LatestChatForUser", mock.Anything, testUser.UserID).Return(nil, repositories.ErrChatNotFound)

	chatID, event, err := f.svc.InitSession(context.Background(), testUser)

	require.NoError(t, err)
	assert.Empty(t, chatID)
	assert.Equal(t, models.EventInit, event.Type)
	payload := event.Payload.(models.InitPayload)
	assert.Equal(t, "no_chat", payload.Status)
	assert.Empty(t, payload.History)
}

func TestInitSessionClosedChatReentersAIPending(t *testing.T) {
	f := newFixture()
	chat := closedChat(nil)
	reopened := aiPendingChat()
	now := time.Now().UTC()
	reopened.ReopenedAt = &now

	f.chats.On("LatestChatForUser", mock.Anything, testUser.UserID).Return(chat, nil)
	f.chats.On("ReAIPending", mock.Anything, chat.ChatID).Return(nil)
	f.chats.On("GetChat", mock.Anything, chat.ChatID).Return(reopened, nil)
	f.messages.On("ListForChat", mock.Anything, chat.ChatID, reopened.ReopenedAt, int64(50)).
		Return([]models.Message{}, nil)

	chatID, event, err := f.svc.InitSession(context.Background(), testUser)

	require.NoError(t, err)
	assert.Equal(t, chat.ChatID, chatID)
	payload := event.Payload.(models.InitPayload)
	assert.Equal(t, string(models.StatusAIPending), payload.Status)
	assert.Empty(t, payload.History)
	f.chats.AssertCalled(t, "ReAIPending", mock.Anything, chat.ChatID)
}

func TestInitSessionHistoryStartsAtReopen(t *testing.T) {
	f := newFixture()
	chat := activeChat(nil)
	reopenedAt := time.Now().UTC().Add(-time.Hour)
	chat.ReopenedAt = &reopenedAt

	afterReopen := models.Message{
		ChatID:    chat.ChatID,
		SenderID:  "42",
		Text:      "снова здравствуйте",
		Timestamp: reopenedAt.Add(time.Minute),
	}
	f.chats.On("LatestChatForUser", mock.Anything, testUser.UserID).Return(chat, nil)
	f.messages.On("ListForChat", mock.Anything, chat.ChatID, &reopenedAt, int64(50)).
		Return([]models.Message{afterReopen}, nil)

	_, event, err := f.svc.InitSession(context.Background(), testUser)

	require.NoError(t, err)
	payload := event.Payload.(models.InitPayload)
	require.Len(t, payload.History, 1)
	assert.Equal(t, "снова здравствуйте", payload.History[0].Text)
	f.messages.AssertExpectations(t)
}

func TestInitSessionShowsButtonsAfterAIReply(t *testing.T) {
	f := newFixture()
	chat := aiPendingChat()
	f.chats.On("LatestChatForUser", mock.Anything, testUser.UserID).Return(chat, nil)
	f.messages.On("ListForChat", mock.Anything, chat.ChatID, (*time.Time)(nil), int64(50)).
		Return([]models.Message{
			{ChatID: chat.ChatID, SenderID: "42", Text: "привет"},
			{ChatID: chat.ChatID, SenderID: models.SenderAI, Text: "здравствуйте"},
		}, nil)

	_, event, err := f.svc.InitSession(context.Background(), testUser)

	require.NoError(t, err)
	payload := event.Payload.(models.InitPayload)
	assert.True(t, payload.ShowButtons)
	assert.Len(t, payload.History, 2)
}

func TestClientMessageAIPendingGetsAnswer(t *testing.T) {
	f := newFixture()
	chat := aiPendingChat()
	f.chats.On("GetChat", mock.Anything, chat.ChatID).Return(chat, nil)
	f.messages.On("Append", mock.Anything, mock.MatchedBy(func(m models.Message) bool {
		return m.SenderID == "42" && m.Text == "вопрос"
	})).Return(nil)
	f.generator.On("Answer", mock.Anything, "вопрос").Return("ответ", nil)
	f.messages.On("Append", mock.Anything, mock.MatchedBy(func(m models.Message) bool {
		return m.SenderID == models.SenderAI
	})).Return(nil)
	f.deliverer.On("Deliver", mock.Anything, testUser.UserID, mock.MatchedBy(func(e models.Event) bool {
		return e.Type == models.EventAIResponse
	})).Return()

	next, err := f.svc.ClientMessage(context.Background(), testUser, chat.ChatID, models.ClientMessagePayload{Text: "вопрос"})

	require.NoError(t, err)
	assert.Equal(t, chat.ChatID, next)
	f.deliverer.AssertExpectations(t)
}

func TestClientMessageAIFailureOffersOperator(t *testing.T) {
	f := newFixture()
	chat := aiPendingChat()
	f.chats.On("GetChat", mock.Anything, chat.ChatID).Return(chat, nil)
	f.messages.On("Append", mock.Anything, mock.Anything).Return(nil)
	f.generator.On("Answer", mock.Anything, "вопрос").Return("", errors.New("upstream down"))
	f.deliverer.On("Deliver", mock.Anything, testUser.UserID, mock.MatchedBy(func(e models.Event) bool {
		if e.Type != models.EventError {
			return false
		}
		p := e.Payload.(models.ErrorPayload)
		return p.ShowOperatorButton
	})).Return()

	_, err := f.svc.ClientMessage(context.Background(), testUser, chat.ChatID, models.ClientMessagePayload{Text: "вопрос"})

	require.NoError(t, err)
	f.deliverer.AssertExpectations(t)
}

func TestClientMessageActiveForwardsToTopic(t *testing.T) {
	f := newFixture()
	topicID := 77
	chat := activeChat(&topicID)
	f.chats.On("GetChat", mock.Anything, chat.ChatID).Return(chat, nil)
	f.messages.On("Append", mock.Anything, mock.Anything).Return(nil)
	f.operators.On("PostClientText", mock.Anything, topicID, testUser, chat, "нужна помощь").Return(nil)

	_, err := f.svc.ClientMessage(context.Background(), testUser, chat.ChatID, models.ClientMessagePayload{Text: "нужна помощь"})

	require.NoError(t, err)
	f.operators.AssertExpectations(t)
	f.generator.AssertNotCalled(t, "Answer", mock.Anything, mock.Anything)
}

func operatorTopicDeliveries(t *testing.T) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "support_channel_deliveries_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "channel" && label.GetValue() == "operator_topic" {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestClientMessageFailedForwardNotCountedDelivered(t *testing.T) {
	f := newFixture()
	topicID := 77
	chat := activeChat(&topicID)
	f.chats.On("GetChat", mock.Anything, chat.ChatID).Return(chat, nil)
	f.messages.On("Append", mock.Anything, mock.Anything).Return(nil)
	f.operators.On("PostClientText", mock.Anything, topicID, testUser, chat, "нужна помощь").
		Return(errors.New("thread deleted"))

	before := operatorTopicDeliveries(t)
	_, err := f.svc.ClientMessage(context.Background(), testUser, chat.ChatID, models.ClientMessagePayload{Text: "нужна помощь"})

	require.NoError(t, err)
	assert.Equal(t, before, operatorTopicDeliveries(t))
}

func TestClientMessageIntoClosedChatResetsConnection(t *testing.T) {
	f := newFixture()
	chat := closedChat(nil)
	f.chats.On("GetChat", mock.Anything, chat.ChatID).Return(chat, nil)
	f.deliverer.On("Deliver", mock.Anything, testUser.UserID, mock.MatchedBy(func(e models.Event) bool {
		if e.Type != models.EventError {
			return false
		}
		return e.Payload.(models.ErrorPayload).ShowNewChatButton
	})).Return()

	next, err := f.svc.ClientMessage(context.Background(), testUser, chat.ChatID, models.ClientMessagePayload{Text: "эй"})

	require.NoError(t, err)
	assert.Empty(t, next)
	f.messages.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
}

func TestClientMessageWithoutChatCreatesOne(t *testing.T) {
	f := newFixture()
	created := aiPendingChat()
	f.chats.On("LatestChatForUser", mock.Anything, testUser.UserID).Return(nil, repositories.ErrChatNotFound)
	f.chats.On("CreateChat", mock.Anything, testUser.UserID).Return(created, nil)
	f.messages.On("Append", mock.Anything, mock.Anything).Return(nil)
	f.generator.On("Answer", mock.Anything, "привет").Return("здравствуйте", nil)
	f.deliverer.On("Deliver", mock.Anything, testUser.UserID, mock.Anything).Return()

	next, err := f.svc.ClientMessage(context.Background(), testUser, "", models.ClientMessagePayload{Text: "привет"})

	require.NoError(t, err)
	assert.Equal(t, created.ChatID, next)
	f.chats.AssertCalled(t, "CreateChat", mock.Anything, testUser.UserID)
}

func TestStartNewChatResetsLatest(t *testing.T) {
	f := newFixture()
	chat := activeChat(nil)
	reset := aiPendingChat()
	f.chats.On("LatestChatForUser", mock.Anything, testUser.UserID).Return(chat, nil)
	f.chats.On("ReAIPending", mock.Anything, chat.ChatID).Return(nil)
	f.chats.On("GetChat", mock.Anything, chat.ChatID).Return(reset, nil)

	chatID, event, err := f.svc.StartNewChat(context.Background(), testUser)

	require.NoError(t, err)
	assert.Equal(t, chat.ChatID, chatID)
	payload := event.Payload.(models.InitPayload)
	assert.Equal(t, string(models.StatusAIPending), payload.Status)
	assert.Empty(t, payload.History)
}

func TestRequestOperatorCreatesTopic(t *testing.T) {
	f := newFixture()
	chat := aiPendingChat()
	topicID := 55
	f.chats.On("GetChat", mock.Anything, chat.ChatID).Return(chat, nil)
	f.users.On("GetUser", mock.Anything, testUser.UserID).Return(testUser, nil)
	f.operators.On("CreateTopic", mock.Anything, testUser, chat).Return(topicID, nil)
	f.operators.On("SendHistory", mock.Anything, topicID, mock.Anything, testUser).Return()
	f.messages.On("ListForChat", mock.Anything, chat.ChatID, (*time.Time)(nil), int64(50)).
		Return([]models.Message{{SenderID: "42", Text: "первый вопрос"}}, nil)
	f.operators.On("NotifyNewRequest", mock.Anything, topicID, testUser, mock.Anything, "первый вопрос").Return(nil)
	f.chats.On("SetManagerRequested", mock.Anything, chat.ChatID, topicID).Return(nil)
	f.deliverer.On("Deliver", mock.Anything, testUser.UserID, mock.MatchedBy(func(e models.Event) bool {
		return e.Type == models.EventStatusUpdate
	})).Return()

	err := f.svc.RequestOperator(context.Background(), chat.ChatID)

	require.NoError(t, err)
	f.chats.AssertCalled(t, "SetManagerRequested", mock.Anything, chat.ChatID, topicID)
}

func TestRequestOperatorNoticeFailureStillCommits(t *testing.T) {
	f := newFixture()
	chat := aiPendingChat()
	topicID := 55
	f.chats.On("GetChat", mock.Anything, chat.ChatID).Return(chat, nil)
	f.users.On("GetUser", mock.Anything, testUser.UserID).Return(testUser, nil)
	f.operators.On("CreateTopic", mock.Anything, testUser, chat).Return(topicID, nil)
	f.operators.On("SendHistory", mock.Anything, topicID, mock.Anything, testUser).Return()
	f.messages.On("ListForChat", mock.Anything, chat.ChatID, (*time.Time)(nil), int64(50)).
		Return([]models.Message{}, nil)
	f.operators.On("NotifyNewRequest", mock.Anything, topicID, testUser, mock.Anything, "").
		Return(errors.New("telegram down"))
	f.chats.On("SetManagerRequested", mock.Anything, chat.ChatID, topicID).Return(nil)
	f.deliverer.On("Deliver", mock.Anything, testUser.UserID, mock.Anything).Return()

	err := f.svc.RequestOperator(context.Background(), chat.ChatID)

	require.NoError(t, err)
	f.chats.AssertCalled(t, "SetManagerRequested", mock.Anything, chat.ChatID, topicID)
}

func TestRequestOperatorRebindsRetainedTopic(t *testing.T) {
	f := newFixture()
	topicID := 88
	chat := closedChat(&topicID)
	rebound := activeChat(&topicID)
	rebound.ManagerRequested = true

	f.chats.On("GetChat", mock.Anything, chat.ChatID).Return(chat, nil).Once()
	f.users.On("GetUser", mock.Anything, testUser.UserID).Return(testUser, nil)
	f.operators.On("RebindTopic", mock.Anything, topicID, testUser, chat).Return(nil)
	f.chats.On("ReopenChat", mock.Anything, chat.ChatID, &topicID).Return(nil)
	f.chats.On("GetChat", mock.Anything, chat.ChatID).Return(rebound, nil)
	f.deliverer.On("Deliver", mock.Anything, testUser.UserID, mock.MatchedBy(func(e models.Event) bool {
		return e.Type == models.EventStatusUpdate
	})).Return()

	err := f.svc.RequestOperator(context.Background(), chat.ChatID)

	require.NoError(t, err)
	f.operators.AssertNotCalled(t, "CreateTopic", mock.Anything, mock.Anything, mock.Anything)
	f.operators.AssertNotCalled(t, "NotifyNewRequest", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRequestOperatorRebindFailureFallsBackToFreshTopic(t *testing.T) {
	f := newFixture()
	staleTopic := 88
	chat := closedChat(&staleTopic)
	reopened := activeChat(nil)
	freshTopic := 99

	f.chats.On("GetChat", mock.Anything, chat.ChatID).Return(chat, nil).Once()
	f.users.On("GetUser", mock.Anything, testUser.UserID).Return(testUser, nil)
	f.operators.On("RebindTopic", mock.Anything, staleTopic, testUser, chat).Return(errors.New("topic deleted"))
	f.chats.On("ReopenChat", mock.Anything, chat.ChatID, (*int)(nil)).Return(nil)
	f.chats.On("GetChat", mock.Anything, chat.ChatID).Return(reopened, nil)
	f.operators.On("CreateTopic", mock.Anything, testUser, reopened).Return(freshTopic, nil)
	f.operators.On("SendHistory", mock.Anything, freshTopic, mock.Anything, testUser).Return()
	f.messages.On("ListForChat", mock.Anything, chat.ChatID, (*time.Time)(nil), int64(50)).
		Return([]models.Message{}, nil)
	f.operators.On("NotifyNewRequest", mock.Anything, freshTopic, testUser, mock.Anything, "").Return(nil)
	f.chats.On("SetManagerRequested", mock.Anything, chat.ChatID, freshTopic).Return(nil)
	f.deliverer.On("Deliver", mock.Anything, testUser.UserID, mock.Anything).Return()

	err := f.svc.RequestOperator(context.Background(), chat.ChatID)

	require.NoError(t, err)
	f.chats.AssertCalled(t, "ReopenChat", mock.Anything, chat.ChatID, (*int)(nil))
	f.operators.AssertCalled(t, "CreateTopic", mock.Anything, testUser, reopened)
}

func TestClaimAssignsExactlyOnce(t *testing.T) {
	f := newFixture()
	topicID := 5
	chat := activeChat(&topicID)
	chat.ManagerRequested = true
	f.chats.On("GetChat", mock.Anything, chat.ChatID).Return(chat, nil)
	f.chats.On("AssignManager", mock.Anything, chat.ChatID, int64(100)).Return(nil)
	f.deliverer.On("Deliver", mock.Anything, testUser.UserID, mock.MatchedBy(func(e models.Event) bool {
		return e.Type == models.EventStatusUpdate
	})).Return()

	require.NoError(t, f.svc.Claim(context.Background(), chat.ChatID, 100))
	f.deliverer.AssertExpectations(t)
}

func TestClaimConflictWhenAlreadyAssigned(t *testing.T) {
	f := newFixture()
	topicID := 5
	other := int64(200)
	chat := activeChat(&topicID)
	chat.ManagerRequested = true
	chat.ManagerID = &other
	f.chats.On("GetChat", mock.Anything, chat.ChatID).Return(chat, nil)

	err := f.svc.Claim(context.Background(), chat.ChatID, 100)

	assert.ErrorIs(t, err, repositories.ErrManagerConflict)
	f.chats.AssertNotCalled(t, "AssignManager", mock.Anything, mock.Anything, mock.Anything)
}

func TestClaimRaceSurfacesConflict(t *testing.T) {
	f := newFixture()
	topicID := 5
	chat := activeChat(&topicID)
	chat.ManagerRequested = true
	f.chats.On("GetChat", mock.Anything, chat.ChatID).Return(chat, nil)
	f.chats.On("AssignManager", mock.Anything, chat.ChatID, int64(100)).Return(repositories.ErrManagerConflict)

	err := f.svc.Claim(context.Background(), chat.ChatID, 100)

	assert.ErrorIs(t, err, repositories.ErrManagerConflict)
}

func TestClaimGuards(t *testing.T) {
	f := newFixture()
	closed := closedChat(nil)
	f.chats.On("GetChat", mock.Anything, "closed").Return(closed, nil)
	assert.ErrorIs(t, f.svc.Claim(context.Background(), "closed", 100), session.ErrChatClosed)

	f2 := newFixture()
	quiet := activeChat(nil)
	f2.chats.On("GetChat", mock.Anything, "quiet").Return(quiet, nil)
	assert.ErrorIs(t, f2.svc.Claim(context.Background(), "quiet", 100), session.ErrManagerNotRequested)
}

func TestCloseIsIdempotent(t *testing.T) {
	f := newFixture()
	chat := closedChat(nil)
	f.chats.On("GetChat", mock.Anything, chat.ChatID).Return(chat, nil)

	require.NoError(t, f.svc.Close(context.Background(), chat.ChatID, session.CloseOptions{}))
	f.chats.AssertNotCalled(t, "CloseChat", mock.Anything, mock.Anything, mock.Anything)
	f.blobs.AssertNotCalled(t, "PurgePrefix", mock.Anything, mock.Anything)
}

func TestCloseRaceSkipsSecondPurge(t *testing.T) {
	f := newFixture()
	chat := activeChat(nil)
	f.chats.On("GetChat", mock.Anything, chat.ChatID).Return(chat, nil)
	f.chats.On("CloseChat", mock.Anything, chat.ChatID, mock.Anything).
		Return(repositories.ErrChatClosed)

	err := f.svc.Close(context.Background(), chat.ChatID, session.CloseOptions{})

	require.NoError(t, err)
	f.blobs.AssertNotCalled(t, "PurgePrefix", mock.Anything, mock.Anything)
	f.deliverer.AssertNotCalled(t, "Deliver", mock.Anything, mock.Anything, mock.Anything)
}

func TestClosePurgesFilesAndNotifies(t *testing.T) {
	f := newFixture()
	topicID := 7
	chat := activeChat(&topicID)
	f.chats.On("GetChat", mock.Anything, chat.ChatID).Return(chat, nil)
	f.chats.On("CloseChat", mock.Anything, chat.ChatID, repositories.CloseOptions{KeepTopic: true}).Return(nil)
	f.blobs.On("PurgePrefix", mock.Anything, chat.ChatID+"/").Return(nil)
	f.users.On("GetUser", mock.Anything, testUser.UserID).Return(testUser, nil)
	f.operators.On("AnnounceClosed", mock.Anything, topicID, chat, testUser, "boris").Return()
	f.deliverer.On("Deliver", mock.Anything, testUser.UserID, mock.MatchedBy(func(e models.Event) bool {
		if e.Type != models.EventStatusUpdate {
			return false
		}
		p := e.Payload.(models.StatusUpdatePayload)
		return p.ShowNewChatButton && p.Status == string(models.StatusClosed)
	})).Return()

	err := f.svc.CloseByOperator(context.Background(), chat.ChatID, "boris")

	require.NoError(t, err)
	f.blobs.AssertExpectations(t)
	f.operators.AssertExpectations(t)
}

func TestEchoUploadForwardsToTopic(t *testing.T) {
	f := newFixture()
	topicID := 9
	chat := activeChat(&topicID)
	media := &models.MediaContent{Type: models.MediaPhoto, FileID: chat.ChatID + "/photo.jpg"}
	last := models.Message{ChatID: chat.ChatID, SenderID: "42", Text: "смотрите", Media: media}

	f.messages.On("LastMessage", mock.Anything, chat.ChatID).Return(last, nil)
	f.deliverer.On("Deliver", mock.Anything, testUser.UserID, mock.MatchedBy(func(e models.Event) bool {
		return e.Type == models.EventMessage && e.Payload.(models.MessagePayload).Media != nil
	})).Return()
	f.chats.On("GetChat", mock.Anything, chat.ChatID).Return(chat, nil)
	f.operators.On("PostClientMedia", mock.Anything, topicID, testUser, chat, "смотрите", media).Return(nil)

	next, err := f.svc.ClientMessage(context.Background(), testUser, chat.ChatID, models.ClientMessagePayload{
		File: []byte(`{"uploaded":true}`),
	})

	require.NoError(t, err)
	assert.Equal(t, chat.ChatID, next)
	f.operators.AssertExpectations(t)
}
