package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"support-chat-service/internal/mocks"
	"support-chat-service/internal/models"
	"support-chat-service/internal/repositories"
	"support-chat-service/internal/session"
)

func setupChatRouter(chats *mocks.ChatRepositoryMock, sessions *mocks.SessionControlMock) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewChatHandler(chats, sessions)
	r := gin.New()
	r.POST("/chat/:chat_id/feedback", h.Feedback)
	r.POST("/chat/:chat_id/request_manager", h.RequestManager)
	r.POST("/chat/:chat_id/take", h.TakeChat)
	return r
}

func postJSON(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestFeedbackSatisfiedClosesChat(t *testing.T) {
	chats := &mocks.ChatRepositoryMock{}
	sessions := &mocks.SessionControlMock{}
	chats.On("GetChat", mock.Anything, "c1").Return(models.Chat{ChatID: "c1", Status: models.StatusActive}, nil)
	sessions.On("CloseByFeedback", mock.Anything, "c1").Return(nil)

	w := postJSON(setupChatRouter(chats, sessions), "/chat/c1/feedback", `{"action":"satisfied"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"closed"`)
	sessions.AssertExpectations(t)
}

func TestFeedbackAlreadyClosed(t *testing.T) {
	chats := &mocks.ChatRepositoryMock{}
	sessions := &mocks.SessionControlMock{}
	closedAt := time.Now().UTC()
	chats.On("GetChat", mock.Anything, "c1").Return(models.Chat{
		ChatID: "c1", Status: models.StatusClosed, ClosedAt: &closedAt,
	}, nil)

	w := postJSON(setupChatRouter(chats, sessions), "/chat/c1/feedback", `{"action":"satisfied"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "already_closed")
	sessions.AssertNotCalled(t, "CloseByFeedback", mock.Anything, mock.Anything)
}

func TestFeedbackOtherActionIsAcknowledged(t *testing.T) {
	chats := &mocks.ChatRepositoryMock{}
	sessions := &mocks.SessionControlMock{}
	chats.On("GetChat", mock.Anything, "c1").Return(models.Chat{ChatID: "c1", Status: models.StatusActive}, nil)

	w := postJSON(setupChatRouter(chats, sessions), "/chat/c1/feedback", `{"action":"need_more_help"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	sessions.AssertNotCalled(t, "CloseByFeedback", mock.Anything, mock.Anything)
}

func TestFeedbackUnknownChat(t *testing.T) {
	chats := &mocks.ChatRepositoryMock{}
	sessions := &mocks.SessionControlMock{}
	chats.On("GetChat", mock.Anything, "nope").Return(nil, repositories.ErrChatNotFound)

	w := postJSON(setupChatRouter(chats, sessions), "/chat/nope/feedback", `{"action":"satisfied"}`)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRequestManager(t *testing.T) {
	chats := &mocks.ChatRepositoryMock{}
	sessions := &mocks.SessionControlMock{}
	sessions.On("RequestOperator", mock.Anything, "c1").Return(nil)

	w := postJSON(setupChatRouter(chats, sessions), "/chat/c1/request_manager", `{}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "manager_requested")
}

func TestRequestManagerUnknownChat(t *testing.T) {
	chats := &mocks.ChatRepositoryMock{}
	sessions := &mocks.SessionControlMock{}
	sessions.On("RequestOperator", mock.Anything, "nope").Return(repositories.ErrChatNotFound)

	w := postJSON(setupChatRouter(chats, sessions), "/chat/nope/request_manager", `{}`)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTakeChat(t *testing.T) {
	chats := &mocks.ChatRepositoryMock{}
	sessions := &mocks.SessionControlMock{}
	sessions.On("Claim", mock.Anything, "c1", int64(100)).Return(nil)

	w := postJSON(setupChatRouter(chats, sessions), "/chat/c1/take", `{"manager_id":100}`)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTakeChatConflict(t *testing.T) {
	chats := &mocks.ChatRepositoryMock{}
	sessions := &mocks.SessionControlMock{}
	sessions.On("Claim", mock.Anything, "c1", int64(100)).Return(repositories.ErrManagerConflict)

	w := postJSON(setupChatRouter(chats, sessions), "/chat/c1/take", `{"manager_id":100}`)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestTakeChatClosed(t *testing.T) {
	chats := &mocks.ChatRepositoryMock{}
	sessions := &mocks.SessionControlMock{}
	sessions.On("Claim", mock.Anything, "c1", int64(100)).Return(session.ErrChatClosed)

	w := postJSON(setupChatRouter(chats, sessions), "/chat/c1/take", `{"manager_id":100}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTakeChatMissingBody(t *testing.T) {
	chats := &mocks.ChatRepositoryMock{}
	sessions := &mocks.SessionControlMock{}

	w := postJSON(setupChatRouter(chats, sessions), "/chat/c1/take", `{}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	sessions.AssertNotCalled(t, "Claim", mock.Anything, mock.Anything, mock.Anything)
}
