package handlers

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"support-chat-service/internal/mocks"
	"support-chat-service/internal/models"
)

func setupMediaRouter(chats *mocks.ChatRepositoryMock, messages *mocks.MessageRepositoryMock, blobs *mocks.BlobStoreMock) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewMediaHandler(chats, messages, blobs)
	r := gin.New()
	r.POST("/upload", h.Upload)
	r.GET("/api/media/*path", h.Download)
	return r
}

func multipartUpload(t *testing.T, filename, contentType string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(payload)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestUploadStoresBlobAndMessage(t *testing.T) {
	chats := &mocks.ChatRepositoryMock{}
	messages := &mocks.MessageRepositoryMock{}
	blobs := &mocks.BlobStoreMock{}
	chats.On("GetChat", mock.Anything, "c1").Return(models.Chat{ChatID: "c1", Status: models.StatusActive}, nil)
	blobs.On("Put", mock.Anything, mock.MatchedBy(func(key string) bool {
		return len(key) > len("c1/") && key[:3] == "c1/"
	}), []byte("png bytes"), "image/png").Return(nil)
	messages.On("Append", mock.Anything, mock.MatchedBy(func(m models.Message) bool {
		return m.ChatID == "c1" && m.SenderID == "42" && m.Media != nil && m.Media.Type == models.MediaPhoto
	})).Return(nil)

	body, contentType := multipartUpload(t, "shot.png", "image/png", []byte("png bytes"))
	req := httptest.NewRequest(http.MethodPost, "/upload?chat_id=c1&sender_id=42&message=вот", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	setupMediaRouter(chats, messages, blobs).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	blobs.AssertExpectations(t)
	messages.AssertExpectations(t)
}

func TestUploadRejectsUnknownMime(t *testing.T) {
	chats := &mocks.ChatRepositoryMock{}
	messages := &mocks.MessageRepositoryMock{}
	blobs := &mocks.BlobStoreMock{}
	chats.On("GetChat", mock.Anything, "c1").Return(models.Chat{ChatID: "c1", Status: models.StatusActive}, nil)

	body, contentType := multipartUpload(t, "evil.exe", "application/x-msdownload", []byte("MZ"))
	req := httptest.NewRequest(http.MethodPost, "/upload?chat_id=c1&sender_id=42", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	setupMediaRouter(chats, messages, blobs).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	blobs.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUploadRejectsClosedChat(t *testing.T) {
	chats := &mocks.ChatRepositoryMock{}
	messages := &mocks.MessageRepositoryMock{}
	blobs := &mocks.BlobStoreMock{}
	chats.On("GetChat", mock.Anything, "c1").Return(models.Chat{ChatID: "c1", Status: models.StatusClosed}, nil)

	body, contentType := multipartUpload(t, "shot.png", "image/png", []byte("png"))
	req := httptest.NewRequest(http.MethodPost, "/upload?chat_id=c1&sender_id=42", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	setupMediaRouter(chats, messages, blobs).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadRequiresIdentifiers(t *testing.T) {
	chats := &mocks.ChatRepositoryMock{}
	messages := &mocks.MessageRepositoryMock{}
	blobs := &mocks.BlobStoreMock{}

	body, contentType := multipartUpload(t, "shot.png", "image/png", []byte("png"))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	setupMediaRouter(chats, messages, blobs).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDownloadRedirectsToPresignedURL(t *testing.T) {
	chats := &mocks.ChatRepositoryMock{}
	messages := &mocks.MessageRepositoryMock{}
	blobs := &mocks.BlobStoreMock{}
	blobs.On("PresignedURL", mock.Anything, "c1/img.jpg").Return("https://blobs/img.jpg", nil)

	req := httptest.NewRequest(http.MethodGet, "/api/media/c1/img.jpg", nil)
	w := httptest.NewRecorder()
	setupMediaRouter(chats, messages, blobs).ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://blobs/img.jpg", w.Header().Get("Location"))
}

func TestMediaTypeFor(t *testing.T) {
	assert.Equal(t, models.MediaPhoto, mediaTypeFor("image/jpeg"))
	assert.Equal(t, models.MediaVideo, mediaTypeFor("video/mp4"))
	assert.Equal(t, models.MediaVoice, mediaTypeFor("audio/ogg"))
	assert.Equal(t, models.MediaDocument, mediaTypeFor("application/pdf"))
}
