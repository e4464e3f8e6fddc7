package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"support-chat-service/internal/models"
	"support-chat-service/internal/repositories"
	"support-chat-service/internal/storage"
)

// MaxUploadSize bounds a single attachment.
const MaxUploadSize = 250 * 1024 * 1024

var allowedMimeTypes = map[string]bool{
	"image/jpeg":         true,
	"image/png":          true,
	"image/gif":          true,
	"image/webp":         true,
	"video/mp4":          true,
	"video/quicktime":    true,
	"video/webm":         true,
	"audio/ogg":          true,
	"audio/mpeg":         true,
	"audio/mp4":          true,
	"application/pdf":    true,
	"application/zip":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"text/plain": true,
}

// MediaHandler serves attachment upload and download for the widget.
type MediaHandler struct {
	chatRepo    repositories.ChatRepository
	messageRepo repositories.MessageRepository
	blobs       storage.BlobStore
}

// NewMediaHandler builds a MediaHandler.
func NewMediaHandler(chatRepo repositories.ChatRepository, messageRepo repositories.MessageRepository, blobs storage.BlobStore) *MediaHandler {
	return &MediaHandler{
		chatRepo:    chatRepo,
		messageRepo: messageRepo,
		blobs:       blobs,
	}
}

// Upload stores a customer attachment under the chat's blob namespace and
// persists the message carrying it. The widget then sends a "file" frame
// over the socket to trigger the echo and forwarding.
func (h *MediaHandler) Upload(c *gin.Context) {
	chatID := c.Query("chat_id")
	senderID := c.Query("sender_id")
	caption := c.Query("message")
	if chatID == "" || senderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chat_id and sender_id are required"})
		return
	}

	chat, err := h.chatRepo.GetChat(c.Request.Context(), chatID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrChatNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "chat not found"})
		return
	}
	if chat.IsClosed() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chat is closed"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if fileHeader.Size > MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file exceeds the 250MB limit"})
		return
	}
	contentType := fileHeader.Header.Get("Content-Type")
	if !allowedMimeTypes[contentType] {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": fmt.Sprintf("unsupported file type %q", contentType)})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read file"})
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, MaxUploadSize+1))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read file"})
		return
	}
	if len(data) > MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file exceeds the 250MB limit"})
		return
	}

	key := fmt.Sprintf("%s/%s_%s", chatID, uuid.NewString()[:8], fileHeader.Filename)
	if err := h.blobs.Put(c.Request.Context(), key, data, contentType); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store file"})
		return
	}

	media := &models.MediaContent{
		Type:     mediaTypeFor(contentType),
		FileID:   key,
		Caption:  caption,
		MimeType: contentType,
		FileSize: int64(len(data)),
	}
	msg := models.Message{
		ChatID:    chatID,
		SenderID:  senderID,
		Text:      caption,
		Media:     media,
		Timestamp: time.Now().UTC(),
	}
	if err := h.messageRepo.Append(c.Request.Context(), msg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not save message"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "uploaded",
		"media": gin.H{
			"type":      media.Type,
			"file_id":   media.FileID,
			"mime_type": media.MimeType,
			"file_size": strconv.FormatInt(media.FileSize, 10),
		},
	})
}

// Download redirects to a short-lived presigned link for a stored blob.
func (h *MediaHandler) Download(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("path"), "/")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing media path"})
		return
	}
	url, err := h.blobs.PresignedURL(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "media not found"})
		return
	}
	c.Redirect(http.StatusFound, url)
}

func mediaTypeFor(contentType string) models.MediaType {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return models.MediaPhoto
	case strings.HasPrefix(contentType, "video/"):
		return models.MediaVideo
	case strings.HasPrefix(contentType, "audio/"):
		return models.MediaVoice
	default:
		return models.MediaDocument
	}
}
