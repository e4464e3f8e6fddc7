package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"support-chat-service/internal/repositories"
	"support-chat-service/internal/session"
)

// ChatControl is the slice of the session service the HTTP surface drives.
type ChatControl interface {
	RequestOperator(ctx context.Context, chatID string) error
	Claim(ctx context.Context, chatID string, managerID int64) error
	CloseByFeedback(ctx context.Context, chatID string) error
}

// ChatHandler serves the chat control endpoints used by the widget.
type ChatHandler struct {
	chatRepo repositories.ChatRepository
	sessions ChatControl
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(chatRepo repositories.ChatRepository, sessions ChatControl) *ChatHandler {
	return &ChatHandler{
		chatRepo: chatRepo,
		sessions: sessions,
	}
}

// Feedback handles the widget's resolution prompt. "satisfied" closes the
// chat; closing an already closed chat reports that instead of failing.
func (h *ChatHandler) Feedback(c *gin.Context) {
	chatID := c.Param("chat_id")

	var req struct {
		Action string `json:"action" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
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

	if req.Action != "satisfied" {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	if chat.IsClosed() {
		c.JSON(http.StatusOK, gin.H{"status": "already_closed"})
		return
	}
	if err := h.sessions.CloseByFeedback(c.Request.Context(), chatID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not close chat"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "closed"})
}

// RequestManager escalates the chat to the operator group.
func (h *ChatHandler) RequestManager(c *gin.Context) {
	chatID := c.Param("chat_id")

	err := h.sessions.RequestOperator(c.Request.Context(), chatID)
	switch {
	case errors.Is(err, repositories.ErrChatNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not request manager"})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "manager_requested"})
	}
}

// TakeChat assigns the chat to a manager over HTTP, mirroring the group's
// take-chat button.
func (h *ChatHandler) TakeChat(c *gin.Context) {
	chatID := c.Param("chat_id")

	var req struct {
		ManagerID int64 `json:"manager_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.sessions.Claim(c.Request.Context(), chatID, req.ManagerID)
	switch {
	case errors.Is(err, repositories.ErrChatNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
	case errors.Is(err, repositories.ErrManagerConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "chat already taken"})
	case errors.Is(err, session.ErrChatClosed):
		c.JSON(http.StatusBadRequest, gin.H{"error": "chat is closed"})
	case errors.Is(err, session.ErrManagerNotRequested):
		c.JSON(http.StatusBadRequest, gin.H{"error": "manager was not requested"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not take chat"})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "taken", "chat_id": chatID})
	}
}
