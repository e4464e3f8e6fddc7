package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"support-chat-service/internal/models"
	"support-chat-service/internal/observability"
	"support-chat-service/internal/repositories"
)

// Sessions is the slice of the session state machine driven by the live
// channel.
type Sessions interface {
	// InitSession resolves the customer's current chat (re-entering
	// ai_pending when it was closed) and returns the init event plus the
	// chat id the connection should track.
	InitSession(ctx context.Context, user models.User) (string, models.Event, error)
	// ClientMessage handles one inbound "message" frame and returns the
	// possibly-changed current chat id.
	ClientMessage(ctx context.Context, user models.User, currentChatID string, p models.ClientMessagePayload) (string, error)
	// StartNewChat re-enters ai_pending on the customer's latest chat.
	StartNewChat(ctx context.Context, user models.User) (string, models.Event, error)
}

// Handler owns the customer websocket endpoint.
type Handler struct {
	registry *Registry
	users    repositories.UserRepository
	sessions Sessions
	botToken string
}

// NewHandler constructs a Handler.
func NewHandler(registry *Registry, users repositories.UserRepository, sessions Sessions, botToken string) *Handler {
	return &Handler{registry: registry, users: users, sessions: sessions, botToken: botToken}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle verifies the signed identity payload, upgrades the connection and
// runs the read loop until the client goes away.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("support-chat-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()

	initData := c.Query("initData")
	if initData == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing initData"})
		return
	}

	identity, err := VerifyInitData(initData, h.botToken)
	if err != nil {
		log.Printf("websocket handshake rejected: %v", err)
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid init data"})
		return
	}

	user, err := h.users.FindOrCreateUser(ctx, identity.UserID, identity.UserName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve user"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      user.UserID,
		IP:          c.ClientIP(),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	h.registry.Connect(user.UserID, conn, info)
	defer func() {
		h.registry.Disconnect(user.UserID, conn)
		conn.Close()
	}()

	currentChatID, initEvent, err := h.sessions.InitSession(ctx, user)
	if err != nil {
		log.Printf("init session for user %d: %v", user.UserID, err)
		return
	}
	if err := h.registry.Send(user.UserID, initEvent); err != nil {
		return
	}

	h.readLoop(c.Request.Context(), conn, user, currentChatID)
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, user models.User, currentChatID string) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
			}
			return
		}

		var envelope models.ClientEnvelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			log.Printf("invalid frame from user %d: %v", user.UserID, err)
			continue
		}

		switch envelope.Type {
		case models.ClientTypeMessage:
			var payload models.ClientMessagePayload
			if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
				log.Printf("invalid message payload from user %d: %v", user.UserID, err)
				continue
			}
			next, err := h.sessions.ClientMessage(ctx, user, currentChatID, payload)
			if err != nil {
				log.Printf("client message from user %d: %v", user.UserID, err)
				_ = h.registry.Send(user.UserID, models.NewErrorEvent(models.ErrorPayload{
					Message: "Произошла ошибка на сервере.",
					ChatID:  currentChatID,
				}))
				continue
			}
			currentChatID = next

		case models.ClientTypeStartNewChat:
			next, initEvent, err := h.sessions.StartNewChat(ctx, user)
			if err != nil {
				log.Printf("start new chat for user %d: %v", user.UserID, err)
				continue
			}
			currentChatID = next
			_ = h.registry.Send(user.UserID, initEvent)

		default:
			log.Printf("unknown frame type %q from user %d", envelope.Type, user.UserID)
		}
	}
}
