package router

import (
	"context"
	"errors"
	"fmt"
	"log"
	"mime"
	"strconv"
	"time"

	"support-chat-service/internal/models"
	"support-chat-service/internal/observability"
	"support-chat-service/internal/repositories"
	"support-chat-service/internal/storage"
	"support-chat-service/internal/telegram"
	"support-chat-service/internal/ws"
)

// SessionControl is the slice of the session service the router needs for
// the first-message auto-claim.
type SessionControl interface {
	Claim(ctx context.Context, chatID string, managerID int64) error
}

// Router moves messages between the two customer channels and the operator
// group. Outbound to the customer it prefers the live websocket and falls
// back to a Telegram direct message; inbound from operators it re-hosts
// attachments and persists before delivery.
type Router struct {
	registry  *ws.Registry
	transport telegram.Transport
	chats     repositories.ChatRepository
	messages  repositories.MessageRepository
	managers  repositories.ManagerRepository
	blobs     storage.BlobStore
	sessions  SessionControl
}

func New(
	registry *ws.Registry,
	transport telegram.Transport,
	chats repositories.ChatRepository,
	messages repositories.MessageRepository,
	managers repositories.ManagerRepository,
	blobs storage.BlobStore,
	sessions SessionControl,
) *Router {
	return &Router{
		registry:  registry,
		transport: transport,
		chats:     chats,
		messages:  messages,
		managers:  managers,
		blobs:     blobs,
		sessions:  sessions,
	}
}

// Deliver pushes an event to the customer: websocket first, Telegram direct
// message when there is no live connection. Delivery failures are logged,
// never propagated into chat state.
func (r *Router) Deliver(ctx context.Context, userID int64, event models.Event) {
	err := r.registry.Send(userID, event)
	if err == nil {
		observability.IncChannelDelivery("websocket")
		return
	}
	if !errors.Is(err, ws.ErrNotConnected) {
		log.Printf("router: websocket send to %d: %v", userID, err)
	}

	if err := r.deliverDirect(ctx, userID, event); err != nil {
		log.Printf("router: direct delivery to %d: %v", userID, err)
		return
	}
	observability.IncChannelDelivery("telegram_dm")
}

func (r *Router) deliverDirect(ctx context.Context, userID int64, event models.Event) error {
	switch p := event.Payload.(type) {
	case models.MessagePayload:
		if p.Media != nil {
			url, err := r.blobs.PresignedURL(ctx, p.Media.FileID)
			if err != nil {
				return fmt.Errorf("presign %s: %w", p.Media.FileID, err)
			}
			caption := "Сообщение от оператора"
			if p.Text != "" {
				caption += "\n" + p.Text
			}
			return r.transport.SendDirectMedia(ctx, userID, telegram.OutboundMedia{
				Kind:    p.Media.Type,
				URL:     url,
				Caption: caption,
			})
		}
		return r.transport.SendDirectText(ctx, userID, "<b>Сообщение от оператора:</b>\n"+p.Text)
	case models.AIResponsePayload:
		return r.transport.SendDirectText(ctx, userID, p.Text)
	case models.StatusUpdatePayload:
		return r.transport.SendDirectText(ctx, userID, p.Message)
	case models.ErrorPayload:
		return r.transport.SendDirectText(ctx, userID, p.Message)
	default:
		// init events only make sense on a live connection
		return nil
	}
}

// RouteOperatorMessage handles a manager's message posted inside a bound
// forum thread: verifies the sender, claims the chat on first contact,
// re-hosts any attachment in blob storage and forwards to the customer.
func (r *Router) RouteOperatorMessage(ctx context.Context, msg telegram.InboundMessage) error {
	chat, err := r.chats.GetChatByTopic(ctx, msg.TopicID)
	if errors.Is(err, repositories.ErrChatNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve chat for topic %d: %w", msg.TopicID, err)
	}
	if chat.IsClosed() {
		log.Printf("router: dropping operator message into closed chat %s", chat.ChatID)
		return nil
	}

	isManager, err := r.managers.IsManager(ctx, msg.SenderID)
	if err != nil {
		return fmt.Errorf("manager lookup for %d: %w", msg.SenderID, err)
	}
	if !isManager {
		return nil
	}

	if chat.ManagerID == nil {
		if err := r.sessions.Claim(ctx, chat.ChatID, msg.SenderID); err != nil &&
			!errors.Is(err, repositories.ErrManagerConflict) {
			log.Printf("router: auto-claim chat %s by %d: %v", chat.ChatID, msg.SenderID, err)
		}
	}

	out := models.Message{
		ChatID:    chat.ChatID,
		SenderID:  strconv.FormatInt(msg.SenderID, 10),
		Text:      msg.Text,
		Timestamp: time.Now().UTC(),
	}
	if msg.Media != nil {
		media, err := r.rehostMedia(ctx, chat.ChatID, msg.Media)
		if err != nil {
			return fmt.Errorf("rehost attachment for chat %s: %w", chat.ChatID, err)
		}
		out.Media = media
		out.Text = msg.Media.Caption
	}

	if err := r.messages.Append(ctx, out); err != nil {
		return fmt.Errorf("persist operator message: %w", err)
	}

	r.Deliver(ctx, chat.UserID, models.NewMessageEvent(models.MessagePayload{
		ChatID:     chat.ChatID,
		SenderID:   out.SenderID,
		SenderType: "operator",
		Text:       out.Text,
		Timestamp:  out.Timestamp,
		Media:      out.Media,
	}))
	return nil
}

// rehostMedia pulls the file off the Bot API and stores it under the chat's
// blob namespace, so the widget serves it through the media endpoint
// instead of leaking Telegram file links.
func (r *Router) rehostMedia(ctx context.Context, chatID string, in *telegram.InboundMedia) (*models.MediaContent, error) {
	data, err := r.transport.DownloadFile(ctx, in.FileID)
	if err != nil {
		return nil, err
	}
	key := chatID + "/" + blobName(in)
	if err := r.blobs.Put(ctx, key, data, in.MimeType); err != nil {
		return nil, err
	}
	return &models.MediaContent{
		Type:     in.Kind,
		FileID:   key,
		Caption:  in.Caption,
		MimeType: in.MimeType,
		FileSize: int64(len(data)),
		Duration: in.Duration,
		Width:    in.Width,
		Height:   in.Height,
	}, nil
}

func blobName(in *telegram.InboundMedia) string {
	if in.Name != "" {
		return in.Name
	}
	ext := ".bin"
	if exts, err := mime.ExtensionsByType(in.MimeType); err == nil && len(exts) > 0 {
		ext = exts[0]
	}
	return fmt.Sprintf("%s_%d%s", in.Kind, time.Now().UnixNano(), ext)
}
