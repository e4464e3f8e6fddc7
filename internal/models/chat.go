package models

import "time"

// ChatStatus is the lifecycle state of a customer conversation.
type ChatStatus string

const (
	// StatusAIPending is the initial state: the answer generator replies.
	StatusAIPending ChatStatus = "ai_pending"
	// StatusActive means an operator was requested or is handling the chat.
	StatusActive ChatStatus = "active"
	// StatusClosed is terminal but re-enterable via reopen / re-AI.
	StatusClosed ChatStatus = "closed"
)

// Chat is one customer conversation session. Its id is independent from the
// operator-group discussion thread it may be bound to; the thread binding
// (TopicID) survives reopen cycles unless explicitly cleared on close.
type Chat struct {
	ChatID           string     `bson:"chat_id" json:"chat_id"`
	UserID           int64      `bson:"user_id" json:"user_id"`
	ManagerID        *int64     `bson:"manager_id,omitempty" json:"manager_id,omitempty"`
	Status           ChatStatus `bson:"status" json:"status"`
	TopicID          *int       `bson:"topic_id,omitempty" json:"topic_id,omitempty"`
	ManagerRequested bool       `bson:"manager_requested" json:"manager_requested"`
	CreatedAt        time.Time  `bson:"created_at" json:"created_at"`
	ClosedAt         *time.Time `bson:"closed_at,omitempty" json:"closed_at,omitempty"`
	ReopenedAt       *time.Time `bson:"reopened_at,omitempty" json:"reopened_at,omitempty"`
}

// IsClosed reports whether the chat is in the terminal state.
func (c *Chat) IsClosed() bool {
	return c.Status == StatusClosed
}
