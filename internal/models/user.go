package models

import "time"

// User is a customer identity created on first contact. Users are never
// hard-deleted; IsActive is flipped instead.
type User struct {
	UserID     int64      `bson:"user_id" json:"user_id"`
	UserName   string     `bson:"user_name" json:"user_name"`
	Language   string     `bson:"language" json:"language"`
	Currency   string     `bson:"currency" json:"currency"`
	IsActive   bool       `bson:"is_active" json:"is_active"`
	Phone      string     `bson:"phone,omitempty" json:"phone,omitempty"`
	Source     string     `bson:"source,omitempty" json:"source,omitempty"`
	CreatedAt  time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `bson:"updated_at" json:"updated_at"`
	DisabledAt *time.Time `bson:"disabled_at,omitempty" json:"disabled_at,omitempty"`
}

// Manager is a member of the operator set. Membership is the only role.
type Manager struct {
	UserID int64  `bson:"user_id" json:"user_id"`
	Name   string `bson:"name,omitempty" json:"name,omitempty"`
}
