package types

import (
	"time"
)

const (
	RoleStudent = "student"
	RoleAlumni  = "alumni"
	RoleAdmin   = "admin"
)

// User is the public identity of a participant. Email is only filled in
// for moderation views.
type User struct {
	Id    string `json:"id"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
}

type Conversation struct {
	Id             string    `json:"id"`
	Participants   []User    `json:"participants"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

type ConversationSummary struct {
	Conversation
	LastMessageText string     `json:"last_message_text,omitempty"`
	LastMessageAt   *time.Time `json:"last_message_at,omitempty"`
	UnreadCount     int        `json:"unread_count"`
}

type Message struct {
	Id             int64     `json:"id"`
	ConversationId string    `json:"conversation_id"`
	SenderId       string    `json:"sender_id"`
	Sender         *User     `json:"sender,omitempty"`
	Content        string    `json:"content"`
	Read           bool      `json:"read"`
	CreatedAt      time.Time `json:"created_at"`
}

type Stats struct {
	Conversations int `json:"conversations"`
	Messages      int `json:"messages"`
}
