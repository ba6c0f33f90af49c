package server

import (
	"net/http"
	"time"

	"github.com/npezzotti/go-alumnichat/internal/messaging"
	"github.com/npezzotti/go-alumnichat/internal/types"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ClientMessage struct {
	BaseMessage
	Publish *Publish `json:"publish,omitempty"`
	Join    *Join    `json:"join,omitempty"`
	Leave   *Leave   `json:"leave,omitempty"`
}

type Publish struct {
	ConversationId string `json:"conversation_id"`
	Content        string `json:"content"`
}

type Join struct {
	ConversationId string `json:"conversation_id"`
}

type Leave struct {
	ConversationId string `json:"conversation_id"`
}

type ServerMessage struct {
	BaseMessage
	Response     *Response      `json:"response,omitempty"`
	Message      *types.Message `json:"message,omitempty"`
	Notification *Notification  `json:"notification,omitempty"`
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
	Data         any    `json:"data,omitempty"`
}

type Notification struct {
	MessageDeleted      *MessageDeleted      `json:"message_deleted,omitempty"`
	ConversationDeleted *ConversationDeleted `json:"conversation_deleted,omitempty"`
}

type MessageDeleted struct {
	ConversationId string `json:"conversation_id"`
	MessageId      int64  `json:"message_id"`
}

type ConversationDeleted struct {
	ConversationId string `json:"conversation_id"`
}

// EventMessage converts a fan-out event into its wire form. It returns nil
// for unknown kinds.
func EventMessage(ev messaging.Event) *ServerMessage {
	msg := &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
	}

	switch ev.Kind {
	case messaging.EventMessageCreated:
		if ev.Message == nil {
			return nil
		}
		msg.Message = ev.Message
	case messaging.EventMessageDeleted:
		msg.Notification = &Notification{
			MessageDeleted: &MessageDeleted{
				ConversationId: ev.ConversationId,
				MessageId:      ev.MessageId,
			},
		}
	case messaging.EventConversationDeleted:
		msg.Notification = &Notification{
			ConversationDeleted: &ConversationDeleted{
				ConversationId: ev.ConversationId,
			},
		}
	default:
		return nil
	}

	return msg
}

func NoErrOK(id int, data any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusOK,
			Data:         data,
		},
	}
}

func NoErrAccepted(id int, data any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusAccepted,
			Data:         data,
		},
	}
}

// ErrResponse builds the reply for a failed request from a service error.
func ErrResponse(id int, err error) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: messaging.HTTPStatus(err),
			Error:        messaging.PublicMessage(err),
		},
	}
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusServiceUnavailable,
			Error:        "service unavailable",
		},
	}
}

func ErrInvalidMessage(id int) *ServerMessage {
	msg := &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        "invalid message format",
		},
	}

	if id > 0 {
		msg.Id = id
	}
	return msg
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
