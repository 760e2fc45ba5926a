package service

import "errors"

// Виды ошибок сервиса. HTTP-слой сопоставляет их со статусами 400/404/403; всё остальное: 500.
var (
	ErrInvalid   = errors.New("invalid request")
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
)

// Error: ошибка с видом и сообщением для клиента. errors.Is(err, ErrForbidden) работает через Unwrap.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }
func (e *Error) Unwrap() error { return e.Kind }

func invalid(msg string) error   { return &Error{Kind: ErrInvalid, Msg: msg} }
func notFound(msg string) error  { return &Error{Kind: ErrNotFound, Msg: msg} }
func forbidden(msg string) error { return &Error{Kind: ErrForbidden, Msg: msg} }

// Сообщения, которые видит клиент.
const (
	msgParticipantRequired = "Participant ID is required"
	msgChatWithYourself    = "Cannot create chat with yourself"
	msgParticipantNotFound = "Participant not found"
	msgChatNotFound        = "Chat not found"
	msgAccessDenied        = "Access denied to this chat"
	msgChatAndContent      = "Chat ID and content are required"
	msgContentRequired     = "Content is required"
	msgContentTooLong      = "Content cannot exceed 1000 characters"
	msgInvalidMessageType  = "Message type must be text, image or file"
	msgReplyNotFound       = "Reply target not found in this chat"
	msgMessageNotFound     = "Message not found"
	msgEditOwnOnly         = "You can only edit your own messages"
	msgDeleteOwnOnly       = "You can only delete your own messages"
)
