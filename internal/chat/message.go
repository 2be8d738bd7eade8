package chat

import "time"

type MessageKind int

const (
	MessageUser MessageKind = iota
	MessageSystem
	MessageError
)

func (k MessageKind) String() string {
	switch k {
	case MessageSystem:
		return "system"
	case MessageError:
		return "error"
	default:
		return "user"
	}
}

// Message is one chat event. Values are built through the constructors below
// and never mutated afterwards; Sender is set only for user messages. The
// timestamp is informational and plays no part in delivery ordering.
type Message struct {
	Kind      MessageKind
	Sender    string
	Content   string
	CreatedAt time.Time
}

// UserMessage builds a message attributed to sender.
func UserMessage(sender, content string) Message {
	return Message{Kind: MessageUser, Sender: sender, Content: content, CreatedAt: time.Now()}
}

// SystemMessage builds a server-originated notice (joins, departures).
func SystemMessage(content string) Message {
	return Message{Kind: MessageSystem, Content: content, CreatedAt: time.Now()}
}

// ErrorMessage builds a server-originated error notice.
func ErrorMessage(content string) Message {
	return Message{Kind: MessageError, Content: content, CreatedAt: time.Now()}
}

// Render produces the wire line for the message.
func (m Message) Render() string {
	switch m.Kind {
	case MessageSystem:
		return "[SYSTEM] " + m.Content
	case MessageError:
		return "[ERROR] " + m.Content
	default:
		return "[" + m.Sender + "] " + m.Content
	}
}
