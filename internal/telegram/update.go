package telegram

import (
	"strings"
	"unicode"

	"github.com/go-telegram/bot/models"

	"github.com/CardosoB8/Bot-telegram2025/internal/transport"
)

// toEvent classifies an update. Updates the instances do not act on
// (edits, channel posts, service messages) report false.
func toEvent(u *models.Update) (transport.Event, bool) {
	if u == nil {
		return transport.Event{}, false
	}

	if cq := u.CallbackQuery; cq != nil {
		ev := transport.Event{
			Kind:         transport.EventCallback,
			CallbackID:   cq.ID,
			CallbackData: cq.Data,
			From:         toUser(&cq.From),
		}
		switch {
		case cq.Message.Message != nil:
			m := cq.Message.Message
			ev.ChatID = m.Chat.ID
			ev.ChatTitle = m.Chat.Title
			ev.ChatUsername = m.Chat.Username
			ev.MessageID = m.ID
		case cq.Message.InaccessibleMessage != nil:
			ev.ChatID = cq.Message.InaccessibleMessage.Chat.ID
			ev.MessageID = cq.Message.InaccessibleMessage.MessageID
		}
		return ev, true
	}

	m := u.Message
	if m == nil {
		return transport.Event{}, false
	}

	ev := transport.Event{
		ChatID:       m.Chat.ID,
		ChatTitle:    m.Chat.Title,
		ChatUsername: m.Chat.Username,
		MessageID:    m.ID,
		Text:         m.Text,
	}
	if m.From != nil {
		ev.From = toUser(m.From)
	}

	if len(m.NewChatMembers) > 0 {
		ev.Kind = transport.EventMemberJoined
		for i := range m.NewChatMembers {
			ev.NewMembers = append(ev.NewMembers, toUser(&m.NewChatMembers[i]))
		}
		return ev, true
	}

	if name, args, ok := parseCommand(m.Text); ok {
		ev.Kind = transport.EventCommand
		ev.Command = name
		ev.Args = args
		if r := m.ReplyToMessage; r != nil && r.From != nil {
			author := toUser(r.From)
			ev.ReplyTo = &author
		}
		return ev, true
	}

	if strings.TrimSpace(m.Text) == "" {
		return transport.Event{}, false
	}
	ev.Kind = transport.EventText
	return ev, true
}

// parseCommand splits "/name@bot args" into its name and arguments.
func parseCommand(text string) (name, args string, ok bool) {
	if !strings.HasPrefix(text, "/") || len(text) < 2 {
		return "", "", false
	}

	head, rest := text[1:], ""
	if i := strings.IndexFunc(head, unicode.IsSpace); i >= 0 {
		head, rest = head[:i], head[i:]
	}
	head, _, _ = strings.Cut(head, "@")
	if head == "" {
		return "", "", false
	}
	return head, strings.TrimSpace(rest), true
}

func toUser(u *models.User) transport.User {
	return transport.User{ID: u.ID, FirstName: u.FirstName, Username: u.Username}
}
