package telegram

import (
	"testing"

	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CardosoB8/Bot-telegram2025/internal/transport"
)

func TestParseCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text     string
		wantName string
		wantArgs string
		wantOK   bool
	}{
		{text: "/start", wantName: "start", wantOK: true},
		{text: "/start@PromoBot", wantName: "start", wantOK: true},
		{text: "/buy 10 units", wantName: "buy", wantArgs: "10 units", wantOK: true},
		{text: "/help\nmore", wantName: "help", wantArgs: "more", wantOK: true},
		{text: "/", wantOK: false},
		{text: "/@bot", wantOK: false},
		{text: "hello /start", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			t.Parallel()

			name, args, ok := parseCommand(tt.text)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestToEvent(t *testing.T) {
	t.Parallel()

	t.Run("command", func(t *testing.T) {
		t.Parallel()

		ev, ok := toEvent(&models.Update{Message: &models.Message{
			ID:   5,
			Text: "/start now",
			Chat: models.Chat{ID: -100, Title: "Grupo"},
			From: &models.User{ID: 7, FirstName: "Ana"},
		}})
		require.True(t, ok)
		assert.Equal(t, transport.EventCommand, ev.Kind)
		assert.Equal(t, "start", ev.Command)
		assert.Equal(t, "now", ev.Args)
		assert.Equal(t, int64(-100), ev.ChatID)
		assert.Equal(t, "Grupo", ev.ChatTitle)
		assert.Equal(t, 5, ev.MessageID)
		assert.Equal(t, transport.User{ID: 7, FirstName: "Ana"}, ev.From)
		assert.Nil(t, ev.ReplyTo)
	})

	t.Run("command replying to a member", func(t *testing.T) {
		t.Parallel()

		ev, ok := toEvent(&models.Update{Message: &models.Message{
			Text:           "/ban",
			Chat:           models.Chat{ID: -100},
			From:           &models.User{ID: 7},
			ReplyToMessage: &models.Message{From: &models.User{ID: 99, FirstName: "Zé", Username: "ze"}},
		}})
		require.True(t, ok)
		require.NotNil(t, ev.ReplyTo)
		assert.Equal(t, transport.User{ID: 99, FirstName: "Zé", Username: "ze"}, *ev.ReplyTo)
	})

	t.Run("text", func(t *testing.T) {
		t.Parallel()

		ev, ok := toEvent(&models.Update{Message: &models.Message{Text: "qual o preço?", Chat: models.Chat{ID: 1}}})
		require.True(t, ok)
		assert.Equal(t, transport.EventText, ev.Kind)
	})

	t.Run("new members", func(t *testing.T) {
		t.Parallel()

		ev, ok := toEvent(&models.Update{Message: &models.Message{
			Chat:           models.Chat{ID: -5},
			NewChatMembers: []models.User{{ID: 1, FirstName: "A"}, {ID: 2, Username: "b"}},
		}})
		require.True(t, ok)
		assert.Equal(t, transport.EventMemberJoined, ev.Kind)
		assert.Len(t, ev.NewMembers, 2)
	})

	t.Run("callback", func(t *testing.T) {
		t.Parallel()

		ev, ok := toEvent(&models.Update{CallbackQuery: &models.CallbackQuery{
			ID:   "cb1",
			Data: "more",
			From: models.User{ID: 9},
			Message: models.MaybeInaccessibleMessage{
				Message: &models.Message{ID: 11, Chat: models.Chat{ID: 3}},
			},
		}})
		require.True(t, ok)
		assert.Equal(t, transport.EventCallback, ev.Kind)
		assert.Equal(t, "cb1", ev.CallbackID)
		assert.Equal(t, "more", ev.CallbackData)
		assert.Equal(t, int64(3), ev.ChatID)
		assert.Equal(t, 11, ev.MessageID)
	})

	t.Run("ignored", func(t *testing.T) {
		t.Parallel()

		_, ok := toEvent(&models.Update{Message: &models.Message{Chat: models.Chat{ID: 1}}})
		assert.False(t, ok)
		_, ok = toEvent(&models.Update{})
		assert.False(t, ok)
	})
}

func TestChatID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(-1001234), chatID("-1001234"))
	assert.Equal(t, "@canal", chatID("@canal"))
}

func TestReplyMarkup(t *testing.T) {
	t.Parallel()

	assert.Nil(t, replyMarkup(nil))

	markup := replyMarkup(transport.Keyboard{{{Text: "Site", URL: "https://a"}}, {{Text: "Mais", CallbackData: "more"}}})
	kb, ok := markup.(*models.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, kb.InlineKeyboard, 2)
	assert.Equal(t, "https://a", kb.InlineKeyboard[0][0].URL)
	assert.Equal(t, "more", kb.InlineKeyboard[1][0].CallbackData)
}
