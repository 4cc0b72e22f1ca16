package router

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CardosoB8/Bot-telegram2025/internal/botconfig"
	"github.com/CardosoB8/Bot-telegram2025/internal/transport"
	"github.com/CardosoB8/Bot-telegram2025/internal/transport/transporttest"
)

var fixedNow = time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)

type counters struct {
	commands atomic.Int64
	messages atomic.Int64
}

func (c *counters) CommandUsed() { c.commands.Add(1) }
func (c *counters) MessageSent() { c.messages.Add(1) }

func testConfig() *botconfig.BotConfiguration {
	return &botconfig.BotConfiguration{
		Bot: botconfig.Identity{Name: "Promo", Token: "t", Admins: []string{"42", "@Chefe"}, Timezone: "UTC"},
		Commands: map[string]botconfig.CommandSpec{
			"/start": {Message: "Olá {user_name}, eu sou {bot_name}", Buttons: botconfig.ButtonLayout{{{Text: "Site", URL: "https://a"}}, {{Text: "Mais", Callback: "more"}}}},
			"photo":  {Message: "legenda {user_id}", Image: "https://img/1.png"},
			"vote":   {Message: "ignorado", Poll: &botconfig.Poll{Question: "Vamos votar?", Options: []string{"A", "B"}}},
			"secret": {Message: "segredo", OnlyAdmins: true},
			"callback:more": {Message: "mais info"},
		},
		Callbacks: map[string]botconfig.CommandSpec{
			"edit":   {Message: "editado", Action: botconfig.ActionEdit},
			"remove": {Action: botconfig.ActionDelete},
		},
		AutoResponses: botconfig.TriggerList{
			{Match: "preço", Response: "Veja a tabela"},
			{Match: "pre", Response: "nunca"},
			{Match: "Oi", Response: "Olá!"},
		},
		Groups: map[string]botconfig.GroupConfig{
			"Promo":      {WelcomeMessage: "Bem-vindo {user_name} ao {chat_title}"},
			"@promo_mod": {ModCommands: map[string]string{"/ban": "Banir", "/mute": "Silenciar", "warn": "Avisar", "/kick": "?"}},
		},
	}
}

type fixture struct {
	table *Table
	conn  *transporttest.Conn
	stats *counters
	deps  Deps
}

func newFixture(t *testing.T, cfg *botconfig.BotConfiguration) fixture {
	t.Helper()
	conn := transporttest.NewConn()
	stats := &counters{}
	return fixture{
		table: NewTable(cfg, time.UTC),
		conn:  conn,
		stats: stats,
		deps:  Deps{Conn: conn, Clock: clockwork.NewFakeClockAt(fixedNow), Stats: stats},
	}
}

func command(name string, from transport.User) transport.Event {
	return transport.Event{Kind: transport.EventCommand, ChatID: -100, ChatTitle: "Grupo Promo", MessageID: 9, From: from, Command: name}
}

func TestTableNormalization(t *testing.T) {
	t.Parallel()

	table := NewTable(testConfig(), time.UTC)
	assert.Equal(t, []string{"photo", "secret", "start", "vote"}, table.Commands())
	assert.Equal(t, []string{"edit", "more", "remove"}, table.Callbacks())

	_, ok := table.Command("/start")
	assert.True(t, ok)
	_, ok = table.Command("start")
	assert.True(t, ok)
	_, ok = table.Command("Start")
	assert.False(t, ok, "command names are case-sensitive")
}

func TestTableMatchFirstWins(t *testing.T) {
	t.Parallel()

	table := NewTable(testConfig(), time.UTC)

	resp, ok := table.Match("Qual o PREÇO disso?")
	require.True(t, ok)
	assert.Equal(t, "Veja a tabela", resp)

	resp, ok = table.Match("oi gente")
	require.True(t, ok)
	assert.Equal(t, "Olá!", resp)

	_, ok = table.Match("nada a ver")
	assert.False(t, ok)
}

func TestDispatchCommandText(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig())
	Dispatch(context.Background(), f.deps, f.table, command("start", transport.User{ID: 7, FirstName: "Ana"}))

	calls := f.conn.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, transporttest.KindText, calls[0].Kind)
	assert.Equal(t, "-100", calls[0].Target)
	assert.Equal(t, "Olá Ana, eu sou Promo", calls[0].Text)
	assert.Equal(t, transport.Keyboard{
		{{Text: "Site", URL: "https://a"}},
		{{Text: "Mais", CallbackData: "more"}},
	}, calls[0].Opts.Keyboard)
	assert.EqualValues(t, 1, f.stats.commands.Load())
	assert.EqualValues(t, 1, f.stats.messages.Load())
}

func TestDispatchPayloadKinds(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig())
	Dispatch(context.Background(), f.deps, f.table, command("photo", transport.User{ID: 7}))
	Dispatch(context.Background(), f.deps, f.table, command("vote", transport.User{ID: 7}))

	calls := f.conn.Calls()
	require.Len(t, calls, 2)

	assert.Equal(t, transporttest.KindImage, calls[0].Kind)
	assert.Equal(t, "https://img/1.png", calls[0].Image)
	assert.Equal(t, "legenda 7", calls[0].Text)

	assert.Equal(t, transporttest.KindPoll, calls[1].Kind)
	assert.Equal(t, "Vamos votar?", calls[1].Question)
	assert.Equal(t, []string{"A", "B"}, calls[1].Options)
	assert.False(t, calls[1].Anonymous, "polls show voters unless configured otherwise")
}

func TestDispatchPollQuestionDefaultsIgnoreMessage(t *testing.T) {
	t.Parallel()

	var spec botconfig.CommandSpec
	require.NoError(t, json.Unmarshal([]byte(`{"message":"texto","poll":true}`), &spec))
	cfg := testConfig()
	cfg.Commands["enquete"] = spec

	f := newFixture(t, cfg)
	Dispatch(context.Background(), f.deps, NewTable(cfg, time.UTC), command("enquete", transport.User{ID: 7}))

	calls := f.conn.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, transporttest.KindPoll, calls[0].Kind)
	assert.Equal(t, "Enquete", calls[0].Question)
	assert.Equal(t, []string{"Sim", "Não"}, calls[0].Options)
}

func TestDispatchPollFalseSendsText(t *testing.T) {
	t.Parallel()

	var spec botconfig.CommandSpec
	require.NoError(t, json.Unmarshal([]byte(`{"message":"só texto","poll":false}`), &spec))
	cfg := testConfig()
	cfg.Commands["texto"] = spec

	f := newFixture(t, cfg)
	Dispatch(context.Background(), f.deps, NewTable(cfg, time.UTC), command("texto", transport.User{ID: 7}))

	calls := f.conn.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, transporttest.KindText, calls[0].Kind)
	assert.Equal(t, "só texto", calls[0].Text)
}

func TestDispatchUnknownCommandIsSilent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig())
	Dispatch(context.Background(), f.deps, f.table, command("nope", transport.User{ID: 7}))

	assert.Empty(t, f.conn.Calls())
	assert.EqualValues(t, 0, f.stats.commands.Load())
}

func TestDispatchAdminGate(t *testing.T) {
	t.Parallel()

	notice := "❌ Apenas administradores podem usar este comando."

	tests := []struct {
		name     string
		admins   []string
		from     transport.User
		live     bool
		lookup   error
		wantText string
	}{
		{
			name:     "no admins and failing lookup",
			from:     transport.User{ID: 7},
			lookup:   errors.New("chat not found"),
			wantText: notice,
		},
		{
			name:     "lookup says no and not configured",
			admins:   []string{"1"},
			from:     transport.User{ID: 7},
			wantText: notice,
		},
		{
			name:     "live administrator",
			from:     transport.User{ID: 7},
			live:     true,
			wantText: "segredo",
		},
		{
			name:     "configured id after failed lookup",
			admins:   []string{"7"},
			from:     transport.User{ID: 7},
			lookup:   errors.New("boom"),
			wantText: "segredo",
		},
		{
			name:     "configured username",
			admins:   []string{"@Chefe"},
			from:     transport.User{ID: 8, Username: "chefe"},
			wantText: "segredo",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := testConfig()
			cfg.Bot.Admins = tt.admins
			f := newFixture(t, cfg)
			if tt.live {
				f.conn.SetAdmin(tt.from.ID)
			}
			if tt.lookup != nil {
				f.conn.FailAdminLookup(tt.lookup)
			}

			Dispatch(context.Background(), f.deps, f.table, command("secret", tt.from))

			calls := f.conn.Calls()
			require.Len(t, calls, 1)
			assert.Equal(t, tt.wantText, calls[0].Text)
			assert.Equal(t, 1, f.conn.AdminLookups())
		})
	}
}

type failingImages struct {
	*transporttest.Conn
}

func (failingImages) SendImage(context.Context, string, string, string, transport.SendOptions) error {
	return errors.New("bad image")
}

func TestDispatchSendFailureSendsGenericNotice(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig())
	f.deps.Conn = failingImages{f.conn}

	Dispatch(context.Background(), f.deps, f.table, command("photo", transport.User{ID: 7}))

	calls := f.conn.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "❌ Ocorreu um erro ao processar o comando.", calls[0].Text)
	assert.EqualValues(t, 0, f.stats.messages.Load())
}

func TestDispatchCallback(t *testing.T) {
	t.Parallel()

	cb := func(data string) transport.Event {
		return transport.Event{Kind: transport.EventCallback, ChatID: 5, MessageID: 77, CallbackID: "q-" + data, CallbackData: data, From: transport.User{ID: 7}}
	}

	t.Run("send acknowledges first", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, testConfig())
		Dispatch(context.Background(), f.deps, f.table, cb("more"))

		calls := f.conn.Calls()
		require.Len(t, calls, 2)
		assert.Equal(t, transporttest.KindAck, calls[0].Kind)
		assert.Equal(t, "q-more", calls[0].Callback)
		assert.Equal(t, transporttest.KindText, calls[1].Kind)
		assert.Equal(t, "mais info", calls[1].Text)
	})

	t.Run("edit", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, testConfig())
		Dispatch(context.Background(), f.deps, f.table, cb("edit"))

		edits := f.conn.CallsOf(transporttest.KindEdit)
		require.Len(t, edits, 1)
		assert.Equal(t, 77, edits[0].MessageID)
		assert.Equal(t, "editado", edits[0].Text)
	})

	t.Run("delete", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, testConfig())
		Dispatch(context.Background(), f.deps, f.table, cb("remove"))

		deletes := f.conn.CallsOf(transporttest.KindDelete)
		require.Len(t, deletes, 1)
		assert.Equal(t, "5", deletes[0].Target)
		assert.Equal(t, 77, deletes[0].MessageID)
	})

	t.Run("unknown is acknowledged only", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, testConfig())
		Dispatch(context.Background(), f.deps, f.table, cb("ghost"))

		calls := f.conn.Calls()
		require.Len(t, calls, 1)
		assert.Equal(t, transporttest.KindAck, calls[0].Kind)
	})
}

func TestDispatchFreeText(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig())
	Dispatch(context.Background(), f.deps, f.table, transport.Event{Kind: transport.EventText, ChatID: 1, Text: "e o Preço?"})
	Dispatch(context.Background(), f.deps, f.table, transport.Event{Kind: transport.EventText, ChatID: 1, Text: "tchau"})

	calls := f.conn.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Veja a tabela", calls[0].Text)
}

func TestDispatchWelcome(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig())
	Dispatch(context.Background(), f.deps, f.table, transport.Event{
		Kind:       transport.EventMemberJoined,
		ChatID:     -3,
		ChatTitle:  "Clube Promo VIP",
		NewMembers: []transport.User{{ID: 1, FirstName: "Bia"}, {ID: 2}},
	})

	calls := f.conn.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "Bem-vindo Bia ao Clube Promo VIP", calls[0].Text)
	assert.Equal(t, "Bem-vindo Usuário ao Clube Promo VIP", calls[1].Text)

	f2 := newFixture(t, testConfig())
	Dispatch(context.Background(), f2.deps, f2.table, transport.Event{Kind: transport.EventMemberJoined, ChatID: -4, ChatTitle: "Outro", NewMembers: []transport.User{{ID: 1}}})
	assert.Empty(t, f2.conn.Calls())
}

func TestWelcomeGroupKeys(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		key  string
		ev   transport.Event
		want bool
	}{
		{name: "chat id", key: "-100", ev: transport.Event{ChatID: -100}, want: true},
		{name: "at chat id", key: "@-100", ev: transport.Event{ChatID: -100}, want: true},
		{name: "at username ignores case", key: "@Clube", ev: transport.Event{ChatID: 1, ChatUsername: "clube"}, want: true},
		{name: "bare username", key: "clube", ev: transport.Event{ChatID: 1, ChatUsername: "clube"}, want: true},
		{name: "at key matches title fragment", key: "@vip", ev: transport.Event{ChatID: 1, ChatTitle: "Clube VIP"}, want: true},
		{name: "wildcard", key: "*", ev: transport.Event{ChatID: 1}, want: true},
		{name: "no match", key: "@outro", ev: transport.Event{ChatID: 1, ChatUsername: "clube", ChatTitle: "Clube VIP"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := &botconfig.BotConfiguration{Groups: map[string]botconfig.GroupConfig{tt.key: {WelcomeMessage: "oi"}}}
			_, ok := NewTable(cfg, time.UTC).Welcome(tt.ev)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func modCommand(name, args string, from transport.User, reply *transport.User) transport.Event {
	ev := command(name, from)
	ev.ChatUsername = "promo_mod"
	ev.Args = args
	ev.ReplyTo = reply
	return ev
}

func TestTableModeration(t *testing.T) {
	t.Parallel()

	table := NewTable(testConfig(), time.UTC)

	action, ok := table.Moderation(modCommand("ban", "", transport.User{}, nil))
	require.True(t, ok)
	assert.Equal(t, "ban", action)

	action, ok = table.Moderation(modCommand("warn", "", transport.User{}, nil))
	require.True(t, ok)
	assert.Equal(t, "warn", action)

	_, ok = table.Moderation(modCommand("kick", "", transport.User{}, nil))
	assert.False(t, ok, "unknown moderation commands are ignored")

	_, ok = table.Moderation(command("ban", transport.User{}))
	assert.False(t, ok, "other chats do not get the group's moderation commands")
}

func TestDispatchModeration(t *testing.T) {
	t.Parallel()

	admin := transport.User{ID: 42}
	member := &transport.User{ID: 99, FirstName: "Zé", Username: "ze"}

	t.Run("ban replied member", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, testConfig())
		Dispatch(context.Background(), f.deps, f.table, modCommand("ban", "", admin, member))

		calls := f.conn.Calls()
		require.Len(t, calls, 2)
		assert.Equal(t, transporttest.KindBan, calls[0].Kind)
		assert.Equal(t, "-100", calls[0].Target)
		assert.EqualValues(t, 99, calls[0].UserID)
		assert.Equal(t, "✅ Usuário @ze banido.", calls[1].Text)
		assert.EqualValues(t, 1, f.stats.commands.Load())
	})

	t.Run("mute by id with duration", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, testConfig())
		Dispatch(context.Background(), f.deps, f.table, modCommand("mute", "12345 30m", admin, nil))

		calls := f.conn.Calls()
		require.Len(t, calls, 2)
		assert.Equal(t, transporttest.KindMute, calls[0].Kind)
		assert.EqualValues(t, 12345, calls[0].UserID)
		assert.Equal(t, fixedNow.Add(30*time.Minute), calls[0].Until)
		assert.Equal(t, "🔇 Usuário 12345 silenciado por 30m.", calls[1].Text)
	})

	t.Run("mute defaults to one hour", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, testConfig())
		Dispatch(context.Background(), f.deps, f.table, modCommand("mute", "", admin, member))

		calls := f.conn.CallsOf(transporttest.KindMute)
		require.Len(t, calls, 1)
		assert.Equal(t, fixedNow.Add(time.Hour), calls[0].Until)
		assert.Equal(t, "🔇 Usuário @ze silenciado por 1h.", f.conn.CallsOf(transporttest.KindText)[0].Text)
	})

	t.Run("warn accepts a username", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, testConfig())
		Dispatch(context.Background(), f.deps, f.table, modCommand("warn", "@ze", admin, nil))

		calls := f.conn.Calls()
		require.Len(t, calls, 1)
		assert.Equal(t, "⚠️ Aviso para @ze: Por favor, siga as regras do grupo!", calls[0].Text)
	})

	t.Run("ban needs a user id", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, testConfig())
		Dispatch(context.Background(), f.deps, f.table, modCommand("ban", "@ze", admin, nil))
		Dispatch(context.Background(), f.deps, f.table, modCommand("ban", "", admin, nil))
		assert.Empty(t, f.conn.Calls())
	})

	t.Run("non admin is rejected", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, testConfig())
		Dispatch(context.Background(), f.deps, f.table, modCommand("ban", "", transport.User{ID: 7}, member))

		calls := f.conn.Calls()
		require.Len(t, calls, 1)
		assert.Equal(t, transporttest.KindText, calls[0].Kind)
		assert.Equal(t, "❌ Apenas administradores podem usar este comando.", calls[0].Text)
	})

	t.Run("live chat admin passes", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, testConfig())
		f.conn.SetAdmin(7)
		Dispatch(context.Background(), f.deps, f.table, modCommand("warn", "", transport.User{ID: 7}, member))

		require.Len(t, f.conn.Calls(), 1)
		assert.Equal(t, "⚠️ Aviso para @ze: Por favor, siga as regras do grupo!", f.conn.Calls()[0].Text)
	})

	t.Run("platform failure sends generic notice", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, testConfig())
		f.conn.FailSends(true)
		Dispatch(context.Background(), f.deps, f.table, modCommand("ban", "", admin, member))

		assert.Empty(t, f.conn.Calls())
		assert.EqualValues(t, 0, f.stats.messages.Load())
	})
}

func TestMuteDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want time.Duration
	}{
		{in: "30s", want: 30 * time.Second},
		{in: "10m", want: 10 * time.Minute},
		{in: "2h", want: 2 * time.Hour},
		{in: "3d", want: 72 * time.Hour},
		{in: "m", want: time.Minute},
		{in: "0h", want: time.Hour},
		{in: "5w", want: time.Hour},
		{in: "", want: time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, MuteDuration(tt.in))
		})
	}
}

func TestDispatchDeletesCommandsLater(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Features.DeleteCommands = true
	f := newFixture(t, cfg)
	clock := clockwork.NewFakeClockAt(fixedNow)
	f.deps.Clock = clock

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	Dispatch(ctx, f.deps, f.table, command("start", transport.User{ID: 7}))
	assert.Empty(t, f.conn.CallsOf(transporttest.KindDelete))

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(CommandDeleteDelay)

	assert.Eventually(t, func() bool {
		return len(f.conn.CallsOf(transporttest.KindDelete)) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 9, f.conn.CallsOf(transporttest.KindDelete)[0].MessageID)
}

func TestDispatchUsesLaterHook(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Features.DeleteCommands = true
	f := newFixture(t, cfg)

	var delays []time.Duration
	f.deps.Later = func(d time.Duration, fn func(context.Context)) {
		delays = append(delays, d)
		fn(context.Background())
	}

	Dispatch(context.Background(), f.deps, f.table, command("start", transport.User{ID: 7}))
	assert.Equal(t, []time.Duration{CommandDeleteDelay}, delays)
	assert.Len(t, f.conn.CallsOf(transporttest.KindDelete), 1)
}
