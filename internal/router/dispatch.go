package router

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/CardosoB8/Bot-telegram2025/internal/botconfig"
	apperrors "github.com/CardosoB8/Bot-telegram2025/internal/errors"
	"github.com/CardosoB8/Bot-telegram2025/internal/logger"
	"github.com/CardosoB8/Bot-telegram2025/internal/render"
	"github.com/CardosoB8/Bot-telegram2025/internal/transport"
)

// CommandDeleteDelay is how long a handled command message stays in the chat
// when delete_commands is on.
const CommandDeleteDelay = time.Second

// Recorder receives usage counters. It must be safe for concurrent use.
type Recorder interface {
	CommandUsed()
	MessageSent()
}

type noopRecorder struct{}

func (noopRecorder) CommandUsed() {}
func (noopRecorder) MessageSent() {}

// Deps are the collaborators Dispatch needs for one instance.
type Deps struct {
	Conn   transport.Conn
	Clock  clockwork.Clock
	Logger *slog.Logger
	Stats  Recorder

	// Later runs fn after delay unless the owning instance stops first.
	// When nil, a timer bound to the event's context is used.
	Later func(delay time.Duration, fn func(ctx context.Context))
}

func (d Deps) clock() clockwork.Clock {
	if d.Clock == nil {
		return clockwork.NewRealClock()
	}
	return d.Clock
}

func (d Deps) stats() Recorder {
	if d.Stats == nil {
		return noopRecorder{}
	}
	return d.Stats
}

func (d Deps) later(ctx context.Context, delay time.Duration, fn func(ctx context.Context)) {
	if d.Later != nil {
		d.Later(delay, fn)
		return
	}
	clock := d.clock()
	go func() {
		select {
		case <-clock.After(delay):
			fn(ctx)
		case <-ctx.Done():
		}
	}()
}

// Dispatch routes one inbound event through the table. It never returns an
// error: failures are logged and, for commands, answered with the generic
// failure notice.
func Dispatch(ctx context.Context, d Deps, t *Table, ev transport.Event) {
	log := d.Logger
	if log == nil {
		log = logger.Discard()
	}
	log = log.With("event", ev.Kind.String(), "chat_id", ev.ChatID)

	defer func() {
		if r := recover(); r != nil {
			log.ErrorContext(ctx, "Recovered from panic while dispatching event", "panic", r)
		}
	}()

	switch ev.Kind {
	case transport.EventCommand:
		handleCommand(ctx, d, t, ev, log)
	case transport.EventCallback:
		handleCallback(ctx, d, t, ev, log)
	case transport.EventText:
		handleText(ctx, d, t, ev, log)
	case transport.EventMemberJoined:
		handleMembers(ctx, d, t, ev, log)
	}
}

func chatTarget(ev transport.Event) string {
	return strconv.FormatInt(ev.ChatID, 10)
}

func handleCommand(ctx context.Context, d Deps, t *Table, ev transport.Event, log *slog.Logger) {
	if action, ok := t.Moderation(ev); ok {
		d.stats().CommandUsed()
		handleModeration(ctx, d, t, ev, action, log.With("command", ev.Command, "user_id", ev.From.ID))
		return
	}

	spec, ok := t.Command(ev.Command)
	if !ok {
		log.DebugContext(ctx, "Ignoring unknown command", "command", ev.Command)
		return
	}
	d.stats().CommandUsed()
	log = log.With("command", ev.Command, "user_id", ev.From.ID)
	target := chatTarget(ev)

	if t.deleteCommands && ev.MessageID != 0 {
		messageID := ev.MessageID
		d.later(ctx, CommandDeleteDelay, func(ctx context.Context) {
			if err := d.Conn.DeleteMessage(ctx, target, messageID); err != nil {
				log.WarnContext(ctx, "Failed to delete command message", "message_id", messageID, "error", err)
			}
		})
	}

	if spec.OnlyAdmins && !isAdmin(ctx, d, t, ev, log) {
		log.InfoContext(ctx, "Rejected admin-only command")
		notify(ctx, d, target, t.cfg.AdminsOnlyNotice(), log)
		return
	}

	respond(ctx, d, t, spec, target, ev, "/"+ev.Command, log)
}

func handleCallback(ctx context.Context, d Deps, t *Table, ev transport.Event, log *slog.Logger) {
	if err := d.Conn.AcknowledgeCallback(ctx, ev.CallbackID); err != nil {
		log.WarnContext(ctx, "Failed to acknowledge callback", "callback_query_id", ev.CallbackID, "error", err)
	}

	spec, ok := t.Callback(ev.CallbackData)
	if !ok {
		log.DebugContext(ctx, "Ignoring unknown callback", "data", ev.CallbackData)
		return
	}
	d.stats().CommandUsed()
	log = log.With("callback", ev.CallbackData, "user_id", ev.From.ID)
	target := chatTarget(ev)

	if spec.OnlyAdmins && !isAdmin(ctx, d, t, ev, log) {
		log.InfoContext(ctx, "Rejected admin-only callback")
		notify(ctx, d, target, t.cfg.AdminsOnlyNotice(), log)
		return
	}

	switch {
	case spec.Action == botconfig.ActionDelete && ev.MessageID != 0:
		if err := d.Conn.DeleteMessage(ctx, target, ev.MessageID); err != nil {
			log.ErrorContext(ctx, "Failed to delete callback message", "error", apperrors.NewDispatchError(ev.CallbackData, err))
		}
	case spec.Action == botconfig.ActionEdit && ev.MessageID != 0 && spec.Image == "" && spec.Poll == nil:
		p := CommandPayload(t.cfg, spec, t.RenderContext(ev.From, ev.ChatTitle, d.clock().Now()))
		opts := transport.SendOptions{Keyboard: p.Keyboard, DisablePreview: p.DisablePreview}
		if err := d.Conn.EditText(ctx, target, ev.MessageID, p.Text, opts); err != nil {
			log.ErrorContext(ctx, "Failed to edit callback message", "error", apperrors.NewDispatchError(ev.CallbackData, err))
			notify(ctx, d, target, t.cfg.GenericFailureNotice(), log)
		}
	default:
		respond(ctx, d, t, spec, target, ev, ev.CallbackData, log)
	}
}

func handleText(ctx context.Context, d Deps, t *Table, ev transport.Event, log *slog.Logger) {
	response, ok := t.Match(ev.Text)
	if !ok || response == "" {
		return
	}
	if err := d.Conn.SendText(ctx, chatTarget(ev), response, transport.SendOptions{}); err != nil {
		log.ErrorContext(ctx, "Failed to send auto response", "error", apperrors.NewDispatchError(ev.Text, err))
		return
	}
	d.stats().MessageSent()
}

func handleMembers(ctx context.Context, d Deps, t *Table, ev transport.Event, log *slog.Logger) {
	tmpl, ok := t.Welcome(ev)
	if !ok {
		return
	}
	now := d.clock().Now()
	for _, m := range ev.NewMembers {
		text := render.Render(tmpl, t.RenderContext(m, ev.ChatTitle, now))
		if err := d.Conn.SendText(ctx, chatTarget(ev), text, transport.SendOptions{}); err != nil {
			log.ErrorContext(ctx, "Failed to send welcome message", "user_id", m.ID, "error", err)
			continue
		}
		d.stats().MessageSent()
	}
}

func respond(ctx context.Context, d Deps, t *Table, spec botconfig.CommandSpec, target string, ev transport.Event, trigger string, log *slog.Logger) {
	p := CommandPayload(t.cfg, spec, t.RenderContext(ev.From, ev.ChatTitle, d.clock().Now()))
	if p.Empty() {
		log.WarnContext(ctx, "Matched trigger has no content to send")
		return
	}

	if err := Deliver(ctx, d.Conn, target, p); err != nil {
		log.ErrorContext(ctx, "Failed to send response", "error", apperrors.NewDispatchError(trigger, err))
		notify(ctx, d, target, t.cfg.GenericFailureNotice(), log)
		return
	}
	d.stats().MessageSent()
}

// DefaultMuteDuration applies when /mute names no duration.
const DefaultMuteDuration = "1h"

func handleModeration(ctx context.Context, d Deps, t *Table, ev transport.Event, action string, log *slog.Logger) {
	target := chatTarget(ev)
	if !isAdmin(ctx, d, t, ev, log) {
		log.InfoContext(ctx, "Rejected moderation command")
		notify(ctx, d, target, t.cfg.AdminsOnlyNotice(), log)
		return
	}

	memberID, label, args, ok := moderationTarget(ev)
	if !ok {
		log.DebugContext(ctx, "Moderation command names no member")
		return
	}
	if memberID == 0 && action != botconfig.ModWarn {
		log.InfoContext(ctx, "Moderation target is not a user id", "target", label)
		return
	}

	var notice string
	var err error
	switch action {
	case botconfig.ModBan:
		err = d.Conn.BanMember(ctx, ev.ChatID, memberID)
		notice = t.cfg.BannedNotice(label)
	case botconfig.ModMute:
		duration := DefaultMuteDuration
		if len(args) > 0 {
			duration = args[0]
		}
		err = d.Conn.RestrictMember(ctx, ev.ChatID, memberID, d.clock().Now().Add(MuteDuration(duration)))
		notice = t.cfg.MutedNotice(label, duration)
	case botconfig.ModWarn:
		notice = t.cfg.WarningNotice(label)
	}
	if err != nil {
		log.ErrorContext(ctx, "Moderation action failed", "action", action, "member_id", memberID, "error", apperrors.NewDispatchError("/"+ev.Command, err))
		notify(ctx, d, target, t.cfg.GenericFailureNotice(), log)
		return
	}

	log.InfoContext(ctx, "Moderation action applied", "action", action, "member_id", memberID)
	if err := d.Conn.SendText(ctx, target, notice, transport.SendOptions{}); err != nil {
		log.WarnContext(ctx, "Failed to send moderation notice", "error", err)
		return
	}
	d.stats().MessageSent()
}

// moderationTarget picks the member a moderation command acts on: the
// author of the replied-to message, or else the first argument. The id is
// zero when the argument is not numeric. The remaining arguments follow.
func moderationTarget(ev transport.Event) (id int64, label string, rest []string, ok bool) {
	args := strings.Fields(ev.Args)
	if u := ev.ReplyTo; u != nil && u.ID != 0 {
		switch {
		case u.Username != "":
			label = "@" + u.Username
		case u.FirstName != "":
			label = u.FirstName
		default:
			label = strconv.FormatInt(u.ID, 10)
		}
		return u.ID, label, args, true
	}
	if len(args) == 0 {
		return 0, "", nil, false
	}
	id, _ = strconv.ParseInt(strings.TrimPrefix(args[0], "@"), 10, 64)
	return id, args[0], args[1:], true
}

// MuteDuration parses "<n><unit>" with unit s, m, h or d. A missing or
// invalid count means 1; an unknown unit means one hour.
func MuteDuration(s string) time.Duration {
	if s == "" {
		return time.Hour
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		n = 1
	}
	switch s[len(s)-1] {
	case 's':
		return time.Duration(n) * time.Second
	case 'm':
		return time.Duration(n) * time.Minute
	case 'h':
		return time.Duration(n) * time.Hour
	case 'd':
		return time.Duration(n) * 24 * time.Hour
	default:
		return time.Hour
	}
}

// isAdmin asks the platform first and falls back to the configured admin
// set when the lookup fails or says no.
func isAdmin(ctx context.Context, d Deps, t *Table, ev transport.Event, log *slog.Logger) bool {
	if ev.ChatID != 0 && ev.From.ID != 0 {
		ok, err := d.Conn.IsAdministrator(ctx, ev.ChatID, ev.From.ID)
		if err != nil {
			log.WarnContext(ctx, "Administrator lookup failed, using configured admins", "error", err)
		}
		if ok {
			return true
		}
	}
	return t.IsConfiguredAdmin(ev.From)
}

func notify(ctx context.Context, d Deps, target, text string, log *slog.Logger) {
	if err := d.Conn.SendText(ctx, target, text, transport.SendOptions{}); err != nil {
		log.WarnContext(ctx, "Failed to send notice", "error", err)
	}
}
