// Package router turns a bot configuration into an immutable command table
// and dispatches inbound events against it.
package router

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/CardosoB8/Bot-telegram2025/internal/botconfig"
	"github.com/CardosoB8/Bot-telegram2025/internal/render"
	"github.com/CardosoB8/Bot-telegram2025/internal/transport"
)

type trigger struct {
	match    string
	response string
}

// groupRule is one groups entry. key is the configured key without a
// leading "@".
type groupRule struct {
	key     string
	welcome string
	mods    map[string]string
}

// Table is the per-instance dispatch table. It is built once from a
// configuration and never modified afterwards.
type Table struct {
	cfg            *botconfig.BotConfiguration
	commands       map[string]botconfig.CommandSpec
	callbacks      map[string]botconfig.CommandSpec
	triggers       []trigger
	groups         []groupRule
	adminIDs       map[int64]struct{}
	adminNames     map[string]struct{}
	locale         render.Locale
	location       *time.Location
	deleteCommands bool
}

// NewTable builds the dispatch table. Command keys are normalized: the
// leading "/" is stripped and "callback:" keys move to the callback table.
// The configuration is expected to have passed validation; on duplicate
// keys after normalization the first in sorted key order wins.
func NewTable(cfg *botconfig.BotConfiguration, loc *time.Location) *Table {
	t := &Table{
		cfg:            cfg,
		commands:       make(map[string]botconfig.CommandSpec, len(cfg.Commands)),
		callbacks:      make(map[string]botconfig.CommandSpec, len(cfg.Callbacks)),
		adminIDs:       map[int64]struct{}{},
		adminNames:     map[string]struct{}{},
		locale:         render.LocaleFor(cfg.Locale()),
		location:       cfg.Location(loc),
		deleteCommands: cfg.Features.DeleteCommands,
	}
	t.locale.DefaultUserName = cfg.DefaultUserName()

	keys := make([]string, 0, len(cfg.Commands))
	for k := range cfg.Commands {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		name, isCallback := botconfig.CommandName(k)
		if name == "" {
			continue
		}
		target := t.commands
		if isCallback {
			target = t.callbacks
		}
		if _, dup := target[name]; !dup {
			target[name] = cfg.Commands[k]
		}
	}
	for k, spec := range cfg.Callbacks {
		k = strings.TrimSpace(k)
		if _, dup := t.callbacks[k]; !dup && k != "" {
			t.callbacks[k] = spec
		}
	}

	for _, tr := range cfg.AutoResponses {
		if m := strings.ToLower(strings.TrimSpace(tr.Match)); m != "" {
			t.triggers = append(t.triggers, trigger{match: m, response: tr.Response})
		}
	}

	groupKeys := make([]string, 0, len(cfg.Groups))
	for k := range cfg.Groups {
		groupKeys = append(groupKeys, k)
	}
	sort.Strings(groupKeys)
	for _, k := range groupKeys {
		g := cfg.Groups[k]
		rule := groupRule{key: strings.TrimPrefix(strings.TrimSpace(k), "@"), welcome: g.WelcomeMessage}
		for cmd := range g.ModCommands {
			if action := botconfig.ModerationAction(cmd); action != "" {
				if rule.mods == nil {
					rule.mods = map[string]string{}
				}
				rule.mods[strings.TrimPrefix(strings.TrimSpace(cmd), "/")] = action
			}
		}
		if rule.key != "" && (rule.welcome != "" || rule.mods != nil) {
			t.groups = append(t.groups, rule)
		}
	}

	for _, a := range cfg.Bot.Admins {
		a = strings.TrimSpace(a)
		if id, err := strconv.ParseInt(a, 10, 64); err == nil {
			t.adminIDs[id] = struct{}{}
			continue
		}
		if name := strings.ToLower(strings.TrimPrefix(a, "@")); name != "" {
			t.adminNames[name] = struct{}{}
		}
	}

	return t
}

// Config returns the configuration the table was built from.
func (t *Table) Config() *botconfig.BotConfiguration { return t.cfg }

// Location is the timezone used for the date and time tokens.
func (t *Table) Location() *time.Location { return t.location }

// Command looks up a command by name. The leading "/" is optional.
func (t *Table) Command(name string) (botconfig.CommandSpec, bool) {
	spec, ok := t.commands[strings.TrimPrefix(name, "/")]
	return spec, ok
}

// Callback looks up a callback by its identifier.
func (t *Table) Callback(id string) (botconfig.CommandSpec, bool) {
	spec, ok := t.callbacks[id]
	return spec, ok
}

// Commands returns the normalized command names, sorted.
func (t *Table) Commands() []string {
	out := make([]string, 0, len(t.commands))
	for k := range t.commands {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Callbacks returns the callback identifiers, sorted.
func (t *Table) Callbacks() []string {
	out := make([]string, 0, len(t.callbacks))
	for k := range t.callbacks {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Match returns the response of the first free-text trigger contained in
// text, ignoring case, in configuration order.
func (t *Table) Match(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, tr := range t.triggers {
		if strings.Contains(lower, tr.match) {
			return tr.response, true
		}
	}
	return "", false
}

// Welcome returns the welcome template for the chat an event came from. A
// group key, with or without a leading "@", matches the numeric chat id, the
// chat's username, a case-insensitive fragment of its title, or "*" for
// every chat.
func (t *Table) Welcome(ev transport.Event) (string, bool) {
	for _, g := range t.groups {
		if g.welcome != "" && (g.ownsChat(ev) || g.inTitle(ev)) {
			return g.welcome, true
		}
	}
	return "", false
}

// Moderation returns the moderation action a command event asks for. Only
// groups matched by chat id, username or "*" enable their mod_commands.
func (t *Table) Moderation(ev transport.Event) (string, bool) {
	for _, g := range t.groups {
		if action, ok := g.mods[ev.Command]; ok && g.ownsChat(ev) {
			return action, true
		}
	}
	return "", false
}

func (g groupRule) ownsChat(ev transport.Event) bool {
	switch {
	case g.key == "*", g.key == strconv.FormatInt(ev.ChatID, 10):
		return true
	default:
		return ev.ChatUsername != "" && strings.EqualFold(g.key, ev.ChatUsername)
	}
}

func (g groupRule) inTitle(ev transport.Event) bool {
	return ev.ChatTitle != "" && strings.Contains(strings.ToLower(ev.ChatTitle), strings.ToLower(g.key))
}

// IsConfiguredAdmin checks the configuration's admin set by user id or
// username.
func (t *Table) IsConfiguredAdmin(u transport.User) bool {
	if _, ok := t.adminIDs[u.ID]; ok && u.ID != 0 {
		return true
	}
	if u.Username == "" {
		return false
	}
	_, ok := t.adminNames[strings.ToLower(u.Username)]
	return ok
}

// RenderContext builds the template context for an event's sender.
func (t *Table) RenderContext(u transport.User, chatTitle string, now time.Time) map[string]string {
	return render.Context(t.locale, t.cfg.Bot.Name, render.Subject{
		UserID:    u.ID,
		FirstName: u.FirstName,
		Username:  u.Username,
		ChatTitle: chatTitle,
	}, now.In(t.location))
}
