// Package botconfig holds the declarative description of one bot persona:
// its identity, commands, callbacks, free-text triggers, scheduled posts,
// the optional signal broadcaster and the supporting features.
package botconfig

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Bot types accepted in the "type" field.
const (
	TypeSimple  = "simple"
	TypeSignal  = "signal"
	TypeAviator = "aviator"
)

// Callback actions.
const (
	ActionSend   = "send"
	ActionEdit   = "edit_message"
	ActionDelete = "delete_message"
)

// CallbackPrefix marks command keys that are really callback identifiers.
const CallbackPrefix = "callback:"

// BotConfiguration is the full declarative input for one bot instance.
type BotConfiguration struct {
	Type          string                 `json:"type,omitempty"           validate:"omitempty,oneof=simple signal aviator"`
	Bot           Identity               `json:"bot"`
	Commands      map[string]CommandSpec `json:"commands,omitempty"       validate:"dive"`
	Callbacks     map[string]CommandSpec `json:"callbacks,omitempty"      validate:"dive"`
	AutoResponses TriggerList            `json:"auto_responses,omitempty"`
	Schedule      []ScheduledPost        `json:"schedule,omitempty"       validate:"dive"`
	Signal        *SignalConfig          `json:"signal,omitempty"`
	Groups        map[string]GroupConfig `json:"groups,omitempty"`
	Features      Features               `json:"features"`
	Tasks         []Task                 `json:"tasks,omitempty"          validate:"dive"`
	Messages      Messages               `json:"messages"`
}

// Identity identifies the bot on the platform.
type Identity struct {
	Name           string   `json:"name,omitempty"`
	Token          string   `json:"token"                     validate:"required"`
	DefaultChannel string   `json:"default_channel,omitempty"`
	Admins         []string `json:"admins,omitempty"`
	Locale         string   `json:"locale,omitempty"          validate:"omitempty,oneof=pt-BR en"`
	Timezone       string   `json:"timezone,omitempty"        validate:"omitempty,timezone"`
}

// CommandSpec describes the response to one command or callback.
type CommandSpec struct {
	Message        string       `json:"message,omitempty"`
	Text           string       `json:"text,omitempty"`
	Image          string       `json:"image,omitempty"`
	Poll           *Poll        `json:"poll,omitempty"`
	Buttons        ButtonLayout `json:"buttons,omitempty"         validate:"dive,dive"`
	OnlyAdmins     bool         `json:"only_admins,omitempty"`
	DisablePreview bool         `json:"disable_preview,omitempty"`
	Action         string       `json:"action,omitempty"          validate:"omitempty,oneof=send edit_message delete_message"`
}

// Content returns the message template, accepting "text" as an alias.
func (c CommandSpec) Content() string {
	if c.Message != "" {
		return c.Message
	}
	return c.Text
}

// Empty reports whether the command carries nothing to send.
func (c CommandSpec) Empty() bool {
	return c.Content() == "" && c.Image == "" && c.Poll == nil && c.Action != ActionDelete
}

// Poll is a poll payload. In configuration files "poll" is either an
// object or a boolean; with `true` the question, options and anonymous flag
// may also sit next to it on the command or post itself.
type Poll struct {
	Question  string   `json:"question,omitempty"`
	Options   []string `json:"options,omitempty"`
	Anonymous *bool    `json:"anonymous,omitempty"`
}

// IsAnonymous reports the poll's anonymity; polls show voters unless
// configured otherwise.
func (p Poll) IsAnonymous() bool {
	return p.Anonymous != nil && *p.Anonymous
}

// inlinePoll is a raw "poll" value plus the poll fields that may sit next
// to it.
type inlinePoll struct {
	raw       json.RawMessage
	question  string
	options   []string
	anonymous *bool
}

// resolve returns the poll described by the raw value, or nil when it is
// absent, null or false. Object fields win over inline ones.
func (in inlinePoll) resolve() (*Poll, error) {
	inline := Poll{Question: in.question, Options: in.options, Anonymous: in.anonymous}
	switch strings.TrimSpace(string(in.raw)) {
	case "", "null", "false":
		return nil, nil
	case "true":
		return &inline, nil
	}

	var p Poll
	if err := json.Unmarshal(in.raw, &p); err != nil {
		return nil, fmt.Errorf("poll must be a boolean or an object: %w", err)
	}
	if p.Question == "" {
		p.Question = inline.Question
	}
	if len(p.Options) == 0 {
		p.Options = inline.Options
	}
	if p.Anonymous == nil {
		p.Anonymous = inline.Anonymous
	}
	return &p, nil
}

// UnmarshalJSON resolves the boolean and inline poll forms.
func (c *CommandSpec) UnmarshalJSON(data []byte) error {
	type raw CommandSpec
	aux := struct {
		*raw
		Poll      json.RawMessage `json:"poll,omitempty"`
		Question  string          `json:"question,omitempty"`
		Options   []string        `json:"options,omitempty"`
		Anonymous *bool           `json:"anonymous,omitempty"`
	}{raw: (*raw)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	poll, err := inlinePoll{raw: aux.Poll, question: aux.Question, options: aux.Options, anonymous: aux.Anonymous}.resolve()
	if err != nil {
		return err
	}
	c.Poll = poll
	return nil
}

// Button is either a URL button or a callback button.
type Button struct {
	Text     string `json:"text,omitempty"`
	URL      string `json:"url,omitempty"      validate:"omitempty,url"`
	Callback string `json:"callback,omitempty" validate:"omitempty,max=64"`
}

// ScheduledPost is a message sent every day (or on the listed weekdays) at a
// fixed wall-clock time.
type ScheduledPost struct {
	Time           string       `json:"time"`
	Channel        string       `json:"channel,omitempty"`
	Target         string       `json:"target,omitempty"`
	Message        string       `json:"message,omitempty"`
	Image          string       `json:"image,omitempty"`
	Poll           *Poll        `json:"poll,omitempty"`
	Buttons        ButtonLayout `json:"buttons,omitempty"   validate:"dive,dive"`
	DisablePreview bool         `json:"disable_preview,omitempty"`
	Days           []string     `json:"days,omitempty"`
}

// SendTarget returns the post's target, falling back to the given default.
func (p ScheduledPost) SendTarget(fallback string) string {
	switch {
	case p.Channel != "":
		return p.Channel
	case p.Target != "":
		return p.Target
	default:
		return fallback
	}
}

// UnmarshalJSON resolves the boolean and inline poll forms.
func (p *ScheduledPost) UnmarshalJSON(data []byte) error {
	type raw ScheduledPost
	aux := struct {
		*raw
		Poll      json.RawMessage `json:"poll,omitempty"`
		Question  string          `json:"question,omitempty"`
		Options   []string        `json:"options,omitempty"`
		Anonymous *bool           `json:"anonymous,omitempty"`
	}{raw: (*raw)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	poll, err := inlinePoll{raw: aux.Poll, question: aux.Question, options: aux.Options, anonymous: aux.Anonymous}.resolve()
	if err != nil {
		return err
	}
	p.Poll = poll
	return nil
}

// SignalConfig configures the periodic promotional signal broadcaster.
type SignalConfig struct {
	Channel     string            `json:"channel,omitempty"`
	Image       string            `json:"image,omitempty"`
	Links       []string          `json:"links"`
	Brands      map[string]string `json:"brands,omitempty"`
	Classes     []OutcomeClass    `json:"classes,omitempty"      validate:"dive"`
	Interval    int               `json:"interval,omitempty"     validate:"gte=0"`
	StepDelay   int               `json:"step_delay,omitempty"   validate:"gte=0"`
	RotateEvery int               `json:"rotate_every,omitempty" validate:"gte=0"`
	ButtonText  string            `json:"button_text,omitempty"`
}

// OutcomeClass is one weighted outcome of a signal draw.
type OutcomeClass struct {
	Name   string `json:"name"   validate:"required"`
	Label  string `json:"label,omitempty"`
	Weight int    `json:"weight" validate:"gt=0"`
	Min    int    `json:"min"    validate:"gte=0"`
	Max    int    `json:"max"    validate:"gtefield=Min"`
}

// GroupConfig holds per-group behaviour.
type GroupConfig struct {
	WelcomeMessage string `json:"welcome_message,omitempty"`
	// ModCommands maps moderation commands (/ban, /mute, /warn) to a
	// description. Only admins of the matching chat may use them.
	ModCommands map[string]string `json:"mod_commands,omitempty"`
}

// Moderation commands accepted in mod_commands.
const (
	ModBan  = "ban"
	ModMute = "mute"
	ModWarn = "warn"
)

// ModerationAction returns the moderation action a mod_commands key names,
// or "" when it names none. The leading "/" is optional.
func ModerationAction(key string) string {
	switch name := strings.TrimPrefix(strings.TrimSpace(key), "/"); name {
	case ModBan, ModMute, ModWarn:
		return name
	default:
		return ""
	}
}

// Features toggles optional behaviour.
type Features struct {
	DeleteCommands bool `json:"delete_commands,omitempty"`
}

// Task is a recurring maintenance job.
type Task struct {
	Name     string `json:"name"`
	Type     string `json:"type"     validate:"oneof=report cleanup backup"`
	Schedule string `json:"schedule" validate:"required"`
	Action   string `json:"action,omitempty"`
}

// Messages overrides the built-in notices.
type Messages struct {
	AdminsOnly     string `json:"admins_only,omitempty"`
	GenericFailure string `json:"generic_failure,omitempty"`
}

// UnmarshalJSON accepts the legacy key names used by earlier configuration
// files: auto_messages, scheduled_posts, daily_posts and aviator_config.
func (c *BotConfiguration) UnmarshalJSON(data []byte) error {
	type raw BotConfiguration
	aux := struct {
		*raw
		AutoMessages   TriggerList     `json:"auto_messages,omitempty"`
		ScheduledPosts []ScheduledPost `json:"scheduled_posts,omitempty"`
		DailyPosts     []ScheduledPost `json:"daily_posts,omitempty"`
		AviatorConfig  *SignalConfig   `json:"aviator_config,omitempty"`
	}{raw: (*raw)(c)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	c.AutoResponses = append(c.AutoResponses, aux.AutoMessages...)
	c.Schedule = append(c.Schedule, aux.DailyPosts...)
	c.Schedule = append(c.Schedule, aux.ScheduledPosts...)
	if c.Signal == nil && aux.AviatorConfig != nil {
		c.Signal = aux.AviatorConfig
	}
	return nil
}

// Kind returns the normalized bot type.
func (c *BotConfiguration) Kind() string {
	switch {
	case c.Type == TypeAviator, c.Type == TypeSignal:
		return TypeSignal
	case c.Type == "" && c.Signal != nil:
		return TypeSignal
	default:
		return TypeSimple
	}
}

// CommandName normalizes a command key. It strips the leading command marker
// and reports whether the key addresses a callback instead of a command.
func CommandName(key string) (name string, callback bool) {
	key = strings.TrimSpace(key)
	if strings.HasPrefix(key, CallbackPrefix) {
		return strings.TrimPrefix(key, CallbackPrefix), true
	}
	return strings.TrimPrefix(key, "/"), false
}
