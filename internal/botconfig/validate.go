package botconfig

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/CardosoB8/Bot-telegram2025/internal/errors"
)

// Stats summarizes a configuration.
type Stats struct {
	Type           string `json:"type"`
	Commands       int    `json:"commands"`
	Callbacks      int    `json:"callbacks"`
	AutoResponses  int    `json:"auto_responses"`
	ScheduledPosts int    `json:"scheduled_posts"`
	Tasks          int    `json:"tasks"`
	HasSignal      bool   `json:"has_signal"`
}

// Result is the outcome of Validate. Errors block instance creation,
// warnings do not.
type Result struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
	Stats    Stats    `json:"stats"`
}

// Err returns a ConfigurationError when the result holds errors.
func (r Result) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return apperrors.NewConfigurationError(r.Errors, r.Warnings)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate checks a configuration and never panics on malformed input.
func Validate(cfg *BotConfiguration) Result {
	var r Result
	if cfg == nil {
		r.Errors = []string{"configuration is empty"}
		return r
	}

	r.Errors = append(r.Errors, structErrors(cfg)...)

	if cfg.Bot.Name == "" {
		r.Warnings = append(r.Warnings, "bot.name is empty, the bot will be listed without a display name")
	}

	commands, callbacks := checkCommandKeys(cfg, &r)
	checkCallbackButtons(cfg, callbacks, &r)
	checkSchedule(cfg, &r)
	checkTasks(cfg, &r)
	checkSignal(cfg, &r)
	checkGroups(cfg, &r)

	for _, t := range cfg.AutoResponses {
		if strings.TrimSpace(t.Match) == "" {
			r.Errors = append(r.Errors, "auto_responses: empty trigger")
		}
	}

	r.Stats = Stats{
		Type:           cfg.Kind(),
		Commands:       commands,
		Callbacks:      callbacks.len(),
		AutoResponses:  len(cfg.AutoResponses),
		ScheduledPosts: len(cfg.Schedule),
		Tasks:          len(cfg.Tasks),
		HasSignal:      cfg.Signal != nil,
	}
	r.Valid = len(r.Errors) == 0
	return r
}

func structErrors(cfg *BotConfiguration) []string {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}

	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		switch fe.Tag() {
		case "required":
			out = append(out, field+" is required")
		case "oneof":
			out = append(out, fmt.Sprintf("%s must be one of [%s]", field, fe.Param()))
		default:
			out = append(out, fmt.Sprintf("%s is invalid (%s)", field, fe.Tag()))
		}
	}
	return out
}

type keySet map[string]struct{}

func (k keySet) len() int { return len(k) }

func checkCommandKeys(cfg *BotConfiguration, r *Result) (int, keySet) {
	commands := keySet{}
	callbacks := keySet{}

	add := func(set keySet, kind, name, raw string) {
		if name == "" {
			r.Errors = append(r.Errors, fmt.Sprintf("%s key %q is empty", kind, raw))
			return
		}
		if _, dup := set[name]; dup {
			r.Errors = append(r.Errors, fmt.Sprintf("duplicate %s %q", kind, name))
			return
		}
		set[name] = struct{}{}
	}

	for _, key := range sortedKeys(cfg.Commands) {
		spec := cfg.Commands[key]
		name, isCallback := CommandName(key)
		if isCallback {
			add(callbacks, "callback", name, key)
		} else {
			add(commands, "command", name, key)
		}
		if spec.Empty() {
			r.Warnings = append(r.Warnings, fmt.Sprintf("command %q has no content", key))
		}
	}
	for _, key := range sortedKeys(cfg.Callbacks) {
		spec := cfg.Callbacks[key]
		add(callbacks, "callback", strings.TrimSpace(key), key)
		if spec.Empty() && spec.Action != ActionDelete {
			r.Warnings = append(r.Warnings, fmt.Sprintf("callback %q has no content", key))
		}
	}

	return len(commands), callbacks
}

func checkGroups(cfg *BotConfiguration, r *Result) {
	for _, key := range sortedKeys(cfg.Groups) {
		g := cfg.Groups[key]
		if strings.TrimSpace(strings.TrimPrefix(key, "@")) == "" {
			r.Errors = append(r.Errors, fmt.Sprintf("group key %q is empty", key))
			continue
		}
		for _, cmd := range sortedKeys(g.ModCommands) {
			if ModerationAction(cmd) == "" {
				r.Warnings = append(r.Warnings, fmt.Sprintf("groups.%s: unknown moderation command %q", key, cmd))
			}
		}
	}
}

func checkCallbackButtons(cfg *BotConfiguration, callbacks keySet, r *Result) {
	seen := map[string]bool{}
	check := func(layout ButtonLayout) {
		for _, row := range layout {
			for _, b := range row {
				if b.URL == "" && b.Callback == "" {
					r.Errors = append(r.Errors, fmt.Sprintf("button %q needs a url or a callback", b.Text))
					continue
				}
				if b.Callback == "" || seen[b.Callback] {
					continue
				}
				if _, ok := callbacks[b.Callback]; !ok {
					seen[b.Callback] = true
					r.Warnings = append(r.Warnings, fmt.Sprintf("button callback %q has no handler", b.Callback))
				}
			}
		}
	}
	for _, key := range sortedKeys(cfg.Commands) {
		check(cfg.Commands[key].Buttons)
	}
	for _, key := range sortedKeys(cfg.Callbacks) {
		check(cfg.Callbacks[key].Buttons)
	}
	for _, p := range cfg.Schedule {
		check(p.Buttons)
	}
}

func checkSchedule(cfg *BotConfiguration, r *Result) {
	for i, p := range cfg.Schedule {
		label := fmt.Sprintf("schedule[%d]", i)
		if p.Time == "" {
			r.Errors = append(r.Errors, label+": time is required")
		} else if _, err := ParseClock(p.Time); err != nil {
			r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", label, err))
		}
		if p.SendTarget(cfg.Bot.DefaultChannel) == "" {
			r.Errors = append(r.Errors, label+": channel is required (or set bot.default_channel)")
		}
		if p.Message == "" && p.Poll == nil {
			r.Errors = append(r.Errors, label+": message is required")
		}
		for _, d := range p.Days {
			if _, err := ParseWeekday(d); err != nil {
				r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", label, err))
			}
		}
	}
}

func checkTasks(cfg *BotConfiguration, r *Result) {
	for i, t := range cfg.Tasks {
		if t.Schedule == "" {
			continue
		}
		if _, err := ParseTaskSchedule(t.Schedule); err != nil {
			r.Errors = append(r.Errors, fmt.Sprintf("tasks[%d]: %v", i, err))
		}
		if t.Name == "" {
			r.Warnings = append(r.Warnings, fmt.Sprintf("tasks[%d] has no name", i))
		}
	}
}

func checkSignal(cfg *BotConfiguration, r *Result) {
	s := cfg.Signal
	if s == nil {
		if cfg.Kind() == TypeSignal {
			r.Errors = append(r.Errors, "signal configuration is required for signal bots")
		}
		return
	}

	if s.Channel == "" && cfg.Bot.DefaultChannel == "" {
		r.Errors = append(r.Errors, "signal.channel is required (or set bot.default_channel)")
	}
	if len(s.Links) == 0 {
		r.Errors = append(r.Errors, "signal.links must list at least one target")
	}
	for i, link := range s.Links {
		if _, ok := s.Brands[link]; !ok {
			r.Warnings = append(r.Warnings, fmt.Sprintf("signal.links[%d] has no brand name, \"Casa %d\" will be used", i, i+1))
		}
	}
	if len(s.Classes) == 1 {
		r.Warnings = append(r.Warnings, "signal.classes has a single class, every draw will pick it")
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
