package botconfig

import (
	"fmt"
	"time"
)

// Built-in locales.
const (
	LocalePTBR = "pt-BR"
	LocaleEN   = "en"
)

// Default signal tuning.
const (
	DefaultSignalInterval = 180 * time.Second
	DefaultStepDelay      = 2 * time.Second
	DefaultRotateEvery    = 4
	DefaultWarmUp         = 5 * time.Second
	DefaultButtonText     = "🎮 JOGUE AQUI!"
)

// DefaultClasses are the outcome classes used when none are configured.
func DefaultClasses() []OutcomeClass {
	return []OutcomeClass{
		{Name: "purple", Label: "🟣", Weight: 75, Min: 2, Max: 6},
		{Name: "pink", Label: "🌹", Weight: 25, Min: 10, Max: 20},
	}
}

type localeText struct {
	userName       string
	adminsOnly     string
	genericFailure string
	pollQuestion   string
	pollOptions    []string
	banned         string
	muted          string
	warned         string
}

var locales = map[string]localeText{
	LocalePTBR: {
		userName:       "Usuário",
		adminsOnly:     "❌ Apenas administradores podem usar este comando.",
		genericFailure: "❌ Ocorreu um erro ao processar o comando.",
		pollQuestion:   "Enquete",
		pollOptions:    []string{"Sim", "Não"},
		banned:         "✅ Usuário %s banido.",
		muted:          "🔇 Usuário %s silenciado por %s.",
		warned:         "⚠️ Aviso para %s: Por favor, siga as regras do grupo!",
	},
	LocaleEN: {
		userName:       "User",
		adminsOnly:     "❌ Only administrators can use this command.",
		genericFailure: "❌ Something went wrong while processing the command.",
		pollQuestion:   "Poll",
		pollOptions:    []string{"Yes", "No"},
		banned:         "✅ User %s banned.",
		muted:          "🔇 User %s muted for %s.",
		warned:         "⚠️ Warning for %s: please follow the group rules!",
	},
}

func (c *BotConfiguration) text() localeText {
	if t, ok := locales[c.Bot.Locale]; ok {
		return t
	}
	return locales[LocalePTBR]
}

// Locale returns the configured locale, defaulting to pt-BR.
func (c *BotConfiguration) Locale() string {
	if _, ok := locales[c.Bot.Locale]; ok {
		return c.Bot.Locale
	}
	return LocalePTBR
}

// DefaultUserName is the display name used when the caller has none.
func (c *BotConfiguration) DefaultUserName() string {
	return c.text().userName
}

// AdminsOnlyNotice is sent when a non-admin calls an admin-only command.
func (c *BotConfiguration) AdminsOnlyNotice() string {
	if c.Messages.AdminsOnly != "" {
		return c.Messages.AdminsOnly
	}
	return c.text().adminsOnly
}

// GenericFailureNotice is sent when handling an event fails.
func (c *BotConfiguration) GenericFailureNotice() string {
	if c.Messages.GenericFailure != "" {
		return c.Messages.GenericFailure
	}
	return c.text().genericFailure
}

// BannedNotice confirms a ban.
func (c *BotConfiguration) BannedNotice(target string) string {
	return fmt.Sprintf(c.text().banned, target)
}

// MutedNotice confirms a mute for the duration as the admin typed it.
func (c *BotConfiguration) MutedNotice(target, duration string) string {
	return fmt.Sprintf(c.text().muted, target, duration)
}

// WarningNotice is the warning posted for a member.
func (c *BotConfiguration) WarningNotice(target string) string {
	return fmt.Sprintf(c.text().warned, target)
}

// PollDefaults fills a poll's missing question and options.
func (c *BotConfiguration) PollDefaults(p Poll) Poll {
	t := c.text()
	if p.Question == "" {
		p.Question = t.pollQuestion
	}
	if len(p.Options) == 0 {
		p.Options = append([]string(nil), t.pollOptions...)
	}
	return p
}

// Location returns the bot's timezone or the given fallback.
func (c *BotConfiguration) Location(fallback *time.Location) *time.Location {
	if c.Bot.Timezone != "" {
		if loc, err := time.LoadLocation(c.Bot.Timezone); err == nil {
			return loc
		}
	}
	if fallback == nil {
		return time.Local
	}
	return fallback
}

// Resolved returns a copy of the signal config with defaults applied.
// Zero durations fall back to the given process-wide defaults.
func (s SignalConfig) Resolved(stepDelay time.Duration, rotateEvery int) SignalConfig {
	if len(s.Classes) == 0 {
		s.Classes = DefaultClasses()
	}
	if s.Interval == 0 {
		s.Interval = int(DefaultSignalInterval / time.Second)
	}
	if s.StepDelay == 0 {
		if stepDelay <= 0 {
			stepDelay = DefaultStepDelay
		}
		s.StepDelay = int(stepDelay / time.Second)
	}
	if s.RotateEvery == 0 {
		if rotateEvery <= 0 {
			rotateEvery = DefaultRotateEvery
		}
		s.RotateEvery = rotateEvery
	}
	if s.ButtonText == "" {
		s.ButtonText = DefaultButtonText
	}
	return s
}
