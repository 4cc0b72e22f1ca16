// Package render substitutes placeholder tokens in message templates.
package render

import (
	"regexp"
	"strconv"
	"time"
)

// Recognized tokens.
const (
	UserName  = "user_name"
	UserID    = "user_id"
	ChatTitle = "chat_title"
	BotName   = "bot_name"
	Date      = "date"
	Time      = "time"
)

var recognized = map[string]string{
	UserName:  "Usuário",
	UserID:    "",
	ChatTitle: "Chat",
	BotName:   "Bot",
	Date:      "",
	Time:      "",
}

var tokenRE = regexp.MustCompile(`\{([a-z_]+)\}`)

// Render replaces every recognized {token} in tmpl with its value from ctx.
// Unknown tokens are kept verbatim and substituted values are not scanned
// again. Missing values fall back to the token's default.
func Render(tmpl string, ctx map[string]string) string {
	if tmpl == "" {
		return ""
	}
	return tokenRE.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := m[1 : len(m)-1]
		def, ok := recognized[name]
		if !ok {
			return m
		}
		if v := ctx[name]; v != "" {
			return v
		}
		return def
	})
}

// Locale formats for the date and time tokens.
type Locale struct {
	DefaultUserName string
	DateLayout      string
	TimeLayout      string
}

var (
	PTBR = Locale{DefaultUserName: "Usuário", DateLayout: "02/01/2006", TimeLayout: "15:04:05"}
	EN   = Locale{DefaultUserName: "User", DateLayout: "01/02/2006", TimeLayout: "3:04:05 PM"}
)

// LocaleFor returns the formats for a locale name, defaulting to pt-BR.
func LocaleFor(name string) Locale {
	if name == "en" {
		return EN
	}
	return PTBR
}

// Subject describes who and where an event came from.
type Subject struct {
	UserID    int64
	FirstName string
	Username  string
	ChatTitle string
}

// Context builds the substitution map for one event.
func Context(loc Locale, botName string, s Subject, now time.Time) map[string]string {
	name := s.FirstName
	if name == "" {
		name = s.Username
	}
	if name == "" {
		name = loc.DefaultUserName
	}

	ctx := map[string]string{
		UserName:  name,
		ChatTitle: s.ChatTitle,
		BotName:   botName,
		Date:      now.Format(loc.DateLayout),
		Time:      now.Format(loc.TimeLayout),
	}
	if s.UserID != 0 {
		ctx[UserID] = strconv.FormatInt(s.UserID, 10)
	}
	return ctx
}
