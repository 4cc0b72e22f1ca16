package router

import (
	"context"

	"github.com/CardosoB8/Bot-telegram2025/internal/botconfig"
	"github.com/CardosoB8/Bot-telegram2025/internal/render"
	"github.com/CardosoB8/Bot-telegram2025/internal/transport"
)

// Payload is one rendered outbound message.
type Payload struct {
	Text           string
	Image          string
	Poll           *botconfig.Poll
	Keyboard       transport.Keyboard
	DisablePreview bool
}

// Empty reports whether there is nothing to send.
func (p Payload) Empty() bool {
	return p.Text == "" && p.Image == "" && p.Poll == nil
}

// CommandPayload renders a command or callback response.
func CommandPayload(cfg *botconfig.BotConfiguration, spec botconfig.CommandSpec, ctx map[string]string) Payload {
	return build(cfg, spec.Content(), spec.Image, spec.Poll, spec.Buttons, spec.DisablePreview, ctx)
}

// PostPayload renders a scheduled post.
func PostPayload(cfg *botconfig.BotConfiguration, post botconfig.ScheduledPost, ctx map[string]string) Payload {
	return build(cfg, post.Message, post.Image, post.Poll, post.Buttons, post.DisablePreview, ctx)
}

func build(cfg *botconfig.BotConfiguration, text, image string, poll *botconfig.Poll, buttons botconfig.ButtonLayout, noPreview bool, ctx map[string]string) Payload {
	p := Payload{
		Text:           render.Render(text, ctx),
		Image:          image,
		Keyboard:       Keyboard(buttons, ctx),
		DisablePreview: noPreview,
	}
	if poll != nil {
		filled := cfg.PollDefaults(*poll)
		filled.Question = render.Render(filled.Question, ctx)
		p.Poll = &filled
	}
	return p
}

// Keyboard converts a configured button layout into an inline keyboard.
func Keyboard(layout botconfig.ButtonLayout, ctx map[string]string) transport.Keyboard {
	if len(layout) == 0 {
		return nil
	}
	kb := make(transport.Keyboard, 0, len(layout))
	for _, row := range layout {
		if len(row) == 0 {
			continue
		}
		out := make([]transport.Button, 0, len(row))
		for _, b := range row {
			out = append(out, transport.Button{
				Text:         render.Render(b.Text, ctx),
				URL:          b.URL,
				CallbackData: b.Callback,
			})
		}
		kb = append(kb, out)
	}
	return kb
}

// Deliver sends a payload with a single attempt: as an image with caption
// when it carries an image, else as a poll, else as plain text. The inline
// keyboard is attached in every case.
func Deliver(ctx context.Context, conn transport.Conn, target string, p Payload) error {
	opts := transport.SendOptions{Keyboard: p.Keyboard, DisablePreview: p.DisablePreview}
	switch {
	case p.Image != "":
		return conn.SendImage(ctx, target, p.Image, p.Text, opts)
	case p.Poll != nil:
		return conn.SendPoll(ctx, target, p.Poll.Question, p.Poll.Options, p.Poll.IsAnonymous(), opts)
	default:
		return conn.SendText(ctx, target, p.Text, opts)
	}
}
