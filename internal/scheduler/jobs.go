package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/CardosoB8/Bot-telegram2025/internal/botconfig"
	"github.com/CardosoB8/Bot-telegram2025/internal/router"
	"github.com/CardosoB8/Bot-telegram2025/internal/transport"
)

// Stats is the instance statistics a report task reads and scheduled
// posts update.
type Stats interface {
	router.Recorder
	Summary() (messagesSent, commandsUsed int64, startedAt time.Time)
}

// Deps are the collaborators the configured jobs fire through.
type Deps struct {
	Conn  transport.Conn
	Table *router.Table
	Stats Stats
}

// Register creates one job per scheduled post and per task in the
// configuration. The configuration is expected to have passed validation.
func (s *Scheduler) Register(cfg *botconfig.BotConfiguration, d Deps) error {
	for i, post := range cfg.Schedule {
		if err := s.addPost(i, post, cfg, d); err != nil {
			return err
		}
	}
	for i, task := range cfg.Tasks {
		if err := s.addTask(i, task, cfg, d); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) addPost(i int, post botconfig.ScheduledPost, cfg *botconfig.BotConfiguration, d Deps) error {
	at, err := botconfig.ParseClock(post.Time)
	if err != nil {
		return fmt.Errorf("schedule[%d]: %w", i, err)
	}

	days := make([]time.Weekday, 0, len(post.Days))
	for _, name := range post.Days {
		day, err := botconfig.ParseWeekday(name)
		if err != nil {
			return fmt.Errorf("schedule[%d]: %w", i, err)
		}
		days = append(days, day)
	}

	target := post.SendTarget(cfg.Bot.DefaultChannel)
	name := fmt.Sprintf("post-%d@%s", i, at)
	log := s.logger.With("job_name", name, "target", target)

	return s.AddDaily(name, at.Hour, at.Minute, days, func(ctx context.Context) {
		ctxMap := d.Table.RenderContext(transport.User{}, "", s.clock.Now())
		p := router.PostPayload(cfg, post, ctxMap)
		if err := router.Deliver(ctx, d.Conn, target, p); err != nil {
			log.Error("Failed to send scheduled post", "error", err)
			return
		}
		if d.Stats != nil {
			d.Stats.MessageSent()
		}
		log.Info("Scheduled post sent")
	})
}

func (s *Scheduler) addTask(i int, task botconfig.Task, cfg *botconfig.BotConfiguration, d Deps) error {
	expr, err := botconfig.ParseTaskSchedule(task.Schedule)
	if err != nil {
		return fmt.Errorf("tasks[%d]: %w", i, err)
	}

	name := task.Name
	if name == "" {
		name = fmt.Sprintf("task-%d", i)
	}
	log := s.logger.With("task_name", name, "task_type", task.Type)

	return s.AddCron(name, expr, func(ctx context.Context) {
		switch task.Type {
		case "report":
			target := reportTarget(task, cfg)
			if target == "" {
				log.Warn("Report task has no target")
				return
			}
			if err := d.Conn.SendText(ctx, target, Report(d.Stats, cfg.Bot.Name, s.clock.Now()), transport.SendOptions{}); err != nil {
				log.Error("Failed to send report", "error", err)
				return
			}
			if d.Stats != nil {
				d.Stats.MessageSent()
			}
			log.Info("Report sent", "target", target)
		default:
			log.Info("Maintenance task ran")
		}
	})
}

// reportTarget reads "send <target>" from the task action, falling back to
// the first numeric admin and then the default channel.
func reportTarget(task botconfig.Task, cfg *botconfig.BotConfiguration) string {
	if target, ok := strings.CutPrefix(strings.TrimSpace(task.Action), "send "); ok {
		if target = strings.TrimSpace(target); target != "" {
			return target
		}
	}
	for _, a := range cfg.Bot.Admins {
		if _, err := strconv.ParseInt(a, 10, 64); err == nil {
			return a
		}
	}
	return cfg.Bot.DefaultChannel
}

// Report formats the statistics message sent by report tasks.
func Report(stats Stats, botName string, now time.Time) string {
	var sent, used int64
	var started time.Time
	if stats != nil {
		sent, used, started = stats.Summary()
	}
	if botName == "" {
		botName = "Bot"
	}

	uptime := "-"
	if !started.IsZero() {
		uptime = now.Sub(started).Truncate(time.Minute).String()
	}

	return fmt.Sprintf("📊 <b>Relatório %s</b>\n\n✉️ Mensagens enviadas: %d\n⌨️ Comandos usados: %d\n⏱️ Online há: %s",
		botName, sent, used, uptime)
}
