package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CardosoB8/Bot-telegram2025/internal/botconfig"
	"github.com/CardosoB8/Bot-telegram2025/internal/logger"
	"github.com/CardosoB8/Bot-telegram2025/internal/router"
	"github.com/CardosoB8/Bot-telegram2025/internal/transport/transporttest"
)

var morning = time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)

type fakeStats struct {
	sent    atomic.Int64
	used    atomic.Int64
	started time.Time
}

func (f *fakeStats) CommandUsed() { f.used.Add(1) }
func (f *fakeStats) MessageSent() { f.sent.Add(1) }
func (f *fakeStats) Summary() (int64, int64, time.Time) {
	return f.sent.Load(), f.used.Load(), f.started
}

func newScheduler(t *testing.T, clock clockwork.Clock) *Scheduler {
	t.Helper()
	s, err := New(logger.Discard(), clock, time.UTC)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func postConfig() *botconfig.BotConfiguration {
	return &botconfig.BotConfiguration{
		Bot: botconfig.Identity{Name: "Promo", Token: "t", Timezone: "UTC"},
		Schedule: []botconfig.ScheduledPost{
			{Time: "09:30", Channel: "@channel", Message: "Bom dia de {bot_name}!"},
		},
	}
}

func TestScheduledPostFiresAtTime(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clock := clockwork.NewFakeClockAt(morning)
	s := newScheduler(t, clock)
	conn := transporttest.NewConn()
	cfg := postConfig()
	stats := &fakeStats{}

	require.NoError(t, s.Register(cfg, Deps{Conn: conn, Table: router.NewTable(cfg, time.UTC), Stats: stats}))
	require.NoError(t, s.Start())

	jobs := s.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC), jobs[0].NextRun.UTC())

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(89*time.Minute + 59*time.Second)
	assert.Never(t, func() bool { return conn.Sends() > 0 }, 100*time.Millisecond, 10*time.Millisecond)

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return conn.Sends() == 1 }, 2*time.Second, 10*time.Millisecond)

	calls := conn.Calls()
	assert.Equal(t, "@channel", calls[0].Target)
	assert.Equal(t, "Bom dia de Promo!", calls[0].Text)
	assert.EqualValues(t, 1, stats.sent.Load())

	assert.Never(t, func() bool { return conn.Sends() > 1 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestStopPreventsFurtherFirings(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clock := clockwork.NewFakeClockAt(morning)
	s := newScheduler(t, clock)
	conn := transporttest.NewConn()
	cfg := postConfig()

	require.NoError(t, s.Register(cfg, Deps{Conn: conn, Table: router.NewTable(cfg, time.UTC)}))
	require.NoError(t, s.Start())
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop(), "stop is idempotent")

	clock.Advance(48 * time.Hour)
	assert.Never(t, func() bool { return conn.Sends() > 0 }, 200*time.Millisecond, 10*time.Millisecond)

	assert.Error(t, s.Start())
	assert.Error(t, s.AddCron("late", "* * * * *", func(context.Context) {}))
}

func TestFailingSendDoesNotStopFutureFirings(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clock := clockwork.NewFakeClockAt(morning)
	s := newScheduler(t, clock)

	var runs atomic.Int64
	require.NoError(t, s.AddDaily("flaky", 9, 0, nil, func(context.Context) {
		runs.Add(1)
		panic("send exploded")
	}))
	require.NoError(t, s.Start())

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Hour)
	require.Eventually(t, func() bool { return runs.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(24 * time.Hour)
	require.Eventually(t, func() bool { return runs.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestWeeklyPostAndTasks(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClockAt(morning) // a Sunday
	s := newScheduler(t, clock)
	cfg := &botconfig.BotConfiguration{
		Bot: botconfig.Identity{Name: "Promo", Token: "t", Admins: []string{"@chefe", "42"}},
		Schedule: []botconfig.ScheduledPost{
			{Time: "10:00", Channel: "@c", Message: "semanal", Days: []string{"segunda"}},
		},
		Tasks: []botconfig.Task{
			{Name: "weekly-report", Type: "report", Schedule: "every sunday at 20:00"},
			{Name: "cleanup", Type: "cleanup", Schedule: "0 3 * * *"},
		},
	}

	require.NoError(t, s.Register(cfg, Deps{Conn: transporttest.NewConn(), Table: router.NewTable(cfg, time.UTC)}))
	require.NoError(t, s.Start())

	next := map[string]time.Time{}
	for _, j := range s.Jobs() {
		next[j.Name] = j.NextRun.UTC()
	}
	assert.Equal(t, time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC), next["post-0@10:00"])
	assert.Equal(t, time.Date(2026, 10, 18, 20, 0, 0, 0, time.UTC), next["weekly-report"])
	assert.Equal(t, time.Date(2026, 10, 19, 3, 0, 0, 0, time.UTC), next["cleanup"])
}

func TestReportTarget(t *testing.T) {
	t.Parallel()

	cfg := &botconfig.BotConfiguration{Bot: botconfig.Identity{Admins: []string{"@chefe", "42"}, DefaultChannel: "@canal"}}
	assert.Equal(t, "@relatorios", reportTarget(botconfig.Task{Action: "send @relatorios"}, cfg))
	assert.Equal(t, "42", reportTarget(botconfig.Task{}, cfg))

	cfg.Bot.Admins = nil
	assert.Equal(t, "@canal", reportTarget(botconfig.Task{}, cfg))
}

func TestReport(t *testing.T) {
	t.Parallel()

	stats := &fakeStats{started: morning}
	stats.sent.Store(12)
	stats.used.Store(3)

	msg := Report(stats, "Promo", morning.Add(90*time.Minute))
	assert.Contains(t, msg, "Relatório Promo")
	assert.Contains(t, msg, "Mensagens enviadas: 12")
	assert.Contains(t, msg, "Comandos usados: 3")
	assert.Contains(t, msg, "1h30m0s")
}
