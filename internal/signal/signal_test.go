package signal

import (
	"context"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CardosoB8/Bot-telegram2025/internal/botconfig"
	"github.com/CardosoB8/Bot-telegram2025/internal/logger"
	"github.com/CardosoB8/Bot-telegram2025/internal/transport/transporttest"
)

const (
	warmUp   = 5 * time.Second
	interval = 180 * time.Second
	step     = 2 * time.Second
)

func TestPickDistribution(t *testing.T) {
	t.Parallel()

	classes := botconfig.DefaultClasses()
	r := rand.New(rand.NewPCG(7, 11))

	const draws = 10000
	counts := make([]int, len(classes))
	for range draws {
		d := Pick(r, classes)
		c := classes[d.Class]
		require.GreaterOrEqual(t, d.Value, c.Min, "class %s", c.Name)
		require.LessOrEqual(t, d.Value, c.Max, "class %s", c.Name)
		counts[d.Class]++
	}

	purple := float64(counts[0]) / draws
	assert.InDelta(t, 0.75, purple, 0.03)
	assert.InDelta(t, 0.25, 1-purple, 0.03)
}

func TestPickCoversWholeRange(t *testing.T) {
	t.Parallel()

	classes := []botconfig.OutcomeClass{{Name: "only", Weight: 1, Min: 3, Max: 5}}
	r := rand.New(rand.NewPCG(1, 2))

	seen := map[int]bool{}
	for range 500 {
		d := Pick(r, classes)
		assert.Equal(t, 0, d.Class)
		seen[d.Value] = true
	}
	assert.Equal(t, map[int]bool{3: true, 4: true, 5: true}, seen)
}

func TestMessages(t *testing.T) {
	t.Parallel()

	cfg := botconfig.SignalConfig{
		Links:  []string{"https://a.example", "https://b.example"},
		Brands: map[string]string{"https://a.example": "Alpha"},
	}
	assert.Equal(t, "Alpha", Brand(cfg, 0))
	assert.Equal(t, "Casa 2", Brand(cfg, 1))

	assert.Equal(t,
		"🚀 <b>ENTRADA CONFIRMADA</b> 🚀\n\n📱 <b>Site:</b> Alpha\n💰 <b>Sair até:</b> 4X\n\n🔄 Realize até 2 proteções.",
		SignalMessage("Alpha", 4))
	assert.Equal(t,
		"📊 <b>ANÁLISE</b>\n━━━━━━━━━━━━━━━━━━\n🟣: 3 | 🌹: 1\n━━━━━━━━━━━━━━━━━━\nBateu meta? Partilha!",
		AnalysisMessage(botconfig.DefaultClasses(), []int{3, 1}))
	assert.Contains(t, AnalysisMessage([]botconfig.OutcomeClass{{Name: "x"}}, []int{2}), "x: 2")
}

type harness struct {
	gen   *Generator
	conn  *transporttest.Conn
	clock *clockwork.FakeClock
	ctx   context.Context
}

func newHarness(t *testing.T, cfg botconfig.SignalConfig) *harness {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	h := &harness{
		conn:  transporttest.NewConn(),
		clock: clockwork.NewFakeClockAt(time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)),
		ctx:   ctx,
	}
	gen, err := New(Options{
		Config: cfg.Resolved(step, 4),
		Target: "@sinais",
		Conn:   h.conn,
		WarmUp: warmUp,
		Clock:  h.clock,
		Rand:   rand.New(rand.NewPCG(3, 5)),
		Logger: logger.Discard(),
	})
	require.NoError(t, err)
	t.Cleanup(gen.Stop)
	h.gen = gen
	return h
}

// cycle fires the pending timer and the step delay, then waits until the
// next cycle is scheduled.
func (h *harness) cycle(t *testing.T, wait time.Duration) {
	t.Helper()
	require.NoError(t, h.clock.BlockUntilContext(h.ctx, 1))
	h.clock.Advance(wait)
	require.NoError(t, h.clock.BlockUntilContext(h.ctx, 1))
	h.clock.Advance(step)
	require.NoError(t, h.clock.BlockUntilContext(h.ctx, 1))
}

func twoLinks() botconfig.SignalConfig {
	return botconfig.SignalConfig{
		Image:  "https://img.example/banner.png",
		Links:  []string{"https://a.example", "https://b.example"},
		Brands: map[string]string{"https://a.example": "Alpha", "https://b.example": "Beta"},
	}
}

func TestCycleSendsSignalAndAnalysis(t *testing.T) {
	t.Parallel()

	h := newHarness(t, twoLinks())
	h.gen.Start()

	require.NoError(t, h.clock.BlockUntilContext(h.ctx, 1))
	h.clock.Advance(warmUp - time.Second)
	assert.Never(t, func() bool { return h.conn.Sends() > 0 }, 100*time.Millisecond, 10*time.Millisecond)
	h.clock.Advance(time.Second)

	require.NoError(t, h.clock.BlockUntilContext(h.ctx, 1))
	images := h.conn.CallsOf(transporttest.KindImage)
	require.Len(t, images, 1)
	assert.Equal(t, "@sinais", images[0].Target)
	assert.Equal(t, "https://img.example/banner.png", images[0].Image)
	assert.Contains(t, images[0].Text, "<b>Site:</b> Alpha")
	require.Len(t, images[0].Opts.Keyboard, 1)
	assert.Equal(t, botconfig.DefaultButtonText, images[0].Opts.Keyboard[0][0].Text)
	assert.Equal(t, "https://a.example", images[0].Opts.Keyboard[0][0].URL)
	assert.Empty(t, h.conn.CallsOf(transporttest.KindText), "analysis waits for the step delay")

	h.clock.Advance(step)
	require.NoError(t, h.clock.BlockUntilContext(h.ctx, 1))
	texts := h.conn.CallsOf(transporttest.KindText)
	require.Len(t, texts, 1)
	assert.True(t, strings.HasPrefix(texts[0].Text, "📊 <b>ANÁLISE</b>"))

	st := h.gen.State()
	assert.Equal(t, 1, st.Cycles)
	assert.Equal(t, 1, st.Counters["purple"]+st.Counters["pink"])
}

func TestRotationAfterFourCycles(t *testing.T) {
	t.Parallel()

	h := newHarness(t, twoLinks())
	h.gen.Start()

	h.cycle(t, warmUp)
	for range 2 {
		h.cycle(t, interval)
	}
	assert.Equal(t, 0, h.gen.State().TargetIndex, "no rotation on cycles 1-3")
	for _, c := range h.conn.CallsOf(transporttest.KindText) {
		assert.NotContains(t, c.Text, "NOVA CASA")
	}

	h.cycle(t, interval)
	st := h.gen.State()
	assert.Equal(t, 1, st.TargetIndex)
	assert.Equal(t, "https://b.example", st.Target)
	assert.Equal(t, 4, st.Cycles)

	texts := h.conn.CallsOf(transporttest.KindText)
	last := texts[len(texts)-1]
	assert.Contains(t, last.Text, "NOVA CASA")
	assert.Contains(t, last.Text, "Beta")
	assert.Equal(t, "https://b.example", last.Opts.Keyboard[0][0].URL)

	h.cycle(t, interval)
	images := h.conn.CallsOf(transporttest.KindImage)
	require.Len(t, images, 5)
	assert.Contains(t, images[4].Text, "Beta")

	total := 0
	for _, n := range h.gen.State().Counters {
		total += n
	}
	assert.Equal(t, 5, total)
}

func TestRotationWraps(t *testing.T) {
	t.Parallel()

	cfg := twoLinks()
	cfg.RotateEvery = 1
	h := newHarness(t, cfg)
	h.gen.Start()

	h.cycle(t, warmUp)
	assert.Equal(t, 1, h.gen.State().TargetIndex)
	h.cycle(t, interval)
	assert.Equal(t, 0, h.gen.State().TargetIndex)
}

func TestTextSignalWithoutImage(t *testing.T) {
	t.Parallel()

	cfg := twoLinks()
	cfg.Image = ""
	h := newHarness(t, cfg)
	h.gen.Start()
	h.cycle(t, warmUp)

	assert.Empty(t, h.conn.CallsOf(transporttest.KindImage))
	texts := h.conn.CallsOf(transporttest.KindText)
	require.Len(t, texts, 2)
	assert.Contains(t, texts[0].Text, "ENTRADA CONFIRMADA")
}

func TestStopPreventsFurtherSends(t *testing.T) {
	t.Parallel()

	h := newHarness(t, twoLinks())
	h.gen.Start()
	h.cycle(t, warmUp)
	sent := h.conn.Sends()

	h.gen.Stop()
	h.gen.Stop()

	h.clock.Advance(24 * time.Hour)
	assert.Never(t, func() bool { return h.conn.Sends() > sent }, 200*time.Millisecond, 10*time.Millisecond)
}

func TestStopDuringStepDelay(t *testing.T) {
	t.Parallel()

	h := newHarness(t, twoLinks())
	h.gen.Start()

	require.NoError(t, h.clock.BlockUntilContext(h.ctx, 1))
	h.clock.Advance(warmUp)
	require.NoError(t, h.clock.BlockUntilContext(h.ctx, 1))
	require.Equal(t, 1, h.conn.Sends())

	h.gen.Stop()
	h.clock.Advance(time.Hour)
	assert.Never(t, func() bool { return h.conn.Sends() > 1 }, 200*time.Millisecond, 10*time.Millisecond)
}

func TestSendFailureStillReschedules(t *testing.T) {
	t.Parallel()

	h := newHarness(t, twoLinks())
	h.conn.FailSends(true)
	h.gen.Start()

	require.NoError(t, h.clock.BlockUntilContext(h.ctx, 1))
	h.clock.Advance(warmUp)
	require.NoError(t, h.clock.BlockUntilContext(h.ctx, 1))
	assert.Equal(t, 0, h.conn.Sends())
	assert.Equal(t, 0, h.gen.State().Cycles)

	h.conn.FailSends(false)
	h.clock.Advance(interval)
	require.NoError(t, h.clock.BlockUntilContext(h.ctx, 1))
	h.clock.Advance(step)
	require.NoError(t, h.clock.BlockUntilContext(h.ctx, 1))
	assert.Equal(t, 2, h.conn.Sends())
	assert.Equal(t, 1, h.gen.State().Cycles)
}

func TestNewRejectsIncompleteOptions(t *testing.T) {
	t.Parallel()

	conn := transporttest.NewConn()
	full := botconfig.SignalConfig{Links: []string{"https://a.example"}}.Resolved(step, 4)

	tests := []struct {
		name string
		opts Options
	}{
		{name: "no connection", opts: Options{Config: full, Target: "@c"}},
		{name: "no target", opts: Options{Config: full, Conn: conn}},
		{name: "no links", opts: Options{Config: botconfig.SignalConfig{Classes: botconfig.DefaultClasses()}, Target: "@c", Conn: conn}},
		{name: "no classes", opts: Options{Config: botconfig.SignalConfig{Links: []string{"x"}}, Target: "@c", Conn: conn}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(tt.opts)
			assert.Error(t, err)
		})
	}
}
