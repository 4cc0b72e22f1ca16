package signal

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/CardosoB8/Bot-telegram2025/internal/botconfig"
	"github.com/CardosoB8/Bot-telegram2025/internal/router"
	"github.com/CardosoB8/Bot-telegram2025/internal/transport"
)

// Options configure a Generator.
type Options struct {
	// Config must already have defaults applied (see SignalConfig.Resolved).
	Config botconfig.SignalConfig
	// Target is the chat signals go to.
	Target string
	Conn   transport.Conn
	WarmUp time.Duration

	Clock  clockwork.Clock
	Rand   *rand.Rand
	Logger *slog.Logger
	Stats  router.Recorder
}

// State is a snapshot of a generator's private counters.
type State struct {
	TargetIndex int            `json:"target_index"`
	Target      string         `json:"target"`
	Cycles      int            `json:"cycles"`
	Counters    map[string]int `json:"counters"`
}

// Generator broadcasts one signal cycle per interval until stopped.
type Generator struct {
	cfg    botconfig.SignalConfig
	target string
	conn   transport.Conn
	warmUp time.Duration
	clock  clockwork.Clock
	rand   *rand.Rand
	logger *slog.Logger
	stats  router.Recorder

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	timer   clockwork.Timer
	started bool
	stopped bool
	index   int
	cycles  int
	counts  []int
}

// New builds a stopped generator.
func New(opts Options) (*Generator, error) {
	if opts.Conn == nil {
		return nil, errors.New("signal generator needs a connection")
	}
	if opts.Target == "" {
		return nil, errors.New("signal generator needs a target chat")
	}
	if len(opts.Config.Links) == 0 {
		return nil, errors.New("signal generator needs at least one link")
	}
	if len(opts.Config.Classes) == 0 {
		return nil, errors.New("signal generator needs at least one outcome class")
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // not security sensitive
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.WarmUp < 0 {
		opts.WarmUp = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Generator{
		cfg:    opts.Config,
		target: opts.Target,
		conn:   opts.Conn,
		warmUp: opts.WarmUp,
		clock:  opts.Clock,
		rand:   opts.Rand,
		logger: opts.Logger.With("component", "signal", "target", opts.Target),
		stats:  opts.Stats,
		ctx:    ctx,
		cancel: cancel,
		counts: make([]int, len(opts.Config.Classes)),
	}, nil
}

// Start schedules the first cycle after the warm-up delay.
func (g *Generator) Start() {
	g.mu.Lock()
	if g.started || g.stopped {
		g.mu.Unlock()
		return
	}
	g.started = true
	g.mu.Unlock()

	g.logger.Info("Signal generator started",
		"links", len(g.cfg.Links),
		"interval_s", g.cfg.Interval,
		"warmup", g.warmUp)
	g.schedule(g.warmUp)
}

// Stop cancels the pending cycle and waits for a running one to finish.
// No send is issued after Stop returns.
func (g *Generator) Stop() {
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return
	}
	g.stopped = true
	g.cancel()
	if g.timer != nil && g.timer.Stop() {
		g.wg.Done()
	}
	g.mu.Unlock()

	g.wg.Wait()
	g.logger.Info("Signal generator stopped")
}

// State returns a snapshot of the counters and the active target.
func (g *Generator) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()

	counters := make(map[string]int, len(g.counts))
	for i, c := range g.cfg.Classes {
		counters[c.Name] = g.counts[i]
	}
	return State{
		TargetIndex: g.index,
		Target:      g.cfg.Links[g.index],
		Cycles:      g.cycles,
		Counters:    counters,
	}
}

func (g *Generator) schedule(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.stopped {
		return
	}
	g.wg.Add(1)
	g.timer = g.clock.AfterFunc(d, func() {
		defer g.wg.Done()
		g.cycle(g.ctx)
		g.schedule(time.Duration(g.cfg.Interval) * time.Second)
	})
}

func (g *Generator) cycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("Recovered from panic in signal cycle", "panic", r)
		}
	}()

	g.mu.Lock()
	index := g.index
	g.mu.Unlock()

	draw := Pick(g.rand, g.cfg.Classes)
	link := g.cfg.Links[index]
	brand := Brand(g.cfg, index)
	log := g.logger.With("brand", brand, "class", g.cfg.Classes[draw.Class].Name, "value", draw.Value)

	if err := g.send(ctx, SignalMessage(brand, draw.Value), g.cfg.Image, link); err != nil {
		log.Error("Failed to send signal", "error", err)
		return
	}

	g.mu.Lock()
	g.counts[draw.Class]++
	counts := append([]int(nil), g.counts...)
	g.mu.Unlock()

	select {
	case <-g.clock.After(time.Duration(g.cfg.StepDelay) * time.Second):
	case <-ctx.Done():
		return
	}

	if err := g.send(ctx, AnalysisMessage(g.cfg.Classes, counts), "", ""); err != nil {
		log.Error("Failed to send analysis", "error", err)
	}

	g.mu.Lock()
	g.cycles++
	rotate := g.cycles%g.cfg.RotateEvery == 0
	if rotate {
		g.index = (g.index + 1) % len(g.cfg.Links)
		index = g.index
	}
	g.mu.Unlock()
	log.Debug("Signal cycle complete")

	if !rotate {
		return
	}
	next := Brand(g.cfg, index)
	if err := g.send(ctx, RotationMessage(next), "", g.cfg.Links[index]); err != nil {
		log.Error("Failed to announce rotation", "error", err, "next", next)
		return
	}
	g.logger.Info("Signal target rotated", "brand", next, "target_index", index)
}

// send delivers one message, with a call-to-action button when link is set.
func (g *Generator) send(ctx context.Context, text, image, link string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p := router.Payload{Text: text, Image: image}
	if link != "" {
		p.Keyboard = transport.Keyboard{{{Text: g.cfg.ButtonText, URL: link}}}
	}
	if err := router.Deliver(ctx, g.conn, g.target, p); err != nil {
		return err
	}
	if g.stats != nil {
		g.stats.MessageSent()
	}
	return nil
}
