package lifecycle

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/CardosoB8/Bot-telegram2025/internal/botconfig"
	apperrors "github.com/CardosoB8/Bot-telegram2025/internal/errors"
	"github.com/CardosoB8/Bot-telegram2025/internal/router"
	"github.com/CardosoB8/Bot-telegram2025/internal/scheduler"
	"github.com/CardosoB8/Bot-telegram2025/internal/signal"
	"github.com/CardosoB8/Bot-telegram2025/internal/transport"
)

// runtime holds everything a running instance owns. It is built on start and
// discarded on stop; nothing in it outlives one Running period.
type runtime struct {
	conn  transport.Conn
	table *router.Table
	sched *scheduler.Scheduler
	gen   *signal.Generator
	clock clockwork.Clock
	deps  router.Deps

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	timers  map[*clockwork.Timer]struct{}
	closing bool
	pending sync.WaitGroup
}

// later runs fn after delay on the instance's context. Timers still pending
// when the instance stops are cancelled.
func (rt *runtime) later(delay time.Duration, fn func(ctx context.Context)) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.closing {
		return
	}

	var t clockwork.Timer
	key := &t
	rt.pending.Add(1)
	t = rt.clock.AfterFunc(delay, func() {
		defer rt.pending.Done()
		rt.mu.Lock()
		delete(rt.timers, key)
		rt.mu.Unlock()
		if rt.ctx.Err() == nil {
			fn(rt.ctx)
		}
	})
	rt.timers[key] = struct{}{}
}

// handle dispatches one inbound event. Events that arrive before the
// connection is published or after the instance stopped are dropped.
func (rt *runtime) handle(ctx context.Context, ev transport.Event) {
	rt.mu.Lock()
	conn, closing := rt.conn, rt.closing
	rt.mu.Unlock()
	if conn == nil || closing || rt.ctx.Err() != nil {
		return
	}

	d := rt.deps
	d.Conn = conn
	router.Dispatch(ctx, d, rt.table, ev)
}

// startRuntime builds the router table, connects to the platform, registers
// the scheduled jobs and the signal generator, then starts them. On failure
// everything built so far is released.
func (m *Manager) startRuntime(ctx context.Context, inst *instance) (*runtime, error) {
	cfg := inst.cfg
	log := inst.logger
	loc := cfg.Location(m.location)

	rtCtx, cancel := context.WithCancel(context.Background())
	rt := &runtime{
		table:  router.NewTable(cfg, loc),
		clock:  m.clock,
		ctx:    rtCtx,
		cancel: cancel,
		timers: make(map[*clockwork.Timer]struct{}),
	}

	rt.deps = router.Deps{
		Clock:  m.clock,
		Logger: log,
		Stats:  inst.stats,
		Later:  rt.later,
	}

	conn, err := m.gateway.Connect(ctx, transport.Registration{
		ID:      inst.id,
		Token:   cfg.Bot.Token,
		Handler: rt.handle,
		Logger:  log,
	})
	if err != nil {
		cancel()
		if apperrors.Code(err) == apperrors.CodeUnknown {
			err = apperrors.NewTransportError("connect", err)
		}
		return nil, err
	}
	rt.mu.Lock()
	rt.conn = conn
	rt.mu.Unlock()

	sched, err := scheduler.New(log, m.clock, loc)
	if err != nil {
		_ = m.release(ctx, rt, false)
		return nil, err
	}
	rt.sched = sched
	if err := sched.Register(cfg, scheduler.Deps{Conn: conn, Table: rt.table, Stats: inst.stats}); err != nil {
		_ = m.release(ctx, rt, false)
		return nil, apperrors.NewConfigurationError([]string{err.Error()}, nil)
	}

	if cfg.Kind() == botconfig.TypeSignal && cfg.Signal != nil {
		sc := cfg.Signal.Resolved(m.signal.StepDelay, m.signal.RotateEvery)
		target := sc.Channel
		if target == "" {
			target = cfg.Bot.DefaultChannel
		}
		gen, err := signal.New(signal.Options{
			Config: sc,
			Target: target,
			Conn:   conn,
			WarmUp: m.signal.WarmUp,
			Clock:  m.clock,
			Rand:   m.newRand(),
			Logger: log,
			Stats:  inst.stats,
		})
		if err != nil {
			_ = m.release(ctx, rt, false)
			return nil, apperrors.NewConfigurationError([]string{err.Error()}, nil)
		}
		rt.gen = gen
	}

	if err := sched.Start(); err != nil {
		_ = m.release(ctx, rt, false)
		return nil, err
	}
	if rt.gen != nil {
		rt.gen.Start()
	}
	return rt, nil
}

// release stops every timer of the runtime, then disconnects. After it
// returns nothing sends on the instance's behalf.
func (m *Manager) release(ctx context.Context, rt *runtime, teardown bool) error {
	rt.mu.Lock()
	rt.closing = true
	rt.cancel()
	for key := range rt.timers {
		if (*key).Stop() {
			rt.pending.Done()
		}
		delete(rt.timers, key)
	}
	rt.mu.Unlock()
	rt.pending.Wait()

	if rt.gen != nil {
		rt.gen.Stop()
	}
	if rt.sched != nil {
		if err := rt.sched.Stop(); err != nil {
			m.logger.Warn("Scheduler did not stop cleanly", "error", err)
		}
	}

	if rt.conn == nil {
		return nil
	}
	return rt.conn.Disconnect(ctx, teardown)
}

func defaultRand() *rand.Rand {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // not security sensitive
}
