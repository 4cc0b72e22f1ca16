// Package lifecycle owns every bot instance: it creates them from validated
// configurations, moves them through Created, Running, Stopped and Destroyed,
// and is the only registry mapping instance ids to instances.
package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/CardosoB8/Bot-telegram2025/internal/botconfig"
	"github.com/CardosoB8/Bot-telegram2025/internal/database"
	apperrors "github.com/CardosoB8/Bot-telegram2025/internal/errors"
	"github.com/CardosoB8/Bot-telegram2025/internal/render"
	"github.com/CardosoB8/Bot-telegram2025/internal/scheduler"
	"github.com/CardosoB8/Bot-telegram2025/internal/signal"
	"github.com/CardosoB8/Bot-telegram2025/internal/transport"
)

// State is the lifecycle state of an instance.
type State string

const (
	StateCreated   State = "created"
	StateRunning   State = "running"
	StateStopped   State = "stopped"
	StateDestroyed State = "destroyed"
)

// Action is a control request.
type Action string

const (
	ActionStart   Action = "start"
	ActionStop    Action = "stop"
	ActionRestart Action = "restart"
	ActionStatus  Action = "status"
)

// SignalDefaults are the process-wide signal tunings a SignalConfig may
// override.
type SignalDefaults struct {
	WarmUp      time.Duration
	StepDelay   time.Duration
	RotateEvery int
}

// Options configure a Manager.
type Options struct {
	Gateway transport.Gateway
	// Store persists definitions when set.
	Store    database.Store
	Clock    clockwork.Clock
	Logger   *slog.Logger
	Location *time.Location
	Signal   SignalDefaults
	// Rand seeds each signal generator. Defaults to a randomly seeded PCG.
	Rand func() *rand.Rand
}

// Info describes one instance.
type Info struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	Type      string              `json:"type"`
	Status    State               `json:"status"`
	Counts    botconfig.Stats     `json:"counts"`
	Stats     StatsView           `json:"stats"`
	Jobs      []scheduler.JobInfo `json:"jobs,omitempty"`
	Signal    *signal.State       `json:"signal,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	Warnings  []string            `json:"warnings,omitempty"`
}

type instance struct {
	id        string
	cfg       *botconfig.BotConfiguration
	counts    botconfig.Stats
	createdAt time.Time
	logger    *slog.Logger
	stats     *Stats

	// ctl serializes transitions of this instance.
	ctl sync.Mutex

	mu    sync.Mutex
	state State
	rt    *runtime
}

func (inst *instance) snapshot() (State, *runtime) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.state, inst.rt
}

func (inst *instance) set(state State, rt *runtime) {
	inst.mu.Lock()
	inst.state = state
	inst.rt = rt
	inst.mu.Unlock()
}

func (inst *instance) info() Info {
	state, rt := inst.snapshot()
	info := Info{
		ID:        inst.id,
		Name:      inst.cfg.Bot.Name,
		Type:      inst.counts.Type,
		Status:    state,
		Counts:    inst.counts,
		Stats:     inst.stats.view(),
		CreatedAt: inst.createdAt,
	}
	if rt != nil {
		info.Jobs = rt.sched.Jobs()
		if rt.gen != nil {
			st := rt.gen.State()
			info.Signal = &st
		}
	}
	return info
}

// Manager is the registry of bot instances.
type Manager struct {
	gateway  transport.Gateway
	store    database.Store
	clock    clockwork.Clock
	base     *slog.Logger
	logger   *slog.Logger
	location *time.Location
	signal   SignalDefaults
	newRand  func() *rand.Rand

	mu   sync.RWMutex
	bots map[string]*instance
}

// NewManager creates an empty registry.
func NewManager(opts Options) (*Manager, error) {
	if opts.Gateway == nil {
		return nil, fmt.Errorf("lifecycle manager needs a transport gateway")
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Rand == nil {
		opts.Rand = defaultRand
	}
	if opts.Signal.WarmUp == 0 {
		opts.Signal.WarmUp = botconfig.DefaultWarmUp
	}

	return &Manager{
		gateway:  opts.Gateway,
		store:    opts.Store,
		clock:    opts.Clock,
		base:     opts.Logger,
		logger:   opts.Logger.With("component", "lifecycle"),
		location: opts.Location,
		signal:   opts.Signal,
		newRand:  opts.Rand,
		bots:     make(map[string]*instance),
	}, nil
}

func (m *Manager) newID() string {
	short, _, _ := strings.Cut(uuid.NewString(), "-")
	return fmt.Sprintf("bot_%d_%s", m.clock.Now().UnixMilli(), short)
}

func (m *Manager) newInstance(id string, cfg *botconfig.BotConfiguration, counts botconfig.Stats, createdAt time.Time) *instance {
	return &instance{
		id:        id,
		cfg:       cfg,
		counts:    counts,
		createdAt: createdAt,
		logger:    m.base.With("bot_id", id, "bot_name", cfg.Bot.Name),
		stats:     &Stats{},
		state:     StateCreated,
	}
}

func (m *Manager) lookup(id string) (*instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.bots[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(id)
	}
	return inst, nil
}

// Validate checks a configuration without creating anything.
func (m *Manager) Validate(cfg *botconfig.BotConfiguration) botconfig.Result {
	return botconfig.Validate(cfg)
}

// Create validates cfg, brings a new instance up and registers it. Nothing
// is registered when validation or the platform connection fails.
func (m *Manager) Create(ctx context.Context, cfg *botconfig.BotConfiguration) (Info, error) {
	return m.create(ctx, m.newID(), cfg)
}

// CreateWithID is Create under a caller-chosen id. It fails with a
// ConflictError when the id is already registered, including by Restore.
func (m *Manager) CreateWithID(ctx context.Context, id string, cfg *botconfig.BotConfiguration) (Info, error) {
	if id == "" {
		return Info{}, apperrors.NewInvalidActionError("bot id is empty")
	}
	if m.registered(id) {
		return Info{}, apperrors.NewConflictError(fmt.Sprintf("bot %s is already registered", id))
	}
	return m.create(ctx, id, cfg)
}

func (m *Manager) registered(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.bots[id]
	return ok
}

func (m *Manager) create(ctx context.Context, id string, cfg *botconfig.BotConfiguration) (Info, error) {
	res := botconfig.Validate(cfg)
	if err := res.Err(); err != nil {
		m.logger.Info("Rejected invalid bot configuration", "errors", len(res.Errors))
		return Info{}, err
	}

	inst := m.newInstance(id, cfg, res.Stats, m.clock.Now())
	inst.ctl.Lock()
	defer inst.ctl.Unlock()

	if err := m.start(ctx, inst); err != nil {
		inst.logger.Error("Failed to start bot", "error", err)
		return Info{}, err
	}

	m.mu.Lock()
	m.bots[inst.id] = inst
	m.mu.Unlock()
	m.save(ctx, inst)

	inst.logger.Info("Bot created", "type", res.Stats.Type, "warnings", len(res.Warnings))
	info := inst.info()
	info.Warnings = res.Warnings
	return info, nil
}

// List returns every registered instance, oldest first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	insts := make([]*instance, 0, len(m.bots))
	for _, inst := range m.bots {
		insts = append(insts, inst)
	}
	m.mu.RUnlock()

	out := make([]Info, 0, len(insts))
	for _, inst := range insts {
		out = append(out, inst.info())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Get returns one instance.
func (m *Manager) Get(id string) (Info, error) {
	inst, err := m.lookup(id)
	if err != nil {
		return Info{}, err
	}
	return inst.info(), nil
}

// Control applies a lifecycle action. Starting a running instance and
// stopping a stopped one are no-ops.
func (m *Manager) Control(ctx context.Context, id string, action Action) (Info, error) {
	inst, err := m.lookup(id)
	if err != nil {
		return Info{}, err
	}

	inst.ctl.Lock()
	defer inst.ctl.Unlock()

	state, _ := inst.snapshot()
	if state == StateDestroyed {
		return Info{}, apperrors.NewNotFoundError(id)
	}

	switch action {
	case ActionStatus:
	case ActionStart:
		if state != StateRunning {
			if err := m.start(ctx, inst); err != nil {
				inst.logger.Error("Failed to start bot", "error", err)
				return inst.info(), err
			}
			m.saveStatus(ctx, inst, StateRunning)
		}
	case ActionStop:
		if m.stop(ctx, inst, false) {
			m.saveStatus(ctx, inst, StateStopped)
		}
	case ActionRestart:
		m.stop(ctx, inst, false)
		if err := m.start(ctx, inst); err != nil {
			inst.logger.Error("Failed to restart bot", "error", err)
			m.saveStatus(ctx, inst, StateStopped)
			return inst.info(), err
		}
		m.saveStatus(ctx, inst, StateRunning)
	default:
		return Info{}, apperrors.NewInvalidActionError(
			fmt.Sprintf("unknown action %q, expected start, stop, restart or status", action))
	}

	return inst.info(), nil
}

// Delete stops the instance, tears down its platform registration and
// removes it for good.
func (m *Manager) Delete(ctx context.Context, id string) error {
	inst, err := m.lookup(id)
	if err != nil {
		return err
	}

	inst.ctl.Lock()
	defer inst.ctl.Unlock()

	if state, _ := inst.snapshot(); state == StateDestroyed {
		return apperrors.NewNotFoundError(id)
	}

	if !m.stop(ctx, inst, true) {
		if err := m.gateway.Teardown(ctx, inst.id, inst.cfg.Bot.Token); err != nil {
			inst.logger.Warn("Failed to tear down platform registration", "error", err)
		}
	}
	inst.set(StateDestroyed, nil)

	m.mu.Lock()
	delete(m.bots, id)
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.DeleteBot(ctx, id); err != nil {
			inst.logger.Error("Failed to delete stored bot", "error", err)
		}
	}
	inst.logger.Info("Bot deleted")
	return nil
}

// SendTest sends one text message through a running instance. An empty
// target means the bot's default channel; an empty text sends a default
// test message.
func (m *Manager) SendTest(ctx context.Context, id, target, text string) error {
	inst, err := m.lookup(id)
	if err != nil {
		return err
	}

	state, rt := inst.snapshot()
	if state != StateRunning || rt == nil {
		return apperrors.NewConflictError(fmt.Sprintf("bot %s is %s", id, state))
	}
	if target == "" {
		target = inst.cfg.Bot.DefaultChannel
	}
	if target == "" {
		return apperrors.NewInvalidActionError("no target given and bot has no default_channel")
	}
	if text == "" {
		text = "✅ Mensagem de teste de <b>{bot_name}</b> ({date} {time})"
	}

	msg := render.Render(text, rt.table.RenderContext(transport.User{}, "", m.clock.Now()))
	if err := rt.conn.SendText(ctx, target, msg, transport.SendOptions{}); err != nil {
		inst.logger.Warn("Test message failed", "target", target, "error", err)
		return err
	}
	inst.stats.MessageSent()
	return nil
}

// Restore re-creates the stored instances, starting those that were
// running. It returns how many instances were registered.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	if m.store == nil {
		return 0, nil
	}

	recs, err := m.store.ListBots(ctx)
	if err != nil {
		return 0, err
	}

	restored := 0
	for _, rec := range recs {
		log := m.logger.With("bot_id", rec.ID)

		cfg, err := botconfig.Parse([]byte(rec.Config))
		if err != nil {
			log.Error("Skipping stored bot with unreadable configuration", "error", err)
			continue
		}
		res := botconfig.Validate(cfg)
		if err := res.Err(); err != nil {
			log.Error("Skipping stored bot with invalid configuration", "error", err)
			continue
		}

		if m.registered(rec.ID) {
			continue
		}

		inst := m.newInstance(rec.ID, cfg, res.Stats, rec.CreatedAt)
		inst.set(StateStopped, nil)
		if State(rec.Status) == StateRunning {
			if err := m.start(ctx, inst); err != nil {
				log.Warn("Stored bot could not be started, keeping it stopped", "error", err)
				m.saveStatus(ctx, inst, StateStopped)
			}
		}

		m.mu.Lock()
		m.bots[inst.id] = inst
		m.mu.Unlock()
		restored++
	}

	m.logger.Info("Restored stored bots", "count", restored)
	return restored, nil
}

// Shutdown stops every running instance without touching what is stored,
// so Restore brings them back on the next boot.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	insts := make([]*instance, 0, len(m.bots))
	for _, inst := range m.bots {
		insts = append(insts, inst)
	}
	m.mu.RUnlock()

	var g errgroup.Group
	for _, inst := range insts {
		g.Go(func() error {
			inst.ctl.Lock()
			defer inst.ctl.Unlock()

			_, rt := inst.snapshot()
			if rt == nil {
				return nil
			}
			err := m.release(ctx, rt, false)
			inst.set(StateStopped, nil)
			if err != nil {
				return fmt.Errorf("bot %s: %w", inst.id, err)
			}
			return nil
		})
	}
	err := g.Wait()
	m.logger.Info("All bots stopped", "count", len(insts))
	return err
}

// start brings an instance to Running. The caller holds inst.ctl.
func (m *Manager) start(ctx context.Context, inst *instance) error {
	rt, err := m.startRuntime(ctx, inst)
	if err != nil {
		return err
	}
	inst.stats.markStarted(m.clock.Now())
	inst.set(StateRunning, rt)
	inst.logger.Info("Bot running")
	return nil
}

// stop brings an instance to Stopped and reports whether it was running.
// The caller holds inst.ctl.
func (m *Manager) stop(ctx context.Context, inst *instance, teardown bool) bool {
	state, rt := inst.snapshot()
	if rt == nil {
		if state == StateCreated {
			inst.set(StateStopped, nil)
		}
		return false
	}

	if err := m.release(ctx, rt, teardown); err != nil {
		inst.logger.Warn("Error while disconnecting bot", "error", err)
	}
	inst.set(StateStopped, nil)
	inst.logger.Info("Bot stopped", "teardown", teardown)
	return true
}

func (m *Manager) save(ctx context.Context, inst *instance) {
	if m.store == nil {
		return
	}
	raw, err := json.Marshal(inst.cfg)
	if err != nil {
		inst.logger.Error("Failed to encode configuration for storage", "error", err)
		return
	}
	state, _ := inst.snapshot()
	rec := &database.BotRecord{
		ID:        inst.id,
		Name:      inst.cfg.Bot.Name,
		Config:    string(raw),
		Status:    string(state),
		CreatedAt: inst.createdAt,
	}
	if err := m.store.SaveBot(ctx, rec); err != nil {
		inst.logger.Error("Failed to store bot", "error", err)
	}
}

func (m *Manager) saveStatus(ctx context.Context, inst *instance, state State) {
	if m.store == nil {
		return
	}
	if err := m.store.UpdateStatus(ctx, inst.id, string(state)); err != nil {
		inst.logger.Error("Failed to store bot status", "status", state, "error", err)
	}
}
