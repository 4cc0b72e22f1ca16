// Package transporttest provides an in-memory transport that records every
// outbound call, for use in tests.
package transporttest

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/CardosoB8/Bot-telegram2025/internal/transport"
)

// Kinds of recorded calls.
const (
	KindText   = "text"
	KindImage  = "image"
	KindPoll   = "poll"
	KindEdit   = "edit"
	KindDelete = "delete"
	KindAck    = "ack"
	KindBan    = "ban"
	KindMute   = "mute"
)

// ErrSend is returned by sends when failures are switched on.
var ErrSend = errors.New("send failed")

// Call is one recorded outbound call.
type Call struct {
	Kind      string
	Target    string
	Text      string
	Image     string
	Question  string
	Options   []string
	Anonymous bool
	MessageID int
	Callback  string
	UserID    int64
	Until     time.Time
	Opts      transport.SendOptions
}

// Conn records calls made through it.
type Conn struct {
	mu           sync.Mutex
	calls        []Call
	failSends    bool
	admins       map[int64]bool
	adminErr     error
	adminLookups int
	disconnected bool
	tornDown     bool
	handler      transport.Handler
}

var _ transport.Conn = (*Conn)(nil)

// NewConn returns an empty recording connection.
func NewConn() *Conn {
	return &Conn{admins: map[int64]bool{}}
}

// FailSends makes every send, edit and delete fail with ErrSend.
func (c *Conn) FailSends(fail bool) {
	c.mu.Lock()
	c.failSends = fail
	c.mu.Unlock()
}

// SetAdmin marks a user as chat administrator for the live lookup.
func (c *Conn) SetAdmin(userID int64) {
	c.mu.Lock()
	c.admins[userID] = true
	c.mu.Unlock()
}

// FailAdminLookup makes IsAdministrator return err.
func (c *Conn) FailAdminLookup(err error) {
	c.mu.Lock()
	c.adminErr = err
	c.mu.Unlock()
}

func (c *Conn) record(call Call) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSends && call.Kind != KindAck {
		return ErrSend
	}
	c.calls = append(c.calls, call)
	return nil
}

func (c *Conn) SendText(_ context.Context, target, text string, opts transport.SendOptions) error {
	return c.record(Call{Kind: KindText, Target: target, Text: text, Opts: opts})
}

func (c *Conn) SendImage(_ context.Context, target, image, caption string, opts transport.SendOptions) error {
	return c.record(Call{Kind: KindImage, Target: target, Image: image, Text: caption, Opts: opts})
}

func (c *Conn) SendPoll(_ context.Context, target, question string, options []string, anonymous bool, opts transport.SendOptions) error {
	return c.record(Call{Kind: KindPoll, Target: target, Question: question, Options: options, Anonymous: anonymous, Opts: opts})
}

func (c *Conn) EditText(_ context.Context, target string, messageID int, text string, opts transport.SendOptions) error {
	return c.record(Call{Kind: KindEdit, Target: target, MessageID: messageID, Text: text, Opts: opts})
}

func (c *Conn) DeleteMessage(_ context.Context, target string, messageID int) error {
	return c.record(Call{Kind: KindDelete, Target: target, MessageID: messageID})
}

func (c *Conn) IsAdministrator(_ context.Context, _, userID int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.adminLookups++
	if c.adminErr != nil {
		return false, c.adminErr
	}
	return c.admins[userID], nil
}

func (c *Conn) AcknowledgeCallback(_ context.Context, callbackID string) error {
	return c.record(Call{Kind: KindAck, Callback: callbackID})
}

func (c *Conn) BanMember(_ context.Context, chatID, userID int64) error {
	return c.record(Call{Kind: KindBan, Target: strconv.FormatInt(chatID, 10), UserID: userID})
}

func (c *Conn) RestrictMember(_ context.Context, chatID, userID int64, until time.Time) error {
	return c.record(Call{Kind: KindMute, Target: strconv.FormatInt(chatID, 10), UserID: userID, Until: until})
}

func (c *Conn) Disconnect(_ context.Context, teardown bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
	c.tornDown = c.tornDown || teardown
	return nil
}

// Calls returns a copy of every recorded call.
func (c *Conn) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// CallsOf returns the recorded calls of one kind.
func (c *Conn) CallsOf(kind string) []Call {
	var out []Call
	for _, call := range c.Calls() {
		if call.Kind == kind {
			out = append(out, call)
		}
	}
	return out
}

// Sends counts text, image and poll sends.
func (c *Conn) Sends() int {
	n := 0
	for _, call := range c.Calls() {
		switch call.Kind {
		case KindText, KindImage, KindPoll:
			n++
		}
	}
	return n
}

// AdminLookups counts IsAdministrator calls.
func (c *Conn) AdminLookups() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.adminLookups
}

// Disconnected reports whether Disconnect was called, and whether it asked
// for teardown.
func (c *Conn) Disconnected() (disconnected, tornDown bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected, c.tornDown
}

// Deliver hands an event to the handler registered with this connection.
func (c *Conn) Deliver(ctx context.Context, ev transport.Event) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h != nil {
		h(ctx, ev)
	}
}

// Gateway hands out recording connections.
type Gateway struct {
	mu         sync.Mutex
	connectErr error
	conns      map[string]*Conn
	history    []*Conn
	setup      func(*Conn)
	teardowns  []string
}

var _ transport.Gateway = (*Gateway)(nil)

// NewGateway returns a gateway with no connections.
func NewGateway() *Gateway {
	return &Gateway{conns: map[string]*Conn{}}
}

// FailConnect makes Connect return err.
func (g *Gateway) FailConnect(err error) {
	g.mu.Lock()
	g.connectErr = err
	g.mu.Unlock()
}

// OnConnect runs fn on every new connection before it is returned.
func (g *Gateway) OnConnect(fn func(*Conn)) {
	g.mu.Lock()
	g.setup = fn
	g.mu.Unlock()
}

func (g *Gateway) Connect(_ context.Context, reg transport.Registration) (transport.Conn, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.connectErr != nil {
		return nil, g.connectErr
	}
	c := NewConn()
	c.handler = reg.Handler
	if g.setup != nil {
		g.setup(c)
	}
	g.conns[reg.ID] = c
	g.history = append(g.history, c)
	return c, nil
}

// Teardown records the id of the torn down instance.
func (g *Gateway) Teardown(_ context.Context, id, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.teardowns = append(g.teardowns, id)
	return nil
}

// Teardowns lists the ids passed to Teardown.
func (g *Gateway) Teardowns() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.teardowns...)
}

// Conn returns the latest connection made for an instance id.
func (g *Gateway) Conn(id string) *Conn {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.conns[id]
}

// Connections counts every Connect that succeeded.
func (g *Gateway) Connections() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.history)
}
