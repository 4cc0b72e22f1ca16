package lifecycle

import (
	"sync/atomic"
	"time"
)

// Stats counts what an instance did. It is shared by the router, the
// scheduler and the signal generator of one instance.
type Stats struct {
	sent    atomic.Int64
	used    atomic.Int64
	started atomic.Int64
}

func (s *Stats) CommandUsed() { s.used.Add(1) }
func (s *Stats) MessageSent() { s.sent.Add(1) }

func (s *Stats) markStarted(t time.Time) {
	s.started.Store(t.UnixNano())
}

// Summary returns the counters and the time the instance last started.
func (s *Stats) Summary() (messagesSent, commandsUsed int64, startedAt time.Time) {
	if ns := s.started.Load(); ns != 0 {
		startedAt = time.Unix(0, ns)
	}
	return s.sent.Load(), s.used.Load(), startedAt
}

// StatsView is the JSON form of Stats.
type StatsView struct {
	MessagesSent int64      `json:"messages_sent"`
	CommandsUsed int64      `json:"commands_used"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
}

func (s *Stats) view() StatsView {
	sent, used, started := s.Summary()
	v := StatsView{MessagesSent: sent, CommandsUsed: used}
	if !started.IsZero() {
		v.StartedAt = &started
	}
	return v
}
