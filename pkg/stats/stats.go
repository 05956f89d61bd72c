// Package stats aggregates per-day usage counters: interventions
// shown, conversations held, urges resisted, guided flows completed.
// Days roll over on a cron schedule and a bounded history is kept.
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"go.uber.org/zap"

	"github.com/mindloop-app/mindloop/pkg/storage"
)

const (
	statsKey = "mindloop_stats_v1"

	// DefaultHistoryCap bounds the day history, oldest evicted first.
	DefaultHistoryCap = 60

	// DefaultRolloverSchedule closes the current day at local midnight.
	DefaultRolloverSchedule = "0 0 * * *"
)

// DayStats is one day's counters. Date is a local-time 2006-01-02 key.
type DayStats struct {
	Date               string `json:"date"`
	InterventionsShown int    `json:"interventionsShown"`
	ConversationsHeld  int    `json:"conversationsHeld"`
	UrgesResisted      int    `json:"urgesResisted"`
	GuidedCompleted    int    `json:"guidedCompleted"`
}

type persisted struct {
	Today   DayStats   `json:"today"`
	History []DayStats `json:"history"`
}

// Service owns the counters. Construct once at process start.
type Service struct {
	kv         storage.KV
	log        *zap.Logger
	schedule   string
	historyCap int
	now        func() time.Time

	mu      sync.Mutex
	today   DayStats
	history []DayStats
}

// NewService validates the rollover schedule with gronx and falls back
// to the default on a bad expression.
func NewService(kv storage.KV, schedule string, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if schedule == "" || !gronx.New().IsValid(schedule) {
		if schedule != "" {
			log.Warn("invalid stats rollover schedule, using default",
				zap.String("schedule", schedule))
		}
		schedule = DefaultRolloverSchedule
	}
	return &Service{
		kv:         kv,
		log:        log,
		schedule:   schedule,
		historyCap: DefaultHistoryCap,
		now:        time.Now,
		history:    []DayStats{},
	}
}

// Load reads persisted counters; missing or corrupt data starts fresh.
func (s *Service) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok, err := s.kv.GetItem(ctx, statsKey)
	if err != nil {
		return fmt.Errorf("load stats: %w", err)
	}
	if !ok {
		s.today = DayStats{Date: s.dayKey(s.now())}
		return nil
	}
	var p persisted
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		s.log.Warn("corrupt stats record, starting fresh", zap.Error(err))
		s.today = DayStats{Date: s.dayKey(s.now())}
		return nil
	}
	s.today = p.Today
	if p.History != nil {
		s.history = p.History
	}
	s.rolloverLocked(ctx)
	return nil
}

func (s *Service) dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// rolloverLocked closes out the current day when the schedule has
// passed since its date. The date key is authoritative; the schedule
// decides whether the boundary has been crossed yet.
func (s *Service) rolloverLocked(ctx context.Context) {
	now := s.now()
	key := s.dayKey(now)
	if s.today.Date == key || s.today.Date == "" {
		if s.today.Date == "" {
			s.today.Date = key
		}
		return
	}
	prev, err := gronx.PrevTickBefore(s.schedule, now, true)
	if err == nil {
		dayStart, _ := time.ParseInLocation("2006-01-02", s.today.Date, now.Location())
		if prev.Before(dayStart.AddDate(0, 0, 1)) {
			// Schedule boundary not yet reached; keep accumulating.
			return
		}
	}
	s.history = append(s.history, s.today)
	if len(s.history) > s.historyCap {
		s.history = s.history[len(s.history)-s.historyCap:]
	}
	s.today = DayStats{Date: key}
	s.persistLocked(ctx)
}

// persistLocked is best effort; a failed write is logged and dropped.
func (s *Service) persistLocked(ctx context.Context) {
	raw, err := json.Marshal(persisted{Today: s.today, History: s.history})
	if err != nil {
		s.log.Warn("failed to encode stats", zap.Error(err))
		return
	}
	if err := s.kv.SetItem(ctx, statsKey, string(raw)); err != nil {
		s.log.Warn("failed to persist stats", zap.Error(err))
	}
}

func (s *Service) bump(ctx context.Context, f func(*DayStats)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rolloverLocked(ctx)
	f(&s.today)
	s.persistLocked(ctx)
}

func (s *Service) InterventionShown(ctx context.Context) {
	s.bump(ctx, func(d *DayStats) { d.InterventionsShown++ })
}

func (s *Service) ConversationHeld(ctx context.Context) {
	s.bump(ctx, func(d *DayStats) { d.ConversationsHeld++ })
}

func (s *Service) UrgeResisted(ctx context.Context) {
	s.bump(ctx, func(d *DayStats) { d.UrgesResisted++ })
}

func (s *Service) GuidedCompleted(ctx context.Context) {
	s.bump(ctx, func(d *DayStats) { d.GuidedCompleted++ })
}

// Today returns the current day's counters after a rollover check.
func (s *Service) Today(ctx context.Context) DayStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rolloverLocked(ctx)
	return s.today
}

// History returns closed-out days, oldest first.
func (s *Service) History() []DayStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]DayStats(nil), s.history...)
}

// SetHistoryCap overrides the history bound, mainly for tests.
func (s *Service) SetHistoryCap(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > 0 {
		s.historyCap = n
	}
}

// SetClock overrides the time source, for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}
