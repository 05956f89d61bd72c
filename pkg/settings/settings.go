// Package settings holds the small pieces of application state the
// coaching flows write into: the user's if-then plan and a bounded log
// of recorded urges.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mindloop-app/mindloop/pkg/storage"
)

const (
	planKey    = "mindloop_plan_v1"
	urgeLogKey = "mindloop_urges_v1"

	// DefaultUrgeLogCap bounds the urge log; oldest records are
	// evicted first.
	DefaultUrgeLogCap = 100
)

// Plan is an if-then implementation intention: when Situation occurs,
// do Action instead of opening the app.
type Plan struct {
	ID        string    `json:"id"`
	Situation string    `json:"situation"`
	Action    string    `json:"action"`
	CreatedAt time.Time `json:"createdAt"`
}

// UrgeRecord captures one logged urge episode. Strength is 1..5.
type UrgeRecord struct {
	ID         string    `json:"id"`
	Situation  string    `json:"situation"`
	Strength   int       `json:"strength"`
	Resisted   bool      `json:"resisted"`
	RecordedAt time.Time `json:"recordedAt"`
}

// Service owns plan and urge-log state, persisted through the shared
// key-value store. Construct once at process start.
type Service struct {
	kv      storage.KV
	log     *zap.Logger
	urgeCap int

	mu    sync.Mutex
	plan  *Plan
	urges []UrgeRecord
}

func NewService(kv storage.KV, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{kv: kv, log: log, urgeCap: DefaultUrgeLogCap, urges: []UrgeRecord{}}
}

// Load reads persisted state. Missing or corrupt data yields empty
// defaults; settings loss must never block startup.
func (s *Service) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if raw, ok, err := s.kv.GetItem(ctx, planKey); err != nil {
		return fmt.Errorf("load plan: %w", err)
	} else if ok {
		var p Plan
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			s.log.Warn("corrupt plan record, discarding", zap.Error(err))
		} else {
			s.plan = &p
		}
	}

	if raw, ok, err := s.kv.GetItem(ctx, urgeLogKey); err != nil {
		return fmt.Errorf("load urge log: %w", err)
	} else if ok {
		var urges []UrgeRecord
		if err := json.Unmarshal([]byte(raw), &urges); err != nil {
			s.log.Warn("corrupt urge log, discarding", zap.Error(err))
		} else {
			s.urges = urges
		}
	}
	return nil
}

// SetPlan replaces the current if-then plan and persists it.
func (s *Service) SetPlan(ctx context.Context, situation, action string) (Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := Plan{
		ID:        "plan-" + uuid.NewString(),
		Situation: situation,
		Action:    action,
		CreatedAt: time.Now(),
	}
	s.plan = &p

	raw, err := json.Marshal(p)
	if err != nil {
		return Plan{}, fmt.Errorf("encode plan: %w", err)
	}
	if err := s.kv.SetItem(ctx, planKey, string(raw)); err != nil {
		return Plan{}, fmt.Errorf("persist plan: %w", err)
	}
	return p, nil
}

// Plan returns the active plan, if any.
func (s *Service) Plan() (Plan, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.plan == nil {
		return Plan{}, false
	}
	return *s.plan, true
}

// RecordUrge appends to the urge log, evicting the oldest record once
// the cap is exceeded.
func (s *Service) RecordUrge(ctx context.Context, situation string, strength int, resisted bool) (UrgeRecord, error) {
	if strength < 1 {
		strength = 1
	}
	if strength > 5 {
		strength = 5
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := UrgeRecord{
		ID:         "urge-" + uuid.NewString(),
		Situation:  situation,
		Strength:   strength,
		Resisted:   resisted,
		RecordedAt: time.Now(),
	}
	s.urges = append(s.urges, rec)
	if len(s.urges) > s.urgeCap {
		s.urges = s.urges[len(s.urges)-s.urgeCap:]
	}

	raw, err := json.Marshal(s.urges)
	if err != nil {
		return UrgeRecord{}, fmt.Errorf("encode urge log: %w", err)
	}
	if err := s.kv.SetItem(ctx, urgeLogKey, string(raw)); err != nil {
		return UrgeRecord{}, fmt.Errorf("persist urge log: %w", err)
	}
	return rec, nil
}

// UrgeLog returns a copy of the log, oldest first.
func (s *Service) UrgeLog() []UrgeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]UrgeRecord(nil), s.urges...)
}

// SetUrgeLogCap overrides the log bound, mainly for tests.
func (s *Service) SetUrgeLogCap(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > 0 {
		s.urgeCap = n
	}
}
