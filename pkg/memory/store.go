// Package memory holds the durable cross-session record behind the AI
// coach: confirmed insights, identified triggers, effective strategies
// and the capped session summary log. Collections are FIFO-capped and
// persisted as versioned serialized blobs through a key-value store.
package memory

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mindloop-app/mindloop/pkg/storage"
)

// Storage keys. The _v2 suffix versions the blob schema; the bare keys
// belong to the legacy unencrypted store handled by MigrateLegacy.
const (
	memoryKey    = "mindloop_memory_v2"
	summariesKey = "mindloop_summaries_v2"

	legacyMemoryKey    = "mindloop_memory"
	legacySummariesKey = "mindloop_summaries"
)

// Caps bound each persisted collection. Insertion beyond a cap evicts
// the oldest entry first (FIFO, deliberately not relevance-ranked).
type Caps struct {
	MaxInsights   int
	MaxTriggers   int
	MaxStrategies int
	MaxSummaries  int
}

func DefaultCaps() Caps {
	return Caps{
		MaxInsights:   50,
		MaxTriggers:   30,
		MaxStrategies: 20,
		MaxSummaries:  30,
	}
}

// Store owns the long-term memory state. It is constructed once at
// process start and injected into consumers; there is no hidden global.
type Store struct {
	kv        storage.KV
	log       *zap.Logger
	caps      Caps
	chunkSize int

	mu        sync.Mutex
	mem       LongTermMemory
	summaries []SessionSummary
}

func NewStore(kv storage.KV, caps Caps, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	if caps.MaxInsights <= 0 || caps.MaxTriggers <= 0 || caps.MaxStrategies <= 0 || caps.MaxSummaries <= 0 {
		caps = DefaultCaps()
	}
	return &Store{
		kv:        kv,
		log:       log,
		caps:      caps,
		chunkSize: DefaultChunkSize,
		mem:       EmptyLongTermMemory(),
		summaries: []SessionSummary{},
	}
}

// SetChunkSize overrides the blob split threshold, mainly for tests.
func (s *Store) SetChunkSize(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > 0 {
		s.chunkSize = n
	}
}

// Load reads the persisted blobs. Missing or corrupt data falls back
// to the defined empty default; Load never fails the app over it.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mem = EmptyLongTermMemory()
	s.summaries = []SessionSummary{}

	if raw, ok, err := readBlob(ctx, s.kv, memoryKey); err != nil {
		return err
	} else if ok {
		var mem LongTermMemory
		if err := json.Unmarshal([]byte(raw), &mem); err != nil {
			s.log.Warn("long-term memory blob is corrupt, starting empty", zap.Error(err))
		} else {
			s.mem = normalizeMemory(mem)
		}
	}

	if raw, ok, err := readBlob(ctx, s.kv, summariesKey); err != nil {
		return err
	} else if ok {
		var sums []SessionSummary
		if err := json.Unmarshal([]byte(raw), &sums); err != nil {
			s.log.Warn("session summary blob is corrupt, starting empty", zap.Error(err))
		} else {
			s.summaries = sums
		}
	}
	return nil
}

// Save writes both blobs. Callers treat failure as a soft error:
// losing a save degrades memory, it must never crash the app.
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	mem := s.mem
	sums := s.summaries
	chunk := s.chunkSize
	s.mu.Unlock()

	memData, err := json.Marshal(mem)
	if err != nil {
		return err
	}
	if err := writeBlob(ctx, s.kv, memoryKey, string(memData), chunk); err != nil {
		return err
	}

	sumData, err := json.Marshal(sums)
	if err != nil {
		return err
	}
	return writeBlob(ctx, s.kv, summariesKey, string(sumData), chunk)
}

// Clear wipes both in-memory state and the persisted blobs.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.mem = EmptyLongTermMemory()
	s.summaries = []SessionSummary{}
	s.mu.Unlock()

	if err := removeBlob(ctx, s.kv, memoryKey); err != nil {
		return err
	}
	return removeBlob(ctx, s.kv, summariesKey)
}

// MigrateLegacy copies data from the legacy unencrypted store into the
// chunked store, verifies the copy byte-for-byte, and only then deletes
// the legacy record. A verification mismatch leaves the legacy data in
// place and aborts.
func (s *Store) MigrateLegacy(ctx context.Context, legacy storage.KV) error {
	pairs := []struct{ from, to string }{
		{legacyMemoryKey, memoryKey},
		{legacySummariesKey, summariesKey},
	}
	s.mu.Lock()
	chunk := s.chunkSize
	s.mu.Unlock()

	for _, p := range pairs {
		val, ok, err := legacy.GetItem(ctx, p.from)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if _, exists, err := readBlob(ctx, s.kv, p.to); err != nil {
			return err
		} else if exists {
			// Already migrated; leave the legacy copy for the operator.
			continue
		}
		if err := writeBlob(ctx, s.kv, p.to, val, chunk); err != nil {
			return err
		}
		back, ok, err := readBlob(ctx, s.kv, p.to)
		if err != nil {
			return err
		}
		if !ok || back != val {
			s.log.Warn("legacy migration verification failed, keeping legacy copy", zap.String("key", p.from))
			continue
		}
		if err := legacy.RemoveItem(ctx, p.from); err != nil {
			return err
		}
		s.log.Info("migrated legacy memory blob", zap.String("key", p.from), zap.Int("bytes", len(val)))
	}
	return nil
}

// Memory returns a copy of the current long-term memory.
func (s *Store) Memory() LongTermMemory {
	s.mu.Lock()
	defer s.mu.Unlock()
	return LongTermMemory{
		ConfirmedInsights:   append([]Insight(nil), s.mem.ConfirmedInsights...),
		IdentifiedTriggers:  append([]Trigger(nil), s.mem.IdentifiedTriggers...),
		EffectiveStrategies: append([]Strategy(nil), s.mem.EffectiveStrategies...),
	}
}

// Summaries returns a copy of the session summary log, oldest first.
func (s *Store) Summaries() []SessionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SessionSummary(nil), s.summaries...)
}

// AddInsight records an auto-derived (unconfirmed) insight. Identical
// content refreshes nothing: the earlier entry wins.
func (s *Store) AddInsight(content string) Insight {
	content = strings.TrimSpace(content)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, in := range s.mem.ConfirmedInsights {
		if in.Content == content {
			return in
		}
	}
	in := Insight{
		ID:        "ins-" + uuid.NewString(),
		Content:   content,
		CreatedAt: time.Now(),
	}
	s.mem.ConfirmedInsights = append(s.mem.ConfirmedInsights, in)
	if over := len(s.mem.ConfirmedInsights) - s.caps.MaxInsights; over > 0 {
		s.mem.ConfirmedInsights = s.mem.ConfirmedInsights[over:]
	}
	return in
}

// ConfirmInsight flips exactly one insight's confirmed flag. Other
// entries are never removed or renumbered by confirmation.
func (s *Store) ConfirmInsight(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.mem.ConfirmedInsights {
		if s.mem.ConfirmedInsights[i].ID == id {
			s.mem.ConfirmedInsights[i].ConfirmedByUser = true
			return nil
		}
	}
	return ErrInsightNotFound
}

// AddTrigger appends a newly identified trigger, or bumps the
// frequency of an existing one with the same wording.
func (s *Store) AddTrigger(text string) Trigger {
	text = strings.TrimSpace(text)
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.mem.IdentifiedTriggers {
		if s.mem.IdentifiedTriggers[i].Trigger == text {
			s.mem.IdentifiedTriggers[i].Frequency++
			return s.mem.IdentifiedTriggers[i]
		}
	}
	tr := Trigger{
		ID:           "trg-" + uuid.NewString(),
		Trigger:      text,
		Frequency:    1,
		DiscoveredAt: time.Now(),
	}
	s.mem.IdentifiedTriggers = append(s.mem.IdentifiedTriggers, tr)
	if over := len(s.mem.IdentifiedTriggers) - s.caps.MaxTriggers; over > 0 {
		s.mem.IdentifiedTriggers = s.mem.IdentifiedTriggers[over:]
	}
	return tr
}

// RecordStrategy notes one use of a coping strategy and whether it
// worked, folding the outcome into a running effectiveness average.
func (s *Store) RecordStrategy(description string, worked bool) Strategy {
	description = strings.TrimSpace(description)
	outcome := 0.0
	if worked {
		outcome = 1.0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.mem.EffectiveStrategies {
		st := &s.mem.EffectiveStrategies[i]
		if st.Description == description {
			st.UsageCount++
			st.Effectiveness += (outcome - st.Effectiveness) / float64(st.UsageCount)
			return *st
		}
	}
	st := Strategy{Description: description, Effectiveness: outcome, UsageCount: 1}
	s.mem.EffectiveStrategies = append(s.mem.EffectiveStrategies, st)
	if over := len(s.mem.EffectiveStrategies) - s.caps.MaxStrategies; over > 0 {
		s.mem.EffectiveStrategies = s.mem.EffectiveStrategies[over:]
	}
	return st
}

// AppendSummary adds a finished session's summary to the FIFO log.
func (s *Store) AppendSummary(sum SessionSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries = append(s.summaries, sum)
	if over := len(s.summaries) - s.caps.MaxSummaries; over > 0 {
		s.summaries = s.summaries[over:]
	}
}

func normalizeMemory(m LongTermMemory) LongTermMemory {
	if m.ConfirmedInsights == nil {
		m.ConfirmedInsights = []Insight{}
	}
	if m.IdentifiedTriggers == nil {
		m.IdentifiedTriggers = []Trigger{}
	}
	if m.EffectiveStrategies == nil {
		m.EffectiveStrategies = []Strategy{}
	}
	return m
}
