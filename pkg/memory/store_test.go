package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/mindloop-app/mindloop/pkg/storage"
)

func newTestStore(kv storage.KV) *Store {
	return NewStore(kv, DefaultCaps(), nil)
}

func TestStore_LoadMissingYieldsEmptyDefault(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(storage.NewMemKV())
	if err := s.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	mem := s.Memory()
	if mem.ConfirmedInsights == nil || mem.IdentifiedTriggers == nil || mem.EffectiveStrategies == nil {
		t.Fatalf("empty default must have defined (non-nil) collections: %+v", mem)
	}
	if len(mem.ConfirmedInsights)+len(mem.IdentifiedTriggers)+len(mem.EffectiveStrategies) != 0 {
		t.Fatalf("expected empty memory, got %+v", mem)
	}
}

func TestStore_LoadCorruptBlobFallsBackToEmpty(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemKV()
	if err := kv.SetItem(ctx, "mindloop_memory_v2", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	s := newTestStore(kv)
	if err := s.Load(ctx); err != nil {
		t.Fatalf("load must not fail on corrupt data: %v", err)
	}
	if len(s.Memory().ConfirmedInsights) != 0 {
		t.Fatalf("expected empty memory after corrupt blob")
	}
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemKV()
	s := newTestStore(kv)

	in := s.AddInsight("退屈だからついつい開いてしまう")
	s.AddTrigger("寝る前にベッドでスマホを触る")
	s.RecordStrategy("深呼吸をする", true)
	s.AppendSummary(SessionSummary{SessionID: "s1", Date: "2026-08-28", Summary: "test", MessageCount: 4})
	if err := s.Save(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}

	s2 := newTestStore(kv)
	if err := s2.Load(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}
	mem := s2.Memory()
	if len(mem.ConfirmedInsights) != 1 || mem.ConfirmedInsights[0].ID != in.ID {
		t.Fatalf("insight did not round-trip: %+v", mem.ConfirmedInsights)
	}
	if len(mem.IdentifiedTriggers) != 1 || mem.IdentifiedTriggers[0].Frequency != 1 {
		t.Fatalf("trigger did not round-trip: %+v", mem.IdentifiedTriggers)
	}
	if len(s2.Summaries()) != 1 {
		t.Fatalf("summaries did not round-trip")
	}
}

func TestStore_TriggerEvictionIsFIFO(t *testing.T) {
	s := NewStore(storage.NewMemKV(), Caps{MaxInsights: 5, MaxTriggers: 3, MaxStrategies: 5, MaxSummaries: 5}, nil)
	for i := 0; i < 5; i++ {
		s.AddTrigger(fmt.Sprintf("trigger-%d", i))
	}
	mem := s.Memory()
	if len(mem.IdentifiedTriggers) != 3 {
		t.Fatalf("expected cap of 3 triggers, got %d", len(mem.IdentifiedTriggers))
	}
	for _, tr := range mem.IdentifiedTriggers {
		if tr.Trigger == "trigger-0" || tr.Trigger == "trigger-1" {
			t.Fatalf("oldest triggers should have been evicted first: %+v", mem.IdentifiedTriggers)
		}
	}
	if mem.IdentifiedTriggers[0].Trigger != "trigger-2" {
		t.Fatalf("expected discovery order preserved, got %+v", mem.IdentifiedTriggers)
	}
}

func TestStore_TriggerFrequencyAccumulates(t *testing.T) {
	s := newTestStore(storage.NewMemKV())
	s.AddTrigger("退屈")
	tr := s.AddTrigger("退屈")
	if tr.Frequency != 2 {
		t.Fatalf("expected frequency 2, got %d", tr.Frequency)
	}
	if len(s.Memory().IdentifiedTriggers) != 1 {
		t.Fatalf("repeated trigger must not duplicate")
	}
}

func TestStore_ConfirmInsight(t *testing.T) {
	s := newTestStore(storage.NewMemKV())
	a := s.AddInsight("insight a")
	b := s.AddInsight("insight b")

	if err := s.ConfirmInsight(a.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	mem := s.Memory()
	if len(mem.ConfirmedInsights) != 2 {
		t.Fatalf("confirmation must not remove entries")
	}
	for _, in := range mem.ConfirmedInsights {
		if in.ID == a.ID && !in.ConfirmedByUser {
			t.Fatalf("insight a should be confirmed")
		}
		if in.ID == b.ID && in.ConfirmedByUser {
			t.Fatalf("insight b must stay unconfirmed")
		}
	}
	if err := s.ConfirmInsight("ins-missing"); err != ErrInsightNotFound {
		t.Fatalf("expected ErrInsightNotFound, got %v", err)
	}
}

func TestStore_StrategyEffectivenessAverages(t *testing.T) {
	s := newTestStore(storage.NewMemKV())
	s.RecordStrategy("散歩する", true)
	s.RecordStrategy("散歩する", true)
	st := s.RecordStrategy("散歩する", false)
	if st.UsageCount != 3 {
		t.Fatalf("expected usage count 3, got %d", st.UsageCount)
	}
	if st.Effectiveness < 0.66 || st.Effectiveness > 0.67 {
		t.Fatalf("expected effectiveness ~2/3, got %f", st.Effectiveness)
	}
}

func TestStore_SummaryLogIsCapped(t *testing.T) {
	s := NewStore(storage.NewMemKV(), Caps{MaxInsights: 5, MaxTriggers: 5, MaxStrategies: 5, MaxSummaries: 2}, nil)
	for i := 0; i < 4; i++ {
		s.AppendSummary(SessionSummary{SessionID: fmt.Sprintf("s%d", i)})
	}
	sums := s.Summaries()
	if len(sums) != 2 || sums[0].SessionID != "s2" || sums[1].SessionID != "s3" {
		t.Fatalf("expected the two newest summaries, got %+v", sums)
	}
}

func TestBlob_ChunkedRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemKV()

	big := strings.Repeat("あいうえお", 500) // well over the test chunk size
	if err := writeBlob(ctx, kv, "k", big, 100); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, ok, _ := kv.GetItem(ctx, "k"); ok {
		t.Fatalf("chunked write must remove the unchunked record")
	}
	if _, ok, _ := kv.GetItem(ctx, "k_chunk_count"); !ok {
		t.Fatalf("chunked write must leave a chunk-count marker")
	}

	got, ok, err := readBlob(ctx, kv, "k")
	if err != nil || !ok {
		t.Fatalf("read: ok=%v err=%v", ok, err)
	}
	if got != big {
		t.Fatalf("chunked round trip mismatch: %d vs %d bytes", len(got), len(big))
	}
}

func TestBlob_MissingChunkFailsClosed(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemKV()
	if err := writeBlob(ctx, kv, "k", strings.Repeat("x", 350), 100); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := kv.RemoveItem(ctx, "k_chunk_2"); err != nil {
		t.Fatalf("remove chunk: %v", err)
	}
	if _, ok, err := readBlob(ctx, kv, "k"); err != nil || ok {
		t.Fatalf("expected not-found for missing chunk, ok=%v err=%v", ok, err)
	}
}

func TestBlob_ShrinkingWriteClearsStaleChunks(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemKV()
	if err := writeBlob(ctx, kv, "k", strings.Repeat("x", 450), 100); err != nil {
		t.Fatalf("big write: %v", err)
	}
	if err := writeBlob(ctx, kv, "k", "small", 100); err != nil {
		t.Fatalf("small write: %v", err)
	}
	got, ok, err := readBlob(ctx, kv, "k")
	if err != nil || !ok || got != "small" {
		t.Fatalf("expected small value after shrink, got %q ok=%v err=%v", got, ok, err)
	}
	for _, key := range kv.Keys() {
		if strings.Contains(key, "_chunk_") {
			t.Fatalf("stale chunk record left behind: %s", key)
		}
	}
}

func TestStore_SaveSplitsLargeMemoryIntoChunks(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemKV()
	s := newTestStore(kv)
	s.SetChunkSize(200)

	for i := 0; i < 20; i++ {
		s.AddInsight(fmt.Sprintf("気づき%02d: %s", i, strings.Repeat("長い内容", 10)))
	}
	if err := s.Save(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, ok, _ := kv.GetItem(ctx, "mindloop_memory_v2_chunk_count"); !ok {
		t.Fatalf("expected large memory blob to be chunked")
	}

	s2 := newTestStore(kv)
	if err := s2.Load(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(s2.Memory().ConfirmedInsights) != 20 {
		t.Fatalf("expected 20 insights after chunked reload, got %d", len(s2.Memory().ConfirmedInsights))
	}
}

func TestStore_MigrateLegacyVerifiesBeforeDelete(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemKV()
	legacy := storage.NewMemKV()

	mem := EmptyLongTermMemory()
	mem.ConfirmedInsights = append(mem.ConfirmedInsights, Insight{ID: "ins-legacy", Content: "古い気づき"})
	data, err := json.Marshal(mem)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := legacy.SetItem(ctx, "mindloop_memory", string(data)); err != nil {
		t.Fatalf("seed legacy: %v", err)
	}

	s := newTestStore(kv)
	if err := s.MigrateLegacy(ctx, legacy); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, ok, _ := legacy.GetItem(ctx, "mindloop_memory"); ok {
		t.Fatalf("legacy record should be deleted after verified copy")
	}
	if err := s.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	got := s.Memory()
	if len(got.ConfirmedInsights) != 1 || got.ConfirmedInsights[0].ID != "ins-legacy" {
		t.Fatalf("migrated memory not readable: %+v", got)
	}
}

func TestStore_MigrateLegacyKeepsLegacyOnFailedWrite(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemKV()
	kv.FailWrites = true
	legacy := storage.NewMemKV()
	if err := legacy.SetItem(ctx, "mindloop_memory", `{"confirmedInsights":[]}`); err != nil {
		t.Fatalf("seed legacy: %v", err)
	}

	s := newTestStore(kv)
	if err := s.MigrateLegacy(ctx, legacy); err == nil {
		t.Fatalf("expected migration error when target writes fail")
	}
	if _, ok, _ := legacy.GetItem(ctx, "mindloop_memory"); !ok {
		t.Fatalf("legacy data must survive a failed migration")
	}
}

func TestStore_Clear(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemKV()
	s := newTestStore(kv)
	s.AddInsight("something")
	if err := s.Save(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if kv.Len() != 0 {
		t.Fatalf("expected empty kv after clear, keys=%v", kv.Keys())
	}
	if len(s.Memory().ConfirmedInsights) != 0 {
		t.Fatalf("expected empty in-memory state after clear")
	}
}
