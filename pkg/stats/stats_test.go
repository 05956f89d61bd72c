package stats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mindloop-app/mindloop/pkg/storage"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestCountersAccumulateWithinADay(t *testing.T) {
	svc := NewService(storage.NewMemKV(), "", zap.NewNop())
	require.NoError(t, svc.Load(context.Background()))

	ctx := context.Background()
	svc.InterventionShown(ctx)
	svc.InterventionShown(ctx)
	svc.ConversationHeld(ctx)
	svc.UrgeResisted(ctx)
	svc.GuidedCompleted(ctx)

	today := svc.Today(ctx)
	assert.Equal(t, 2, today.InterventionsShown)
	assert.Equal(t, 1, today.ConversationsHeld)
	assert.Equal(t, 1, today.UrgesResisted)
	assert.Equal(t, 1, today.GuidedCompleted)
	assert.Empty(t, svc.History())
}

func TestMidnightRolloverClosesTheDay(t *testing.T) {
	kv := storage.NewMemKV()
	svc := NewService(kv, DefaultRolloverSchedule, zap.NewNop())
	day1 := time.Date(2026, 8, 27, 21, 0, 0, 0, time.Local)
	svc.SetClock(fixedClock(day1))
	require.NoError(t, svc.Load(context.Background()))

	ctx := context.Background()
	svc.InterventionShown(ctx)
	svc.ConversationHeld(ctx)

	// Past midnight the open day moves to history.
	svc.SetClock(fixedClock(day1.Add(5 * time.Hour)))
	svc.InterventionShown(ctx)

	today := svc.Today(ctx)
	assert.Equal(t, "2026-08-28", today.Date)
	assert.Equal(t, 1, today.InterventionsShown)
	assert.Equal(t, 0, today.ConversationsHeld)

	hist := svc.History()
	require.Len(t, hist, 1)
	assert.Equal(t, "2026-08-27", hist[0].Date)
	assert.Equal(t, 1, hist[0].InterventionsShown)
	assert.Equal(t, 1, hist[0].ConversationsHeld)
}

func TestHistoryIsBounded(t *testing.T) {
	svc := NewService(storage.NewMemKV(), "", zap.NewNop())
	svc.SetHistoryCap(3)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.Local)
	svc.SetClock(fixedClock(base))
	require.NoError(t, svc.Load(context.Background()))

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		svc.InterventionShown(ctx)
		svc.SetClock(fixedClock(base.AddDate(0, 0, i+1)))
		svc.Today(ctx) // force the rollover check
	}

	hist := svc.History()
	require.Len(t, hist, 3)
	assert.Equal(t, "2026-08-03", hist[0].Date)
	assert.Equal(t, "2026-08-05", hist[2].Date)
}

func TestStatsPersistAcrossReload(t *testing.T) {
	kv := storage.NewMemKV()
	svc := NewService(kv, "", zap.NewNop())
	require.NoError(t, svc.Load(context.Background()))
	svc.UrgeResisted(context.Background())

	fresh := NewService(kv, "", zap.NewNop())
	require.NoError(t, fresh.Load(context.Background()))
	assert.Equal(t, 1, fresh.Today(context.Background()).UrgesResisted)
}

func TestInvalidScheduleFallsBackToDefault(t *testing.T) {
	svc := NewService(storage.NewMemKV(), "not a cron", zap.NewNop())
	assert.Equal(t, DefaultRolloverSchedule, svc.schedule)
}

func TestCorruptStatsStartFresh(t *testing.T) {
	kv := storage.NewMemKV()
	require.NoError(t, kv.SetItem(context.Background(), statsKey, "garbage"))
	svc := NewService(kv, "", zap.NewNop())
	require.NoError(t, svc.Load(context.Background()))
	assert.Zero(t, svc.Today(context.Background()).InterventionsShown)
}
