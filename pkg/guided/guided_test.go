package guided

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mindloop-app/mindloop/pkg/memory"
	"github.com/mindloop-app/mindloop/pkg/settings"
	"github.com/mindloop-app/mindloop/pkg/storage"
)

// recordingPlans counts SetPlan calls on top of the real service.
type recordingPlans struct {
	svc   *settings.Service
	calls int
}

func (r *recordingPlans) SetPlan(ctx context.Context, situation, action string) (settings.Plan, error) {
	r.calls++
	return r.svc.SetPlan(ctx, situation, action)
}

func newTestEngine(t *testing.T) (*Engine, *recordingPlans, *settings.Service, *memory.Store) {
	t.Helper()
	kv := storage.NewMemKV()
	svc := settings.NewService(kv, zap.NewNop())
	store := memory.NewStore(kv, memory.DefaultCaps(), zap.NewNop())
	require.NoError(t, store.Load(context.Background()))
	plans := &recordingPlans{svc: svc}
	eng := NewEngine(Sinks{Plans: plans, Urges: svc, Memory: store}, zap.NewNop())
	return eng, plans, svc, store
}

func TestUnknownTemplateIsRejected(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)
	assert.False(t, eng.Start("nonexistent"))
	assert.Nil(t, eng.Active())
}

func TestStartWhileActiveIsIgnored(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)
	require.True(t, eng.Start("if-then"))
	assert.False(t, eng.Start("trigger-analysis"))
	assert.Equal(t, "if-then", eng.Active().TemplateID)
}

func TestIfThenFullWalkSetsPlanOnce(t *testing.T) {
	eng, plans, svc, _ := newTestEngine(t)
	require.True(t, eng.Start("if-then"))

	step, ok := eng.CurrentStep()
	require.True(t, ok)
	assert.Equal(t, "situation", step.ID)

	done, err := eng.Advance(context.Background(), "寝る前にベッドでスマホを触った時")
	require.NoError(t, err)
	assert.False(t, done)

	step, ok = eng.CurrentStep()
	require.True(t, ok)
	assert.Equal(t, "action", step.ID)

	done, err = eng.Advance(context.Background(), "本を3ページ読む")
	require.NoError(t, err)
	assert.True(t, done)

	assert.Nil(t, eng.Active())
	assert.Equal(t, 1, plans.calls)
	p, ok := svc.Plan()
	require.True(t, ok)
	assert.Equal(t, "寝る前にベッドでスマホを触った時", p.Situation)
	assert.Equal(t, "本を3ページ読む", p.Action)
}

func TestTriggerAnalysisAppendsTrigger(t *testing.T) {
	eng, _, _, store := newTestEngine(t)
	require.True(t, eng.Start("trigger-analysis"))

	_, err := eng.Advance(context.Background(), "電車を待っていた")
	require.NoError(t, err)
	done, err := eng.Advance(context.Background(), "退屈")
	require.NoError(t, err)
	assert.True(t, done)

	triggers := store.Memory().IdentifiedTriggers
	require.Len(t, triggers, 1)
	assert.Equal(t, "電車を待っていた(退屈)", triggers[0].Trigger)
}

func TestUrgeRecordWritesLogAndStrategy(t *testing.T) {
	eng, _, svc, store := newTestEngine(t)
	require.True(t, eng.Start("urge-record"))

	_, err := eng.Advance(context.Background(), "昼休みにひとりだった")
	require.NoError(t, err)
	_, err = eng.Advance(context.Background(), "4")
	require.NoError(t, err)
	done, err := eng.Advance(context.Background(), "はい")
	require.NoError(t, err)
	assert.True(t, done)

	urges := svc.UrgeLog()
	require.Len(t, urges, 1)
	assert.Equal(t, 4, urges[0].Strength)
	assert.True(t, urges[0].Resisted)
	require.Len(t, store.Memory().EffectiveStrategies, 1)
}

func TestUrgeRecordNotResistedSkipsStrategy(t *testing.T) {
	eng, _, svc, store := newTestEngine(t)
	require.True(t, eng.Start("urge-record"))

	_, _ = eng.Advance(context.Background(), "通知が来た")
	_, _ = eng.Advance(context.Background(), "5")
	done, err := eng.Advance(context.Background(), "いいえ")
	require.NoError(t, err)
	assert.True(t, done)

	require.Len(t, svc.UrgeLog(), 1)
	assert.False(t, svc.UrgeLog()[0].Resisted)
	assert.Empty(t, store.Memory().EffectiveStrategies)
}

func TestCancelDiscardsResponses(t *testing.T) {
	eng, plans, _, _ := newTestEngine(t)
	require.True(t, eng.Start("if-then"))
	_, _ = eng.Advance(context.Background(), "退屈な時")
	eng.Cancel()

	assert.Nil(t, eng.Active())
	assert.Zero(t, plans.calls)

	// A fresh start begins at the first step again.
	require.True(t, eng.Start("if-then"))
	step, ok := eng.CurrentStep()
	require.True(t, ok)
	assert.Equal(t, "situation", step.ID)
	assert.Empty(t, eng.Active().Responses)
}

func TestAdvanceWithoutActiveConversationIsNoop(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)
	done, err := eng.Advance(context.Background(), "何か")
	assert.False(t, done)
	assert.NoError(t, err)
}

func TestTemplatesAreListed(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)
	ids := []string{}
	for _, tmpl := range eng.Templates() {
		ids = append(ids, tmpl.ID)
	}
	assert.Equal(t, []string{"if-then", "trigger-analysis", "urge-record"}, ids)
}
