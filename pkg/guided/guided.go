// Package guided implements the template-driven step flows that sit
// beside free chat: a fixed sequence of questions whose answers are
// turned into structured records on completion.
package guided

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mindloop-app/mindloop/pkg/memory"
	"github.com/mindloop-app/mindloop/pkg/settings"
)

// Step is one question in a template. Options, when present, suggest
// answers but free text is always accepted.
type Step struct {
	ID      string
	Prompt  string
	Options []string
}

// CompletionFunc runs when the final step's response is recorded. It
// receives every response keyed by step id.
type CompletionFunc func(ctx context.Context, responses map[string]string, sinks Sinks) error

// Template is a fixed ordered step sequence with a completion handler.
type Template struct {
	ID       string
	Title    string
	Steps    []Step
	complete CompletionFunc
}

// State tracks one in-flight guided conversation.
type State struct {
	TemplateID string
	StepIndex  int
	Responses  map[string]string
	StartedAt  time.Time
}

// PlanWriter is the settings capability the if-then flow needs.
type PlanWriter interface {
	SetPlan(ctx context.Context, situation, action string) (settings.Plan, error)
}

// UrgeRecorder is the settings capability the urge-record flow needs.
type UrgeRecorder interface {
	RecordUrge(ctx context.Context, situation string, strength int, resisted bool) (settings.UrgeRecord, error)
}

// MemoryWriter is the slice of the memory store guided completions
// write through.
type MemoryWriter interface {
	AddTrigger(text string) memory.Trigger
	RecordStrategy(description string, worked bool) memory.Strategy
	Save(ctx context.Context) error
}

// Sinks bundles the external collaborators completion handlers write
// to. All three must be populated; handlers do not nil-check.
type Sinks struct {
	Plans  PlanWriter
	Urges  UrgeRecorder
	Memory MemoryWriter
}

// Engine runs at most one guided conversation at a time. Callers
// serialize access; the engine does not arbitrate against free chat.
type Engine struct {
	templates map[string]Template
	order     []string
	sinks     Sinks
	log       *zap.Logger
	state     *State
}

func NewEngine(sinks Sinks, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{templates: map[string]Template{}, sinks: sinks, log: log}
	for _, t := range builtinTemplates() {
		e.templates[t.ID] = t
		e.order = append(e.order, t.ID)
	}
	return e
}

// Templates lists the available templates in registration order.
func (e *Engine) Templates() []Template {
	out := make([]Template, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.templates[id])
	}
	return out
}

// Active returns a copy of the in-flight state, or nil.
func (e *Engine) Active() *State {
	if e.state == nil {
		return nil
	}
	cp := *e.state
	cp.Responses = make(map[string]string, len(e.state.Responses))
	for k, v := range e.state.Responses {
		cp.Responses[k] = v
	}
	return &cp
}

// Start begins the named template. Unknown ids are logged and ignored;
// an already-active conversation is left untouched.
func (e *Engine) Start(templateID string) bool {
	if e.state != nil {
		e.log.Warn("guided conversation already active", zap.String("template_id", e.state.TemplateID))
		return false
	}
	if _, ok := e.templates[templateID]; !ok {
		e.log.Warn("unknown guided template", zap.String("template_id", templateID))
		return false
	}
	e.state = &State{
		TemplateID: templateID,
		Responses:  map[string]string{},
		StartedAt:  time.Now(),
	}
	return true
}

// CurrentStep returns the step awaiting an answer.
func (e *Engine) CurrentStep() (Step, bool) {
	if e.state == nil {
		return Step{}, false
	}
	tmpl := e.templates[e.state.TemplateID]
	return tmpl.Steps[e.state.StepIndex], true
}

// Advance records the response for the current step. Answering the
// final step fires the template's completion handler and clears the
// state; no separate complete call exists. The returned bool reports
// whether the conversation finished on this call.
func (e *Engine) Advance(ctx context.Context, response string) (bool, error) {
	if e.state == nil {
		return false, nil
	}
	tmpl := e.templates[e.state.TemplateID]
	step := tmpl.Steps[e.state.StepIndex]
	e.state.Responses[step.ID] = strings.TrimSpace(response)

	if e.state.StepIndex < len(tmpl.Steps)-1 {
		e.state.StepIndex++
		return false, nil
	}

	responses := e.state.Responses
	e.state = nil
	if err := tmpl.complete(ctx, responses, e.sinks); err != nil {
		e.log.Warn("guided completion failed",
			zap.String("template_id", tmpl.ID), zap.Error(err))
		return true, err
	}
	e.log.Info("guided conversation completed", zap.String("template_id", tmpl.ID))
	return true, nil
}

// Cancel discards the conversation and every collected response.
func (e *Engine) Cancel() {
	if e.state != nil {
		e.log.Info("guided conversation cancelled", zap.String("template_id", e.state.TemplateID))
	}
	e.state = nil
}

func builtinTemplates() []Template {
	return []Template{
		{
			ID:    "if-then",
			Title: "IF-THENプラン",
			Steps: []Step{
				{ID: "situation", Prompt: "どんな時にショート動画を開きたくなりますか？",
					Options: []string{"退屈な時", "寝る前", "疲れた時", "通知が来た時"}},
				{ID: "action", Prompt: "その時、代わりに何をしますか？",
					Options: []string{"深呼吸を3回する", "水を飲む", "ストレッチする", "本を開く"}},
			},
			complete: completeIfThen,
		},
		{
			ID:    "trigger-analysis",
			Title: "きっかけ分析",
			Steps: []Step{
				{ID: "situation", Prompt: "最後に開いてしまった時、何をしていましたか？"},
				{ID: "emotion", Prompt: "その時どんな気持ちでしたか？",
					Options: []string{"退屈", "不安", "疲れ", "さみしさ"}},
			},
			complete: completeTriggerAnalysis,
		},
		{
			ID:    "urge-record",
			Title: "衝動メモ",
			Steps: []Step{
				{ID: "situation", Prompt: "いま、どんな状況で開きたくなりましたか？"},
				{ID: "strength", Prompt: "衝動の強さを1〜5で教えてください。",
					Options: []string{"1", "2", "3", "4", "5"}},
				{ID: "resisted", Prompt: "今回は我慢できましたか？",
					Options: []string{"はい", "いいえ"}},
			},
			complete: completeUrgeRecord,
		},
	}
}

func completeIfThen(ctx context.Context, responses map[string]string, sinks Sinks) error {
	if _, err := sinks.Plans.SetPlan(ctx, responses["situation"], responses["action"]); err != nil {
		return err
	}
	return sinks.Memory.Save(ctx)
}

func completeTriggerAnalysis(ctx context.Context, responses map[string]string, sinks Sinks) error {
	situation := responses["situation"]
	emotion := responses["emotion"]
	text := situation
	if emotion != "" {
		text = situation + "(" + emotion + ")"
	}
	sinks.Memory.AddTrigger(text)
	return sinks.Memory.Save(ctx)
}

func completeUrgeRecord(ctx context.Context, responses map[string]string, sinks Sinks) error {
	strength, err := strconv.Atoi(responses["strength"])
	if err != nil {
		strength = 3
	}
	resisted := responses["resisted"] == "はい"
	if _, err := sinks.Urges.RecordUrge(ctx, responses["situation"], strength, resisted); err != nil {
		return err
	}
	// A resisted urge means the current plan worked; feed that back
	// into strategy effectiveness.
	if resisted {
		sinks.Memory.RecordStrategy("衝動をメモして我慢する", true)
		return sinks.Memory.Save(ctx)
	}
	return nil
}
