// Package coach owns the single active conversation session: message
// flow through the crisis gate, prompt assembly, generation, and the
// end-of-session fold into long-term memory.
package coach

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mindloop-app/mindloop/pkg/generator"
	"github.com/mindloop-app/mindloop/pkg/insight"
	"github.com/mindloop-app/mindloop/pkg/memory"
	"github.com/mindloop-app/mindloop/pkg/prompt"
	"github.com/mindloop-app/mindloop/pkg/safety"
)

// ErrSessionBusy rejects a send while a reply is still being
// generated. Requests are rejected, never queued.
var ErrSessionBusy = errors.New("coach: a reply is already being generated")

// FallbackReply is the fixed assistant message shown when generation
// fails. The UI never sees raw error text.
const FallbackReply = "ごめんなさい、いまはうまく返事ができませんでした。" +
	"少し時間をおいて、もう一度話しかけてみてください。"

// EndTrigger records why a session ended. It is observability data
// only; summarization does not branch on it.
type EndTrigger string

const (
	EndTriggerUser       EndTrigger = "user_action"
	EndTriggerNavigation EndTrigger = "navigated_away"
)

// Config carries the coach's conversational defaults.
type Config struct {
	PersonaID     string
	DefaultModeID string
}

// Coach is the session manager. One instance is constructed at process
// start; at most one session is active at any time.
type Coach struct {
	gen     generator.Generator
	store   *memory.Store
	builder *prompt.Builder
	log     *zap.Logger
	cfg     Config

	mu         sync.Mutex
	session    *memory.Session
	generating bool
}

func New(gen generator.Generator, store *memory.Store, builder *prompt.Builder, cfg Config, log *zap.Logger) *Coach {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.PersonaID == "" {
		cfg.PersonaID = prompt.DefaultPersona
	}
	if cfg.DefaultModeID == "" {
		cfg.DefaultModeID = "free"
	}
	return &Coach{gen: gen, store: store, builder: builder, log: log, cfg: cfg}
}

// StartSession opens a new session. A no-op while one is active;
// callers are expected to check first.
func (c *Coach) StartSession(modeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startSessionLocked(modeID)
}

func (c *Coach) startSessionLocked(modeID string) {
	if c.session != nil {
		return
	}
	if modeID == "" {
		modeID = c.cfg.DefaultModeID
	}
	now := time.Now()
	c.session = &memory.Session{
		ID:             "ses-" + uuid.NewString(),
		Messages:       []memory.Message{},
		StartedAt:      now,
		LastActivityAt: now,
		ModeID:         modeID,
	}
}

// ActiveSession returns a copy of the current session, or nil.
func (c *Coach) ActiveSession() *memory.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	cp := *c.session
	cp.Messages = append([]memory.Message(nil), c.session.Messages...)
	return &cp
}

// IsGenerating reports whether a reply is in flight, for the UI's
// typing indicator.
func (c *Coach) IsGenerating() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generating
}

// AddAIGreeting appends an assistant message, auto-starting a session
// if none exists. Greetings count like any other assistant reply.
func (c *Coach) AddAIGreeting(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startSessionLocked("")
	c.appendLocked(memory.NewMessage("msg-"+uuid.NewString(), memory.RoleAssistant, text))
}

func (c *Coach) appendLocked(msg memory.Message) {
	c.session.Messages = append(c.session.Messages, msg)
	c.session.LastActivityAt = time.Now()
}

// SendMessage appends the user message optimistically, runs the crisis
// gate, and obtains an assistant reply. The returned message is the
// assistant's. Generation failure yields the fixed fallback reply, not
// an error; the generating flag is always cleared.
func (c *Coach) SendMessage(ctx context.Context, text string) (memory.Message, error) {
	c.mu.Lock()
	if c.generating {
		c.mu.Unlock()
		return memory.Message{}, ErrSessionBusy
	}
	c.startSessionLocked("")

	// The crisis gate runs before anything else. A match keeps the
	// exchange in the transcript for continuity but bypasses the
	// generator and every memory write.
	if reply, crisis := safety.HandleCrisisIfDetected(text); crisis {
		userMsg := memory.NewMessage("msg-"+uuid.NewString(), memory.RoleUser, text)
		userMsg.Crisis = true
		c.appendLocked(userMsg)
		assistantMsg := memory.NewMessage("msg-"+uuid.NewString(), memory.RoleAssistant, reply)
		assistantMsg.Crisis = true
		c.appendLocked(assistantMsg)
		sesID := c.session.ID
		c.mu.Unlock()
		c.log.Info("crisis response issued", zap.String("session_id", sesID))
		return assistantMsg, nil
	}

	userMsg := memory.NewMessage("msg-"+uuid.NewString(), memory.RoleUser, text)
	c.appendLocked(userMsg)
	history := append([]memory.Message(nil), c.session.Messages[:len(c.session.Messages)-1]...)
	modeID := c.session.ModeID
	c.generating = true
	c.mu.Unlock()

	p, err := c.builder.Build(c.cfg.PersonaID, modeID, c.store.Memory(), history, text)
	if err != nil {
		c.mu.Lock()
		c.generating = false
		c.mu.Unlock()
		return memory.Message{}, err
	}

	replyText, genErr := c.gen.Generate(ctx, generator.Request{
		SystemPrompt: p.SystemPrompt,
		UserContext:  p.MemorySummary,
		Messages:     append(append([]memory.Message(nil), p.HistoryMessages...), userMsg),
	})
	if genErr != nil {
		c.log.Warn("generation failed, using fallback reply", zap.Error(genErr))
		replyText = FallbackReply
	}

	assistantMsg := memory.NewMessage("msg-"+uuid.NewString(), memory.RoleAssistant, replyText)
	c.mu.Lock()
	c.generating = false
	if c.session != nil {
		c.appendLocked(assistantMsg)
	}
	c.mu.Unlock()
	return assistantMsg, nil
}

// EndSession converts the active session into a summary, folds derived
// insights into long-term memory, persists, and clears. A session with
// no messages just transitions away; there is nothing to summarize.
func (c *Coach) EndSession(ctx context.Context, trigger EndTrigger) *memory.SessionSummary {
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return nil
	}
	if len(c.session.Messages) == 0 {
		c.session = nil
		c.mu.Unlock()
		return nil
	}
	ses := c.session
	c.session = nil
	c.mu.Unlock()

	insights := insight.Extract(ses.Messages)
	sum := memory.SessionSummary{
		SessionID:       ses.ID,
		Date:            time.Now().Format("2006-01-02"),
		Summary:         summarizeSession(ses.Messages),
		Insights:        insights,
		MessageCount:    len(ses.Messages),
		DurationMinutes: int(math.Round(time.Since(ses.StartedAt).Minutes())),
	}

	c.store.AppendSummary(sum)
	for _, in := range insights {
		c.store.AddInsight(in)
	}
	// Persistence is best effort: losing a save must never crash the app.
	if err := c.store.Save(ctx); err != nil {
		c.log.Warn("failed to persist memory at session end", zap.Error(err))
	}
	c.log.Info("session ended",
		zap.String("session_id", ses.ID),
		zap.String("trigger", string(trigger)),
		zap.Int("messages", sum.MessageCount),
		zap.Int("insights", len(insights)))
	return &sum
}

// summarizeSession produces a compact textual recap: exchange counts
// plus the first few non-crisis user topics.
func summarizeSession(msgs []memory.Message) string {
	userCount := 0
	topics := []string{}
	for _, m := range msgs {
		if m.Role != memory.RoleUser || m.Crisis {
			continue
		}
		userCount++
		if len(topics) < 3 {
			topic := strings.TrimSpace(m.Content)
			if r := []rune(topic); len(r) > 40 {
				topic = string(r[:40]) + "…"
			}
			if topic != "" {
				topics = append(topics, topic)
			}
		}
	}
	var b strings.Builder
	b.WriteString("ユーザー発言" + strconv.Itoa(userCount) + "件の対話。")
	if len(topics) > 0 {
		b.WriteString("主な話題: ")
		b.WriteString(strings.Join(topics, " / "))
	}
	return b.String()
}
